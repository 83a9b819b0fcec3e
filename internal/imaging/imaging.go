package imaging

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"net/http"

	"github.com/solegrid/kickdex/internal/domain"
)

// DefaultMaxBytes caps uploaded images at 5 MiB.
const DefaultMaxBytes = 5 << 20

// Info describes a validated upload.
type Info struct {
	Format string
	Width  int
	Height int
	Bytes  int
}

// Validator checks uploaded image payloads before they reach the embedder.
type Validator struct {
	maxBytes int
}

// NewValidator creates a validator. maxBytes <= 0 falls back to DefaultMaxBytes.
func NewValidator(maxBytes int) *Validator {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Validator{maxBytes: maxBytes}
}

// Validate checks size and decodability and returns image metadata.
// Only the header is decoded, not the full pixel data.
func (v *Validator) Validate(data []byte) (Info, error) {
	if len(data) == 0 {
		return Info{}, fmt.Errorf("empty image payload: %w", domain.ErrInvalidImage)
	}
	if len(data) > v.maxBytes {
		return Info{}, fmt.Errorf("image size %d exceeds limit %d: %w",
			len(data), v.maxBytes, domain.ErrImageTooLarge)
	}

	contentType := http.DetectContentType(data)
	switch contentType {
	case "image/jpeg", "image/png", "image/gif":
	default:
		return Info{}, fmt.Errorf("unsupported content type %q: %w", contentType, domain.ErrInvalidImage)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Info{}, fmt.Errorf("decode image header: %w", domain.ErrInvalidImage)
	}

	return Info{
		Format: format,
		Width:  cfg.Width,
		Height: cfg.Height,
		Bytes:  len(data),
	}, nil
}
