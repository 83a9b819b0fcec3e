package domain

import "errors"

var (
	// ErrInvalidImage signals an unreadable or corrupt image upload.
	ErrInvalidImage = errors.New("invalid image")
	// ErrImageTooLarge signals an image exceeding the configured size ceiling.
	ErrImageTooLarge = errors.New("image too large")
	// ErrInvalidQuery signals an empty or malformed text query.
	ErrInvalidQuery = errors.New("invalid query")
	// ErrInvalidFilter signals a malformed metadata filter.
	ErrInvalidFilter = errors.New("invalid filter")

	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrIndexUnavailable signals a vector index failure.
	ErrIndexUnavailable = errors.New("vector index unavailable")
	// ErrRateLimited signals a rate limit hit.
	ErrRateLimited = errors.New("rate limited")
)
