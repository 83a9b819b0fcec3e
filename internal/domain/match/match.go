package match

// Attributes holds the catalog metadata attached to an indexed sneaker vector.
// ModelName is the deduplication group key; every other field is optional and
// absent fields stay zero-valued rather than defaulting to placeholder strings.
type Attributes struct {
	ModelName   string
	Brand       string
	Color       string
	Size        string
	Price       *float64
	Description string
	ImagePath   string
	CatalogID   string
}

// Match is a single similarity-search hit against the sneaker index.
type Match struct {
	id    string
	score float64
	attrs Attributes
}

// New creates a match. score is expected to be a similarity in [0,1].
func New(id string, score float64, attrs Attributes) Match {
	return Match{id: id, score: score, attrs: attrs}
}

// ID returns the vector identifier.
func (m *Match) ID() string { return m.id }

// Score returns the similarity score.
func (m *Match) Score() float64 { return m.score }

// ModelName returns the group key used to deduplicate near-identical vectors.
func (m *Match) ModelName() string { return m.attrs.ModelName }

// HasModel reports whether the hit carries a group key. Hits without one are
// skipped during deduplication, never surfaced as errors.
func (m *Match) HasModel() bool { return m.attrs.ModelName != "" }

// Attrs returns the full catalog metadata.
func (m *Match) Attrs() Attributes { return m.attrs }
