package entities

// Document is a raw piece of knowledge handed to ingestion.
type Document struct {
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Chunk is a bounded split of a Document and the unit of embedding.
// Metadata is copied from the originating document.
type Chunk struct {
	Text      string         `json:"text"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Embedding []float32      `json:"-"`
}

// SearchType tells which retrieval path produced a source.
type SearchType string

const (
	SearchTypeVector  SearchType = "vector"
	SearchTypeKeyword SearchType = "keyword"
)

// Source is one piece of context backing an answer.
type Source struct {
	Content    string         `json:"content"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Relevance  int            `json:"relevance"`
	SearchType SearchType     `json:"searchType"`
}

// Answer is the result of a knowledge query.
type Answer struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
}
