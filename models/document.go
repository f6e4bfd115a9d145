package models

// Metadata keys attached to documents and inherited by their chunks.
const (
	MetaSource = "source"
	MetaPage   = "page"
	MetaKind   = "kind"
)

// Document kinds recorded under MetaKind.
const (
	KindText     = "text"
	KindPDF      = "pdf"
	KindImage    = "image"
	KindPDFImage = "pdf-image"
)

// Metadata is the provenance attached to a Document and copied onto its chunks.
type Metadata map[string]string

// Clone returns an independent copy so chunks never alias their parent's map.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Source returns the provenance identifier.
func (m Metadata) Source() string {
	return m[MetaSource]
}

// Document is one normalized unit of extracted content.
type Document struct {
	Content  string   `json:"content"`
	Metadata Metadata `json:"metadata"`
}

// Source returns the document's provenance identifier.
func (d Document) Source() string {
	return d.Metadata.Source()
}

// Chunk is a bounded slice of a Document's content.
type Chunk struct {
	Text     string   `json:"text"`
	Index    int      `json:"index"`
	Metadata Metadata `json:"metadata,omitempty"`
}

// Source returns the source inherited from the parent document.
func (c Chunk) Source() string {
	return c.Metadata.Source()
}

// ScoredChunk is a retrieval hit.
type ScoredChunk struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}

// IndexStats describes the persisted vector index.
type IndexStats struct {
	Backend  string `json:"backend"`
	Location string `json:"location"`
	Entries  int    `json:"entries"`
}
