package domain

import "strings"

// Namespace is the closed set of partitions a record can live in.
type Namespace string

const (
	NamespacePaper   Namespace = "paper"
	NamespaceDataset Namespace = "dataset"
	NamespaceAlgo    Namespace = "algo"
)

// Namespaces returns every valid namespace in declaration order.
func Namespaces() []Namespace {
	return []Namespace{NamespacePaper, NamespaceDataset, NamespaceAlgo}
}

// Valid reports whether n is one of the known namespaces.
func (n Namespace) Valid() bool {
	switch n {
	case NamespacePaper, NamespaceDataset, NamespaceAlgo:
		return true
	}
	return false
}

func (n Namespace) String() string { return string(n) }

// ParseNamespace converts raw caller input into a Namespace.
func ParseNamespace(s string) (Namespace, error) {
	n := Namespace(strings.TrimSpace(s))
	if !n.Valid() {
		return "", &ValidationError{Field: "namespace", Reason: "must be one of paper, dataset, algo; got " + quote(s)}
	}
	return n, nil
}

// Record is the unit stored in and retrieved from the index.
// Text is embedded; Title is carried as payload only.
type Record struct {
	ID        string    `json:"id" msgpack:"id"`
	Text      string    `json:"text" msgpack:"text"`
	Title     string    `json:"title" msgpack:"title"`
	Namespace Namespace `json:"namespace" msgpack:"namespace"`
}

// Validate checks the write-side constraints of a record.
func (r Record) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return &ValidationError{Field: "id", Reason: "must not be empty"}
	}
	if strings.TrimSpace(r.Text) == "" {
		return &ValidationError{Field: "text", Reason: "must not be empty"}
	}
	if !r.Namespace.Valid() {
		return &ValidationError{Field: "namespace", Reason: "must be one of paper, dataset, algo; got " + quote(string(r.Namespace))}
	}
	return nil
}

// IndexSpec describes the named collection and how its records are embedded.
type IndexSpec struct {
	Name string
	// Model identifies the embedding provider model.
	Model string
	// Field is the payload field the embedder reads the record text from.
	Field string
	// Dimension of the provider's vectors. Zero lets the store discover it.
	Dimension int
}

// Candidate is a raw similarity match returned by a store before reranking.
type Candidate struct {
	ID    string
	Title string
	Text  string
	Score float64
}

// Hit is a reranked retrieval result.
type Hit struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
	Text  string  `json:"text"`
	Title string  `json:"title,omitempty"`
}

// RerankResult points at a reranked document by its position in the input slice.
type RerankResult struct {
	Index int
	Score float64
}

func quote(s string) string { return "\"" + s + "\"" }
