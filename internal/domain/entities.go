package domain

import (
	"math"
	"time"
)

// State is the lifecycle state of a phrase's embedding.
type State string

const (
	StatePending State = "pending"
	StateReady   State = "ready"
)

// Phrase is the sole persisted entity. Embedding is either empty (pending)
// or exactly the configured dimension (ready).
type Phrase struct {
	ID        string
	Text      string
	Embedding []float32
	CreatedAt time.Time
}

// State reports whether the phrase's embedding has been attached.
func (p Phrase) State() State {
	if len(p.Embedding) == 0 {
		return StatePending
	}
	return StateReady
}

// Summary drops the embedding, which never leaves the core.
func (p Phrase) Summary() PhraseSummary {
	return PhraseSummary{ID: p.ID, Text: p.Text}
}

type PhraseSummary struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Match is a raw vector index hit.
type Match struct {
	ID    string
	Score float64
}

type SearchResult struct {
	ID    string  `json:"id"`
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// Percent is the score as a rounded match percentage.
func (r SearchResult) Percent() int {
	return int(math.Round(r.Score * 100))
}
