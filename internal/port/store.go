package port

import (
	"context"

	"soup/internal/domain"
)

// PhraseStore owns the canonical phrase collection.
type PhraseStore interface {
	// Insert stores a new phrase and returns its id. The embedding may be
	// empty (pending) or of the store's dimension (ready).
	Insert(ctx context.Context, text string, embedding []float32) (string, error)

	// PatchEmbedding replaces the embedding of an existing phrase.
	// Returns domain.ErrNotFound if the id does not exist.
	PatchEmbedding(ctx context.Context, id string, embedding []float32) error

	// Remove deletes a phrase. Returns domain.ErrNotFound if absent.
	Remove(ctx context.Context, id string) error

	// List returns all phrases in insertion order.
	List(ctx context.Context) ([]domain.PhraseSummary, error)

	// ListPending returns phrases still waiting for an embedding, in insertion order.
	ListPending(ctx context.Context) ([]domain.PhraseSummary, error)

	Get(ctx context.Context, id string) (domain.PhraseSummary, error)

	// GetMany returns the phrases that still exist, in the order of ids.
	// Missing ids are skipped.
	GetMany(ctx context.Context, ids []string) ([]domain.PhraseSummary, error)

	Count(ctx context.Context) (int, error)

	Close() error
}

// VectorIndex is a read-only similarity view over a PhraseStore's ready embeddings.
type VectorIndex interface {
	// Nearest returns up to k matches ordered by descending score.
	// A query of the wrong dimension yields domain.ErrInvalidArgument.
	Nearest(ctx context.Context, query []float32, k int) ([]domain.Match, error)
}
