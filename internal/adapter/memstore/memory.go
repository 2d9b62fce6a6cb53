package memstore

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"soup/internal/adapter/vecindex"
	"soup/internal/domain"
)

// MemoryStore is a non-persistent phrase store and vector index.
type MemoryStore struct {
	mu        sync.RWMutex
	dimension int
	phrases   map[string]*domain.Phrase
	order     []string
	index     *vecindex.Index
}

func NewMemoryStore(dimension int) *MemoryStore {
	return &MemoryStore{
		dimension: dimension,
		phrases:   make(map[string]*domain.Phrase),
		index:     vecindex.New(dimension),
	}
}

func (s *MemoryStore) checkEmbedding(embedding []float32, allowEmpty bool) error {
	if len(embedding) == 0 && allowEmpty {
		return nil
	}
	if len(embedding) != s.dimension {
		return domain.InvalidArgument("embedding dimension mismatch: expected %d, got %d", s.dimension, len(embedding))
	}
	return nil
}

func (s *MemoryStore) Insert(ctx context.Context, text string, embedding []float32) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", domain.InvalidArgument("phrase text must not be empty")
	}
	if err := s.checkEmbedding(embedding, true); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p := &domain.Phrase{
		ID:        uuid.NewString(),
		Text:      text,
		Embedding: embedding,
		CreatedAt: time.Now(),
	}
	s.phrases[p.ID] = p
	s.order = append(s.order, p.ID)
	s.index.Put(p.ID, embedding)
	return p.ID, nil
}

func (s *MemoryStore) PatchEmbedding(ctx context.Context, id string, embedding []float32) error {
	if err := s.checkEmbedding(embedding, false); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.phrases[id]
	if !ok {
		return domain.NotFoundError(id)
	}
	p.Embedding = embedding
	s.index.Put(id, embedding)
	return nil
}

func (s *MemoryStore) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.phrases[id]; !ok {
		return domain.NotFoundError(id)
	}
	delete(s.phrases, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.index.Delete(id)
	return nil
}

func (s *MemoryStore) List(ctx context.Context) ([]domain.PhraseSummary, error) {
	return s.scan(func(*domain.Phrase) bool { return true }), nil
}

func (s *MemoryStore) ListPending(ctx context.Context) ([]domain.PhraseSummary, error) {
	return s.scan(func(p *domain.Phrase) bool { return p.State() == domain.StatePending }), nil
}

func (s *MemoryStore) scan(keep func(*domain.Phrase) bool) []domain.PhraseSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.PhraseSummary, 0, len(s.order))
	for _, id := range s.order {
		if p := s.phrases[id]; keep(p) {
			out = append(out, p.Summary())
		}
	}
	return out
}

func (s *MemoryStore) Get(ctx context.Context, id string) (domain.PhraseSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.phrases[id]
	if !ok {
		return domain.PhraseSummary{}, domain.NotFoundError(id)
	}
	return p.Summary(), nil
}

func (s *MemoryStore) GetMany(ctx context.Context, ids []string) ([]domain.PhraseSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.PhraseSummary, 0, len(ids))
	for _, id := range ids {
		if p, ok := s.phrases[id]; ok {
			out = append(out, p.Summary())
		}
	}
	return out, nil
}

func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.phrases), nil
}

func (s *MemoryStore) Nearest(ctx context.Context, query []float32, k int) ([]domain.Match, error) {
	return s.index.Nearest(ctx, query, k)
}

func (s *MemoryStore) Close() error {
	return nil
}
