package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"soup/internal/domain"
	"soup/internal/port"
)

// DefaultSearchLimit bounds search results when no limit is configured.
const DefaultSearchLimit = 5

// PhraseService composes the phrase store, the vector index and the embedder
// into the add/remove/list/search operations.
type PhraseService struct {
	store    port.PhraseStore
	index    port.VectorIndex
	embedder port.Embedder
	queue    *EmbedQueue // nil: add embeds synchronously
	limit    int
	minScore float64
	log      *slog.Logger
}

// ServiceOptions configures a PhraseService.
type ServiceOptions struct {
	Limit    int
	MinScore float64 // Filter results below this score (0 = disabled)
	// Queue switches add to the deferred variant: insert pending, embed in the background.
	Queue  *EmbedQueue
	Logger *slog.Logger
}

// NewPhraseService creates a new phrase service.
func NewPhraseService(
	store port.PhraseStore,
	index port.VectorIndex,
	embedder port.Embedder,
	opts ServiceOptions,
) *PhraseService {
	if opts.Limit <= 0 {
		opts.Limit = DefaultSearchLimit
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &PhraseService{
		store:    store,
		index:    index,
		embedder: embedder,
		queue:    opts.Queue,
		limit:    opts.Limit,
		minScore: opts.MinScore,
		log:      opts.Logger,
	}
}

// Deferred reports whether add leaves embedding to the background queue.
func (s *PhraseService) Deferred() bool {
	return s.queue != nil
}

func normalize(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", domain.InvalidArgument("text must not be empty")
	}
	return text, nil
}

// Add stores a new phrase and returns its id.
//
// Synchronously, the embedding is computed first and a ready phrase is
// inserted; a provider failure creates nothing. In deferred mode a pending
// phrase is inserted and queued. If queueing fails the phrase stays pending,
// its id is still returned with the error, and EmbedPending recovers it.
func (s *PhraseService) Add(ctx context.Context, text string) (string, error) {
	text, err := normalize(text)
	if err != nil {
		return "", err
	}

	if s.queue == nil {
		embedding, err := s.embedder.Embed(ctx, text)
		if err != nil {
			return "", err
		}
		id, err := s.store.Insert(ctx, text, embedding)
		if err != nil {
			return "", err
		}
		s.log.Info("phrase added", "id", id, "state", domain.StateReady)
		return id, nil
	}

	id, err := s.store.Insert(ctx, text, nil)
	if err != nil {
		return "", err
	}
	s.log.Info("phrase added", "id", id, "state", domain.StatePending)

	if err := s.queue.Enqueue(ctx, id, text); err != nil {
		s.log.Warn("failed to schedule embedding", "id", id, "error", err)
		return id, fmt.Errorf("schedule embedding for %s: %w", id, err)
	}
	return id, nil
}

// Remove deletes a phrase. Unknown ids yield domain.ErrNotFound.
func (s *PhraseService) Remove(ctx context.Context, id string) error {
	if err := s.store.Remove(ctx, id); err != nil {
		return err
	}
	s.log.Info("phrase removed", "id", id)
	return nil
}

// List returns all phrases in insertion order, without embeddings.
func (s *PhraseService) List(ctx context.Context) ([]domain.PhraseSummary, error) {
	return s.store.List(ctx)
}

// Search embeds text and returns the closest ready phrases, best first.
// Phrases deleted between the index lookup and hydration are dropped.
func (s *PhraseService) Search(ctx context.Context, text string) ([]domain.SearchResult, error) {
	text, err := normalize(text)
	if err != nil {
		return nil, err
	}

	query, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	matches, err := s.index.Nearest(ctx, query, s.limit)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return []domain.SearchResult{}, nil
	}

	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.ID
	}
	phrases, err := s.store.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	texts := make(map[string]string, len(phrases))
	for _, p := range phrases {
		texts[p.ID] = p.Text
	}

	results := make([]domain.SearchResult, 0, len(matches))
	for _, m := range matches {
		phraseText, ok := texts[m.ID]
		if !ok {
			s.log.Debug("search hit no longer stored", "id", m.ID)
			continue
		}
		if s.minScore > 0 && m.Score < s.minScore {
			continue
		}
		results = append(results, domain.SearchResult{ID: m.ID, Text: phraseText, Score: m.Score})
	}
	return results, nil
}

// EmbedPending schedules (deferred mode) or computes (sync mode) the
// embedding of every pending phrase. It returns how many phrases were
// handled; in sync mode failures are collected and returned together.
func (s *PhraseService) EmbedPending(ctx context.Context, progress func(done, total int)) (int, error) {
	pending, err := s.store.ListPending(ctx)
	if err != nil {
		return 0, err
	}

	var errs []error
	handled := 0
	for i, p := range pending {
		if s.queue != nil {
			if err := s.queue.Enqueue(ctx, p.ID, p.Text); err != nil {
				return handled, err
			}
			handled++
		} else if err := embedAndPatch(ctx, s.store, s.embedder, p.ID, p.Text); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				s.log.Debug("pending phrase removed before embedding", "id", p.ID)
			} else {
				errs = append(errs, fmt.Errorf("%s: %w", p.ID, err))
			}
		} else {
			handled++
		}
		if progress != nil {
			progress(i+1, len(pending))
		}
	}
	return handled, errors.Join(errs...)
}

// embedAndPatch moves one phrase from pending to ready.
func embedAndPatch(ctx context.Context, store port.PhraseStore, embedder port.Embedder, id, text string) error {
	embedding, err := embedder.Embed(ctx, text)
	if err != nil {
		return err
	}
	return store.PatchEmbedding(ctx, id, embedding)
}
