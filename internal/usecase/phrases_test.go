package usecase

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"soup/internal/adapter/embedding"
	"soup/internal/adapter/memstore"
	"soup/internal/adapter/store"
	"soup/internal/domain"
)

func soupVectors() map[string][]float32 {
	return map[string][]float32{
		"happy":  {1, 0},
		"joyful": {0.9, 0.1},
		"car":    {0, 1},
		"glad":   {0.95, 0.05},
	}
}

func newSyncService(t *testing.T) (*PhraseService, *memstore.MemoryStore, *embedding.StubEmbedder) {
	t.Helper()
	st := memstore.NewMemoryStore(2)
	emb := embedding.NewStubEmbedder(2, soupVectors())
	return NewPhraseService(st, st, emb, ServiceOptions{}), st, emb
}

func TestAddThenList(t *testing.T) {
	svc, _, _ := newSyncService(t)
	ctx := context.Background()

	id, err := svc.Add(ctx, "happy")
	if err != nil {
		t.Fatal(err)
	}

	phrases, err := svc.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(phrases) != 1 || phrases[0].ID != id || phrases[0].Text != "happy" {
		t.Errorf("expected exactly one happy entry, got %v", phrases)
	}
}

func TestAdd_TrimsText(t *testing.T) {
	svc, _, _ := newSyncService(t)
	ctx := context.Background()

	if _, err := svc.Add(ctx, "  joyful \n"); err != nil {
		t.Fatal(err)
	}
	phrases, _ := svc.List(ctx)
	if len(phrases) != 1 || phrases[0].Text != "joyful" {
		t.Errorf("expected trimmed text, got %v", phrases)
	}
}

func TestAdd_RejectsEmptyText(t *testing.T) {
	svc, st, emb := newSyncService(t)
	ctx := context.Background()

	for _, text := range []string{"", "   ", "\t\n"} {
		if _, err := svc.Add(ctx, text); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("Add(%q): expected invalid argument, got %v", text, err)
		}
		if _, err := svc.Search(ctx, text); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("Search(%q): expected invalid argument, got %v", text, err)
		}
	}
	if n, _ := st.Count(ctx); n != 0 {
		t.Errorf("expected no records, got %d", n)
	}
	if emb.Calls("") != 0 {
		t.Error("provider must not be called for rejected input")
	}
}

func TestAdd_ProviderErrorCreatesNothing(t *testing.T) {
	svc, st, emb := newSyncService(t)
	ctx := context.Background()
	emb.Fail("happy", errors.New("rate limited"))

	_, err := svc.Add(ctx, "happy")
	if !errors.Is(err, domain.ErrProvider) {
		t.Fatalf("expected provider error, got %v", err)
	}
	if n, _ := st.Count(ctx); n != 0 {
		t.Errorf("expected no record after provider failure, got %d", n)
	}
}

func TestSearch_Scenario(t *testing.T) {
	svc, _, _ := newSyncService(t)
	ctx := context.Background()

	for _, text := range []string{"happy", "joyful", "car"} {
		if _, err := svc.Add(ctx, text); err != nil {
			t.Fatal(err)
		}
	}

	results, err := svc.Search(ctx, "glad")
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %v", results)
	}
	if results[2].Text != "car" {
		t.Errorf("expected car ranked last, got %v", results)
	}
	top := map[string]bool{results[0].Text: true, results[1].Text: true}
	if !top["happy"] || !top["joyful"] {
		t.Errorf("expected happy and joyful ranked first, got %v", results)
	}
	for i := 1; i < len(results); i++ {
		if results[i-1].Score < results[i].Score {
			t.Errorf("results not ordered by descending score: %v", results)
		}
	}
	if p := results[0].Percent(); p < 99 || p > 100 {
		t.Errorf("expected top match near 100%%, got %d", p)
	}
}

func TestSearch_SelfSimilarity(t *testing.T) {
	svc, _, _ := newSyncService(t)
	ctx := context.Background()
	for _, text := range []string{"car", "joyful", "happy"} {
		svc.Add(ctx, text)
	}

	results, err := svc.Search(ctx, "happy")
	if err != nil {
		t.Fatal(err)
	}
	if len(results) == 0 || results[0].Text != "happy" {
		t.Fatalf("expected happy at rank 1, got %v", results)
	}
	for _, r := range results[1:] {
		if r.Score > results[0].Score {
			t.Errorf("%s scored above the exact match", r.Text)
		}
	}
}

func TestSearch_BoundedResults(t *testing.T) {
	st := memstore.NewMemoryStore(2)
	emb := embedding.NewStubEmbedder(2, map[string][]float32{"q": {1, 0}})
	svc := NewPhraseService(st, st, emb, ServiceOptions{})
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		text := fmt.Sprintf("phrase %d", i)
		emb.Set(text, []float32{1, float32(i)})
		if _, err := svc.Add(ctx, text); err != nil {
			t.Fatal(err)
		}
	}

	results, _ := svc.Search(ctx, "q")
	if len(results) != DefaultSearchLimit {
		t.Errorf("expected %d results, got %d", DefaultSearchLimit, len(results))
	}

	// fewer ready phrases than the limit
	small, _, _ := newSyncService(t)
	small.Add(ctx, "happy")
	results, _ = small.Search(ctx, "glad")
	if len(results) != 1 {
		t.Errorf("expected 1 result, got %d", len(results))
	}
}

func TestSearch_MinScore(t *testing.T) {
	st := memstore.NewMemoryStore(2)
	emb := embedding.NewStubEmbedder(2, soupVectors())
	svc := NewPhraseService(st, st, emb, ServiceOptions{MinScore: 0.5})
	ctx := context.Background()
	for _, text := range []string{"happy", "car"} {
		svc.Add(ctx, text)
	}

	results, _ := svc.Search(ctx, "glad")
	if len(results) != 1 || results[0].Text != "happy" {
		t.Errorf("expected only happy above min score, got %v", results)
	}
}

func TestRemove(t *testing.T) {
	svc, st, _ := newSyncService(t)
	ctx := context.Background()

	id, _ := svc.Add(ctx, "happy")
	svc.Add(ctx, "car")

	if err := svc.Remove(ctx, "unknown"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
	if n, _ := st.Count(ctx); n != 2 {
		t.Errorf("failed remove changed size to %d", n)
	}

	if err := svc.Remove(ctx, id); err != nil {
		t.Fatal(err)
	}
	phrases, _ := svc.List(ctx)
	for _, p := range phrases {
		if p.ID == id {
			t.Error("removed phrase still listed")
		}
	}
	results, _ := svc.Search(ctx, "happy")
	for _, r := range results {
		if r.ID == id {
			t.Error("removed phrase still searchable")
		}
	}
}

// staleIndex returns hits for phrases the store no longer has.
type staleIndex struct {
	matches []domain.Match
}

func (x staleIndex) Nearest(ctx context.Context, query []float32, k int) ([]domain.Match, error) {
	return x.matches, nil
}

func TestSearch_DropsDeletedHits(t *testing.T) {
	st := memstore.NewMemoryStore(2)
	emb := embedding.NewStubEmbedder(2, soupVectors())
	ctx := context.Background()

	keep, _ := st.Insert(ctx, "happy", []float32{1, 0})
	index := staleIndex{matches: []domain.Match{
		{ID: "deleted-meanwhile", Score: 0.99},
		{ID: keep, Score: 0.9},
	}}
	svc := NewPhraseService(st, index, emb, ServiceOptions{})

	results, err := svc.Search(ctx, "glad")
	if err != nil {
		t.Fatalf("hydration miss must not fail search: %v", err)
	}
	if len(results) != 1 || results[0].ID != keep || results[0].Score != 0.9 {
		t.Errorf("expected only the surviving hit, got %v", results)
	}
}

func TestSearch_ProviderErrorPropagates(t *testing.T) {
	svc, _, emb := newSyncService(t)
	emb.Fail("glad", errors.New("network down"))

	if _, err := svc.Search(context.Background(), "glad"); !errors.Is(err, domain.ErrProvider) {
		t.Errorf("expected provider error, got %v", err)
	}
}

func TestSearch_BoltStore(t *testing.T) {
	st, err := store.NewBoltStore(filepath.Join(t.TempDir(), "test.db"), store.Options{Dimension: 2, Model: "stub"})
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	svc := NewPhraseService(st, st, embedding.NewStubEmbedder(2, soupVectors()), ServiceOptions{})
	ctx := context.Background()
	for _, text := range []string{"happy", "joyful", "car"} {
		if _, err := svc.Add(ctx, text); err != nil {
			t.Fatal(err)
		}
	}

	results, err := svc.Search(ctx, "glad")
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 || results[2].Text != "car" {
		t.Errorf("expected car ranked last, got %v", results)
	}
}

func TestEmbedPending_Sync(t *testing.T) {
	st := memstore.NewMemoryStore(2)
	emb := embedding.NewStubEmbedder(2, soupVectors())
	svc := NewPhraseService(st, st, emb, ServiceOptions{})
	ctx := context.Background()

	st.Insert(ctx, "happy", nil)
	st.Insert(ctx, "unknown words", nil)

	var calls int
	handled, err := svc.EmbedPending(ctx, func(done, total int) {
		calls++
		if total != 2 {
			t.Errorf("expected total 2, got %d", total)
		}
	})
	if handled != 1 {
		t.Errorf("expected 1 phrase embedded, got %d", handled)
	}
	if !errors.Is(err, domain.ErrProvider) {
		t.Errorf("expected joined provider error, got %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 progress calls, got %d", calls)
	}

	pending, _ := st.ListPending(ctx)
	if len(pending) != 1 || pending[0].Text != "unknown words" {
		t.Errorf("expected only the failed phrase to stay pending, got %v", pending)
	}
}
