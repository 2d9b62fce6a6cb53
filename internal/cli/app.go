package cli

import (
	"errors"
	"fmt"
	"log/slog"

	"soup/config"
	"soup/internal/adapter/cache"
	"soup/internal/adapter/embedding"
	"soup/internal/adapter/memstore"
	"soup/internal/adapter/store"
	"soup/internal/port"
	"soup/internal/usecase"
)

// phraseIndex is a store that also answers nearest-neighbour queries.
type phraseIndex interface {
	port.PhraseStore
	port.VectorIndex
}

type appOptions struct {
	// resetEmbeddings accepts a model or dimension change by turning every
	// stored phrase back to pending.
	resetEmbeddings bool
	// forceSync ignores add.mode and embeds in the calling goroutine.
	forceSync bool
}

// app wires config, store, embedder and service for one command.
type app struct {
	cfg   *config.Config
	log   *slog.Logger
	store phraseIndex
	bolt  *store.BoltStore // nil for the memory backend
	queue *usecase.EmbedQueue
	svc   *usecase.PhraseService
}

func openApp(opts appOptions) (*app, error) {
	cfg := GetConfig()
	log := GetLogger()

	embedder, err := embedding.New(cfg.Embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	if cfg.Embedding.CacheSize > 0 {
		embedder = cache.NewCachedEmbedder(embedder, cache.NewEmbeddingCache(cfg.Embedding.CacheSize, cfg.Embedding.CacheTTL))
	}

	a := &app{cfg: cfg, log: log}

	switch cfg.Store.Backend {
	case config.BackendMemory:
		log.Warn("memory backend: phrases are lost when the process exits")
		a.store = memstore.NewMemoryStore(embedder.Dimension())
	default:
		if err := cfg.EnsureDataDir(GetRootDir()); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		path := cfg.StorePath(GetRootDir())
		st, err := store.NewBoltStore(path, store.Options{
			Dimension:       embedder.Dimension(),
			Model:           embedder.ModelName(),
			ResetOnMismatch: opts.resetEmbeddings,
		})
		if errors.Is(err, store.ErrSchemaMismatch) {
			return nil, fmt.Errorf("%w (run 'soup embed-pending --reset' to re-embed with the configured model)", err)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to open phrase store: %w", err)
		}
		log.Debug("phrase store opened", "path", path, "ready", st.ReadyCount())
		a.store = st
		a.bolt = st
	}

	svcOpts := usecase.ServiceOptions{
		Limit:    cfg.Search.Limit,
		MinScore: cfg.Search.MinScore,
		Logger:   log,
	}
	if cfg.Add.Mode == config.ModeDeferred && !opts.forceSync {
		a.queue = usecase.NewEmbedQueue(a.store, embedder, usecase.QueueOptions{
			Workers:     cfg.Add.Workers,
			Size:        cfg.Add.QueueSize,
			MaxAttempts: cfg.Add.MaxAttempts,
			Logger:      log,
		})
		a.queue.Start()
		svcOpts.Queue = a.queue
	}
	a.svc = usecase.NewPhraseService(a.store, a.store, embedder, svcOpts)

	return a, nil
}

// Close lets queued embeddings land, then releases the store.
func (a *app) Close() error {
	if a.queue != nil {
		a.queue.Wait()
		a.queue.Stop()
	}
	return a.store.Close()
}

// Abort stops the queue without waiting for queued work.
func (a *app) Abort() error {
	if a.queue != nil {
		a.queue.Stop()
	}
	return a.store.Close()
}

// resetEmbeddings turns every stored phrase back to pending. A store opened
// with a model or dimension change was already reset, so that count is reported.
func (a *app) resetEmbeddings() (int, error) {
	if a.bolt == nil {
		return 0, nil
	}
	if m := a.bolt.OpenMigration(); m.NeedsReset {
		return m.Reset, nil
	}
	return a.bolt.ResetEmbeddings()
}
