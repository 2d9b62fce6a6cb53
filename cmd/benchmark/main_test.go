package main

import (
	"context"
	"path/filepath"
	"testing"

	"soup/config"
	"soup/internal/adapter/embedding"
	"soup/internal/adapter/store"
)

func TestOpenStore(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	emb := embedding.NewMockEmbedder(8)

	if _, err := openStore(cfg, dir, emb); err == nil {
		t.Error("expected error when no store exists yet")
	}

	if err := cfg.EnsureDataDir(dir); err != nil {
		t.Fatal(err)
	}
	st, err := store.NewBoltStore(cfg.StorePath(dir), store.Options{Dimension: 8, Model: emb.ModelName()})
	if err != nil {
		t.Fatal(err)
	}
	st.Insert(context.Background(), "happy", nil)
	st.Close()

	st, err = openStore(cfg, dir, emb)
	if err != nil {
		t.Fatal(err)
	}
	if n, _ := st.Count(context.Background()); n != 1 {
		t.Errorf("expected the existing store to be opened, got %d phrases", n)
	}
	st.Close()

	cfg.Store.Backend = config.BackendMemory
	if _, err := openStore(cfg, filepath.Clean(dir), emb); err == nil {
		t.Error("expected memory backend to be rejected")
	}
}
