package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"soup/internal/adapter/vecindex"
	"soup/internal/domain"
)

var (
	bucketPhrases = []byte("phrases")    // seq -> storedPhrase, iteration order is insertion order
	bucketIDs     = []byte("phrase_ids") // id -> seq
	bucketMeta    = []byte("meta")
)

// Options configures a BoltStore.
type Options struct {
	Dimension int
	Model     string
	// ResetOnMismatch turns every phrase back to pending instead of failing
	// when the store was built with a different model or dimension.
	ResetOnMismatch bool
	Timeout         time.Duration
}

// BoltStore is a bbolt-backed phrase store. Ready embeddings are mirrored in
// an in-memory index for search.
type BoltStore struct {
	db        *bbolt.DB
	dimension int
	// serializes writes so the bolt commit and the index update are one step
	mu     sync.Mutex
	index  *vecindex.Index
	opened *MigrationResult
}

type storedPhrase struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Embedding []float32 `json:"e,omitempty"`
	CreatedAt int64     `json:"created_at"`
}

func (p storedPhrase) summary() domain.PhraseSummary {
	return domain.PhraseSummary{ID: p.ID, Text: p.Text}
}

func NewBoltStore(path string, opts Options) (*BoltStore, error) {
	if opts.Dimension <= 0 {
		return nil, fmt.Errorf("store dimension must be positive, got %d", opts.Dimension)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketPhrases, bucketIDs, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	s := &BoltStore{
		db:        db,
		dimension: opts.Dimension,
		index:     vecindex.New(opts.Dimension),
	}

	if err := s.prepareSchema(opts); err != nil {
		db.Close()
		return nil, err
	}

	if err := s.loadVectors(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load vectors: %w", err)
	}

	return s, nil
}

func (s *BoltStore) DB() *bbolt.DB {
	return s.db
}

func (s *BoltStore) Dimension() int {
	return s.dimension
}

func (s *BoltStore) checkEmbedding(embedding []float32, allowEmpty bool) error {
	if len(embedding) == 0 && allowEmpty {
		return nil
	}
	if len(embedding) != s.dimension {
		return domain.InvalidArgument("embedding dimension mismatch: expected %d, got %d", s.dimension, len(embedding))
	}
	return nil
}

func seqKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}

func (s *BoltStore) Insert(ctx context.Context, text string, embedding []float32) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", domain.InvalidArgument("phrase text must not be empty")
	}
	if err := s.checkEmbedding(embedding, true); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := storedPhrase{
		ID:        uuid.NewString(),
		Text:      text,
		Embedding: embedding,
		CreatedAt: time.Now().UnixNano(),
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		phrases := tx.Bucket(bucketPhrases)
		seq, err := phrases.NextSequence()
		if err != nil {
			return err
		}
		data, err := json.Marshal(stored)
		if err != nil {
			return err
		}
		key := seqKey(seq)
		if err := phrases.Put(key, data); err != nil {
			return err
		}
		return tx.Bucket(bucketIDs).Put([]byte(stored.ID), key)
	})
	if err != nil {
		return "", fmt.Errorf("%w: insert phrase: %v", domain.ErrStore, err)
	}

	s.index.Put(stored.ID, embedding)
	return stored.ID, nil
}

// lookupSeq returns a copy of the sequence key for id, or nil.
func lookupSeq(tx *bbolt.Tx, id string) []byte {
	key := tx.Bucket(bucketIDs).Get([]byte(id))
	if key == nil {
		return nil
	}
	return append([]byte(nil), key...)
}

func (s *BoltStore) PatchEmbedding(ctx context.Context, id string, embedding []float32) error {
	if err := s.checkEmbedding(embedding, false); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.Update(func(tx *bbolt.Tx) error {
		key := lookupSeq(tx, id)
		if key == nil {
			return domain.NotFoundError(id)
		}
		phrases := tx.Bucket(bucketPhrases)
		var stored storedPhrase
		if err := json.Unmarshal(phrases.Get(key), &stored); err != nil {
			return err
		}
		stored.Embedding = embedding
		data, err := json.Marshal(stored)
		if err != nil {
			return err
		}
		return phrases.Put(key, data)
	})
	if err != nil {
		return wrapStoreErr("patch embedding", err)
	}

	s.index.Put(id, embedding)
	return nil
}

func (s *BoltStore) Remove(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.Update(func(tx *bbolt.Tx) error {
		ids := tx.Bucket(bucketIDs)
		key := lookupSeq(tx, id)
		if key == nil {
			return domain.NotFoundError(id)
		}
		if err := tx.Bucket(bucketPhrases).Delete(key); err != nil {
			return err
		}
		return ids.Delete([]byte(id))
	})
	if err != nil {
		return wrapStoreErr("remove phrase", err)
	}

	s.index.Delete(id)
	return nil
}

func (s *BoltStore) List(ctx context.Context) ([]domain.PhraseSummary, error) {
	return s.scan(ctx, func(storedPhrase) bool { return true })
}

func (s *BoltStore) ListPending(ctx context.Context) ([]domain.PhraseSummary, error) {
	return s.scan(ctx, func(p storedPhrase) bool { return len(p.Embedding) == 0 })
}

func (s *BoltStore) scan(ctx context.Context, keep func(storedPhrase) bool) ([]domain.PhraseSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	phrases := []domain.PhraseSummary{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketPhrases).ForEach(func(k, v []byte) error {
			var stored storedPhrase
			if err := json.Unmarshal(v, &stored); err != nil {
				return err
			}
			if keep(stored) {
				phrases = append(phrases, stored.summary())
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%w: list phrases: %v", domain.ErrStore, err)
	}
	return phrases, nil
}

func (s *BoltStore) Get(ctx context.Context, id string) (domain.PhraseSummary, error) {
	phrases, err := s.GetMany(ctx, []string{id})
	if err != nil {
		return domain.PhraseSummary{}, err
	}
	if len(phrases) == 0 {
		return domain.PhraseSummary{}, domain.NotFoundError(id)
	}
	return phrases[0], nil
}

func (s *BoltStore) GetMany(ctx context.Context, ids []string) ([]domain.PhraseSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	phrases := make([]domain.PhraseSummary, 0, len(ids))
	err := s.db.View(func(tx *bbolt.Tx) error {
		idBucket := tx.Bucket(bucketIDs)
		phraseBucket := tx.Bucket(bucketPhrases)
		for _, id := range ids {
			key := idBucket.Get([]byte(id))
			if key == nil {
				continue
			}
			data := phraseBucket.Get(key)
			if data == nil {
				continue
			}
			var stored storedPhrase
			if err := json.Unmarshal(data, &stored); err != nil {
				return err
			}
			phrases = append(phrases, stored.summary())
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: get phrases: %v", domain.ErrStore, err)
	}
	return phrases, nil
}

func (s *BoltStore) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var n int
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketIDs).ForEach(func(k, v []byte) error {
			n++
			return nil
		})
	})
	if err != nil {
		return 0, wrapStoreErr("count phrases", err)
	}
	return n, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

// wrapStoreErr passes domain errors through and tags everything else as a store failure.
func wrapStoreErr(op string, err error) error {
	if isDomainErr(err) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrStore, op, err)
}
