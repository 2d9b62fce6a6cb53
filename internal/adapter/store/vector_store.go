package store

import (
	"context"
	"encoding/json"
	"errors"

	"go.etcd.io/bbolt"

	"soup/internal/domain"
)

// loadVectors loads all ready embeddings from BoltDB into the search index.
func (s *BoltStore) loadVectors() error {
	s.index.Reset()
	return s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketPhrases).ForEach(func(k, v []byte) error {
			var stored storedPhrase
			if err := json.Unmarshal(v, &stored); err != nil {
				return err
			}
			if len(stored.Embedding) == s.dimension {
				s.index.Put(stored.ID, stored.Embedding)
			}
			return nil
		})
	})
}

// Nearest finds the k phrases whose ready embeddings are closest to query.
// Pending phrases are never indexed.
func (s *BoltStore) Nearest(ctx context.Context, query []float32, k int) ([]domain.Match, error) {
	return s.index.Nearest(ctx, query, k)
}

// ReadyCount returns the number of phrases with an embedding.
func (s *BoltStore) ReadyCount() int {
	return s.index.Len()
}

func isDomainErr(err error) bool {
	return errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrInvalidArgument)
}
