package store

import (
	"encoding/json"
	"errors"
	"fmt"

	"go.etcd.io/bbolt"
)

// CurrentSchemaVersion is the current schema version.
// Increment this when making breaking changes to the storage format.
const CurrentSchemaVersion = 1

var keySchemaInfo = []byte("schema_info")

// ErrSchemaMismatch is returned when a store was built with a different
// embedding model or dimension than the one configured.
var ErrSchemaMismatch = errors.New("store schema mismatch")

// SchemaInfo records what produced the stored embeddings.
type SchemaInfo struct {
	Version   int    `json:"version"`
	Model     string `json:"model"`
	Dimension int    `json:"dimension"`
}

// MigrationResult describes the result of a schema check.
type MigrationResult struct {
	NeedsInit  bool
	NeedsReset bool
	Reason     string
	// Reset is how many phrases were turned back to pending while opening.
	Reset int
}

// GetSchemaInfo retrieves the schema info, zero-valued for a fresh store.
func (s *BoltStore) GetSchemaInfo() (*SchemaInfo, error) {
	var info SchemaInfo
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketMeta).Get(keySchemaInfo)
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &info)
	})
	return &info, err
}

// SetSchemaInfo stores the schema info in the database.
func (s *BoltStore) SetSchemaInfo(info *SchemaInfo) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(info)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketMeta).Put(keySchemaInfo, data)
	})
}

// CheckMigration compares the stored schema with the configured one.
func (s *BoltStore) CheckMigration(model string) (*MigrationResult, error) {
	info, err := s.GetSchemaInfo()
	if err != nil {
		return nil, fmt.Errorf("failed to get schema info: %w", err)
	}

	result := &MigrationResult{}
	switch {
	case info.Version == 0:
		result.NeedsInit = true
		result.Reason = "initializing schema version"
	case info.Version > CurrentSchemaVersion:
		return nil, fmt.Errorf("%w: database created by newer version (v%d > v%d)", ErrSchemaMismatch, info.Version, CurrentSchemaVersion)
	case info.Dimension != s.dimension:
		result.NeedsReset = true
		result.Reason = fmt.Sprintf("embedding dimension changed from %d to %d", info.Dimension, s.dimension)
	case model != "" && info.Model != "" && info.Model != model:
		result.NeedsReset = true
		result.Reason = fmt.Sprintf("embedding model changed from %s to %s", info.Model, model)
	}
	return result, nil
}

// OpenMigration reports the schema check performed when the store was opened.
func (s *BoltStore) OpenMigration() MigrationResult {
	if s.opened == nil {
		return MigrationResult{}
	}
	return *s.opened
}

func (s *BoltStore) prepareSchema(opts Options) error {
	result, err := s.CheckMigration(opts.Model)
	if err != nil {
		return err
	}

	if result.NeedsReset {
		if !opts.ResetOnMismatch {
			return fmt.Errorf("%w: %s", ErrSchemaMismatch, result.Reason)
		}
		n, err := s.ResetEmbeddings()
		if err != nil {
			return err
		}
		result.Reset = n
	}
	s.opened = result

	if result.NeedsInit || result.NeedsReset {
		return s.SetSchemaInfo(&SchemaInfo{
			Version:   CurrentSchemaVersion,
			Model:     opts.Model,
			Dimension: s.dimension,
		})
	}
	return nil
}

// ResetEmbeddings turns every phrase back to pending, keeping its text.
// It returns how many phrases were reset.
func (s *BoltStore) ResetEmbeddings() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reset := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketPhrases)
		updates := make(map[string][]byte)
		err := b.ForEach(func(k, v []byte) error {
			var stored storedPhrase
			if err := json.Unmarshal(v, &stored); err != nil {
				return err
			}
			if len(stored.Embedding) == 0 {
				return nil
			}
			stored.Embedding = nil
			data, err := json.Marshal(stored)
			if err != nil {
				return err
			}
			updates[string(k)] = data
			return nil
		})
		if err != nil {
			return err
		}
		for k, data := range updates {
			if err := b.Put([]byte(k), data); err != nil {
				return err
			}
		}
		reset = len(updates)
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.index.Reset()
	return reset, nil
}
