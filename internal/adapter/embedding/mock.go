package embedding

import (
	"context"
	"crypto/md5"
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"soup/internal/domain"
)

// MockEmbedder derives a deterministic unit vector from the text's MD5 hash.
// Equal texts always embed identically; different texts are near-orthogonal.
type MockEmbedder struct {
	dimension int
}

func NewMockEmbedder(dimension int) *MockEmbedder {
	if dimension <= 0 {
		dimension = 128
	}
	return &MockEmbedder{dimension: dimension}
}

func (e *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, &domain.ProviderError{Op: "embed", Err: err}
	}

	vec := make([]float32, e.dimension)
	hash := md5.Sum([]byte(text))

	var sumSquares float64
	for i := range vec {
		idx := (i * 4) % len(hash)
		seed := binary.LittleEndian.Uint32(append(hash[idx:], hash[:4]...))
		// mix in the position so dimensions past the hash length differ
		seed ^= uint32(i) * 2654435761
		vec[i] = float32(seed%2000)/1000.0 - 1.0
		sumSquares += float64(vec[i]) * float64(vec[i])
	}

	if sumSquares > 0 {
		norm := float32(math.Sqrt(sumSquares))
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec, nil
}

func (e *MockEmbedder) Dimension() int {
	return e.dimension
}

func (e *MockEmbedder) ModelName() string {
	return "mock"
}

// StubEmbedder returns fixed vectors for known texts. Unknown texts, and
// texts registered with Fail, yield a ProviderError.
type StubEmbedder struct {
	mu        sync.Mutex
	dimension int
	vectors   map[string][]float32
	failures  map[string]error
	calls     map[string]int
}

func NewStubEmbedder(dimension int, vectors map[string][]float32) *StubEmbedder {
	s := &StubEmbedder{
		dimension: dimension,
		vectors:   make(map[string][]float32, len(vectors)),
		failures:  make(map[string]error),
		calls:     make(map[string]int),
	}
	for text, vec := range vectors {
		s.vectors[text] = vec
	}
	return s
}

// Set registers or replaces the vector for text.
func (s *StubEmbedder) Set(text string, vec []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vectors[text] = vec
	delete(s.failures, text)
}

// Fail makes every call for text return err.
func (s *StubEmbedder) Fail(text string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[text] = err
}

// Calls reports how many times text was embedded.
func (s *StubEmbedder) Calls(text string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[text]
}

func (s *StubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls[text]++
	if err := ctx.Err(); err != nil {
		return nil, &domain.ProviderError{Op: "embed", Err: err}
	}
	if err, ok := s.failures[text]; ok {
		return nil, &domain.ProviderError{Op: "embed", Err: err}
	}
	vec, ok := s.vectors[text]
	if !ok {
		return nil, &domain.ProviderError{Op: "embed", Message: fmt.Sprintf("no stub vector for %q", text)}
	}
	out := make([]float32, len(vec))
	copy(out, vec)
	return out, nil
}

func (s *StubEmbedder) Dimension() int {
	return s.dimension
}

func (s *StubEmbedder) ModelName() string {
	return "stub"
}
