package feedback

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/menta2k/plate-analyzer/pkg/types"
)

// Store persists feedback records. The ledger serializes all writes, so
// implementations only need to be safe for one writer at a time.
type Store interface {
	Load(ctx context.Context) ([]types.FeedbackRecord, error)
	Insert(ctx context.Context, rec types.FeedbackRecord) error
	Update(ctx context.Context, rec types.FeedbackRecord) error
	Close() error
}

// MemoryStore keeps records in process memory only
type MemoryStore struct {
	mu      sync.Mutex
	records []types.FeedbackRecord
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load implements Store
func (s *MemoryStore) Load(ctx context.Context) ([]types.FeedbackRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.FeedbackRecord(nil), s.records...), nil
}

// Insert implements Store
func (s *MemoryStore) Insert(ctx context.Context, rec types.FeedbackRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

// Update implements Store
func (s *MemoryStore) Update(ctx context.Context, rec types.FeedbackRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.records {
		if s.records[i].ID == rec.ID {
			s.records[i] = rec
			return nil
		}
	}
	return ErrNotFound
}

// Close implements Store
func (s *MemoryStore) Close() error { return nil }

// FileName is the name of the ledger file inside a JSON store directory
const FileName = "feedback.json"

// JSONFileStore keeps every record in one JSON array, rewritten on each write
type JSONFileStore struct {
	path string

	mu      sync.Mutex
	records []types.FeedbackRecord
}

// NewJSONFileStore opens (or creates) dir/feedback.json
func NewJSONFileStore(dir string) (*JSONFileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create feedback directory: %w", err)
	}
	s := &JSONFileStore{path: filepath.Join(dir, FileName)}

	data, err := os.ReadFile(s.path)
	switch {
	case os.IsNotExist(err):
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("failed to read feedback file: %w", err)
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &s.records); err != nil {
			return nil, fmt.Errorf("failed to parse feedback file: %w", err)
		}
	}
	return s, nil
}

// Path returns the ledger file path
func (s *JSONFileStore) Path() string { return s.path }

// Load implements Store
func (s *JSONFileStore) Load(ctx context.Context) ([]types.FeedbackRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.FeedbackRecord(nil), s.records...), nil
}

// Insert implements Store
func (s *JSONFileStore) Insert(ctx context.Context, rec types.FeedbackRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := append(append([]types.FeedbackRecord(nil), s.records...), rec)
	if err := s.write(next); err != nil {
		return err
	}
	s.records = next
	return nil
}

// Update implements Store
func (s *JSONFileStore) Update(ctx context.Context, rec types.FeedbackRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.records {
		if s.records[i].ID != rec.ID {
			continue
		}
		next := append([]types.FeedbackRecord(nil), s.records...)
		next[i] = rec
		if err := s.write(next); err != nil {
			return err
		}
		s.records = next
		return nil
	}
	return ErrNotFound
}

// Close implements Store
func (s *JSONFileStore) Close() error { return nil }

// write replaces the file through a temporary sibling so readers never see a partial ledger
func (s *JSONFileStore) write(records []types.FeedbackRecord) error {
	if records == nil {
		records = []types.FeedbackRecord{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode feedback: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write feedback file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace feedback file: %w", err)
	}
	return nil
}
