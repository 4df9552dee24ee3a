// Package store holds the persistence ports for label records and the
// print queue. The hosted backend is an external collaborator; these
// interfaces model it, with a file-backed implementation for the local
// agent and an in-memory one for tests.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/marciojunior91/food-safe-sync-sub001/pkg/labelformat"
)

// LabelStore persists label records. SaveLabel assigns and returns the
// label id that gets embedded in the traceability QR code; a label that
// cannot be persisted must never reach a physical device.
type LabelStore interface {
	SaveLabel(ctx context.Context, label *labelformat.LabelData) (string, error)
	GetLabel(ctx context.Context, id string) (*labelformat.LabelData, error)
}

// FileLabelStore keeps one JSON record per label under a directory
type FileLabelStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileLabelStore creates the store, creating the directory if needed
func NewFileLabelStore(dir string) (*FileLabelStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create label store dir: %w", err)
	}
	return &FileLabelStore{dir: dir}, nil
}

// SaveLabel validates required attribution fields, assigns an id, and
// persists the record
func (s *FileLabelStore) SaveLabel(ctx context.Context, label *labelformat.LabelData) (string, error) {
	if err := labelformat.ValidateForPrint(label); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.New().String()
	record := *label
	record.LabelID = id

	data, err := json.MarshalIndent(&record, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode label record: %w", err)
	}

	path := filepath.Join(s.dir, id+".json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to persist label record: %w", err)
	}

	return id, nil
}

// GetLabel loads a persisted label record by id
func (s *FileLabelStore) GetLabel(ctx context.Context, id string) (*labelformat.LabelData, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(filepath.Join(s.dir, id+".json"))
	if err != nil {
		return nil, fmt.Errorf("label record not found: %w", err)
	}
	return labelformat.Parse(data)
}

// MemLabelStore is an in-memory LabelStore for tests. FailNext makes the
// next save fail, for exercising the persistence-failure path.
type MemLabelStore struct {
	Labels   map[string]*labelformat.LabelData
	FailNext error
	counter  int
	mu       sync.Mutex
}

// NewMemLabelStore creates an empty in-memory store
func NewMemLabelStore() *MemLabelStore {
	return &MemLabelStore{Labels: make(map[string]*labelformat.LabelData)}
}

func (s *MemLabelStore) SaveLabel(ctx context.Context, label *labelformat.LabelData) (string, error) {
	if err := labelformat.ValidateForPrint(label); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailNext != nil {
		err := s.FailNext
		s.FailNext = nil
		return "", err
	}

	s.counter++
	id := fmt.Sprintf("L%d", s.counter)
	record := *label
	record.LabelID = id
	s.Labels[id] = &record
	return id, nil
}

func (s *MemLabelStore) GetLabel(ctx context.Context, id string) (*labelformat.LabelData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	label, ok := s.Labels[id]
	if !ok {
		return nil, fmt.Errorf("label record not found: %s", id)
	}
	return label, nil
}
