package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/marciojunior91/food-safe-sync-sub001/pkg/labelformat"
)

// Item is one pending batch entry. ProductName and CategoryName are
// denormalized for display so list views never reach into the label.
type Item struct {
	ID           string                `json:"id"`
	Label        labelformat.LabelData `json:"labelData"`
	Quantity     int                   `json:"quantity"`
	AddedAt      string                `json:"addedAt"`
	ProductName  string                `json:"productName"`
	CategoryName string                `json:"categoryName"`
}

// Store persists the pending queue so it survives restarts
type Store interface {
	LoadQueue(ctx context.Context) ([]Item, error)
	SaveQueue(ctx context.Context, items []Item) error
}

// FileQueueStore keeps the queue as one JSON file
type FileQueueStore struct {
	filePath string
}

// NewFileQueueStore creates a file-backed queue store
func NewFileQueueStore(filePath string) *FileQueueStore {
	return &FileQueueStore{filePath: filePath}
}

func (s *FileQueueStore) LoadQueue(ctx context.Context) ([]Item, error) {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load print queue: %w", err)
	}

	var items []Item
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("failed to parse print queue: %w", err)
	}
	return items, nil
}

func (s *FileQueueStore) SaveQueue(ctx context.Context, items []Item) error {
	if items == nil {
		items = []Item{}
	}
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to persist print queue: %w", err)
	}
	return nil
}

// MemQueueStore is an in-memory Store for tests
type MemQueueStore struct {
	Items     []Item
	SaveErr   error
	SaveCalls int
}

func NewMemQueueStore() *MemQueueStore {
	return &MemQueueStore{}
}

func (s *MemQueueStore) LoadQueue(ctx context.Context) ([]Item, error) {
	return append([]Item(nil), s.Items...), nil
}

func (s *MemQueueStore) SaveQueue(ctx context.Context, items []Item) error {
	if s.SaveErr != nil {
		return s.SaveErr
	}
	s.SaveCalls++
	s.Items = append([]Item(nil), items...)
	return nil
}
