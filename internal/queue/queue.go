// Package queue manages the persisted batch of pending label jobs and
// drives sequential submission to the printer.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/marciojunior91/food-safe-sync-sub001/internal/diag"
	"github.com/marciojunior91/food-safe-sync-sub001/internal/printer"
	"github.com/marciojunior91/food-safe-sync-sub001/pkg/labelformat"
)

const (
	// MaxItems is the hard cap on distinct queue rows. Quantity merges
	// into existing rows are still allowed at the cap.
	MaxItems = 50

	// MinQuantity and MaxQuantity bound the copies per row
	MinQuantity = 1
	MaxQuantity = 100
)

var (
	ErrQueueEmpty      = errors.New("print queue is empty")
	ErrQueueFull       = fmt.Errorf("print queue is full (max %d items)", MaxItems)
	ErrPrintInProgress = errors.New("a print job is already in progress")
	ErrItemNotFound    = errors.New("queue item not found")
)

// ItemError records one queue item that failed during printAll
type ItemError struct {
	ItemID  string `json:"itemId"`
	Product string `json:"productName"`
	Message string `json:"error"`
}

// Result summarizes one print run over the queue
type Result struct {
	TotalItems    int         `json:"totalItems"`
	PrintedLabels int         `json:"printedLabels"`
	TotalFailed   int         `json:"totalFailed"`
	Errors        []ItemError `json:"errors,omitempty"`
}

// Success reports whether every label transported
func (r Result) Success() bool { return len(r.Errors) == 0 }

// Progress is the observable state of an in-flight print run
type Progress struct {
	Printing      bool   `json:"printing"`
	CurrentIndex  int    `json:"currentIndex"`
	TotalItems    int    `json:"totalItems"`
	CurrentItem   string `json:"currentItem"`
	CurrentCopies int    `json:"currentCopies"`
	PrintedLabels int    `json:"printedLabels"`
}

// Manager serializes all queue mutations behind one mutex and enforces
// the single-batch-in-flight rule with a busy flag.
type Manager struct {
	store Store
	log   *diag.Log

	mu       sync.Mutex
	items    []Item
	printing bool
	progress Progress

	// OnProgress, when set, is invoked with a snapshot after every
	// progress change. Called without the manager lock held.
	OnProgress func(Progress)
}

// NewManager loads any persisted queue from the store
func NewManager(ctx context.Context, store Store, log *diag.Log) (*Manager, error) {
	items, err := store.LoadQueue(ctx)
	if err != nil {
		return nil, err
	}
	return &Manager{store: store, log: log, items: items}, nil
}

// Add merges the label into an existing row when product, prep date and
// expiry date all match, otherwise appends a new row. New rows are
// rejected at the cap; merges always succeed.
func (m *Manager) Add(ctx context.Context, label *labelformat.LabelData, quantity int) (Item, error) {
	if quantity < MinQuantity || quantity > MaxQuantity {
		return Item{}, fmt.Errorf("quantity must be between %d and %d", MinQuantity, MaxQuantity)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.printing {
		return Item{}, ErrPrintInProgress
	}

	for i := range m.items {
		if sameJob(&m.items[i].Label, label) {
			merged := m.items[i].Quantity + quantity
			if merged > MaxQuantity {
				merged = MaxQuantity
			}
			m.items[i].Quantity = merged
			if err := m.store.SaveQueue(ctx, m.items); err != nil {
				return Item{}, err
			}
			return m.items[i], nil
		}
	}

	if len(m.items) >= MaxItems {
		return Item{}, ErrQueueFull
	}

	item := Item{
		ID:           uuid.New().String(),
		Label:        *label,
		Quantity:     quantity,
		AddedAt:      time.Now().Format(time.RFC3339),
		ProductName:  label.ProductName,
		CategoryName: label.Category(),
	}
	m.items = append(m.items, item)
	if err := m.store.SaveQueue(ctx, m.items); err != nil {
		m.items = m.items[:len(m.items)-1]
		return Item{}, err
	}
	return item, nil
}

// sameJob implements the merge law: one row per distinct
// (productId, prepDate, expiryDate). Ad-hoc labels without a product ID
// never merge.
func sameJob(a, b *labelformat.LabelData) bool {
	if a.ProductID == "" || b.ProductID == "" {
		return false
	}
	return a.ProductID == b.ProductID &&
		a.PrepDate == b.PrepDate &&
		a.ExpiryDate == b.ExpiryDate
}

// Remove deletes one row by ID
func (m *Manager) Remove(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.printing {
		return ErrPrintInProgress
	}

	for i := range m.items {
		if m.items[i].ID == id {
			m.items = append(m.items[:i], m.items[i+1:]...)
			return m.store.SaveQueue(ctx, m.items)
		}
	}
	return ErrItemNotFound
}

// UpdateQuantity changes the copy count of one row
func (m *Manager) UpdateQuantity(ctx context.Context, id string, quantity int) error {
	if quantity < MinQuantity || quantity > MaxQuantity {
		return fmt.Errorf("quantity must be between %d and %d", MinQuantity, MaxQuantity)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.printing {
		return ErrPrintInProgress
	}

	for i := range m.items {
		if m.items[i].ID == id {
			m.items[i].Quantity = quantity
			return m.store.SaveQueue(ctx, m.items)
		}
	}
	return ErrItemNotFound
}

// Clear empties the queue
func (m *Manager) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.printing {
		return ErrPrintInProgress
	}

	m.items = nil
	return m.store.SaveQueue(ctx, m.items)
}

// Items returns a copy of the pending rows. The slice is never nil so
// an empty queue serializes as [] rather than null.
func (m *Manager) Items() []Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Item{}, m.items...)
}

// Progress returns a snapshot of the in-flight run state
func (m *Manager) Progress() Progress {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.progress
}

// PrintAll prints every queued row through p, one row at a time. Each
// physical copy gets its own persisted label record so every printed
// label carries a distinct traceability ID. On a clean run the queue is
// cleared; on a partial failure only the failed rows remain.
func (m *Manager) PrintAll(ctx context.Context, p printer.Printer) (Result, error) {
	m.mu.Lock()
	if m.printing {
		m.mu.Unlock()
		return Result{}, ErrPrintInProgress
	}
	if len(m.items) == 0 {
		m.mu.Unlock()
		return Result{}, ErrQueueEmpty
	}
	m.printing = true
	batch := append([]Item(nil), m.items...)
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.printing = false
		m.progress = Progress{}
		m.mu.Unlock()
		m.notify(Progress{})
	}()

	result := m.run(ctx, p, batch)

	m.mu.Lock()
	if result.Success() {
		m.items = nil
	} else {
		m.items = retainFailed(batch, result.Errors)
	}
	saveErr := m.store.SaveQueue(ctx, m.items)
	m.mu.Unlock()

	if saveErr != nil && m.log != nil {
		m.log.Log(diag.LevelWarning, "failed to persist queue after print run", saveErr.Error(), 0)
	}
	return result, nil
}

// run walks the rows sequentially. A row fails as a unit when any of
// its copies fails; remaining rows still print.
func (m *Manager) run(ctx context.Context, p printer.Printer, batch []Item) Result {
	result := Result{TotalItems: len(batch)}

	for i, item := range batch {
		m.setProgress(Progress{
			Printing:      true,
			CurrentIndex:  i,
			TotalItems:    len(batch),
			CurrentItem:   item.ProductName,
			CurrentCopies: item.Quantity,
			PrintedLabels: result.PrintedLabels,
		})

		copies := make([]*labelformat.LabelData, item.Quantity)
		for c := range copies {
			dup := item.Label
			dup.LabelID = ""
			copies[c] = &dup
		}

		br := p.PrintBatch(ctx, copies)
		result.PrintedLabels += br.Printed

		if len(br.Failures) > 0 {
			result.TotalFailed += len(br.Failures)
			result.Errors = append(result.Errors, ItemError{
				ItemID:  item.ID,
				Product: item.ProductName,
				Message: br.Failures[0].Message,
			})
			if m.log != nil {
				m.log.Log(diag.LevelError,
					fmt.Sprintf("queue item %q failed (%d of %d copies)", item.ProductName, len(br.Failures), item.Quantity),
					br.Failures[0].Message, 0)
			}
		}

		if ctx.Err() != nil {
			for _, rest := range batch[i+1:] {
				result.TotalFailed += rest.Quantity
				result.Errors = append(result.Errors, ItemError{
					ItemID:  rest.ID,
					Product: rest.ProductName,
					Message: ctx.Err().Error(),
				})
			}
			break
		}
	}

	m.setProgress(Progress{
		Printing:      true,
		CurrentIndex:  len(batch),
		TotalItems:    len(batch),
		PrintedLabels: result.PrintedLabels,
	})
	return result
}

// RetryFailed re-runs the print over just the given rows. If the retry
// fails again the full queue is restored so the next retry starts from
// the same place; on success only the rows never retried remain.
func (m *Manager) RetryFailed(ctx context.Context, p printer.Printer, ids []string) (Result, error) {
	m.mu.Lock()
	if m.printing {
		m.mu.Unlock()
		return Result{}, ErrPrintInProgress
	}

	snapshot := append([]Item(nil), m.items...)
	subset := make([]Item, 0, len(ids))
	for _, item := range snapshot {
		for _, id := range ids {
			if item.ID == id {
				subset = append(subset, item)
				break
			}
		}
	}
	if len(subset) == 0 {
		m.mu.Unlock()
		return Result{}, ErrItemNotFound
	}
	m.items = subset
	m.mu.Unlock()

	result, err := m.PrintAll(ctx, p)
	if err != nil {
		m.restore(ctx, snapshot)
		return result, err
	}

	if !result.Success() {
		m.restore(ctx, snapshot)
		return result, nil
	}

	// Keep the rows that were never part of the retry
	var remaining []Item
	for _, item := range snapshot {
		retried := false
		for _, id := range ids {
			if item.ID == id {
				retried = true
				break
			}
		}
		if !retried {
			remaining = append(remaining, item)
		}
	}
	m.restore(ctx, remaining)
	return result, nil
}

func (m *Manager) restore(ctx context.Context, items []Item) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = items
	if err := m.store.SaveQueue(ctx, m.items); err != nil && m.log != nil {
		m.log.Log(diag.LevelWarning, "failed to persist queue after retry", err.Error(), 0)
	}
}

func (m *Manager) setProgress(p Progress) {
	m.mu.Lock()
	m.progress = p
	m.mu.Unlock()
	m.notify(p)
}

func (m *Manager) notify(p Progress) {
	if m.OnProgress != nil {
		m.OnProgress(p)
	}
}

func retainFailed(batch []Item, errs []ItemError) []Item {
	failed := make(map[string]bool, len(errs))
	for _, e := range errs {
		failed[e.ItemID] = true
	}
	var kept []Item
	for _, item := range batch {
		if failed[item.ID] {
			kept = append(kept, item)
		}
	}
	return kept
}
