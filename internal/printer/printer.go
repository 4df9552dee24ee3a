// Package printer composes a label generator, a transport driver, and
// label persistence into a single print pipeline.
package printer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/marciojunior91/food-safe-sync-sub001/internal/diag"
	"github.com/marciojunior91/food-safe-sync-sub001/internal/format"
	"github.com/marciojunior91/food-safe-sync-sub001/internal/store"
	"github.com/marciojunior91/food-safe-sync-sub001/internal/transport"
	"github.com/marciojunior91/food-safe-sync-sub001/pkg/labelformat"
)

// Status is a snapshot of the driver state
type Status struct {
	Type      Type   `json:"type"`
	Name      string `json:"name"`
	Connected bool   `json:"connected"`
	Detail    string `json:"detail"`
}

// ItemFailure records one label that could not be printed during a batch
type ItemFailure struct {
	Index   int    `json:"index"`
	Product string `json:"product"`
	Err     error  `json:"-"`
	Message string `json:"message"`
}

// BatchResult summarizes a batch print run. A batch never aborts on an
// item failure; every label is attempted.
type BatchResult struct {
	Requested int           `json:"requested"`
	Printed   int           `json:"printed"`
	Failures  []ItemFailure `json:"failures,omitempty"`
}

// Printer is the driver-independent surface the rest of the system
// prints through.
type Printer interface {
	Connect(ctx context.Context) error
	Disconnect() error
	IsConnected() bool
	Print(ctx context.Context, label *labelformat.LabelData) error
	PrintBatch(ctx context.Context, labels []*labelformat.LabelData) BatchResult
	PrintCopies(ctx context.Context, label *labelformat.LabelData, copies int) error
	Status() Status
	Settings() Settings
}

// labelPrinter runs the shared pipeline: validate, connect if needed,
// persist the label record, generate the payload carrying the assigned
// label ID, then hand the bytes to the transport.
type labelPrinter struct {
	settings  Settings
	transport transport.Transport

	// Resolved per print because Bluetooth drivers only know their
	// wire protocol after a device has been chosen.
	generator func() format.Generator

	labels store.LabelStore
	log    *diag.Log

	mu sync.Mutex
}

func (p *labelPrinter) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.transport.Connect(ctx)
}

func (p *labelPrinter) Disconnect() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.transport.Close()
}

func (p *labelPrinter) IsConnected() bool {
	return p.transport.Connected()
}

func (p *labelPrinter) Settings() Settings {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.settings
}

func (p *labelPrinter) Status() Status {
	return Status{
		Type:      p.settings.Type,
		Name:      p.settings.Name,
		Connected: p.transport.Connected(),
		Detail:    p.transport.Describe(),
	}
}

func (p *labelPrinter) Print(ctx context.Context, label *labelformat.LabelData) error {
	return p.PrintCopies(ctx, label, 1)
}

func (p *labelPrinter) PrintCopies(ctx context.Context, label *labelformat.LabelData, copies int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.printOne(ctx, label, copies)
}

// printOne must hold p.mu. Validation and persistence both gate the
// transport: nothing is sent to hardware for a label that was rejected
// or that could not be recorded.
func (p *labelPrinter) printOne(ctx context.Context, label *labelformat.LabelData, copies int) error {
	if copies < 1 {
		copies = 1
	}

	if err := labelformat.ValidateForPrint(label); err != nil {
		return err
	}
	label.EnsureBatchNumber()

	if !p.transport.Connected() {
		if err := p.transport.Connect(ctx); err != nil {
			return fmt.Errorf("printer not connected: %w", err)
		}
	}

	id, err := p.labels.SaveLabel(ctx, label)
	if err != nil {
		return fmt.Errorf("failed to record label: %w", err)
	}
	label.LabelID = id

	payload := p.generator().Generate(label)
	if err := p.transport.Send(ctx, payload, copies); err != nil {
		return fmt.Errorf("failed to print %q: %w", label.ProductName, err)
	}

	p.log.Info(fmt.Sprintf("printed %q (label %s, %d copies)", label.ProductName, id, copies))
	return nil
}

func (p *labelPrinter) PrintBatch(ctx context.Context, labels []*labelformat.LabelData) BatchResult {
	p.mu.Lock()
	defer p.mu.Unlock()

	result := BatchResult{Requested: len(labels)}
	delay := time.Duration(p.settings.BatchDelayMS) * time.Millisecond

	if bs, ok := p.transport.(transport.BatchSender); ok {
		p.batchViaSender(ctx, bs, labels, &result)
		return result
	}

	for i, label := range labels {
		if err := ctx.Err(); err != nil {
			for j := i; j < len(labels); j++ {
				result.Failures = append(result.Failures, ItemFailure{
					Index:   j,
					Product: labels[j].ProductName,
					Err:     err,
					Message: err.Error(),
				})
			}
			break
		}

		if err := p.printOne(ctx, label, 1); err != nil {
			result.Failures = append(result.Failures, ItemFailure{
				Index:   i,
				Product: label.ProductName,
				Err:     err,
				Message: err.Error(),
			})
			p.log.Log(diag.LevelError, fmt.Sprintf("batch item %d (%s) failed", i, label.ProductName), err.Error(), 0)
		} else {
			result.Printed++
		}

		if delay > 0 && i < len(labels)-1 {
			time.Sleep(delay)
		}
	}

	return result
}

// batchViaSender stages the batch into a single submission for
// transports that print whole batches in one surface (one PDF document,
// one spooler job). Persistence failures drop only the affected item;
// a failed submission fails every staged item.
func (p *labelPrinter) batchViaSender(ctx context.Context, bs transport.BatchSender, labels []*labelformat.LabelData, result *BatchResult) {
	fail := func(i int, err error) {
		result.Failures = append(result.Failures, ItemFailure{
			Index:   i,
			Product: labels[i].ProductName,
			Err:     err,
			Message: err.Error(),
		})
	}

	var payloads [][]byte
	var staged []int
	for i, label := range labels {
		if err := labelformat.ValidateForPrint(label); err != nil {
			fail(i, err)
			continue
		}
		label.EnsureBatchNumber()

		id, err := p.labels.SaveLabel(ctx, label)
		if err != nil {
			fail(i, fmt.Errorf("failed to record label: %w", err))
			continue
		}
		label.LabelID = id
		payloads = append(payloads, p.generator().Generate(label))
		staged = append(staged, i)
	}

	if len(payloads) == 0 {
		return
	}

	if err := bs.SendBatch(ctx, payloads); err != nil {
		for _, i := range staged {
			fail(i, err)
		}
		return
	}

	result.Printed = len(staged)
	p.log.Info(fmt.Sprintf("printed batch of %d labels", len(staged)))
}
