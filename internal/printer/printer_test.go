package printer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/marciojunior91/food-safe-sync-sub001/internal/diag"
	"github.com/marciojunior91/food-safe-sync-sub001/internal/format"
	"github.com/marciojunior91/food-safe-sync-sub001/internal/store"
	"github.com/marciojunior91/food-safe-sync-sub001/pkg/labelformat"
)

type fakeTransport struct {
	connected bool
	connects  int
	sends     [][]byte
	copies    []int
	failAt    int // 1-based send index that fails, 0 for never
}

func (f *fakeTransport) Connect(ctx context.Context) error {
	f.connects++
	f.connected = true
	return nil
}

func (f *fakeTransport) Close() error {
	f.connected = false
	return nil
}

func (f *fakeTransport) Connected() bool { return f.connected }
func (f *fakeTransport) Describe() string { return "fake" }

func (f *fakeTransport) Send(ctx context.Context, payload []byte, copies int) error {
	f.sends = append(f.sends, payload)
	f.copies = append(f.copies, copies)
	if f.failAt > 0 && len(f.sends) == f.failAt {
		return errors.New("simulated hardware failure")
	}
	return nil
}

type fakeBatchTransport struct {
	fakeTransport
	batches  [][][]byte
	batchErr error
}

func (f *fakeBatchTransport) SendBatch(ctx context.Context, payloads [][]byte) error {
	f.batches = append(f.batches, payloads)
	return f.batchErr
}

func newTestPrinter(t *testing.T, tr fakeSender) (*labelPrinter, *store.MemLabelStore) {
	t.Helper()
	log, err := diag.New(filepath.Join(t.TempDir(), "diag.json"))
	if err != nil {
		t.Fatalf("diag.New: %v", err)
	}
	labels := store.NewMemLabelStore()
	settings := DefaultSettings(TypeSocket)
	settings.BatchDelayMS = 0
	gen := format.NewZPLGenerator(settings.Geometry())
	return &labelPrinter{
		settings:  settings,
		transport: tr,
		generator: func() format.Generator { return gen },
		labels:    labels,
		log:       log,
	}, labels
}

// fakeSender keeps newTestPrinter usable for both fakes
type fakeSender interface {
	Connect(ctx context.Context) error
	Close() error
	Connected() bool
	Describe() string
	Send(ctx context.Context, payload []byte, copies int) error
}

func validLabel(name string) *labelformat.LabelData {
	return &labelformat.LabelData{
		ProductName:    name,
		PreparedBy:     "u1",
		PreparedByName: "Ana",
		OrganizationID: "org1",
		PrepDate:       "2026-03-01",
		ExpiryDate:     "2026-03-04",
		Quantity:       "1",
	}
}

func TestPrintRejectsInvalidLabelBeforeTransport(t *testing.T) {
	tr := &fakeTransport{}
	p, labels := newTestPrinter(t, tr)

	label := validLabel("Soup")
	label.ProductName = ""

	err := p.Print(context.Background(), label)
	if err == nil {
		t.Fatal("expected validation error")
	}
	var verr *labelformat.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(tr.sends) != 0 {
		t.Errorf("transport received %d sends for an invalid label", len(tr.sends))
	}
	if len(labels.Labels) != 0 {
		t.Errorf("invalid label was persisted")
	}
}

func TestPrintPersistsBeforeSending(t *testing.T) {
	tr := &fakeTransport{}
	p, labels := newTestPrinter(t, tr)

	labels.FailNext = errors.New("storage offline")
	if err := p.Print(context.Background(), validLabel("Soup")); err == nil {
		t.Fatal("expected error when persistence fails")
	}
	if len(tr.sends) != 0 {
		t.Errorf("transport received %d sends despite persistence failure", len(tr.sends))
	}
}

func TestPrintEmbedsAssignedLabelID(t *testing.T) {
	tr := &fakeTransport{}
	p, _ := newTestPrinter(t, tr)

	label := validLabel("Soup")
	if err := p.Print(context.Background(), label); err != nil {
		t.Fatalf("print: %v", err)
	}
	if label.LabelID == "" {
		t.Fatal("label ID was not assigned")
	}
	if len(tr.sends) != 1 {
		t.Fatalf("expected 1 send, got %d", len(tr.sends))
	}
	want := fmt.Sprintf("%q:%q", "labelId", label.LabelID)
	if !strings.Contains(string(tr.sends[0]), want) {
		t.Errorf("payload does not carry the persisted label ID %s", label.LabelID)
	}
}

func TestPrintConnectsLazily(t *testing.T) {
	tr := &fakeTransport{}
	p, _ := newTestPrinter(t, tr)

	if err := p.Print(context.Background(), validLabel("Soup")); err != nil {
		t.Fatalf("print: %v", err)
	}
	if tr.connects != 1 {
		t.Errorf("expected 1 connect, got %d", tr.connects)
	}

	// Second print reuses the open connection
	if err := p.Print(context.Background(), validLabel("Stew")); err != nil {
		t.Fatalf("print: %v", err)
	}
	if tr.connects != 1 {
		t.Errorf("connected again while already connected (%d connects)", tr.connects)
	}
}

func TestPrintCopiesPassesCountThrough(t *testing.T) {
	tr := &fakeTransport{}
	p, _ := newTestPrinter(t, tr)

	if err := p.PrintCopies(context.Background(), validLabel("Soup"), 4); err != nil {
		t.Fatalf("print: %v", err)
	}
	if len(tr.copies) != 1 || tr.copies[0] != 4 {
		t.Errorf("expected copies=4, got %v", tr.copies)
	}
}

func TestPrintBatchIsolatesItemFailures(t *testing.T) {
	tr := &fakeTransport{failAt: 2}
	p, _ := newTestPrinter(t, tr)

	batch := []*labelformat.LabelData{
		validLabel("Soup"), validLabel("Stew"), validLabel("Salad"),
	}
	result := p.PrintBatch(context.Background(), batch)

	if result.Requested != 3 || result.Printed != 2 {
		t.Fatalf("expected 2/3 printed, got %d/%d", result.Printed, result.Requested)
	}
	if len(result.Failures) != 1 {
		t.Fatalf("expected 1 failure, got %d", len(result.Failures))
	}
	if f := result.Failures[0]; f.Index != 1 || f.Product != "Stew" {
		t.Errorf("failure points at item %d (%s), want 1 (Stew)", f.Index, f.Product)
	}
	if len(tr.sends) != 3 {
		t.Errorf("every item should be attempted, got %d sends", len(tr.sends))
	}
}

func TestPrintBatchStopsOnCancelledContext(t *testing.T) {
	tr := &fakeTransport{}
	p, _ := newTestPrinter(t, tr)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	batch := []*labelformat.LabelData{validLabel("Soup"), validLabel("Stew")}
	result := p.PrintBatch(ctx, batch)

	if result.Printed != 0 {
		t.Errorf("printed %d items on a cancelled context", result.Printed)
	}
	if len(result.Failures) != 2 {
		t.Errorf("expected both items reported failed, got %d", len(result.Failures))
	}
	if len(tr.sends) != 0 {
		t.Errorf("transport received sends on a cancelled context")
	}
}

func TestPrintBatchSingleSubmissionTransport(t *testing.T) {
	tr := &fakeBatchTransport{}
	p, _ := newTestPrinter(t, tr)

	batch := []*labelformat.LabelData{validLabel("Soup"), validLabel("Stew")}
	result := p.PrintBatch(context.Background(), batch)

	if result.Printed != 2 || len(result.Failures) != 0 {
		t.Fatalf("expected clean batch, got %+v", result)
	}
	if len(tr.batches) != 1 {
		t.Fatalf("expected one staged submission, got %d", len(tr.batches))
	}
	if got := len(tr.batches[0]); got != 2 {
		t.Errorf("expected 2 payloads in the submission, got %d", got)
	}
	if len(tr.sends) != 0 {
		t.Errorf("batch transport should not receive per-item sends")
	}
}

func TestPrintBatchSingleSubmissionSkipsInvalidItems(t *testing.T) {
	tr := &fakeBatchTransport{}
	p, _ := newTestPrinter(t, tr)

	bad := validLabel("")
	batch := []*labelformat.LabelData{validLabel("Soup"), bad, validLabel("Salad")}
	result := p.PrintBatch(context.Background(), batch)

	if result.Printed != 2 {
		t.Fatalf("expected 2 printed, got %d", result.Printed)
	}
	if len(result.Failures) != 1 || result.Failures[0].Index != 1 {
		t.Fatalf("expected failure at index 1, got %+v", result.Failures)
	}
	if got := len(tr.batches[0]); got != 2 {
		t.Errorf("invalid item was staged (%d payloads)", got)
	}
}

func TestPrintBatchSingleSubmissionFailureFailsAllStaged(t *testing.T) {
	tr := &fakeBatchTransport{batchErr: errors.New("spooler rejected job")}
	p, _ := newTestPrinter(t, tr)

	batch := []*labelformat.LabelData{validLabel("Soup"), validLabel("Stew")}
	result := p.PrintBatch(context.Background(), batch)

	if result.Printed != 0 {
		t.Errorf("printed %d despite submission failure", result.Printed)
	}
	if len(result.Failures) != 2 {
		t.Errorf("expected both items failed, got %d", len(result.Failures))
	}
}
