package transport

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jung-kurt/gofpdf"

	"github.com/marciojunior91/food-safe-sync-sub001/internal/diag"
)

// PDFTransport exports rendered labels to a PDF document, one label per
// page. A batch goes into a single document with page breaks so the
// export happens once per batch.
type PDFTransport struct {
	outputDir string
	widthMM   float64
	heightMM  float64
	diag      *diag.Log

	mu         sync.Mutex
	lastOutput string
}

// NewPDFTransport creates an export driver writing under outputDir
func NewPDFTransport(outputDir string, widthMM, heightMM float64, log *diag.Log) *PDFTransport {
	return &PDFTransport{
		outputDir: outputDir,
		widthMM:   widthMM,
		heightMM:  heightMM,
		diag:      log,
	}
}

func (t *PDFTransport) Connect(ctx context.Context) error { return nil }
func (t *PDFTransport) Close() error                      { return nil }
func (t *PDFTransport) Connected() bool                   { return true }

func (t *PDFTransport) Describe() string {
	return "pdf export to " + t.outputDir
}

// LastOutput returns the path of the most recently written document
func (t *PDFTransport) LastOutput() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastOutput
}

// Send exports one label; copies become repeated pages
func (t *PDFTransport) Send(ctx context.Context, payload []byte, copies int) error {
	if copies < 1 {
		copies = 1
	}
	payloads := make([][]byte, copies)
	for i := range payloads {
		payloads[i] = payload
	}
	return t.SendBatch(ctx, payloads)
}

// SendBatch writes all labels into one document with page breaks
func (t *PDFTransport) SendBatch(ctx context.Context, payloads [][]byte) error {
	if len(payloads) == 0 {
		return fmt.Errorf("nothing to export")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.MkdirAll(t.outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}

	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		UnitStr: "mm",
		Size:    gofpdf.SizeType{Wd: t.widthMM, Ht: t.heightMM},
	})
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)

	for i, payload := range payloads {
		name := fmt.Sprintf("label_%d", i)
		opts := gofpdf.ImageOptions{ImageType: "PNG"}
		pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(payload))

		pdf.AddPage()
		pdf.ImageOptions(name, 0, 0, t.widthMM, t.heightMM, false, opts, 0, "")
	}

	path := filepath.Join(t.outputDir, fmt.Sprintf("labels_%d.pdf", time.Now().UnixMilli()))
	if err := pdf.OutputFileAndClose(path); err != nil {
		t.diag.Log(diag.LevelError, "pdf export failed", err.Error(), 0)
		return fmt.Errorf("failed to write PDF: %w", err)
	}

	t.mu.Lock()
	t.lastOutput = path
	t.mu.Unlock()

	t.diag.Log(diag.LevelSuccess, fmt.Sprintf("exported %d label(s) to %s", len(payloads), path), "", 0)
	return nil
}
