package transport

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"testing"
)

func tinyPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for i := 0; i < 8; i++ {
		img.Set(i, i, color.Black)
	}
	buf := new(bytes.Buffer)
	if err := png.Encode(buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestPDFSendBatch_OneDocumentWithPageBreaks(t *testing.T) {
	dir := t.TempDir()
	tr := NewPDFTransport(dir, 56, 31, newTestDiag(t))

	payloads := [][]byte{tinyPNG(t), tinyPNG(t), tinyPNG(t)}
	if err := tr.SendBatch(context.Background(), payloads); err != nil {
		t.Fatal(err)
	}

	out := tr.LastOutput()
	if out == "" {
		t.Fatal("expected an output path")
	}

	info, err := os.Stat(out)
	if err != nil {
		t.Fatalf("output file missing: %v", err)
	}
	if info.Size() == 0 {
		t.Error("expected non-empty PDF")
	}

	// One batch, one document
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("expected a single document for the batch, found %d files", len(entries))
	}
}

func TestPDFSend_CopiesBecomePages(t *testing.T) {
	tr := NewPDFTransport(t.TempDir(), 56, 31, newTestDiag(t))

	if err := tr.Send(context.Background(), tinyPNG(t), 2); err != nil {
		t.Fatal(err)
	}
	if tr.LastOutput() == "" {
		t.Error("expected an output document")
	}
}

func TestPDFTransport_AlwaysConnected(t *testing.T) {
	tr := NewPDFTransport(t.TempDir(), 56, 31, newTestDiag(t))
	if !tr.Connected() {
		t.Error("file export has no connection state and reports connected")
	}
}
