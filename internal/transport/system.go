package transport

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/marciojunior91/food-safe-sync-sub001/internal/diag"
)

// printTimeout bounds one spooler submission
const printTimeout = time.Minute

// SystemTransport hands rendered label images to the host print facility
// (CUPS lp). It has no connection state of its own; the spooler either
// accepts the job or the command fails.
type SystemTransport struct {
	printerName string // empty = system default printer
	diag        *diag.Log
}

// NewSystemTransport creates a spooler driver for the named printer
func NewSystemTransport(printerName string, log *diag.Log) *SystemTransport {
	return &SystemTransport{printerName: printerName, diag: log}
}

func (t *SystemTransport) Connect(ctx context.Context) error { return nil }
func (t *SystemTransport) Close() error                      { return nil }
func (t *SystemTransport) Connected() bool                   { return true }

func (t *SystemTransport) Describe() string {
	if t.printerName == "" {
		return "system default printer"
	}
	return "system printer " + t.printerName
}

// Send submits one rendered label to the spooler
func (t *SystemTransport) Send(ctx context.Context, payload []byte, copies int) error {
	return t.submit(ctx, [][]byte{payload}, copies)
}

// SendBatch submits a whole batch as a single spooler job so the host
// facility runs once per batch, not once per label
func (t *SystemTransport) SendBatch(ctx context.Context, payloads [][]byte) error {
	return t.submit(ctx, payloads, 1)
}

func (t *SystemTransport) submit(ctx context.Context, payloads [][]byte, copies int) error {
	dir, err := os.MkdirTemp("", "labels")
	if err != nil {
		return fmt.Errorf("failed to stage label images: %w", err)
	}
	defer os.RemoveAll(dir)

	var files []string
	for i, payload := range payloads {
		path := filepath.Join(dir, fmt.Sprintf("label_%d.png", i))
		if err := os.WriteFile(path, payload, 0644); err != nil {
			return fmt.Errorf("failed to stage label image: %w", err)
		}
		files = append(files, path)
	}

	cmdCtx, cancel := context.WithTimeout(ctx, printTimeout)
	defer cancel()

	args := []string{}
	if t.printerName != "" {
		args = append(args, "-d", t.printerName)
	}
	if copies > 1 {
		args = append(args, "-n", strconv.Itoa(copies))
	}
	args = append(args, files...)

	cmd := exec.CommandContext(cmdCtx, "lp", args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		t.diag.Log(diag.LevelError, "spooler submission failed", strings.TrimSpace(string(output)), 0)
		if cmdCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("spooler submission timed out after %s", printTimeout)
		}
		return fmt.Errorf("lp failed: %w, output: %s", err, string(output))
	}

	t.diag.Log(diag.LevelSuccess, fmt.Sprintf("spooled %d label(s)", len(files)), requestID(string(output)), 0)
	return nil
}

// requestID pulls the job id out of lp's "request id is X-123 (...)" line
func requestID(output string) string {
	if !strings.Contains(output, "request id is") {
		return ""
	}
	parts := strings.SplitN(output, "is", 2)
	fields := strings.Fields(strings.TrimSpace(parts[1]))
	if len(fields) > 0 {
		return fields[0]
	}
	return ""
}

// ListSystemPrinters returns the available spooler queues (lpstat -a)
func ListSystemPrinters() ([]string, error) {
	output, err := exec.Command("lpstat", "-a").Output()
	if err != nil {
		return nil, err
	}

	var printers []string
	for _, line := range strings.Split(string(output), "\n") {
		fields := strings.Fields(line)
		if len(fields) > 0 {
			printers = append(printers, fields[0])
		}
	}
	return printers, nil
}
