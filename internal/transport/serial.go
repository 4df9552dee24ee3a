package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/tarm/serial"

	"github.com/marciojunior91/food-safe-sync-sub001/internal/diag"
	"github.com/marciojunior91/food-safe-sync-sub001/internal/format"
)

// SerialTransport drives a directly attached label printer over a serial
// port
type SerialTransport struct {
	device   string
	baud     int
	protocol format.Protocol
	diag     *diag.Log

	mu   sync.Mutex
	port *serial.Port
}

// NewSerialTransport creates a disconnected serial driver
func NewSerialTransport(device string, baud int, protocol format.Protocol, log *diag.Log) *SerialTransport {
	if baud == 0 {
		baud = 9600 // default for most thermal printers
	}
	return &SerialTransport{
		device:   device,
		baud:     baud,
		protocol: protocol,
		diag:     log,
	}
}

func (t *SerialTransport) Describe() string {
	return "serial " + t.device
}

func (t *SerialTransport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.port != nil
}

// Connect opens the serial port
func (t *SerialTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.port != nil {
		return nil
	}

	port, err := serial.OpenPort(&serial.Config{Name: t.device, Baud: t.baud})
	if err != nil {
		t.diag.Log(diag.LevelError, "serial open failed", err.Error(), 0)
		return fmt.Errorf("failed to open serial port %s: %w", t.device, err)
	}

	t.port = port
	t.diag.Log(diag.LevelSuccess, "serial port opened: "+t.device, "", 0)
	return nil
}

func (t *SerialTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.port == nil {
		return nil
	}
	err := t.port.Close()
	t.port = nil
	return err
}

// Send writes the payload with its native copy directive. A write failure
// drops the connection so the next call reopens the port.
func (t *SerialTransport) Send(ctx context.Context, payload []byte, copies int) error {
	if err := t.Connect(ctx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data := format.WithCopies(t.protocol, payload, copies)

	t.mu.Lock()
	port := t.port
	t.mu.Unlock()
	if port == nil {
		return ErrNotConnected
	}

	if _, err := port.Write(data); err != nil {
		t.Close()
		t.diag.Log(diag.LevelError, "serial write failed", err.Error(), 0)
		return fmt.Errorf("failed to write to serial printer: %w", err)
	}

	return nil
}
