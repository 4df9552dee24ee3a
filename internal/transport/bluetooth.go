package transport

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/marciojunior91/food-safe-sync-sub001/internal/diag"
	"github.com/marciojunior91/food-safe-sync-sub001/internal/format"
)

// GATT writes are capped by the hardware MTU
const MaxChunkSize = 512

// DefaultChunkDelay paces chunk writes so low-power printer buffers keep
// up. Empirically tuned; override via SetChunkDelay.
const DefaultChunkDelay = 20 * time.Millisecond

// Service UUIDs tried during characteristic discovery: the Zebra
// vendor-specific parser service first, then the generic serial-profile
// style service many ESC/POS units expose.
const (
	ZebraParserServiceUUID   = "38eb4a80-c570-11e3-9507-0002a5d5c51b"
	GenericSerialServiceUUID = "000018f0-0000-1000-8000-00805f9b34fb"
)

// DeviceFilters are the advertised-name prefixes offered to the device
// chooser so the picker only shows plausible label printers
var DeviceFilters = []string{"Zebra", "ZQ", "ZD", "ZT", "Star", "TM-", "MTP", "RPP", "Printer"}

// zplNameKeywords map an advertised device name to the ZPL protocol;
// anything else falls back to ESC/POS keywords, and ambiguity defaults
// to ZPL
var zplNameKeywords = []string{"zebra", "zq", "zd", "zt"}
var escposNameKeywords = []string{"epson", "tm-", "star", "pos", "mtp", "rpp", "goojprt"}

// BTState is the Bluetooth driver connection state
type BTState string

const (
	BTDisconnected BTState = "disconnected"
	BTConnecting   BTState = "connecting"
	BTReady        BTState = "ready"
)

// Peripheral is a chosen Bluetooth device, before connection
type Peripheral interface {
	Name() string
	Connect(ctx context.Context) (GATTConn, error)
}

// GATTConn is an established characteristic write channel
type GATTConn interface {
	Write(p []byte) error
	Close() error
}

// DeviceChooser is the injected interactive picker. The OS-level chooser
// is inherently platform-specific, so the driver only depends on this
// capability and tests inject a fake.
type DeviceChooser interface {
	Choose(ctx context.Context, filters []string) (Peripheral, error)
}

// BluetoothTransport drives a BLE label printer through an injected
// chooser and GATT connection. Any write failure resets the driver to
// disconnected; the next send re-establishes on demand.
type BluetoothTransport struct {
	chooser    DeviceChooser
	diag       *diag.Log
	chunkDelay time.Duration

	mu         sync.Mutex
	state      BTState
	conn       GATTConn
	deviceName string
}

// NewBluetoothTransport creates a disconnected driver
func NewBluetoothTransport(chooser DeviceChooser, log *diag.Log) *BluetoothTransport {
	return &BluetoothTransport{
		chooser:    chooser,
		diag:       log,
		chunkDelay: DefaultChunkDelay,
		state:      BTDisconnected,
	}
}

// SetChunkDelay overrides the inter-chunk pacing delay
func (t *BluetoothTransport) SetChunkDelay(d time.Duration) {
	t.chunkDelay = d
}

// State reports the current connection state
func (t *BluetoothTransport) State() BTState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *BluetoothTransport) Connected() bool {
	return t.State() == BTReady
}

func (t *BluetoothTransport) Describe() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.deviceName != "" {
		return "bluetooth " + t.deviceName
	}
	return "bluetooth (no device chosen)"
}

// DetectedProtocol infers the wire protocol from the chosen device's
// advertised name. Before a device is chosen, and for ambiguous names,
// it reports ZPL.
func (t *BluetoothTransport) DetectedProtocol() format.Protocol {
	t.mu.Lock()
	name := strings.ToLower(t.deviceName)
	t.mu.Unlock()

	for _, kw := range zplNameKeywords {
		if strings.Contains(name, kw) {
			return format.ProtocolZPL
		}
	}
	for _, kw := range escposNameKeywords {
		if strings.Contains(name, kw) {
			return format.ProtocolESCPOS
		}
	}
	return format.ProtocolZPL
}

// Connect runs the interactive chooser and establishes the GATT channel
func (t *BluetoothTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.state == BTReady {
		t.mu.Unlock()
		return nil
	}
	t.state = BTConnecting
	t.mu.Unlock()

	peripheral, err := t.chooser.Choose(ctx, DeviceFilters)
	if err != nil {
		t.reset()
		t.diag.Log(diag.LevelError, "device chooser failed", err.Error(), 0)
		return fmt.Errorf("no device chosen: %w", err)
	}

	conn, err := peripheral.Connect(ctx)
	if err != nil {
		t.reset()
		t.diag.Log(diag.LevelError, "GATT connect failed", err.Error(), 0)
		return fmt.Errorf("failed to connect to %s: %w", peripheral.Name(), err)
	}

	t.mu.Lock()
	t.conn = conn
	t.deviceName = peripheral.Name()
	t.state = BTReady
	t.mu.Unlock()

	t.diag.Log(diag.LevelSuccess, "bluetooth connected: "+peripheral.Name(), "", 0)
	return nil
}

// Close tears the channel down and returns to disconnected
func (t *BluetoothTransport) Close() error {
	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.state = BTDisconnected
	t.mu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

// Send chunks the payload to the MTU limit with pacing delays. Copies are
// delivered as repeated payloads; BLE printers have no copy directive.
// Any write failure resets to disconnected and surfaces immediately -
// there is no fallback channel to advance to.
func (t *BluetoothTransport) Send(ctx context.Context, payload []byte, copies int) error {
	// Lazy connect on demand
	if !t.Connected() {
		if err := t.Connect(ctx); err != nil {
			return err
		}
	}

	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	if copies < 1 {
		copies = 1
	}

	for c := 0; c < copies; c++ {
		for offset := 0; offset < len(payload); offset += MaxChunkSize {
			if err := ctx.Err(); err != nil {
				return err
			}

			end := offset + MaxChunkSize
			if end > len(payload) {
				end = len(payload)
			}

			if err := conn.Write(payload[offset:end]); err != nil {
				t.reset()
				t.diag.Log(diag.LevelError, "bluetooth write failed", err.Error(), 0)
				return fmt.Errorf("bluetooth write failed: %w", err)
			}

			if t.chunkDelay > 0 {
				time.Sleep(t.chunkDelay)
			}
		}
	}

	return nil
}

// reset returns the driver to disconnected after a failure; the device
// name is kept so protocol detection survives a flaky link
func (t *BluetoothTransport) reset() {
	t.mu.Lock()
	if t.conn != nil {
		t.conn.Close()
		t.conn = nil
	}
	t.state = BTDisconnected
	t.mu.Unlock()
}
