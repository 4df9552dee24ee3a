//go:build linux

package transport

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
)

// scanWindow is how long the chooser listens for advertisements
const scanWindow = 8 * time.Second

// BLEChooser is the go-ble backed DeviceChooser. It scans for
// advertisements whose local name matches one of the filters and offers
// the strongest candidate. On a headless agent there is no picker dialog,
// so the first matching device wins.
type BLEChooser struct {
	deviceOnce sync.Once
	deviceErr  error
}

// NewBLEChooser creates the chooser; the HCI device is initialized lazily
// on first use
func NewBLEChooser() *BLEChooser {
	return &BLEChooser{}
}

func (c *BLEChooser) initDevice() error {
	c.deviceOnce.Do(func() {
		d, err := linux.NewDevice()
		if err != nil {
			c.deviceErr = fmt.Errorf("failed to open HCI device: %w", err)
			return
		}
		ble.SetDefaultDevice(d)
	})
	return c.deviceErr
}

// Choose scans for a printer whose advertised name matches the filters
func (c *BLEChooser) Choose(ctx context.Context, filters []string) (Peripheral, error) {
	if err := c.initDevice(); err != nil {
		return nil, err
	}

	scanCtx, cancel := context.WithTimeout(ctx, scanWindow)
	defer cancel()

	found := make(chan ble.Advertisement, 1)
	handler := func(a ble.Advertisement) {
		name := a.LocalName()
		for _, f := range filters {
			if name != "" && strings.Contains(strings.ToLower(name), strings.ToLower(f)) {
				select {
				case found <- a:
					cancel()
				default:
				}
				return
			}
		}
	}

	err := ble.Scan(scanCtx, false, handler, nil)
	if err != nil && scanCtx.Err() == nil {
		return nil, fmt.Errorf("BLE scan failed: %w", err)
	}

	select {
	case adv := <-found:
		return &blePeripheral{name: adv.LocalName(), addr: adv.Addr()}, nil
	default:
		return nil, fmt.Errorf("no matching printer advertised within %s", scanWindow)
	}
}

type blePeripheral struct {
	name string
	addr ble.Addr
}

func (p *blePeripheral) Name() string { return p.name }

// Connect dials the peripheral and locates a writable characteristic,
// trying the Zebra vendor service before the generic serial service
func (p *blePeripheral) Connect(ctx context.Context) (GATTConn, error) {
	client, err := ble.Dial(ctx, p.addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", p.name, err)
	}

	profile, err := client.DiscoverProfile(true)
	if err != nil {
		client.CancelConnection()
		return nil, fmt.Errorf("service discovery failed: %w", err)
	}

	char := findWritableChar(profile, ZebraParserServiceUUID)
	if char == nil {
		char = findWritableChar(profile, GenericSerialServiceUUID)
	}
	if char == nil {
		// Last resort: any writable characteristic on the device
		char = findWritableChar(profile, "")
	}
	if char == nil {
		client.CancelConnection()
		return nil, fmt.Errorf("no writable characteristic on %s", p.name)
	}

	return &bleConn{client: client, char: char}, nil
}

func findWritableChar(profile *ble.Profile, serviceUUID string) *ble.Characteristic {
	for _, svc := range profile.Services {
		if serviceUUID != "" && !strings.EqualFold(svc.UUID.String(), strings.ReplaceAll(serviceUUID, "-", "")) {
			continue
		}
		for _, char := range svc.Characteristics {
			if char.Property&(ble.CharWrite|ble.CharWriteNR) != 0 {
				return char
			}
		}
	}
	return nil
}

type bleConn struct {
	client ble.Client
	char   *ble.Characteristic
	mu     sync.Mutex
}

func (c *bleConn) Write(p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.client.WriteCharacteristic(c.char, p, true)
}

func (c *bleConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.client.CancelConnection()
}
