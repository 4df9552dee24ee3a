package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/gousb"

	"github.com/marciojunior91/food-safe-sync-sub001/internal/diag"
	"github.com/marciojunior91/food-safe-sync-sub001/internal/format"
)

// USBTransport drives a USB-attached label printer by VID/PID
type USBTransport struct {
	vid      uint16
	pid      uint16
	protocol format.Protocol
	diag     *diag.Log

	mu       sync.Mutex
	usbCtx   *gousb.Context
	device   *gousb.Device
	iface    *gousb.Interface
	endpoint *gousb.OutEndpoint
}

// NewUSBTransport creates a disconnected USB driver
func NewUSBTransport(vid, pid uint16, protocol format.Protocol, log *diag.Log) *USBTransport {
	return &USBTransport{vid: vid, pid: pid, protocol: protocol, diag: log}
}

func (t *USBTransport) Describe() string {
	return fmt.Sprintf("usb %04X:%04X", t.vid, t.pid)
}

func (t *USBTransport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.endpoint != nil
}

// Connect opens the device and claims the first interface exposing an OUT
// endpoint
func (t *USBTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.endpoint != nil {
		return nil
	}

	usbCtx := gousb.NewContext()

	dev, err := usbCtx.OpenDeviceWithVIDPID(gousb.ID(t.vid), gousb.ID(t.pid))
	if err != nil || dev == nil {
		usbCtx.Close()
		if err == nil {
			err = fmt.Errorf("device not found")
		}
		t.diag.Log(diag.LevelError, "usb open failed", err.Error(), 0)
		return fmt.Errorf("failed to open USB device %04X:%04X: %w", t.vid, t.pid, err)
	}

	// Some printers hold a kernel driver; detach and retry once
	iface, done, err := dev.DefaultInterface()
	if err != nil {
		dev.SetAutoDetach(true)
		iface, done, err = dev.DefaultInterface()
	}
	if err != nil {
		dev.Close()
		usbCtx.Close()
		t.diag.Log(diag.LevelError, "usb claim failed", err.Error(), 0)
		return fmt.Errorf("failed to claim USB interface: %w", err)
	}
	_ = done // released via iface.Close on disconnect

	var endpoint *gousb.OutEndpoint
	for _, epDesc := range iface.Setting.Endpoints {
		if epDesc.Direction == gousb.EndpointDirectionOut {
			if ep, err := iface.OutEndpoint(epDesc.Number); err == nil {
				endpoint = ep
				break
			}
		}
	}
	if endpoint == nil {
		iface.Close()
		dev.Close()
		usbCtx.Close()
		return fmt.Errorf("no OUT endpoint on USB printer %04X:%04X", t.vid, t.pid)
	}

	t.usbCtx = usbCtx
	t.device = dev
	t.iface = iface
	t.endpoint = endpoint
	t.diag.Log(diag.LevelSuccess, "usb printer connected "+t.Describe(), "", 0)
	return nil
}

func (t *USBTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.iface != nil {
		t.iface.Close()
		t.iface = nil
	}
	if t.device != nil {
		t.device.Close()
		t.device = nil
	}
	if t.usbCtx != nil {
		t.usbCtx.Close()
		t.usbCtx = nil
	}
	t.endpoint = nil
	return nil
}

// Send writes the payload with its native copy directive through the OUT
// endpoint
func (t *USBTransport) Send(ctx context.Context, payload []byte, copies int) error {
	if err := t.Connect(ctx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data := format.WithCopies(t.protocol, payload, copies)

	t.mu.Lock()
	endpoint := t.endpoint
	t.mu.Unlock()
	if endpoint == nil {
		return ErrNotConnected
	}

	if _, err := endpoint.Write(data); err != nil {
		t.Close()
		t.diag.Log(diag.LevelError, "usb write failed", err.Error(), 0)
		return fmt.Errorf("failed to write to USB printer: %w", err)
	}

	return nil
}
