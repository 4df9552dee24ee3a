package printer

import (
	"fmt"
	"time"

	"github.com/marciojunior91/food-safe-sync-sub001/internal/diag"
	"github.com/marciojunior91/food-safe-sync-sub001/internal/format"
	"github.com/marciojunior91/food-safe-sync-sub001/internal/store"
	"github.com/marciojunior91/food-safe-sync-sub001/internal/transport"
)

// Deps are the shared collaborators every driver is built with
type Deps struct {
	Labels  store.LabelStore
	Log     *diag.Log
	Chooser transport.DeviceChooser // nil selects the platform BLE chooser
}

// New builds a printer for the given settings. Each call constructs a
// fresh driver; stale connection state never carries across a type
// change.
func New(settings Settings, deps Deps) (Printer, error) {
	if deps.Labels == nil {
		return nil, fmt.Errorf("label store is required")
	}
	if deps.Log == nil {
		return nil, fmt.Errorf("diagnostics log is required")
	}

	geo := settings.Geometry()

	p := &labelPrinter{
		settings: settings,
		labels:   deps.Labels,
		log:      deps.Log,
	}

	switch settings.Type {
	case TypeBluetooth:
		chooser := deps.Chooser
		if chooser == nil {
			chooser = transport.NewBLEChooser()
		}
		bt := transport.NewBluetoothTransport(chooser, deps.Log)
		if settings.ChunkDelayMS > 0 {
			bt.SetChunkDelay(time.Duration(settings.ChunkDelayMS) * time.Millisecond)
		}
		p.transport = bt
		// The wire protocol follows the device picked at connect time
		p.generator = func() format.Generator {
			return generatorFor(bt.DetectedProtocol(), settings, geo)
		}

	case TypeSocket:
		ports := settings.BridgePorts
		if len(ports) == 0 {
			ports = transport.DefaultBridgePorts
		}
		p.transport = transport.NewSocketTransport(settings.Protocol, ports, deps.Log)
		p.generator = fixedGenerator(settings, geo)

	case TypeSerial:
		if settings.Device == "" {
			return nil, fmt.Errorf("serial printer requires a device path")
		}
		p.transport = transport.NewSerialTransport(settings.Device, settings.Baud, settings.Protocol, deps.Log)
		p.generator = fixedGenerator(settings, geo)

	case TypeUSB:
		if settings.VID == 0 || settings.PID == 0 {
			return nil, fmt.Errorf("usb printer requires vendor and product IDs")
		}
		p.transport = transport.NewUSBTransport(settings.VID, settings.PID, settings.Protocol, deps.Log)
		p.generator = fixedGenerator(settings, geo)

	case TypeSystem:
		p.transport = transport.NewSystemTransport(settings.SystemPrinter, deps.Log)
		p.generator = fixedGenerator(settings, geo)

	case TypePDF:
		p.transport = transport.NewPDFTransport(settings.OutputDir,
			float64(geo.WidthMM), float64(geo.HeightMM), deps.Log)
		p.generator = fixedGenerator(settings, geo)

	default:
		return nil, fmt.Errorf("unknown printer type %q", settings.Type)
	}

	return p, nil
}

func fixedGenerator(settings Settings, geo format.Geometry) func() format.Generator {
	gen := generatorFor(settings.Protocol, settings, geo)
	return func() format.Generator { return gen }
}

func generatorFor(protocol format.Protocol, settings Settings, geo format.Geometry) format.Generator {
	switch protocol {
	case format.ProtocolESCPOS:
		return format.NewESCPOSGenerator()
	case format.ProtocolRaster:
		return format.NewRasterRenderer(geo)
	default:
		gen := format.NewZPLGenerator(geo)
		if settings.Darkness > 0 {
			gen.Darkness = settings.Darkness
		}
		if settings.Speed > 0 {
			gen.Speed = settings.Speed
		}
		return gen
	}
}
