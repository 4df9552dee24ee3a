package printer

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/marciojunior91/food-safe-sync-sub001/internal/format"
)

// Type discriminates which generator/transport pair the factory builds
type Type string

const (
	TypeBluetooth Type = "bluetooth" // BLE GATT, protocol auto-detected
	TypeSocket    Type = "socket"    // local WebSocket bridge, multi-port
	TypeSerial    Type = "serial"    // direct serial attachment
	TypeUSB       Type = "usb"       // direct USB attachment
	TypeSystem    Type = "system"    // OS print spooler, raster
	TypePDF       Type = "pdf"       // file export, raster
)

// Settings is the persisted, session-wide printer configuration. Changing
// Type always reconstructs a fresh driver; the remaining fields are
// tuning parameters.
type Settings struct {
	Type Type   `json:"type"`
	Name string `json:"name"`

	// Wire protocol for socket/serial/usb printers. Bluetooth ignores
	// this and detects from the chosen device's advertised name.
	Protocol format.Protocol `json:"protocol,omitempty"`

	// Paper geometry
	PaperWidthMM  int `json:"paper_width_mm"`
	PaperHeightMM int `json:"paper_height_mm"`
	DPMM          int `json:"dpmm"`

	// Thermal tuning
	Darkness int `json:"darkness"`
	Speed    int `json:"speed"`

	// Connection parameters per type
	BridgePorts   []int  `json:"bridge_ports,omitempty"`
	Device        string `json:"device,omitempty"`
	Baud          int    `json:"baud,omitempty"`
	VID           uint16 `json:"vid,omitempty"`
	PID           uint16 `json:"pid,omitempty"`
	SystemPrinter string `json:"system_printer,omitempty"`
	OutputDir     string `json:"output_dir,omitempty"`

	// Empirically tuned pacing delays, configurable per hardware
	BatchDelayMS int `json:"batch_delay_ms"`
	ChunkDelayMS int `json:"chunk_delay_ms"`
}

// DefaultSettings returns the per-type defaults applied on first use
func DefaultSettings(t Type) Settings {
	s := Settings{
		Type:          t,
		Name:          string(t) + " printer",
		Protocol:      format.ProtocolZPL,
		PaperWidthMM:  56,
		PaperHeightMM: 31,
		DPMM:          8,
		Darkness:      15,
		Speed:         4,
		BatchDelayMS:  300,
		ChunkDelayMS:  20,
	}

	switch t {
	case TypeSerial, TypeUSB:
		s.Protocol = format.ProtocolESCPOS
		s.Baud = 9600
	case TypeSystem, TypePDF:
		s.Protocol = format.ProtocolRaster
		s.OutputDir = "labels"
	}

	return s
}

// Geometry converts the paper settings into generator geometry
func (s Settings) Geometry() format.Geometry {
	geo := format.DefaultGeometry()
	if s.PaperWidthMM > 0 {
		geo.WidthMM = s.PaperWidthMM
	}
	if s.PaperHeightMM > 0 {
		geo.HeightMM = s.PaperHeightMM
	}
	if s.DPMM > 0 {
		geo.DPMM = s.DPMM
	}
	return geo
}

// SettingsStore persists the active settings as JSON under one fixed path
type SettingsStore struct {
	filePath string
	mu       sync.Mutex
}

// NewSettingsStore creates a store for the given file path
func NewSettingsStore(filePath string) *SettingsStore {
	return &SettingsStore{filePath: filePath}
}

// Load reads the persisted settings, falling back to socket defaults when
// nothing has been saved yet
func (s *SettingsStore) Load() (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultSettings(TypeSocket), nil
		}
		return Settings{}, fmt.Errorf("failed to load printer settings: %w", err)
	}

	var settings Settings
	if err := json.Unmarshal(data, &settings); err != nil {
		return Settings{}, fmt.Errorf("failed to parse printer settings: %w", err)
	}
	return settings, nil
}

// Save overwrites the persisted settings
func (s *SettingsStore) Save(settings Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to persist printer settings: %w", err)
	}
	return nil
}
