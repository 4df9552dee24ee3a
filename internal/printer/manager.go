package printer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/marciojunior91/food-safe-sync-sub001/pkg/labelformat"
)

// Manager owns the active printer driver and its persisted settings.
// Every settings change tears the driver down and builds a fresh one,
// which keeps the drivers free of mutable configuration.
type Manager struct {
	deps     Deps
	settings *SettingsStore

	mu      sync.Mutex
	current Printer
}

// NewManager loads the persisted settings and prepares (but does not
// connect) the matching driver.
func NewManager(settingsPath string, deps Deps) (*Manager, error) {
	store := NewSettingsStore(settingsPath)
	settings, err := store.Load()
	if err != nil {
		return nil, err
	}

	p, err := New(settings, deps)
	if err != nil {
		return nil, fmt.Errorf("failed to build printer: %w", err)
	}

	return &Manager{deps: deps, settings: store, current: p}, nil
}

// Active returns the current driver
func (m *Manager) Active() Printer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Status reports the current driver's status
func (m *Manager) Status() Status {
	return m.Active().Status()
}

// UpdateSettings merges the given settings over the current ones,
// persists the result, and swaps in a new driver. The old driver is
// disconnected first so device handles are released before the
// replacement touches the hardware.
func (m *Manager) UpdateSettings(next Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	old := m.current.Settings()
	if next.Type == "" {
		next.Type = old.Type
	}
	fillDefaults(&next)

	p, err := New(next, m.deps)
	if err != nil {
		return err
	}

	// Release the old driver's device handle before the swap; serial,
	// USB and GATT devices are exclusive, so an abandoned live handle
	// would block the replacement's connect.
	if m.current.IsConnected() {
		if err := m.current.Disconnect(); err != nil {
			m.deps.Log.Info(fmt.Sprintf("disconnect during settings change: %v", err))
		}
	}

	if err := m.settings.Save(next); err != nil {
		return err
	}
	m.current = p
	return nil
}

// PrintTest prints a fixed sample label through the active driver so
// users can verify a new configuration end to end.
func (m *Manager) PrintTest(ctx context.Context) error {
	now := time.Now()
	label := &labelformat.LabelData{
		ProductName:    "Test Label",
		CategoryName:   "Diagnostics",
		PreparedBy:     "system",
		PreparedByName: "Printer Test",
		OrganizationID: "test",
		PrepDate:       now.Format("2006-01-02"),
		ExpiryDate:     now.Add(72 * time.Hour).Format("2006-01-02"),
		Condition:      "refrigerate",
		Quantity:       "1",
	}
	return m.Active().Print(ctx, label)
}

// Shutdown disconnects the active driver
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current.Disconnect()
}

// fillDefaults backfills zero-valued tuning fields from the type's
// defaults so a partial update never zeroes the geometry.
func fillDefaults(s *Settings) {
	def := DefaultSettings(s.Type)
	if s.Name == "" {
		s.Name = def.Name
	}
	if s.Protocol == "" {
		s.Protocol = def.Protocol
	}
	if s.PaperWidthMM == 0 {
		s.PaperWidthMM = def.PaperWidthMM
	}
	if s.PaperHeightMM == 0 {
		s.PaperHeightMM = def.PaperHeightMM
	}
	if s.DPMM == 0 {
		s.DPMM = def.DPMM
	}
	if s.Darkness == 0 {
		s.Darkness = def.Darkness
	}
	if s.Speed == 0 {
		s.Speed = def.Speed
	}
	if s.Baud == 0 {
		s.Baud = def.Baud
	}
	if s.OutputDir == "" {
		s.OutputDir = def.OutputDir
	}
	if s.BatchDelayMS == 0 {
		s.BatchDelayMS = def.BatchDelayMS
	}
	if s.ChunkDelayMS == 0 {
		s.ChunkDelayMS = def.ChunkDelayMS
	}
}
