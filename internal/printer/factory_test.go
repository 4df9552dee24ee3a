package printer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/marciojunior91/food-safe-sync-sub001/internal/diag"
	"github.com/marciojunior91/food-safe-sync-sub001/internal/format"
	"github.com/marciojunior91/food-safe-sync-sub001/internal/store"
)

func testDeps(t *testing.T) Deps {
	t.Helper()
	log, err := diag.New(filepath.Join(t.TempDir(), "diag.json"))
	if err != nil {
		t.Fatalf("diag.New: %v", err)
	}
	return Deps{Labels: store.NewMemLabelStore(), Log: log}
}

func TestNewRejectsUnknownType(t *testing.T) {
	_, err := New(Settings{Type: "fax"}, testDeps(t))
	if err == nil {
		t.Fatal("expected error for unknown printer type")
	}
}

func TestNewRejectsIncompleteSettings(t *testing.T) {
	deps := testDeps(t)

	if _, err := New(DefaultSettings(TypeSerial), deps); err == nil {
		t.Error("serial printer built without a device path")
	}
	if _, err := New(DefaultSettings(TypeUSB), deps); err == nil {
		t.Error("usb printer built without vendor/product IDs")
	}
}

func TestNewBuildsSocketPrinterWithDefaults(t *testing.T) {
	p, err := New(DefaultSettings(TypeSocket), testDeps(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	st := p.Status()
	if st.Type != TypeSocket {
		t.Errorf("status type = %q, want socket", st.Type)
	}
}

func TestDefaultSettingsPerType(t *testing.T) {
	if got := DefaultSettings(TypeSocket).Protocol; got != format.ProtocolZPL {
		t.Errorf("socket default protocol = %q, want zpl", got)
	}
	if got := DefaultSettings(TypeSerial).Protocol; got != format.ProtocolESCPOS {
		t.Errorf("serial default protocol = %q, want escpos", got)
	}
	if got := DefaultSettings(TypePDF).Protocol; got != format.ProtocolRaster {
		t.Errorf("pdf default protocol = %q, want raster", got)
	}
	if got := DefaultSettings(TypeSerial).Baud; got != 9600 {
		t.Errorf("serial default baud = %d, want 9600", got)
	}
}

func TestSettingsStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "printer.json")
	store := NewSettingsStore(path)

	// Nothing saved yet: socket defaults
	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Type != TypeSocket {
		t.Errorf("first load type = %q, want socket", loaded.Type)
	}

	saved := DefaultSettings(TypeBluetooth)
	saved.Name = "Kitchen Zebra"
	saved.ChunkDelayMS = 50
	if err := store.Save(saved); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err = store.Load()
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if loaded.Type != TypeBluetooth || loaded.Name != "Kitchen Zebra" || loaded.ChunkDelayMS != 50 {
		t.Errorf("reloaded settings do not match saved: %+v", loaded)
	}
}

func TestSettingsStoreRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "printer.json")
	if err := os.WriteFile(path, []byte("{nope"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewSettingsStore(path).Load(); err == nil {
		t.Fatal("expected parse error for corrupt settings file")
	}
}

// recordingPrinter makes driver lifecycle calls observable in tests.
// The embedded interface panics on anything UpdateSettings does not
// touch, so the test also pins down what a swap is allowed to call.
type recordingPrinter struct {
	Printer
	settings    Settings
	connected   bool
	disconnects int
}

func (p *recordingPrinter) Settings() Settings { return p.settings }
func (p *recordingPrinter) IsConnected() bool  { return p.connected }
func (p *recordingPrinter) Disconnect() error {
	p.disconnects++
	p.connected = false
	return nil
}

func TestManagerUpdateSettingsDisconnectsReplacedDriver(t *testing.T) {
	dir := t.TempDir()

	m, err := NewManager(filepath.Join(dir, "printer.json"), testDeps(t))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	old := &recordingPrinter{settings: DefaultSettings(TypeSocket), connected: true}
	m.mu.Lock()
	m.current = old
	m.mu.Unlock()

	// A tuning-only change still swaps the driver, so the live handle
	// must be released even though nothing structural changed
	next := DefaultSettings(TypeSocket)
	next.BatchDelayMS = 750
	if err := m.UpdateSettings(next); err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}

	if old.disconnects != 1 {
		t.Errorf("replaced driver disconnected %d times, want 1", old.disconnects)
	}
	if m.Active() == Printer(old) {
		t.Error("old driver still active after settings change")
	}
	if got := m.Active().Settings().BatchDelayMS; got != 750 {
		t.Errorf("new driver batch delay = %d, want 750", got)
	}
}

func TestManagerUpdateSettingsSwapsDriver(t *testing.T) {
	dir := t.TempDir()
	deps := testDeps(t)

	m, err := NewManager(filepath.Join(dir, "printer.json"), deps)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if m.Status().Type != TypeSocket {
		t.Fatalf("fresh manager type = %q, want socket", m.Status().Type)
	}

	next := Settings{Type: TypePDF, OutputDir: filepath.Join(dir, "out")}
	if err := m.UpdateSettings(next); err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}
	if m.Status().Type != TypePDF {
		t.Errorf("active type = %q after update, want pdf", m.Status().Type)
	}

	// Settings survive a restart
	m2, err := NewManager(filepath.Join(dir, "printer.json"), deps)
	if err != nil {
		t.Fatalf("NewManager reload: %v", err)
	}
	if m2.Status().Type != TypePDF {
		t.Errorf("reloaded type = %q, want pdf", m2.Status().Type)
	}
}

func TestManagerPrintTestProducesDocument(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out")
	deps := testDeps(t)

	m, err := NewManager(filepath.Join(dir, "printer.json"), deps)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if err := m.UpdateSettings(Settings{Type: TypePDF, OutputDir: out}); err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}

	if err := m.PrintTest(context.Background()); err != nil {
		t.Fatalf("PrintTest: %v", err)
	}

	entries, err := os.ReadDir(out)
	if err != nil {
		t.Fatalf("read output dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one exported document, found %d", len(entries))
	}
	info, _ := entries[0].Info()
	if info.Size() == 0 {
		t.Error("exported document is empty")
	}
}
