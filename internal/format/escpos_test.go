package format

import (
	"bytes"
	"testing"
)

func TestESCPOSGenerate_Structure(t *testing.T) {
	out := NewESCPOSGenerator().Generate(testLabel())

	// Must start with initialize
	if !bytes.HasPrefix(out, []byte{ESC, '@'}) {
		t.Error("expected payload to start with ESC @ initialize")
	}

	// Must end with feed + full cut
	if !bytes.HasSuffix(out, []byte{GS, 'V', 0}) {
		t.Error("expected payload to end with GS V 0 full cut")
	}

	for _, want := range []string{"Chicken Soup", "USE BY: 2025-01-13", "REFRIGERATE", "Dairy"} {
		if !bytes.Contains(out, []byte(want)) {
			t.Errorf("payload missing %q", want)
		}
	}
}

func TestESCPOSGenerate_ExpiryEmphasis(t *testing.T) {
	out := NewESCPOSGenerator().Generate(testLabel())

	// Expiry must be preceded by bold-on and double-height
	expiry := bytes.Index(out, []byte("USE BY:"))
	if expiry < 0 {
		t.Fatal("no expiry line in payload")
	}
	prefix := out[:expiry]
	boldOn := bytes.LastIndex(prefix, []byte{ESC, 'E', 1})
	doubleHeight := bytes.LastIndex(prefix, []byte{GS, '!', 0x01})
	if boldOn < 0 || doubleHeight < 0 {
		t.Error("expected bold + double-height commands before expiry line")
	}
}

func TestESCPOSGenerate_Idempotent(t *testing.T) {
	gen := NewESCPOSGenerator()
	label := testLabel()
	label.LabelID = "L123"

	if !bytes.Equal(gen.Generate(label), gen.Generate(label)) {
		t.Error("expected byte-identical output for identical label data")
	}
}

func TestESCPOSGenerate_GracefulDegradation(t *testing.T) {
	label := testLabel()
	label.Allergens = nil
	label.Quantity = ""

	out := NewESCPOSGenerator().Generate(label)
	if bytes.Contains(out, []byte("ALLERGENS")) {
		t.Error("expected no allergen line for empty allergen list")
	}
	if bytes.Contains(out, []byte("Qty:")) {
		t.Error("expected no quantity line when quantity omitted")
	}
}

func TestESCPOSGenerate_NonASCIIReplaced(t *testing.T) {
	label := testLabel()
	label.ProductName = "Crème Brûlée 寿司"

	out := NewESCPOSGenerator().Generate(label)
	if len(out) == 0 {
		t.Fatal("generator must not fail on non-ASCII input")
	}
}

func TestWithCopies_ZPL(t *testing.T) {
	payload := []byte("^XA\n^FO10,10^FDx^FS\n^XZ\n")

	out := WithCopies(ProtocolZPL, payload, 3)
	if !bytes.Contains(out, []byte("^PQ3,0,1,Y")) {
		t.Errorf("expected ^PQ3 directive, got %s", out)
	}
	// Directive must land inside the format, before ^XZ
	if bytes.Index(out, []byte("^PQ3")) > bytes.Index(out, []byte("^XZ")) {
		t.Error("copy directive must precede ^XZ")
	}
}

func TestWithCopies_ESCPOSRepeats(t *testing.T) {
	payload := []byte{ESC, '@', 'a', 0x0A}

	out := WithCopies(ProtocolESCPOS, payload, 2)
	if len(out) != len(payload)*2 {
		t.Errorf("expected payload repeated twice, got %d bytes", len(out))
	}
}

func TestWithCopies_SingleCopyUnchanged(t *testing.T) {
	payload := []byte("^XA^XZ")
	out := WithCopies(ProtocolZPL, payload, 1)
	if !bytes.Equal(out, payload) {
		t.Error("single copy should pass payload through unchanged")
	}
}
