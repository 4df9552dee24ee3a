package format

import (
	"fmt"
	"strings"

	"github.com/marciojunior91/food-safe-sync-sub001/pkg/labelformat"
)

// ZPLGenerator emits Zebra Programming Language command streams
type ZPLGenerator struct {
	Geometry Geometry
	Darkness int // ^MD setting, 0-30
	Speed    int // ^PR setting, inches/sec
}

// NewZPLGenerator creates a generator with sensible thermal defaults
func NewZPLGenerator(geo Geometry) *ZPLGenerator {
	return &ZPLGenerator{
		Geometry: geo,
		Darkness: 15,
		Speed:    4,
	}
}

func (g *ZPLGenerator) Protocol() Protocol {
	return ProtocolZPL
}

// zplBlock is one vertical slice of the label. Optional sections declare
// their own height and are folded into absolute Y offsets in order, so a
// missing block simply pulls everything below it up - no coordinate
// collisions possible.
type zplBlock struct {
	height int
	emit   func(b *strings.Builder, y int)
}

// Generate produces the full ^XA..^XZ command stream for one label
func (g *ZPLGenerator) Generate(label *labelformat.LabelData) []byte {
	margin := 16
	width := g.Geometry.WidthDots()

	var blocks []zplBlock

	// Product name, large
	blocks = append(blocks, zplBlock{height: 44, emit: func(b *strings.Builder, y int) {
		fmt.Fprintf(b, "^CF0,36\n^FO%d,%d^FD%s^FS\n", margin, y, sanitizeZPL(label.ProductName))
	}})

	// Category line (optional - quick-print labels show the sentinel)
	if category := label.Category(); category != "" {
		blocks = append(blocks, zplBlock{height: 26, emit: func(b *strings.Builder, y int) {
			fmt.Fprintf(b, "^CF0,20\n^FO%d,%d^FD%s^FS\n", margin, y, sanitizeZPL(category))
		}})
	}

	// Prep and expiry dates; expiry rendered bold-ish via a larger font
	blocks = append(blocks, zplBlock{height: 26, emit: func(b *strings.Builder, y int) {
		fmt.Fprintf(b, "^CF0,20\n^FO%d,%d^FDPrep: %s^FS\n", margin, y, sanitizeZPL(label.PrepDate))
	}})
	blocks = append(blocks, zplBlock{height: 32, emit: func(b *strings.Builder, y int) {
		fmt.Fprintf(b, "^CF0,26\n^FO%d,%d^FDUSE BY: %s^FS\n", margin, y, sanitizeZPL(label.ExpiryDate))
	}})

	if label.Condition != "" {
		condition := strings.ToUpper(label.Condition)
		blocks = append(blocks, zplBlock{height: 26, emit: func(b *strings.Builder, y int) {
			fmt.Fprintf(b, "^CF0,20\n^FO%d,%d^FD%s^FS\n", margin, y, sanitizeZPL(condition))
		}})
	}

	if qty := label.QuantityLine(); qty != "" {
		blocks = append(blocks, zplBlock{height: 24, emit: func(b *strings.Builder, y int) {
			fmt.Fprintf(b, "^CF0,18\n^FO%d,%d^FDQty: %s^FS\n", margin, y, sanitizeZPL(qty))
		}})
	}

	if names := label.AllergenNames(); len(names) > 0 {
		line := "ALLERGENS: " + strings.Join(names, ", ")
		blocks = append(blocks, zplBlock{height: 24, emit: func(b *strings.Builder, y int) {
			fmt.Fprintf(b, "^CF0,18\n^FO%d,%d^FD%s^FS\n", margin, y, sanitizeZPL(line))
		}})
	}

	if label.PreparedByName != "" {
		blocks = append(blocks, zplBlock{height: 22, emit: func(b *strings.Builder, y int) {
			fmt.Fprintf(b, "^CF0,16\n^FO%d,%d^FDBy: %s^FS\n", margin, y, sanitizeZPL(label.PreparedByName))
		}})
	}

	if label.BatchNumber != "" {
		blocks = append(blocks, zplBlock{height: 20, emit: func(b *strings.Builder, y int) {
			fmt.Fprintf(b, "^CF0,14\n^FO%d,%d^FDBatch: %s^FS\n", margin, y, sanitizeZPL(label.BatchNumber))
		}})
	}

	if label.LabelID != "" {
		blocks = append(blocks, zplBlock{height: 18, emit: func(b *strings.Builder, y int) {
			fmt.Fprintf(b, "^CF0,14\n^FO%d,%d^FDID: %s^FS\n", margin, y, sanitizeZPL(label.LabelID))
		}})
	}

	var b strings.Builder
	b.WriteString("^XA\n")
	fmt.Fprintf(&b, "^PW%d\n", width)
	fmt.Fprintf(&b, "^MD%d\n", g.Darkness)
	fmt.Fprintf(&b, "^PR%d\n", g.Speed)
	b.WriteString("^LH0,0\n")

	// Fold the block list into absolute offsets
	y := 16
	for _, blk := range blocks {
		blk.emit(&b, y)
		y += blk.height
	}

	// Trace QR sits right of the text column; the payload is the durable
	// link between the physical label and its database record
	qrX := width - 120
	fmt.Fprintf(&b, "^FO%d,%d^BQN,2,3^FDQA,%s^FS\n", qrX, 16, traceFieldData(label))

	fmt.Fprintf(&b, "^LL%d\n", maxInt(y+16, g.Geometry.HeightDots()))
	b.WriteString("^XZ\n")

	return []byte(b.String())
}

var zplSanitizer = strings.NewReplacer(
	"^", " ",
	"~", " ",
	"\\", " ",
	"\n", " ",
	"\r", " ",
)

// sanitizeZPL strips ZPL control characters from free text so user input
// cannot corrupt the command stream
func sanitizeZPL(v string) string {
	return zplSanitizer.Replace(strings.TrimSpace(v))
}

// zplTraceSanitizer additionally drops the characters json.Marshal would
// backslash-escape (quotes and the HTML set), so the serialized payload
// itself stays free of ZPL control characters
var zplTraceSanitizer = strings.NewReplacer(
	"^", " ",
	"~", " ",
	"\\", " ",
	"\"", "'",
	"<", " ",
	">", " ",
	"&", " ",
	"\n", " ",
	"\r", " ",
	"\t", " ",
)

// traceFieldData serializes the trace payload with every text field
// sanitized first. The QR ^FD data is raw command-stream text like any
// other field, so a product name carrying ^ or ~ must never reach it.
func traceFieldData(label *labelformat.LabelData) string {
	clean := *label
	clean.LabelID = zplTraceSanitizer.Replace(clean.LabelID)
	clean.ProductName = zplTraceSanitizer.Replace(clean.ProductName)
	clean.PrepDate = zplTraceSanitizer.Replace(clean.PrepDate)
	clean.ExpiryDate = zplTraceSanitizer.Replace(clean.ExpiryDate)
	clean.BatchNumber = zplTraceSanitizer.Replace(clean.BatchNumber)
	clean.PreparedBy = zplTraceSanitizer.Replace(clean.PreparedBy)
	clean.OrganizationID = zplTraceSanitizer.Replace(clean.OrganizationID)
	return labelformat.TraceJSON(&clean)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
