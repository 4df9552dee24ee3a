package format

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"strings"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/code128"
	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"github.com/skip2/go-qrcode"

	"github.com/marciojunior91/food-safe-sync-sub001/pkg/labelformat"
)

// expiry is rendered in a distinct warning color on visual output
var warningRed = color.RGBA{R: 0xC0, G: 0x26, B: 0x26, A: 0xFF}

// RasterRenderer draws a full visual label sized to the paper's physical
// aspect ratio. It backs both the PDF export path and the OS-spooler path,
// which guarantees the two look identical.
type RasterRenderer struct {
	Geometry Geometry
	Scale    int // render scale over device dots, for crisp text
}

// NewRasterRenderer creates a renderer for the given label stock
func NewRasterRenderer(geo Geometry) *RasterRenderer {
	return &RasterRenderer{Geometry: geo, Scale: 2}
}

func (r *RasterRenderer) Protocol() Protocol {
	return ProtocolRaster
}

// Generate renders the label and returns it PNG-encoded
func (r *RasterRenderer) Generate(label *labelformat.LabelData) []byte {
	img := r.Render(label)

	buf := new(bytes.Buffer)
	if err := png.Encode(buf, img); err != nil {
		// Encoding an in-memory RGBA image does not fail; keep the
		// generator total regardless
		return nil
	}
	return buf.Bytes()
}

// Render draws the label and returns the image. Missing optional fields
// degrade to omitted sections; Render never fails.
func (r *RasterRenderer) Render(label *labelformat.LabelData) image.Image {
	scale := r.Scale
	if scale < 1 {
		scale = 1
	}
	width := r.Geometry.WidthDots() * scale
	height := r.Geometry.HeightDots() * scale

	ctx := gg.NewContext(width, height)
	ctx.SetColor(color.White)
	ctx.Clear()

	margin := float64(8 * scale)
	y := 0.0

	// Header band with the product name
	bandHeight := float64(height) * 0.18
	ctx.SetColor(color.Black)
	ctx.DrawRectangle(0, 0, float64(width), bandHeight)
	ctx.Fill()

	ctx.SetColor(color.White)
	loadFontFace(ctx, float64(13*scale))
	ctx.DrawStringAnchored(label.ProductName, float64(width)/2, bandHeight/2, 0.5, 0.35)
	y = bandHeight + float64(4*scale)

	// Classification box: category + condition
	ctx.SetColor(color.Black)
	loadFontFace(ctx, float64(8*scale))
	ctx.DrawString(label.Category(), margin, y+float64(8*scale))
	y += float64(12 * scale)

	if label.Condition != "" {
		ctx.DrawString(strings.ToUpper(label.Condition), margin, y+float64(8*scale))
		y += float64(12 * scale)
	}

	// Boxed date section, expiry in the warning color
	boxTop := y
	boxWidth := float64(width) * 0.58
	loadFontFace(ctx, float64(8*scale))
	ctx.SetColor(color.Black)
	ctx.DrawString("Prep: "+label.PrepDate, margin+float64(4*scale), y+float64(10*scale))
	y += float64(12 * scale)

	ctx.SetColor(warningRed)
	loadFontFace(ctx, float64(9*scale))
	ctx.DrawString("USE BY: "+label.ExpiryDate, margin+float64(4*scale), y+float64(10*scale))
	y += float64(14 * scale)

	ctx.SetColor(color.Black)
	ctx.SetLineWidth(float64(scale))
	ctx.DrawRectangle(margin, boxTop, boxWidth, y-boxTop+float64(2*scale))
	ctx.Stroke()
	y += float64(6 * scale)

	// Allergen warning box
	if names := label.AllergenNames(); len(names) > 0 {
		line := "ALLERGENS: " + strings.Join(names, ", ")
		loadFontFace(ctx, float64(7*scale))
		boxTop := y
		ctx.DrawString(line, margin+float64(4*scale), y+float64(9*scale))
		y += float64(12 * scale)
		ctx.DrawRectangle(margin, boxTop, float64(width)-2*margin, y-boxTop)
		ctx.Stroke()
		y += float64(4 * scale)
	}

	loadFontFace(ctx, float64(7*scale))
	if label.PreparedByName != "" {
		ctx.DrawString("By: "+label.PreparedByName, margin, y+float64(8*scale))
		y += float64(10 * scale)
	}
	if label.BatchNumber != "" {
		ctx.DrawString("Batch: "+label.BatchNumber, margin, y+float64(8*scale))
		y += float64(10 * scale)
	}

	// Organization footer: name and registration on the first line,
	// address lines below, anchored so the last line sits at the bottom
	// margin. Unparseable address JSON degrades to the raw string inside
	// AddressLines.
	if org := label.Organization; org != nil && org.Name != "" {
		footer := org.Name
		if org.FoodSafetyRegistration != "" {
			footer += "  Reg: " + org.FoodSafetyRegistration
		}
		lines := append([]string{footer}, org.AddressLines()...)

		loadFontFace(ctx, float64(6*scale))
		lineH := float64(7 * scale)
		fy := float64(height) - float64(4*scale) - lineH*float64(len(lines)-1)
		for _, line := range lines {
			ctx.DrawString(line, margin, fy)
			fy += lineH
		}
	}

	// Trace QR, bottom-right
	qrSize := int(float64(height) * 0.42)
	if qrImg := traceQR(label, qrSize); qrImg != nil {
		ctx.DrawImage(qrImg, width-qrSize-int(margin), height-qrSize-int(margin))
	}

	// Batch barcode next to the QR when there is room
	if label.BatchNumber != "" {
		if bcImg := batchBarcode(label.BatchNumber, int(boxWidth), int(float64(12*scale))); bcImg != nil {
			ctx.DrawImage(bcImg, int(margin), height-bcImg.Bounds().Dy()-int(margin)-int(float64(8*scale)))
		}
	}

	return ctx.Image()
}

func traceQR(label *labelformat.LabelData, size int) image.Image {
	qr, err := qrcode.New(labelformat.TraceJSON(label), qrcode.Medium)
	if err != nil {
		return nil
	}
	return qr.Image(size)
}

func batchBarcode(batch string, width, height int) image.Image {
	code, err := code128.Encode(batch)
	if err != nil {
		return nil
	}
	scaled, err := barcode.Scale(code, width, height)
	if err != nil {
		return nil
	}
	return scaled
}

// ScaleToWidth resizes a rendered label for a target device width
func ScaleToWidth(img image.Image, width int) image.Image {
	if img.Bounds().Dx() == width {
		return img
	}
	return imaging.Resize(img, width, 0, imaging.Lanczos)
}

// loadFontFace tries the usual system fonts; if none load, gg falls back
// to its built-in face
func loadFontFace(ctx *gg.Context, size float64) {
	fontPaths := []string{
		"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
		"/usr/share/fonts/truetype/liberation/LiberationSans-Regular.ttf",
		"/System/Library/Fonts/Supplemental/Arial.ttf",
		"C:\\Windows\\Fonts\\arial.ttf",
	}

	for _, path := range fontPaths {
		if _, err := os.Stat(path); err == nil {
			if err := ctx.LoadFontFace(path, size); err == nil {
				return
			}
		}
	}
}
