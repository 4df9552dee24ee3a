// Package format contains the pure payload generators: label data in,
// device-specific command bytes out. Generators perform no I/O and never
// fail on missing optional fields.
package format

import (
	"github.com/marciojunior91/food-safe-sync-sub001/pkg/labelformat"
)

// Protocol identifies the wire format a generator emits
type Protocol string

const (
	ProtocolZPL    Protocol = "zpl"
	ProtocolESCPOS Protocol = "escpos"
	ProtocolRaster Protocol = "raster"
)

// Generator converts one label into a device payload
type Generator interface {
	Generate(label *labelformat.LabelData) []byte
	Protocol() Protocol
}

// Geometry describes the physical label stock
type Geometry struct {
	WidthMM  int
	HeightMM int
	DPMM     int // dots per millimetre (8 = 203dpi class hardware)
}

// DefaultGeometry is 56x31mm stock on 203dpi hardware
func DefaultGeometry() Geometry {
	return Geometry{WidthMM: 56, HeightMM: 31, DPMM: 8}
}

// WidthDots returns the printable width in dots
func (g Geometry) WidthDots() int {
	return g.WidthMM * g.DPMM
}

// HeightDots returns the label height in dots
func (g Geometry) HeightDots() int {
	return g.HeightMM * g.DPMM
}
