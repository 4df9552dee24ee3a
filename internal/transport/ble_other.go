//go:build !linux

package transport

import (
	"context"
	"fmt"
)

// BLEChooser is only backed by an HCI implementation on Linux; elsewhere
// choosing always fails and callers fall back to another channel
type BLEChooser struct{}

func NewBLEChooser() *BLEChooser {
	return &BLEChooser{}
}

func (c *BLEChooser) Choose(ctx context.Context, filters []string) (Peripheral, error) {
	return nil, fmt.Errorf("bluetooth is not supported on this platform")
}
