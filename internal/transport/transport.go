// Package transport owns the connection lifecycle to each print channel:
// Bluetooth LE, the local WebSocket bridge, serial, USB, the OS spooler,
// and PDF file export. Drivers push generated payloads through their
// channel with channel-specific chunking and timeout behavior.
package transport

import (
	"context"
	"errors"
)

// Transport is one physical or virtual print channel
type Transport interface {
	// Connect establishes the channel. Stateless channels treat this as a
	// no-op and report Connected() == true.
	Connect(ctx context.Context) error
	Close() error
	Connected() bool

	// Send delivers one payload with the given copy count. Drivers either
	// embed a native copy directive or repeat the payload themselves.
	Send(ctx context.Context, payload []byte, copies int) error

	// Describe names the channel for status and diagnostics output
	Describe() string
}

// BatchSender is implemented by channels that can take a whole batch in
// one operation (PDF export, OS spooler), so the host facility is invoked
// once per batch instead of once per label.
type BatchSender interface {
	SendBatch(ctx context.Context, payloads [][]byte) error
}

// ErrNotConnected is returned when a send is attempted on a channel that
// could not be (re)established
var ErrNotConnected = errors.New("printer not connected")
