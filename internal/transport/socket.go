package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"github.com/marciojunior91/food-safe-sync-sub001/internal/diag"
	"github.com/marciojunior91/food-safe-sync-sub001/internal/format"
)

// DefaultBridgePorts are the candidate ports the local bridging app may
// have bound, in most-likely-first order. Which one it actually took is
// not knowable in advance, so the prober walks them sequentially.
var DefaultBridgePorts = []int{9100, 9101, 9102, 9069}

// DefaultAttemptTimeout bounds one port attempt end to end
const DefaultAttemptTimeout = 10 * time.Second

// uncleanCloseRetries is how often the same port is retried after an
// unclean close before advancing, to absorb transient hiccups
const uncleanCloseRetries = 1

// ErrAllPortsFailed is the terminal error after every candidate bridge
// port has been exhausted
var ErrAllPortsFailed = errors.New("all bridge ports failed")

// troubleshooting is appended to the terminal failure so operators can
// self-serve before filing a ticket
const troubleshooting = `troubleshooting:
 1. Is the printer bridge app running on this machine?
 2. Is the printer powered on and attached to the bridge?
 3. Is a firewall blocking localhost WebSocket connections?
 4. Check the diagnostics log for the per-port error detail`

// SocketTransport reaches the printer through a local bridging process on
// one of several well-known WebSocket ports
type SocketTransport struct {
	host     string
	ports    []int
	protocol format.Protocol
	timeout  time.Duration
	diag     *diag.Log
	dialer   *websocket.Dialer
}

// NewSocketTransport creates a prober over the candidate port list
func NewSocketTransport(protocol format.Protocol, ports []int, log *diag.Log) *SocketTransport {
	if len(ports) == 0 {
		ports = DefaultBridgePorts
	}
	return &SocketTransport{
		host:     "127.0.0.1",
		ports:    ports,
		protocol: protocol,
		timeout:  DefaultAttemptTimeout,
		diag:     log,
		dialer: &websocket.Dialer{
			HandshakeTimeout: DefaultAttemptTimeout,
		},
	}
}

// SetTimeout overrides the per-attempt timeout (tests use a short one)
func (t *SocketTransport) SetTimeout(d time.Duration) {
	t.timeout = d
	t.dialer.HandshakeTimeout = d
}

// Connect is a no-op: the bridge connection is opened per send and closed
// after the acknowledgement
func (t *SocketTransport) Connect(ctx context.Context) error { return nil }

func (t *SocketTransport) Close() error { return nil }

func (t *SocketTransport) Connected() bool { return true }

func (t *SocketTransport) Describe() string {
	return fmt.Sprintf("local bridge %s %v", t.host, t.ports)
}

// Send probes the candidate ports strictly in priority order. A clean
// close after one acknowledgement is success; a timeout or unclean close
// advances to the next candidate. Every attempt lands in the diagnostics
// log tagged with its port.
func (t *SocketTransport) Send(ctx context.Context, payload []byte, copies int) error {
	data := format.WithCopies(t.protocol, payload, copies)

	var lastErr error
	for _, port := range t.ports {
		if err := ctx.Err(); err != nil {
			return err
		}

		attempts := 1 + uncleanCloseRetries
		for attempt := 0; attempt < attempts; attempt++ {
			err := t.sendToPort(ctx, port, data)
			if err == nil {
				t.diag.Log(diag.LevelSuccess, "payload delivered", "", port)
				return nil
			}

			lastErr = err
			t.diag.Log(diag.LevelError, "bridge attempt failed", err.Error(), port)

			// Only an unclean close earns a second try on the same port;
			// refused connections and timeouts advance immediately
			if !isUncleanClose(err) {
				break
			}
		}
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no candidate ports configured")
	}
	return fmt.Errorf("%w, last error: %v\n%s", ErrAllPortsFailed, lastErr, troubleshooting)
}

// uncleanCloseError marks a connection that opened but did not close with
// a proper acknowledgement
type uncleanCloseError struct{ err error }

func (e *uncleanCloseError) Error() string { return e.err.Error() }
func (e *uncleanCloseError) Unwrap() error { return e.err }

func isUncleanClose(err error) bool {
	var unclean *uncleanCloseError
	return errors.As(err, &unclean)
}

// sendToPort opens one bridge connection, delivers the payload with its
// copy directive, and waits for a single textual acknowledgement
func (t *SocketTransport) sendToPort(ctx context.Context, port int, data []byte) error {
	url := fmt.Sprintf("ws://%s:%d/", t.host, port)

	dialCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	conn, _, err := t.dialer.DialContext(dialCtx, url, nil)
	if err != nil {
		return fmt.Errorf("failed to reach bridge: %w", err)
	}
	defer conn.Close()

	conn.SetWriteDeadline(time.Now().Add(t.timeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return &uncleanCloseError{fmt.Errorf("write failed: %w", err)}
	}

	conn.SetReadDeadline(time.Now().Add(t.timeout))
	if _, _, err := conn.ReadMessage(); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure) {
			return &uncleanCloseError{fmt.Errorf("bridge closed without acknowledgement: %w", err)}
		}
		return fmt.Errorf("no acknowledgement from bridge: %w", err)
	}

	// Ack received; close cleanly
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))

	return nil
}
