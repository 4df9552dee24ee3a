package transport

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/marciojunior91/food-safe-sync-sub001/internal/diag"
	"github.com/marciojunior91/food-safe-sync-sub001/internal/format"
)

var upgrader = websocket.Upgrader{}

// startBridge runs a fake bridging app that reads one payload and answers
// with an acknowledgement
func startBridge(t *testing.T, received *[][]byte) int {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if received != nil {
			*received = append(*received, data)
		}
		conn.WriteMessage(websocket.TextMessage, []byte("OK"))
	}))
	t.Cleanup(srv.Close)

	return serverPort(t, srv)
}

// startSlammingBridge accepts the websocket and drops it without an ack
func startSlammingBridge(t *testing.T, hits *int) int {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		if hits != nil {
			*hits++
		}
		conn.ReadMessage()
		conn.Close() // no ack, unclean from the client's point of view
	}))
	t.Cleanup(srv.Close)

	return serverPort(t, srv)
}

func serverPort(t *testing.T, srv *httptest.Server) int {
	t.Helper()
	_, portStr, err := net.SplitHostPort(strings.TrimPrefix(srv.URL, "http://"))
	if err != nil {
		t.Fatalf("could not parse server port: %v", err)
	}
	port, _ := strconv.Atoi(portStr)
	return port
}

// deadPort returns a port with nothing listening on it
func deadPort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()
	return port
}

func newTestDiag(t *testing.T) *diag.Log {
	t.Helper()
	l, err := diag.New(filepath.Join(t.TempDir(), "diag.json"))
	if err != nil {
		t.Fatal(err)
	}
	return l
}

func TestSocketSend_PortFallbackOrder(t *testing.T) {
	var received [][]byte
	dead1 := deadPort(t)
	dead2 := deadPort(t)
	good := startBridge(t, &received)

	log := newTestDiag(t)
	tr := NewSocketTransport(format.ProtocolZPL, []int{dead1, dead2, good}, log)
	tr.SetTimeout(2 * time.Second)

	err := tr.Send(context.Background(), []byte("^XA^FDx^FS^XZ"), 1)
	if err != nil {
		t.Fatalf("expected success on third port, got %v", err)
	}
	if len(received) != 1 {
		t.Fatalf("expected exactly one delivery, got %d", len(received))
	}

	// All three attempts must be in the diagnostics trail, port-tagged,
	// in probe order
	entries := log.Entries()
	if len(entries) != 3 {
		t.Fatalf("expected 3 diagnostic entries, got %d", len(entries))
	}
	wantPorts := []int{dead1, dead2, good}
	for i, e := range entries {
		if e.Port != wantPorts[i] {
			t.Errorf("entry %d: expected port %d, got %d", i, wantPorts[i], e.Port)
		}
	}
	if entries[2].Level != diag.LevelSuccess {
		t.Errorf("expected final entry to be success, got %s", entries[2].Level)
	}
}

func TestSocketSend_AllPortsExhausted(t *testing.T) {
	tr := NewSocketTransport(format.ProtocolZPL, []int{deadPort(t), deadPort(t)}, newTestDiag(t))
	tr.SetTimeout(time.Second)

	err := tr.Send(context.Background(), []byte("^XA^XZ"), 1)
	if !errors.Is(err, ErrAllPortsFailed) {
		t.Fatalf("expected ErrAllPortsFailed when all ports are dead, got %v", err)
	}
	if !strings.Contains(err.Error(), "troubleshooting") {
		t.Errorf("terminal error should carry the troubleshooting checklist, got: %v", err)
	}
}

func TestSocketSend_UncleanCloseRetriesSamePortOnce(t *testing.T) {
	hits := 0
	bad := startSlammingBridge(t, &hits)
	var received [][]byte
	good := startBridge(t, &received)

	tr := NewSocketTransport(format.ProtocolZPL, []int{bad, good}, newTestDiag(t))
	tr.SetTimeout(2 * time.Second)

	if err := tr.Send(context.Background(), []byte("^XA^XZ"), 1); err != nil {
		t.Fatalf("expected fallback to succeed, got %v", err)
	}
	if hits != 2 {
		t.Errorf("expected unclean-close port to be tried twice, got %d", hits)
	}
	if len(received) != 1 {
		t.Errorf("expected delivery on the good port")
	}
}

func TestSocketSend_AppendsCopyDirective(t *testing.T) {
	var received [][]byte
	good := startBridge(t, &received)

	tr := NewSocketTransport(format.ProtocolZPL, []int{good}, newTestDiag(t))
	tr.SetTimeout(2 * time.Second)

	if err := tr.Send(context.Background(), []byte("^XA^FDx^FS^XZ"), 4); err != nil {
		t.Fatal(err)
	}
	if len(received) != 1 {
		t.Fatalf("expected one message, got %d", len(received))
	}
	if !strings.Contains(string(received[0]), "^PQ4") {
		t.Errorf("expected ^PQ4 copy directive in wire payload: %s", received[0])
	}
}

func TestSocketTransport_StatelessConnection(t *testing.T) {
	tr := NewSocketTransport(format.ProtocolZPL, nil, newTestDiag(t))

	if !tr.Connected() {
		t.Error("socket transport is stateless and always reports connected")
	}
	if err := tr.Connect(context.Background()); err != nil {
		t.Errorf("Connect must be a no-op, got %v", err)
	}
}
