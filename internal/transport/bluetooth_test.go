package transport

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/marciojunior91/food-safe-sync-sub001/internal/format"
)

// fakeConn records chunk writes and can be told to fail
type fakeConn struct {
	chunks [][]byte
	failAt int // fail on the nth write (1-based), 0 = never
	writes int
	closed bool
}

func (c *fakeConn) Write(p []byte) error {
	c.writes++
	if c.failAt != 0 && c.writes >= c.failAt {
		return fmt.Errorf("gatt write rejected")
	}
	chunk := make([]byte, len(p))
	copy(chunk, p)
	c.chunks = append(c.chunks, chunk)
	return nil
}

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

type fakePeripheral struct {
	name string
	conn *fakeConn
}

func (p *fakePeripheral) Name() string { return p.name }
func (p *fakePeripheral) Connect(ctx context.Context) (GATTConn, error) {
	return p.conn, nil
}

type fakeChooser struct {
	peripheral *fakePeripheral
	err        error
	calls      int
}

func (c *fakeChooser) Choose(ctx context.Context, filters []string) (Peripheral, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return c.peripheral, nil
}

func newBT(t *testing.T, name string, conn *fakeConn) (*BluetoothTransport, *fakeChooser) {
	t.Helper()
	chooser := &fakeChooser{peripheral: &fakePeripheral{name: name, conn: conn}}
	bt := NewBluetoothTransport(chooser, newTestDiag(t))
	bt.SetChunkDelay(0)
	return bt, chooser
}

func TestBluetoothSend_ChunksToMTU(t *testing.T) {
	conn := &fakeConn{}
	bt, _ := newBT(t, "Zebra ZQ320", conn)

	payload := bytes.Repeat([]byte{0xAB}, MaxChunkSize*2+100)
	if err := bt.Send(context.Background(), payload, 1); err != nil {
		t.Fatal(err)
	}

	if len(conn.chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(conn.chunks))
	}
	if len(conn.chunks[0]) != MaxChunkSize || len(conn.chunks[2]) != 100 {
		t.Errorf("unexpected chunk sizes: %d, %d, %d",
			len(conn.chunks[0]), len(conn.chunks[1]), len(conn.chunks[2]))
	}

	// Reassembled stream must equal the payload
	if !bytes.Equal(bytes.Join(conn.chunks, nil), payload) {
		t.Error("chunked stream does not reassemble to the payload")
	}
}

func TestBluetoothSend_LazyConnect(t *testing.T) {
	conn := &fakeConn{}
	bt, chooser := newBT(t, "Zebra ZQ320", conn)

	if bt.State() != BTDisconnected {
		t.Fatalf("expected disconnected before first send, got %s", bt.State())
	}

	if err := bt.Send(context.Background(), []byte("data"), 1); err != nil {
		t.Fatal(err)
	}
	if chooser.calls != 1 {
		t.Errorf("expected one chooser invocation, got %d", chooser.calls)
	}
	if bt.State() != BTReady {
		t.Errorf("expected ready after send, got %s", bt.State())
	}

	// Second send reuses the established connection
	if err := bt.Send(context.Background(), []byte("more"), 1); err != nil {
		t.Fatal(err)
	}
	if chooser.calls != 1 {
		t.Errorf("connected driver must not re-run the chooser, got %d calls", chooser.calls)
	}
}

func TestBluetoothSend_WriteFailureResetsToDisconnected(t *testing.T) {
	conn := &fakeConn{failAt: 1}
	bt, chooser := newBT(t, "Zebra ZQ320", conn)

	if err := bt.Send(context.Background(), []byte("data"), 1); err == nil {
		t.Fatal("expected write failure to surface")
	}
	if bt.State() != BTDisconnected {
		t.Errorf("expected reset to disconnected, got %s", bt.State())
	}
	if !conn.closed {
		t.Error("failed connection must be closed")
	}

	// Next send re-establishes on demand
	chooser.peripheral.conn = &fakeConn{}
	if err := bt.Send(context.Background(), []byte("data"), 1); err != nil {
		t.Fatalf("expected reconnect on next send, got %v", err)
	}
	if chooser.calls != 2 {
		t.Errorf("expected chooser re-run after reset, got %d calls", chooser.calls)
	}
}

func TestBluetoothProtocolDetection(t *testing.T) {
	cases := []struct {
		device string
		want   format.Protocol
	}{
		{"Zebra ZQ320", format.ProtocolZPL},
		{"ZD410-Kitchen", format.ProtocolZPL},
		{"Epson TM-P80", format.ProtocolESCPOS},
		{"MTP-3 Mini", format.ProtocolESCPOS},
		{"Mystery Device", format.ProtocolZPL}, // ambiguous defaults to ZPL
	}

	for _, tc := range cases {
		bt, _ := newBT(t, tc.device, &fakeConn{})
		if err := bt.Connect(context.Background()); err != nil {
			t.Fatalf("%s: %v", tc.device, err)
		}
		if got := bt.DetectedProtocol(); got != tc.want {
			t.Errorf("%s: expected %s, got %s", tc.device, tc.want, got)
		}
	}
}

func TestBluetoothSend_CopiesRepeatPayload(t *testing.T) {
	conn := &fakeConn{}
	bt, _ := newBT(t, "Zebra ZQ320", conn)

	if err := bt.Send(context.Background(), []byte("label"), 3); err != nil {
		t.Fatal(err)
	}
	if len(conn.chunks) != 3 {
		t.Errorf("expected payload repeated per copy, got %d writes", len(conn.chunks))
	}
}

func TestBluetoothConnect_ChooserFailure(t *testing.T) {
	chooser := &fakeChooser{err: fmt.Errorf("user cancelled")}
	bt := NewBluetoothTransport(chooser, newTestDiag(t))

	if err := bt.Connect(context.Background()); err == nil {
		t.Fatal("expected chooser failure to surface")
	}
	if bt.State() != BTDisconnected {
		t.Errorf("expected disconnected after chooser failure, got %s", bt.State())
	}
}
