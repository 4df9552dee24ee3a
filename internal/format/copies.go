package format

import (
	"bytes"
	"fmt"
)

// WithCopies appends the printer-native copy-count directive to a payload.
// ZPL takes a ^PQ quantity token inside the format; ESC/POS has no copies
// command, so the payload is repeated. Other protocols handle copies at the
// driver level and pass through unchanged.
func WithCopies(protocol Protocol, payload []byte, copies int) []byte {
	if copies < 1 {
		copies = 1
	}
	if copies == 1 {
		return payload
	}

	switch protocol {
	case ProtocolZPL:
		directive := []byte(fmt.Sprintf("^PQ%d,0,1,Y\n", copies))
		if idx := bytes.LastIndex(payload, []byte("^XZ")); idx >= 0 {
			out := make([]byte, 0, len(payload)+len(directive))
			out = append(out, payload[:idx]...)
			out = append(out, directive...)
			out = append(out, payload[idx:]...)
			return out
		}
		return append(payload, directive...)
	case ProtocolESCPOS:
		out := make([]byte, 0, len(payload)*copies)
		for i := 0; i < copies; i++ {
			out = append(out, payload...)
		}
		return out
	default:
		return payload
	}
}
