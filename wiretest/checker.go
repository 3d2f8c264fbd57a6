// Package wiretest provides composable assertion helpers for decoded
// packets, in the functional-checker style of the teacher's checker
// package: Packet(t, buf, checkers...) decodes buf once and runs each
// checker against the result, so tests read as a list of properties rather
// than a wall of field-by-field comparisons.
package wiretest

import (
	"testing"

	"github.com/quietport/rft/wire"
)

// Checker checks a property of a decoded packet.
type Checker func(t *testing.T, h wire.Header, payload []byte)

// Packet decodes buf and runs every checker against the result. It fails
// fatally if buf does not decode at all.
func Packet(t *testing.T, buf []byte, checkers ...Checker) {
	t.Helper()

	h, payload, err := wire.Decode(buf)
	if err != nil {
		t.Fatalf("wiretest.Packet: decode failed: %v", err)
	}
	for _, c := range checkers {
		c(t, h, payload)
	}
}

// TypeIs checks the packet's type.
func TypeIs(want wire.Type) Checker {
	return func(t *testing.T, h wire.Header, _ []byte) {
		t.Helper()
		if h.Type != want {
			t.Fatalf("bad type, got %v, want %v", h.Type, want)
		}
	}
}

// SeqNum checks the packet's sequence number.
func SeqNum(want uint32) Checker {
	return func(t *testing.T, h wire.Header, _ []byte) {
		t.Helper()
		if h.SeqNum != want {
			t.Fatalf("bad seq_num, got %d, want %d", h.SeqNum, want)
		}
	}
}

// TotalSegs checks the packet's total_segs field.
func TotalSegs(want uint32) Checker {
	return func(t *testing.T, h wire.Header, _ []byte) {
		t.Helper()
		if h.TotalSegs != want {
			t.Fatalf("bad total_segs, got %d, want %d", h.TotalSegs, want)
		}
	}
}

// Last checks whether the LAST flag is set.
func Last(want bool) Checker {
	return func(t *testing.T, h wire.Header, _ []byte) {
		t.Helper()
		if got := h.Last(); got != want {
			t.Fatalf("bad LAST flag, got %v, want %v", got, want)
		}
	}
}

// PayloadLen checks the payload length.
func PayloadLen(want int) Checker {
	return func(t *testing.T, _ wire.Header, payload []byte) {
		t.Helper()
		if len(payload) != want {
			t.Fatalf("bad payload length, got %d, want %d", len(payload), want)
		}
	}
}

// PayloadEqual checks the payload is byte-identical to want.
func PayloadEqual(want []byte) Checker {
	return func(t *testing.T, _ wire.Header, payload []byte) {
		t.Helper()
		if len(payload) != len(want) {
			t.Fatalf("payload length mismatch, got %d, want %d", len(payload), len(want))
		}
		for i := range want {
			if payload[i] != want[i] {
				t.Fatalf("payload differs at byte %d: got %#x, want %#x", i, payload[i], want[i])
			}
		}
	}
}
