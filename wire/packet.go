// Package wire implements the fixed 18-byte header framing used by every
// datagram on the wire: encoding, decoding, and the CRC32 integrity check.
// The accessor style (a byte slice cast to a named type, with field offsets
// as untyped constants) follows the teacher's header package.
package wire

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/quietport/rft/types"
)

// Type identifies the kind of packet carried by a header.
type Type uint8

// The four packet types defined by the protocol.
const (
	TypeREQ  Type = 0
	TypeDATA Type = 1
	TypeACK  Type = 2
	TypeERR  Type = 3
)

func (t Type) String() string {
	switch t {
	case TypeREQ:
		return "REQ"
	case TypeDATA:
		return "DATA"
	case TypeACK:
		return "ACK"
	case TypeERR:
		return "ERR"
	default:
		return fmt.Sprintf("Type(%d)", uint8(t))
	}
}

// FlagLast marks the final segment of a transfer.
const FlagLast uint8 = 1 << 0

// Magic is the constant that rejects foreign traffic. It is a weak
// discriminator by design and must not change: it exists for wire
// compatibility, per the protocol's design notes.
const Magic uint16 = 0x0000

// HeaderSize is the fixed size of the header preceding every payload.
const HeaderSize = 18

// MaxPayload is the recommended maximum payload size used by the segmenter
// when slicing a file. The codec itself accepts packets up to MaxPacketSize
// on decode, independent of this constant.
const MaxPayload = 1024

// MaxPacketSize is the largest packet decode will accept: the header plus
// the largest payload_len representable in the 16-bit field.
const MaxPacketSize = HeaderSize + 0xFFFF

// field offsets within the 18-byte header.
const (
	offMagic      = 0
	offType       = 2
	offSeqNum     = 3
	offPayloadLen = 7
	offTotalSegs  = 9
	offFlags      = 13
	offChecksum   = 14
)

// Header holds the parsed fields of a packet header.
type Header struct {
	Type       Type
	SeqNum     uint32
	TotalSegs  uint32
	Flags      uint8
	PayloadLen uint16
}

// Last reports whether the LAST flag is set.
func (h Header) Last() bool {
	return h.Flags&FlagLast != 0
}

// Encode serialises h and payload into a single buffer: the header is
// written with checksum zeroed, the CRC32 of header||payload is computed,
// and the checksum field is overwritten in place.
func Encode(h Header, payload []byte) ([]byte, error) {
	if len(payload) > 0xFFFF {
		return nil, types.ErrPayloadTooLarge
	}
	h.PayloadLen = uint16(len(payload))

	buf := make([]byte, HeaderSize+len(payload))
	putHeader(buf, h, 0)
	copy(buf[HeaderSize:], payload)

	sum := crc32.ChecksumIEEE(buf)
	binary.BigEndian.PutUint32(buf[offChecksum:], sum)

	return buf, nil
}

// Decode parses a raw datagram into its header and payload. It validates
// magic, checksum and structural invariants (payload_len matches the actual
// trailing bytes) but does not validate seq_num against total_segs — that is
// the caller's responsibility, since REQ/ACK packets carry total_segs == 0.
func Decode(buf []byte) (Header, []byte, error) {
	if len(buf) < HeaderSize {
		return Header{}, nil, types.ErrTruncated
	}
	if len(buf) > MaxPacketSize {
		return Header{}, nil, types.ErrPayloadTooLarge
	}

	magic := binary.BigEndian.Uint16(buf[offMagic:])
	if magic != Magic {
		return Header{}, nil, types.ErrBadMagic
	}

	h := getHeader(buf)
	payload := buf[HeaderSize:]
	if int(h.PayloadLen) != len(payload) {
		return Header{}, nil, types.ErrTruncated
	}

	working := make([]byte, len(buf))
	copy(working, buf)
	binary.BigEndian.PutUint32(working[offChecksum:], 0)
	sum := crc32.ChecksumIEEE(working)

	wantSum := binary.BigEndian.Uint32(buf[offChecksum:])
	if sum != wantSum {
		return Header{}, nil, types.ErrChecksumMismatch
	}

	return h, payload, nil
}

// putHeader writes h's fields into buf starting at off, with the checksum
// field left zeroed (the caller fills it in after hashing).
func putHeader(buf []byte, h Header, off int) {
	binary.BigEndian.PutUint16(buf[off+offMagic:], Magic)
	buf[off+offType] = byte(h.Type)
	binary.BigEndian.PutUint32(buf[off+offSeqNum:], h.SeqNum)
	binary.BigEndian.PutUint16(buf[off+offPayloadLen:], h.PayloadLen)
	binary.BigEndian.PutUint32(buf[off+offTotalSegs:], h.TotalSegs)
	buf[off+offFlags] = h.Flags
	binary.BigEndian.PutUint32(buf[off+offChecksum:], 0)
}

// getHeader reads the header fields out of buf, which must be at least
// HeaderSize bytes.
func getHeader(buf []byte) Header {
	return Header{
		Type:       Type(buf[offType]),
		SeqNum:     binary.BigEndian.Uint32(buf[offSeqNum:]),
		PayloadLen: binary.BigEndian.Uint16(buf[offPayloadLen:]),
		TotalSegs:  binary.BigEndian.Uint32(buf[offTotalSegs:]),
		Flags:      buf[offFlags],
	}
}
