// Package segment implements the segmenter and reassembler described in the
// protocol: splitting a byte stream into sequence-numbered, size-bounded
// segments on the sender side, and idempotently reassembling them into the
// original stream on the receiver side. The segment record shape follows
// the teacher's transport/tcp segment type, simplified for a protocol
// without a sliding window: here every segment is independently
// identified and acknowledged by its sequence number alone.
package segment

import (
	"io"

	"github.com/quietport/rft/wire"
)

// Segmenter slices a random-access byte source into wire.MaxPayload-sized
// segments.
type Segmenter struct {
	src       io.ReaderAt
	size      int64
	totalSegs uint32
}

// NewSegmenter creates a Segmenter over src, which holds size bytes.
func NewSegmenter(src io.ReaderAt, size int64) *Segmenter {
	return &Segmenter{
		src:       src,
		size:      size,
		totalSegs: TotalSegs(size),
	}
}

// TotalSegs computes ceil(size / MaxPayload), with the convention that a
// zero-byte stream still produces exactly one (empty) segment.
func TotalSegs(size int64) uint32 {
	if size == 0 {
		return 1
	}
	return uint32((size + wire.MaxPayload - 1) / wire.MaxPayload)
}

// TotalSegs returns the total number of segments this source will produce.
func (s *Segmenter) TotalSegs() uint32 {
	return s.totalSegs
}

// Segment returns the payload and LAST flag for segment seq, which must
// satisfy seq < TotalSegs().
func (s *Segmenter) Segment(seq uint32) (payload []byte, last bool, err error) {
	if seq >= s.totalSegs {
		return nil, false, io.EOF
	}

	start := int64(seq) * wire.MaxPayload
	end := start + wire.MaxPayload
	if end > s.size {
		end = s.size
	}

	n := end - start
	buf := make([]byte, n)
	if n > 0 {
		if _, err := s.src.ReadAt(buf, start); err != nil && err != io.EOF {
			return nil, false, err
		}
	}

	return buf, seq == s.totalSegs-1, nil
}
