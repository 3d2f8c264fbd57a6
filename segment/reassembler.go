package segment

import (
	"io"
	"sort"
	"sync"

	"github.com/quietport/rft/buffer"
	"github.com/quietport/rft/types"
)

// Reassembler accepts (seq, payload) pairs idempotently and, once every
// sequence in [0, totalSegs) has been stored, can write out the original
// byte stream in order.
type Reassembler struct {
	mu        sync.Mutex
	totalSegs uint32 // 0 until known
	have      map[uint32]buffer.View
}

// NewReassembler creates an empty reassembler. totalSegs is not known until
// the first segment is learned via SetTotalSegs.
func NewReassembler() *Reassembler {
	return &Reassembler{have: make(map[uint32]buffer.View)}
}

// SetTotalSegs records the transfer size once it is learned from the first
// DATA packet. Calling it more than once with the same value is a no-op;
// conflicting values are ignored, since total_segs is supposed to be
// constant for the lifetime of a transfer and spec.md has no defined
// behaviour for a sender that changes it mid-flight.
func (r *Reassembler) SetTotalSegs(n uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.totalSegs == 0 {
		r.totalSegs = n
	}
}

// TotalSegs returns the known total segment count, or 0 if not yet known.
func (r *Reassembler) TotalSegs() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.totalSegs
}

// Insert stores payload at seq. A duplicate insert with identical bytes is
// ignored. A duplicate insert with differing bytes returns
// types.ErrInconsistentPayload, which is fatal to the transfer. Once
// totalSegs is known, a seq outside [0, totalSegs) is ignored. Insert
// reports whether this call newly filled seq (false for a duplicate).
func (r *Reassembler) Insert(seq uint32, payload []byte) (filled bool, err error) {
	v := buffer.NewViewFromBytes(payload)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.totalSegs > 0 && seq >= r.totalSegs {
		return false, nil
	}

	if existing, ok := r.have[seq]; ok {
		if !existing.Equal(v) {
			return false, types.ErrInconsistentPayload
		}
		return false, nil
	}

	r.have[seq] = v
	return true, nil
}

// Complete reports whether every sequence in [0, totalSegs) has been
// stored. It is always false while totalSegs is unknown.
func (r *Reassembler) Complete() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.completeLocked()
}

func (r *Reassembler) completeLocked() bool {
	return r.totalSegs > 0 && len(r.have) >= int(r.totalSegs)
}

// FilledCount returns the number of distinct sequences stored so far, for
// progress reporting.
func (r *Reassembler) FilledCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.have)
}

// Missing returns the ordered set of sequence numbers in [0, totalSegs) not
// yet stored. It returns nil while totalSegs is unknown.
func (r *Reassembler) Missing() []uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.totalSegs == 0 {
		return nil
	}

	missing := make([]uint32, 0, int(r.totalSegs)-len(r.have))
	for seq := uint32(0); seq < r.totalSegs; seq++ {
		if _, ok := r.have[seq]; !ok {
			missing = append(missing, seq)
		}
	}
	return missing
}

// WriteTo writes the reassembled stream, in sequence order, to w. It
// returns an error if the reassembly is not yet complete.
func (r *Reassembler) WriteTo(w io.Writer) (int64, error) {
	r.mu.Lock()
	if !r.completeLocked() {
		r.mu.Unlock()
		return 0, io.ErrUnexpectedEOF
	}
	seqs := make([]uint32, 0, len(r.have))
	for seq := range r.have {
		seqs = append(seqs, seq)
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
	views := make([]buffer.View, len(seqs))
	for i, seq := range seqs {
		views[i] = r.have[seq]
	}
	r.mu.Unlock()

	var written int64
	for _, v := range views {
		n, err := w.Write(v)
		written += int64(n)
		if err != nil {
			return written, err
		}
	}
	return written, nil
}
