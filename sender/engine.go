// Package sender implements the server-side sender engine: pipelined
// initial transmission, timeout-driven retransmission, RESEND handling, and
// the terminal LAST/linger handshake. The outstanding-segment bookkeeping
// follows the teacher's sender (transport/tcp/snd.go) in spirit — tracking
// send timestamps and retry counts per segment — simplified from a sliding
// congestion window to the fixed retransmit-timer model this protocol uses.
package sender

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/quietport/rft/ilist"
	"github.com/quietport/rft/metrics"
	"github.com/quietport/rft/segment"
	"github.com/quietport/rft/types"
	"github.com/quietport/rft/wire"
)

// Defaults per the protocol; Options lets callers override them (e.g. for
// faster tests), but the relative ordering the properties depend on always
// holds regardless of the exact values chosen.
const (
	DefaultRetransmitTimeout = 500 * time.Millisecond
	DefaultMaxRetries        = 10
	DefaultLingerWindow      = 5 * time.Second
	// DefaultBurstSize caps how many segments the initial pipelined send
	// writes before pausing, so a naive kernel UDP buffer on loopback
	// doesn't drop the whole burst (design note in spec.md §9).
	DefaultBurstSize = 64
	burstPause       = 2 * time.Millisecond
)

// SendFunc transmits one already-encoded packet. It is the engine's only
// dependency on the transport; callers bind it to a UDP socket and a fixed
// remote address.
type SendFunc func(packet []byte) error

// Options configures an Engine's timing. The zero value selects the
// protocol defaults.
type Options struct {
	RetransmitTimeout time.Duration
	MaxRetries        int
	LingerWindow      time.Duration
	BurstSize         int
}

func (o Options) withDefaults() Options {
	if o.RetransmitTimeout <= 0 {
		o.RetransmitTimeout = DefaultRetransmitTimeout
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.LingerWindow <= 0 {
		o.LingerWindow = DefaultLingerWindow
	}
	if o.BurstSize <= 0 {
		o.BurstSize = DefaultBurstSize
	}
	return o
}

// entry tracks one unacknowledged segment. It is kept both in outstanding
// (for O(1) ack/resend lookup) and in order (for the oldest-first
// retransmit scan); every retransmit moves it to the back of order,
// keeping the list sorted by lastSent ascending.
type entry struct {
	ilist.Entry
	seq      uint32
	lastSent time.Time
	retries  int
}

// Engine is a server-side sender for one transfer.
type Engine struct {
	seg  *segment.Segmenter
	send SendFunc
	opts Options
	log  *logrus.Entry
	reg  *metrics.Registry

	mu          sync.Mutex
	outstanding map[uint32]*entry
	order       ilist.List
	lastSegSent bool
	lingerUntil time.Time
	closed      bool
	doneCh      chan error
}

// New creates an Engine that will send seg's segments using send.
func New(seg *segment.Segmenter, send SendFunc, opts Options, log *logrus.Entry, reg *metrics.Registry) *Engine {
	return &Engine{
		seg:         seg,
		send:        send,
		opts:        opts.withDefaults(),
		log:         log,
		reg:         reg,
		outstanding: make(map[uint32]*entry),
		doneCh:      make(chan error, 1),
	}
}

// Done returns a channel that receives exactly one value when the session
// ends: nil on clean completion, or a *types.Error (ErrPeerUnreachable,
// ErrIncompleteDelivery) on failure.
func (e *Engine) Done() <-chan error {
	return e.doneCh
}

// Start transmits every segment once, in seq order, without waiting for
// ACKs (the pipelined send spec.md §4.3 requires), in bursts of
// opts.BurstSize to avoid overrunning a loopback socket buffer.
func (e *Engine) Start() error {
	total := e.seg.TotalSegs()
	now := time.Now()

	e.mu.Lock()
	for seq := uint32(0); seq < total; seq++ {
		if err := e.transmitLocked(seq, now); err != nil {
			e.mu.Unlock()
			return err
		}
		if (seq+1)%uint32(e.opts.BurstSize) == 0 && seq+1 < total {
			e.mu.Unlock()
			time.Sleep(burstPause)
			e.mu.Lock()
			now = time.Now()
		}
	}
	e.mu.Unlock()

	e.log.WithField("total_segs", total).Debug("sender: initial pipelined send complete")
	return nil
}

// transmitLocked sends segment seq and records it as outstanding. Caller
// holds e.mu.
func (e *Engine) transmitLocked(seq uint32, now time.Time) error {
	payload, last, err := e.seg.Segment(seq)
	if err != nil {
		return err
	}

	flags := uint8(0)
	if last {
		flags = wire.FlagLast
	}
	pkt, err := wire.Encode(wire.Header{
		Type:      wire.TypeDATA,
		SeqNum:    seq,
		TotalSegs: e.seg.TotalSegs(),
		Flags:     flags,
	}, payload)
	if err != nil {
		return err
	}

	if err := e.send(pkt); err != nil {
		return err
	}
	if e.reg != nil {
		e.reg.SegmentsSent.Inc()
	}

	if ent, ok := e.outstanding[seq]; ok {
		e.order.Remove(ent)
		ent.lastSent = now
		e.order.PushBack(ent)
	} else {
		ent := &entry{seq: seq, lastSent: now}
		e.outstanding[seq] = ent
		e.order.PushBack(ent)
	}

	if last {
		e.lastSegSent = true
		if e.lingerUntil.IsZero() {
			e.lingerUntil = now.Add(e.opts.LingerWindow)
		}
	}
	return nil
}

// OnAck removes seq from the unacknowledged set. Out-of-order and duplicate
// ACKs (for a seq no longer outstanding) are harmless no-ops.
func (e *Engine) OnAck(seq uint32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}

	ent, ok := e.outstanding[seq]
	if !ok {
		return
	}
	e.order.Remove(ent)
	delete(e.outstanding, seq)
	if e.reg != nil {
		e.reg.SegmentsAcked.Inc()
	}

	if e.lastSegSent && len(e.outstanding) == 0 {
		e.closeLocked(nil)
	}
}

// OnResendRequest immediately retransmits every seq in seqs that is both
// within range and still outstanding; everything else is silently ignored,
// per the open question in spec.md §9. It does not touch the timer of any
// segment not named in seqs, and an explicit resend does not itself count
// against MAX_RETRIES — that budget is reserved for timeouts the peer never
// answered at all.
func (e *Engine) OnResendRequest(seqs []uint32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	if e.reg != nil {
		e.reg.ResendRequests.Inc()
	}

	now := time.Now()
	for _, seq := range seqs {
		if seq >= e.seg.TotalSegs() {
			continue
		}
		ent, ok := e.outstanding[seq]
		if !ok {
			continue
		}
		payload, last, err := e.seg.Segment(seq)
		if err != nil {
			continue
		}
		flags := uint8(0)
		if last {
			flags = wire.FlagLast
		}
		pkt, err := wire.Encode(wire.Header{Type: wire.TypeDATA, SeqNum: seq, TotalSegs: e.seg.TotalSegs(), Flags: flags}, payload)
		if err != nil {
			continue
		}
		if err := e.send(pkt); err != nil {
			continue
		}
		if e.reg != nil {
			e.reg.SegmentsSent.Inc()
			e.reg.SegmentsRetransmit.Inc()
		}
		e.order.Remove(ent)
		ent.lastSent = now
		e.order.PushBack(ent)
	}
}

// Tick retransmits any segment whose last send is older than
// RetransmitTimeout, oldest first, stopping at the first segment still
// within the timeout (the list is kept sorted by lastSent, so this is the
// single "oldest unacked" timer spec.md §9 allows in place of one timer per
// segment). It then evaluates the terminal handshake: close cleanly if
// everything has been acked, or with ErrIncompleteDelivery if the linger
// window has elapsed with segments still outstanding.
func (e *Engine) Tick(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}

	for {
		front := e.order.Front()
		if front == nil {
			break
		}
		ent := front.(*entry)
		if now.Sub(ent.lastSent) < e.opts.RetransmitTimeout {
			break
		}

		payload, last, err := e.seg.Segment(ent.seq)
		if err != nil {
			continue
		}
		flags := uint8(0)
		if last {
			flags = wire.FlagLast
		}
		pkt, err := wire.Encode(wire.Header{Type: wire.TypeDATA, SeqNum: ent.seq, TotalSegs: e.seg.TotalSegs(), Flags: flags}, payload)
		if err == nil {
			if sendErr := e.send(pkt); sendErr == nil && e.reg != nil {
				e.reg.SegmentsSent.Inc()
				e.reg.SegmentsRetransmit.Inc()
			}
		}

		ent.retries++
		ent.lastSent = now
		e.order.Remove(ent)
		e.order.PushBack(ent)

		if ent.retries > e.opts.MaxRetries {
			e.log.WithField("seq", ent.seq).Warn("sender: peer unreachable, retry budget exceeded")
			e.closeLocked(types.ErrPeerUnreachable)
			return
		}
	}

	if e.lastSegSent {
		if len(e.outstanding) == 0 {
			e.closeLocked(nil)
			return
		}
		if now.After(e.lingerUntil) {
			e.log.WithField("remaining", len(e.outstanding)).Warn("sender: linger window elapsed with segments unacknowledged")
			e.closeLocked(types.ErrIncompleteDelivery)
		}
	}
}

func (e *Engine) closeLocked(err error) {
	if e.closed {
		return
	}
	e.closed = true
	if err == nil && e.reg != nil {
		e.reg.SessionsCompleted.Inc()
	} else if e.reg != nil {
		e.reg.SessionsFailed.Inc()
	}
	e.doneCh <- err
}

// Outstanding returns the number of segments still unacknowledged, for
// diagnostics and tests.
func (e *Engine) Outstanding() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.order.Len()
}
