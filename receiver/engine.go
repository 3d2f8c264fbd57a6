// Package receiver implements the client-side receiver engine: decoding
// inbound packets, idempotent reassembly via package segment, gap
// detection and RESEND requests, and the three-state lifecycle
// (AWAITING_FIRST / RECEIVING / COMPLETE) from spec.md §4.4. Completion and
// failure are both delivered through a single waiter.Queue notification,
// per the adaptation note in SPEC_FULL.md §4.4.
package receiver

import (
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/quietport/rft/metrics"
	"github.com/quietport/rft/segment"
	"github.com/quietport/rft/types"
	"github.com/quietport/rft/waiter"
	"github.com/quietport/rft/wire"
)

// Defaults per the protocol.
const (
	DefaultGapScanInterval    = 500 * time.Millisecond
	DefaultMaxResendBatch     = 64
	DefaultClientIdleTimeout  = 10 * time.Second
)

// State is the receiver's lifecycle state.
type State int

const (
	AwaitingFirst State = iota
	Receiving
	Complete
)

func (s State) String() string {
	switch s {
	case AwaitingFirst:
		return "AWAITING_FIRST"
	case Receiving:
		return "RECEIVING"
	case Complete:
		return "COMPLETE"
	default:
		return "UNKNOWN"
	}
}

// AckFunc sends an ACK for seq to the peer.
type AckFunc func(seq uint32) error

// ResendFunc sends a RESEND request naming seqs to the peer.
type ResendFunc func(seqs []uint32) error

// Options configures an Engine's timing and loss injection. The zero value
// selects the protocol defaults and disables loss injection.
type Options struct {
	GapScanInterval   time.Duration
	MaxResendBatch    int
	ClientIdleTimeout time.Duration
	// LossPercent simulates a lossy receive boundary for testing, per
	// spec.md §4.4: each inbound packet is discarded with this probability
	// (0-100) before any processing.
	LossPercent int
}

func (o Options) withDefaults() Options {
	if o.GapScanInterval <= 0 {
		o.GapScanInterval = DefaultGapScanInterval
	}
	if o.MaxResendBatch <= 0 {
		o.MaxResendBatch = DefaultMaxResendBatch
	}
	if o.ClientIdleTimeout <= 0 {
		o.ClientIdleTimeout = DefaultClientIdleTimeout
	}
	return o
}

// Engine is a client-side receiver for one transfer.
type Engine struct {
	ack    AckFunc
	resend ResendFunc
	sink   io.Writer
	opts   Options
	log    *logrus.Entry
	reg    *metrics.Registry
	rng    *rand.Rand

	mu            sync.Mutex
	state         State
	reassembler   *segment.Reassembler
	lastActivity  time.Time
	lastResendAt  time.Time
	droppedCount  int
	done          waiter.Queue
	notifiedOnce  bool
}

// New creates an Engine. sink is written to exactly once, when reassembly
// completes.
func New(ack AckFunc, resend ResendFunc, sink io.Writer, opts Options, log *logrus.Entry, reg *metrics.Registry) *Engine {
	now := time.Now()
	return &Engine{
		ack:          ack,
		resend:       resend,
		sink:         sink,
		opts:         opts.withDefaults(),
		log:          log,
		reg:          reg,
		rng:          rand.New(rand.NewSource(now.UnixNano())),
		state:        AwaitingFirst,
		reassembler:  segment.NewReassembler(),
		lastActivity: now,
	}
}

// Done registers a new waiter entry to receive the terminal Result (nil Err
// on success) and returns it with its channel.
func (e *Engine) Done() (*waiter.Entry, <-chan waiter.Result) {
	entry, ch := waiter.NewEntry()
	e.done.Register(entry)
	return entry, ch
}

// State returns the engine's current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// OnPacket decodes and processes one inbound datagram. Decode failures and
// structural invariant violations are dropped silently except for a
// diagnostic counter; they never fail the transfer, since the sender will
// eventually retransmit.
func (e *Engine) OnPacket(raw []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.opts.LossPercent > 0 && e.rng.Intn(100) < e.opts.LossPercent {
		return
	}

	h, payload, err := wire.Decode(raw)
	if err != nil {
		e.droppedCount++
		if e.reg != nil {
			e.reg.ChecksumFailures.Inc()
		}
		return
	}

	switch h.Type {
	case wire.TypeERR:
		if e.state == Complete {
			return
		}
		e.log.WithField("message", string(payload)).Warn("receiver: server sent ERR")
		e.failLocked(serverError(payload))
	case wire.TypeDATA:
		e.handleDataLocked(h, payload)
	default:
		e.droppedCount++
	}
}

func (e *Engine) handleDataLocked(h wire.Header, payload []byte) {
	if h.TotalSegs == 0 || h.SeqNum >= h.TotalSegs || len(payload) > wire.MaxPayload {
		e.droppedCount++
		return
	}

	if e.state == Complete {
		// Every valid seq is already stored once COMPLETE; re-ACK it so a
		// lost final ACK doesn't leave the sender retransmitting a
		// fully-delivered segment forever (spec.md §4.4 ACK idempotence).
		if e.ack != nil {
			if err := e.ack(h.SeqNum); err != nil {
				e.log.WithError(err).Debug("receiver: failed to send ACK")
			}
		}
		return
	}

	e.reassembler.SetTotalSegs(h.TotalSegs)
	if e.state == AwaitingFirst {
		e.state = Receiving
	}

	filled, err := e.reassembler.Insert(h.SeqNum, payload)
	if err != nil {
		e.log.WithField("seq", h.SeqNum).Error("receiver: inconsistent payload for sequence")
		e.failLocked(err)
		return
	}
	if filled {
		e.lastActivity = time.Now()
	}

	if e.ack != nil {
		if err := e.ack(h.SeqNum); err != nil {
			e.log.WithError(err).Debug("receiver: failed to send ACK")
		}
	}

	if e.reassembler.Complete() {
		e.completeLocked()
	}
}

func (e *Engine) completeLocked() {
	if e.state == Complete {
		return
	}
	e.state = Complete
	if _, err := e.reassembler.WriteTo(e.sink); err != nil {
		e.notifyLocked(waiter.Result{Err: err})
		return
	}
	e.notifyLocked(waiter.Result{})
}

func (e *Engine) failLocked(err error) {
	if e.state == Complete {
		return
	}
	e.notifyLocked(waiter.Result{Err: err})
}

func (e *Engine) notifyLocked(res waiter.Result) {
	if e.notifiedOnce {
		return
	}
	e.notifiedOnce = true
	e.done.Notify(res)
}

// ProgressTick performs the periodic gap-scan and idle-timeout checks. It
// should be called roughly every GapScanInterval by the client driver.
func (e *Engine) ProgressTick(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == Complete {
		return
	}

	if now.Sub(e.lastActivity) >= e.opts.ClientIdleTimeout {
		e.log.Warn("receiver: idle timeout, no progress")
		e.failLocked(types.ErrTransferStalled)
		return
	}

	if e.state != Receiving {
		return
	}
	if now.Sub(e.lastActivity) < e.opts.GapScanInterval {
		return
	}
	if now.Sub(e.lastResendAt) < e.opts.GapScanInterval {
		return
	}

	missing := e.reassembler.Missing()
	if len(missing) == 0 {
		return
	}
	if len(missing) > e.opts.MaxResendBatch {
		missing = missing[:e.opts.MaxResendBatch]
	}

	e.lastResendAt = now
	if e.resend != nil {
		if err := e.resend(missing); err != nil {
			e.log.WithError(err).Debug("receiver: failed to send RESEND")
		}
	}
}

// Dropped returns the number of packets dropped at the receive boundary,
// for diagnostics.
func (e *Engine) Dropped() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.droppedCount
}

// Progress reports how many segments have been stored against how many the
// transfer is known to need. total is 0 until the first DATA packet arrives.
func (e *Engine) Progress() (filled, total int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reassembler.FilledCount(), int(e.reassembler.TotalSegs())
}

func serverError(payload []byte) error {
	msg := string(payload)
	if msg == "" {
		return types.ErrServerRejected
	}
	return &wrappedServerError{msg: msg}
}

type wrappedServerError struct{ msg string }

func (e *wrappedServerError) Error() string { return "server rejected request: " + e.msg }
func (e *wrappedServerError) Unwrap() error { return types.ErrServerRejected }
