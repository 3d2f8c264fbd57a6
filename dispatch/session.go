package dispatch

import (
	"net"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/quietport/rft/metrics"
	"github.com/quietport/rft/sender"
	"github.com/quietport/rft/tmutex"
)

// tickFraction divides sender.Options.RetransmitTimeout to pick how often a
// session worker wakes up to call Engine.Tick; a quarter keeps the observed
// retransmit latency close to the configured timeout without busy-waiting.
const tickFraction = 4

// session binds a sender.Engine to one (remote, file) transfer and owns the
// goroutine that drives its retransmit clock. guard is a tmutex.Mutex
// wrapping every access to eng from outside that goroutine — ACK and RESEND
// delivery both go through guard.TryLock, so a datagram that arrives while
// the worker is itself mid-tick is dropped rather than blocking the
// dispatcher's single receive loop. Dropping is safe here because the
// underlying protocol is self-healing: a lost ACK just delays the sender's
// own view of completion, and a lost RESEND is retried by the client's next
// gap scan.
type session struct {
	key    Key
	remote *net.UDPAddr
	file   *os.File
	eng    *sender.Engine
	guard  tmutex.Mutex
	log    *logrus.Entry
}

func newSession(key Key, remote *net.UDPAddr, file *os.File, eng *sender.Engine, log *logrus.Entry) *session {
	s := &session{key: key, remote: remote, file: file, eng: eng, log: log}
	s.guard.Init()
	return s
}

// deliverAck forwards an ACK to the session's engine if the worker isn't
// currently mid-tick; otherwise the ACK is dropped (see session doc comment).
func (s *session) deliverAck(seq uint32) {
	if !s.guard.TryLock() {
		return
	}
	defer s.guard.Unlock()
	s.eng.OnAck(seq)
}

// deliverResend forwards a RESEND request the same way deliverAck does.
func (s *session) deliverResend(seqs []uint32) {
	if !s.guard.TryLock() {
		return
	}
	defer s.guard.Unlock()
	s.eng.OnResendRequest(seqs)
}

// run is the session's worker goroutine: it performs the initial pipelined
// send, then ticks the retransmit clock until the engine reports a terminal
// result (clean completion or a failure), and finally unregisters itself.
func (s *session) run(reg *registry, metricsReg *metrics.Registry, retransmitTimeout time.Duration) {
	defer func() {
		s.file.Close()
		reg.unregister(s.key, s)
		if metricsReg != nil {
			metricsReg.ActiveSessions.Dec()
		}
	}()

	if err := s.eng.Start(); err != nil {
		s.log.WithError(err).Error("dispatch: initial send failed")
		return
	}

	interval := retransmitTimeout / tickFraction
	if interval <= 0 {
		interval = sender.DefaultRetransmitTimeout / tickFraction
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if s.guard.TryLock() {
				s.eng.Tick(time.Now())
				s.guard.Unlock()
			}
		case err := <-s.eng.Done():
			if err != nil {
				s.log.WithError(err).Warn("dispatch: session ended with error")
			} else {
				s.log.Info("dispatch: session completed")
			}
			return
		}
	}
}
