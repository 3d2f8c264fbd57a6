package dispatch

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/quietport/rft/segment"
	"github.com/quietport/rft/sender"
)

func testLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(bytes.NewBuffer(nil))
	return logrus.NewEntry(l)
}

type capturingSink struct {
	mu      sync.Mutex
	packets [][]byte
}

func (s *capturingSink) send(pkt []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.packets = append(s.packets, append([]byte(nil), pkt...))
	return nil
}

func (s *capturingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.packets)
}

func TestSessionDeliverAckDropsWhileGuardHeld(t *testing.T) {
	data := make([]byte, 10)
	seg := segment.NewSegmenter(bytes.NewReader(data), int64(len(data)))
	sink := &capturingSink{}
	eng := sender.New(seg, sink.send, sender.Options{}, testLog(), nil)
	sess := newSession(Key{}, nil, nil, eng, testLog())

	if err := eng.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	sess.guard.Lock()
	sess.deliverAck(0)
	sess.guard.Unlock()

	if eng.Outstanding() != 1 {
		t.Fatalf("ACK delivered while guard held should have been dropped, Outstanding()=%d", eng.Outstanding())
	}

	sess.deliverAck(0)
	if eng.Outstanding() != 0 {
		t.Fatalf("ACK delivered with guard free should succeed, Outstanding()=%d", eng.Outstanding())
	}
}

func TestSessionDeliverResendRetransmits(t *testing.T) {
	data := make([]byte, 10)
	seg := segment.NewSegmenter(bytes.NewReader(data), int64(len(data)))
	sink := &capturingSink{}
	eng := sender.New(seg, sink.send, sender.Options{}, testLog(), nil)
	sess := newSession(Key{}, nil, nil, eng, testLog())

	if err := eng.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	before := sink.count()

	sess.deliverResend([]uint32{0})
	if sink.count() != before+1 {
		t.Fatalf("got %d packets sent, want %d after one resend", sink.count(), before+1)
	}
}

func TestSessionRunExitsOnCleanCompletion(t *testing.T) {
	data := make([]byte, 10)
	seg := segment.NewSegmenter(bytes.NewReader(data), int64(len(data)))
	sink := &capturingSink{}
	eng := sender.New(seg, sink.send, sender.Options{RetransmitTimeout: time.Hour, LingerWindow: time.Hour}, testLog(), nil)
	sess := newSession(Key{Remote: "1.2.3.4:9"}, nil, nil, eng, testLog())
	reg := newRegistry()
	reg.register(sess.key, sess)

	done := make(chan struct{})
	go func() {
		sess.run(reg, nil, time.Millisecond)
		close(done)
	}()

	time.Sleep(5 * time.Millisecond)
	eng.OnAck(0)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("session worker never exited after clean completion")
	}
	if reg.count() != 0 {
		t.Fatalf("session worker should have unregistered itself on exit")
	}
}
