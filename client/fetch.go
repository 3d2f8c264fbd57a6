// Package client implements the client-side transfer driver (spec.md
// §4.6): it sends the initial GET, runs a receiver.Engine against the
// datagrams that arrive, and periodically drives its gap-scan and
// idle-timeout checks. It is the mirror of package dispatch's server loop --
// one goroutine reading the socket, one select loop combining that with a
// ticker -- generalised from the same single-reader-plus-ticker shape the
// teacher's sample echo programs use around a NIC endpoint.
package client

import (
	"context"
	"io"
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/quietport/rft/metrics"
	"github.com/quietport/rft/receiver"
	"github.com/quietport/rft/types"
	"github.com/quietport/rft/wire"
)

// Defaults for the request-retry loop that resends the initial GET while no
// DATA has arrived yet.
const (
	DefaultRequestRetryInterval = 500 * time.Millisecond
	DefaultMaxRequestRetries    = 10
)

// Options configures a Fetch call.
type Options struct {
	Receiver receiver.Options

	// RequestRetryInterval is how often the initial GET is resent while the
	// receiver is still AWAITING_FIRST.
	RequestRetryInterval time.Duration
	MaxRequestRetries    int

	// ProgressFunc, if set, is invoked after every tick with the current
	// (filled, total) segment counts, letting a caller drive a progress bar.
	ProgressFunc func(filled, total int)
}

func (o Options) withDefaults() Options {
	if o.RequestRetryInterval <= 0 {
		o.RequestRetryInterval = DefaultRequestRetryInterval
	}
	if o.MaxRequestRetries <= 0 {
		o.MaxRequestRetries = DefaultMaxRequestRetries
	}
	return o
}

// tickInterval is how often the select loop wakes up to drive
// receiver.Engine.ProgressTick, independent of datagram arrivals.
const tickInterval = 100 * time.Millisecond

// Fetch retrieves name from remote over conn, writing the reassembled file
// to sink. It blocks until the transfer completes, fails, or ctx is
// cancelled.
func Fetch(ctx context.Context, conn *net.UDPConn, remote *net.UDPAddr, name string, sink io.Writer, opts Options, log *logrus.Entry, reg *metrics.Registry) error {
	opts = opts.withDefaults()

	ackFn := func(seq uint32) error {
		pkt, err := wire.Encode(wire.Header{Type: wire.TypeACK, SeqNum: seq}, nil)
		if err != nil {
			return err
		}
		_, err = conn.WriteToUDP(pkt, remote)
		return err
	}
	resendFn := func(seqs []uint32) error {
		pkt, err := wire.Encode(wire.Header{Type: wire.TypeREQ}, wire.BuildResend(seqs))
		if err != nil {
			return err
		}
		_, err = conn.WriteToUDP(pkt, remote)
		return err
	}

	eng := receiver.New(ackFn, resendFn, sink, opts.Receiver, log, reg)
	_, done := eng.Done()

	sendGet := func() error {
		pkt, err := wire.Encode(wire.Header{Type: wire.TypeREQ}, wire.BuildGet(name))
		if err != nil {
			return err
		}
		_, err = conn.WriteToUDP(pkt, remote)
		return err
	}
	if err := sendGet(); err != nil {
		return err
	}

	inbound := make(chan []byte, 256)
	readErr := make(chan error, 1)
	go func() {
		buf := make([]byte, wire.MaxPacketSize)
		for {
			n, _, err := conn.ReadFromUDP(buf)
			if err != nil {
				readErr <- err
				return
			}
			cp := make([]byte, n)
			copy(cp, buf[:n])
			select {
			case inbound <- cp:
			case <-ctx.Done():
				return
			}
		}
	}()

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	requestRetries := 0
	lastRequestSent := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			return err
		case raw := <-inbound:
			eng.OnPacket(raw)
		case now := <-ticker.C:
			eng.ProgressTick(now)
			if opts.ProgressFunc != nil {
				filled, total := eng.Progress()
				opts.ProgressFunc(filled, total)
			}
			if eng.State() == receiver.AwaitingFirst && now.Sub(lastRequestSent) >= opts.RequestRetryInterval {
				requestRetries++
				if requestRetries > opts.MaxRequestRetries {
					return types.ErrPeerUnreachable
				}
				if err := sendGet(); err != nil {
					return err
				}
				lastRequestSent = now
			}
		case res := <-done:
			return res.Err
		}
	}
}
