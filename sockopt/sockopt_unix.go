//go:build unix

// Package sockopt applies best-effort SO_RCVBUF/SO_SNDBUF tuning to a UDP
// socket, per SPEC_FULL.md's domain-stack wiring of golang.org/x/sys/unix.
// Tuning failures are logged, never fatal: the protocol's own
// retransmit/RESEND handling tolerates a kernel buffer that's smaller than
// requested.
package sockopt

import (
	"net"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// TuneBuffers sets the socket's receive and send buffer sizes. A zero value
// for either leaves that buffer at its kernel default.
func TuneBuffers(conn *net.UDPConn, rcvBuf, sndBuf int, log *logrus.Entry) {
	if rcvBuf <= 0 && sndBuf <= 0 {
		return
	}

	raw, err := conn.SyscallConn()
	if err != nil {
		log.WithError(err).Debug("sockopt: could not obtain raw connection")
		return
	}

	ctrlErr := raw.Control(func(fd uintptr) {
		if rcvBuf > 0 {
			if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, rcvBuf); err != nil {
				log.WithError(err).Warn("sockopt: failed to set SO_RCVBUF")
			}
		}
		if sndBuf > 0 {
			if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_SNDBUF, sndBuf); err != nil {
				log.WithError(err).Warn("sockopt: failed to set SO_SNDBUF")
			}
		}
	})
	if ctrlErr != nil {
		log.WithError(ctrlErr).Debug("sockopt: raw.Control failed")
	}
}
