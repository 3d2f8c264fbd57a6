//go:build !unix

package sockopt

import (
	"net"

	"github.com/sirupsen/logrus"
)

// TuneBuffers is a no-op on non-Unix platforms; SO_RCVBUF/SO_SNDBUF tuning
// is a Unix-specific best-effort optimisation, never required for
// correctness.
func TuneBuffers(conn *net.UDPConn, rcvBuf, sndBuf int, log *logrus.Entry) {
	if rcvBuf > 0 || sndBuf > 0 {
		log.Debug("sockopt: socket buffer tuning is unavailable on this platform")
	}
}
