package dispatch

import (
	"context"
	"net"
	"strings"

	"github.com/rs/xid"
	"github.com/sirupsen/logrus"

	"github.com/quietport/rft/metrics"
	"github.com/quietport/rft/segment"
	"github.com/quietport/rft/sender"
	"github.com/quietport/rft/wire"
)

// nonceParam is the optional request-grammar extension from SPEC_FULL.md
// §3: "GET /<name>?nonce=<id>" lets a client disambiguate a second
// concurrent session to the same server for the same file.
const nonceParam = "?nonce="

// Server is the single-listener UDP dispatcher (spec.md §4.5): it
// demultiplexes inbound datagrams to per-session sender.Engine workers,
// spawning one per new GET and routing ACK/RESEND to the matching session.
// It generalises the teacher's stack.Stack.HandlePacket dispatch loop --
// there, one goroutine read off a link endpoint and demuxed by transport
// protocol; here, one goroutine reads off a net.UDPConn and demuxes by
// (remote, name, nonce).
type Server struct {
	conn *net.UDPConn
	root string
	opts sender.Options
	log  *logrus.Logger
	reg  *metrics.Registry

	sessions *registry
}

// NewServer creates a Server that serves files under root on conn.
func NewServer(conn *net.UDPConn, root string, opts sender.Options, log *logrus.Logger, reg *metrics.Registry) *Server {
	return &Server{
		conn:     conn,
		root:     root,
		opts:     opts,
		log:      log,
		reg:      reg,
		sessions: newRegistry(),
	}
}

type datagram struct {
	addr *net.UDPAddr
	data []byte
}

// Serve reads datagrams from conn until ctx is cancelled or the socket
// errors. Reading happens on a background goroutine so that cancellation is
// observed even while no datagram arrives; a packet already being handled
// is finished before ctx is checked again.
func (s *Server) Serve(ctx context.Context) error {
	inbound := make(chan datagram, 256)
	readErr := make(chan error, 1)

	go func() {
		buf := make([]byte, wire.MaxPacketSize)
		for {
			n, addr, err := s.conn.ReadFromUDP(buf)
			if err != nil {
				readErr <- err
				return
			}
			cp := make([]byte, n)
			copy(cp, buf[:n])
			select {
			case inbound <- datagram{addr: addr, data: cp}:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			s.conn.Close()
			return ctx.Err()
		case err := <-readErr:
			return err
		case dg := <-inbound:
			s.handle(dg.addr, dg.data)
		}
	}
}

func (s *Server) handle(addr *net.UDPAddr, raw []byte) {
	h, payload, err := wire.Decode(raw)
	if err != nil {
		if s.reg != nil {
			s.reg.ChecksumFailures.Inc()
		}
		s.log.WithError(err).WithField("remote", addr).Debug("dispatch: dropping undecodable packet")
		return
	}

	switch h.Type {
	case wire.TypeREQ:
		s.handleRequest(addr, payload)
	case wire.TypeACK:
		if sess, ok := s.sessions.byRemoteAddr(addr.String()); ok {
			sess.deliverAck(h.SeqNum)
		}
	default:
		s.log.WithField("type", h.Type).Debug("dispatch: unexpected packet type from client")
	}
}

func (s *Server) handleRequest(addr *net.UDPAddr, payload []byte) {
	req, err := wire.ParseRequest(payload)
	if err != nil {
		s.log.WithError(err).WithField("remote", addr).Debug("dispatch: malformed REQ")
		return
	}

	if req.IsResend {
		if sess, ok := s.sessions.byRemoteAddr(addr.String()); ok {
			sess.deliverResend(req.Resend)
		}
		return
	}

	name, nonce := splitNonce(req.Name)
	key := Key{Remote: addr.String(), Name: name, Nonce: nonce}

	path, err := ResolveServingPath(s.root, name)
	if err != nil {
		s.sendErr(addr, err)
		return
	}
	file, info, err := statFile(path)
	if err != nil {
		s.sendErr(addr, err)
		return
	}

	seg := segment.NewSegmenter(file, info.Size())
	log := s.log.WithFields(logrus.Fields{"remote": addr.String(), "file": name})
	sendFn := func(pkt []byte) error {
		_, err := s.conn.WriteToUDP(pkt, addr)
		return err
	}
	eng := sender.New(seg, sendFn, s.opts, log, s.reg)
	sess := newSession(key, addr, file, eng, log)

	if err := s.sessions.register(key, sess); err != nil {
		log.Debug("dispatch: duplicate in-flight request, ignoring")
		file.Close()
		return
	}
	if s.reg != nil {
		s.reg.ActiveSessions.Inc()
	}
	log.WithField("size", info.Size()).Info("dispatch: serving new request")
	go sess.run(s.sessions, s.reg, s.opts.RetransmitTimeout)
}

func (s *Server) sendErr(addr *net.UDPAddr, err error) {
	msg := err.Error()
	pkt, encErr := wire.Encode(wire.Header{Type: wire.TypeERR}, []byte(msg))
	if encErr != nil {
		s.log.WithError(encErr).Error("dispatch: failed to encode ERR packet")
		return
	}
	if _, werr := s.conn.WriteToUDP(pkt, addr); werr != nil {
		s.log.WithError(werr).WithField("remote", addr).Debug("dispatch: failed to send ERR")
	}
}

// splitNonce separates an optional "?nonce=<id>" suffix from a requested
// name. The no-nonce case always maps to the zero xid.ID, so two no-nonce
// GETs for the same (remote, name) -- e.g. the client's own GET retry while
// AWAITING_FIRST -- collide on the same Key and register rejects the second
// one as a duplicate instead of starting a second sender worker. A fresh
// xid.New() is only minted for a malformed ?nonce= value, so such a request
// always gets a key of its own and is served as a new session.
func splitNonce(name string) (string, xid.ID) {
	if i := strings.Index(name, nonceParam); i >= 0 {
		rawNonce := name[i+len(nonceParam):]
		if id, err := xid.FromString(rawNonce); err == nil {
			return name[:i], id
		}
		return name[:i], xid.New()
	}
	return name, xid.ID{}
}
