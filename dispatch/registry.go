// Package dispatch implements the server-side single-listener dispatcher:
// demultiplexing inbound datagrams to per-client sessions, spawning a
// worker per new request, and rejecting unknown files. The session table
// generalises the teacher's stack.transportDemuxer — which demultiplexed by
// (network proto, transport proto, endpoint id) — to demultiplex by
// (remote address, requested name, nonce) instead.
package dispatch

import (
	"sync"

	"github.com/rs/xid"

	"github.com/quietport/rft/types"
)

// Key identifies one server-side session.
type Key struct {
	Remote string
	Name   string
	Nonce  xid.ID
}

// registry is the session table. Registration detects collisions the same
// way the teacher's transportDemuxer.singleRegisterEndpoint does: a second
// register for an existing key is rejected rather than silently replacing
// the session.
//
// ACK and RESEND packets don't carry (name, nonce) — only the datagram's
// remote address — so the registry also keeps a by-remote index used to
// route them. When a client has more than one in-flight session (an
// explicit nonce on a second concurrent GET), the by-remote index holds
// whichever session registered most recently; this is the accepted
// limitation spec.md §9 documents for the reference design.
type registry struct {
	mu       sync.RWMutex
	byKey    map[Key]*session
	byRemote map[string]*session
}

func newRegistry() *registry {
	return &registry{
		byKey:    make(map[Key]*session),
		byRemote: make(map[string]*session),
	}
}

// register adds s under key, also making it the remote's current session.
// It returns types.ErrSessionExists if key is already registered.
func (r *registry) register(key Key, s *session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byKey[key]; ok {
		return types.ErrSessionExists
	}
	r.byKey[key] = s
	r.byRemote[key.Remote] = s
	return nil
}

// unregister removes s. It only clears the by-remote entry if it still
// points at s, so an older session's teardown can't clobber a newer one
// that replaced it for the same remote.
func (r *registry) unregister(key Key, s *session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.byKey, key)
	if r.byRemote[key.Remote] == s {
		delete(r.byRemote, key.Remote)
	}
}

// byRemoteAddr looks up the current session for a remote address, for
// routing ACK and RESEND packets.
func (r *registry) byRemoteAddr(remote string) (*session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byRemote[remote]
	return s, ok
}

// count returns the number of active sessions, for the ActiveSessions
// gauge.
func (r *registry) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byKey)
}
