package dispatch

import (
	"testing"

	"github.com/rs/xid"

	"github.com/quietport/rft/types"
)

func TestRegistryRejectsDuplicateKey(t *testing.T) {
	r := newRegistry()
	key := Key{Remote: "1.2.3.4:9", Name: "a.bin", Nonce: xid.New()}

	if err := r.register(key, &session{}); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := r.register(key, &session{}); err != types.ErrSessionExists {
		t.Fatalf("got %v, want ErrSessionExists on duplicate key", err)
	}
}

func TestRegistryByRemoteAddrTracksMostRecent(t *testing.T) {
	r := newRegistry()
	remote := "1.2.3.4:9"
	first := &session{}
	second := &session{}

	if err := r.register(Key{Remote: remote, Name: "a.bin", Nonce: xid.New()}, first); err != nil {
		t.Fatalf("register first: %v", err)
	}
	if err := r.register(Key{Remote: remote, Name: "b.bin", Nonce: xid.New()}, second); err != nil {
		t.Fatalf("register second: %v", err)
	}

	got, ok := r.byRemoteAddr(remote)
	if !ok || got != second {
		t.Fatalf("byRemoteAddr should return the most recently registered session")
	}
}

func TestRegistryUnregisterDoesNotClobberNewerSession(t *testing.T) {
	r := newRegistry()
	remote := "1.2.3.4:9"
	keyA := Key{Remote: remote, Name: "a.bin", Nonce: xid.New()}
	keyB := Key{Remote: remote, Name: "b.bin", Nonce: xid.New()}
	first := &session{}
	second := &session{}

	if err := r.register(keyA, first); err != nil {
		t.Fatalf("register first: %v", err)
	}
	if err := r.register(keyB, second); err != nil {
		t.Fatalf("register second: %v", err)
	}

	r.unregister(keyA, first)

	got, ok := r.byRemoteAddr(remote)
	if !ok || got != second {
		t.Fatalf("unregistering the older session clobbered the newer one")
	}
	if r.count() != 1 {
		t.Fatalf("got %d sessions, want 1", r.count())
	}
}

func TestRegistryCount(t *testing.T) {
	r := newRegistry()
	if r.count() != 0 {
		t.Fatalf("new registry should be empty")
	}
	key := Key{Remote: "1.2.3.4:9", Name: "a.bin", Nonce: xid.New()}
	sess := &session{}
	if err := r.register(key, sess); err != nil {
		t.Fatalf("register: %v", err)
	}
	if r.count() != 1 {
		t.Fatalf("got %d, want 1", r.count())
	}
	r.unregister(key, sess)
	if r.count() != 0 {
		t.Fatalf("got %d, want 0 after unregister", r.count())
	}
}
