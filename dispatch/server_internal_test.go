package dispatch

import (
	"testing"

	"github.com/rs/xid"
)

// TestSplitNonceNoNonceIsDeterministic guards against the regression where a
// no-nonce GET minted a fresh xid.New() on every call: two such GETs for the
// same remote/name must produce identical keys, or the client's own GET
// retry (client.Fetch resends while AWAITING_FIRST) spawns a second sender
// worker for a request already in flight.
func TestSplitNonceNoNonceIsDeterministic(t *testing.T) {
	name1, nonce1 := splitNonce("hello.bin")
	name2, nonce2 := splitNonce("hello.bin")

	if name1 != "hello.bin" || name2 != "hello.bin" {
		t.Fatalf("got names %q/%q, want hello.bin/hello.bin", name1, name2)
	}
	if nonce1 != nonce2 {
		t.Fatalf("got distinct nonces %v/%v for two no-nonce requests, want identical", nonce1, nonce2)
	}
	if nonce1 != (xid.ID{}) {
		t.Fatalf("got nonce %v, want the zero xid.ID for a no-nonce request", nonce1)
	}
}

// TestSplitNonceExplicitNonceIsPreserved confirms the ?nonce= escape hatch
// still lets a caller request a genuinely distinct session.
func TestSplitNonceExplicitNonceIsPreserved(t *testing.T) {
	id := xid.New()
	name, nonce := splitNonce("hello.bin" + nonceParam + id.String())

	if name != "hello.bin" {
		t.Fatalf("got name %q, want hello.bin", name)
	}
	if nonce != id {
		t.Fatalf("got nonce %v, want %v", nonce, id)
	}
}

// TestRegistryRejectsDuplicateNoNonceRequest exercises the registry path the
// review flagged: a duplicate no-nonce REQ for the same (remote, name) must
// collide on one Key and be rejected, not silently accepted as a second
// session.
func TestRegistryRejectsDuplicateNoNonceRequest(t *testing.T) {
	r := newRegistry()
	name, nonce := splitNonce("movie.mp4")
	key := Key{Remote: "10.0.0.5:4000", Name: name, Nonce: nonce}

	if err := r.register(key, &session{}); err != nil {
		t.Fatalf("first register: %v", err)
	}

	name2, nonce2 := splitNonce("movie.mp4")
	key2 := Key{Remote: "10.0.0.5:4000", Name: name2, Nonce: nonce2}
	if err := r.register(key2, &session{}); err == nil {
		t.Fatalf("second no-nonce register for the same request should be rejected as a duplicate")
	}
}
