package tmutex_test

import (
	"testing"

	"github.com/quietport/rft/tmutex"
)

func TestTryLock(t *testing.T) {
	var m tmutex.Mutex
	m.Init()

	if !m.TryLock() {
		t.Fatalf("TryLock on a free mutex should succeed")
	}
	if m.TryLock() {
		t.Fatalf("TryLock on a held mutex should fail")
	}
	m.Unlock()
	if !m.TryLock() {
		t.Fatalf("TryLock after Unlock should succeed")
	}
}
