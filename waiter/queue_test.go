package waiter_test

import (
	"errors"
	"testing"

	"github.com/quietport/rft/waiter"
)

func TestNotifyDeliversToRegisteredEntry(t *testing.T) {
	var q waiter.Queue
	e, ch := waiter.NewEntry()
	q.Register(e)

	q.Notify(waiter.Result{})

	select {
	case res := <-ch:
		if res.Err != nil {
			t.Fatalf("got err %v, want nil", res.Err)
		}
	default:
		t.Fatalf("expected a result to be waiting")
	}
}

func TestNotifyBeforeRegisterStillDelivers(t *testing.T) {
	var q waiter.Queue
	wantErr := errors.New("boom")
	q.Notify(waiter.Result{Err: wantErr})

	e, ch := waiter.NewEntry()
	q.Register(e)

	res := <-ch
	if res.Err != wantErr {
		t.Fatalf("got %v, want %v", res.Err, wantErr)
	}
}

func TestNotifyIsIdempotent(t *testing.T) {
	var q waiter.Queue
	q.Notify(waiter.Result{Err: errors.New("first")})
	q.Notify(waiter.Result{Err: errors.New("second")})

	e, ch := waiter.NewEntry()
	q.Register(e)

	res := <-ch
	if res.Err.Error() != "first" {
		t.Fatalf("got %v, want first notification to stick", res.Err)
	}
}
