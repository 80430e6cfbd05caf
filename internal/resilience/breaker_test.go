package resilience

import (
	"errors"
	"testing"
	"time"
)

var errUpstream = errors.New("upstream failed")

func TestBreakerStaysClosedOnSuccess(t *testing.T) {
	b := New("test", Settings{})

	for i := 0; i < 10; i++ {
		_, err := b.Execute(func() (interface{}, error) { return i, nil })
		if err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
	}

	if b.State() != StateClosed {
		t.Errorf("state = %s, want closed", b.State())
	}
}

func TestBreakerTripsAfterConsecutiveFailures(t *testing.T) {
	b := New("test", Settings{
		ReadyToTrip: func(c Counts) bool { return c.ConsecutiveFailures >= 3 },
	})

	for i := 0; i < 3; i++ {
		_, _ = b.Execute(func() (interface{}, error) { return nil, errUpstream })
	}

	if b.State() != StateOpen {
		t.Fatalf("state = %s, want open", b.State())
	}

	if _, err := b.Execute(func() (interface{}, error) { return nil, nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Execute() error = %v, want ErrCircuitOpen", err)
	}
}

func TestBreakerRecoversThroughHalfOpen(t *testing.T) {
	b := New("test", Settings{
		MaxRequests: 1,
		Timeout:     20 * time.Millisecond,
		ReadyToTrip: func(c Counts) bool { return c.ConsecutiveFailures >= 1 },
	})

	_, _ = b.Execute(func() (interface{}, error) { return nil, errUpstream })
	if b.State() != StateOpen {
		t.Fatalf("state = %s, want open", b.State())
	}

	time.Sleep(30 * time.Millisecond)
	if b.State() != StateHalfOpen {
		t.Fatalf("state = %s, want half-open", b.State())
	}

	if _, err := b.Execute(func() (interface{}, error) { return "ok", nil }); err != nil {
		t.Fatalf("probe failed: %v", err)
	}
	if b.State() != StateClosed {
		t.Errorf("state = %s, want closed after successful probe", b.State())
	}
}

func TestBreakerStateChangeCallback(t *testing.T) {
	var transitions []string
	b := New("test", Settings{
		ReadyToTrip:   func(c Counts) bool { return c.ConsecutiveFailures >= 1 },
		OnStateChange: func(name string, from, to State) { transitions = append(transitions, from.String()+"->"+to.String()) },
	})

	_, _ = b.Execute(func() (interface{}, error) { return nil, errUpstream })

	if len(transitions) != 1 || transitions[0] != "closed->open" {
		t.Errorf("transitions = %v", transitions)
	}
}
