package circuitbreaker

import (
	"errors"
	"testing"
	"time"
)

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	b := NewEndpointBreaker(Settings{
		Name:                "10.10.23.5",
		ConsecutiveFailures: 3,
		Timeout:             time.Minute,
	})

	boom := errors.New("connection refused")

	for i := 0; i < 3; i++ {
		if err := b.Execute(func() error { return boom }); !errors.Is(err, boom) {
			t.Fatalf("Attempt %d: expected transport error, got %v", i, err)
		}
	}

	// Circuit is now open: fn must not run
	ran := false
	err := b.Execute(func() error {
		ran = true
		return nil
	})
	if !errors.Is(err, ErrEndpointUnavailable) {
		t.Errorf("Expected ErrEndpointUnavailable, got %v", err)
	}
	if ran {
		t.Error("Function should not run while circuit is open")
	}
	if b.State() != "open" {
		t.Errorf("Expected open state, got %s", b.State())
	}
}

func TestBreakerStaysClosedOnSuccess(t *testing.T) {
	b := NewEndpointBreaker(Settings{Name: "10.10.23.5"})

	for i := 0; i < 20; i++ {
		if err := b.Execute(func() error { return nil }); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
	}

	if b.State() != "closed" {
		t.Errorf("Expected closed state, got %s", b.State())
	}
}

func TestBreakerRecoversAfterTimeout(t *testing.T) {
	b := NewEndpointBreaker(Settings{
		Name:                "10.10.23.5",
		ConsecutiveFailures: 1,
		Timeout:             50 * time.Millisecond,
	})

	boom := errors.New("no route to host")
	if err := b.Execute(func() error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("Expected transport error, got %v", err)
	}
	if b.State() != "open" {
		t.Fatalf("Expected open state, got %s", b.State())
	}

	time.Sleep(80 * time.Millisecond)

	// Half-open probe succeeds and closes the circuit
	if err := b.Execute(func() error { return nil }); err != nil {
		t.Fatalf("Probe should succeed, got %v", err)
	}
	if b.State() != "closed" {
		t.Errorf("Expected closed state after probe, got %s", b.State())
	}
}
