package backoff_test

import (
	"testing"
	"time"

	"github.com/clipforge/clipjobs/backoff"
)

func TestConstant_ReturnsFixedDelay(t *testing.T) {
	c := backoff.NewConstant(5 * time.Second)
	for attempt := 1; attempt <= 10; attempt++ {
		if got := c.Delay(attempt); got != 5*time.Second {
			t.Errorf("Delay(%d) = %v, want %v", attempt, got, 5*time.Second)
		}
	}
}

func TestExponential_DoublesEachAttempt(t *testing.T) {
	e := backoff.NewExponential(time.Second, time.Hour)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 1 * time.Second},  // 1 * 2^0
		{2, 2 * time.Second},  // 1 * 2^1
		{3, 4 * time.Second},  // 1 * 2^2
		{4, 8 * time.Second},  // 1 * 2^3
		{5, 16 * time.Second}, // 1 * 2^4
	}
	for _, tt := range tests {
		if got := e.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestExponential_CapsAtMax(t *testing.T) {
	e := backoff.NewExponential(time.Second, 10*time.Second)

	if got := e.Delay(5); got != 10*time.Second {
		t.Errorf("Delay(5) = %v, want %v (capped at Max)", got, 10*time.Second)
	}
	if got := e.Delay(20); got != 10*time.Second {
		t.Errorf("Delay(20) = %v, want %v (capped at Max)", got, 10*time.Second)
	}
}

func TestExponentialFactor_GrowsByFactor(t *testing.T) {
	// The polling controller's 1.5x growth from a 2s base.
	e := backoff.NewExponentialFactor(2*time.Second, 1.5, 30*time.Second)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 2 * time.Second},
		{2, 3 * time.Second},
		{3, 4500 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := e.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestExponential_DelaysNonDecreasing(t *testing.T) {
	e := backoff.NewExponentialFactor(2*time.Second, 1.5, 30*time.Second)

	prev := time.Duration(0)
	for attempt := 1; attempt <= 20; attempt++ {
		d := e.Delay(attempt)
		if d < prev {
			t.Fatalf("Delay(%d) = %v < previous %v", attempt, d, prev)
		}
		if d > 30*time.Second {
			t.Fatalf("Delay(%d) = %v exceeds cap", attempt, d)
		}
		prev = d
	}
}

func TestSchedule_FixedDelays(t *testing.T) {
	s := backoff.NewSchedule(time.Second, 3*time.Second, 5*time.Second)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 1 * time.Second},
		{2, 3 * time.Second},
		{3, 5 * time.Second},
		{4, 5 * time.Second},  // past the table: reuse last entry
		{99, 5 * time.Second},
	}
	for _, tt := range tests {
		if got := s.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestSchedule_Empty(t *testing.T) {
	s := backoff.NewSchedule()
	if got := s.Delay(1); got != 0 {
		t.Errorf("empty schedule Delay(1) = %v, want 0", got)
	}
}

func TestExponentialWithJitter_WithinBounds(t *testing.T) {
	e := backoff.NewExponentialWithJitter(time.Second, 10*time.Second)

	for attempt := 1; attempt <= 5; attempt++ {
		maxDelay := 10 * time.Second

		for range 100 {
			got := e.Delay(attempt)
			if got < 0 {
				t.Errorf("Delay(%d) = %v, should be >= 0", attempt, got)
			}
			if got > maxDelay {
				t.Errorf("Delay(%d) = %v, should be <= %v", attempt, got, maxDelay)
			}
		}
	}
}
