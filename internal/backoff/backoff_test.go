package backoff

import (
	"testing"
	"time"
)

func TestExponential_DoublesEachAttempt(t *testing.T) {
	e := NewExponential(time.Second, time.Hour)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 16 * time.Second},
	}
	for _, tt := range tests {
		if got := e.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestExponential_CapsAtMax(t *testing.T) {
	e := NewExponential(time.Second, 10*time.Second)

	if got := e.Delay(6); got != 10*time.Second {
		t.Errorf("Delay(6) = %v, want %v (capped)", got, 10*time.Second)
	}
	if got := e.Delay(100); got != 10*time.Second {
		t.Errorf("Delay(100) = %v, want %v (capped)", got, 10*time.Second)
	}
}

func TestExponential_ClampsBadAttempt(t *testing.T) {
	e := NewExponential(time.Second, time.Minute)
	if got := e.Delay(0); got != time.Second {
		t.Errorf("Delay(0) = %v, want %v", got, time.Second)
	}
	if got := e.Delay(-3); got != time.Second {
		t.Errorf("Delay(-3) = %v, want %v", got, time.Second)
	}
}

func TestConstant_ReturnsFixedDelay(t *testing.T) {
	c := NewConstant(5 * time.Second)
	for attempt := 1; attempt <= 10; attempt++ {
		if got := c.Delay(attempt); got != 5*time.Second {
			t.Errorf("Delay(%d) = %v, want %v", attempt, got, 5*time.Second)
		}
	}
}
