package main

import (
	"errors"
	"testing"
	"time"
)

func TestRetryDelayFromError(t *testing.T) {
	tests := []struct {
		err  error
		want time.Duration
	}{
		{nil, 0},
		{errors.New("Too Many Requests: retry after 7"), 7 * time.Second},
		{errors.New("too many requests"), 3 * time.Second},
		{errors.New("connection reset"), time.Second},
	}
	for _, tt := range tests {
		if got := retryDelayFromError(tt.err); got != tt.want {
			t.Errorf("retryDelayFromError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestShortHash(t *testing.T) {
	a, b := shortHash("123:abc"), shortHash("123:abd")
	if len(a) != 16 || a == b || a != shortHash("123:abc") {
		t.Fatalf("shortHash = %q, %q", a, b)
	}
}
