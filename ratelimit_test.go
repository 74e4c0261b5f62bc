package main

import "testing"

func TestRateLimiterAllowsWithinBurst(t *testing.T) {
	r := newRateLimiter(5)
	allowed := 0
	for i := 0; i < 5; i++ {
		if r.Allow() {
			allowed++
		}
	}
	if allowed == 0 {
		t.Error("expected at least some of the initial burst to be allowed")
	}
}

func TestRateLimiterNilIsUnlimited(t *testing.T) {
	var r *rateLimiter
	for i := 0; i < 100; i++ {
		if !r.Allow() {
			t.Fatal("nil rate limiter should never deny")
		}
	}
}

func TestRateLimiterEventuallyDenies(t *testing.T) {
	r := newRateLimiter(1)
	denied := false
	for i := 0; i < 50; i++ {
		if !r.Allow() {
			denied = true
			break
		}
	}
	if !denied {
		t.Error("expected a low-rate limiter to eventually deny a rapid burst")
	}
}
