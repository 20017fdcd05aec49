package auth

import (
	"fmt"
	"testing"

	"golang.org/x/time/rate"
)

func TestParseRateSpec(t *testing.T) {
	tests := []struct {
		spec      string
		limit     rate.Limit
		burst     int
		unlimited bool
		wantErr   bool
	}{
		{"100/hour", rate.Limit(100.0 / 3600.0), 100, false, false},
		{"10/minute", rate.Limit(10.0 / 60.0), 10, false, false},
		{"5/second", rate.Limit(5), 5, false, false},
		{"2/day", rate.Limit(2.0 / 86400.0), 2, false, false},
		{"unlimited", 0, 0, true, false},
		{"", 0, 0, true, false},
		{"  Unlimited  ", 0, 0, true, false},
		{"100", 0, 0, false, true},
		{"0/hour", 0, 0, false, true},
		{"-3/hour", 0, 0, false, true},
		{"ten/hour", 0, 0, false, true},
		{"100/fortnight", 0, 0, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			limit, burst, unlimited, err := ParseRateSpec(tt.spec)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseRateSpec(%q): expected an error", tt.spec)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseRateSpec(%q): %v", tt.spec, err)
			}
			if unlimited != tt.unlimited {
				t.Fatalf("unlimited = %v, want %v", unlimited, tt.unlimited)
			}
			if limit != tt.limit || burst != tt.burst {
				t.Fatalf("limit/burst = %v/%d, want %v/%d", limit, burst, tt.limit, tt.burst)
			}
		})
	}
}

func TestLimiterPool_AllowsBurstThenDenies(t *testing.T) {
	pool := NewLimiterPool()

	// "3/hour" refills far too slowly to matter inside this test, so the
	// burst of 3 is all the caller gets.
	for i := 0; i < 3; i++ {
		if !pool.Allow("alice", "3/hour") {
			t.Fatalf("request %d inside the burst was denied", i+1)
		}
	}
	if pool.Allow("alice", "3/hour") {
		t.Fatal("request over the burst was allowed")
	}

	// Identities do not share buckets.
	if !pool.Allow("bob", "3/hour") {
		t.Fatal("fresh identity was denied")
	}
}

func TestLimiterPool_UnlimitedNeverDenies(t *testing.T) {
	pool := NewLimiterPool()
	for i := 0; i < 200; i++ {
		if !pool.Allow("admin", "unlimited") {
			t.Fatal("unlimited spec was denied")
		}
	}
}

func TestLimiterPool_BadSpecFailsOpen(t *testing.T) {
	pool := NewLimiterPool()
	for i := 0; i < 50; i++ {
		if !pool.Allow("weird", "banana/hour") {
			t.Fatal("unparseable spec must fail open")
		}
	}
}

func BenchmarkLimiterPoolAllow(b *testing.B) {
	pool := NewLimiterPool()
	for i := 0; i < b.N; i++ {
		pool.Allow(fmt.Sprintf("user-%d", i%8), "1000000/second")
	}
}

func TestLimiterPool_ChangedSpecTakesEffect(t *testing.T) {
	pool := NewLimiterPool()

	if !pool.Allow("alice", "1/hour") {
		t.Fatal("first request denied")
	}
	if pool.Allow("alice", "1/hour") {
		t.Fatal("request over the burst was allowed")
	}

	// A hot-reloaded limit applies on the identity's next request instead
	// of being pinned to the first-seen spec.
	if !pool.Allow("alice", "5/hour") {
		t.Fatal("raised limit did not take effect")
	}
	if !pool.Allow("alice", "unlimited") {
		t.Fatal("unlimited did not take effect")
	}
}
