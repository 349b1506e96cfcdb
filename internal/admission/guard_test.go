package admission

import "testing"

func TestAllowRejectsAtMaxConnections(t *testing.T) {
	g := New(Config{MaxConnections: 2})
	if ok, _ := g.Allow(1); !ok {
		t.Fatalf("expected admission below the limit")
	}
	if ok, reason := g.Allow(2); ok || reason == "" {
		t.Fatalf("expected rejection at the limit, got ok=%v reason=%q", ok, reason)
	}
}

func TestAllowUnlimitedByDefault(t *testing.T) {
	g := New(Config{})
	if ok, _ := g.Allow(1_000_000); !ok {
		t.Fatalf("expected unlimited admission when MaxConnections is unset")
	}
}

func TestAllowRateLimitsBursts(t *testing.T) {
	g := New(Config{AcceptsPerSecond: 1, AcceptBurst: 1})
	if ok, _ := g.Allow(0); !ok {
		t.Fatalf("expected first accept to consume the single burst token")
	}
	if ok, reason := g.Allow(0); ok || reason == "" {
		t.Fatalf("expected the second immediate accept to be rate limited, got ok=%v reason=%q", ok, reason)
	}
}
