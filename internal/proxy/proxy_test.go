package proxy

import (
	"context"
	"testing"
)

func TestMatchHost(t *testing.T) {
	cases := []struct {
		host, pattern string
		want          bool
	}{
		{"api.example.com", "*.example.com", true},
		{"example.com", "*.example.com", false},
		{"evilexample.com", "*.example.com", false},
		{"Example.COM", "example.com", true},
		{"other.com", "example.com", false},
	}
	for _, c := range cases {
		if got := matchHost(c.host, c.pattern); got != c.want {
			t.Errorf("matchHost(%q, %q) = %v, want %v", c.host, c.pattern, got, c.want)
		}
	}
}

func TestPolicy_DenyWinsOverAllow(t *testing.T) {
	p := Policy{Allow: []string{"localhost"}, Deny: []string{"localhost"}}
	allowed, matched := p.classify("localhost")
	if !matched {
		t.Fatal("expected localhost to match a rule")
	}
	if allowed {
		t.Error("deny should win when a host appears in both lists")
	}
}

func TestGateway_CheckHost_CachesDecision(t *testing.T) {
	calls := 0
	g := New(Policy{}, func(ctx context.Context, host string) (Decision, error) {
		calls++
		return Decision{Allow: true}, nil
	}, false)

	ctx := context.Background()
	d1, err := g.checkHost(ctx, "example.com")
	if err != nil || !d1.Allow {
		t.Fatalf("unexpected first decision: %+v, %v", d1, err)
	}
	d2, err := g.checkHost(ctx, "example.com")
	if err != nil || !d2.Allow {
		t.Fatalf("unexpected cached decision: %+v, %v", d2, err)
	}
	if calls != 1 {
		t.Errorf("expected permission callback called once, got %d", calls)
	}
}

func TestGateway_CheckHost_StaticRuleNeverCallsCallback(t *testing.T) {
	g := New(Policy{Deny: []string{"localhost"}}, func(ctx context.Context, host string) (Decision, error) {
		t.Fatal("callback should not be invoked for a statically denied host")
		return Decision{}, nil
	}, false)

	d, err := g.checkHost(context.Background(), "localhost")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Allow {
		t.Error("expected localhost to be denied by static rule")
	}
}

func TestValidatePublicHostname_BlocksPrivateIP(t *testing.T) {
	if err := ValidatePublicHostname("127.0.0.1"); err == nil {
		t.Error("expected loopback address to be rejected")
	}
	if err := ValidatePublicHostname("10.0.0.5"); err == nil {
		t.Error("expected private address to be rejected")
	}
}

func TestValidatePublicHostname_BlocksKnownLocalNames(t *testing.T) {
	if err := ValidatePublicHostname("localhost"); err == nil {
		t.Error("expected localhost to be rejected")
	}
	if err := ValidatePublicHostname("169.254.169.254"); err == nil {
		t.Error("expected metadata address to be rejected")
	}
}
