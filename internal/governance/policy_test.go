package governance

import (
	"context"
	"testing"
)

func TestDefaultPolicyEngine_Evaluate(t *testing.T) {
	engine := NewDefaultPolicyEngine()
	ctx := context.Background()

	// Test Allow (Default)
	res1, err := engine.Evaluate(ctx, Request{Kind: "click", Target: "Share"})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if res1.Effect != EffectAllow {
		t.Errorf("Expected EffectAllow, got %s", res1.Effect)
	}

	// Test Deny by kind
	engine.DenyKind("Navigate")
	res2, err := engine.Evaluate(ctx, Request{Kind: "navigate", Value: "https://example.com"})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if res2.Effect != EffectDeny {
		t.Errorf("Expected EffectDeny, got %s", res2.Effect)
	}
}

func TestNewPolicyEngine_Patterns(t *testing.T) {
	engine, err := NewPolicyEngine(nil, []string{`(?i)delete account`, `(?i)place order`})
	if err != nil {
		t.Fatalf("NewPolicyEngine failed: %v", err)
	}

	cases := []struct {
		req  Request
		want Effect
	}{
		{Request{Kind: "click", Target: "Delete Account"}, EffectDeny},
		{Request{Kind: "fill", Target: "notes", Value: "please place order now"}, EffectDeny},
		{Request{Kind: "click", Target: "Add to cart"}, EffectAllow},
	}
	for _, c := range cases {
		res, err := engine.Evaluate(context.Background(), c.req)
		if err != nil {
			t.Fatalf("Evaluate failed: %v", err)
		}
		if res.Effect != c.want {
			t.Errorf("%+v: expected %s, got %s (%s)", c.req, c.want, res.Effect, res.Reason)
		}
	}

	if _, err := NewPolicyEngine(nil, []string{"("}); err == nil {
		t.Error("Expected error for invalid pattern")
	}
}
