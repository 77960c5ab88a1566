package config

import "testing"

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("CREDIT_CARD_FEE_CENTS", "")
	t.Setenv("REORDER_CACHE_TTL_SECONDS", "")

	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port 8080, got %q", cfg.Port)
	}
	if cfg.CreditCardFeeCents != 150 {
		t.Fatalf("expected default card fee 150, got %d", cfg.CreditCardFeeCents)
	}
	if cfg.PlanCacheTTLSeconds != 60 {
		t.Fatalf("expected default plan cache ttl 60, got %d", cfg.PlanCacheTTLSeconds)
	}
}

func TestLoadRejectsBadNumbers(t *testing.T) {
	t.Setenv("CREDIT_CARD_FEE_CENTS", "-5")
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "zero")

	cfg := Load()
	if cfg.CreditCardFeeCents != 150 {
		t.Fatalf("expected fallback card fee 150, got %d", cfg.CreditCardFeeCents)
	}
	if cfg.AccessTokenTTLMinutes != 480 {
		t.Fatalf("expected fallback token ttl 480, got %d", cfg.AccessTokenTTLMinutes)
	}
}
