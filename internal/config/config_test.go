package config

import "testing"

func TestValidateRequiresSecrets(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when required secrets are missing")
	}

	cfg.Vault.MasterSecret = "k"
	cfg.Vault.Salt = "s"
	cfg.Auth.APIKey = "a"
	cfg.Database.URL = "postgres://x"
	cfg.LLM.APIKey = "l"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestDefaultRateLimitConfigMatchesSpecTable(t *testing.T) {
	rl := DefaultRateLimitConfig()
	if rl.WebhookPerMinute != 200 || rl.AuthPerMinute != 1000 || rl.DefaultPerMinute != 100 {
		t.Fatalf("unexpected rate limit defaults: %+v", rl)
	}
}

func TestDefaultRetentionConfigMatchesSpecTable(t *testing.T) {
	r := DefaultRetentionConfig()
	if r.FreeDays != 30 || r.StarterDays != 90 || r.ProDays != 365 || r.EnterpriseDays != 730 {
		t.Fatalf("unexpected retention defaults: %+v", r)
	}
	if r.MinimumDays != 30 {
		t.Fatalf("expected enforced minimum of 30 days, got %d", r.MinimumDays)
	}
}
