package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	v := NewViper()
	v.Set("auth.signing_secret", "signing")
	v.Set("auth.client_id", "bridge-bot")
	v.Set("auth.client_secret", "bootstrap")
	v.Set("webhook.secret", "hook")

	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}
	if cfg.HTTPAddress != "0.0.0.0:8080" {
		t.Fatalf("unexpected http address %q", cfg.HTTPAddress)
	}
	if cfg.DatabasePath != "memberlink.db" {
		t.Fatalf("unexpected database path %q", cfg.DatabasePath)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("unexpected log level %q", cfg.LogLevel)
	}
	if cfg.SweepInterval != time.Minute {
		t.Fatalf("unexpected sweep interval %v", cfg.SweepInterval)
	}
	if cfg.SessionTTL != 10*time.Minute {
		t.Fatalf("unexpected session ttl %v", cfg.SessionTTL)
	}
	if cfg.TelegramToken != "" {
		t.Fatalf("telegram token must default to empty, got %q", cfg.TelegramToken)
	}
}

func TestLoadRejectsMissingSecrets(t *testing.T) {
	cases := []struct {
		name string
		omit string
	}{
		{name: "signing secret", omit: "auth.signing_secret"},
		{name: "client id", omit: "auth.client_id"},
		{name: "client secret", omit: "auth.client_secret"},
		{name: "webhook secret", omit: "webhook.secret"},
	}
	for _, testCase := range cases {
		t.Run(testCase.name, func(t *testing.T) {
			v := NewViper()
			for _, key := range []string{"auth.signing_secret", "auth.client_id", "auth.client_secret", "webhook.secret"} {
				if key != testCase.omit {
					v.Set(key, "value")
				}
			}
			if _, err := Load(v); err == nil || !strings.Contains(err.Error(), testCase.omit) {
				t.Fatalf("expected error naming %s, got %v", testCase.omit, err)
			}
		})
	}
}

func TestLoadRejectsNonPositiveDurations(t *testing.T) {
	v := NewViper()
	v.Set("auth.signing_secret", "signing")
	v.Set("auth.client_id", "bridge-bot")
	v.Set("auth.client_secret", "bootstrap")
	v.Set("webhook.secret", "hook")
	v.Set("sessions.sweep_interval", "0s")

	if _, err := Load(v); err == nil {
		t.Fatalf("expected error for zero sweep interval")
	}
}

func TestLoadReadsOverrides(t *testing.T) {
	v := NewViper()
	v.Set("auth.signing_secret", "signing")
	v.Set("auth.client_id", "bridge-bot")
	v.Set("auth.client_secret", "bootstrap")
	v.Set("webhook.secret", "hook")
	v.Set("http.address", "127.0.0.1:9000")
	v.Set("telegram.token", "123:abc")
	v.Set("sessions.ttl", "5m")

	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}
	if cfg.HTTPAddress != "127.0.0.1:9000" {
		t.Fatalf("unexpected http address %q", cfg.HTTPAddress)
	}
	if cfg.TelegramToken != "123:abc" {
		t.Fatalf("unexpected telegram token %q", cfg.TelegramToken)
	}
	if cfg.SessionTTL != 5*time.Minute {
		t.Fatalf("unexpected session ttl %v", cfg.SessionTTL)
	}
}
