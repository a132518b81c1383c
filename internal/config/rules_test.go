package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/promohub/channel-dispatch/internal/domain"
)

func TestLoadRules_MissingFileUsesDefaults(t *testing.T) {
	rules, err := LoadRules(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rules[domain.ChannelTelegram].MinInterval != 3*time.Minute {
		t.Fatalf("telegram interval = %v, want 3m", rules[domain.ChannelTelegram].MinInterval)
	}
	if rules[domain.ChannelTwitter].DailyCap != 50 {
		t.Fatalf("twitter cap = %d, want 50", rules[domain.ChannelTwitter].DailyCap)
	}
	if rules[domain.ChannelInstagram].Enabled {
		t.Fatal("expected instagram disabled by default")
	}
}

func TestLoadRules_PartialFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	content := `
twitter:
  min_interval: 30m
  daily_cap: 20
instagram:
  enabled: true
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	rules, err := LoadRules(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rules[domain.ChannelTwitter].MinInterval != 30*time.Minute {
		t.Fatalf("twitter interval = %v, want 30m", rules[domain.ChannelTwitter].MinInterval)
	}
	if rules[domain.ChannelTwitter].DailyCap != 20 {
		t.Fatalf("twitter cap = %d, want 20", rules[domain.ChannelTwitter].DailyCap)
	}
	if !rules[domain.ChannelInstagram].Enabled {
		t.Fatal("expected instagram enabled after override")
	}
	// Untouched channels keep their defaults.
	if rules[domain.ChannelWhatsApp].MinInterval != 3*time.Hour {
		t.Fatalf("whatsapp interval = %v, want 3h", rules[domain.ChannelWhatsApp].MinInterval)
	}
}

func TestLoadRules_RejectsUnknownChannel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte("fax:\n  daily_cap: 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadRules(path); err == nil {
		t.Fatal("expected error for unknown channel")
	}
}

func TestLoadRules_RejectsInvalidInterval(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte("twitter:\n  min_interval: soon\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadRules(path); err == nil {
		t.Fatal("expected error for invalid duration")
	}
}
