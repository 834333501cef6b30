package config

import (
	"strings"
	"testing"
)

func TestLoadFromReader(t *testing.T) {
	t.Run("empty input yields defaults", func(t *testing.T) {
		cfg, err := LoadFromReader(strings.NewReader(""))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Server.ListenAddr != ":8080" {
			t.Errorf("expected default listen addr, got %q", cfg.Server.ListenAddr)
		}
		if cfg.Pipeline.RequiredDurationMs != 1200 {
			t.Errorf("expected default required duration, got %f", cfg.Pipeline.RequiredDurationMs)
		}
		if len(cfg.Pipeline.FillerWords) == 0 {
			t.Error("expected default filler vocabulary")
		}
	})

	t.Run("partial overrides keep other defaults", func(t *testing.T) {
		in := `
server:
  listen_addr: ":9999"
pipeline:
  max_languages: 2
`
		cfg, err := LoadFromReader(strings.NewReader(in))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Server.ListenAddr != ":9999" {
			t.Errorf("expected :9999, got %q", cfg.Server.ListenAddr)
		}
		if cfg.Pipeline.MaxLanguages != 2 {
			t.Errorf("expected max_languages=2, got %d", cfg.Pipeline.MaxLanguages)
		}
		if cfg.Pipeline.FallbackLanguage != "en-IN" {
			t.Errorf("expected default fallback language, got %q", cfg.Pipeline.FallbackLanguage)
		}
	})

	t.Run("unknown fields rejected", func(t *testing.T) {
		if _, err := LoadFromReader(strings.NewReader("bogus: 1\n")); err == nil {
			t.Fatal("expected error for unknown field")
		}
	})
}

func TestValidate(t *testing.T) {
	valid := func() Config { return Default() }

	t.Run("default config is valid", func(t *testing.T) {
		cfg := valid()
		if err := Validate(&cfg); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad log level", func(c *Config) { c.Server.LogLevel = "verbose" }},
		{"unknown provider", func(c *Config) { c.Provider.Name = "acme" }},
		{"drop floor above speech threshold", func(c *Config) { c.Pipeline.RMSDropFloor = 9000 }},
		{"escalated above required", func(c *Config) { c.Pipeline.EscalatedDurationMs = 5000 }},
		{"hard cap below required", func(c *Config) { c.Pipeline.HardCapBytes = 1 }},
		{"no candidate languages", func(c *Config) { c.Pipeline.CandidateLanguages = nil }},
		{"similarity out of range", func(c *Config) { c.Pipeline.SimilarityCutoff = 1.5 }},
		{"empty fallback language", func(c *Config) { c.Pipeline.FallbackLanguage = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			if err := Validate(&cfg); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}
