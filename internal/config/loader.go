package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults for omitted
// fields, and validates the result. Useful in tests where configs are
// constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.ListenAddr == "" {
		errs = append(errs, errors.New("server.listen_addr must not be empty"))
	}

	if cfg.Provider.Name != "" && cfg.Provider.Name != "openai" {
		errs = append(errs, fmt.Errorf("provider.name %q is unknown; valid values: openai", cfg.Provider.Name))
	}

	p := &cfg.Pipeline
	if p.SampleRate <= 0 {
		errs = append(errs, errors.New("pipeline.sample_rate must be positive"))
	}
	if p.RMSDropFloor < 0 || p.RMSSpeechThreshold < 0 {
		errs = append(errs, errors.New("pipeline RMS thresholds must be non-negative"))
	}
	if p.RMSDropFloor > p.RMSSpeechThreshold {
		errs = append(errs, fmt.Errorf("pipeline.rms_drop_floor (%.0f) must not exceed pipeline.rms_speech_threshold (%.0f)", p.RMSDropFloor, p.RMSSpeechThreshold))
	}
	if p.RequiredDurationMs <= 0 || p.RequiredBytes <= 0 {
		errs = append(errs, errors.New("pipeline required duration/byte thresholds must be positive"))
	}
	if p.EscalatedDurationMs > p.RequiredDurationMs || p.EscalatedBytes > p.RequiredBytes {
		errs = append(errs, errors.New("pipeline escalated thresholds must not exceed the regular thresholds"))
	}
	if p.HardCapDurationMs < p.RequiredDurationMs || p.HardCapBytes < p.RequiredBytes {
		errs = append(errs, errors.New("pipeline hard caps must be at least the regular thresholds"))
	}
	if len(p.CandidateLanguages) == 0 {
		errs = append(errs, errors.New("pipeline.candidate_languages must not be empty"))
	}
	if p.MaxLanguages <= 0 {
		errs = append(errs, errors.New("pipeline.max_languages must be positive"))
	}
	if p.FallbackLanguage == "" {
		errs = append(errs, errors.New("pipeline.fallback_language must not be empty"))
	}
	if p.SimilarityCutoff < 0 || p.SimilarityCutoff > 1 {
		errs = append(errs, fmt.Errorf("pipeline.similarity_cutoff %.2f must be in [0,1]", p.SimilarityCutoff))
	}
	if p.MaxTranslateErrors <= 0 {
		errs = append(errs, errors.New("pipeline.max_translate_errors must be positive"))
	}

	return errors.Join(errs...)
}

// RequestTimeout returns the provider request timeout as a [time.Duration].
func (p ProviderConfig) RequestTimeout() time.Duration {
	return time.Duration(p.RequestTimeoutMs) * time.Millisecond
}
