// Package config provides the configuration schema and loader for the Polyvox
// transcription server.
//
// The whole configuration is loaded once at startup into an immutable [Config]
// value that is passed by reference into each component constructor. Tuning
// knobs that the pipeline consults on the hot path all live in
// [PipelineConfig]; their defaults come from the empirically tuned values of
// the production deployment and are deliberately overridable rather than
// hard-coded.
package config

// LogLevel controls log verbosity for the Polyvox server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for Polyvox.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Provider ProviderConfig `yaml:"provider"`
	Store    StoreConfig    `yaml:"store"`
	Pipeline PipelineConfig `yaml:"pipeline"`
}

// ServerConfig holds network and logging settings for the Polyvox server.
type ServerConfig struct {
	// ListenAddr is the TCP address the WebSocket ingress listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// MetricsAddr is the TCP address serving /metrics and /healthz.
	// Empty disables the observability endpoint.
	MetricsAddr string `yaml:"metrics_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// ProviderConfig selects and authenticates the upstream speech provider.
type ProviderConfig struct {
	// Name selects the provider implementation. Currently "openai".
	Name string `yaml:"name"`

	// APIKey is the provider API key. When empty the transcription feature is
	// disabled: session starts are answered with a "disabled" status.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// STTModel selects the transcription model (e.g., "whisper-1").
	STTModel string `yaml:"stt_model"`

	// TranslateModel selects the text-translation model (e.g., "gpt-4o-mini").
	TranslateModel string `yaml:"translate_model"`

	// RequestTimeoutMs bounds each provider HTTP request. A timeout is treated
	// as a per-candidate failure, not a session abort.
	RequestTimeoutMs int `yaml:"request_timeout_ms"`
}

// StoreConfig holds settings for the transcript persistence collaborator.
type StoreConfig struct {
	// PostgresDSN is the PostgreSQL connection string for transcript storage.
	// Empty disables persistence; segments are still emitted over the transport.
	PostgresDSN string `yaml:"postgres_dsn"`
}

// PipelineConfig holds every tuning knob of the per-session transcription
// pipeline. All thresholds assume PCM16 mono at SampleRate.
type PipelineConfig struct {
	// SampleRate is the canonical pipeline sample rate in Hz.
	SampleRate int `yaml:"sample_rate"`

	// --- Voice activity gate ---

	// RMSDropFloor is the absolute RMS level below which a frame is discarded
	// as silence (still counted toward the silence run).
	RMSDropFloor float64 `yaml:"rms_drop_floor"`

	// RMSSpeechThreshold is the RMS level at or above which a frame counts as
	// speech. Frames between the floor and this threshold are buffered only
	// within the trailing-silence grace window.
	RMSSpeechThreshold float64 `yaml:"rms_speech_threshold"`

	// TrailingSilenceGraceFrames is how many consecutive sub-threshold frames
	// after speech are still buffered to preserve utterance boundaries.
	TrailingSilenceGraceFrames int `yaml:"trailing_silence_grace_frames"`

	// MaxSilenceRun is the consecutive-silence frame count that triggers an
	// endpointing flush when the buffer is non-empty.
	MaxSilenceRun int `yaml:"max_silence_run"`

	// --- Adaptive batching ---

	// RequiredDurationMs, RequiredBytes, and MinSpeechFrames must all be
	// reached before a regular flush fires.
	RequiredDurationMs float64 `yaml:"required_duration_ms"`
	RequiredBytes      int     `yaml:"required_bytes"`
	MinSpeechFrames    int     `yaml:"min_speech_frames"`

	// EscalatedDurationMs and EscalatedBytes replace the regular thresholds
	// once UnknownStreakLimit consecutive low-quality results have been seen,
	// trading clip length for a quicker retry.
	EscalatedDurationMs float64 `yaml:"escalated_duration_ms"`
	EscalatedBytes      int     `yaml:"escalated_bytes"`

	// UnknownStreakLimit is the unknown-result streak that activates the
	// escalated thresholds.
	UnknownStreakLimit int `yaml:"unknown_streak_limit"`

	// HardCapDurationMs and HardCapBytes force a flush unconditionally,
	// bounding buffer growth and respecting the provider's maximum utterance
	// duration.
	HardCapDurationMs float64 `yaml:"hard_cap_duration_ms"`
	HardCapBytes      int     `yaml:"hard_cap_bytes"`

	// MinFlushBytes is the smallest clip worth submitting; below it the flush
	// is deferred and the buffer kept.
	MinFlushBytes int `yaml:"min_flush_bytes"`

	// DeferRetryMs is how long a deferred flush waits before the thresholds
	// are re-evaluated.
	DeferRetryMs int `yaml:"defer_retry_ms"`

	// --- Multi-language detection ---

	// CandidateLanguages is the prioritized list of languages to race in
	// "auto" mode, ordered by expected usage frequency.
	CandidateLanguages []string `yaml:"candidate_languages"`

	// MaxLanguages bounds how many candidates are attempted per flush,
	// independent of the list length.
	MaxLanguages int `yaml:"max_languages"`

	// InterRequestDelayMs is the minimum spacing between provider calls,
	// enforced process-wide.
	InterRequestDelayMs int `yaml:"inter_request_delay_ms"`

	// RateLimitBackoffMs is the single bounded wait applied when a candidate
	// hits the provider rate limit before its one retry.
	RateLimitBackoffMs int `yaml:"rate_limit_backoff_ms"`

	// HighConfidenceScore and HighConfidenceWords are the early-exit
	// thresholds: once a candidate result exceeds both, remaining candidates
	// are skipped.
	HighConfidenceScore float64 `yaml:"high_confidence_score"`
	HighConfidenceWords int     `yaml:"high_confidence_words"`

	// FallbackLanguage is the fixed language used when detection fails
	// entirely and in degraded-translate mode.
	FallbackLanguage string `yaml:"fallback_language"`

	// --- Translation normalizer ---

	// SimilarityCutoff is the normalized edit-distance similarity above which
	// a "translation" is judged to already be in the target language.
	SimilarityCutoff float64 `yaml:"similarity_cutoff"`

	// MinRelabelChars gates the similarity relabel check: shorter texts have
	// too-noisy edit-distance similarity to trust.
	MinRelabelChars int `yaml:"min_relabel_chars"`

	// MaxTranslateErrors is the consecutive-failure count after which a
	// session stops translating for its remainder (degraded mode).
	MaxTranslateErrors int `yaml:"max_translate_errors"`

	// --- Quality filter ---

	// MinWords, MinChars, and LongTokenLen define the too-short rejection: a
	// transcript is rejected when it has fewer than MinWords words AND fewer
	// than MinChars characters AND no single token of LongTokenLen or more.
	MinWords     int `yaml:"min_words"`
	MinChars     int `yaml:"min_chars"`
	LongTokenLen int `yaml:"long_token_len"`

	// UnknownMinChars is the minimum length for an "unknown"-language
	// transcript to be retried in the fallback language instead of rejected.
	UnknownMinChars int `yaml:"unknown_min_chars"`

	// FillerWindowMs is the suppression window for short all-filler repeats.
	FillerWindowMs int `yaml:"filler_window_ms"`

	// DuplicateWindowMs is the suppression window for exact repeats.
	DuplicateWindowMs int `yaml:"duplicate_window_ms"`

	// FillerWords is the filler vocabulary ("yes", "okay", "um", ...).
	FillerWords []string `yaml:"filler_words"`
}

// DefaultPipeline returns the production-tuned pipeline defaults.
func DefaultPipeline() PipelineConfig {
	return PipelineConfig{
		SampleRate: 16000,

		RMSDropFloor:               250,
		RMSSpeechThreshold:         500,
		TrailingSilenceGraceFrames: 2,
		MaxSilenceRun:              6,

		RequiredDurationMs:  1200,
		RequiredBytes:       40000,
		MinSpeechFrames:     3,
		EscalatedDurationMs: 600,
		EscalatedBytes:      16000,
		UnknownStreakLimit:  2,
		HardCapDurationMs:   25000,
		HardCapBytes:        800000,
		MinFlushBytes:       12800,
		DeferRetryMs:        1500,

		CandidateLanguages:  []string{"hi-IN", "en-IN", "bn-IN", "te-IN", "mr-IN", "ta-IN", "gu-IN", "kn-IN"},
		MaxLanguages:        4,
		InterRequestDelayMs: 350,
		RateLimitBackoffMs:  2000,
		HighConfidenceScore: 12,
		HighConfidenceWords: 6,
		FallbackLanguage:    "en-IN",

		SimilarityCutoff:   0.8,
		MinRelabelChars:    12,
		MaxTranslateErrors: 3,

		MinWords:          3,
		MinChars:          12,
		LongTokenLen:      10,
		UnknownMinChars:   18,
		FillerWindowMs:    5000,
		DuplicateWindowMs: 2000,
		FillerWords: []string{
			"yes", "no", "okay", "ok", "yeah", "yep", "hmm", "um", "uh",
			"haan", "nahi", "accha", "theek", "hai",
		},
	}
}

// Default returns a complete default configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			ListenAddr:  ":8080",
			MetricsAddr: ":9090",
			LogLevel:    LogInfo,
		},
		Provider: ProviderConfig{
			Name:             "openai",
			STTModel:         "whisper-1",
			TranslateModel:   "gpt-4o-mini",
			RequestTimeoutMs: 30000,
		},
		Pipeline: DefaultPipeline(),
	}
}
