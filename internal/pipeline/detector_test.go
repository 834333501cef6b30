package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/MrWong99/polyvox/internal/config"
	"github.com/MrWong99/polyvox/internal/observe"
	"github.com/MrWong99/polyvox/pkg/provider/speech"
	speechmock "github.com/MrWong99/polyvox/pkg/provider/speech/mock"
)

// confidentText scores past both early-exit thresholds.
const confidentText = "the quick brown fox jumps over the lazy dog"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestDetector(cfg *config.PipelineConfig, p speech.Transcriber) *detector {
	d := newDetector(cfg, p, newInterRequestLimiter(cfg), observe.DefaultMetrics(), testLogger())
	d.sleep = func(context.Context, time.Duration) error { return nil }
	return d
}

func fastPipeline() config.PipelineConfig {
	cfg := config.DefaultPipeline()
	cfg.InterRequestDelayMs = 0
	return cfg
}

func TestDetector_FixedLanguageSingleAttempt(t *testing.T) {
	cfg := fastPipeline()
	p := &speechmock.Provider{
		Results: map[string]speech.Result{"ta-IN": {Transcript: "வணக்கம் நண்பர்களே", DetectedLanguage: "ta-IN"}},
	}
	d := newTestDetector(&cfg, p)

	res, err := d.Detect(context.Background(), []byte{0}, "ta-IN")
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if res.Language != "ta-IN" || res.AutoDetected {
		t.Errorf("expected fixed ta-IN result, got %+v", res)
	}
	if langs := p.Languages(); len(langs) != 1 || langs[0] != "ta-IN" {
		t.Errorf("expected exactly one ta-IN call, got %v", langs)
	}
}

func TestDetector_EarlyExitOnConfidentCandidate(t *testing.T) {
	cfg := fastPipeline()
	p := &speechmock.Provider{
		Results: map[string]speech.Result{
			"hi-IN": {Transcript: confidentText, DetectedLanguage: "hi-IN"},
		},
	}
	d := newTestDetector(&cfg, p)

	res, err := d.Detect(context.Background(), []byte{0}, LanguageAuto)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if res.Language != "hi-IN" || !res.AutoDetected {
		t.Errorf("expected auto-detected hi-IN, got %+v", res)
	}
	if langs := p.Languages(); len(langs) != 1 {
		t.Errorf("expected early exit after first candidate, got calls %v", langs)
	}
}

func TestDetector_BestOfAllCandidates(t *testing.T) {
	cfg := fastPipeline()
	p := &speechmock.Provider{
		Results: map[string]speech.Result{
			"hi-IN": {Transcript: "kuch"},
			"en-IN": {Transcript: "hello can you hear me"},
			"bn-IN": {Transcript: "ki"},
		},
	}
	d := newTestDetector(&cfg, p)

	res, err := d.Detect(context.Background(), []byte{0}, LanguageAuto)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if res.Language != "en-IN" {
		t.Errorf("expected en-IN to win on score, got %q", res.Language)
	}
	// No candidate passed the early-exit bar, so all four raced.
	if langs := p.Languages(); len(langs) != cfg.MaxLanguages {
		t.Errorf("expected %d candidate calls, got %v", cfg.MaxLanguages, langs)
	}
}

func TestDetector_RateLimitRetriesOnce(t *testing.T) {
	cfg := fastPipeline()
	p := &speechmock.Provider{
		ErrsOnce: map[string]error{"hi-IN": speech.ErrRateLimited},
		Results: map[string]speech.Result{
			"hi-IN": {Transcript: confidentText, DetectedLanguage: "hi-IN"},
		},
	}
	d := newTestDetector(&cfg, p)
	slept := 0
	d.sleep = func(context.Context, time.Duration) error { slept++; return nil }

	res, err := d.Detect(context.Background(), []byte{0}, LanguageAuto)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if res.Language != "hi-IN" {
		t.Errorf("expected hi-IN after retry, got %q", res.Language)
	}
	if slept != 1 {
		t.Errorf("expected exactly one backoff, got %d", slept)
	}
	if langs := p.Languages(); len(langs) != 2 || langs[0] != "hi-IN" || langs[1] != "hi-IN" {
		t.Errorf("expected hi-IN attempted twice, got %v", langs)
	}
}

func TestDetector_FallbackRescuesFailedRace(t *testing.T) {
	cfg := fastPipeline()
	cfg.FallbackLanguage = "fr-FR"
	boom := errors.New("boom")
	p := &speechmock.Provider{
		Errs: map[string]error{"hi-IN": boom, "en-IN": boom, "bn-IN": boom, "te-IN": boom},
		Results: map[string]speech.Result{
			"fr-FR": {Transcript: confidentText, DetectedLanguage: "fr-FR"},
		},
	}
	d := newTestDetector(&cfg, p)

	res, err := d.Detect(context.Background(), []byte{0}, LanguageAuto)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if res.Language != "fr-FR" || res.Transcript != confidentText || !res.AutoDetected {
		t.Errorf("expected fallback rescue in fr-FR, got %+v", res)
	}
	langs := p.Languages()
	if len(langs) != cfg.MaxLanguages+1 || langs[len(langs)-1] != "fr-FR" {
		t.Errorf("expected all candidates then one fr-FR attempt, got %v", langs)
	}
}

func TestDetector_AllAttemptsAndFallbackFailed(t *testing.T) {
	cfg := fastPipeline()
	boom := errors.New("boom")
	p := &speechmock.Provider{
		Errs: map[string]error{"hi-IN": boom, "en-IN": boom, "bn-IN": boom, "te-IN": boom},
	}
	d := newTestDetector(&cfg, p)

	if _, err := d.Detect(context.Background(), []byte{0}, LanguageAuto); !errors.Is(err, boom) {
		t.Errorf("expected aggregated failure, got %v", err)
	}
	// The fallback language errored during the race, so it gets one more try
	// before the flush is abandoned.
	langs := p.Languages()
	if len(langs) != cfg.MaxLanguages+1 || langs[len(langs)-1] != cfg.FallbackLanguage {
		t.Errorf("expected a final %s attempt, got %v", cfg.FallbackLanguage, langs)
	}
}

func TestDetector_AllEmptyTriesFallbackOutsideRace(t *testing.T) {
	cfg := fastPipeline()
	cfg.FallbackLanguage = "fr-FR"
	p := &speechmock.Provider{
		Results: map[string]speech.Result{
			"fr-FR": {Transcript: "bonjour tout le monde", DetectedLanguage: "fr-FR"},
		},
	}
	d := newTestDetector(&cfg, p)

	res, err := d.Detect(context.Background(), []byte{0}, LanguageAuto)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if res.Language != "fr-FR" || res.Transcript != "bonjour tout le monde" {
		t.Errorf("expected fr-FR fallback transcript, got %+v", res)
	}
	if langs := p.Languages(); len(langs) != cfg.MaxLanguages+1 {
		t.Errorf("expected all candidates then one fr-FR attempt, got %v", langs)
	}
}

func TestDetector_AllEmptyFallsBackToFallbackLanguage(t *testing.T) {
	cfg := fastPipeline()
	p := &speechmock.Provider{}
	d := newTestDetector(&cfg, p)

	res, err := d.Detect(context.Background(), []byte{0}, LanguageAuto)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if res.Transcript != "" || res.Language != cfg.FallbackLanguage {
		t.Errorf("expected empty transcript labeled %q, got %+v", cfg.FallbackLanguage, res)
	}
	// The fallback language was already covered by the race and returned
	// empty without error, so no extra attempt is spent on it.
	if langs := p.Languages(); len(langs) != cfg.MaxLanguages {
		t.Errorf("expected %d candidate calls only, got %v", cfg.MaxLanguages, langs)
	}
}

func TestDetector_NoEarlyExitAtThresholdBoundary(t *testing.T) {
	cfg := fastPipeline()
	// Exactly HighConfidenceWords tokens: the bar must be strictly exceeded.
	p := &speechmock.Provider{
		Results: map[string]speech.Result{
			"hi-IN": {Transcript: "please join the call right now", DetectedLanguage: "hi-IN"},
		},
	}
	d := newTestDetector(&cfg, p)

	res, err := d.Detect(context.Background(), []byte{0}, LanguageAuto)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if res.Language != "hi-IN" {
		t.Errorf("expected hi-IN to win, got %q", res.Language)
	}
	if langs := p.Languages(); len(langs) != cfg.MaxLanguages {
		t.Errorf("expected the full race despite a decent first candidate, got %v", langs)
	}
}

func TestDetector_UnknownProviderLanguageLabeled(t *testing.T) {
	cfg := fastPipeline()
	p := &speechmock.Provider{
		Results: map[string]speech.Result{
			"hi-IN": {Transcript: confidentText, DetectedLanguage: "Unknown"},
		},
	}
	d := newTestDetector(&cfg, p)

	res, err := d.Detect(context.Background(), []byte{0}, LanguageAuto)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if res.Language != languageUnknown {
		t.Errorf("expected unknown label, got %q", res.Language)
	}
}

func TestScoreTranscript(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		wantScore float64
		wantWords int
	}{
		{"empty", "", 0, 0},
		{"whitespace", "   ", 0, 0},
		{"two words", "hello there", 5.1, 2},
		{"caps character contribution", confidentText, 22.3, 9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, words := scoreTranscript(tt.text)
			if words != tt.wantWords {
				t.Errorf("words = %d, want %d", words, tt.wantWords)
			}
			if diff := score - tt.wantScore; diff > 0.001 || diff < -0.001 {
				t.Errorf("score = %v, want %v", score, tt.wantScore)
			}
		})
	}
}
