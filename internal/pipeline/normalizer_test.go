package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/polyvox/internal/config"
	"github.com/MrWong99/polyvox/internal/observe"
	speechmock "github.com/MrWong99/polyvox/pkg/provider/speech/mock"
)

func newTestNormalizer(cfg *config.PipelineConfig, p *speechmock.Provider) *normalizer {
	return newNormalizer(cfg, p, observe.DefaultMetrics(), testLogger())
}

func TestNormalizer_SameBaseLanguageSkipsTranslation(t *testing.T) {
	cfg := config.DefaultPipeline()
	p := &speechmock.Provider{}
	n := newTestNormalizer(&cfg, p)
	var st translateState

	got := n.Normalize(context.Background(), &st, "hello everyone", "en-US", "en-IN")
	if got.Text != "hello everyone" || got.Language != "en-US" || got.Dual {
		t.Errorf("unexpected result: %+v", got)
	}
	if len(p.TranslateCalls) != 0 {
		t.Errorf("expected no translate calls, got %d", len(p.TranslateCalls))
	}
}

func TestNormalizer_TranslationProducesDualMode(t *testing.T) {
	cfg := config.DefaultPipeline()
	p := &speechmock.Provider{TranslateResult: "how are you my friend"}
	n := newTestNormalizer(&cfg, p)
	var st translateState

	got := n.Normalize(context.Background(), &st, "आप कैसे हैं मेरे दोस्त", "hi-IN", "en-IN")
	if got.Text != "how are you my friend" || got.Language != "en-IN" {
		t.Fatalf("unexpected result: %+v", got)
	}
	if !got.Dual || got.Original == "" || got.Translated == "" {
		t.Errorf("expected dual mode with both texts, got %+v", got)
	}
	if c := p.TranslateCalls[0]; c.SourceLang != "hi-IN" || c.TargetLang != "en-IN" {
		t.Errorf("unexpected translate call %+v", c)
	}
}

func TestNormalizer_RelabelsNearIdenticalTranslation(t *testing.T) {
	cfg := config.DefaultPipeline()
	p := &speechmock.Provider{TranslateResult: "I will join the meeting shortly."}
	n := newTestNormalizer(&cfg, p)
	var st translateState

	// The "hi-IN" label was wrong: the speaker was already in the target
	// language, so translation is a near no-op.
	got := n.Normalize(context.Background(), &st, "I will join the meeting shortly", "hi-IN", "en-IN")
	if got.Language != "en-IN" {
		t.Errorf("expected relabel to en-IN, got %q", got.Language)
	}
	if got.Text != "I will join the meeting shortly" {
		t.Errorf("expected original text kept on relabel, got %q", got.Text)
	}
	if got.Dual {
		t.Error("relabel must not produce dual mode")
	}
}

func TestNormalizer_ShortTextNotRelabeled(t *testing.T) {
	cfg := config.DefaultPipeline()
	p := &speechmock.Provider{TranslateResult: "theek hai"}
	n := newTestNormalizer(&cfg, p)
	var st translateState

	// 9 chars is under the relabel minimum; similarity is too noisy there.
	got := n.Normalize(context.Background(), &st, "theek hai", "hi-IN", "en-IN")
	if !got.Dual || got.Language != "en-IN" {
		t.Errorf("expected dual-mode translation for short text, got %+v", got)
	}
}

func TestNormalizer_FailureFallsBackToOriginal(t *testing.T) {
	cfg := config.DefaultPipeline()
	p := &speechmock.Provider{TranslateErr: errors.New("upstream down")}
	n := newTestNormalizer(&cfg, p)
	var st translateState

	got := n.Normalize(context.Background(), &st, "आप कैसे हैं", "hi-IN", "en-IN")
	if got.Text != "आप कैसे हैं" || got.Language != "hi-IN" || got.Dual {
		t.Errorf("expected untranslated fallback, got %+v", got)
	}
	if st.consecutiveErrors != 1 {
		t.Errorf("expected one recorded error, got %d", st.consecutiveErrors)
	}
}

func TestNormalizer_DegradesAfterConsecutiveFailures(t *testing.T) {
	cfg := config.DefaultPipeline()
	p := &speechmock.Provider{TranslateErr: errors.New("upstream down")}
	n := newTestNormalizer(&cfg, p)
	var st translateState
	ctx := context.Background()

	for iter := 0; iter < cfg.MaxTranslateErrors+1; iter++ {
		n.Normalize(ctx, &st, "आप कैसे हैं", "hi-IN", "en-IN")
	}
	if !st.degraded {
		t.Fatal("expected degraded mode after repeated failures")
	}

	calls := len(p.TranslateCalls)
	got := n.Normalize(ctx, &st, "आप कैसे हैं", "hi-IN", "en-IN")
	if len(p.TranslateCalls) != calls {
		t.Error("degraded session must not attempt translation")
	}
	if got.Text != "आप कैसे हैं" || got.Language != "hi-IN" {
		t.Errorf("unexpected degraded result: %+v", got)
	}
}

func TestNormalizer_EmptyTranslationIsFailure(t *testing.T) {
	cfg := config.DefaultPipeline()
	p := &speechmock.Provider{TranslateResult: "   "}
	n := newTestNormalizer(&cfg, p)
	var st translateState

	got := n.Normalize(context.Background(), &st, "आप कैसे हैं", "hi-IN", "en-IN")
	if got.Text != "आप कैसे हैं" || st.consecutiveErrors != 1 {
		t.Errorf("expected blank translation counted as failure, got %+v (errors=%d)", got, st.consecutiveErrors)
	}
}

func TestNormalizer_SuccessResetsErrorCount(t *testing.T) {
	cfg := config.DefaultPipeline()
	p := &speechmock.Provider{TranslateErr: errors.New("flaky")}
	n := newTestNormalizer(&cfg, p)
	var st translateState
	ctx := context.Background()

	n.Normalize(ctx, &st, "आप कैसे हैं", "hi-IN", "en-IN")
	n.Normalize(ctx, &st, "आप कैसे हैं", "hi-IN", "en-IN")

	p.TranslateErr = nil
	p.TranslateResult = "how are you"
	n.Normalize(ctx, &st, "आप कैसे हैं", "hi-IN", "en-IN")
	if st.consecutiveErrors != 0 {
		t.Errorf("expected error count reset on success, got %d", st.consecutiveErrors)
	}
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		min  float64
		max  float64
	}{
		{"identical", "hello world", "hello world", 1, 1},
		{"case folded", "Hello World", "hello world", 1, 1},
		{"both empty", "", "", 1, 1},
		{"punctuation only", "I will join the meeting", "I will join the meeting.", 0.9, 1},
		{"disjoint scripts", "आप कैसे हैं", "how are you", 0, 0.3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Similarity(tt.a, tt.b)
			if got < tt.min || got > tt.max {
				t.Errorf("Similarity(%q, %q) = %v, want in [%v, %v]", tt.a, tt.b, got, tt.min, tt.max)
			}
		})
	}
}
