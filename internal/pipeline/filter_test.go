package pipeline

import (
	"testing"
	"time"

	"github.com/MrWong99/polyvox/internal/config"
)

func TestQualityFilter_EmptyRejected(t *testing.T) {
	cfg := config.DefaultPipeline()
	q := newQualityFilter(&cfg)

	v, reason := q.Check("   ", "en-IN", time.Now())
	if v != verdictReject || reason != "empty" {
		t.Errorf("expected empty rejection, got %v (%q)", v, reason)
	}
}

func TestQualityFilter_FillerRepeatSuppressed(t *testing.T) {
	cfg := config.DefaultPipeline()
	q := newQualityFilter(&cfg)
	now := time.Now()

	// A lone "okay" is a legitimate answer and must pass the length rules.
	v, _ := q.Check("okay", "en-IN", now)
	if v != verdictAccept {
		t.Fatalf("expected first okay accepted, got %v", v)
	}
	q.Accepted("okay", now)

	v, reason := q.Check("okay", "en-IN", now.Add(2*time.Second))
	if v != verdictReject || reason != "filler_repeat" {
		t.Errorf("expected filler repeat suppressed, got %v (%q)", v, reason)
	}

	// Past the window the same filler is fresh information again.
	v, _ = q.Check("okay", "en-IN", now.Add(6*time.Second))
	if v != verdictAccept {
		t.Errorf("expected okay accepted past filler window, got %v", v)
	}
}

func TestQualityFilter_ExactDuplicateSuppressed(t *testing.T) {
	cfg := config.DefaultPipeline()
	q := newQualityFilter(&cfg)
	now := time.Now()

	const text = "I will send the report today"
	v, _ := q.Check(text, "en-IN", now)
	if v != verdictAccept {
		t.Fatalf("expected first occurrence accepted, got %v", v)
	}
	q.Accepted(text, now)

	v, reason := q.Check(text, "en-IN", now.Add(time.Second))
	if v != verdictReject || reason != "duplicate" {
		t.Errorf("expected duplicate suppressed, got %v (%q)", v, reason)
	}

	v, _ = q.Check(text, "en-IN", now.Add(3*time.Second))
	if v != verdictAccept {
		t.Errorf("expected repeat past duplicate window accepted, got %v", v)
	}
}

func TestQualityFilter_DuplicateComparisonNormalized(t *testing.T) {
	cfg := config.DefaultPipeline()
	q := newQualityFilter(&cfg)
	now := time.Now()

	q.Accepted("I will send   the Report today", now)
	v, _ := q.Check("i will send the report today", "en-IN", now.Add(time.Second))
	if v != verdictReject {
		t.Error("expected case and whitespace folded for duplicate comparison")
	}
}

func TestQualityFilter_TooShortRejected(t *testing.T) {
	cfg := config.DefaultPipeline()
	q := newQualityFilter(&cfg)
	now := time.Now()

	v, reason := q.Check("go now", "en-IN", now)
	if v != verdictReject || reason != "too_short" {
		t.Errorf("expected too-short rejection, got %v (%q)", v, reason)
	}
}

func TestQualityFilter_LongTokenBypassesShortRule(t *testing.T) {
	cfg := config.DefaultPipeline()
	q := newQualityFilter(&cfg)

	// One word and under the char minimum, but a long token carries meaning.
	v, _ := q.Check("absolutely", "en-IN", time.Now())
	if v != verdictAccept {
		t.Errorf("expected long-token transcript accepted, got %v", v)
	}
}

func TestQualityFilter_UnknownLanguage(t *testing.T) {
	cfg := config.DefaultPipeline()
	q := newQualityFilter(&cfg)
	now := time.Now()

	v, reason := q.Check("short noise", languageUnknown, now)
	if v != verdictReject || reason != "unknown_language" {
		t.Errorf("expected short unknown rejected, got %v (%q)", v, reason)
	}

	v, _ = q.Check("this is a long unknown language sentence", languageUnknown, now)
	if v != verdictRetryFallback {
		t.Errorf("expected long unknown to request fallback retry, got %v", v)
	}
}

func TestQualityFilter_MixedFillerNotSuppressed(t *testing.T) {
	cfg := config.DefaultPipeline()
	q := newQualityFilter(&cfg)
	now := time.Now()

	const text = "okay let us start the review"
	q.Accepted("okay", now)
	v, _ := q.Check(text, "en-IN", now.Add(time.Second))
	if v != verdictAccept {
		t.Errorf("expected full sentence starting with filler accepted, got %v", v)
	}
}
