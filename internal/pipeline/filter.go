package pipeline

import (
	"strings"
	"time"

	"github.com/MrWong99/polyvox/internal/config"
)

// verdict is the quality filter's decision for one transcript.
type verdict int

const (
	// verdictAccept passes the transcript through to normalization and emit.
	verdictAccept verdict = iota

	// verdictReject suppresses the transcript.
	verdictReject

	// verdictRetryFallback asks the session to re-transcribe the clip in the
	// fixed fallback language; used for long unknown-language transcripts.
	verdictRetryFallback
)

// qualityFilter suppresses low-value transcripts before they reach users:
// empties, unrecognized-language noise, rapid filler repeats ("okay",
// "hmm"), exact duplicates from overlapping capture, and fragments too short
// to carry meaning. It is per-session state, accessed under the session
// mutex.
//
// The duplicate trackers key on the raw pre-translation transcript so a
// repeat is caught regardless of how translation rendered it.
type qualityFilter struct {
	cfg     *config.PipelineConfig
	fillers map[string]bool

	lastText string
	lastAt   time.Time
}

func newQualityFilter(cfg *config.PipelineConfig) *qualityFilter {
	fillers := make(map[string]bool, len(cfg.FillerWords))
	for _, w := range cfg.FillerWords {
		fillers[strings.ToLower(w)] = true
	}
	return &qualityFilter{cfg: cfg, fillers: fillers}
}

// Check evaluates the raw transcript in the given detected language.
// The reason string is non-empty for verdictReject and names the rule that
// fired, for suppression metrics.
func (q *qualityFilter) Check(text, language string, now time.Time) (verdict, string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return verdictReject, "empty"
	}

	words := strings.Fields(text)
	chars := len([]rune(text))

	if language == languageUnknown {
		if chars < q.cfg.UnknownMinChars {
			return verdictReject, "unknown_language"
		}
		return verdictRetryFallback, ""
	}

	// Short all-filler responses are legitimate ("okay" answering a
	// question) but worthless when repeated back to back. This runs before
	// the length rejection so a lone "okay" can still emit.
	if len(words) <= 2 && q.allFiller(words) {
		if q.repeats(text, now, q.cfg.FillerWindowMs) {
			return verdictReject, "filler_repeat"
		}
		return verdictAccept, ""
	}

	if q.repeats(text, now, q.cfg.DuplicateWindowMs) {
		return verdictReject, "duplicate"
	}

	if len(words) < q.cfg.MinWords && chars < q.cfg.MinChars && !q.hasLongToken(words) {
		return verdictReject, "too_short"
	}

	return verdictAccept, ""
}

// Accepted records an emission so the repeat windows apply to the next
// transcript. text must be the same raw transcript passed to Check.
func (q *qualityFilter) Accepted(text string, now time.Time) {
	q.lastText = normalizeForCompare(text)
	q.lastAt = now
}

// repeats reports whether text matches the last accepted transcript within
// windowMs.
func (q *qualityFilter) repeats(text string, now time.Time, windowMs int) bool {
	if q.lastText == "" || normalizeForCompare(text) != q.lastText {
		return false
	}
	return now.Sub(q.lastAt) <= time.Duration(windowMs)*time.Millisecond
}

func (q *qualityFilter) allFiller(words []string) bool {
	for _, w := range words {
		if !q.fillers[strings.ToLower(strings.Trim(w, ".,!?"))] {
			return false
		}
	}
	return len(words) > 0
}

func (q *qualityFilter) hasLongToken(words []string) bool {
	for _, w := range words {
		if len([]rune(w)) >= q.cfg.LongTokenLen {
			return true
		}
	}
	return false
}

// normalizeForCompare folds case and collapses whitespace so trivial
// re-punctuation does not defeat duplicate detection.
func normalizeForCompare(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}
