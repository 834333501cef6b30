package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/antzucaro/matchr"

	"github.com/MrWong99/polyvox/internal/config"
	"github.com/MrWong99/polyvox/internal/observe"
	"github.com/MrWong99/polyvox/pkg/provider/speech"
)

// normalized is the outcome of translation normalization for one transcript.
type normalized struct {
	// Text is the display text, translated when translation applied.
	Text string

	// Language is the language of Text.
	Language string

	// Dual is set when the source transcript and translation differ
	// materially and both are worth showing.
	Dual       bool
	Original   string
	Translated string
}

// translateState is the per-session translation health record, owned by the
// session and accessed under its mutex.
type translateState struct {
	consecutiveErrors int
	degraded          bool
}

// normalizer renders detected transcripts into the session's target language
// and repairs the common provider failure mode of "translating" text that is
// already in the target language: when the translation is nearly identical to
// the input on a long enough text, the input is simply relabeled.
//
// Translation failures fall back to the untranslated transcript. A session
// that fails too many times in a row enters degraded mode: translation stops
// and detection pins to the fallback language for the session's remainder.
type normalizer struct {
	cfg        *config.PipelineConfig
	translator speech.Translator
	metrics    *observe.Metrics
	log        *slog.Logger
}

func newNormalizer(cfg *config.PipelineConfig, translator speech.Translator, metrics *observe.Metrics, log *slog.Logger) *normalizer {
	return &normalizer{cfg: cfg, translator: translator, metrics: metrics, log: log}
}

// Normalize renders transcript (in sourceLang) into targetLang, updating the
// session's translation health in st. The returned text is never empty when
// transcript is non-empty.
func (n *normalizer) Normalize(ctx context.Context, st *translateState, transcript, sourceLang, targetLang string) normalized {
	if transcript == "" {
		return normalized{Language: sourceLang}
	}
	if st.degraded || sameBaseLang(sourceLang, targetLang) || sourceLang == languageUnknown {
		return normalized{Text: transcript, Language: sourceLang}
	}

	start := time.Now()
	translated, err := n.translator.Translate(ctx, transcript, sourceLang, targetLang)
	n.metrics.TranslationDuration.Record(ctx, time.Since(start).Seconds())
	translated = strings.TrimSpace(translated)

	if err != nil || translated == "" {
		n.metrics.RecordProviderRequest(ctx, "translate", "error")
		n.metrics.RecordProviderError(ctx, "translate")
		st.consecutiveErrors++
		if st.consecutiveErrors > n.cfg.MaxTranslateErrors {
			st.degraded = true
			n.log.Warn("translation degraded for session remainder",
				"consecutive_errors", st.consecutiveErrors,
				"error", err)
		}
		return normalized{Text: transcript, Language: sourceLang}
	}
	n.metrics.RecordProviderRequest(ctx, "translate", "ok")
	st.consecutiveErrors = 0

	// A near-identical "translation" on a long enough text means the source
	// was already in the target language and only the label was wrong.
	if len([]rune(transcript)) >= n.cfg.MinRelabelChars &&
		Similarity(transcript, translated) > n.cfg.SimilarityCutoff {
		return normalized{Text: transcript, Language: targetLang}
	}

	return normalized{
		Text:       translated,
		Language:   targetLang,
		Dual:       true,
		Original:   transcript,
		Translated: translated,
	}
}

// Similarity returns a normalized edit-distance similarity in [0,1] between
// a and b, case-folded. 1 means identical.
func Similarity(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == b {
		return 1
	}
	la, lb := len([]rune(a)), len([]rune(b))
	longest := la
	if lb > longest {
		longest = lb
	}
	if longest == 0 {
		return 1
	}
	dist := matchr.Levenshtein(a, b)
	return 1 - float64(dist)/float64(longest)
}

// sameBaseLang reports whether two BCP-47 tags share the same primary
// subtag, e.g. "en-IN" and "en-US".
func sameBaseLang(a, b string) bool {
	return baseLang(a) == baseLang(b)
}

func baseLang(tag string) string {
	tag = strings.ToLower(tag)
	if i := strings.IndexByte(tag, '-'); i > 0 {
		return tag[:i]
	}
	return tag
}
