package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/MrWong99/polyvox/internal/config"
	"github.com/MrWong99/polyvox/internal/observe"
	"github.com/MrWong99/polyvox/pkg/provider/speech"
)

// LanguageAuto requests multi-language detection for a session.
const LanguageAuto = "auto"

// languageUnknown labels a transcript whose language the provider could not
// identify.
const languageUnknown = "unknown"

// LanguageResult is the outcome of one detection pass over a flushed clip.
type LanguageResult struct {
	// Language is the BCP-47 tag of the winning candidate, or "unknown".
	Language string

	// Transcript is the winning transcript, possibly empty.
	Transcript string

	// Score is the confidence heuristic of the winning transcript.
	Score float64

	// Words is the whitespace-token count of the winning transcript.
	Words int

	// AutoDetected reports whether the result came from the candidate race
	// rather than a fixed session language.
	AutoDetected bool
}

// detector runs the multi-language detection race: candidates are attempted
// strictly sequentially with a process-wide inter-request rate limiter, each
// transcript is scored, and the race short-circuits as soon as a candidate is
// confidently good. A rate-limited candidate gets exactly one bounded backoff
// and retry; any other provider error scores that candidate as empty.
//
// A detector is shared by all sessions of a [Manager] and is safe for
// concurrent use, though the limiter serialises provider traffic regardless.
type detector struct {
	cfg      *config.PipelineConfig
	provider speech.Transcriber
	limiter  *rate.Limiter
	metrics  *observe.Metrics
	log      *slog.Logger

	// sleep is replaced in tests to avoid real backoff waits.
	sleep func(ctx context.Context, d time.Duration) error
}

func newDetector(cfg *config.PipelineConfig, provider speech.Transcriber, limiter *rate.Limiter, metrics *observe.Metrics, log *slog.Logger) *detector {
	return &detector{
		cfg:      cfg,
		provider: provider,
		limiter:  limiter,
		metrics:  metrics,
		log:      log,
		sleep:    sleepCtx,
	}
}

// newInterRequestLimiter builds the process-wide limiter spacing provider
// calls by the configured minimum delay.
func newInterRequestLimiter(cfg *config.PipelineConfig) *rate.Limiter {
	delay := time.Duration(cfg.InterRequestDelayMs) * time.Millisecond
	if delay <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(delay), 1)
}

// Detect transcribes the WAV clip. When language is [LanguageAuto], the
// configured candidates are raced; otherwise a single attempt is made in the
// given language.
//
// When the race produces no text at all, one last transcription pinned to the
// fallback language is attempted before giving up. An error is returned only
// when that attempt failed too.
func (d *detector) Detect(ctx context.Context, wav []byte, language string) (LanguageResult, error) {
	if language != "" && language != LanguageAuto {
		res, err := d.attempt(ctx, wav, language)
		if err != nil {
			return LanguageResult{}, err
		}
		res.AutoDetected = false
		return res, nil
	}

	candidates := d.cfg.CandidateLanguages
	if max := d.cfg.MaxLanguages; max > 0 && len(candidates) > max {
		candidates = candidates[:max]
	}

	var (
		best        LanguageResult
		haveBest    bool
		fallbackRan bool
		errs        []error
	)
	for _, cand := range candidates {
		res, err := d.attempt(ctx, wav, cand)
		if err != nil {
			if ctx.Err() != nil {
				return LanguageResult{}, ctx.Err()
			}
			errs = append(errs, err)
			continue
		}
		if cand == d.cfg.FallbackLanguage {
			fallbackRan = true
		}
		if !haveBest || res.Score > best.Score {
			best = res
			haveBest = true
		}
		if res.Score > d.cfg.HighConfidenceScore && res.Words > d.cfg.HighConfidenceWords {
			d.log.Debug("detection early exit",
				"language", res.Language,
				"score", res.Score,
				"words", res.Words)
			break
		}
	}

	if !haveBest || best.Transcript == "" {
		// No candidate produced any text. A transcription pinned to the
		// fallback language can still rescue the clip, unless the race
		// already covered that language without error.
		if !fallbackRan {
			res, err := d.attempt(ctx, wav, d.cfg.FallbackLanguage)
			switch {
			case err != nil && ctx.Err() != nil:
				return LanguageResult{}, ctx.Err()
			case err != nil:
				errs = append(errs, err)
			default:
				best = res
				haveBest = true
			}
		}
	}

	if !haveBest {
		return LanguageResult{}, errors.Join(errs...)
	}
	if best.Transcript == "" {
		// Label with the fallback so downstream stages have a stable tag;
		// the filter drops empties.
		best.Language = d.cfg.FallbackLanguage
	}
	best.AutoDetected = true
	return best, nil
}

// attempt performs one rate-limited transcription in the given language, with
// a single backoff-and-retry on provider rate limiting.
func (d *detector) attempt(ctx context.Context, wav []byte, language string) (LanguageResult, error) {
	res, err := d.transcribeOnce(ctx, wav, language)
	if errors.Is(err, speech.ErrRateLimited) {
		backoff := time.Duration(d.cfg.RateLimitBackoffMs) * time.Millisecond
		d.log.Warn("provider rate limited, backing off",
			"language", language,
			"backoff", backoff)
		if serr := d.sleep(ctx, backoff); serr != nil {
			return LanguageResult{}, serr
		}
		res, err = d.transcribeOnce(ctx, wav, language)
	}
	if err != nil {
		return LanguageResult{}, err
	}

	lang := language
	if norm := strings.ToLower(strings.TrimSpace(res.DetectedLanguage)); norm == languageUnknown {
		lang = languageUnknown
	}
	score, words := scoreTranscript(res.Transcript)
	return LanguageResult{
		Language:   lang,
		Transcript: strings.TrimSpace(res.Transcript),
		Score:      score,
		Words:      words,
	}, nil
}

func (d *detector) transcribeOnce(ctx context.Context, wav []byte, language string) (speech.Result, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return speech.Result{}, err
	}

	start := time.Now()
	res, err := d.provider.Transcribe(ctx, wav, language)
	d.metrics.TranscriptionDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		d.metrics.RecordProviderRequest(ctx, "transcribe", "error")
		d.metrics.RecordProviderError(ctx, "transcribe")
		return speech.Result{}, err
	}
	d.metrics.RecordProviderRequest(ctx, "transcribe", "ok")
	return res, nil
}

// scoreTranscript computes the confidence heuristic: two points per word plus
// one point per ten characters, with the character contribution capped so a
// hallucinated wall of text cannot dominate.
func scoreTranscript(text string) (score float64, words int) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, 0
	}
	words = len(strings.Fields(text))
	chars := len([]rune(text))
	if chars > 200 {
		chars = 200
	}
	return 2*float64(words) + float64(chars)/10, words
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
