package resilience

import (
	"context"
	"errors"

	"github.com/MrWong99/polyvox/pkg/provider/speech"
)

// GuardedProvider wraps a [speech.Provider] with per-kind circuit breakers.
// When the provider fails repeatedly, further calls fail fast with
// [ErrCircuitOpen] until the reset timeout elapses. The detection loop scores
// fast failures as empty candidates, so an outage degrades into error
// statuses instead of a backlog of slow provider calls.
//
// Rate-limit rejections and caller cancellations do not count as provider
// failures: the detection loop owns 429 backoff, and a cancelled context says
// nothing about provider health. Such errors are still returned to the
// caller, they just leave the breaker state untouched.
type GuardedProvider struct {
	inner      speech.Provider
	transcribe *CircuitBreaker
	translate  *CircuitBreaker
}

// Compile-time interface assertion.
var _ speech.Provider = (*GuardedProvider)(nil)

// Guard wraps provider with fresh circuit breakers configured from cfg.
// The cfg.Name is suffixed per call kind in log messages.
func Guard(provider speech.Provider, cfg CircuitBreakerConfig) *GuardedProvider {
	tcfg := cfg
	tcfg.Name = cfg.Name + "-transcribe"
	xcfg := cfg
	xcfg.Name = cfg.Name + "-translate"
	return &GuardedProvider{
		inner:      provider,
		transcribe: NewCircuitBreaker(tcfg),
		translate:  NewCircuitBreaker(xcfg),
	}
}

// Transcribe implements speech.Transcriber behind the transcribe breaker.
func (g *GuardedProvider) Transcribe(ctx context.Context, wav []byte, language string) (speech.Result, error) {
	var res speech.Result
	var callErr error
	err := g.transcribe.Execute(func() error {
		res, callErr = g.inner.Transcribe(ctx, wav, language)
		if exempt(ctx, callErr) {
			return nil
		}
		return callErr
	})
	if err == nil {
		err = callErr
	}
	if err != nil {
		return speech.Result{}, err
	}
	return res, nil
}

// Translate implements speech.Translator behind the translate breaker.
func (g *GuardedProvider) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	var out string
	var callErr error
	err := g.translate.Execute(func() error {
		out, callErr = g.inner.Translate(ctx, text, sourceLang, targetLang)
		if exempt(ctx, callErr) {
			return nil
		}
		return callErr
	})
	if err == nil {
		err = callErr
	}
	if err != nil {
		return "", err
	}
	return out, nil
}

// TranscribeState returns the transcribe breaker state, for health reporting.
func (g *GuardedProvider) TranscribeState() State { return g.transcribe.State() }

// exempt reports whether err must not count against the breaker.
func exempt(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, speech.ErrRateLimited) ||
		errors.Is(err, context.Canceled) ||
		ctx.Err() != nil
}
