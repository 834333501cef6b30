// Package mock provides test doubles for the speech package interfaces.
//
// Use Provider to script per-language transcription results and inspect the
// order of attempted languages. Results are keyed by language code; the
// zero-value Provider returns empty results for every call.
//
// Example:
//
//	p := &mock.Provider{
//	    Results: map[string]speech.Result{
//	        "en-IN": {Transcript: "hello there", DetectedLanguage: "en-IN"},
//	    },
//	}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/polyvox/pkg/provider/speech"
)

// TranscribeCall records a single invocation of Provider.Transcribe.
type TranscribeCall struct {
	// Language is the language code passed to Transcribe.
	Language string
	// WAVLen is the byte length of the submitted clip.
	WAVLen int
}

// TranslateCall records a single invocation of Provider.Translate.
type TranslateCall struct {
	Text       string
	SourceLang string
	TargetLang string
}

// Provider is a mock implementation of speech.Provider.
type Provider struct {
	mu sync.Mutex

	// Results maps language code → scripted result. Languages without an
	// entry return a zero Result (empty transcript).
	Results map[string]speech.Result

	// Errs maps language code → error returned by Transcribe for that
	// language. Takes precedence over Results.
	Errs map[string]error

	// ErrsOnce maps language code → error returned only on the FIRST
	// Transcribe call for that language; subsequent calls fall through to
	// Errs/Results. Useful for rate-limit retry tests.
	ErrsOnce map[string]error

	// TranslateResult is returned by every successful Translate call.
	TranslateResult string

	// TranslateErr, if non-nil, is returned by every Translate call.
	TranslateErr error

	// TranscribeCalls records every Transcribe invocation in order.
	TranscribeCalls []TranscribeCall

	// TranslateCalls records every Translate invocation in order.
	TranslateCalls []TranslateCall

	seenOnce map[string]bool
}

// Ensure Provider implements speech.Provider at compile time.
var _ speech.Provider = (*Provider)(nil)

// Transcribe records the call and returns the scripted result for language.
func (p *Provider) Transcribe(_ context.Context, wav []byte, language string) (speech.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.TranscribeCalls = append(p.TranscribeCalls, TranscribeCall{Language: language, WAVLen: len(wav)})

	if err, ok := p.ErrsOnce[language]; ok && !p.seenOnce[language] {
		if p.seenOnce == nil {
			p.seenOnce = make(map[string]bool)
		}
		p.seenOnce[language] = true
		return speech.Result{}, err
	}
	if err, ok := p.Errs[language]; ok {
		return speech.Result{}, err
	}
	return p.Results[language], nil
}

// Translate records the call and returns TranslateResult, TranslateErr.
func (p *Provider) Translate(_ context.Context, text, sourceLang, targetLang string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.TranslateCalls = append(p.TranslateCalls, TranslateCall{Text: text, SourceLang: sourceLang, TargetLang: targetLang})
	if p.TranslateErr != nil {
		return "", p.TranslateErr
	}
	return p.TranslateResult, nil
}

// Languages returns the language codes of all recorded Transcribe calls in
// order. Thread-safe.
func (p *Provider) Languages() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]string, len(p.TranscribeCalls))
	for i, c := range p.TranscribeCalls {
		out[i] = c.Language
	}
	return out
}

// Reset clears all recorded calls and once-errors. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.TranscribeCalls = nil
	p.TranslateCalls = nil
	p.seenOnce = nil
}
