// Package speech defines the Provider interface for batch speech-to-text and
// text-translation backends.
//
// Unlike a streaming STT interface, Polyvox submits complete audio clips: the
// adaptive batcher accumulates PCM16 audio per speaker session, wraps it in a
// WAV container, and calls Transcribe once per candidate language. The
// provider is treated as an opaque remote service — only the request/response
// shape is specified here.
//
// Implementations must be safe for concurrent use: one process serves many
// speaker sessions, and each may have a transcription in flight.
package speech

import (
	"context"
	"errors"
)

// ErrRateLimited is returned (possibly wrapped) when the upstream provider
// rejects a request due to quota exhaustion. The multi-language detection loop
// reacts with a single bounded wait and retry for the affected candidate.
var ErrRateLimited = errors.New("speech: provider rate limit exceeded")

// ErrUnconfigured is returned by provider constructors or the manager when no
// provider credentials are available. Sessions are never created in this case;
// the caller receives a "disabled" status instead.
var ErrUnconfigured = errors.New("speech: provider not configured")

// Result is the outcome of a single transcription call.
type Result struct {
	// Transcript is the recognized text. Empty when the provider recognized
	// nothing in the clip.
	Transcript string

	// DetectedLanguage is the provider-reported language code, when the
	// provider performs its own detection. May be empty or "unknown".
	DetectedLanguage string

	// DurationSeconds is the provider-reported audio duration, when available.
	DurationSeconds float64
}

// Transcriber converts one audio clip to text.
type Transcriber interface {
	// Transcribe submits a complete WAV-wrapped audio clip for recognition in
	// the given language. The language is a BCP-47 tag (e.g. "hi-IN"); an
	// empty string lets the provider auto-detect, if supported.
	//
	// Errors: [ErrRateLimited] (wrapped) for quota rejections; any other error
	// is a generic per-attempt failure that the detection loop scores as empty.
	Transcribe(ctx context.Context, wav []byte, language string) (Result, error)
}

// Translator converts text between languages.
type Translator interface {
	// Translate renders text from sourceLang into targetLang. Both are BCP-47
	// tags. Returns the translated text; an empty result is treated by the
	// caller as a failed translation (the original text is used verbatim).
	Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error)
}

// Provider is the abstraction over any speech backend offering both batch
// transcription and text translation.
type Provider interface {
	Transcriber
	Translator
}
