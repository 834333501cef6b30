// Package pipeline implements the per-speaker realtime transcription
// pipeline: voice-activity gating, adaptive audio batching, multi-language
// detection with early exit, translation normalization, and quality filtering.
//
// One [Session] runs per active speaker stream. Frames for a session are
// processed strictly in arrival order and at most one flush (provider round
// trip) is in flight per session; frames that arrive while a flush is running
// accumulate into the next batch so capture never pauses. The [Manager]
// owns session lifecycles and guarantees drain-then-close semantics on stop,
// disconnect, and process shutdown.
package pipeline

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned by Session methods after the session has closed.
var ErrClosed = errors.New("pipeline: session closed")

// TranscriptSegment is a finalized transcript unit emitted by a session.
// Segments are immutable after creation.
type TranscriptSegment struct {
	// SessionID identifies the speaker session that produced the segment.
	SessionID string `json:"session_id"`

	// OwnerID and CallID locate the transcript record the segment belongs to.
	OwnerID string `json:"owner_id"`
	CallID  string `json:"call_id"`

	// Text is the display text, in the target language when translation
	// applied.
	Text string `json:"text"`

	// Timestamp is when the segment was finalized.
	Timestamp time.Time `json:"timestamp"`

	// Language is the language of Text.
	Language string `json:"language"`

	// IsPartial is always false for segments emitted by the quality filter;
	// the field exists so downstream consumers share one schema with interim
	// UI events.
	IsPartial bool `json:"is_partial"`

	// AutoDetected reports whether Language came from the multi-language
	// detection race rather than a fixed session language.
	AutoDetected bool `json:"auto_detected"`

	// OriginalText and TranslatedText are both set when DualMode is true:
	// the source-language transcript and its target-language translation
	// differ materially.
	OriginalText   string `json:"original_text,omitempty"`
	TranslatedText string `json:"translated_text,omitempty"`
	DualMode       bool   `json:"dual_mode,omitempty"`
}

// StatusKind enumerates session status signal kinds.
type StatusKind string

const (
	// StatusActive signals that a session started and is accepting audio.
	StatusActive StatusKind = "active"

	// StatusError signals a recoverable pipeline failure (e.g. total
	// detection failure for one flush). The session stays open.
	StatusError StatusKind = "error"

	// StatusDisabled signals that transcription cannot start at all, e.g.
	// missing provider credentials.
	StatusDisabled StatusKind = "disabled"
)

// StatusEvent is a lifecycle/diagnostic signal for a session. Reason is a
// short human-readable string; raw errors are never exposed externally.
type StatusEvent struct {
	SessionID string     `json:"session_id"`
	Kind      StatusKind `json:"kind"`
	Reason    string     `json:"reason,omitempty"`
}

// Notifier receives outbound events from a session. Implementations fan the
// events out to the transport and any other consumers. Calls are made from
// the session's flush goroutine and must not block for long.
type Notifier interface {
	// Transcript delivers a finalized segment.
	Transcript(ctx context.Context, seg TranscriptSegment)

	// Status delivers a lifecycle/diagnostic signal.
	Status(ctx context.Context, ev StatusEvent)
}

// Persister appends accepted segments to the owner's transcript record for a
// call. The pipeline does not define the storage schema beyond these fields.
type Persister interface {
	AppendSegment(ctx context.Context, ownerID, callID string, seg TranscriptSegment) error
}
