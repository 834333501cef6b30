package pipeline

import (
	"time"

	"github.com/MrWong99/polyvox/internal/config"
	"github.com/MrWong99/polyvox/pkg/audio"
)

// accumulator is the per-session adaptive batch buffer. It appends gated
// frames into a single contiguous PCM buffer and decides when the batch is
// worth a provider round trip. It is owned by one session and accessed under
// the session mutex.
//
// The buffer's backing array is retained across flushes (reset via buf[:0])
// so a long-lived session settles into a steady allocation footprint.
type accumulator struct {
	cfg *config.PipelineConfig

	buf          []byte
	durationMs   float64
	speechFrames int

	// deferredUntil is set when a flush attempt found the buffer below
	// MinFlushBytes; triggers are suppressed until it passes.
	deferredUntil time.Time
}

func newAccumulator(cfg *config.PipelineConfig) *accumulator {
	return &accumulator{cfg: cfg}
}

// Append adds a gated frame to the batch. speech marks frames that met the
// speech threshold (trailing grace frames are buffered but not counted).
func (a *accumulator) Append(f audio.Frame, speech bool) {
	a.buf = append(a.buf, f.Data...)
	a.durationMs += f.DurationMs
	if speech {
		a.speechFrames++
	}
}

// Len returns the buffered byte count.
func (a *accumulator) Len() int { return len(a.buf) }

// DurationMs returns the buffered audio duration.
func (a *accumulator) DurationMs() float64 { return a.durationMs }

// Ready reports whether the regular (or escalated) flush thresholds are all
// met. Duration, byte count, and speech-frame count must each pass; duration
// and bytes switch to the escalated values when escalated is true.
func (a *accumulator) Ready(escalated bool, now time.Time) bool {
	if now.Before(a.deferredUntil) {
		return false
	}
	wantDur := a.cfg.RequiredDurationMs
	wantBytes := a.cfg.RequiredBytes
	if escalated {
		wantDur = a.cfg.EscalatedDurationMs
		wantBytes = a.cfg.EscalatedBytes
	}
	return a.durationMs >= wantDur &&
		len(a.buf) >= wantBytes &&
		a.speechFrames >= a.cfg.MinSpeechFrames
}

// HardCapReached reports whether the unconditional flush cap is hit. The cap
// ignores deferral: a buffer at the cap must flush regardless.
func (a *accumulator) HardCapReached() bool {
	return a.durationMs >= a.cfg.HardCapDurationMs ||
		len(a.buf) >= a.cfg.HardCapBytes
}

// WorthFlushing reports whether the buffer meets the minimum clip size.
func (a *accumulator) WorthFlushing() bool {
	return len(a.buf) >= a.cfg.MinFlushBytes
}

// Defer suppresses threshold triggers for the configured retry interval,
// keeping the buffered audio. Called when a flush attempt found the clip too
// small to be worth a provider call.
func (a *accumulator) Defer(now time.Time) {
	a.deferredUntil = now.Add(time.Duration(a.cfg.DeferRetryMs) * time.Millisecond)
}

// Take removes and returns the buffered PCM, resetting the batch state. The
// returned slice is a copy; the internal backing array is reused for the next
// batch.
func (a *accumulator) Take() []byte {
	out := make([]byte, len(a.buf))
	copy(out, a.buf)
	a.Reset()
	return out
}

// Reset discards the buffered batch, keeping the backing array.
func (a *accumulator) Reset() {
	a.buf = a.buf[:0]
	a.durationMs = 0
	a.speechFrames = 0
	a.deferredUntil = time.Time{}
}
