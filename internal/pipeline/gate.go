package pipeline

import (
	"github.com/MrWong99/polyvox/internal/config"
	"github.com/MrWong99/polyvox/pkg/audio"
)

// FrameClass is the voice gate's verdict for one frame.
type FrameClass int

const (
	// ClassDropped means the frame is discarded without buffering.
	ClassDropped FrameClass = iota

	// ClassTrailing means the frame is sub-threshold but falls inside the
	// trailing-silence grace window after speech, so it is buffered to keep
	// the utterance boundary natural.
	ClassTrailing

	// ClassSpeech means the frame's RMS met the speech threshold.
	ClassSpeech
)

// voiceGate classifies frames by RMS energy and tracks the consecutive
// silence run used for endpointing. It is owned by a single session and
// accessed under the session mutex.
type voiceGate struct {
	dropFloor       float64
	speechThreshold float64
	graceFrames     int
	maxSilenceRun   int

	// sinceSpeech counts frames since the last speech frame. Starts beyond
	// the grace window so leading sub-threshold audio is dropped.
	sinceSpeech int
	silenceRun  int
}

func newVoiceGate(cfg *config.PipelineConfig) *voiceGate {
	return &voiceGate{
		dropFloor:       cfg.RMSDropFloor,
		speechThreshold: cfg.RMSSpeechThreshold,
		graceFrames:     cfg.TrailingSilenceGraceFrames,
		maxSilenceRun:   cfg.MaxSilenceRun,
		sinceSpeech:     cfg.TrailingSilenceGraceFrames + 1,
	}
}

// Classify assigns f to a class and updates the silence-run counter. Every
// non-speech frame extends the run, including trailing frames that are still
// buffered; any speech frame resets it.
func (g *voiceGate) Classify(f audio.Frame) FrameClass {
	if f.RMSEnergy >= g.speechThreshold {
		g.sinceSpeech = 0
		g.silenceRun = 0
		return ClassSpeech
	}

	g.sinceSpeech++
	g.silenceRun++

	if f.RMSEnergy >= g.dropFloor && g.sinceSpeech <= g.graceFrames {
		return ClassTrailing
	}
	return ClassDropped
}

// SilenceRun returns the current consecutive non-speech frame count.
func (g *voiceGate) SilenceRun() int { return g.silenceRun }

// EndpointReached reports whether the silence run is long enough to flush a
// non-empty buffer on utterance end.
func (g *voiceGate) EndpointReached() bool {
	return g.silenceRun >= g.maxSilenceRun
}

// ResetRun clears the silence run, typically after an endpointing flush so
// the same pause does not trigger twice.
func (g *voiceGate) ResetRun() { g.silenceRun = 0 }
