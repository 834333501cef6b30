// Package audio provides PCM16 audio primitives for the Polyvox transcription
// pipeline: the Frame transport type, RMS energy measurement, duration
// arithmetic, mono resampling, and WAV container wrapping for provider upload.
//
// All functions operate on 16-bit signed little-endian PCM ("PCM16"). The
// pipeline's canonical format is PCM16 mono 16kHz; helpers that care about the
// sample rate take it as an explicit parameter rather than assuming it.
package audio

// DefaultSampleRate is the canonical pipeline sample rate in Hz.
const DefaultSampleRate = 16000

// BytesPerSample is the size of one PCM16 sample.
const BytesPerSample = 2

// Frame is a single chunk of PCM16 mono audio flowing into a transcription
// session, typically ~200ms of capture. Ownership of Data transfers to the
// session buffer on ingest; callers must not reuse the backing array.
//
// The metadata fields mirror what the capture client precomputes before
// transmission. Any zero-valued metadata field is recomputed from Data by
// [Frame.Normalize], so a bare {Data: pcm} frame is always valid input.
type Frame struct {
	// Data is raw little-endian PCM16 mono samples.
	Data []byte

	// RMSEnergy is the precomputed RMS amplitude on the 16-bit integer scale
	// (0–32767). Zero means "not computed".
	RMSEnergy float64

	// DurationMs is the frame duration in milliseconds. Zero means "not computed".
	DurationMs float64

	// SampleCount is the number of PCM16 samples in Data. Zero means "not computed".
	SampleCount int

	// SampleRate in Hz. Zero means [DefaultSampleRate].
	SampleRate int
}

// Normalize fills in any missing metadata from the raw samples and resamples
// Data to targetRate when the frame was captured at a different rate. It
// returns the normalized frame; the receiver is not modified.
func (f Frame) Normalize(targetRate int) Frame {
	if f.SampleRate == 0 {
		f.SampleRate = DefaultSampleRate
	}
	if f.SampleRate != targetRate {
		f.Data = ResampleMono16(f.Data, f.SampleRate, targetRate)
		f.SampleRate = targetRate
		// Resampling invalidates precomputed sample metadata.
		f.SampleCount = 0
		f.DurationMs = 0
	}
	if f.SampleCount == 0 {
		f.SampleCount = len(f.Data) / BytesPerSample
	}
	if f.DurationMs == 0 {
		f.DurationMs = DurationMs(len(f.Data), f.SampleRate)
	}
	if f.RMSEnergy == 0 {
		f.RMSEnergy = RMS(f.Data)
	}
	return f
}

// DurationMs returns the duration in milliseconds of byteLen bytes of PCM16
// mono audio at sampleRate Hz.
func DurationMs(byteLen, sampleRate int) float64 {
	if sampleRate <= 0 {
		return 0
	}
	samples := byteLen / BytesPerSample
	return float64(samples) / float64(sampleRate) * 1000
}
