package audio

import "math"

// RMS computes the root-mean-square amplitude of little-endian PCM16 samples
// on the 16-bit integer scale (0–32767). It is the pipeline's cheap proxy for
// loudness: silence sits near zero, conversational speech typically lands in
// the hundreds to low thousands. A trailing odd byte is ignored.
func RMS(pcm []byte) float64 {
	n := len(pcm) / BytesPerSample
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		sample := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		sum += float64(sample) * float64(sample)
	}
	return math.Sqrt(sum / float64(n))
}
