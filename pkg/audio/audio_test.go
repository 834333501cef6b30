package audio

import (
	"encoding/binary"
	"math"
	"testing"
)

// pcmConst builds n PCM16 samples all set to value.
func pcmConst(n int, value int16) []byte {
	out := make([]byte, n*2)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(value))
	}
	return out
}

func TestRMS(t *testing.T) {
	t.Run("silence is zero", func(t *testing.T) {
		if got := RMS(pcmConst(160, 0)); got != 0 {
			t.Errorf("expected 0, got %f", got)
		}
	})

	t.Run("constant amplitude equals that amplitude", func(t *testing.T) {
		got := RMS(pcmConst(320, 2000))
		if math.Abs(got-2000) > 0.001 {
			t.Errorf("expected 2000, got %f", got)
		}
	})

	t.Run("empty input", func(t *testing.T) {
		if got := RMS(nil); got != 0 {
			t.Errorf("expected 0 for empty input, got %f", got)
		}
	})

	t.Run("trailing odd byte ignored", func(t *testing.T) {
		pcm := append(pcmConst(10, 1000), 0xFF)
		got := RMS(pcm)
		if math.Abs(got-1000) > 0.001 {
			t.Errorf("expected 1000, got %f", got)
		}
	})
}

func TestDurationMs(t *testing.T) {
	// 200ms at 16kHz mono PCM16 = 0.2 * 16000 * 2 bytes.
	if got := DurationMs(6400, 16000); got != 200 {
		t.Errorf("expected 200ms, got %f", got)
	}
	if got := DurationMs(6400, 0); got != 0 {
		t.Errorf("expected 0 for invalid rate, got %f", got)
	}
}

func TestWAVFromPCM16(t *testing.T) {
	pcm := pcmConst(1600, 1234)
	wav := WAVFromPCM16(pcm, 16000)

	if len(wav) != 44+len(pcm) {
		t.Fatalf("expected %d bytes, got %d", 44+len(pcm), len(wav))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		t.Error("missing RIFF/WAVE magic")
	}
	if rate := binary.LittleEndian.Uint32(wav[24:28]); rate != 16000 {
		t.Errorf("expected sample rate 16000, got %d", rate)
	}
	if dataLen := binary.LittleEndian.Uint32(wav[40:44]); int(dataLen) != len(pcm) {
		t.Errorf("expected data length %d, got %d", len(pcm), dataLen)
	}
	if byteRate := binary.LittleEndian.Uint32(wav[28:32]); byteRate != 32000 {
		t.Errorf("expected byte rate 32000, got %d", byteRate)
	}
}

func TestFrameNormalize(t *testing.T) {
	t.Run("fills missing metadata", func(t *testing.T) {
		f := Frame{Data: pcmConst(3200, 1500)}
		n := f.Normalize(16000)

		if n.SampleRate != 16000 {
			t.Errorf("expected default sample rate, got %d", n.SampleRate)
		}
		if n.SampleCount != 3200 {
			t.Errorf("expected 3200 samples, got %d", n.SampleCount)
		}
		if n.DurationMs != 200 {
			t.Errorf("expected 200ms, got %f", n.DurationMs)
		}
		if math.Abs(n.RMSEnergy-1500) > 0.001 {
			t.Errorf("expected RMS 1500, got %f", n.RMSEnergy)
		}
	})

	t.Run("keeps precomputed metadata", func(t *testing.T) {
		f := Frame{Data: pcmConst(3200, 1500), RMSEnergy: 42, DurationMs: 123, SampleCount: 7, SampleRate: 16000}
		n := f.Normalize(16000)

		if n.RMSEnergy != 42 || n.DurationMs != 123 || n.SampleCount != 7 {
			t.Errorf("precomputed metadata was overwritten: %+v", n)
		}
	})

	t.Run("resamples foreign rates and recomputes metadata", func(t *testing.T) {
		f := Frame{Data: pcmConst(9600, 1500), SampleRate: 48000, SampleCount: 9600, DurationMs: 200}
		n := f.Normalize(16000)

		if n.SampleRate != 16000 {
			t.Errorf("expected 16000, got %d", n.SampleRate)
		}
		if n.SampleCount != 3200 {
			t.Errorf("expected 3200 samples after downsampling, got %d", n.SampleCount)
		}
		if n.DurationMs != 200 {
			t.Errorf("expected duration preserved at 200ms, got %f", n.DurationMs)
		}
	})
}

func TestResampleMono16(t *testing.T) {
	t.Run("same rate is a no-op", func(t *testing.T) {
		pcm := pcmConst(100, 500)
		if got := ResampleMono16(pcm, 16000, 16000); &got[0] != &pcm[0] {
			t.Error("expected input returned unchanged")
		}
	})

	t.Run("downsample halves sample count", func(t *testing.T) {
		pcm := pcmConst(200, 500)
		got := ResampleMono16(pcm, 32000, 16000)
		if len(got) != 200 {
			t.Errorf("expected 100 samples (200 bytes), got %d bytes", len(got))
		}
	})

	t.Run("constant signal survives interpolation", func(t *testing.T) {
		pcm := pcmConst(480, 1000)
		got := ResampleMono16(pcm, 48000, 16000)
		for i := 0; i+1 < len(got); i += 2 {
			s := int16(got[i]) | int16(got[i+1])<<8
			if s != 1000 {
				t.Fatalf("sample %d = %d, expected 1000", i/2, s)
			}
		}
	})
}
