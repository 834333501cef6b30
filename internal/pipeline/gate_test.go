package pipeline

import (
	"testing"

	"github.com/MrWong99/polyvox/internal/config"
	"github.com/MrWong99/polyvox/pkg/audio"
)

func frameWithRMS(rms float64) audio.Frame {
	return audio.Frame{Data: []byte{0, 0}, RMSEnergy: rms, DurationMs: 200}
}

func TestVoiceGate_SpeechResetsRun(t *testing.T) {
	cfg := config.DefaultPipeline()
	g := newVoiceGate(&cfg)

	if got := g.Classify(frameWithRMS(100)); got != ClassDropped {
		t.Fatalf("sub-floor frame: expected ClassDropped, got %v", got)
	}
	if g.SilenceRun() != 1 {
		t.Errorf("expected silence run 1, got %d", g.SilenceRun())
	}

	if got := g.Classify(frameWithRMS(600)); got != ClassSpeech {
		t.Fatalf("loud frame: expected ClassSpeech, got %v", got)
	}
	if g.SilenceRun() != 0 {
		t.Errorf("expected silence run reset by speech, got %d", g.SilenceRun())
	}
}

func TestVoiceGate_LeadingMidEnergyDropped(t *testing.T) {
	cfg := config.DefaultPipeline()
	g := newVoiceGate(&cfg)

	// Mid-energy frames before any speech must not be buffered: the grace
	// window only applies after speech.
	for i := 0; i < 3; i++ {
		if got := g.Classify(frameWithRMS(300)); got != ClassDropped {
			t.Fatalf("frame %d: expected ClassDropped, got %v", i, got)
		}
	}
}

func TestVoiceGate_TrailingGraceWindow(t *testing.T) {
	cfg := config.DefaultPipeline()
	g := newVoiceGate(&cfg)

	g.Classify(frameWithRMS(600))

	if got := g.Classify(frameWithRMS(300)); got != ClassTrailing {
		t.Fatalf("1st trailing frame: expected ClassTrailing, got %v", got)
	}
	if got := g.Classify(frameWithRMS(300)); got != ClassTrailing {
		t.Fatalf("2nd trailing frame: expected ClassTrailing, got %v", got)
	}
	if got := g.Classify(frameWithRMS(300)); got != ClassDropped {
		t.Fatalf("3rd trailing frame: expected ClassDropped past grace window, got %v", got)
	}
	if g.SilenceRun() != 3 {
		t.Errorf("trailing frames must extend silence run, got %d", g.SilenceRun())
	}
}

func TestVoiceGate_SubFloorNeverTrailing(t *testing.T) {
	cfg := config.DefaultPipeline()
	g := newVoiceGate(&cfg)

	g.Classify(frameWithRMS(600))
	if got := g.Classify(frameWithRMS(100)); got != ClassDropped {
		t.Errorf("sub-floor frame inside grace window: expected ClassDropped, got %v", got)
	}
}

func TestVoiceGate_Endpointing(t *testing.T) {
	cfg := config.DefaultPipeline()
	g := newVoiceGate(&cfg)

	g.Classify(frameWithRMS(600))
	for i := 0; i < cfg.MaxSilenceRun; i++ {
		if g.EndpointReached() {
			t.Fatalf("endpoint reached too early after %d silent frames", i)
		}
		g.Classify(frameWithRMS(100))
	}
	if !g.EndpointReached() {
		t.Fatal("expected endpoint after max silence run")
	}

	g.ResetRun()
	if g.EndpointReached() {
		t.Error("expected endpoint cleared after ResetRun")
	}
}
