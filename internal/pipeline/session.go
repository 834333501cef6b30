package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/polyvox/internal/config"
	"github.com/MrWong99/polyvox/internal/observe"
	"github.com/MrWong99/polyvox/pkg/audio"
)

// Session is the per-speaker transcription pipeline instance. Frames flow in
// through [Session.Process] in arrival order; finalized segments flow out
// through the session's [Notifier].
//
// Concurrency model: Process, Stop, and flush completion all synchronise on
// one mutex. At most one flush goroutine exists at a time (the processing
// flag), so the filter, translation state, and unknown streak have a single
// writer and the provider never sees overlapping clips from one speaker.
type Session struct {
	// ID is the unique session identifier.
	ID string

	// OwnerID and CallID locate the transcript record segments append to.
	OwnerID string
	CallID  string

	language   string
	targetLang string

	cfg       *config.PipelineConfig
	det       *detector
	norm      *normalizer
	notifier  Notifier
	persister Persister
	metrics   *observe.Metrics
	log       *slog.Logger
	tracer    trace.Tracer

	// baseCtx outlives the caller's request context so drain flushes can
	// finish after a disconnect.
	baseCtx context.Context

	// now is replaced in tests.
	now func() time.Time

	mu            sync.Mutex
	gate          *voiceGate
	acc           *accumulator
	filter        *qualityFilter
	tstate        translateState
	unknownStreak int
	processing    bool
	closed        bool
	wg            sync.WaitGroup
}

type sessionParams struct {
	id, ownerID, callID  string
	language, targetLang string

	cfg       *config.PipelineConfig
	det       *detector
	norm      *normalizer
	notifier  Notifier
	persister Persister
	metrics   *observe.Metrics
	log       *slog.Logger
}

func newSession(p sessionParams) *Session {
	return &Session{
		ID:         p.id,
		OwnerID:    p.ownerID,
		CallID:     p.callID,
		language:   p.language,
		targetLang: p.targetLang,
		cfg:        p.cfg,
		det:        p.det,
		norm:       p.norm,
		notifier:   p.notifier,
		persister:  p.persister,
		metrics:    p.metrics,
		log:        p.log.With("session_id", p.id),
		tracer:     otel.Tracer("github.com/MrWong99/polyvox/internal/pipeline"),
		baseCtx:    context.Background(),
		now:        time.Now,
		gate:       newVoiceGate(p.cfg),
		acc:        newAccumulator(p.cfg),
		filter:     newQualityFilter(p.cfg),
	}
}

// Process ingests one audio frame. It never blocks on provider calls: flushes
// run on a separate goroutine and frames arriving mid-flush accumulate into
// the next batch. Returns [ErrClosed] after Stop.
func (s *Session) Process(frame audio.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	f := frame.Normalize(s.cfg.SampleRate)
	class := s.gate.Classify(f)
	if class != ClassDropped {
		s.acc.Append(f, class == ClassSpeech)
	}

	s.evaluateLocked(s.gate.EndpointReached() && s.acc.Len() > 0)
	return nil
}

// evaluateLocked checks the flush triggers and starts a flush when one fires.
// Caller must hold s.mu. A no-op while a flush is in flight; completion
// re-evaluates so no trigger is lost.
func (s *Session) evaluateLocked(endpoint bool) {
	if s.processing {
		return
	}
	now := s.now()

	switch {
	case s.acc.HardCapReached():
		s.startFlushLocked("hard_cap")

	case s.acc.Ready(s.unknownStreak >= s.cfg.UnknownStreakLimit, now):
		if s.acc.WorthFlushing() {
			s.startFlushLocked("thresholds")
		} else {
			s.acc.Defer(now)
		}

	case endpoint:
		if s.acc.WorthFlushing() {
			s.startFlushLocked("endpoint")
		} else {
			s.acc.Defer(now)
		}
		s.gate.ResetRun()
	}
}

// startFlushLocked hands the buffered batch to a new flush goroutine.
// Caller must hold s.mu and have verified that no flush is in flight.
func (s *Session) startFlushLocked(trigger string) {
	pcm := s.acc.Take()
	if len(pcm) == 0 {
		return
	}
	language := s.flushLanguageLocked()
	s.processing = true
	s.metrics.RecordFlush(s.baseCtx, trigger)
	s.wg.Add(1)
	go s.runFlush(pcm, language, trigger)
}

// flushLanguageLocked resolves the language mode for the next flush. A
// translation-degraded session pins to the fallback language instead of
// racing candidates it could no longer translate anyway.
func (s *Session) flushLanguageLocked() string {
	if s.language != "" && s.language != LanguageAuto {
		return s.language
	}
	if s.tstate.degraded {
		return s.cfg.FallbackLanguage
	}
	return LanguageAuto
}

func (s *Session) runFlush(pcm []byte, language, trigger string) {
	defer s.wg.Done()

	ctx, span := s.tracer.Start(s.baseCtx, "pipeline.flush",
		trace.WithAttributes(
			attribute.String("session_id", s.ID),
			attribute.String("trigger", trigger),
		))
	defer span.End()

	start := time.Now()
	defer func() {
		s.metrics.FlushDuration.Record(ctx, time.Since(start).Seconds())
		s.completeFlush()
	}()

	// Aggregate gate: individual frames passed, but a clip that is quiet
	// overall is breathing noise and not worth a provider round trip.
	if audio.RMS(pcm) < s.cfg.RMSDropFloor {
		s.metrics.RecordSuppressed(ctx, "low_energy")
		return
	}

	wav := audio.WAVFromPCM16(pcm, s.cfg.SampleRate)
	res, err := s.det.Detect(ctx, wav, language)
	if err != nil {
		s.log.Error("transcription failed", "trigger", trigger, "error", err)
		s.notifier.Status(ctx, StatusEvent{SessionID: s.ID, Kind: StatusError, Reason: "transcription failed"})
		s.bumpStreak()
		return
	}

	now := s.now()
	v, reason := s.filter.Check(res.Transcript, res.Language, now)

	if v == verdictRetryFallback {
		retry, rerr := s.det.Detect(ctx, wav, s.cfg.FallbackLanguage)
		if rerr != nil || retry.Transcript == "" {
			s.metrics.RecordSuppressed(ctx, "unknown_language")
			s.bumpStreak()
			return
		}
		res = retry
		v, reason = s.filter.Check(res.Transcript, res.Language, now)
		if v == verdictRetryFallback {
			v, reason = verdictReject, "unknown_language"
		}
	}

	if v == verdictReject {
		s.log.Debug("segment suppressed", "reason", reason, "language", res.Language)
		s.metrics.RecordSuppressed(ctx, reason)
		s.bumpStreak()
		return
	}

	norm := s.norm.Normalize(ctx, &s.tstate, res.Transcript, res.Language, s.targetLang)
	seg := TranscriptSegment{
		SessionID:      s.ID,
		OwnerID:        s.OwnerID,
		CallID:         s.CallID,
		Text:           norm.Text,
		Timestamp:      now,
		Language:       norm.Language,
		AutoDetected:   res.AutoDetected,
		OriginalText:   norm.Original,
		TranslatedText: norm.Translated,
		DualMode:       norm.Dual,
	}

	if s.persister != nil {
		if perr := s.persister.AppendSegment(ctx, s.OwnerID, s.CallID, seg); perr != nil {
			// Persistence is best effort; live delivery continues.
			s.log.Error("failed to persist segment", "error", perr)
		}
	}

	s.notifier.Transcript(ctx, seg)
	s.filter.Accepted(res.Transcript, now)
	s.metrics.SegmentsEmitted.Add(ctx, 1,
		metric.WithAttributes(attribute.String("language", seg.Language)))
	s.resetStreak()
}

// completeFlush releases the single-flight slot and re-evaluates triggers for
// audio that accumulated while the flush ran. A closed session drains
// whatever is left instead.
func (s *Session) completeFlush() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.processing = false
	if s.closed {
		if s.acc.Len() > 0 {
			s.startFlushLocked("drain")
		}
		return
	}
	s.evaluateLocked(s.gate.EndpointReached() && s.acc.Len() > 0)
}

func (s *Session) bumpStreak() {
	s.mu.Lock()
	s.unknownStreak++
	s.mu.Unlock()
}

func (s *Session) resetStreak() {
	s.mu.Lock()
	s.unknownStreak = 0
	s.mu.Unlock()
}

// Stop closes the session: remaining buffered audio is flushed regardless of
// the minimum clip size, in-flight work is awaited, and further Process calls
// fail with [ErrClosed]. Stop is idempotent. The context bounds only the
// wait, not the drain flush itself.
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	if !s.processing && s.acc.Len() > 0 {
		s.startFlushLocked("drain")
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}
