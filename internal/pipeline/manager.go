package pipeline

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/polyvox/internal/config"
	"github.com/MrWong99/polyvox/internal/observe"
	"github.com/MrWong99/polyvox/pkg/provider/speech"
)

// ManagerConfig wires a [Manager]'s collaborators.
type ManagerConfig struct {
	// Pipeline holds the tuning knobs shared by all sessions.
	Pipeline *config.PipelineConfig

	// Provider is the speech backend. Nil disables transcription: session
	// starts are answered with a "disabled" status.
	Provider speech.Provider

	// Persister receives accepted segments. Nil disables persistence.
	Persister Persister

	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// Logger defaults to [slog.Default].
	Logger *slog.Logger
}

// StartRequest describes a new speaker session.
type StartRequest struct {
	// OwnerID and CallID locate the transcript record for persistence.
	OwnerID string
	CallID  string

	// Language is the session language mode: empty or [LanguageAuto] races
	// the configured candidates, any other value is a fixed BCP-47 tag.
	Language string

	// TargetLanguage is the display language; empty uses the configured
	// fallback language.
	TargetLanguage string

	// Notifier receives this session's segments and status events.
	Notifier Notifier
}

// Manager owns all live transcription sessions in the process. It shares one
// detector (and therefore one provider rate limiter) across sessions so that
// concurrent speakers cannot multiply provider traffic past the configured
// spacing.
type Manager struct {
	cfg       *config.PipelineConfig
	provider  speech.Provider
	persister Persister
	metrics   *observe.Metrics
	log       *slog.Logger
	det       *detector
	norm      *normalizer

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

// NewManager creates a [Manager] from mc, filling optional collaborators with
// defaults.
func NewManager(mc ManagerConfig) *Manager {
	if mc.Metrics == nil {
		mc.Metrics = observe.DefaultMetrics()
	}
	if mc.Logger == nil {
		mc.Logger = slog.Default()
	}

	m := &Manager{
		cfg:       mc.Pipeline,
		provider:  mc.Provider,
		persister: mc.Persister,
		metrics:   mc.Metrics,
		log:       mc.Logger,
		sessions:  make(map[string]*Session),
	}
	if mc.Provider != nil {
		limiter := newInterRequestLimiter(mc.Pipeline)
		m.det = newDetector(mc.Pipeline, mc.Provider, limiter, mc.Metrics, mc.Logger)
		m.norm = newNormalizer(mc.Pipeline, mc.Provider, mc.Metrics, mc.Logger)
	}
	return m
}

// Enabled reports whether a speech provider is configured.
func (m *Manager) Enabled() bool { return m.provider != nil }

// Start creates and registers a new session. When no provider is configured
// the request's notifier receives a "disabled" status and
// [speech.ErrUnconfigured] is returned.
func (m *Manager) Start(ctx context.Context, req StartRequest) (*Session, error) {
	if m.provider == nil {
		if req.Notifier != nil {
			req.Notifier.Status(ctx, StatusEvent{
				Kind:   StatusDisabled,
				Reason: "no speech provider configured",
			})
		}
		return nil, speech.ErrUnconfigured
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}

	id := uuid.NewString()
	target := req.TargetLanguage
	if target == "" {
		target = m.cfg.FallbackLanguage
	}
	s := newSession(sessionParams{
		id:         id,
		ownerID:    req.OwnerID,
		callID:     req.CallID,
		language:   req.Language,
		targetLang: target,
		cfg:        m.cfg,
		det:        m.det,
		norm:       m.norm,
		notifier:   req.Notifier,
		persister:  m.persister,
		metrics:    m.metrics,
		log:        m.log,
	})
	m.sessions[id] = s
	m.metrics.ActiveSessions.Add(ctx, 1)

	m.log.Info("session started",
		"session_id", id,
		"owner_id", req.OwnerID,
		"call_id", req.CallID,
		"language", req.Language)
	req.Notifier.Status(ctx, StatusEvent{SessionID: id, Kind: StatusActive})
	return s, nil
}

// Get returns the live session with the given ID.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Stop drains and removes one session. Stopping an unknown ID is a no-op.
func (m *Manager) Stop(ctx context.Context, id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	if !ok {
		return nil
	}

	m.metrics.ActiveSessions.Add(ctx, -1)
	err := s.Stop(ctx)
	m.log.Info("session stopped", "session_id", id)
	return err
}

// Shutdown drains every live session concurrently and refuses new starts.
// Returns the first drain error, after all sessions have been attempted.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	remaining := make([]*Session, 0, len(m.sessions))
	for id, s := range m.sessions {
		remaining = append(remaining, s)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	// Plain group: one slow drain must not cancel the others.
	var g errgroup.Group
	for _, s := range remaining {
		s := s
		g.Go(func() error {
			defer m.metrics.ActiveSessions.Add(ctx, -1)
			return s.Stop(ctx)
		})
	}
	return g.Wait()
}
