// Package transport implements the WebSocket ingress for Polyvox.
//
// Each connection carries at most one speaker session. The client drives the
// session with JSON text frames ("start", "audio", "stop") and may stream raw
// PCM16 as binary frames once the session is active; the server pushes
// transcript segments and status events back as JSON text frames. A dropped
// connection drains the session before it is discarded so buffered speech is
// not lost.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/polyvox/internal/pipeline"
	"github.com/MrWong99/polyvox/pkg/audio"
	"github.com/MrWong99/polyvox/pkg/provider/speech"
)

// maxFrameBytes bounds a single WebSocket message. Audio frames are ~200ms of
// PCM16 and far below this.
const maxFrameBytes = 1 << 20

// clientMessage is the envelope for frames sent by the capture client.
type clientMessage struct {
	// Type is "start", "audio", or "stop".
	Type string `json:"type"`

	// Start fields.
	OwnerID        string `json:"owner_id,omitempty"`
	CallID         string `json:"call_id,omitempty"`
	Language       string `json:"language,omitempty"`
	TargetLanguage string `json:"target_language,omitempty"`

	// Audio fields. Data is base64-encoded PCM16; the metadata mirrors what
	// the client precomputed and may be omitted.
	Data       []byte  `json:"data,omitempty"`
	RMS        float64 `json:"rms,omitempty"`
	DurationMs float64 `json:"duration_ms,omitempty"`
	SampleRate int     `json:"sample_rate,omitempty"`
}

// serverMessage is the envelope for frames pushed to the client.
type serverMessage struct {
	// Type is "transcript", "status", "stopped", or "error".
	Type      string                      `json:"type"`
	Segment   *pipeline.TranscriptSegment `json:"segment,omitempty"`
	Status    *pipeline.StatusEvent       `json:"status,omitempty"`
	SessionID string                      `json:"session_id,omitempty"`
	Reason    string                      `json:"reason,omitempty"`
}

// Server is the WebSocket ingress handler. It is safe for concurrent use and
// serves any number of connections.
type Server struct {
	manager      *pipeline.Manager
	log          *slog.Logger
	drainTimeout time.Duration
	pingInterval time.Duration
}

// NewServer creates the ingress around manager.
func NewServer(manager *pipeline.Manager, log *slog.Logger) *Server {
	return &Server{
		manager:      manager,
		log:          log,
		drainTimeout: 15 * time.Second,
		pingInterval: 30 * time.Second,
	}
}

// ServeHTTP upgrades the request and runs the connection loop until the
// client disconnects.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Warn("websocket accept failed", "error", err, "remote", r.RemoteAddr)
		return
	}
	conn.SetReadLimit(maxFrameBytes)

	s.log.Debug("client connected", "remote", r.RemoteAddr)
	s.serve(r.Context(), conn)
}

func (s *Server) serve(ctx context.Context, conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	notif := &wsNotifier{conn: conn, log: s.log}
	go s.pingLoop(ctx, conn)

	var sess *pipeline.Session
	defer func() {
		conn.Close(websocket.StatusNormalClosure, "bye")
		if sess == nil {
			return
		}
		// The connection is gone; drain on a fresh context so buffered
		// speech still reaches the transcript record.
		drainCtx, drainCancel := context.WithTimeout(context.Background(), s.drainTimeout)
		defer drainCancel()
		if err := s.manager.Stop(drainCtx, sess.ID); err != nil {
			s.log.Error("session drain after disconnect failed", "session_id", sess.ID, "error", err)
		}
	}()

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() == nil && websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				s.log.Debug("client read ended", "error", err)
			}
			return
		}

		if typ == websocket.MessageBinary {
			s.handleAudio(notif, sess, audio.Frame{Data: data})
			continue
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			notif.sendError(ctx, "malformed message")
			continue
		}

		switch msg.Type {
		case "start":
			if sess != nil {
				notif.sendError(ctx, "session already active")
				continue
			}
			started, err := s.manager.Start(ctx, pipeline.StartRequest{
				OwnerID:        msg.OwnerID,
				CallID:         msg.CallID,
				Language:       msg.Language,
				TargetLanguage: msg.TargetLanguage,
				Notifier:       notif,
			})
			if err != nil {
				// ErrUnconfigured already surfaced as a disabled status.
				if !errors.Is(err, speech.ErrUnconfigured) {
					notif.sendError(ctx, "session start failed")
				}
				continue
			}
			sess = started

		case "audio":
			s.handleAudio(notif, sess, audio.Frame{
				Data:       msg.Data,
				RMSEnergy:  msg.RMS,
				DurationMs: msg.DurationMs,
				SampleRate: msg.SampleRate,
			})

		case "stop":
			if sess == nil {
				continue
			}
			id := sess.ID
			if err := s.manager.Stop(ctx, id); err != nil {
				s.log.Error("session stop failed", "session_id", id, "error", err)
			}
			sess = nil
			notif.send(ctx, serverMessage{Type: "stopped", SessionID: id})

		default:
			notif.sendError(ctx, "unknown message type")
		}
	}
}

func (s *Server) handleAudio(notif *wsNotifier, sess *pipeline.Session, frame audio.Frame) {
	if sess == nil {
		notif.sendError(context.Background(), "no active session")
		return
	}
	if len(frame.Data) == 0 {
		return
	}
	if err := sess.Process(frame); err != nil {
		s.log.Warn("dropping frame", "session_id", sess.ID, "error", err)
	}
}

// pingLoop keeps intermediaries from reaping quiet connections. Speakers can
// be silent for minutes while a call continues.
func (s *Server) pingLoop(ctx context.Context, conn *websocket.Conn) {
	t := time.NewTicker(s.pingInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := conn.Ping(ctx); err != nil {
				return
			}
		}
	}
}

// wsNotifier delivers pipeline events to one connection. The mutex serialises
// writers: flush goroutines and the connection loop both send.
type wsNotifier struct {
	conn *websocket.Conn
	log  *slog.Logger
	mu   sync.Mutex
}

var _ pipeline.Notifier = (*wsNotifier)(nil)

// Transcript implements [pipeline.Notifier].
func (n *wsNotifier) Transcript(ctx context.Context, seg pipeline.TranscriptSegment) {
	n.send(ctx, serverMessage{Type: "transcript", Segment: &seg})
}

// Status implements [pipeline.Notifier].
func (n *wsNotifier) Status(ctx context.Context, ev pipeline.StatusEvent) {
	n.send(ctx, serverMessage{Type: "status", Status: &ev})
}

func (n *wsNotifier) sendError(ctx context.Context, reason string) {
	n.send(ctx, serverMessage{Type: "error", Reason: reason})
}

func (n *wsNotifier) send(ctx context.Context, msg serverMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		n.log.Error("marshal server message", "error", err)
		return
	}

	// Detach from the caller's context: a drain flush finishing right as
	// the request context cancels should still attempt delivery.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.conn.Write(writeCtx, websocket.MessageText, data); err != nil {
		n.log.Debug("write to client failed", "type", msg.Type, "error", err)
	}
}
