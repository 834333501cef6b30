package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/polyvox/internal/pipeline"
)

// Compile-time interface check.
var _ pipeline.Persister = (*Store)(nil)

// Store is the PostgreSQL-backed transcript store. It holds a single
// [pgxpool.Pool]; all operations are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore establishes a connection pool to the PostgreSQL database at dsn
// and runs [Migrate] to ensure the schema exists.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("transcript store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("transcript store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("transcript store: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// AppendSegment implements [pipeline.Persister]. It appends seg to the
// owner's transcript record for the call.
func (s *Store) AppendSegment(ctx context.Context, ownerID, callID string, seg pipeline.TranscriptSegment) error {
	const q = `
		INSERT INTO transcript_segments
		    (session_id, owner_id, call_id, text, language, auto_detected,
		     original_text, translated_text, dual_mode, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := s.pool.Exec(ctx, q,
		seg.SessionID,
		ownerID,
		callID,
		seg.Text,
		seg.Language,
		seg.AutoDetected,
		seg.OriginalText,
		seg.TranslatedText,
		seg.DualMode,
		seg.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("transcript store: append segment: %w", err)
	}
	return nil
}

// CallTranscript returns every segment of the owner's transcript for callID,
// ordered chronologically (oldest first).
func (s *Store) CallTranscript(ctx context.Context, ownerID, callID string) ([]pipeline.TranscriptSegment, error) {
	const q = `
		SELECT session_id, owner_id, call_id, text, language, auto_detected,
		       original_text, translated_text, dual_mode, timestamp
		FROM   transcript_segments
		WHERE  owner_id = $1 AND call_id = $2
		ORDER  BY timestamp, id`

	rows, err := s.pool.Query(ctx, q, ownerID, callID)
	if err != nil {
		return nil, fmt.Errorf("transcript store: call transcript: %w", err)
	}
	return collectSegments(rows)
}

// RecentSegments returns the owner's segments across all calls whose
// timestamp is no earlier than now()-window, ordered chronologically.
func (s *Store) RecentSegments(ctx context.Context, ownerID string, window time.Duration) ([]pipeline.TranscriptSegment, error) {
	const q = `
		SELECT session_id, owner_id, call_id, text, language, auto_detected,
		       original_text, translated_text, dual_mode, timestamp
		FROM   transcript_segments
		WHERE  owner_id  = $1
		  AND  timestamp >= now() - ($2::bigint * interval '1 microsecond')
		ORDER  BY timestamp, id`

	rows, err := s.pool.Query(ctx, q, ownerID, window.Microseconds())
	if err != nil {
		return nil, fmt.Errorf("transcript store: recent segments: %w", err)
	}
	return collectSegments(rows)
}

// Search performs a full-text search over the owner's segment text.
// The query is passed to plainto_tsquery so no operator syntax is required.
func (s *Store) Search(ctx context.Context, ownerID, query string, limit int) ([]pipeline.TranscriptSegment, error) {
	q := `
		SELECT session_id, owner_id, call_id, text, language, auto_detected,
		       original_text, translated_text, dual_mode, timestamp
		FROM   transcript_segments
		WHERE  owner_id = $1
		  AND  to_tsvector('simple', text) @@ plainto_tsquery('simple', $2)
		ORDER  BY timestamp, id`

	args := []any{ownerID, query}
	if limit > 0 {
		args = append(args, limit)
		q += fmt.Sprintf("\nLIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("transcript store: search: %w", err)
	}
	return collectSegments(rows)
}

// Ping verifies database connectivity, for readiness checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases all connections held by the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}

// collectSegments scans pgx rows into a slice of segments.
func collectSegments(rows pgx.Rows) ([]pipeline.TranscriptSegment, error) {
	segs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (pipeline.TranscriptSegment, error) {
		var seg pipeline.TranscriptSegment
		err := row.Scan(
			&seg.SessionID,
			&seg.OwnerID,
			&seg.CallID,
			&seg.Text,
			&seg.Language,
			&seg.AutoDetected,
			&seg.OriginalText,
			&seg.TranslatedText,
			&seg.DualMode,
			&seg.Timestamp,
		)
		return seg, err
	})
	if err != nil {
		return nil, fmt.Errorf("transcript store: scan rows: %w", err)
	}
	return segs, nil
}
