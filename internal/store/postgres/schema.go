// Package postgres provides the PostgreSQL-backed transcript store for
// Polyvox.
//
// Accepted transcript segments are appended to a single transcript_segments
// table keyed by owner and call, with a GIN full-text index over the segment
// text for later search. [Migrate] is idempotent and runs on every start.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer store.Close()
//
//	_ = store.AppendSegment(ctx, ownerID, callID, seg)
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlTranscriptSegments = `
CREATE TABLE IF NOT EXISTS transcript_segments (
    id              BIGSERIAL    PRIMARY KEY,
    session_id      TEXT         NOT NULL,
    owner_id        TEXT         NOT NULL,
    call_id         TEXT         NOT NULL,
    text            TEXT         NOT NULL,
    language        TEXT         NOT NULL,
    auto_detected   BOOLEAN      NOT NULL DEFAULT false,
    original_text   TEXT         NOT NULL DEFAULT '',
    translated_text TEXT         NOT NULL DEFAULT '',
    dual_mode       BOOLEAN      NOT NULL DEFAULT false,
    timestamp       TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_transcript_segments_owner_call
    ON transcript_segments (owner_id, call_id, timestamp);

CREATE INDEX IF NOT EXISTS idx_transcript_segments_session_id
    ON transcript_segments (session_id);

CREATE INDEX IF NOT EXISTS idx_transcript_segments_fts
    ON transcript_segments USING GIN (to_tsvector('simple', text));
`

// Migrate creates or ensures all required tables and indexes exist. It is
// idempotent and safe to call on every application start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlTranscriptSegments); err != nil {
		return fmt.Errorf("postgres migrate: %w", err)
	}
	return nil
}
