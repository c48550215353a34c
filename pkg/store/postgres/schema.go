// Package postgres provides PostgreSQL-backed implementations of the
// personal recording source and the synthesized clip cache.
//
// Both share a single [pgxpool.Pool]. [Migrate] creates the tables and is
// safe to run on every start.
//
//	store, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer store.Close()
//
//	recs, _ := store.Recordings(ctx, "alice")
//	_ = store.Clips().Put(ctx, clipcache.NewKey("table", voiceID), mp3)
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlPersonalRecordings = `
CREATE TABLE IF NOT EXISTS personal_recordings (
    learner_id  TEXT         NOT NULL,
    word        TEXT         NOT NULL,
    audio_ref   TEXT         NOT NULL,
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now(),
    PRIMARY KEY (learner_id, word)
);
`

const ddlSynthesizedClips = `
CREATE TABLE IF NOT EXISTS synthesized_clips (
    normalized_text  TEXT         NOT NULL,
    voice_id         TEXT         NOT NULL,
    payload          BYTEA        NOT NULL,
    created_at       TIMESTAMPTZ  NOT NULL DEFAULT now(),
    PRIMARY KEY (normalized_text, voice_id)
);
`

// Migrate creates the tables used by [Store] if they do not exist yet.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range []string{ddlPersonalRecordings, ddlSynthesizedClips} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return nil
}
