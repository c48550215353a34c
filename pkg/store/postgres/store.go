package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/lisible/internal/clipcache"
	"github.com/MrWong99/lisible/internal/recordings"
	"github.com/MrWong99/lisible/internal/textnorm"
)

var (
	_ recordings.Source = (*Store)(nil)
	_ clipcache.Store   = (*ClipStore)(nil)
)

// Store holds the connection pool. It implements [recordings.Source]
// directly; the clip cache is exposed via [Store.Clips] because both
// interfaces are consumed by different components.
type Store struct {
	pool  *pgxpool.Pool
	clips *ClipStore
}

// NewStore connects to dsn, pings the server and runs [Migrate].
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}
	return &Store{pool: pool, clips: &ClipStore{pool: pool}}, nil
}

// Clips returns the clip cache backed by the synthesized_clips table.
func (s *Store) Clips() *ClipStore { return s.clips }

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// Close releases every pooled connection.
func (s *Store) Close() { s.pool.Close() }

// Recordings implements [recordings.Source].
func (s *Store) Recordings(ctx context.Context, learnerID string) ([]recordings.Recording, error) {
	const q = `
SELECT word, audio_ref
FROM personal_recordings
WHERE learner_id = $1
ORDER BY created_at, word`

	rows, err := s.pool.Query(ctx, q, learnerID)
	if err != nil {
		return nil, fmt.Errorf("postgres: recordings query: %w", err)
	}
	recs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (recordings.Recording, error) {
		var r recordings.Recording
		err := row.Scan(&r.Word, &r.AudioRef)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: recordings scan: %w", err)
	}
	return recs, nil
}

// PutRecording stores or replaces a learner's recording of word. The word is
// normalised so the primary key matches the index the resolver builds.
func (s *Store) PutRecording(ctx context.Context, learnerID string, rec recordings.Recording) error {
	word := textnorm.Normalize(rec.Word)
	if learnerID == "" || word == "" || rec.AudioRef == "" {
		return errors.New("postgres: put recording: learner, word and audio ref are required")
	}
	const q = `
INSERT INTO personal_recordings (learner_id, word, audio_ref)
VALUES ($1, $2, $3)
ON CONFLICT (learner_id, word) DO UPDATE SET audio_ref = EXCLUDED.audio_ref`

	if _, err := s.pool.Exec(ctx, q, learnerID, word, rec.AudioRef); err != nil {
		return fmt.Errorf("postgres: put recording: %w", err)
	}
	return nil
}

// ClipStore implements [clipcache.Store] on the synthesized_clips table.
type ClipStore struct {
	pool *pgxpool.Pool
}

// Get implements [clipcache.Store].
func (c *ClipStore) Get(ctx context.Context, key clipcache.Key) ([]byte, bool, error) {
	const q = `SELECT payload FROM synthesized_clips WHERE normalized_text = $1 AND voice_id = $2`

	var payload []byte
	err := c.pool.QueryRow(ctx, q, key.Text, key.VoiceID).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("postgres: get clip: %w", err)
	}
	return payload, true, nil
}

// Put implements [clipcache.Store]. An existing row is left untouched.
func (c *ClipStore) Put(ctx context.Context, key clipcache.Key, payload []byte) error {
	if len(payload) == 0 {
		return clipcache.ErrEmptyPayload
	}
	const q = `
INSERT INTO synthesized_clips (normalized_text, voice_id, payload)
VALUES ($1, $2, $3)
ON CONFLICT (normalized_text, voice_id) DO NOTHING`

	if _, err := c.pool.Exec(ctx, q, key.Text, key.VoiceID, payload); err != nil {
		return fmt.Errorf("postgres: put clip: %w", err)
	}
	return nil
}
