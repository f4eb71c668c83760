// Package chatstore durably persists chat turns to Postgres. It is optional:
// the core's in-memory chat history (internal/chathistory) functions fully
// without it, and a Store is only wired in when a database URI is configured.
package chatstore

import (
	"context"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/snarg/session-engine/internal/chathistory"
)

// SchemaSQL creates the chat_turns table if it doesn't already exist. The
// store issues this once at startup rather than depending on an external
// migration tool, matching the scale of what this table needs.
const SchemaSQL = `
CREATE TABLE IF NOT EXISTS chat_turns (
	id BIGSERIAL PRIMARY KEY,
	user_id TEXT NOT NULL,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	photo_ref TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS chat_turns_user_id_created_at_idx ON chat_turns (user_id, created_at);
`

// Turn is one durable chat turn. PhotoRef is an opaque photostore request ID,
// never raw image bytes — the durable log is a transcript, not a media store.
type Turn struct {
	UserID    string
	Role      string // "user" or "assistant"
	Content   string
	PhotoRef  string
	CreatedAt time.Time
}

// Store is a pgx-backed durable chat turn log.
type Store struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

// Connect opens a pool against databaseURL and ensures the schema exists.
func Connect(ctx context.Context, databaseURL string, log zerolog.Logger) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 10
	cfg.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if _, err := pool.Exec(ctx, SchemaSQL); err != nil {
		pool.Close()
		return nil, err
	}

	log.Info().Str("url", maskDSN(databaseURL)).Msg("chat store connected")
	return &Store{pool: pool, log: log.With().Str("component", "chatstore").Logger()}, nil
}

// appendBatch writes a batch of turns in a single round trip.
func (s *Store) appendBatch(turns []Turn) {
	if len(turns) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	b := &pgx.Batch{}
	for _, t := range turns {
		b.Queue(
			`INSERT INTO chat_turns (user_id, role, content, photo_ref, created_at) VALUES ($1, $2, $3, $4, $5)`,
			t.UserID, t.Role, t.Content, nullable(t.PhotoRef), t.CreatedAt,
		)
	}
	br := s.pool.SendBatch(ctx, b)
	defer br.Close()
	for range turns {
		if _, err := br.Exec(); err != nil {
			s.log.Error().Err(err).Int("count", len(turns)).Msg("durable chat turn batch write failed")
			return
		}
	}
}

// durableAdapter satisfies chathistory.DurableWriter by translating its
// turn shape into this package's Turn before delegating to Store.
type durableAdapter struct{ store *Store }

func (a durableAdapter) AppendBatch(turns []chathistory.DurableTurn) {
	converted := make([]Turn, len(turns))
	for i, t := range turns {
		converted[i] = Turn{UserID: t.UserID, Role: t.Role, Content: t.Content, PhotoRef: t.PhotoRef, CreatedAt: t.CreatedAt}
	}
	a.store.appendBatch(converted)
}

// AsDurableWriter exposes s as a chathistory.DurableWriter for wiring into
// chathistory.New's Options.Durable field.
func (s *Store) AsDurableWriter() chathistory.DurableWriter {
	return durableAdapter{store: s}
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		if _, hasPass := u.User.Password(); hasPass {
			u.User = url.UserPassword(u.User.Username(), "***")
		}
	}
	return u.String()
}

// Pool exposes the underlying connection pool for metrics collection.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

func (s *Store) Close() {
	s.log.Info().Msg("closing chat store pool")
	s.pool.Close()
}
