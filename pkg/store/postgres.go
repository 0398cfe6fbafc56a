package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/graintrace/core/pkg/ledger"
)

// PostgresStore implements the ledger store over PostgreSQL for shared
// multi-process deployments. A per-stream advisory lock serializes the
// head check and insert within the transaction, so concurrent writers on
// different connections cannot fork a chain.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	s := &PostgresStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate blocks table: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) migrate() error {
	// event_data and content_refs are deliberately TEXT, not JSONB: the
	// block digest covers the submitted numeric literals, and JSONB
	// normalizes them on output (1e2 comes back as 100), which would make
	// an untampered block fail verification after a round trip.
	query := `
	CREATE TABLE IF NOT EXISTS blocks (
		seq BIGSERIAL PRIMARY KEY,
		id TEXT NOT NULL UNIQUE,
		stream_id TEXT NOT NULL,
		event_name TEXT NOT NULL,
		actor_role TEXT NOT NULL,
		actor_id TEXT NOT NULL,
		event_data TEXT,
		content_refs TEXT,
		ts TEXT NOT NULL,
		ts_ns BIGINT NOT NULL,
		previous_hash TEXT NOT NULL DEFAULT '',
		current_hash TEXT NOT NULL,
		anchor_ref TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_blocks_stream_seq ON blocks(stream_id, seq);
	CREATE INDEX IF NOT EXISTS idx_blocks_dup ON blocks(stream_id, event_name, actor_role, actor_id, ts_ns);
	`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

func (s *PostgresStore) FindLatest(ctx context.Context, streamID string) (*ledger.Block, error) {
	query := `SELECT ` + blockColumns + ` FROM blocks WHERE stream_id = $1 ORDER BY seq DESC LIMIT 1`
	b, err := scanBlock(s.db.QueryRowContext(ctx, query, streamID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return b, err
}

func (s *PostgresStore) FindDuplicate(ctx context.Context, streamID string, event ledger.EventName, role ledger.ActorRole, actorID string, since time.Time) (*ledger.Block, error) {
	query := `SELECT ` + blockColumns + ` FROM blocks
		WHERE stream_id = $1 AND event_name = $2 AND actor_role = $3 AND actor_id = $4 AND ts_ns >= $5
		ORDER BY seq DESC LIMIT 1`
	b, err := scanBlock(s.db.QueryRowContext(ctx, query, streamID, string(event), string(role), actorID, since.UnixNano()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return b, err
}

func (s *PostgresStore) Insert(ctx context.Context, b *ledger.Block, expectedPrevHash string) (*ledger.Block, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin insert tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Serialize writers of this stream for the duration of the tx.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, b.StreamID); err != nil {
		return nil, fmt.Errorf("acquire stream lock: %w", err)
	}

	var head sql.NullString
	err = tx.QueryRowContext(ctx,
		`SELECT current_hash FROM blocks WHERE stream_id = $1 ORDER BY seq DESC LIMIT 1`,
		b.StreamID,
	).Scan(&head)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("read stream head: %w", err)
	}
	if head.String != expectedPrevHash {
		return nil, ledger.ErrHeadConflict
	}

	dataJSON, err := json.Marshal(b.EventData)
	if err != nil {
		return nil, fmt.Errorf("marshal event data: %w", err)
	}
	refsJSON, err := json.Marshal(b.ContentRefs)
	if err != nil {
		return nil, fmt.Errorf("marshal content refs: %w", err)
	}

	var seq int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO blocks (id, stream_id, event_name, actor_role, actor_id, event_data, content_refs, ts, ts_ns, previous_hash, current_hash, anchor_ref)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 RETURNING seq`,
		b.ID, b.StreamID, string(b.EventName), string(b.ActorRole), b.ActorID,
		string(dataJSON), string(refsJSON),
		b.Timestamp.UTC().Format(time.RFC3339Nano), b.Timestamp.UnixNano(),
		b.PreviousHash, b.CurrentHash, b.AnchorRef,
	).Scan(&seq)
	if err != nil {
		return nil, fmt.Errorf("insert block: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit insert: %w", err)
	}

	out := *b
	out.Seq = seq
	return &out, nil
}

func (s *PostgresStore) FindAll(ctx context.Context, streamID string, ascending bool) ([]*ledger.Block, error) {
	order := "ASC"
	if !ascending {
		order = "DESC"
	}
	query := `SELECT ` + blockColumns + ` FROM blocks WHERE stream_id = $1 ORDER BY seq ` + order
	rows, err := s.db.QueryContext(ctx, query, streamID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var blocks []*ledger.Block
	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return blocks, nil
}
