package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/graintrace/core/pkg/canonicalize"
	"github.com/graintrace/core/pkg/ledger"
)

// SQLiteStore is the default durable ledger store.
//
// Timestamps are stored twice: the exact RFC 3339 nano literal (so the
// block digest survives a round trip unchanged) and unix nanoseconds for
// range queries, since RFC 3339 strings with variable fraction digits do
// not sort lexicographically.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate blocks table: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS blocks (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		stream_id TEXT NOT NULL,
		event_name TEXT NOT NULL,
		actor_role TEXT NOT NULL,
		actor_id TEXT NOT NULL,
		event_data JSON,
		content_refs JSON,
		ts TEXT NOT NULL,
		ts_ns INTEGER NOT NULL,
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

const blockColumns = `seq, id, stream_id, event_name, actor_role, actor_id, event_data, content_refs, ts, previous_hash, current_hash, anchor_ref`

func (s *SQLiteStore) FindLatest(ctx context.Context, streamID string) (*ledger.Block, error) {
	query := `SELECT ` + blockColumns + ` FROM blocks WHERE stream_id = ? ORDER BY seq DESC LIMIT 1`
	b, err := scanBlock(s.db.QueryRowContext(ctx, query, streamID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return b, err
}

func (s *SQLiteStore) FindDuplicate(ctx context.Context, streamID string, event ledger.EventName, role ledger.ActorRole, actorID string, since time.Time) (*ledger.Block, error) {
	query := `SELECT ` + blockColumns + ` FROM blocks
		WHERE stream_id = ? AND event_name = ? AND actor_role = ? AND actor_id = ? AND ts_ns >= ?
		ORDER BY seq DESC LIMIT 1`
	b, err := scanBlock(s.db.QueryRowContext(ctx, query, streamID, string(event), string(role), actorID, since.UnixNano()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return b, err
}

func (s *SQLiteStore) Insert(ctx context.Context, b *ledger.Block, expectedPrevHash string) (*ledger.Block, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin insert tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var head sql.NullString
	err = tx.QueryRowContext(ctx,
		`SELECT current_hash FROM blocks WHERE stream_id = ? ORDER BY seq DESC LIMIT 1`,
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

	res, err := tx.ExecContext(ctx,
		`INSERT INTO blocks (id, stream_id, event_name, actor_role, actor_id, event_data, content_refs, ts, ts_ns, previous_hash, current_hash, anchor_ref)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.StreamID, string(b.EventName), string(b.ActorRole), b.ActorID,
		string(dataJSON), string(refsJSON),
		b.Timestamp.UTC().Format(time.RFC3339Nano), b.Timestamp.UnixNano(),
		b.PreviousHash, b.CurrentHash, b.AnchorRef,
	)
	if err != nil {
		return nil, fmt.Errorf("insert block: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("read assigned seq: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit insert: %w", err)
	}

	out := *b
	out.Seq = seq
	return &out, nil
}

func (s *SQLiteStore) FindAll(ctx context.Context, streamID string, ascending bool) ([]*ledger.Block, error) {
	order := "ASC"
	if !ascending {
		order = "DESC"
	}
	query := `SELECT ` + blockColumns + ` FROM blocks WHERE stream_id = ? ORDER BY seq ` + order
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBlock(row rowScanner) (*ledger.Block, error) {
	var (
		seq                  int64
		id, streamID         string
		eventName, actorRole string
		actorID              string
		dataJSON, refsJSON   sql.NullString
		ts                   string
		prevHash, currHash   string
		anchorRef            string
	)
	if err := row.Scan(&seq, &id, &streamID, &eventName, &actorRole, &actorID, &dataJSON, &refsJSON, &ts, &prevHash, &currHash, &anchorRef); err != nil {
		return nil, err
	}

	timestamp, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return nil, fmt.Errorf("parse block timestamp %q: %w", ts, err)
	}

	b := &ledger.Block{
		Seq:          seq,
		ID:           id,
		StreamID:     streamID,
		EventName:    ledger.EventName(eventName),
		ActorRole:    ledger.ActorRole(actorRole),
		ActorID:      actorID,
		Timestamp:    timestamp,
		PreviousHash: prevHash,
		CurrentHash:  currHash,
		AnchorRef:    anchorRef,
	}

	// Decode through the canonical helper so numeric literals keep the
	// representation they were hashed with.
	if dataJSON.Valid && dataJSON.String != "" && dataJSON.String != "null" {
		if err := canonicalize.DecodeJSON([]byte(dataJSON.String), &b.EventData); err != nil {
			return nil, fmt.Errorf("decode event data: %w", err)
		}
	}
	if refsJSON.Valid && refsJSON.String != "" && refsJSON.String != "null" {
		if err := canonicalize.DecodeJSON([]byte(refsJSON.String), &b.ContentRefs); err != nil {
			return nil, fmt.Errorf("decode content refs: %w", err)
		}
	}
	return b, nil
}
