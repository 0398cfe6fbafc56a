package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/graintrace/core/pkg/ledger"
)

func newSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s, err := NewSQLiteStore(db)
	require.NoError(t, err)
	return s
}

func testBlock(streamID string, event ledger.EventName, prevHash string, ts time.Time) *ledger.Block {
	b := &ledger.Block{
		ID:           uuid.New().String(),
		StreamID:     streamID,
		EventName:    event,
		ActorRole:    ledger.RoleFarmer,
		ActorID:      "farmer-1",
		EventData:    map[string]any{"moisturePercentAtHarvest": json.Number("11.50")},
		ContentRefs:  []string{"sha256:aa11"},
		Timestamp:    ts,
		PreviousHash: prevHash,
	}
	hash, err := ledger.ComputeHash(b)
	if err != nil {
		panic(err)
	}
	b.CurrentHash = hash
	return b
}

func TestSQLiteInsertAndFindLatest(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	ts := time.Date(2025, 6, 1, 8, 0, 0, 123456789, time.UTC)

	latest, err := s.FindLatest(ctx, "BATCH-1")
	require.NoError(t, err)
	require.Nil(t, latest)

	a := testBlock("BATCH-1", ledger.EventSowing, "", ts)
	saved, err := s.Insert(ctx, a, "")
	require.NoError(t, err)
	require.Equal(t, int64(1), saved.Seq)

	b := testBlock("BATCH-1", ledger.EventTillering, saved.CurrentHash, ts.Add(time.Hour))
	saved2, err := s.Insert(ctx, b, saved.CurrentHash)
	require.NoError(t, err)
	require.Equal(t, int64(2), saved2.Seq)

	latest, err = s.FindLatest(ctx, "BATCH-1")
	require.NoError(t, err)
	require.Equal(t, b.ID, latest.ID)
	require.Equal(t, saved.CurrentHash, latest.PreviousHash)
}

func TestSQLiteInsertHeadConflict(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	ts := time.Now().UTC()

	a := testBlock("BATCH-1", ledger.EventSowing, "", ts)
	_, err := s.Insert(ctx, a, "")
	require.NoError(t, err)

	// A writer that read the head before block a landed must conflict.
	stale := testBlock("BATCH-1", ledger.EventTillering, "", ts.Add(time.Second))
	_, err = s.Insert(ctx, stale, "")
	require.ErrorIs(t, err, ledger.ErrHeadConflict)

	all, err := s.FindAll(ctx, "BATCH-1", true)
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestSQLiteRoundTripPreservesDigest(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	ts := time.Date(2025, 6, 1, 8, 0, 0, 900000000, time.UTC)

	a := testBlock("BATCH-1", ledger.EventHarvest, "", ts)
	_, err := s.Insert(ctx, a, "")
	require.NoError(t, err)

	stored, err := s.FindLatest(ctx, "BATCH-1")
	require.NoError(t, err)

	recomputed, err := ledger.ComputeHash(stored)
	require.NoError(t, err)
	require.Equal(t, a.CurrentHash, recomputed,
		"digest must survive persistence, including numeric literals and sub-second timestamps")
}

func TestSQLiteFindDuplicateWindow(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	ts := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

	a := testBlock("BATCH-1", ledger.EventSowing, "", ts)
	_, err := s.Insert(ctx, a, "")
	require.NoError(t, err)

	dup, err := s.FindDuplicate(ctx, "BATCH-1", ledger.EventSowing, ledger.RoleFarmer, "farmer-1", ts.Add(-time.Minute))
	require.NoError(t, err)
	require.NotNil(t, dup)
	require.Equal(t, a.ID, dup.ID)

	// Same tuple but the window starts after the block's timestamp.
	dup, err = s.FindDuplicate(ctx, "BATCH-1", ledger.EventSowing, ledger.RoleFarmer, "farmer-1", ts.Add(time.Minute))
	require.NoError(t, err)
	require.Nil(t, dup)

	// Different actor never matches.
	dup, err = s.FindDuplicate(ctx, "BATCH-1", ledger.EventSowing, ledger.RoleFarmer, "farmer-2", ts.Add(-time.Minute))
	require.NoError(t, err)
	require.Nil(t, dup)
}

func TestSQLiteFindAllOrdering(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	ts := time.Now().UTC()

	a := testBlock("BATCH-1", ledger.EventSowing, "", ts)
	saved, err := s.Insert(ctx, a, "")
	require.NoError(t, err)
	b := testBlock("BATCH-1", ledger.EventTillering, saved.CurrentHash, ts.Add(time.Minute))
	_, err = s.Insert(ctx, b, saved.CurrentHash)
	require.NoError(t, err)

	asc, err := s.FindAll(ctx, "BATCH-1", true)
	require.NoError(t, err)
	require.Len(t, asc, 2)
	require.Equal(t, a.ID, asc[0].ID)

	desc, err := s.FindAll(ctx, "BATCH-1", false)
	require.NoError(t, err)
	require.Equal(t, b.ID, desc[0].ID)

	other, err := s.FindAll(ctx, "BATCH-2", true)
	require.NoError(t, err)
	require.Empty(t, other)
}
