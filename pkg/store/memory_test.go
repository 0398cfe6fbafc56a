package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/graintrace/core/pkg/ledger"
)

func TestMemoryStoreHonorsHeadPrecondition(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	ts := time.Now().UTC()

	a := testBlock("BATCH-1", ledger.EventSowing, "", ts)
	saved, err := s.Insert(ctx, a, "")
	require.NoError(t, err)
	require.Equal(t, int64(1), saved.Seq)

	stale := testBlock("BATCH-1", ledger.EventTillering, "", ts.Add(time.Second))
	_, err = s.Insert(ctx, stale, "")
	require.ErrorIs(t, err, ledger.ErrHeadConflict)

	next := testBlock("BATCH-1", ledger.EventTillering, saved.CurrentHash, ts.Add(time.Second))
	_, err = s.Insert(ctx, next, saved.CurrentHash)
	require.NoError(t, err)

	all, err := s.FindAll(ctx, "BATCH-1", true)
	require.NoError(t, err)
	require.Len(t, all, 2)

	latest, err := s.FindLatest(ctx, "BATCH-1")
	require.NoError(t, err)
	require.Equal(t, next.ID, latest.ID)
}

func TestMemoryStoreStreamsAreIndependent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	ts := time.Now().UTC()

	_, err := s.Insert(ctx, testBlock("BATCH-1", ledger.EventSowing, "", ts), "")
	require.NoError(t, err)
	_, err = s.Insert(ctx, testBlock("BATCH-2", ledger.EventSowing, "", ts), "")
	require.NoError(t, err)

	one, err := s.FindAll(ctx, "BATCH-1", true)
	require.NoError(t, err)
	require.Len(t, one, 1)
}
