// Package store provides persistent implementations of the ledger Store:
// SQLite (default), Postgres, and an in-memory store for tests and dev.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/graintrace/core/pkg/ledger"
)

// MemoryStore keeps blocks in process memory. Used in tests and dev mode;
// it honors the same insert precondition as the durable stores.
type MemoryStore struct {
	mu     sync.RWMutex
	blocks []*ledger.Block
	seq    int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) FindLatest(_ context.Context, streamID string) (*ledger.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.blocks) - 1; i >= 0; i-- {
		if s.blocks[i].StreamID == streamID {
			b := *s.blocks[i]
			return &b, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) FindDuplicate(_ context.Context, streamID string, event ledger.EventName, role ledger.ActorRole, actorID string, since time.Time) (*ledger.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.blocks) - 1; i >= 0; i-- {
		b := s.blocks[i]
		if b.StreamID == streamID && b.EventName == event && b.ActorRole == role && b.ActorID == actorID && !b.Timestamp.Before(since) {
			out := *b
			return &out, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) Insert(_ context.Context, b *ledger.Block, expectedPrevHash string) (*ledger.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	head := ""
	for i := len(s.blocks) - 1; i >= 0; i-- {
		if s.blocks[i].StreamID == b.StreamID {
			head = s.blocks[i].CurrentHash
			break
		}
	}
	if head != expectedPrevHash {
		return nil, ledger.ErrHeadConflict
	}

	s.seq++
	stored := *b
	stored.Seq = s.seq
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	s.blocks = append(s.blocks, &stored)

	out := stored
	return &out, nil
}

func (s *MemoryStore) FindAll(_ context.Context, streamID string, ascending bool) ([]*ledger.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*ledger.Block
	for _, b := range s.blocks {
		if b.StreamID == streamID {
			out := *b
			result = append(result, &out)
		}
	}
	if !ascending {
		for i, j := 0, len(result)-1; i < j; i, j = i+1, j-1 {
			result[i], result[j] = result[j], result[i]
		}
	}
	return result, nil
}
