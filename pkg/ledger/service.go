package ledger

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/graintrace/core/pkg/canonicalize"
)

const (
	// defaultDuplicateWindow matches the recency window of the original
	// submission path: an identical event tuple reported again within it
	// is treated as a retried submission, not a new event.
	defaultDuplicateWindow = 5 * time.Minute

	defaultAnchorTimeout = 30 * time.Second

	// maxAppendAttempts bounds retries when another process advanced the
	// stream head between our read and our insert.
	maxAppendAttempts = 3
)

// AppendRequest carries one reported lifecycle event.
type AppendRequest struct {
	StreamID    string
	EventName   EventName
	ActorRole   ActorRole
	ActorID     string
	EventData   map[string]any
	ContentRefs []string

	// AnchorRef is an external ledger transaction reference obtained by
	// the caller before submission, if any. It is covered by the block
	// digest.
	AnchorRef string
}

// PayloadValidator checks event payloads against their per-event schema
// before any store access.
type PayloadValidator interface {
	Validate(event EventName, data map[string]any) error
}

// AnchorRequest is the attestation submitted to an external distributed
// ledger after a successful append.
type AnchorRequest struct {
	StreamDigest string    `json:"streamDigest"`
	EventName    EventName `json:"eventName"`
	ContentRef   string    `json:"contentRef"`
	Timestamp    time.Time `json:"timestamp"`
	ActorAddress string    `json:"actorAddress"`
}

// Anchorer submits best-effort attestations. Failures are logged and never
// affect ledger success.
type Anchorer interface {
	Anchor(ctx context.Context, req AnchorRequest) (string, error)
}

// Service builds, links, deduplicates and persists blocks, and replays
// streams for verification.
type Service struct {
	store         Store
	cache         HeadCache
	validator     PayloadValidator
	anchorer      Anchorer
	anchorTimeout time.Duration
	window        time.Duration
	clock         func() time.Time
	logger        *slog.Logger
	locks         streamLocks
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the timestamp source for testing.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) { s.clock = clock }
}

// WithDuplicateWindow overrides the duplicate-suppression window.
func WithDuplicateWindow(d time.Duration) Option {
	return func(s *Service) { s.window = d }
}

// WithValidator installs a payload validator.
func WithValidator(v PayloadValidator) Option {
	return func(s *Service) { s.validator = v }
}

// WithAnchorer installs a best-effort external anchorer.
func WithAnchorer(a Anchorer) Option {
	return func(s *Service) { s.anchorer = a }
}

// WithLogger overrides the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService wires an append service over the given store and head cache.
func NewService(store Store, cache HeadCache, opts ...Option) *Service {
	s := &Service{
		store:         store,
		cache:         cache,
		anchorTimeout: defaultAnchorTimeout,
		window:        defaultDuplicateWindow,
		clock:         time.Now,
		logger:        slog.Default().With("component", "ledger"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Append records one lifecycle event as a new chained block.
//
// A submission whose (stream, event, role, actor) tuple already appeared
// within the duplicate window returns the existing block unchanged. On
// success the head cache reflects the new block; on any failure neither
// the store nor the cache changed.
func (s *Service) Append(ctx context.Context, req AppendRequest) (*Block, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}

	lock := s.locks.acquire(req.StreamID)
	defer s.locks.release(req.StreamID, lock)

	var lastErr error
	for attempt := 0; attempt < maxAppendAttempts; attempt++ {
		prevHash, err := s.resolveHead(ctx, req.StreamID)
		if err != nil {
			return nil, err
		}

		now := s.clock().UTC()
		dup, err := s.store.FindDuplicate(ctx, req.StreamID, req.EventName, req.ActorRole, req.ActorID, now.Add(-s.window))
		if err != nil {
			return nil, storeErr("find duplicate", err)
		}
		if dup != nil {
			s.logger.Info("duplicate event suppressed",
				"stream", req.StreamID, "event", req.EventName, "block", dup.ID)
			return dup, nil
		}

		block := &Block{
			ID:           uuid.New().String(),
			StreamID:     req.StreamID,
			EventName:    req.EventName,
			ActorRole:    req.ActorRole,
			ActorID:      req.ActorID,
			EventData:    req.EventData,
			ContentRefs:  req.ContentRefs,
			Timestamp:    now,
			PreviousHash: prevHash,
			AnchorRef:    req.AnchorRef,
		}
		block.CurrentHash, err = ComputeHash(block)
		if err != nil {
			return nil, &ValidationError{Field: "eventData", Reason: err.Error()}
		}

		saved, err := s.store.Insert(ctx, block, prevHash)
		if errors.Is(err, ErrHeadConflict) {
			// Another writer (outside this process) advanced the head.
			// Drop the stale cache entry and retry from the store.
			lastErr = err
			s.cache.Set(ctx, req.StreamID, "")
			continue
		}
		if err != nil {
			return nil, storeErr("insert block", err)
		}

		s.cache.Set(ctx, req.StreamID, saved.CurrentHash)
		s.logger.Info("block appended",
			"stream", saved.StreamID, "event", saved.EventName,
			"seq", saved.Seq, "hash", saved.CurrentHash)

		s.submitAnchor(saved)
		return saved, nil
	}
	return nil, lastErr
}

// Ledger returns the stream's blocks in append order.
func (s *Service) Ledger(ctx context.Context, streamID string) ([]*Block, error) {
	if streamID == "" {
		return nil, &ValidationError{Field: "streamId", Reason: "required"}
	}
	blocks, err := s.store.FindAll(ctx, streamID, true)
	if err != nil {
		return nil, storeErr("find all", err)
	}
	if len(blocks) == 0 {
		return nil, ErrStreamNotFound
	}
	return blocks, nil
}

func (s *Service) validate(req AppendRequest) error {
	if req.StreamID == "" {
		return &ValidationError{Field: "streamId", Reason: "required"}
	}
	if !req.EventName.Valid() {
		return &ValidationError{Field: "eventName", Reason: "unknown event " + string(req.EventName)}
	}
	if !req.ActorRole.Valid() {
		return &ValidationError{Field: "actorRole", Reason: "unknown role " + string(req.ActorRole)}
	}
	if req.ActorID == "" {
		return &ValidationError{Field: "actorId", Reason: "required"}
	}
	if s.validator != nil {
		if err := s.validator.Validate(req.EventName, req.EventData); err != nil {
			return err
		}
	}
	return nil
}

// resolveHead returns the stream's latest hash, repopulating the cache
// from the store on a miss. Empty string means genesis.
func (s *Service) resolveHead(ctx context.Context, streamID string) (string, error) {
	if hash, ok := s.cache.Get(ctx, streamID); ok && hash != "" {
		return hash, nil
	}

	latest, err := s.store.FindLatest(ctx, streamID)
	if err != nil {
		return "", storeErr("find latest", err)
	}
	if latest == nil {
		return "", nil
	}
	s.cache.Set(ctx, streamID, latest.CurrentHash)
	return latest.CurrentHash, nil
}

// submitAnchor fires the external attestation without awaiting it. The
// append already succeeded; anchor outcome is logged either way.
func (s *Service) submitAnchor(b *Block) {
	if s.anchorer == nil {
		return
	}
	contentRef := ""
	if len(b.ContentRefs) > 0 {
		contentRef = b.ContentRefs[0]
	}
	req := AnchorRequest{
		StreamDigest: canonicalize.HashBytes([]byte(b.StreamID)),
		EventName:    b.EventName,
		ContentRef:   contentRef,
		Timestamp:    b.Timestamp,
		ActorAddress: b.ActorID,
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.anchorTimeout)
		defer cancel()
		txRef, err := s.anchorer.Anchor(ctx, req)
		if err != nil {
			s.logger.Warn("anchor submission failed",
				"stream", b.StreamID, "event", b.EventName, "error", err)
			return
		}
		s.logger.Info("block anchored",
			"stream", b.StreamID, "event", b.EventName, "tx_ref", txRef)
	}()
}
