// Package certificate compiles a stream's full block history into a
// traceability certificate document, stores it content-addressed, and
// seals the stream with a terminal certificate block.
package certificate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/graintrace/core/pkg/artifacts"
	"github.com/graintrace/core/pkg/canonicalize"
	"github.com/graintrace/core/pkg/ledger"
)

// Version identifies the certificate document layout.
const Version = "1.0.0"

// systemActorID is the actor recorded on the terminal certificate block.
const systemActorID = "certificate-service"

// Participant describes one actor seen in the stream.
type Participant struct {
	Role    ledger.ActorRole `json:"role"`
	ActorID string           `json:"actorId"`
}

// HarvestSummary carries the quality fields of the stream's HARVEST
// event, when one was recorded.
type HarvestSummary struct {
	HarvestDate     string `json:"harvestDate,omitempty"`
	TotalYieldKg    string `json:"totalYieldKg,omitempty"`
	MoisturePercent string `json:"moisturePercent,omitempty"`
	GrainGrade      string `json:"grainGrade,omitempty"`
}

// BlockSummary is one ledger block as presented on the certificate.
type BlockSummary struct {
	Seq          int64            `json:"seq"`
	EventName    ledger.EventName `json:"eventName"`
	ActorRole    ledger.ActorRole `json:"actorRole"`
	ActorID      string           `json:"actorId"`
	Timestamp    time.Time        `json:"timestamp"`
	ContentRefs  []string         `json:"contentRefs"`
	PreviousHash string           `json:"previousHash"`
	CurrentHash  string           `json:"currentHash"`
	AnchorRef    string           `json:"anchorRef,omitempty"`
}

// Document is the certificate payload persisted to the artifact store.
type Document struct {
	StreamID     string          `json:"streamId"`
	Version      string          `json:"version"`
	GeneratedAt  time.Time       `json:"generatedAt"`
	Participants []Participant   `json:"participants"`
	Harvest      *HarvestSummary `json:"harvest,omitempty"`
	Blocks       []BlockSummary  `json:"blocks"`
}

// Result is returned to the caller after compilation.
type Result struct {
	ContentID  string        `json:"contentId"`
	GatewayURL string        `json:"gatewayUrl"`
	Block      *ledger.Block `json:"block"`
}

// Compiler builds and stores certificates.
type Compiler struct {
	service     *ledger.Service
	store       artifacts.Store
	gatewayBase string
	clock       func() time.Time
	logger      *slog.Logger
}

// NewCompiler wires a certificate compiler. gatewayBase may be empty to
// use the default public gateway.
func NewCompiler(service *ledger.Service, store artifacts.Store, gatewayBase string, logger *slog.Logger) *Compiler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Compiler{
		service:     service,
		store:       store,
		gatewayBase: gatewayBase,
		clock:       time.Now,
		logger:      logger.With("component", "certificate"),
	}
}

// WithClock overrides the timestamp source for testing.
func (c *Compiler) WithClock(clock func() time.Time) *Compiler {
	c.clock = clock
	return c
}

// Compile builds the certificate for streamID from its current history,
// stores it, and appends the terminal CERTIFICATE_GENERATED block. The
// terminal block chains to the pre-certificate head and carries the new
// content identifier in its content references.
func (c *Compiler) Compile(ctx context.Context, streamID string) (*Result, error) {
	blocks, err := c.service.Ledger(ctx, streamID)
	if err != nil {
		return nil, err
	}

	doc := c.buildDocument(streamID, blocks)
	data, err := canonicalize.JCS(doc)
	if err != nil {
		return nil, fmt.Errorf("encode certificate: %w", err)
	}

	cid, err := c.store.Put(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("store certificate: %w", err)
	}

	sealed, err := c.service.Append(ctx, ledger.AppendRequest{
		StreamID:  streamID,
		EventName: ledger.EventCertificateIssued,
		ActorRole: ledger.RoleSystem,
		ActorID:   systemActorID,
		EventData: map[string]any{
			"certificateId": cid,
			"version":       Version,
			"blockCount":    fmt.Sprint(len(blocks)),
		},
		ContentRefs: []string{cid},
	})
	if err != nil {
		return nil, fmt.Errorf("seal certificate block: %w", err)
	}

	c.logger.Info("certificate compiled",
		"stream", streamID, "cid", cid, "blocks", len(blocks), "seq", sealed.Seq)

	return &Result{
		ContentID:  cid,
		GatewayURL: artifacts.GatewayURL(c.gatewayBase, cid),
		Block:      sealed,
	}, nil
}

func (c *Compiler) buildDocument(streamID string, blocks []*ledger.Block) *Document {
	doc := &Document{
		StreamID:     streamID,
		Version:      Version,
		GeneratedAt:  c.clock().UTC(),
		Participants: participants(blocks),
		Blocks:       make([]BlockSummary, 0, len(blocks)),
	}

	for _, b := range blocks {
		refs := make([]string, 0, len(b.ContentRefs))
		refs = append(refs, b.ContentRefs...)
		doc.Blocks = append(doc.Blocks, BlockSummary{
			Seq:          b.Seq,
			EventName:    b.EventName,
			ActorRole:    b.ActorRole,
			ActorID:      b.ActorID,
			Timestamp:    b.Timestamp,
			ContentRefs:  refs,
			PreviousHash: b.PreviousHash,
			CurrentHash:  b.CurrentHash,
			AnchorRef:    b.AnchorRef,
		})
		if b.EventName == ledger.EventHarvest && doc.Harvest == nil {
			doc.Harvest = harvestSummary(b.EventData)
		}
	}
	return doc
}

// participants lists each (role, actor) pair once, in order of first
// appearance. The terminal system actor is excluded.
func participants(blocks []*ledger.Block) []Participant {
	seen := make(map[string]struct{})
	out := make([]Participant, 0, 4)
	for _, b := range blocks {
		if b.ActorRole == ledger.RoleSystem {
			continue
		}
		key := string(b.ActorRole) + "/" + b.ActorID
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, Participant{Role: b.ActorRole, ActorID: b.ActorID})
	}
	return out
}

// harvestSummary pulls the quality fields out of a harvest payload.
// Values arrive as strings or json.Number depending on the producer;
// both render as their literal text.
func harvestSummary(data map[string]any) *HarvestSummary {
	asString := func(key string) string {
		v, ok := data[key]
		if !ok || v == nil {
			return ""
		}
		return fmt.Sprint(v)
	}
	s := &HarvestSummary{
		HarvestDate:     asString("harvestDate"),
		TotalYieldKg:    asString("totalYieldKg"),
		MoisturePercent: asString("moisturePercentAtHarvest"),
		GrainGrade:      asString("grainGrade"),
	}
	if *s == (HarvestSummary{}) {
		return nil
	}
	return s
}
