// Package ledger implements the append-only, hash-chained event ledger for
// tracked product batches.
//
// Each reported lifecycle event becomes one immutable Block linked to its
// predecessor by hash. Append order is authoritative; timestamps are
// informational.
package ledger

import (
	"time"

	"github.com/graintrace/core/pkg/canonicalize"
)

// EventName tags the kind of lifecycle event a block records.
type EventName string

const (
	EventSowing              EventName = "SOWING"
	EventTillering           EventName = "TILLERING"
	EventFlowering           EventName = "FLOWERING"
	EventGrainFilling        EventName = "GRAIN_FILLING"
	EventHarvest             EventName = "HARVEST"
	EventProductCreated      EventName = "PRODUCT_CREATED"
	EventSentToDistributor   EventName = "SENT_TO_DISTRIBUTOR"
	EventDistributorAccepted EventName = "DISTRIBUTOR_ACCEPTED"
	EventDistributorCheckout EventName = "CHECKOUT_INITIATED_BY_DISTRIBUTOR"
	EventProductUpgraded     EventName = "PRODUCT_UPGRADED_BY_DISTRIBUTOR"
	EventProductListed       EventName = "PRODUCT_LISTED_IN_DISTRIBUTOR_MARKETPLACE"
	EventRetailerRequested   EventName = "RETAILER_REQUESTED_TO_BUY"
	EventLogisticsAdded      EventName = "DISTRIBUTOR_LOGISTICS_ADDED"
	EventRetailerCheckout    EventName = "RETAILER_CHECKOUT_INITIATED"
	EventDeliveryAccepted    EventName = "RETAILER_ACCEPTED_DELIVERY"
	EventCertificateIssued   EventName = "CERTIFICATE_GENERATED"
	EventQRGenerated         EventName = "QR_GENERATED"
)

var knownEvents = map[EventName]struct{}{
	EventSowing:              {},
	EventTillering:           {},
	EventFlowering:           {},
	EventGrainFilling:        {},
	EventHarvest:             {},
	EventProductCreated:      {},
	EventSentToDistributor:   {},
	EventDistributorAccepted: {},
	EventDistributorCheckout: {},
	EventProductUpgraded:     {},
	EventProductListed:       {},
	EventRetailerRequested:   {},
	EventLogisticsAdded:      {},
	EventRetailerCheckout:    {},
	EventDeliveryAccepted:    {},
	EventCertificateIssued:   {},
	EventQRGenerated:         {},
}

// Valid reports whether the event name is part of the lifecycle taxonomy.
func (e EventName) Valid() bool {
	_, ok := knownEvents[e]
	return ok
}

// ActorRole identifies which kind of participant reported an event.
type ActorRole string

const (
	RoleFarmer      ActorRole = "farmer"
	RoleDistributor ActorRole = "distributor"
	RoleRetailer    ActorRole = "retailer"
	// RoleSystem is used for service-issued terminal events such as
	// CERTIFICATE_GENERATED.
	RoleSystem ActorRole = "system"
)

// Valid reports whether the role is one of the known participant roles.
func (r ActorRole) Valid() bool {
	switch r {
	case RoleFarmer, RoleDistributor, RoleRetailer, RoleSystem:
		return true
	}
	return false
}

// Block is one immutable ledger entry. The first block of a stream has an
// empty PreviousHash (genesis); every later block links to the stored
// CurrentHash of its predecessor.
type Block struct {
	// ID is assigned when the block is built, Seq by the store on insert;
	// neither is covered by the block digest.
	ID  string `json:"id"`
	Seq int64  `json:"seq"`

	StreamID    string         `json:"streamId"`
	EventName   EventName      `json:"eventName"`
	ActorRole   ActorRole      `json:"actorRole"`
	ActorID     string         `json:"actorId"`
	EventData   map[string]any `json:"eventData"`
	ContentRefs []string       `json:"contentRefs"`
	Timestamp   time.Time      `json:"timestamp"`

	PreviousHash string `json:"previousHash,omitempty"`
	CurrentHash  string `json:"currentHash"`

	// AnchorRef holds the transaction reference of an external ledger
	// attestation when one was obtained before the block was built.
	AnchorRef string `json:"anchorRef,omitempty"`
}

// hashable returns the canonical projection of the block that the digest
// covers: every reported field plus the chain linkage, excluding the
// store-assigned identifiers and the digest itself. Empty optional fields
// are emitted as JSON null so genesis blocks hash identically across
// implementations.
func (b *Block) hashable() map[string]any {
	data := b.EventData
	if data == nil {
		data = map[string]any{}
	}
	refs := b.ContentRefs
	if refs == nil {
		refs = []string{}
	}

	var prev any
	if b.PreviousHash != "" {
		prev = b.PreviousHash
	}
	var anchor any
	if b.AnchorRef != "" {
		anchor = b.AnchorRef
	}

	return map[string]any{
		"streamId":     b.StreamID,
		"eventName":    string(b.EventName),
		"actorRole":    string(b.ActorRole),
		"actorId":      b.ActorID,
		"eventData":    data,
		"contentRefs":  refs,
		"timestamp":    b.Timestamp.UTC().Format(time.RFC3339Nano),
		"previousHash": prev,
		"anchorRef":    anchor,
	}
}

// ComputeHash returns the SHA-256 digest of the block's canonical form,
// excluding CurrentHash. Stable across processes: map key order never
// matters and the timestamp is rendered in a single UTC literal form.
func ComputeHash(b *Block) (string, error) {
	return canonicalize.Hash(b.hashable())
}
