package ledger

import (
	"testing"
	"time"
)

func TestComputeHashKeyOrderIndependent(t *testing.T) {
	ts := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	a := &Block{
		StreamID:  "BATCH-1",
		EventName: EventHarvest,
		ActorRole: RoleFarmer,
		ActorID:   "farmer-1",
		EventData: map[string]any{"grainGrade": "A", "totalYieldKg": "1200", "warehouseId": "WH-7"},
		Timestamp: ts,
	}
	b := &Block{
		StreamID:  "BATCH-1",
		EventName: EventHarvest,
		ActorRole: RoleFarmer,
		ActorID:   "farmer-1",
		EventData: map[string]any{"warehouseId": "WH-7", "totalYieldKg": "1200", "grainGrade": "A"},
		Timestamp: ts,
	}

	h1, err := ComputeHash(a)
	if err != nil {
		t.Fatal(err)
	}
	h2, err := ComputeHash(b)
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 {
		t.Fatalf("hash must not depend on map insertion order: %s != %s", h1, h2)
	}
}

func TestComputeHashExcludesStoreAssignedFields(t *testing.T) {
	ts := time.Now().UTC()
	a := &Block{StreamID: "B", EventName: EventSowing, ActorRole: RoleFarmer, ActorID: "f", Timestamp: ts}
	b := &Block{StreamID: "B", EventName: EventSowing, ActorRole: RoleFarmer, ActorID: "f", Timestamp: ts, ID: "some-uuid", Seq: 42, CurrentHash: "x"}

	h1, _ := ComputeHash(a)
	h2, _ := ComputeHash(b)
	if h1 != h2 {
		t.Fatal("ID, Seq and CurrentHash must not be covered by the digest")
	}
}

func TestComputeHashCoversLinkage(t *testing.T) {
	ts := time.Now().UTC()
	a := &Block{StreamID: "B", EventName: EventSowing, ActorRole: RoleFarmer, ActorID: "f", Timestamp: ts}
	b := &Block{StreamID: "B", EventName: EventSowing, ActorRole: RoleFarmer, ActorID: "f", Timestamp: ts, PreviousHash: "aaaa"}

	h1, _ := ComputeHash(a)
	h2, _ := ComputeHash(b)
	if h1 == h2 {
		t.Fatal("previous hash must change the digest")
	}
}

func TestEventNameAndRoleValidation(t *testing.T) {
	if !EventHarvest.Valid() || !EventCertificateIssued.Valid() {
		t.Fatal("known events must validate")
	}
	if EventName("HARVESTING").Valid() {
		t.Fatal("unknown event must not validate")
	}
	if !RoleSystem.Valid() {
		t.Fatal("system role must validate")
	}
	if ActorRole("broker").Valid() {
		t.Fatal("unknown role must not validate")
	}
}
