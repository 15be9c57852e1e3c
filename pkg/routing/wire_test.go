package routing

import (
	"testing"

	"searchdb/pkg/wire"
)

func sampleTable(t *testing.T) *Table {
	relocating, err := copyFor("logs", 1, "nodeB", true, StateStarted).Relocate("nodeC")
	if err != nil {
		t.Fatal(err)
	}
	return buildTable(t, NewTableBuilder("logs").
		Add(copyFor("logs", 0, "nodeA", true, StateStarted)).
		Add(copyFor("logs", 0, "nodeB", false, StateInitializing)).
		Add(copyFor("logs", 0, "", false, StateUnassigned)).
		Add(relocating))
}

func copiesEqual(a, b []ShardCopy) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestWire_TableRoundTrip(t *testing.T) {
	table := sampleTable(t)

	decoded, err := DecodeTable(EncodeTable(table))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if decoded.Index() != table.Index() {
		t.Fatalf("index = %q, want %q", decoded.Index(), table.Index())
	}
	if decoded.NumGroups() != table.NumGroups() {
		t.Fatalf("groups = %d, want %d", decoded.NumGroups(), table.NumGroups())
	}
	if !copiesEqual(decoded.AllCopies(), table.AllCopies()) {
		t.Fatalf("copies differ:\n%s\nvs\n%s", decoded.PrettyPrint(), table.PrettyPrint())
	}
	if !copiesEqual(decoded.AllActive(), table.AllActive()) {
		t.Fatal("active copies differ after round trip")
	}
}

func TestWire_GroupThinRoundTrip(t *testing.T) {
	g, _ := sampleTable(t).Group(0)

	w := wire.NewWriter()
	AppendGroupThin(w, g)
	decoded, err := ReadGroupThin(wire.NewReader(w.Bytes()), "logs")
	if err != nil {
		t.Fatalf("decode thin group: %v", err)
	}

	if decoded.ShardID() != g.ShardID() {
		t.Fatalf("shard id = %s, want %s", decoded.ShardID(), g.ShardID())
	}
	if !copiesEqual(decoded.Copies(), g.Copies()) {
		t.Fatal("copies differ after thin round trip")
	}
}

func TestWire_GroupFullFormCarriesIndex(t *testing.T) {
	g, _ := sampleTable(t).Group(1)

	w := wire.NewWriter()
	AppendGroup(w, g)

	thin := wire.NewWriter()
	AppendGroupThin(thin, g)
	if w.Len() <= thin.Len() {
		t.Fatalf("full form (%d bytes) must exceed thin form (%d bytes)", w.Len(), thin.Len())
	}

	decoded, err := ReadGroup(wire.NewReader(w.Bytes()))
	if err != nil {
		t.Fatalf("decode full group: %v", err)
	}
	if decoded.ShardID().Index != "logs" {
		t.Fatalf("index = %q, want logs", decoded.ShardID().Index)
	}
}

func TestWire_DecodeAppliesDuplicateGuard(t *testing.T) {
	// A peer sends a group claiming two copies on nodeA. The decoder must
	// absorb the second one, like live construction would.
	shardID := ShardID{Index: "logs", ID: 0}
	w := wire.NewWriter()
	w.Uvarint(0) // shard number
	w.Uvarint(2) // copy count
	AppendCopy(w, copyFor("logs", 0, "nodeA", true, StateStarted))
	AppendCopy(w, copyFor("logs", 0, "nodeA", false, StateStarted))

	g, err := ReadGroupThin(wire.NewReader(w.Bytes()), "logs")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if g.ShardID() != shardID {
		t.Fatalf("shard id = %s", g.ShardID())
	}
	if g.Size() != 1 {
		t.Fatalf("group size = %d, want 1 after guard", g.Size())
	}
}

func TestWire_DecodeAppliesPrimaryGuard(t *testing.T) {
	// A peer sends a group carrying an unassigned primary placeholder plus an
	// assigned primary. The decoder must keep only the assigned one.
	w := wire.NewWriter()
	w.Uvarint(0)
	w.Uvarint(2)
	AppendCopy(w, copyFor("logs", 0, "", true, StateUnassigned))
	AppendCopy(w, copyFor("logs", 0, "nodeA", true, StateStarted))

	g, err := ReadGroupThin(wire.NewReader(w.Bytes()), "logs")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if g.Size() != 1 {
		t.Fatalf("group size = %d, want 1 after guard", g.Size())
	}
	p, ok := g.Primary()
	if !ok || p.Node != "nodeA" {
		t.Fatalf("primary = %+v ok=%v, want the assigned one", p, ok)
	}
}

func TestWire_DecodeFailsFast(t *testing.T) {
	table := sampleTable(t)
	data := EncodeTable(table)

	if _, err := DecodeTable(data[:len(data)-3]); err == nil {
		t.Error("truncated stream must fail")
	}
	if _, err := DecodeTable(append(data, 0xFF)); err == nil {
		t.Error("trailing garbage must fail")
	}

	// Corrupt the state byte of the last copy.
	bad := append([]byte(nil), data...)
	bad[len(bad)-1] = 0x7F
	if _, err := DecodeTable(bad); err == nil {
		t.Error("invalid state byte must fail")
	}
}

func TestWire_DecodeRejectsNodeStateMismatch(t *testing.T) {
	w := wire.NewWriter()
	w.Uvarint(0)
	w.Uvarint(1)
	// Copy claiming a node while unassigned.
	w.Bool(true)
	w.String("nodeA")
	w.Bool(false)
	w.Bool(true)
	w.Byte(byte(StateUnassigned))

	if _, err := ReadGroupThin(wire.NewReader(w.Bytes()), "logs"); err == nil {
		t.Error("assigned node with unassigned state must fail")
	}
}
