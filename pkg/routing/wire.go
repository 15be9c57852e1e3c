package routing

import (
	"fmt"

	"searchdb/pkg/types"
	"searchdb/pkg/wire"
)

// Binary wire form for inter-node transmission of routing state.
//
// Copy (the index and shard number come from the surrounding group):
//
//	node present   bool
//	node           string, if present
//	reloc present  bool
//	reloc node     string, if present
//	primary        bool
//	state          byte
//
// Group, thin form (index known from context): shard number (uvarint), copy
// count (uvarint), copies. Full form prepends the index name. A table is the
// index name, group count (uvarint), and thin groups.
//
// Decoding rebuilds groups through the same guarded builder path as live
// construction, and fails fast on truncated input or unknown state bytes so a
// corrupt table never reaches routing decisions.

// AppendCopy encodes one copy in thin form.
func AppendCopy(w *wire.Writer, c ShardCopy) {
	w.Bool(c.Assigned())
	if c.Assigned() {
		w.String(string(c.Node))
	}
	w.Bool(c.RelocatingNode != "")
	if c.RelocatingNode != "" {
		w.String(string(c.RelocatingNode))
	}
	w.Bool(c.Primary)
	w.Byte(byte(c.State))
}

// ReadCopy decodes one copy belonging to shardID.
func ReadCopy(r *wire.Reader, shardID ShardID) (ShardCopy, error) {
	c := ShardCopy{Shard: shardID}

	hasNode, err := r.Bool()
	if err != nil {
		return ShardCopy{}, err
	}
	if hasNode {
		node, err := r.String()
		if err != nil {
			return ShardCopy{}, err
		}
		c.Node = types.NodeID(node)
	}

	hasReloc, err := r.Bool()
	if err != nil {
		return ShardCopy{}, err
	}
	if hasReloc {
		reloc, err := r.String()
		if err != nil {
			return ShardCopy{}, err
		}
		c.RelocatingNode = types.NodeID(reloc)
	}

	if c.Primary, err = r.Bool(); err != nil {
		return ShardCopy{}, err
	}

	stateByte, err := r.Byte()
	if err != nil {
		return ShardCopy{}, err
	}
	if c.State, err = StateFromByte(stateByte); err != nil {
		return ShardCopy{}, fmt.Errorf("copy of %s: %w", shardID, err)
	}

	if c.Assigned() == (c.State == StateUnassigned) {
		return ShardCopy{}, fmt.Errorf("copy of %s: state %s does not match node presence", shardID, c.State)
	}
	return c, nil
}

// AppendGroupThin encodes a group without its index name.
func AppendGroupThin(w *wire.Writer, g *Group) {
	w.Uvarint(uint64(g.ShardID().ID))
	w.Uvarint(uint64(g.Size()))
	for _, c := range g.copies {
		AppendCopy(w, c)
	}
}

// AppendGroup encodes a group with its index name.
func AppendGroup(w *wire.Writer, g *Group) {
	w.String(g.ShardID().Index)
	AppendGroupThin(w, g)
}

// ReadGroupThin decodes a group whose index name is already known.
func ReadGroupThin(r *wire.Reader, index string) (*Group, error) {
	shard, err := r.Uvarint()
	if err != nil {
		return nil, err
	}
	shardID := ShardID{Index: index, ID: int(shard)}

	size, err := r.Uvarint()
	if err != nil {
		return nil, err
	}

	b := NewGroupBuilder(shardID)
	for i := uint64(0); i < size; i++ {
		c, err := ReadCopy(r, shardID)
		if err != nil {
			return nil, err
		}
		b.Add(c)
	}
	g, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("decode group %s: %w", shardID, err)
	}
	return g, nil
}

// ReadGroup decodes a group encoded with AppendGroup.
func ReadGroup(r *wire.Reader) (*Group, error) {
	index, err := r.String()
	if err != nil {
		return nil, err
	}
	return ReadGroupThin(r, index)
}

// AppendTable encodes a whole index routing table.
func AppendTable(w *wire.Writer, t *Table) {
	w.String(t.index)
	groups := t.Groups()
	w.Uvarint(uint64(len(groups)))
	for _, g := range groups {
		AppendGroupThin(w, g)
	}
}

// ReadTable decodes a table encoded with AppendTable.
func ReadTable(r *wire.Reader) (*Table, error) {
	index, err := r.String()
	if err != nil {
		return nil, err
	}
	count, err := r.Uvarint()
	if err != nil {
		return nil, err
	}
	b := NewTableBuilder(index)
	for i := uint64(0); i < count; i++ {
		g, err := ReadGroupThin(r, index)
		if err != nil {
			return nil, err
		}
		b.AddGroup(g)
	}
	return b.Build()
}

// EncodeTable serializes t into a fresh byte slice.
func EncodeTable(t *Table) []byte {
	w := wire.NewWriter()
	AppendTable(w, t)
	return w.Bytes()
}

// DecodeTable parses a table and requires the input to be fully consumed.
func DecodeTable(data []byte) (*Table, error) {
	r := wire.NewReader(data)
	t, err := ReadTable(r)
	if err != nil {
		return nil, err
	}
	if r.Remaining() != 0 {
		return nil, fmt.Errorf("decode table [%s]: %d trailing bytes", t.index, r.Remaining())
	}
	return t, nil
}
