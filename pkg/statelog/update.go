package statelog

import (
	"fmt"

	"github.com/google/uuid"

	"searchdb/pkg/routing"
)

// Update is one entry of the replicated routing log: a complete wire-encoded
// routing table for one index. Applying updates in commit order gives every
// node the same table sequence.
type Update struct {
	Index string    `json:"index"`
	Table []byte    `json:"table"`
	ID    uuid.UUID `json:"id"`
}

// NewUpdate encodes a table into a proposable update.
func NewUpdate(table *routing.Table) Update {
	return Update{
		Index: table.Index(),
		Table: routing.EncodeTable(table),
		ID:    uuid.New(),
	}
}

// DecodeTable validates and decodes the carried table. The table must decode
// cleanly and match the declared index, otherwise the update is rejected as a
// whole; a corrupt table must never reach routing decisions.
func (u Update) DecodeTable() (*routing.Table, error) {
	table, err := routing.DecodeTable(u.Table)
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", u.ID, err)
	}
	if table.Index() != u.Index {
		return nil, fmt.Errorf("update %s: table index [%s] does not match declared [%s]",
			u.ID, table.Index(), u.Index)
	}
	return table, nil
}
