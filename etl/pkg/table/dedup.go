package table

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// RowKey is a deterministic identity for a row's cell values.
type RowKey string

// Key derives the RowKey of r. Each cell is written as a length-delimited
// payload so that ("a|b", "c") and ("a", "b|c") never collide, and a null cell
// is distinct from an empty string.
func (r Row) Key() RowKey {
	var buf bytes.Buffer
	for _, c := range r {
		if !c.Valid {
			buf.WriteString("nil:0:")
			continue
		}
		buf.WriteString("str:")
		buf.WriteString(strconv.Itoa(len(c.Value)))
		buf.WriteString(":")
		buf.WriteString(c.Value)
	}
	hash := sha256.Sum256(buf.Bytes())
	return RowKey(hex.EncodeToString(hash[:]))
}

// Dedup removes rows that are fully identical to an earlier row.
// The first occurrence of each distinct row is kept, in its original position.
// It returns the number of rows removed.
func (t *Table) Dedup() int {
	before := len(t.Rows)
	seen := make(map[RowKey]struct{}, len(t.Rows))
	kept := t.Rows[:0]
	for _, r := range t.Rows {
		k := r.Key()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		kept = append(kept, r)
	}
	clear(t.Rows[len(kept):])
	t.Rows = kept
	return before - len(t.Rows)
}
