// File: cabinet/token.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package cabinet

import (
	"encoding/binary"
	"hash/fnv"
	"strconv"
)

// Token is an opaque handle into a Cabinet: the slot generation (ID) at the
// time of allocation and the slot position (Pos). The zero Token is null.
type Token struct {
	ID  uint64
	Pos uint32
}

// IsNull reports whether t is the null token.
func (t Token) IsNull() bool { return t.ID == 0 }

// Less orders tokens lexicographically on (ID, Pos).
func (t Token) Less(o Token) bool {
	if t.ID != o.ID {
		return t.ID < o.ID
	}
	return t.Pos < o.Pos
}

// Hash combines both fields into a full-width FNV-1a hash.
func (t Token) Hash() uint64 {
	var buf [12]byte
	binary.LittleEndian.PutUint64(buf[:8], t.ID)
	binary.LittleEndian.PutUint32(buf[8:], t.Pos)
	h := fnv.New64a()
	h.Write(buf[:])
	return h.Sum64()
}

func (t Token) String() string {
	return strconv.FormatUint(t.ID, 10) + ":" + strconv.FormatUint(uint64(t.Pos), 10)
}
