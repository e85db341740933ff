package state

import (
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// KeyGen issues row keys for list items. A key combines the write time, a
// process-wide sequence number and a random suffix, so keys from one
// process never collide and keys from different processes collide only if
// both the time and 32 random bits match.
type KeyGen struct {
	seq atomic.Uint64
}

// Next returns a fresh list-item key for a row written at t.
func (g *KeyGen) Next(t time.Time) string {
	n := g.seq.Add(1)
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return t.UTC().Format("20060102T150405.000000000Z") + "_" + strconv.FormatUint(n, 36) + "_" + suffix
}
