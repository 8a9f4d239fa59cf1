// Package token hands out the 64-bit query identifiers multiplexed
// over a single socket. Tokens are process-global: a fixed seed
// incremented atomically, never reused for the lifetime of the
// process.
package token

import (
	"math"
	"sync/atomic"

	"github.com/hasirciogluhq/rethinkconn/internal/rerr"
)

// Seed is the first token value ever handed out by a freshly started
// process, kept stable for on-wire debugging against servers that log
// tokens.
const Seed uint64 = 0x5ADFACE

// Allocator hands out monotonically increasing tokens. The zero value
// is not usable; construct with New.
type Allocator struct {
	next atomic.Uint64
}

// New returns an Allocator seeded at Seed.
func New() *Allocator {
	a := &Allocator{}
	a.next.Store(Seed)
	return a
}

// Global is the process-wide allocator shared by every connection, so
// tokens stay unique even across connections opened from the same
// process.
var Global = New()

// Next returns the next token, atomic across all callers.
func (a *Allocator) Next() (uint64, error) {
	for {
		cur := a.next.Load()
		if cur == math.MaxUint64 {
			return 0, &rerr.InternalError{Reason: "token counter wrapped"}
		}
		if a.next.CompareAndSwap(cur, cur+1) {
			return cur, nil
		}
	}
}
