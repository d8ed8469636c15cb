package shared

import (
	"sync"
	"sync/atomic"
)

// Sequence hands out monotonic tokens for asynchronous reloads and only lets
// a result through when its token is newer than the last one applied.
type Sequence struct {
	issued  atomic.Uint64
	mu      sync.Mutex
	applied uint64
}

// Next issues a token for a request about to start.
func (s *Sequence) Next() uint64 {
	return s.issued.Add(1)
}

// Apply runs fn when token is newer than every token applied so far and
// reports whether it did. Stale tokens are dropped.
func (s *Sequence) Apply(token uint64, fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if token <= s.applied {
		return false
	}
	s.applied = token
	fn()
	return true
}
