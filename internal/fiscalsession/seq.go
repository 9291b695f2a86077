package fiscalsession

import (
	"sync"

	"fiscalgw/pkg/datecs"
)

// SeqStore holds the ephemeral per-device sequence counter (spec.md §3
// "Ephemeral per-device sequence counter"). Lifetime is the process
// lifetime; entries are created lazily and never removed, mirroring the
// per-device mutex map design note in spec.md §9.
type SeqStore struct {
	mu   sync.Mutex
	next map[string]byte
}

// NewSeqStore builds an empty sequence store.
func NewSeqStore() *SeqStore {
	return &SeqStore{next: make(map[string]byte)}
}

// Advance returns the sequence byte to use for the next outbound frame on
// printerID and advances the counter, wrapping per datecs.NextSeq. The
// caller must already hold the per-device mutex (spec.md §5 "mutated only
// under the device mutex").
func (s *SeqStore) Advance(printerID string) byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.next[printerID]
	if !ok {
		cur = datecs.SeqMin
		s.next[printerID] = datecs.NextSeq(cur)
		return cur
	}
	s.next[printerID] = datecs.NextSeq(cur)
	return cur
}
