package feed

import "sync"

// Ledger remembers which message ids have been rendered per channel.
type Ledger struct {
	mu   sync.Mutex
	seen map[string]map[string]struct{}
}

func NewLedger() *Ledger {
	return &Ledger{seen: make(map[string]map[string]struct{})}
}

// Seen reports whether (channel, id) was seen before and marks it.
// Empty ids are never recorded.
func (l *Ledger) Seen(channel, id string) bool {
	if id == "" {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	ids, ok := l.seen[channel]
	if !ok {
		ids = make(map[string]struct{})
		l.seen[channel] = ids
	}
	if _, ok := ids[id]; ok {
		return true
	}
	ids[id] = struct{}{}
	return false
}

// Reset forgets every channel.
func (l *Ledger) Reset() {
	l.mu.Lock()
	l.seen = make(map[string]map[string]struct{})
	l.mu.Unlock()
}

// Len returns the number of ids recorded for channel.
func (l *Ledger) Len(channel string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.seen[channel])
}
