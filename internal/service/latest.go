package service

import (
	"errors"
	"sync"
)

// ErrSuperseded a newer request for the same caller finished or is in flight.
var ErrSuperseded = errors.New("superseded by a newer request")

// Ticket identifies one request handed out by a LatestGuard.
type Ticket struct {
	key string
	seq uint64
}

// LatestGuard implements last-request-wins per caller key. Each Begin
// supersedes every earlier ticket of the same key.
type LatestGuard struct {
	mu     sync.Mutex
	next   uint64
	latest map[string]uint64
}

func NewLatestGuard() *LatestGuard {
	return &LatestGuard{latest: make(map[string]uint64)}
}

// Begin issues a ticket that supersedes older ones for key.
func (g *LatestGuard) Begin(key string) Ticket {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	g.latest[key] = g.next
	return Ticket{key: key, seq: g.next}
}

// IsLatest reports whether t is still the newest ticket of its key.
func (g *LatestGuard) IsLatest(t Ticket) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.latest[t.key] == t.seq
}

// Check returns ErrSuperseded when t is no longer the newest ticket.
func (g *LatestGuard) Check(t Ticket) error {
	if !g.IsLatest(t) {
		return ErrSuperseded
	}
	return nil
}

// Done releases t. The key is forgotten once its newest ticket is done.
func (g *LatestGuard) Done(t Ticket) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.latest[t.key] == t.seq {
		delete(g.latest, t.key)
	}
}
