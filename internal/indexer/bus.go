// Package indexer keeps the derived task index consistent with the document
// store: an event bus for mutation notifications, a debounced per-document
// scheduler that coalesces bursts into single reconcile passes, and a
// resumable full-rebuild job.
package indexer

import "sync"

// Kind identifies a domain event.
type Kind string

const (
	KindSaved        Kind = "saved"
	KindMoved        Kind = "moved"
	KindDeleted      Kind = "deleted"
	KindRestored     Kind = "restored"
	KindTagsChanged  Kind = "tags-changed"
	KindPropsChanged Kind = "properties-changed"

	// KindReindexAll is the one global event; it carries no document id and
	// bypasses debounce coalescing.
	KindReindexAll Kind = "reindex-all"
)

// Event is one domain event emitted by the write path.
type Event struct {
	Kind  Kind
	DocID string
}

// Bus is a synchronous multi-subscriber event bus. Emit calls every
// subscriber in the caller's goroutine; subscribers hand work off (the
// scheduler does) rather than block.
type Bus struct {
	mu   sync.Mutex
	subs map[int]func(Event)
	next int
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]func(Event))}
}

// Subscribe registers fn and returns an unsubscribe handle.
func (b *Bus) Subscribe(fn func(Event)) (unsubscribe func()) {
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// Emit delivers ev to every current subscriber, synchronously.
func (b *Bus) Emit(ev Event) {
	b.mu.Lock()
	fns := make([]func(Event), 0, len(b.subs))
	for _, fn := range b.subs {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}
