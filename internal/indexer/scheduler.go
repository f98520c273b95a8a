package indexer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/laguz/internal/writequeue"
)

// DefaultDebounce is the quiesce interval before a coalesced per-document
// event is processed.
const DefaultDebounce = 350 * time.Millisecond

// chainKey is the single write-queue key every handler execution runs
// under, so no two handlers ever run concurrently.
const chainKey = "indexer-chain"

// Handler processes one coalesced document event.
type Handler func(ctx context.Context, ev Event) error

// SchedulerConfig configures a Scheduler.
type SchedulerConfig struct {
	// Debounce overrides DefaultDebounce when positive.
	Debounce time.Duration
	// OnReindex is invoked for the global reindex-all event, which bypasses
	// coalescing. May be nil.
	OnReindex func()
	Logger    *slog.Logger
}

// Scheduler coalesces per-document events and dispatches them to a handler
// after a debounce interval. Only the most recent event per document id is
// retained; every new event re-arms that document's timer. All handler
// executions (timer-fired, flushed, or rebuild batches via Do) are
// serialized through one chain, so handlers never overlap even though
// timers fire independently.
//
// Handler errors are not retried and never break the chain; the last error
// per document id is retained for observation (LastError).
type Scheduler struct {
	handler  Handler
	debounce time.Duration
	reindex  func()
	queue    *writequeue.Queue
	logger   *slog.Logger

	mu      sync.Mutex
	pending map[string]*pendingEvent
	order   []string // document ids in first-enqueue order, for FlushAll
	lastErr map[string]error
	closed  bool
}

type pendingEvent struct {
	ev    Event
	timer *time.Timer
}

// NewScheduler creates a scheduler dispatching to handler.
func NewScheduler(handler Handler, cfg SchedulerConfig) *Scheduler {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Scheduler{
		handler:  handler,
		debounce: cfg.Debounce,
		reindex:  cfg.OnReindex,
		queue:    writequeue.New(),
		logger:   cfg.Logger,
		pending:  make(map[string]*pendingEvent),
		lastErr:  make(map[string]error),
	}
}

// HandleEvent is the bus subscription entry point.
func (s *Scheduler) HandleEvent(ev Event) {
	if ev.Kind == KindReindexAll {
		if s.reindex != nil {
			s.reindex()
		}
		return
	}
	if ev.DocID == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	if p, ok := s.pending[ev.DocID]; ok {
		p.ev = ev
		p.timer.Reset(s.debounce)
		return
	}

	id := ev.DocID
	p := &pendingEvent{ev: ev}
	p.timer = time.AfterFunc(s.debounce, func() { s.fire(id) })
	s.pending[id] = p
	s.order = append(s.order, id)
}

// fire runs the pending entry for id (if still present) through the chain.
func (s *Scheduler) fire(id string) {
	ev, ok := s.take(id)
	if !ok {
		return
	}
	_ = s.queue.Enqueue(context.Background(), chainKey, func(ctx context.Context) error {
		s.run(ctx, ev)
		return nil
	})
}

// take removes and returns the pending entry for id.
func (s *Scheduler) take(id string) (Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[id]
	if !ok {
		return Event{}, false
	}
	p.timer.Stop()
	delete(s.pending, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return p.ev, true
}

// run executes the handler, swallowing its error at the chain level so one
// document's failure never blocks the next. The error is recorded per id.
func (s *Scheduler) run(ctx context.Context, ev Event) {
	err := s.handler(ctx, ev)

	s.mu.Lock()
	if err != nil {
		s.lastErr[ev.DocID] = err
	} else {
		delete(s.lastErr, ev.DocID)
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("scheduler: handler failed",
			slog.String("doc_id", ev.DocID),
			slog.String("kind", string(ev.Kind)),
			slog.String("error", err.Error()))
	}
}

// Flush forces immediate execution of the pending entry for id, cancelling
// its timer. A no-op when nothing is pending for id.
func (s *Scheduler) Flush(id string) {
	ev, ok := s.take(id)
	if !ok {
		return
	}
	_ = s.queue.Enqueue(context.Background(), chainKey, func(ctx context.Context) error {
		s.run(ctx, ev)
		return nil
	})
}

// FlushAll executes every pending entry in original enqueue order.
func (s *Scheduler) FlushAll() {
	s.mu.Lock()
	ids := make([]string, len(s.order))
	copy(ids, s.order)
	s.mu.Unlock()

	for _, id := range ids {
		s.Flush(id)
	}
}

// Do runs fn through the sequential handler chain. The rebuild job submits
// each batch this way so batches interleave with, but never overlap,
// per-document handlers.
func (s *Scheduler) Do(ctx context.Context, fn func(context.Context) error) error {
	return s.queue.Enqueue(ctx, chainKey, fn)
}

// Shutdown cancels all timers and discards pending entries without
// executing them. The store remains the source of truth; a later event for
// an affected document re-triggers reconciliation.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for _, p := range s.pending {
		p.timer.Stop()
	}
	s.pending = make(map[string]*pendingEvent)
	s.order = nil
}

// PendingCount returns the number of coalesced entries awaiting dispatch.
func (s *Scheduler) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// LastError returns the most recent handler error for id, or nil. Errors
// are cleared by a subsequent successful run for the same id.
func (s *Scheduler) LastError(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr[id]
}

// Errors returns a snapshot of all retained per-document handler errors.
func (s *Scheduler) Errors() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.lastErr))
	for id, err := range s.lastErr {
		out[id] = err.Error()
	}
	return out
}
