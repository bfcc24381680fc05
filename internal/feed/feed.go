// Package feed delivers committed ledger changes to in-process subscribers as
// cancelable streams of added, modified and removed deltas.
package feed

import (
	"context"
	"sync"

	"github.com/Veraticus/kassa/internal/model"
)

// ChangeKind describes what happened to a document.
type ChangeKind string

const (
	// Added is emitted for new documents and for every document of the initial snapshot.
	Added ChangeKind = "added"
	// Modified is emitted when an existing document is updated.
	Modified ChangeKind = "modified"
	// Removed is emitted when a document is deleted. It carries the last known state.
	Removed ChangeKind = "removed"
)

// Collection names a document kind.
type Collection string

const (
	// Categories is the category collection.
	Categories Collection = "categories"
	// Transactions is the transaction leg collection.
	Transactions Collection = "transactions"
)

// Change is a single delta. Exactly one of Category and Transaction is set,
// matching Collection.
type Change struct {
	Category    *model.Category
	Transaction *model.Transaction
	Kind        ChangeKind
	Collection  Collection
	ID          string
	// Seq is the commit sequence of the write that produced the change. Zero
	// means unsequenced: snapshot entries and changes from writers that do not
	// number their commits.
	Seq uint64
}

// Filter selects the changes a subscriber receives. An empty CategoryID matches
// every document in the collection.
type Filter struct {
	Collection Collection
	CategoryID string
}

// Matches reports whether c passes the filter.
func (f Filter) Matches(c Change) bool {
	if f.Collection != c.Collection {
		return false
	}
	if f.CategoryID == "" {
		return true
	}
	switch c.Collection {
	case Categories:
		return c.ID == f.CategoryID
	case Transactions:
		return c.Transaction != nil && c.Transaction.CategoryID == f.CategoryID
	}
	return false
}

// SnapshotFunc loads the current documents matching a filter together with
// the sequence of the last commit they reflect.
type SnapshotFunc func(ctx context.Context) (changes []Change, seq uint64, err error)

// Hub fans committed changes out to subscriptions.
type Hub struct {
	subs map[*Subscription]struct{}
	mu   sync.Mutex
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[*Subscription]struct{})}
}

// Publish delivers changes to every matching subscription. It never blocks on
// slow consumers. A sequenced change already reflected in a subscription's
// snapshot is not delivered to it again.
func (h *Hub) Publish(changes ...Change) {
	if len(changes) == 0 {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.subs {
		var matched []Change
		for _, c := range changes {
			if sub.filter.Matches(c) && (c.Seq == 0 || c.Seq > sub.after) {
				matched = append(matched, c)
			}
		}
		sub.enqueue(matched...)
	}
}

// Subscribe registers a subscription. The snapshot, when given, is queued ahead
// of any change published after registration; changes whose Seq is at or below
// the snapshot's sequence are dropped since the snapshot already holds them. The subscription ends when ctx is
// done or Close is called.
func (h *Hub) Subscribe(ctx context.Context, filter Filter, snapshot SnapshotFunc) (*Subscription, error) {
	sub := &Subscription{
		filter: filter,
		hub:    h,
		signal: make(chan struct{}, 1),
		out:    make(chan Change),
		done:   make(chan struct{}),
	}

	h.mu.Lock()
	if snapshot != nil {
		initial, seq, err := snapshot(ctx)
		if err != nil {
			h.mu.Unlock()
			return nil, err
		}
		sub.after = seq
		sub.enqueue(initial...)
	}
	h.subs[sub] = struct{}{}
	h.mu.Unlock()

	go sub.pump()
	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.done:
		}
	}()

	return sub, nil
}

// Len returns the number of live subscriptions.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	delete(h.subs, sub)
	h.mu.Unlock()
}

// Subscription is a stream of changes owned by whoever created it.
type Subscription struct {
	hub       *Hub
	signal    chan struct{}
	out       chan Change
	done      chan struct{}
	filter    Filter
	queue     []Change
	after     uint64
	mu        sync.Mutex
	closeOnce sync.Once
}

// Changes returns the delta stream. It is closed after the subscription ends.
func (s *Subscription) Changes() <-chan Change {
	return s.out
}

// Close ends the subscription. Queued changes not yet received are dropped.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.hub.remove(s)
		close(s.done)
	})
}

func (s *Subscription) enqueue(changes ...Change) {
	if len(changes) == 0 {
		return
	}
	s.mu.Lock()
	s.queue = append(s.queue, changes...)
	s.mu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *Subscription) pump() {
	defer close(s.out)

	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			select {
			case <-s.signal:
				continue
			case <-s.done:
				return
			}
		}
		next := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- next:
		case <-s.done:
			return
		}
	}
}
