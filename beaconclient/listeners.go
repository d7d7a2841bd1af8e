package beaconclient

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
)

// Listener receives decoded events for a topic. A returned error or a panic
// is logged and does not affect other listeners or the stream.
type Listener func(ctx context.Context, ev Event) error

// ListenerID identifies a registered listener for removal.
type ListenerID uint64

type listenerEntry struct {
	id ListenerID
	fn Listener
}

// listenerRegistry maps topics to listeners in registration order. Slices are
// never mutated in place, so a snapshot stays valid while add/remove run.
type listenerRegistry struct {
	mu      sync.RWMutex
	entries map[Topic][]listenerEntry
	nextID  atomic.Uint64
}

func newListenerRegistry() *listenerRegistry {
	return &listenerRegistry{entries: make(map[Topic][]listenerEntry)}
}

func (r *listenerRegistry) add(topic Topic, fn Listener) ListenerID {
	id := ListenerID(r.nextID.Inc())

	r.mu.Lock()
	defer r.mu.Unlock()

	current := r.entries[topic]
	next := make([]listenerEntry, len(current), len(current)+1)
	copy(next, current)
	r.entries[topic] = append(next, listenerEntry{id: id, fn: fn})
	return id
}

func (r *listenerRegistry) remove(topic Topic, id ListenerID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current := r.entries[topic]
	next := make([]listenerEntry, 0, len(current))
	for _, e := range current {
		if e.id != id {
			next = append(next, e)
		}
	}
	if len(next) == 0 {
		delete(r.entries, topic)
		return
	}
	r.entries[topic] = next
}

func (r *listenerRegistry) snapshot(topic Topic) []listenerEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[topic]
}

func (r *listenerRegistry) count(topic Topic) int {
	return len(r.snapshot(topic))
}

// dispatcher delivers events to the registry's current listeners.
type dispatcher struct {
	log       *logrus.Entry
	listeners *listenerRegistry
	stats     *stats
}

func (d *dispatcher) dispatch(ctx context.Context, ev Event) {
	entries := d.listeners.snapshot(ev.Topic())
	if len(entries) == 0 {
		return
	}

	for _, e := range entries {
		if err := d.invoke(ctx, e, ev); err != nil {
			d.stats.listenerFaults.Inc()
			listenerFaultsCounter.WithLabelValues(ev.Topic().String()).Inc()
			d.log.WithError(err).WithFields(logrus.Fields{
				"topic":    ev.Topic().String(),
				"listener": e.id,
			}).Error("event listener failed")
		}
	}
	d.stats.dispatched.Inc()
}

func (d *dispatcher) invoke(ctx context.Context, e listenerEntry, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrListenerFault, r)
		}
	}()

	if err := e.fn(ctx, ev); err != nil {
		return fmt.Errorf("%w: %w", ErrListenerFault, err)
	}
	return nil
}

// dispatchQueue decouples listener execution from the stream reader. A single
// worker drains it, so delivery order is the stream order. It lives as long as
// the client runs, so events survive a resubscription reconnect.
type dispatchQueue struct {
	log        *logrus.Entry
	dispatcher *dispatcher
	events     chan Event
	done       chan struct{}
}

func newDispatchQueue(log *logrus.Entry, d *dispatcher, size int) *dispatchQueue {
	return &dispatchQueue{
		log:        log,
		dispatcher: d,
		events:     make(chan Event, size),
		done:       make(chan struct{}),
	}
}

// run drains the queue until ctx is done. Events still pending then are
// counted as dropped.
func (q *dispatchQueue) run(ctx context.Context) {
	defer close(q.done)
	for {
		select {
		case <-ctx.Done():
			q.discard()
			return
		case ev := <-q.events:
			if ctx.Err() != nil {
				q.drop(ev)
				q.discard()
				return
			}
			q.dispatcher.dispatch(ctx, ev)
		}
	}
}

func (q *dispatchQueue) discard() {
	n := 0
	for {
		select {
		case ev := <-q.events:
			q.drop(ev)
			n++
		default:
			if n > 0 {
				q.log.WithField("count", n).Warn("discarded pending events on shutdown")
			}
			return
		}
	}
}

func (q *dispatchQueue) drop(ev Event) {
	q.dispatcher.stats.dropped.Inc()
	droppedEventsCounter.WithLabelValues(ev.Topic().String()).Inc()
}

// enqueue never blocks; it reports false when the event was dropped.
func (q *dispatchQueue) enqueue(ev Event) bool {
	select {
	case q.events <- ev:
		return true
	default:
		q.drop(ev)
		q.log.WithField("topic", ev.Topic().String()).Warn("dispatch queue full, dropping event")
		return false
	}
}
