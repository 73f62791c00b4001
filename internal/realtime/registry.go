// Package realtime fans change notifications out to WebSocket clients
// watching a project.
package realtime

import (
	"io"
	"log"
	"sync"
)

// GroupForProject derives the fan-out group key for a project.
func GroupForProject(projectID string) string {
	return "project:" + projectID
}

// outboundQueueSize bounds how many undelivered frames one subscriber may
// hold. A peer that stops draining its socket fills its own queue and loses
// further frames; the other members of the group are unaffected.
const outboundQueueSize = 32

// Subscriber is one live connection's outbound channel. Send enqueues; a
// single writer goroutine per subscriber drains the queue in FIFO order, so
// frames from sequential dispatches never interleave and a stalled socket
// never blocks the caller.
type Subscriber struct {
	w     io.Writer
	queue chan []byte
	done  chan struct{}
	once  sync.Once
}

func NewSubscriber(w io.Writer) *Subscriber {
	s := &Subscriber{
		w:     w,
		queue: make(chan []byte, outboundQueueSize),
		done:  make(chan struct{}),
	}
	go s.writeLoop()
	return s
}

// writeLoop is the subscriber's only writer. A failed write closes the
// subscriber; the connection's read loop notices the dead socket and tears
// the session down.
func (s *Subscriber) writeLoop() {
	for {
		select {
		case message := <-s.queue:
			if _, err := s.w.Write(message); err != nil {
				log.Printf("realtime: subscriber write failed: %v", err)
				s.Close()
				return
			}
		case <-s.done:
			return
		}
	}
}

// Send enqueues one outbound message without blocking. Returns
// ErrSubscriberClosed after Close, and ErrSubscriberBacklogged when the
// peer has stopped draining and its queue is full; the frame is dropped
// either way.
func (s *Subscriber) Send(message []byte) error {
	select {
	case <-s.done:
		return ErrSubscriberClosed
	default:
	}
	select {
	case s.queue <- message:
		return nil
	case <-s.done:
		return ErrSubscriberClosed
	default:
		return ErrSubscriberBacklogged
	}
}

// Close stops the writer and rejects further sends. Idempotent.
func (s *Subscriber) Close() {
	s.once.Do(func() { close(s.done) })
}

// Registry tracks which subscribers are joined to which group. It is the
// single source of truth for fan-out membership and is safe for concurrent
// join/leave/members calls. The lock is only ever held around map updates,
// never across a network write.
type Registry struct {
	mu     sync.Mutex
	groups map[string]map[*Subscriber]struct{}
}

func NewRegistry() *Registry {
	return &Registry{groups: make(map[string]map[*Subscriber]struct{})}
}

// Join adds the subscriber to the group, creating the group on first join.
// Joining twice is a no-op.
func (r *Registry) Join(group string, sub *Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.groups[group]
	if !ok {
		members = make(map[*Subscriber]struct{})
		r.groups[group] = members
	}
	members[sub] = struct{}{}
}

// Leave removes the subscriber from the group. Leaving a group the
// subscriber is not in is a no-op: disconnects race with explicit
// unsubscribes and both paths call Leave. Empty groups are dropped so
// short-lived project rooms do not accumulate.
func (r *Registry) Leave(group string, sub *Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.groups[group]
	if !ok {
		return
	}
	delete(members, sub)
	if len(members) == 0 {
		delete(r.groups, group)
	}
}

// Members returns a snapshot of the group's current membership. Callers
// deliver to the snapshot without holding the registry lock.
func (r *Registry) Members(group string) []*Subscriber {
	r.mu.Lock()
	defer r.mu.Unlock()

	members := r.groups[group]
	snapshot := make([]*Subscriber, 0, len(members))
	for sub := range members {
		snapshot = append(snapshot, sub)
	}
	return snapshot
}

// GroupCount reports how many groups currently have members.
func (r *Registry) GroupCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.groups)
}
