// ABOUTME: Per-subscriber event queue drained into the subscriber's channel
// ABOUTME: Publishing appends without blocking; a pump goroutine delivers in order

package session

import (
	"sync"

	"github.com/2389/uta-gateway/internal/bridge"
)

// subscriber holds the events a reader has not taken yet. The queue is
// unbounded so a slow reader delays its own stream but never loses events.
type subscriber struct {
	out    chan bridge.Event
	notify chan struct{}
	stop   chan struct{}
	exited chan struct{}

	stopOnce sync.Once

	mu       sync.Mutex
	queue    []bridge.Event
	finished bool
}

func newSubscriber(buffer int) *subscriber {
	sub := &subscriber{
		out:    make(chan bridge.Event, buffer),
		notify: make(chan struct{}, 1),
		stop:   make(chan struct{}),
		exited: make(chan struct{}),
	}
	go sub.pump()
	return sub
}

// push queues event for delivery. Never blocks.
func (sub *subscriber) push(event bridge.Event) {
	sub.mu.Lock()
	sub.queue = append(sub.queue, event)
	sub.mu.Unlock()
	sub.wake()
}

// finish closes the channel once every queued event has been delivered.
func (sub *subscriber) finish() {
	sub.mu.Lock()
	sub.finished = true
	sub.mu.Unlock()
	sub.wake()
}

// detach closes the channel without delivering what is still queued.
func (sub *subscriber) detach() {
	sub.stopOnce.Do(func() { close(sub.stop) })
}

func (sub *subscriber) wake() {
	select {
	case sub.notify <- struct{}{}:
	default:
	}
}

func (sub *subscriber) pump() {
	defer close(sub.exited)
	defer close(sub.out)

	for {
		sub.mu.Lock()
		batch := sub.queue
		sub.queue = nil
		finished := sub.finished
		sub.mu.Unlock()

		if len(batch) > 0 {
			for _, ev := range batch {
				select {
				case sub.out <- ev:
				case <-sub.stop:
					return
				}
			}
			continue
		}
		if finished {
			return
		}

		select {
		case <-sub.notify:
		case <-sub.stop:
			return
		}
	}
}
