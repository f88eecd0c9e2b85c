package relay

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/fieldtrack/geofence-backend-go/internal/models"
)

// EventSink receives events fanned out to one supervisor view. Send is
// called from a single goroutine per subscriber, in enqueue order.
type EventSink interface {
	Send(ctx context.Context, ev models.StatusEvent) error
}

// DefaultQueueLimit bounds the per-subscriber event queue
const DefaultQueueLimit = 64

// subscriber is one supervisor connection in the fan-out set. Events are
// buffered in a bounded ordered queue drained by a dedicated goroutine, so
// publishing never blocks on a slow connection. On overflow the oldest
// position update is dropped; status and boundary events are never dropped,
// the queue grows past the limit for them if it has to.
type subscriber struct {
	id    uuid.UUID
	sink  EventSink
	limit int

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	queue []models.StatusEvent

	wake chan struct{}
	done chan struct{}
}

func newSubscriber(parent context.Context, sink EventSink, limit int) *subscriber {
	if limit <= 0 {
		limit = DefaultQueueLimit
	}
	ctx, cancel := context.WithCancel(parent)
	s := &subscriber{
		id:     uuid.New(),
		sink:   sink,
		limit:  limit,
		ctx:    ctx,
		cancel: cancel,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go s.run()
	return s
}

// enqueue adds an event to the queue, applying the overflow policy
func (s *subscriber) enqueue(ev models.StatusEvent) {
	s.mu.Lock()
	if len(s.queue) >= s.limit {
		if !ev.Type.Critical() {
			// incoming position update on a full queue: prefer dropping
			// an older position update, otherwise drop the incoming one
			if !s.dropOldestPositionLocked() {
				s.mu.Unlock()
				return
			}
		} else {
			// critical events are never dropped; evict a position update
			// if one exists, otherwise exceed the limit
			s.dropOldestPositionLocked()
		}
	}
	s.queue = append(s.queue, ev)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// dropOldestPositionLocked removes the oldest position update from the
// queue. Caller must hold s.mu.
func (s *subscriber) dropOldestPositionLocked() bool {
	for i, queued := range s.queue {
		if !queued.Type.Critical() {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			return true
		}
	}
	return false
}

func (s *subscriber) run() {
	defer close(s.done)

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.wake:
		}

		for {
			s.mu.Lock()
			if len(s.queue) == 0 {
				s.mu.Unlock()
				break
			}
			ev := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()

			if err := s.sink.Send(s.ctx, ev); err != nil {
				// broken connection: stop delivering, the handler
				// unsubscribes when it notices
				s.cancel()
				return
			}
		}
	}
}

// close stops delivery and waits for the drain goroutine to exit
func (s *subscriber) close() {
	s.cancel()
	<-s.done
}
