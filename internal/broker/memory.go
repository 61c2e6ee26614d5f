package broker

import (
	"context"
	"sync"

	"junction/internal/logger"
	"junction/pkg/errors"
	"junction/pkg/metrics"
)

// MemoryBroker is an in-process broker. Messages published before anyone
// subscribes are buffered until a consumer arrives.
type MemoryBroker struct {
	log logger.Logger

	mu     sync.Mutex
	queues map[string]*memoryQueue
	closed bool
}

func NewMemoryBroker(log logger.Logger) *MemoryBroker {
	return &MemoryBroker{
		log:    log,
		queues: make(map[string]*memoryQueue),
	}
}

type memoryQueue struct {
	mu    sync.Mutex
	cond  *sync.Cond
	items [][]byte
	// busy counts popped messages whose handler has not returned yet.
	busy int
	// closed wakes every consumer of this queue for good.
	closed bool
}

func newMemoryQueue() *memoryQueue {
	q := &memoryQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *memoryQueue) push(body []byte) {
	q.mu.Lock()
	q.items = append(q.items, body)
	q.mu.Unlock()
	q.cond.Broadcast()
}

// pop blocks until an item is available or stopped reports true.
func (q *memoryQueue) pop(stopped func() bool) ([]byte, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 {
		if q.closed || stopped() {
			return nil, false
		}
		q.cond.Wait()
	}
	if q.closed || stopped() {
		return nil, false
	}
	body := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	q.busy++
	return body, true
}

func (q *memoryQueue) handled() {
	q.mu.Lock()
	q.busy--
	q.mu.Unlock()
}

func (q *memoryQueue) idle() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) == 0 && q.busy == 0
}

func (q *memoryQueue) wake() {
	q.mu.Lock()
	q.mu.Unlock()
	q.cond.Broadcast()
}

func (q *memoryQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (b *MemoryBroker) queue(routingKey string) (*memoryQueue, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, errors.ErrServiceUnavailable.WithMessage("memory broker is closed")
	}
	q, ok := b.queues[routingKey]
	if !ok {
		q = newMemoryQueue()
		b.queues[routingKey] = q
	}
	return q, nil
}

func (b *MemoryBroker) Publish(_ context.Context, routingKey string, body []byte) error {
	q, err := b.queue(routingKey)
	if err != nil {
		return err
	}
	cp := make([]byte, len(body))
	copy(cp, body)
	q.push(cp)

	metrics.IncBrokerPublished("memory", suffixOf(routingKey))
	return nil
}

func (b *MemoryBroker) Subscribe(ctx context.Context, routingKey string, handler HandlerFunc) (Subscription, error) {
	q, err := b.queue(routingKey)
	if err != nil {
		return nil, err
	}

	sub := &memorySubscription{
		queue:      q,
		routingKey: routingKey,
		done:       make(chan struct{}),
	}
	go sub.loop(ctx, handler, b.log)
	return sub, nil
}

// Pending returns the number of messages waiting on routingKey.
func (b *MemoryBroker) Pending(routingKey string) int {
	b.mu.Lock()
	q, ok := b.queues[routingKey]
	b.mu.Unlock()
	if !ok {
		return 0
	}
	return q.len()
}

// Idle reports whether nothing is queued or being handled on routingKey.
func (b *MemoryBroker) Idle(routingKey string) bool {
	b.mu.Lock()
	q, ok := b.queues[routingKey]
	b.mu.Unlock()
	return !ok || q.idle()
}

func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for _, q := range b.queues {
		q.mu.Lock()
		q.closed = true
		q.mu.Unlock()
		q.cond.Broadcast()
	}
	return nil
}

type memorySubscription struct {
	queue      *memoryQueue
	routingKey string
	done       chan struct{}

	mu      sync.Mutex
	stopped bool
}

func (s *memorySubscription) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

func (s *memorySubscription) loop(ctx context.Context, handler HandlerFunc, log logger.Logger) {
	defer close(s.done)
	suffix := suffixOf(s.routingKey)

	for {
		body, ok := s.queue.pop(s.isStopped)
		if !ok {
			return
		}

		err := func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = errors.RecoverPanic(r)
				}
			}()
			return handler(ctx, body)
		}()
		s.queue.handled()

		status := "success"
		if err != nil {
			status = "error"
			log.ErrorwCtx(ctx, "Failed to handle message",
				"routing_key", s.routingKey,
				"error", err,
			)
		}
		metrics.IncBrokerConsumed("memory", suffix, status)
	}
}

func (s *memorySubscription) Close() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		<-s.done
		return nil
	}
	s.stopped = true
	s.mu.Unlock()

	s.queue.wake()
	<-s.done
	return nil
}
