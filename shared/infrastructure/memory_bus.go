package infrastructure

import (
	"context"
	"log"
	"sync"

	"github.com/orderflow/saga-system/shared/events"
)

// MemoryEventBus is an in-process event bus: a publisher that fans each
// event out to every handler whose topic pattern matches. It stands in for
// the SNS/SQS pair when all services run in one process, and in tests.
//
// Delivery is asynchronous: each matching handler runs on its own
// goroutine, like a queue consumer would. Handler errors are logged and
// dropped; a bus has no caller to return them to.
type MemoryEventBus struct {
	logger *log.Logger

	mu            sync.RWMutex
	subscriptions []subscription
	closed        bool
	wg            sync.WaitGroup
}

type subscription struct {
	pattern events.Topic
	handler EventHandler
}

var _ events.Publisher = (*MemoryEventBus)(nil)

// NewMemoryEventBus creates an empty bus.
func NewMemoryEventBus() *MemoryEventBus {
	return &MemoryEventBus{logger: log.Default()}
}

// Subscribe registers a handler for every event whose topic matches the
// pattern ("*" one segment, "#" any tail).
func (b *MemoryEventBus) Subscribe(pattern events.Topic, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscriptions = append(b.subscriptions, subscription{pattern: pattern, handler: handler})
}

// Publish implements events.Publisher. Events are delivered to matching
// handlers asynchronously; Publish itself never blocks on a handler.
func (b *MemoryEventBus) Publish(ctx context.Context, evts ...*events.Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil
	}

	for _, event := range evts {
		for _, sub := range b.subscriptions {
			if !event.Topic.Matches(sub.pattern) {
				continue
			}

			sub := sub
			event := event.Clone()
			b.wg.Add(1)
			go func() {
				defer b.wg.Done()
				if err := sub.handler.Handle(context.WithoutCancel(ctx), event); err != nil {
					b.logger.Printf("event bus: handler %s failed on %s: %v", sub.handler.HandlerID(), event.Topic, err)
				}
			}()
		}
	}

	return nil
}

// Close stops accepting events and waits for in-flight deliveries.
func (b *MemoryEventBus) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.wg.Wait()
}
