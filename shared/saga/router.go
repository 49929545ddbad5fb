package saga

import (
	"context"
	"log"
	"sync"

	"github.com/pkg/errors"

	"github.com/orderflow/saga-system/shared/events"
	"github.com/orderflow/saga-system/shared/models"
)

// EventRouter runs saga steps over an event bus instead of direct calls.
// A step's forward action publishes a command event and blocks until the
// participant publishes the matching completion or failure event, matched
// by the transaction id carried in the event's correlation id.
//
// The router is registered as an event handler on the bus. Events that no
// in-flight step is waiting for, including duplicates and stale replies
// arriving after their step has already settled, are discarded with a log
// line rather than applied.
type EventRouter struct {
	publisher events.Publisher
	logger    *log.Logger

	mu      sync.Mutex
	waiters map[models.ID]*stepWaiter
}

type stepWaiter struct {
	expected map[events.Topic]bool
	ch       chan *events.Event
}

// RouterOption configures an EventRouter.
type RouterOption func(*EventRouter)

// WithRouterLogger injects the router logger.
func WithRouterLogger(logger *log.Logger) RouterOption {
	return func(r *EventRouter) { r.logger = logger }
}

// NewEventRouter creates a router publishing commands through the given
// publisher.
func NewEventRouter(publisher events.Publisher, opts ...RouterOption) *EventRouter {
	r := &EventRouter{
		publisher: publisher,
		logger:    log.Default(),
		waiters:   make(map[models.ID]*stepWaiter),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// HandlerID identifies the router on the event bus.
func (r *EventRouter) HandlerID() string {
	return "saga-event-router"
}

// Handle delivers a participant event to the step waiting for it. An event
// without a waiting step, or whose topic the waiting step does not expect,
// is discarded. Handle never returns an error for a discarded event; a
// discard is the router working as intended, not a delivery failure.
func (r *EventRouter) Handle(ctx context.Context, event *events.Event) error {
	r.mu.Lock()
	waiter, ok := r.waiters[event.CorrelationID]
	r.mu.Unlock()

	if !ok {
		r.logger.Printf("event router: discarding %s for %s: no step in flight", event.Topic, event.CorrelationID)
		return nil
	}
	if !waiter.expected[event.Topic] {
		r.logger.Printf("event router: discarding %s for %s: not awaited in current step", event.Topic, event.CorrelationID)
		return nil
	}

	select {
	case waiter.ch <- event:
	default:
		r.logger.Printf("event router: discarding duplicate %s for %s", event.Topic, event.CorrelationID)
	}
	return nil
}

// publishAndAwait publishes a command and blocks until one of the expected
// reply topics arrives for the same transaction, or ctx expires.
func (r *EventRouter) publishAndAwait(ctx context.Context, id models.ID, command *events.Event, expected ...events.Topic) (*events.Event, error) {
	waiter := &stepWaiter{
		expected: make(map[events.Topic]bool, len(expected)),
		ch:       make(chan *events.Event, 1),
	}
	for _, topic := range expected {
		waiter.expected[topic] = true
	}

	r.mu.Lock()
	if _, busy := r.waiters[id]; busy {
		r.mu.Unlock()
		return nil, errors.Errorf("a step is already in flight for transaction %s", id)
	}
	r.waiters[id] = waiter
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.waiters, id)
		r.mu.Unlock()
	}()

	if err := r.publisher.Publish(ctx, command); err != nil {
		return nil, errors.Wrapf(err, "failed to publish %s", command.Topic)
	}

	select {
	case event := <-waiter.ch:
		return event, nil
	case <-ctx.Done():
		return nil, errors.Wrapf(ctx.Err(), "no reply to %s", command.Topic)
	}
}

// StepTopics describes one choreographed step: the command topic the step
// publishes, the reply topics that settle it, and the same for its
// compensation. A step with an empty CompensationCommand has no
// compensation.
type StepTopics struct {
	Name             string
	CompensationName string

	Command events.Topic
	Success events.Topic
	Failure events.Topic

	CompensationCommand events.Topic
	CompensationDone    events.Topic

	Payload             PayloadFunc
	CompensationPayload PayloadFunc
}

// Step builds a StepSpec whose actions run through the event bus. A reply
// on the failure topic becomes a DeclinedError carrying the reason from
// the event payload; a missing reply surfaces as the step being
// unreachable.
func (r *EventRouter) Step(topics StepTopics) StepSpec {
	spec := StepSpec{
		Name:             topics.Name,
		CompensationName: topics.CompensationName,
		Execute: func(ctx context.Context, sc *Context) (map[string]interface{}, error) {
			command := r.command(sc, topics.Command, topics.Payload)
			reply, err := r.publishAndAwait(ctx, sc.TransactionID, command, topics.Success, topics.Failure)
			if err != nil {
				return nil, err
			}

			payload, err := reply.Payload()
			if err != nil {
				return nil, errors.Wrapf(err, "malformed %s payload", reply.Topic)
			}
			if reply.Topic == topics.Failure {
				return nil, &DeclinedError{Step: topics.Name, Reason: payloadReason(payload)}
			}
			return payload, nil
		},
	}

	if topics.CompensationCommand != "" {
		spec.Compensate = func(ctx context.Context, sc *Context) error {
			command := r.command(sc, topics.CompensationCommand, topics.CompensationPayload)
			_, err := r.publishAndAwait(ctx, sc.TransactionID, command, topics.CompensationDone)
			return err
		}
	}

	return spec
}

func (r *EventRouter) command(sc *Context, topic events.Topic, build PayloadFunc) *events.Event {
	payload := map[string]interface{}{}
	if build != nil {
		payload = build(sc)
	}
	payload["transaction_id"] = sc.TransactionID.String()
	return events.NewEvent(sc.TransactionID, topic, payload).WithCorrelationID(sc.TransactionID)
}

func payloadReason(payload map[string]interface{}) string {
	if reason, ok := payload["reason"].(string); ok && reason != "" {
		return reason
	}
	return "rejected by participant"
}
