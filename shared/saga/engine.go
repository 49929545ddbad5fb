package saga

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"

	"github.com/orderflow/saga-system/shared/events"
	"github.com/orderflow/saga-system/shared/models"
	"github.com/orderflow/saga-system/shared/telemetry"
)

const defaultStepTimeout = 5 * time.Second

// Engine drives one transaction at a time through a definition's steps,
// decides when to compensate, runs compensations in reverse execution order
// and persists every transition to the transaction store.
//
// Step failures are handled entirely inside Execute: the caller only ever
// observes the final transaction record. An error is returned only when the
// engine itself cannot make progress (nil definition, store failure).
type Engine struct {
	store       TransactionStore
	clock       Clock
	ids         IDGenerator
	stepTimeout time.Duration
	logger      *log.Logger
	publisher   events.Publisher
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithClock injects the time source.
func WithClock(clock Clock) EngineOption {
	return func(e *Engine) { e.clock = clock }
}

// WithIDGenerator injects the transaction id source.
func WithIDGenerator(ids IDGenerator) EngineOption {
	return func(e *Engine) { e.ids = ids }
}

// WithStepTimeout bounds every forward and compensating call. A timeout is
// a call failure, not a retryable pending state.
func WithStepTimeout(timeout time.Duration) EngineOption {
	return func(e *Engine) { e.stepTimeout = timeout }
}

// WithLogger injects the engine logger.
func WithLogger(logger *log.Logger) EngineOption {
	return func(e *Engine) { e.logger = logger }
}

// WithLifecyclePublisher makes the engine publish saga lifecycle events
// (started, completed, compensated). Publish failures are logged, never
// fatal.
func WithLifecyclePublisher(publisher events.Publisher) EngineOption {
	return func(e *Engine) { e.publisher = publisher }
}

// NewEngine creates an engine writing to the given store.
func NewEngine(store TransactionStore, opts ...EngineOption) *Engine {
	e := &Engine{
		store:       store,
		clock:       SystemClock(),
		ids:         UUIDGenerator(),
		stepTimeout: defaultStepTimeout,
		logger:      log.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs one transaction of the definition to a terminal state.
//
// Steps run strictly sequentially; the first forward failure records the
// error message, stops forward progress and triggers best-effort
// compensation of all previously executed steps in reverse order. One
// compensation failure never aborts the rest.
func (e *Engine) Execute(ctx context.Context, def *Definition, input map[string]interface{}) (*Transaction, error) {
	if def == nil {
		return nil, errors.New("saga definition is required")
	}

	txn := NewTransaction(e.ids.NewID(), def.ID(), e.clock.Now())
	if err := e.store.Create(ctx, txn); err != nil {
		return nil, errors.Wrap(err, "failed to create saga transaction")
	}

	ctx, span := telemetry.StartSpan(ctx, "saga.execute")
	span.SetAttributes(
		attribute.String("saga.transaction_id", txn.ID.String()),
		attribute.String("saga.definition_id", def.ID()),
	)
	defer span.End()

	e.logger.Printf("saga %s: started (definition %s)", txn.ID, def.ID())
	e.publishLifecycle(ctx, txn.ID, events.SagaStartedTopic, map[string]interface{}{
		"transaction_id": txn.ID.String(),
		"definition_id":  def.ID(),
	})

	sc := NewContext(txn.ID, input)
	steps := def.Steps()

	failedAt := -1
	for i, step := range steps {
		if _, err := e.update(ctx, txn.ID, func(t *Transaction) error {
			return t.runStep(i)
		}); err != nil {
			return nil, err
		}

		out, err := e.invoke(ctx, func(callCtx context.Context) (map[string]interface{}, error) {
			return step.Execute(callCtx, sc)
		})
		if err != nil {
			message := stepFailureMessage(step.Name, err)
			e.logger.Printf("saga %s: %s", txn.ID, message)
			if _, uerr := e.update(ctx, txn.ID, func(t *Transaction) error {
				return t.stepFailed(message)
			}); uerr != nil {
				return nil, uerr
			}
			failedAt = i
			break
		}

		sc.setOutput(step.Name, out)
		if _, err := e.update(ctx, txn.ID, func(t *Transaction) error {
			return t.stepSucceeded(step.Name)
		}); err != nil {
			return nil, err
		}
		e.logger.Printf("saga %s: step %s succeeded", txn.ID, step.Name)
	}

	if failedAt < 0 {
		final, err := e.update(ctx, txn.ID, func(t *Transaction) error {
			return t.complete(e.clock.Now())
		})
		if err != nil {
			return nil, err
		}
		e.logger.Printf("saga %s: completed (%d steps)", txn.ID, len(steps))
		e.recordOutcome(ctx, def.ID(), "completed")
		e.publishLifecycle(ctx, txn.ID, events.SagaCompletedTopic, map[string]interface{}{
			"transaction_id": txn.ID.String(),
			"executed_steps": len(steps),
		})
		return final, nil
	}

	final, err := e.compensate(ctx, txn.ID, steps[:failedAt], sc)
	if err != nil {
		return nil, err
	}
	e.recordOutcome(ctx, def.ID(), "compensated")
	return final, nil
}

// compensate undoes the executed steps in reverse order. Compensation is
// best-effort and non-cancellable: every step is attempted and recorded,
// whatever the outcome of the ones before it. A failed compensation is
// logged against the transaction without touching the original error
// message.
func (e *Engine) compensate(ctx context.Context, id models.ID, executed []StepSpec, sc *Context) (*Transaction, error) {
	// Once compensation begins it always runs to completion, even if the
	// caller's context dies along the way.
	ctx = context.WithoutCancel(ctx)

	for i := len(executed) - 1; i >= 0; i-- {
		step := executed[i]

		var compErr error
		if step.Compensate != nil {
			_, compErr = e.invoke(ctx, func(callCtx context.Context) (map[string]interface{}, error) {
				return nil, step.Compensate(callCtx, sc)
			})
		}
		if compErr != nil {
			e.logger.Printf("saga %s: compensation %s failed: %v", id, step.compensationName(), compErr)
		} else {
			e.logger.Printf("saga %s: compensated %s", id, step.compensationName())
		}

		if _, err := e.update(ctx, id, func(t *Transaction) error {
			return t.stepCompensated(step.compensationName(), compErr)
		}); err != nil {
			return nil, err
		}
	}

	final, err := e.update(ctx, id, func(t *Transaction) error {
		return t.compensated(e.clock.Now())
	})
	if err != nil {
		return nil, err
	}

	e.logger.Printf("saga %s: compensated (%d steps)", id, len(executed))
	e.publishLifecycle(ctx, id, events.SagaCompensatedTopic, map[string]interface{}{
		"transaction_id":    id.String(),
		"compensated_steps": len(executed),
		"error":             final.ErrorMessage,
	})
	return final, nil
}

// invoke runs a participant call under the engine's bounded timeout.
// Compensation must run to completion even when the transaction's own
// context has been cancelled by the triggering failure, so the timeout is
// derived from a fresh context when the incoming one is already done.
func (e *Engine) invoke(ctx context.Context, call func(context.Context) (map[string]interface{}, error)) (map[string]interface{}, error) {
	base := ctx
	if base.Err() != nil {
		base = context.WithoutCancel(ctx)
	}
	callCtx, cancel := context.WithTimeout(base, e.stepTimeout)
	defer cancel()
	return call(callCtx)
}

func (e *Engine) update(ctx context.Context, id models.ID, mutate Mutator) (*Transaction, error) {
	txn, err := e.store.Update(ctx, id, mutate)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to update saga transaction %s", id)
	}
	return txn, nil
}

func (e *Engine) publishLifecycle(ctx context.Context, id models.ID, topic events.Topic, payload map[string]interface{}) {
	if e.publisher == nil {
		return
	}
	event := events.NewEvent(id, topic, payload).WithCorrelationID(id)
	if err := e.publisher.Publish(ctx, event); err != nil {
		e.logger.Printf("saga %s: failed to publish %s: %v", id, topic, err)
	}
}

func (e *Engine) recordOutcome(ctx context.Context, definitionID, outcome string) {
	telemetry.RecordCounter(ctx, "saga_transactions_total", "Total saga transactions by outcome", 1,
		attribute.String("definition", definitionID),
		attribute.String("outcome", outcome),
	)
}

func stepFailureMessage(step string, err error) string {
	if dec, ok := AsDeclined(err); ok {
		return fmt.Sprintf("step %s declined: %s", step, dec.Reason)
	}
	return fmt.Sprintf("step %s unreachable: %v", step, err)
}
