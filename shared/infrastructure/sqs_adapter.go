package infrastructure

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/pkg/errors"

	"github.com/orderflow/saga-system/shared/events"
)

// SQSSubscriberAdapter wires an SQSEventSubscriber behind the
// events.Subscriber interface.
type SQSSubscriberAdapter struct {
	sqsSubscriber *SQSEventSubscriber
	isRunning     bool
	queueURL      string
}

// NewSQSSubscriberAdapter creates a subscriber for the given queue URL
func NewSQSSubscriberAdapter(queueURL string) (*SQSSubscriberAdapter, error) {
	return &SQSSubscriberAdapter{
		queueURL: queueURL,
	}, nil
}

type eventHandlerAdapter struct {
	handler events.EventHandler
}

func (a *eventHandlerAdapter) HandlerID() string {
	if h, ok := a.handler.(interface{ HandlerID() string }); ok {
		return h.HandlerID()
	}
	return "event-handler-adapter"
}

func (a *eventHandlerAdapter) Handle(ctx context.Context, event *events.Event) error {
	return a.handler.Handle(ctx, event)
}

// Subscribe implements events.Subscriber
func (s *SQSSubscriberAdapter) Subscribe(ctx context.Context, eventType string, handler events.EventHandler) error {
	if s.isRunning {
		return errors.New("subscriber is already running")
	}

	cfg, err := config.LoadDefaultConfig(context.Background())
	if err != nil {
		return errors.Wrap(err, "failed to load AWS config")
	}

	s.sqsSubscriber = NewSQSEventSubscriber(
		sqs.NewFromConfig(cfg),
		s.queueURL,
		&eventHandlerAdapter{handler: handler},
	)

	if err := s.sqsSubscriber.Start(ctx); err != nil {
		return errors.Wrap(err, "failed to start SQS subscriber")
	}

	s.isRunning = true
	return nil
}

// Close stops the subscriber
func (s *SQSSubscriberAdapter) Close() error {
	if !s.isRunning || s.sqsSubscriber == nil {
		return nil
	}

	if err := s.sqsSubscriber.Stop(context.Background()); err != nil {
		return errors.Wrap(err, "failed to stop SQS subscriber")
	}

	s.isRunning = false
	return nil
}
