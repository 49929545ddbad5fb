package config

import (
	"context"
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/orderflow/saga-system/saga-service/application"
	"github.com/orderflow/saga-system/saga-service/handlers"
	"github.com/orderflow/saga-system/saga-service/infrastructure"
	sharedinfra "github.com/orderflow/saga-system/shared/infrastructure"
	"github.com/orderflow/saga-system/shared/saga"
	"github.com/orderflow/saga-system/shared/telemetry"
)

type Dependencies struct {
	// Database (nil when storage is "memory")
	DB *sqlx.DB

	// Saga core
	TransactionStore saga.TransactionStore
	Engine           *saga.Engine
	Definition       *saga.Definition

	// EventRouter is set in choreography mode and must be subscribed on
	// the event bus before sagas are started.
	EventRouter *saga.EventRouter

	// Use Cases
	StartSaga        *application.StartSaga
	GetTransaction   *application.GetTransaction
	ListTransactions *application.ListTransactions

	// HTTP Handlers
	SagaHandlers *handlers.SagaHandlers

	// Infrastructure
	EventPublisher  *sharedinfra.SNSPublisherAdapter
	EventSubscriber *sharedinfra.SQSSubscriberAdapter

	// Telemetry
	Telemetry         *telemetry.Telemetry
	TelemetryShutdown func()
}

func BuildDependencies(ctx context.Context, config *Config) (*Dependencies, error) {
	deps := &Dependencies{}

	if config.Telemetry.Enabled {
		telConfig := telemetry.SagaServiceConfig.WithOTLPEndpoint(config.Telemetry.OTLPEndpoint)
		tel, telemetryShutdown, err := telemetry.InitTelemetry(ctx, telConfig)
		if err != nil {
			log.Printf("Failed to initialize telemetry: %v", err)
		} else {
			deps.Telemetry = tel
			deps.TelemetryShutdown = telemetryShutdown
		}
	}

	switch config.Storage {
	case "postgres":
		db, err := sqlx.Connect("postgres", config.GetDatabaseURL())
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		deps.DB = db
		deps.TransactionStore = infrastructure.NewPostgresTransactionStore(db)
	default:
		deps.TransactionStore = saga.NewMemoryTransactionStore()
	}

	eventPublisher, err := sharedinfra.NewSNSPublisherAdapter(config.AWS.SNSTopicArn)
	if err != nil {
		return nil, fmt.Errorf("failed to create SNS publisher: %w", err)
	}
	deps.EventPublisher = eventPublisher

	eventSubscriber, err := sharedinfra.NewSQSSubscriberAdapter(config.AWS.SQSQueueURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create SQS subscriber: %w", err)
	}
	deps.EventSubscriber = eventSubscriber

	deps.Engine = saga.NewEngine(deps.TransactionStore,
		saga.WithStepTimeout(config.Saga.StepTimeout),
		saga.WithLifecyclePublisher(eventPublisher),
	)

	switch config.Saga.Mode {
	case "choreography":
		router := saga.NewEventRouter(eventPublisher)
		deps.EventRouter = router
		deps.Definition, err = application.NewChoreographedFulfillment(router)
	default:
		deps.Definition, err = application.NewFulfillmentDefinition(application.FulfillmentParticipants{
			Order:        infrastructure.NewOrderClient(config.Participants.OrderURL, nil),
			OrderConfirm: infrastructure.NewOrderConfirmClient(config.Participants.OrderURL, nil),
			Inventory:    infrastructure.NewInventoryClient(config.Participants.InventoryURL, nil),
			Payment:      infrastructure.NewPaymentClient(config.Participants.PaymentURL, nil),
		})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to build saga definition: %w", err)
	}

	deps.StartSaga = application.NewStartSaga(deps.Engine, deps.Definition)
	deps.GetTransaction = application.NewGetTransaction(deps.TransactionStore)
	deps.ListTransactions = application.NewListTransactions(deps.TransactionStore)

	deps.SagaHandlers = handlers.NewSagaHandlers(
		deps.StartSaga, deps.GetTransaction, deps.ListTransactions)

	return deps, nil
}

// Close closes all dependencies
func (d *Dependencies) Close() error {
	var errs []error

	if d.DB != nil {
		if err := d.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		}
	}

	if d.EventPublisher != nil {
		if err := d.EventPublisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close event publisher: %w", err))
		}
	}

	if d.EventSubscriber != nil {
		if err := d.EventSubscriber.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close event subscriber: %w", err))
		}
	}

	if d.TelemetryShutdown != nil {
		d.TelemetryShutdown()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing dependencies: %v", errs)
	}

	return nil
}
