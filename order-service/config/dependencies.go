package config

import (
	"context"
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/orderflow/saga-system/order-service/application"
	"github.com/orderflow/saga-system/order-service/domain"
	"github.com/orderflow/saga-system/order-service/handlers"
	"github.com/orderflow/saga-system/order-service/infrastructure"
	sharedinfra "github.com/orderflow/saga-system/shared/infrastructure"
	"github.com/orderflow/saga-system/shared/telemetry"
)

type Dependencies struct {
	// Database (nil when storage is "memory")
	DB *sqlx.DB

	// Repositories
	OrderRepository domain.OrderRepository

	// Use Cases
	CreateOrder  *application.CreateOrder
	ConfirmOrder *application.ConfirmOrder
	CancelOrder  *application.CancelOrder
	GetOrder     *application.GetOrder
	ListOrders   *application.ListOrders

	// HTTP Handlers
	OrderHandlers *handlers.OrderHandlers

	// Event Handlers
	OrderEventHandlers *handlers.OrderEventHandlers

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
		telConfig := telemetry.OrderServiceConfig.WithOTLPEndpoint(config.Telemetry.OTLPEndpoint)
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
		deps.OrderRepository = infrastructure.NewPostgresOrderRepository(db)
	default:
		deps.OrderRepository = infrastructure.NewMemoryOrderRepository()
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

	deps.CreateOrder = application.NewCreateOrder(deps.OrderRepository, eventPublisher)
	deps.ConfirmOrder = application.NewConfirmOrder(deps.OrderRepository, eventPublisher)
	deps.CancelOrder = application.NewCancelOrder(deps.OrderRepository, eventPublisher)
	deps.GetOrder = application.NewGetOrder(deps.OrderRepository)
	deps.ListOrders = application.NewListOrders(deps.OrderRepository)

	deps.OrderHandlers = handlers.NewOrderHandlers(
		deps.CreateOrder, deps.ConfirmOrder, deps.CancelOrder, deps.GetOrder, deps.ListOrders)
	deps.OrderEventHandlers = handlers.NewOrderEventHandlers(
		deps.CreateOrder, deps.ConfirmOrder, deps.CancelOrder, eventPublisher)

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
