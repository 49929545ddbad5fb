package config

import (
	"context"
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/orderflow/saga-system/payment-service/application"
	"github.com/orderflow/saga-system/payment-service/domain"
	"github.com/orderflow/saga-system/payment-service/handlers"
	"github.com/orderflow/saga-system/payment-service/infrastructure"
	sharedinfra "github.com/orderflow/saga-system/shared/infrastructure"
	"github.com/orderflow/saga-system/shared/models"
	"github.com/orderflow/saga-system/shared/telemetry"
)

type Dependencies struct {
	// Database (nil when storage is "memory")
	DB *sqlx.DB

	// Repositories
	AccountRepository domain.AccountRepository
	PaymentRepository domain.PaymentRepository

	// Use Cases
	ProcessPayment *application.ProcessPayment
	RefundPayment  *application.RefundPayment
	GetPayment     *application.GetPayment
	GetBalance     *application.GetBalance

	// HTTP Handlers
	PaymentHandlers *handlers.PaymentHandlers

	// Event Handlers
	PaymentEventHandlers *handlers.PaymentEventHandlers

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
		telConfig := telemetry.PaymentServiceConfig.WithOTLPEndpoint(config.Telemetry.OTLPEndpoint)
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
		deps.AccountRepository = infrastructure.NewPostgresAccountRepository(db)
		deps.PaymentRepository = infrastructure.NewPostgresPaymentRepository(db)
	default:
		accountRepo := infrastructure.NewMemoryAccountRepository()
		accountRepo.Seed(SeedAccounts()...)
		deps.AccountRepository = accountRepo
		deps.PaymentRepository = infrastructure.NewMemoryPaymentRepository()
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

	deps.ProcessPayment = application.NewProcessPayment(
		deps.AccountRepository, deps.PaymentRepository, eventPublisher)
	deps.RefundPayment = application.NewRefundPayment(
		deps.AccountRepository, deps.PaymentRepository, eventPublisher)
	deps.GetPayment = application.NewGetPayment(deps.PaymentRepository)
	deps.GetBalance = application.NewGetBalance(deps.AccountRepository)

	deps.PaymentHandlers = handlers.NewPaymentHandlers(
		deps.ProcessPayment, deps.RefundPayment, deps.GetPayment, deps.GetBalance)
	deps.PaymentEventHandlers = handlers.NewPaymentEventHandlers(
		deps.ProcessPayment, deps.RefundPayment, eventPublisher)

	return deps, nil
}

// SeedAccounts returns the demo customer accounts
func SeedAccounts() []*domain.Account {
	return []*domain.Account{
		domain.NewAccount("CUST001", models.NewMoney(10000, "USD")),
		domain.NewAccount("CUST002", models.NewMoney(50, "USD")),
		domain.NewAccount("CUST003", models.NewMoney(500000, "USD")),
	}
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
