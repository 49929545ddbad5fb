package config

import (
	"context"
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/orderflow/saga-system/inventory-service/application"
	"github.com/orderflow/saga-system/inventory-service/domain"
	"github.com/orderflow/saga-system/inventory-service/handlers"
	"github.com/orderflow/saga-system/inventory-service/infrastructure"
	sharedinfra "github.com/orderflow/saga-system/shared/infrastructure"
	"github.com/orderflow/saga-system/shared/telemetry"
)

type Dependencies struct {
	// Database (nil when storage is "memory")
	DB *sqlx.DB

	// Repositories
	InventoryRepository   domain.InventoryRepository
	ReservationRepository domain.ReservationRepository

	// Use Cases
	ReserveStock       *application.ReserveStock
	ReleaseStock       *application.ReleaseStock
	ConfirmReservation *application.ConfirmReservation
	GetStock           *application.GetStock
	ListStock          *application.ListStock

	// HTTP Handlers
	InventoryHandlers *handlers.InventoryHandlers

	// Event Handlers
	InventoryEventHandlers *handlers.InventoryEventHandlers

	// Infrastructure
	EventPublisher  *sharedinfra.SNSPublisherAdapter
	EventSubscriber *sharedinfra.SQSSubscriberAdapter

	// Telemetry
	Telemetry         *telemetry.Telemetry
	TelemetryShutdown func()
}

// SeedCatalog returns the demo catalog loaded into a fresh memory store.
func SeedCatalog() []*domain.InventoryItem {
	return []*domain.InventoryItem{
		domain.NewInventoryItem("PROD001", "Laptop", 10),
		domain.NewInventoryItem("PROD002", "Mouse", 2),
		domain.NewInventoryItem("PROD003", "Keyboard", 50),
	}
}

func BuildDependencies(ctx context.Context, config *Config) (*Dependencies, error) {
	deps := &Dependencies{}

	if config.Telemetry.Enabled {
		telConfig := telemetry.InventoryServiceConfig.WithOTLPEndpoint(config.Telemetry.OTLPEndpoint)
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
		deps.InventoryRepository = infrastructure.NewPostgresInventoryRepository(db)
		deps.ReservationRepository = infrastructure.NewPostgresReservationRepository(db)
	default:
		inventoryRepo := infrastructure.NewMemoryInventoryRepository()
		inventoryRepo.Seed(SeedCatalog()...)
		deps.InventoryRepository = inventoryRepo
		deps.ReservationRepository = infrastructure.NewMemoryReservationRepository()
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

	deps.ReserveStock = application.NewReserveStock(deps.InventoryRepository, deps.ReservationRepository, eventPublisher)
	deps.ReleaseStock = application.NewReleaseStock(deps.InventoryRepository, deps.ReservationRepository, eventPublisher)
	deps.ConfirmReservation = application.NewConfirmReservation(deps.InventoryRepository, deps.ReservationRepository)
	deps.GetStock = application.NewGetStock(deps.InventoryRepository)
	deps.ListStock = application.NewListStock(deps.InventoryRepository)

	deps.InventoryHandlers = handlers.NewInventoryHandlers(
		deps.ReserveStock, deps.ReleaseStock, deps.ConfirmReservation, deps.GetStock, deps.ListStock)
	deps.InventoryEventHandlers = handlers.NewInventoryEventHandlers(
		deps.ReserveStock, deps.ReleaseStock, eventPublisher)

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
