package application

import (
	"context"

	"github.com/pkg/errors"

	"github.com/orderflow/saga-system/inventory-service/domain"
)

// GetStock use case retrieves the stock position of one product
type GetStock struct {
	inventoryRepository domain.InventoryRepository
}

// NewGetStock creates a new GetStock use case
func NewGetStock(inventoryRepository domain.InventoryRepository) *GetStock {
	return &GetStock{inventoryRepository: inventoryRepository}
}

// Execute retrieves the stock position
func (uc *GetStock) Execute(ctx context.Context, productID string) (*domain.InventoryItem, error) {
	if productID == "" {
		return nil, errors.New("product ID is required")
	}

	item, err := uc.inventoryRepository.FindByProductID(ctx, productID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to find stock")
	}

	if item == nil {
		return nil, errors.New("product not found")
	}

	return item, nil
}

// ListStock use case lists all stock positions
type ListStock struct {
	inventoryRepository domain.InventoryRepository
}

// NewListStock creates a new ListStock use case
func NewListStock(inventoryRepository domain.InventoryRepository) *ListStock {
	return &ListStock{inventoryRepository: inventoryRepository}
}

// Execute lists the stock positions
func (uc *ListStock) Execute(ctx context.Context) ([]*domain.InventoryItem, error) {
	items, err := uc.inventoryRepository.FindAll(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list stock")
	}

	return items, nil
}
