package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	domain "github.com/Gautam0104/jupi-diamond-sub005/internal/domain"
	"github.com/Gautam0104/jupi-diamond-sub005/internal/repositories"
)

const defaultLowStockThreshold = 5

// InventoryServiceDeps configures the inventory service.
type InventoryServiceDeps struct {
	LowStockThreshold int
	Logger            Logger
}

type inventoryService struct {
	threshold int
	logger    Logger
}

var _ InventoryService = (*inventoryService)(nil)

// NewInventoryService constructs the stock reservation service.
func NewInventoryService(deps InventoryServiceDeps) (InventoryService, error) {
	threshold := deps.LowStockThreshold
	if threshold < 0 {
		return nil, errors.New("inventory service: low stock threshold must not be negative")
	}
	if threshold == 0 {
		threshold = defaultLowStockThreshold
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &inventoryService{threshold: threshold, logger: logger}, nil
}

// Reserve locks every variant in ascending id order, checks stock against the summed quantity per
// variant and decrements it. Any failure leaves the caller's transaction to roll back.
func (s *inventoryService) Reserve(ctx context.Context, tx repositories.Registry, lines []ReservationLine) (Reservation, error) {
	if tx == nil {
		return Reservation{}, errors.New("inventory service: transaction registry is required")
	}
	if len(lines) == 0 {
		return Reservation{}, fmt.Errorf("%w: at least one line is required", ErrInvalidInput)
	}

	requested := make(map[string]int, len(lines))
	for _, line := range lines {
		id := strings.TrimSpace(line.VariantID)
		if id == "" {
			return Reservation{}, fmt.Errorf("%w: variant id is required", ErrInvalidInput)
		}
		if line.Quantity <= 0 {
			return Reservation{}, fmt.Errorf("%w: quantity must be positive for %s", ErrInvalidInput, id)
		}
		requested[id] += line.Quantity
	}
	ids := make([]string, 0, len(requested))
	for id := range requested {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	locked, err := tx.Variants().LockForUpdate(ctx, ids)
	if err != nil {
		return Reservation{}, mapRepositoryError(err, ErrVariantNotFound)
	}

	reservation := Reservation{Variants: make(map[string]domain.ProductVariant, len(ids))}
	for _, id := range ids {
		variant, ok := locked[id]
		if !ok {
			return Reservation{}, fmt.Errorf("%w: %s", ErrVariantNotFound, id)
		}
		qty := requested[id]
		if variant.Stock < qty {
			return Reservation{}, &StockError{VariantID: id, Requested: qty, Available: variant.Stock}
		}
		stock, err := tx.Variants().AdjustStock(ctx, id, -qty)
		if err != nil {
			err = mapRepositoryError(err, ErrVariantNotFound)
			var stockErr *StockError
			if errors.As(err, &stockErr) {
				stockErr.Requested = qty
			}
			return Reservation{}, err
		}
		variant.Stock = stock
		reservation.Variants[id] = variant
		if stock <= s.threshold {
			reservation.LowStock = append(reservation.LowStock, LowStockAlert{VariantID: id, SKU: variant.SKU, Stock: stock})
		}
	}
	return reservation, nil
}

// Restore returns the quantity of every active item to stock.
func (s *inventoryService) Restore(ctx context.Context, tx repositories.Registry, items []OrderItem) error {
	if tx == nil {
		return errors.New("inventory service: transaction registry is required")
	}
	restock := make(map[string]int)
	for _, item := range items {
		if item.Status != "" && item.Status != domain.OrderItemStatusActive {
			continue
		}
		if item.Quantity > 0 {
			restock[item.VariantID] += item.Quantity
		}
	}
	ids := make([]string, 0, len(restock))
	for id := range restock {
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil
	}
	slices.Sort(ids)

	if _, err := tx.Variants().LockForUpdate(ctx, ids); err != nil {
		return mapRepositoryError(err, ErrVariantNotFound)
	}
	for _, id := range ids {
		stock, err := tx.Variants().AdjustStock(ctx, id, restock[id])
		if err != nil {
			return mapRepositoryError(err, ErrVariantNotFound)
		}
		s.logger(ctx, "inventory.restocked", map[string]any{"variant": id, "quantity": restock[id], "stock": stock})
	}
	return nil
}
