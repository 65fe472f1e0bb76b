package services

import (
	"context"
	"errors"
	"time"

	"github.com/Gautam0104/jupi-diamond-sub005/internal/repositories"
)

const (
	paymentNotCompletedReason = "PAYMENT NOT COMPLETED"
	defaultPendingTTL         = 30 * time.Minute
	defaultSweepBatchSize     = 100
)

// ReconciliationServiceDeps bundles collaborators required to construct the reconciliation service.
type ReconciliationServiceDeps struct {
	Orders    repositories.OrderRepository
	OrderSvc  OrderService
	TTL       time.Duration
	BatchSize int
	Clock     func() time.Time
	Logger    Logger
}

type reconciliationService struct {
	orders    repositories.OrderRepository
	orderSvc  OrderService
	ttl       time.Duration
	batchSize int
	clock     func() time.Time
	logger    Logger
}

var _ ReconciliationService = (*reconciliationService)(nil)

// NewReconciliationService constructs the stale pending order sweeper.
func NewReconciliationService(deps ReconciliationServiceDeps) (ReconciliationService, error) {
	if deps.Orders == nil {
		return nil, errors.New("reconciliation service: order repository is required")
	}
	if deps.OrderSvc == nil {
		return nil, errors.New("reconciliation service: order service is required")
	}
	ttl := deps.TTL
	if ttl <= 0 {
		ttl = defaultPendingTTL
	}
	batch := deps.BatchSize
	if batch <= 0 {
		batch = defaultSweepBatchSize
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &reconciliationService{
		orders:    deps.Orders,
		orderSvc:  deps.OrderSvc,
		ttl:       ttl,
		batchSize: batch,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// SweepStalePending cancels unpaid gateway orders older than the TTL through the normal cancel
// path, which restores their stock. The cancel re-checks the order under its row lock, so orders
// paid after the listing are skipped. Per-order failures are logged and counted.
func (s *reconciliationService) SweepStalePending(ctx context.Context) (SweepResult, error) {
	cutoff := s.clock().Add(-s.ttl)
	stale, err := s.orders.ListStalePending(ctx, cutoff, s.batchSize)
	if err != nil {
		return SweepResult{}, mapRepositoryError(err, nil)
	}

	result := SweepResult{Scanned: len(stale)}
	for _, order := range stale {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if order.IsPaid || !order.PaymentMethod.UsesGateway() {
			continue
		}
		_, err := s.orderSvc.Cancel(ctx, CancelOrderCommand{OrderID: order.ID, Reason: paymentNotCompletedReason, OnlyUnpaid: true})
		if errors.Is(err, ErrConflict) {
			// settled since the listing
			s.logger(ctx, "reconciliation.cancel.skipped", map[string]any{"order": order.ID, "error": err.Error()})
			continue
		}
		if err != nil {
			result.Failed++
			s.logger(ctx, "reconciliation.cancel.failed", map[string]any{
				"order": order.ID,
				"code":  CodeOf(err),
				"error": err.Error(),
			})
			continue
		}
		result.Cancelled++
	}
	if result.Scanned > 0 {
		s.logger(ctx, "reconciliation.sweep.completed", map[string]any{
			"cutoff":    cutoff,
			"scanned":   result.Scanned,
			"cancelled": result.Cancelled,
			"failed":    result.Failed,
		})
	}
	return result, nil
}
