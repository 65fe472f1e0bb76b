package services

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/Gautam0104/jupi-diamond-sub005/internal/domain"
	"github.com/Gautam0104/jupi-diamond-sub005/internal/repositories"
)

const (
	orderIDPrefix      = "ord_"
	itemIDPrefix       = "itm_"
	historyIDPrefix    = "osh_"
	paymentIDPrefix    = "pay_"
	returnIDPrefix     = "ret_"
	cartIDPrefix       = "cart_"
	cartItemPrefix     = "cit_"
	redemptionIDPrefix = "red_"

	defaultCancelReason = "NO REASON PROVIDED"
)

var orderStateTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusPending:         {domain.OrderStatusConfirmed, domain.OrderStatusCancelled, domain.OrderStatusRefunded},
	domain.OrderStatusConfirmed:       {domain.OrderStatusShipped, domain.OrderStatusCancelled, domain.OrderStatusRefunded},
	domain.OrderStatusShipped:         {domain.OrderStatusDelivered, domain.OrderStatusRefunded},
	domain.OrderStatusDelivered:       {domain.OrderStatusReturnRequested, domain.OrderStatusRefunded},
	domain.OrderStatusReturnRequested: {domain.OrderStatusReturnApproved, domain.OrderStatusRefunded},
	domain.OrderStatusReturnApproved:  {domain.OrderStatusReturned, domain.OrderStatusRefunded},
}

func canTransition(from, to domain.OrderStatus) bool {
	return slices.Contains(orderStateTransitions[from], to)
}

// lifecycle holds the collaborators shared by every service that moves an order between states.
type lifecycle struct {
	clock    func() time.Time
	newID    func() string
	notifier NotificationSink
	logger   Logger
}

func newLifecycle(clock func() time.Time, idGen func() string, notifier NotificationSink, logger Logger) lifecycle {
	if clock == nil {
		clock = time.Now
	}
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return lifecycle{
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:    idGen,
		notifier: notifier,
		logger:   logger,
	}
}

func (l lifecycle) now() time.Time {
	return l.clock()
}

// advance moves order to target inside tx, upserts the history row and writes the order header.
// Re-applying the current status only refreshes the history row. It returns the previous status.
func (l lifecycle) advance(ctx context.Context, tx repositories.Registry, order *Order, target OrderStatus, note string) (OrderStatus, error) {
	prev := order.Status
	if prev != target && !canTransition(prev, target) {
		return prev, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, prev, target)
	}

	now := l.now()
	order.Status = target
	order.UpdatedAt = now
	if target == domain.OrderStatusCancelled && order.CancelledAt == nil {
		order.CancelledAt = &now
	}

	entry, err := tx.StatusHistory().Upsert(ctx, domain.OrderStatusHistory{
		ID:        historyIDPrefix + l.newID(),
		OrderID:   order.ID,
		Status:    target,
		Note:      note,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return prev, mapRepositoryError(err, nil)
	}
	order.StatusHistory = mergeHistory(order.StatusHistory, entry)

	if err := tx.Orders().Update(ctx, *order); err != nil {
		return prev, mapRepositoryError(err, nil)
	}
	return prev, nil
}

func mergeHistory(history []domain.OrderStatusHistory, entry domain.OrderStatusHistory) []domain.OrderStatusHistory {
	for i := range history {
		if history[i].Status == entry.Status {
			history[i] = entry
			return history
		}
	}
	return append(history, entry)
}

// statusChanged emits order.status.changed after the transaction committed.
func (l lifecycle) statusChanged(ctx context.Context, order Order, prev OrderStatus, metadata map[string]any) {
	l.publish(ctx, NotificationEvent{
		Type:           EventOrderStatusChanged,
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		CustomerID:     order.CustomerID,
		PreviousStatus: string(prev),
		CurrentStatus:  string(order.Status),
		OccurredAt:     l.now(),
		Metadata:       metadata,
	})
}

func (l lifecycle) publish(ctx context.Context, event NotificationEvent) {
	if l.notifier == nil {
		return
	}
	if event.Metadata != nil {
		event.Metadata = maps.Clone(event.Metadata)
	}
	if err := l.notifier.Notify(ctx, event); err != nil {
		l.logger(ctx, "notification.publish.failed", map[string]any{
			"type":   event.Type,
			"order":  event.OrderID,
			"status": event.CurrentStatus,
			"error":  err.Error(),
		})
	}
}

func ownedBy(order Order, customerID string) bool {
	return customerID == "" || order.CustomerID == customerID
}

type noopUnitOfWork struct {
	registry repositories.Registry
}

func (u noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context, repositories.Registry) error) error {
	return fn(ctx, u.registry)
}

func resolveUnitOfWork(unit repositories.UnitOfWork, registry repositories.Registry) repositories.UnitOfWork {
	if unit != nil {
		return unit
	}
	return noopUnitOfWork{registry: registry}
}
