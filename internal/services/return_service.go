package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/Gautam0104/jupi-diamond-sub005/internal/domain"
	"github.com/Gautam0104/jupi-diamond-sub005/internal/payments"
	"github.com/Gautam0104/jupi-diamond-sub005/internal/platform/textutil"
	"github.com/Gautam0104/jupi-diamond-sub005/internal/repositories"
)

const (
	refundSuccessMessage = "Refund processed successfully"
	maxReturnPhotos      = 10
	photoURLMaxLength    = 2048
)

// ReturnServiceDeps bundles collaborators required to construct the return service.
type ReturnServiceDeps struct {
	Repositories repositories.Registry
	UnitOfWork   repositories.UnitOfWork
	Inventory    InventoryService
	Gateway      PaymentGateway
	Notifier     NotificationSink
	Clock        func() time.Time
	IDGenerator  func() string
	Logger       Logger
}

type returnService struct {
	repos      repositories.Registry
	unitOfWork repositories.UnitOfWork
	inventory  InventoryService
	gateway    PaymentGateway
	lifecycle
}

var _ ReturnService = (*returnService)(nil)

// NewReturnService constructs the refund and return workflow service.
func NewReturnService(deps ReturnServiceDeps) (ReturnService, error) {
	if deps.Repositories == nil {
		return nil, errors.New("return service: repositories are required")
	}
	if deps.Inventory == nil {
		return nil, errors.New("return service: inventory service is required")
	}
	return &returnService{
		repos:      deps.Repositories,
		unitOfWork: resolveUnitOfWork(deps.UnitOfWork, deps.Repositories),
		inventory:  deps.Inventory,
		gateway:    deps.Gateway,
		lifecycle:  newLifecycle(deps.Clock, deps.IDGenerator, deps.Notifier, deps.Logger),
	}, nil
}

// RefundOrder refunds a paid order through its gateway, then records the refund, marks every
// payment attempt refunded and moves the order to REFUNDED in one transaction. The order is
// reserved as REFUND_PENDING before the gateway call so concurrent callers cannot refund twice.
func (s *returnService) RefundOrder(ctx context.Context, cmd RefundOrderCommand) (RefundOutcome, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return RefundOutcome{}, fmt.Errorf("%w: order id is required", ErrInvalidInput)
	}
	if cmd.Amount <= 0 {
		return RefundOutcome{}, fmt.Errorf("%w: refund amount must be positive", ErrInvalidInput)
	}
	order, err := s.repos.Orders().FindByID(ctx, orderID)
	if err != nil {
		return RefundOutcome{}, mapRepositoryError(err, nil)
	}
	if err := checkRefundable(order, cmd.Amount); err != nil {
		return RefundOutcome{}, err
	}
	reason := textutil.CleanText(cmd.Reason, reasonMaxLength)

	err = s.unitOfWork.RunInTx(ctx, func(ctx context.Context, tx repositories.Registry) error {
		var err error
		order, err = tx.Orders().LockByID(ctx, orderID)
		if err != nil {
			return mapRepositoryError(err, nil)
		}
		if err := checkRefundable(order, cmd.Amount); err != nil {
			return err
		}
		order.PaymentStatus = domain.PaymentStatusRefundPending
		order.UpdatedAt = s.now()
		return mapRepositoryError(tx.Orders().Update(ctx, order), nil)
	})
	if err != nil {
		return RefundOutcome{}, err
	}

	var refundID string
	if order.PaymentMethod.UsesGateway() {
		result, err := s.refundAtGateway(ctx, order, cmd.Amount, reason)
		if err != nil {
			s.releaseRefund(ctx, orderID)
			return RefundOutcome{}, err
		}
		refundID = result.RefundID
	}

	var prev OrderStatus
	err = s.unitOfWork.RunInTx(ctx, func(ctx context.Context, tx repositories.Registry) error {
		var err error
		order, err = tx.Orders().LockByID(ctx, orderID)
		if err != nil {
			return mapRepositoryError(err, nil)
		}
		if order.PaymentStatus != domain.PaymentStatusRefundPending {
			return fmt.Errorf("%w: refund reservation lost for order %s", ErrConflict, order.OrderNumber)
		}
		now := s.now()
		order.Refund = &domain.Refund{Amount: cmd.Amount, RefundID: refundID, Reason: reason, RefundedAt: now}
		order.PaymentStatus = domain.PaymentStatusRefunded
		if _, err := tx.Payments().MarkRefunded(ctx, order.ID, now); err != nil {
			return mapRepositoryError(err, nil)
		}
		prev, err = s.advance(ctx, tx, &order, domain.OrderStatusRefunded, reason)
		return err
	})
	if err != nil {
		s.logger(ctx, "refund.record.failed", map[string]any{
			"order":    orderID,
			"refundId": refundID,
			"amount":   cmd.Amount,
			"error":    err.Error(),
		})
		return RefundOutcome{}, err
	}

	s.publish(ctx, NotificationEvent{
		Type:          EventOrderRefunded,
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		CustomerID:    order.CustomerID,
		CurrentStatus: string(order.Status),
		OccurredAt:    s.now(),
		Metadata:      map[string]any{"amount": cmd.Amount, "currency": order.Currency, "refundId": refundID},
	})
	s.statusChanged(ctx, order, prev, map[string]any{"reason": reason})
	return RefundOutcome{Success: true, Message: refundSuccessMessage, Order: order}, nil
}

func checkRefundable(order Order, amount int64) error {
	if order.PaymentStatus == domain.PaymentStatusRefundPending {
		return fmt.Errorf("%w: refund already in progress for order %s", ErrConflict, order.OrderNumber)
	}
	if !order.IsPaid || order.PaymentStatus != domain.PaymentStatusSuccess || order.Status == domain.OrderStatusRefunded {
		return fmt.Errorf("%w: order %s", ErrNotPaid, order.OrderNumber)
	}
	if amount > order.Amounts.Final {
		return fmt.Errorf("%w: %s > %s", ErrAmountExceedsPaid,
			domain.MinorToDecimal(amount).StringFixed(2), domain.MinorToDecimal(order.Amounts.Final).StringFixed(2))
	}
	if !canTransition(order.Status, domain.OrderStatusRefunded) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, order.Status, domain.OrderStatusRefunded)
	}
	return nil
}

func (s *returnService) refundAtGateway(ctx context.Context, order Order, amount int64, reason string) (payments.RefundResult, error) {
	if s.gateway == nil {
		return payments.RefundResult{}, errors.New("return service: payment gateway not configured")
	}
	result, err := s.gateway.Refund(ctx, paymentContext(order), payments.RefundRequest{
		GatewayPaymentID: order.GatewayPaymentID,
		Amount:           amount,
		Currency:         order.Currency,
		Reason:           reason,
		OrderNumber:      order.OrderNumber,
	})
	if err != nil {
		s.logger(ctx, "refund.gateway.failed", map[string]any{"order": order.ID, "error": err.Error()})
		return payments.RefundResult{}, fmt.Errorf("%w: %v", ErrPaymentGateway, err)
	}
	return result, nil
}

// releaseRefund returns a reserved order to SUCCESS after the gateway declined the refund.
func (s *returnService) releaseRefund(ctx context.Context, orderID string) {
	err := s.unitOfWork.RunInTx(ctx, func(ctx context.Context, tx repositories.Registry) error {
		order, err := tx.Orders().LockByID(ctx, orderID)
		if err != nil {
			return mapRepositoryError(err, nil)
		}
		if order.PaymentStatus != domain.PaymentStatusRefundPending {
			return nil
		}
		order.PaymentStatus = domain.PaymentStatusSuccess
		order.UpdatedAt = s.now()
		return mapRepositoryError(tx.Orders().Update(ctx, order), nil)
	})
	if err != nil {
		s.logger(ctx, "refund.release.failed", map[string]any{"order": orderID, "error": err.Error()})
	}
}

func (s *returnService) RequestReturn(ctx context.Context, cmd RequestReturnCommand) (ReturnRequest, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	customerID := strings.TrimSpace(cmd.CustomerID)
	if orderID == "" || customerID == "" {
		return ReturnRequest{}, fmt.Errorf("%w: order id and customer id are required", ErrInvalidInput)
	}
	reason := textutil.CleanText(cmd.Reason, reasonMaxLength)
	if reason == "" {
		return ReturnRequest{}, fmt.Errorf("%w: return reason is required", ErrInvalidInput)
	}
	photos := textutil.CleanList(cmd.Photos, photoURLMaxLength)
	if len(photos) > maxReturnPhotos {
		return ReturnRequest{}, fmt.Errorf("%w: at most %d photos are allowed", ErrInvalidInput, maxReturnPhotos)
	}

	var (
		order   Order
		prev    OrderStatus
		request ReturnRequest
	)
	err := s.unitOfWork.RunInTx(ctx, func(ctx context.Context, tx repositories.Registry) error {
		var err error
		order, err = tx.Orders().LockByID(ctx, orderID)
		if err != nil {
			return mapRepositoryError(err, nil)
		}
		if order.CustomerID != customerID {
			return fmt.Errorf("%w: %s", ErrNotFound, orderID)
		}
		switch order.Status {
		case domain.OrderStatusDelivered:
		case domain.OrderStatusReturnRequested, domain.OrderStatusReturnApproved:
			return fmt.Errorf("%w: order %s", ErrReturnAlreadyRequested, order.OrderNumber)
		default:
			return fmt.Errorf("%w: only delivered orders can be returned", ErrInvalidTransition)
		}

		now := s.now()
		request = ReturnRequest{
			ID:         returnIDPrefix + s.newID(),
			OrderID:    order.ID,
			CustomerID: customerID,
			Reason:     reason,
			Photos:     photos,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := tx.Returns().Insert(ctx, request); err != nil {
			if errors.Is(mapRepositoryError(err, nil), ErrConflict) {
				return fmt.Errorf("%w: order %s", ErrReturnAlreadyRequested, order.OrderNumber)
			}
			return mapRepositoryError(err, nil)
		}
		prev, err = s.advance(ctx, tx, &order, domain.OrderStatusReturnRequested, reason)
		return err
	})
	if err != nil {
		return ReturnRequest{}, err
	}
	s.statusChanged(ctx, order, prev, map[string]any{"returnRequestId": request.ID})
	return request, nil
}

// ApproveReturn approves the request and moves the order to RETURN_APPROVED. Approving an already
// approved request returns it without writing history again.
func (s *returnService) ApproveReturn(ctx context.Context, cmd ApproveReturnCommand) (ReturnRequest, error) {
	requestID := strings.TrimSpace(cmd.ReturnRequestID)
	orderID := strings.TrimSpace(cmd.OrderID)
	if requestID == "" || orderID == "" {
		return ReturnRequest{}, fmt.Errorf("%w: return request id and order id are required", ErrInvalidInput)
	}

	var (
		order    Order
		prev     OrderStatus
		request  ReturnRequest
		approved bool
	)
	err := s.unitOfWork.RunInTx(ctx, func(ctx context.Context, tx repositories.Registry) error {
		var err error
		order, err = tx.Orders().LockByID(ctx, orderID)
		if err != nil {
			return mapRepositoryError(err, nil)
		}
		request, err = tx.Returns().FindByID(ctx, requestID)
		if err != nil {
			return mapRepositoryError(err, nil)
		}
		if request.OrderID != orderID {
			return fmt.Errorf("%w: return request %s does not belong to order %s", ErrNotFound, requestID, orderID)
		}
		if request.IsApproved {
			return nil
		}

		now := s.now()
		prev, err = s.advance(ctx, tx, &order, domain.OrderStatusReturnApproved, "return approved")
		if err != nil {
			return err
		}
		request.IsApproved = true
		request.ApprovedAt = &now
		request.UpdatedAt = now
		if err := tx.Returns().Update(ctx, request); err != nil {
			return mapRepositoryError(err, nil)
		}
		approved = true
		return nil
	})
	if err != nil {
		return ReturnRequest{}, err
	}
	if approved {
		s.statusChanged(ctx, order, prev, map[string]any{"returnRequestId": request.ID})
	}
	return request, nil
}

// CompleteReturn receives the returned goods: stock is restored, items become RETURNED and the
// order moves to RETURNED.
func (s *returnService) CompleteReturn(ctx context.Context, orderID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrInvalidInput)
	}
	var (
		order Order
		prev  OrderStatus
	)
	err := s.unitOfWork.RunInTx(ctx, func(ctx context.Context, tx repositories.Registry) error {
		var err error
		order, err = tx.Orders().LockByID(ctx, orderID)
		if err != nil {
			return mapRepositoryError(err, nil)
		}
		if order.Status == domain.OrderStatusReturned {
			prev, err = s.advance(ctx, tx, &order, domain.OrderStatusReturned, "")
			return err
		}
		if !canTransition(order.Status, domain.OrderStatusReturned) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, order.Status, domain.OrderStatusReturned)
		}
		if err := s.inventory.Restore(ctx, tx, order.Items); err != nil {
			return err
		}
		if err := tx.Orders().UpdateItemStatus(ctx, order.ID, domain.OrderItemStatusReturned); err != nil {
			return mapRepositoryError(err, nil)
		}
		for i := range order.Items {
			order.Items[i].Status = domain.OrderItemStatusReturned
		}
		prev, err = s.advance(ctx, tx, &order, domain.OrderStatusReturned, "return received")
		return err
	})
	if err != nil {
		return Order{}, err
	}
	s.statusChanged(ctx, order, prev, nil)
	return order, nil
}
