package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/Gautam0104/jupi-diamond-sub005/internal/domain"
	"github.com/Gautam0104/jupi-diamond-sub005/internal/payments"
	"github.com/Gautam0104/jupi-diamond-sub005/internal/platform/textutil"
	"github.com/Gautam0104/jupi-diamond-sub005/internal/repositories"
)

// PaymentGateway is the provider-agnostic gateway surface; payments.Manager implements it.
type PaymentGateway interface {
	CreateCharge(ctx context.Context, pc payments.PaymentContext, req payments.ChargeRequest) (payments.Charge, error)
	ConfirmPayment(ctx context.Context, pc payments.PaymentContext, req payments.ConfirmRequest) (payments.PaymentDetails, error)
	Refund(ctx context.Context, pc payments.PaymentContext, req payments.RefundRequest) (payments.RefundResult, error)
}

// WebhookVerifier checks a gateway webhook signature over the raw body.
type WebhookVerifier interface {
	VerifyWebhook(body []byte, signature string) error
}

// PaymentServiceDeps bundles collaborators required to construct the payment service.
type PaymentServiceDeps struct {
	Repositories    repositories.Registry
	UnitOfWork      repositories.UnitOfWork
	Gateway         PaymentGateway
	RazorpayWebhook WebhookVerifier
	Notifier        NotificationSink
	Clock           func() time.Time
	IDGenerator     func() string
	Logger          Logger
}

type paymentService struct {
	repos      repositories.Registry
	unitOfWork repositories.UnitOfWork
	gateway    PaymentGateway
	webhook    WebhookVerifier
	lifecycle
}

var _ PaymentService = (*paymentService)(nil)

// NewPaymentService constructs the payment orchestration service.
func NewPaymentService(deps PaymentServiceDeps) (PaymentService, error) {
	if deps.Repositories == nil {
		return nil, errors.New("payment service: repositories are required")
	}
	if deps.Gateway == nil {
		return nil, errors.New("payment service: gateway is required")
	}
	return &paymentService{
		repos:      deps.Repositories,
		unitOfWork: resolveUnitOfWork(deps.UnitOfWork, deps.Repositories),
		gateway:    deps.Gateway,
		webhook:    deps.RazorpayWebhook,
		lifecycle:  newLifecycle(deps.Clock, deps.IDGenerator, deps.Notifier, deps.Logger),
	}, nil
}

// providerKey maps a payment method to the payments.Manager registration key.
func providerKey(method domain.PaymentMethod) string {
	switch method {
	case domain.PaymentMethodRazorpay:
		return payments.ProviderRazorpay
	case domain.PaymentMethodPayPal:
		return payments.ProviderPayPal
	default:
		return ""
	}
}

func paymentContext(order Order) payments.PaymentContext {
	return payments.PaymentContext{PreferredProvider: providerKey(order.PaymentMethod), Currency: order.Currency}
}

// CreateCharge opens a gateway order for the order's final amount and records the attempt, whether
// it succeeded or not. A failed attempt leaves the order PENDING with its stock reserved.
func (s *paymentService) CreateCharge(ctx context.Context, order Order) (payments.Charge, error) {
	if !order.PaymentMethod.UsesGateway() {
		return payments.Charge{}, fmt.Errorf("%w: payment method %s does not use a gateway", ErrInvalidInput, order.PaymentMethod)
	}
	now := s.now()
	txnID := newTransactionID(now)

	charge, chargeErr := s.gateway.CreateCharge(ctx, paymentContext(order), payments.ChargeRequest{
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		TransactionID: txnID,
		CustomerID:    order.CustomerID,
		Amount:        order.Amounts.Final,
		Currency:      order.Currency,
		Notes: textutil.NormalizeStringMap(map[string]string{
			"order_number": order.OrderNumber,
			"customer_id":  order.CustomerID,
		}),
	})

	attempt := domain.PaymentHistory{
		ID:            paymentIDPrefix + s.newID(),
		OrderID:       order.ID,
		TransactionID: txnID,
		Provider:      order.PaymentMethod,
		Status:        domain.PaymentAttemptCreated,
		Amount:        order.Amounts.Final,
		Currency:      order.Currency,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if chargeErr != nil {
		attempt.Status = domain.PaymentAttemptFailed
		attempt.FailureReason = chargeErr.Error()
	} else {
		attempt.GatewayOrderID = charge.GatewayOrderID
		attempt.Payload = charge.Raw
	}

	err := s.unitOfWork.RunInTx(ctx, func(ctx context.Context, tx repositories.Registry) error {
		locked, err := tx.Orders().LockByID(ctx, order.ID)
		if err != nil {
			return mapRepositoryError(err, nil)
		}
		prior, err := tx.Payments().CountByOrder(ctx, order.ID)
		if err != nil {
			return mapRepositoryError(err, nil)
		}
		attempt.AttemptNumber = prior + 1
		if err := tx.Payments().Insert(ctx, attempt); err != nil {
			return mapRepositoryError(err, nil)
		}
		if chargeErr != nil {
			return nil
		}
		locked.GatewayOrderID = charge.GatewayOrderID
		locked.UpdatedAt = now
		if err := tx.Orders().Update(ctx, locked); err != nil {
			return mapRepositoryError(err, nil)
		}
		return nil
	})
	if err != nil {
		return payments.Charge{}, err
	}

	if chargeErr != nil {
		s.logger(ctx, "payment.charge.failed", map[string]any{
			"order":       order.ID,
			"transaction": txnID,
			"attempt":     attempt.AttemptNumber,
			"error":       chargeErr.Error(),
		})
		s.publish(ctx, NotificationEvent{
			Type:        EventPaymentFailed,
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			CustomerID:  order.CustomerID,
			OccurredAt:  now,
			Metadata:    map[string]any{"transactionId": txnID, "attempt": attempt.AttemptNumber},
		})
		return payments.Charge{}, fmt.Errorf("%w: %v", ErrPaymentGateway, chargeErr)
	}

	s.logger(ctx, "payment.charge.created", map[string]any{
		"order":        order.ID,
		"transaction":  txnID,
		"attempt":      attempt.AttemptNumber,
		"provider":     charge.Provider,
		"gatewayOrder": charge.GatewayOrderID,
	})
	return charge, nil
}

func (s *paymentService) RetryCharge(ctx context.Context, cmd RetryChargeCommand) (CreateOrderResult, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return CreateOrderResult{}, fmt.Errorf("%w: order id is required", ErrInvalidInput)
	}
	order, err := s.repos.Orders().FindByID(ctx, orderID)
	if err != nil {
		return CreateOrderResult{}, mapRepositoryError(err, nil)
	}
	if !ownedBy(order, strings.TrimSpace(cmd.CustomerID)) {
		return CreateOrderResult{}, fmt.Errorf("%w: %s", ErrNotFound, orderID)
	}
	if order.IsPaid || order.Status != domain.OrderStatusPending {
		return CreateOrderResult{}, fmt.Errorf("%w: only unpaid pending orders can be charged again", ErrInvalidTransition)
	}

	charge, err := s.CreateCharge(ctx, order)
	if err != nil {
		return CreateOrderResult{Order: order}, err
	}
	order.GatewayOrderID = charge.GatewayOrderID
	return CreateOrderResult{Order: order, OrderDetail: &charge}, nil
}

// ConfirmPayment verifies the checkout result with the gateway and marks the order paid.
// Confirming an order that is already paid returns it unchanged.
func (s *paymentService) ConfirmPayment(ctx context.Context, cmd ConfirmPaymentCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrInvalidInput)
	}
	order, err := s.repos.Orders().FindByID(ctx, orderID)
	if err != nil {
		return Order{}, mapRepositoryError(err, nil)
	}
	if !ownedBy(order, strings.TrimSpace(cmd.CustomerID)) {
		return Order{}, fmt.Errorf("%w: %s", ErrNotFound, orderID)
	}
	if order.IsPaid {
		return order, nil
	}
	if order.Status != domain.OrderStatusPending {
		return Order{}, fmt.Errorf("%w: order in status %s cannot be paid", ErrInvalidTransition, order.Status)
	}
	if order.GatewayOrderID == "" {
		return Order{}, fmt.Errorf("%w: order has no gateway order", ErrInvalidInput)
	}

	details, err := s.gateway.ConfirmPayment(ctx, paymentContext(order), payments.ConfirmRequest{
		GatewayOrderID:   order.GatewayOrderID,
		GatewayPaymentID: strings.TrimSpace(cmd.GatewayPaymentID),
		Signature:        strings.TrimSpace(cmd.Signature),
	})
	if err != nil {
		if errors.Is(err, payments.ErrSignatureMismatch) {
			return Order{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}
		return Order{}, fmt.Errorf("%w: %v", ErrPaymentGateway, err)
	}
	if details.Status != payments.StatusSucceeded {
		reason := fmt.Sprintf("gateway status %s", details.Status)
		if err := s.markFailed(ctx, order.ID, details.GatewayOrderID, reason); err != nil {
			return Order{}, err
		}
		return Order{}, fmt.Errorf("%w: payment not captured (%s)", ErrPaymentGateway, details.Status)
	}
	return s.markPaid(ctx, order.ID, details)
}

func (s *paymentService) markPaid(ctx context.Context, orderID string, details payments.PaymentDetails) (Order, error) {
	var (
		order    Order
		prev     OrderStatus
		changed  bool
		orphaned bool
	)
	err := s.unitOfWork.RunInTx(ctx, func(ctx context.Context, tx repositories.Registry) error {
		var err error
		order, err = tx.Orders().LockByID(ctx, orderID)
		if err != nil {
			return mapRepositoryError(err, nil)
		}
		if order.IsPaid {
			return nil
		}
		now := s.now()
		if err := s.recordCapture(ctx, tx, orderID, details, now); err != nil {
			return err
		}
		if order.Status != domain.OrderStatusPending && order.Status != domain.OrderStatusConfirmed {
			orphaned = true
			return nil
		}
		order.IsPaid = true
		order.PaymentStatus = domain.PaymentStatusSuccess
		order.PaidAt = &now
		order.GatewayPaymentID = details.GatewayPaymentID

		changed = true
		if order.Status == domain.OrderStatusPending {
			prev, err = s.advance(ctx, tx, &order, domain.OrderStatusConfirmed, "payment captured")
			return err
		}
		order.UpdatedAt = now
		return mapRepositoryError(tx.Orders().Update(ctx, order), nil)
	})
	if err != nil {
		return Order{}, err
	}
	if orphaned {
		s.refundUnmatchedCapture(ctx, order, details)
		return Order{}, fmt.Errorf("%w: order %s was %s when payment %s was captured",
			ErrInvalidTransition, order.OrderNumber, order.Status, details.GatewayPaymentID)
	}
	if !changed {
		return order, nil
	}

	if details.Amount > 0 && details.Amount != order.Amounts.Final {
		s.logger(ctx, "payment.amount.mismatch", map[string]any{
			"order":    order.ID,
			"expected": order.Amounts.Final,
			"captured": details.Amount,
			"currency": details.Currency,
		})
	}
	s.publish(ctx, NotificationEvent{
		Type:          EventPaymentSucceeded,
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		CustomerID:    order.CustomerID,
		CurrentStatus: string(order.Status),
		OccurredAt:    s.now(),
		Metadata: map[string]any{
			"provider":         details.Provider,
			"gatewayPaymentId": details.GatewayPaymentID,
		},
	})
	if prev != "" && prev != order.Status {
		s.statusChanged(ctx, order, prev, nil)
	}
	return order, nil
}

func (s *paymentService) recordCapture(ctx context.Context, tx repositories.Registry, orderID string, details payments.PaymentDetails, now time.Time) error {
	attempts, err := tx.Payments().ListByOrder(ctx, orderID)
	if err != nil {
		return mapRepositoryError(err, nil)
	}
	attempt, ok := matchAttempt(attempts, details.GatewayOrderID)
	if !ok {
		return nil
	}
	attempt.Status = domain.PaymentAttemptSuccess
	attempt.GatewayPaymentID = details.GatewayPaymentID
	attempt.FailureReason = ""
	attempt.Payload = mergePayload(attempt.Payload, details.Raw)
	attempt.UpdatedAt = now
	return mapRepositoryError(tx.Payments().Update(ctx, attempt), nil)
}

// refundUnmatchedCapture returns money captured for an order that was already closed, typically
// one the pending sweep cancelled while the customer was still paying. The order stays closed.
func (s *paymentService) refundUnmatchedCapture(ctx context.Context, order Order, details payments.PaymentDetails) {
	amount := details.Amount
	if amount <= 0 {
		amount = order.Amounts.Final
	}
	fields := map[string]any{
		"order":            order.ID,
		"status":           string(order.Status),
		"gatewayPaymentId": details.GatewayPaymentID,
		"amount":           amount,
	}
	s.logger(ctx, "payment.unmatched.captured", fields)

	metadata := map[string]any{
		"provider":         details.Provider,
		"gatewayPaymentId": details.GatewayPaymentID,
		"amount":           amount,
		"refunded":         false,
	}
	result, err := s.gateway.Refund(ctx, paymentContext(order), payments.RefundRequest{
		GatewayPaymentID: details.GatewayPaymentID,
		Amount:           amount,
		Currency:         order.Currency,
		Reason:           "order closed before payment was captured",
		OrderNumber:      order.OrderNumber,
	})
	if err != nil {
		fields["error"] = err.Error()
		s.logger(ctx, "payment.unmatched.refund_failed", fields)
	} else {
		metadata["refunded"] = true
		metadata["refundId"] = result.RefundID
		err = s.unitOfWork.RunInTx(ctx, func(ctx context.Context, tx repositories.Registry) error {
			_, err := tx.Payments().MarkRefunded(ctx, order.ID, s.now())
			return mapRepositoryError(err, nil)
		})
		if err != nil {
			fields["error"] = err.Error()
			s.logger(ctx, "payment.unmatched.record_failed", fields)
		}
	}
	s.publish(ctx, NotificationEvent{
		Type:          EventPaymentUnmatched,
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		CustomerID:    order.CustomerID,
		CurrentStatus: string(order.Status),
		OccurredAt:    s.now(),
		Metadata:      metadata,
	})
}

func (s *paymentService) markFailed(ctx context.Context, orderID, gatewayOrderID, reason string) error {
	return s.unitOfWork.RunInTx(ctx, func(ctx context.Context, tx repositories.Registry) error {
		order, err := tx.Orders().LockByID(ctx, orderID)
		if err != nil {
			return mapRepositoryError(err, nil)
		}
		if order.IsPaid {
			return nil
		}
		now := s.now()
		attempts, err := tx.Payments().ListByOrder(ctx, orderID)
		if err != nil {
			return mapRepositoryError(err, nil)
		}
		if attempt, ok := matchAttempt(attempts, gatewayOrderID); ok && attempt.Status != domain.PaymentAttemptSuccess {
			attempt.Status = domain.PaymentAttemptFailed
			attempt.FailureReason = reason
			attempt.UpdatedAt = now
			if err := tx.Payments().Update(ctx, attempt); err != nil {
				return mapRepositoryError(err, nil)
			}
		}
		order.PaymentStatus = domain.PaymentStatusFailed
		order.UpdatedAt = now
		return mapRepositoryError(tx.Orders().Update(ctx, order), nil)
	})
}

// matchAttempt returns the latest attempt for the gateway order, or the latest attempt overall.
func matchAttempt(attempts []domain.PaymentHistory, gatewayOrderID string) (domain.PaymentHistory, bool) {
	for i := len(attempts) - 1; i >= 0; i-- {
		if gatewayOrderID != "" && attempts[i].GatewayOrderID == gatewayOrderID {
			return attempts[i], true
		}
	}
	if len(attempts) == 0 {
		return domain.PaymentHistory{}, false
	}
	return attempts[len(attempts)-1], true
}

func mergePayload(base, extra map[string]any) map[string]any {
	if len(extra) == 0 {
		return base
	}
	out := make(map[string]any, len(base)+1)
	for k, v := range base {
		out[k] = v
	}
	out["confirmation"] = extra
	return out
}

type razorpayWebhookEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID               string `json:"id"`
				OrderID          string `json:"order_id"`
				Status           string `json:"status"`
				Amount           int64  `json:"amount"`
				Currency         string `json:"currency"`
				ErrorDescription string `json:"error_description"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// HandleRazorpayWebhook applies payment.captured, order.paid and payment.failed events. Events for
// unknown orders are acknowledged and logged.
func (s *paymentService) HandleRazorpayWebhook(ctx context.Context, body []byte, signature string) error {
	if s.webhook == nil {
		return errors.New("payment service: razorpay webhook verifier not configured")
	}
	if err := s.webhook.VerifyWebhook(body, signature); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	var event razorpayWebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("%w: malformed webhook body", ErrInvalidInput)
	}
	entity := event.Payload.Payment.Entity

	switch event.Event {
	case "payment.captured", "order.paid", "payment.failed":
	default:
		s.logger(ctx, "payment.webhook.ignored", map[string]any{"event": event.Event})
		return nil
	}
	if entity.OrderID == "" {
		return fmt.Errorf("%w: webhook payment has no order id", ErrInvalidInput)
	}
	order, err := s.repos.Orders().FindByGatewayOrderID(ctx, entity.OrderID)
	if err != nil {
		if isRepoNotFound(err) {
			s.logger(ctx, "payment.webhook.unknown_order", map[string]any{"event": event.Event, "gatewayOrder": entity.OrderID})
			return nil
		}
		return mapRepositoryError(err, nil)
	}

	if event.Event == "payment.failed" {
		reason := entity.ErrorDescription
		if reason == "" {
			reason = "payment failed"
		}
		return s.markFailed(ctx, order.ID, entity.OrderID, reason)
	}
	_, err = s.markPaid(ctx, order.ID, payments.PaymentDetails{
		Provider:         payments.ProviderRazorpay,
		GatewayOrderID:   entity.OrderID,
		GatewayPaymentID: entity.ID,
		Status:           payments.StatusSucceeded,
		Amount:           entity.Amount,
		Currency:         entity.Currency,
		Raw:              map[string]any{"event": event.Event, "status": entity.Status},
	})
	if errors.Is(err, ErrInvalidTransition) {
		// closed order; the capture was refunded and an unmatched event published
		return nil
	}
	return err
}
