package services

import (
	"errors"
	"fmt"

	"github.com/Gautam0104/jupi-diamond-sub005/internal/repositories"
)

// ErrorKind groups service errors by how a transport should surface them.
type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindNotFound   ErrorKind = "not_found"
	KindConflict   ErrorKind = "conflict"
	KindGateway    ErrorKind = "gateway"
	KindInternal   ErrorKind = "internal"
)

// Error is a member of the closed set of failures returned by the order services. Call sites
// wrap the sentinels with fmt.Errorf("%w: ...") to add detail.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func newError(kind ErrorKind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

var (
	ErrInvalidInput          = newError(KindValidation, "invalid_input", "order: invalid input")
	ErrPriceNotSet           = newError(KindValidation, "price_not_set", "order: product variant has no price")
	ErrUnsupportedCurrency   = newError(KindValidation, "unsupported_currency", "order: unsupported currency")
	ErrCouponNotApplicable   = newError(KindValidation, "coupon_not_applicable", "order: coupon not applicable")
	ErrGiftCardNotApplicable = newError(KindValidation, "gift_card_not_applicable", "order: gift card not applicable")
	ErrNotPaid               = newError(KindValidation, "not_paid", "order: order has not been paid")
	ErrAmountExceedsPaid     = newError(KindValidation, "amount_exceeds_paid", "order: refund amount exceeds paid amount")
	ErrInvalidSignature      = newError(KindValidation, "invalid_signature", "payment: signature verification failed")
	ErrQuantityLimit         = newError(KindValidation, "quantity_limit", "cart: quantity exceeds limit")

	ErrNotFound         = newError(KindNotFound, "not_found", "order: not found")
	ErrAddressNotFound  = newError(KindNotFound, "address_not_found", "order: address not found")
	ErrVariantNotFound  = newError(KindNotFound, "variant_not_found", "order: product variant not found")
	ErrCouponNotFound   = newError(KindNotFound, "coupon_not_found", "order: coupon not found")
	ErrGiftCardNotFound = newError(KindNotFound, "gift_card_not_found", "order: gift card not found")

	ErrInsufficientStock      = newError(KindConflict, "insufficient_stock", "order: insufficient stock")
	ErrAmountMismatch         = newError(KindConflict, "amount_mismatch", "order: amount does not match server calculation")
	ErrInvalidTransition      = newError(KindConflict, "invalid_transition", "order: invalid status transition")
	ErrReturnAlreadyRequested = newError(KindConflict, "return_already_requested", "order: return already requested")
	ErrCouponAlreadyUsed      = newError(KindConflict, "coupon_already_used", "order: coupon usage limit reached")
	ErrConflict               = newError(KindConflict, "conflict", "order: conflict")

	ErrPaymentGateway = newError(KindGateway, "payment_gateway_error", "payment: gateway request failed")

	ErrUnavailable = newError(KindInternal, "unavailable", "order: repository unavailable")
)

// StockError reports the variant that ran out and the quantities involved.
type StockError struct {
	VariantID string
	Requested int
	Available int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("%s: variant %s requested %d available %d", ErrInsufficientStock.Message, e.VariantID, e.Requested, e.Available)
}

// Unwrap lets errors.Is(err, ErrInsufficientStock) match.
func (e *StockError) Unwrap() error {
	return ErrInsufficientStock
}

// KindOf returns the kind of the first service Error in the chain, or KindInternal.
func KindOf(err error) ErrorKind {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr.Kind
	}
	return KindInternal
}

// CodeOf returns the machine readable code of the first service Error in the chain.
func CodeOf(err error) string {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr.Code
	}
	return "internal"
}

// mapRepositoryError folds repository failures into the service error set. notFound is used
// for missing rows so callers can distinguish orders from addresses or return requests.
func mapRepositoryError(err error, notFound *Error) error {
	if err == nil {
		return nil
	}
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return err
	}
	if invErr, ok := repositories.AsInventoryError(err); ok {
		switch invErr.Code {
		case repositories.InventoryErrorInsufficientStock:
			return &StockError{VariantID: invErr.VariantID, Available: invErr.Available}
		case repositories.InventoryErrorVariantNotFound:
			return fmt.Errorf("%w: %s", ErrVariantNotFound, invErr.VariantID)
		}
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			if notFound == nil {
				notFound = ErrNotFound
			}
			return fmt.Errorf("%w: %v", notFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	return err
}

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}
