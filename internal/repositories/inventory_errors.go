package repositories

import (
	"errors"
	"fmt"
)

// InventoryErrorCode enumerates repository error causes for stock mutations.
type InventoryErrorCode string

const (
	// InventoryErrorInsufficientStock indicates the adjustment would take stock below zero.
	InventoryErrorInsufficientStock InventoryErrorCode = "inventory_insufficient_stock"
	// InventoryErrorVariantNotFound indicates the variant row is missing.
	InventoryErrorVariantNotFound InventoryErrorCode = "inventory_variant_not_found"
)

// InventoryError wraps stock failures with the variant and level observed by the store.
type InventoryError struct {
	Op        string
	Code      InventoryErrorCode
	VariantID string
	Available int
	Err       error
}

// Error implements the error interface.
func (e *InventoryError) Error() string {
	if e == nil {
		return ""
	}
	msg := fmt.Sprintf("%s: variant %s (available %d)", e.Code, e.VariantID, e.Available)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	return msg
}

// Unwrap exposes the underlying error, if any.
func (e *InventoryError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// AsInventoryError extracts an InventoryError from the chain.
func AsInventoryError(err error) (*InventoryError, bool) {
	var invErr *InventoryError
	if errors.As(err, &invErr) {
		return invErr, true
	}
	return nil, false
}
