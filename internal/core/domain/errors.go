package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidState      = errors.New("invalid state")
	ErrConflict          = errors.New("optimistic lock conflict")
	ErrDuplicateRequest  = errors.New("duplicate request")
)

// ValidationError reports a missing or malformed input field.
type ValidationError struct {
	Field   string
	Message string
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NotFoundError names the entity kind and identifier that could not be found.
type NotFoundError struct {
	Entity string
	ID     string
}

func NewNotFoundError(entity, id string) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// StockError carries the product that could not cover the requested quantity.
type StockError struct {
	ProductID   string
	ProductName string
	Requested   int
	Available   int
}

func (e *StockError) Error() string {
	name := e.ProductName
	if name == "" {
		name = e.ProductID
	}
	return fmt.Sprintf("insufficient stock for product: %s (requested %d, available %d)",
		name, e.Requested, e.Available)
}

func (e *StockError) Unwrap() error { return ErrInsufficientStock }

// PartialConversionError is returned when an order was persisted but one or
// more stock decrements failed. Every line is attempted, applied decrements are
// not reverted and the source cart is still consumed.
type PartialConversionError struct {
	Order   *Order
	Applied []OrderItem
	Failed  []OrderItem
	Err     error
}

func (e *PartialConversionError) Error() string {
	ids := make([]string, len(e.Failed))
	for i, item := range e.Failed {
		ids[i] = item.ProductID
	}
	return fmt.Sprintf("order %s created but stock adjustment failed for %d of %d lines (%s): %v",
		e.Order.ID, len(e.Failed), len(e.Order.Items), strings.Join(ids, ", "), e.Err)
}

func (e *PartialConversionError) Unwrap() error { return e.Err }
