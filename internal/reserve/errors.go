package reserve

import (
	"errors"
	"fmt"
)

// Error taxonomy. Handlers and callers branch on these with errors.Is; the
// engine never asks anyone to match on message text.
var (
	ErrValidation        = errors.New("invalid input")
	ErrNotFound          = errors.New("not found")
	ErrOutOfStock        = errors.New("out of stock")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrContention        = errors.New("write contention, retry")
	ErrCodeExhausted     = errors.New("pickup code allocation exhausted")

	// ErrNotAuthenticated is raised by the session layer in front of this
	// engine; it appears here only so every caller maps one taxonomy.
	ErrNotAuthenticated = errors.New("not authenticated")
)

// OutOfStockError names the first item that could not be satisfied.
type OutOfStockError struct {
	ProductID string
	Name      string
	Requested int
	Available int
}

func (e *OutOfStockError) Error() string {
	return fmt.Sprintf("out of stock: %s (%s) requested %d, available %d",
		e.Name, e.ProductID, e.Requested, e.Available)
}

func (e *OutOfStockError) Unwrap() error { return ErrOutOfStock }

// Retryable reports whether the caller may simply try again with the same
// input. Everything else needs a change of input or state first.
func Retryable(err error) bool {
	return errors.Is(err, ErrContention)
}
