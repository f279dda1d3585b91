package service

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyCart          = errors.New("cart is empty, nothing to checkout")
	ErrProductUnavailable = errors.New("product unavailable")
	ErrOutOfStock         = errors.New("product out of stock")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrInvalidQuantity    = errors.New("invalid quantity")

	ErrUnauthenticated  = errors.New("please sign in to checkout")
	ErrDeliveryInFlight = errors.New("another delivery for this payment is in progress")
)

// LineProblem is one user-correctable issue with a cart line.
type LineProblem struct {
	ProductID string
	Name      string
	Err       error
	Message   string
}

// ValidationError collects every problem found in a cart.
type ValidationError struct {
	Problems []LineProblem
}

func (e *ValidationError) Error() string {
	messages := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		messages[i] = p.Message
	}
	return strings.Join(messages, "; ")
}

func (e *ValidationError) Unwrap() []error {
	errs := make([]error, len(e.Problems))
	for i, p := range e.Problems {
		errs[i] = p.Err
	}
	return errs
}

// CheckoutError carries a message safe to show the buyer.
type CheckoutError struct {
	Message string
	Err     error
}

func (e *CheckoutError) Error() string {
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *CheckoutError) Unwrap() error {
	return e.Err
}

// TransientError marks a failure the provider should redeliver for.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

func transient(op string, err error) error {
	return &TransientError{Op: op, Err: err}
}

// IsTransient reports whether err should cause the provider to redeliver.
func IsTransient(err error) bool {
	var t *TransientError
	return errors.As(err, &t) || errors.Is(err, ErrDeliveryInFlight)
}
