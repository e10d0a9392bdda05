package service

import (
	"errors"
	"fmt"

	"github.com/cskovec22/test-sarafan/internal/domain"
)

// Expected cart failures. They are returned to the caller as is and are
// never retried.
var (
	ErrProductNotFound      = errors.New("product not found")
	ErrProductNotInCart     = errors.New("product is not in the cart")
	ErrCartEmpty            = errors.New("shopping cart is empty")
	ErrQuantityExceeded     = errors.New("maximum product quantity exceeded")
	ErrInsufficientQuantity = errors.New("not enough product in the cart")
	ErrInvalidAmount        = errors.New("invalid amount")
)

// ErrTransient marks store or catalog failures the caller may retry.
var ErrTransient = errors.New("temporarily unavailable")

// QuantityError reports a rejected add or remove together with the amount
// requested and the quantity currently in the cart.
type QuantityError struct {
	Kind      error
	Requested int
	InCart    int
}

func (e *QuantityError) Error() string {
	if errors.Is(e.Kind, ErrQuantityExceeded) {
		return fmt.Sprintf("%s: cannot add %d, maximum is %d, in cart %d",
			e.Kind, e.Requested, domain.MaxAmountProduct, e.InCart)
	}
	return fmt.Sprintf("%s: cannot remove %d, in cart %d", e.Kind, e.Requested, e.InCart)
}

func (e *QuantityError) Is(target error) bool {
	return target == e.Kind
}

type AmountError struct {
	Amount int
}

func (e *AmountError) Error() string {
	return fmt.Sprintf("%s %d: must be between %d and %d",
		ErrInvalidAmount, e.Amount, domain.MinAmountProduct, domain.MaxAmountProduct)
}

func (e *AmountError) Is(target error) bool {
	return target == ErrInvalidAmount
}

func transient(err error) error {
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// IsCartFailure reports whether err is one of the expected cart failures
// rather than an infrastructure problem.
func IsCartFailure(err error) bool {
	for _, kind := range []error{
		ErrProductNotFound,
		ErrProductNotInCart,
		ErrCartEmpty,
		ErrQuantityExceeded,
		ErrInsufficientQuantity,
		ErrInvalidAmount,
	} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}
