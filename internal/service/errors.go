package service

import (
	"errors"
	"fmt"
	"strings"
)

// Checkout errors
var (
	ErrEmptyCart      = errors.New("cart is empty")
	ErrCheckoutFailed = errors.New("checkout failed")
)

// Webhook errors
var (
	ErrMissingSignature    = errors.New("missing webhook signature")
	ErrInvalidSignature    = errors.New("invalid webhook signature")
	ErrMissingCartMetadata = errors.New("missing cart metadata")
	ErrOrderLookup         = errors.New("order lookup failed")
	ErrOrderInsert         = errors.New("order insert failed")
)

// InvalidQuantityError names cart lines whose quantity is below one
type InvalidQuantityError struct {
	IDs []string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("invalid quantity for: %s", strings.Join(e.IDs, ", "))
}

// InvalidItemsError names every requested id missing from the catalog
type InvalidItemsError struct {
	IDs []string
}

func (e *InvalidItemsError) Error() string {
	return fmt.Sprintf("invalid sticker ids: %s", strings.Join(e.IDs, ", "))
}

// UnavailableItemsError names every requested sticker that is unpublished
// or not approved
type UnavailableItemsError struct {
	Titles []string
}

func (e *UnavailableItemsError) Error() string {
	return fmt.Sprintf("items no longer available: %s", strings.Join(e.Titles, ", "))
}

// upstreamError matches a public sentinel with errors.Is while keeping the
// internal cause for logs.
type upstreamError struct {
	public error
	cause  error
}

func (e *upstreamError) Error() string { return e.public.Error() + ": " + e.cause.Error() }

func (e *upstreamError) Is(target error) bool { return target == e.public }

func (e *upstreamError) Unwrap() error { return e.cause }

func upstream(public, cause error) error {
	return &upstreamError{public: public, cause: cause}
}
