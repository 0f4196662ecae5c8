package model

import (
	"errors"
	"fmt"
)

// Sentinel errors. Callers wrap them with %w for context; the HTTP layer maps
// them to status codes through KindOf.
var (
	ErrUserNotFound    = errors.New("user_not_found")
	ErrAddressNotFound = errors.New("address_not_found")
	ErrProductNotFound = errors.New("product_not_found")
	ErrTradeNotFound   = errors.New("trade_not_found")
	ErrAccountNotFound = errors.New("account_not_found")

	ErrSizeOutOfRange           = errors.New("size_out_of_range")
	ErrSalePriceBelowMarket     = errors.New("sale_price_below_market")
	ErrPurchasePriceAboveMarket = errors.New("purchase_price_above_market")
	ErrNoOpposingBid            = errors.New("no_opposing_bid")
	ErrNoOpposingPurchaseBid    = fmt.Errorf("%w: no open purchase bid", ErrNoOpposingBid)
	ErrNoOpposingSaleBid        = fmt.Errorf("%w: no open sale bid", ErrNoOpposingBid)
	ErrInvalidAmount            = errors.New("invalid_amount")

	ErrAlreadyMatched         = errors.New("already_matched")
	ErrInvalidStateTransition = errors.New("invalid_state_transition")

	ErrInsufficientPoints = errors.New("insufficient_points")

	// ErrUnavailable marks transient persistence faults (lock wait timeout,
	// serialization failure, lost connection). It is the only retryable class.
	ErrUnavailable = errors.New("unavailable")

	// ErrLedgerMismatch is reported by reconciliation when a balance drifts
	// from the sum of its movements.
	ErrLedgerMismatch = errors.New("ledger_mismatch")
)

// Kind is the coarse classification of an error.
type Kind string

const (
	KindNotFound    Kind = "not_found"
	KindValidation  Kind = "validation"
	KindConflict    Kind = "conflict"
	KindFunds       Kind = "funds"
	KindUnavailable Kind = "unavailable"
	KindInternal    Kind = "internal"
)

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrUserNotFound, KindNotFound},
	{ErrAddressNotFound, KindNotFound},
	{ErrProductNotFound, KindNotFound},
	{ErrTradeNotFound, KindNotFound},
	{ErrAccountNotFound, KindNotFound},
	{ErrSizeOutOfRange, KindValidation},
	{ErrSalePriceBelowMarket, KindValidation},
	{ErrPurchasePriceAboveMarket, KindValidation},
	{ErrNoOpposingBid, KindValidation},
	{ErrInvalidAmount, KindValidation},
	{ErrAlreadyMatched, KindConflict},
	{ErrInvalidStateTransition, KindConflict},
	{ErrInsufficientPoints, KindFunds},
	{ErrUnavailable, KindUnavailable},
}

// KindOf classifies err. Unknown errors are KindInternal; nil has no kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}

// Code returns the sentinel code of err for client responses.
func Code(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.err.Error()
		}
	}
	return "internal_error"
}

// Retryable reports whether the whole operation may be attempted again.
func Retryable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// Unavailable wraps a transient persistence fault so that it classifies as
// ErrUnavailable while keeping the cause.
func Unavailable(op string, cause error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, cause)
}
