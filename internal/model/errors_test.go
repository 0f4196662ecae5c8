package model

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want Kind
	}{
		{nil, ""},
		{fmt.Errorf("find user u1: %w", ErrUserNotFound), KindNotFound},
		{ErrTradeNotFound, KindNotFound},
		{ErrNoOpposingPurchaseBid, KindValidation},
		{ErrNoOpposingSaleBid, KindValidation},
		{ErrSizeOutOfRange, KindValidation},
		{fmt.Errorf("claim t1: %w", ErrAlreadyMatched), KindConflict},
		{ErrInvalidStateTransition, KindConflict},
		{ErrInsufficientPoints, KindFunds},
		{Unavailable("lock trade", errors.New("lock timeout")), KindUnavailable},
		{errors.New("boom"), KindInternal},
	}

	for _, tt := range tests {
		if got := KindOf(tt.err); got != tt.want {
			t.Errorf("KindOf(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestNoOpposingBidVariantsShareSentinel(t *testing.T) {
	if !errors.Is(ErrNoOpposingPurchaseBid, ErrNoOpposingBid) {
		t.Error("purchase variant should wrap ErrNoOpposingBid")
	}
	if !errors.Is(ErrNoOpposingSaleBid, ErrNoOpposingBid) {
		t.Error("sale variant should wrap ErrNoOpposingBid")
	}
	if errors.Is(ErrNoOpposingSaleBid, ErrNoOpposingPurchaseBid) {
		t.Error("variants should be distinguishable")
	}
}

func TestUnavailableKeepsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Unavailable("commit", cause)

	if !Retryable(err) {
		t.Error("expected retryable")
	}
	if !errors.Is(err, cause) {
		t.Error("expected cause to be preserved")
	}
	if Retryable(ErrAlreadyMatched) {
		t.Error("business rejections must not be retryable")
	}
}

func TestCode(t *testing.T) {
	if got := Code(fmt.Errorf("x: %w", ErrInsufficientPoints)); got != "insufficient_points" {
		t.Errorf("unexpected code %q", got)
	}
	if got := Code(errors.New("boom")); got != "internal_error" {
		t.Errorf("unexpected code %q", got)
	}
}

func TestTradeSide(t *testing.T) {
	sale := &Trade{SellerID: "s", Status: StatusPreOffer}
	if sale.Side() != SideSale || sale.Bound() || !sale.Open() {
		t.Errorf("unexpected sale bid state: side=%s", sale.Side())
	}
	purchase := &Trade{BuyerID: "b", Status: StatusPreOffer}
	if purchase.Side() != SidePurchase {
		t.Errorf("expected purchase side, got %s", purchase.Side())
	}
	if SideSale.Opposite() != SidePurchase || SidePurchase.Opposite() != SideSale {
		t.Error("Opposite should swap sides")
	}
}
