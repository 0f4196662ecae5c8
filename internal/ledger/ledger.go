// Package ledger owns point balances. It is the only writer of account
// balances, and every balance change is paired with an immutable
// PointMovement in the same unit of work.
//
// Ledger operations run inside the caller's store.Tx and never retry;
// retrying a conflicted unit of work is the caller's job.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kicksmarket/bid-engine/internal/metrics"
	"github.com/kicksmarket/bid-engine/internal/model"
	"github.com/kicksmarket/bid-engine/internal/store"
)

// Ledger moves points between a user's balance and the outside world.
type Ledger struct {
	now func() time.Time
}

// New creates a ledger.
func New() *Ledger {
	return &Ledger{now: func() time.Time { return time.Now().UTC() }}
}

// EnsureFunds locks the account and checks that it covers amount without
// changing it.
func (l *Ledger) EnsureFunds(ctx context.Context, tx store.Tx, userID string, amount int64) error {
	acct, err := tx.GetAccountForUpdate(ctx, userID)
	if err != nil {
		return err
	}
	if acct.Balance < amount {
		return fmt.Errorf("%w: balance %d, need %d", model.ErrInsufficientPoints, acct.Balance, amount)
	}
	return nil
}

// Debit removes amount from the user's balance and records a negative
// movement. It fails with ErrInsufficientPoints, recording nothing, when the
// balance does not cover amount.
func (l *Ledger) Debit(ctx context.Context, tx store.Tx, userID string, amount int64, div model.Division, tradeID string) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("%w: debit amount must be positive, got %d", model.ErrInvalidAmount, amount)
	}
	acct, err := tx.GetAccountForUpdate(ctx, userID)
	if err != nil {
		return 0, err
	}
	if acct.Balance < amount {
		return 0, fmt.Errorf("%w: balance %d, need %d", model.ErrInsufficientPoints, acct.Balance, amount)
	}
	return l.apply(ctx, tx, acct, -amount, div, tradeID)
}

// Credit adds amount to the user's balance and records a positive movement.
func (l *Ledger) Credit(ctx context.Context, tx store.Tx, userID string, amount int64, div model.Division, tradeID string) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("%w: credit amount must be positive, got %d", model.ErrInvalidAmount, amount)
	}
	acct, err := tx.GetAccountForUpdate(ctx, userID)
	if err != nil {
		return 0, err
	}
	return l.apply(ctx, tx, acct, amount, div, tradeID)
}

func (l *Ledger) apply(ctx context.Context, tx store.Tx, acct *model.Account, delta int64, div model.Division, tradeID string) (int64, error) {
	balance := acct.Balance + delta
	if err := tx.UpdateBalance(ctx, acct.UserID, balance); err != nil {
		return 0, err
	}
	m := &model.PointMovement{
		ID:        uuid.New().String(),
		UserID:    acct.UserID,
		Amount:    delta,
		Division:  div,
		TradeID:   tradeID,
		CreatedAt: l.now(),
	}
	if err := tx.AppendMovement(ctx, m); err != nil {
		return 0, err
	}

	metrics.PointMovements.WithLabelValues(string(div)).Inc()
	return balance, nil
}
