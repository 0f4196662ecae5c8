package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kicksmarket/bid-engine/internal/model"
	"github.com/kicksmarket/bid-engine/internal/store"
)

// Points exposes account-level point operations that run in their own unit
// of work: charging, withdrawing, and auditing a balance.
type Points struct {
	store  store.Store
	ledger *Ledger
}

// NewPoints creates a point service.
func NewPoints(st store.Store, l *Ledger) *Points {
	return &Points{store: st, ledger: l}
}

// Reconciliation is the result of auditing one account.
type Reconciliation struct {
	UserID        string `json:"user_id"`
	Balance       int64  `json:"balance"`
	MovementSum   int64  `json:"movement_sum"`
	MovementCount int    `json:"movement_count"`
	Balanced      bool   `json:"balanced"`
}

// OpenAccount creates a zero-balance account for a newly registered user.
// Opening an existing account is a no-op.
func (p *Points) OpenAccount(ctx context.Context, userID string) (int64, error) {
	if err := p.store.CreateAccount(ctx, userID); err != nil {
		return 0, err
	}
	return p.Balance(ctx, userID)
}

// Charge tops up a user's balance.
func (p *Points) Charge(ctx context.Context, userID string, amount int64) (int64, error) {
	var balance int64
	err := p.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		balance, err = p.ledger.Credit(ctx, tx, userID, amount, model.DivisionCharge, "")
		return err
	})
	if err != nil {
		return 0, err
	}
	slog.Info("points charged", "user", userID, "amount", amount, "balance", balance)
	return balance, nil
}

// Withdraw pays points out of a user's balance.
func (p *Points) Withdraw(ctx context.Context, userID string, amount int64) (int64, error) {
	var balance int64
	err := p.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		balance, err = p.ledger.Debit(ctx, tx, userID, amount, model.DivisionWithdraw, "")
		return err
	})
	if err != nil {
		return 0, err
	}
	slog.Info("points withdrawn", "user", userID, "amount", amount, "balance", balance)
	return balance, nil
}

// Balance returns the current running total.
func (p *Points) Balance(ctx context.Context, userID string) (int64, error) {
	acct, err := p.store.GetAccount(ctx, userID)
	if err != nil {
		return 0, err
	}
	return acct.Balance, nil
}

// History returns the user's movements in recording order.
func (p *Points) History(ctx context.Context, userID string) ([]model.PointMovement, error) {
	if _, err := p.store.GetAccount(ctx, userID); err != nil {
		return nil, err
	}
	movements, err := p.store.ListMovements(ctx, userID)
	if err != nil {
		return nil, err
	}
	if movements == nil {
		movements = []model.PointMovement{}
	}
	return movements, nil
}

// Reconcile checks that the balance equals the sum of the user's movements.
// A mismatch is returned together with ErrLedgerMismatch.
//
// The balance and history are read without a common snapshot, so a movement
// committed between the two reads can cause a transient false mismatch.
func (p *Points) Reconcile(ctx context.Context, userID string) (*Reconciliation, error) {
	acct, err := p.store.GetAccount(ctx, userID)
	if err != nil {
		return nil, err
	}
	movements, err := p.store.ListMovements(ctx, userID)
	if err != nil {
		return nil, err
	}

	rec := &Reconciliation{
		UserID:        userID,
		Balance:       acct.Balance,
		MovementCount: len(movements),
	}
	for _, m := range movements {
		rec.MovementSum += m.Amount
	}
	rec.Balanced = rec.MovementSum == rec.Balance

	if !rec.Balanced {
		slog.Error("ledger mismatch", "user", userID, "balance", rec.Balance, "movement_sum", rec.MovementSum)
		return rec, fmt.Errorf("%w: user %s balance %d, movements %d",
			model.ErrLedgerMismatch, userID, rec.Balance, rec.MovementSum)
	}
	return rec, nil
}
