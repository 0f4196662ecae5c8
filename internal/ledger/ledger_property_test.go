package ledger

import (
	"context"
	"errors"
	"testing"

	"pgregory.net/rapid"

	"github.com/kicksmarket/bid-engine/internal/model"
	"github.com/kicksmarket/bid-engine/internal/store"
)

// Balance always equals the sum of recorded movements and never goes
// negative, whatever sequence of operations runs.
func TestProperty_LedgerConservation(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ms := store.NewMemoryStore()
		ms.AddUser(&model.User{ID: "u1"})
		l := New()
		points := NewPoints(ms, l)
		ctx := context.Background()

		divisions := []model.Division{
			model.DivisionCharge, model.DivisionWithdraw, model.DivisionPurchaseDeduction,
			model.DivisionPurchaseReturn, model.DivisionSaleRevenue,
		}

		var expected int64
		n := rapid.IntRange(1, 40).Draw(t, "ops")
		for i := 0; i < n; i++ {
			amount := rapid.Int64Range(1, 500).Draw(t, "amount")
			div := rapid.SampledFrom(divisions).Draw(t, "division")
			debit := rapid.Bool().Draw(t, "debit")
			failAfter := rapid.Bool().Draw(t, "rollback")

			err := ms.WithTx(ctx, func(tx store.Tx) error {
				var err error
				if debit {
					_, err = l.Debit(ctx, tx, "u1", amount, div, "")
				} else {
					_, err = l.Credit(ctx, tx, "u1", amount, div, "")
				}
				if err == nil && failAfter {
					return errRollback
				}
				return err
			})

			switch {
			case err == nil && debit:
				expected -= amount
			case err == nil:
				expected += amount
			case errors.Is(err, model.ErrInsufficientPoints):
				if !debit || amount <= expected {
					t.Fatalf("unexpected ErrInsufficientPoints: debit=%v amount=%d balance=%d", debit, amount, expected)
				}
			case errors.Is(err, errRollback):
			default:
				t.Fatalf("unexpected error: %v", err)
			}

			rec, err := points.Reconcile(ctx, "u1")
			if err != nil {
				t.Fatalf("reconcile after op %d: %v", i, err)
			}
			if rec.Balance != expected {
				t.Fatalf("balance %d, expected %d", rec.Balance, expected)
			}
			if rec.Balance < 0 {
				t.Fatalf("negative balance %d", rec.Balance)
			}
		}
	})
}

var errRollback = errors.New("rollback")
