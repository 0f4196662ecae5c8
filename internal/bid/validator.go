// Package bid implements bid admission: the price-crossing and size rules a
// new sale or purchase bid must pass before it can rest on the book.
//
// The validator is pure. Callers read the opposing best price inside the same
// transaction that later inserts the bid.
package bid

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/kicksmarket/bid-engine/internal/model"
)

// BestPrice is the extreme open price on the opposing side of the book:
// the highest purchase bid for a new sale, the lowest sale bid for a new purchase.
type BestPrice struct {
	Price int64
	Found bool
}

// Validator decides whether a new bid is admissible.
type Validator struct {
	// RequireOpposingBid rejects a bid when the opposing side of the book is
	// empty. When false, a first bid may stand alone.
	RequireOpposingBid bool
}

// NewValidator creates a validator.
func NewValidator(requireOpposingBid bool) *Validator {
	return &Validator{RequireOpposingBid: requireOpposingBid}
}

// Admit returns nil when the bid is accepted, or the rejection reason.
//
// Checks run in order: price sign, size range, opposing-bid presence, price crossing.
func (v *Validator) Admit(side model.BookSide, price int64, size decimal.Decimal, product *model.Product, best BestPrice) error {
	if price <= 0 {
		return fmt.Errorf("%w: price must be positive, got %d", model.ErrInvalidAmount, price)
	}
	if err := CheckSize(size, product); err != nil {
		return err
	}

	switch side {
	case model.SideSale:
		if !best.Found {
			if v.RequireOpposingBid {
				return model.ErrNoOpposingPurchaseBid
			}
			return nil
		}
		if price < best.Price {
			return fmt.Errorf("%w: %d < highest purchase %d", model.ErrSalePriceBelowMarket, price, best.Price)
		}
	case model.SidePurchase:
		if !best.Found {
			if v.RequireOpposingBid {
				return model.ErrNoOpposingSaleBid
			}
			return nil
		}
		if price > best.Price {
			return fmt.Errorf("%w: %d > lowest sale %d", model.ErrPurchasePriceAboveMarket, price, best.Price)
		}
	default:
		return fmt.Errorf("bid: unknown side %q", side)
	}
	return nil
}

// CheckSize verifies size lies in the product's [MinSize, MaxSize] range.
func CheckSize(size decimal.Decimal, product *model.Product) error {
	if size.LessThan(product.MinSize) || size.GreaterThan(product.MaxSize) {
		return fmt.Errorf("%w: %s not in [%s, %s]",
			model.ErrSizeOutOfRange, size, product.MinSize, product.MaxSize)
	}
	return nil
}
