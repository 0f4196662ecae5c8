package bid

import (
	"testing"

	"github.com/shopspring/decimal"
	"pgregory.net/rapid"

	"github.com/kicksmarket/bid-engine/internal/model"
)

// Every accepted sale bid is at or above the best purchase bid, every accepted
// purchase bid at or below the best sale bid.
func TestProperty_PriceCrossing(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		v := NewValidator(rapid.Bool().Draw(t, "requireOpposing"))
		side := rapid.SampledFrom([]model.BookSide{model.SideSale, model.SidePurchase}).Draw(t, "side")
		price := rapid.Int64Range(1, 1_000_000).Draw(t, "price")
		best := BestPrice{
			Price: rapid.Int64Range(1, 1_000_000).Draw(t, "best"),
			Found: rapid.Bool().Draw(t, "found"),
		}
		size := decimal.New(rapid.Int64Range(70, 110).Draw(t, "size10"), -1)

		err := v.Admit(side, price, size, testProduct(), best)
		if err != nil {
			return
		}
		if !best.Found {
			if v.RequireOpposingBid {
				t.Fatalf("accepted %s bid with empty opposing book", side)
			}
			return
		}
		if side == model.SideSale && price < best.Price {
			t.Fatalf("accepted sale %d below best purchase %d", price, best.Price)
		}
		if side == model.SidePurchase && price > best.Price {
			t.Fatalf("accepted purchase %d above best sale %d", price, best.Price)
		}
	})
}

func TestProperty_SizeRange(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		size := decimal.New(rapid.Int64Range(0, 200).Draw(t, "size10"), -1)
		err := CheckSize(size, testProduct())
		inRange := size.GreaterThanOrEqual(d(7)) && size.LessThanOrEqual(d(11))
		if inRange != (err == nil) {
			t.Fatalf("size %s: inRange=%v err=%v", size, inRange, err)
		}
	})
}
