package store

import (
	"github.com/google/btree"
	"github.com/shopspring/decimal"

	"github.com/kicksmarket/bid-engine/internal/model"
)

// bookEntry is one open bid in the in-memory price index.
type bookEntry struct {
	Price   int64
	TradeID string
}

// entryLess orders by price ascending, then trade ID, so Min() is the lowest
// open price and Max() the highest.
func entryLess(a, b bookEntry) bool {
	if a.Price != b.Price {
		return a.Price < b.Price
	}
	return a.TradeID < b.TradeID
}

type bookKey struct {
	productID string
	size      string
	side      model.BookSide
}

func newBookKey(productID string, size decimal.Decimal, side model.BookSide) bookKey {
	return bookKey{productID: productID, size: size.String(), side: side}
}

// bookIndex keeps the open (PRE_OFFER) bids of every product/size/side in a
// B-tree, giving the validator its extreme price in O(log n).
type bookIndex struct {
	trees map[bookKey]*btree.BTreeG[bookEntry]
}

func newBookIndex() *bookIndex {
	return &bookIndex{trees: make(map[bookKey]*btree.BTreeG[bookEntry])}
}

func (b *bookIndex) tree(key bookKey, create bool) *btree.BTreeG[bookEntry] {
	t, ok := b.trees[key]
	if !ok && create {
		const degree = 16
		t = btree.NewG[bookEntry](degree, entryLess)
		b.trees[key] = t
	}
	return t
}

func (b *bookIndex) insert(t *model.Trade) {
	key := newBookKey(t.ProductID, t.Size, t.Side())
	b.tree(key, true).ReplaceOrInsert(bookEntry{Price: t.Price, TradeID: t.ID})
}

func (b *bookIndex) remove(t *model.Trade) {
	key := newBookKey(t.ProductID, t.Size, t.Side())
	tr := b.tree(key, false)
	if tr == nil {
		return
	}
	tr.Delete(bookEntry{Price: t.Price, TradeID: t.ID})
	if tr.Len() == 0 {
		delete(b.trees, key)
	}
}

// best returns the lowest open sale price or the highest open purchase price.
func (b *bookIndex) best(productID string, size decimal.Decimal, side model.BookSide) (int64, bool) {
	tr := b.tree(newBookKey(productID, size, side), false)
	if tr == nil {
		return 0, false
	}
	var e bookEntry
	var ok bool
	if side == model.SideSale {
		e, ok = tr.Min()
	} else {
		e, ok = tr.Max()
	}
	return e.Price, ok
}

func (b *bookIndex) count(productID string, size decimal.Decimal, side model.BookSide) int {
	tr := b.tree(newBookKey(productID, size, side), false)
	if tr == nil {
		return 0
	}
	return tr.Len()
}
