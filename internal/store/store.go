// Package store defines the persistence interfaces for the bid engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// product cache), and in-memory (for testing and development).
package store

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/kicksmarket/bid-engine/internal/model"
)

// Directory is the read-only view of the user, address and product
// collaborators. Missing rows are reported with the model.Err*NotFound
// sentinels.
type Directory interface {
	// FindUser returns a user by ID.
	FindUser(ctx context.Context, userID string) (*model.User, error)

	// FindAddress returns an address only if it belongs to userID.
	FindAddress(ctx context.Context, userID, addressID string) (*model.Address, error)

	// FindProduct returns a catalog product with its size range.
	FindProduct(ctx context.Context, productID string) (*model.Product, error)
}

// Store is the transactional persistence boundary for trades and points.
type Store interface {
	// WithTx runs fn in one unit of work. A nil return commits; any error
	// rolls back every change made through tx. Transient faults are returned
	// wrapped in model.ErrUnavailable.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// GetTrade reads a committed trade without locking.
	GetTrade(ctx context.Context, tradeID string) (*model.Trade, error)

	// GetAccount reads a committed account without locking.
	GetAccount(ctx context.Context, userID string) (*model.Account, error)

	// CreateAccount opens a zero-balance account. Existing accounts are left alone.
	CreateAccount(ctx context.Context, userID string) error

	// ListMovements returns a user's movements in the order they were recorded.
	ListMovements(ctx context.Context, userID string) ([]model.PointMovement, error)

	// BookSnapshot summarizes the open bids for a product/size.
	BookSnapshot(ctx context.Context, productID string, size decimal.Decimal) (*model.BookLevel, error)
}

// Tx is a unit of work. Rows read "for update" stay exclusively locked until
// the unit of work ends, so concurrent claimants of the same row serialize.
type Tx interface {
	// LockBook serializes bid inserts on one product/size book.
	LockBook(ctx context.Context, productID string, size decimal.Decimal) error

	// BestOpenPrice returns the highest open purchase price (side=SidePurchase)
	// or the lowest open sale price (side=SideSale) for a product/size.
	// ok is false when that side of the book is empty.
	BestOpenPrice(ctx context.Context, productID string, size decimal.Decimal, side model.BookSide) (price int64, ok bool, err error)

	// InsertTrade persists a new trade.
	InsertTrade(ctx context.Context, t *model.Trade) error

	// GetTradeForUpdate reads a trade and holds an exclusive lock on it.
	GetTradeForUpdate(ctx context.Context, tradeID string) (*model.Trade, error)

	// UpdateTrade writes the mutable columns of a trade locked by this unit of work.
	UpdateTrade(ctx context.Context, t *model.Trade) error

	// GetAccountForUpdate reads an account and holds an exclusive lock on it.
	GetAccountForUpdate(ctx context.Context, userID string) (*model.Account, error)

	// UpdateBalance sets the running total of an account locked by this unit of work.
	UpdateBalance(ctx context.Context, userID string, balance int64) error

	// AppendMovement records an immutable point movement.
	AppendMovement(ctx context.Context, m *model.PointMovement) error
}
