package trade

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kicksmarket/bid-engine/internal/bid"
	"github.com/kicksmarket/bid-engine/internal/metrics"
	"github.com/kicksmarket/bid-engine/internal/model"
	"github.com/kicksmarket/bid-engine/internal/store"
)

// BidRequest is the JSON body for placing a sale or purchase bid.
type BidRequest struct {
	UserID    string          `json:"user_id"`
	ProductID string          `json:"product_id"`
	Size      decimal.Decimal `json:"size"`
	Price     int64           `json:"price"`
	AddressID string          `json:"address_id"`
}

// CreateSaleBid rests a seller's offer on the book. The price must not
// undercut the highest open purchase bid for the same product and size.
func (s *Service) CreateSaleBid(ctx context.Context, req BidRequest) (*model.Trade, error) {
	return s.createBid(ctx, model.SideSale, req)
}

// CreatePurchaseBid rests a buyer's offer on the book and deducts its price
// from the buyer's balance. The price must not exceed the lowest open sale
// bid for the same product and size.
func (s *Service) CreatePurchaseBid(ctx context.Context, req BidRequest) (*model.Trade, error) {
	return s.createBid(ctx, model.SidePurchase, req)
}

func (s *Service) createBid(ctx context.Context, side model.BookSide, req BidRequest) (*model.Trade, error) {
	var created *model.Trade
	err := s.run(ctx, "create_bid", func(tx store.Tx) error {
		t, err := s.placeBid(ctx, tx, side, req)
		if err != nil {
			return err
		}
		created = t
		return nil
	})
	metrics.BidsTotal.WithLabelValues(string(side), outcome(err)).Inc()
	if err != nil {
		slog.Info("bid rejected",
			"side", side,
			"user", req.UserID,
			"product", req.ProductID,
			"size", req.Size.String(),
			"price", req.Price,
			"reason", model.Code(err),
		)
		return nil, err
	}

	slog.Info("bid created",
		"trade_id", created.ID,
		"side", side,
		"user", req.UserID,
		"product", created.ProductID,
		"size", created.Size.String(),
		"price", created.Price,
	)
	s.broadcast(WSMessage{
		Type:      "bid_created",
		TradeID:   created.ID,
		ProductID: created.ProductID,
		Size:      created.Size.String(),
		Price:     created.Price,
		Side:      string(side),
		Status:    string(created.Status),
	})
	return created, nil
}

// placeBid runs the admission checks and inserts the bid. The book lock is
// taken before the opposing price is read so that concurrent inserts on the
// same product/size see each other.
func (s *Service) placeBid(ctx context.Context, tx store.Tx, side model.BookSide, req BidRequest) (*model.Trade, error) {
	if _, err := s.dir.FindUser(ctx, req.UserID); err != nil {
		return nil, err
	}
	if _, err := s.dir.FindAddress(ctx, req.UserID, req.AddressID); err != nil {
		return nil, err
	}
	product, err := s.dir.FindProduct(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}

	if err := tx.LockBook(ctx, product.ID, req.Size); err != nil {
		return nil, err
	}

	// Affordability is decided before market checks: a buyer who cannot pay
	// is told so even when the price would also be rejected.
	if side == model.SidePurchase && req.Price > 0 {
		if err := s.ledger.EnsureFunds(ctx, tx, req.UserID, req.Price); err != nil {
			return nil, err
		}
	}

	price, found, err := tx.BestOpenPrice(ctx, product.ID, req.Size, side.Opposite())
	if err != nil {
		return nil, err
	}
	if err := s.validator.Admit(side, req.Price, req.Size, product, bid.BestPrice{Price: price, Found: found}); err != nil {
		return nil, err
	}

	now := s.now()
	t := &model.Trade{
		ID:        uuid.New().String(),
		ProductID: product.ID,
		Size:      req.Size,
		Price:     req.Price,
		Status:    model.StatusPreOffer,
		CreatedAt: now,
		UpdatedAt: now,
	}
	switch side {
	case model.SideSale:
		t.SellerID, t.SellerAddressID = req.UserID, req.AddressID
	case model.SidePurchase:
		t.BuyerID, t.BuyerAddressID = req.UserID, req.AddressID
	default:
		return nil, fmt.Errorf("trade: unknown side %q", side)
	}

	if err := tx.InsertTrade(ctx, t); err != nil {
		return nil, err
	}
	if side == model.SidePurchase {
		if _, err := s.ledger.Debit(ctx, tx, req.UserID, req.Price, model.DivisionPurchaseDeduction, t.ID); err != nil {
			return nil, err
		}
	}
	return t, nil
}
