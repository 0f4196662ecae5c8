package trade

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kicksmarket/bid-engine/internal/lifecycle"
	"github.com/kicksmarket/bid-engine/internal/metrics"
	"github.com/kicksmarket/bid-engine/internal/model"
	"github.com/kicksmarket/bid-engine/internal/store"
)

// ClaimRequest is the JSON body for settling an open bid immediately.
type ClaimRequest struct {
	UserID    string `json:"user_id"`
	TradeID   string `json:"-"`
	AddressID string `json:"address_id"`
}

// ImmediatePurchase binds the caller as buyer of an open sale bid at the
// listed price and deducts that price from the caller's balance. Of any
// number of concurrent claims on one bid, exactly one succeeds; the rest
// fail with ErrAlreadyMatched and leave no trace.
func (s *Service) ImmediatePurchase(ctx context.Context, req ClaimRequest) (*model.Trade, error) {
	return s.claim(ctx, model.RoleBuyer, req)
}

// ImmediateSale binds the caller as seller of an open purchase bid. The
// buyer's points were deducted when the bid was placed.
func (s *Service) ImmediateSale(ctx context.Context, req ClaimRequest) (*model.Trade, error) {
	return s.claim(ctx, model.RoleSeller, req)
}

func (s *Service) claim(ctx context.Context, role model.Role, req ClaimRequest) (*model.Trade, error) {
	var bound *model.Trade
	err := s.run(ctx, "settle", func(tx store.Tx) error {
		t, err := tx.GetTradeForUpdate(ctx, req.TradeID)
		if err != nil {
			return err
		}
		if err := claimable(t, role); err != nil {
			return err
		}
		if _, err := s.dir.FindAddress(ctx, req.UserID, req.AddressID); err != nil {
			return err
		}
		if role == model.RoleBuyer {
			if _, err := s.ledger.Debit(ctx, tx, req.UserID, t.Price, model.DivisionPurchaseDeduction, t.ID); err != nil {
				return err
			}
		}
		if err := lifecycle.Bind(t, role, req.UserID, req.AddressID, s.now()); err != nil {
			return err
		}
		if err := tx.UpdateTrade(ctx, t); err != nil {
			return err
		}
		bound = t
		return nil
	})

	side := model.SideSale
	if role == model.RoleSeller {
		side = model.SidePurchase
	}
	metrics.SettlementsTotal.WithLabelValues(string(side), outcome(err)).Inc()
	if err != nil {
		return nil, err
	}

	metrics.StatusTransitions.WithLabelValues(string(bound.Status)).Inc()
	slog.Info("trade matched",
		"trade_id", bound.ID,
		"role", role,
		"seller", bound.SellerID,
		"buyer", bound.BuyerID,
		"price", bound.Price,
	)
	s.broadcast(WSMessage{
		Type:      "trade_matched",
		TradeID:   bound.ID,
		ProductID: bound.ProductID,
		Size:      bound.Size.String(),
		Price:     bound.Price,
		Side:      string(side),
		Status:    string(bound.Status),
	})
	return bound, nil
}

// claimable re-checks under the row lock that the claimed side of t is
// still free.
func claimable(t *model.Trade, role model.Role) error {
	if !t.Open() {
		return fmt.Errorf("%w: trade %s is %s", model.ErrAlreadyMatched, t.ID, t.Status)
	}
	switch role {
	case model.RoleBuyer:
		if t.BuyerID != "" {
			return fmt.Errorf("%w: trade %s is a purchase bid", model.ErrAlreadyMatched, t.ID)
		}
	case model.RoleSeller:
		if t.SellerID != "" {
			return fmt.Errorf("%w: trade %s is a sale bid", model.ErrAlreadyMatched, t.ID)
		}
	}
	return nil
}
