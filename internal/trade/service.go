// Package trade implements the bid engine's write path: resting new bids on
// the book, settling open bids immediately, and advancing matched trades
// through fulfillment. It also serves these operations over HTTP and pushes
// trade events to WebSocket clients.
//
// Every operation runs as a single store unit of work. Transient persistence
// faults restart the whole unit of work once.
package trade

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kicksmarket/bid-engine/internal/bid"
	"github.com/kicksmarket/bid-engine/internal/ledger"
	"github.com/kicksmarket/bid-engine/internal/lifecycle"
	"github.com/kicksmarket/bid-engine/internal/metrics"
	"github.com/kicksmarket/bid-engine/internal/model"
	"github.com/kicksmarket/bid-engine/internal/store"
)

// maxAttempts bounds how often a unit of work runs after transient faults.
const maxAttempts = 2

// Service coordinates bids, settlements and status changes. Exclusivity
// comes from row locks taken inside each unit of work, so several Service
// instances may share one database.
type Service struct {
	store     store.Store
	dir       store.Directory
	validator *bid.Validator
	ledger    *ledger.Ledger
	machine   *lifecycle.Machine
	wsHub     *WSHub // optional WebSocket hub for real-time broadcasts
	now       func() time.Time
}

// NewService creates a trade service.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewService(st store.Store, dir store.Directory, v *bid.Validator, l *ledger.Ledger, hub *WSHub) *Service {
	return &Service{
		store:     st,
		dir:       dir,
		validator: v,
		ledger:    l,
		machine:   lifecycle.NewMachine(l),
		wsHub:     hub,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// run executes fn in a unit of work, restarting it once when it fails with a
// retryable error.
func (s *Service) run(ctx context.Context, op string, fn func(tx store.Tx) error) error {
	start := time.Now()
	defer metrics.ObserveSince(op, start)

	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = s.store.WithTx(ctx, fn)
		if err == nil || !model.Retryable(err) || ctx.Err() != nil {
			return err
		}
		if attempt < maxAttempts {
			metrics.TxRetries.WithLabelValues(op).Inc()
			slog.Warn("retrying unit of work", "op", op, "attempt", attempt, "err", err)
		}
	}
	return err
}

// GetTrade returns a trade by ID.
func (s *Service) GetTrade(ctx context.Context, tradeID string) (*model.Trade, error) {
	return s.store.GetTrade(ctx, tradeID)
}

// Book summarizes the open bids for a product/size.
func (s *Service) Book(ctx context.Context, productID string, size decimal.Decimal) (*model.BookLevel, error) {
	if _, err := s.dir.FindProduct(ctx, productID); err != nil {
		return nil, err
	}
	return s.store.BookSnapshot(ctx, productID, size)
}

// AdvanceTradeStatus applies a fulfillment event to a matched trade.
func (s *Service) AdvanceTradeStatus(ctx context.Context, ev lifecycle.Event) (*model.Trade, error) {
	var result *model.Trade
	err := s.run(ctx, "advance_status", func(tx store.Tx) error {
		t, err := tx.GetTradeForUpdate(ctx, ev.TradeID)
		if err != nil {
			return err
		}
		if err := s.machine.Advance(ctx, tx, t, ev); err != nil {
			return err
		}
		result = t
		return nil
	})
	if err != nil {
		if errors.Is(err, model.ErrInvalidStateTransition) {
			slog.Warn("status change rejected", "trade_id", ev.TradeID, "to", ev.To, "err", err)
		}
		return nil, err
	}

	metrics.StatusTransitions.WithLabelValues(string(result.Status)).Inc()
	slog.Info("trade status changed",
		"trade_id", result.ID,
		"status", result.Status,
		"seller", result.SellerID,
		"buyer", result.BuyerID,
	)
	s.broadcast(WSMessage{
		Type:      "trade_status_changed",
		TradeID:   result.ID,
		ProductID: result.ProductID,
		Size:      result.Size.String(),
		Price:     result.Price,
		Status:    string(result.Status),
	})
	return result, nil
}

func (s *Service) broadcast(msg WSMessage) {
	if s.wsHub != nil {
		s.wsHub.Broadcast(msg)
	}
}

// outcome labels a result for metrics.
func outcome(err error) string {
	if err == nil {
		return "accepted"
	}
	return model.Code(err)
}
