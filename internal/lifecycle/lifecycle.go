// Package lifecycle enforces the post-match trade state machine and the
// point movements tied to its terminal transitions.
package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/kicksmarket/bid-engine/internal/ledger"
	"github.com/kicksmarket/bid-engine/internal/model"
	"github.com/kicksmarket/bid-engine/internal/store"
)

// transitions is the complete table of legal status changes.
var transitions = map[model.Status][]model.Status{
	model.StatusPreOffer:          {model.StatusPreSellerShipment},
	model.StatusPreSellerShipment: {model.StatusPreWarehousing, model.StatusCancel},
	model.StatusPreWarehousing:    {model.StatusPreInspection, model.StatusCancel},
	model.StatusPreInspection:     {model.StatusPreShipment, model.StatusCancel},
	model.StatusPreShipment:       {model.StatusShipping},
	model.StatusShipping:          {model.StatusTradeComplete},
}

// CanTransition reports whether from -> to is in the table.
func CanTransition(from, to model.Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Next lists the statuses reachable from s in one step.
func Next(s model.Status) []model.Status {
	out := make([]model.Status, len(transitions[s]))
	copy(out, transitions[s])
	return out
}

// refundable lists the states whose cancellation returns the buyer's points.
var refundable = map[model.Status]bool{
	model.StatusPreWarehousing: true,
	model.StatusPreInspection:  true,
}

// Bind attaches the counter-party to an open bid and moves it to
// PRE_SELLER_SHIPMENT. It is the only way out of PRE_OFFER. The caller must
// hold the trade's row lock.
func Bind(t *model.Trade, role model.Role, userID, addressID string, now time.Time) error {
	if !t.Open() {
		return fmt.Errorf("%w: trade %s is %s", model.ErrAlreadyMatched, t.ID, t.Status)
	}
	switch role {
	case model.RoleBuyer:
		if t.BuyerID != "" {
			return fmt.Errorf("%w: trade %s already has a buyer", model.ErrAlreadyMatched, t.ID)
		}
		t.BuyerID = userID
		t.BuyerAddressID = addressID
	case model.RoleSeller:
		if t.SellerID != "" {
			return fmt.Errorf("%w: trade %s already has a seller", model.ErrAlreadyMatched, t.ID)
		}
		t.SellerID = userID
		t.SellerAddressID = addressID
	default:
		return fmt.Errorf("lifecycle: unknown role %q", role)
	}
	t.Status = model.StatusPreSellerShipment
	t.UpdatedAt = now
	return nil
}

// Event is a fulfillment step reported by the shipment/inspection workflow.
type Event struct {
	TradeID        string       `json:"trade_id"`
	To             model.Status `json:"status"`
	TrackingNumber string       `json:"tracking_number,omitempty"`
	CancelReason   string       `json:"cancel_reason,omitempty"`
}

// Machine applies fulfillment events to bound trades.
type Machine struct {
	ledger *ledger.Ledger
	now    func() time.Time
}

// NewMachine creates a state machine that settles points through l.
func NewMachine(l *ledger.Ledger) *Machine {
	return &Machine{ledger: l, now: func() time.Time { return time.Now().UTC() }}
}

// Advance moves a locked trade to ev.To and persists it together with any
// point movement the transition implies:
//
//   - CANCEL from PRE_WAREHOUSING or PRE_INSPECTION returns the price to the buyer;
//   - TRADE_COMPLETE pays the price to the seller.
//
// Illegal transitions return ErrInvalidStateTransition and leave t unchanged.
func (m *Machine) Advance(ctx context.Context, tx store.Tx, t *model.Trade, ev Event) error {
	from := t.Status
	if from == model.StatusPreOffer {
		return fmt.Errorf("%w: trade %s is an open bid; it leaves %s only through settlement",
			model.ErrInvalidStateTransition, t.ID, from)
	}
	if !CanTransition(from, ev.To) {
		return fmt.Errorf("%w: %s -> %s", model.ErrInvalidStateTransition, from, ev.To)
	}

	next := *t
	next.Status = ev.To
	next.UpdatedAt = m.now()

	switch ev.To {
	case model.StatusPreWarehousing:
		if ev.TrackingNumber != "" {
			next.SellerTrackingNumber = ev.TrackingNumber
		}
	case model.StatusShipping:
		if ev.TrackingNumber != "" {
			next.CompanyTrackingNumber = ev.TrackingNumber
		}
	case model.StatusCancel:
		next.CancelReason = ev.CancelReason
		if refundable[from] {
			if _, err := m.ledger.Credit(ctx, tx, next.BuyerID, next.Price, model.DivisionPurchaseReturn, next.ID); err != nil {
				return err
			}
		}
	case model.StatusTradeComplete:
		if _, err := m.ledger.Credit(ctx, tx, next.SellerID, next.Price, model.DivisionSaleRevenue, next.ID); err != nil {
			return err
		}
	}

	if err := tx.UpdateTrade(ctx, &next); err != nil {
		return err
	}
	*t = next
	return nil
}
