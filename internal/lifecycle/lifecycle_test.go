package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/kicksmarket/bid-engine/internal/ledger"
	"github.com/kicksmarket/bid-engine/internal/model"
	"github.com/kicksmarket/bid-engine/internal/store"
)

var allStatuses = []model.Status{
	model.StatusPreOffer, model.StatusPreSellerShipment, model.StatusPreWarehousing,
	model.StatusPreInspection, model.StatusPreShipment, model.StatusShipping,
	model.StatusTradeComplete, model.StatusCancel,
}

type env struct {
	ms      *store.MemoryStore
	machine *Machine
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ms := store.NewMemoryStore()
	ms.AddUser(&model.User{ID: "seller"})
	ms.AddUser(&model.User{ID: "buyer"})
	return &env{ms: ms, machine: NewMachine(ledger.New())}
}

// seedTrade stores a bound trade in the given status.
func (e *env) seedTrade(t *testing.T, status model.Status) {
	t.Helper()
	ctx := context.Background()
	tr := &model.Trade{
		ID: "t1", ProductID: "p1", Size: decimal.NewFromInt(9), Price: 150,
		SellerID: "seller", SellerAddressID: "sa", Status: model.StatusPreOffer,
		CreatedAt: time.Now().UTC(),
	}
	if status != model.StatusPreOffer {
		tr.BuyerID, tr.BuyerAddressID, tr.Status = "buyer", "ba", status
	}
	require.NoError(t, e.ms.WithTx(ctx, func(tx store.Tx) error {
		return tx.InsertTrade(ctx, tr)
	}))
}

func (e *env) advance(t *testing.T, ev Event) error {
	t.Helper()
	ctx := context.Background()
	return e.ms.WithTx(ctx, func(tx store.Tx) error {
		tr, err := tx.GetTradeForUpdate(ctx, ev.TradeID)
		if err != nil {
			return err
		}
		return e.machine.Advance(ctx, tx, tr, ev)
	})
}

func (e *env) status(t *testing.T) model.Status {
	t.Helper()
	tr, err := e.ms.GetTrade(context.Background(), "t1")
	require.NoError(t, err)
	return tr.Status
}

func (e *env) movements(t *testing.T, user string) []model.PointMovement {
	t.Helper()
	m, err := e.ms.ListMovements(context.Background(), user)
	require.NoError(t, err)
	return m
}

func TestTransitionTable(t *testing.T) {
	assert.True(t, CanTransition(model.StatusPreOffer, model.StatusPreSellerShipment))
	assert.True(t, CanTransition(model.StatusPreSellerShipment, model.StatusCancel))
	assert.True(t, CanTransition(model.StatusPreWarehousing, model.StatusCancel))
	assert.True(t, CanTransition(model.StatusPreInspection, model.StatusCancel))
	assert.True(t, CanTransition(model.StatusShipping, model.StatusTradeComplete))

	assert.False(t, CanTransition(model.StatusPreShipment, model.StatusCancel))
	assert.False(t, CanTransition(model.StatusShipping, model.StatusCancel))
	assert.False(t, CanTransition(model.StatusPreOffer, model.StatusCancel))
	assert.False(t, CanTransition(model.StatusPreWarehousing, model.StatusShipping))

	for _, s := range allStatuses {
		if s.Terminal() {
			assert.Empty(t, Next(s), "terminal status %s must have no successors", s)
		} else {
			assert.NotEmpty(t, Next(s), "status %s must have successors", s)
		}
	}
}

func TestAdvance_HappyPathPaysSeller(t *testing.T) {
	e := newEnv(t)
	e.seedTrade(t, model.StatusPreSellerShipment)

	steps := []Event{
		{TradeID: "t1", To: model.StatusPreWarehousing, TrackingNumber: "SELLER-123"},
		{TradeID: "t1", To: model.StatusPreInspection},
		{TradeID: "t1", To: model.StatusPreShipment},
		{TradeID: "t1", To: model.StatusShipping, TrackingNumber: "KICKS-9"},
		{TradeID: "t1", To: model.StatusTradeComplete},
	}
	for _, ev := range steps {
		require.NoError(t, e.advance(t, ev), "advance to %s", ev.To)
		assert.Equal(t, ev.To, e.status(t))
	}

	tr, _ := e.ms.GetTrade(context.Background(), "t1")
	assert.Equal(t, "SELLER-123", tr.SellerTrackingNumber)
	assert.Equal(t, "KICKS-9", tr.CompanyTrackingNumber)

	seller := e.movements(t, "seller")
	require.Len(t, seller, 1)
	assert.Equal(t, int64(150), seller[0].Amount)
	assert.Equal(t, model.DivisionSaleRevenue, seller[0].Division)
	assert.Equal(t, "t1", seller[0].TradeID)
	assert.Empty(t, e.movements(t, "buyer"))
}

func TestAdvance_CancelRefundsBuyer(t *testing.T) {
	for _, from := range []model.Status{model.StatusPreWarehousing, model.StatusPreInspection} {
		t.Run(string(from), func(t *testing.T) {
			e := newEnv(t)
			e.seedTrade(t, from)

			require.NoError(t, e.advance(t, Event{TradeID: "t1", To: model.StatusCancel, CancelReason: "inspection failed"}))
			assert.Equal(t, model.StatusCancel, e.status(t))

			buyer := e.movements(t, "buyer")
			require.Len(t, buyer, 1)
			assert.Equal(t, int64(150), buyer[0].Amount)
			assert.Equal(t, model.DivisionPurchaseReturn, buyer[0].Division)

			acct, _ := e.ms.GetAccount(context.Background(), "buyer")
			assert.Equal(t, int64(150), acct.Balance)

			tr, _ := e.ms.GetTrade(context.Background(), "t1")
			assert.Equal(t, "inspection failed", tr.CancelReason)
		})
	}
}

func TestAdvance_CancelBeforeSellerShipmentHasNoRefund(t *testing.T) {
	e := newEnv(t)
	e.seedTrade(t, model.StatusPreSellerShipment)

	require.NoError(t, e.advance(t, Event{TradeID: "t1", To: model.StatusCancel, CancelReason: "seller did not ship"}))
	assert.Equal(t, model.StatusCancel, e.status(t))
	assert.Empty(t, e.movements(t, "buyer"))
}

func TestAdvance_RejectsIllegalTransitions(t *testing.T) {
	e := newEnv(t)
	e.seedTrade(t, model.StatusPreSellerShipment)

	err := e.advance(t, Event{TradeID: "t1", To: model.StatusShipping})
	require.ErrorIs(t, err, model.ErrInvalidStateTransition)
	assert.Equal(t, model.StatusPreSellerShipment, e.status(t))

	err = e.advance(t, Event{TradeID: "t1", To: model.Status("LOST")})
	require.ErrorIs(t, err, model.ErrInvalidStateTransition)
}

func TestAdvance_OpenBidNeedsSettlement(t *testing.T) {
	e := newEnv(t)
	e.seedTrade(t, model.StatusPreOffer)

	err := e.advance(t, Event{TradeID: "t1", To: model.StatusPreSellerShipment})
	require.ErrorIs(t, err, model.ErrInvalidStateTransition)
	assert.Equal(t, model.StatusPreOffer, e.status(t))
}

func TestBind(t *testing.T) {
	now := time.Now().UTC()
	sale := &model.Trade{ID: "t1", SellerID: "s", Status: model.StatusPreOffer}

	require.NoError(t, Bind(sale, model.RoleBuyer, "b", "ba", now))
	assert.Equal(t, model.StatusPreSellerShipment, sale.Status)
	assert.Equal(t, "b", sale.BuyerID)
	assert.Equal(t, "ba", sale.BuyerAddressID)
	assert.True(t, sale.Bound())

	// A second claim loses.
	assert.ErrorIs(t, Bind(sale, model.RoleBuyer, "b2", "ba2", now), model.ErrAlreadyMatched)

	purchase := &model.Trade{ID: "t2", BuyerID: "b", Status: model.StatusPreOffer}
	assert.ErrorIs(t, Bind(purchase, model.RoleBuyer, "b2", "x", now), model.ErrAlreadyMatched)
	require.NoError(t, Bind(purchase, model.RoleSeller, "s", "sa", now))
	assert.Equal(t, "s", purchase.SellerID)
}

// Any sequence of requested transitions keeps the trade inside the declared
// status set, and rejected requests leave it unchanged.
func TestProperty_StateMachineClosure(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		e := newEnv(t)
		tr := &model.Trade{
			ID: "t1", ProductID: "p1", Size: decimal.NewFromInt(9), Price: 10,
			SellerID: "seller", BuyerID: "buyer", Status: model.StatusPreSellerShipment,
		}
		ctx := context.Background()
		if err := e.ms.WithTx(ctx, func(tx store.Tx) error { return tx.InsertTrade(ctx, tr) }); err != nil {
			rt.Fatalf("seed: %v", err)
		}

		n := rapid.IntRange(1, 20).Draw(rt, "steps")
		for i := 0; i < n; i++ {
			to := rapid.SampledFrom(allStatuses).Draw(rt, "to")
			before := e.status(t)
			err := e.advance(t, Event{TradeID: "t1", To: to})
			after := e.status(t)

			if !after.Valid() {
				rt.Fatalf("status %q outside the declared set", after)
			}
			if err != nil {
				if after != before {
					rt.Fatalf("rejected %s -> %s changed status to %s", before, to, after)
				}
				continue
			}
			if !CanTransition(before, after) {
				rt.Fatalf("accepted transition %s -> %s not in table", before, after)
			}
		}
	})
}
