package fulfillment

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kicksmarket/bid-engine/internal/lifecycle"
	"github.com/kicksmarket/bid-engine/internal/model"
)

type fakeAdvancer struct {
	mu     sync.Mutex
	events []lifecycle.Event
	err    error
}

func (f *fakeAdvancer) AdvanceTradeStatus(_ context.Context, ev lifecycle.Event) (*model.Trade, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	if f.err != nil {
		return nil, f.err
	}
	return &model.Trade{ID: ev.TradeID, Status: ev.To}, nil
}

func TestHandleMsg_AppliesEvent(t *testing.T) {
	adv := &fakeAdvancer{}
	l := NewListener(nil, "kicks.fulfillment.events", adv)

	l.HandleMsg(&nats.Msg{
		Subject: "kicks.fulfillment.events",
		Data:    []byte(`{"trade_id":"t1","status":"PRE_WAREHOUSING","tracking_number":"CJ-778"}`),
	})

	require.Len(t, adv.events, 1)
	assert.Equal(t, lifecycle.Event{TradeID: "t1", To: model.StatusPreWarehousing, TrackingNumber: "CJ-778"}, adv.events[0])
}

func TestHandleMsg_CancelCarriesReason(t *testing.T) {
	adv := &fakeAdvancer{}
	l := NewListener(nil, "kicks.fulfillment.events", adv)

	l.HandleMsg(&nats.Msg{Data: []byte(`{"trade_id":"t1","status":"CANCEL","cancel_reason":"failed inspection"}`)})

	require.Len(t, adv.events, 1)
	assert.Equal(t, model.StatusCancel, adv.events[0].To)
	assert.Equal(t, "failed inspection", adv.events[0].CancelReason)
}

func TestHandleMsg_MalformedIsDropped(t *testing.T) {
	adv := &fakeAdvancer{}
	l := NewListener(nil, "kicks.fulfillment.events", adv)

	l.HandleMsg(&nats.Msg{Data: []byte(`not json`)})
	l.HandleMsg(&nats.Msg{Data: []byte(`{"status":"SHIPPING"}`)})

	assert.Empty(t, adv.events)
}

func TestHandleMsg_RejectedTransitionDoesNotPanic(t *testing.T) {
	adv := &fakeAdvancer{err: fmt.Errorf("%w: SHIPPING -> CANCEL", model.ErrInvalidStateTransition)}
	l := NewListener(nil, "kicks.fulfillment.events", adv)

	assert.NotPanics(t, func() {
		l.HandleMsg(&nats.Msg{Data: []byte(`{"trade_id":"t1","status":"CANCEL"}`)})
	})
	assert.Len(t, adv.events, 1)
}

func TestStop_WithoutStart(t *testing.T) {
	l := NewListener(nil, "kicks.fulfillment.events", &fakeAdvancer{})
	assert.NoError(t, l.Stop())
}
