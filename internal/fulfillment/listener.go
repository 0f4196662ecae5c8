// Package fulfillment consumes shipment and inspection events from NATS and
// applies them to matched trades.
//
// Events are JSON lifecycle.Event values. A request with a reply subject is
// answered with the outcome, so warehouse tooling can use request/reply
// when it needs confirmation.
package fulfillment

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kicksmarket/bid-engine/internal/lifecycle"
	"github.com/kicksmarket/bid-engine/internal/metrics"
	"github.com/kicksmarket/bid-engine/internal/model"
)

// QueueGroup spreads events across engine instances.
const QueueGroup = "bid-engine"

// Advancer applies a status change to a trade.
type Advancer interface {
	AdvanceTradeStatus(ctx context.Context, ev lifecycle.Event) (*model.Trade, error)
}

// Reply is the response sent to requests carrying a reply subject.
type Reply struct {
	TradeID string       `json:"trade_id"`
	Status  model.Status `json:"status,omitempty"`
	Error   string       `json:"error,omitempty"`
	Message string       `json:"message,omitempty"`
}

// Listener subscribes to the fulfillment subject.
type Listener struct {
	conn     *nats.Conn
	subject  string
	advancer Advancer
	timeout  time.Duration

	mu  sync.Mutex
	sub *nats.Subscription
}

// Connect dials NATS with reconnect settings suited to a long-lived consumer.
func Connect(url string) (*nats.Conn, error) {
	conn, err := nats.Connect(url,
		nats.Name("bid-engine"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.Timeout(5*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("nats disconnected", "err", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return conn, nil
}

// NewListener creates a listener. conn may be nil in tests that call
// HandleMsg directly.
func NewListener(conn *nats.Conn, subject string, advancer Advancer) *Listener {
	return &Listener{
		conn:     conn,
		subject:  subject,
		advancer: advancer,
		timeout:  10 * time.Second,
	}
}

// Start subscribes in the shared queue group.
func (l *Listener) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.sub != nil {
		return fmt.Errorf("already subscribed to %s", l.subject)
	}
	sub, err := l.conn.QueueSubscribe(l.subject, QueueGroup, l.HandleMsg)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	l.sub = sub
	slog.Info("fulfillment listener started", "subject", l.subject, "queue", QueueGroup)
	return nil
}

// Stop drains the subscription so in-flight events finish.
func (l *Listener) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.sub == nil {
		return nil
	}
	err := l.sub.Drain()
	l.sub = nil
	return err
}

// HandleMsg applies one event.
func (l *Listener) HandleMsg(msg *nats.Msg) {
	var ev lifecycle.Event
	if err := json.Unmarshal(msg.Data, &ev); err != nil || ev.TradeID == "" {
		metrics.FulfillmentEvents.WithLabelValues("malformed").Inc()
		slog.Warn("malformed fulfillment event", "subject", msg.Subject, "err", err)
		l.respond(msg, Reply{Error: "bad_request", Message: "malformed event"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()

	t, err := l.advancer.AdvanceTradeStatus(ctx, ev)
	if err != nil {
		metrics.FulfillmentEvents.WithLabelValues(model.Code(err)).Inc()
		slog.Warn("fulfillment event rejected", "trade_id", ev.TradeID, "to", ev.To, "err", err)
		l.respond(msg, Reply{TradeID: ev.TradeID, Error: model.Code(err), Message: err.Error()})
		return
	}

	metrics.FulfillmentEvents.WithLabelValues("applied").Inc()
	l.respond(msg, Reply{TradeID: t.ID, Status: t.Status})
}

func (l *Listener) respond(msg *nats.Msg, r Reply) {
	if msg.Reply == "" {
		return
	}
	data, err := json.Marshal(r)
	if err != nil {
		return
	}
	if err := msg.Respond(data); err != nil {
		slog.Warn("fulfillment reply failed", "reply", msg.Reply, "err", err)
	}
}
