package relay

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// DefaultNATSSubject is the subject shared by all instances.
const DefaultNATSSubject = "chat.events"

// NATSBridge relays events over core NATS.
type NATSBridge struct {
	nc      *nats.Conn
	subject string
	logger  *zap.Logger
}

// NewNATSBridge builds a NATSBridge on subject.
func NewNATSBridge(nc *nats.Conn, subject string, logger *zap.Logger) *NATSBridge {
	if subject == "" {
		subject = DefaultNATSSubject
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NATSBridge{nc: nc, subject: subject, logger: logger}
}

// Publish sends ev to every subscribed instance.
func (n *NATSBridge) Publish(ctx context.Context, ev Event) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return n.nc.Publish(n.subject, raw)
}

// Subscribe returns once the server acknowledged the subscription.
func (n *NATSBridge) Subscribe(ctx context.Context, fn Handler) (func() error, error) {
	sub, err := n.nc.Subscribe(n.subject, n.handle(fn))
	if err != nil {
		return nil, err
	}
	if err := n.nc.FlushWithContext(ctx); err != nil {
		_ = sub.Unsubscribe()
		return nil, err
	}
	return sub.Unsubscribe, nil
}

func (n *NATSBridge) handle(fn Handler) nats.MsgHandler {
	return func(msg *nats.Msg) {
		ev, ok := decodeEvent(msg.Data, n.logger)
		if !ok {
			return
		}
		fn(ev)
	}
}
