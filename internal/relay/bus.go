package relay

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"connection-chat/internal/observability"
)

// Publisher hands events to the relay.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Handler receives delivered events. It runs on the publishing goroutine and
// must not block.
type Handler func(Event)

// Bridge carries events between instances.
type Bridge interface {
	Publish(ctx context.Context, ev Event) error
	Subscribe(ctx context.Context, fn Handler) (stop func() error, err error)
}

// Mirror copies events to an external broker.
type Mirror interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

// Bus fans events out to local subscribers, optionally through a bridge so
// every instance sees every event.
type Bus struct {
	mu     sync.RWMutex
	subs   map[uint64]Handler
	nextID uint64

	bridge Bridge
	mirror Mirror
	logger *zap.Logger
}

// Option customizes a Bus.
type Option func(*Bus)

// WithBridge routes publishes through a cross-instance bridge.
func WithBridge(bridge Bridge) Option {
	return func(b *Bus) { b.bridge = bridge }
}

// WithMirror copies every published event to an external broker.
func WithMirror(mirror Mirror) Option {
	return func(b *Bus) { b.mirror = mirror }
}

// NewBus builds a Bus.
func NewBus(logger *zap.Logger, opts ...Option) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Bus{subs: make(map[uint64]Handler), logger: logger}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers fn and returns a function that removes it.
func (b *Bus) Subscribe(fn Handler) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Publish delivers ev. With a bridge configured, delivery happens when the
// bridge echoes the event back; if the bridge is unreachable the event is
// delivered locally and the error is returned.
func (b *Bus) Publish(ctx context.Context, ev Event) error {
	observability.IncRelayPublished(string(ev.Type))
	b.mirrorEvent(ctx, ev)

	if b.bridge == nil {
		b.Deliver(ev)
		return nil
	}
	if err := b.bridge.Publish(ctx, ev); err != nil {
		b.logger.Warn("relay bridge publish failed, delivering locally",
			zap.String("type", string(ev.Type)), zap.Error(err))
		observability.IncRelayDropped("bridge_error")
		b.Deliver(ev)
		return err
	}
	return nil
}

// Deliver hands ev to every local subscriber.
func (b *Bus) Deliver(ev Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs))
	for _, fn := range b.subs {
		handlers = append(handlers, fn)
	}
	b.mu.RUnlock()

	for _, fn := range handlers {
		fn(ev)
	}
}

// Run attaches the bridge listener and blocks until ctx is done.
func (b *Bus) Run(ctx context.Context) error {
	if b.bridge == nil {
		<-ctx.Done()
		return nil
	}
	stop, err := b.bridge.Subscribe(ctx, b.Deliver)
	if err != nil {
		return err
	}
	b.logger.Info("relay bridge listening")
	<-ctx.Done()
	return stop()
}

func (b *Bus) mirrorEvent(ctx context.Context, ev Event) {
	if b.mirror == nil {
		return
	}
	if err := b.mirror.Publish(ctx, "chat_events."+string(ev.Type), ev); err != nil {
		observability.IncAMQPPublishError()
		b.logger.Debug("relay mirror publish failed", zap.String("type", string(ev.Type)), zap.Error(err))
	}
}
