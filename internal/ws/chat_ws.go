package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"connection-chat/internal/auth"
	"connection-chat/internal/middleware"
	"connection-chat/internal/models"
	"connection-chat/internal/observability"
	"connection-chat/internal/relay"
)

// Messenger runs chat commands received over a socket.
type Messenger interface {
	Send(ctx context.Context, chatID, senderID, content string, msgType models.MessageType) (models.MessageView, error)
	MarkRead(ctx context.Context, messageID, userID string) (models.Message, error)
	MarkAllRead(ctx context.Context, chatID, userID string) error
	Delete(ctx context.Context, messageID, userID string) (models.Message, error)
}

// Presence records socket liveness. Each call reports whether the user's
// online state flipped.
type Presence interface {
	Connect(ctx context.Context, userID, connID string) (bool, error)
	Heartbeat(ctx context.Context, userID, connID string) (bool, error)
	Disconnect(ctx context.Context, userID, connID string) (bool, error)
}

// CounterpartLister returns the users who share an active connection with userID.
type CounterpartLister interface {
	CounterpartUserIDs(ctx context.Context, userID string) ([]string, error)
}

// Gateway upgrades authenticated requests and runs one socket per connection.
type Gateway struct {
	hub          *Hub
	validator    auth.TokenValidator
	messenger    Messenger
	presence     Presence
	counterparts CounterpartLister
	events       relay.Publisher
	logger       *zap.Logger

	pongWait       time.Duration
	writeWait      time.Duration
	commandTimeout time.Duration
	now            func() time.Time
}

// Option customizes a Gateway.
type Option func(*Gateway)

// WithPongWait overrides the read deadline; pings go out at 90% of it.
func WithPongWait(d time.Duration) Option {
	return func(g *Gateway) { g.pongWait = d }
}

// NewGateway constructs a Gateway.
func NewGateway(
	hub *Hub,
	validator auth.TokenValidator,
	messenger Messenger,
	presence Presence,
	counterparts CounterpartLister,
	events relay.Publisher,
	logger *zap.Logger,
	opts ...Option,
) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Gateway{
		hub:            hub,
		validator:      validator,
		messenger:      messenger,
		presence:       presence,
		counterparts:   counterparts,
		events:         events,
		logger:         logger,
		pongWait:       pongWait,
		writeWait:      writeWait,
		commandTimeout: 10 * time.Second,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle authenticates, upgrades and registers the socket.
func (g *Gateway) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("connection-chat/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token, ok := middleware.TokenFromRequest(c.Request)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
		return
	}
	principal, err := g.validator.ValidateToken(ctx, token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		g.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      principal.UserID,
		Role:        principal.Role,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     observability.TraceIDFromContext(ctx),
		ConnectedAt: g.now(),
	}

	// the socket outlives the handshake request
	sockCtx := context.WithoutCancel(ctx)
	client := newClient(conn, info)
	g.hub.Register(client)
	observability.IncWSActive()
	publishLifecycle(sockCtx, info, "ws_connect", "")

	if changed, err := g.presence.Connect(sockCtx, info.UserID, info.ConnID); err != nil {
		g.logger.Warn("presence connect failed", zap.String("user_id", info.UserID), zap.Error(err))
	} else if changed {
		g.announce(sockCtx, info.UserID, true)
	}

	go client.writePump(g.writeWait, g.pongWait*9/10)
	go g.readPump(sockCtx, client)
}

func (g *Gateway) readPump(ctx context.Context, c *Client) {
	var reason string
	defer func() { g.disconnect(ctx, c, reason) }()

	c.conn.SetReadLimit(maxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(g.pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(g.pongWait))
		g.heartbeat(ctx, c)
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			reason = err.Error()
			if kicked, ok := c.closeReason(); ok {
				reason = kicked
				return
			}
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				publishLifecycle(ctx, c.info, "ws_error", reason)
			}
			return
		}
		g.dispatch(ctx, c, raw)
	}
}

// disconnect runs once per socket on every exit path.
func (g *Gateway) disconnect(ctx context.Context, c *Client, reason string) {
	c.kick(reason)
	if !g.hub.Unregister(c) {
		return
	}
	_ = c.conn.Close()
	observability.DecWSActive()
	publishLifecycle(ctx, c.info, "ws_disconnect", reason)

	changed, err := g.presence.Disconnect(ctx, c.info.UserID, c.info.ConnID)
	if err != nil {
		g.logger.Warn("presence disconnect failed", zap.String("user_id", c.info.UserID), zap.Error(err))
		return
	}
	if changed {
		g.announce(ctx, c.info.UserID, false)
	}
}

func (g *Gateway) heartbeat(ctx context.Context, c *Client) {
	changed, err := g.presence.Heartbeat(ctx, c.info.UserID, c.info.ConnID)
	if err != nil {
		g.logger.Debug("presence heartbeat failed", zap.String("user_id", c.info.UserID), zap.Error(err))
		return
	}
	if changed {
		g.announce(ctx, c.info.UserID, true)
	}
}

// announce tells userID's counterparts that their online state changed.
func (g *Gateway) announce(ctx context.Context, userID string, online bool) {
	ids, err := g.counterparts.CounterpartUserIDs(ctx, userID)
	if err != nil {
		g.logger.Warn("counterpart lookup failed", zap.String("user_id", userID), zap.Error(err))
		return
	}
	if len(ids) == 0 {
		return
	}
	ev, err := relay.NewEvent(relay.PresenceChanged, ids, relay.PresencePayload{UserID: userID, Online: online}, g.now())
	if err != nil {
		return
	}
	if err := g.events.Publish(ctx, ev); err != nil {
		g.logger.Warn("presence publish failed", zap.String("user_id", userID), zap.Error(err))
	}
}
