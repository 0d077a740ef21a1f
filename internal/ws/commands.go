package ws

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"connection-chat/internal/models"
	"connection-chat/internal/services"
)

// Inbound frame types.
const (
	cmdSend     = "message.send"
	cmdRead     = "message.read"
	cmdReadAll  = "messages.read"
	cmdDelete   = "message.delete"
	cmdPing     = "ping"
	frameAck    = "ack"
	framePong   = "pong"
	frameError  = "error"
	errBadJSON  = "invalid_json"
	errBadType  = "unsupported_type"
	errFields   = "missing_fields"
	errInternal = "internal_error"
)

type command struct {
	Type        string             `json:"type"`
	RequestID   string             `json:"request_id,omitempty"`
	ChatID      string             `json:"chat_id,omitempty"`
	MessageID   string             `json:"message_id,omitempty"`
	Content     string             `json:"content,omitempty"`
	MessageType models.MessageType `json:"message_type,omitempty"`
}

func (g *Gateway) dispatch(ctx context.Context, c *Client, raw []byte) {
	var cmd command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		g.reply(c, errorFrame("", errBadJSON))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, g.commandTimeout)
	defer cancel()

	var (
		result any
		err    error
	)
	userID := c.info.UserID
	switch cmd.Type {
	case cmdPing:
		g.heartbeat(ctx, c)
		g.reply(c, encodeFrame(models.ChatEvent{Type: framePong, RequestID: cmd.RequestID}))
		return
	case cmdSend:
		if cmd.ChatID == "" {
			g.reply(c, errorFrame(cmd.RequestID, errFields))
			return
		}
		result, err = g.messenger.Send(ctx, cmd.ChatID, userID, cmd.Content, cmd.MessageType)
	case cmdRead:
		if cmd.MessageID == "" {
			g.reply(c, errorFrame(cmd.RequestID, errFields))
			return
		}
		result, err = g.messenger.MarkRead(ctx, cmd.MessageID, userID)
	case cmdReadAll:
		if cmd.ChatID == "" {
			g.reply(c, errorFrame(cmd.RequestID, errFields))
			return
		}
		err = g.messenger.MarkAllRead(ctx, cmd.ChatID, userID)
		result = map[string]any{"chat_id": cmd.ChatID, "success": err == nil}
	case cmdDelete:
		if cmd.MessageID == "" {
			g.reply(c, errorFrame(cmd.RequestID, errFields))
			return
		}
		result, err = g.messenger.Delete(ctx, cmd.MessageID, userID)
	default:
		g.reply(c, errorFrame(cmd.RequestID, errBadType))
		return
	}

	if err != nil {
		g.reply(c, errorFrame(cmd.RequestID, g.clientError(cmd, err)))
		return
	}
	g.reply(c, encodeFrame(models.ChatEvent{Type: frameAck, RequestID: cmd.RequestID, Payload: result}))
}

// reply queues a response frame. A client too slow to take it is dropped, the
// same as for relayed events.
func (g *Gateway) reply(c *Client, frame []byte) {
	if !c.enqueue(frame) {
		dropSlow(g.logger, c, "reply")
	}
}

// clientError keeps infrastructure failures out of client frames.
func (g *Gateway) clientError(cmd command, err error) string {
	if msg := services.MessageOf(err); msg != "" {
		return msg
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	g.logger.Error("websocket command failed",
		zap.String("type", cmd.Type),
		zap.String("request_id", cmd.RequestID),
		zap.Error(err),
	)
	return errInternal
}
