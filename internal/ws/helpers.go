package ws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"connection-chat/internal/models"
	"connection-chat/internal/observability"
	"connection-chat/internal/relay"
)

const wsRoutingKey = "ws_events.chats"

func newConnID() string {
	return uuid.NewString()
}

func encodeFrame(ev models.ChatEvent) []byte {
	payload, err := json.Marshal(ev)
	if err != nil {
		payload, _ = json.Marshal(models.ChatEvent{Type: "error", RequestID: ev.RequestID, Error: "encode_failed"})
	}
	return payload
}

func errorFrame(requestID, reason string) []byte {
	return encodeFrame(models.ChatEvent{Type: frameError, RequestID: requestID, Error: reason})
}

func eventFrame(ev relay.Event) []byte {
	at := ev.OccurredAt
	return encodeFrame(models.ChatEvent{Type: string(ev.Type), Payload: ev.Payload, OccurredAt: &at})
}

// publishLifecycle mirrors a socket lifecycle event to the broker and counts it.
func publishLifecycle(ctx context.Context, info ConnInfo, event, reason string) {
	observability.IncWSEvent(event)
	var durationMS int64
	if !info.ConnectedAt.IsZero() && event != "ws_connect" {
		durationMS = time.Since(info.ConnectedAt).Milliseconds()
	}
	_ = observability.PublishEvent(ctx, wsRoutingKey, observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload: map[string]interface{}{
			"ws": map[string]interface{}{
				"event":       event,
				"conn_id":     info.ConnID,
				"duration_ms": durationMS,
				"reason":      reason,
			},
			"identity": map[string]interface{}{
				"user_id":   info.UserID,
				"role":      info.Role,
				"device_id": info.DeviceID,
				"ip":        info.IP,
			},
		},
	}, observability.BuildHeaders(info.RequestID, info.TraceID))
}
