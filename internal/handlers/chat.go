package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"connection-chat/internal/auth"
	"connection-chat/internal/middleware"
	"connection-chat/internal/models"
	"connection-chat/internal/services"
	"connection-chat/internal/telemetry"
)

// ChatHandler manages connection chat endpoints.
type ChatHandler struct {
	directory *services.ChatDirectory
	ledger    *services.MessageLedger
	messenger *services.Messenger
	audit     *telemetry.AuditEmitter
	logger    *zap.Logger
}

// NewChatHandler builds a ChatHandler. audit may be nil.
func NewChatHandler(
	directory *services.ChatDirectory,
	ledger *services.MessageLedger,
	messenger *services.Messenger,
	audit *telemetry.AuditEmitter,
	logger *zap.Logger,
) *ChatHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatHandler{
		directory: directory,
		ledger:    ledger,
		messenger: messenger,
		audit:     audit,
		logger:    logger,
	}
}

// Register mounts the chat routes on an authenticated group.
func (h *ChatHandler) Register(r gin.IRoutes) {
	r.GET("/chats", h.ListChats)
	r.POST("/connections/:connection_id/chat", h.StartChat)
	r.GET("/chats/:chat_id", h.GetChat)
	r.GET("/unread-count", h.UnreadCount)
	r.GET("/chats/:chat_id/unread-count", h.ChatUnreadCount)
	r.GET("/chats/:chat_id/messages", h.GetChatMessages)
	r.POST("/chats/:chat_id/messages", h.PostChatMessage)
	r.POST("/chats/:chat_id/read", h.MarkChatRead)
	r.PATCH("/messages/:message_id/read", h.MarkMessageRead)
	r.DELETE("/messages/:message_id", h.DeleteMessage)
	r.GET("/presence/:user_id", h.GetPresence)
}

// ListChats returns the caller's inbox.
func (h *ChatHandler) ListChats(c *gin.Context) {
	caller, ok := principal(c)
	if !ok {
		return
	}
	chats, err := h.directory.GetUserChats(c.Request.Context(), caller.UserID, caller.Role)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chats": chats})
}

// StartChat returns the chat of a connection, creating it on first use.
func (h *ChatHandler) StartChat(c *gin.Context) {
	caller, ok := principal(c)
	if !ok {
		return
	}
	connectionID := c.Param("connection_id")
	chat, err := h.directory.GetOrCreateChatAs(c.Request.Context(), connectionID, caller.UserID)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.audit.EmitAction(c.Request.Context(), "INFO", "chat.opened", "chat opened", requestIDFromContext(c), userIDFromContext(c),
		map[string]string{"chat_id": chat.ID, "connection_id": connectionID})
	c.JSON(http.StatusOK, chat)
}

// GetChat returns chat details for a participant.
func (h *ChatHandler) GetChat(c *gin.Context) {
	caller, ok := principal(c)
	if !ok {
		return
	}
	chat, err := h.directory.GetChatDetails(c.Request.Context(), c.Param("chat_id"), caller.UserID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, chat)
}

// UnreadCount sums unread messages across the caller's connections.
func (h *ChatHandler) UnreadCount(c *gin.Context) {
	caller, ok := principal(c)
	if !ok {
		return
	}
	n, err := h.directory.GetUnreadCount(c.Request.Context(), caller.UserID, caller.Role)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread_count": n})
}

// ChatUnreadCount counts unread messages in one chat.
func (h *ChatHandler) ChatUnreadCount(c *gin.Context) {
	caller, ok := principal(c)
	if !ok {
		return
	}
	chatID := c.Param("chat_id")
	n, err := h.ledger.GetUnreadCount(c.Request.Context(), chatID, caller.UserID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chat_id": chatID, "unread_count": n})
}

// GetChatMessages returns one page of messages, newest first.
func (h *ChatHandler) GetChatMessages(c *gin.Context) {
	caller, ok := principal(c)
	if !ok {
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}

	page, err := h.ledger.GetMessages(c.Request.Context(), c.Param("chat_id"), caller.UserID, c.Query("cursor"), limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// PostChatMessage stores a message and notifies both participants.
func (h *ChatHandler) PostChatMessage(c *gin.Context) {
	caller, ok := principal(c)
	if !ok {
		return
	}
	var req struct {
		Content string             `json:"content"`
		Type    models.MessageType `json:"type"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	view, err := h.messenger.Send(c.Request.Context(), c.Param("chat_id"), caller.UserID, req.Content, req.Type)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.audit.EmitAction(c.Request.Context(), "INFO", "message.sent", "message sent", requestIDFromContext(c), userIDFromContext(c),
		map[string]string{"chat_id": view.ChatID, "message_id": view.ID, "message_type": string(view.MessageType)})
	c.JSON(http.StatusCreated, view)
}

// MarkChatRead marks every counterpart message in the chat as read.
func (h *ChatHandler) MarkChatRead(c *gin.Context) {
	caller, ok := principal(c)
	if !ok {
		return
	}
	if err := h.messenger.MarkAllRead(c.Request.Context(), c.Param("chat_id"), caller.UserID); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// MarkMessageRead marks a single counterpart message as read.
func (h *ChatHandler) MarkMessageRead(c *gin.Context) {
	caller, ok := principal(c)
	if !ok {
		return
	}
	msg, err := h.messenger.MarkRead(c.Request.Context(), c.Param("message_id"), caller.UserID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

// DeleteMessage tombstones the caller's own message.
func (h *ChatHandler) DeleteMessage(c *gin.Context) {
	caller, ok := principal(c)
	if !ok {
		return
	}
	msg, err := h.messenger.Delete(c.Request.Context(), c.Param("message_id"), caller.UserID)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.audit.EmitAction(c.Request.Context(), "INFO", "message.deleted", "message deleted", requestIDFromContext(c), userIDFromContext(c),
		map[string]string{"chat_id": msg.ChatID, "message_id": msg.ID})
	c.JSON(http.StatusOK, msg)
}

// GetPresence reports whether a counterpart holds a live socket.
func (h *ChatHandler) GetPresence(c *gin.Context) {
	caller, ok := principal(c)
	if !ok {
		return
	}
	userID := c.Param("user_id")
	online, err := h.directory.GetPresence(c.Request.Context(), caller.UserID, userID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": userID, "online": online})
}

func principal(c *gin.Context) (auth.Principal, bool) {
	p, ok := middleware.Principal(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
	}
	return p, ok
}

func (h *ChatHandler) fail(c *gin.Context, err error) {
	var status int
	switch services.TypeOf(err) {
	case services.ErrTypeNotFound:
		status = http.StatusNotFound
	case services.ErrTypeForbidden:
		status = http.StatusForbidden
	case services.ErrTypeValidation:
		status = http.StatusBadRequest
	case services.ErrTypeInvalidState:
		status = http.StatusConflict
	default:
		_ = c.Error(err)
		h.logger.Error("request failed",
			zap.String("route", c.FullPath()),
			zap.String("request_id", requestIDFromContext(c)),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(status, gin.H{"error": services.MessageOf(err)})
}
