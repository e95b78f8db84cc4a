package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"chat-engine/internal/chat"
	"chat-engine/internal/observability"
	"chat-engine/internal/telemetry"
)

// TokenValidator resolves a bearer token to a user id.
type TokenValidator func(token string) (int, error)

// clientFrame is the client-to-server envelope.
type clientFrame struct {
	Event string          `json:"event"`
	AckID *int64          `json:"ack_id"`
	Data  json.RawMessage `json:"data"`
}

// SocketHandler upgrades chat connections and runs their read loop. One
// connection serves every chat of the user; rooms scope the fanout.
type SocketHandler struct {
	hub      *Hub
	svc      *chat.Service
	validate TokenValidator
	audit    *telemetry.AuditEmitter
	log      *zap.SugaredLogger
}

// NewSocketHandler constructs a SocketHandler.
func NewSocketHandler(hub *Hub, svc *chat.Service, validate TokenValidator, audit *telemetry.AuditEmitter, log *zap.SugaredLogger) *SocketHandler {
	return &SocketHandler{hub: hub, svc: svc, validate: validate, audit: audit, log: log}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle authenticates the handshake, upgrades the connection, joins the
// user's rooms and serves events until the connection closes.
func (h *SocketHandler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("chat-engine/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := c.GetHeader("Authorization")
	if token == "" {
		token = c.Query("token")
		if token != "" {
			token = "Bearer " + token
		}
	}

	userID, err := h.validateToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	meta := observability.MetaFromHandshake(c.Request)
	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      userID,
		DeviceID:    meta.DeviceID,
		IP:          meta.IP,
		RequestID:   meta.RequestID,
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	client := h.hub.Register(conn, info)
	h.hub.Join(client, RoomForUser(userID))

	// Join every chat room up front so room fanout reaches this connection
	// without a per-chat subscribe step.
	chatIDs, err := h.svc.ChatIDsForUser(ctx, userID)
	if err != nil {
		h.log.Warnw("join chat rooms failed", "user_id", userID, "error", err)
	}
	for _, chatID := range chatIDs {
		h.hub.Join(client, RoomForChat(chatID))
	}

	observability.IncWSActive("chat")
	observability.IncWSEvent("chat", "ws_connect")
	userStr := strconv.Itoa(userID)
	h.audit.Emit(ctx, "info", "ws_connect", info.RequestID, &userStr)

	// net/http cancels the request context once this handler returns; the
	// read loop outlives the handshake, so detach it while keeping values.
	go h.readLoop(context.WithoutCancel(ctx), client, conn)
}

func (h *SocketHandler) readLoop(ctx context.Context, client *Client, conn *websocket.Conn) {
	info := client.Info
	userStr := strconv.Itoa(info.UserID)
	defer func() {
		h.hub.Unregister(client)
		conn.Close()
		observability.DecWSActive("chat")
		observability.IncWSEvent("chat", "ws_disconnect")
		h.audit.Emit(ctx, "info", "ws_disconnect", info.RequestID, &userStr)
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("chat", "ws_error")
			}
			return
		}

		var req clientFrame
		if err := json.Unmarshal(raw, &req); err != nil {
			h.ack(client, nil, gin.H{"error": "malformed frame"})
			continue
		}

		observability.IncWSEvent("chat", req.Event)
		h.dispatch(ctx, client, req)
	}
}

func (h *SocketHandler) dispatch(ctx context.Context, client *Client, req clientFrame) {
	userID := client.Info.UserID

	switch req.Event {
	case "get_user_chats":
		list, err := h.svc.ListChats(ctx, userID)
		if err != nil {
			h.ackErr(client, req.AckID, err)
			return
		}
		h.ack(client, req.AckID, gin.H{"chats": list.Chats, "total_unread": list.TotalUnread})

	case "get_messages":
		var data struct {
			ChatID int `json:"chat_id"`
			Page   int `json:"page"`
			Limit  int `json:"limit"`
		}
		if err := json.Unmarshal(req.Data, &data); err != nil {
			h.ackErr(client, req.AckID, chat.ErrInvalidInput)
			return
		}
		page, err := h.svc.Messages(ctx, userID, data.ChatID, data.Page, data.Limit)
		if err != nil {
			h.ackErr(client, req.AckID, err)
			return
		}
		h.ack(client, req.AckID, gin.H{
			"messages":    page.Messages,
			"total":       page.Total,
			"page":        page.Page,
			"total_pages": page.TotalPages,
		})

	case "send_message":
		var data struct {
			ChatID      *int     `json:"chat_id"`
			ListingID   *int     `json:"listing_id"`
			RecipientID int      `json:"recipient_id"`
			Text        string   `json:"text"`
			Media       []string `json:"media"`
			MediaType   string   `json:"media_type"`
			ReplyTo     *int     `json:"reply_to"`
		}
		if err := json.Unmarshal(req.Data, &data); err != nil {
			h.ackErr(client, req.AckID, chat.ErrInvalidInput)
			return
		}
		result, err := h.svc.Send(ctx, userID, chat.SendInput{
			ChatID:      data.ChatID,
			ListingID:   data.ListingID,
			RecipientID: data.RecipientID,
			Text:        data.Text,
			Media:       data.Media,
			MediaType:   data.MediaType,
			ReplyTo:     data.ReplyTo,
		})
		if err != nil {
			h.ackErr(client, req.AckID, err)
			return
		}
		h.ack(client, req.AckID, gin.H{
			"message":     result.Message,
			"chat_id":     result.ChatID,
			"is_new_chat": result.IsNewChat,
		})

	case "read_chat":
		var data struct {
			ChatID int `json:"chat_id"`
		}
		if err := json.Unmarshal(req.Data, &data); err != nil {
			h.ackErr(client, req.AckID, chat.ErrInvalidInput)
			return
		}
		if err := h.svc.MarkRead(ctx, data.ChatID, userID); err != nil {
			h.ackErr(client, req.AckID, err)
			return
		}
		h.ack(client, req.AckID, gin.H{"ok": true})

	case "set_reaction":
		var data struct {
			MessageID int     `json:"message_id"`
			Reaction  *string `json:"reaction"`
		}
		if err := json.Unmarshal(req.Data, &data); err != nil {
			h.ackErr(client, req.AckID, chat.ErrInvalidInput)
			return
		}
		msg, err := h.svc.React(ctx, userID, data.MessageID, data.Reaction)
		if err != nil {
			h.ackErr(client, req.AckID, err)
			return
		}
		h.ack(client, req.AckID, gin.H{"message": msg})

	case "change_message":
		var data struct {
			MessageID int      `json:"message_id"`
			Text      *string  `json:"text"`
			Media     []string `json:"media"`
		}
		if err := json.Unmarshal(req.Data, &data); err != nil {
			h.ackErr(client, req.AckID, chat.ErrInvalidInput)
			return
		}
		msg, err := h.svc.Edit(ctx, userID, data.MessageID, data.Text, data.Media)
		if err != nil {
			h.ackErr(client, req.AckID, err)
			return
		}
		h.ack(client, req.AckID, gin.H{"message": msg})

	case "delete_message":
		var data struct {
			MessageID int `json:"message_id"`
		}
		if err := json.Unmarshal(req.Data, &data); err != nil {
			h.ackErr(client, req.AckID, chat.ErrInvalidInput)
			return
		}
		if err := h.svc.Delete(ctx, userID, data.MessageID); err != nil {
			h.ackErr(client, req.AckID, err)
			return
		}
		h.ack(client, req.AckID, gin.H{"ok": true})

	case "type_message":
		var data struct {
			ChatID   int  `json:"chat_id"`
			IsTyping bool `json:"is_typing"`
		}
		if err := json.Unmarshal(req.Data, &data); err != nil {
			return
		}
		h.svc.Typing(ctx, data.ChatID, userID, data.IsTyping)

	default:
		h.ack(client, req.AckID, gin.H{"error": "unknown event"})
	}
}

func (h *SocketHandler) ack(client *Client, ackID *int64, payload interface{}) {
	if ackID == nil {
		return
	}
	if err := client.Ack(*ackID, payload); err != nil {
		h.log.Warnw("ack write failed", "conn_id", client.Info.ConnID, "error", err)
	}
}

func (h *SocketHandler) ackErr(client *Client, ackID *int64, err error) {
	h.ack(client, ackID, gin.H{"error": errorCode(err)})
}

// errorCode maps the failure taxonomy to wire codes.
func errorCode(err error) string {
	switch {
	case errors.Is(err, chat.ErrNotFound):
		return "not_found"
	case errors.Is(err, chat.ErrForbidden):
		return "forbidden"
	case errors.Is(err, chat.ErrInvalidReference):
		return "invalid_reference"
	case errors.Is(err, chat.ErrNoChange):
		return "no_change"
	case errors.Is(err, chat.ErrInvalidInput):
		return "invalid_input"
	default:
		return "internal"
	}
}

func (h *SocketHandler) validateToken(header string) (int, error) {
	parts := strings.Split(header, " ")
	if len(parts) == 2 {
		return h.validate(parts[1])
	}
	return 0, errors.New("invalid token")
}
