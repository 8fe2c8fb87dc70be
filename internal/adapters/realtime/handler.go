package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kirillkom/plant-health-assistant/internal/core/domain"
)

const (
	EventJoinRoom     = "join-room"
	EventJoinAnalysis = "join-analysis"
	EventChatMessage  = "chat-message"
	EventChatResponse = "chat-response"
	EventChatError    = "chat-error"

	sendBufferSize = 256
	maxMessageSize = 16 << 10
)

// ChatResponder answers a chat message and persists both sides.
type ChatResponder interface {
	SendMessage(ctx context.Context, input domain.ChatInput) (domain.ChatReply, error)
}

// RoomAuthorizer decides whether userID may subscribe to room.
type RoomAuthorizer interface {
	CanJoin(ctx context.Context, userID, room string) error
}

type HandlerOptions struct {
	// AllowedOrigins lists accepted Origin headers; empty accepts same-host only.
	AllowedOrigins []string
	ChatTimeout    time.Duration
	PingPeriod     time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	Authorizer     RoomAuthorizer
	Observer       Observer
}

type Handler struct {
	hub        *Hub
	chats      ChatResponder
	authorizer RoomAuthorizer
	observer   Observer
	upgrader   websocket.Upgrader

	chatTimeout time.Duration
	pingPeriod  time.Duration
	pongWait    time.Duration
	writeWait   time.Duration
}

func NewHandler(hub *Hub, chats ChatResponder, opts HandlerOptions) *Handler {
	h := &Handler{
		hub:         hub,
		chats:       chats,
		authorizer:  opts.Authorizer,
		observer:    opts.Observer,
		chatTimeout: opts.ChatTimeout,
		pingPeriod:  opts.PingPeriod,
		pongWait:    opts.PongWait,
		writeWait:   opts.WriteWait,
	}
	if h.chatTimeout <= 0 {
		h.chatTimeout = 15 * time.Second
	}
	if h.pongWait <= 0 {
		h.pongWait = 60 * time.Second
	}
	if h.pingPeriod <= 0 || h.pingPeriod >= h.pongWait {
		h.pingPeriod = h.pongWait * 9 / 10
	}
	if h.writeWait <= 0 {
		h.writeWait = 10 * time.Second
	}

	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	}
	if len(opts.AllowedOrigins) > 0 {
		allowed := map[string]struct{}{}
		wildcard := false
		for _, o := range opts.AllowedOrigins {
			o = strings.TrimRight(strings.TrimSpace(o), "/")
			if o == "*" {
				wildcard = true
			}
			allowed[o] = struct{}{}
		}
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || wildcard {
				return true
			}
			_, ok := allowed[strings.TrimRight(origin, "/")]
			return ok
		}
	}
	return h
}

// ServeHTTP upgrades the request. Identity comes from X-User-ID or the userId query parameter.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.Header.Get("X-User-ID"))
	if userID == "" {
		userID = strings.TrimSpace(r.URL.Query().Get("userId"))
	}
	if userID == "" {
		http.Error(w, `{"error":"missing user identity"}`, http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws_upgrade_failed", "error", err)
		return
	}

	client := &Client{
		hub:    h.hub,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		userID: userID,
	}
	if !h.hub.attach(client) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(h.writeWait))
		_ = conn.Close()
		return
	}

	go client.writePump(h.pingPeriod, h.writeWait)
	go client.readPump(h)
}

type inboundEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type joinPayload struct {
	RoomID     string `json:"roomId"`
	AnalysisID string `json:"analysisId"`
}

type chatPayload struct {
	Message    string `json:"message"`
	AnalysisID string `json:"analysisId"`
	ChatID     string `json:"chatId"`
}

type chatResponse struct {
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`
	ChatID    string    `json:"chatId"`
	Intent    string    `json:"intent"`
}

type chatError struct {
	Message string `json:"message"`
}

func (h *Handler) dispatch(ctx context.Context, c *Client, in inboundEvent) {
	if h.observer != nil {
		h.observer.ObserveEvent(in.Event)
	}
	switch in.Event {
	case EventJoinRoom, EventJoinAnalysis:
		h.handleJoin(ctx, c, in.Data)
	case EventChatMessage:
		h.handleChat(ctx, c, in.Data)
	default:
		h.hub.sendTo(c, EventChatError, chatError{Message: "unknown event " + in.Event})
	}
}

func (h *Handler) handleJoin(ctx context.Context, c *Client, raw json.RawMessage) {
	room := decodeRoom(raw)
	if room == "" {
		h.hub.sendTo(c, EventChatError, chatError{Message: "room id is required"})
		return
	}
	if h.authorizer != nil {
		if err := h.authorizer.CanJoin(ctx, c.userID, room); err != nil {
			h.hub.sendTo(c, EventChatError, chatError{Message: "cannot join room"})
			return
		}
	}
	h.hub.joinRoom(c, room)
}

// decodeRoom accepts a bare string or an object with roomId or analysisId.
func decodeRoom(raw json.RawMessage) string {
	var room string
	if err := json.Unmarshal(raw, &room); err == nil {
		return strings.TrimSpace(room)
	}
	var p joinPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return ""
	}
	if p.RoomID != "" {
		return strings.TrimSpace(p.RoomID)
	}
	return strings.TrimSpace(p.AnalysisID)
}

func (h *Handler) handleChat(ctx context.Context, c *Client, raw json.RawMessage) {
	var p chatPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		h.hub.sendTo(c, EventChatError, chatError{Message: "invalid chat payload"})
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, h.chatTimeout)
	defer cancel()
	reply, err := h.chats.SendMessage(callCtx, domain.ChatInput{
		UserID:     c.userID,
		ChatID:     p.ChatID,
		AnalysisID: p.AnalysisID,
		Message:    p.Message,
	})
	if err != nil {
		slog.Warn("ws_chat_failed", "user_id", c.userID, "analysis_id", p.AnalysisID, "error", err)
		h.hub.sendTo(c, EventChatError, chatError{Message: chatErrorMessage(err)})
		return
	}

	resp := chatResponse{
		Message:   reply.Response,
		Timestamp: reply.Timestamp,
		Type:      string(domain.SenderAI),
		ChatID:    reply.ChatID,
		Intent:    reply.Intent,
	}
	// The room comes from the session, never from the payload.
	if reply.AnalysisID != "" {
		h.hub.Publish(reply.AnalysisID, EventChatResponse, resp)
		return
	}
	h.hub.sendTo(c, EventChatResponse, resp)
}

func chatErrorMessage(err error) string {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return "Tin nhắn không hợp lệ"
	case domain.IsKind(err, domain.ErrAccessDenied), domain.IsKind(err, domain.ErrChatNotFound), domain.IsKind(err, domain.ErrAnalysisNotFound):
		return "Không tìm thấy cuộc trò chuyện"
	case errors.Is(err, context.DeadlineExceeded):
		return "Hết thời gian xử lý tin nhắn"
	default:
		return "Lỗi khi xử lý tin nhắn"
	}
}
