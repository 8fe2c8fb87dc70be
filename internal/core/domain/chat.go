package domain

import (
	"fmt"
	"strings"
	"time"
)

type Sender string

const (
	SenderUser Sender = "user"
	SenderAI   Sender = "ai"
)

type MessageType string

const (
	MessageText           MessageType = "text"
	MessageImage          MessageType = "image"
	MessageAnalysisResult MessageType = "analysis_result"
)

func ParseMessageType(raw string) (MessageType, error) {
	switch t := MessageType(strings.TrimSpace(raw)); t {
	case "":
		return MessageText, nil
	case MessageText, MessageImage, MessageAnalysisResult:
		return t, nil
	default:
		return "", WrapError(ErrInvalidInput, "parse message type", fmt.Errorf("unknown message type %q", raw))
	}
}

const (
	ChatTitleAnalysis = "Chat về phân tích cây"
	ChatTitleDefault  = "Chat mới"
	EmptyChatSummary  = "Empty chat"

	summaryMessageRunes = 50
	summaryMaxRunes     = 100
)

type ChatMessage struct {
	Content     string            `json:"content"`
	Sender      Sender            `json:"sender"`
	Timestamp   time.Time         `json:"timestamp"`
	MessageType MessageType       `json:"message_type"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type ChatSession struct {
	ID           string        `json:"id"`
	UserID       string        `json:"user_id"`
	AnalysisID   string        `json:"analysis_id,omitempty"`
	Title        string        `json:"title"`
	Messages     []ChatMessage `json:"messages"`
	IsActive     bool          `json:"is_active"`
	LastActivity time.Time     `json:"last_activity"`
	Summary      string        `json:"summary"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

func ChatTitleFor(analysisID string) string {
	if analysisID != "" {
		return ChatTitleAnalysis
	}
	return ChatTitleDefault
}

// Append adds a message and bumps activity timestamps. The summary is not touched.
func (s *ChatSession) Append(msg ChatMessage) {
	if msg.MessageType == "" {
		msg.MessageType = MessageText
	}
	s.Messages = append(s.Messages, msg)
	s.LastActivity = msg.Timestamp
	s.UpdatedAt = msg.Timestamp
}

// RecomputeSummary rebuilds the summary from user messages.
func (s *ChatSession) RecomputeSummary() {
	parts := make([]string, 0, len(s.Messages))
	for _, msg := range s.Messages {
		if msg.Sender != SenderUser {
			continue
		}
		parts = append(parts, truncateRunes(msg.Content, summaryMessageRunes))
	}
	if len(parts) == 0 {
		s.Summary = EmptyChatSummary
		return
	}
	joined := strings.Join(parts, ", ")
	if runes := []rune(joined); len(runes) > summaryMaxRunes {
		joined = string(runes[:summaryMaxRunes]) + "..."
	}
	s.Summary = joined
}

func (s *ChatSession) OwnedBy(userID string) bool {
	return s.UserID == userID
}

func truncateRunes(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit])
}

type ChatListQuery struct {
	Page  int
	Limit int
}

func (q ChatListQuery) Normalize() ChatListQuery {
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.Limit <= 0 {
		q.Limit = DefaultPageSize
	}
	if q.Limit > MaxPageSize {
		q.Limit = MaxPageSize
	}
	return q
}

type ChatPage struct {
	Chats      []ChatSession `json:"chats"`
	Page       int           `json:"current_page"`
	PageSize   int           `json:"page_size"`
	Total      int64         `json:"total"`
	TotalPages int           `json:"total_pages"`
}

// ChatReply is returned after a message was answered and persisted.
type ChatReply struct {
	ChatID     string    `json:"chat_id"`
	AnalysisID string    `json:"analysis_id,omitempty"` // set only when readable by the sender
	Intent     string    `json:"intent"`
	Response   string    `json:"response"`
	Timestamp  time.Time `json:"timestamp"`
}
