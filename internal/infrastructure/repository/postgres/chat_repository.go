package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kirillkom/plant-health-assistant/internal/core/domain"
)

const chatColumns = `id, user_id, analysis_id, title, is_active, last_activity, summary, created_at, updated_at`

type ChatRepository struct {
	db *sql.DB
}

func NewChatRepository(db *sql.DB) *ChatRepository {
	return &ChatRepository{db: db}
}

func (r *ChatRepository) FindActive(ctx context.Context, userID, analysisID string) (*domain.ChatSession, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+chatColumns+`
FROM chat_sessions
WHERE user_id = $1 AND analysis_id = $2 AND is_active
ORDER BY last_activity DESC
LIMIT 1
`, userID, analysisID)
	session, err := scanChat(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrChatNotFound, "find active chat", fmt.Errorf("user=%s analysis=%s", userID, analysisID))
		}
		return nil, fmt.Errorf("scan chat: %w", err)
	}
	if session.Messages, err = r.loadMessages(ctx, session.ID); err != nil {
		return nil, err
	}
	return &session, nil
}

// Create returns ErrConflict when an active session already exists for the pair.
func (r *ChatRepository) Create(ctx context.Context, s *domain.ChatSession) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO chat_sessions (`+chatColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
`, s.ID, s.UserID, s.AnalysisID, s.Title, s.IsActive, s.LastActivity, s.Summary, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.WrapError(domain.ErrConflict, "insert chat", err)
		}
		return fmt.Errorf("insert chat: %w", err)
	}
	return nil
}

func (r *ChatRepository) GetByID(ctx context.Context, id string) (*domain.ChatSession, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+chatColumns+` FROM chat_sessions WHERE id = $1`, id)
	session, err := scanChat(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrChatNotFound, "get chat", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("scan chat: %w", err)
	}
	if session.Messages, err = r.loadMessages(ctx, session.ID); err != nil {
		return nil, err
	}
	return &session, nil
}

// AppendMessages inserts the trailing messages of session at their positions and
// updates the session header in one transaction. A concurrent append to the same
// positions fails with ErrConflict.
func (r *ChatRepository) AppendMessages(ctx context.Context, s *domain.ChatSession, messages []domain.ChatMessage) error {
	start := len(s.Messages) - len(messages)
	if start < 0 {
		return fmt.Errorf("append chat messages: %d new messages exceed session length %d", len(messages), len(s.Messages))
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for i, msg := range messages {
		metadata, err := marshalJSON(msg.Metadata, "{}")
		if err != nil {
			return fmt.Errorf("marshal message metadata: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO chat_messages (chat_id, position, content, sender, message_type, metadata, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`, s.ID, start+i, msg.Content, string(msg.Sender), string(msg.MessageType), metadata, msg.Timestamp); err != nil {
			if isUniqueViolation(err) {
				return domain.WrapError(domain.ErrConflict, "append chat message", err)
			}
			return fmt.Errorf("insert chat message: %w", err)
		}
	}

	res, err := tx.ExecContext(ctx, `
UPDATE chat_sessions
SET summary = $2, last_activity = $3, updated_at = $4
WHERE id = $1
`, s.ID, s.Summary, s.LastActivity, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update chat session: %w", err)
	}
	if err := expectAffected(res, domain.ErrChatNotFound, "update chat session", s.ID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append tx: %w", err)
	}
	return nil
}

// ListByUser returns session headers without messages, most recent activity first.
func (r *ChatRepository) ListByUser(ctx context.Context, userID string, query domain.ChatListQuery) ([]domain.ChatSession, int64, error) {
	total, err := r.CountByUser(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.ChatSession{}, 0, nil
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT `+chatColumns+`
FROM chat_sessions
WHERE user_id = $1
ORDER BY last_activity DESC, id
LIMIT $2 OFFSET $3
`, userID, query.Limit, (query.Page-1)*query.Limit)
	if err != nil {
		return nil, 0, fmt.Errorf("list chats: %w", err)
	}
	defer rows.Close()

	out := make([]domain.ChatSession, 0)
	for rows.Next() {
		s, err := scanChat(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan chat: %w", err)
		}
		s.Messages = []domain.ChatMessage{}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate chats: %w", err)
	}
	return out, total, nil
}

func (r *ChatRepository) Deactivate(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE chat_sessions SET is_active = FALSE, updated_at = NOW() WHERE id = $1
`, id)
	if err != nil {
		return fmt.Errorf("deactivate chat: %w", err)
	}
	return expectAffected(res, domain.ErrChatNotFound, "deactivate chat", id)
}

func (r *ChatRepository) CountByUser(ctx context.Context, userID string) (int64, error) {
	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chat_sessions WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return 0, fmt.Errorf("count chats: %w", err)
	}
	return total, nil
}

func (r *ChatRepository) loadMessages(ctx context.Context, chatID string) ([]domain.ChatMessage, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT content, sender, message_type, metadata, created_at
FROM chat_messages
WHERE chat_id = $1
ORDER BY position
`, chatID)
	if err != nil {
		return nil, fmt.Errorf("list chat messages: %w", err)
	}
	defer rows.Close()

	out := make([]domain.ChatMessage, 0)
	for rows.Next() {
		var msg domain.ChatMessage
		var sender, msgType string
		var metadataRaw []byte
		if err := rows.Scan(&msg.Content, &sender, &msgType, &metadataRaw, &msg.Timestamp); err != nil {
			return nil, fmt.Errorf("scan chat message: %w", err)
		}
		msg.Sender = domain.Sender(sender)
		msg.MessageType = domain.MessageType(msgType)
		if len(metadataRaw) > 0 && string(metadataRaw) != "{}" {
			if err := json.Unmarshal(metadataRaw, &msg.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal message metadata: %w", err)
			}
		}
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chat messages: %w", err)
	}
	return out, nil
}

func scanChat(row rowScanner) (domain.ChatSession, error) {
	var s domain.ChatSession
	err := row.Scan(&s.ID, &s.UserID, &s.AnalysisID, &s.Title, &s.IsActive, &s.LastActivity, &s.Summary, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}
