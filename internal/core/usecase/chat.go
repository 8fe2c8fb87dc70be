package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/kirillkom/plant-health-assistant/internal/core/assistant"
	"github.com/kirillkom/plant-health-assistant/internal/core/domain"
	"github.com/kirillkom/plant-health-assistant/internal/core/ports"
)

const maxChatMessageRunes = 2000

// IntentObserver is notified of every answered intent.
type IntentObserver interface {
	ObserveIntent(intent string)
}

type ChatUseCase struct {
	chats    ports.ChatRepository
	analyses ports.AnalysisRepository
	observer IntentObserver
	now      func() time.Time
}

func NewChatUseCase(chats ports.ChatRepository, analyses ports.AnalysisRepository, observer IntentObserver) *ChatUseCase {
	return &ChatUseCase{
		chats:    chats,
		analyses: analyses,
		observer: observer,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Start returns the active session for (user, analysis), creating it when absent.
func (uc *ChatUseCase) Start(ctx context.Context, userID, analysisID string) (*domain.ChatSession, error) {
	if userID == "" {
		return nil, domain.WrapError(domain.ErrUnauthorized, "start chat", errors.New("missing user identity"))
	}
	if analysisID != "" {
		if _, err := uc.readableAnalysis(ctx, analysisID, userID); err != nil {
			return nil, err
		}
	}

	session, err := uc.chats.FindActive(ctx, userID, analysisID)
	if err == nil {
		return session, nil
	}
	if !domain.IsKind(err, domain.ErrChatNotFound) {
		return nil, fmt.Errorf("find active chat: %w", err)
	}

	now := uc.now()
	session = &domain.ChatSession{
		ID:           uuid.NewString(),
		UserID:       userID,
		AnalysisID:   analysisID,
		Title:        domain.ChatTitleFor(analysisID),
		Messages:     []domain.ChatMessage{},
		IsActive:     true,
		LastActivity: now,
		Summary:      domain.EmptyChatSummary,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := uc.chats.Create(ctx, session); err != nil {
		// A concurrent request created the session first.
		if domain.IsKind(err, domain.ErrConflict) {
			return uc.chats.FindActive(ctx, userID, analysisID)
		}
		return nil, fmt.Errorf("create chat: %w", err)
	}
	return session, nil
}

func (uc *ChatUseCase) SendMessage(ctx context.Context, input domain.ChatInput) (domain.ChatReply, error) {
	text := strings.TrimSpace(input.Message)
	if text == "" {
		return domain.ChatReply{}, domain.WrapError(domain.ErrInvalidInput, "send message", errors.New("message is required"))
	}
	if utf8.RuneCountInString(text) > maxChatMessageRunes {
		return domain.ChatReply{}, domain.WrapError(domain.ErrInvalidInput, "send message", fmt.Errorf("message exceeds %d characters", maxChatMessageRunes))
	}
	msgType, err := domain.ParseMessageType(string(input.Type))
	if err != nil {
		return domain.ChatReply{}, err
	}

	session, err := uc.resolveSession(ctx, input)
	if err != nil {
		return domain.ChatReply{}, err
	}

	var analysis *domain.Analysis
	if session.AnalysisID != "" {
		analysis, err = uc.readableAnalysis(ctx, session.AnalysisID, input.UserID)
		switch {
		case err == nil:
		case domain.IsKind(err, domain.ErrAnalysisNotFound):
			// The analysis was deleted; answer without context.
			analysis = nil
		default:
			return domain.ChatReply{}, err
		}
	}

	reply := assistant.Respond(text, analysis)
	now := uc.now()
	messages := []domain.ChatMessage{
		{Content: text, Sender: domain.SenderUser, Timestamp: now, MessageType: msgType},
		{
			Content:     reply.Text,
			Sender:      domain.SenderAI,
			Timestamp:   now,
			MessageType: domain.MessageText,
			Metadata:    map[string]string{"intent": string(reply.Intent)},
		},
	}
	for _, m := range messages {
		session.Append(m)
	}
	session.RecomputeSummary()

	if err := uc.chats.AppendMessages(ctx, session, messages); err != nil {
		return domain.ChatReply{}, fmt.Errorf("persist chat messages: %w", err)
	}
	if uc.observer != nil {
		uc.observer.ObserveIntent(string(reply.Intent))
	}

	out := domain.ChatReply{
		ChatID:    session.ID,
		Intent:    string(reply.Intent),
		Response:  reply.Text,
		Timestamp: now,
	}
	if analysis != nil {
		out.AnalysisID = analysis.ID
	}
	return out, nil
}

func (uc *ChatUseCase) History(ctx context.Context, userID, chatID string) (*domain.ChatSession, error) {
	return uc.ownedSession(ctx, userID, chatID)
}

func (uc *ChatUseCase) List(ctx context.Context, userID string, query domain.ChatListQuery) (domain.ChatPage, error) {
	if userID == "" {
		return domain.ChatPage{}, domain.WrapError(domain.ErrUnauthorized, "list chats", errors.New("missing user identity"))
	}
	query = query.Normalize()
	items, total, err := uc.chats.ListByUser(ctx, userID, query)
	if err != nil {
		return domain.ChatPage{}, fmt.Errorf("list chats: %w", err)
	}
	if items == nil {
		items = []domain.ChatSession{}
	}
	return domain.ChatPage{
		Chats:      items,
		Page:       query.Page,
		PageSize:   query.Limit,
		Total:      total,
		TotalPages: domain.TotalPages(total, query.Limit),
	}, nil
}

func (uc *ChatUseCase) Deactivate(ctx context.Context, userID, chatID string) error {
	if _, err := uc.ownedSession(ctx, userID, chatID); err != nil {
		return err
	}
	if err := uc.chats.Deactivate(ctx, chatID); err != nil {
		return fmt.Errorf("deactivate chat: %w", err)
	}
	return nil
}

func (uc *ChatUseCase) resolveSession(ctx context.Context, input domain.ChatInput) (*domain.ChatSession, error) {
	if input.ChatID == "" {
		return uc.Start(ctx, input.UserID, input.AnalysisID)
	}
	session, err := uc.ownedSession(ctx, input.UserID, input.ChatID)
	if err != nil {
		return nil, err
	}
	if !session.IsActive {
		return nil, domain.WrapError(domain.ErrConflict, "send message", fmt.Errorf("chat %s is inactive", session.ID))
	}
	return session, nil
}

// ownedSession hides sessions of other users behind not-found.
func (uc *ChatUseCase) ownedSession(ctx context.Context, userID, chatID string) (*domain.ChatSession, error) {
	session, err := uc.chats.GetByID(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !session.OwnedBy(userID) {
		return nil, domain.WrapError(domain.ErrChatNotFound, "get chat", fmt.Errorf("chat %s", chatID))
	}
	return session, nil
}

func (uc *ChatUseCase) readableAnalysis(ctx context.Context, analysisID, userID string) (*domain.Analysis, error) {
	analysis, err := uc.analyses.GetByID(ctx, analysisID)
	if err != nil {
		return nil, err
	}
	if !analysis.ReadableBy(userID) {
		return nil, domain.WrapError(domain.ErrAccessDenied, "load chat context", fmt.Errorf("analysis %s is private", analysisID))
	}
	return analysis, nil
}
