package httpadapter

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kirillkom/plant-health-assistant/internal/core/domain"
)

type chatMessageRequest struct {
	Message     string `json:"message"`
	AnalysisID  string `json:"analysisId"`
	ChatID      string `json:"chatId"`
	MessageType string `json:"messageType"`
}

func (rt *Router) listChats(w http.ResponseWriter, r *http.Request) error {
	var page, limit *int
	if err := bindQuery(r, "page", false, &page); err != nil {
		return err
	}
	if err := bindQuery(r, "limit", false, &limit); err != nil {
		return err
	}
	result, err := rt.deps.Chats.List(r.Context(), userIDFromContext(r.Context()), domain.ChatListQuery{
		Page:  intOr(page, 1),
		Limit: intOr(limit, domain.DefaultPageSize),
	})
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, result)
	return nil
}

func (rt *Router) startChat(w http.ResponseWriter, r *http.Request) error {
	var req struct {
		AnalysisID string `json:"analysisId"`
	}
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			return err
		}
	}
	session, err := rt.deps.Chats.Start(r.Context(), userIDFromContext(r.Context()), req.AnalysisID)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, session)
	return nil
}

// sendMessage serves both the session-scoped route and the lazy one where the
// session is resolved from the analysis.
func (rt *Router) sendMessage(w http.ResponseWriter, r *http.Request) error {
	var req chatMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return err
	}
	messageType, err := domain.ParseMessageType(req.MessageType)
	if err != nil {
		return err
	}
	chatID := chi.URLParam(r, "chatId")
	if chatID == "" {
		chatID = req.ChatID
	}

	reply, err := rt.deps.Chats.SendMessage(r.Context(), domain.ChatInput{
		UserID:     userIDFromContext(r.Context()),
		ChatID:     chatID,
		AnalysisID: req.AnalysisID,
		Message:    req.Message,
		Type:       messageType,
	})
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, reply)
	return nil
}

func (rt *Router) chatHistory(w http.ResponseWriter, r *http.Request) error {
	session, err := rt.deps.Chats.History(r.Context(), userIDFromContext(r.Context()), chi.URLParam(r, "chatId"))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, session)
	return nil
}

func (rt *Router) deactivateChat(w http.ResponseWriter, r *http.Request) error {
	if err := rt.deps.Chats.Deactivate(r.Context(), userIDFromContext(r.Context()), chi.URLParam(r, "chatId")); err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Chat deactivated"})
	return nil
}
