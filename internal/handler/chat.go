package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/9thLevelSoftware/vlvt-ephemeral/internal/errors"
	"github.com/9thLevelSoftware/vlvt-ephemeral/internal/middleware"
	"github.com/9thLevelSoftware/vlvt-ephemeral/internal/model"
	"github.com/9thLevelSoftware/vlvt-ephemeral/internal/service"
	"github.com/9thLevelSoftware/vlvt-ephemeral/internal/util"
)

type ChatHandler struct {
	chatService *service.ChatService
}

func NewChatHandler(chatService *service.ChatService) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
	}
}

type sendMessageRequest struct {
	Text         string `json:"text"`
	ClientTempID string `json:"clientTempId,omitempty"`
}

type sendMessageResponse struct {
	Message      *model.Message `json:"message"`
	ClientTempID string         `json:"clientTempId,omitempty"`
	Duplicate    bool           `json:"duplicate,omitempty"`
}

// POST /v1/matches/{matchID}/messages
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	connID := middleware.GetConnectionID(r.Context())

	matchID := chi.URLParam(r, "matchID")
	if !util.IsValidUUID(matchID) {
		writeError(w, apperrors.InvalidInput("matchId", "must be a valid identifier"))
		return
	}

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.Validation("Invalid request body"))
		return
	}

	result, err := h.chatService.SendMessage(r.Context(), service.SendMessageParams{
		MatchID:      matchID,
		SenderID:     userID,
		Text:         req.Text,
		ClientTempID: req.ClientTempID,
		ConnectionID: connID,
	})
	if err != nil {
		if appErr, ok := apperrors.AsAppError(err); ok && appErr.Code == apperrors.ErrCodeRateLimited {
			w.Header().Set("Retry-After", "60")
		}
		writeError(w, err)
		return
	}

	setRateLimitHeaders(w, result.RateLimit)

	status := http.StatusCreated
	if result.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, sendMessageResponse{
		Message:      result.Message,
		ClientTempID: result.ClientTempID,
		Duplicate:    result.Duplicate,
	})
}

type historyResponse struct {
	Messages []model.Message `json:"messages"`
	HasMore  bool            `json:"hasMore"`
}

// GET /v1/matches/{matchID}/messages?before=<ISO-8601>
func (h *ChatHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	matchID := chi.URLParam(r, "matchID")
	if !util.IsValidUUID(matchID) {
		writeError(w, apperrors.InvalidInput("matchId", "must be a valid identifier"))
		return
	}

	before, err := ParseBeforeCursor(r)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := h.chatService.GetHistory(r.Context(), matchID, userID, before)
	if err != nil {
		writeError(w, err)
		return
	}

	messages := result.Messages
	if messages == nil {
		messages = []model.Message{}
	}
	writeJSON(w, http.StatusOK, historyResponse{
		Messages: messages,
		HasMore:  result.HasMore,
	})
}

// POST /v1/matches/{matchID}/typing
func (h *ChatHandler) Typing(w http.ResponseWriter, r *http.Request) {
	h.ephemeral(w, r, h.chatService.NotifyTyping)
}

// POST /v1/matches/{matchID}/presence
func (h *ChatHandler) Presence(w http.ResponseWriter, r *http.Request) {
	h.ephemeral(w, r, h.chatService.NotifyPresence)
}

func (h *ChatHandler) ephemeral(
	w http.ResponseWriter,
	r *http.Request,
	notify func(ctx context.Context, matchID, senderID, connectionID string) error,
) {
	userID := middleware.GetUserID(r.Context())
	connID := middleware.GetConnectionID(r.Context())

	matchID := chi.URLParam(r, "matchID")
	if !util.IsValidUUID(matchID) {
		writeError(w, apperrors.InvalidInput("matchId", "must be a valid identifier"))
		return
	}

	if err := notify(r.Context(), matchID, userID, connID); err != nil {
		if appErr, ok := apperrors.AsAppError(err); ok && appErr.Code == apperrors.ErrCodeRateLimited {
			w.Header().Set("Retry-After", "60")
		}
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
