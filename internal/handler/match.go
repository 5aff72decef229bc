package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/9thLevelSoftware/vlvt-ephemeral/internal/errors"
	"github.com/9thLevelSoftware/vlvt-ephemeral/internal/middleware"
	"github.com/9thLevelSoftware/vlvt-ephemeral/internal/service"
	"github.com/9thLevelSoftware/vlvt-ephemeral/internal/util"
)

type MatchHandler struct {
	matchService *service.MatchService
}

func NewMatchHandler(matchService *service.MatchService) *MatchHandler {
	return &MatchHandler{
		matchService: matchService,
	}
}

// InternalRoutes are trusted-network endpoints for the candidate
// matching producer and the permanent-match subsystem.
func (h *MatchHandler) InternalRoutes() chi.Router {
	r := chi.NewRouter()

	r.Post("/propose", h.Propose)
	r.Post("/{matchID}/convert", h.Convert)

	return r
}

// GET /v1/matches/{matchID}
func (h *MatchHandler) GetMatch(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	matchID := chi.URLParam(r, "matchID")
	if !util.IsValidUUID(matchID) {
		writeError(w, apperrors.InvalidInput("matchId", "must be a valid identifier"))
		return
	}

	match, err := h.matchService.GetMatch(r.Context(), userID, matchID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, match)
}

// POST /v1/matches/{matchID}/decline
func (h *MatchHandler) Decline(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	matchID := chi.URLParam(r, "matchID")
	if !util.IsValidUUID(matchID) {
		writeError(w, apperrors.InvalidInput("matchId", "must be a valid identifier"))
		return
	}

	match, err := h.matchService.Decline(r.Context(), matchID, userID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, match)
}

type proposeMatchRequest struct {
	UserIDA string `json:"userIdA"`
	UserIDB string `json:"userIdB"`
}

// POST /internal/matches/propose
func (h *MatchHandler) Propose(w http.ResponseWriter, r *http.Request) {
	var req proposeMatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.Validation("Invalid request body"))
		return
	}

	match, err := h.matchService.Propose(r.Context(), req.UserIDA, req.UserIDB)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, match)
}

type convertMatchRequest struct {
	PermanentMatchID string `json:"permanentMatchId"`
}

// POST /internal/matches/{matchID}/convert
func (h *MatchHandler) Convert(w http.ResponseWriter, r *http.Request) {
	matchID := chi.URLParam(r, "matchID")
	if !util.IsValidUUID(matchID) {
		writeError(w, apperrors.InvalidInput("matchId", "must be a valid identifier"))
		return
	}

	var req convertMatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.Validation("Invalid request body"))
		return
	}

	match, err := h.matchService.Convert(r.Context(), matchID, req.PermanentMatchID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, match)
}
