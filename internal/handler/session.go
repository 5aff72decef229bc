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

type SessionHandler struct {
	sessionService *service.SessionService
}

func NewSessionHandler(sessionService *service.SessionService) *SessionHandler {
	return &SessionHandler{
		sessionService: sessionService,
	}
}

func (h *SessionHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.StartSession)
	r.Get("/{sessionID}", h.GetSession)
	r.Post("/{sessionID}/extend", h.ExtendSession)
	r.Post("/{sessionID}/end", h.EndSession)

	return r
}

type startSessionRequest struct {
	DurationMinutes int     `json:"durationMinutes"`
	Latitude        float64 `json:"latitude"`
	Longitude       float64 `json:"longitude"`
	FingerprintHash *string `json:"fingerprintHash,omitempty"`
}

// POST /v1/sessions
func (h *SessionHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req startSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.Validation("Invalid request body"))
		return
	}

	session, err := h.sessionService.StartSession(r.Context(), service.StartSessionParams{
		OwnerUserID:     userID,
		DurationMinutes: req.DurationMinutes,
		Latitude:        req.Latitude,
		Longitude:       req.Longitude,
		FingerprintHash: req.FingerprintHash,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, session)
}

// GET /v1/sessions/{sessionID}
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	sessionID := chi.URLParam(r, "sessionID")
	if !util.IsValidUUID(sessionID) {
		writeError(w, apperrors.InvalidInput("sessionId", "must be a valid identifier"))
		return
	}

	session, err := h.sessionService.GetSession(r.Context(), userID, sessionID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

type extendSessionRequest struct {
	AdditionalMinutes int `json:"additionalMinutes"`
}

// POST /v1/sessions/{sessionID}/extend
func (h *SessionHandler) ExtendSession(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	sessionID := chi.URLParam(r, "sessionID")
	if !util.IsValidUUID(sessionID) {
		writeError(w, apperrors.InvalidInput("sessionId", "must be a valid identifier"))
		return
	}

	var req extendSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.Validation("Invalid request body"))
		return
	}

	session, err := h.sessionService.ExtendSession(r.Context(), userID, sessionID, req.AdditionalMinutes)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// POST /v1/sessions/{sessionID}/end
func (h *SessionHandler) EndSession(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	sessionID := chi.URLParam(r, "sessionID")
	if !util.IsValidUUID(sessionID) {
		writeError(w, apperrors.InvalidInput("sessionId", "must be a valid identifier"))
		return
	}

	session, err := h.sessionService.EndSession(r.Context(), userID, sessionID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, session)
}
