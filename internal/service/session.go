package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/9thLevelSoftware/vlvt-ephemeral/internal/audit"
	apperrors "github.com/9thLevelSoftware/vlvt-ephemeral/internal/errors"
	"github.com/9thLevelSoftware/vlvt-ephemeral/internal/model"
	"github.com/9thLevelSoftware/vlvt-ephemeral/internal/repository"
	"github.com/9thLevelSoftware/vlvt-ephemeral/internal/util"
)

type StartSessionParams struct {
	OwnerUserID     string
	DurationMinutes int
	Latitude        float64
	Longitude       float64
	FingerprintHash *string
}

type SessionService struct {
	sessionRepo     repository.SessionRepository
	fingerprintRepo repository.DeviceFingerprintRepository
}

func NewSessionService(
	sessionRepo repository.SessionRepository,
	fingerprintRepo repository.DeviceFingerprintRepository,
) *SessionService {
	return &SessionService{
		sessionRepo:     sessionRepo,
		fingerprintRepo: fingerprintRepo,
	}
}

// StartSession validates inputs and creates an immediately active
// session. There is no pending state.
func (s *SessionService) StartSession(ctx context.Context, params StartSessionParams) (*model.Session, error) {
	if !model.IsValidDuration(params.DurationMinutes) {
		return nil, apperrors.InvalidInput("durationMinutes", "must be 15, 30, or 60")
	}
	if !util.IsValidLatitude(params.Latitude) {
		return nil, apperrors.InvalidInput("latitude", "must be between -90 and 90")
	}
	if !util.IsValidLongitude(params.Longitude) {
		return nil, apperrors.InvalidInput("longitude", "must be between -180 and 180")
	}

	now := time.Now().UTC()
	session, err := s.sessionRepo.Create(ctx, model.CreateSessionParams{
		OwnerUserID:     params.OwnerUserID,
		DurationMinutes: params.DurationMinutes,
		Latitude:        params.Latitude,
		Longitude:       params.Longitude,
		StartedAt:       now,
		ExpiresAt:       now.Add(time.Duration(params.DurationMinutes) * time.Minute),
	})
	if err != nil {
		return nil, apperrors.Database(fmt.Errorf("create session: %w", err))
	}

	if params.FingerprintHash != nil && *params.FingerprintHash != "" {
		// Fingerprint capture is lookup-only metadata; a failure here
		// must not fail the session start.
		if _, err := s.fingerprintRepo.Create(ctx, model.CreateDeviceFingerprintParams{
			SessionID:       &session.ID,
			FingerprintHash: *params.FingerprintHash,
		}); err != nil {
			log.Warn().Err(err).Str("sessionId", session.ID).Msg("failed to record device fingerprint")
		}
	}

	log.Info().
		Str("sessionId", session.ID).
		Str("ownerUserId", session.OwnerUserID).
		Int("durationMinutes", session.DurationMinutes).
		Time("expiresAt", session.ExpiresAt).
		Msg("session started")

	audit.Log(ctx, audit.Event{
		Type:      audit.EventSessionStart,
		UserID:    session.OwnerUserID,
		SessionID: session.ID,
		Details:   map[string]interface{}{"durationMinutes": session.DurationMinutes},
	})

	return session, nil
}

// ExtendSession advances expiry by the requested amount. Valid only
// while the session is still live; there is no cumulative cap.
func (s *SessionService) ExtendSession(ctx context.Context, callerID, sessionID string, additionalMinutes int) (*model.Session, error) {
	if !model.IsValidDuration(additionalMinutes) {
		return nil, apperrors.InvalidInput("additionalMinutes", "must be 15, 30, or 60")
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, apperrors.Database(fmt.Errorf("find session: %w", err))
	}
	if session == nil {
		return nil, apperrors.NotFound("Session")
	}
	if session.OwnerUserID != callerID {
		return nil, apperrors.Forbidden("Caller does not own this session")
	}

	extended, err := s.sessionRepo.Extend(ctx, sessionID, additionalMinutes)
	if err != nil {
		return nil, apperrors.Database(fmt.Errorf("extend session: %w", err))
	}
	if extended == nil {
		// Guard failed: the session ended or expired after the read above.
		return nil, apperrors.InvalidState("Session is already ended or expired")
	}

	log.Info().
		Str("sessionId", extended.ID).
		Int("additionalMinutes", additionalMinutes).
		Time("expiresAt", extended.ExpiresAt).
		Msg("session extended")

	audit.Log(ctx, audit.Event{
		Type:      audit.EventSessionExtend,
		UserID:    callerID,
		SessionID: extended.ID,
		Details:   map[string]interface{}{"additionalMinutes": additionalMinutes},
	})

	return extended, nil
}

// EndSession closes the session explicitly. Ended is terminal.
func (s *SessionService) EndSession(ctx context.Context, callerID, sessionID string) (*model.Session, error) {
	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, apperrors.Database(fmt.Errorf("find session: %w", err))
	}
	if session == nil {
		return nil, apperrors.NotFound("Session")
	}
	if session.OwnerUserID != callerID {
		return nil, apperrors.Forbidden("Caller does not own this session")
	}

	ended, err := s.sessionRepo.End(ctx, sessionID, time.Now().UTC())
	if err != nil {
		return nil, apperrors.Database(fmt.Errorf("end session: %w", err))
	}
	if ended == nil {
		return nil, apperrors.InvalidState("Session is already ended")
	}

	log.Info().Str("sessionId", ended.ID).Msg("session ended")

	audit.Log(ctx, audit.Event{
		Type:      audit.EventSessionEnd,
		UserID:    callerID,
		SessionID: ended.ID,
	})

	return ended, nil
}

// GetSession returns the caller's session.
func (s *SessionService) GetSession(ctx context.Context, callerID, sessionID string) (*model.Session, error) {
	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, apperrors.Database(fmt.Errorf("find session: %w", err))
	}
	if session == nil {
		return nil, apperrors.NotFound("Session")
	}
	if session.OwnerUserID != callerID {
		return nil, apperrors.Forbidden("Caller does not own this session")
	}
	return session, nil
}
