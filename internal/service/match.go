package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/9thLevelSoftware/vlvt-ephemeral/internal/audit"
	"github.com/9thLevelSoftware/vlvt-ephemeral/internal/config"
	apperrors "github.com/9thLevelSoftware/vlvt-ephemeral/internal/errors"
	"github.com/9thLevelSoftware/vlvt-ephemeral/internal/model"
	"github.com/9thLevelSoftware/vlvt-ephemeral/internal/repository"
	"github.com/9thLevelSoftware/vlvt-ephemeral/internal/sse"
)

type MatchService struct {
	matchRepo   repository.MatchRepository
	declineRepo repository.DeclineRepository
	sessionRepo repository.SessionRepository
	broker      EventPublisher
}

func NewMatchService(
	matchRepo repository.MatchRepository,
	declineRepo repository.DeclineRepository,
	sessionRepo repository.SessionRepository,
	broker EventPublisher,
) *MatchService {
	return &MatchService{
		matchRepo:   matchRepo,
		declineRepo: declineRepo,
		sessionRepo: sessionRepo,
		broker:      broker,
	}
}

// Propose creates a Match for the unordered pair, or returns the
// existing one unchanged. A pair under an active decline suppression
// whose match row was already purged is rejected with a conflict
// rather than re-proposed inside the window.
func (s *MatchService) Propose(ctx context.Context, userIDA, userIDB string) (*model.Match, error) {
	if userIDA == "" || userIDB == "" {
		return nil, apperrors.MissingRequired("userIdA and userIdB")
	}
	if userIDA == userIDB {
		return nil, apperrors.Validation("Cannot match a user with themselves")
	}

	a, b := model.NormalizePair(userIDA, userIDB)

	existing, err := s.matchRepo.FindByPair(ctx, a, b)
	if err != nil {
		return nil, apperrors.Database(fmt.Errorf("find match by pair: %w", err))
	}
	if existing != nil {
		return existing, nil
	}

	since := time.Now().UTC().Add(-config.DeclineSuppressionWindow)
	suppression, err := s.declineRepo.FindActiveByPair(ctx, a, b, since)
	if err != nil {
		return nil, apperrors.Database(fmt.Errorf("find suppression: %w", err))
	}
	if suppression != nil {
		return nil, apperrors.Conflict("Pair is suppressed by a recent decline")
	}

	sessionA, err := s.sessionRepo.FindActiveByOwner(ctx, a)
	if err != nil {
		return nil, apperrors.Database(fmt.Errorf("find session: %w", err))
	}
	sessionB, err := s.sessionRepo.FindActiveByOwner(ctx, b)
	if err != nil {
		return nil, apperrors.Database(fmt.Errorf("find session: %w", err))
	}
	if sessionA == nil || sessionB == nil {
		return nil, apperrors.InvalidState("Both users need an active session")
	}

	expiresAt := sessionA.ExpiresAt
	if sessionB.ExpiresAt.Before(expiresAt) {
		expiresAt = sessionB.ExpiresAt
	}

	match, err := s.matchRepo.Create(ctx, model.CreateMatchParams{
		UserIDA:   a,
		UserIDB:   b,
		ExpiresAt: expiresAt,
	})
	if err != nil {
		// The unique pair index may have lost a race with a concurrent
		// propose; the earlier row is the idempotent answer.
		raced, findErr := s.matchRepo.FindByPair(ctx, a, b)
		if findErr == nil && raced != nil {
			return raced, nil
		}
		return nil, apperrors.Database(fmt.Errorf("create match: %w", err))
	}

	log.Info().
		Str("matchId", match.ID).
		Str("userIdA", a).
		Str("userIdB", b).
		Time("expiresAt", match.ExpiresAt).
		Msg("match proposed")

	audit.Log(ctx, audit.Event{
		Type:    audit.EventMatchPropose,
		MatchID: match.ID,
		Details: map[string]interface{}{"userIdA": a, "userIdB": b},
	})

	s.publishToPair(ctx, match, sse.EventMatchProposed)

	return match, nil
}

// Decline records which participant rejected the match and opens a
// suppression window for the pair.
func (s *MatchService) Decline(ctx context.Context, matchID, byUserID string) (*model.Match, error) {
	match, err := s.matchRepo.FindByID(ctx, matchID)
	if err != nil {
		return nil, apperrors.Database(fmt.Errorf("find match: %w", err))
	}
	if match == nil {
		return nil, apperrors.NotFound("Match")
	}
	if !match.HasUser(byUserID) {
		return nil, apperrors.Forbidden("Caller is not a participant of this match")
	}

	declined, err := s.matchRepo.Decline(ctx, matchID, byUserID)
	if err != nil {
		return nil, apperrors.Database(fmt.Errorf("decline match: %w", err))
	}
	if declined == nil {
		// Another decline won the race.
		return nil, apperrors.Conflict("Match is already declined")
	}

	if _, err := s.declineRepo.Create(ctx, model.CreateDeclineEntryParams{
		MatchID: declined.ID,
		UserIDA: declined.UserIDA,
		UserIDB: declined.UserIDB,
	}); err != nil {
		// The decline itself stuck; a missing ledger entry only shortens
		// the suppression, so log and carry on.
		log.Error().Err(err).Str("matchId", declined.ID).Msg("failed to record decline ledger entry")
	}

	log.Info().
		Str("matchId", declined.ID).
		Str("declinedBy", byUserID).
		Msg("match declined")

	audit.Log(ctx, audit.Event{
		Type:    audit.EventMatchDecline,
		UserID:  byUserID,
		MatchID: declined.ID,
	})

	if other, ok := declined.OtherUser(byUserID); ok {
		s.publishToUser(ctx, other, declined, sse.EventMatchDeclined)
	}

	return declined, nil
}

// Convert marks the match as graduated into a permanent match. Once
// set the value is immutable: converting again with the same id is a
// no-op, with a different id a conflict.
func (s *MatchService) Convert(ctx context.Context, matchID, permanentMatchID string) (*model.Match, error) {
	if permanentMatchID == "" {
		return nil, apperrors.MissingRequired("permanentMatchId")
	}

	match, err := s.matchRepo.FindByID(ctx, matchID)
	if err != nil {
		return nil, apperrors.Database(fmt.Errorf("find match: %w", err))
	}
	if match == nil {
		return nil, apperrors.NotFound("Match")
	}
	if match.ConvertedToMatchID != nil {
		if *match.ConvertedToMatchID == permanentMatchID {
			return match, nil
		}
		return nil, apperrors.Conflict("Match is already converted to a different permanent match")
	}

	converted, err := s.matchRepo.Convert(ctx, matchID, permanentMatchID)
	if err != nil {
		return nil, apperrors.Database(fmt.Errorf("convert match: %w", err))
	}
	if converted == nil {
		// A concurrent convert won; re-read to decide no-op vs conflict.
		current, findErr := s.matchRepo.FindByID(ctx, matchID)
		if findErr != nil {
			return nil, apperrors.Database(fmt.Errorf("find match: %w", findErr))
		}
		if current != nil && current.ConvertedToMatchID != nil && *current.ConvertedToMatchID == permanentMatchID {
			return current, nil
		}
		return nil, apperrors.Conflict("Match is already converted to a different permanent match")
	}

	log.Info().
		Str("matchId", converted.ID).
		Str("permanentMatchId", permanentMatchID).
		Msg("match converted")

	audit.Log(ctx, audit.Event{
		Type:    audit.EventMatchConvert,
		MatchID: converted.ID,
		Details: map[string]interface{}{"permanentMatchId": permanentMatchID},
	})

	return converted, nil
}

// GetMatch returns the match to one of its participants. Membership,
// not liveness, gates the read.
func (s *MatchService) GetMatch(ctx context.Context, callerID, matchID string) (*model.Match, error) {
	match, err := s.matchRepo.FindByID(ctx, matchID)
	if err != nil {
		return nil, apperrors.Database(fmt.Errorf("find match: %w", err))
	}
	if match == nil {
		return nil, apperrors.NotFound("Match")
	}
	if !match.HasUser(callerID) {
		return nil, apperrors.Forbidden("Caller is not a participant of this match")
	}
	return match, nil
}

func (s *MatchService) publishToPair(ctx context.Context, match *model.Match, eventType string) {
	s.publishToUser(ctx, match.UserIDA, match, eventType)
	s.publishToUser(ctx, match.UserIDB, match, eventType)
}

func (s *MatchService) publishToUser(ctx context.Context, userID string, match *model.Match, eventType string) {
	data, _ := json.Marshal(match)
	if err := s.broker.Publish(ctx, userID, sse.Event{Type: eventType, Data: data}); err != nil {
		log.Warn().Err(err).
			Str("userId", userID).
			Str("matchId", match.ID).
			Str("eventType", eventType).
			Msg("failed to publish match event")
	}
}
