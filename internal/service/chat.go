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

type SendMessageParams struct {
	MatchID      string
	SenderID     string
	Text         string
	ClientTempID string
	// ConnectionID keys the sender's rate limit budget.
	ConnectionID string
}

type SendMessageResult struct {
	Message      *model.Message
	ClientTempID string
	// Duplicate is true when the clientTempId had already been
	// persisted; the stored message is returned and nothing is
	// re-delivered.
	Duplicate bool
	RateLimit RateLimitResult
}

type HistoryResult struct {
	Messages []model.Message
	HasMore  bool
}

type ChatService struct {
	matchRepo   repository.MatchRepository
	messageRepo repository.MessageRepository
	limiter     RateBudget
	broker      EventPublisher
}

func NewChatService(
	matchRepo repository.MatchRepository,
	messageRepo repository.MessageRepository,
	limiter RateBudget,
	broker EventPublisher,
) *ChatService {
	return &ChatService{
		matchRepo:   matchRepo,
		messageRepo: messageRepo,
		limiter:     limiter,
		broker:      broker,
	}
}

// SendMessage persists the message and delivers it to the other
// participant's open stream if present. The clientTempId is echoed back
// so the sender can reconcile optimistic local state and detect
// duplicate delivery.
func (s *ChatService) SendMessage(ctx context.Context, params SendMessageParams) (*SendMessageResult, error) {
	if params.Text == "" {
		return nil, apperrors.MissingRequired("text")
	}
	if len(params.Text) > config.MaxMessageLength {
		return nil, apperrors.InvalidInput("text", fmt.Sprintf("exceeds %d bytes", config.MaxMessageLength))
	}

	match, err := s.matchRepo.FindByID(ctx, params.MatchID)
	if err != nil {
		return nil, apperrors.Database(fmt.Errorf("find match: %w", err))
	}
	if match == nil {
		return nil, apperrors.NotFound("Match")
	}
	if !match.HasUser(params.SenderID) {
		return nil, apperrors.Forbidden("Sender is not a participant of this match")
	}
	if match.DeclinedBy != nil {
		return nil, apperrors.InvalidState("Match is declined")
	}
	if match.Expired(time.Now().UTC()) {
		return nil, apperrors.InvalidState("Match is expired")
	}

	rl := s.limiter.Check(ctx, params.ConnectionID, EventTypeMessageSend)
	if !rl.Allowed {
		log.Warn().
			Str("connectionId", params.ConnectionID).
			Str("matchId", params.MatchID).
			Msg("message send rate limited")
		audit.Log(ctx, audit.Event{
			Type:    audit.EventRateLimitExceed,
			UserID:  params.SenderID,
			MatchID: params.MatchID,
			Details: map[string]interface{}{"eventType": string(EventTypeMessageSend)},
		})
		return nil, apperrors.RateLimited().WithDetails(map[string]any{
			"eventType": string(EventTypeMessageSend),
			"resetAt":   rl.ResetAt.UTC().Format(time.RFC3339),
		})
	}

	if params.ClientTempID != "" {
		prior, err := s.messageRepo.FindByClientTempID(ctx, params.MatchID, params.SenderID, params.ClientTempID)
		if err != nil {
			return nil, apperrors.Database(fmt.Errorf("find by client temp id: %w", err))
		}
		if prior != nil {
			return &SendMessageResult{
				Message:      prior,
				ClientTempID: params.ClientTempID,
				Duplicate:    true,
				RateLimit:    rl,
			}, nil
		}
	}

	var tempID *string
	if params.ClientTempID != "" {
		tempID = &params.ClientTempID
	}

	msg, err := s.messageRepo.Create(ctx, model.CreateMessageParams{
		MatchID:      params.MatchID,
		SenderID:     params.SenderID,
		Text:         params.Text,
		ClientTempID: tempID,
	})
	if err != nil {
		return nil, apperrors.Database(fmt.Errorf("create message: %w", err))
	}

	log.Info().
		Str("messageId", msg.ID).
		Str("matchId", msg.MatchID).
		Str("senderId", msg.SenderID).
		Msg("message sent")

	if recipient, ok := match.OtherUser(params.SenderID); ok {
		if err := s.broker.Publish(ctx, recipient, sse.Event{
			Type: sse.EventMessage,
			Data: msg.ToEventData(),
		}); err != nil {
			// Persistence already succeeded; the recipient catches up via
			// the history path on next connect.
			log.Warn().Err(err).Str("messageId", msg.ID).Msg("failed to publish message event")
		}
	}

	ackData, _ := json.Marshal(map[string]any{
		"messageId":    msg.ID,
		"matchId":      msg.MatchID,
		"clientTempId": params.ClientTempID,
	})
	if err := s.broker.Publish(ctx, params.SenderID, sse.Event{Type: sse.EventAck, Data: ackData}); err != nil {
		log.Debug().Err(err).Str("messageId", msg.ID).Msg("failed to publish ack event")
	}

	return &SendMessageResult{
		Message:      msg,
		ClientTempID: params.ClientTempID,
		RateLimit:    rl,
	}, nil
}

// NotifyTyping publishes an ephemeral typing indicator to the other
// participant. Nothing is persisted.
func (s *ChatService) NotifyTyping(ctx context.Context, matchID, senderID, connectionID string) error {
	return s.notifyEphemeral(ctx, matchID, senderID, connectionID, EventTypeTyping, sse.EventTyping)
}

// NotifyPresence publishes an ephemeral presence signal to the other
// participant. Nothing is persisted.
func (s *ChatService) NotifyPresence(ctx context.Context, matchID, senderID, connectionID string) error {
	return s.notifyEphemeral(ctx, matchID, senderID, connectionID, EventTypePresence, sse.EventPresence)
}

func (s *ChatService) notifyEphemeral(ctx context.Context, matchID, senderID, connectionID string, budget EventType, eventType string) error {
	match, err := s.matchRepo.FindByID(ctx, matchID)
	if err != nil {
		return apperrors.Database(fmt.Errorf("find match: %w", err))
	}
	if match == nil {
		return apperrors.NotFound("Match")
	}
	if !match.HasUser(senderID) {
		return apperrors.Forbidden("Sender is not a participant of this match")
	}

	rl := s.limiter.Check(ctx, connectionID, budget)
	if !rl.Allowed {
		return apperrors.RateLimited().WithDetails(map[string]any{
			"eventType": string(budget),
			"resetAt":   rl.ResetAt.UTC().Format(time.RFC3339),
		})
	}

	recipient, ok := match.OtherUser(senderID)
	if !ok {
		return nil
	}

	data, _ := json.Marshal(map[string]any{
		"matchId": matchID,
		"userId":  senderID,
		"at":      time.Now().UTC().Format(time.RFC3339),
	})
	if err := s.broker.Publish(ctx, recipient, sse.Event{Type: eventType, Data: data}); err != nil {
		log.Debug().Err(err).
			Str("matchId", matchID).
			Str("eventType", eventType).
			Msg("failed to publish ephemeral event")
	}
	return nil
}

// GetHistory returns one page of match messages, newest first, strictly
// older than before when supplied. Authorization is based on membership
// in the match, not on match or session liveness, so a client can still
// render prior context after the chat has ended.
func (s *ChatService) GetHistory(ctx context.Context, matchID, requesterID string, before *time.Time) (*HistoryResult, error) {
	match, err := s.matchRepo.FindByID(ctx, matchID)
	if err != nil {
		return nil, apperrors.Database(fmt.Errorf("find match: %w", err))
	}
	if match == nil {
		return nil, apperrors.NotFound("Match")
	}
	if !match.HasUser(requesterID) {
		return nil, apperrors.Forbidden("Requester is not a participant of this match")
	}

	msgs, err := s.messageRepo.FindByMatchBefore(ctx, matchID, before, config.HistoryPageSize)
	if err != nil {
		return nil, apperrors.Database(fmt.Errorf("find messages: %w", err))
	}

	return &HistoryResult{
		Messages: msgs,
		HasMore:  len(msgs) == config.HistoryPageSize,
	}, nil
}
