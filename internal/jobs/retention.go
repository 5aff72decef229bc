package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/9thLevelSoftware/vlvt-ephemeral/internal/audit"
	"github.com/9thLevelSoftware/vlvt-ephemeral/internal/config"
	"github.com/9thLevelSoftware/vlvt-ephemeral/internal/repository"
)

// MessageCleanupJob deletes messages whose match expired more than the
// retention window ago and was never converted, then deletes those
// matches themselves. Messages go first for foreign-key safety.
// Converted matches and their messages are exempt regardless of age.
type MessageCleanupJob struct {
	messageRepo repository.MessageRepository
	matchRepo   repository.MatchRepository
}

func NewMessageCleanupJob(
	messageRepo repository.MessageRepository,
	matchRepo repository.MatchRepository,
) *MessageCleanupJob {
	return &MessageCleanupJob{
		messageRepo: messageRepo,
		matchRepo:   matchRepo,
	}
}

func (j *MessageCleanupJob) Name() string {
	return "message_cleanup"
}

func (j *MessageCleanupJob) Run(ctx context.Context) error {
	// The cutoff is computed at run time, never cached, so reruns and
	// partial completions are always safe.
	cutoff := time.Now().UTC().Add(-config.MessageRetentionWindow)

	messages, err := j.messageRepo.DeleteForPurgeableMatches(ctx, cutoff)
	if err != nil {
		return err
	}

	matches, err := j.matchRepo.DeletePurgeable(ctx, cutoff)
	if err != nil {
		return err
	}

	if messages > 0 || matches > 0 {
		log.Info().
			Int64("messages", messages).
			Int64("matches", matches).
			Time("cutoff", cutoff).
			Msg("purged expired matches and messages")

		audit.Log(ctx, audit.Event{
			Type: audit.EventRetentionPurge,
			Details: map[string]interface{}{
				"job":      j.Name(),
				"messages": messages,
				"matches":  matches,
			},
		})
	}

	return nil
}

// SessionCleanupJob closes sessions abandoned past expiry, purges
// decline ledger entries older than the suppression window, and purges
// device fingerprints whose session no longer exists. Scheduled an
// hour after message cleanup so session teardown never races message
// retention logic.
type SessionCleanupJob struct {
	sessionRepo     repository.SessionRepository
	declineRepo     repository.DeclineRepository
	fingerprintRepo repository.DeviceFingerprintRepository
}

func NewSessionCleanupJob(
	sessionRepo repository.SessionRepository,
	declineRepo repository.DeclineRepository,
	fingerprintRepo repository.DeviceFingerprintRepository,
) *SessionCleanupJob {
	return &SessionCleanupJob{
		sessionRepo:     sessionRepo,
		declineRepo:     declineRepo,
		fingerprintRepo: fingerprintRepo,
	}
}

func (j *SessionCleanupJob) Name() string {
	return "session_cleanup"
}

func (j *SessionCleanupJob) Run(ctx context.Context) error {
	closed, err := j.sessionRepo.CloseExpired(ctx)
	if err != nil {
		return err
	}
	if closed > 0 {
		log.Info().Int64("count", closed).Msg("closed abandoned sessions")
	}

	declineCutoff := time.Now().UTC().Add(-config.DeclineSuppressionWindow)
	declines, err := j.declineRepo.DeleteOlderThan(ctx, declineCutoff)
	if err != nil {
		return err
	}
	if declines > 0 {
		log.Info().Int64("count", declines).Msg("purged expired decline entries")
	}

	fingerprints, err := j.fingerprintRepo.DeleteOrphaned(ctx)
	if err != nil {
		return err
	}
	if fingerprints > 0 {
		log.Info().Int64("count", fingerprints).Msg("purged orphaned device fingerprints")
	}

	if closed > 0 || declines > 0 || fingerprints > 0 {
		audit.Log(ctx, audit.Event{
			Type: audit.EventRetentionPurge,
			Details: map[string]interface{}{
				"job":          j.Name(),
				"sessions":     closed,
				"declines":     declines,
				"fingerprints": fingerprints,
			},
		})
	}

	return nil
}
