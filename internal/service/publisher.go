package service

import (
	"context"

	"github.com/9thLevelSoftware/vlvt-ephemeral/internal/sse"
)

// EventPublisher delivers an event to every open stream a user holds.
// *sse.Broker satisfies it.
type EventPublisher interface {
	Publish(ctx context.Context, userID string, event sse.Event) error
}

var _ EventPublisher = (*sse.Broker)(nil)
