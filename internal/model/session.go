package model

import (
	"time"
)

// Session is a user-initiated, time-boxed, location-anchored window
// during which ephemeral matching is possible. Owned exclusively by
// its creator. Once ended it never transitions back.
type Session struct {
	ID              string     `db:"id" json:"id"`
	OwnerUserID     string     `db:"owner_user_id" json:"ownerUserId"`
	DurationMinutes int        `db:"duration_minutes" json:"durationMinutes"`
	Latitude        float64    `db:"latitude" json:"latitude"`
	Longitude       float64    `db:"longitude" json:"longitude"`
	StartedAt       time.Time  `db:"started_at" json:"startedAt"`
	ExpiresAt       time.Time  `db:"expires_at" json:"expiresAt"`
	EndedAt         *time.Time `db:"ended_at" json:"endedAt,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updatedAt"`
}

// Active reports whether the session can still host matching at the
// given instant: not explicitly ended and not past expiry.
func (s *Session) Active(now time.Time) bool {
	return s.EndedAt == nil && now.Before(s.ExpiresAt)
}

type CreateSessionParams struct {
	OwnerUserID     string
	DurationMinutes int
	Latitude        float64
	Longitude       float64
	StartedAt       time.Time
	ExpiresAt       time.Time
}

// SessionDurations are the only accepted session durations and
// extension amounts, in minutes.
var SessionDurations = []int{15, 30, 60}

func IsValidDuration(minutes int) bool {
	for _, d := range SessionDurations {
		if minutes == d {
			return true
		}
	}
	return false
}
