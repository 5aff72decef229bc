package model

import (
	"time"
)

// Match is a candidate pairing between two users produced during
// overlapping active sessions. The user pair is stored normalized:
// UserIDA < UserIDB, so each unordered pair maps to at most one row.
type Match struct {
	ID                 string    `db:"id" json:"id"`
	UserIDA            string    `db:"user_id_a" json:"userIdA"`
	UserIDB            string    `db:"user_id_b" json:"userIdB"`
	CreatedAt          time.Time `db:"created_at" json:"createdAt"`
	ExpiresAt          time.Time `db:"expires_at" json:"expiresAt"`
	DeclinedBy         *string   `db:"declined_by" json:"declinedBy,omitempty"`
	ConvertedToMatchID *string   `db:"converted_to_match_id" json:"convertedToMatchId,omitempty"`
}

// HasUser reports whether userID is one of the pair.
func (m *Match) HasUser(userID string) bool {
	return m.UserIDA == userID || m.UserIDB == userID
}

// OtherUser returns the counterpart of userID in the pair.
func (m *Match) OtherUser(userID string) (string, bool) {
	if m.UserIDA == userID {
		return m.UserIDB, true
	}
	if m.UserIDB == userID {
		return m.UserIDA, true
	}
	return "", false
}

// Expired reports whether the match is past its expiry.
func (m *Match) Expired(now time.Time) bool {
	return !now.Before(m.ExpiresAt)
}

type CreateMatchParams struct {
	UserIDA   string
	UserIDB   string
	ExpiresAt time.Time
}

// NormalizePair orders an unordered user pair so that propose(A,B) and
// propose(B,A) address the same row.
func NormalizePair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}
