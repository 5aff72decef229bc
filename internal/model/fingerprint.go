package model

import (
	"time"
)

// DeviceFingerprint is a weak back reference to a Session, kept for
// lookup only. Rows whose session no longer resolves are purged
// opportunistically by the session cleanup job.
type DeviceFingerprint struct {
	ID              string    `db:"id" json:"id"`
	SessionID       *string   `db:"session_id" json:"sessionId,omitempty"`
	FingerprintHash string    `db:"fingerprint_hash" json:"fingerprintHash"`
	CreatedAt       time.Time `db:"created_at" json:"createdAt"`
}

type CreateDeviceFingerprintParams struct {
	SessionID       *string
	FingerprintHash string
}
