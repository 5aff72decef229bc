package handler

import (
	"net/http"
	"time"

	apperrors "github.com/9thLevelSoftware/vlvt-ephemeral/internal/errors"
)

// ParseBeforeCursor reads the optional "before" query parameter, an
// ISO-8601 timestamp used as an opaque pagination cursor.
func ParseBeforeCursor(r *http.Request) (*time.Time, error) {
	raw := r.URL.Query().Get("before")
	if raw == "" {
		return nil, nil
	}

	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, apperrors.InvalidInput("before", "must be an ISO-8601 timestamp")
	}
	return &t, nil
}
