package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/9thLevelSoftware/vlvt-ephemeral/internal/errors"
)

func TestParseBeforeCursor(t *testing.T) {
	t.Run("absent cursor parses to nil", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/matches/m/messages", nil)

		before, err := ParseBeforeCursor(req)

		require.NoError(t, err)
		assert.Nil(t, before)
	})

	t.Run("parses an RFC3339 timestamp", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/matches/m/messages?before=2026-08-30T12:00:00Z", nil)

		before, err := ParseBeforeCursor(req)

		require.NoError(t, err)
		require.NotNil(t, before)
		assert.Equal(t, time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC), before.UTC())
	})

	t.Run("rejects a malformed cursor", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/matches/m/messages?before=yesterday", nil)

		_, err := ParseBeforeCursor(req)

		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeInvalidInput, apperrors.GetCode(err))
	})
}
