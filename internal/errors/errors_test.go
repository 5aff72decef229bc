package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError(t *testing.T) {
	t.Run("Error returns formatted string", func(t *testing.T) {
		err := New(ErrCodeNotFound, "Match not found")
		assert.Equal(t, "NOT_FOUND: Match not found", err.Error())
	})

	t.Run("Error with cause includes cause", func(t *testing.T) {
		cause := errors.New("database connection failed")
		err := Wrap(ErrCodeDatabase, "Database error", cause)
		assert.Contains(t, err.Error(), "DATABASE_ERROR")
		assert.Contains(t, err.Error(), "Database error")
		assert.Contains(t, err.Error(), "database connection failed")
	})

	t.Run("WithCause adds cause to error", func(t *testing.T) {
		cause := errors.New("original error")
		err := New(ErrCodeInternal, "Something went wrong").WithCause(cause)
		assert.Equal(t, cause, err.Unwrap())
	})

	t.Run("WithDetails adds details to error", func(t *testing.T) {
		details := map[string]string{"field": "durationMinutes", "reason": "must be 15, 30, or 60"}
		err := New(ErrCodeValidation, "Validation failed").WithDetails(details)
		assert.Equal(t, details, err.Details)
	})
}

func TestErrorConstructors(t *testing.T) {
	tests := []struct {
		name         string
		constructor  func() *AppError
		expectedCode ErrorCode
	}{
		{"Validation", func() *AppError { return Validation("test") }, ErrCodeValidation},
		{"InvalidInput", func() *AppError { return InvalidInput("latitude", "out of range") }, ErrCodeInvalidInput},
		{"MissingRequired", func() *AppError { return MissingRequired("matchId") }, ErrCodeMissingRequired},
		{"Unauthorized", func() *AppError { return Unauthorized("test") }, ErrCodeUnauthorized},
		{"Forbidden", func() *AppError { return Forbidden("test") }, ErrCodeForbidden},
		{"NotFound", func() *AppError { return NotFound("Session") }, ErrCodeNotFound},
		{"Conflict", func() *AppError { return Conflict("test") }, ErrCodeConflict},
		{"InvalidState", func() *AppError { return InvalidState("session already ended") }, ErrCodeInvalidState},
		{"RateLimited", func() *AppError { return RateLimited() }, ErrCodeRateLimited},
		{"Internal", func() *AppError { return Internal("test") }, ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.constructor()
			assert.Equal(t, tt.expectedCode, err.Code)
			assert.NotEmpty(t, err.Message)
		})
	}
}

func TestErrorHelpers(t *testing.T) {
	t.Run("IsAppError detects AppError", func(t *testing.T) {
		assert.True(t, IsAppError(NotFound("Match")))
		assert.False(t, IsAppError(errors.New("plain error")))
	})

	t.Run("IsAppError detects wrapped AppError", func(t *testing.T) {
		wrapped := fmt.Errorf("outer: %w", Forbidden("not a participant"))
		assert.True(t, IsAppError(wrapped))
	})

	t.Run("AsAppError extracts AppError", func(t *testing.T) {
		original := InvalidState("match declined")
		appErr, ok := AsAppError(fmt.Errorf("outer: %w", original))
		assert.True(t, ok)
		assert.Equal(t, ErrCodeInvalidState, appErr.Code)
	})

	t.Run("GetCode falls back to internal", func(t *testing.T) {
		assert.Equal(t, ErrCodeInternal, GetCode(errors.New("plain")))
		assert.Equal(t, ErrCodeRateLimited, GetCode(RateLimited()))
	})
}
