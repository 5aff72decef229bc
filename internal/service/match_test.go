package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/9thLevelSoftware/vlvt-ephemeral/internal/errors"
	"github.com/9thLevelSoftware/vlvt-ephemeral/internal/model"
	"github.com/9thLevelSoftware/vlvt-ephemeral/internal/repository"
	"github.com/9thLevelSoftware/vlvt-ephemeral/internal/sse"
)

type mockMatchRepo struct {
	mock.Mock
}

func (m *mockMatchRepo) FindByID(ctx context.Context, id string) (*model.Match, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Match), args.Error(1)
}

func (m *mockMatchRepo) FindByPair(ctx context.Context, userIDA, userIDB string) (*model.Match, error) {
	args := m.Called(ctx, userIDA, userIDB)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Match), args.Error(1)
}

func (m *mockMatchRepo) Create(ctx context.Context, params model.CreateMatchParams) (*model.Match, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Match), args.Error(1)
}

func (m *mockMatchRepo) Decline(ctx context.Context, id string, byUserID string) (*model.Match, error) {
	args := m.Called(ctx, id, byUserID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Match), args.Error(1)
}

func (m *mockMatchRepo) Convert(ctx context.Context, id string, permanentMatchID string) (*model.Match, error) {
	args := m.Called(ctx, id, permanentMatchID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Match), args.Error(1)
}

func (m *mockMatchRepo) DeletePurgeable(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockMatchRepo) WithTx(tx *sqlx.Tx) repository.MatchRepository {
	return m
}

type mockDeclineRepo struct {
	mock.Mock
}

func (m *mockDeclineRepo) Create(ctx context.Context, params model.CreateDeclineEntryParams) (*model.DeclineEntry, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.DeclineEntry), args.Error(1)
}

func (m *mockDeclineRepo) FindActiveByPair(ctx context.Context, userIDA, userIDB string, since time.Time) (*model.DeclineEntry, error) {
	args := m.Called(ctx, userIDA, userIDB, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.DeclineEntry), args.Error(1)
}

func (m *mockDeclineRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

// mockPublisher records published events in order.
type mockPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

type publishedEvent struct {
	UserID string
	Event  sse.Event
}

func (m *mockPublisher) Publish(ctx context.Context, userID string, event sse.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, publishedEvent{UserID: userID, Event: event})
	return nil
}

func (m *mockPublisher) published() []publishedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]publishedEvent(nil), m.events...)
}

func activeSession(owner string, expiresIn time.Duration) *model.Session {
	now := time.Now().UTC()
	return &model.Session{
		ID:          "sess-" + owner,
		OwnerUserID: owner,
		StartedAt:   now,
		ExpiresAt:   now.Add(expiresIn),
	}
}

func TestProposeMatch(t *testing.T) {
	ctx := context.Background()

	t.Run("creates a match capped by the earlier session expiry", func(t *testing.T) {
		matchRepo := new(mockMatchRepo)
		declineRepo := new(mockDeclineRepo)
		sessionRepo := new(mockSessionRepo)
		publisher := &mockPublisher{}
		svc := NewMatchService(matchRepo, declineRepo, sessionRepo, publisher)

		sessionA := activeSession("alice", 10*time.Minute)
		sessionB := activeSession("bob", 25*time.Minute)

		matchRepo.On("FindByPair", ctx, "alice", "bob").Return(nil, nil)
		declineRepo.On("FindActiveByPair", ctx, "alice", "bob", mock.AnythingOfType("time.Time")).Return(nil, nil)
		sessionRepo.On("FindActiveByOwner", ctx, "alice").Return(sessionA, nil)
		sessionRepo.On("FindActiveByOwner", ctx, "bob").Return(sessionB, nil)
		matchRepo.On("Create", ctx, mock.MatchedBy(func(params model.CreateMatchParams) bool {
			return params.UserIDA == "alice" && params.UserIDB == "bob" &&
				params.ExpiresAt.Equal(sessionA.ExpiresAt)
		})).Return(&model.Match{
			ID:        "match-1",
			UserIDA:   "alice",
			UserIDB:   "bob",
			ExpiresAt: sessionA.ExpiresAt,
		}, nil)

		match, err := svc.Propose(ctx, "alice", "bob")

		require.NoError(t, err)
		assert.Equal(t, "match-1", match.ID)
		matchRepo.AssertExpectations(t)

		events := publisher.published()
		require.Len(t, events, 2)
		assert.Equal(t, sse.EventMatchProposed, events[0].Event.Type)
		assert.ElementsMatch(t, []string{"alice", "bob"}, []string{events[0].UserID, events[1].UserID})
	})

	t.Run("pair order does not matter", func(t *testing.T) {
		matchRepo := new(mockMatchRepo)
		svc := NewMatchService(matchRepo, new(mockDeclineRepo), new(mockSessionRepo), &mockPublisher{})

		existing := &model.Match{ID: "match-1", UserIDA: "alice", UserIDB: "bob"}
		matchRepo.On("FindByPair", ctx, "alice", "bob").Return(existing, nil)

		match, err := svc.Propose(ctx, "bob", "alice")

		require.NoError(t, err)
		assert.Equal(t, "match-1", match.ID)
	})

	t.Run("repropose returns the existing match unchanged", func(t *testing.T) {
		matchRepo := new(mockMatchRepo)
		publisher := &mockPublisher{}
		svc := NewMatchService(matchRepo, new(mockDeclineRepo), new(mockSessionRepo), publisher)

		declinedBy := "bob"
		existing := &model.Match{ID: "match-1", UserIDA: "alice", UserIDB: "bob", DeclinedBy: &declinedBy}
		matchRepo.On("FindByPair", ctx, "alice", "bob").Return(existing, nil)

		match, err := svc.Propose(ctx, "alice", "bob")

		require.NoError(t, err)
		require.NotNil(t, match.DeclinedBy)
		assert.Equal(t, "bob", *match.DeclinedBy)
		assert.Empty(t, publisher.published(), "repropose must not re-announce")
	})

	t.Run("rejects a self match", func(t *testing.T) {
		svc := NewMatchService(new(mockMatchRepo), new(mockDeclineRepo), new(mockSessionRepo), &mockPublisher{})

		_, err := svc.Propose(ctx, "alice", "alice")
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeValidation, apperrors.GetCode(err))
	})

	t.Run("suppressed pair whose match row was purged is rejected", func(t *testing.T) {
		matchRepo := new(mockMatchRepo)
		declineRepo := new(mockDeclineRepo)
		svc := NewMatchService(matchRepo, declineRepo, new(mockSessionRepo), &mockPublisher{})

		matchRepo.On("FindByPair", ctx, "alice", "bob").Return(nil, nil)
		declineRepo.On("FindActiveByPair", ctx, "alice", "bob", mock.AnythingOfType("time.Time")).
			Return(&model.DeclineEntry{ID: "decline-1"}, nil)

		_, err := svc.Propose(ctx, "alice", "bob")
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeConflict, apperrors.GetCode(err))
	})

	t.Run("requires both users to hold active sessions", func(t *testing.T) {
		matchRepo := new(mockMatchRepo)
		declineRepo := new(mockDeclineRepo)
		sessionRepo := new(mockSessionRepo)
		svc := NewMatchService(matchRepo, declineRepo, sessionRepo, &mockPublisher{})

		matchRepo.On("FindByPair", ctx, "alice", "bob").Return(nil, nil)
		declineRepo.On("FindActiveByPair", ctx, "alice", "bob", mock.AnythingOfType("time.Time")).Return(nil, nil)
		sessionRepo.On("FindActiveByOwner", ctx, "alice").Return(activeSession("alice", time.Minute), nil)
		sessionRepo.On("FindActiveByOwner", ctx, "bob").Return(nil, nil)

		_, err := svc.Propose(ctx, "alice", "bob")
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeInvalidState, apperrors.GetCode(err))
	})

	t.Run("lost create race resolves to the earlier row", func(t *testing.T) {
		matchRepo := new(mockMatchRepo)
		declineRepo := new(mockDeclineRepo)
		sessionRepo := new(mockSessionRepo)
		svc := NewMatchService(matchRepo, declineRepo, sessionRepo, &mockPublisher{})

		raced := &model.Match{ID: "match-1", UserIDA: "alice", UserIDB: "bob"}

		matchRepo.On("FindByPair", ctx, "alice", "bob").Return(nil, nil).Once()
		declineRepo.On("FindActiveByPair", ctx, "alice", "bob", mock.AnythingOfType("time.Time")).Return(nil, nil)
		sessionRepo.On("FindActiveByOwner", ctx, "alice").Return(activeSession("alice", time.Minute), nil)
		sessionRepo.On("FindActiveByOwner", ctx, "bob").Return(activeSession("bob", time.Minute), nil)
		matchRepo.On("Create", ctx, mock.Anything).Return(nil, assert.AnError)
		matchRepo.On("FindByPair", ctx, "alice", "bob").Return(raced, nil).Once()

		match, err := svc.Propose(ctx, "alice", "bob")

		require.NoError(t, err)
		assert.Equal(t, "match-1", match.ID)
	})
}

func TestDeclineMatch(t *testing.T) {
	ctx := context.Background()

	t.Run("records the decliner and opens a suppression entry", func(t *testing.T) {
		matchRepo := new(mockMatchRepo)
		declineRepo := new(mockDeclineRepo)
		publisher := &mockPublisher{}
		svc := NewMatchService(matchRepo, declineRepo, new(mockSessionRepo), publisher)

		declinedBy := "bob"
		match := &model.Match{ID: "match-1", UserIDA: "alice", UserIDB: "bob"}
		declined := &model.Match{ID: "match-1", UserIDA: "alice", UserIDB: "bob", DeclinedBy: &declinedBy}

		matchRepo.On("FindByID", ctx, "match-1").Return(match, nil)
		matchRepo.On("Decline", ctx, "match-1", "bob").Return(declined, nil)
		declineRepo.On("Create", ctx, model.CreateDeclineEntryParams{
			MatchID: "match-1",
			UserIDA: "alice",
			UserIDB: "bob",
		}).Return(&model.DeclineEntry{ID: "decline-1"}, nil)

		result, err := svc.Decline(ctx, "match-1", "bob")

		require.NoError(t, err)
		require.NotNil(t, result.DeclinedBy)
		assert.Equal(t, "bob", *result.DeclinedBy)
		declineRepo.AssertExpectations(t)

		events := publisher.published()
		require.Len(t, events, 1)
		assert.Equal(t, "alice", events[0].UserID)
		assert.Equal(t, sse.EventMatchDeclined, events[0].Event.Type)
	})

	t.Run("non-participants cannot decline", func(t *testing.T) {
		matchRepo := new(mockMatchRepo)
		svc := NewMatchService(matchRepo, new(mockDeclineRepo), new(mockSessionRepo), &mockPublisher{})

		matchRepo.On("FindByID", ctx, "match-1").Return(&model.Match{
			ID: "match-1", UserIDA: "alice", UserIDB: "bob",
		}, nil)

		_, err := svc.Decline(ctx, "match-1", "mallory")
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeForbidden, apperrors.GetCode(err))
	})

	t.Run("second decline loses and conflicts", func(t *testing.T) {
		matchRepo := new(mockMatchRepo)
		svc := NewMatchService(matchRepo, new(mockDeclineRepo), new(mockSessionRepo), &mockPublisher{})

		matchRepo.On("FindByID", ctx, "match-1").Return(&model.Match{
			ID: "match-1", UserIDA: "alice", UserIDB: "bob",
		}, nil)
		matchRepo.On("Decline", ctx, "match-1", "alice").Return(nil, nil)

		_, err := svc.Decline(ctx, "match-1", "alice")
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeConflict, apperrors.GetCode(err))
	})
}

func TestConvertMatch(t *testing.T) {
	ctx := context.Background()

	t.Run("marks the match converted", func(t *testing.T) {
		matchRepo := new(mockMatchRepo)
		svc := NewMatchService(matchRepo, new(mockDeclineRepo), new(mockSessionRepo), &mockPublisher{})

		permanent := "perm-1"
		matchRepo.On("FindByID", ctx, "match-1").Return(&model.Match{
			ID: "match-1", UserIDA: "alice", UserIDB: "bob",
		}, nil)
		matchRepo.On("Convert", ctx, "match-1", "perm-1").Return(&model.Match{
			ID: "match-1", UserIDA: "alice", UserIDB: "bob", ConvertedToMatchID: &permanent,
		}, nil)

		match, err := svc.Convert(ctx, "match-1", "perm-1")

		require.NoError(t, err)
		require.NotNil(t, match.ConvertedToMatchID)
		assert.Equal(t, "perm-1", *match.ConvertedToMatchID)
	})

	t.Run("converting again with the same id is a no-op", func(t *testing.T) {
		matchRepo := new(mockMatchRepo)
		svc := NewMatchService(matchRepo, new(mockDeclineRepo), new(mockSessionRepo), &mockPublisher{})

		permanent := "perm-1"
		matchRepo.On("FindByID", ctx, "match-1").Return(&model.Match{
			ID: "match-1", ConvertedToMatchID: &permanent,
		}, nil)

		match, err := svc.Convert(ctx, "match-1", "perm-1")

		require.NoError(t, err)
		assert.Equal(t, "perm-1", *match.ConvertedToMatchID)
		matchRepo.AssertNotCalled(t, "Convert", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("converting with a different id conflicts", func(t *testing.T) {
		matchRepo := new(mockMatchRepo)
		svc := NewMatchService(matchRepo, new(mockDeclineRepo), new(mockSessionRepo), &mockPublisher{})

		permanent := "perm-1"
		matchRepo.On("FindByID", ctx, "match-1").Return(&model.Match{
			ID: "match-1", ConvertedToMatchID: &permanent,
		}, nil)

		_, err := svc.Convert(ctx, "match-1", "perm-2")
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeConflict, apperrors.GetCode(err))
	})

	t.Run("requires a permanent match id", func(t *testing.T) {
		svc := NewMatchService(new(mockMatchRepo), new(mockDeclineRepo), new(mockSessionRepo), &mockPublisher{})

		_, err := svc.Convert(ctx, "match-1", "")
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeMissingRequired, apperrors.GetCode(err))
	})
}

func TestNormalizePair(t *testing.T) {
	a, b := model.NormalizePair("zoe", "adam")
	assert.Equal(t, "adam", a)
	assert.Equal(t, "zoe", b)

	a, b = model.NormalizePair("adam", "zoe")
	assert.Equal(t, "adam", a)
	assert.Equal(t, "zoe", b)
}
