package services

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Corphon/SceneIntruderClient/internal/apiclient"
	apperrors "github.com/Corphon/SceneIntruderClient/internal/errors"
	"github.com/Corphon/SceneIntruderClient/internal/models"
	"github.com/Corphon/SceneIntruderClient/internal/utils"
)

type recordingTokens struct {
	tokens []string
}

func (r *recordingTokens) SetToken(token string) {
	r.tokens = append(r.tokens, token)
}

func newTestUserService(t *testing.T) (*UserService, *SessionService, *fakeBackend, *recordingTokens) {
	t.Helper()
	logger := utils.NewDiscardLogger()
	session := newTestSession(staticConfigs{}, nil)
	backend := &fakeBackend{}
	persistence := NewPersistenceService(session, backend, logger, utils.NewMetricsCollector())
	tokens := &recordingTokens{}
	return NewUserService(session, persistence, backend, tokens, logger), session, backend, tokens
}

func loginHandler(user models.User) func(req apiclient.Request, out interface{}) error {
	return func(req apiclient.Request, out interface{}) error {
		switch {
		case req.Path == "/auth/login":
			return respond(user, out)
		case req.Method == http.MethodPost && req.Path == "/gamestates":
			return respond(models.SaveGameStateResponse{}, out)
		}
		return notFound(req)
	}
}

func TestSignInStoresUserAndUsage(t *testing.T) {
	users, session, backend, tokens := newTestUserService(t)
	backend.setHandler(loginHandler(models.User{
		ID: "user_1", Email: "ada@example.com", Token: "tok_1",
		APIUsage: &models.APIUsageStats{Used: 3, Limit: 500},
	}))

	user, err := users.SignIn(context.Background(), " ada@example.com ", "secret")
	require.NoError(t, err)
	assert.Equal(t, "user_1", user.ID)
	assert.Equal(t, "user_1", session.CurrentUser().ID)
	require.NotNil(t, session.APIUsage())
	assert.Equal(t, 3, session.APIUsage().Used)
	assert.Equal(t, []string{"tok_1"}, tokens.tokens)

	body := backend.requestsTo(http.MethodPost, "/auth/login")[0].Body.(LoginRequest)
	assert.Equal(t, "ada@example.com", body.Email)
}

func TestSignInFailures(t *testing.T) {
	ctx := context.Background()

	users, session, backend, _ := newTestUserService(t)
	_, err := users.SignIn(ctx, "", "secret")
	assert.True(t, apperrors.IsValidationError(err))

	backend.setHandler(func(req apiclient.Request, out interface{}) error {
		return apperrors.NewStatusError(req.Method, req.Path, http.StatusUnauthorized, "INVALID_CREDENTIALS", "")
	})
	_, err = users.SignIn(ctx, "ada@example.com", "wrong")
	assert.True(t, apperrors.IsUnauthorizedError(err))

	backend.setHandler(loginHandler(models.User{ID: "user_1"}))
	_, err = users.SignIn(ctx, "ada@example.com", "secret")
	assert.Error(t, err)
	assert.Nil(t, session.CurrentUser())
}

func TestSignOutSavesAndResets(t *testing.T) {
	users, session, backend, tokens := newTestUserService(t)
	backend.setHandler(loginHandler(models.User{ID: "user_1", Token: "tok_1"}))
	ctx := context.Background()

	require.NoError(t, users.SignOut(ctx))
	assert.Empty(t, tokens.tokens)

	_, err := users.SignIn(ctx, "ada@example.com", "secret")
	require.NoError(t, err)
	session.SetCurrentTheme("grim_warden")
	session.AppendTurn(models.NewTurn(models.RoleUser, "farewell"))

	require.NoError(t, users.SignOut(ctx))
	assert.Len(t, backend.savedPayloads(), 1)
	assert.Nil(t, session.CurrentUser())
	assert.Empty(t, session.CurrentTheme())
	assert.Empty(t, session.GameHistory())
	assert.Equal(t, []string{"tok_1", ""}, tokens.tokens)
}

func TestSignOutResetsEvenWhenSaveFails(t *testing.T) {
	users, session, backend, _ := newTestUserService(t)
	session.SetCurrentUser(testUser())
	session.SetCurrentTheme("grim_warden")
	session.AppendTurn(models.NewTurn(models.RoleUser, "farewell"))
	backend.setHandler(failSaves)

	assert.Error(t, users.SignOut(context.Background()))
	assert.Nil(t, session.CurrentUser())
	assert.Empty(t, session.UnsavedDelta())
}

func TestSignOutDuringSaveFlushesEveryTurn(t *testing.T) {
	users, session, backend, _ := newTestUserService(t)
	backend.setHandler(acceptSaves)
	session.SetCurrentUser(testUser())
	session.SetCurrentTheme("grim_warden")
	backend.block = make(chan struct{})

	appendTurns(session, 1)
	done := make(chan error, 1)
	go func() { done <- users.persistence.SaveCurrentGameState(context.Background(), false) }()
	require.Eventually(t, func() bool {
		return len(backend.requestsTo(http.MethodPost, "/gamestates")) == 1
	}, time.Second, 5*time.Millisecond)

	appendTurns(session, 2)
	appended := turnIDs(session.GameHistory())
	signedOut := make(chan error, 1)
	go func() { signedOut <- users.SignOut(context.Background()) }()
	require.Eventually(t, func() bool {
		return users.persistence.metrics.GetCounterValue(utils.MetricSaveQueued) == 1
	}, time.Second, 5*time.Millisecond)
	assert.NotNil(t, session.CurrentUser())

	close(backend.block)
	require.NoError(t, <-done)
	require.NoError(t, <-signedOut)
	assert.Nil(t, session.CurrentUser())

	var posted []string
	for _, payload := range backend.savedPayloads() {
		posted = append(posted, turnIDs(payload.GameHistoryDelta)...)
	}
	for _, id := range appended {
		assert.Contains(t, posted, id)
	}
}
