package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Corphon/SceneIntruderClient/internal/apiclient"
	"github.com/Corphon/SceneIntruderClient/internal/models"
	"github.com/Corphon/SceneIntruderClient/internal/services"
	"github.com/Corphon/SceneIntruderClient/internal/storage"
	"github.com/Corphon/SceneIntruderClient/internal/utils"
)

var sampleThemesDir = filepath.Join("..", "..", "themes")

type testBackend struct {
	server *httptest.Server
	store  *Store
}

func newTestBackend(t *testing.T, loreInterval, rateLimit int) *testBackend {
	t.Helper()
	logger := utils.NewDiscardLogger()

	store, err := NewStore(StoreOptions{
		DataDir:      t.TempDir(),
		LoreInterval: loreInterval,
		BcryptCost:   bcrypt.MinCost,
		Logger:       logger,
	})
	require.NoError(t, err)

	tokenConfig, err := NewTokenConfig("test-secret", true, logger)
	require.NoError(t, err)

	limiter := NewRateLimiter(rateLimit, time.Minute)
	t.Cleanup(limiter.Stop)

	feed := NewSaveFeed(logger)
	t.Cleanup(feed.CloseAll)

	router, err := SetupRouter(RouterOptions{
		Store:         store,
		Manifest:      services.DefaultManifest(),
		Authenticator: NewAuthenticator(tokenConfig, NewResponseHelper()),
		Feed:          feed,
		RateLimiter:   limiter,
		ThemesDir:     sampleThemesDir,
		Logger:        logger,
	})
	require.NoError(t, err)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return &testBackend{server: server, store: store}
}

type rawResponse struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	Error     *APIError       `json:"error"`
	RequestID string          `json:"request_id"`
}

func (b *testBackend) call(t *testing.T, method, path, token string, body interface{}) (int, rawResponse) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, b.server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out rawResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func (b *testBackend) login(t *testing.T, email string) models.User {
	t.Helper()
	status, resp := b.call(t, http.MethodPost, "/api/auth/login", "", services.LoginRequest{Email: email, Password: "secret-pass"})
	require.Equal(t, http.StatusOK, status)
	var user models.User
	require.NoError(t, json.Unmarshal(resp.Data, &user))
	require.NotEmpty(t, user.Token)
	return user
}

func payloadWith(themeID string, turns ...models.Turn) models.GameStatePayload {
	return models.GameStatePayload{
		ThemeID:          themeID,
		GameHistoryDelta: turns,
		ModelName:        "test-model",
		RunStats:         models.RunStats{CurrentIntegrity: 80, CurrentWillpower: 40, Conditions: []string{}},
	}
}

func TestLoginAutoRegistersAndChecksPassword(t *testing.T) {
	b := newTestBackend(t, 0, 0)

	first := b.login(t, "Ada@Example.com")
	assert.Equal(t, "ada@example.com", first.Email)
	assert.Equal(t, "ada", first.Username)
	require.NotNil(t, first.APIUsage)
	assert.Equal(t, defaultUsageLimit, first.APIUsage.Limit)

	second := b.login(t, "ada@example.com")
	assert.Equal(t, first.ID, second.ID)

	status, resp := b.call(t, http.MethodPost, "/api/auth/login", "", services.LoginRequest{Email: "ada@example.com", Password: "wrong-pass"})
	assert.Equal(t, http.StatusUnauthorized, status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrorInvalidCredentials, resp.Error.Code)
	assert.NotEmpty(t, resp.RequestID)
}

func TestGameStateEndpointsRequireAuth(t *testing.T) {
	b := newTestBackend(t, 0, 0)

	status, resp := b.call(t, http.MethodGet, "/api/gamestates/grim_warden", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, ErrorUnauthorized, resp.Error.Code)

	status, resp = b.call(t, http.MethodGet, "/api/gamestates/grim_warden", "garbage.token", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, ErrorTokenInvalid, resp.Error.Code)
}

func TestSaveGameStateAppendsByTurnID(t *testing.T) {
	b := newTestBackend(t, 0, 0)
	user := b.login(t, "ada@example.com")

	t1 := models.NewTurn(models.RoleUser, "look around")
	t2 := models.NewTurn(models.RoleModel, "Fog rolls over the wall.")

	status, resp := b.call(t, http.MethodPost, "/api/gamestates", user.Token, payloadWith("grim_warden", t1, t2))
	require.Equal(t, http.StatusOK, status)
	var saved models.SaveGameStateResponse
	require.NoError(t, json.Unmarshal(resp.Data, &saved))
	assert.Equal(t, 2, saved.TurnsStored)
	assert.Nil(t, saved.EvolvedLore)

	// a retried delta must not duplicate history
	t3 := models.NewTurn(models.RoleUser, "climb the wall")
	status, resp = b.call(t, http.MethodPost, "/api/gamestates", user.Token, payloadWith("grim_warden", t2, t3))
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(resp.Data, &saved))
	assert.Equal(t, 3, saved.TurnsStored)

	status, resp = b.call(t, http.MethodGet, "/api/gamestates/grim_warden", user.Token, nil)
	require.Equal(t, http.StatusOK, status)
	var loaded models.LoadedGameState
	require.NoError(t, json.Unmarshal(resp.Data, &loaded))
	require.Len(t, loaded.GameHistory, 3)
	assert.Equal(t, []string{t1.ID, t2.ID, t3.ID}, []string{loaded.GameHistory[0].ID, loaded.GameHistory[1].ID, loaded.GameHistory[2].ID})
	require.NotNil(t, loaded.RunStats)
	assert.Equal(t, 80, loaded.RunStats.CurrentIntegrity)

	account, err := b.store.Authenticate("ada@example.com", "secret-pass")
	require.NoError(t, err)
	assert.Equal(t, 1, account.APIUsage.Used)
	assert.Equal(t, 1, account.APIUsage.ModelUsage["test-model"])
}

func TestSaveGameStateValidation(t *testing.T) {
	b := newTestBackend(t, 0, 0)
	user := b.login(t, "ada@example.com")

	status, resp := b.call(t, http.MethodPost, "/api/gamestates", user.Token, payloadWith("atlantis"))
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, ErrorThemeNotFound, resp.Error.Code)

	status, resp = b.call(t, http.MethodPost, "/api/gamestates", user.Token, payloadWith("grim_warden", models.Turn{Role: models.RoleUser}))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, ErrorGameStateInvalid, resp.Error.Code)
}

func TestMissingStateAndProgressReturnNotFound(t *testing.T) {
	b := newTestBackend(t, 0, 0)
	user := b.login(t, "ada@example.com")

	status, resp := b.call(t, http.MethodGet, "/api/gamestates/grim_warden", user.Token, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, ErrorGameStateNotFound, resp.Error.Code)

	status, resp = b.call(t, http.MethodGet, "/api/users/me/themes/grim_warden/progress", user.Token, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, ErrorProgressNotFound, resp.Error.Code)
}

func TestProgressAndUnlocksStoredFromPayload(t *testing.T) {
	b := newTestBackend(t, 0, 0)
	user := b.login(t, "ada@example.com")

	payload := payloadWith("grim_warden")
	payload.PlayerProgress = &models.UserThemeProgress{ThemeID: "grim_warden", Level: 3, AcquiredTraitKeys: []string{"stoic"}}
	payload.NewWorldUnlock = "salt_reavers"
	status, _ := b.call(t, http.MethodPost, "/api/gamestates", user.Token, payload)
	require.Equal(t, http.StatusOK, status)
	status, _ = b.call(t, http.MethodPost, "/api/gamestates", user.Token, payload)
	require.Equal(t, http.StatusOK, status)

	status, resp := b.call(t, http.MethodGet, "/api/users/me/themes/grim_warden/progress", user.Token, nil)
	require.Equal(t, http.StatusOK, status)
	var progress models.UserThemeProgress
	require.NoError(t, json.Unmarshal(resp.Data, &progress))
	assert.Equal(t, 3, progress.Level)
	assert.Equal(t, user.ID, progress.UserID)
	assert.Equal(t, []string{"stoic"}, progress.AcquiredTraitKeys)

	unlocks, err := b.store.UnlockedWorlds(user.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"salt_reavers"}, unlocks)
}

func TestEvolvedLoreReturnedEveryInterval(t *testing.T) {
	b := newTestBackend(t, 2, 0)
	user := b.login(t, "ada@example.com")

	status, resp := b.call(t, http.MethodPost, "/api/gamestates", user.Token, payloadWith("grim_warden", models.NewTurn(models.RoleUser, "wait")))
	require.Equal(t, http.StatusOK, status)
	var saved models.SaveGameStateResponse
	require.NoError(t, json.Unmarshal(resp.Data, &saved))
	assert.Nil(t, saved.EvolvedLore)

	status, resp = b.call(t, http.MethodPost, "/api/gamestates", user.Token, payloadWith("grim_warden", models.NewTurn(models.RoleModel, "The warden stirs.")))
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(resp.Data, &saved))
	require.NotNil(t, saved.EvolvedLore)
	assert.Contains(t, *saved.EvolvedLore, "grim_warden")
	assert.Contains(t, *saved.EvolvedLore, "The warden stirs.")

	loaded, err := b.store.LoadGameState(user.ID, "grim_warden")
	require.NoError(t, err)
	assert.Equal(t, *saved.EvolvedLore, loaded.EvolvedLore)
}

func TestLoginRateLimited(t *testing.T) {
	b := newTestBackend(t, 0, 2)
	b.login(t, "ada@example.com")
	b.login(t, "ada@example.com")

	status, resp := b.call(t, http.MethodPost, "/api/auth/login", "", services.LoginRequest{Email: "ada@example.com", Password: "secret-pass"})
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, ErrorRateLimited, resp.Error.Code)
}

func TestThemeAssetsAndManifestServed(t *testing.T) {
	b := newTestBackend(t, 0, 0)

	resp, err := http.Get(b.server.URL + "/themes/grim_warden/config.json")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var cfg models.ThemeConfig
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&cfg))
	assert.Equal(t, "grim_warden", cfg.ID)
	assert.Equal(t, []string{"relic", "tool"}, cfg.ItemTypes)

	status, list := b.call(t, http.MethodGet, "/api/themes", "", nil)
	require.Equal(t, http.StatusOK, status)
	var themes []models.ThemeDescriptor
	require.NoError(t, json.Unmarshal(list.Data, &themes))
	assert.Len(t, themes, 3)
}

func TestWebSocketReceivesSaveEvents(t *testing.T) {
	b := newTestBackend(t, 0, 0)
	user := b.login(t, "ada@example.com")

	wsURL := "ws" + strings.TrimPrefix(b.server.URL, "http") + "/ws/gamestates/grim_warden?token=" + user.Token
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var welcome map[string]interface{}
	require.NoError(t, conn.ReadJSON(&welcome))
	assert.Equal(t, "connected", welcome["type"])

	status, _ := b.call(t, http.MethodPost, "/api/gamestates", user.Token, payloadWith("grim_warden", models.NewTurn(models.RoleUser, "ring the bell")))
	require.Equal(t, http.StatusOK, status)

	var event map[string]interface{}
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, "save_event", event["type"])
	assert.Equal(t, services.SaveStatusSaved, event["status"])
	assert.EqualValues(t, 1, event["turns_stored"])

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))
	var pong map[string]interface{}
	require.NoError(t, conn.ReadJSON(&pong))
	assert.Equal(t, "pong", pong["type"])
}

func TestWebSocketRejectsAnonymous(t *testing.T) {
	b := newTestBackend(t, 0, 0)

	wsURL := "ws" + strings.TrimPrefix(b.server.URL, "http") + "/ws/gamestates/grim_warden"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestClientSessionAgainstDevBackend(t *testing.T) {
	b := newTestBackend(t, 0, 0)
	ctx := context.Background()
	logger := utils.NewDiscardLogger()

	newClientStack := func() (*services.SessionService, *services.UserService, *services.GameService) {
		client := apiclient.New(apiclient.Options{
			APIBaseURL:   b.server.URL + "/api",
			AssetBaseURL: b.server.URL + "/",
			Timeout:      5 * time.Second,
			Logger:       logger,
		})
		themes := services.NewThemeService(services.ThemeServiceOptions{
			Manifest:        services.DefaultManifest(),
			Fetcher:         client,
			DefaultLanguage: "en",
			Logger:          logger,
		})
		session := services.NewSessionService(services.SessionServiceOptions{
			Themes:          themes,
			Preferences:     storage.NewMemoryPreferenceStore(nil),
			Logger:          logger,
			DefaultLanguage: "en",
			DefaultModel:    "test-model",
		})
		persistence := services.NewPersistenceService(session, client, logger, nil)
		progress := services.NewProgressService(session, themes, client, logger)
		users := services.NewUserService(session, persistence, client, client, logger)
		game := services.NewGameService(themes, session, persistence, progress, logger)
		return session, users, game
	}

	session, users, game := newClientStack()
	user, err := users.SignIn(ctx, "ada@example.com", "secret-pass")
	require.NoError(t, err)

	require.NoError(t, game.ActivateTheme(ctx, "grim_warden"))
	assert.Equal(t, "master_initial", session.CurrentPromptType())
	assert.Equal(t, session.EffectiveMaxIntegrity(), session.RunStats().CurrentIntegrity)
	assert.Equal(t, "The Grim Warden", game.ThemeText("theme_name"))

	require.NoError(t, game.SubmitPlayerAction(ctx, "open the gate"))
	assert.Empty(t, session.UnsavedDelta())

	require.NoError(t, game.RecordNarration(ctx, services.Narration{Text: "The gate groans open.", XPAwarded: 120}))
	assert.True(t, session.IsBoonSelectionPending())
	assert.Equal(t, 2, session.PlayerLevel())

	require.NoError(t, game.ChooseBoon(ctx, models.BoonSelection{Type: models.BoonTrait, TraitKey: "stoic"}))
	assert.False(t, session.IsBoonSelectionPending())
	assert.Empty(t, session.UnsavedDelta())

	stored, err := b.store.LoadGameState(user.ID, "grim_warden")
	require.NoError(t, err)
	assert.Len(t, stored.GameHistory, 3)
	progress, err := b.store.LoadProgress(user.ID, "grim_warden")
	require.NoError(t, err)
	assert.Equal(t, 2, progress.Level)
	assert.Equal(t, []string{"stoic"}, progress.AcquiredTraitKeys)

	require.NoError(t, users.SignOut(ctx))
	assert.Nil(t, session.CurrentUser())
	assert.Empty(t, session.GameHistory())

	// a fresh client resumes the stored run
	resumed, users2, game2 := newClientStack()
	_, err = users2.SignIn(ctx, "ada@example.com", "secret-pass")
	require.NoError(t, err)
	require.NoError(t, game2.ActivateTheme(ctx, "grim_warden"))
	assert.Len(t, resumed.GameHistory(), 3)
	assert.Empty(t, resumed.UnsavedDelta())
	assert.Equal(t, []string{"stoic"}, resumed.AcquiredTraitKeys())
	assert.Equal(t, 2, resumed.PlayerLevel())
}
