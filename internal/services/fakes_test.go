package services

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/Corphon/SceneIntruderClient/internal/apiclient"
	apperrors "github.com/Corphon/SceneIntruderClient/internal/errors"
	"github.com/Corphon/SceneIntruderClient/internal/models"
	"github.com/Corphon/SceneIntruderClient/internal/storage"
	"github.com/Corphon/SceneIntruderClient/internal/utils"
)

// fakeAssets serves JSON and text assets from memory and counts fetches per path.
// Unknown paths answer 404.
type fakeAssets struct {
	mu       sync.Mutex
	json     map[string]interface{}
	text     map[string]string
	failures map[string]error
	calls    map[string]int
	block    chan struct{}
}

func newFakeAssets() *fakeAssets {
	return &fakeAssets{
		json:     map[string]interface{}{},
		text:     map[string]string{},
		failures: map[string]error{},
		calls:    map[string]int{},
	}
}

func (f *fakeAssets) FetchJSON(ctx context.Context, path string, out interface{}) error {
	f.mu.Lock()
	f.calls[path]++
	block := f.block
	failure := f.failures[path]
	value, ok := f.json[path]
	f.mu.Unlock()

	if block != nil {
		<-block
	}
	if failure != nil {
		return failure
	}
	if !ok {
		return apperrors.NewStatusError(http.MethodGet, path, http.StatusNotFound, "", "")
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func (f *fakeAssets) FetchText(ctx context.Context, path string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[path]++
	if failure := f.failures[path]; failure != nil {
		return "", failure
	}
	text, ok := f.text[path]
	if !ok {
		return "", apperrors.NewStatusError(http.MethodGet, path, http.StatusNotFound, "", "")
	}
	return text, nil
}

func (f *fakeAssets) setFailure(path string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.failures, path)
		return
	}
	f.failures[path] = err
}

func (f *fakeAssets) callCount(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[path]
}

func transportFailure(path string) error {
	return apperrors.NewTransportError(http.MethodGet, path, context.DeadlineExceeded)
}

// withGrimWarden registers a complete playable theme.
func (f *fakeAssets) withGrimWarden() *fakeAssets {
	f.json["themes/grim_warden/config.json"] = map[string]interface{}{
		"id":              "grim_warden",
		"base_attributes": map[string]int{"integrity": 120, "willpower": 60},
		"item_types":      []string{"relic"},
		"xp_per_level":    []int{100, 200},
	}
	f.json["themes/grim_warden/texts.json"] = models.TextTable{
		"en": {"theme_name": "The Grim Warden", "greeting": "Hello"},
		"de": {"theme_name": "Der Grimme Wächter"},
	}
	f.json["themes/grim_warden/prompts-config.json"] = map[string]string{
		"master_initial": "themes/grim_warden/prompts/master_initial.txt",
		"master_combat":  "themes/grim_warden/prompts/master_combat.txt",
	}
	f.text["themes/grim_warden/prompts/master_initial.txt"] = "Begin at the gate."
	f.json["themes/grim_warden/data/relic_items.json"] = []models.ItemDefinition{{ID: "ash_lantern", ItemType: "relic"}}
	f.json["themes/grim_warden/data/traits.json"] = map[string]models.TraitDefinition{
		"stoic": {NameKey: "trait_stoic"},
	}
	return f
}

func newTestThemeService(fetcher AssetFetcher) *ThemeService {
	return NewThemeService(ThemeServiceOptions{
		Manifest:        DefaultManifest(),
		Fetcher:         fetcher,
		DefaultLanguage: "en",
		Logger:          utils.NewDiscardLogger(),
		Metrics:         utils.NewMetricsCollector(),
	})
}

// fakeBackend answers API requests through a handler and records them.
type fakeBackend struct {
	mu       sync.Mutex
	requests []apiclient.Request
	handler  func(req apiclient.Request, out interface{}) error
	block    chan struct{}
}

func (f *fakeBackend) Do(ctx context.Context, req apiclient.Request, out interface{}) error {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	handler := f.handler
	block := f.block
	f.mu.Unlock()

	if block != nil {
		<-block
	}
	if handler == nil {
		return apperrors.NewStatusError(req.Method, req.Path, http.StatusNotFound, "", "")
	}
	return handler(req, out)
}

func (f *fakeBackend) setHandler(handler func(req apiclient.Request, out interface{}) error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = handler
}

func (f *fakeBackend) requestsTo(method, path string) []apiclient.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	var matched []apiclient.Request
	for _, req := range f.requests {
		if req.Method == method && req.Path == path {
			matched = append(matched, req)
		}
	}
	return matched
}

func (f *fakeBackend) savedPayloads() []models.GameStatePayload {
	var payloads []models.GameStatePayload
	for _, req := range f.requestsTo(http.MethodPost, "/gamestates") {
		payloads = append(payloads, req.Body.(models.GameStatePayload))
	}
	return payloads
}

// respond copies v into out the way the API client decodes envelope data.
func respond(v interface{}, out interface{}) error {
	if out == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func notFound(req apiclient.Request) error {
	return apperrors.NewStatusError(req.Method, req.Path, http.StatusNotFound, "", "")
}

func serverError(req apiclient.Request) error {
	return apperrors.NewStatusError(req.Method, req.Path, http.StatusInternalServerError, "", "boom")
}

// recordingPreferences wraps a memory store and counts writes.
type recordingPreferences struct {
	*storage.MemoryPreferenceStore
	mu     sync.Mutex
	writes []string
}

func newRecordingPreferences(initial map[string]string) *recordingPreferences {
	return &recordingPreferences{MemoryPreferenceStore: storage.NewMemoryPreferenceStore(initial)}
}

func (r *recordingPreferences) Set(ctx context.Context, key, value string) error {
	r.mu.Lock()
	r.writes = append(r.writes, key+"="+value)
	r.mu.Unlock()
	return r.MemoryPreferenceStore.Set(ctx, key, value)
}

func (r *recordingPreferences) Delete(ctx context.Context, key string) error {
	r.mu.Lock()
	r.writes = append(r.writes, key+"=")
	r.mu.Unlock()
	return r.MemoryPreferenceStore.Delete(ctx, key)
}

func testUser() *models.User {
	return &models.User{ID: "user_1", Email: "ada@example.com", Token: "tok_1"}
}
