package e2e

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/reelsaver/api/internal/auth"
	"github.com/reelsaver/api/internal/client"
	"github.com/reelsaver/api/internal/config"
	"github.com/reelsaver/api/internal/handler"
	"github.com/reelsaver/api/internal/ledger"
	"github.com/reelsaver/api/internal/middleware"
	"github.com/reelsaver/api/internal/model"
	"github.com/reelsaver/api/internal/resolver"
	"github.com/reelsaver/api/internal/service"
	"github.com/reelsaver/api/internal/store"
	ws "github.com/reelsaver/api/internal/websocket"
	"github.com/reelsaver/api/internal/worker"
)

const (
	testJWTSecret    = "test-secret-for-e2e"
	testWorkerSecret = "test-worker-secret"
	testPublicURL    = "http://reelsaver.test"
	testUserID       = "test-user-123"
)

// testApp holds all components needed for testing
type testApp struct {
	app      *fiber.App
	credits  *ledger.RedisLedger
	jobs     store.JobStore
	storage  *client.LocalStorage
	inline   *service.InlineDispatcher
	redis    *miniredis.Miniredis
	upstream *fakeUpstream
}

type appOption func(*appOptions)

type appOptions struct {
	wrapStorage func(client.StorageClient) client.StorageClient
}

// withFailingUpload makes every archive upload fail
func withFailingUpload() appOption {
	return func(o *appOptions) {
		o.wrapStorage = func(s client.StorageClient) client.StorageClient {
			return failingUploads{s}
		}
	}
}

type failingUploads struct {
	client.StorageClient
}

func (failingUploads) Upload(ctx context.Context, key string, body io.Reader, contentType string) error {
	return errors.New("bucket unavailable")
}

// fakeUpstream serves both the extractor API and the media CDN.
// Source URLs whose last path segment starts with "missing" have no media;
// "broken" ones resolve but fail to download.
type fakeUpstream struct {
	server *httptest.Server
}

func newFakeUpstream(t *testing.T) *fakeUpstream {
	t.Helper()
	u := &fakeUpstream{}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/extract", func(w http.ResponseWriter, r *http.Request) {
		var req client.ExtractRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		name := path.Base(req.URL)
		if strings.HasPrefix(name, "missing") {
			http.Error(w, `{"status":"no_media"}`, http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(client.ExtractResult{
			Status: "ok",
			Title:  name,
			Variants: []model.MediaVariant{
				{URL: u.server.URL + "/media/" + name + "-low", Ext: "mp4", Height: 360},
				{URL: u.server.URL + "/media/" + name, Ext: "mp4", Height: 720},
			},
		})
	})
	mux.HandleFunc("/media/", func(w http.ResponseWriter, r *http.Request) {
		name := path.Base(r.URL.Path)
		if strings.HasPrefix(name, "broken") {
			http.Error(w, "gone", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "video/mp4")
		io.WriteString(w, "payload-"+name)
	})
	u.server = httptest.NewServer(mux)
	t.Cleanup(u.server.Close)
	return u
}

// setupApp wires the same components as main.go against miniredis, a
// temporary storage directory and a fake upstream. Jobs run inline.
func setupApp(t *testing.T, opts ...appOption) *testApp {
	t.Helper()

	var o appOptions
	for _, opt := range opts {
		opt(&o)
	}

	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { redisClient.Close() })

	validate := validator.New()

	hub := ws.NewHub()
	go hub.Run()
	t.Cleanup(hub.Stop)

	jobStore := store.NewRedisJobStore(redisClient, store.Options{QueuedTimeout: 10 * time.Minute})
	credits := ledger.NewRedisLedger(redisClient)

	localStorage, err := client.NewLocalStorage(&config.StorageConfig{
		Backend:       "local",
		LocalDir:      t.TempDir(),
		SigningSecret: "test-signing-secret",
	}, testPublicURL)
	if err != nil {
		t.Fatalf("failed to create local storage: %v", err)
	}
	var storage client.StorageClient = localStorage
	if o.wrapStorage != nil {
		storage = o.wrapStorage(storage)
	}

	upstream := newFakeUpstream(t)
	mediaResolver := resolver.New(client.NewExtractorClient(&config.ExtractorConfig{
		BaseURL: upstream.server.URL,
		APIKey:  "test-extractor-key",
		Timeout: 5,
	}))

	bulkWorker := worker.NewBulkWorker(jobStore, mediaResolver, client.NewMediaFetcher(nil), storage, hub, worker.Config{
		LeaseTTL:         30 * time.Second,
		ItemTimeout:      5 * time.Second,
		ExecutionTimeout: 30 * time.Second,
		SpoolDir:         t.TempDir(),
	})
	inline := service.NewInlineDispatcher(bulkWorker, 30*time.Second)
	t.Cleanup(inline.Wait)

	bulkService := service.NewBulkService(jobStore, credits, inline, 50)

	bulkHandler := handler.NewBulkHandler(bulkService, mediaResolver, validate)
	workerHandler := handler.NewWorkerHandler(bulkWorker, jobStore, validate)
	filesHandler := handler.NewFilesHandler(localStorage)
	authHandler := handler.NewAuthHandler(nil, testJWTSecret)

	authMiddleware := middleware.NewLegacyAuthMiddleware(testJWTSecret)
	rateLimiter := middleware.NewRateLimiter(redisClient)

	app := fiber.New(fiber.Config{
		BodyLimit: 1 * 1024 * 1024,
	})

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"timestamp": 1234567890})
	})
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"redis":    redisClient.Ping(c.Context()).Err() == nil,
				"store":    store.BackendRedis,
				"ledger":   ledger.BackendRedis,
				"storage":  "local",
				"dispatch": service.DispatchModeInline,
				"auth":     true,
			},
		})
	})
	app.Get("/auth/verify", authHandler.Verify)
	app.Get("/files/*", filesHandler.Download)
	app.Post("/internal/worker/bulk", middleware.WorkerAuth(testWorkerSecret), workerHandler.Invoke)

	api := app.Group("/api", authMiddleware.Authenticate())

	// Use very high rate limits so tests don't get blocked
	api.Post("/bulk", rateLimiter.BulkLimit(10000), bulkHandler.Create)
	jobs := api.Group("/bulk/jobs", rateLimiter.StatusLimit(10000))
	jobs.Get("/", bulkHandler.List)
	jobs.Get("/:jobId", bulkHandler.Status)
	api.Get("/credits", bulkHandler.Credits)
	api.Post("/resolve", rateLimiter.ResolveLimit(10000), bulkHandler.Resolve)

	return &testApp{
		app:      app,
		credits:  credits,
		jobs:     jobStore,
		storage:  localStorage,
		inline:   inline,
		redis:    mr,
		upstream: upstream,
	}
}

// grant sets a user's balance
func (ta *testApp) grant(t *testing.T, userID string, balance int) {
	t.Helper()
	if err := ta.credits.Set(context.Background(), userID, balance); err != nil {
		t.Fatalf("failed to set balance: %v", err)
	}
}

// sourceURL builds a source URL the fake upstream understands
func sourceURL(name string) string {
	return "https://videos.example.com/watch/" + name
}

// generateToken creates a legacy HMAC JWT token for test requests.
func generateToken(t *testing.T) string {
	t.Helper()
	return generateTokenFor(t, testUserID, time.Hour)
}

func generateTokenFor(t *testing.T, userID string, ttl time.Duration) string {
	t.Helper()
	signed, err := auth.IssueLegacyToken(userID, userID+"@example.com", testJWTSecret, ttl)
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}
	return signed
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body string, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return app.Test(req, -1)
}

// doAuthRequest performs an authenticated request.
func doAuthRequest(t *testing.T, app *fiber.App, method, path, body string) (*http.Response, error) {
	t.Helper()
	token := generateToken(t)
	return doRequest(app, method, path, body, map[string]string{
		"Authorization": "Bearer " + token,
	})
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

// decodeJSON parses the response body into out.
func decodeJSON(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	body := readBody(t, resp)
	if err := json.Unmarshal([]byte(body), out); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}
