package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"nexor/chatbot"
	"nexor/config"
	"nexor/contact"
	"nexor/database"
	"nexor/models"
	"nexor/utils"

	"github.com/alexedwards/scs/v2"
)

const testIntakeToken = "test-intake-token"

// MockApplication holds dependencies for handler tests.
type MockApplication struct {
	db          *database.DatabaseService
	rateLimiter *models.RateLimiter
	logger      *slog.Logger
	chat        *chatbot.Sessions
	contacts    *contact.Submitter
	fallback    *contact.FallbackStore
	sessions    *scs.SessionManager
	storage     *utils.LocalStorage
}

func (a *MockApplication) DB() *database.DatabaseService    { return a.db }
func (a *MockApplication) RateLimiter() *models.RateLimiter { return a.rateLimiter }
func (a *MockApplication) Logger() *slog.Logger             { return a.logger }
func (a *MockApplication) Chat() *chatbot.Sessions          { return a.chat }
func (a *MockApplication) Contacts() *contact.Submitter     { return a.contacts }
func (a *MockApplication) Fallback() *contact.FallbackStore { return a.fallback }
func (a *MockApplication) Sessions() *scs.SessionManager    { return a.sessions }
func (a *MockApplication) Storage() models.StorageService   { return a.storage }

// testServer is a running server plus a browser-like client for it.
type testServer struct {
	*httptest.Server
	app    *MockApplication
	client *http.Client
	csrf   string
}

// setupTestServer creates a full application stack with a test database and
// serves it through the same middleware chain main uses.
func setupTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	dir := t.TempDir()
	dbService, err := database.InitDB(filepath.Join(dir, "test.db?_journal_mode=WAL&_foreign_keys=on"), config.DefaultAdminPass, logger)
	if err != nil {
		t.Fatalf("Failed to initialize test database: %v", err)
	}

	storage, err := utils.NewLocalStorage(filepath.Join(dir, "uploads"), "/uploads")
	if err != nil {
		t.Fatalf("Failed to create test storage: %v", err)
	}
	fallback := contact.NewFallbackStore(storage)

	app := &MockApplication{
		db:          dbService,
		rateLimiter: models.NewRateLimiter(time.Millisecond, 100, time.Hour, 24*time.Hour),
		logger:      logger,
		chat:        chatbot.NewSessions(chatbot.NewResolver(), 0, 0, 0),
		fallback:    fallback,
		sessions:    scs.New(),
		storage:     storage,
	}
	utils.IPSalt = "test-salt"
	utils.BackupDir = filepath.Join(dir, "backups")

	srv := httptest.NewServer(Wrap(SetupRouter(app, storage.Dir), ""))
	app.contacts = contact.NewSubmitter(srv.URL+"/api/contacts", testIntakeToken, time.Second, fallback, logger)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("Failed to create cookie jar: %v", err)
	}
	ts := &testServer{Server: srv, app: app, client: &http.Client{Jar: jar}}

	t.Cleanup(func() {
		srv.Close()
		dbService.Close()
		utils.IPSalt = ""
		utils.BackupDir = ""
	})

	var session map[string]any
	ts.do(t, "GET", "/api/session", nil, http.StatusOK, &session)
	ts.csrf, _ = session["csrf_token"].(string)
	if ts.csrf == "" {
		t.Fatal("CSRF token missing from /api/session")
	}
	return ts
}

// do sends a JSON request with the CSRF header, asserts the status and
// decodes the response into out when it is non-nil.
func (ts *testServer) do(t *testing.T, method, path string, body any, wantStatus int, out any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal request body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, ts.URL+path, reader)
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if ts.csrf != "" {
		req.Header.Set("X-CSRF-Token", ts.csrf)
	}
	return ts.send(t, req, wantStatus, out)
}

func (ts *testServer) send(t *testing.T, req *http.Request, wantStatus int, out any) *http.Response {
	t.Helper()
	resp, err := ts.client.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != wantStatus {
		t.Fatalf("%s %s: expected status %d, got %d. Body: %s", req.Method, req.URL.Path, wantStatus, resp.StatusCode, raw)
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			t.Fatalf("Failed to decode response %s: %v", raw, err)
		}
	}
	return resp
}

func (ts *testServer) login(t *testing.T, login, password string) {
	t.Helper()
	ts.do(t, "POST", "/api/forum/login", map[string]string{"login": login, "password": password}, http.StatusOK, nil)
}
