package http

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/FinanGammell/pare/core/domain"
	"github.com/FinanGammell/pare/infra/middleware"
	"github.com/FinanGammell/pare/pkg/apperr"
	"github.com/FinanGammell/pare/pkg/response"
)

// ===== Fakes =====

type fakeSync struct {
	job      *domain.SyncJob
	startErr error
}

func (f *fakeSync) StartSync(ctx context.Context, userID uuid.UUID) (*domain.SyncJob, error) {
	if f.startErr != nil {
		return nil, f.startErr
	}
	return domain.NewSyncJob(userID, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)), nil
}

func (f *fakeSync) GetStatus(ctx context.Context, userID uuid.UUID) (*domain.SyncJob, error) {
	if f.job == nil {
		return nil, apperr.NotFound("sync job")
	}
	return f.job, nil
}

type fakeResults struct {
	meetings []*domain.Meeting
	hidden   []string
	limit    int
	offset   int
}

func (f *fakeResults) Stats(ctx context.Context, userID uuid.UUID) (*domain.SyncStats, error) {
	return &domain.SyncStats{Total: 10, Processed: 7, Unprocessed: 3}, nil
}

func (f *fakeResults) ListMeetings(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Meeting, error) {
	f.limit, f.offset = limit, offset
	return f.meetings, nil
}

func (f *fakeResults) ListTasks(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Task, error) {
	return []*domain.Task{}, nil
}

func (f *fakeResults) ListJunk(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.JunkRecord, error) {
	return []*domain.JunkRecord{}, nil
}

func (f *fakeResults) HideEmail(ctx context.Context, userID uuid.UUID, emailID string) error {
	if emailID == "missing" {
		return apperr.NotFound("email")
	}
	f.hidden = append(f.hidden, emailID)
	return nil
}

type fakeCreds struct {
	saved *domain.Credential
}

func (f *fakeCreds) SaveCredential(ctx context.Context, cred *domain.Credential) error {
	if cred.AccessToken == "" && cred.RefreshToken == "" {
		return apperr.ValidationFailed("access_token or refresh_token is required")
	}
	f.saved = cred
	return nil
}

// ===== Helpers =====

func newTestApp(userID uuid.UUID, sync *fakeSync, results *fakeResults, creds *fakeCreds) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler()})
	api := app.Group("/api", func(c *fiber.Ctx) error {
		if userID != uuid.Nil {
			c.Locals(middleware.LocalUserID, userID)
		}
		return c.Next()
	})
	NewSyncHandler(sync, results).Register(api)
	NewResultHandler(results).Register(api)
	NewCredentialHandler(creds).Register(api)
	return app
}

func do(t *testing.T, app *fiber.App, method, path, body string) (int, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, b
}

func errorCode(t *testing.T, body []byte) string {
	t.Helper()
	var env response.Response
	if err := json.Unmarshal(body, &env); err != nil {
		t.Fatalf("decode %s: %v", body, err)
	}
	if env.Error == nil {
		return ""
	}
	return env.Error.Code
}

// ===== Tests =====

func TestSyncHandler_Start(t *testing.T) {
	userID := uuid.New()

	t.Run("accepted", func(t *testing.T) {
		app := newTestApp(userID, &fakeSync{}, &fakeResults{}, &fakeCreds{})
		status, body := do(t, app, "POST", "/api/sync", "")
		if status != 202 {
			t.Fatalf("expected 202, got %d: %s", status, body)
		}
		var job domain.SyncJob
		if err := json.Unmarshal(body, &job); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if job.State != domain.JobQueued || job.UserID != userID || job.ID == uuid.Nil {
			t.Errorf("expected queued job for %s, got %+v", userID, job)
		}
	})

	t.Run("already running", func(t *testing.T) {
		app := newTestApp(userID, &fakeSync{startErr: apperr.AlreadyRunning(userID.String())}, &fakeResults{}, &fakeCreds{})
		status, body := do(t, app, "POST", "/api/sync", "")
		if status != 409 {
			t.Fatalf("expected 409, got %d", status)
		}
		if code := errorCode(t, body); code != apperr.CodeAlreadyRunning {
			t.Errorf("expected %s, got %s", apperr.CodeAlreadyRunning, code)
		}
	})

	t.Run("unauthenticated", func(t *testing.T) {
		app := newTestApp(uuid.Nil, &fakeSync{}, &fakeResults{}, &fakeCreds{})
		if status, _ := do(t, app, "POST", "/api/sync", ""); status != 401 {
			t.Errorf("expected 401, got %d", status)
		}
	})
}

func TestSyncHandler_Status(t *testing.T) {
	userID := uuid.New()

	app := newTestApp(userID, &fakeSync{}, &fakeResults{}, &fakeCreds{})
	status, body := do(t, app, "GET", "/api/sync/status", "")
	if status != 404 {
		t.Fatalf("expected 404 before any job, got %d", status)
	}
	if code := errorCode(t, body); code != apperr.CodeNotFound {
		t.Errorf("expected %s, got %s", apperr.CodeNotFound, code)
	}

	job := domain.NewSyncJob(userID, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))
	job.State = domain.JobRunning
	job.Apply(domain.SyncReport{Total: 30, New: 30, Processed: 12, Unprocessed: 18})
	app = newTestApp(userID, &fakeSync{job: job}, &fakeResults{}, &fakeCreds{})
	status, body = do(t, app, "GET", "/api/sync/status", "")
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}

	var got map[string]any
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := map[string]any{"state": "running", "total": 30.0, "processed": 12.0, "unprocessed": 18.0, "new": 30.0, "failed": 0.0}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("field %s: expected %v, got %v", k, v, got[k])
		}
	}
}

func TestSyncHandler_Stats(t *testing.T) {
	app := newTestApp(uuid.New(), &fakeSync{}, &fakeResults{}, &fakeCreds{})
	status, body := do(t, app, "GET", "/api/sync/stats", "")
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}
	var got domain.SyncStats
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if diff := cmp.Diff(domain.SyncStats{Total: 10, Processed: 7, Unprocessed: 3}, got); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}
}

func TestResultHandler(t *testing.T) {
	results := &fakeResults{meetings: []*domain.Meeting{{EmailID: "m1", Title: "Standup"}}}
	app := newTestApp(uuid.New(), &fakeSync{}, results, &fakeCreds{})

	status, body := do(t, app, "GET", "/api/meetings?limit=1000&offset=5", "")
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}
	if results.limit != maxPageSize || results.offset != 5 {
		t.Errorf("expected limit %d offset 5, got %d %d", maxPageSize, results.limit, results.offset)
	}
	if !strings.Contains(string(body), `"Standup"`) {
		t.Errorf("expected meeting in body, got %s", body)
	}

	for _, path := range []string{"/api/tasks", "/api/junk"} {
		if status, _ := do(t, app, "GET", path, ""); status != 200 {
			t.Errorf("%s: expected 200, got %d", path, status)
		}
	}

	if status, _ := do(t, app, "POST", "/api/emails/m1/hide", ""); status != 204 {
		t.Errorf("expected 204, got %d", status)
	}
	if diff := cmp.Diff([]string{"m1"}, results.hidden); diff != "" {
		t.Errorf("hidden mismatch (-want +got):\n%s", diff)
	}
	if status, _ := do(t, app, "POST", "/api/emails/missing/hide", ""); status != 404 {
		t.Errorf("expected 404, got %d", status)
	}
}

func TestCredentialHandler_Save(t *testing.T) {
	userID := uuid.New()
	creds := &fakeCreds{}
	app := newTestApp(userID, &fakeSync{}, &fakeResults{}, creds)

	status, _ := do(t, app, "POST", "/api/credentials", `{"email":" me@example.com ","access_token":"a","refresh_token":"r","scopes":["s"]}`)
	if status != 204 {
		t.Fatalf("expected 204, got %d", status)
	}
	if creds.saved == nil || creds.saved.UserID != userID || creds.saved.Email != "me@example.com" {
		t.Errorf("expected credential stored for %s, got %+v", userID, creds.saved)
	}

	if status, _ := do(t, app, "POST", "/api/credentials", `{"email":"me@example.com"}`); status != 400 {
		t.Errorf("expected 400 without tokens, got %d", status)
	}
	if status, _ := do(t, app, "POST", "/api/credentials", `{not json`); status != 400 {
		t.Errorf("expected 400 for bad body, got %d", status)
	}
}

type fakeBreaker string

func (f fakeBreaker) CircuitState() string { return string(f) }

func TestHealthHandler_Ready(t *testing.T) {
	app := fiber.New()
	NewHealthHandler(nil, nil, map[string]BreakerReporter{"gmail": fakeBreaker("open")}).Register(app)

	status, body := do(t, app, fiber.MethodGet, "/ready", "")
	if status != fiber.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", status, body)
	}

	var got struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := map[string]string{
		"postgres":      "not configured",
		"redis":         "not configured",
		"gmail_circuit": "open",
	}
	if diff := cmp.Diff(want, got.Checks); diff != "" {
		t.Errorf("checks mismatch (-want +got):\n%s", diff)
	}
	if got.Status != "ready" {
		t.Errorf("expected ready, got %s", got.Status)
	}
}
