package middleware

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/FinanGammell/pare/pkg/apperr"
	"github.com/FinanGammell/pare/pkg/response"
)

const testSecret = "test-secret"

func signToken(t *testing.T, method jwt.SigningMethod, key any, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func newAuthApp() *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler()})
	app.Use(JWTAuth(testSecret))
	app.Get("/me", func(c *fiber.Ctx) error {
		return c.SendString(c.Locals(LocalUserID).(uuid.UUID).String())
	})
	return app
}

func decodeEnvelope(t *testing.T, body io.Reader) response.Response {
	t.Helper()
	var r response.Response
	if err := json.NewDecoder(body).Decode(&r); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return r
}

func TestJWTAuth(t *testing.T) {
	userID := uuid.New()
	valid := signToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{
		"sub": userID.String(), "exp": time.Now().Add(time.Hour).Unix(),
	})

	tests := []struct {
		name     string
		header   string
		status   int
		wantCode string
	}{
		{"valid", "Bearer " + valid, 200, ""},
		{"missing", "", 401, apperr.CodeUnauthorized},
		{"not bearer", "Basic abc", 401, apperr.CodeUnauthorized},
		{"wrong secret", "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte("other"), jwt.MapClaims{
			"sub": userID.String(),
		}), 401, apperr.CodeInvalidToken},
		{"expired", "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{
			"sub": userID.String(), "exp": time.Now().Add(-time.Hour).Unix(),
		}), 401, apperr.CodeTokenExpired},
		{"bad sub", "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{
			"sub": "not-a-uuid",
		}), 401, apperr.CodeInvalidToken},
		{"issued in future", "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{
			"sub": userID.String(), "iat": time.Now().Add(time.Hour).Unix(),
		}), 401, apperr.CodeInvalidToken},
	}

	app := newAuthApp()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if resp.StatusCode != tt.status {
				t.Fatalf("expected status %d, got %d", tt.status, resp.StatusCode)
			}
			if tt.wantCode == "" {
				body, _ := io.ReadAll(resp.Body)
				if string(body) != userID.String() {
					t.Errorf("expected user id %s, got %s", userID, body)
				}
				return
			}
			env := decodeEnvelope(t, resp.Body)
			if env.Error == nil || env.Error.Code != tt.wantCode {
				t.Errorf("expected code %s, got %+v", tt.wantCode, env.Error)
			}
		})
	}
}

func TestErrorHandler(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler()})
	app.Get("/app", func(c *fiber.Ctx) error { return apperr.AlreadyRunning("u1") })
	app.Get("/fiber", func(c *fiber.Ctx) error { return fiber.ErrMethodNotAllowed })
	app.Get("/plain", func(c *fiber.Ctx) error { return io.ErrUnexpectedEOF })

	tests := []struct {
		path   string
		status int
		code   string
	}{
		{"/app", 409, apperr.CodeAlreadyRunning},
		{"/fiber", 405, "METHOD_NOT_ALLOWED"},
		{"/plain", 500, apperr.CodeInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := app.Test(httptest.NewRequest("GET", tt.path, nil))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if resp.StatusCode != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, resp.StatusCode)
			}
			env := decodeEnvelope(t, resp.Body)
			if env.Success || env.Error == nil || env.Error.Code != tt.code {
				t.Errorf("expected code %s, got %+v", tt.code, env.Error)
			}
		})
	}
}

func TestRecover(t *testing.T) {
	app := fiber.New()
	app.Use(RequestID(), Recover())
	app.Get("/boom", func(c *fiber.Ctx) error { panic("boom") })

	resp, err := app.Test(httptest.NewRequest("GET", "/boom", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != 500 {
		t.Errorf("expected 500, got %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header")
	}
}

func TestRateLimiter(t *testing.T) {
	app := fiber.New()
	app.Use(NewRateLimiter(2, time.Minute).Handler())
	app.Get("/", func(c *fiber.Ctx) error { return c.SendStatus(204) })

	var statuses []string
	for i := 0; i < 3; i++ {
		resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		statuses = append(statuses, resp.Status[:3])
	}
	if got := strings.Join(statuses, ","); got != "204,204,429" {
		t.Errorf("expected 204,204,429, got %s", got)
	}
}
