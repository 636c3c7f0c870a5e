package bootstrap

import (
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/FinanGammell/pare/adapter/in/http"
	"github.com/FinanGammell/pare/infra/middleware"
	"github.com/FinanGammell/pare/pkg/logger"
)

// NewAPI builds the fiber app on top of shared dependencies.
func NewAPI(deps *Dependencies) *fiber.App {
	cfg := deps.Config

	app := fiber.New(fiber.Config{
		ErrorHandler:          middleware.ErrorHandler(),
		DisableStartupMessage: cfg.IsProduction(),

		ReadBufferSize:  16384,
		WriteBufferSize: 16384,

		JSONEncoder: json.Marshal,
		JSONDecoder: json.Unmarshal,

		BodyLimit:    1 * 1024 * 1024,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		ServerHeader: "",
	})

	// Global middleware stack (order matters)
	app.Use(middleware.RequestID())
	app.Use(middleware.Recover())
	app.Use(middleware.SecurityHeaders())
	app.Use(middleware.RequestLogger())
	app.Use(compress.New(compress.Config{Level: compress.LevelBestSpeed}))

	// AllowCredentials:true requires explicit origins (not "*")
	allowOrigins := strings.Join(cfg.AllowedOrigins, ",")
	allowCredentials := true
	if allowOrigins == "" || allowOrigins == "*" {
		if cfg.IsProduction() {
			allowOrigins = ""
			allowCredentials = false
		} else {
			allowOrigins = "http://localhost:3000,http://localhost:5173"
		}
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowOrigins,
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization,X-Request-ID",
		ExposeHeaders:    "X-Request-ID,X-RateLimit-Limit,X-RateLimit-Remaining",
		AllowCredentials: allowCredentials,
		MaxAge:           86400,
	}))

	// No auth
	http.NewHealthHandler(deps.SQLDB, deps.Redis, map[string]http.BreakerReporter{
		"gmail": deps.GmailProvider,
	}).Register(app)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api")
	api.Use(middleware.JWTAuth(cfg.JWTSecret))
	api.Use(middleware.NewRateLimiter(120, time.Minute).Handler())
	api.Use(middleware.MaxBodySize(64 * 1024))

	http.NewSyncHandler(deps.JobManager, deps.ResultService).Register(api)
	http.NewResultHandler(deps.ResultService).Register(api)
	http.NewCredentialHandler(deps.CredentialService).Register(api)

	logger.Info("[Bootstrap] API server initialized")
	return app
}
