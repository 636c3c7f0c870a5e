package http

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/FinanGammell/pare/pkg/metrics"
)

// BreakerReporter exposes a circuit breaker state for readiness output.
type BreakerReporter interface {
	CircuitState() string
}

type HealthHandler struct {
	db       *sqlx.DB
	redis    *redis.Client
	breakers map[string]BreakerReporter
}

func NewHealthHandler(db *sqlx.DB, redis *redis.Client, breakers map[string]BreakerReporter) *HealthHandler {
	return &HealthHandler{db: db, redis: redis, breakers: breakers}
}

func (h *HealthHandler) Register(app *fiber.App) {
	app.Get("/health", h.Health)
	app.Get("/ready", h.Ready)
}

func (h *HealthHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	checks := make(map[string]any)
	allHealthy := true

	// Check PostgreSQL
	if h.db != nil {
		if err := h.db.PingContext(ctx); err != nil {
			checks["postgres"] = "unhealthy: " + err.Error()
			allHealthy = false
		} else {
			pool := metrics.AssessPool(h.db.Stats())
			checks["postgres"] = string(pool.Status)
			checks["postgres_pool"] = pool
			if pool.Status == metrics.PoolUnhealthy {
				allHealthy = false
			}
		}
	} else {
		checks["postgres"] = "not configured"
	}

	// Check Redis
	if h.redis != nil {
		if err := h.redis.Ping(ctx).Err(); err != nil {
			checks["redis"] = "unhealthy: " + err.Error()
			allHealthy = false
		} else {
			checks["redis"] = "healthy"
		}
	} else {
		checks["redis"] = "not configured"
	}

	// Breaker state is informational only.
	for name, b := range h.breakers {
		checks[name+"_circuit"] = b.CircuitState()
	}

	status := "ready"
	statusCode := fiber.StatusOK
	if !allHealthy {
		status = "not ready"
		statusCode = fiber.StatusServiceUnavailable
	}

	return c.Status(statusCode).JSON(fiber.Map{
		"status":    status,
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
