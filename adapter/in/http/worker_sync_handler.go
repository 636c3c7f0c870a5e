package http

import (
	"github.com/gofiber/fiber/v2"

	in "github.com/FinanGammell/pare/core/port/in"
	"github.com/FinanGammell/pare/pkg/logger"
)

// SyncHandler exposes the sync trigger and progress poll.
type SyncHandler struct {
	sync    in.SyncService
	results in.ResultService
}

func NewSyncHandler(sync in.SyncService, results in.ResultService) *SyncHandler {
	return &SyncHandler{sync: sync, results: results}
}

// Register registers sync routes
func (h *SyncHandler) Register(router fiber.Router) {
	sync := router.Group("/sync")
	sync.Post("/", h.Start)
	sync.Get("/status", h.Status)
	sync.Get("/stats", h.Stats)
}

// Start queues a background sync for the caller.
// Responds 202 with the queued snapshot, or 409 when one is already running.
func (h *SyncHandler) Start(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return err
	}

	job, err := h.sync.StartSync(c.UserContext(), userID)
	if err != nil {
		return err
	}

	logger.Info("[SyncHandler.Start] queued job=%s user=%s", job.ID, userID)
	return c.Status(fiber.StatusAccepted).JSON(job)
}

// Status returns the latest job snapshot as a flat object.
func (h *SyncHandler) Status(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return err
	}

	job, err := h.sync.GetStatus(c.UserContext(), userID)
	if err != nil {
		return err
	}
	return c.JSON(job)
}

// Stats returns persisted email counts, independent of any job.
func (h *SyncHandler) Stats(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return err
	}

	stats, err := h.results.Stats(c.UserContext(), userID)
	if err != nil {
		return err
	}
	return c.JSON(stats)
}
