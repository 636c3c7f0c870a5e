package http

import (
	"github.com/gofiber/fiber/v2"

	in "github.com/FinanGammell/pare/core/port/in"
	"github.com/FinanGammell/pare/pkg/response"
)

// ResultHandler serves classification output: meetings, tasks and junk.
type ResultHandler struct {
	service in.ResultService
}

func NewResultHandler(service in.ResultService) *ResultHandler {
	return &ResultHandler{service: service}
}

// Register registers result routes
func (h *ResultHandler) Register(router fiber.Router) {
	router.Get("/meetings", h.ListMeetings)
	router.Get("/tasks", h.ListTasks)
	router.Get("/junk", h.ListJunk)
	router.Post("/emails/:id/hide", h.HideEmail)
}

func (h *ResultHandler) ListMeetings(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return err
	}
	page := response.GetPagination(c, defaultPageSize, maxPageSize)

	meetings, err := h.service.ListMeetings(c.UserContext(), userID, page.Limit, page.Offset)
	if err != nil {
		return err
	}
	return response.OKWithMeta(c, meetings, listMeta(page, len(meetings)))
}

func (h *ResultHandler) ListTasks(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return err
	}
	page := response.GetPagination(c, defaultPageSize, maxPageSize)

	tasks, err := h.service.ListTasks(c.UserContext(), userID, page.Limit, page.Offset)
	if err != nil {
		return err
	}
	return response.OKWithMeta(c, tasks, listMeta(page, len(tasks)))
}

// ListJunk lists newsletter and junk records with their unsubscribe links.
func (h *ResultHandler) ListJunk(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return err
	}
	page := response.GetPagination(c, defaultPageSize, maxPageSize)

	junk, err := h.service.ListJunk(c.UserContext(), userID, page.Limit, page.Offset)
	if err != nil {
		return err
	}
	return response.OKWithMeta(c, junk, listMeta(page, len(junk)))
}

// HideEmail soft-deletes a message so it drops out of every list.
func (h *ResultHandler) HideEmail(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return err
	}

	if err := h.service.HideEmail(c.UserContext(), userID, c.Params("id")); err != nil {
		return err
	}
	return response.NoContent(c)
}
