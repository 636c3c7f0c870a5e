package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/FinanGammell/pare/infra/middleware"
	"github.com/FinanGammell/pare/pkg/apperr"
	"github.com/FinanGammell/pare/pkg/response"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// GetUserID extracts the authenticated user id set by the JWT middleware.
func GetUserID(c *fiber.Ctx) (uuid.UUID, error) {
	userID, ok := c.Locals(middleware.LocalUserID).(uuid.UUID)
	if !ok || userID == uuid.Nil {
		return uuid.Nil, apperr.Unauthorized("")
	}
	return userID, nil
}

// listMeta builds pagination metadata. A full page implies there may be more.
func listMeta(page *response.PaginationParams, n int) *response.Meta {
	return &response.Meta{
		Total:   n,
		Limit:   page.Limit,
		Offset:  page.Offset,
		HasMore: n == page.Limit,
	}
}
