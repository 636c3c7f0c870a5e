package middleware

import (
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/FinanGammell/pare/pkg/apperr"
	"github.com/FinanGammell/pare/pkg/logger"
	"github.com/FinanGammell/pare/pkg/response"
)

// ErrorHandler is the fiber error handler. AppErrors keep their code and
// status, fiber errors are mapped by status, anything else is a 500.
func ErrorHandler() fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		requestID, _ := c.Locals("request_id").(string)

		var appErr *apperr.AppError
		var fiberErr *fiber.Error
		switch {
		case errors.As(err, &appErr):
			log := logger.WithField("request_id", requestID).
				WithField("error_code", appErr.Code).
				WithError(appErr.Err)
			if apperr.GetHTTPStatus(appErr) >= 500 {
				log.Error("[ErrorHandler] %s", appErr.Message)
			} else {
				log.Warn("[ErrorHandler] %s", appErr.Message)
			}
			return response.AppError(c, appErr)

		case errors.As(err, &fiberErr):
			return response.Error(c, fiberErr.Code, mapHTTPStatusToCode(fiberErr.Code), fiberErr.Message)

		default:
			logger.WithField("request_id", requestID).
				WithError(err).
				Error("[ErrorHandler] unexpected error on %s %s", c.Method(), c.Path())
			return response.InternalError(c, "an unexpected error occurred")
		}
	}
}

// RequestID middleware adds a unique request ID to each request
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		requestID := c.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Locals("request_id", requestID)
		c.Set("X-Request-ID", requestID)
		return c.Next()
	}
}

// RequestLogger logs incoming requests and their responses
func RequestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		requestID, _ := c.Locals("request_id").(string)
		status := c.Response().StatusCode()
		log := logger.WithFields(map[string]any{
			"request_id": requestID,
			"method":     c.Method(),
			"path":       c.Path(),
			"status":     status,
			"ip":         c.IP(),
		}).WithDuration(time.Since(start))

		if uid, ok := c.Locals(LocalUserID).(uuid.UUID); ok {
			log = log.WithField("user_id", uid.String())
		}

		switch {
		case status >= 500:
			log.Error("[HTTP] %s %s -> %d", c.Method(), c.Path(), status)
		case status >= 400:
			log.Warn("[HTTP] %s %s -> %d", c.Method(), c.Path(), status)
		default:
			log.Debug("[HTTP] %s %s -> %d", c.Method(), c.Path(), status)
		}
		return err
	}
}

// Recover middleware recovers from panics
func Recover() fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		defer func() {
			if r := recover(); r != nil {
				requestID, _ := c.Locals("request_id").(string)
				logger.WithFields(map[string]any{
					"request_id": requestID,
					"panic":      fmt.Sprintf("%v", r),
					"path":       c.Path(),
					"method":     c.Method(),
					"stack":      string(debug.Stack()),
				}).Error("[Recover] panic recovered")
				err = response.InternalError(c, "an unexpected error occurred")
			}
		}()
		return c.Next()
	}
}

func mapHTTPStatusToCode(status int) string {
	switch status {
	case 400:
		return apperr.CodeBadRequest
	case 401:
		return apperr.CodeUnauthorized
	case 403:
		return apperr.CodeForbidden
	case 404:
		return apperr.CodeNotFound
	case 405:
		return "METHOD_NOT_ALLOWED"
	case 409:
		return apperr.CodeConflict
	case 413:
		return "PAYLOAD_TOO_LARGE"
	case 429:
		return apperr.CodeRateLimited
	case 500:
		return apperr.CodeInternalError
	case 502, 503, 504:
		return "SERVICE_UNAVAILABLE"
	default:
		return "UNKNOWN_ERROR"
	}
}
