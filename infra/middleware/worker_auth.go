package middleware

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/FinanGammell/pare/pkg/apperr"
	"github.com/FinanGammell/pare/pkg/logger"
	"github.com/FinanGammell/pare/pkg/response"
)

// Locals keys set by JWTAuth.
const (
	LocalUserID    = "user_id"
	LocalUserEmail = "user_email"
)

// maxClockSkew is how far in the future an iat claim may be.
const maxClockSkew = time.Minute

// JWTAuth validates HS256 bearer tokens and stores the `sub` claim as the
// request's user id.
func JWTAuth(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		// Skip auth for CORS preflight requests
		if c.Method() == fiber.MethodOptions {
			return c.Next()
		}

		tokenString := bearerToken(c.Get(fiber.HeaderAuthorization))
		if tokenString == "" {
			return response.Unauthorized(c, "missing authorization")
		}

		claims, err := parseClaims(tokenString, secret)
		if err != nil {
			logger.WithError(err).Warn("[JWTAuth] token rejected path=%s", c.Path())
			return response.AppError(c, err)
		}

		userIDStr, _ := claims["sub"].(string)
		userID, err := uuid.Parse(userIDStr)
		if err != nil {
			return response.Error(c, fiber.StatusUnauthorized, apperr.CodeInvalidToken, "invalid user id in token")
		}

		c.Locals(LocalUserID, userID)
		if email, ok := claims["email"].(string); ok {
			c.Locals(LocalUserEmail, email)
		}
		return c.Next()
	}
}

func bearerToken(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func parseClaims(tokenString, secret string) (jwt.MapClaims, error) {
	if secret == "" {
		return nil, apperr.ConfigError("JWT secret not configured")
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unsupported signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperr.New(apperr.CodeTokenExpired, "token expired", fiber.StatusUnauthorized)
		}
		return nil, apperr.InvalidToken("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, apperr.InvalidToken("invalid claims")
	}

	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		if iat.After(time.Now().Add(maxClockSkew)) {
			return nil, apperr.InvalidToken("token issued in the future")
		}
	}
	return claims, nil
}
