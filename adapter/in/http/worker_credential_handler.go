package http

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/FinanGammell/pare/core/domain"
	in "github.com/FinanGammell/pare/core/port/in"
	"github.com/FinanGammell/pare/pkg/apperr"
	"github.com/FinanGammell/pare/pkg/logger"
	"github.com/FinanGammell/pare/pkg/response"
)

// CredentialHandler receives the mailbox token produced by the login flow.
type CredentialHandler struct {
	service in.CredentialService
}

func NewCredentialHandler(service in.CredentialService) *CredentialHandler {
	return &CredentialHandler{service: service}
}

func (h *CredentialHandler) Register(router fiber.Router) {
	router.Post("/credentials", h.Save)
}

type saveCredentialRequest struct {
	Email        string    `json:"email"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	Expiry       time.Time `json:"expiry"`
	Scopes       []string  `json:"scopes"`
}

// Save stores the caller's mailbox credential.
func (h *CredentialHandler) Save(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return err
	}

	var req saveCredentialRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.BadRequest("invalid request body").WithDetail("reason", err.Error())
	}

	cred := &domain.Credential{
		UserID:       userID,
		Provider:     domain.MailProviderGmail,
		Email:        strings.TrimSpace(req.Email),
		AccessToken:  req.AccessToken,
		RefreshToken: req.RefreshToken,
		TokenType:    req.TokenType,
		Expiry:       req.Expiry,
		Scopes:       req.Scopes,
	}
	if err := h.service.SaveCredential(c.UserContext(), cred); err != nil {
		return err
	}

	logger.Info("[CredentialHandler.Save] stored credential user=%s", userID)
	return response.NoContent(c)
}
