package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk/internal/api/dto"
	"github.com/spec-kit/helpdesk/internal/auth"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/service"
	apperrors "github.com/spec-kit/helpdesk/pkg/util"
)

// UsersHandler serves account endpoints.
type UsersHandler struct {
	authService *service.AuthService
}

// NewUsersHandler constructs handler.
func NewUsersHandler(authService *service.AuthService) *UsersHandler {
	return &UsersHandler{authService: authService}
}

// Register POST /auth/register.
func (h *UsersHandler) Register(c *fiber.Ctx) error {
	var req dto.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return apperrors.NewValidationError("name, email, password required", nil)
	}

	user, token, expiresAt, err := h.authService.Register(c.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		return apperrors.NewConflict(err.Error(), nil)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": authResponse(user, token, expiresAt)})
}

// Login POST /auth/login.
func (h *UsersHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	user, token, expiresAt, err := h.authService.Login(c.Context(), req.Email, req.Password)
	if err != nil {
		return apperrors.NewUnauthorized("invalid credentials")
	}
	return c.JSON(fiber.Map{"data": authResponse(user, token, expiresAt)})
}

// RequestPasswordReset POST /auth/password/reset/request.
func (h *UsersHandler) RequestPasswordReset(c *fiber.Ctx) error {
	var req dto.PasswordResetRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	// Response is identical whether or not the account exists.
	_, _ = h.authService.RequestPasswordReset(c.Context(), req.Email)
	return c.JSON(fiber.Map{"data": fiber.Map{"requested": true}})
}

// ConfirmPasswordReset POST /auth/password/reset/confirm.
func (h *UsersHandler) ConfirmPasswordReset(c *fiber.Ctx) error {
	var req dto.PasswordResetConfirmRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Token == "" || req.NewPassword == "" {
		return apperrors.NewValidationError("token, new_password required", nil)
	}
	if err := h.authService.ConfirmPasswordReset(c.Context(), req.Token, req.NewPassword); err != nil {
		return apperrors.NewValidationError("invalid or expired token", nil)
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"reset": true}})
}

// ChangePassword POST /auth/password/change.
func (h *UsersHandler) ChangePassword(c *fiber.Ctx) error {
	actor, ok := auth.UserFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	var req dto.ChangePasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.CurrentPassword == "" || req.NewPassword == "" {
		return apperrors.NewValidationError("current_password, new_password required", nil)
	}
	if err := h.authService.ChangePassword(c.Context(), actor.ID, req.CurrentPassword, req.NewPassword); err != nil {
		return apperrors.NewUnauthorized("invalid credentials")
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"changed": true}})
}

func authResponse(user *domain.User, token string, expiresAt time.Time) dto.AuthResponse {
	return dto.AuthResponse{
		User: dto.UserResponse{
			ID:    user.ID,
			Name:  user.Name,
			Email: user.Email,
			Role:  user.Role,
		},
		Token:     token,
		ExpiresAt: expiresAt,
	}
}
