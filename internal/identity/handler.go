package identity

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/ledgerd/internal/middleware"
)

// Handler exposes identity endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs an identity HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type profileResponse struct {
	ID           int64   `json:"id"`
	Email        string  `json:"email"`
	TokenVersion int     `json:"token_version"`
	CreatedAt    string  `json:"created_at"`
	LastLogin    *string `json:"last_login"`
}

// Me returns the profile of the authenticated user.
func (h *Handler) Me(c *fiber.Ctx) error {
	uid, ok := c.Locals(middleware.UserIDKey).(int64)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	user, err := h.service.Repository().FindByID(c.UserContext(), uid)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return fiber.NewError(http.StatusNotFound, err.Error())
		}
		return err
	}

	resp := profileResponse{
		ID:           user.ID,
		Email:        user.Email,
		TokenVersion: user.TokenVersion,
		CreatedAt:    user.CreatedAt.Format(time.RFC3339),
	}
	if user.LastLogin != nil {
		last := user.LastLogin.Format(time.RFC3339)
		resp.LastLogin = &last
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"success": true, "data": resp})
}
