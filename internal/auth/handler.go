package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/ledgerd/internal/account"
	"github.com/congo-pay/ledgerd/internal/identity"
	"github.com/congo-pay/ledgerd/internal/middleware"
)

// Handler exposes register/login/refresh/logout endpoints.
type Handler struct {
	svc *Service
}

// NewHandler builds an auth HTTP handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type registerRequest struct {
	Email    string      `json:"email"`
	Password string      `json:"password"`
	Balance  json.Number `json:"balance"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Register creates a user with its account and returns a token pair.
func (h *Handler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	opening, err := decimal.NewFromString(req.Balance.String())
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, identity.ErrInvalidOpeningBalance.Error())
	}

	session, err := h.svc.Register(c.UserContext(), identity.Registration{
		Email:          req.Email,
		Password:       req.Password,
		OpeningBalance: opening,
	})
	if err != nil {
		return registrationError(err)
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"success": true,
		"message": fmt.Sprintf("Your account has been created successfully. Here is your A/C No %d", session.Account.Number),
		"data": fiber.Map{
			"token":         session.Tokens.AccessToken,
			"refresh_token": session.Tokens.RefreshToken,
			"expires_in":    session.Tokens.ExpiresIn,
			"user": fiber.Map{
				"id":    session.User.ID,
				"email": session.User.Email,
				"account": fiber.Map{
					"accNumber": session.Account.Number,
					"balance":   session.Account.Balance.StringFixed(2),
				},
			},
		},
	})
}

// Login validates credentials and returns a token pair.
func (h *Handler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	session, err := h.svc.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			return fiber.NewError(http.StatusUnauthorized, err.Error())
		}
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"user_id":       session.User.ID,
			"token":         session.Tokens.AccessToken,
			"refresh_token": session.Tokens.RefreshToken,
			"expires_in":    session.Tokens.ExpiresIn,
			"token_version": session.User.TokenVersion,
		},
	})
}

// Refresh issues a new access token using a valid refresh token.
func (h *Handler) Refresh(c *fiber.Ctx) error {
	var req refreshRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	token, exp, err := h.svc.Refresh(c.UserContext(), req.RefreshToken)
	if err != nil {
		return fiber.NewError(http.StatusUnauthorized, "invalid refresh token")
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"success": true,
		"data":    fiber.Map{"token": token, "expires_in": exp},
	})
}

// Logout invalidates every token of the authenticated user.
func (h *Handler) Logout(c *fiber.Ctx) error {
	uid, ok := c.Locals(middleware.UserIDKey).(int64)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	if err := h.svc.Logout(c.UserContext(), uid); err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"success": true,
		"message": "You have successfully logged out",
	})
}

func registrationError(err error) error {
	switch {
	case errors.Is(err, identity.ErrEmailTaken):
		return fiber.NewError(http.StatusConflict, err.Error())
	case errors.Is(err, identity.ErrInvalidEmail),
		errors.Is(err, identity.ErrWeakPassword),
		errors.Is(err, identity.ErrInvalidOpeningBalance):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	f := account.Describe(err)
	return fiber.NewError(f.Status, f.Message)
}
