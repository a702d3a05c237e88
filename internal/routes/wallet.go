package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/ledgerd/internal/account"
	"github.com/congo-pay/ledgerd/internal/auth"
	"github.com/congo-pay/ledgerd/internal/identity"
)

// WalletHandlers groups the handlers mounted under /wallet.
type WalletHandlers struct {
	Auth     *auth.Handler
	Identity *identity.Handler
	Account  *account.Handler
}

// WalletMiddleware groups the per-route middleware of the /wallet group.
type WalletMiddleware struct {
	Authenticate fiber.Handler
	LoginLimit   fiber.Handler
	Idempotency  fiber.Handler
}

// RegisterWalletRoutes wires session, profile and money movement endpoints.
func RegisterWalletRoutes(r fiber.Router, h WalletHandlers, mw WalletMiddleware) {
	r.Post("/register", h.Auth.Register)
	r.Post("/login", mw.LoginLimit, h.Auth.Login)
	r.Post("/refresh", h.Auth.Refresh)

	protected := r.Group("", mw.Authenticate)
	protected.Post("/logout", h.Auth.Logout)
	protected.Get("/me", h.Identity.Me)

	protected.Post("/transfer", mw.Idempotency, h.Account.Transfer)
	protected.Post("/refund", mw.Idempotency, h.Account.Refund)
	protected.Post("/deposit", mw.Idempotency, h.Account.Deposit)
	protected.Post("/withdraw", mw.Idempotency, h.Account.Withdraw)
	protected.Get("/balance", h.Account.Balance)
	protected.Get("/history", h.Account.History)
}
