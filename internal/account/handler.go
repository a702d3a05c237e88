package account

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/ledgerd/internal/ledger"
	"github.com/congo-pay/ledgerd/internal/middleware"
)

// Handler exposes account HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds an account HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type transferRequest struct {
	To     int64       `json:"to"`
	Amount json.Number `json:"amount"`
}

type refundRequest struct {
	TxRef string `json:"txRef"`
}

type transactionResponse struct {
	Reference string    `json:"txRef"`
	Kind      string    `json:"kind"`
	Sender    int64     `json:"senderId"`
	Receiver  int64     `json:"receiverId"`
	Amount    string    `json:"amount"`
	RefundRef *string   `json:"refundRef"`
	CreatedAt time.Time `json:"created_at"`
}

// Transfer moves money to another account.
func (h *Handler) Transfer(c *fiber.Ctx) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	var req transferRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	if req.To <= 0 {
		return fiber.NewError(http.StatusBadRequest, "Account number is required")
	}
	amount, err := ParseAmount(req.Amount.String())
	if err != nil {
		return fail(err)
	}

	res, err := h.service.TransferMoney(c.UserContext(), TransferInput{UserID: userID, To: req.To, Amount: amount})
	if err != nil {
		return fail(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"transactionReference": res.Reference,
			"balance":              money(res.Balance),
		},
	})
}

// Refund reverses a transfer received by the caller.
func (h *Handler) Refund(c *fiber.Ctx) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	var req refundRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}

	res, err := h.service.Refund(c.UserContext(), userID, req.TxRef)
	if err != nil {
		return fail(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"success": true,
		"message": fmt.Sprintf("Refund has been completed here is the Transaction Reference: %s", res.Reference),
		"data": fiber.Map{
			"transactionReference": res.Reference,
			"balance":              money(res.Balance),
		},
	})
}

// Deposit credits the caller's account with ?amount=.
func (h *Handler) Deposit(c *fiber.Ctx) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	res, err := h.service.DepositMoney(c.UserContext(), userID, c.Query("amount"))
	if err != nil {
		return fail(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"success": true,
		"message": fmt.Sprintf("Your account has been credited with %s, this is your new balance %s", money(res.Amount), money(res.Balance)),
		"data": fiber.Map{
			"transactionReference": res.Reference,
			"balance":              money(res.Balance),
		},
	})
}

// Withdraw debits the caller's account with ?amount=.
func (h *Handler) Withdraw(c *fiber.Ctx) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	res, err := h.service.WithdrawMoney(c.UserContext(), userID, c.Query("amount"))
	if err != nil {
		return fail(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"success": true,
		"message": fmt.Sprintf("Withdrawal successful. Your new balance is now at %s", money(res.Balance)),
		"data": fiber.Map{
			"transactionReference": res.Reference,
			"balance":              money(res.Balance),
			"amount":               money(res.Amount),
		},
	})
}

// Balance returns the caller's balance.
func (h *Handler) Balance(c *fiber.Ctx) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	bal, err := h.service.FetchAccountBalance(c.UserContext(), userID)
	if err != nil {
		return fail(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"accountNumber": bal.AccountNumber,
			"balance":       money(bal.Amount),
			"timestamp":     bal.AsOf,
		},
	})
}

// History lists the caller's transactions, newest first.
func (h *Handler) History(c *fiber.Ctx) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	history, err := h.service.FetchTransactionHistory(c.UserContext(), userID)
	if err != nil {
		return fail(err)
	}
	out := make([]transactionResponse, 0, len(history))
	for _, rec := range history {
		out = append(out, toTransactionResponse(rec))
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"success": true,
		"data":    fiber.Map{"transactions": out},
	})
}

func toTransactionResponse(rec ledger.Transaction) transactionResponse {
	resp := transactionResponse{
		Reference: rec.Reference,
		Kind:      string(rec.Kind),
		Sender:    rec.Sender,
		Receiver:  rec.Receiver,
		Amount:    money(rec.Amount),
		CreatedAt: rec.CreatedAt,
	}
	if rec.Refunded() {
		ref := rec.RefundRef
		resp.RefundRef = &ref
	}
	return resp
}

func currentUser(c *fiber.Ctx) (int64, error) {
	uid, ok := c.Locals(middleware.UserIDKey).(int64)
	if !ok || uid == 0 {
		return 0, fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	return uid, nil
}

func fail(err error) error {
	f := Describe(err)
	return fiber.NewError(f.Status, f.Message)
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}
