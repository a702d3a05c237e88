package account

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransferInput captures the data needed to move funds to another account.
type TransferInput struct {
	UserID int64
	To     int64
	Amount decimal.Decimal
}

// TransferResult describes the outcome of a transfer for the sender.
type TransferResult struct {
	Reference string
	Balance   decimal.Decimal
}

// RefundResult describes the outcome of a refund for its initiator.
type RefundResult struct {
	Reference string
	Balance   decimal.Decimal
}

// MovementResult is returned by deposits and withdrawals.
type MovementResult struct {
	Reference string
	Balance   decimal.Decimal
	Amount    decimal.Decimal
}

// Balance encapsulates available funds for an account.
type Balance struct {
	AccountNumber int64
	Amount        decimal.Decimal
	AsOf          time.Time
}
