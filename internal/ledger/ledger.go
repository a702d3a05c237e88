package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Kind tags a transaction record with the movement that produced it.
type Kind string

const (
	// KindTransfer moves funds between two distinct accounts.
	KindTransfer Kind = "transfer"
	// KindRefund reverses a prior transfer, initiated by its receiver.
	KindRefund Kind = "refund"
	// KindDeposit credits an account from outside the ledger. Recorded as a self-transfer.
	KindDeposit Kind = "deposit"
	// KindWithdrawal debits an account to outside the ledger. Recorded as a self-transfer.
	KindWithdrawal Kind = "withdrawal"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindTransfer, KindRefund, KindDeposit, KindWithdrawal:
		return true
	}
	return false
}

// Refundable reports whether a record of this kind may be the subject of a refund.
// Only plain transfers are; refund chains stop at depth one.
func (k Kind) Refundable() bool {
	return k == KindTransfer
}

// Account is the single money-holding row owned by a user.
type Account struct {
	Number    int64
	UserID    int64
	Balance   decimal.Decimal
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Transaction is an append-only ledger entry. RefundRef is empty until a
// refund against this record commits.
type Transaction struct {
	Reference string
	Kind      Kind
	Sender    int64
	Receiver  int64
	Amount    decimal.Decimal
	RefundRef string
	CreatedAt time.Time
}

// Refunded reports whether a refund has already been recorded against t.
func (t Transaction) Refunded() bool {
	return t.RefundRef != ""
}

// Receipt captures the outcome of a committed money movement.
type Receipt struct {
	Reference       string
	Kind            Kind
	Amount          decimal.Decimal
	Sender          int64
	Receiver        int64
	SenderBalance   decimal.Decimal
	ReceiverBalance decimal.Decimal
	CreatedAt       time.Time
}

// Store is the transactional resource manager the Engine runs against.
// Implementations: PostgresStore, and the in-memory store from NewInMemory.
type Store interface {
	// InTx runs fn as one atomic unit. A non-nil error from fn rolls back
	// every write made through tx.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	AccountByNumber(ctx context.Context, number int64) (Account, error)
	AccountByUser(ctx context.Context, userID int64) (Account, error)
	// History returns every record where number is sender or receiver, newest first.
	History(ctx context.Context, number int64) ([]Transaction, error)
	Transaction(ctx context.Context, ref string) (Transaction, error)
}

// Tx is the set of reads and writes available inside one atomic unit.
type Tx interface {
	CreateAccount(ctx context.Context, userID int64) (Account, error)
	// LockAccounts returns the requested accounts keyed by number, locked
	// against concurrent writers until the unit ends. Missing numbers are
	// absent from the map.
	LockAccounts(ctx context.Context, numbers ...int64) (map[int64]Account, error)
	SetBalance(ctx context.Context, number int64, balance decimal.Decimal) error
	// InsertTransaction fails with ErrDuplicateReference when rec.Reference exists.
	InsertTransaction(ctx context.Context, rec Transaction) (Transaction, error)
	// FindReceived returns the record with ref whose receiver is receiver.
	FindReceived(ctx context.Context, ref string, receiver int64) (Transaction, error)
	MarkRefunded(ctx context.Context, originalRef, refundRef string) error
}
