package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Engine performs money movements as single atomic units against a Store.
type Engine struct {
	store Store
	refs  ReferenceGenerator
	now   func() time.Time
}

// EngineOption customises an Engine.
type EngineOption func(*Engine)

// WithReferences replaces the reference generator.
func WithReferences(refs ReferenceGenerator) EngineOption {
	return func(e *Engine) { e.refs = refs }
}

// NewEngine builds an Engine over the injected store.
func NewEngine(store Store, opts ...EngineOption) *Engine {
	e := &Engine{store: store, refs: NanoIDReferences{}, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Store exposes the underlying store for read-only queries.
func (e *Engine) Store() Store {
	return e.store
}

type movement struct {
	from   int64
	to     int64
	amount decimal.Decimal
	kind   Kind
	refOf  string
}

// Transfer moves amount from one account to another.
func (e *Engine) Transfer(ctx context.Context, from, to int64, amount decimal.Decimal) (Receipt, error) {
	if from == to {
		return Receipt{}, &Error{Code: CodeSameAccount, Account: from, Err: ErrSameAccount}
	}
	var receipt Receipt
	err := e.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		receipt, err = e.move(ctx, tx, movement{from: from, to: to, amount: amount, kind: KindTransfer})
		return err
	})
	if err != nil {
		return Receipt{}, err
	}
	return receipt, nil
}

// Refund reverses the transfer identified by originalRef. Only the account
// that received the original may initiate it; the lookup and the move share
// one atomic unit.
func (e *Engine) Refund(ctx context.Context, originalRef string, initiator int64) (Receipt, error) {
	if originalRef == "" {
		return Receipt{}, &Error{Code: CodeNotAuthorizedOrNotFound, Err: ErrNotAuthorizedOrNotFound}
	}
	var receipt Receipt
	err := e.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		original, err := tx.FindReceived(ctx, originalRef, initiator)
		if err != nil {
			if errors.Is(err, ErrNotAuthorizedOrNotFound) {
				return &Error{Code: CodeNotAuthorizedOrNotFound, Reference: originalRef, Err: ErrNotAuthorizedOrNotFound}
			}
			return err
		}
		if !original.Kind.Refundable() {
			return &Error{Code: CodeNotRefundable, Reference: originalRef, Err: ErrNotRefundable}
		}
		// A repeat fails as a duplicate even when the refunder can no longer
		// cover the amount. The unique refund reference still guards
		// concurrent units.
		if original.Refunded() {
			return duplicateReference(RefundReference(originalRef), nil)
		}
		receipt, err = e.move(ctx, tx, movement{
			from:   initiator,
			to:     original.Sender,
			amount: original.Amount,
			kind:   KindRefund,
			refOf:  original.Reference,
		})
		return err
	})
	if err != nil {
		return Receipt{}, err
	}
	return receipt, nil
}

// Deposit credits account and records a deposit self-transfer.
func (e *Engine) Deposit(ctx context.Context, account int64, amount decimal.Decimal) (Receipt, error) {
	return e.adjust(ctx, account, amount, KindDeposit)
}

// Withdraw debits account and records a withdrawal self-transfer. The
// balance check and the decrement happen inside the same unit.
func (e *Engine) Withdraw(ctx context.Context, account int64, amount decimal.Decimal) (Receipt, error) {
	return e.adjust(ctx, account, amount, KindWithdrawal)
}

// OpenAccount creates the account for userID, crediting opening as a deposit
// when positive. When ctx already carries a unit of work the account joins it.
func (e *Engine) OpenAccount(ctx context.Context, userID int64, opening decimal.Decimal) (Account, error) {
	if opening.IsNegative() || opening.GreaterThan(MaxBalance) || !opening.Equal(opening.Round(2)) {
		return Account{}, &Error{Code: CodeInvalidAmount, Err: ErrInvalidAmount}
	}
	var acct Account
	err := e.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		acct, err = tx.CreateAccount(ctx, userID)
		if err != nil {
			return err
		}
		if !opening.IsPositive() {
			return nil
		}
		receipt, err := e.post(ctx, tx, acct.Number, opening, KindDeposit)
		if err != nil {
			return err
		}
		acct.Balance = receipt.ReceiverBalance
		return nil
	})
	if err != nil {
		return Account{}, err
	}
	return acct, nil
}

// move is the transfer primitive: debit, verify, credit, record, and for
// refunds stamp the original, all through the caller's unit.
func (e *Engine) move(ctx context.Context, tx Tx, m movement) (Receipt, error) {
	if err := validAmount(m.amount); err != nil {
		return Receipt{}, err
	}

	accounts, err := tx.LockAccounts(ctx, m.from, m.to)
	if err != nil {
		return Receipt{}, err
	}
	receiver, ok := accounts[m.to]
	if !ok {
		return Receipt{}, accountNotFound(m.to)
	}
	sender, ok := accounts[m.from]
	if !ok {
		return Receipt{}, accountNotFound(m.from)
	}

	senderBalance := sender.Balance.Sub(m.amount)
	if senderBalance.IsNegative() {
		return Receipt{}, insufficientFunds(sender.Number)
	}
	receiverBalance := receiver.Balance.Add(m.amount)
	if receiverBalance.GreaterThan(MaxBalance) {
		return Receipt{}, &Error{Code: CodeInvalidAmount, Account: receiver.Number, Err: ErrInvalidAmount}
	}
	if err := tx.SetBalance(ctx, sender.Number, senderBalance); err != nil {
		return Receipt{}, err
	}
	if err := tx.SetBalance(ctx, receiver.Number, receiverBalance); err != nil {
		return Receipt{}, err
	}

	var ref string
	if m.kind == KindRefund {
		ref = RefundReference(m.refOf)
	} else if ref, err = e.refs.New(m.kind); err != nil {
		return Receipt{}, storeError("reference", err)
	}

	rec, err := tx.InsertTransaction(ctx, Transaction{
		Reference: ref,
		Kind:      m.kind,
		Sender:    sender.Number,
		Receiver:  receiver.Number,
		Amount:    m.amount,
		CreatedAt: e.now().UTC(),
	})
	if err != nil {
		return Receipt{}, err
	}

	if m.kind == KindRefund {
		if err := tx.MarkRefunded(ctx, m.refOf, rec.Reference); err != nil {
			return Receipt{}, err
		}
	}

	return Receipt{
		Reference:       rec.Reference,
		Kind:            rec.Kind,
		Amount:          rec.Amount,
		Sender:          sender.Number,
		Receiver:        receiver.Number,
		SenderBalance:   senderBalance,
		ReceiverBalance: receiverBalance,
		CreatedAt:       rec.CreatedAt,
	}, nil
}

func (e *Engine) adjust(ctx context.Context, account int64, amount decimal.Decimal, kind Kind) (Receipt, error) {
	var receipt Receipt
	err := e.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		receipt, err = e.post(ctx, tx, account, amount, kind)
		return err
	})
	if err != nil {
		return Receipt{}, err
	}
	return receipt, nil
}

// post applies a single-account movement: deposits add amount, withdrawals
// subtract it. The record is a self-transfer.
func (e *Engine) post(ctx context.Context, tx Tx, account int64, amount decimal.Decimal, kind Kind) (Receipt, error) {
	if err := validAmount(amount); err != nil {
		return Receipt{}, err
	}

	accounts, err := tx.LockAccounts(ctx, account)
	if err != nil {
		return Receipt{}, err
	}
	acct, ok := accounts[account]
	if !ok {
		return Receipt{}, accountNotFound(account)
	}

	balance := acct.Balance.Add(amount)
	if kind == KindWithdrawal {
		balance = acct.Balance.Sub(amount)
	}
	if balance.IsNegative() {
		return Receipt{}, insufficientFunds(account)
	}
	if balance.GreaterThan(MaxBalance) {
		return Receipt{}, &Error{Code: CodeInvalidAmount, Account: account, Err: ErrInvalidAmount}
	}
	if err := tx.SetBalance(ctx, account, balance); err != nil {
		return Receipt{}, err
	}

	ref, err := e.refs.New(kind)
	if err != nil {
		return Receipt{}, storeError("reference", err)
	}
	rec, err := tx.InsertTransaction(ctx, Transaction{
		Reference: ref,
		Kind:      kind,
		Sender:    account,
		Receiver:  account,
		Amount:    amount,
		CreatedAt: e.now().UTC(),
	})
	if err != nil {
		return Receipt{}, err
	}

	return Receipt{
		Reference:       rec.Reference,
		Kind:            rec.Kind,
		Amount:          rec.Amount,
		Sender:          account,
		Receiver:        account,
		SenderBalance:   balance,
		ReceiverBalance: balance,
		CreatedAt:       rec.CreatedAt,
	}, nil
}

// MaxBalance is the largest value a NUMERIC(20,2) balance column holds.
// Neither an amount nor a resulting balance may exceed it.
var MaxBalance = decimal.RequireFromString("999999999999999999.99")

// ValidAmount reports whether amount is positive, at most MaxBalance and has
// at most two fractional digits.
func ValidAmount(amount decimal.Decimal) bool {
	return validAmount(amount) == nil
}

func validAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() || amount.GreaterThan(MaxBalance) {
		return &Error{Code: CodeInvalidAmount, Err: ErrInvalidAmount}
	}
	if !amount.Equal(amount.Round(2)) {
		return &Error{Code: CodeInvalidAmount, Err: ErrInvalidAmount}
	}
	return nil
}
