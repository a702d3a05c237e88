package account

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/ledgerd/internal/ledger"
	"github.com/congo-pay/ledgerd/internal/notification"
)

// Service exposes the account operations of a logged-in user on top of the
// ledger engine.
type Service struct {
	engine   *ledger.Engine
	store    ledger.Store
	notifier notification.Notifier
	logger   *slog.Logger
	observer Observer
	now      func() time.Time
}

// Observer records the duration and outcome of each account operation.
type Observer interface {
	ObserveOperation(op string, started time.Time, err error)
}

// Option customises a Service.
type Option func(*Service)

// WithObserver times every operation through o.
func WithObserver(o Observer) Option {
	return func(s *Service) { s.observer = o }
}

// NewService builds an account service. notifier may be nil.
func NewService(engine *ledger.Engine, notifier notification.Notifier, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		engine:   engine,
		store:    engine.Store(),
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ParseAmount parses a client supplied amount.
func ParseAmount(raw string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil || !ledger.ValidAmount(amount) {
		return decimal.Decimal{}, &ledger.Error{Code: ledger.CodeInvalidAmount, Err: ledger.ErrInvalidAmount}
	}
	return amount, nil
}

// Open creates the account of a newly registered user. A positive opening
// balance is recorded as a deposit in the same unit.
func (s *Service) Open(ctx context.Context, userID int64, opening decimal.Decimal) (_ ledger.Account, err error) {
	defer s.observe("openAccount", time.Now(), &err)

	acct, err := s.engine.OpenAccount(ctx, userID, opening)
	if err != nil {
		return ledger.Account{}, s.fail("open", userID, opening, err)
	}
	return acct, nil
}

// TransferMoney moves funds from the caller's account to input.To.
func (s *Service) TransferMoney(ctx context.Context, input TransferInput) (_ TransferResult, err error) {
	defer s.observe("transferMoney", time.Now(), &err)

	from, err := s.store.AccountByUser(ctx, input.UserID)
	if err != nil {
		return TransferResult{}, s.fail("transfer", input.UserID, input.Amount, err)
	}
	if input.To == from.Number {
		return TransferResult{}, &ledger.Error{Code: ledger.CodeSameAccount, Account: from.Number, Err: ledger.ErrSameAccount}
	}
	if _, err := s.store.AccountByNumber(ctx, input.To); err != nil {
		return TransferResult{}, s.fail("transfer", input.UserID, input.Amount, err)
	}

	receipt, err := s.engine.Transfer(ctx, from.Number, input.To, input.Amount)
	if err != nil {
		return TransferResult{}, s.fail("transfer", input.UserID, input.Amount, err)
	}
	s.publish(ctx, input.UserID, receipt)

	return TransferResult{Reference: receipt.Reference, Balance: receipt.SenderBalance}, nil
}

// Refund reverses a transfer the caller received.
func (s *Service) Refund(ctx context.Context, userID int64, txRef string) (_ RefundResult, err error) {
	defer s.observe("refund", time.Now(), &err)

	acct, err := s.store.AccountByUser(ctx, userID)
	if err != nil {
		return RefundResult{}, s.fail("refund", userID, decimal.Zero, err)
	}

	receipt, err := s.engine.Refund(ctx, strings.TrimSpace(txRef), acct.Number)
	if err != nil {
		return RefundResult{}, s.fail("refund", userID, decimal.Zero, err)
	}
	s.logger.Info("refund completed",
		slog.String("original", txRef),
		slog.String("reference", receipt.Reference),
		slog.Int64("user_id", userID),
	)
	s.publish(ctx, userID, receipt)

	return RefundResult{Reference: receipt.Reference, Balance: receipt.SenderBalance}, nil
}

// DepositMoney credits the caller's account.
func (s *Service) DepositMoney(ctx context.Context, userID int64, rawAmount string) (_ MovementResult, err error) {
	defer s.observe("depositMoney", time.Now(), &err)

	amount, err := ParseAmount(rawAmount)
	if err != nil {
		return MovementResult{}, err
	}
	acct, err := s.store.AccountByUser(ctx, userID)
	if err != nil {
		return MovementResult{}, s.fail("deposit", userID, amount, err)
	}

	receipt, err := s.engine.Deposit(ctx, acct.Number, amount)
	if err != nil {
		return MovementResult{}, s.fail("deposit", userID, amount, err)
	}
	s.publish(ctx, userID, receipt)

	return MovementResult{Reference: receipt.Reference, Balance: receipt.ReceiverBalance, Amount: receipt.Amount}, nil
}

// WithdrawMoney debits the caller's account. The balance check and the
// decrement share one unit.
func (s *Service) WithdrawMoney(ctx context.Context, userID int64, rawAmount string) (_ MovementResult, err error) {
	defer s.observe("withdrawMoney", time.Now(), &err)

	amount, err := ParseAmount(rawAmount)
	if err != nil {
		return MovementResult{}, err
	}
	acct, err := s.store.AccountByUser(ctx, userID)
	if err != nil {
		return MovementResult{}, s.fail("withdraw", userID, amount, err)
	}

	receipt, err := s.engine.Withdraw(ctx, acct.Number, amount)
	if err != nil {
		return MovementResult{}, s.fail("withdraw", userID, amount, err)
	}
	s.publish(ctx, userID, receipt)

	return MovementResult{Reference: receipt.Reference, Balance: receipt.SenderBalance, Amount: receipt.Amount}, nil
}

// FetchAccountBalance returns the caller's current balance.
func (s *Service) FetchAccountBalance(ctx context.Context, userID int64) (_ Balance, err error) {
	defer s.observe("fetchAccountBalance", time.Now(), &err)

	acct, err := s.store.AccountByUser(ctx, userID)
	if err != nil {
		return Balance{}, s.fail("balance", userID, decimal.Zero, err)
	}
	return Balance{AccountNumber: acct.Number, Amount: acct.Balance, AsOf: s.now().UTC()}, nil
}

// FetchTransactionHistory lists every record touching the caller's account,
// newest first.
func (s *Service) FetchTransactionHistory(ctx context.Context, userID int64) (_ []ledger.Transaction, err error) {
	defer s.observe("fetchTransactionHistory", time.Now(), &err)

	acct, err := s.store.AccountByUser(ctx, userID)
	if err != nil {
		return nil, s.fail("history", userID, decimal.Zero, err)
	}
	history, err := s.store.History(ctx, acct.Number)
	if err != nil {
		return nil, s.fail("history", userID, decimal.Zero, err)
	}
	if len(history) == 0 {
		return nil, &ledger.Error{Code: ledger.CodeNoTransactions, Account: acct.Number, Err: ledger.ErrNoTransactions}
	}
	return history, nil
}

// fail logs err with the operation context. Store failures are logged at
// error level since the client only ever sees a generic message for them.
func (s *Service) fail(op string, userID int64, amount decimal.Decimal, err error) error {
	attrs := []any{
		slog.String("op", op),
		slog.Int64("user_id", userID),
		slog.String("code", string(ledger.CodeOf(err))),
	}
	if !amount.IsZero() {
		attrs = append(attrs, slog.String("amount", amount.StringFixed(2)))
	}
	if ledger.IsClientError(err) || ledger.IsRetryable(err) {
		s.logger.Info("account operation rejected", append(attrs, slog.String("reason", err.Error()))...)
		return err
	}
	s.logger.Error("account operation failed", append(attrs, slog.Any("error", err))...)
	return err
}

func (s *Service) observe(op string, started time.Time, errp *error) {
	if s.observer != nil {
		s.observer.ObserveOperation(op, started, *errp)
	}
}

func (s *Service) publish(ctx context.Context, userID int64, receipt ledger.Receipt) {
	if s.notifier == nil {
		return
	}
	event := notification.Event{
		Kind:       string(receipt.Kind),
		Reference:  receipt.Reference,
		Amount:     receipt.Amount.StringFixed(2),
		Sender:     receipt.Sender,
		Receiver:   receipt.Receiver,
		UserID:     userID,
		OccurredAt: receipt.CreatedAt,
	}
	if err := s.notifier.Send(ctx, event); err != nil {
		s.logger.Warn("publish transaction event", slog.String("reference", receipt.Reference), slog.Any("error", err))
	}
}
