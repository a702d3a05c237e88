package account

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/ledgerd/internal/ledger"
	"github.com/congo-pay/ledgerd/internal/logging"
	"github.com/congo-pay/ledgerd/internal/notification"
)

type testNotifier struct {
	mu     sync.Mutex
	events []notification.Event
	err    error
}

func (n *testNotifier) Send(_ context.Context, event notification.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return n.err
}

func (n *testNotifier) kinds() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.events))
	for _, e := range n.events {
		out = append(out, e.Kind)
	}
	return out
}

func newService(t *testing.T) (*Service, *testNotifier) {
	t.Helper()
	notifier := &testNotifier{}
	svc := NewService(ledger.NewEngine(ledger.NewInMemory()), notifier, logging.Discard())
	return svc, notifier
}

func open(t *testing.T, svc *Service, userID int64, opening string) ledger.Account {
	t.Helper()
	acct, err := svc.Open(context.Background(), userID, decimal.RequireFromString(opening))
	require.NoError(t, err)
	return acct
}

func TestParseAmount(t *testing.T) {
	for _, raw := range []string{"", "abc", "0", "-1", "1.001", "1e-3", "1e30", "1000000000000000000"} {
		_, err := ParseAmount(raw)
		assert.ErrorIs(t, err, ledger.ErrInvalidAmount, "raw %q", raw)
	}
	amount, err := ParseAmount(" 5000.50 ")
	require.NoError(t, err)
	assert.True(t, amount.Equal(decimal.RequireFromString("5000.5")))
}

func TestRepeatRefundIsConflictAfterBalanceDrained(t *testing.T) {
	svc, notifier := newService(t)
	ctx := context.Background()
	open(t, svc, 1, "100")
	b := open(t, svc, 2, "0")

	transfer, err := svc.TransferMoney(ctx, TransferInput{UserID: 1, To: b.Number, Amount: decimal.NewFromInt(40)})
	require.NoError(t, err)
	_, err = svc.Refund(ctx, 2, transfer.Reference)
	require.NoError(t, err)

	_, err = svc.Refund(ctx, 2, transfer.Reference)
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrDuplicateReference)
	assert.Equal(t, http.StatusConflict, Describe(err).Status)

	bal, err := svc.FetchAccountBalance(ctx, 2)
	require.NoError(t, err)
	assert.True(t, bal.Amount.IsZero())
	assert.Equal(t, []string{"transfer", "refund"}, notifier.kinds())
}

func TestServiceScenario(t *testing.T) {
	svc, notifier := newService(t)
	ctx := context.Background()
	a := open(t, svc, 1, "100000")
	b := open(t, svc, 2, "100000")

	transfer, err := svc.TransferMoney(ctx, TransferInput{UserID: 1, To: b.Number, Amount: decimal.NewFromInt(5000)})
	require.NoError(t, err)
	assert.Equal(t, "95000.00", transfer.Balance.StringFixed(2))

	_, err = svc.TransferMoney(ctx, TransferInput{UserID: 1, To: b.Number, Amount: decimal.NewFromInt(5_000_000)})
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	refund, err := svc.Refund(ctx, 2, transfer.Reference)
	require.NoError(t, err)
	assert.Equal(t, ledger.RefundReference(transfer.Reference), refund.Reference)
	assert.Equal(t, "100000.00", refund.Balance.StringFixed(2))

	dep, err := svc.DepositMoney(ctx, 1, "5000")
	require.NoError(t, err)
	assert.Equal(t, "105000.00", dep.Balance.StringFixed(2))

	wdl, err := svc.WithdrawMoney(ctx, 1, "1000")
	require.NoError(t, err)
	assert.Equal(t, "104000.00", wdl.Balance.StringFixed(2))
	assert.Equal(t, "1000.00", wdl.Amount.StringFixed(2))

	bal, err := svc.FetchAccountBalance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, a.Number, bal.AccountNumber)
	assert.Equal(t, "104000.00", bal.Amount.StringFixed(2))

	history, err := svc.FetchTransactionHistory(ctx, 1)
	require.NoError(t, err)
	require.Len(t, history, 5)
	assert.Equal(t, ledger.KindWithdrawal, history[0].Kind)

	assert.Equal(t, []string{"transfer", "refund", "deposit", "withdrawal"}, notifier.kinds())
}

func TestTransferMoneyRejectsOwnAccount(t *testing.T) {
	svc, notifier := newService(t)
	a := open(t, svc, 1, "10")

	_, err := svc.TransferMoney(context.Background(), TransferInput{UserID: 1, To: a.Number, Amount: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, ledger.ErrSameAccount)
	assert.Empty(t, notifier.kinds())
}

func TestTransferMoneyUnknownDestination(t *testing.T) {
	svc, _ := newService(t)
	open(t, svc, 1, "10")

	_, err := svc.TransferMoney(context.Background(), TransferInput{UserID: 1, To: 42, Amount: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
	assert.Equal(t, http.StatusNotFound, Describe(err).Status)
}

func TestHistoryEmpty(t *testing.T) {
	svc, _ := newService(t)
	open(t, svc, 1, "0")

	_, err := svc.FetchTransactionHistory(context.Background(), 1)
	assert.ErrorIs(t, err, ledger.ErrNoTransactions)
}

func TestUnknownUser(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.FetchAccountBalance(context.Background(), 77)
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
}

func TestPublishFailureDoesNotFailMovement(t *testing.T) {
	svc, notifier := newService(t)
	notifier.err = errors.New("broker down")
	open(t, svc, 1, "0")

	res, err := svc.DepositMoney(context.Background(), 1, "12.34")
	require.NoError(t, err)
	assert.Equal(t, "12.34", res.Balance.StringFixed(2))
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"insufficient", &ledger.Error{Code: ledger.CodeInsufficientFunds, Account: 1, Err: ledger.ErrInsufficientFunds}, http.StatusBadRequest},
		{"invalid amount", ledger.ErrInvalidAmount, http.StatusUnprocessableEntity},
		{"not authorized", ledger.ErrNotAuthorizedOrNotFound, http.StatusNotFound},
		{"duplicate", ledger.ErrDuplicateReference, http.StatusConflict},
		{"conflict", &ledger.Error{Code: ledger.CodeConflict, Err: errors.New("40001")}, http.StatusConflict},
		{"not refundable", ledger.ErrNotRefundable, http.StatusUnprocessableEntity},
		{"same account", ledger.ErrSameAccount, http.StatusBadRequest},
		{"no transactions", ledger.ErrNoTransactions, http.StatusNotFound},
		{"unknown", errors.New("pq: connection refused"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := Describe(tt.err)
			assert.Equal(t, tt.status, f.Status)
			assert.NotEmpty(t, f.Message)
		})
	}

	assert.Equal(t, genericFailure, Describe(errors.New("secret dsn leaked")).Message)
	assert.Equal(t,
		"A/C number 1000000001 does not have sufficient funds",
		Describe(&ledger.Error{Code: ledger.CodeInsufficientFunds, Account: 1000000001, Err: ledger.ErrInsufficientFunds}).Message)
}

type observation struct {
	op string
	ok bool
}

type recordingObserver struct {
	mu  sync.Mutex
	obs []observation
}

func (r *recordingObserver) ObserveOperation(op string, _ time.Time, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.obs = append(r.obs, observation{op: op, ok: err == nil})
}

func TestOperationsAreTimed(t *testing.T) {
	observer := &recordingObserver{}
	svc := NewService(ledger.NewEngine(ledger.NewInMemory()), nil, logging.Discard(), WithObserver(observer))
	ctx := context.Background()
	open(t, svc, 1, "10")
	b := open(t, svc, 2, "1")

	_, err := svc.TransferMoney(ctx, TransferInput{UserID: 1, To: b.Number, Amount: decimal.NewFromInt(50)})
	require.Error(t, err)
	_, err = svc.DepositMoney(ctx, 1, "5")
	require.NoError(t, err)
	_, err = svc.WithdrawMoney(ctx, 1, "abc")
	require.Error(t, err)
	_, err = svc.FetchAccountBalance(ctx, 1)
	require.NoError(t, err)
	_, err = svc.FetchTransactionHistory(ctx, 1)
	require.NoError(t, err)
	_, err = svc.Refund(ctx, 1, "missing")
	require.Error(t, err)

	assert.Equal(t, []observation{
		{"openAccount", true},
		{"openAccount", true},
		{"transferMoney", false},
		{"depositMoney", true},
		{"withdrawMoney", false},
		{"fetchAccountBalance", true},
		{"fetchTransactionHistory", true},
		{"refund", false},
	}, observer.obs)
}
