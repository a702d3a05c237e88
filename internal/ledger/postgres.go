package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/ledgerd/internal/infra"
)

// PostgreSQL error codes the store classifies.
const (
	pgUniqueViolation      = "23505"
	pgCheckViolation       = "23514"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
	pgQueryCanceled        = "57014"
	pgNumericOutOfRange    = "22003"

	balanceCheckConstraint = "accounts_balance_non_negative"
)

const (
	accountColumns     = `acc_number, user_id, balance::text, created_at, updated_at`
	transactionColumns = `tx_ref, kind, sender_acc, receiver_acc, amount::text, refund_ref, created_at`
)

// PostgresStore persists accounts and the transaction log in PostgreSQL.
type PostgresStore struct {
	db     *pgxpool.Pool
	runner infra.TxRunner
}

// NewPostgresStore constructs a Postgres-backed store. Units run through
// runner, so a unit opened by another package is joined rather than nested.
func NewPostgresStore(db *pgxpool.Pool, runner infra.TxRunner) *PostgresStore {
	if runner == nil {
		runner = infra.NewPgTxRunner(db, 0)
	}
	return &PostgresStore{db: db, runner: runner}
}

// InTx runs fn inside a SERIALIZABLE transaction.
func (s *PostgresStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	err := s.runner.Run(ctx, func(ctx context.Context) error {
		tx, ok := infra.TxFrom(ctx)
		if !ok {
			return storeError("begin unit", errors.New("no transaction in context"))
		}
		return fn(ctx, &pgTx{tx: tx})
	})
	return classify(err)
}

// AccountByNumber loads an account by its public number.
func (s *PostgresStore) AccountByNumber(ctx context.Context, number int64) (Account, error) {
	row := infra.Conn(ctx, s.db).QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE acc_number = $1`, number)
	acct, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, accountNotFound(number)
	}
	if err != nil {
		return Account{}, classify(err)
	}
	return acct, nil
}

// AccountByUser loads the account owned by userID.
func (s *PostgresStore) AccountByUser(ctx context.Context, userID int64) (Account, error) {
	row := infra.Conn(ctx, s.db).QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE user_id = $1`, userID)
	acct, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, &Error{Code: CodeAccountNotFound, Err: ErrAccountNotFound}
	}
	if err != nil {
		return Account{}, classify(err)
	}
	return acct, nil
}

// History returns the transactions touching number, newest first.
func (s *PostgresStore) History(ctx context.Context, number int64) ([]Transaction, error) {
	const query = `SELECT ` + transactionColumns + `
        FROM transactions
        WHERE sender_acc = $1 OR receiver_acc = $1
        ORDER BY created_at DESC, id DESC`
	rows, err := infra.Conn(ctx, s.db).Query(ctx, query, number)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var history []Transaction
	for rows.Next() {
		rec, err := scanTransaction(rows)
		if err != nil {
			return nil, classify(err)
		}
		history = append(history, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return history, nil
}

// Transaction loads a single record by reference.
func (s *PostgresStore) Transaction(ctx context.Context, ref string) (Transaction, error) {
	row := infra.Conn(ctx, s.db).QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE tx_ref = $1`, ref)
	rec, err := scanTransaction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Transaction{}, &Error{Code: CodeNotAuthorizedOrNotFound, Reference: ref, Err: ErrNotAuthorizedOrNotFound}
	}
	if err != nil {
		return Transaction{}, classify(err)
	}
	return rec, nil
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) CreateAccount(ctx context.Context, userID int64) (Account, error) {
	row := t.tx.QueryRow(ctx, `INSERT INTO accounts (user_id, balance) VALUES ($1, 0)
        RETURNING `+accountColumns, userID)
	acct, err := scanAccount(row)
	if err != nil {
		return Account{}, storeError("create account", err)
	}
	return acct, nil
}

// LockAccounts takes row locks in ascending account-number order so two
// units touching the same pair always queue in the same order.
func (t *pgTx) LockAccounts(ctx context.Context, numbers ...int64) (map[int64]Account, error) {
	ordered := make([]int64, 0, len(numbers))
	seen := make(map[int64]struct{}, len(numbers))
	for _, n := range numbers {
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		ordered = append(ordered, n)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i] < ordered[j] })

	const query = `SELECT ` + accountColumns + ` FROM accounts WHERE acc_number = $1 FOR UPDATE`
	found := make(map[int64]Account, len(ordered))
	for _, n := range ordered {
		acct, err := scanAccount(t.tx.QueryRow(ctx, query, n))
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, storeError("lock account", err)
		}
		found[n] = acct
	}
	return found, nil
}

func (t *pgTx) SetBalance(ctx context.Context, number int64, balance decimal.Decimal) error {
	cmd, err := t.tx.Exec(ctx, `UPDATE accounts SET balance = $1::numeric, updated_at = now() WHERE acc_number = $2`,
		balance.StringFixed(2), number)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgCheckViolation && pgErr.ConstraintName == balanceCheckConstraint {
			return insufficientFunds(number)
		}
		return storeError("set balance", err)
	}
	if cmd.RowsAffected() == 0 {
		return accountNotFound(number)
	}
	return nil
}

func (t *pgTx) InsertTransaction(ctx context.Context, rec Transaction) (Transaction, error) {
	if !rec.Kind.Valid() {
		return Transaction{}, storeError("insert transaction", fmt.Errorf("unknown kind %q", rec.Kind))
	}
	const query = `INSERT INTO transactions (tx_ref, kind, sender_acc, receiver_acc, amount, created_at)
        VALUES ($1, $2, $3, $4, $5::numeric, $6)
        RETURNING created_at`
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	if err := t.tx.QueryRow(ctx, query, rec.Reference, string(rec.Kind), rec.Sender, rec.Receiver,
		rec.Amount.StringFixed(2), createdAt).Scan(&createdAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return Transaction{}, duplicateReference(rec.Reference, err)
		}
		return Transaction{}, storeError("insert transaction", err)
	}
	rec.CreatedAt = createdAt.UTC()
	return rec, nil
}

func (t *pgTx) FindReceived(ctx context.Context, ref string, receiver int64) (Transaction, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions
        WHERE tx_ref = $1 AND receiver_acc = $2 FOR UPDATE`, ref, receiver)
	rec, err := scanTransaction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Transaction{}, ErrNotAuthorizedOrNotFound
	}
	if err != nil {
		return Transaction{}, storeError("find transaction", err)
	}
	return rec, nil
}

func (t *pgTx) MarkRefunded(ctx context.Context, originalRef, refundRef string) error {
	cmd, err := t.tx.Exec(ctx, `UPDATE transactions SET refund_ref = $1 WHERE tx_ref = $2 AND refund_ref IS NULL`,
		refundRef, originalRef)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return duplicateReference(refundRef, err)
		}
		return storeError("mark refunded", err)
	}
	if cmd.RowsAffected() == 0 {
		return duplicateReference(refundRef, nil)
	}
	return nil
}

func scanAccount(row pgx.Row) (Account, error) {
	var (
		acct    Account
		balance string
	)
	if err := row.Scan(&acct.Number, &acct.UserID, &balance, &acct.CreatedAt, &acct.UpdatedAt); err != nil {
		return Account{}, err
	}
	amount, err := decimal.NewFromString(balance)
	if err != nil {
		return Account{}, fmt.Errorf("parse balance %q: %w", balance, err)
	}
	acct.Balance = amount
	acct.CreatedAt = acct.CreatedAt.UTC()
	acct.UpdatedAt = acct.UpdatedAt.UTC()
	return acct, nil
}

func scanTransaction(row pgx.Row) (Transaction, error) {
	var (
		rec       Transaction
		kind      string
		amount    string
		refundRef *string
	)
	if err := row.Scan(&rec.Reference, &kind, &rec.Sender, &rec.Receiver, &amount, &refundRef, &rec.CreatedAt); err != nil {
		return Transaction{}, err
	}
	value, err := decimal.NewFromString(amount)
	if err != nil {
		return Transaction{}, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	rec.Kind = Kind(kind)
	if !rec.Kind.Valid() {
		return Transaction{}, fmt.Errorf("unknown transaction kind %q", kind)
	}
	rec.Amount = value
	if refundRef != nil {
		rec.RefundRef = *refundRef
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	return rec, nil
}

// classify turns driver failures into the ledger taxonomy. Transient
// serialization and locking failures become CodeConflict wherever they occur,
// including at commit.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgSerializationFailure, pgDeadlockDetected, pgLockNotAvailable, pgQueryCanceled:
			return &Error{Code: CodeConflict, Err: err}
		case pgNumericOutOfRange:
			return &Error{Code: CodeInvalidAmount, Err: err}
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &Error{Code: CodeConflict, Err: err}
	}
	var lerr *Error
	if errors.As(err, &lerr) {
		return err
	}
	return storeError("postgres", err)
}
