package ledger

import (
	"errors"
	"fmt"
)

// Code identifies a failure class of the ledger. Every error returned by the
// Engine maps to exactly one Code through CodeOf.
type Code string

const (
	CodeAccountNotFound         Code = "account_not_found"
	CodeInsufficientFunds       Code = "insufficient_funds"
	CodeNotAuthorizedOrNotFound Code = "not_authorized_or_not_found"
	CodeDuplicateReference      Code = "duplicate_reference"
	CodeInvalidAmount           Code = "invalid_amount"
	CodeNotRefundable           Code = "not_refundable"
	CodeSameAccount             Code = "same_account"
	CodeNoTransactions          Code = "no_transactions"
	CodeConflict                Code = "conflict"
	CodeStore                   Code = "store_error"
)

var (
	// ErrAccountNotFound occurs when an account number or owner does not resolve to a row.
	ErrAccountNotFound = errors.New("account not found")

	// ErrInsufficientFunds occurs when a debit would take the balance below zero.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrNotAuthorizedOrNotFound covers both a missing transaction and a
	// refund requested by someone other than its receiver. Callers cannot
	// tell the two apart.
	ErrNotAuthorizedOrNotFound = errors.New("transaction not found or not refundable by caller")

	// ErrDuplicateReference indicates the transaction reference already exists.
	// A repeated refund lands here.
	ErrDuplicateReference = errors.New("duplicate transaction reference")

	// ErrInvalidAmount occurs for non-numeric, non-positive or over-precise amounts.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrNotRefundable occurs when the referenced record is not a plain transfer.
	ErrNotRefundable = errors.New("transaction kind cannot be refunded")

	// ErrSameAccount occurs when a transfer names the sender as receiver.
	ErrSameAccount = errors.New("cannot transfer to the same account")

	// ErrNoTransactions occurs when an account has no history yet.
	ErrNoTransactions = errors.New("no transactions on this account yet")

	// ErrConflict is a transient serialization failure; the caller may reissue the request.
	ErrConflict = errors.New("concurrent update conflict")

	// ErrStore wraps any other failure of the underlying store.
	ErrStore = errors.New("ledger store failure")
)

var errAccountExists = errors.New("account already exists for user")

var codeSentinels = []struct {
	code Code
	err  error
}{
	{CodeAccountNotFound, ErrAccountNotFound},
	{CodeInsufficientFunds, ErrInsufficientFunds},
	{CodeNotAuthorizedOrNotFound, ErrNotAuthorizedOrNotFound},
	{CodeDuplicateReference, ErrDuplicateReference},
	{CodeInvalidAmount, ErrInvalidAmount},
	{CodeNotRefundable, ErrNotRefundable},
	{CodeSameAccount, ErrSameAccount},
	{CodeNoTransactions, ErrNoTransactions},
	{CodeConflict, ErrConflict},
	{CodeStore, ErrStore},
}

// Error carries a failure Code together with the account or reference it
// concerns. errors.Is matches it against the Code's sentinel.
type Error struct {
	Code      Code
	Account   int64
	Reference string
	Err       error
}

func (e *Error) Error() string {
	var msg string
	switch e.Code {
	case CodeInsufficientFunds:
		msg = fmt.Sprintf("A/C number %d does not have sufficient funds", e.Account)
	case CodeAccountNotFound:
		if e.Account != 0 {
			msg = fmt.Sprintf("account %d does not exist", e.Account)
		} else {
			msg = ErrAccountNotFound.Error()
		}
	case CodeDuplicateReference:
		msg = fmt.Sprintf("transaction reference %s already exists", e.Reference)
	case CodeNotAuthorizedOrNotFound:
		msg = fmt.Sprintf("you can't refund this transaction of reference: %s", e.Reference)
	default:
		msg = string(e.Code)
		if sentinel := sentinelFor(e.Code); sentinel != nil {
			msg = sentinel.Error()
		}
	}
	if e.Err != nil && sentinelFor(e.Code) != e.Err {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrInsufficientFunds) match an *Error of that code
// even when Err holds the underlying cause.
func (e *Error) Is(target error) bool {
	return sentinelFor(e.Code) == target
}

func sentinelFor(code Code) error {
	for _, cs := range codeSentinels {
		if cs.code == code {
			return cs.err
		}
	}
	return nil
}

// CodeOf classifies err. Errors outside the taxonomy are CodeStore.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var lerr *Error
	if errors.As(err, &lerr) {
		return lerr.Code
	}
	for _, cs := range codeSentinels {
		if errors.Is(err, cs.err) {
			return cs.code
		}
	}
	return CodeStore
}

// IsRetryable returns true if reissuing the same request may succeed.
func IsRetryable(err error) bool {
	return CodeOf(err) == CodeConflict
}

// IsClientError returns true if the failure is caused by the request itself.
func IsClientError(err error) bool {
	switch CodeOf(err) {
	case CodeStore, CodeConflict, "":
		return false
	}
	return true
}

func insufficientFunds(account int64) error {
	return &Error{Code: CodeInsufficientFunds, Account: account, Err: ErrInsufficientFunds}
}

func accountNotFound(account int64) error {
	return &Error{Code: CodeAccountNotFound, Account: account, Err: ErrAccountNotFound}
}

func duplicateReference(ref string, cause error) error {
	if cause == nil {
		cause = ErrDuplicateReference
	}
	return &Error{Code: CodeDuplicateReference, Reference: ref, Err: cause}
}

func storeError(op string, cause error) error {
	return &Error{Code: CodeStore, Err: fmt.Errorf("%s: %w", op, cause)}
}
