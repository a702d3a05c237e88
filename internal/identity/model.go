package identity

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// User represents a registered account holder.
type User struct {
	ID           int64
	Email        string
	PasswordHash []byte
	TokenVersion int
	CreatedAt    time.Time
	LastLogin    *time.Time
}

// Registration is the input of Register.
type Registration struct {
	Email          string
	Password       string
	OpeningBalance decimal.Decimal
}

var (
	// ErrEmailTaken occurs when an email is already registered.
	ErrEmailTaken = errors.New("this email already exists")
	// ErrInvalidCredentials covers both an unknown email and a wrong password.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrUserNotFound occurs when a user id does not resolve.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidEmail occurs when the email does not parse as a bare address.
	ErrInvalidEmail = errors.New("must be a valid email address")
	// ErrWeakPassword occurs when the password is too short or has unsupported characters.
	ErrWeakPassword = errors.New("password must be at least 6 characters of latin letters, digits, '_', '.' or '-'")
	// ErrInvalidOpeningBalance occurs when the opening deposit is not a positive amount.
	ErrInvalidOpeningBalance = errors.New("you must create an account with a positive deposit amount")
)
