package identity

import (
	"context"
	"errors"
	"log/slog"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/congo-pay/ledgerd/internal/infra"
	"github.com/congo-pay/ledgerd/internal/ledger"
)

const minPasswordLength = 6

var passwordPattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]*$`)

// AccountOpener opens the ledger account of a new user.
type AccountOpener interface {
	Open(ctx context.Context, userID int64, opening decimal.Decimal) (ledger.Account, error)
}

type deleter interface {
	Delete(ctx context.Context, id int64) error
}

// Service manages identity lifecycle.
type Service struct {
	repo     Repository
	runner   infra.TxRunner
	accounts AccountOpener
	logger   *slog.Logger
	now      func() time.Time
}

// NewService creates a new identity service. The user row and the account
// opened through accounts are written as one unit by runner.
func NewService(repo Repository, runner infra.TxRunner, accounts AccountOpener, logger *slog.Logger) *Service {
	if runner == nil {
		runner = infra.NoopTxRunner{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, runner: runner, accounts: accounts, logger: logger, now: time.Now}
}

// Repository exposes the underlying user store.
func (s *Service) Repository() Repository {
	return s.repo
}

// Register creates a user, hashes the password and opens the user's account
// with the opening balance.
func (s *Service) Register(ctx context.Context, reg Registration) (User, ledger.Account, error) {
	email, err := normalizeEmail(reg.Email)
	if err != nil {
		return User{}, ledger.Account{}, err
	}
	if len(reg.Password) < minPasswordLength || !passwordPattern.MatchString(reg.Password) {
		return User{}, ledger.Account{}, ErrWeakPassword
	}
	if !ledger.ValidAmount(reg.OpeningBalance) {
		return User{}, ledger.Account{}, ErrInvalidOpeningBalance
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(reg.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, ledger.Account{}, err
	}

	var (
		user User
		acct ledger.Account
	)
	err = s.runner.Run(ctx, func(ctx context.Context) error {
		created, err := s.repo.Create(ctx, User{
			Email:        email,
			PasswordHash: hash,
			CreatedAt:    s.now().UTC(),
		})
		if err != nil {
			return err
		}
		user = created

		acct, err = s.accounts.Open(ctx, user.ID, reg.OpeningBalance)
		if err != nil {
			s.undoCreate(ctx, user.ID)
			return err
		}
		return nil
	})
	if err != nil {
		return User{}, ledger.Account{}, err
	}

	s.logger.Info("user registered", slog.Int64("user_id", user.ID), slog.Int64("account", acct.Number))
	return user, acct, nil
}

// Authenticate verifies credentials. An unknown email and a wrong password
// both return ErrInvalidCredentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (User, error) {
	user, err := s.repo.FindByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return User{}, ErrInvalidCredentials
		}
		return User{}, err
	}

	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)); err != nil {
		return User{}, ErrInvalidCredentials
	}

	now := s.now().UTC()
	if err := s.repo.TouchLogin(ctx, user.ID, now); err != nil {
		s.logger.Warn("record last login", slog.Int64("user_id", user.ID), slog.Any("error", err))
	} else {
		user.LastLogin = &now
	}

	return user, nil
}

// undoCreate removes a user created outside a database transaction.
func (s *Service) undoCreate(ctx context.Context, id int64) {
	d, ok := s.repo.(deleter)
	if !ok {
		return
	}
	if err := d.Delete(ctx, id); err != nil {
		s.logger.Error("undo user creation", slog.Int64("user_id", id), slog.Any("error", err))
	}
}

func normalizeEmail(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	addr, err := mail.ParseAddress(raw)
	if err != nil || addr.Address != raw {
		return "", ErrInvalidEmail
	}
	return strings.ToLower(addr.Address), nil
}
