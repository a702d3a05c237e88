package identity

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/ledgerd/internal/infra"
	"github.com/congo-pay/ledgerd/internal/ledger"
	"github.com/congo-pay/ledgerd/internal/logging"
)

type engineOpener struct {
	engine *ledger.Engine
}

func (o engineOpener) Open(ctx context.Context, userID int64, opening decimal.Decimal) (ledger.Account, error) {
	return o.engine.OpenAccount(ctx, userID, opening)
}

type failingOpener struct{}

func (failingOpener) Open(context.Context, int64, decimal.Decimal) (ledger.Account, error) {
	return ledger.Account{}, errors.New("store unavailable")
}

func newService(opener AccountOpener) *Service {
	return NewService(NewMemoryRepository(), infra.NoopTxRunner{}, opener, logging.Discard())
}

func TestRegisterAndAuthenticate(t *testing.T) {
	store := ledger.NewInMemory()
	svc := newService(engineOpener{engine: ledger.NewEngine(store)})
	ctx := context.Background()

	user, acct, err := svc.Register(ctx, Registration{Email: "Ada@Example.com", Password: "s3cret.pw", OpeningBalance: decimal.NewFromInt(500)})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.Email != "ada@example.com" {
		t.Fatalf("expected normalised email, got %s", user.Email)
	}
	if acct.Number != ledger.FirstAccountNumber {
		t.Fatalf("expected account %d, got %d", ledger.FirstAccountNumber, acct.Number)
	}
	if !acct.Balance.Equal(decimal.NewFromInt(500)) {
		t.Fatalf("expected opening balance 500, got %s", acct.Balance)
	}

	authed, err := svc.Authenticate(ctx, "ada@example.com", "s3cret.pw")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if authed.ID != user.ID || authed.LastLogin == nil {
		t.Fatalf("unexpected authenticated user %+v", authed)
	}
}

func TestAuthenticateFailuresAreIndistinguishable(t *testing.T) {
	svc := newService(engineOpener{engine: ledger.NewEngine(ledger.NewInMemory())})
	ctx := context.Background()

	if _, _, err := svc.Register(ctx, Registration{Email: "bob@example.com", Password: "hunter2", OpeningBalance: decimal.NewFromInt(1)}); err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, err := svc.Authenticate(ctx, "bob@example.com", "wrong-pass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials for bad password, got %v", err)
	}
	if _, err := svc.Authenticate(ctx, "nobody@example.com", "hunter2"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials for unknown email, got %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc := newService(engineOpener{engine: ledger.NewEngine(ledger.NewInMemory())})
	ctx := context.Background()

	cases := []struct {
		name string
		reg  Registration
		want error
	}{
		{"bad email", Registration{Email: "not-an-email", Password: "secret", OpeningBalance: decimal.NewFromInt(1)}, ErrInvalidEmail},
		{"display name", Registration{Email: "Ada <ada@example.com>", Password: "secret", OpeningBalance: decimal.NewFromInt(1)}, ErrInvalidEmail},
		{"short password", Registration{Email: "a@example.com", Password: "abc", OpeningBalance: decimal.NewFromInt(1)}, ErrWeakPassword},
		{"symbol in password", Registration{Email: "a@example.com", Password: "abc!def", OpeningBalance: decimal.NewFromInt(1)}, ErrWeakPassword},
		{"zero opening", Registration{Email: "a@example.com", Password: "secret", OpeningBalance: decimal.Zero}, ErrInvalidOpeningBalance},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, _, err := svc.Register(ctx, tc.reg); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc := newService(engineOpener{engine: ledger.NewEngine(ledger.NewInMemory())})
	ctx := context.Background()
	reg := Registration{Email: "dup@example.com", Password: "secret", OpeningBalance: decimal.NewFromInt(10)}

	if _, _, err := svc.Register(ctx, reg); err != nil {
		t.Fatalf("first register: %v", err)
	}
	reg.Email = "DUP@example.com"
	if _, _, err := svc.Register(ctx, reg); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected email taken, got %v", err)
	}
}

func TestRegisterUndoesUserWhenAccountFails(t *testing.T) {
	svc := newService(failingOpener{})
	ctx := context.Background()

	if _, _, err := svc.Register(ctx, Registration{Email: "eve@example.com", Password: "secret", OpeningBalance: decimal.NewFromInt(10)}); err == nil {
		t.Fatal("expected registration to fail")
	}
	if _, err := svc.Repository().FindByEmail(ctx, "eve@example.com"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("user left behind after failed registration: %v", err)
	}
}
