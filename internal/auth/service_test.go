package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/ledgerd/internal/account"
	"github.com/congo-pay/ledgerd/internal/config"
	"github.com/congo-pay/ledgerd/internal/identity"
	"github.com/congo-pay/ledgerd/internal/infra"
	"github.com/congo-pay/ledgerd/internal/ledger"
	"github.com/congo-pay/ledgerd/internal/logging"
)

func newAuth(t *testing.T) *Service {
	t.Helper()
	cfg := config.Config{
		JWTSecret:       "access",
		RefreshSecret:   "refresh",
		AccessTokenTTL:  time.Minute,
		RefreshTokenTTL: time.Hour,
	}
	accounts := account.NewService(ledger.NewEngine(ledger.NewInMemory()), nil, logging.Discard())
	ids := identity.NewService(identity.NewMemoryRepository(), infra.NoopTxRunner{}, accounts, logging.Discard())
	return NewService(cfg, ids)
}

func register(t *testing.T, svc *Service) Session {
	t.Helper()
	session, err := svc.Register(context.Background(), identity.Registration{
		Email:          "ada@example.com",
		Password:       "secret",
		OpeningBalance: decimal.NewFromInt(100),
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return session
}

func TestRegisterIssuesUsableTokens(t *testing.T) {
	svc := newAuth(t)
	session := register(t, svc)

	uid, err := svc.Authorize(context.Background(), session.Tokens.AccessToken)
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if uid != session.User.ID {
		t.Fatalf("expected user %d, got %d", session.User.ID, uid)
	}
	if session.Tokens.ExpiresIn <= 0 || session.Tokens.ExpiresIn > 60 {
		t.Fatalf("unexpected expires_in %d", session.Tokens.ExpiresIn)
	}
}

func TestRefreshTokenIsNotAnAccessToken(t *testing.T) {
	svc := newAuth(t)
	session := register(t, svc)

	if _, err := svc.Authorize(context.Background(), session.Tokens.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected refresh token to be rejected as access token, got %v", err)
	}

	access, exp, err := svc.Refresh(context.Background(), session.Tokens.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if exp != 60 {
		t.Fatalf("expected 60s expiry, got %d", exp)
	}
	if _, err := svc.Authorize(context.Background(), access); err != nil {
		t.Fatalf("refreshed access token rejected: %v", err)
	}
}

func TestLogoutRevokesTokens(t *testing.T) {
	svc := newAuth(t)
	ctx := context.Background()
	session := register(t, svc)

	if err := svc.Logout(ctx, session.User.ID); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := svc.Authorize(ctx, session.Tokens.AccessToken); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("expected revoked access token, got %v", err)
	}
	if _, _, err := svc.Refresh(ctx, session.Tokens.RefreshToken); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("expected revoked refresh token, got %v", err)
	}

	relogin, err := svc.Login(ctx, "ada@example.com", "secret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := svc.Authorize(ctx, relogin.Tokens.AccessToken); err != nil {
		t.Fatalf("fresh token rejected: %v", err)
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	svc := newAuth(t)
	session := register(t, svc)

	svc.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	if _, err := svc.Authorize(context.Background(), session.Tokens.AccessToken); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected expired token, got %v", err)
	}
}

func TestParseAndVerifyRejectsTampering(t *testing.T) {
	now := time.Now()
	token, err := SignHS256(map[string]any{"sub": "1", "exp": now.Add(time.Minute).Unix()}, []byte("k"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := ParseAndVerifyHS256(token, []byte("other"), now); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected signature mismatch, got %v", err)
	}
	if _, err := ParseAndVerifyHS256(token+"x", []byte("k"), now); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token, got %v", err)
	}
	if _, err := ParseAndVerifyHS256("a.b", []byte("k"), now); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected format error, got %v", err)
	}
}
