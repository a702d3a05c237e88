package auth

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/congo-pay/ledgerd/internal/config"
	"github.com/congo-pay/ledgerd/internal/identity"
	"github.com/congo-pay/ledgerd/internal/ledger"
)

// ErrTokenRevoked occurs when a token's version no longer matches the user's.
var ErrTokenRevoked = errors.New("token version invalidated")

// Service issues and validates session tokens.
type Service struct {
	cfg  config.Config
	ids  *identity.Service
	repo identity.Repository
	now  func() time.Time
}

// NewService builds an auth service over the identity service.
func NewService(cfg config.Config, ids *identity.Service) *Service {
	return &Service{cfg: cfg, ids: ids, repo: ids.Repository(), now: time.Now}
}

// TokenPair is an access token with its refresh token.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Session is the result of a successful registration or login.
type Session struct {
	User    identity.User
	Account ledger.Account
	Tokens  TokenPair
}

// Register creates the user and its account, then issues tokens.
func (s *Service) Register(ctx context.Context, reg identity.Registration) (Session, error) {
	user, acct, err := s.ids.Register(ctx, reg)
	if err != nil {
		return Session{}, err
	}
	pair, err := s.issue(user)
	if err != nil {
		return Session{}, err
	}
	return Session{User: user, Account: acct, Tokens: pair}, nil
}

// Login validates credentials and issues tokens.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	user, err := s.ids.Authenticate(ctx, email, password)
	if err != nil {
		return Session{}, err
	}
	pair, err := s.issue(user)
	if err != nil {
		return Session{}, err
	}
	return Session{User: user, Tokens: pair}, nil
}

// Refresh verifies the refresh token and returns a new access token if valid.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, int64, error) {
	userID, ver, err := s.verify(ctx, refreshToken, s.cfg.RefreshSecret)
	if err != nil {
		return "", 0, err
	}
	signed, _, err := s.sign(userID, ver, s.cfg.JWTSecret, s.cfg.AccessTokenTTL)
	if err != nil {
		return "", 0, err
	}
	return signed, int64(s.cfg.AccessTokenTTL.Seconds()), nil
}

// Authorize validates an access token and returns the user id it was issued to.
func (s *Service) Authorize(ctx context.Context, accessToken string) (int64, error) {
	userID, _, err := s.verify(ctx, accessToken, s.cfg.JWTSecret)
	return userID, err
}

// Logout increments the token version so every token issued so far becomes invalid.
func (s *Service) Logout(ctx context.Context, userID int64) error {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	return s.repo.UpdateTokenVersion(ctx, user.ID, user.TokenVersion+1)
}

func (s *Service) issue(user identity.User) (TokenPair, error) {
	access, accessExp, err := s.sign(user.ID, user.TokenVersion, s.cfg.JWTSecret, s.cfg.AccessTokenTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, _, err := s.sign(user.ID, user.TokenVersion, s.cfg.RefreshSecret, s.cfg.RefreshTokenTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh, ExpiresIn: int64(accessExp.Sub(s.now()).Seconds())}, nil
}

func (s *Service) sign(userID int64, version int, secret string, ttl time.Duration) (string, time.Time, error) {
	now := s.now()
	exp := now.Add(ttl)
	claims := map[string]any{
		"sub": strconv.FormatInt(userID, 10),
		"ver": version,
		"iat": now.Unix(),
		"exp": exp.Unix(),
	}
	signed, err := SignHS256(claims, []byte(secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

func (s *Service) verify(ctx context.Context, token, secret string) (int64, int, error) {
	claims, err := ParseAndVerifyHS256(token, []byte(secret), s.now())
	if err != nil {
		return 0, 0, err
	}
	sub, _ := claims["sub"].(string)
	userID, err := strconv.ParseInt(sub, 10, 64)
	if err != nil {
		return 0, 0, ErrInvalidToken
	}
	verFloat, _ := claims["ver"].(float64)
	ver := int(verFloat)

	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			return 0, 0, ErrInvalidToken
		}
		return 0, 0, err
	}
	if user.TokenVersion != ver {
		return 0, 0, ErrTokenRevoked
	}
	return userID, ver, nil
}
