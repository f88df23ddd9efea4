package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/rs/zerolog"

	"github.com/noah-isme/cargo-backoffice/internal/common"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 30 * 24 * time.Hour

)

// Service issues and validates credentials.
type Service struct {
	repo       Repository
	tokens     tokenCodec
	refreshTTL time.Duration
	now        func() time.Time
	logger     zerolog.Logger
}

// Config configures the auth service.
type Config struct {
	Repo            Repository
	Secret          string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	Issuer          string
	Audience        string
	ClockSkew       time.Duration
	Logger          zerolog.Logger
}

// NewService constructs a Service with defaults for unset durations and names.
func NewService(cfg Config) (*Service, error) {
	if cfg.Repo == nil {
		return nil, errors.New("auth: repository is required")
	}
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, errors.New("auth: secret is required")
	}
	accessTTL := cfg.AccessTokenTTL
	if accessTTL <= 0 {
		accessTTL = defaultAccessTTL
	}
	refreshTTL := cfg.RefreshTokenTTL
	if refreshTTL <= 0 {
		refreshTTL = defaultRefreshTTL
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		issuer = "cargo-backoffice"
	}
	audience := strings.TrimSpace(cfg.Audience)
	if audience == "" {
		audience = "cargo-admin"
	}
	clockSkew := cfg.ClockSkew
	if clockSkew < 0 {
		clockSkew = 0
	}

	return &Service{
		repo: cfg.Repo,
		tokens: tokenCodec{
			secret:   []byte(secret),
			issuer:   issuer,
			audience: audience,
			skew:     clockSkew,
			ttl:      accessTTL,
		},
		refreshTTL: refreshTTL,
		now:        time.Now,
		logger:     cfg.Logger,
	}, nil
}

// WithNow allows tests to override the time provider.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func invalidCredentials() *common.AppError {
	return common.NewAppError("INVALID_CREDENTIALS", "invalid email or password", http.StatusUnauthorized, nil)
}

func invalidRefresh() *common.AppError {
	return common.NewAppError("UNAUTHORIZED", "invalid refresh token", http.StatusUnauthorized, nil)
}

// CreateUser hashes the password with argon2id and stores the account.
func (s *Service) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	in.Email = normalizeEmail(in.Email)
	in.Name = strings.TrimSpace(in.Name)
	if err := common.ValidateStruct(in); err != nil {
		return User{}, err
	}
	hash, err := argon2id.CreateHash(in.Password, argon2id.DefaultParams)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}
	u, err := s.repo.CreateUser(ctx, in, hash)
	if errors.Is(err, ErrDuplicateUser) {
		return User{}, common.NewAppError("EMAIL_ALREADY_USED", "email is already registered", http.StatusConflict, err)
	}
	return u, err
}

// Login verifies credentials and issues a token pair.
func (s *Service) Login(ctx context.Context, email, password string) (Tokens, error) {
	normalized := normalizeEmail(email)
	if normalized == "" || password == "" {
		return Tokens{}, invalidCredentials()
	}
	rec, err := s.repo.UserByEmail(ctx, normalized)
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			s.logger.Error().Err(err).Msg("login_lookup_failed")
		}
		return Tokens{}, invalidCredentials()
	}
	ok, err := argon2id.ComparePasswordAndHash(password, rec.PasswordHash)
	if err != nil || !ok {
		return Tokens{}, invalidCredentials()
	}

	tokens, err := s.issue(ctx, rec.User)
	if err != nil {
		return Tokens{}, err
	}
	user := rec.User
	tokens.User = &user
	s.logger.Info().Str("user_id", user.ID).Str("role", user.Role).Msg("login")
	return tokens, nil
}

// Refresh rotates a refresh token. Presenting a revoked token revokes every
// session of its owner.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Tokens, error) {
	token := strings.TrimSpace(refreshToken)
	if token == "" {
		return Tokens{}, invalidRefresh()
	}
	stored, err := s.repo.RefreshToken(ctx, common.Digest(token))
	if err != nil {
		return Tokens{}, invalidRefresh()
	}
	if stored.RevokedAt != nil {
		s.revokeAll(ctx, stored.UserID)
		return Tokens{}, invalidRefresh()
	}
	if !s.now().Before(stored.ExpiresAt) {
		return Tokens{}, invalidRefresh()
	}
	user, err := s.repo.UserByID(ctx, stored.UserID)
	if err != nil {
		return Tokens{}, invalidRefresh()
	}

	access, accessExpiry, err := s.tokens.sign(user, s.now())
	if err != nil {
		return Tokens{}, fmt.Errorf("sign access token: %w", err)
	}
	next, err := generateToken(48)
	if err != nil {
		return Tokens{}, fmt.Errorf("generate refresh token: %w", err)
	}
	refreshExpiry := s.now().Add(s.refreshTTL)
	if err := s.repo.RotateRefreshToken(ctx, stored.ID, user.ID, common.Digest(next), refreshExpiry); err != nil {
		if errors.Is(err, ErrTokenReused) {
			s.revokeAll(ctx, user.ID)
			return Tokens{}, invalidRefresh()
		}
		return Tokens{}, fmt.Errorf("rotate refresh token: %w", err)
	}
	return Tokens{
		AccessToken:   access,
		AccessExpiry:  accessExpiry,
		RefreshToken:  next,
		RefreshExpiry: refreshExpiry,
	}, nil
}

func (s *Service) revokeAll(ctx context.Context, userID string) {
	if err := s.repo.RevokeUserTokens(ctx, userID); err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("revoke_sessions_failed")
		return
	}
	s.logger.Warn().Str("user_id", userID).Msg("refresh_token_reuse")
}

// Logout revokes the refresh token.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	token := strings.TrimSpace(refreshToken)
	if token == "" {
		return nil
	}
	return s.repo.RevokeRefreshToken(ctx, common.Digest(token))
}

// Me fetches the current authenticated user.
func (s *Service) Me(ctx context.Context, userID string) (User, error) {
	if strings.TrimSpace(userID) == "" {
		return User{}, common.NewAppError("UNAUTHORIZED", "unauthorized", http.StatusUnauthorized, nil)
	}
	u, err := s.repo.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return User{}, common.NewAppError("UNAUTHORIZED", "unauthorized", http.StatusUnauthorized, err)
		}
		return User{}, err
	}
	return u, nil
}

// ParseAccessToken validates an access token and returns its principal.
func (s *Service) ParseAccessToken(token string) (common.Principal, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return common.Principal{}, common.NewAppError("UNAUTHORIZED", "missing token", http.StatusUnauthorized, nil)
	}
	p, err := s.tokens.verify(trimmed, s.now())
	if err != nil {
		return common.Principal{}, common.NewAppError("UNAUTHORIZED", "invalid token", http.StatusUnauthorized, err)
	}
	return p, nil
}

func (s *Service) issue(ctx context.Context, u User) (Tokens, error) {
	access, accessExpiry, err := s.tokens.sign(u, s.now())
	if err != nil {
		return Tokens{}, fmt.Errorf("sign access token: %w", err)
	}
	refresh, err := generateToken(48)
	if err != nil {
		return Tokens{}, fmt.Errorf("generate refresh token: %w", err)
	}
	refreshExpiry := s.now().Add(s.refreshTTL)
	if err := s.repo.CreateRefreshToken(ctx, u.ID, common.Digest(refresh), refreshExpiry); err != nil {
		return Tokens{}, fmt.Errorf("store refresh token: %w", err)
	}
	return Tokens{
		AccessToken:   access,
		AccessExpiry:  accessExpiry,
		RefreshToken:  refresh,
		RefreshExpiry: refreshExpiry,
	}, nil
}

func generateToken(length int) (string, error) {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
