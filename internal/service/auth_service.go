package service

import (
	"context"
	"errors"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-tracker/internal/auth"
	"github.com/spec-kit/ticket-tracker/internal/config"
	"github.com/spec-kit/ticket-tracker/internal/domain"
	"github.com/spec-kit/ticket-tracker/internal/repository"
	apperrors "github.com/spec-kit/ticket-tracker/pkg/util/errorutil"
)

const (
	minPasswordLength = 6
	maxUsernameLength = 150
)

var usernamePattern = regexp.MustCompile(`^[\w.@+-]+$`)

// AuthService coordinates registration and login flows.
type AuthService struct {
	users      repository.UserRepository
	tokenMgr   *auth.TokenManager
	revoked    auth.RevocationStore
	bcryptCost int
	logger     *zap.Logger
}

// AuthDependencies encapsulates collaborators for auth service.
type AuthDependencies struct {
	UserRepo   repository.UserRepository
	Revocation auth.RevocationStore
	Logger     *zap.Logger
}

// Session is an issued bearer token.
type Session struct {
	User      *domain.User
	Token     string
	ExpiresAt time.Time
}

// NewAuthService builds the service.
func NewAuthService(cfg config.Config, deps AuthDependencies) *AuthService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		users:      deps.UserRepo,
		tokenMgr:   auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes),
		revoked:    deps.Revocation,
		bcryptCost: cfg.Auth.BcryptCost,
		logger:     logger,
	}
}

// Register creates a non-staff account and signs it in.
func (s *AuthService) Register(ctx context.Context, username, email, password string) (*Session, error) {
	user, err := s.createUser(ctx, username, email, password, false)
	if err != nil {
		return nil, err
	}
	return s.issue(user)
}

// CreateStaff creates a staff account.
func (s *AuthService) CreateStaff(ctx context.Context, username, email, password string) (*domain.User, error) {
	return s.createUser(ctx, username, email, password, true)
}

// Login authenticates by username and password.
func (s *AuthService) Login(ctx context.Context, username, password string) (*Session, error) {
	user, err := s.users.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewUnauthorized("Invalid credentials")
		}
		return nil, err
	}
	if !auth.CheckPassword(user.PasswordHash, password) {
		return nil, apperrors.NewUnauthorized("Invalid credentials")
	}
	return s.issue(user)
}

// Logout revokes the presented token until it expires. Without a revocation
// store it is a no-op.
func (s *AuthService) Logout(ctx context.Context, claims *auth.Claims) error {
	if s.revoked == nil || claims == nil || claims.ExpiresAt == nil {
		return nil
	}
	if err := s.revoked.Revoke(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		s.logger.Warn("token revocation failed", zap.String("jti", claims.ID), zap.Error(err))
		return err
	}
	return nil
}

// Me loads the account behind the actor.
func (s *AuthService) Me(ctx context.Context, actor domain.Actor) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, actor.ID)
	if err != nil {
		return nil, notFound("user", err)
	}
	return user, nil
}

// ListStaff returns every staff account.
func (s *AuthService) ListStaff(ctx context.Context) ([]domain.User, error) {
	return s.users.ListStaff(ctx)
}

// TokenManager exposes the underlying token manager for middleware usage.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}

func (s *AuthService) createUser(ctx context.Context, username, email, password string, staff bool) (*domain.User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	fieldErrors := map[string]any{}

	switch {
	case username == "":
		fieldErrors["username"] = "This field is required."
	case len(username) > maxUsernameLength || !usernamePattern.MatchString(username):
		fieldErrors["username"] = "Enter a valid username."
	}
	if email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			fieldErrors["email"] = "Enter a valid email address."
		}
	}
	if len(password) < minPasswordLength {
		fieldErrors["password"] = "Ensure this field has at least 6 characters."
	}
	if _, ok := fieldErrors["username"]; !ok {
		if _, err := s.users.GetByUsername(ctx, username); err == nil {
			fieldErrors["username"] = "A user with that username already exists."
		} else if !errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
	}
	if len(fieldErrors) > 0 {
		return nil, apperrors.NewValidationError("invalid account", fieldErrors)
	}

	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return nil, err
	}
	user := &domain.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		IsStaff:      staff,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *AuthService) issue(user *domain.User) (*Session, error) {
	token, exp, err := s.tokenMgr.GenerateToken(user)
	if err != nil {
		return nil, err
	}
	return &Session{User: user, Token: token, ExpiresAt: exp}, nil
}
