package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopfront/catalog-backend/internal/domain"
	"github.com/shopfront/catalog-backend/internal/observability"
	"github.com/shopfront/catalog-backend/internal/repository"
	"github.com/shopfront/catalog-backend/internal/security"
)

type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResult struct {
	User   *domain.User
	Tokens *TokenPair
}

type AuthService struct {
	users   repository.UserRepository
	userSvc *UserService
	tokens  *TokenService
	logger  *slog.Logger
}

func NewAuthService(users repository.UserRepository, userSvc *UserService, tokens *TokenService, logger *slog.Logger) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{users: users, userSvc: userSvc, tokens: tokens, logger: logger}
}

func (s *AuthService) Register(ctx context.Context, in CreateUserInput) (*domain.User, error) {
	in.IsAdmin = false
	return s.userSvc.Create(ctx, "", in)
}

// Login checks the password before any token is minted.
func (s *AuthService) Login(ctx context.Context, in LoginInput, deviceInfo, originAddress string) (*LoginResult, error) {
	ctx, span := observability.Tracer().Start(ctx, "auth.login")
	defer span.End()

	user, err := s.users.FindByEmail(ctx, normalizeEmail(in.Email))
	if err != nil {
		if errors.Is(err, repository.ErrRecordNotFound) {
			observability.RecordAuthLogin("invalid_credentials")
			return nil, fmt.Errorf("%w: invalid email or password", ErrUnauthenticated)
		}
		observability.RecordAuthLogin("error")
		return nil, err
	}
	if !security.VerifyPassword(in.Password, user.PasswordHash) {
		observability.RecordAuthLogin("invalid_credentials")
		return nil, fmt.Errorf("%w: invalid email or password", ErrUnauthenticated)
	}
	pair, err := s.tokens.Login(ctx, user.ID, deviceInfo, originAddress)
	if err != nil {
		observability.RecordAuthLogin("error")
		span.RecordError(err)
		return nil, err
	}
	observability.RecordAuthLogin("success")
	return &LoginResult{User: user, Tokens: pair}, nil
}

// Refresh rotates the session and rejects it if the owning account is gone.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*LoginResult, error) {
	ctx, span := observability.Tracer().Start(ctx, "auth.refresh")
	defer span.End()

	pair, err := s.tokens.Refresh(ctx, refreshToken)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	user, err := s.userSvc.ValidateUser(ctx, pair.SubjectID)
	if err != nil {
		return nil, err
	}
	return &LoginResult{User: user, Tokens: pair}, nil
}

func (s *AuthService) Logout(ctx context.Context, accessToken, refreshToken string) (bool, error) {
	return s.tokens.Revoke(ctx, accessToken, refreshToken)
}

func (s *AuthService) LogoutAll(ctx context.Context, subjectID string) (int64, error) {
	n, err := s.tokens.RevokeAll(ctx, subjectID)
	if err != nil {
		return 0, err
	}
	s.logger.InfoContext(ctx, "all sessions revoked", "subject_id", subjectID, "sessions", n)
	return n, nil
}

func (s *AuthService) Sessions(ctx context.Context, subjectID, currentAccessToken string) ([]SessionView, error) {
	return s.tokens.ListSessions(ctx, subjectID, currentAccessToken)
}
