package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/shopfront/catalog-backend/internal/domain"
	"github.com/shopfront/catalog-backend/internal/repository"
	"github.com/shopfront/catalog-backend/internal/security"
)

const (
	usersResource   = "users"
	listingCacheTTL = 180 * time.Second
	minPasswordLen  = 8
)

type CreateUserInput struct {
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	IsAdmin  bool   `json:"is_admin"`
}

type UpdateUserInput struct {
	FullName *string `json:"full_name"`
	Email    *string `json:"email"`
	Password *string `json:"password"`
}

// AdminSeed is the root account created at startup when no account owns its email.
type AdminSeed struct {
	FullName string
	Email    string
	Password string
}

type UserService struct {
	repo       repository.UserRepository
	cache      *CacheService
	bcryptCost int
	logger     *slog.Logger
}

func NewUserService(repo repository.UserRepository, cache *CacheService, bcryptCost int, logger *slog.Logger) *UserService {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserService{repo: repo, cache: cache, bcryptCost: bcryptCost, logger: logger}
}

func (s *UserService) Create(ctx context.Context, actorID string, in CreateUserInput) (*domain.User, error) {
	in.FullName = strings.TrimSpace(in.FullName)
	in.Email = normalizeEmail(in.Email)
	if err := validateUserFields(in.FullName, in.Email, in.Password); err != nil {
		return nil, err
	}
	if err := s.ensureUnique(ctx, "", in.FullName, in.Email); err != nil {
		return nil, err
	}
	hash, err := security.HashPassword(in.Password, s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user := &domain.User{
		FullName:     in.FullName,
		Email:        in.Email,
		PasswordHash: hash,
		IsAdmin:      in.IsAdmin,
		CreatedByID:  optionalID(actorID),
		UpdatedByID:  optionalID(actorID),
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, s.cache.InvalidateListings(ctx, usersResource, actorID)
}

func (s *UserService) Get(ctx context.Context, actorID, id string) (*domain.User, error) {
	key := DetailCacheKey(usersResource, id, "")
	user, err := Remember(ctx, s.cache, key, listingCacheTTL, s.patterns(actorID), func(ctx context.Context) (domain.User, error) {
		u, err := s.repo.FindByID(ctx, id)
		if err != nil {
			return domain.User{}, mapRepoError(err, "user")
		}
		return *u, nil
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *UserService) List(ctx context.Context, actorID string, query repository.UserListQuery) (repository.PageResult[domain.User], error) {
	query.PageRequest = repository.NormalizePage(query.PageRequest)
	key := ListCacheKey{
		Resource:  usersResource,
		Principal: actorID,
		Page:      query.Page,
		Limit:     query.PageSize,
		Query:     query.Search,
	}.String()
	return Remember(ctx, s.cache, key, listingCacheTTL, s.patterns(actorID), func(ctx context.Context) (repository.PageResult[domain.User], error) {
		return s.repo.ListPaged(ctx, query)
	})
}

// Update changes profile fields. Only the account owner or an admin may update it.
func (s *UserService) Update(ctx context.Context, actorID, id string, in UpdateUserInput) (*domain.User, error) {
	if actorID != id {
		admin, err := s.IsAdmin(ctx, actorID)
		if err != nil {
			return nil, err
		}
		if !admin {
			return nil, fmt.Errorf("%w: cannot update another user", ErrForbidden)
		}
	}
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err, "user")
	}

	fullName, email := user.FullName, user.Email
	if in.FullName != nil {
		fullName = strings.TrimSpace(*in.FullName)
	}
	if in.Email != nil {
		email = normalizeEmail(*in.Email)
	}
	password := ""
	if in.Password != nil {
		password = *in.Password
	}
	if err := validateUserFields(fullName, email, password); err != nil && (in.Password != nil || !errors.Is(err, errPasswordTooShort)) {
		return nil, err
	}
	if err := s.ensureUnique(ctx, user.ID, fullName, email); err != nil {
		return nil, err
	}

	user.FullName = fullName
	user.Email = email
	if in.Password != nil {
		hash, err := security.HashPassword(password, s.bcryptCost)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		user.PasswordHash = hash
	}
	user.UpdatedByID = optionalID(actorID)
	if err := s.repo.Update(ctx, user); err != nil {
		return nil, err
	}
	return user, s.cache.InvalidateListings(ctx, usersResource, actorID)
}

func (s *UserService) Delete(ctx context.Context, actorID, id string) error {
	if actorID == id {
		return fmt.Errorf("%w: cannot delete your own account", ErrForbidden)
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return mapRepoError(err, "user")
	}
	return s.cache.InvalidateListings(ctx, usersResource, actorID)
}

// ValidateUser confirms that an authenticated principal still exists.
func (s *UserService) ValidateUser(ctx context.Context, id string) (*domain.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: account no longer exists", ErrUnauthenticated)
		}
		return nil, err
	}
	return user, nil
}

func (s *UserService) IsAdmin(ctx context.Context, id string) (bool, error) {
	user, err := s.ValidateUser(ctx, id)
	if err != nil {
		return false, err
	}
	return user.IsAdmin, nil
}

// EnsureAdmin creates the root account unless one already owns seed.Email.
// Safe to call on every start.
func (s *UserService) EnsureAdmin(ctx context.Context, seed AdminSeed) (bool, error) {
	email := normalizeEmail(seed.Email)
	if email == "" || seed.Password == "" {
		s.logger.Info("admin seed skipped: email or password not configured")
		return false, nil
	}
	if _, err := s.repo.FindByEmail(ctx, email); err == nil {
		return false, nil
	} else if !errors.Is(err, repository.ErrRecordNotFound) {
		return false, err
	}
	if _, err := s.Create(ctx, "", CreateUserInput{
		FullName: seed.FullName,
		Email:    email,
		Password: seed.Password,
		IsAdmin:  true,
	}); err != nil {
		if !errors.Is(err, ErrCacheUnavailable) {
			return false, fmt.Errorf("seed admin: %w", err)
		}
		s.logger.Warn("admin account created but user listings were not invalidated", "error", err)
	}
	s.logger.Info("admin account created", "email", email)
	return true, nil
}

func (s *UserService) ensureUnique(ctx context.Context, selfID, fullName, email string) error {
	if u, err := s.repo.FindByEmail(ctx, email); err == nil && u.ID != selfID {
		return fmt.Errorf("%w: email already in use", ErrConflict)
	} else if err != nil && !errors.Is(err, repository.ErrRecordNotFound) {
		return err
	}
	if u, err := s.repo.FindByFullName(ctx, fullName); err == nil && u.ID != selfID {
		return fmt.Errorf("%w: full name already in use", ErrConflict)
	} else if err != nil && !errors.Is(err, repository.ErrRecordNotFound) {
		return err
	}
	return nil
}

func (s *UserService) patterns(actorID string) []string {
	return []string{PrincipalPattern(usersResource, actorID), usersResource}
}

var errPasswordTooShort = fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLen)

func validateUserFields(fullName, email, password string) error {
	if fullName == "" || len(fullName) > 50 {
		return invalidInput("full_name must be 1-50 characters")
	}
	if email == "" || len(email) > 50 {
		return invalidInput("email must be 1-50 characters")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return invalidInput("email is not valid")
	}
	if len(password) < minPasswordLen {
		return errPasswordTooShort
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func optionalID(id string) *string {
	if id == "" {
		return nil
	}
	return &id
}

func mapRepoError(err error, entity string) error {
	if errors.Is(err, repository.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, entity)
	}
	return err
}
