package service

import (
	"context"

	"github.com/shopfront/catalog-backend/internal/domain"
	"github.com/shopfront/catalog-backend/internal/repository"
	"github.com/shopfront/catalog-backend/internal/security"
)

type AuthServiceInterface interface {
	Register(ctx context.Context, in CreateUserInput) (*domain.User, error)
	Login(ctx context.Context, in LoginInput, deviceInfo, originAddress string) (*LoginResult, error)
	Refresh(ctx context.Context, refreshToken string) (*LoginResult, error)
	Logout(ctx context.Context, accessToken, refreshToken string) (bool, error)
	LogoutAll(ctx context.Context, subjectID string) (int64, error)
	Sessions(ctx context.Context, subjectID, currentAccessToken string) ([]SessionView, error)
}

// AccessVerifier is what the request gate needs from the token lifecycle.
type AccessVerifier interface {
	VerifyAccess(token string) (*security.Claims, error)
	SessionIsActive(ctx context.Context, accessToken string) (bool, error)
}

type UserServiceInterface interface {
	Create(ctx context.Context, actorID string, in CreateUserInput) (*domain.User, error)
	Get(ctx context.Context, actorID, id string) (*domain.User, error)
	List(ctx context.Context, actorID string, query repository.UserListQuery) (repository.PageResult[domain.User], error)
	Update(ctx context.Context, actorID, id string, in UpdateUserInput) (*domain.User, error)
	Delete(ctx context.Context, actorID, id string) error
	ValidateUser(ctx context.Context, id string) (*domain.User, error)
	IsAdmin(ctx context.Context, id string) (bool, error)
}

type ProductServiceInterface interface {
	Create(ctx context.Context, actorID string, in ProductInput) (*domain.Product, error)
	Update(ctx context.Context, actorID, id string, patch ProductPatch) (*domain.Product, error)
	Delete(ctx context.Context, actorID, id string) error
	Get(ctx context.Context, actorID, id string, locale domain.Locale) (domain.ProductView, error)
	List(ctx context.Context, actorID string, query repository.ProductListQuery, locale domain.Locale) (repository.PageResult[domain.ProductView], error)
	ToggleLike(ctx context.Context, actorID, id string) (LikeResult, error)
}

type CategoryServiceInterface interface {
	Create(ctx context.Context, actorID string, in CategoryInput) (*domain.Category, error)
	Update(ctx context.Context, actorID, id string, patch CategoryPatch) (*domain.Category, error)
	Delete(ctx context.Context, actorID, id string) error
	Get(ctx context.Context, actorID, id string, locale domain.Locale) (domain.CategoryView, error)
	List(ctx context.Context, actorID string, query repository.CategoryListQuery, locale domain.Locale) (repository.PageResult[domain.CategoryView], error)
	Children(ctx context.Context, actorID, id string, locale domain.Locale) ([]domain.CategoryView, error)
}

var (
	_ AuthServiceInterface     = (*AuthService)(nil)
	_ AccessVerifier           = (*TokenService)(nil)
	_ UserServiceInterface     = (*UserService)(nil)
	_ ProductServiceInterface  = (*ProductService)(nil)
	_ CategoryServiceInterface = (*CategoryService)(nil)
)
