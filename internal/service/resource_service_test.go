package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/shopfront/catalog-backend/internal/domain"
	"github.com/shopfront/catalog-backend/internal/repository"
	"github.com/shopfront/catalog-backend/internal/security"
)

type serviceFixture struct {
	db         *gorm.DB
	cache      *CacheService
	users      *UserService
	products   *ProductService
	categories *CategoryService
	auth       *AuthService
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.User{}, &domain.Category{}, &domain.Product{}, &domain.SessionToken{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	cache := newMemoryCacheService()
	userRepo := repository.NewUserRepository(db)
	categoryRepo := repository.NewCategoryRepository(db)
	users := NewUserService(userRepo, cache, bcrypt.MinCost, quietLogger())
	jwtMgr := security.NewJWTManager("catalog-test", "catalog-api", strings.Repeat("a", 32), strings.Repeat("r", 32))
	tokens := NewTokenService(jwtMgr, repository.NewSessionTokenRepository(db), testPepper, 72*time.Hour, 168*time.Hour)
	return &serviceFixture{
		db:         db,
		cache:      cache,
		users:      users,
		products:   NewProductService(repository.NewProductRepository(db), categoryRepo, cache),
		categories: NewCategoryService(categoryRepo, cache),
		auth:       NewAuthService(userRepo, users, tokens, quietLogger()),
	}
}

func TestProductListingIsInvalidatedForEveryPrincipal(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)

	p, err := f.products.Create(ctx, "u1", ProductInput{NameVI: "ao", NameEN: "shirt", Price: 10})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// u2 warms its own listing
	page, err := f.products.List(ctx, "u2", repository.ProductListQuery{}, domain.LocaleEN)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Total != 1 || page.Items[0].Name != "shirt" {
		t.Fatalf("unexpected page: %+v", page)
	}

	// u1 renames; u2 must not see the old name
	newName := "tee"
	if _, err := f.products.Update(ctx, "u1", p.ID, ProductPatch{NameEN: &newName}); err != nil {
		t.Fatalf("update: %v", err)
	}
	page, err = f.products.List(ctx, "u2", repository.ProductListQuery{}, domain.LocaleEN)
	if err != nil {
		t.Fatalf("list after update: %v", err)
	}
	if page.Items[0].Name != "tee" {
		t.Fatalf("stale listing served to another principal: %+v", page.Items[0])
	}

	view, err := f.products.Get(ctx, "u2", p.ID, domain.LocaleVI)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if view.Name != "ao" {
		t.Fatalf("expected vi projection, got %q", view.Name)
	}
}

func TestProductDetailIsCachedUntilWrite(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	p, err := f.products.Create(ctx, "u1", ProductInput{NameVI: "mu", NameEN: "hat", Price: 5, Stock: 1})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.products.Get(ctx, "u1", p.ID, domain.LocaleEN); err != nil {
		t.Fatalf("get: %v", err)
	}

	// bypass the service: the cached view must still be served
	if err := f.db.Model(&domain.Product{}).Where("id = ?", p.ID).Update("stock", 99).Error; err != nil {
		t.Fatalf("raw update: %v", err)
	}
	view, err := f.products.Get(ctx, "u1", p.ID, domain.LocaleEN)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if view.Stock != 1 {
		t.Fatalf("expected cached stock 1, got %d", view.Stock)
	}

	res, err := f.products.ToggleLike(ctx, "u1", p.ID)
	if err != nil {
		t.Fatalf("like: %v", err)
	}
	if !res.Liked || res.NumberLike != 1 {
		t.Fatalf("unexpected like result: %+v", res)
	}
	view, err = f.products.Get(ctx, "u1", p.ID, domain.LocaleEN)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if view.Stock != 99 || view.NumberLike != 1 {
		t.Fatalf("expected fresh view after write, got %+v", view)
	}
}

func TestProductValidation(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	if _, err := f.products.Create(ctx, "u1", ProductInput{NameVI: "a", NameEN: "b", Price: 1}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.products.Create(ctx, "u1", ProductInput{NameVI: "a", NameEN: "c", Price: 1}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if _, err := f.products.Create(ctx, "u1", ProductInput{NameVI: "x", NameEN: "y", Price: -1}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	missing := "nope"
	if _, err := f.products.Create(ctx, "u1", ProductInput{NameVI: "x", NameEN: "y", CategoryID: &missing}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input for unknown category, got %v", err)
	}
	if err := f.products.Delete(ctx, "u1", "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCategoryTreeRules(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	root, err := f.categories.Create(ctx, "u1", CategoryInput{NameVI: "goc", NameEN: "root"})
	if err != nil {
		t.Fatalf("create root: %v", err)
	}
	child, err := f.categories.Create(ctx, "u1", CategoryInput{NameVI: "con", NameEN: "child", ParentID: &root.ID})
	if err != nil {
		t.Fatalf("create child: %v", err)
	}

	if _, err := f.categories.Update(ctx, "u1", root.ID, CategoryPatch{ParentID: &root.ID}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected self-parent rejection, got %v", err)
	}
	if _, err := f.categories.Update(ctx, "u1", root.ID, CategoryPatch{ParentID: &child.ID}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected cycle rejection, got %v", err)
	}

	children, err := f.categories.Children(ctx, "u1", root.ID, domain.LocaleEN)
	if err != nil {
		t.Fatalf("children: %v", err)
	}
	if len(children) != 1 || children[0].Name != "child" {
		t.Fatalf("unexpected children: %+v", children)
	}

	// sub-category must hang under the chosen category
	if _, err := f.products.Create(ctx, "u1", ProductInput{NameVI: "p", NameEN: "p", CategoryID: &child.ID, SubCategoryID: &root.ID}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected sub-category rejection, got %v", err)
	}
	p, err := f.products.Create(ctx, "u1", ProductInput{NameVI: "p", NameEN: "p", CategoryID: &root.ID, SubCategoryID: &child.ID})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	view, err := f.products.Get(ctx, "u2", p.ID, domain.LocaleEN)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if view.SubCategory == nil || view.SubCategory.Name != "child" {
		t.Fatalf("expected localized sub-category, got %+v", view.SubCategory)
	}

	renamed := "kid"
	if _, err := f.categories.Update(ctx, "u1", child.ID, CategoryPatch{NameEN: &renamed}); err != nil {
		t.Fatalf("rename: %v", err)
	}
	view, err = f.products.Get(ctx, "u2", p.ID, domain.LocaleEN)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if view.SubCategory.Name != "kid" {
		t.Fatalf("category rename must invalidate product views, got %q", view.SubCategory.Name)
	}
}

func TestUserServiceEnsureAdminIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	seed := AdminSeed{FullName: "root", Email: "Admin@Example.com", Password: "Admin123@"}

	created, err := f.users.EnsureAdmin(ctx, seed)
	if err != nil || !created {
		t.Fatalf("first seed: created=%v err=%v", created, err)
	}
	created, err = f.users.EnsureAdmin(ctx, seed)
	if err != nil || created {
		t.Fatalf("second seed must be a no-op: created=%v err=%v", created, err)
	}

	res, err := f.auth.Login(ctx, LoginInput{Email: "admin@example.com", Password: "Admin123@"}, "test", "127.0.0.1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if !res.User.IsAdmin {
		t.Fatal("seeded account must be admin")
	}
	admin, err := f.users.IsAdmin(ctx, res.User.ID)
	if err != nil || !admin {
		t.Fatalf("IsAdmin: %v %v", admin, err)
	}
}

func TestAuthServiceFlow(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)

	u, err := f.auth.Register(ctx, CreateUserInput{FullName: "Lan", Email: "lan@example.com", Password: "password1", IsAdmin: true})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if u.IsAdmin {
		t.Fatal("self-registration must never grant admin")
	}
	if _, err := f.auth.Register(ctx, CreateUserInput{FullName: "Lan2", Email: "lan@example.com", Password: "password1"}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	if _, err := f.auth.Login(ctx, LoginInput{Email: "lan@example.com", Password: "wrong-pass"}, "", ""); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated, got %v", err)
	}
	res, err := f.auth.Login(ctx, LoginInput{Email: "lan@example.com", Password: "password1"}, "", "")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	refreshed, err := f.auth.Refresh(ctx, res.Tokens.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if refreshed.Tokens.SessionID != res.Tokens.SessionID {
		t.Fatal("refresh must keep the session identity")
	}

	ok, err := f.auth.Logout(ctx, refreshed.Tokens.AccessToken, refreshed.Tokens.RefreshToken)
	if err != nil || !ok {
		t.Fatalf("logout: ok=%v err=%v", ok, err)
	}
	if _, err := f.auth.Refresh(ctx, refreshed.Tokens.RefreshToken); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected refresh after logout to fail, got %v", err)
	}
}

func TestUserServiceUpdateRules(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	a, err := f.users.Create(ctx, "", CreateUserInput{FullName: "A", Email: "a@example.com", Password: "password1"})
	if err != nil {
		t.Fatalf("create a: %v", err)
	}
	b, err := f.users.Create(ctx, "", CreateUserInput{FullName: "B", Email: "b@example.com", Password: "password1"})
	if err != nil {
		t.Fatalf("create b: %v", err)
	}

	name := "A2"
	if _, err := f.users.Update(ctx, b.ID, a.ID, UpdateUserInput{FullName: &name}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	taken := "b@example.com"
	if _, err := f.users.Update(ctx, a.ID, a.ID, UpdateUserInput{Email: &taken}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	updated, err := f.users.Update(ctx, a.ID, a.ID, UpdateUserInput{FullName: &name})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.FullName != "A2" {
		t.Fatalf("unexpected name %q", updated.FullName)
	}
	if err := f.users.Delete(ctx, a.ID, a.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden self-delete, got %v", err)
	}
	if err := f.users.Delete(ctx, a.ID, b.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := f.users.ValidateUser(ctx, b.ID); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("deleted principal must be unauthenticated, got %v", err)
	}
}

func TestProductWriteCommitsButReportsFailedInvalidation(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	cache, closeServer := newRedisCacheServiceForTest(t)
	products := NewProductService(repository.NewProductRepository(f.db), repository.NewCategoryRepository(f.db), cache)

	closeServer()
	p, err := products.Create(ctx, "u1", ProductInput{NameVI: "ao", NameEN: "shirt", Price: 10})
	if !errors.Is(err, ErrCacheUnavailable) {
		t.Fatalf("expected ErrCacheUnavailable, got %v", err)
	}
	if p == nil || p.ID == "" {
		t.Fatalf("expected the committed product alongside the error, got %+v", p)
	}

	var count int64
	if err := f.db.Model(&domain.Product{}).Where("id = ?", p.ID).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected the row to be committed, count=%d", count)
	}
}
