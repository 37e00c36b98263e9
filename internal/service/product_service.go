package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopfront/catalog-backend/internal/domain"
	"github.com/shopfront/catalog-backend/internal/repository"
)

const productsResource = "products"

type ProductInput struct {
	NameVI        string  `json:"name_vi"`
	NameEN        string  `json:"name_en"`
	Price         float64 `json:"price"`
	Stock         int     `json:"stock"`
	CategoryID    *string `json:"category_id"`
	SubCategoryID *string `json:"sub_category_id"`
}

type ProductPatch struct {
	NameVI        *string  `json:"name_vi"`
	NameEN        *string  `json:"name_en"`
	Price         *float64 `json:"price"`
	Stock         *int     `json:"stock"`
	CategoryID    *string  `json:"category_id"`
	SubCategoryID *string  `json:"sub_category_id"`
}

type LikeResult struct {
	Liked      bool `json:"liked"`
	NumberLike int  `json:"number_like"`
}

type ProductService struct {
	repo       repository.ProductRepository
	categories repository.CategoryRepository
	cache      *CacheService
}

func NewProductService(repo repository.ProductRepository, categories repository.CategoryRepository, cache *CacheService) *ProductService {
	return &ProductService{repo: repo, categories: categories, cache: cache}
}

func (s *ProductService) Create(ctx context.Context, actorID string, in ProductInput) (*domain.Product, error) {
	p := &domain.Product{
		NameVI:        strings.TrimSpace(in.NameVI),
		NameEN:        strings.TrimSpace(in.NameEN),
		Price:         in.Price,
		Stock:         in.Stock,
		CategoryID:    blankToNil(in.CategoryID),
		SubCategoryID: blankToNil(in.SubCategoryID),
		CreatedByID:   optionalID(actorID),
		UpdatedByID:   optionalID(actorID),
	}
	if err := s.validate(ctx, p); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, s.cache.InvalidateListings(ctx, productsResource, actorID)
}

func (s *ProductService) Update(ctx context.Context, actorID, id string, patch ProductPatch) (*domain.Product, error) {
	p, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err, "product")
	}
	if patch.NameVI != nil {
		p.NameVI = strings.TrimSpace(*patch.NameVI)
	}
	if patch.NameEN != nil {
		p.NameEN = strings.TrimSpace(*patch.NameEN)
	}
	if patch.Price != nil {
		p.Price = *patch.Price
	}
	if patch.Stock != nil {
		p.Stock = *patch.Stock
	}
	if patch.CategoryID != nil {
		p.CategoryID = blankToNil(patch.CategoryID)
		p.Category = nil
	}
	if patch.SubCategoryID != nil {
		p.SubCategoryID = blankToNil(patch.SubCategoryID)
		p.SubCategory = nil
	}
	p.UpdatedByID = optionalID(actorID)
	if err := s.validate(ctx, p); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, s.cache.InvalidateListings(ctx, productsResource, actorID)
}

func (s *ProductService) Delete(ctx context.Context, actorID, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return mapRepoError(err, "product")
	}
	return s.cache.InvalidateListings(ctx, productsResource, actorID)
}

func (s *ProductService) Get(ctx context.Context, actorID, id string, locale domain.Locale) (domain.ProductView, error) {
	key := DetailCacheKey(productsResource, id, string(locale))
	return Remember(ctx, s.cache, key, listingCacheTTL, s.patterns(actorID), func(ctx context.Context) (domain.ProductView, error) {
		p, err := s.repo.FindByID(ctx, id)
		if err != nil {
			return domain.ProductView{}, mapRepoError(err, "product")
		}
		return p.Localize(locale), nil
	})
}

func (s *ProductService) List(ctx context.Context, actorID string, query repository.ProductListQuery, locale domain.Locale) (repository.PageResult[domain.ProductView], error) {
	query.PageRequest = repository.NormalizePage(query.PageRequest)
	search := query.Search
	if query.CategoryID != "" {
		search += "\x00cat=" + query.CategoryID
	}
	key := ListCacheKey{
		Resource:  productsResource,
		Principal: actorID,
		Page:      query.Page,
		Limit:     query.PageSize,
		Query:     search,
		Locale:    string(locale),
	}.String()
	return Remember(ctx, s.cache, key, listingCacheTTL, s.patterns(actorID), func(ctx context.Context) (repository.PageResult[domain.ProductView], error) {
		page, err := s.repo.ListPaged(ctx, query)
		if err != nil {
			return repository.PageResult[domain.ProductView]{}, err
		}
		views := make([]domain.ProductView, 0, len(page.Items))
		for _, p := range page.Items {
			views = append(views, p.Localize(locale))
		}
		return repository.PageResult[domain.ProductView]{
			Items:      views,
			Page:       page.Page,
			PageSize:   page.PageSize,
			Total:      page.Total,
			TotalPages: page.TotalPages,
		}, nil
	})
}

func (s *ProductService) ToggleLike(ctx context.Context, actorID, id string) (LikeResult, error) {
	liked, likes, err := s.repo.ToggleLike(ctx, id, actorID)
	if err != nil {
		return LikeResult{}, mapRepoError(err, "product")
	}
	return LikeResult{Liked: liked, NumberLike: likes}, s.cache.InvalidateListings(ctx, productsResource, actorID)
}

func (s *ProductService) validate(ctx context.Context, p *domain.Product) error {
	if p.NameVI == "" || p.NameEN == "" {
		return invalidInput("name_vi and name_en are required")
	}
	if len(p.NameVI) > 100 || len(p.NameEN) > 100 {
		return invalidInput("names must be at most 100 characters")
	}
	if p.Price < 0 {
		return invalidInput("price must not be negative")
	}
	if p.Stock < 0 {
		return invalidInput("stock must not be negative")
	}
	if existing, err := s.repo.FindByName(ctx, p.NameVI, p.NameEN); err == nil && existing.ID != p.ID {
		return fmt.Errorf("%w: product name already in use", ErrConflict)
	} else if err != nil && !errors.Is(err, repository.ErrRecordNotFound) {
		return err
	}

	var category *domain.Category
	if p.CategoryID != nil {
		c, err := s.categories.FindByID(ctx, *p.CategoryID)
		if err != nil {
			if errors.Is(err, repository.ErrRecordNotFound) {
				return invalidInput("category %s does not exist", *p.CategoryID)
			}
			return err
		}
		category = c
	}
	if p.SubCategoryID != nil {
		if category == nil {
			return invalidInput("sub_category_id requires category_id")
		}
		sub, err := s.categories.FindByID(ctx, *p.SubCategoryID)
		if err != nil {
			if errors.Is(err, repository.ErrRecordNotFound) {
				return invalidInput("sub-category %s does not exist", *p.SubCategoryID)
			}
			return err
		}
		if sub.ParentID == nil || *sub.ParentID != category.ID {
			return invalidInput("sub-category must be a child of the category")
		}
	}
	return nil
}

func (s *ProductService) patterns(actorID string) []string {
	return []string{PrincipalPattern(productsResource, actorID), productsResource}
}

func blankToNil(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
