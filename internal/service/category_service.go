package service

import (
	"context"
	"errors"
	"strings"

	"github.com/shopfront/catalog-backend/internal/domain"
	"github.com/shopfront/catalog-backend/internal/repository"
)

const (
	categoriesResource = "categories"
	maxCategoryDepth   = 64
)

type CategoryInput struct {
	ParentID      *string `json:"parent_id"`
	NameVI        string  `json:"name_vi"`
	NameEN        string  `json:"name_en"`
	DescriptionVI string  `json:"description_vi"`
	DescriptionEN string  `json:"description_en"`
}

type CategoryPatch struct {
	ParentID      *string `json:"parent_id"`
	NameVI        *string `json:"name_vi"`
	NameEN        *string `json:"name_en"`
	DescriptionVI *string `json:"description_vi"`
	DescriptionEN *string `json:"description_en"`
}

type CategoryService struct {
	repo  repository.CategoryRepository
	cache *CacheService
}

func NewCategoryService(repo repository.CategoryRepository, cache *CacheService) *CategoryService {
	return &CategoryService{repo: repo, cache: cache}
}

func (s *CategoryService) Create(ctx context.Context, actorID string, in CategoryInput) (*domain.Category, error) {
	c := &domain.Category{
		ParentID:      blankToNil(in.ParentID),
		NameVI:        strings.TrimSpace(in.NameVI),
		NameEN:        strings.TrimSpace(in.NameEN),
		DescriptionVI: strings.TrimSpace(in.DescriptionVI),
		DescriptionEN: strings.TrimSpace(in.DescriptionEN),
		CreatedByID:   optionalID(actorID),
		UpdatedByID:   optionalID(actorID),
	}
	if err := s.validate(ctx, c); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, s.cache.InvalidateListings(ctx, categoriesResource, actorID)
}

func (s *CategoryService) Update(ctx context.Context, actorID, id string, patch CategoryPatch) (*domain.Category, error) {
	c, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err, "category")
	}
	if patch.ParentID != nil {
		c.ParentID = blankToNil(patch.ParentID)
	}
	if patch.NameVI != nil {
		c.NameVI = strings.TrimSpace(*patch.NameVI)
	}
	if patch.NameEN != nil {
		c.NameEN = strings.TrimSpace(*patch.NameEN)
	}
	if patch.DescriptionVI != nil {
		c.DescriptionVI = strings.TrimSpace(*patch.DescriptionVI)
	}
	if patch.DescriptionEN != nil {
		c.DescriptionEN = strings.TrimSpace(*patch.DescriptionEN)
	}
	c.UpdatedByID = optionalID(actorID)
	if err := s.validate(ctx, c); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, c); err != nil {
		return nil, err
	}
	return c, s.invalidate(ctx, actorID)
}

func (s *CategoryService) Delete(ctx context.Context, actorID, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return mapRepoError(err, "category")
	}
	return s.invalidate(ctx, actorID)
}

func (s *CategoryService) Get(ctx context.Context, actorID, id string, locale domain.Locale) (domain.CategoryView, error) {
	key := DetailCacheKey(categoriesResource, id, string(locale))
	return Remember(ctx, s.cache, key, listingCacheTTL, s.patterns(actorID), func(ctx context.Context) (domain.CategoryView, error) {
		c, err := s.repo.FindByID(ctx, id)
		if err != nil {
			return domain.CategoryView{}, mapRepoError(err, "category")
		}
		return c.Localize(locale), nil
	})
}

func (s *CategoryService) List(ctx context.Context, actorID string, query repository.CategoryListQuery, locale domain.Locale) (repository.PageResult[domain.CategoryView], error) {
	query.PageRequest = repository.NormalizePage(query.PageRequest)
	search := query.Search
	if query.RootOnly {
		search += "\x00root"
	}
	key := ListCacheKey{
		Resource:  categoriesResource,
		Principal: actorID,
		Page:      query.Page,
		Limit:     query.PageSize,
		Query:     search,
		Locale:    string(locale),
	}.String()
	return Remember(ctx, s.cache, key, listingCacheTTL, s.patterns(actorID), func(ctx context.Context) (repository.PageResult[domain.CategoryView], error) {
		page, err := s.repo.ListPaged(ctx, query)
		if err != nil {
			return repository.PageResult[domain.CategoryView]{}, err
		}
		return repository.PageResult[domain.CategoryView]{
			Items:      localizeCategories(page.Items, locale),
			Page:       page.Page,
			PageSize:   page.PageSize,
			Total:      page.Total,
			TotalPages: page.TotalPages,
		}, nil
	})
}

func (s *CategoryService) Children(ctx context.Context, actorID, id string, locale domain.Locale) ([]domain.CategoryView, error) {
	key := ChildrenCacheKey(categoriesResource, id, string(locale))
	return Remember(ctx, s.cache, key, listingCacheTTL, s.patterns(actorID), func(ctx context.Context) ([]domain.CategoryView, error) {
		if _, err := s.repo.FindByID(ctx, id); err != nil {
			return nil, mapRepoError(err, "category")
		}
		children, err := s.repo.ListChildren(ctx, id)
		if err != nil {
			return nil, err
		}
		return localizeCategories(children, locale), nil
	})
}

// invalidate drops category views and product views, which embed categories.
func (s *CategoryService) invalidate(ctx context.Context, actorID string) error {
	return errors.Join(
		s.cache.InvalidateListings(ctx, categoriesResource, actorID),
		s.cache.InvalidateListings(ctx, productsResource, actorID),
	)
}

func (s *CategoryService) validate(ctx context.Context, c *domain.Category) error {
	if c.NameVI == "" || c.NameEN == "" {
		return invalidInput("name_vi and name_en are required")
	}
	if len(c.NameVI) > 100 || len(c.NameEN) > 100 {
		return invalidInput("names must be at most 100 characters")
	}
	if len(c.DescriptionVI) > 500 || len(c.DescriptionEN) > 500 {
		return invalidInput("descriptions must be at most 500 characters")
	}
	if c.ParentID == nil {
		return nil
	}
	if c.ID != "" && *c.ParentID == c.ID {
		return invalidInput("a category cannot be its own parent")
	}

	// walk up from the new parent; reaching c means the move would form a cycle
	next := *c.ParentID
	for depth := 0; next != ""; depth++ {
		if depth >= maxCategoryDepth {
			return invalidInput("category tree is too deep")
		}
		node, err := s.repo.FindByID(ctx, next)
		if err != nil {
			if errors.Is(err, repository.ErrRecordNotFound) {
				return invalidInput("parent category %s does not exist", next)
			}
			return err
		}
		if c.ID != "" && node.ID == c.ID {
			return invalidInput("a category cannot be moved under its own descendant")
		}
		next = ""
		if node.ParentID != nil {
			next = *node.ParentID
		}
	}
	return nil
}

func (s *CategoryService) patterns(actorID string) []string {
	return []string{PrincipalPattern(categoriesResource, actorID), categoriesResource}
}

func localizeCategories(items []domain.Category, locale domain.Locale) []domain.CategoryView {
	views := make([]domain.CategoryView, 0, len(items))
	for _, c := range items {
		views = append(views, c.Localize(locale))
	}
	return views
}
