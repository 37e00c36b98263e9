package repository

import (
	"context"
	"errors"

	"github.com/shopfront/catalog-backend/internal/domain"
	"github.com/shopfront/catalog-backend/internal/observability"

	"gorm.io/gorm"
)

type CategoryListQuery struct {
	PageRequest
	Search   string
	RootOnly bool
}

type CategoryRepository interface {
	FindByID(ctx context.Context, id string) (*domain.Category, error)
	Create(ctx context.Context, c *domain.Category) error
	Update(ctx context.Context, c *domain.Category) error
	Delete(ctx context.Context, id string) error
	ListPaged(ctx context.Context, query CategoryListQuery) (PageResult[domain.Category], error)
	ListChildren(ctx context.Context, parentID string) ([]domain.Category, error)
}

type GormCategoryRepository struct{ db *gorm.DB }

func NewCategoryRepository(db *gorm.DB) CategoryRepository { return &GormCategoryRepository{db: db} }

func (r *GormCategoryRepository) FindByID(ctx context.Context, id string) (*domain.Category, error) {
	var c domain.Category
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "category", "find_by_id", "not_found")
			return nil, ErrRecordNotFound
		}
		observability.RecordRepositoryOperation(ctx, "category", "find_by_id", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "category", "find_by_id", "success")
	return &c, nil
}

func (r *GormCategoryRepository) Create(ctx context.Context, c *domain.Category) error {
	err := r.db.WithContext(ctx).Create(c).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "category", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "category", "create", "success")
	return nil
}

func (r *GormCategoryRepository) Update(ctx context.Context, c *domain.Category) error {
	err := r.db.WithContext(ctx).Save(c).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "category", "update", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "category", "update", "success")
	return nil
}

// Delete removes the category, detaches its children to the root and clears
// product references to it.
func (r *GormCategoryRepository) Delete(ctx context.Context, id string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&domain.Category{}).Where("parent_id = ?", id).Update("parent_id", nil).Error; err != nil {
			return err
		}
		if err := tx.Model(&domain.Product{}).Where("category_id = ?", id).Update("category_id", nil).Error; err != nil {
			return err
		}
		if err := tx.Model(&domain.Product{}).Where("sub_category_id = ?", id).Update("sub_category_id", nil).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&domain.Category{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrRecordNotFound
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "category", "delete", "not_found")
		} else {
			observability.RecordRepositoryOperation(ctx, "category", "delete", "error")
		}
		return err
	}
	observability.RecordRepositoryOperation(ctx, "category", "delete", "success")
	return nil
}

func (r *GormCategoryRepository) ListPaged(ctx context.Context, query CategoryListQuery) (PageResult[domain.Category], error) {
	req := normalizePageRequest(query.PageRequest)
	result := PageResult[domain.Category]{
		Page:     req.Page,
		PageSize: req.PageSize,
		Items:    []domain.Category{},
	}

	base := r.db.WithContext(ctx).Model(&domain.Category{})
	if query.Search != "" {
		pattern := containsPattern(query.Search)
		base = base.Where("name_vi LIKE ? "+likeEscapeClause+" OR name_en LIKE ? "+likeEscapeClause, pattern, pattern)
	}
	if query.RootOnly {
		base = base.Where("parent_id IS NULL")
	}

	if err := base.Session(&gorm.Session{}).Count(&result.Total).Error; err != nil {
		observability.RecordRepositoryOperation(ctx, "category", "list_paged", "error")
		return PageResult[domain.Category]{}, err
	}
	if err := base.Order("created_at DESC").Order("id ASC").
		Offset(req.offset()).Limit(req.PageSize).
		Find(&result.Items).Error; err != nil {
		observability.RecordRepositoryOperation(ctx, "category", "list_paged", "error")
		return PageResult[domain.Category]{}, err
	}
	result.TotalPages = calcTotalPages(result.Total, req.PageSize)
	observability.RecordRepositoryOperation(ctx, "category", "list_paged", "success")
	return result, nil
}

func (r *GormCategoryRepository) ListChildren(ctx context.Context, parentID string) ([]domain.Category, error) {
	children := []domain.Category{}
	err := r.db.WithContext(ctx).Where("parent_id = ?", parentID).Order("created_at ASC").Find(&children).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "category", "list_children", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "category", "list_children", "success")
	return children, nil
}
