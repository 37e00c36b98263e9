package repository

import (
	"context"
	"errors"

	"github.com/shopfront/catalog-backend/internal/domain"
	"github.com/shopfront/catalog-backend/internal/observability"

	"gorm.io/gorm"
)

type ProductListQuery struct {
	PageRequest
	Search     string
	CategoryID string
}

type ProductRepository interface {
	FindByID(ctx context.Context, id string) (*domain.Product, error)
	FindByName(ctx context.Context, nameVI, nameEN string) (*domain.Product, error)
	Create(ctx context.Context, p *domain.Product) error
	Update(ctx context.Context, p *domain.Product) error
	Delete(ctx context.Context, id string) error
	ListPaged(ctx context.Context, query ProductListQuery) (PageResult[domain.Product], error)
	ToggleLike(ctx context.Context, productID, userID string) (liked bool, likes int, err error)
}

type GormProductRepository struct{ db *gorm.DB }

func NewProductRepository(db *gorm.DB) ProductRepository { return &GormProductRepository{db: db} }

func (r *GormProductRepository) FindByID(ctx context.Context, id string) (*domain.Product, error) {
	var p domain.Product
	err := r.db.WithContext(ctx).Preload("Category").Preload("SubCategory").Where("id = ?", id).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "product", "find_by_id", "not_found")
			return nil, ErrRecordNotFound
		}
		observability.RecordRepositoryOperation(ctx, "product", "find_by_id", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "product", "find_by_id", "success")
	return &p, nil
}

// FindByName returns any product already using either localized name.
func (r *GormProductRepository) FindByName(ctx context.Context, nameVI, nameEN string) (*domain.Product, error) {
	var p domain.Product
	err := r.db.WithContext(ctx).Where("name_vi = ? OR name_en = ?", nameVI, nameEN).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "product", "find_by_name", "not_found")
			return nil, ErrRecordNotFound
		}
		observability.RecordRepositoryOperation(ctx, "product", "find_by_name", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "product", "find_by_name", "success")
	return &p, nil
}

func (r *GormProductRepository) Create(ctx context.Context, p *domain.Product) error {
	err := r.db.WithContext(ctx).Omit("Category", "SubCategory", "Likes").Create(p).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "product", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "product", "create", "success")
	return nil
}

func (r *GormProductRepository) Update(ctx context.Context, p *domain.Product) error {
	err := r.db.WithContext(ctx).Omit("Category", "SubCategory", "Likes").Save(p).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "product", "update", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "product", "update", "success")
	return nil
}

func (r *GormProductRepository) Delete(ctx context.Context, id string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM product_likes WHERE product_id = ?", id).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&domain.Product{})
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
			observability.RecordRepositoryOperation(ctx, "product", "delete", "not_found")
		} else {
			observability.RecordRepositoryOperation(ctx, "product", "delete", "error")
		}
		return err
	}
	observability.RecordRepositoryOperation(ctx, "product", "delete", "success")
	return nil
}

func (r *GormProductRepository) ListPaged(ctx context.Context, query ProductListQuery) (PageResult[domain.Product], error) {
	req := normalizePageRequest(query.PageRequest)
	result := PageResult[domain.Product]{
		Page:     req.Page,
		PageSize: req.PageSize,
		Items:    []domain.Product{},
	}

	base := r.db.WithContext(ctx).Model(&domain.Product{})
	if query.Search != "" {
		pattern := containsPattern(query.Search)
		base = base.Where("name_vi LIKE ? "+likeEscapeClause+" OR name_en LIKE ? "+likeEscapeClause, pattern, pattern)
	}
	if query.CategoryID != "" {
		base = base.Where("category_id = ? OR sub_category_id = ?", query.CategoryID, query.CategoryID)
	}

	if err := base.Session(&gorm.Session{}).Count(&result.Total).Error; err != nil {
		observability.RecordRepositoryOperation(ctx, "product", "list_paged", "error")
		return PageResult[domain.Product]{}, err
	}
	if err := base.Preload("Category").Preload("SubCategory").
		Order("created_at DESC").Order("id ASC").
		Offset(req.offset()).Limit(req.PageSize).
		Find(&result.Items).Error; err != nil {
		observability.RecordRepositoryOperation(ctx, "product", "list_paged", "error")
		return PageResult[domain.Product]{}, err
	}
	result.TotalPages = calcTotalPages(result.Total, req.PageSize)
	observability.RecordRepositoryOperation(ctx, "product", "list_paged", "success")
	return result, nil
}

// ToggleLike flips the user's like on the product and keeps number_like equal
// to the size of the like set.
func (r *GormProductRepository) ToggleLike(ctx context.Context, productID, userID string) (bool, int, error) {
	var liked bool
	var likes int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var exists int64
		if err := tx.Model(&domain.Product{}).Where("id = ?", productID).Count(&exists).Error; err != nil {
			return err
		}
		if exists == 0 {
			return ErrRecordNotFound
		}

		var current int64
		if err := tx.Table("product_likes").
			Where("product_id = ? AND user_id = ?", productID, userID).
			Count(&current).Error; err != nil {
			return err
		}
		if current > 0 {
			if err := tx.Exec("DELETE FROM product_likes WHERE product_id = ? AND user_id = ?", productID, userID).Error; err != nil {
				return err
			}
		} else {
			if err := tx.Exec("INSERT INTO product_likes (product_id, user_id) VALUES (?, ?)", productID, userID).Error; err != nil {
				return err
			}
			liked = true
		}

		if err := tx.Table("product_likes").Where("product_id = ?", productID).Count(&likes).Error; err != nil {
			return err
		}
		return tx.Model(&domain.Product{}).Where("id = ?", productID).Update("number_like", likes).Error
	})
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "product", "toggle_like", "not_found")
		} else {
			observability.RecordRepositoryOperation(ctx, "product", "toggle_like", "error")
		}
		return false, 0, err
	}
	observability.RecordRepositoryOperation(ctx, "product", "toggle_like", "success")
	return liked, int(likes), nil
}
