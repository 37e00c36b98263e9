package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Product struct {
	ID            string    `gorm:"primaryKey;size:36" json:"id"`
	NameVI        string    `gorm:"column:name_vi;size:100;uniqueIndex;not null" json:"name_vi"`
	NameEN        string    `gorm:"column:name_en;size:100;uniqueIndex;not null" json:"name_en"`
	Price         float64   `gorm:"type:decimal(20,2);not null" json:"price"`
	Stock         int       `gorm:"not null;default:0" json:"stock"`
	NumberLike    int       `gorm:"not null;default:0" json:"number_like"`
	CategoryID    *string   `gorm:"size:36;index" json:"category_id,omitempty"`
	SubCategoryID *string   `gorm:"size:36;index" json:"sub_category_id,omitempty"`
	Category      *Category `gorm:"foreignKey:CategoryID;constraint:OnDelete:SET NULL" json:"-"`
	SubCategory   *Category `gorm:"foreignKey:SubCategoryID;constraint:OnDelete:SET NULL" json:"-"`
	Likes         []User    `gorm:"many2many:product_likes;constraint:OnDelete:CASCADE" json:"-"`
	CreatedByID   *string   `gorm:"size:36" json:"created_by_id,omitempty"`
	UpdatedByID   *string   `gorm:"size:36" json:"updated_by_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (p *Product) BeforeCreate(*gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

type ProductView struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Price       float64       `json:"price"`
	Stock       int           `json:"stock"`
	NumberLike  int           `json:"number_like"`
	Category    *CategoryView `json:"category,omitempty"`
	SubCategory *CategoryView `json:"sub_category,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// Localize projects the per-locale columns of the product and its preloaded
// categories onto canonical field names.
func (p Product) Localize(locale Locale) ProductView {
	v := ProductView{
		ID:         p.ID,
		Name:       LocalizedText{VI: p.NameVI, EN: p.NameEN}.In(locale),
		Price:      p.Price,
		Stock:      p.Stock,
		NumberLike: p.NumberLike,
		CreatedAt:  p.CreatedAt,
		UpdatedAt:  p.UpdatedAt,
	}
	if p.Category != nil {
		c := p.Category.Localize(locale)
		v.Category = &c
	}
	if p.SubCategory != nil {
		c := p.SubCategory.Localize(locale)
		v.SubCategory = &c
	}
	return v
}
