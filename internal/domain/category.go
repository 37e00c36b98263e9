package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Category nodes form a tree stored as an adjacency list. Children are read
// through the repository, never held on the struct.
type Category struct {
	ID            string    `gorm:"primaryKey;size:36" json:"id"`
	ParentID      *string   `gorm:"size:36;index" json:"parent_id,omitempty"`
	NameVI        string    `gorm:"column:name_vi;size:100;not null" json:"name_vi"`
	NameEN        string    `gorm:"column:name_en;size:100;not null" json:"name_en"`
	DescriptionVI string    `gorm:"column:description_vi;size:500" json:"description_vi"`
	DescriptionEN string    `gorm:"column:description_en;size:500" json:"description_en"`
	CreatedByID   *string   `gorm:"size:36" json:"created_by_id,omitempty"`
	UpdatedByID   *string   `gorm:"size:36" json:"updated_by_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (c *Category) BeforeCreate(*gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

type CategoryView struct {
	ID          string    `json:"id"`
	ParentID    *string   `json:"parent_id,omitempty"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Localize projects the per-locale columns onto canonical field names.
func (c Category) Localize(locale Locale) CategoryView {
	return CategoryView{
		ID:          c.ID,
		ParentID:    c.ParentID,
		Name:        LocalizedText{VI: c.NameVI, EN: c.NameEN}.In(locale),
		Description: LocalizedText{VI: c.DescriptionVI, EN: c.DescriptionEN}.In(locale),
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}
