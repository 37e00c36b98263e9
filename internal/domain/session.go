package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SessionToken is one login session. Rows are rotated in place on refresh and
// flagged on logout; they are never deleted by the auth flow.
type SessionToken struct {
	ID               string    `gorm:"primaryKey;size:36" json:"id"`
	SubjectID        string    `gorm:"size:36;index;not null" json:"subject_id"`
	AccessTokenHash  string    `gorm:"size:128;uniqueIndex;not null" json:"-"`
	RefreshTokenHash string    `gorm:"size:128;uniqueIndex;not null" json:"-"`
	IsRevoked        bool      `gorm:"not null;default:false;index" json:"is_revoked"`
	AccessExpiresAt  time.Time `gorm:"not null" json:"access_expires_at"`
	RefreshExpiresAt time.Time `gorm:"index;not null" json:"refresh_expires_at"`
	DeviceInfo       string    `gorm:"size:512" json:"device_info"`
	OriginAddress    string    `gorm:"size:64" json:"origin_address"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (s *SessionToken) BeforeCreate(*gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

func (s *SessionToken) AccessExpired(now time.Time) bool {
	return s.AccessExpiresAt.IsZero() || now.After(s.AccessExpiresAt)
}

func (s *SessionToken) RefreshExpired(now time.Time) bool {
	return s.RefreshExpiresAt.IsZero() || now.After(s.RefreshExpiresAt)
}
