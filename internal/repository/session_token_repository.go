package repository

import (
	"context"
	"errors"
	"time"

	"github.com/shopfront/catalog-backend/internal/domain"
	"github.com/shopfront/catalog-backend/internal/observability"

	"gorm.io/gorm"
)

var ErrSessionNotFound = errors.New("session not found")

// SessionTokenRepository persists login sessions keyed by token digests.
// There is intentionally no delete: revoked rows stay as the audit trail.
type SessionTokenRepository interface {
	Create(ctx context.Context, s *domain.SessionToken) error
	FindByRefreshHash(ctx context.Context, refreshHash string) (*domain.SessionToken, error)
	FindByAnyHash(ctx context.Context, accessHash, refreshHash string) (*domain.SessionToken, error)
	Rotate(ctx context.Context, id, accessHash, refreshHash string, accessExpiresAt, refreshExpiresAt time.Time) (*domain.SessionToken, error)
	MarkRevoked(ctx context.Context, id string) (bool, error)
	ListActiveBySubject(ctx context.Context, subjectID string, now time.Time) ([]domain.SessionToken, error)
	RevokeAllBySubject(ctx context.Context, subjectID string) (int64, error)
}

type GormSessionTokenRepository struct{ db *gorm.DB }

func NewSessionTokenRepository(db *gorm.DB) SessionTokenRepository {
	return &GormSessionTokenRepository{db: db}
}

func (r *GormSessionTokenRepository) Create(ctx context.Context, s *domain.SessionToken) error {
	err := r.db.WithContext(ctx).Create(s).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "session_token", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "session_token", "create", "success")
	return nil
}

func (r *GormSessionTokenRepository) FindByRefreshHash(ctx context.Context, refreshHash string) (*domain.SessionToken, error) {
	if refreshHash == "" {
		observability.RecordRepositoryOperation(ctx, "session_token", "find_by_refresh_hash", "not_found")
		return nil, ErrSessionNotFound
	}
	var s domain.SessionToken
	err := r.db.WithContext(ctx).Where("refresh_token_hash = ?", refreshHash).First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "session_token", "find_by_refresh_hash", "not_found")
			return nil, ErrSessionNotFound
		}
		observability.RecordRepositoryOperation(ctx, "session_token", "find_by_refresh_hash", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "session_token", "find_by_refresh_hash", "success")
	return &s, nil
}

// FindByAnyHash returns the first row whose access or refresh digest matches.
// Empty digests never match.
func (r *GormSessionTokenRepository) FindByAnyHash(ctx context.Context, accessHash, refreshHash string) (*domain.SessionToken, error) {
	q := r.db.WithContext(ctx).Model(&domain.SessionToken{})
	switch {
	case accessHash != "" && refreshHash != "":
		q = q.Where("access_token_hash = ? OR refresh_token_hash = ?", accessHash, refreshHash)
	case accessHash != "":
		q = q.Where("access_token_hash = ?", accessHash)
	case refreshHash != "":
		q = q.Where("refresh_token_hash = ?", refreshHash)
	default:
		observability.RecordRepositoryOperation(ctx, "session_token", "find_by_any_hash", "not_found")
		return nil, ErrSessionNotFound
	}

	var s domain.SessionToken
	if err := q.Order("created_at ASC").First(&s).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "session_token", "find_by_any_hash", "not_found")
			return nil, ErrSessionNotFound
		}
		observability.RecordRepositoryOperation(ctx, "session_token", "find_by_any_hash", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "session_token", "find_by_any_hash", "success")
	return &s, nil
}

// Rotate overwrites the token digests and expiries of one row in place.
// is_revoked is left untouched so a concurrent revoke is never undone.
func (r *GormSessionTokenRepository) Rotate(ctx context.Context, id, accessHash, refreshHash string, accessExpiresAt, refreshExpiresAt time.Time) (*domain.SessionToken, error) {
	res := r.db.WithContext(ctx).Model(&domain.SessionToken{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"access_token_hash":  accessHash,
			"refresh_token_hash": refreshHash,
			"access_expires_at":  accessExpiresAt,
			"refresh_expires_at": refreshExpiresAt,
			"updated_at":         time.Now().UTC(),
		})
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "session_token", "rotate", "error")
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		observability.RecordRepositoryOperation(ctx, "session_token", "rotate", "not_found")
		return nil, ErrSessionNotFound
	}

	var s domain.SessionToken
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&s).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "session_token", "rotate", "not_found")
			return nil, ErrSessionNotFound
		}
		observability.RecordRepositoryOperation(ctx, "session_token", "rotate", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "session_token", "rotate", "success")
	return &s, nil
}

func (r *GormSessionTokenRepository) MarkRevoked(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&domain.SessionToken{}).
		Where("id = ?", id).
		Updates(map[string]any{"is_revoked": true, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "session_token", "mark_revoked", "error")
		return false, res.Error
	}
	observability.RecordRepositoryOperation(ctx, "session_token", "mark_revoked", "success")
	return res.RowsAffected > 0, nil
}

func (r *GormSessionTokenRepository) ListActiveBySubject(ctx context.Context, subjectID string, now time.Time) ([]domain.SessionToken, error) {
	var sessions []domain.SessionToken
	err := r.db.WithContext(ctx).
		Where("subject_id = ? AND is_revoked = ? AND refresh_expires_at > ?", subjectID, false, now).
		Order("created_at DESC").
		Find(&sessions).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "session_token", "list_active_by_subject", "error")
		return sessions, err
	}
	observability.RecordRepositoryOperation(ctx, "session_token", "list_active_by_subject", "success")
	return sessions, nil
}

func (r *GormSessionTokenRepository) RevokeAllBySubject(ctx context.Context, subjectID string) (int64, error) {
	res := r.db.WithContext(ctx).Model(&domain.SessionToken{}).
		Where("subject_id = ? AND is_revoked = ?", subjectID, false).
		Updates(map[string]any{"is_revoked": true, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "session_token", "revoke_all_by_subject", "error")
		return res.RowsAffected, res.Error
	}
	observability.RecordRepositoryOperation(ctx, "session_token", "revoke_all_by_subject", "success")
	return res.RowsAffected, nil
}
