package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shopfront/catalog-backend/internal/domain"
	"github.com/shopfront/catalog-backend/internal/observability"
	"github.com/shopfront/catalog-backend/internal/repository"
	"github.com/shopfront/catalog-backend/internal/security"
)

type TokenPair struct {
	SessionID        string    `json:"session_id"`
	SubjectID        string    `json:"subject_id"`
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

type SessionView struct {
	ID               string    `json:"id"`
	DeviceInfo       string    `json:"device_info"`
	OriginAddress    string    `json:"origin_address"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
	IsCurrent        bool      `json:"is_current"`
}

// TokenService owns the session token lifecycle: issue, rotate in place,
// revoke by flag and verify.
type TokenService struct {
	jwtMgr      *security.JWTManager
	sessionRepo repository.SessionTokenRepository
	pepper      string
	accessTTL   time.Duration
	refreshTTL  time.Duration
	now         func() time.Time
}

func NewTokenService(jwtMgr *security.JWTManager, sessionRepo repository.SessionTokenRepository, pepper string, accessTTL, refreshTTL time.Duration) *TokenService {
	return &TokenService{
		jwtMgr:      jwtMgr,
		sessionRepo: sessionRepo,
		pepper:      pepper,
		accessTTL:   accessTTL,
		refreshTTL:  refreshTTL,
		now:         time.Now,
	}
}

func (s *TokenService) WithClock(now func() time.Time) *TokenService {
	if now != nil {
		s.now = now
	}
	return s
}


// Login mints a pair for an already authenticated subject and persists a new session.
func (s *TokenService) Login(ctx context.Context, subjectID, deviceInfo, originAddress string) (*TokenPair, error) {
	if subjectID == "" {
		return nil, invalidInput("subject is required")
	}
	pair, err := s.mintPair(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	session := &domain.SessionToken{
		SubjectID:        subjectID,
		AccessTokenHash:  security.HashToken(pair.AccessToken, s.pepper),
		RefreshTokenHash: security.HashToken(pair.RefreshToken, s.pepper),
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
		DeviceInfo:       truncate(deviceInfo, 512),
		OriginAddress:    truncate(originAddress, 64),
	}
	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}
	pair.SessionID = session.ID
	return pair, nil
}

// Refresh rotates the session owning refreshToken: new values and expiries,
// same id and subject. The presented refresh token stops working.
func (s *TokenService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	pair, err := s.refresh(ctx, refreshToken)
	if err != nil {
		observability.RecordAuthRefresh(refreshOutcome(err))
		return nil, err
	}
	observability.RecordAuthRefresh("success")
	return pair, nil
}

func (s *TokenService) refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("%w: missing refresh token", ErrUnauthenticated)
	}
	session, err := s.sessionRepo.FindByRefreshHash(ctx, security.HashToken(refreshToken, s.pepper))
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, err
	}
	if session.IsRevoked {
		return nil, fmt.Errorf("%w: session revoked", ErrUnauthenticated)
	}
	if session.RefreshExpired(s.now()) {
		return nil, ErrTokenExpired
	}
	claims, err := s.VerifyRefresh(refreshToken)
	if err != nil {
		return nil, err
	}
	if claims.SubjectID != session.SubjectID {
		return nil, fmt.Errorf("%w: subject mismatch", ErrUnauthenticated)
	}

	pair, err := s.mintPair(ctx, session.SubjectID)
	if err != nil {
		return nil, err
	}
	rotated, err := s.sessionRepo.Rotate(ctx, session.ID,
		security.HashToken(pair.AccessToken, s.pepper),
		security.HashToken(pair.RefreshToken, s.pepper),
		pair.AccessExpiresAt, pair.RefreshExpiresAt,
	)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil, fmt.Errorf("%w: session vanished during rotation", ErrUnauthenticated)
		}
		return nil, err
	}
	pair.SessionID = rotated.ID
	return pair, nil
}

// Revoke flags the session matching either token. It reports whether a row is
// (now or already) revoked; with no tokens it does nothing.
func (s *TokenService) Revoke(ctx context.Context, accessToken, refreshToken string) (bool, error) {
	if accessToken == "" && refreshToken == "" {
		return false, nil
	}
	session, err := s.sessionRepo.FindByAnyHash(ctx,
		security.HashToken(accessToken, s.pepper),
		security.HashToken(refreshToken, s.pepper),
	)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			observability.RecordAuthLogout("not_found")
			return false, ErrTokenNotFound
		}
		observability.RecordAuthLogout("error")
		return false, err
	}
	if session.IsRevoked {
		observability.RecordAuthLogout("already_revoked")
		return true, nil
	}
	touched, err := s.sessionRepo.MarkRevoked(ctx, session.ID)
	if err != nil {
		observability.RecordAuthLogout("error")
		return false, err
	}
	observability.RecordAuthLogout("success")
	return touched, nil
}

func (s *TokenService) RevokeAll(ctx context.Context, subjectID string) (int64, error) {
	return s.sessionRepo.RevokeAllBySubject(ctx, subjectID)
}

func (s *TokenService) VerifyAccess(token string) (*security.Claims, error) {
	claims, err := s.jwtMgr.ParseAccessToken(token)
	if err != nil {
		return nil, mapSignerError(err)
	}
	return claims, nil
}

func (s *TokenService) VerifyRefresh(token string) (*security.Claims, error) {
	claims, err := s.jwtMgr.ParseRefreshToken(token)
	if err != nil {
		return nil, mapSignerError(err)
	}
	return claims, nil
}

// SessionIsActive reports whether the access token still belongs to a live
// session. Signature checks alone cannot see revocation.
func (s *TokenService) SessionIsActive(ctx context.Context, accessToken string) (bool, error) {
	session, err := s.sessionRepo.FindByAnyHash(ctx, security.HashToken(accessToken, s.pepper), "")
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return false, nil
		}
		return false, err
	}
	return !session.IsRevoked && !session.AccessExpired(s.now()), nil
}

func (s *TokenService) ListSessions(ctx context.Context, subjectID, currentAccessToken string) ([]SessionView, error) {
	sessions, err := s.sessionRepo.ListActiveBySubject(ctx, subjectID, s.now())
	if err != nil {
		return nil, err
	}
	currentHash := security.HashToken(currentAccessToken, s.pepper)
	views := make([]SessionView, 0, len(sessions))
	for _, session := range sessions {
		views = append(views, SessionView{
			ID:               session.ID,
			DeviceInfo:       session.DeviceInfo,
			OriginAddress:    session.OriginAddress,
			CreatedAt:        session.CreatedAt,
			UpdatedAt:        session.UpdatedAt,
			RefreshExpiresAt: session.RefreshExpiresAt,
			IsCurrent:        currentHash != "" && session.AccessTokenHash == currentHash,
		})
	}
	return views, nil
}

func (s *TokenService) mintPair(ctx context.Context, subjectID string) (*TokenPair, error) {
	pair := &TokenPair{SubjectID: subjectID}
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		pair.AccessToken, pair.AccessExpiresAt, err = s.jwtMgr.SignAccessToken(subjectID, s.accessTTL)
		return err
	})
	g.Go(func() error {
		var err error
		pair.RefreshToken, pair.RefreshExpiresAt, err = s.jwtMgr.SignRefreshToken(subjectID, s.refreshTTL)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("sign token pair: %w", err)
	}
	return pair, nil
}

func mapSignerError(err error) error {
	if errors.Is(err, security.ErrTokenExpired) {
		return ErrTokenExpired
	}
	return fmt.Errorf("%w: %v", ErrUnauthenticated, err)
}

func refreshOutcome(err error) string {
	switch {
	case errors.Is(err, ErrTokenExpired):
		return "expired"
	case errors.Is(err, ErrTokenNotFound):
		return "not_found"
	case errors.Is(err, ErrUnauthenticated):
		return "rejected"
	default:
		return "error"
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
