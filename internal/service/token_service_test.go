package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shopfront/catalog-backend/internal/domain"
	"github.com/shopfront/catalog-backend/internal/repository"
	"github.com/shopfront/catalog-backend/internal/security"
)

type inMemorySessionTokenRepo struct {
	mu   sync.Mutex
	byID map[string]*domain.SessionToken
	seq  int
}

func newInMemorySessionTokenRepo() *inMemorySessionTokenRepo {
	return &inMemorySessionTokenRepo{byID: map[string]*domain.SessionToken{}}
}

func (r *inMemorySessionTokenRepo) Create(_ context.Context, s *domain.SessionToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.byID {
		if existing.RefreshTokenHash == s.RefreshTokenHash || existing.AccessTokenHash == s.AccessTokenHash {
			return errors.New("unique violation")
		}
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	r.seq++
	s.CreatedAt = time.Now().Add(time.Duration(r.seq) * time.Millisecond)
	cp := *s
	r.byID[cp.ID] = &cp
	return nil
}

func (r *inMemorySessionTokenRepo) FindByRefreshHash(_ context.Context, hash string) (*domain.SessionToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.byID {
		if hash != "" && s.RefreshTokenHash == hash {
			cp := *s
			return &cp, nil
		}
	}
	return nil, repository.ErrSessionNotFound
}

func (r *inMemorySessionTokenRepo) FindByAnyHash(_ context.Context, accessHash, refreshHash string) (*domain.SessionToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matches []*domain.SessionToken
	for _, s := range r.byID {
		if (accessHash != "" && s.AccessTokenHash == accessHash) || (refreshHash != "" && s.RefreshTokenHash == refreshHash) {
			matches = append(matches, s)
		}
	}
	if len(matches) == 0 {
		return nil, repository.ErrSessionNotFound
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].CreatedAt.Before(matches[j].CreatedAt) })
	cp := *matches[0]
	return &cp, nil
}

func (r *inMemorySessionTokenRepo) Rotate(_ context.Context, id, accessHash, refreshHash string, accessExp, refreshExp time.Time) (*domain.SessionToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[id]
	if !ok {
		return nil, repository.ErrSessionNotFound
	}
	s.AccessTokenHash = accessHash
	s.RefreshTokenHash = refreshHash
	s.AccessExpiresAt = accessExp
	s.RefreshExpiresAt = refreshExp
	cp := *s
	return &cp, nil
}

func (r *inMemorySessionTokenRepo) MarkRevoked(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[id]
	if !ok {
		return false, nil
	}
	s.IsRevoked = true
	return true, nil
}

func (r *inMemorySessionTokenRepo) ListActiveBySubject(_ context.Context, subjectID string, now time.Time) ([]domain.SessionToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.SessionToken
	for _, s := range r.byID {
		if s.SubjectID == subjectID && !s.IsRevoked && s.RefreshExpiresAt.After(now) {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (r *inMemorySessionTokenRepo) RevokeAllBySubject(_ context.Context, subjectID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, s := range r.byID {
		if s.SubjectID == subjectID && !s.IsRevoked {
			s.IsRevoked = true
			n++
		}
	}
	return n, nil
}

func (r *inMemorySessionTokenRepo) get(id string) domain.SessionToken {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.byID[id]
}

func (r *inMemorySessionTokenRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

const testPepper = "pepper-for-tests-only"

func newTokenServiceForTest(t *testing.T) (*TokenService, *inMemorySessionTokenRepo) {
	t.Helper()
	repo := newInMemorySessionTokenRepo()
	jwtMgr := security.NewJWTManager("catalog-test", "catalog-api", strings.Repeat("a", 32), strings.Repeat("r", 32))
	return NewTokenService(jwtMgr, repo, testPepper, 72*time.Hour, 168*time.Hour), repo
}

func TestTokenServiceLoginIssuesPairWithExpectedLifetimes(t *testing.T) {
	svc, repo := newTokenServiceForTest(t)
	before := time.Now()
	pair, err := svc.Login(context.Background(), "u1", "curl/8", "127.0.0.1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	assertWithin := func(name string, got, want time.Time) {
		t.Helper()
		if d := got.Sub(want); d < -time.Second || d > 5*time.Second {
			t.Fatalf("%s = %s, want about %s", name, got, want)
		}
	}
	assertWithin("access expiry", pair.AccessExpiresAt, before.Add(72*time.Hour))
	assertWithin("refresh expiry", pair.RefreshExpiresAt, before.Add(168*time.Hour))

	claims, err := svc.VerifyAccess(pair.AccessToken)
	if err != nil {
		t.Fatalf("verify access: %v", err)
	}
	if claims.SubjectID != "u1" {
		t.Fatalf("expected subject u1, got %q", claims.SubjectID)
	}

	stored := repo.get(pair.SessionID)
	if stored.AccessTokenHash != security.HashToken(pair.AccessToken, testPepper) {
		t.Fatal("stored access digest does not match issued token")
	}
	if stored.AccessTokenHash == pair.AccessToken || stored.RefreshTokenHash == pair.RefreshToken {
		t.Fatal("raw token values must not be persisted")
	}
	if !stored.RefreshExpiresAt.Equal(pair.RefreshExpiresAt) {
		t.Fatalf("stored refresh expiry %s != issued %s", stored.RefreshExpiresAt, pair.RefreshExpiresAt)
	}
}

func TestTokenServiceRefreshPreservesIdentityAndNeverReusesValues(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTokenServiceForTest(t)
	pair, err := svc.Login(ctx, "u1", "", "")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	seen := map[string]bool{pair.AccessToken: true, pair.RefreshToken: true}

	current := pair
	for i := 0; i < 2; i++ {
		next, err := svc.Refresh(ctx, current.RefreshToken)
		if err != nil {
			t.Fatalf("refresh %d: %v", i, err)
		}
		if next.SessionID != pair.SessionID {
			t.Fatalf("rotation changed session id: %s -> %s", pair.SessionID, next.SessionID)
		}
		for _, v := range []string{next.AccessToken, next.RefreshToken} {
			if seen[v] {
				t.Fatalf("refresh %d reused a previous token value", i)
			}
			seen[v] = true
		}
		current = next
	}

	if repo.count() != 1 {
		t.Fatalf("rotation must reuse the row, found %d rows", repo.count())
	}
	stored := repo.get(pair.SessionID)
	if stored.SubjectID != "u1" {
		t.Fatalf("subject changed to %q", stored.SubjectID)
	}
	if _, err := svc.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("superseded refresh token must be rejected, got %v", err)
	}
}

func TestTokenServiceRefreshRejectsRevokedSession(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTokenServiceForTest(t)
	pair, err := svc.Login(ctx, "u1", "", "")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := svc.Revoke(ctx, pair.AccessToken, pair.RefreshToken); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := svc.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestTokenServiceRefreshRejectsExpiredSession(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTokenServiceForTest(t)
	pair, err := svc.Login(ctx, "u1", "", "")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	svc.WithClock(func() time.Time { return time.Now().Add(169 * time.Hour) })
	_, err = svc.Refresh(ctx, pair.RefreshToken)
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
	if !errors.Is(err, ErrUnauthenticated) {
		t.Fatal("expired must also be unauthenticated")
	}
}

func TestTokenServiceRevokeSemantics(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTokenServiceForTest(t)
	pair, err := svc.Login(ctx, "u1", "", "")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	ok, err := svc.Revoke(ctx, "", "")
	if err != nil || ok {
		t.Fatalf("empty revoke: ok=%v err=%v", ok, err)
	}

	ok, err = svc.Revoke(ctx, "", pair.RefreshToken)
	if err != nil || !ok {
		t.Fatalf("revoke by refresh: ok=%v err=%v", ok, err)
	}
	ok, err = svc.Revoke(ctx, pair.AccessToken, "")
	if err != nil || !ok {
		t.Fatalf("second revoke must be a no-op success: ok=%v err=%v", ok, err)
	}
	if !repo.get(pair.SessionID).IsRevoked {
		t.Fatal("session must be flagged revoked")
	}
	if repo.count() != 1 {
		t.Fatal("revoke must never delete the row")
	}

	stranger, _, err := security.NewJWTManager("catalog-test", "catalog-api", strings.Repeat("a", 32), strings.Repeat("r", 32)).
		SignRefreshToken("u2", time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	_, err = svc.Revoke(ctx, "", stranger)
	if !errors.Is(err, ErrTokenNotFound) || !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected token not found, got %v", err)
	}
}

func TestTokenServiceVerifyDistinguishesExpiry(t *testing.T) {
	svc, _ := newTokenServiceForTest(t)
	jwtMgr := security.NewJWTManager("catalog-test", "catalog-api", strings.Repeat("a", 32), strings.Repeat("r", 32))

	expired, _, err := jwtMgr.SignAccessToken("u1", -time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := svc.VerifyAccess(expired); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}

	refresh, _, err := jwtMgr.SignRefreshToken("u1", time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	_, err = svc.VerifyAccess(refresh)
	if !errors.Is(err, ErrUnauthenticated) || errors.Is(err, ErrTokenExpired) {
		t.Fatalf("refresh token as access must be a generic failure, got %v", err)
	}
	if _, err := svc.VerifyRefresh("garbage"); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestTokenServiceSessionsAndRevokeAll(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTokenServiceForTest(t)
	first, err := svc.Login(ctx, "u1", "laptop", "10.0.0.1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := svc.Login(ctx, "u1", "phone", "10.0.0.2"); err != nil {
		t.Fatalf("login: %v", err)
	}

	sessions, err := svc.ListSessions(ctx, "u1", first.AccessToken)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
	current := 0
	for _, s := range sessions {
		if s.IsCurrent {
			current++
			if s.ID != first.SessionID {
				t.Fatalf("wrong current session %s", s.ID)
			}
		}
	}
	if current != 1 {
		t.Fatalf("expected exactly one current session, got %d", current)
	}

	active, err := svc.SessionIsActive(ctx, first.AccessToken)
	if err != nil || !active {
		t.Fatalf("expected active session: %v %v", active, err)
	}
	n, err := svc.RevokeAll(ctx, "u1")
	if err != nil || n != 2 {
		t.Fatalf("revoke all: n=%d err=%v", n, err)
	}
	active, err = svc.SessionIsActive(ctx, first.AccessToken)
	if err != nil || active {
		t.Fatalf("expected inactive session after revoke all: %v %v", active, err)
	}
}
