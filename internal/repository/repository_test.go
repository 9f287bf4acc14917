package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kurosawa-kuro/fullstack-openapi-js-poc/internal/apperr"
	"github.com/kurosawa-kuro/fullstack-openapi-js-poc/internal/database"
	"github.com/kurosawa-kuro/fullstack-openapi-js-poc/internal/model"
	"github.com/kurosawa-kuro/fullstack-openapi-js-poc/internal/utils"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "db.json"))
	require.NoError(t, err)
	return db
}

func TestUserRepo_CreateAssignsIncreasingIDs(t *testing.T) {
	t.Parallel()
	r := NewUserRepo(newTestDB(t))
	ctx := context.Background()

	a, err := r.Create(ctx, "Alice", "Alice@Example.com", "h1", nil)
	require.NoError(t, err)
	require.Equal(t, uint64(1), a.ID)
	require.Equal(t, "alice@example.com", a.Email)
	require.Equal(t, []model.Role{model.RoleUser}, a.Roles)

	b, err := r.Create(ctx, "Bob", "bob@example.com", "h2", []model.Role{model.RoleAdmin})
	require.NoError(t, err)
	require.Equal(t, uint64(2), b.ID)
	require.Equal(t, []model.Role{model.RoleAdmin}, b.Roles)
}

func TestUserRepo_CreateRejectsDuplicateEmailIgnoringCase(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	r := NewUserRepo(db)
	ctx := context.Background()

	_, err := r.Create(ctx, "Alice", "alice@example.com", "h", nil)
	require.NoError(t, err)
	_, err = r.Create(ctx, "Alice 2", "  ALICE@example.COM ", "h", nil)
	require.ErrorIs(t, err, apperr.ErrConflict)

	require.NoError(t, db.View(ctx, func(doc *database.Document) error {
		require.Len(t, doc.Users, 1)
		return nil
	}))
}

func TestUserRepo_Lookups(t *testing.T) {
	t.Parallel()
	r := NewUserRepo(newTestDB(t))
	ctx := context.Background()

	created, err := r.Create(ctx, "Alice", "alice@example.com", "h", nil)
	require.NoError(t, err)

	byID, err := r.GetByID(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, created.Email, byID.Email)

	byEmail, err := r.GetByEmail(ctx, "ALICE@example.com")
	require.NoError(t, err)
	require.Equal(t, created.ID, byEmail.ID)

	_, err = r.GetByID(ctx, 99)
	require.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = r.GetByEmail(ctx, "nobody@example.com")
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestUserRepo_Updates(t *testing.T) {
	t.Parallel()
	clk := &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	r := NewUserRepo(newTestDB(t))
	r.Now = clk.Now
	ctx := context.Background()

	u, err := r.Create(ctx, "Alice", "alice@example.com", "old", nil)
	require.NoError(t, err)

	clk.Advance(time.Minute)
	require.NoError(t, r.UpdatePasswordHash(ctx, u.ID, "new"))
	got, err := r.GetByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, "new", got.PasswordHash)
	require.True(t, got.UpdatedAt.After(got.CreatedAt))

	updated, err := r.UpdateRoles(ctx, u.ID, []model.Role{model.RoleReadonlyAdmin})
	require.NoError(t, err)
	require.Equal(t, []model.Role{model.RoleReadonlyAdmin}, updated.Roles)
	require.Equal(t, clk.Now(), updated.UpdatedAt)

	require.ErrorIs(t, r.UpdatePasswordHash(ctx, 404, "x"), apperr.ErrNotFound)
}

func TestTokenRepo_LifeCycle(t *testing.T) {
	t.Parallel()
	clk := &fakeClock{t: time.Now()}
	r := NewTokenRepo(newTestDB(t))
	r.Now = clk.Now
	ctx := context.Background()

	raw, rec, err := r.Create(ctx, 1, "iPhone")
	require.NoError(t, err)
	require.Len(t, raw, 2*utils.RefreshTokenBytes)
	require.NotEqual(t, raw, rec.TokenHash)
	require.Equal(t, rec.CreatedAt.Add(RefreshTTL), rec.ExpiresAt)

	found, err := r.FindByToken(ctx, raw)
	require.NoError(t, err)
	require.Equal(t, rec.ID, found.ID)
	require.Equal(t, "iPhone", found.DeviceInfo)

	clk.Advance(time.Hour)
	require.NoError(t, r.Touch(ctx, raw))
	found, err = r.FindByToken(ctx, raw)
	require.NoError(t, err)
	require.True(t, found.LastUsedAt.After(found.CreatedAt))

	_, err = r.FindByToken(ctx, "unknown")
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestTokenRepo_ExpiredTokenIsDeletedOnLookup(t *testing.T) {
	t.Parallel()
	clk := &fakeClock{t: time.Now()}
	db := newTestDB(t)
	r := NewTokenRepo(db)
	r.Now = clk.Now
	ctx := context.Background()

	raw, _, err := r.Create(ctx, 1, "")
	require.NoError(t, err)

	clk.Advance(RefreshTTL + time.Second)
	_, err = r.FindByToken(ctx, raw)
	require.ErrorIs(t, err, apperr.ErrNotFound)

	require.NoError(t, db.View(ctx, func(doc *database.Document) error {
		require.Empty(t, doc.RefreshTokens)
		return nil
	}))
}

func TestTokenRepo_DeleteByUserAndExpired(t *testing.T) {
	t.Parallel()
	clk := &fakeClock{t: time.Now()}
	r := NewTokenRepo(newTestDB(t))
	r.Now = clk.Now
	ctx := context.Background()

	a1, _, _ := r.Create(ctx, 1, "laptop")
	a2, _, _ := r.Create(ctx, 1, "phone")
	b1, _, _ := r.Create(ctx, 2, "")

	n, err := r.DeleteByUserID(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	for _, raw := range []string{a1, a2} {
		_, err := r.FindByToken(ctx, raw)
		require.ErrorIs(t, err, apperr.ErrNotFound)
	}
	_, err = r.FindByToken(ctx, b1)
	require.NoError(t, err)

	ok, err := r.DeleteByToken(ctx, b1)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = r.DeleteByToken(ctx, b1)
	require.NoError(t, err)
	require.False(t, ok)

	_, _, _ = r.Create(ctx, 3, "")
	clk.Advance(RefreshTTL)
	n, err = r.DeleteExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestBlacklistRepo_AddIsIdempotent(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	r := NewBlacklistRepo(db)
	ctx := context.Background()

	first, err := r.Add(ctx, "Bearer some.jwt.token", "logout", nil)
	require.NoError(t, err)
	second, err := r.Add(ctx, "some.jwt.token", "again", nil)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, "logout", second.Reason)

	listed, err := r.IsBlacklisted(ctx, "some.jwt.token")
	require.NoError(t, err)
	require.True(t, listed)

	require.NoError(t, db.View(ctx, func(doc *database.Document) error {
		require.Len(t, doc.TokenBlacklist, 1)
		require.NotContains(t, doc.TokenBlacklist[0].TokenHash, "some.jwt.token")
		return nil
	}))
}

func TestBlacklistRepo_ExpiryDerivation(t *testing.T) {
	t.Parallel()
	clk := &fakeClock{t: time.Unix(1_700_000_000, 0).UTC()}
	r := NewBlacklistRepo(newTestDB(t))
	r.Now = clk.Now
	ctx := context.Background()

	codec, err := utils.NewTokenCodec("0123456789abcdef0123456789abcdef", 10*time.Minute, utils.WithClock(clk.Now))
	require.NoError(t, err)
	at, err := codec.Issue(model.User{ID: 1, Email: "a@example.com", Roles: []model.Role{model.RoleUser}})
	require.NoError(t, err)

	fromClaim, err := r.Add(ctx, at.Token, "logout", nil)
	require.NoError(t, err)
	require.True(t, fromClaim.ExpiresAt.Equal(clk.Now().Add(10*time.Minute)))

	fallback, err := r.Add(ctx, "opaque", "logout", nil)
	require.NoError(t, err)
	require.True(t, fallback.ExpiresAt.Equal(clk.Now().Add(DefaultBlacklistTTL)))

	explicit := clk.Now().Add(time.Minute)
	given, err := r.Add(ctx, "other", "manual", &explicit)
	require.NoError(t, err)
	require.True(t, given.ExpiresAt.Equal(explicit))
}

func TestBlacklistRepo_ExpiredEntriesAreIgnoredAndReaped(t *testing.T) {
	t.Parallel()
	clk := &fakeClock{t: time.Now()}
	r := NewBlacklistRepo(newTestDB(t))
	r.Now = clk.Now
	ctx := context.Background()

	exp := clk.Now().Add(time.Minute)
	_, err := r.Add(ctx, "tok", "logout", &exp)
	require.NoError(t, err)

	clk.Advance(2 * time.Minute)
	listed, err := r.IsBlacklisted(ctx, "tok")
	require.NoError(t, err)
	require.False(t, listed)

	n, err := r.DeleteExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestBlacklistRepo_FailsClosed(t *testing.T) {
	t.Parallel()
	r := NewBlacklistRepo(newTestDB(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	listed, err := r.IsBlacklisted(ctx, "tok")
	require.Error(t, err)
	require.True(t, listed)
	require.Equal(t, apperr.CodeDatabase, apperr.CodeOf(err))
}

func TestResetRepo_NewTokenInvalidatesPrevious(t *testing.T) {
	t.Parallel()
	r := NewResetRepo(newTestDB(t))
	ctx := context.Background()

	first, _, err := r.Create(ctx, 1, time.Hour)
	require.NoError(t, err)
	other, _, err := r.Create(ctx, 2, time.Hour)
	require.NoError(t, err)
	second, _, err := r.Create(ctx, 1, time.Hour)
	require.NoError(t, err)

	_, err = r.FindByToken(ctx, first)
	require.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = r.FindByToken(ctx, second)
	require.NoError(t, err)
	_, err = r.FindByToken(ctx, other)
	require.NoError(t, err, "other users' tokens are untouched")
}

func TestResetRepo_MarkUsedIsSingleUse(t *testing.T) {
	t.Parallel()
	r := NewResetRepo(newTestDB(t))
	ctx := context.Background()

	raw, rec, err := r.Create(ctx, 1, 0)
	require.NoError(t, err)
	require.Equal(t, rec.CreatedAt.Add(DefaultResetTTL), rec.ExpiresAt)

	ok, err := r.MarkUsed(ctx, raw)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = r.MarkUsed(ctx, raw)
	require.NoError(t, err)
	require.False(t, ok)

	_, err = r.FindByToken(ctx, raw)
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestResetRepo_ExpiryAndCleanup(t *testing.T) {
	t.Parallel()
	clk := &fakeClock{t: time.Now()}
	r := NewResetRepo(newTestDB(t))
	r.Now = clk.Now
	ctx := context.Background()

	expiring, _, err := r.Create(ctx, 1, time.Minute)
	require.NoError(t, err)
	used, _, err := r.Create(ctx, 2, time.Hour)
	require.NoError(t, err)
	_, err = r.MarkUsed(ctx, used)
	require.NoError(t, err)
	live, _, err := r.Create(ctx, 3, time.Hour)
	require.NoError(t, err)

	clk.Advance(2 * time.Minute)
	_, err = r.FindByToken(ctx, expiring)
	require.ErrorIs(t, err, apperr.ErrNotFound)

	n, err := r.DeleteStale(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	_, err = r.FindByToken(ctx, live)
	require.NoError(t, err)
}
