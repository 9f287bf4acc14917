package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/kurosawa-kuro/fullstack-openapi-js-poc/internal/database"
	"github.com/kurosawa-kuro/fullstack-openapi-js-poc/internal/model"
	"github.com/kurosawa-kuro/fullstack-openapi-js-poc/internal/utils"
)

// DefaultBlacklistTTL applies when a token's own expiry cannot be decoded.
const DefaultBlacklistTTL = 24 * time.Hour

// BlacklistRepo persists revoked access tokens (the `tokenBlacklist` array),
// keyed by the SHA-256 of the token with any Bearer prefix removed.
type BlacklistRepo struct {
	DB  *database.DB
	Now func() time.Time
}

func NewBlacklistRepo(db *database.DB) *BlacklistRepo {
	return &BlacklistRepo{DB: db, Now: time.Now}
}

// Add blacklists token. Adding a token that already has an entry returns
// that entry unchanged. A nil expiresAt is derived from the token's exp claim,
// falling back to now+24h.
func (r *BlacklistRepo) Add(ctx context.Context, token, reason string, expiresAt *time.Time) (model.BlacklistEntry, error) {
	raw := utils.StripBearer(token)
	hash := utils.HashToken(raw)
	now := r.Now().UTC()

	exp := now.Add(DefaultBlacklistTTL)
	if expiresAt != nil {
		exp = expiresAt.UTC()
	} else if tokExp, ok := utils.ExpiryOf(raw); ok {
		exp = tokExp.UTC()
	}

	var entry model.BlacklistEntry
	err := r.DB.Update(ctx, func(doc *database.Document) error {
		for _, e := range doc.TokenBlacklist {
			if e.TokenHash == hash {
				entry = e
				return nil
			}
		}
		entry = model.BlacklistEntry{
			ID:        uuid.NewString(),
			TokenHash: hash,
			Reason:    reason,
			CreatedAt: now,
			ExpiresAt: exp,
		}
		doc.TokenBlacklist = append(doc.TokenBlacklist, entry)
		return nil
	})
	if err != nil {
		return model.BlacklistEntry{}, storeErr("token_blacklist.add", err)
	}
	return entry, nil
}

// IsBlacklisted reports whether an unexpired entry exists for token. When the
// lookup itself fails it returns true together with the error: callers must
// treat the token as revoked.
func (r *BlacklistRepo) IsBlacklisted(ctx context.Context, token string) (bool, error) {
	hash := utils.HashToken(utils.StripBearer(token))
	now := r.Now()
	found := false
	err := r.DB.View(ctx, func(doc *database.Document) error {
		for _, e := range doc.TokenBlacklist {
			if e.TokenHash == hash && e.Active(now) {
				found = true
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return true, storeErr("token_blacklist.lookup", err)
	}
	return found, nil
}

// DeleteExpired reaps entries whose expiry has passed.
func (r *BlacklistRepo) DeleteExpired(ctx context.Context) (int, error) {
	now := r.Now()
	removed := 0
	err := r.DB.Update(ctx, func(doc *database.Document) error {
		kept := doc.TokenBlacklist[:0]
		for _, e := range doc.TokenBlacklist {
			if !e.Active(now) {
				removed++
				continue
			}
			kept = append(kept, e)
		}
		doc.TokenBlacklist = kept
		return nil
	})
	if err != nil {
		return 0, storeErr("token_blacklist.delete_expired", err)
	}
	return removed, nil
}
