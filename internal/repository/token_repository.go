package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/kurosawa-kuro/fullstack-openapi-js-poc/internal/database"
	"github.com/kurosawa-kuro/fullstack-openapi-js-poc/internal/model"
	"github.com/kurosawa-kuro/fullstack-openapi-js-poc/internal/utils"
)

// RefreshTTL is the fixed lifetime of a refresh token.
const RefreshTTL = 30 * 24 * time.Hour

// TokenRepo persists refresh tokens (the `refreshTokens` array). Lookups are
// by the SHA-256 of the raw token.
type TokenRepo struct {
	DB  *database.DB
	Now func() time.Time
}

func NewTokenRepo(db *database.DB) *TokenRepo { return &TokenRepo{DB: db, Now: time.Now} }

// Create generates a random token for userID and stores its hash. The raw
// token is returned once and never persisted.
func (r *TokenRepo) Create(ctx context.Context, userID uint64, deviceInfo string) (string, model.RefreshToken, error) {
	raw, err := utils.RandomHex(utils.RefreshTokenBytes)
	if err != nil {
		return "", model.RefreshToken{}, storeErr("refresh_tokens.create", err)
	}
	now := r.Now().UTC()
	rec := model.RefreshToken{
		ID:         uuid.NewString(),
		TokenHash:  utils.HashToken(raw),
		UserID:     userID,
		DeviceInfo: deviceInfo,
		CreatedAt:  now,
		ExpiresAt:  now.Add(RefreshTTL),
		LastUsedAt: now,
	}
	err = r.DB.Update(ctx, func(doc *database.Document) error {
		doc.RefreshTokens = append(doc.RefreshTokens, rec)
		return nil
	})
	if err != nil {
		return "", model.RefreshToken{}, storeErr("refresh_tokens.create", err)
	}
	return raw, rec, nil
}

// FindByToken returns the record for raw. An expired record is deleted and
// reported as ErrNotFound.
func (r *TokenRepo) FindByToken(ctx context.Context, raw string) (model.RefreshToken, error) {
	hash := utils.HashToken(raw)
	var (
		found   model.RefreshToken
		expired bool
	)
	err := r.DB.View(ctx, func(doc *database.Document) error {
		for _, t := range doc.RefreshTokens {
			if t.TokenHash == hash {
				found = t
				expired = t.Expired(r.Now())
				return nil
			}
		}
		return ErrNotFound
	})
	if err != nil {
		return model.RefreshToken{}, storeErr("refresh_tokens.find", err)
	}
	if expired {
		if _, err := r.DeleteByToken(ctx, raw); err != nil {
			return model.RefreshToken{}, err
		}
		return model.RefreshToken{}, ErrNotFound
	}
	return found, nil
}

// Touch records a use of the token.
func (r *TokenRepo) Touch(ctx context.Context, raw string) error {
	hash := utils.HashToken(raw)
	err := r.DB.Update(ctx, func(doc *database.Document) error {
		for i := range doc.RefreshTokens {
			if doc.RefreshTokens[i].TokenHash == hash {
				doc.RefreshTokens[i].LastUsedAt = r.Now().UTC()
				return nil
			}
		}
		return ErrNotFound
	})
	return storeErr("refresh_tokens.touch", err)
}

// DeleteByToken revokes a single token. It reports whether one was removed.
func (r *TokenRepo) DeleteByToken(ctx context.Context, raw string) (bool, error) {
	hash := utils.HashToken(raw)
	n, err := r.deleteWhere(ctx, "refresh_tokens.delete", func(t model.RefreshToken) bool {
		return t.TokenHash == hash
	})
	return n > 0, err
}

// DeleteByUserID revokes every token of a user and returns how many were removed.
func (r *TokenRepo) DeleteByUserID(ctx context.Context, userID uint64) (int, error) {
	return r.deleteWhere(ctx, "refresh_tokens.delete_by_user", func(t model.RefreshToken) bool {
		return t.UserID == userID
	})
}

// DeleteExpired reaps expired tokens.
func (r *TokenRepo) DeleteExpired(ctx context.Context) (int, error) {
	now := r.Now()
	return r.deleteWhere(ctx, "refresh_tokens.delete_expired", func(t model.RefreshToken) bool {
		return t.Expired(now)
	})
}

func (r *TokenRepo) deleteWhere(ctx context.Context, op string, match func(model.RefreshToken) bool) (int, error) {
	removed := 0
	err := r.DB.Update(ctx, func(doc *database.Document) error {
		kept := doc.RefreshTokens[:0]
		for _, t := range doc.RefreshTokens {
			if match(t) {
				removed++
				continue
			}
			kept = append(kept, t)
		}
		doc.RefreshTokens = kept
		return nil
	})
	if err != nil {
		return 0, storeErr(op, err)
	}
	return removed, nil
}
