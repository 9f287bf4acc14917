package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/kurosawa-kuro/fullstack-openapi-js-poc/internal/database"
	"github.com/kurosawa-kuro/fullstack-openapi-js-poc/internal/model"
	"github.com/kurosawa-kuro/fullstack-openapi-js-poc/internal/utils"
)

// DefaultResetTTL is the lifetime of a reset token when none is configured.
const DefaultResetTTL = time.Hour

// ResetRepo persists single-use password reset tokens (the
// `passwordResetTokens` array). A user holds at most one valid token.
type ResetRepo struct {
	DB  *database.DB
	Now func() time.Time
}

func NewResetRepo(db *database.DB) *ResetRepo { return &ResetRepo{DB: db, Now: time.Now} }

// Create invalidates every outstanding token of userID and stores a new one
// in the same write. The raw token is returned once.
func (r *ResetRepo) Create(ctx context.Context, userID uint64, ttl time.Duration) (string, model.PasswordResetToken, error) {
	if ttl <= 0 {
		ttl = DefaultResetTTL
	}
	raw, err := utils.RandomHex(utils.ResetTokenBytes)
	if err != nil {
		return "", model.PasswordResetToken{}, storeErr("password_reset.create", err)
	}
	now := r.Now().UTC()
	rec := model.PasswordResetToken{
		ID:        uuid.NewString(),
		UserID:    userID,
		TokenHash: utils.HashToken(raw),
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	err = r.DB.Update(ctx, func(doc *database.Document) error {
		for i := range doc.PasswordResetTokens {
			t := &doc.PasswordResetTokens[i]
			if t.UserID == userID && t.Valid(now) {
				t.Used = true
			}
		}
		doc.PasswordResetTokens = append(doc.PasswordResetTokens, rec)
		return nil
	})
	if err != nil {
		return "", model.PasswordResetToken{}, storeErr("password_reset.create", err)
	}
	return raw, rec, nil
}

// FindByToken returns the record only while it is unused and unexpired.
func (r *ResetRepo) FindByToken(ctx context.Context, raw string) (model.PasswordResetToken, error) {
	hash := utils.HashToken(raw)
	now := r.Now()
	var found model.PasswordResetToken
	err := r.DB.View(ctx, func(doc *database.Document) error {
		for _, t := range doc.PasswordResetTokens {
			if t.TokenHash == hash && t.Valid(now) {
				found = t
				return nil
			}
		}
		return ErrNotFound
	})
	return found, storeErr("password_reset.find", err)
}

// MarkUsed consumes a valid token. It returns false when the token is
// unknown, expired or was already used, so only one caller can consume it.
func (r *ResetRepo) MarkUsed(ctx context.Context, raw string) (bool, error) {
	hash := utils.HashToken(raw)
	now := r.Now()
	consumed := false
	err := r.DB.Update(ctx, func(doc *database.Document) error {
		for i := range doc.PasswordResetTokens {
			t := &doc.PasswordResetTokens[i]
			if t.TokenHash == hash && t.Valid(now) {
				t.Used = true
				consumed = true
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return false, storeErr("password_reset.mark_used", err)
	}
	return consumed, nil
}

// DeleteStale purges used and expired tokens.
func (r *ResetRepo) DeleteStale(ctx context.Context) (int, error) {
	now := r.Now()
	removed := 0
	err := r.DB.Update(ctx, func(doc *database.Document) error {
		kept := doc.PasswordResetTokens[:0]
		for _, t := range doc.PasswordResetTokens {
			if !t.Valid(now) {
				removed++
				continue
			}
			kept = append(kept, t)
		}
		doc.PasswordResetTokens = kept
		return nil
	})
	if err != nil {
		return 0, storeErr("password_reset.delete_stale", err)
	}
	return removed, nil
}
