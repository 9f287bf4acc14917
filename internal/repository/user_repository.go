package repository

import (
	"context"
	"time"

	"github.com/kurosawa-kuro/fullstack-openapi-js-poc/internal/database"
	"github.com/kurosawa-kuro/fullstack-openapi-js-poc/internal/model"
)

// UserRepo is the credential store: the `users` array.
type UserRepo struct {
	DB  *database.DB
	Now func() time.Time
}

func NewUserRepo(db *database.DB) *UserRepo { return &UserRepo{DB: db, Now: time.Now} }

// Create appends a user with id max(existing)+1. Ids are never reused.
func (r *UserRepo) Create(ctx context.Context, name, email, passwordHash string, roles []model.Role) (model.User, error) {
	email = model.NormalizeEmail(email)
	if len(roles) == 0 {
		roles = []model.Role{model.RoleUser}
	}
	var created model.User
	err := r.DB.Update(ctx, func(doc *database.Document) error {
		var maxID uint64
		for _, u := range doc.Users {
			if model.NormalizeEmail(u.Email) == email {
				return ErrEmailExists
			}
			if u.ID > maxID {
				maxID = u.ID
			}
		}
		now := r.Now().UTC()
		created = model.User{
			ID:           maxID + 1,
			Name:         name,
			Email:        email,
			PasswordHash: passwordHash,
			Roles:        append([]model.Role(nil), roles...),
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		doc.Users = append(doc.Users, created)
		return nil
	})
	if err != nil {
		return model.User{}, storeErr("users.create", err)
	}
	return created, nil
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	var found model.User
	err := r.DB.View(ctx, func(doc *database.Document) error {
		for _, u := range doc.Users {
			if u.ID == id {
				found = u
				return nil
			}
		}
		return ErrNotFound
	})
	return found, storeErr("users.get_by_id", err)
}

// GetByEmail fetches a user by email, ignoring case.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	email = model.NormalizeEmail(email)
	var found model.User
	err := r.DB.View(ctx, func(doc *database.Document) error {
		for _, u := range doc.Users {
			if model.NormalizeEmail(u.Email) == email {
				found = u
				return nil
			}
		}
		return ErrNotFound
	})
	return found, storeErr("users.get_by_email", err)
}

// UpdatePasswordHash replaces the stored hash.
func (r *UserRepo) UpdatePasswordHash(ctx context.Context, id uint64, hash string) error {
	err := r.update(ctx, id, func(u *model.User) { u.PasswordHash = hash })
	return storeErr("users.update_password", err)
}

// UpdateRoles replaces the role set and returns the updated user.
func (r *UserRepo) UpdateRoles(ctx context.Context, id uint64, roles []model.Role) (model.User, error) {
	var updated model.User
	err := r.update(ctx, id, func(u *model.User) {
		u.Roles = append([]model.Role(nil), roles...)
		updated = *u
	})
	if err != nil {
		return model.User{}, storeErr("users.update_roles", err)
	}
	return updated, nil
}

func (r *UserRepo) update(ctx context.Context, id uint64, mutate func(u *model.User)) error {
	return r.DB.Update(ctx, func(doc *database.Document) error {
		for i := range doc.Users {
			if doc.Users[i].ID == id {
				doc.Users[i].UpdatedAt = r.Now().UTC()
				mutate(&doc.Users[i])
				return nil
			}
		}
		return ErrNotFound
	})
}
