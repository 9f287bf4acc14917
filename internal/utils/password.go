package utils

import (
	"context"
	"errors"
	"runtime"
	"sync"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"

	"github.com/kurosawa-kuro/fullstack-openapi-js-poc/internal/apperr"
)

const (
	// DefaultBcryptCost is used when no cost is configured.
	DefaultBcryptCost = 12

	// MaxPasswordBytes is the longest input bcrypt accepts.
	MaxPasswordBytes = 72
)

// ErrPasswordTooLong is returned by Hash for inputs over MaxPasswordBytes.
var ErrPasswordTooLong = apperr.Validation("password must be at most 72 bytes")

// PasswordHasher wraps bcrypt. Concurrent hash/compare work is bounded to
// GOMAXPROCS so a burst of logins cannot monopolise every CPU.
type PasswordHasher struct {
	cost int
	sem  *semaphore.Weighted

	// dummy is a hash at the same cost, compared against when a login names
	// an unknown user so both failure paths cost one bcrypt comparison.
	dummyOnce sync.Once
	dummy     string
}

// NewPasswordHasher returns a hasher using the given bcrypt cost.
func NewPasswordHasher(cost int) *PasswordHasher {
	if cost <= 0 {
		cost = DefaultBcryptCost
	}
	return &PasswordHasher{
		cost: cost,
		sem:  semaphore.NewWeighted(int64(runtime.GOMAXPROCS(0))),
	}
}

// Hash returns a bcrypt hash of plain. Inputs over MaxPasswordBytes fail
// with ErrPasswordTooLong.
func (h *PasswordHasher) Hash(ctx context.Context, plain string) (string, error) {
	if len(plain) > MaxPasswordBytes {
		return "", ErrPasswordTooLong
	}
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer h.sem.Release(1)

	b, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", ErrPasswordTooLong
	}
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Verify reports whether plain matches hash. A mismatch is (false, nil); an
// error means the comparison itself could not run.
func (h *PasswordHasher) Verify(ctx context.Context, hash, plain string) (bool, error) {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return false, err
	}
	defer h.sem.Release(1)

	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, err
	}
}

// Burn performs a throwaway comparison so unknown-user logins take as long as
// wrong-password ones.
func (h *PasswordHasher) Burn(ctx context.Context, plain string) {
	h.dummyOnce.Do(func() {
		b, err := bcrypt.GenerateFromPassword([]byte("dummy-password"), h.cost)
		if err == nil {
			h.dummy = string(b)
		}
	})
	if h.dummy == "" {
		return
	}
	_, _ = h.Verify(ctx, h.dummy, plain)
}
