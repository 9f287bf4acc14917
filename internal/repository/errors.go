// Package repository implements the auth stores on top of the shared data
// file. Store failures surface as apperr.Database carrying the operation
// name; domain outcomes (conflict, not found) pass through untouched.
package repository

import (
	"errors"

	"github.com/kurosawa-kuro/fullstack-openapi-js-poc/internal/apperr"
)

// ErrEmailExists is returned when a user with the same email (ignoring case)
// already exists. Handlers translate it into HTTP 409.
var ErrEmailExists = apperr.ErrConflict

// ErrNotFound is returned when a record is absent, expired or already used.
var ErrNotFound = apperr.ErrNotFound

// storeErr leaves domain errors alone and wraps everything else.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	return apperr.Database(op, err)
}
