package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCode_HTTPStatus(t *testing.T) {
	t.Parallel()

	cases := map[Code]int{
		CodeValidation:             http.StatusBadRequest,
		CodeInvalidCurrentPassword: http.StatusBadRequest,
		CodeInvalidResetToken:      http.StatusBadRequest,
		CodeInvalidCredentials:     http.StatusUnauthorized,
		CodeInvalidToken:           http.StatusUnauthorized,
		CodeTokenExpired:           http.StatusUnauthorized,
		CodeInvalidRefreshToken:    http.StatusUnauthorized,
		CodeForbidden:              http.StatusForbidden,
		CodeNotFound:               http.StatusNotFound,
		CodeConflict:               http.StatusConflict,
		CodeRateLimited:            http.StatusTooManyRequests,
		CodeDatabase:               http.StatusInternalServerError,
		Code("SOMETHING_ELSE"):     http.StatusInternalServerError,
	}
	for code, want := range cases {
		require.Equal(t, want, code.HTTPStatus(), "code %s", code)
	}
}

func TestError_IsMatchesByCode(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("login: %w", Wrap(CodeInvalidCredentials, "custom text", errors.New("boom")))
	require.ErrorIs(t, err, ErrInvalidCredentials)
	require.NotErrorIs(t, err, ErrInvalidToken)
	require.Equal(t, CodeInvalidCredentials, CodeOf(err))
}

func TestDatabase_WrapsCauseWithOp(t *testing.T) {
	t.Parallel()

	cause := errors.New("disk full")
	err := Database("users.create", cause)

	require.ErrorIs(t, err, cause)
	require.Equal(t, CodeDatabase, CodeOf(err))
	require.Contains(t, err.Error(), "users.create")
	require.Contains(t, err.Error(), "disk full")
}

func TestCodeOf_ForeignError(t *testing.T) {
	t.Parallel()
	require.Equal(t, CodeInternal, CodeOf(errors.New("plain")))
}
