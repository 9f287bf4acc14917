package handler

import (
	"net/mail"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/kurosawa-kuro/fullstack-openapi-js-poc/internal/apperr"
	"github.com/kurosawa-kuro/fullstack-openapi-js-poc/internal/model"
	"github.com/kurosawa-kuro/fullstack-openapi-js-poc/internal/utils"
)

// Field limits enforced at the HTTP boundary. The password upper bound is
// in bytes since bcrypt reads at most 72.
const (
	maxNameLen       = 100
	maxEmailLen      = 254
	minPasswordLen   = 8
	maxPasswordBytes = utils.MaxPasswordBytes
)

func validName(name string) (string, error) {
	name = strings.TrimSpace(name)
	n := utf8.RuneCountInString(name)
	if n < 1 || n > maxNameLen {
		return "", apperr.Validation("name must be between 1 and 100 characters")
	}
	return name, nil
}

func validEmail(email string) (string, error) {
	email = model.NormalizeEmail(email)
	if email == "" || len(email) > maxEmailLen {
		return "", apperr.Validation("a valid email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndexByte(email, '@'):], ".") {
		return "", apperr.Validation("a valid email is required")
	}
	return email, nil
}

// validPassword enforces at least 8 characters, at most 72 bytes, and at
// least one letter and one digit.
func validPassword(field, pw string) error {
	if utf8.RuneCountInString(pw) < minPasswordLen {
		return apperr.Validation(field + " must be at least 8 characters")
	}
	if len(pw) > maxPasswordBytes {
		return apperr.Validation(field + " must be at most 72 bytes")
	}
	var letter, digit bool
	for _, r := range pw {
		switch {
		case unicode.IsLetter(r):
			letter = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !letter || !digit {
		return apperr.Validation(field + " must contain at least one letter and one digit")
	}
	return nil
}

// registerReq is the body of POST /v1/auth/register.
type registerReq struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r *registerReq) validate() error {
	var err error
	if r.Name, err = validName(r.Name); err != nil {
		return err
	}
	if r.Email, err = validEmail(r.Email); err != nil {
		return err
	}
	return validPassword("password", r.Password)
}

// loginReq only checks presence so a policy change never locks out existing
// passwords.
type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r *loginReq) validate() error {
	var err error
	if r.Email, err = validEmail(r.Email); err != nil {
		return err
	}
	if r.Password == "" || len(r.Password) > 4*maxPasswordBytes {
		return apperr.Validation("password is required")
	}
	return nil
}

type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

func (r *refreshReq) validate() error {
	r.RefreshToken = strings.TrimSpace(r.RefreshToken)
	if r.RefreshToken == "" {
		return apperr.Validation("refresh_token is required")
	}
	return nil
}

type forgotReq struct {
	Email string `json:"email"`
}

func (r *forgotReq) validate() error {
	var err error
	r.Email, err = validEmail(r.Email)
	return err
}

type resetReq struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

func (r *resetReq) validate() error {
	r.Token = strings.TrimSpace(r.Token)
	if r.Token == "" {
		return apperr.Validation("token is required")
	}
	return validPassword("password", r.Password)
}

type changePasswordReq struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func (r *changePasswordReq) validate() error {
	if r.CurrentPassword == "" {
		return apperr.Validation("currentPassword is required")
	}
	return validPassword("newPassword", r.NewPassword)
}

type setRolesReq struct {
	Roles []string `json:"roles"`
}

func (r *setRolesReq) parse() ([]model.Role, error) {
	roles, ok := model.ParseRoles(r.Roles)
	if !ok {
		return nil, apperr.Validation("roles must be a non-empty subset of user, readonly-admin, admin")
	}
	return roles, nil
}
