package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kurosawa-kuro/fullstack-openapi-js-poc/internal/apperr"
	"github.com/kurosawa-kuro/fullstack-openapi-js-poc/internal/model"
)

// ErrProviderUnavailable means the identity provider could not be reached or
// failed on its side. FallbackAuth answers it by retrying locally.
var ErrProviderUnavailable = errors.New("identity provider unavailable")

// Identity is what the provider asserts about an authenticated user.
type Identity struct {
	Subject string       `json:"subject"`
	Email   string       `json:"email"`
	Name    string       `json:"name"`
	Roles   []model.Role `json:"roles,omitempty"`
}

// IdentityProvider authenticates and registers users with an external
// system. Rejected credentials are apperr.ErrInvalidCredentials, a taken
// email is apperr.ErrConflict, anything the caller cannot act on is
// ErrProviderUnavailable.
type IdentityProvider interface {
	Authenticate(ctx context.Context, email, password string) (Identity, error)
	Register(ctx context.Context, name, email, password string) (Identity, error)
}

// FederatedAuth authenticates against an IdentityProvider and mirrors every
// user it sees into the local credential store, so access and refresh tokens
// are always issued locally. Every operation other than Register and Login is
// served by the local variant.
type FederatedAuth struct {
	*LocalAuth
	idp IdentityProvider
}

func NewFederatedAuth(local *LocalAuth, idp IdentityProvider) *FederatedAuth {
	return &FederatedAuth{LocalAuth: local, idp: idp}
}

func (s *FederatedAuth) Register(ctx context.Context, name, email, password, deviceInfo string) (AuthResult, error) {
	id, err := s.idp.Register(ctx, name, email, password)
	if err != nil {
		return AuthResult{}, err
	}
	u, err := s.shadow(ctx, id, name, email, password)
	if err != nil {
		return AuthResult{}, err
	}
	res, err := s.issue(ctx, u, deviceInfo)
	if err != nil {
		return AuthResult{}, err
	}
	if !s.notifier.SendWelcomeEmail(ctx, u.Email, u.Name) {
		s.log.Warn("welcome email not sent", zap.Uint64("user_id", u.ID))
	}
	return res, nil
}

func (s *FederatedAuth) Login(ctx context.Context, email, password, deviceInfo string) (AuthResult, error) {
	id, err := s.idp.Authenticate(ctx, email, password)
	if err != nil {
		return AuthResult{}, err
	}
	u, err := s.shadow(ctx, id, "", email, password)
	if err != nil {
		return AuthResult{}, err
	}
	return s.issue(ctx, u, deviceInfo)
}

// shadow upserts the local copy of a provider identity. The local hash tracks
// the last password the provider accepted so the local fallback can still
// authenticate while the provider is down.
func (s *FederatedAuth) shadow(ctx context.Context, id Identity, name, email, password string) (model.User, error) {
	if id.Email != "" {
		email = id.Email
	}
	if id.Name != "" {
		name = id.Name
	}
	if name == "" {
		name = email
	}
	roles := make([]model.Role, 0, len(id.Roles))
	for _, r := range id.Roles {
		if r.Valid() {
			roles = append(roles, r)
		}
	}

	u, err := s.stores.Users.GetByEmail(ctx, email)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		hash, err := s.hashPassword(ctx, password)
		if err != nil {
			return model.User{}, err
		}
		return s.stores.Users.Create(ctx, name, email, hash, roles)
	case err != nil:
		return model.User{}, err
	}

	if ok, err := s.hasher.Verify(ctx, u.PasswordHash, password); err == nil && !ok {
		hash, err := s.hashPassword(ctx, password)
		if err != nil {
			return model.User{}, err
		}
		if err := s.stores.Users.UpdatePasswordHash(ctx, u.ID, hash); err != nil {
			return model.User{}, err
		}
	}
	if len(roles) > 0 && !sameRoles(u.Roles, roles) {
		return s.stores.Users.UpdateRoles(ctx, u.ID, roles)
	}
	return u, nil
}

func sameRoles(a, b []model.Role) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// FallbackAuth serves Register and Login from primary and retries them on
// fallback when primary reports ErrProviderUnavailable. Everything else goes
// to primary.
type FallbackAuth struct {
	AuthService
	fallback AuthService
	log      *zap.Logger
}

func NewFallbackAuth(primary, fallback AuthService, log *zap.Logger) *FallbackAuth {
	if log == nil {
		log = zap.NewNop()
	}
	return &FallbackAuth{AuthService: primary, fallback: fallback, log: log}
}

func (s *FallbackAuth) Register(ctx context.Context, name, email, password, deviceInfo string) (AuthResult, error) {
	res, err := s.AuthService.Register(ctx, name, email, password, deviceInfo)
	if errors.Is(err, ErrProviderUnavailable) {
		s.log.Warn("identity provider unavailable, registering locally", zap.Error(err))
		return s.fallback.Register(ctx, name, email, password, deviceInfo)
	}
	return res, err
}

func (s *FallbackAuth) Login(ctx context.Context, email, password, deviceInfo string) (AuthResult, error) {
	res, err := s.AuthService.Login(ctx, email, password, deviceInfo)
	if errors.Is(err, ErrProviderUnavailable) {
		s.log.Warn("identity provider unavailable, authenticating locally", zap.Error(err))
		return s.fallback.Login(ctx, email, password, deviceInfo)
	}
	return res, err
}

// Provider kinds accepted by NewAuthService.
const (
	ProviderLocal     = "local"
	ProviderFederated = "federated"
)

// NewAuthService selects the variant named by kind. The federated variant is
// always wrapped so a provider outage falls back to local.
func NewAuthService(kind string, local *LocalAuth, idp IdentityProvider) (AuthService, error) {
	switch kind {
	case "", ProviderLocal:
		return local, nil
	case ProviderFederated:
		if idp == nil {
			return nil, errors.New("federated auth requires an identity provider")
		}
		return NewFallbackAuth(NewFederatedAuth(local, idp), local, local.log), nil
	}
	return nil, fmt.Errorf("unknown auth provider %q", kind)
}
