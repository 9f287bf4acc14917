// Package service implements the auth service: a local variant backed by the
// JSON stores, a federated variant that authenticates against an external
// identity provider, and a wrapper that falls back to the local variant when
// the provider is unreachable.
package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/kurosawa-kuro/fullstack-openapi-js-poc/internal/apperr"
	"github.com/kurosawa-kuro/fullstack-openapi-js-poc/internal/model"
	"github.com/kurosawa-kuro/fullstack-openapi-js-poc/internal/repository"
	"github.com/kurosawa-kuro/fullstack-openapi-js-poc/internal/utils"
)

// ForgotPasswordMessage is returned by ForgotPassword whether or not the
// address is registered.
const ForgotPasswordMessage = "If an account exists for that email, a password reset link has been sent."

// AuthResult is the data of a successful register or login.
type AuthResult struct {
	User   model.PublicUser `json:"user"`
	Tokens model.Tokens     `json:"tokens"`
}

// AuthService is the contract shared by every auth variant.
type AuthService interface {
	Register(ctx context.Context, name, email, password, deviceInfo string) (AuthResult, error)
	Login(ctx context.Context, email, password, deviceInfo string) (AuthResult, error)
	Logout(ctx context.Context, accessToken string) error
	GetUserByID(ctx context.Context, id uint64) (model.PublicUser, error)
	GetUserByEmail(ctx context.Context, email string) (model.PublicUser, error)
	GetUserFromToken(ctx context.Context, accessToken string) (model.PublicUser, error)
	ChangePassword(ctx context.Context, userID uint64, currentPassword, newPassword string) error
	ForgotPassword(ctx context.Context, email string) (string, error)
	ResetPassword(ctx context.Context, resetToken, newPassword string) error
	RefreshAccessToken(ctx context.Context, refreshToken string) (model.Tokens, error)
	HasRole(user model.PublicUser, required model.Role) bool

	LogoutAll(ctx context.Context, userID uint64) (int, error)
	RevokeRefreshToken(ctx context.Context, refreshToken string) error
	SetRoles(ctx context.Context, userID uint64, roles []model.Role) (model.PublicUser, error)
}

// Stores groups the repositories the local variant works against.
type Stores struct {
	Users     *repository.UserRepo
	Refresh   *repository.TokenRepo
	Blacklist *repository.BlacklistRepo
	Resets    *repository.ResetRepo
}

// LocalAuth authenticates against the local credential store.
type LocalAuth struct {
	stores   Stores
	codec    *utils.TokenCodec
	hasher   *utils.PasswordHasher
	notifier Notifier
	resetTTL time.Duration
	log      *zap.Logger
}

// NewLocalAuth wires the local variant. A nil notifier or logger is replaced
// by a no-op.
func NewLocalAuth(stores Stores, codec *utils.TokenCodec, hasher *utils.PasswordHasher,
	notifier Notifier, resetTTL time.Duration, log *zap.Logger) *LocalAuth {
	if log == nil {
		log = zap.NewNop()
	}
	if notifier == nil {
		notifier = LogNotifier{Log: log}
	}
	if resetTTL <= 0 {
		resetTTL = repository.DefaultResetTTL
	}
	return &LocalAuth{
		stores:   stores,
		codec:    codec,
		hasher:   hasher,
		notifier: notifier,
		resetTTL: resetTTL,
		log:      log,
	}
}

func (s *LocalAuth) Register(ctx context.Context, name, email, password, deviceInfo string) (AuthResult, error) {
	hash, err := s.hashPassword(ctx, password)
	if err != nil {
		return AuthResult{}, err
	}
	u, err := s.stores.Users.Create(ctx, name, email, hash, []model.Role{model.RoleUser})
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

// Login fails with ErrInvalidCredentials for an unknown email and for a wrong
// password alike. Both paths run one bcrypt comparison.
func (s *LocalAuth) Login(ctx context.Context, email, password, deviceInfo string) (AuthResult, error) {
	u, err := s.stores.Users.GetByEmail(ctx, email)
	if errors.Is(err, apperr.ErrNotFound) {
		s.hasher.Burn(ctx, password)
		return AuthResult{}, apperr.ErrInvalidCredentials
	}
	if err != nil {
		return AuthResult{}, err
	}
	ok, err := s.hasher.Verify(ctx, u.PasswordHash, password)
	if err != nil {
		s.log.Warn("password compare failed", zap.Uint64("user_id", u.ID), zap.Error(err))
		return AuthResult{}, apperr.ErrInvalidCredentials
	}
	if !ok {
		return AuthResult{}, apperr.ErrInvalidCredentials
	}
	return s.issue(ctx, u, deviceInfo)
}

// Logout blacklists the access token. Only tokens carrying this service's
// signature that have not yet expired are written; anything else is already
// rejected by verification. It always returns nil; a failed write is only
// logged.
func (s *LocalAuth) Logout(ctx context.Context, accessToken string) error {
	exp, ok := s.codec.Authentic(accessToken)
	if !ok {
		s.log.Debug("logout: token not signed by this service, nothing to revoke")
		return nil
	}
	if !exp.IsZero() && !exp.After(s.stores.Blacklist.Now()) {
		return nil
	}
	if _, err := s.stores.Blacklist.Add(ctx, accessToken, "logout", nil); err != nil {
		s.log.Error("logout: blacklist write failed", zap.Error(err))
	}
	return nil
}

func (s *LocalAuth) GetUserByID(ctx context.Context, id uint64) (model.PublicUser, error) {
	u, err := s.stores.Users.GetByID(ctx, id)
	if err != nil {
		return model.PublicUser{}, err
	}
	return u.Public(), nil
}

func (s *LocalAuth) GetUserByEmail(ctx context.Context, email string) (model.PublicUser, error) {
	u, err := s.stores.Users.GetByEmail(ctx, email)
	if err != nil {
		return model.PublicUser{}, err
	}
	return u.Public(), nil
}

// GetUserFromToken resolves an access token to its user. Every failure,
// including a blacklisted token, a failed blacklist lookup and a deleted
// user, is reported as ErrInvalidToken.
func (s *LocalAuth) GetUserFromToken(ctx context.Context, accessToken string) (model.PublicUser, error) {
	claims, err := s.codec.Verify(accessToken)
	if err != nil {
		return model.PublicUser{}, apperr.Wrap(apperr.CodeInvalidToken, apperr.ErrInvalidToken.Message, err)
	}
	listed, err := s.stores.Blacklist.IsBlacklisted(ctx, accessToken)
	if err != nil {
		s.log.Error("blacklist lookup failed, rejecting token", zap.Error(err))
	}
	if listed {
		return model.PublicUser{}, apperr.ErrInvalidToken
	}
	id, _ := claims.UserID()
	u, err := s.stores.Users.GetByID(ctx, id)
	if errors.Is(err, apperr.ErrNotFound) {
		return model.PublicUser{}, apperr.ErrInvalidToken
	}
	if err != nil {
		return model.PublicUser{}, err
	}
	return u.Public(), nil
}

func (s *LocalAuth) ChangePassword(ctx context.Context, userID uint64, currentPassword, newPassword string) error {
	u, err := s.stores.Users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	ok, err := s.hasher.Verify(ctx, u.PasswordHash, currentPassword)
	if err != nil || !ok {
		return apperr.ErrInvalidCurrentPassword
	}
	hash, err := s.hashPassword(ctx, newPassword)
	if err != nil {
		return err
	}
	if err := s.stores.Users.UpdatePasswordHash(ctx, u.ID, hash); err != nil {
		return err
	}
	if !s.notifier.SendPasswordChangeConfirmation(ctx, u.Email, u.Name) {
		s.log.Warn("password change email not sent", zap.Uint64("user_id", u.ID))
	}
	return nil
}

// ForgotPassword returns ForgotPasswordMessage for any address. Known users
// get a fresh reset token by email; failures past the lookup are logged only.
func (s *LocalAuth) ForgotPassword(ctx context.Context, email string) (string, error) {
	u, err := s.stores.Users.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, apperr.ErrNotFound) {
			s.log.Error("forgot password: user lookup failed", zap.Error(err))
		}
		return ForgotPasswordMessage, nil
	}
	raw, _, err := s.stores.Resets.Create(ctx, u.ID, s.resetTTL)
	if err != nil {
		s.log.Error("forgot password: reset token not stored", zap.Uint64("user_id", u.ID), zap.Error(err))
		return ForgotPasswordMessage, nil
	}
	if !s.notifier.SendPasswordResetEmail(ctx, u.Email, raw, u.Name) {
		s.log.Warn("password reset email not sent", zap.Uint64("user_id", u.ID))
	}
	return ForgotPasswordMessage, nil
}

// ResetPassword consumes the reset token, stores the new password and revokes
// every refresh token of the user.
func (s *LocalAuth) ResetPassword(ctx context.Context, resetToken, newPassword string) error {
	rec, err := s.stores.Resets.FindByToken(ctx, resetToken)
	if errors.Is(err, apperr.ErrNotFound) {
		return apperr.ErrInvalidResetToken
	}
	if err != nil {
		return err
	}
	u, err := s.stores.Users.GetByID(ctx, rec.UserID)
	if errors.Is(err, apperr.ErrNotFound) {
		return apperr.ErrInvalidResetToken
	}
	if err != nil {
		return err
	}
	hash, err := s.hashPassword(ctx, newPassword)
	if err != nil {
		return err
	}
	// The token is consumed before the password changes so a concurrent
	// request with the same token cannot apply a second password. If the
	// password write then fails the token stays burned and the user has to
	// request a new one.
	consumed, err := s.stores.Resets.MarkUsed(ctx, resetToken)
	if err != nil {
		return err
	}
	if !consumed {
		return apperr.ErrInvalidResetToken
	}
	if err := s.stores.Users.UpdatePasswordHash(ctx, u.ID, hash); err != nil {
		return err
	}
	// The password is already changed, so a failed revocation is only logged.
	n, err := s.stores.Refresh.DeleteByUserID(ctx, u.ID)
	if err != nil {
		s.log.Error("password reset: refresh tokens not revoked", zap.Uint64("user_id", u.ID), zap.Error(err))
	} else {
		s.log.Info("password reset", zap.Uint64("user_id", u.ID), zap.Int("revoked_refresh_tokens", n))
	}
	if !s.notifier.SendPasswordChangeConfirmation(ctx, u.Email, u.Name) {
		s.log.Warn("password change email not sent", zap.Uint64("user_id", u.ID))
	}
	return nil
}

// RefreshAccessToken mints a new access token. The refresh token itself is
// not rotated and is echoed back unchanged.
func (s *LocalAuth) RefreshAccessToken(ctx context.Context, refreshToken string) (model.Tokens, error) {
	rec, err := s.stores.Refresh.FindByToken(ctx, refreshToken)
	if errors.Is(err, apperr.ErrNotFound) {
		return model.Tokens{}, apperr.ErrInvalidRefreshToken
	}
	if err != nil {
		return model.Tokens{}, err
	}
	u, err := s.stores.Users.GetByID(ctx, rec.UserID)
	if errors.Is(err, apperr.ErrNotFound) {
		return model.Tokens{}, apperr.ErrInvalidRefreshToken
	}
	if err != nil {
		return model.Tokens{}, err
	}
	if err := s.stores.Refresh.Touch(ctx, refreshToken); err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return model.Tokens{}, err
	}
	at, err := s.codec.Issue(u)
	if err != nil {
		return model.Tokens{}, apperr.Wrap(apperr.CodeInternal, "issue access token", err)
	}
	return model.Tokens{
		AccessToken:  at.Token,
		TokenType:    model.TokenTypeBearer,
		ExpiresIn:    at.ExpiresIn,
		RefreshToken: refreshToken,
	}, nil
}

// HasRole reports whether any role of user dominates required.
func (s *LocalAuth) HasRole(user model.PublicUser, required model.Role) bool {
	return HasRole(user, required)
}

// HasRole is the role hierarchy check shared by every variant.
func HasRole(user model.PublicUser, required model.Role) bool {
	for _, r := range user.Roles {
		if r.Dominates(required) {
			return true
		}
	}
	return false
}

// LogoutAll revokes every refresh token of userID.
func (s *LocalAuth) LogoutAll(ctx context.Context, userID uint64) (int, error) {
	return s.stores.Refresh.DeleteByUserID(ctx, userID)
}

// RevokeRefreshToken signs out the device holding refreshToken.
func (s *LocalAuth) RevokeRefreshToken(ctx context.Context, refreshToken string) error {
	ok, err := s.stores.Refresh.DeleteByToken(ctx, refreshToken)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.ErrInvalidRefreshToken
	}
	return nil
}

func (s *LocalAuth) SetRoles(ctx context.Context, userID uint64, roles []model.Role) (model.PublicUser, error) {
	if len(roles) == 0 {
		return model.PublicUser{}, apperr.Validation("roles must not be empty")
	}
	for _, r := range roles {
		if !r.Valid() {
			return model.PublicUser{}, apperr.Validation("unknown role " + string(r))
		}
	}
	u, err := s.stores.Users.UpdateRoles(ctx, userID, roles)
	if err != nil {
		return model.PublicUser{}, err
	}
	return u.Public(), nil
}

// issue mints an access token and a new refresh token for u.
// hashPassword keeps validation errors from the hasher and reports anything
// else as internal.
func (s *LocalAuth) hashPassword(ctx context.Context, password string) (string, error) {
	hash, err := s.hasher.Hash(ctx, password)
	if apperr.CodeOf(err) == apperr.CodeValidation {
		return "", err
	}
	if err != nil {
		return "", apperr.Wrap(apperr.CodeInternal, "hash password", err)
	}
	return hash, nil
}

func (s *LocalAuth) issue(ctx context.Context, u model.User, deviceInfo string) (AuthResult, error) {
	at, err := s.codec.Issue(u)
	if err != nil {
		return AuthResult{}, apperr.Wrap(apperr.CodeInternal, "issue access token", err)
	}
	raw, _, err := s.stores.Refresh.Create(ctx, u.ID, deviceInfo)
	if err != nil {
		return AuthResult{}, err
	}
	return AuthResult{
		User: u.Public(),
		Tokens: model.Tokens{
			AccessToken:  at.Token,
			TokenType:    model.TokenTypeBearer,
			ExpiresIn:    at.ExpiresIn,
			RefreshToken: raw,
		},
	}, nil
}
