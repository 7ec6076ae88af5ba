package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/mediaprofile/userauth/internal/metrics"
	"github.com/mediaprofile/userauth/internal/models"
)

// UserStore defines the interface for user persistence. Implementations
// return models.ErrUserNotFound and models.ErrUserExists.
type UserStore interface {
	Create(ctx context.Context, u *models.User) (*models.User, error)
	FindByUsernameOrEmail(ctx context.Context, username, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	// UpdateRefreshToken overwrites the single refresh token slot of a user.
	// An empty token clears it.
	UpdateRefreshToken(ctx context.Context, id, token string) error
	UpdatePasswordHash(ctx context.Context, id, hash string) error
}

// MediaFile is an uploaded image staged by the transport layer.
type MediaFile struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// MediaHost stores images and returns their public URL.
type MediaHost interface {
	Upload(ctx context.Context, folder string, f *MediaFile) (string, error)
}

// RegisterInput is everything needed to create a user.
type RegisterInput struct {
	models.RegisterRequest
	Avatar     *MediaFile
	CoverImage *MediaFile
}

// TokenPair bundles a short-lived access token and a long-lived refresh token.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	User *models.User
	TokenPair
}

// Option configures a Service.
type Option func(*Service)

// WithMetrics records lifecycle events on c.
func WithMetrics(c *metrics.Collectors) Option {
	return func(s *Service) { s.metrics = c }
}

// WithSessionRevocationOnPasswordChange makes ChangePassword clear the
// stored refresh token.
func WithSessionRevocationOnPasswordChange(revoke bool) Option {
	return func(s *Service) { s.revokeOnPasswordChange = revoke }
}

// Service owns the session lifecycle: registration, login, refresh token
// rotation, password change and logout. Each user has at most one valid
// refresh token, the one stored on the user record.
type Service struct {
	users   UserStore
	media   MediaHost
	hasher  Hasher
	tokens  *TokenIssuer
	refresh *TokenVerifier
	log     *zap.Logger
	metrics *metrics.Collectors

	revokeOnPasswordChange bool
}

func NewService(users UserStore, media MediaHost, hasher Hasher, tokens *TokenIssuer, log *zap.Logger, opts ...Option) *Service {
	s := &Service{
		users:   users,
		media:   media,
		hasher:  hasher,
		tokens:  tokens,
		refresh: tokens.RefreshVerifier(),
		log:     log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register validates input, uploads the avatar (and cover image when given)
// and creates the user. No user is created when the avatar upload fails.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	u, err := s.register(ctx, in)
	if err != nil {
		s.metrics.Registration(metrics.ResultFailure)
		return nil, err
	}
	s.metrics.Registration(metrics.ResultSuccess)
	return u, nil
}

func (s *Service) register(ctx context.Context, in RegisterInput) (*models.User, error) {
	username := NormalizeIdentifier(in.Username)
	email := NormalizeIdentifier(in.Email)
	fullName := strings.TrimSpace(in.FullName)

	if username == "" || email == "" || fullName == "" || strings.TrimSpace(in.Password) == "" {
		return nil, fmt.Errorf("%w: all fields are required", ErrValidation)
	}
	if !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: email is invalid", ErrValidation)
	}
	if in.Avatar == nil {
		return nil, fmt.Errorf("%w: avatar image is required", ErrValidation)
	}

	log := s.log.With(zap.String("username", username))

	switch _, err := s.users.FindByUsernameOrEmail(ctx, username, email); {
	case err == nil:
		return nil, ErrConflict
	case !errors.Is(err, models.ErrUserNotFound):
		log.Error("lookup before register failed", zap.Error(err))
		return nil, ErrInternal
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		if errors.Is(err, ErrValidation) {
			return nil, err
		}
		log.Error("hash password failed", zap.Error(err))
		return nil, ErrInternal
	}

	avatarURL, err := s.media.Upload(ctx, "avatars", in.Avatar)
	if err != nil {
		log.Warn("avatar upload failed", zap.Error(err))
		return nil, ErrUpstream
	}

	var coverURL string
	if in.CoverImage != nil {
		coverURL, err = s.media.Upload(ctx, "covers", in.CoverImage)
		if err != nil {
			log.Warn("cover image upload failed, continuing without it", zap.Error(err))
			coverURL = ""
		}
	}

	u, err := s.users.Create(ctx, &models.User{
		Username:      username,
		Email:         email,
		FullName:      fullName,
		AvatarURL:     avatarURL,
		CoverImageURL: coverURL,
		PasswordHash:  hash,
	})
	if err != nil {
		if errors.Is(err, models.ErrUserExists) {
			return nil, ErrConflict
		}
		log.Error("create user failed", zap.Error(err))
		return nil, ErrInternal
	}

	log.Info("user registered", zap.String("user_id", u.ID))
	return u, nil
}

// Login verifies credentials and starts a new session, replacing any
// refresh token issued before.
func (s *Service) Login(ctx context.Context, req models.LoginRequest) (*LoginResult, error) {
	res, err := s.login(ctx, req)
	if err != nil {
		s.metrics.Login(metrics.ResultFailure)
		return nil, err
	}
	s.metrics.Login(metrics.ResultSuccess)
	return res, nil
}

func (s *Service) login(ctx context.Context, req models.LoginRequest) (*LoginResult, error) {
	username := NormalizeIdentifier(req.Username)
	email := NormalizeIdentifier(req.Email)
	if username == "" && email == "" {
		return nil, fmt.Errorf("%w: username or email is required", ErrValidation)
	}
	if req.Password == "" {
		return nil, fmt.Errorf("%w: password is required", ErrValidation)
	}

	u, err := s.users.FindByUsernameOrEmail(ctx, username, email)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			return nil, ErrNotFound
		}
		s.log.Error("lookup for login failed", zap.Error(err))
		return nil, ErrInternal
	}

	if !s.hasher.Verify(req.Password, u.PasswordHash) {
		s.log.Info("login rejected: wrong password", zap.String("user_id", u.ID))
		return nil, ErrInvalidCredentials
	}

	pair, err := s.startSession(ctx, u)
	if err != nil {
		return nil, err
	}
	u.RefreshToken = pair.RefreshToken
	return &LoginResult{User: u, TokenPair: *pair}, nil
}

// RefreshSession rotates the presented refresh token. A token that is no
// longer the one stored for its user was superseded and is rejected even if
// it has not expired yet.
func (s *Service) RefreshSession(ctx context.Context, presented string) (*TokenPair, error) {
	if presented == "" {
		s.metrics.Refresh(metrics.ResultFailure)
		return nil, fmt.Errorf("%w: refresh token is missing", ErrUnauthorized)
	}

	claims, err := s.refresh.Verify(presented)
	if err != nil {
		s.metrics.Refresh(metrics.ResultFailure)
		return nil, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}

	log := s.log.With(zap.String("user_id", claims.UserID()))

	u, err := s.users.FindByID(ctx, claims.UserID())
	if err != nil {
		s.metrics.Refresh(metrics.ResultFailure)
		if errors.Is(err, models.ErrUserNotFound) {
			return nil, fmt.Errorf("%w: unknown user", ErrUnauthorized)
		}
		log.Error("lookup for refresh failed", zap.Error(err))
		return nil, ErrInternal
	}

	if subtle.ConstantTimeCompare([]byte(u.RefreshToken), []byte(presented)) != 1 {
		s.metrics.Refresh(metrics.ResultReused)
		log.Warn("refresh token reuse rejected")
		return nil, fmt.Errorf("%w: refresh token is expired or used", ErrUnauthorized)
	}

	pair, err := s.startSession(ctx, u)
	if err != nil {
		s.metrics.Refresh(metrics.ResultFailure)
		return nil, err
	}
	s.metrics.Refresh(metrics.ResultSuccess)
	return pair, nil
}

// ChangePassword replaces the password hash of userID. The confirmation is
// checked before anything is read or written.
func (s *Service) ChangePassword(ctx context.Context, userID string, req models.ChangePasswordRequest) error {
	if req.OldPassword == "" || req.NewPassword == "" {
		return fmt.Errorf("%w: old and new password are required", ErrValidation)
	}
	if req.NewPassword != req.ConfirmNewPassword {
		return ErrPasswordMismatch
	}

	log := s.log.With(zap.String("user_id", userID))

	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			return ErrNotFound
		}
		log.Error("lookup for password change failed", zap.Error(err))
		return ErrInternal
	}

	if !s.hasher.Verify(req.OldPassword, u.PasswordHash) {
		return ErrInvalidCredentials
	}

	hash, err := s.hasher.Hash(req.NewPassword)
	if err != nil {
		if errors.Is(err, ErrValidation) {
			return err
		}
		log.Error("hash password failed", zap.Error(err))
		return ErrInternal
	}
	if err := s.users.UpdatePasswordHash(ctx, userID, hash); err != nil {
		log.Error("update password failed", zap.Error(err))
		return ErrInternal
	}

	if s.revokeOnPasswordChange {
		if err := s.users.UpdateRefreshToken(ctx, userID, ""); err != nil {
			log.Error("revoke session after password change failed", zap.Error(err))
			return ErrInternal
		}
	}

	log.Info("password changed")
	return nil
}

// Logout clears the stored refresh token. Logging out twice is not an error.
func (s *Service) Logout(ctx context.Context, userID string) error {
	err := s.users.UpdateRefreshToken(ctx, userID, "")
	if err != nil && !errors.Is(err, models.ErrUserNotFound) {
		s.log.Error("logout failed", zap.String("user_id", userID), zap.Error(err))
		return ErrInternal
	}
	return nil
}

// CurrentUser returns the user an access token was issued to.
func (s *Service) CurrentUser(ctx context.Context, userID string) (*models.User, error) {
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			return nil, fmt.Errorf("%w: invalid access token", ErrUnauthorized)
		}
		s.log.Error("lookup current user failed", zap.String("user_id", userID), zap.Error(err))
		return nil, ErrInternal
	}
	return u, nil
}

// startSession mints a token pair and stores the refresh token as the only
// valid one for u.
func (s *Service) startSession(ctx context.Context, u *models.User) (*TokenPair, error) {
	log := s.log.With(zap.String("user_id", u.ID))

	access, err := s.tokens.IssueAccessToken(u.ID, Identity{Username: u.Username, Email: u.Email, FullName: u.FullName})
	if err != nil {
		log.Error("issue access token failed", zap.Error(err))
		return nil, ErrInternal
	}
	refresh, err := s.tokens.IssueRefreshToken(u.ID)
	if err != nil {
		log.Error("issue refresh token failed", zap.Error(err))
		return nil, ErrInternal
	}
	if err := s.users.UpdateRefreshToken(ctx, u.ID, refresh); err != nil {
		log.Error("store refresh token failed", zap.Error(err))
		return nil, ErrInternal
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// NormalizeIdentifier canonicalizes usernames and emails for storage and
// lookup.
func NormalizeIdentifier(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
