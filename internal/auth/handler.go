package auth

import (
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mediaprofile/userauth/internal/api"
	"github.com/mediaprofile/userauth/internal/models"
)

// SessionService is the session lifecycle as seen by the HTTP layer.
type SessionService interface {
	Register(ctx context.Context, in RegisterInput) (*models.User, error)
	Login(ctx context.Context, req models.LoginRequest) (*LoginResult, error)
	RefreshSession(ctx context.Context, refreshToken string) (*TokenPair, error)
	ChangePassword(ctx context.Context, userID string, req models.ChangePasswordRequest) error
	Logout(ctx context.Context, userID string) error
	CurrentUser(ctx context.Context, userID string) (*models.User, error)
}

// Handler holds the user HTTP handlers and carries tokens in cookies.
type Handler struct {
	svc            SessionService
	cookies        CookiePolicy
	accessTTL      time.Duration
	refreshTTL     time.Duration
	maxUploadBytes int64
	log            *zap.Logger
}

// HandlerConfig configures the transport details of a Handler.
type HandlerConfig struct {
	Cookies        CookiePolicy
	Tokens         *TokenIssuer
	MaxUploadBytes int64
}

func NewHandler(svc SessionService, cfg HandlerConfig, log *zap.Logger) *Handler {
	limit := cfg.MaxUploadBytes
	if limit <= 0 {
		limit = 10 << 20
	}
	return &Handler{
		svc:            svc,
		cookies:        cfg.Cookies,
		accessTTL:      cfg.Tokens.AccessTTL(),
		refreshTTL:     cfg.Tokens.RefreshTTL(),
		maxUploadBytes: limit,
		log:            log,
	}
}

// Routes mounts the public and authenticated user endpoints. requireAuth
// guards the endpoints that act on the current user.
// limit throttles the credential endpoints and may be nil.
func (h *Handler) Routes(requireAuth func(http.Handler) http.Handler, limit func(http.Handler) http.Handler) chi.Router {
	if limit == nil {
		limit = func(next http.Handler) http.Handler { return next }
	}
	r := chi.NewRouter()
	r.Post("/register", h.Register)
	r.With(limit).Post("/login", h.Login)
	r.With(limit).Post("/refresh-token", h.Refresh)

	r.Group(func(r chi.Router) {
		r.Use(requireAuth)
		r.Post("/logout", h.Logout)
		r.Post("/change-password", h.ChangePassword)
		r.Get("/current-user", h.CurrentUser)
	})
	return r
}

// Register creates a new user from a multipart form with an avatar file and
// an optional cover image.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			h.log.Warn("remove staged uploads", zap.Error(err))
		}
	}()

	in := RegisterInput{
		RegisterRequest: models.RegisterRequest{
			Username: r.FormValue("username"),
			Email:    r.FormValue("email"),
			FullName: r.FormValue("fullName"),
			Password: r.FormValue("password"),
		},
	}

	avatar, closeAvatar, err := formFile(r, "avatar")
	if err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid avatar upload")
		return
	}
	defer closeAvatar()
	in.Avatar = avatar

	cover, closeCover, err := formFile(r, "coverImage")
	if err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid cover image upload")
		return
	}
	defer closeCover()
	in.CoverImage = cover

	u, err := h.svc.Register(r.Context(), in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	api.JSON(w, http.StatusCreated, u.Public(), "User registered successfully")
}

// Login authenticates a user, sets both token cookies and returns the tokens
// in the body for clients that do not keep cookies.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := h.svc.Login(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.setTokens(w, res.TokenPair)
	api.JSON(w, http.StatusOK, map[string]any{
		"user":         res.User.Public(),
		"accessToken":  res.AccessToken,
		"refreshToken": res.RefreshToken,
	}, "User logged in successfully")
}

// Refresh rotates the refresh token taken from the cookie or, failing that,
// from the JSON body.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var token string
	if c, err := r.Cookie(RefreshTokenCookie); err == nil {
		token = c.Value
	}
	if token == "" && r.ContentLength != 0 {
		var req models.RefreshRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
			token = req.RefreshToken
		}
	}

	pair, err := h.svc.RefreshSession(r.Context(), token)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.setTokens(w, *pair)
	api.JSON(w, http.StatusOK, pair, "Access token refreshed")
}

// Logout ends the current session and clears both cookies.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Logout(r.Context(), UserIDFromContext(r.Context())); err != nil {
		h.writeError(w, err)
		return
	}
	h.cookies.ClearTokens(w)
	api.JSON(w, http.StatusOK, map[string]any{}, "User logged out")
}

// ChangePassword replaces the current user's password.
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req models.ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.svc.ChangePassword(r.Context(), UserIDFromContext(r.Context()), req); err != nil {
		h.writeError(w, err)
		return
	}
	api.JSON(w, http.StatusOK, map[string]any{}, "Password changed successfully")
}

// CurrentUser returns the authenticated user.
func (h *Handler) CurrentUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.svc.CurrentUser(r.Context(), UserIDFromContext(r.Context()))
	if err != nil {
		h.writeError(w, err)
		return
	}
	api.JSON(w, http.StatusOK, u.Public(), "Current user fetched successfully")
}

func (h *Handler) setTokens(w http.ResponseWriter, pair TokenPair) {
	h.cookies.SetTokens(w, pair, h.accessTTL, h.refreshTTL)
}

// writeError maps the session error taxonomy to a status and a message.
// Unauthorized failures share one message whatever the cause.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrValidation):
		api.Fail(w, http.StatusBadRequest, ErrValidation.Error(), err.Error())
	case errors.Is(err, ErrPasswordMismatch):
		api.Fail(w, http.StatusBadRequest, ErrPasswordMismatch.Error())
	case errors.Is(err, ErrConflict):
		api.Fail(w, http.StatusConflict, ErrConflict.Error())
	case errors.Is(err, ErrNotFound):
		api.Fail(w, http.StatusNotFound, ErrNotFound.Error())
	case errors.Is(err, ErrInvalidCredentials):
		api.Fail(w, http.StatusUnauthorized, ErrInvalidCredentials.Error())
	case errors.Is(err, ErrUnauthorized):
		h.log.Debug("request unauthorized", zap.Error(err))
		api.Fail(w, http.StatusUnauthorized, ErrUnauthorized.Error())
	case errors.Is(err, ErrUpstream):
		api.Fail(w, http.StatusBadGateway, ErrUpstream.Error())
	default:
		api.Fail(w, http.StatusInternalServerError, "something went wrong")
	}
}

// formFile returns the named file part, or nil when it is absent.
func formFile(r *http.Request, field string) (*MediaFile, func(), error) {
	f, hdr, err := r.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, func() {}, nil
		}
		return nil, func() {}, err
	}
	return &MediaFile{
		Name:        hdr.Filename,
		ContentType: contentType(hdr),
		Size:        hdr.Size,
		Body:        f,
	}, func() { _ = f.Close() }, nil
}

func contentType(hdr *multipart.FileHeader) string {
	if ct := hdr.Header.Get("Content-Type"); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
