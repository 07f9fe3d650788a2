package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/eventlyze/authflow"
	"github.com/eventlyze/authflow/middleware"
)

// Engine is the subset of [authflow.Engine] the handlers call.
type Engine interface {
	Login(ctx context.Context, identifier, password string) (*authflow.LoginResult, error)
	Refresh(ctx context.Context, refreshToken string) (*authflow.RefreshResult, error)
	Logout(ctx context.Context, refreshToken string) error
	ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error
	ForgotPassword(ctx context.Context, identifier string) error
	ResetPassword(ctx context.Context, resetToken, newPassword string) error
	ValidateAccess(ctx context.Context, accessToken string) (*authflow.Principal, error)
}

// Config configures [New].
type Config struct {
	// Prefix is prepended to every route. Default /api/v1/auth.
	Prefix string
	Cookie CookieConfig
	// TrustedIPHeader names a proxy header carrying the client address.
	// Empty means RemoteAddr.
	TrustedIPHeader string
	Logger          *slog.Logger
}

// Handler serves the auth routes.
type Handler struct {
	engine Engine
	cfg    Config
	logger *slog.Logger
}

// New returns a Handler for engine. Zero Config fields take defaults.
func New(engine Engine, cfg Config) *Handler {
	if cfg.Prefix == "" {
		cfg.Prefix = "/api/v1/auth"
	}
	cfg.Prefix = "/" + strings.Trim(cfg.Prefix, "/")
	if cfg.Cookie.Name == "" {
		defaults := DefaultCookieConfig()
		defaults.Path = cfg.Prefix
		cfg.Cookie = defaults
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{engine: engine, cfg: cfg, logger: logger}
}

// Routes returns the router. Every route records the client IP first.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	p := h.cfg.Prefix

	mux.HandleFunc("POST "+p+"/login", h.login)
	mux.HandleFunc("POST "+p+"/refresh-token", h.refresh)
	mux.Handle("POST "+p+"/change-password", middleware.GuardWith(h.engine, h.fail)(http.HandlerFunc(h.changePassword)))
	mux.HandleFunc("POST "+p+"/forgot-password", h.forgotPassword)
	mux.HandleFunc("POST "+p+"/reset-password", h.resetPassword)
	mux.HandleFunc("POST "+p+"/logout", h.logout)

	return middleware.ClientIP(h.cfg.TrustedIPHeader)(mux)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginData struct {
	AccessToken        string `json:"accessToken"`
	NeedPasswordChange bool   `json:"needPasswordChange"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if err := decodeBody(w, r, &body); err != nil {
		h.fail(w, r, err)
		return
	}

	res, err := h.engine.Login(r.Context(), body.Email, body.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.cfg.Cookie.set(w, res.RefreshToken, res.RefreshExpiresAt)
	writeOK(w, "Logged in successfully", loginData{
		AccessToken:        res.AccessToken,
		NeedPasswordChange: res.NeedPasswordChange,
	})
}

type refreshData struct {
	AccessToken string `json:"accessToken"`
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	res, err := h.engine.Refresh(r.Context(), h.cfg.Cookie.read(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeOK(w, "Access token generated successfully", refreshData{AccessToken: res.AccessToken})
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

func (h *Handler) changePassword(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		h.fail(w, r, authflow.ErrUnauthorized)
		return
	}

	var body changePasswordRequest
	if err := decodeBody(w, r, &body); err != nil {
		h.fail(w, r, err)
		return
	}

	if err := h.engine.ChangePassword(r.Context(), principal.UserID, body.OldPassword, body.NewPassword); err != nil {
		h.fail(w, r, err)
		return
	}
	writeOK(w, "Password changed successfully", nil)
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

func (h *Handler) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var body forgotPasswordRequest
	if err := decodeBody(w, r, &body); err != nil {
		h.fail(w, r, err)
		return
	}

	if err := h.engine.ForgotPassword(r.Context(), body.Email); err != nil {
		h.fail(w, r, err)
		return
	}
	writeOK(w, "Check your email", nil)
}

type resetPasswordRequest struct {
	Password string `json:"password"`
}

func (h *Handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	var body resetPasswordRequest
	if err := decodeBody(w, r, &body); err != nil {
		h.fail(w, r, err)
		return
	}

	if err := h.engine.ResetPassword(r.Context(), resetToken(r), body.Password); err != nil {
		h.fail(w, r, err)
		return
	}
	writeOK(w, "Password reset successfully", nil)
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Logout(r.Context(), h.cfg.Cookie.read(r)); err != nil {
		h.fail(w, r, err)
		return
	}
	h.cfg.Cookie.clear(w)
	writeOK(w, "Logged out successfully", nil)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "auth request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"error", err,
		)
	}
	writeFailure(w, status, publicMessage(err, status))
}

// resetToken accepts the token bare or with a Bearer scheme.
func resetToken(r *http.Request) string {
	v := strings.TrimSpace(r.Header.Get("Authorization"))
	const bearer = "bearer "
	if len(v) >= len(bearer) && strings.EqualFold(v[:len(bearer)], bearer) {
		v = strings.TrimSpace(v[len(bearer):])
	}
	return v
}
