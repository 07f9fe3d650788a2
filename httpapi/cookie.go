package httpapi

import (
	"net/http"
	"time"
)

// CookieConfig controls the refresh token cookie. HttpOnly is always set.
type CookieConfig struct {
	Name     string
	Path     string
	Domain   string
	Secure   bool
	SameSite http.SameSite
}

// DefaultCookieConfig returns a Secure, SameSite=Strict cookie named
// refreshToken scoped to the auth routes.
func DefaultCookieConfig() CookieConfig {
	return CookieConfig{
		Name:     "refreshToken",
		Path:     "/api/v1/auth",
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	}
}

func (c CookieConfig) set(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.Name,
		Value:    token,
		Path:     c.Path,
		Domain:   c.Domain,
		Expires:  expires,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: c.SameSite,
	})
}

func (c CookieConfig) clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.Name,
		Value:    "",
		Path:     c.Path,
		Domain:   c.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: c.SameSite,
	})
}

func (c CookieConfig) read(r *http.Request) string {
	cookie, err := r.Cookie(c.Name)
	if err != nil {
		return ""
	}
	return cookie.Value
}
