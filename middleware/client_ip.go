package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/eventlyze/authflow"
)

// ClientIP records the caller address with [authflow.WithClientIP] so rate
// limiting and audit events can use it.
//
// When trustedHeader is set (for example "X-Forwarded-For" behind a proxy
// you control), its first entry wins. Otherwise RemoteAddr is used.
func ClientIP(trustedHeader string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := remoteIP(r.RemoteAddr)
			if trustedHeader != "" {
				if forwarded := r.Header.Get(trustedHeader); forwarded != "" {
					first, _, _ := strings.Cut(forwarded, ",")
					if parsed := net.ParseIP(strings.TrimSpace(first)); parsed != nil {
						ip = parsed.String()
					}
				}
			}
			if ip != "" {
				r = r.WithContext(authflow.WithClientIP(r.Context(), ip))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func remoteIP(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	if parsed := net.ParseIP(host); parsed != nil {
		return parsed.String()
	}
	return ""
}
