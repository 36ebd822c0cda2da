package middleware

import (
	"fmt"
	"net/http"

	"github.com/straye-as/invoice-api/internal/config"
)

// SecurityHeaders returns a middleware that adds security headers to responses
func SecurityHeaders(cfg *config.SecurityConfig) func(http.Handler) http.Handler {
	hsts := ""
	if cfg.EnableHSTS {
		hsts = fmt.Sprintf("max-age=%d", cfg.HSTSMaxAge)
		if cfg.HSTSIncludeSubdomains {
			hsts += "; includeSubDomains"
		}
		if cfg.HSTSPreload {
			hsts += "; preload"
		}
	}

	headers := [][2]string{
		{"X-Frame-Options", cfg.FrameOptions},
		{"X-XSS-Protection", cfg.XSSProtection},
		{"Content-Security-Policy", cfg.ContentSecurityPolicy},
		{"Referrer-Policy", cfg.ReferrerPolicy},
		{"Permissions-Policy", cfg.PermissionsPolicy},
		{"Strict-Transport-Security", hsts},
		{"Cache-Control", cfg.CacheControl},
	}
	if cfg.ContentTypeNosniff {
		headers = append(headers, [2]string{"X-Content-Type-Options", "nosniff"})
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			for _, kv := range headers {
				if kv[1] != "" {
					h.Set(kv[0], kv[1])
				}
			}
			h.Del("X-Powered-By")
			h.Del("Server")

			next.ServeHTTP(w, r)
		})
	}
}
