package handlers

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"nexor/config"
	"nexor/utils"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// ContextKey is a custom type for context keys to avoid collisions.
type ContextKey string

const (
	VisitorKey   ContextKey = "visitorID"
	CSRFTokenKey ContextKey = "csrfToken"

	visitorCookie = "nexor_id"
	csrfCookie    = "csrf_token"
	userIDKey     = "userID"
)

// csrfExempt lists routes called server to server without a browser cookie.
// They authenticate with their own token instead.
var csrfExempt = map[string]bool{
	"/api/contacts": true,
}

// Wrap applies the outer middleware chain that runs before routing.
func Wrap(handler http.Handler, publicStorageURL string) http.Handler {
	return VisitorMiddleware(CSRFMiddleware(NewSecurityHeadersMiddleware(publicStorageURL)(handler)))
}

// CSRFMiddleware protects against Cross-Site Request Forgery attacks.
func CSRFMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(csrfCookie)
		var csrfToken string

		if err != nil || cookie.Value == "" {
			csrfToken = uuid.New().String()
			http.SetCookie(w, &http.Cookie{
				Name:     csrfCookie,
				Value:    csrfToken,
				Path:     "/",
				HttpOnly: true,
				Secure:   r.TLS != nil,
				SameSite: http.SameSiteLaxMode,
			})
		} else {
			csrfToken = cookie.Value
		}

		if isUnsafeMethod(r.Method) && !csrfExempt[r.URL.Path] {
			token := r.Header.Get("X-CSRF-Token")
			if token == "" && !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
				token = r.FormValue("csrf_token")
			}
			if subtle.ConstantTimeCompare([]byte(token), []byte(csrfToken)) != 1 {
				http.Error(w, "Invalid CSRF token", http.StatusForbidden)
				return
			}
		}

		ctx := context.WithValue(r.Context(), CSRFTokenKey, csrfToken)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func isUnsafeMethod(m string) bool {
	return m == http.MethodPost || m == http.MethodPut || m == http.MethodPatch || m == http.MethodDelete
}

// VisitorMiddleware ensures every visitor has a persistent unique identifier
// cookie. The chatbot keys conversations on it.
func VisitorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(visitorCookie)
		var visitorID string
		if err != nil || uuid.Validate(cookie.Value) != nil {
			visitorID = uuid.New().String()
			http.SetCookie(w, &http.Cookie{
				Name:     visitorCookie,
				Value:    visitorID,
				Path:     "/",
				Expires:  utils.GetTime().Add(365 * 24 * time.Hour),
				HttpOnly: true,
				Secure:   r.TLS != nil,
				SameSite: http.SameSiteLaxMode,
			})
		} else {
			visitorID = cookie.Value
		}

		ctx := context.WithValue(r.Context(), VisitorKey, visitorID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func visitorID(r *http.Request) string {
	id, _ := r.Context().Value(VisitorKey).(string)
	return id
}

// NewSecurityHeadersMiddleware sets conservative browser security headers.
// Images may also come from the object storage public URL.
func NewSecurityHeadersMiddleware(publicStorageURL string) func(http.Handler) http.Handler {
	imgSrc := "'self' data:"
	if publicStorageURL != "" {
		imgSrc += " " + publicStorageURL
	}
	csp := "default-src 'self'; img-src " + imgSrc + "; object-src 'none'; frame-ancestors 'none'"
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("Content-Security-Policy", csp)
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "same-origin")
			next.ServeHTTP(w, r)
		})
	}
}

// NewStructuredLogger logs one line per request through slog.
func NewStructuredLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Info("request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"bytes", ww.BytesWritten(),
					"duration", time.Since(start),
					"request_id", middleware.GetReqID(r.Context()),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

// RequireLAN restricts access to a handler to private or loopback IP addresses.
func RequireLAN(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !utils.IsLAN(r) {
			http.Error(w, "Forbidden: Admin access restricted to LAN", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RateLimit rejects clients that exceed their per-IP budget for scope. Each
// scope has its own bucket, so chatting never eats into the login budget.
func RateLimit(app App, scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := utils.GetIPAddress(r)
			if !app.RateLimiter().Allow(scope + "|" + ip) {
				app.Logger().Warn("Rate limit exceeded", "scope", scope, "ip_hash", utils.HashIP(ip), "path", r.URL.Path)
				respondError(w, http.StatusTooManyRequests, "Rate limit exceeded. Please wait a moment.", app)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireIntakeToken only admits requests carrying the submitter's shared
// token. An empty token admits nobody.
func RequireIntakeToken(app App) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			want := app.Contacts().Token
			got := r.Header.Get(config.IntakeTokenHeader)
			if want == "" || subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
				app.Logger().Warn("Rejected contact intake", "ip_hash", utils.HashIP(utils.GetIPAddress(r)))
				respondError(w, http.StatusUnauthorized, "Invalid intake token.", app)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireUser rejects requests without a logged-in forum session.
func RequireUser(app App) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if currentUserID(r, app) == 0 {
				respondError(w, http.StatusUnauthorized, "Login required.", app)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin rejects requests whose session user is not a forum admin.
func RequireAdmin(app App) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := currentUser(r, app)
			if user == nil {
				respondError(w, http.StatusUnauthorized, "Login required.", app)
				return
			}
			if !user.IsAdmin {
				respondError(w, http.StatusForbidden, "Admin access required.", app)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AccessLogMiddleware records every routed request in the access_logs table
// for the admin panel.
func AccessLogMiddleware(app App) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r)
			ip := utils.GetIPAddress(r)
			if err := app.DB().LogAccess(ip, r.UserAgent(), r.URL.Path, currentUserID(r, app)); err != nil {
				app.Logger().Error("Failed to record access log", "path", r.URL.Path, "error", err)
			}
		})
	}
}
