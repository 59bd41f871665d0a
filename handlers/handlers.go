// nexor/handlers/handlers.go

package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"nexor/chatbot"
	"nexor/config"
	"nexor/contact"
	"nexor/database"
	"nexor/models"

	"github.com/alexedwards/scs/v2"
	"github.com/go-chi/chi/v5"
)

// App is an interface that defines the dependencies our handlers need.
type App interface {
	DB() *database.DatabaseService
	RateLimiter() *models.RateLimiter
	Logger() *slog.Logger
	Chat() *chatbot.Sessions
	Contacts() *contact.Submitter
	Fallback() *contact.FallbackStore
	Sessions() *scs.SessionManager
	Storage() models.StorageService
}

// maxJSONBody bounds every JSON request body we decode.
const maxJSONBody = 64 << 10

// respondJSON sends a JSON response with a given status code.
func respondJSON(w http.ResponseWriter, status int, payload interface{}, app App) {
	response, err := json.Marshal(payload)
	if err != nil {
		app.Logger().Error("Failed to marshal JSON payload", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		if _, werr := w.Write([]byte(`{"error":"Failed to marshal JSON response"}`)); werr != nil {
			app.Logger().Error("Failed to write internal server error response", "error", werr)
		}
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(response); err != nil {
		app.Logger().Error("Failed to write JSON response", "error", err)
	}
}

// respondError sends {"error": msg}.
func respondError(w http.ResponseWriter, status int, msg string, app App) {
	respondJSON(w, status, map[string]string{"error": msg}, app)
}

// decodeJSON reads a bounded JSON body into dst.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return errors.New("malformed JSON body")
	}
	return nil
}

// MakeHandler adapts a handler that needs the App to an http.HandlerFunc.
func MakeHandler(app App, fn func(http.ResponseWriter, *http.Request, App)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fn(w, r, app)
	}
}

// idParam parses a positive int64 URL parameter.
func idParam(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id, err == nil && id > 0
}

// HandleHealth reports liveness and the running version.
func HandleHealth(w http.ResponseWriter, r *http.Request, app App) {
	if err := app.DB().DB.PingContext(r.Context()); err != nil {
		app.Logger().With("handler", "HandleHealth").Error("Database ping failed", "error", err)
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"}, app)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": config.AppVersion}, app)
}
