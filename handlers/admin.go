package handlers

import (
	"errors"
	"net/http"
	"strings"

	"nexor/config"
	"nexor/database"
	"nexor/models"
	"nexor/utils"

	"github.com/go-chi/chi/v5"
)

func HandleDashboard(w http.ResponseWriter, r *http.Request, app App) {
	stats, err := app.DB().DashboardStats(config.OnlineWindow)
	if err != nil {
		app.Logger().With("handler", "HandleDashboard").Error("Failed to compute dashboard stats", "error", err)
		respondError(w, http.StatusInternalServerError, "Database error", app)
		return
	}
	respondJSON(w, http.StatusOK, stats, app)
}

func HandleContactsList(w http.ResponseWriter, r *http.Request, app App) {
	contacts, err := app.DB().ListContacts()
	if err != nil {
		app.Logger().With("handler", "HandleContactsList").Error("Failed to list contacts", "error", err)
		respondError(w, http.StatusInternalServerError, "Database error", app)
		return
	}
	if contacts == nil {
		contacts = []models.Contact{}
	}
	respondJSON(w, http.StatusOK, contacts, app)
}

type respondRequest struct {
	Response string `json:"response"`
}

func HandleRespondContact(w http.ResponseWriter, r *http.Request, app App) {
	logger := app.Logger().With("handler", "HandleRespondContact")
	contactID, ok := idParam(r, "contactID")
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid contact ID.", app)
		return
	}
	var req respondRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error(), app)
		return
	}
	req.Response = strings.TrimSpace(req.Response)
	if req.Response == "" {
		respondError(w, http.StatusBadRequest, "Response cannot be empty.", app)
		return
	}

	err := app.DB().RespondContact(contactID, req.Response)
	if errors.Is(err, database.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Contact not found.", app)
		return
	}
	if err != nil {
		logger.Error("Failed to respond to contact", "contact_id", contactID, "error", err)
		respondError(w, http.StatusInternalServerError, "Database error", app)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true}, app)
}

func HandleAccessLogs(w http.ResponseWriter, r *http.Request, app App) {
	summary, err := app.DB().AccessLogSummary()
	if err != nil {
		app.Logger().With("handler", "HandleAccessLogs").Error("Failed to summarise access logs", "error", err)
		respondError(w, http.StatusInternalServerError, "Database error", app)
		return
	}
	respondJSON(w, http.StatusOK, summary, app)
}

func HandleUsers(w http.ResponseWriter, r *http.Request, app App) {
	users, err := app.DB().ListUsers()
	if err != nil {
		app.Logger().With("handler", "HandleUsers").Error("Failed to list users", "error", err)
		respondError(w, http.StatusInternalServerError, "Database error", app)
		return
	}
	respondJSON(w, http.StatusOK, users, app)
}

func HandleStats(w http.ResponseWriter, r *http.Request, app App) {
	stats, err := app.DB().ActivityStats()
	if err != nil {
		app.Logger().With("handler", "HandleStats").Error("Failed to compute activity stats", "error", err)
		respondError(w, http.StatusInternalServerError, "Database error", app)
		return
	}
	respondJSON(w, http.StatusOK, stats, app)
}

func HandleSettingsGet(w http.ResponseWriter, r *http.Request, app App) {
	settings, err := app.DB().GetSettings()
	if err != nil {
		app.Logger().With("handler", "HandleSettingsGet").Error("Failed to load settings", "error", err)
		respondError(w, http.StatusInternalServerError, "Database error", app)
		return
	}
	respondJSON(w, http.StatusOK, settings, app)
}

// HandleSettingsPut upserts every key in the posted object.
func HandleSettingsPut(w http.ResponseWriter, r *http.Request, app App) {
	logger := app.Logger().With("handler", "HandleSettingsPut")
	var settings map[string]string
	if err := decodeJSON(r, &settings); err != nil {
		respondError(w, http.StatusBadRequest, err.Error(), app)
		return
	}
	for key, value := range settings {
		if strings.TrimSpace(key) == "" {
			respondError(w, http.StatusBadRequest, "Setting keys cannot be empty.", app)
			return
		}
		if err := app.DB().PutSetting(key, value); err != nil {
			logger.Error("Failed to save setting", "key", key, "error", err)
			respondError(w, http.StatusInternalServerError, "Database error", app)
			return
		}
	}
	logger.Info("Site settings updated", "count", len(settings))
	HandleSettingsGet(w, r, app)
}

type flagRequest struct {
	Value bool `json:"value"`
}

// HandleTopicFlag sets is_pinned or is_locked, named by the {flag} URL parameter.
func HandleTopicFlag(w http.ResponseWriter, r *http.Request, app App) {
	logger := app.Logger().With("handler", "HandleTopicFlag")
	topicID, ok := idParam(r, "topicID")
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid topic ID.", app)
		return
	}
	flag := chi.URLParam(r, "flag")
	if flag != "pinned" && flag != "locked" {
		respondError(w, http.StatusBadRequest, "Unknown flag.", app)
		return
	}
	var req flagRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error(), app)
		return
	}

	err := app.DB().SetTopicFlag(topicID, flag, req.Value)
	if errors.Is(err, database.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Topic not found.", app)
		return
	}
	if err != nil {
		logger.Error("Failed to set topic flag", "topic_id", topicID, "flag", flag, "error", err)
		respondError(w, http.StatusInternalServerError, "Database error", app)
		return
	}
	logger.Info("Topic flag changed", "topic_id", topicID, "flag", flag, "value", req.Value, "admin_id", currentUserID(r, app))
	respondJSON(w, http.StatusOK, map[string]bool{"success": true}, app)
}

func HandleFallbackList(w http.ResponseWriter, r *http.Request, app App) {
	records, err := app.Fallback().List()
	if err != nil {
		app.Logger().With("handler", "HandleFallbackList").Error("Failed to read fallback contacts", "error", err)
		respondError(w, http.StatusInternalServerError, "Storage error", app)
		return
	}
	respondJSON(w, http.StatusOK, records, app)
}

func HandleFallbackClear(w http.ResponseWriter, r *http.Request, app App) {
	if err := app.Fallback().Clear(); err != nil {
		app.Logger().With("handler", "HandleFallbackClear").Error("Failed to clear fallback contacts", "error", err)
		respondError(w, http.StatusInternalServerError, "Storage error", app)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true}, app)
}

// HandleFallbackSync imports every fallback record into the contacts table
// and clears the fallback once the import has committed.
func HandleFallbackSync(w http.ResponseWriter, r *http.Request, app App) {
	logger := app.Logger().With("handler", "HandleFallbackSync")
	n, err := app.Fallback().Drain(func(records []models.ContactForm) error {
		_, err := app.DB().ImportContacts(records)
		return err
	})
	if err != nil {
		logger.Error("Failed to sync fallback contacts", "error", err)
		respondError(w, http.StatusInternalServerError, "Sync failed", app)
		return
	}
	logger.Info("Synced fallback contacts", "count", n)
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "imported": n}, app)
}

func HandleDatabaseBackup(w http.ResponseWriter, r *http.Request, app App) {
	logger := app.Logger().With("handler", "HandleDatabaseBackup")
	backupPath, err := app.DB().BackupDatabase()
	if err != nil {
		logger.Error("Failed to create database backup", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to create database backup", app)
		return
	}
	logger.Info("Database backup created successfully", "path", backupPath, "ip_hash", utils.HashIP(utils.GetIPAddress(r)))
	respondJSON(w, http.StatusOK, map[string]string{"path": backupPath}, app)
}
