package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"nexor/config"
	"nexor/database"
	"nexor/models"
	"nexor/utils"
)

func currentUserID(r *http.Request, app App) int64 {
	return app.Sessions().GetInt64(r.Context(), userIDKey)
}

// currentUser loads the session user, or nil when nobody is logged in.
func currentUser(r *http.Request, app App) *models.User {
	id := currentUserID(r, app)
	if id == 0 {
		return nil
	}
	user, err := app.DB().GetUserByID(id)
	if err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			app.Logger().Error("Failed to load session user", "user_id", id, "error", err)
		}
		return nil
	}
	return user
}

// HandleSession returns the CSRF token and the logged-in user, if any.
func HandleSession(w http.ResponseWriter, r *http.Request, app App) {
	token, _ := r.Context().Value(CSRFTokenKey).(string)
	respondJSON(w, http.StatusOK, map[string]any{
		"csrf_token": token,
		"user":       currentUser(r, app),
		"version":    config.AppVersion,
	}, app)
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func HandleRegister(w http.ResponseWriter, r *http.Request, app App) {
	logger := app.Logger().With("handler", "HandleRegister")
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error(), app)
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)

	switch {
	case utf8.RuneCountInString(req.Username) < config.MinUsernameLen || utf8.RuneCountInString(req.Username) > config.MaxUsernameLen:
		respondError(w, http.StatusBadRequest, "Username must be between 3 and 50 characters.", app)
		return
	case strings.ContainsRune(req.Username, '@'):
		respondError(w, http.StatusBadRequest, "Username cannot contain '@'.", app)
		return
	case len(req.Email) > config.MaxEmailLen || !utils.IsValidEmail(req.Email):
		respondError(w, http.StatusBadRequest, "A valid email is required.", app)
		return
	case len(req.Password) < config.MinPasswordLen:
		respondError(w, http.StatusBadRequest, "Password must be at least 6 characters.", app)
		return
	}

	user, err := app.DB().CreateUser(req.Username, req.Email, req.Password, false)
	if errors.Is(err, database.ErrUserExists) {
		respondError(w, http.StatusConflict, "Username or email already registered.", app)
		return
	}
	if err != nil {
		logger.Error("Failed to create user", "error", err)
		respondError(w, http.StatusInternalServerError, "Database error", app)
		return
	}
	logger.Info("User registered", "user_id", user.ID)
	respondJSON(w, http.StatusCreated, user, app)
}

type loginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

func HandleLogin(w http.ResponseWriter, r *http.Request, app App) {
	logger := app.Logger().With("handler", "HandleLogin")
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error(), app)
		return
	}

	user, err := app.DB().Authenticate(strings.TrimSpace(req.Login), req.Password)
	if errors.Is(err, database.ErrInvalidCredentials) {
		logger.Warn("Failed login", "ip_hash", utils.HashIP(utils.GetIPAddress(r)))
		respondError(w, http.StatusUnauthorized, "Invalid username or password.", app)
		return
	}
	if err != nil {
		logger.Error("Failed to authenticate", "error", err)
		respondError(w, http.StatusInternalServerError, "Database error", app)
		return
	}

	if err := app.Sessions().RenewToken(r.Context()); err != nil {
		logger.Error("Failed to renew session token", "error", err)
		respondError(w, http.StatusInternalServerError, "Session error", app)
		return
	}
	app.Sessions().Put(r.Context(), userIDKey, user.ID)
	respondJSON(w, http.StatusOK, user, app)
}

func HandleLogout(w http.ResponseWriter, r *http.Request, app App) {
	logger := app.Logger().With("handler", "HandleLogout")
	if id := currentUserID(r, app); id != 0 {
		if err := app.DB().SetOnline(id, false); err != nil {
			logger.Error("Failed to mark user offline", "user_id", id, "error", err)
		}
	}
	if err := app.Sessions().Destroy(r.Context()); err != nil {
		logger.Error("Failed to destroy session", "error", err)
		respondError(w, http.StatusInternalServerError, "Session error", app)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true}, app)
}

func HandleCategories(w http.ResponseWriter, r *http.Request, app App) {
	categories, err := app.DB().ListCategories()
	if err != nil {
		app.Logger().With("handler", "HandleCategories").Error("Failed to list categories", "error", err)
		respondError(w, http.StatusInternalServerError, "Database error", app)
		return
	}
	respondJSON(w, http.StatusOK, categories, app)
}

func HandleCategoryTopics(w http.ResponseWriter, r *http.Request, app App) {
	logger := app.Logger().With("handler", "HandleCategoryTopics")
	categoryID, ok := idParam(r, "categoryID")
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid category ID.", app)
		return
	}
	category, err := app.DB().GetCategory(categoryID)
	if errors.Is(err, database.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Category not found.", app)
		return
	}
	if err != nil {
		logger.Error("Failed to load category", "category_id", categoryID, "error", err)
		respondError(w, http.StatusInternalServerError, "Database error", app)
		return
	}

	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		page = 1
	}
	topics, total, err := app.DB().ListTopics(categoryID, page, config.TopicsPageSize)
	if err != nil {
		logger.Error("Failed to list topics", "category_id", categoryID, "error", err)
		respondError(w, http.StatusInternalServerError, "Database error", app)
		return
	}
	totalPages := (total + config.TopicsPageSize - 1) / config.TopicsPageSize
	respondJSON(w, http.StatusOK, map[string]any{
		"category":    category,
		"topics":      topics,
		"page":        page,
		"total_pages": totalPages,
		"total":       total,
	}, app)
}

type topicRequest struct {
	CategoryID int64  `json:"category_id"`
	Title      string `json:"title"`
	Content    string `json:"content"`
}

func validateTopic(title, content string) string {
	if n := utf8.RuneCountInString(title); n == 0 || n > config.MaxTitleLen {
		return "Title must be between 1 and 200 characters."
	}
	return validateContent(content)
}

func validateContent(content string) string {
	if n := utf8.RuneCountInString(content); n == 0 || n > config.MaxContentLen {
		return "Content must be between 1 and 10000 characters."
	}
	return ""
}

func HandleCreateTopic(w http.ResponseWriter, r *http.Request, app App) {
	logger := app.Logger().With("handler", "HandleCreateTopic")
	var req topicRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error(), app)
		return
	}
	req.Title, req.Content = strings.TrimSpace(req.Title), strings.TrimSpace(req.Content)
	if msg := validateTopic(req.Title, req.Content); msg != "" {
		respondError(w, http.StatusBadRequest, msg, app)
		return
	}

	topic, err := app.DB().CreateTopic(req.CategoryID, currentUserID(r, app), req.Title, req.Content)
	if errors.Is(err, database.ErrInvalidReference) {
		respondError(w, http.StatusBadRequest, "Category does not exist.", app)
		return
	}
	if err != nil {
		logger.Error("Failed to create topic", "error", err)
		respondError(w, http.StatusInternalServerError, "Database error", app)
		return
	}
	respondJSON(w, http.StatusCreated, topic, app)
}

func HandleViewTopic(w http.ResponseWriter, r *http.Request, app App) {
	topicID, ok := idParam(r, "topicID")
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid topic ID.", app)
		return
	}
	topic, err := app.DB().ViewTopic(topicID)
	if errors.Is(err, database.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Topic not found.", app)
		return
	}
	if err != nil {
		app.Logger().With("handler", "HandleViewTopic").Error("Failed to load topic", "topic_id", topicID, "error", err)
		respondError(w, http.StatusInternalServerError, "Database error", app)
		return
	}
	respondJSON(w, http.StatusOK, topic, app)
}

func HandleEditTopic(w http.ResponseWriter, r *http.Request, app App) {
	logger := app.Logger().With("handler", "HandleEditTopic")
	topicID, ok := idParam(r, "topicID")
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid topic ID.", app)
		return
	}
	var req topicRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error(), app)
		return
	}
	req.Title, req.Content = strings.TrimSpace(req.Title), strings.TrimSpace(req.Content)
	if msg := validateTopic(req.Title, req.Content); msg != "" {
		respondError(w, http.StatusBadRequest, msg, app)
		return
	}

	user := currentUser(r, app)
	if user == nil {
		respondError(w, http.StatusUnauthorized, "Login required.", app)
		return
	}
	topic, err := app.DB().UpdateTopic(topicID, user.ID, user.IsAdmin, req.Title, req.Content)
	switch {
	case errors.Is(err, database.ErrNotFound):
		respondError(w, http.StatusNotFound, "Topic not found.", app)
	case errors.Is(err, database.ErrForbidden):
		respondError(w, http.StatusForbidden, "Only the author or an admin can edit this topic.", app)
	case err != nil:
		logger.Error("Failed to update topic", "topic_id", topicID, "error", err)
		respondError(w, http.StatusInternalServerError, "Database error", app)
	default:
		respondJSON(w, http.StatusOK, topic, app)
	}
}

type replyRequest struct {
	Content string `json:"content"`
}

func HandleReply(w http.ResponseWriter, r *http.Request, app App) {
	logger := app.Logger().With("handler", "HandleReply")
	topicID, ok := idParam(r, "topicID")
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid topic ID.", app)
		return
	}
	var req replyRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error(), app)
		return
	}
	req.Content = strings.TrimSpace(req.Content)
	if msg := validateContent(req.Content); msg != "" {
		respondError(w, http.StatusBadRequest, msg, app)
		return
	}

	post, err := app.DB().CreatePost(topicID, currentUserID(r, app), req.Content)
	switch {
	case errors.Is(err, database.ErrNotFound):
		respondError(w, http.StatusNotFound, "Topic not found.", app)
	case errors.Is(err, database.ErrTopicLocked):
		respondError(w, http.StatusForbidden, "This topic is locked.", app)
	case err != nil:
		logger.Error("Failed to create post", "topic_id", topicID, "error", err)
		respondError(w, http.StatusInternalServerError, "Database error", app)
	default:
		respondJSON(w, http.StatusCreated, post, app)
	}
}
