package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"nexor/models"
	"nexor/utils"

	"github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/bcrypt"
)

const userColumns = "id, username, email, password, is_admin, avatar, created_at, last_login, is_online"

func scanUser(row interface{ Scan(...any) error }) (*models.User, error) {
	var u models.User
	var lastLogin sql.NullTime
	var avatar sql.NullString
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.IsAdmin, &avatar, &u.CreatedAt, &lastLogin, &u.IsOnline); err != nil {
		return nil, err
	}
	u.Avatar = avatar.String
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLogin = &t
	}
	return &u, nil
}

// --- Users ---

// CreateUser registers a new account. Duplicate usernames or emails yield ErrUserExists.
func (ds *DatabaseService) CreateUser(username, email, password string, isAdmin bool) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	res, err := ds.DB.Exec("INSERT INTO users (username, email, password, is_admin, created_at) VALUES (?, ?, ?, ?, ?)",
		username, strings.ToLower(email), string(hash), isAdmin, utils.SQLNow())
	if err != nil {
		if isConstraint(err, sqlite3.ErrConstraintUnique) {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}
	id, _ := res.LastInsertId()
	return ds.GetUserByID(id)
}

// GetUserByID fetches a single account.
func (ds *DatabaseService) GetUserByID(id int64) (*models.User, error) {
	u, err := scanUser(ds.DB.QueryRow("SELECT "+userColumns+" FROM users WHERE id = ?", id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("db error getting user %d: %w", id, err)
	}
	return u, nil
}

// Authenticate checks a username (or email) and password pair. On success the
// account's last_login is refreshed and it is flagged online. A login
// containing "@" is only ever matched against emails.
func (ds *DatabaseService) Authenticate(login, password string) (*models.User, error) {
	query, arg := "SELECT "+userColumns+" FROM users WHERE username = ?", login
	if strings.Contains(login, "@") {
		query, arg = "SELECT "+userColumns+" FROM users WHERE email = ?", strings.ToLower(login)
	}
	u, err := scanUser(ds.DB.QueryRow(query, arg))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("db error looking up user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("bcrypt error for user %d: %w", u.ID, err)
	}

	now := utils.GetSQLTime()
	if _, err := ds.DB.Exec("UPDATE users SET last_login = ?, is_online = 1 WHERE id = ?", now.Format(utils.SQLTimeFormat), u.ID); err != nil {
		return nil, fmt.Errorf("failed to record login: %w", err)
	}
	u.IsOnline = true
	u.LastLogin = &now
	return u, nil
}

// SetOnline flips the online flag, used on logout.
func (ds *DatabaseService) SetOnline(userID int64, online bool) error {
	_, err := ds.DB.Exec("UPDATE users SET is_online = ? WHERE id = ?", online, userID)
	return err
}

// SetAvatar stores the avatar reference for a user.
func (ds *DatabaseService) SetAvatar(userID int64, ref string) error {
	res, err := ds.DB.Exec("UPDATE users SET avatar = ? WHERE id = ?", ref, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Categories ---

// ListCategories returns every category with its topic and post counts.
func (ds *DatabaseService) ListCategories() ([]models.Category, error) {
	rows, err := ds.DB.Query(`
		SELECT c.id, c.name, c.description, c.icon, c.color, c.created_at,
		       (SELECT COUNT(*) FROM topics t WHERE t.category_id = c.id),
		       (SELECT COUNT(*) FROM posts p JOIN topics t ON p.topic_id = t.id WHERE t.category_id = c.id)
		FROM categories c ORDER BY c.id`)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			ds.logger.Error("Failed to close rows in ListCategories", "error", err)
		}
	}()

	var categories []models.Category
	for rows.Next() {
		var c models.Category
		var desc sql.NullString
		if err := rows.Scan(&c.ID, &c.Name, &desc, &c.Icon, &c.Color, &c.CreatedAt, &c.TopicCount, &c.PostCount); err != nil {
			ds.logger.Error("Failed to scan category row", "error", err)
			continue
		}
		c.Description = desc.String
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// GetCategory fetches a category, using the instance's cache.
func (ds *DatabaseService) GetCategory(id int64) (*models.Category, error) {
	ds.cacheMu.RLock()
	cat, ok := ds.categoryCache[id]
	ds.cacheMu.RUnlock()
	if ok {
		return cat, nil
	}

	var c models.Category
	var desc sql.NullString
	err := ds.DB.QueryRow("SELECT id, name, description, icon, color, created_at FROM categories WHERE id = ?", id).Scan(
		&c.ID, &c.Name, &desc, &c.Icon, &c.Color, &c.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("db error getting category %d: %w", id, err)
	}
	c.Description = desc.String

	ds.cacheMu.Lock()
	ds.categoryCache[id] = &c
	ds.cacheMu.Unlock()
	return &c, nil
}

// --- Topics ---

// ListTopics returns one page of a category's topics, pinned first and then
// most recently updated, plus the total topic count.
func (ds *DatabaseService) ListTopics(categoryID int64, page, pageSize int) ([]models.Topic, int, error) {
	if page < 1 {
		page = 1
	}
	var total int
	if err := ds.DB.QueryRow("SELECT COUNT(*) FROM topics WHERE category_id = ?", categoryID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := ds.DB.Query(`
		SELECT t.id, t.category_id, t.user_id, u.username, t.title, t.content, t.is_pinned, t.is_locked,
		       t.views, t.created_at, t.updated_at,
		       (SELECT COUNT(*) FROM posts p WHERE p.topic_id = t.id)
		FROM topics t JOIN users u ON t.user_id = u.id
		WHERE t.category_id = ?
		ORDER BY t.is_pinned DESC, t.updated_at DESC, t.id DESC
		LIMIT ? OFFSET ?`, categoryID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			ds.logger.Error("Failed to close rows in ListTopics", "error", err)
		}
	}()

	var topics []models.Topic
	for rows.Next() {
		var t models.Topic
		if err := rows.Scan(&t.ID, &t.CategoryID, &t.UserID, &t.Author, &t.Title, &t.Content, &t.IsPinned, &t.IsLocked,
			&t.Views, &t.CreatedAt, &t.UpdatedAt, &t.ReplyCount); err != nil {
			ds.logger.Error("Failed to scan topic row", "error", err)
			continue
		}
		topics = append(topics, t)
	}
	return topics, total, rows.Err()
}

// CreateTopic inserts a topic. The category and user must exist.
func (ds *DatabaseService) CreateTopic(categoryID, userID int64, title, content string) (*models.Topic, error) {
	now := utils.SQLNow()
	res, err := ds.DB.Exec("INSERT INTO topics (category_id, user_id, title, content, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
		categoryID, userID, title, content, now, now)
	if err != nil {
		if isConstraint(err, sqlite3.ErrConstraintForeignKey) {
			return nil, ErrInvalidReference
		}
		return nil, fmt.Errorf("failed to insert topic: %w", err)
	}
	id, _ := res.LastInsertId()
	return ds.getTopic(ds.DB, id)
}

// ViewTopic increments a topic's view counter and returns it with its posts.
func (ds *DatabaseService) ViewTopic(id int64) (*models.Topic, error) {
	tx, err := ds.DB.Begin()
	if err != nil {
		return nil, err
	}
	defer func() {
		if rerr := tx.Rollback(); rerr != nil && rerr != sql.ErrTxDone {
			ds.logger.Error("Failed to rollback transaction in ViewTopic", "error", rerr)
		}
	}()

	res, err := tx.Exec("UPDATE topics SET views = views + 1 WHERE id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("failed to increment views: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}

	topic, err := ds.getTopic(tx, id)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(`
		SELECT p.id, p.topic_id, p.user_id, u.username, p.content, p.created_at, p.updated_at
		FROM posts p JOIN users u ON p.user_id = u.id
		WHERE p.topic_id = ? ORDER BY p.id ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query posts: %w", err)
	}
	for rows.Next() {
		var p models.Post
		if err := rows.Scan(&p.ID, &p.TopicID, &p.UserID, &p.Author, &p.Content, &p.CreatedAt, &p.UpdatedAt); err != nil {
			ds.logger.Error("Failed to scan post row", "error", err)
			continue
		}
		topic.Posts = append(topic.Posts, p)
	}
	if err := rows.Close(); err != nil {
		ds.logger.Warn("Failed to close rows for topic posts", "error", err)
	}
	topic.ReplyCount = len(topic.Posts)

	return topic, tx.Commit()
}

// UpdateTopic edits a topic's title and content. Only the author or an admin may edit.
func (ds *DatabaseService) UpdateTopic(id, editorID int64, isAdmin bool, title, content string) (*models.Topic, error) {
	var ownerID int64
	if err := ds.DB.QueryRow("SELECT user_id FROM topics WHERE id = ?", id).Scan(&ownerID); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if ownerID != editorID && !isAdmin {
		return nil, ErrForbidden
	}
	if _, err := ds.DB.Exec("UPDATE topics SET title = ?, content = ?, updated_at = ? WHERE id = ?", title, content, utils.SQLNow(), id); err != nil {
		return nil, fmt.Errorf("failed to update topic: %w", err)
	}
	return ds.getTopic(ds.DB, id)
}

// SetTopicFlag toggles is_pinned or is_locked.
func (ds *DatabaseService) SetTopicFlag(id int64, flag string, value bool) error {
	var column string
	switch flag {
	case "pinned":
		column = "is_pinned"
	case "locked":
		column = "is_locked"
	default:
		return fmt.Errorf("invalid topic flag: %s", flag)
	}
	res, err := ds.DB.Exec(fmt.Sprintf("UPDATE topics SET %s = ? WHERE id = ?", column), value, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Posts ---

// CreatePost adds a reply to a topic and refreshes the topic's updated_at.
func (ds *DatabaseService) CreatePost(topicID, userID int64, content string) (*models.Post, error) {
	tx, err := ds.DB.Begin()
	if err != nil {
		return nil, err
	}
	defer func() {
		if rerr := tx.Rollback(); rerr != nil && rerr != sql.ErrTxDone {
			ds.logger.Error("Failed to rollback transaction in CreatePost", "error", rerr)
		}
	}()

	var locked bool
	if err := tx.QueryRow("SELECT is_locked FROM topics WHERE id = ?", topicID).Scan(&locked); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if locked {
		return nil, ErrTopicLocked
	}

	now := utils.SQLNow()
	res, err := tx.Exec("INSERT INTO posts (topic_id, user_id, content, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
		topicID, userID, content, now, now)
	if err != nil {
		if isConstraint(err, sqlite3.ErrConstraintForeignKey) {
			return nil, ErrInvalidReference
		}
		return nil, fmt.Errorf("failed to insert post: %w", err)
	}
	postID, _ := res.LastInsertId()

	if _, err := tx.Exec("UPDATE topics SET updated_at = ? WHERE id = ?", now, topicID); err != nil {
		return nil, fmt.Errorf("failed to bump topic: %w", err)
	}

	var p models.Post
	err = tx.QueryRow(`
		SELECT p.id, p.topic_id, p.user_id, u.username, p.content, p.created_at, p.updated_at
		FROM posts p JOIN users u ON p.user_id = u.id WHERE p.id = ?`, postID).Scan(
		&p.ID, &p.TopicID, &p.UserID, &p.Author, &p.Content, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to read back post: %w", err)
	}
	return &p, tx.Commit()
}

// --- Internal Helpers ---

type queryer interface {
	QueryRow(query string, args ...any) *sql.Row
}

func (ds *DatabaseService) getTopic(q queryer, id int64) (*models.Topic, error) {
	var t models.Topic
	err := q.QueryRow(`
		SELECT t.id, t.category_id, t.user_id, u.username, t.title, t.content, t.is_pinned, t.is_locked,
		       t.views, t.created_at, t.updated_at
		FROM topics t JOIN users u ON t.user_id = u.id WHERE t.id = ?`, id).Scan(
		&t.ID, &t.CategoryID, &t.UserID, &t.Author, &t.Title, &t.Content, &t.IsPinned, &t.IsLocked,
		&t.Views, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("db error getting topic %d: %w", id, err)
	}
	return &t, nil
}
