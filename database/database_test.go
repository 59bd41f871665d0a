// nexor/database/database_test.go
package database

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"nexor/config"
	"nexor/models"
	"nexor/utils"
)

var testLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))

func testDSN(dir string) string {
	return filepath.Join(dir, "test.db?_journal_mode=WAL&_foreign_keys=on")
}

// setupTestDB creates a fresh file-backed SQLite database for testing.
func setupTestDB(t *testing.T) *DatabaseService {
	t.Helper()
	ds, err := InitDB(testDSN(t.TempDir()), config.DefaultAdminPass, testLogger)
	if err != nil {
		t.Fatalf("Failed to initialize test database: %v", err)
	}
	t.Cleanup(func() { ds.Close() })
	return ds
}

func count(t *testing.T, ds *DatabaseService, query string, args ...any) int {
	t.Helper()
	var n int
	if err := ds.DB.QueryRow(query, args...).Scan(&n); err != nil {
		t.Fatalf("Count query %q failed: %v", query, err)
	}
	return n
}

// TestInitDB checks the admin account and the four default categories.
func TestInitDB(t *testing.T) {
	ds := setupTestDB(t)

	if n := count(t, ds, "SELECT COUNT(*) FROM users WHERE username = 'admin' AND is_admin = 1 AND email = ?", config.DefaultAdminEmail); n != 1 {
		t.Errorf("Expected exactly one admin user, got %d", n)
	}

	categories, err := ds.ListCategories()
	if err != nil {
		t.Fatalf("ListCategories failed: %v", err)
	}
	if len(categories) != len(defaultCategories) {
		t.Fatalf("Expected %d categories, got %d", len(defaultCategories), len(categories))
	}
	for i, c := range categories {
		want := defaultCategories[i]
		if c.Name != want.Name || c.Description != want.Description || c.Icon != want.Icon || c.Color != want.Color {
			t.Errorf("Category %d = %+v, want %+v", i, c, want)
		}
	}
	if categories[0].Name != "Discussões Gerais" || categories[3].Color != "#10b981" {
		t.Errorf("Unexpected seed order: %q ... %q", categories[0].Name, categories[3].Color)
	}
}

func TestInitDBIdempotent(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 2; i++ {
		ds, err := InitDB(testDSN(dir), config.DefaultAdminPass, testLogger)
		if err != nil {
			t.Fatalf("InitDB run %d failed: %v", i+1, err)
		}
		if n := count(t, ds, "SELECT COUNT(*) FROM users"); n != 1 {
			t.Errorf("Run %d: expected 1 user, got %d", i+1, n)
		}
		if n := count(t, ds, "SELECT COUNT(*) FROM categories"); n != 4 {
			t.Errorf("Run %d: expected 4 categories, got %d", i+1, n)
		}
		ds.Close()
	}
}

// Seeding keys on the user count alone, so missing categories are not
// restored once any account exists.
func TestSeedSkippedWhenUsersExist(t *testing.T) {
	dir := t.TempDir()
	ds, err := InitDB(testDSN(dir), config.DefaultAdminPass, testLogger)
	if err != nil {
		t.Fatalf("InitDB failed: %v", err)
	}
	if _, err := ds.DB.Exec("DELETE FROM categories"); err != nil {
		t.Fatalf("Failed to clear categories: %v", err)
	}
	ds.Close()

	ds, err = InitDB(testDSN(dir), config.DefaultAdminPass, testLogger)
	if err != nil {
		t.Fatalf("Second InitDB failed: %v", err)
	}
	defer ds.Close()
	if n := count(t, ds, "SELECT COUNT(*) FROM categories"); n != 0 {
		t.Errorf("Expected categories to stay empty, got %d", n)
	}
}

func TestInitDBCreatesDataDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")
	ds, err := InitDB(testDSN(dir), config.DefaultAdminPass, testLogger)
	if err != nil {
		t.Fatalf("InitDB failed: %v", err)
	}
	defer ds.Close()
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("Expected data directory to be created: %v", err)
	}
}

func TestDataDir(t *testing.T) {
	testCases := []struct {
		dsn, want string
	}{
		{"./data/forum.db?_foreign_keys=on", "data"},
		{"file:/var/lib/nexor/forum.db", "/var/lib/nexor"},
		{"forum.db", ""},
		{":memory:", ""},
		{"file:test.db?mode=memory&cache=shared", ""},
	}
	for _, tc := range testCases {
		if got := dataDir(tc.dsn); got != tc.want {
			t.Errorf("dataDir(%q) = %q, want %q", tc.dsn, got, tc.want)
		}
	}
}

func TestWithForeignKeys(t *testing.T) {
	testCases := []struct {
		dsn, want string
	}{
		{"./data/forum.db", "./data/forum.db?_foreign_keys=on"},
		{"forum.db?_journal_mode=WAL", "forum.db?_journal_mode=WAL&_foreign_keys=on"},
		{"forum.db?_foreign_keys=on", "forum.db?_foreign_keys=on"},
		{"forum.db?_fk=1", "forum.db?_fk=1"},
	}
	for _, tc := range testCases {
		if got := withForeignKeys(tc.dsn); got != tc.want {
			t.Errorf("withForeignKeys(%q) = %q, want %q", tc.dsn, got, tc.want)
		}
	}
}

// TestForeignKeysWithPlainPath opens a DSN that carries no parameters and
// checks that topics still cannot point at missing rows.
func TestForeignKeysWithPlainPath(t *testing.T) {
	ds, err := InitDB(filepath.Join(t.TempDir(), "forum.db"), config.DefaultAdminPass, testLogger)
	if err != nil {
		t.Fatalf("InitDB failed: %v", err)
	}
	defer ds.Close()

	if _, err := ds.CreateTopic(999, 1, "Orphan", "No category"); !errors.Is(err, ErrInvalidReference) {
		t.Errorf("Expected ErrInvalidReference for a missing category, got %v", err)
	}
	if _, err := ds.CreateTopic(1, 999, "Orphan", "No author"); !errors.Is(err, ErrInvalidReference) {
		t.Errorf("Expected ErrInvalidReference for a missing user, got %v", err)
	}
	if n := count(t, ds, "SELECT COUNT(*) FROM topics"); n != 0 {
		t.Errorf("Expected no topics to be stored, got %d", n)
	}
}

func TestInitDBRejectsDisabledForeignKeys(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "forum.db?_foreign_keys=off")
	if ds, err := InitDB(dsn, config.DefaultAdminPass, testLogger); err == nil {
		ds.Close()
		t.Fatal("Expected InitDB to fail when foreign keys are switched off")
	}
}

// TestMigrations verifies that the versioned migrations were applied and recorded.
func TestMigrations(t *testing.T) {
	ds := setupTestDB(t)

	if n := count(t, ds, "SELECT COUNT(*) FROM schema_migrations WHERE version = 1"); n != 1 {
		t.Fatalf("Expected migration version 1 to be recorded, got %d rows", n)
	}
	if n := count(t, ds, "SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND name = 'idx_topics_category'"); n != 1 {
		t.Error("Expected idx_topics_category to exist after migrations")
	}
}

func TestUsers(t *testing.T) {
	ds := setupTestDB(t)

	t.Run("Admin Login", func(t *testing.T) {
		u, err := ds.Authenticate("admin", config.DefaultAdminPass)
		if err != nil {
			t.Fatalf("Authenticate failed: %v", err)
		}
		if !u.IsAdmin || !u.IsOnline || u.LastLogin == nil {
			t.Errorf("Unexpected admin state after login: %+v", u)
		}
		stored, _ := ds.GetUserByID(u.ID)
		if !stored.IsOnline || stored.LastLogin == nil {
			t.Error("Expected last_login and is_online to be persisted")
		}
	})

	t.Run("Wrong Password", func(t *testing.T) {
		if _, err := ds.Authenticate("admin", "nope"); !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("Expected ErrInvalidCredentials, got %v", err)
		}
		if _, err := ds.Authenticate("ghost", "whatever"); !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("Expected ErrInvalidCredentials for unknown user, got %v", err)
		}
	})

	t.Run("Register And Login By Email", func(t *testing.T) {
		u, err := ds.CreateUser("player1", "Player1@Example.com", "secret1", false)
		if err != nil {
			t.Fatalf("CreateUser failed: %v", err)
		}
		if u.IsAdmin || u.Email != "player1@example.com" {
			t.Errorf("Unexpected new user: %+v", u)
		}
		if _, err := ds.Authenticate("player1@example.com", "secret1"); err != nil {
			t.Errorf("Login by email failed: %v", err)
		}
	})

	t.Run("Duplicate", func(t *testing.T) {
		if _, err := ds.CreateUser("admin", "other@example.com", "secret1", false); !errors.Is(err, ErrUserExists) {
			t.Errorf("Expected ErrUserExists for username, got %v", err)
		}
		if _, err := ds.CreateUser("someone", config.DefaultAdminEmail, "secret1", false); !errors.Is(err, ErrUserExists) {
			t.Errorf("Expected ErrUserExists for email, got %v", err)
		}
	})

	t.Run("Email Login Ignores Usernames", func(t *testing.T) {
		if _, err := ds.CreateUser(config.DefaultAdminEmail, "squatter@example.com", "squat123", false); err != nil {
			t.Fatalf("CreateUser failed: %v", err)
		}
		u, err := ds.Authenticate(config.DefaultAdminEmail, config.DefaultAdminPass)
		if err != nil {
			t.Fatalf("Admin email login failed: %v", err)
		}
		if !u.IsAdmin {
			t.Errorf("Expected the admin account, got %+v", u)
		}
		if _, err := ds.Authenticate(config.DefaultAdminEmail, "squat123"); !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("A username equal to an email must not log in through it, got %v", err)
		}
	})

	t.Run("Logout", func(t *testing.T) {
		if err := ds.SetOnline(1, false); err != nil {
			t.Fatalf("SetOnline failed: %v", err)
		}
		u, _ := ds.GetUserByID(1)
		if u.IsOnline {
			t.Error("Expected admin to be offline")
		}
	})
}

func TestTopicsAndPosts(t *testing.T) {
	ds := setupTestDB(t)
	user, err := ds.CreateUser("author", "author@example.com", "secret1", false)
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	t.Run("Foreign Keys", func(t *testing.T) {
		if _, err := ds.CreateTopic(999, user.ID, "t", "c"); !errors.Is(err, ErrInvalidReference) {
			t.Errorf("Expected ErrInvalidReference for missing category, got %v", err)
		}
		if _, err := ds.CreateTopic(1, 999, "t", "c"); !errors.Is(err, ErrInvalidReference) {
			t.Errorf("Expected ErrInvalidReference for missing user, got %v", err)
		}
	})

	topic, err := ds.CreateTopic(1, user.ID, "Primeiro tópico", "Olá a todos")
	if err != nil {
		t.Fatalf("CreateTopic failed: %v", err)
	}
	if topic.Author != "author" || topic.Views != 0 {
		t.Errorf("Unexpected topic: %+v", topic)
	}

	t.Run("View Increments", func(t *testing.T) {
		ds.ViewTopic(topic.ID)
		got, err := ds.ViewTopic(topic.ID)
		if err != nil {
			t.Fatalf("ViewTopic failed: %v", err)
		}
		if got.Views != 2 {
			t.Errorf("Expected 2 views, got %d", got.Views)
		}
		if _, err := ds.ViewTopic(12345); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Reply Bumps Topic", func(t *testing.T) {
		ds.DB.Exec("UPDATE topics SET updated_at = '2020-01-01 00:00:00' WHERE id = ?", topic.ID)
		post, err := ds.CreatePost(topic.ID, 1, "Bem-vindo!")
		if err != nil {
			t.Fatalf("CreatePost failed: %v", err)
		}
		if post.Author != "admin" {
			t.Errorf("Expected admin as author, got %q", post.Author)
		}
		got, _ := ds.ViewTopic(topic.ID)
		if len(got.Posts) != 1 || got.ReplyCount != 1 {
			t.Errorf("Expected 1 post, got %d", len(got.Posts))
		}
		if got.UpdatedAt.Year() == 2020 {
			t.Error("Expected updated_at to be bumped by the reply")
		}
	})

	t.Run("Locked Topic Rejects Replies", func(t *testing.T) {
		if err := ds.SetTopicFlag(topic.ID, "locked", true); err != nil {
			t.Fatalf("SetTopicFlag failed: %v", err)
		}
		if _, err := ds.CreatePost(topic.ID, user.ID, "late"); !errors.Is(err, ErrTopicLocked) {
			t.Errorf("Expected ErrTopicLocked, got %v", err)
		}
		ds.SetTopicFlag(topic.ID, "locked", false)
		if _, err := ds.CreatePost(topic.ID, user.ID, "unlocked"); err != nil {
			t.Errorf("Expected reply after unlock, got %v", err)
		}
		if err := ds.SetTopicFlag(topic.ID, "deleted", true); err == nil {
			t.Error("Expected an error for an unknown flag")
		}
	})

	t.Run("Edit Permissions", func(t *testing.T) {
		other, _ := ds.CreateUser("other", "other@example.com", "secret1", false)
		if _, err := ds.UpdateTopic(topic.ID, other.ID, false, "x", "y"); !errors.Is(err, ErrForbidden) {
			t.Errorf("Expected ErrForbidden, got %v", err)
		}
		edited, err := ds.UpdateTopic(topic.ID, user.ID, false, "Editado", "Novo conteúdo")
		if err != nil || edited.Title != "Editado" {
			t.Errorf("Author edit failed: %v %+v", err, edited)
		}
		if _, err := ds.UpdateTopic(topic.ID, 1, true, "Admin", "edit"); err != nil {
			t.Errorf("Admin edit failed: %v", err)
		}
	})

	t.Run("Pinned First", func(t *testing.T) {
		newer, _ := ds.CreateTopic(1, user.ID, "Mais recente", "conteúdo")
		ds.SetTopicFlag(topic.ID, "pinned", true)
		topics, total, err := ds.ListTopics(1, 1, 10)
		if err != nil {
			t.Fatalf("ListTopics failed: %v", err)
		}
		if total != 2 || len(topics) != 2 {
			t.Fatalf("Expected 2 topics, got total=%d len=%d", total, len(topics))
		}
		if topics[0].ID != topic.ID || topics[1].ID != newer.ID {
			t.Errorf("Expected pinned topic first, got %d then %d", topics[0].ID, topics[1].ID)
		}
		page2, _, _ := ds.ListTopics(1, 2, 1)
		if len(page2) != 1 || page2[0].ID != newer.ID {
			t.Errorf("Expected second page to hold the unpinned topic")
		}
	})

	t.Run("Category Counts", func(t *testing.T) {
		categories, _ := ds.ListCategories()
		if categories[0].TopicCount != 2 || categories[0].PostCount != 2 {
			t.Errorf("Expected 2 topics and 2 posts in first category, got %d and %d", categories[0].TopicCount, categories[0].PostCount)
		}
	})
}

func TestContacts(t *testing.T) {
	ds := setupTestDB(t)
	form := models.ContactForm{Name: "Ana", Email: "ana@example.com", Subject: "Oi", Message: "Mensagem", Timestamp: "2025-03-01T10:00:00.000Z", Status: "pending"}

	id, err := ds.InsertContact(form)
	if err != nil {
		t.Fatalf("InsertContact failed: %v", err)
	}
	n, err := ds.ImportContacts([]models.ContactForm{form, {Name: "Bia", Email: "bia@example.com", Subject: "S", Message: "M"}})
	if err != nil || n != 2 {
		t.Fatalf("ImportContacts = %d, %v", n, err)
	}

	contacts, err := ds.ListContacts()
	if err != nil {
		t.Fatalf("ListContacts failed: %v", err)
	}
	if len(contacts) != 3 {
		t.Fatalf("Expected 3 contacts, got %d", len(contacts))
	}
	if contacts[0].Name != "Bia" || contacts[0].Status != "pending" {
		t.Errorf("Expected newest contact first with pending status, got %+v", contacts[0])
	}

	if err := ds.RespondContact(id, "Obrigado pelo contato"); err != nil {
		t.Fatalf("RespondContact failed: %v", err)
	}
	if n := count(t, ds, "SELECT COUNT(*) FROM contacts WHERE status = 'responded' AND admin_response IS NOT NULL"); n != 1 {
		t.Errorf("Expected one responded contact, got %d", n)
	}
	if err := ds.RespondContact(999, "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestAdminStats(t *testing.T) {
	ds := setupTestDB(t)
	ds.CreateTopic(1, 1, "Topic", "Content")
	ds.InsertContact(models.ContactForm{Name: "Ana", Email: "ana@example.com", Subject: "S", Message: "M"})
	ds.LogAccess("10.0.0.1", "test-agent", "/api/forum/categories", 1)
	ds.LogAccess("10.0.0.2", "test-agent", "/api/forum/categories", 0)
	ds.LogAccess("10.0.0.2", "test-agent", "/api/chat", 0)

	t.Run("Dashboard", func(t *testing.T) {
		stats, err := ds.DashboardStats(15 * time.Minute)
		if err != nil {
			t.Fatalf("DashboardStats failed: %v", err)
		}
		if stats.TotalUsers != 1 || stats.TotalTopics != 1 || stats.TotalPosts != 0 || stats.PendingContacts != 1 {
			t.Errorf("Unexpected counters: %+v", stats)
		}
		if stats.OnlineUsers != 1 {
			t.Errorf("Expected 1 online user, got %d", stats.OnlineUsers)
		}
		if len(stats.RecentTopics) != 1 || stats.RecentTopics[0].Username != "admin" {
			t.Errorf("Unexpected recent topics: %+v", stats.RecentTopics)
		}
	})

	t.Run("Access Logs", func(t *testing.T) {
		summary, err := ds.AccessLogSummary()
		if err != nil {
			t.Fatalf("AccessLogSummary failed: %v", err)
		}
		if len(summary.RecentLogs) != 3 || summary.TodayVisits != 3 || summary.UniqueVisitorsToday != 2 {
			t.Errorf("Unexpected summary: %+v", summary)
		}
		if len(summary.PopularPages) == 0 || summary.PopularPages[0].Page != "/api/forum/categories" || summary.PopularPages[0].Visits != 2 {
			t.Errorf("Unexpected popular pages: %+v", summary.PopularPages)
		}
	})

	t.Run("Users", func(t *testing.T) {
		users, err := ds.ListUsers()
		if err != nil || len(users) != 1 {
			t.Fatalf("ListUsers = %v, %v", users, err)
		}
		if users[0].TopicCount != 1 || !users[0].IsAdmin {
			t.Errorf("Unexpected admin summary: %+v", users[0])
		}
	})

	t.Run("Activity", func(t *testing.T) {
		stats, err := ds.ActivityStats()
		if err != nil {
			t.Fatalf("ActivityStats failed: %v", err)
		}
		if len(stats.UserRegistrations) != 1 || stats.UserRegistrations[0].Count != 1 {
			t.Errorf("Unexpected registrations: %+v", stats.UserRegistrations)
		}
		total := 0
		for _, b := range stats.HourlyActivity {
			total += b.Count
		}
		if total != 3 {
			t.Errorf("Expected 3 hourly hits, got %d", total)
		}
	})
}

func TestSettings(t *testing.T) {
	ds := setupTestDB(t)
	if err := ds.PutSetting("site_name", "NEXOR"); err != nil {
		t.Fatalf("PutSetting failed: %v", err)
	}
	if err := ds.PutSetting("site_name", "NEXOR Studios"); err != nil {
		t.Fatalf("PutSetting upsert failed: %v", err)
	}
	settings, err := ds.GetSettings()
	if err != nil {
		t.Fatalf("GetSettings failed: %v", err)
	}
	if len(settings) != 1 || settings["site_name"] != "NEXOR Studios" {
		t.Errorf("Unexpected settings: %v", settings)
	}
}

// TestBackupDatabase verifies the VACUUM INTO backup function.
func TestBackupDatabase(t *testing.T) {
	ds := setupTestDB(t)

	backupDir := t.TempDir()
	utils.BackupDir = backupDir
	t.Cleanup(func() { utils.BackupDir = "" })

	backupPath, err := ds.BackupDatabase()
	if err != nil {
		t.Fatalf("BackupDatabase() failed: %v", err)
	}
	if filepath.Dir(backupPath) != backupDir {
		t.Errorf("Backup written to %s, want directory %s", backupPath, backupDir)
	}
	info, err := os.Stat(backupPath)
	if err != nil {
		t.Fatalf("Backup file was not created: %v", err)
	}
	if info.Size() == 0 {
		t.Error("Backup file is empty")
	}
}
