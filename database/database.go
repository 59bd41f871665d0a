// nexor/database/database.go
package database

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"nexor/config"
	"nexor/models"
	"nexor/utils"

	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/bcrypt"
)

// DatabaseService is the central struct for all database operations.
type DatabaseService struct {
	DB            *sql.DB
	logger        *slog.Logger
	dsn           string
	categoryCache map[int64]*models.Category
	cacheMu       sync.RWMutex
}

// seedCategory is one of the fixed forum categories created on first run.
type seedCategory struct {
	Name, Description, Icon, Color string
}

var defaultCategories = []seedCategory{
	{"Discussões Gerais", "Converse sobre todos os nossos jogos", "fas fa-gamepad", "#3b82f6"},
	{"Competições & Eventos", "Participe de torneios e eventos especiais", "fas fa-trophy", "#f59e0b"},
	{"Suporte Técnico", "Obtenha ajuda com problemas técnicos", "fas fa-tools", "#ef4444"},
	{"Sugestões & Feedback", "Compartilhe suas ideias para melhorar nossos jogos", "fas fa-lightbulb", "#10b981"},
}

// InitDB connects to the database, creates the schema, runs migrations and
// seeds the admin account and default categories on first run.
func InitDB(dataSourceName, adminPassword string, logger *slog.Logger) (*DatabaseService, error) {
	if dir := dataDir(dataSourceName); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("could not create data directory %s: %w", dir, err)
		}
	}

	dataSourceName = withForeignKeys(dataSourceName)
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	var foreignKeys int
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeys); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to read foreign_keys pragma: %w", err)
	}
	if foreignKeys != 1 {
		db.Close()
		return nil, fmt.Errorf("foreign key enforcement is disabled by the DSN %q", dataSourceName)
	}

	if _, err = db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to execute base schema: %w", err)
	}

	if err := runMigrations(db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	if err := seed(db, adminPassword, logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("Database initialized and cache ready.")

	return &DatabaseService{
		DB:            db,
		logger:        logger,
		dsn:           dataSourceName,
		categoryCache: make(map[int64]*models.Category),
	}, nil
}

// seed inserts the admin account and default categories. It only looks at
// the user count: once any account exists, seeding never runs again.
func seed(db *sql.DB, adminPassword string, logger *slog.Logger) error {
	var userCount int
	if err := db.QueryRow("SELECT COUNT(*) FROM users").Scan(&userCount); err != nil {
		return fmt.Errorf("failed to count users: %w", err)
	}
	if userCount > 0 {
		logger.Info("Users already exist, skipping seed", "users", userCount)
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if rerr := tx.Rollback(); rerr != nil && rerr != sql.ErrTxDone {
			logger.Error("Failed to rollback seed transaction", "error", rerr)
		}
	}()

	if _, err := tx.Exec("INSERT INTO users (username, email, password, is_admin) VALUES (?, ?, ?, 1)",
		"admin", config.DefaultAdminEmail, string(hash)); err != nil {
		return fmt.Errorf("failed to seed admin user: %w", err)
	}

	stmt, err := tx.Prepare("INSERT INTO categories (name, description, icon, color) VALUES (?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare category seed: %w", err)
	}
	defer stmt.Close()
	for _, c := range defaultCategories {
		if _, err := stmt.Exec(c.Name, c.Description, c.Icon, c.Color); err != nil {
			return fmt.Errorf("failed to seed category %q: %w", c.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit seed: %w", err)
	}
	logger.Info("Seeded admin user and categories", "categories", len(defaultCategories))
	return nil
}

// dataDir returns the directory holding a file-backed DSN, or "" for
// in-memory databases and bare filenames.
func dataDir(dsn string) string {
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" || path == ":memory:" || strings.Contains(dsn, "mode=memory") {
		return ""
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return ""
	}
	return dir
}

// withForeignKeys turns on go-sqlite3's per-connection foreign key pragma
// unless the DSN already sets it.
func withForeignKeys(dsn string) string {
	if strings.Contains(dsn, "_foreign_keys=") || strings.Contains(dsn, "_fk=") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&_foreign_keys=on"
	}
	return dsn + "?_foreign_keys=on"
}

// runMigrations applies all un-applied migrations.
func runMigrations(db *sql.DB, logger *slog.Logger) error {
	var latestVersion uint
	err := db.QueryRow("SELECT version FROM schema_migrations ORDER BY version DESC LIMIT 1").Scan(&latestVersion)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("could not get db version: %w", err)
	}

	logger.Info("Current database schema version", "version", latestVersion)

	for _, m := range allMigrations {
		if m.Version <= latestVersion {
			continue
		}
		logger.Info("Applying migration", "version", m.Version)
		tx, err := db.Begin()
		if err != nil {
			return err
		}

		if _, err := tx.Exec(m.Query); err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				logger.Error("Failed to rollback migration", "version", m.Version, "error", rerr)
			}
			return fmt.Errorf("failed to apply migration v%d: %w", m.Version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)", m.Version, utils.SQLNow()); err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				logger.Error("Failed to rollback migration record", "version", m.Version, "error", rerr)
			}
			return fmt.Errorf("failed to record migration v%d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration v%d: %w", m.Version, err)
		}
		logger.Info("Successfully applied migration", "version", m.Version)
	}
	return nil
}

// BackupDatabase performs an online backup of the live SQLite database using VACUUM INTO.
func (ds *DatabaseService) BackupDatabase() (string, error) {
	if utils.BackupDir == "" {
		return "", fmt.Errorf("backup directory is not configured")
	}
	if err := os.MkdirAll(utils.BackupDir, 0755); err != nil {
		return "", fmt.Errorf("could not create backup directory %s: %w", utils.BackupDir, err)
	}

	timestamp := utils.GetSQLTime().Format("2006-01-02_15-04-05")
	backupPath := filepath.Join(utils.BackupDir, fmt.Sprintf("forum_backup_%s.db", timestamp))

	ds.logger.Info("Starting database backup", "destination", backupPath)

	if _, err := ds.DB.Exec("VACUUM INTO ?", backupPath); err != nil {
		if removeErr := os.Remove(backupPath); removeErr != nil && !os.IsNotExist(removeErr) {
			ds.logger.Error("Failed to remove incomplete backup file", "path", backupPath, "error", removeErr)
		}
		return "", fmt.Errorf("VACUUM INTO command failed: %w", err)
	}

	return backupPath, nil
}

// Close releases the underlying connection pool.
func (ds *DatabaseService) Close() error {
	return ds.DB.Close()
}
