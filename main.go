// nexor/main.go
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"nexor/chatbot"
	"nexor/config"
	"nexor/contact"
	"nexor/database"
	"nexor/handlers"
	"nexor/models"
	"nexor/utils"

	"github.com/alexedwards/scs/v2"
)

type Application struct {
	db          *database.DatabaseService
	rateLimiter *models.RateLimiter
	logger      *slog.Logger
	chat        *chatbot.Sessions
	contacts    *contact.Submitter
	fallback    *contact.FallbackStore
	sessions    *scs.SessionManager
	storage     models.StorageService
}

// Methods to satisfy the handlers.App interface
func (a *Application) DB() *database.DatabaseService    { return a.db }
func (a *Application) RateLimiter() *models.RateLimiter { return a.rateLimiter }
func (a *Application) Logger() *slog.Logger             { return a.logger }
func (a *Application) Chat() *chatbot.Sessions          { return a.chat }
func (a *Application) Contacts() *contact.Submitter     { return a.contacts }
func (a *Application) Fallback() *contact.FallbackStore { return a.fallback }
func (a *Application) Sessions() *scs.SessionManager    { return a.sessions }
func (a *Application) Storage() models.StorageService   { return a.storage }

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	saltBytes := make([]byte, 32)
	if _, err := rand.Read(saltBytes); err != nil {
		logger.Error("Failed to generate IP salt", "error", err)
		os.Exit(1)
	}
	utils.IPSalt = hex.EncodeToString(saltBytes)
	utils.TrustProxy = utils.GetEnvBool("NEXOR_TRUST_PROXY", false)

	// --- External Configuration ---
	port := utils.GetEnv("NEXOR_PORT", "8080")
	dbPath := utils.GetEnv("NEXOR_DB_PATH", config.DefaultDBPath)
	dataDir := utils.GetEnv("NEXOR_DATA_DIR", config.DefaultDataDir)
	adminPassword := utils.GetEnv("NEXOR_ADMIN_PASSWORD", config.DefaultAdminPass)
	contactEndpoint := utils.GetEnv("NEXOR_CONTACT_ENDPOINT", "http://localhost:"+port+"/api/contacts")
	contactTimeout := utils.GetEnvDuration(logger, "NEXOR_CONTACT_TIMEOUT", "10s")
	intakeToken := utils.GetEnv("NEXOR_INTAKE_TOKEN", "")
	if intakeToken == "" {
		tokenBytes := make([]byte, 32)
		if _, err := rand.Read(tokenBytes); err != nil {
			logger.Error("Failed to generate contact intake token", "error", err)
			os.Exit(1)
		}
		intakeToken = hex.EncodeToString(tokenBytes)
	}

	utils.BackupDir = utils.GetEnv("NEXOR_BACKUP_DIR", config.DefaultBackupDir)
	if err := os.MkdirAll(utils.BackupDir, 0755); err != nil {
		logger.Error("FATAL: Could not create backup directory", "path", utils.BackupDir, "error", err)
		os.Exit(1)
	}

	rateLimitEvery := utils.GetEnvDuration(logger, "NEXOR_RATE_EVERY", config.DefaultRateLimitEvery)
	rateLimitBurst := utils.GetEnvInt(logger, "NEXOR_RATE_BURST", config.DefaultRateLimitBurst)
	rateLimitPrune := utils.GetEnvDuration(logger, "NEXOR_RATE_PRUNE", config.DefaultRateLimitPrune)
	rateLimitExpire := utils.GetEnvDuration(logger, "NEXOR_RATE_EXPIRE", config.DefaultRateLimitExpire)

	typingMin := utils.GetEnvDuration(logger, "NEXOR_CHAT_TYPING_MIN", config.DefaultTypingMin)
	typingMax := utils.GetEnvDuration(logger, "NEXOR_CHAT_TYPING_MAX", config.DefaultTypingMax)
	chatTTL := utils.GetEnvDuration(logger, "NEXOR_CHAT_TTL", config.DefaultChatTTL)
	sessionLifetime := utils.GetEnvDuration(logger, "NEXOR_SESSION_LIFETIME", config.DefaultSessionLifetime)

	dbService, err := database.InitDB(dbPath, adminPassword, logger)
	if err != nil {
		logger.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbService.Close(); err != nil {
			logger.Error("Failed to close database", "error", err)
		}
	}()
	if adminPassword == config.DefaultAdminPass {
		logger.Warn("Admin account uses the default password; set NEXOR_ADMIN_PASSWORD before first run")
	}

	// --- Storage Service Init ---
	// Avatars and the contact fallback share one backend, under separate prefixes.
	var avatarStorage, dataStorage models.StorageService
	var publicStorageURL, localUploadDir string
	if utils.GetEnvBool("NEXOR_S3_ENABLED", false) {
		endpoint := utils.GetEnv("NEXOR_S3_ENDPOINT", "")
		bucket := utils.GetEnv("NEXOR_S3_BUCKET", "")
		s3Store, err := utils.NewS3Storage(
			endpoint,
			utils.GetEnv("NEXOR_S3_ACCESS_KEY", ""),
			utils.GetEnv("NEXOR_S3_SECRET_KEY", ""),
			bucket,
			utils.GetEnv("NEXOR_S3_REGION", "us-east-1"),
			utils.GetEnv("NEXOR_S3_PUBLIC_URL", ""),
			utils.GetEnvBool("NEXOR_S3_USE_SSL", true),
		)
		if err != nil {
			logger.Error("Failed to initialize S3 storage", "error", err)
			os.Exit(1)
		}
		avatarStorage = s3Store.WithPrefix("avatars")
		dataStorage = s3Store.WithPrefix("data")
		publicStorageURL = s3Store.PublicURL
		logger.Info("S3 Storage initialized", "endpoint", endpoint, "bucket", bucket)
	} else {
		localUploadDir = utils.GetEnv("NEXOR_UPLOAD_DIR", "./uploads")
		uploads, err := utils.NewLocalStorage(localUploadDir, "/uploads")
		if err != nil {
			logger.Error("FATAL: Could not create uploads directory", "error", err)
			os.Exit(1)
		}
		data, err := utils.NewLocalStorage(dataDir, "")
		if err != nil {
			logger.Error("FATAL: Could not create data directory", "error", err)
			os.Exit(1)
		}
		avatarStorage, dataStorage = uploads, data
		logger.Info("Local Storage initialized", "uploads", localUploadDir, "data", dataDir)
	}

	sessionManager := scs.New()
	sessionManager.Lifetime = sessionLifetime
	sessionManager.Cookie.Name = "nexor_session"
	sessionManager.Cookie.HttpOnly = true
	sessionManager.Cookie.SameSite = http.SameSiteLaxMode
	sessionManager.Cookie.Secure = utils.GetEnvBool("NEXOR_SECURE_COOKIES", false)

	fallback := contact.NewFallbackStore(dataStorage)
	app := &Application{
		db:          dbService,
		rateLimiter: models.NewRateLimiter(rateLimitEvery, rateLimitBurst, rateLimitPrune, rateLimitExpire),
		logger:      logger,
		chat:        chatbot.NewSessions(chatbot.NewResolver(), typingMin, typingMax, chatTTL),
		contacts:    contact.NewSubmitter(contactEndpoint, intakeToken, contactTimeout, fallback, logger),
		fallback:    fallback,
		sessions:    sessionManager,
		storage:     avatarStorage,
	}

	mux := handlers.SetupRouter(app, localUploadDir)
	finalHandler := handlers.Wrap(mux, publicStorageURL)

	// --- Graceful Shutdown ---
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           finalHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed unexpectedly", "error", err)
			os.Exit(1)
		}
	}()

	logger.Info("nexor server started successfully",
		"version", config.AppVersion,
		"address", "http://localhost:"+port,
		"contact_endpoint", contactEndpoint,
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}
	logger.Info("Server exiting")
}
