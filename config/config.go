// nexor/config/config.go
package config

import "time"

const (
	AppVersion = "1.4.0"

	// Storage
	DefaultDBPath     = "./data/forum.db?_journal_mode=WAL&_foreign_keys=on"
	DefaultDataDir    = "./data"
	DefaultBackupDir  = "./backups"
	ContactsKey       = "nexor_contacts"
	DefaultAvatar     = "default.png"
	DefaultAdminEmail = "admin@nexorstudios.com"
	DefaultAdminPass  = "admin123"

	// Chatbot typing simulation
	DefaultTypingMin = "1s"
	DefaultTypingMax = "2s"
	DefaultChatTTL   = "2h"
	MaxChatMessage   = 1000

	// Form & Post Limits
	MinUsernameLen  = 3
	MaxUsernameLen  = 50
	MaxEmailLen     = 100
	MinPasswordLen  = 6
	MaxTitleLen     = 200
	MaxContentLen   = 10000
	MinContactName  = 2
	MaxContactField = 5000
	TopicsPageSize  = 20

	// Avatar Upload Limits
	MaxAvatarSize = 2 * 1024 * 1024 // 2MB
	MaxAvatarDim  = 4000
	AvatarSize    = 128

	// Rate Limiting Defaults
	DefaultRateLimitEvery  = "2s"
	DefaultRateLimitBurst  = 5
	DefaultRateLimitPrune  = "1h"
	DefaultRateLimitExpire = "24h"

	// Sessions
	DefaultSessionLifetime = "24h"

	// Contact intake
	IntakeTokenHeader = "X-Nexor-Intake-Token"

	// Admin panel
	OnlineWindow   = 15 * time.Minute
	RecentActivity = 5
	RecentLogs     = 100
	TopPages       = 10
)
