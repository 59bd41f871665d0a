// nexor/models/models.go
package models

import (
	"time"
)

// --- Forum Models ---

type User struct {
	ID           int64      `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	IsAdmin      bool       `json:"is_admin"`
	Avatar       string     `json:"avatar"`
	CreatedAt    time.Time  `json:"created_at"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
	IsOnline     bool       `json:"is_online"`
}

type Category struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Icon        string    `json:"icon"`
	Color       string    `json:"color"`
	CreatedAt   time.Time `json:"created_at"`
	TopicCount  int       `json:"topic_count"`
	PostCount   int       `json:"post_count"`
}

type Topic struct {
	ID         int64     `json:"id"`
	CategoryID int64     `json:"category_id"`
	UserID     int64     `json:"user_id"`
	Author     string    `json:"author"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	IsPinned   bool      `json:"is_pinned"`
	IsLocked   bool      `json:"is_locked"`
	Views      int       `json:"views"`
	ReplyCount int       `json:"reply_count"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	Posts      []Post    `json:"posts,omitempty"`
}

type Post struct {
	ID        int64     `json:"id"`
	TopicID   int64     `json:"topic_id"`
	UserID    int64     `json:"user_id"`
	Author    string    `json:"author"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// --- Chat Models ---

type ChatRole string

const (
	RoleUser ChatRole = "user"
	RoleBot  ChatRole = "bot"
)

type ChatMessage struct {
	Role      ChatRole  `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// --- Contact Models ---

// ContactForm is the JSON object the site posts to the contact endpoint.
// ID is only set once the record has been captured by the local fallback.
type ContactForm struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Subject   string `json:"subject"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	Status    string `json:"status"`
}

// --- Admin Panel Models ---

type Contact struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	Subject       string    `json:"subject"`
	Message       string    `json:"message"`
	CreatedAt     time.Time `json:"created_at"`
	Status        string    `json:"status"`
	AdminResponse string    `json:"admin_response,omitempty"`
}

type AccessLog struct {
	IPAddress string    `json:"ip_address"`
	UserAgent string    `json:"user_agent"`
	Page      string    `json:"page"`
	Timestamp time.Time `json:"timestamp"`
	Username  string    `json:"username,omitempty"`
}

type PageVisits struct {
	Page   string `json:"page"`
	Visits int    `json:"visits"`
}

type ActivityItem struct {
	Username  string    `json:"username"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

type DashboardStats struct {
	TotalUsers      int            `json:"total_users"`
	TotalTopics     int            `json:"total_topics"`
	TotalPosts      int            `json:"total_posts"`
	PendingContacts int            `json:"pending_contacts"`
	OnlineUsers     int            `json:"online_users"`
	RecentTopics    []ActivityItem `json:"recent_topics"`
	RecentPosts     []ActivityItem `json:"recent_posts"`
}

type LogSummary struct {
	RecentLogs          []AccessLog  `json:"recent_logs"`
	TodayVisits         int          `json:"today_visits"`
	UniqueVisitorsToday int          `json:"unique_visitors_today"`
	PopularPages        []PageVisits `json:"popular_pages"`
}

type UserSummary struct {
	ID         int64     `json:"id"`
	Username   string    `json:"username"`
	Email      string    `json:"email"`
	CreatedAt  time.Time `json:"created_at"`
	IsOnline   bool      `json:"is_online"`
	IsAdmin    bool      `json:"is_admin"`
	TopicCount int       `json:"topic_count"`
	PostCount  int       `json:"post_count"`
}

type Bucket struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

type ActivityStats struct {
	UserRegistrations []Bucket `json:"user_registrations"`
	HourlyActivity    []Bucket `json:"hourly_activity"`
}
