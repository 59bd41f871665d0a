package database

import (
	"database/sql"
	"fmt"
	"time"

	"nexor/config"
	"nexor/models"
	"nexor/utils"
)

// --- Contacts ---

// InsertContact stores a submission coming through the contact endpoint.
func (ds *DatabaseService) InsertContact(form models.ContactForm) (int64, error) {
	res, err := ds.DB.Exec(insertContactSQL, contactArgs(form)...)
	if err != nil {
		return 0, fmt.Errorf("failed to insert contact: %w", err)
	}
	return res.LastInsertId()
}

// ImportContacts inserts a batch of fallback records in a single transaction.
func (ds *DatabaseService) ImportContacts(forms []models.ContactForm) (int, error) {
	if len(forms) == 0 {
		return 0, nil
	}
	tx, err := ds.DB.Begin()
	if err != nil {
		return 0, err
	}
	defer func() {
		if rerr := tx.Rollback(); rerr != nil && rerr != sql.ErrTxDone {
			ds.logger.Error("Failed to rollback transaction in ImportContacts", "error", rerr)
		}
	}()

	stmt, err := tx.Prepare(insertContactSQL)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare contact import: %w", err)
	}
	defer stmt.Close()

	for _, f := range forms {
		if _, err := stmt.Exec(contactArgs(f)...); err != nil {
			return 0, fmt.Errorf("failed to import contact %s: %w", f.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(forms), nil
}

const insertContactSQL = "INSERT INTO contacts (name, email, subject, message, created_at, status) VALUES (?, ?, ?, ?, ?, ?)"

func contactArgs(f models.ContactForm) []any {
	created := utils.GetSQLTime()
	if t, err := time.Parse(time.RFC3339, f.Timestamp); err == nil {
		created = t.UTC()
	}
	status := f.Status
	if status == "" {
		status = "pending"
	}
	return []any{f.Name, f.Email, f.Subject, f.Message, created.Format(utils.SQLTimeFormat), status}
}

// ListContacts returns every stored contact, newest first.
func (ds *DatabaseService) ListContacts() ([]models.Contact, error) {
	rows, err := ds.DB.Query(`
		SELECT id, name, email, subject, message, created_at, status, admin_response
		FROM contacts ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			ds.logger.Error("Failed to close rows in ListContacts", "error", err)
		}
	}()

	var contacts []models.Contact
	for rows.Next() {
		var c models.Contact
		var response sql.NullString
		if err := rows.Scan(&c.ID, &c.Name, &c.Email, &c.Subject, &c.Message, &c.CreatedAt, &c.Status, &response); err != nil {
			ds.logger.Error("Failed to scan contact row", "error", err)
			continue
		}
		c.AdminResponse = response.String
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

// RespondContact records the admin's answer and marks the contact responded.
func (ds *DatabaseService) RespondContact(id int64, response string) error {
	res, err := ds.DB.Exec("UPDATE contacts SET admin_response = ?, status = 'responded' WHERE id = ?", response, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Access Logs ---

// LogAccess records a page view. userID is zero for anonymous visitors.
func (ds *DatabaseService) LogAccess(ip, userAgent, page string, userID int64) error {
	var uid sql.NullInt64
	if userID > 0 {
		uid = sql.NullInt64{Int64: userID, Valid: true}
	}
	_, err := ds.DB.Exec("INSERT INTO access_logs (ip_address, user_agent, page, timestamp, user_id) VALUES (?, ?, ?, ?, ?)",
		ip, userAgent, page, utils.SQLNow(), uid)
	return err
}

// AccessLogSummary gathers the recent log tail and today's visit counters.
func (ds *DatabaseService) AccessLogSummary() (*models.LogSummary, error) {
	summary := &models.LogSummary{}

	rows, err := ds.DB.Query(`
		SELECT al.ip_address, al.user_agent, al.page, al.timestamp, u.username
		FROM access_logs al
		LEFT JOIN users u ON al.user_id = u.id
		ORDER BY al.timestamp DESC, al.id DESC
		LIMIT ?`, config.RecentLogs)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var l models.AccessLog
		var ua, username sql.NullString
		if err := rows.Scan(&l.IPAddress, &ua, &l.Page, &l.Timestamp, &username); err != nil {
			ds.logger.Error("Failed to scan access log row", "error", err)
			continue
		}
		l.UserAgent, l.Username = ua.String, username.String
		summary.RecentLogs = append(summary.RecentLogs, l)
	}
	if err := rows.Close(); err != nil {
		ds.logger.Warn("Failed to close access log rows", "error", err)
	}

	if err := ds.DB.QueryRow(`SELECT COUNT(*) FROM access_logs WHERE DATE(timestamp) = DATE('now')`).Scan(&summary.TodayVisits); err != nil {
		return nil, err
	}
	if err := ds.DB.QueryRow(`SELECT COUNT(DISTINCT ip_address) FROM access_logs WHERE DATE(timestamp) = DATE('now')`).Scan(&summary.UniqueVisitorsToday); err != nil {
		return nil, err
	}

	pageRows, err := ds.DB.Query(`
		SELECT page, COUNT(*) AS visits
		FROM access_logs
		WHERE DATE(timestamp) >= DATE('now', '-7 days')
		GROUP BY page
		ORDER BY visits DESC, page
		LIMIT ?`, config.TopPages)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := pageRows.Close(); err != nil {
			ds.logger.Error("Failed to close rows in AccessLogSummary", "error", err)
		}
	}()
	for pageRows.Next() {
		var pv models.PageVisits
		if err := pageRows.Scan(&pv.Page, &pv.Visits); err == nil {
			summary.PopularPages = append(summary.PopularPages, pv)
		}
	}
	return summary, pageRows.Err()
}

// --- Dashboard ---

// DashboardStats computes the admin landing-page counters.
func (ds *DatabaseService) DashboardStats(onlineWindow time.Duration) (*models.DashboardStats, error) {
	stats := &models.DashboardStats{}
	counters := []struct {
		query string
		dest  *int
		args  []any
	}{
		{"SELECT COUNT(*) FROM users", &stats.TotalUsers, nil},
		{"SELECT COUNT(*) FROM topics", &stats.TotalTopics, nil},
		{"SELECT COUNT(*) FROM posts", &stats.TotalPosts, nil},
		{"SELECT COUNT(*) FROM contacts WHERE status = 'pending'", &stats.PendingContacts, nil},
		{"SELECT COUNT(DISTINCT user_id) FROM access_logs WHERE timestamp > ? AND user_id IS NOT NULL",
			&stats.OnlineUsers, []any{utils.GetSQLTime().Add(-onlineWindow).Format(utils.SQLTimeFormat)}},
	}
	for _, c := range counters {
		if err := ds.DB.QueryRow(c.query, c.args...).Scan(c.dest); err != nil {
			return nil, fmt.Errorf("dashboard counter failed: %w", err)
		}
	}

	var err error
	stats.RecentTopics, err = ds.recentActivity(`
		SELECT u.username, t.title, t.created_at
		FROM topics t JOIN users u ON t.user_id = u.id
		ORDER BY t.created_at DESC, t.id DESC LIMIT ?`)
	if err != nil {
		return nil, err
	}
	stats.RecentPosts, err = ds.recentActivity(`
		SELECT u.username, p.content, p.created_at
		FROM posts p JOIN users u ON p.user_id = u.id
		ORDER BY p.created_at DESC, p.id DESC LIMIT ?`)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func (ds *DatabaseService) recentActivity(query string) ([]models.ActivityItem, error) {
	rows, err := ds.DB.Query(query, config.RecentActivity)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			ds.logger.Error("Failed to close rows in recentActivity", "error", err)
		}
	}()
	var items []models.ActivityItem
	for rows.Next() {
		var item models.ActivityItem
		if err := rows.Scan(&item.Username, &item.Text, &item.CreatedAt); err != nil {
			ds.logger.Error("Failed to scan activity row", "error", err)
			continue
		}
		item.Text = utils.Truncate(120, item.Text)
		items = append(items, item)
	}
	return items, rows.Err()
}

// ListUsers returns every account with its topic and post counts.
func (ds *DatabaseService) ListUsers() ([]models.UserSummary, error) {
	rows, err := ds.DB.Query(`
		SELECT u.id, u.username, u.email, u.created_at, u.is_online, u.is_admin,
		       COUNT(DISTINCT t.id) AS topic_count,
		       COUNT(DISTINCT p.id) AS post_count
		FROM users u
		LEFT JOIN topics t ON u.id = t.user_id
		LEFT JOIN posts p ON u.id = p.user_id
		GROUP BY u.id
		ORDER BY u.created_at DESC, u.id DESC`)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			ds.logger.Error("Failed to close rows in ListUsers", "error", err)
		}
	}()
	var users []models.UserSummary
	for rows.Next() {
		var u models.UserSummary
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.CreatedAt, &u.IsOnline, &u.IsAdmin, &u.TopicCount, &u.PostCount); err != nil {
			ds.logger.Error("Failed to scan user summary row", "error", err)
			continue
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// ActivityStats returns registrations per day over the last week and
// today's access log activity per hour.
func (ds *DatabaseService) ActivityStats() (*models.ActivityStats, error) {
	stats := &models.ActivityStats{}
	var err error
	stats.UserRegistrations, err = ds.buckets(`
		SELECT DATE(created_at) AS day, COUNT(*)
		FROM users
		WHERE DATE(created_at) >= DATE('now', '-7 days')
		GROUP BY day ORDER BY day`)
	if err != nil {
		return nil, err
	}
	stats.HourlyActivity, err = ds.buckets(`
		SELECT strftime('%H', timestamp) AS hour, COUNT(*)
		FROM access_logs
		WHERE DATE(timestamp) = DATE('now')
		GROUP BY hour ORDER BY hour`)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func (ds *DatabaseService) buckets(query string) ([]models.Bucket, error) {
	rows, err := ds.DB.Query(query)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			ds.logger.Error("Failed to close rows in buckets", "error", err)
		}
	}()
	out := []models.Bucket{}
	for rows.Next() {
		var b models.Bucket
		if err := rows.Scan(&b.Label, &b.Count); err != nil {
			ds.logger.Error("Failed to scan bucket row", "error", err)
			continue
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// --- Site Settings ---

// GetSettings returns every site setting as a key/value map.
func (ds *DatabaseService) GetSettings() (map[string]string, error) {
	rows, err := ds.DB.Query("SELECT key, value FROM site_settings ORDER BY key")
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			ds.logger.Error("Failed to close rows in GetSettings", "error", err)
		}
	}()
	settings := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err == nil {
			settings[k] = v
		}
	}
	return settings, rows.Err()
}

// PutSetting upserts one site setting.
func (ds *DatabaseService) PutSetting(key, value string) error {
	_, err := ds.DB.Exec(`INSERT INTO site_settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, utils.SQLNow())
	return err
}
