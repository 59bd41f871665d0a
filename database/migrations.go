// nexor/database/migrations.go
package database

// migration represents a single database schema migration.
type migration struct {
	Version uint
	Query   string
}

// allMigrations holds all schema changes in order.
var allMigrations = []migration{
	{
		Version: 1,
		Query: `
-- Indexes for the forum listing and admin panel queries
CREATE INDEX IF NOT EXISTS idx_topics_category ON topics(category_id, is_pinned DESC, updated_at DESC);
CREATE INDEX IF NOT EXISTS idx_posts_topic ON posts(topic_id);
CREATE INDEX IF NOT EXISTS idx_access_logs_time ON access_logs(timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_contacts_status ON contacts(status);
		`,
	},
}
