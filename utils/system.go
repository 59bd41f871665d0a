// nexor/utils/system.go
package utils

import (
	"time"
)

// GetTime returns the current time. Useful for mocking in tests.
func GetTime() time.Time {
	return time.Now()
}

// GetSQLTime returns the current time in UTC for database storage.
func GetSQLTime() time.Time {
	return time.Now().UTC()
}

// ISOTimestamp formats t the way the contact form stamps submissions.
func ISOTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

// SQLTimeFormat matches SQLite's CURRENT_TIMESTAMP so written and defaulted
// columns compare and parse the same way.
const SQLTimeFormat = "2006-01-02 15:04:05"

// SQLNow returns the current UTC time formatted for a DATETIME column.
func SQLNow() string {
	return GetSQLTime().Format(SQLTimeFormat)
}
