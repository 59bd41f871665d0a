// nexor/utils/utils.go
package utils

// BackupDir is where BackupDatabase writes its snapshots.
var BackupDir string

// Truncate shortens s to max runes, appending an ellipsis when cut.
func Truncate(max int, s string) string {
	runes := []rune(s)
	if len(runes) > max {
		return string(runes[:max]) + "..."
	}
	return s
}
