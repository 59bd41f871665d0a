// nexor/utils/security.go
package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"regexp"
	"strings"
)

var (
	IPSalt string

	// TrustProxy makes GetIPAddress honour forwarding headers. Only set it
	// when the server sits behind a proxy that overwrites them.
	TrustProxy bool

	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

// GetIPAddress extracts the client IP address from a request. Proxy headers
// are only read when TrustProxy is set.
func GetIPAddress(r *http.Request) string {
	if TrustProxy {
		if ip := forwardedIP(r); ip != "" {
			return ip
		}
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

func forwardedIP(r *http.Request) string {
	if cf := r.Header.Get("CF-Connecting-IP"); cf != "" {
		return cf
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	return r.Header.Get("X-Real-IP")
}

// HashIP creates a salted SHA256 hash of a string and returns a truncated hex string.
func HashIP(ip string) string {
	hash := sha256.Sum256([]byte(ip + IPSalt))
	return hex.EncodeToString(hash[:16])
}

// IsLAN checks if the request is coming from a private or loopback IP address.
func IsLAN(r *http.Request) bool {
	ip := net.ParseIP(GetIPAddress(r))
	return ip != nil && (ip.IsPrivate() || ip.IsLoopback())
}

// IsValidEmail applies the same loose check the site's forms use.
func IsValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}
