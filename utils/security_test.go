// nexor/utils/security_test.go
package utils

import (
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"
)

// TestHashIP ensures that hashing is consistent and produces the expected format.
func TestHashIP(t *testing.T) {
	IPSalt = "nexor-test-salt"
	defer func() { IPSalt = "" }()

	hash := HashIP("10.1.2.3")
	if len(hash) != 32 {
		t.Errorf("Expected hash length to be 32, but got %d", len(hash))
	}
	if hash != "67ca6771776a99fd4c8537521efa6e85" {
		t.Errorf("Unexpected hash %s", hash)
	}
	if HashIP("10.1.2.3") != hash {
		t.Error("Expected the same input to produce the same hash")
	}
	if HashIP("10.1.2.4") == hash {
		t.Error("Expected different inputs to produce different hashes")
	}
}

func TestGetIPAddress(t *testing.T) {
	TrustProxy = true
	defer func() { TrustProxy = false }()

	testCases := []struct {
		name       string
		headers    map[string]string
		remoteAddr string
		expected   string
	}{
		{"Remote Addr", nil, "192.168.1.10:5555", "192.168.1.10"},
		{"Cloudflare", map[string]string{"CF-Connecting-IP": "1.1.1.1", "X-Forwarded-For": "2.2.2.2"}, "10.0.0.1:1", "1.1.1.1"},
		{"Forwarded Chain", map[string]string{"X-Forwarded-For": "3.3.3.3, 10.0.0.1"}, "10.0.0.1:1", "3.3.3.3"},
		{"Real IP", map[string]string{"X-Real-IP": "4.4.4.4"}, "10.0.0.1:1", "4.4.4.4"},
		{"No Port", nil, "5.5.5.5", "5.5.5.5"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tc.remoteAddr
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			if got := GetIPAddress(req); got != tc.expected {
				t.Errorf("Expected %s, got %s", tc.expected, got)
			}
		})
	}
}

func TestGetIPAddressIgnoresHeadersWithoutProxy(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "203.0.113.9:4000"
	req.Header.Set("CF-Connecting-IP", "1.1.1.1")
	req.Header.Set("X-Forwarded-For", "10.0.0.1")
	req.Header.Set("X-Real-IP", "127.0.0.1")

	if got := GetIPAddress(req); got != "203.0.113.9" {
		t.Errorf("Expected the socket address 203.0.113.9, got %s", got)
	}
	if IsLAN(req) {
		t.Error("Spoofed forwarding headers must not make a public client look local")
	}
}

func TestIsLAN(t *testing.T) {
	testCases := []struct {
		addr string
		lan  bool
	}{
		{"127.0.0.1:80", true},
		{"192.168.0.5:80", true},
		{"10.20.30.40:80", true},
		{"[::1]:80", true},
		{"8.8.8.8:80", false},
		{"garbage", false},
	}
	for _, tc := range testCases {
		req := httptest.NewRequest("GET", "/", nil)
		req.RemoteAddr = tc.addr
		if got := IsLAN(req); got != tc.lan {
			t.Errorf("IsLAN(%s) = %v, want %v", tc.addr, got, tc.lan)
		}
	}
}

func TestIsValidEmail(t *testing.T) {
	valid := []string{"a@b.co", "maria.silva@nexorstudios.com", "x+tag@sub.domain.org"}
	invalid := []string{"", "plain", "a@b", "@b.co", "a b@c.de", "a@b .co"}
	for _, e := range valid {
		if !IsValidEmail(e) {
			t.Errorf("Expected %q to be valid", e)
		}
	}
	for _, e := range invalid {
		if IsValidEmail(e) {
			t.Errorf("Expected %q to be invalid", e)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate(5, "olá mundo"); got != "olá m..." {
		t.Errorf("Truncate cut runes incorrectly: %q", got)
	}
	if got := Truncate(20, "curto"); got != "curto" {
		t.Errorf("Short strings should be unchanged, got %q", got)
	}
}

func TestGetEnvHelpers(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	t.Setenv("NEXOR_TEST_DURATION", "90s")
	if d := GetEnvDuration(logger, "NEXOR_TEST_DURATION", "1s"); d != 90*time.Second {
		t.Errorf("Expected 90s, got %v", d)
	}
	t.Setenv("NEXOR_TEST_DURATION", "soon")
	if d := GetEnvDuration(logger, "NEXOR_TEST_DURATION", "1s"); d != time.Second {
		t.Errorf("Expected fallback 1s on invalid duration, got %v", d)
	}

	t.Setenv("NEXOR_TEST_INT", "7")
	if n := GetEnvInt(logger, "NEXOR_TEST_INT", 3); n != 7 {
		t.Errorf("Expected 7, got %d", n)
	}
	t.Setenv("NEXOR_TEST_INT", "seven")
	if n := GetEnvInt(logger, "NEXOR_TEST_INT", 3); n != 3 {
		t.Errorf("Expected fallback 3, got %d", n)
	}

	if GetEnvBool("NEXOR_TEST_UNSET_BOOL", true) != true {
		t.Error("Expected fallback true for unset bool")
	}
	t.Setenv("NEXOR_TEST_BOOL", "false")
	if GetEnvBool("NEXOR_TEST_BOOL", true) {
		t.Error("Expected false from environment")
	}
}

func TestLocalStorage(t *testing.T) {
	ls, err := NewLocalStorage(t.TempDir(), "/uploads/")
	if err != nil {
		t.Fatalf("NewLocalStorage failed: %v", err)
	}

	if _, err := ls.ReadFile("missing.json"); !errors.Is(err, ErrFileNotFound) {
		t.Errorf("Expected ErrFileNotFound, got %v", err)
	}

	ref, err := ls.SaveFile("../escape/data.json", []byte(`[]`), "application/json")
	if err != nil {
		t.Fatalf("SaveFile failed: %v", err)
	}
	if ref != "/uploads/data.json" {
		t.Errorf("Expected reference /uploads/data.json, got %s", ref)
	}
	data, err := ls.ReadFile("data.json")
	if err != nil || string(data) != "[]" {
		t.Errorf("ReadFile = %q, %v", data, err)
	}

	if err := ls.DeleteFile(ref); err != nil {
		t.Fatalf("DeleteFile failed: %v", err)
	}
	if err := ls.DeleteFile(ref); err != nil {
		t.Errorf("Deleting a missing file should not fail, got %v", err)
	}
}
