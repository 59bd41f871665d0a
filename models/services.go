// nexor/models/services.go
package models

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// StorageService persists blobs either on local disk or in object storage.
type StorageService interface {
	SaveFile(filename string, data []byte, contentType string) (string, error)
	ReadFile(filename string) ([]byte, error)
	DeleteFile(path string) error
}

// --- Stateful Services ---

type RateLimiter struct {
	Mu       sync.RWMutex
	Limiters map[string]*rate.Limiter
	LastSeen map[string]time.Time
	every    time.Duration
	burst    int
	expire   time.Duration
}

// NewRateLimiter creates and starts a new rate limiter.
func NewRateLimiter(every time.Duration, burst int, prune, expire time.Duration) *RateLimiter {
	rl := &RateLimiter{
		Limiters: make(map[string]*rate.Limiter),
		LastSeen: make(map[string]time.Time),
		every:    every,
		burst:    burst,
		expire:   expire,
	}
	go rl.cleanup(prune)
	return rl
}

// GetLimiter retrieves or creates the limiter for a key, usually a route
// scope joined with the client IP.
func (rl *RateLimiter) GetLimiter(key string) *rate.Limiter {
	rl.Mu.Lock()
	defer rl.Mu.Unlock()
	limiter, exists := rl.Limiters[key]
	if !exists {
		limiter = rate.NewLimiter(rate.Every(rl.every), rl.burst)
		rl.Limiters[key] = limiter
	}
	rl.LastSeen[key] = time.Now()
	return limiter
}

// Allow is shorthand for GetLimiter(key).Allow().
func (rl *RateLimiter) Allow(key string) bool {
	return rl.GetLimiter(key).Allow()
}

// cleanup periodically removes old entries from the rate limiter maps.
func (rl *RateLimiter) cleanup(every time.Duration) {
	for range time.Tick(every) {
		rl.Mu.Lock()
		cutoff := time.Now().Add(-rl.expire)
		for key, lastSeen := range rl.LastSeen {
			if lastSeen.Before(cutoff) {
				delete(rl.Limiters, key)
				delete(rl.LastSeen, key)
			}
		}
		rl.Mu.Unlock()
	}
}
