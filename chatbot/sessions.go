// nexor/chatbot/sessions.go
package chatbot

import (
	"sync"
	"time"

	"nexor/utils"
)

// Sessions keeps one Conversation per visitor and drops idle ones.
type Sessions struct {
	mu        sync.Mutex
	convs     map[string]*Conversation
	resolver  *Resolver
	typingMin time.Duration
	typingMax time.Duration
	ttl       time.Duration
}

// NewSessions creates the store and starts pruning conversations that have
// been idle for longer than ttl.
func NewSessions(resolver *Resolver, typingMin, typingMax, ttl time.Duration) *Sessions {
	s := &Sessions{
		convs:     make(map[string]*Conversation),
		resolver:  resolver,
		typingMin: typingMin,
		typingMax: typingMax,
		ttl:       ttl,
	}
	if ttl > 0 {
		go s.cleanup(ttl / 2)
	}
	return s
}

// Get returns the conversation for id, creating it on first use.
func (s *Sessions) Get(id string) *Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.convs[id]
	if !ok {
		conv = NewConversation(s.resolver, s.typingMin, s.typingMax)
		s.convs[id] = conv
	}
	return conv
}

// Lookup returns the conversation for id without creating one.
func (s *Sessions) Lookup(id string) (*Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.convs[id]
	return conv, ok
}

// Len reports the number of live conversations.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.convs)
}

// Prune removes conversations idle since before now-ttl and returns how
// many were dropped.
func (s *Sessions) Prune(now time.Time) int {
	cutoff := now.Add(-s.ttl)
	s.mu.Lock()
	defer s.mu.Unlock()
	dropped := 0
	for id, conv := range s.convs {
		if conv.LastActive().Before(cutoff) {
			delete(s.convs, id)
			dropped++
		}
	}
	return dropped
}

func (s *Sessions) cleanup(every time.Duration) {
	for range time.Tick(every) {
		s.Prune(utils.GetTime())
	}
}
