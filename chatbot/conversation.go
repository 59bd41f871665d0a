// nexor/chatbot/conversation.go
package chatbot

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"nexor/models"
	"nexor/utils"
)

// ErrEmptyMessage is returned for blank input. Nothing is appended.
var ErrEmptyMessage = errors.New("message is empty")

// Conversation is the append-only message history of one chat session.
type Conversation struct {
	mu         sync.Mutex
	resolver   *Resolver
	messages   []models.ChatMessage
	typingMin  time.Duration
	typingMax  time.Duration
	lastActive time.Time
}

// NewConversation starts an empty history. Replies are delayed by a
// uniform duration in [typingMin, typingMax).
func NewConversation(resolver *Resolver, typingMin, typingMax time.Duration) *Conversation {
	if typingMax < typingMin {
		typingMax = typingMin
	}
	return &Conversation{
		resolver:   resolver,
		typingMin:  typingMin,
		typingMax:  typingMax,
		lastActive: utils.GetTime(),
	}
}

// Send appends the user's message, waits the typing delay and appends the
// bot reply. If ctx is cancelled during the delay the user message stays
// in the history and no reply is appended.
func (c *Conversation) Send(ctx context.Context, text string) (models.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.ChatMessage{}, ErrEmptyMessage
	}

	c.append(models.RoleUser, text)

	if d := c.typingDelay(); d > 0 {
		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return models.ChatMessage{}, ctx.Err()
		case <-timer.C:
		}
	}

	return c.append(models.RoleBot, c.resolver.Resolve(text)), nil
}

func (c *Conversation) append(role models.ChatRole, text string) models.ChatMessage {
	msg := models.ChatMessage{Role: role, Text: text, Timestamp: utils.GetTime()}
	c.mu.Lock()
	c.messages = append(c.messages, msg)
	c.lastActive = msg.Timestamp
	c.mu.Unlock()
	return msg
}

func (c *Conversation) typingDelay() time.Duration {
	span := c.typingMax - c.typingMin
	if span <= 0 {
		return c.typingMin
	}
	return c.typingMin + rand.N(span)
}

// Messages returns a copy of the history in send order.
func (c *Conversation) Messages() []models.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.ChatMessage, len(c.messages))
	copy(out, c.messages)
	return out
}

// LastActive reports when the conversation last changed.
func (c *Conversation) LastActive() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActive
}
