// Package memory provides conversation history storage for multi-turn
// question answering sessions.
package memory

import (
	"strings"
	"sync"
	"time"
)

// Message represents a single message in a conversation.
type Message struct {
	Role      string // "user" or "assistant"
	Content   string
	Timestamp time.Time
}

// conversation holds the message history for one session.
type conversation struct {
	messages  []Message
	updatedAt time.Time
}

// Store provides in-memory conversation storage keyed by session id.
// Sessions expire after a period of inactivity.
type Store struct {
	mu            sync.RWMutex
	conversations map[string]*conversation
	maxMessages   int
	ttl           time.Duration
	done          chan struct{}
	closeOnce     sync.Once
}

// NewStore creates a conversation store. maxMessages bounds how many
// messages a session retains; ttl is the inactivity window after which a
// session is dropped.
func NewStore(maxMessages int, ttl time.Duration) *Store {
	s := &Store{
		conversations: make(map[string]*conversation),
		maxMessages:   maxMessages,
		ttl:           ttl,
		done:          make(chan struct{}),
	}

	go s.cleanupLoop()

	return s
}

// DefaultStore creates a store holding 20 messages per session with a
// one hour inactivity TTL.
func DefaultStore() *Store {
	return NewStore(20, time.Hour)
}

// AddUserMessage adds a user message to the session.
func (s *Store) AddUserMessage(sessionID, content string) {
	s.addMessage(sessionID, "user", content)
}

// AddAssistantMessage adds an assistant message to the session.
func (s *Store) AddAssistantMessage(sessionID, content string) {
	s.addMessage(sessionID, "assistant", content)
}

func (s *Store) addMessage(sessionID, role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, exists := s.conversations[sessionID]
	if !exists {
		conv = &conversation{}
		s.conversations[sessionID] = conv
	}

	conv.messages = append(conv.messages, Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	})
	conv.updatedAt = time.Now()

	if len(conv.messages) > s.maxMessages {
		conv.messages = conv.messages[len(conv.messages)-s.maxMessages:]
	}
}

// History returns a copy of the session's messages, or nil if the session
// does not exist.
func (s *Store) History(sessionID string) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, exists := s.conversations[sessionID]
	if !exists {
		return nil
	}

	messages := make([]Message, len(conv.messages))
	copy(messages, conv.messages)
	return messages
}

// RecentHistory returns the last n messages of the session.
func (s *Store) RecentHistory(sessionID string, n int) []Message {
	history := s.History(sessionID)
	if len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}

// ClearSession removes a session from the store.
func (s *Store) ClearSession(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conversations, sessionID)
}

// Close stops the background cleanup loop.
func (s *Store) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}

func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.removeExpired()
		case <-s.done:
			return
		}
	}
}

func (s *Store) removeExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for id, conv := range s.conversations {
		if now.Sub(conv.updatedAt) > s.ttl {
			delete(s.conversations, id)
		}
	}
}

// FormatForPrompt renders the history for inclusion in an LLM prompt.
// Returns the empty string when there is no history.
func FormatForPrompt(messages []Message) string {
	if len(messages) == 0 {
		return ""
	}

	var b strings.Builder
	for _, msg := range messages {
		switch msg.Role {
		case "user":
			b.WriteString("User: " + msg.Content + "\n")
		case "assistant":
			b.WriteString("Assistant: " + msg.Content + "\n")
		}
	}
	return b.String()
}
