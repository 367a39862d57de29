package chat

import (
	"sync"
	"time"

	"github.com/dkeye/Classroom/internal/domain"
	"github.com/google/uuid"
)

// Log is an append-only, in-memory chat log.
type Log struct {
	mu   sync.RWMutex
	msgs []domain.ChatMessage
	now  func() time.Time
}

func NewLog() *Log {
	return &Log{now: time.Now}
}

func (l *Log) Append(m domain.ChatMessage) domain.ChatMessage {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.At.IsZero() {
		m.At = l.now()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.msgs = append(l.msgs, m)
	return m
}

// System appends a note written by the client itself.
func (l *Log) System(text string) domain.ChatMessage {
	return l.Append(domain.ChatMessage{From: domain.SystemSender, Text: text, System: true})
}

func (l *Log) Messages() []domain.ChatMessage {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.ChatMessage, len(l.msgs))
	copy(out, l.msgs)
	return out
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.msgs)
}

// Reset empties the log; messages never cross a session boundary.
func (l *Log) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.msgs = nil
}
