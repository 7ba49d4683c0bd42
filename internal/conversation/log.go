// Package conversation keeps bounded per-session chat memory and an optional
// durable archive of completed exchanges.
package conversation

import (
	"sync"
	"time"

	"github.com/leapstack-labs/leapinsight/internal/config"
)

// Role identifies who wrote a message.
type Role string

// Message roles.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry in a conversation.
type Message struct {
	Role    Role      `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"timestamp"`
}

// Log is an append-only message list holding at most max entries. Older
// entries fall off the front.
type Log struct {
	mu       sync.Mutex
	messages []Message
	max      int
	now      func() time.Time
}

// NewLog creates an empty log bounded to max messages. A non-positive max
// uses the default.
func NewLog(max int) *Log {
	return newLog(max, time.Now)
}

func newLog(max int, now func() time.Time) *Log {
	if max <= 0 {
		max = config.DefaultMaxMessages
	}
	return &Log{max: max, now: now}
}

// Append adds one message.
func (l *Log) Append(role Role, content string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.push(Message{Role: role, Content: content, At: l.now()})
}

// AppendExchange adds a question and its answer as one step, so readers
// never observe a question without its answer.
func (l *Log) AppendExchange(question, answer string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	at := l.now()
	l.push(Message{Role: RoleUser, Content: question, At: at})
	l.push(Message{Role: RoleAssistant, Content: answer, At: at})
}

func (l *Log) push(m Message) {
	l.messages = append(l.messages, m)
	if over := len(l.messages) - l.max; over > 0 {
		l.messages = append(l.messages[:0:0], l.messages[over:]...)
	}
}

// All returns a copy of the messages, oldest first.
func (l *Log) All() []Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Message, len(l.messages))
	copy(out, l.messages)
	return out
}

// Len returns the number of messages held.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.messages)
}

// Max returns the bound.
func (l *Log) Max() int { return l.max }
