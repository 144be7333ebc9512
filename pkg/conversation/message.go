package conversation

import (
	"fmt"
	"strings"
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	// RoleSystem carries notices that are not part of the user/assistant
	// exchange, such as failed reply reports.
	RoleSystem Role = "system"
)

// Message is a single turn in a session's log. Once appended, a message's
// text and role never change; position in the log is the temporal order.
type Message struct {
	ID   MessageID `json:"id"`
	Role Role      `json:"role"`
	Text string    `json:"text"`
	Time time.Time `json:"time"`
}

func (m Message) View() string {
	return fmt.Sprintf("[%s]: %s", m.Role, strings.TrimRight(m.Text, "\n"))
}

// Log is the ordered, append-only record of one session's turns.
// It is not safe for concurrent use; the owning Store serializes access.
type Log struct {
	messages []Message
}

func (l *Log) Append(msg Message) {
	l.messages = append(l.messages, msg)
}

// Clear empties the log. Idempotent.
func (l *Log) Clear() {
	l.messages = nil
}

// Snapshot returns the messages in order. The returned slice is a copy,
// so callers cannot mutate history through it.
func (l *Log) Snapshot() []Message {
	if len(l.messages) == 0 {
		return nil
	}
	ret := make([]Message, len(l.messages))
	copy(ret, l.messages)
	return ret
}

func (l *Log) Len() int {
	return len(l.messages)
}
