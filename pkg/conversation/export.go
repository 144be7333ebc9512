package conversation

import (
	"encoding/json"
	"strings"
)

// ExportText renders a session transcript, one "[role]: text" line per
// message.
func (s *Store) ExportText(id SessionID) (string, error) {
	messages, err := s.Messages(id)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, msg := range messages {
		sb.WriteString(msg.View())
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

// ExportJSON renders a single session's snapshot as indented JSON.
func (s *Store) ExportJSON(id SessionID) ([]byte, error) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return nil, ErrSessionNotFound
	}
	ss := SessionSnapshot{
		ID:        sess.id,
		Name:      sess.name,
		CreatedAt: sess.createdAt,
		Messages:  sess.log.Snapshot(),
	}
	if sess.attachment != nil {
		ss.Attachment = &AttachmentSnapshot{
			MimeType: sess.attachment.MimeType,
			Payload:  sess.attachment.EncodeBase64(),
		}
	}
	s.mu.Unlock()

	return json.MarshalIndent(ss, "", "  ")
}
