package conversation

import (
	"encoding/json"
	"os"
	"time"

	"github.com/pkg/errors"
)

// Conversation state does not survive a restart on its own. Callers that
// want continuity snapshot the store explicitly and restore it on start.

type AttachmentSnapshot struct {
	MimeType string `json:"mimeType"`
	Payload  string `json:"payload"`
}

type SessionSnapshot struct {
	ID         SessionID           `json:"id"`
	Name       string              `json:"name"`
	CreatedAt  time.Time           `json:"createdAt"`
	Messages   []Message           `json:"messages"`
	Attachment *AttachmentSnapshot `json:"attachment,omitempty"`
}

type StoreSnapshot struct {
	Sessions []SessionSnapshot `json:"sessions"`
	Active   *SessionID        `json:"active,omitempty"`
	LastID   int64             `json:"lastID"`
}

// Snapshot captures the full store state in a serializable form.
func (s *Store) Snapshot() StoreSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := StoreSnapshot{}
	lastID := int64(0)
	for _, id := range s.order {
		sess := s.sessions[id]
		if int64(sess.id) > lastID {
			lastID = int64(sess.id)
		}
		ss := SessionSnapshot{
			ID:        sess.id,
			Name:      sess.name,
			CreatedAt: sess.createdAt,
			Messages:  sess.log.Snapshot(),
		}
		for _, msg := range ss.Messages {
			if int64(msg.ID) > lastID {
				lastID = int64(msg.ID)
			}
		}
		if sess.attachment != nil {
			ss.Attachment = &AttachmentSnapshot{
				MimeType: sess.attachment.MimeType,
				Payload:  sess.attachment.EncodeBase64(),
			}
		}
		snapshot.Sessions = append(snapshot.Sessions, ss)
	}
	if s.hasActive {
		active := s.active
		snapshot.Active = &active
	}
	snapshot.LastID = lastID
	return snapshot
}

// SaveToFile persists the current store state to a JSON file.
func (s *Store) SaveToFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "failed to create snapshot file")
	}
	defer func(f *os.File) {
		_ = f.Close()
	}(f)

	encoder := json.NewEncoder(f)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(s.Snapshot()); err != nil {
		return errors.Wrap(err, "failed to encode snapshot")
	}

	return nil
}

// LoadStoreFromFile restores a store from a snapshot written by SaveToFile.
func LoadStoreFromFile(path string, options ...StoreOption) (*Store, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read snapshot file")
	}

	var snapshot StoreSnapshot
	if err := json.Unmarshal(b, &snapshot); err != nil {
		return nil, errors.Wrap(err, "failed to decode snapshot")
	}

	return NewStoreFromSnapshot(snapshot, options...)
}

// NewStoreFromSnapshot rebuilds a store from a snapshot. Identifier issuance
// resumes past the highest restored ID.
func NewStoreFromSnapshot(snapshot StoreSnapshot, options ...StoreOption) (*Store, error) {
	ret := NewStore(options...)
	ret.ids.Seed(snapshot.LastID)

	ret.mu.Lock()
	defer ret.mu.Unlock()
	for _, ss := range snapshot.Sessions {
		sess := &session{
			id:        ss.ID,
			name:      ss.Name,
			createdAt: ss.CreatedAt,
		}
		if sess.createdAt.IsZero() {
			sess.createdAt = ret.clock()
		}
		for _, msg := range ss.Messages {
			sess.log.Append(msg)
		}
		if ss.Attachment != nil {
			attachment, err := DecodeBase64Attachment(ss.Attachment.MimeType, ss.Attachment.Payload)
			if err != nil {
				return nil, errors.Wrapf(err, "session %d", ss.ID)
			}
			sess.attachment = &attachment
		}
		ret.sessions[ss.ID] = sess
		ret.order = append(ret.order, ss.ID)
		ret.created++
	}
	if snapshot.Active != nil {
		if _, ok := ret.sessions[*snapshot.Active]; ok {
			ret.active = *snapshot.Active
			ret.hasActive = true
		}
	}
	return ret, nil
}
