package conversation

// Package conversation owns the set of chat sessions: the ordered message
// log per session, the single optional document attachment per session,
// and the identity of the active session.
//
// The Store is the sole mutator of session membership. Each session's log
// and attachment are only ever touched through Store operations, so a
// deferred reply can never land in whichever session happens to be active
// when it resolves - it is always resolved against a session ID.

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Siddharthpatni/UI-Chatbot/pkg/events"
)

type session struct {
	id         SessionID
	name       string
	createdAt  time.Time
	log        Log
	attachment *Attachment
	pending    bool

	// epoch is bumped on every history clear; a reply scheduled before the
	// bump must not resurrect deleted history.
	epoch uint64
}

// SessionSummary is the read-only view handed to presentation layers.
type SessionSummary struct {
	ID            SessionID `json:"id"`
	Name          string    `json:"name"`
	CreatedAt     time.Time `json:"createdAt"`
	Messages      int       `json:"messages"`
	Pending       bool      `json:"pending"`
	HasAttachment bool      `json:"hasAttachment"`
}

type Store struct {
	mu        sync.Mutex
	ids       *IDGenerator
	clock     func() time.Time
	publisher *events.PublisherManager

	sessions  map[SessionID]*session
	order     []SessionID
	active    SessionID
	hasActive bool
	created   int
}

type StoreOption func(*Store)

// WithPublisher wires the store's change notifications into a publisher
// manager. Without it the store stays silent.
func WithPublisher(publisher *events.PublisherManager) StoreOption {
	return func(s *Store) {
		s.publisher = publisher
	}
}

func WithClock(clock func() time.Time) StoreOption {
	return func(s *Store) {
		s.clock = clock
	}
}

func WithIDGenerator(ids *IDGenerator) StoreOption {
	return func(s *Store) {
		s.ids = ids
	}
}

func NewStore(options ...StoreOption) *Store {
	ret := &Store{
		sessions: make(map[SessionID]*session),
		clock:    time.Now,
	}
	for _, option := range options {
		option(ret)
	}
	if ret.ids == nil {
		ret.ids = NewIDGenerator()
	}
	return ret
}

func (s *Store) publish(ev events.Event) {
	if s.publisher == nil {
		return
	}
	s.publisher.PublishBlind(ev)
}

// CreateSession allocates a new session with an empty log, no attachment
// and no pending reply, and makes it the active session. A blank name is
// replaced with a generated "Chat N" label.
func (s *Store) CreateSession(name string) SessionID {
	s.mu.Lock()
	id := s.ids.NextSessionID()
	s.created++
	if name == "" {
		name = fmt.Sprintf("Chat %d", s.created)
	}
	s.sessions[id] = &session{
		id:        id,
		name:      name,
		createdAt: s.clock(),
	}
	s.order = append(s.order, id)
	s.active = id
	s.hasActive = true
	s.mu.Unlock()

	log.Debug().Int64("session_id", int64(id)).Str("name", name).Msg("created session")
	s.publish(events.NewSessionCreatedEvent(events.NewEventMetadata(int64(id)), name))
	return id
}

// SelectSession makes id the active session. On failure the previously
// active session is left unchanged.
func (s *Store) SelectSession(id SessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	s.active = id
	s.hasActive = true
	return nil
}

func (s *Store) ActiveSession() (SessionID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active, s.hasActive
}

// ListSessions returns summaries in insertion order, oldest first.
func (s *Store) ListSessions() []SessionSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	ret := make([]SessionSummary, 0, len(s.order))
	for _, id := range s.order {
		sess := s.sessions[id]
		ret = append(ret, SessionSummary{
			ID:            sess.id,
			Name:          sess.name,
			CreatedAt:     sess.createdAt,
			Messages:      sess.log.Len(),
			Pending:       sess.pending,
			HasAttachment: sess.attachment != nil,
		})
	}
	return ret
}

func (s *Store) RenameSession(id SessionID, name string) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return ErrSessionNotFound
	}
	sess.name = name
	s.mu.Unlock()

	s.publish(events.NewSessionRenamedEvent(events.NewEventMetadata(int64(id)), name))
	return nil
}

// ClearMessages empties the session's log and removes its attachment. The
// session itself stays. Bumping the epoch discards any reply still in
// flight for this session (see the scheduler package). Idempotent.
func (s *Store) ClearMessages(id SessionID) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return ErrSessionNotFound
	}
	sess.log.Clear()
	sess.attachment = nil
	sess.epoch++
	s.mu.Unlock()

	log.Debug().Int64("session_id", int64(id)).Msg("cleared session history")
	s.publish(events.NewHistoryClearedEvent(events.NewEventMetadata(int64(id))))
	return nil
}

// ClearAllMessages is the "delete all history" command issued by the
// settings collaborator.
func (s *Store) ClearAllMessages() {
	s.mu.Lock()
	ids := make([]SessionID, len(s.order))
	copy(ids, s.order)
	s.mu.Unlock()

	for _, id := range ids {
		_ = s.ClearMessages(id)
	}
}

// AppendMessage appends a turn to the session's log. It is the only append
// path; both the caller-facing send and the deferred reply go through it.
func (s *Store) AppendMessage(id SessionID, role Role, text string) (Message, error) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return Message{}, ErrSessionNotFound
	}
	msg := s.appendLocked(sess, role, text)
	s.mu.Unlock()

	s.publish(events.NewMessageAppendedEvent(
		events.NewEventMetadata(int64(id)), int64(msg.ID), string(role), text))
	return msg, nil
}

// AppendMessageIfEpoch appends like AppendMessage, but only while the
// session's clear epoch still equals epoch. The check and the append happen
// under one lock, so a ClearMessages can never slip between them and have
// a deferred reply resurrect deleted history. Returns ErrHistoryCleared on
// an epoch mismatch.
func (s *Store) AppendMessageIfEpoch(id SessionID, epoch uint64, role Role, text string) (Message, error) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return Message{}, ErrSessionNotFound
	}
	if sess.epoch != epoch {
		s.mu.Unlock()
		return Message{}, ErrHistoryCleared
	}
	msg := s.appendLocked(sess, role, text)
	s.mu.Unlock()

	s.publish(events.NewMessageAppendedEvent(
		events.NewEventMetadata(int64(id)), int64(msg.ID), string(role), text))
	return msg, nil
}

func (s *Store) appendLocked(sess *session, role Role, text string) Message {
	msg := Message{
		ID:   s.ids.NextMessageID(),
		Role: role,
		Text: text,
		Time: s.clock(),
	}
	sess.log.Append(msg)
	return msg
}

// Messages returns a copy of the session's log in order.
func (s *Store) Messages(id SessionID) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess.log.Snapshot(), nil
}

// Attach binds a document to the session, replacing any existing one.
func (s *Store) Attach(id SessionID, attachment Attachment) error {
	if !IsSupportedMimeType(attachment.MimeType) {
		return fmt.Errorf("%w: %s", ErrUnsupportedType, attachment.MimeType)
	}
	if len(attachment.Payload) > MaxAttachmentSize {
		return fmt.Errorf("%w: %d bytes", ErrAttachmentTooLarge, len(attachment.Payload))
	}

	s.mu.Lock()
	sess, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return ErrSessionNotFound
	}
	sess.attachment = &attachment
	s.mu.Unlock()

	s.publish(events.NewAttachmentChangedEvent(
		events.NewEventMetadata(int64(id)), true, attachment.MimeType))
	return nil
}

// Detach releases the session's attachment. No-op if none is present.
func (s *Store) Detach(id SessionID) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return ErrSessionNotFound
	}
	had := sess.attachment != nil
	sess.attachment = nil
	s.mu.Unlock()

	if had {
		s.publish(events.NewAttachmentChangedEvent(events.NewEventMetadata(int64(id)), false, ""))
	}
	return nil
}

// CurrentAttachment returns a copy of the session's attachment, or nil if
// none is present.
func (s *Store) CurrentAttachment(id SessionID) (*Attachment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if sess.attachment == nil {
		return nil, nil
	}
	payload := make([]byte, len(sess.attachment.Payload))
	copy(payload, sess.attachment.Payload)
	return &Attachment{MimeType: sess.attachment.MimeType, Payload: payload}, nil
}

// SetPendingReply records whether a reply is currently scheduled for the
// session. Maintained by the reply scheduler.
func (s *Store) SetPendingReply(id SessionID, pending bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	sess.pending = pending
	return nil
}

// Epoch returns the session's clear epoch. A reply captured at epoch E must
// be discarded if the session's epoch has moved past E by resolve time.
func (s *Store) Epoch(id SessionID) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return 0, ErrSessionNotFound
	}
	return sess.epoch, nil
}
