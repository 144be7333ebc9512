package events

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type EventType string

const (
	EventTypeSessionCreated    EventType = "session-created"
	EventTypeSessionRenamed    EventType = "session-renamed"
	EventTypeMessageAppended   EventType = "message-appended"
	EventTypeHistoryCleared    EventType = "history-cleared"
	EventTypeAttachmentChanged EventType = "attachment-changed"
	EventTypeReplyError        EventType = "reply-error"
)

// Event is the common interface for everything published on the chat topic.
// A presentation layer subscribes to these to re-render on change.
type Event interface {
	Type() EventType
	Metadata() EventMetadata
	Payload() []byte
}

// EventMetadata identifies the originating session for an event. ID is a
// per-event uuid used for correlation in logs, not a session identifier.
type EventMetadata struct {
	ID        uuid.UUID `json:"message_id"`
	SessionID int64     `json:"session_id"`
}

func (em EventMetadata) MarshalZerologObject(e *zerolog.Event) {
	e.Str("id", em.ID.String())
	e.Int64("session_id", em.SessionID)
}

func NewEventMetadata(sessionID int64) EventMetadata {
	return EventMetadata{
		ID:        uuid.New(),
		SessionID: sessionID,
	}
}

type EventImpl struct {
	Type_     EventType     `json:"type"`
	Metadata_ EventMetadata `json:"meta"`

	// raw JSON this event was deserialized from, if it came over the wire
	payload []byte
}

func (e *EventImpl) Type() EventType {
	return e.Type_
}

func (e *EventImpl) Metadata() EventMetadata {
	return e.Metadata_
}

func (e *EventImpl) Payload() []byte {
	return e.payload
}

func (e *EventImpl) MarshalZerologObject(ev *zerolog.Event) {
	ev.Str("type", string(e.Type_))
	ev.Object("meta", e.Metadata_)
}

var _ Event = &EventImpl{}

type EventSessionCreated struct {
	EventImpl
	Name string `json:"name"`
}

func NewSessionCreatedEvent(metadata EventMetadata, name string) *EventSessionCreated {
	return &EventSessionCreated{
		EventImpl: EventImpl{
			Type_:     EventTypeSessionCreated,
			Metadata_: metadata,
		},
		Name: name,
	}
}

var _ Event = &EventSessionCreated{}

type EventSessionRenamed struct {
	EventImpl
	Name string `json:"name"`
}

func NewSessionRenamedEvent(metadata EventMetadata, name string) *EventSessionRenamed {
	return &EventSessionRenamed{
		EventImpl: EventImpl{
			Type_:     EventTypeSessionRenamed,
			Metadata_: metadata,
		},
		Name: name,
	}
}

var _ Event = &EventSessionRenamed{}

type EventMessageAppended struct {
	EventImpl
	MessageID int64  `json:"messageID"`
	Role      string `json:"role"`
	Text      string `json:"text"`
}

func NewMessageAppendedEvent(metadata EventMetadata, messageID int64, role string, text string) *EventMessageAppended {
	return &EventMessageAppended{
		EventImpl: EventImpl{
			Type_:     EventTypeMessageAppended,
			Metadata_: metadata,
		},
		MessageID: messageID,
		Role:      role,
		Text:      text,
	}
}

var _ Event = &EventMessageAppended{}

type EventHistoryCleared struct {
	EventImpl
}

func NewHistoryClearedEvent(metadata EventMetadata) *EventHistoryCleared {
	return &EventHistoryCleared{
		EventImpl: EventImpl{
			Type_:     EventTypeHistoryCleared,
			Metadata_: metadata,
		},
	}
}

var _ Event = &EventHistoryCleared{}

type EventAttachmentChanged struct {
	EventImpl
	Attached bool   `json:"attached"`
	MimeType string `json:"mimeType,omitempty"`
}

func NewAttachmentChangedEvent(metadata EventMetadata, attached bool, mimeType string) *EventAttachmentChanged {
	return &EventAttachmentChanged{
		EventImpl: EventImpl{
			Type_:     EventTypeAttachmentChanged,
			Metadata_: metadata,
		},
		Attached: attached,
		MimeType: mimeType,
	}
}

var _ Event = &EventAttachmentChanged{}

type EventReplyError struct {
	EventImpl
	ErrorString string `json:"error"`
}

func NewReplyErrorEvent(metadata EventMetadata, err error) *EventReplyError {
	return &EventReplyError{
		EventImpl: EventImpl{
			Type_:     EventTypeReplyError,
			Metadata_: metadata,
		},
		ErrorString: err.Error(),
	}
}

var _ Event = &EventReplyError{}

// NewEventFromJson decodes an event published through the PublisherManager
// back into its concrete type.
func NewEventFromJson(b []byte) (Event, error) {
	var hdr struct {
		Type EventType `json:"type"`
	}
	if err := json.Unmarshal(b, &hdr); err != nil {
		return nil, err
	}

	decode := func(ev Event, impl *EventImpl) (Event, error) {
		if err := json.Unmarshal(b, ev); err != nil {
			return nil, err
		}
		impl.payload = b
		return ev, nil
	}

	switch hdr.Type {
	case EventTypeSessionCreated:
		ret := &EventSessionCreated{}
		return decode(ret, &ret.EventImpl)
	case EventTypeSessionRenamed:
		ret := &EventSessionRenamed{}
		return decode(ret, &ret.EventImpl)
	case EventTypeMessageAppended:
		ret := &EventMessageAppended{}
		return decode(ret, &ret.EventImpl)
	case EventTypeHistoryCleared:
		ret := &EventHistoryCleared{}
		return decode(ret, &ret.EventImpl)
	case EventTypeAttachmentChanged:
		ret := &EventAttachmentChanged{}
		return decode(ret, &ret.EventImpl)
	case EventTypeReplyError:
		ret := &EventReplyError{}
		return decode(ret, &ret.EventImpl)
	default:
		return nil, fmt.Errorf("unknown event type: %s", hdr.Type)
	}
}
