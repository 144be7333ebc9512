package conversation

import (
	"sync"
	"testing"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/require"

	"github.com/Siddharthpatni/UI-Chatbot/pkg/events"
)

type capturingPublisher struct {
	mu       sync.Mutex
	messages []*message.Message
}

func (p *capturingPublisher) Publish(topic string, messages ...*message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, messages...)
	return nil
}

func (p *capturingPublisher) Close() error {
	return nil
}

func (p *capturingPublisher) captured(t *testing.T) []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	ret := make([]events.Event, 0, len(p.messages))
	for _, msg := range p.messages {
		ev, err := events.NewEventFromJson(msg.Payload)
		require.NoError(t, err)
		ret = append(ret, ev)
	}
	return ret
}

func TestStore_PublishesChangeEvents(t *testing.T) {
	capture := &capturingPublisher{}
	publisher := events.NewPublisherManager()
	publisher.SubscribePublisher("chat", capture)

	s := NewStore(WithPublisher(publisher))
	id := s.CreateSession("")
	_, err := s.AppendMessage(id, RoleUser, "Hello")
	require.NoError(t, err)
	require.NoError(t, s.Attach(id, Attachment{MimeType: MimeTypePDF, Payload: []byte("x")}))
	require.NoError(t, s.Detach(id))
	require.NoError(t, s.RenameSession(id, "Renamed"))
	require.NoError(t, s.ClearMessages(id))

	captured := capture.captured(t)
	require.Len(t, captured, 6)

	created, ok := captured[0].(*events.EventSessionCreated)
	require.True(t, ok)
	require.Equal(t, "Chat 1", created.Name)
	require.Equal(t, int64(id), created.Metadata().SessionID)

	appended, ok := captured[1].(*events.EventMessageAppended)
	require.True(t, ok)
	require.Equal(t, "user", appended.Role)
	require.Equal(t, "Hello", appended.Text)

	attached, ok := captured[2].(*events.EventAttachmentChanged)
	require.True(t, ok)
	require.True(t, attached.Attached)
	require.Equal(t, MimeTypePDF, attached.MimeType)

	detached, ok := captured[3].(*events.EventAttachmentChanged)
	require.True(t, ok)
	require.False(t, detached.Attached)

	renamed, ok := captured[4].(*events.EventSessionRenamed)
	require.True(t, ok)
	require.Equal(t, "Renamed", renamed.Name)

	_, ok = captured[5].(*events.EventHistoryCleared)
	require.True(t, ok)
}

func TestStore_Detach_NoEventWhenNothingAttached(t *testing.T) {
	capture := &capturingPublisher{}
	publisher := events.NewPublisherManager()
	publisher.SubscribePublisher("chat", capture)

	s := NewStore(WithPublisher(publisher))
	id := s.CreateSession("")
	require.NoError(t, s.Detach(id))

	// only the session-created event
	require.Len(t, capture.captured(t), 1)
}
