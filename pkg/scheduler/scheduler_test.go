package scheduler

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/require"

	"github.com/Siddharthpatni/UI-Chatbot/pkg/conversation"
	"github.com/Siddharthpatni/UI-Chatbot/pkg/events"
)

type fakeResponder struct {
	respond func(ctx context.Context, req Request) (string, error)
}

func (r fakeResponder) Respond(ctx context.Context, req Request) (string, error) {
	return r.respond(ctx, req)
}

func echoResponder() Responder {
	return fakeResponder{respond: func(ctx context.Context, req Request) (string, error) {
		return "re: " + req.Text, nil
	}}
}

// blockingResponder parks every call until release is closed.
func blockingResponder(release <-chan struct{}) Responder {
	return fakeResponder{respond: func(ctx context.Context, req Request) (string, error) {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-release:
			return "re: " + req.Text, nil
		}
	}}
}

func TestScheduler_Send_AppendsUserMessageSynchronously(t *testing.T) {
	store := conversation.NewStore()
	id := store.CreateSession("")

	release := make(chan struct{})
	sched := NewScheduler(store, blockingResponder(release))

	h, err := sched.Send(context.Background(), id, "Hello")
	require.NoError(t, err)

	messages, err := store.Messages(id)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	require.Equal(t, conversation.RoleUser, messages[0].Role)
	require.Equal(t, "Hello", messages[0].Text)
	require.True(t, h.IsRunning())

	close(release)
	msg, err := h.Wait()
	require.NoError(t, err)
	require.Equal(t, conversation.RoleAssistant, msg.Role)

	messages, _ = store.Messages(id)
	require.Len(t, messages, 2)
	require.Equal(t, msg, messages[1])
}

func TestScheduler_Send_TrimsAndRejectsEmptyInput(t *testing.T) {
	store := conversation.NewStore()
	id := store.CreateSession("")
	sched := NewScheduler(store, echoResponder())

	_, err := sched.Send(context.Background(), id, "")
	require.ErrorIs(t, err, ErrEmptyInput)
	_, err = sched.Send(context.Background(), id, "   \t  ")
	require.ErrorIs(t, err, ErrEmptyInput)

	messages, _ := store.Messages(id)
	require.Empty(t, messages)
}

func TestScheduler_Send_UnknownSession(t *testing.T) {
	store := conversation.NewStore()
	sched := NewScheduler(store, echoResponder())

	_, err := sched.Send(context.Background(), 42, "hi")
	require.ErrorIs(t, err, conversation.ErrSessionNotFound)
}

func TestScheduler_SimulatedReplyMentionsMessage(t *testing.T) {
	store := conversation.NewStore()
	id := store.CreateSession("")
	sched := NewScheduler(store, &SimulatedResponder{Delay: 5 * time.Millisecond})

	h, err := sched.Send(context.Background(), id, "Hello")
	require.NoError(t, err)

	msg, err := h.Wait()
	require.NoError(t, err)
	require.Contains(t, msg.Text, "Hello")

	messages, _ := store.Messages(id)
	require.Len(t, messages, 2)
	require.Equal(t, conversation.RoleUser, messages[0].Role)
	require.Equal(t, conversation.RoleAssistant, messages[1].Role)
}

func TestScheduler_ReplyTargetsOriginSessionNotActive(t *testing.T) {
	store := conversation.NewStore()
	a := store.CreateSession("")
	b := store.CreateSession("")
	require.NoError(t, store.SelectSession(a))

	sched := NewScheduler(store, &SimulatedResponder{Delay: 5 * time.Millisecond})

	h, err := sched.Send(context.Background(), a, "x")
	require.NoError(t, err)

	// switching the active session must not redirect the pending reply
	require.NoError(t, store.SelectSession(b))

	_, err = h.Wait()
	require.NoError(t, err)

	aMessages, _ := store.Messages(a)
	require.Len(t, aMessages, 2)
	bMessages, _ := store.Messages(b)
	require.Empty(t, bMessages)
}

func TestScheduler_QueuedSendsAlternateInSendOrder(t *testing.T) {
	store := conversation.NewStore()
	id := store.CreateSession("")
	sched := NewScheduler(store, echoResponder())

	var handles []*ReplyHandle
	for i := 1; i <= 3; i++ {
		h, err := sched.Send(context.Background(), id, fmt.Sprintf("msg %d", i))
		require.NoError(t, err)
		handles = append(handles, h)
	}
	for _, h := range handles {
		_, err := h.Wait()
		require.NoError(t, err)
	}

	messages, _ := store.Messages(id)
	require.Len(t, messages, 6)
	for i := 1; i <= 3; i++ {
		user := messages[2*(i-1)]
		reply := messages[2*(i-1)+1]
		require.Equal(t, conversation.RoleUser, user.Role)
		require.Equal(t, fmt.Sprintf("msg %d", i), user.Text)
		require.Equal(t, conversation.RoleAssistant, reply.Role)
		require.Equal(t, fmt.Sprintf("re: msg %d", i), reply.Text)
	}
}

func TestScheduler_AttachmentContextCapturedAtSendTime(t *testing.T) {
	store := conversation.NewStore()
	id := store.CreateSession("")
	require.NoError(t, store.Attach(id, conversation.Attachment{
		MimeType: conversation.MimeTypePDF,
		Payload:  []byte("%PDF-1.4"),
	}))

	var mu sync.Mutex
	var seen *conversation.Attachment
	release := make(chan struct{})
	sched := NewScheduler(store, fakeResponder{respond: func(ctx context.Context, req Request) (string, error) {
		mu.Lock()
		seen = req.Attachment
		mu.Unlock()
		<-release
		return "ok", nil
	}})

	h, err := sched.Send(context.Background(), id, "summarize this")
	require.NoError(t, err)

	// detaching after send must not take the context away from the reply
	require.NoError(t, store.Detach(id))
	close(release)
	_, err = h.Wait()
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.NotNil(t, seen)
	require.Equal(t, conversation.MimeTypePDF, seen.MimeType)
}

func TestScheduler_SimulatedReplyMentionsAttachment(t *testing.T) {
	store := conversation.NewStore()
	id := store.CreateSession("")
	require.NoError(t, store.Attach(id, conversation.Attachment{
		MimeType: conversation.MimeTypePDF,
		Payload:  []byte("%PDF-1.4"),
	}))

	sched := NewScheduler(store, &SimulatedResponder{Delay: time.Millisecond})
	h, err := sched.Send(context.Background(), id, "what is this about?")
	require.NoError(t, err)
	msg, err := h.Wait()
	require.NoError(t, err)
	require.Contains(t, msg.Text, "PDF document")
}

func TestScheduler_ClearDuringPendingReplyDiscardsIt(t *testing.T) {
	store := conversation.NewStore()
	id := store.CreateSession("")

	release := make(chan struct{})
	sched := NewScheduler(store, blockingResponder(release))

	h, err := sched.Send(context.Background(), id, "Hello")
	require.NoError(t, err)

	require.NoError(t, store.ClearMessages(id))
	close(release)

	_, err = h.Wait()
	require.ErrorIs(t, err, ErrReplyCanceled)

	// deleted history stays deleted
	messages, _ := store.Messages(id)
	require.Empty(t, messages)

	require.Eventually(t, func() bool {
		return !store.ListSessions()[0].Pending
	}, time.Second, 5*time.Millisecond)
}

func TestScheduler_ClearAfterResponderCompletesDiscardsReply(t *testing.T) {
	store := conversation.NewStore()
	id := store.CreateSession("")

	// the clear lands after the reply text is computed but before it can
	// be appended
	sched := NewScheduler(store, fakeResponder{respond: func(ctx context.Context, req Request) (string, error) {
		require.NoError(t, store.ClearMessages(id))
		return "ok", nil
	}})

	h, err := sched.Send(context.Background(), id, "Hello")
	require.NoError(t, err)

	_, err = h.Wait()
	require.ErrorIs(t, err, ErrReplyCanceled)

	messages, _ := store.Messages(id)
	require.Empty(t, messages)
}

func TestScheduler_ClearAfterResponderFailureDiscardsNotice(t *testing.T) {
	store := conversation.NewStore()
	id := store.CreateSession("")

	sched := NewScheduler(store, fakeResponder{respond: func(ctx context.Context, req Request) (string, error) {
		require.NoError(t, store.ClearMessages(id))
		return "", fmt.Errorf("backend exploded")
	}})

	h, err := sched.Send(context.Background(), id, "Hello")
	require.NoError(t, err)

	_, err = h.Wait()
	require.ErrorIs(t, err, ErrReplyCanceled)

	// the failure notice must not resurrect the cleared log either
	messages, _ := store.Messages(id)
	require.Empty(t, messages)
}

func TestScheduler_CancelSession(t *testing.T) {
	store := conversation.NewStore()
	id := store.CreateSession("")

	started := make(chan struct{})
	release := make(chan struct{})
	defer close(release)
	sched := NewScheduler(store, fakeResponder{respond: func(ctx context.Context, req Request) (string, error) {
		close(started)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-release:
			return "ok", nil
		}
	}})

	h1, err := sched.Send(context.Background(), id, "first")
	require.NoError(t, err)
	// the first reply must be in flight before the second send queues
	// behind it
	<-started
	h2, err := sched.Send(context.Background(), id, "second")
	require.NoError(t, err)

	sched.CancelSession(id)

	_, err = h1.Wait()
	require.ErrorIs(t, err, context.Canceled)
	_, err = h2.Wait()
	require.ErrorIs(t, err, ErrReplyCanceled)

	// only the first user message made it into the log; the queued send
	// was discarded before its turn
	messages, _ := store.Messages(id)
	require.Len(t, messages, 1)
	require.Equal(t, "first", messages[0].Text)
}

func TestScheduler_ResponderFailureAppendsSystemMessage(t *testing.T) {
	capture := &capturingPublisher{}
	publisher := events.NewPublisherManager()
	publisher.SubscribePublisher("chat", capture)

	store := conversation.NewStore()
	id := store.CreateSession("")
	sched := NewScheduler(store, fakeResponder{respond: func(ctx context.Context, req Request) (string, error) {
		return "", fmt.Errorf("backend exploded")
	}}, WithPublisher(publisher))

	h, err := sched.Send(context.Background(), id, "Hello")
	require.NoError(t, err)

	msg, err := h.Wait()
	require.Error(t, err)
	require.Equal(t, conversation.RoleSystem, msg.Role)
	require.Contains(t, msg.Text, "backend exploded")

	messages, _ := store.Messages(id)
	require.Len(t, messages, 2)
	require.Equal(t, conversation.RoleSystem, messages[1].Role)

	require.Eventually(t, func() bool {
		for _, ev := range capture.captured(t) {
			if ev.Type() == events.EventTypeReplyError {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
}

func TestScheduler_PendingFlagTracksQueue(t *testing.T) {
	store := conversation.NewStore()
	id := store.CreateSession("")

	release := make(chan struct{})
	sched := NewScheduler(store, blockingResponder(release))

	_, err := sched.Send(context.Background(), id, "Hello")
	require.NoError(t, err)
	require.True(t, store.ListSessions()[0].Pending)

	close(release)
	require.Eventually(t, func() bool {
		return !store.ListSessions()[0].Pending
	}, time.Second, 5*time.Millisecond)
}

func TestScheduler_CloseRejectsNewSends(t *testing.T) {
	store := conversation.NewStore()
	id := store.CreateSession("")
	sched := NewScheduler(store, echoResponder())

	h, err := sched.Send(context.Background(), id, "Hello")
	require.NoError(t, err)
	sched.Close()
	_, err = h.Wait()
	require.NoError(t, err)

	_, err = sched.Send(context.Background(), id, "again")
	require.ErrorIs(t, err, ErrSchedulerClosed)
}

func TestSimulatedResponder_Cancellation(t *testing.T) {
	r := &SimulatedResponder{Delay: time.Minute}
	ctx, cancel := context.WithCancel(context.Background())
	go cancel()
	_, err := r.Respond(ctx, Request{Text: "hi"})
	require.ErrorIs(t, err, context.Canceled)
}

func TestReplyHandle_WaitNil(t *testing.T) {
	_, err := (*ReplyHandle)(nil).Wait()
	require.ErrorIs(t, err, ErrReplyHandleNil)
}

func TestReplyHandle_CancelIsIdempotent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := newReplyHandle(1, cancel)
	h.Cancel()
	h.Cancel()

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("expected ctx cancellation")
	}
}

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
