package scheduler

import (
	"context"
	"errors"
	"sync"

	"github.com/Siddharthpatni/UI-Chatbot/pkg/conversation"
)

var ErrReplyHandleNil = errors.New("reply handle is nil")

// ReplyHandle represents a single scheduled reply.
//
// It is cancelable and waitable. The underlying responder call is always
// driven by context cancellation.
type ReplyHandle struct {
	SessionID conversation.SessionID

	done chan struct{}

	mu     sync.Mutex
	cancel context.CancelFunc
	msg    conversation.Message
	err    error
}

func newReplyHandle(sessionID conversation.SessionID, cancel context.CancelFunc) *ReplyHandle {
	return &ReplyHandle{
		SessionID: sessionID,
		done:      make(chan struct{}),
		cancel:    cancel,
	}
}

func (h *ReplyHandle) setResult(msg conversation.Message, err error) {
	h.mu.Lock()
	h.msg = msg
	h.err = err
	close(h.done)
	h.cancel = nil
	h.mu.Unlock()
}

// Cancel cancels the scheduled reply. It is safe to call multiple times.
func (h *ReplyHandle) Cancel() {
	if h == nil {
		return
	}
	h.mu.Lock()
	cancel := h.cancel
	h.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Wait blocks until the reply resolves and returns the appended message
// and error. A canceled or discarded reply resolves with an error and no
// message.
func (h *ReplyHandle) Wait() (conversation.Message, error) {
	if h == nil {
		return conversation.Message{}, ErrReplyHandleNil
	}
	<-h.done
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.msg, h.err
}

// IsRunning reports whether the reply appears to still be pending.
func (h *ReplyHandle) IsRunning() bool {
	if h == nil {
		return false
	}
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}
