package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/Siddharthpatni/UI-Chatbot/pkg/conversation"
)

// Request carries everything captured at send time: the target session,
// the user text, the attachment (if one was bound when the send happened)
// and a snapshot of the history up to and including the user message.
type Request struct {
	SessionID  conversation.SessionID
	Text       string
	Attachment *conversation.Attachment
	History    []conversation.Message
}

// Responder produces the assistant's reply for a request. Implementations
// handle provider-specific logic; the scheduler only cares about the text
// or the error.
type Responder interface {
	Respond(ctx context.Context, req Request) (string, error)
}

const DefaultReplyDelay = 1 * time.Second

// SimulatedResponder stands in for a real model-serving endpoint. It waits
// for the configured delay (simulating network latency) and echoes the
// request back.
type SimulatedResponder struct {
	Delay time.Duration
}

func (r *SimulatedResponder) Respond(ctx context.Context, req Request) (string, error) {
	delay := r.Delay
	if delay <= 0 {
		delay = DefaultReplyDelay
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-timer.C:
	}

	reply := fmt.Sprintf("I received your message: %q", req.Text)
	if req.Attachment != nil {
		reply += "\n\nI also see you uploaded a PDF document."
	}
	return reply, nil
}

var _ Responder = &SimulatedResponder{}
