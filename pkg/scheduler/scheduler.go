package scheduler

// Package scheduler decouples the synchronous "user message appended"
// observation from the asynchronous "assistant reply appended" one.
//
// Every send schedules exactly one reply. Replies resolve against the
// session ID captured at send time, looked up fresh in the store when the
// responder finishes, never against whatever session is active by then.
// A send directed at a session that is already awaiting a reply is queued
// whole: its user message is appended when its turn comes, so one session's
// log always alternates user/assistant in send order.

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/Siddharthpatni/UI-Chatbot/pkg/conversation"
	"github.com/Siddharthpatni/UI-Chatbot/pkg/events"
)

var (
	ErrEmptyInput      = errors.New("empty input")
	ErrReplyCanceled   = errors.New("reply canceled")
	ErrSchedulerClosed = errors.New("scheduler is closed")
)

type job struct {
	ctx    context.Context
	handle *ReplyHandle
	text   string

	// filled in by prepare, at send time for an idle session and at
	// dequeue time for a queued one
	req      Request
	epoch    uint64
	prepared bool
}

type sessionQueue struct {
	jobs    []*job
	current *job
	running bool
}

type Scheduler struct {
	store     *conversation.Store
	responder Responder
	publisher *events.PublisherManager

	mu     sync.Mutex
	queues map[conversation.SessionID]*sessionQueue
	closed bool
	wg     sync.WaitGroup
}

type SchedulerOption func(*Scheduler)

func WithPublisher(publisher *events.PublisherManager) SchedulerOption {
	return func(s *Scheduler) {
		s.publisher = publisher
	}
}

func NewScheduler(store *conversation.Store, responder Responder, options ...SchedulerOption) *Scheduler {
	ret := &Scheduler{
		store:     store,
		responder: responder,
		queues:    make(map[conversation.SessionID]*sessionQueue),
	}
	for _, option := range options {
		option(ret)
	}
	if ret.responder == nil {
		ret.responder = &SimulatedResponder{}
	}
	return ret
}

// Send schedules exactly one reply for the given text.
//
// On an idle session the user message is appended before Send returns and
// the attachment context is captured immediately. On a session that is
// already awaiting a reply the send is queued and prepared when its turn
// comes.
func (s *Scheduler) Send(ctx context.Context, id conversation.SessionID, text string) (*ReplyHandle, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyInput
	}

	// session existence is a synchronous contract
	if _, err := s.store.Epoch(id); err != nil {
		return nil, err
	}

	jobCtx, cancel := context.WithCancel(ctx)
	handle := newReplyHandle(id, cancel)
	j := &job{
		ctx:    jobCtx,
		handle: handle,
		text:   text,
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel()
		return nil, ErrSchedulerClosed
	}
	q := s.queues[id]
	if q == nil {
		q = &sessionQueue{}
		s.queues[id] = q
	}
	if q.running {
		q.jobs = append(q.jobs, j)
		s.mu.Unlock()
		log.Debug().Int64("session_id", int64(id)).Msg("queued send behind pending reply")
		return handle, nil
	}

	if err := s.prepare(id, j); err != nil {
		s.mu.Unlock()
		cancel()
		return nil, err
	}
	q.jobs = append(q.jobs, j)
	q.running = true
	_ = s.store.SetPendingReply(id, true)
	s.wg.Add(1)
	go s.runQueue(id)
	s.mu.Unlock()

	log.Debug().Int64("session_id", int64(id)).Str("text", text).Msg("scheduled reply")
	return handle, nil
}

// prepare appends the job's user message and captures the session's current
// attachment, history and clear epoch as the reply context.
func (s *Scheduler) prepare(id conversation.SessionID, j *job) error {
	epoch, err := s.store.Epoch(id)
	if err != nil {
		return err
	}
	if _, err := s.store.AppendMessage(id, conversation.RoleUser, j.text); err != nil {
		return err
	}
	attachment, err := s.store.CurrentAttachment(id)
	if err != nil {
		return err
	}
	history, err := s.store.Messages(id)
	if err != nil {
		return err
	}

	j.req = Request{
		SessionID:  id,
		Text:       j.text,
		Attachment: attachment,
		History:    history,
	}
	j.epoch = epoch
	j.prepared = true
	return nil
}

// runQueue resolves one session's jobs in send order.
func (s *Scheduler) runQueue(id conversation.SessionID) {
	defer s.wg.Done()
	for {
		s.mu.Lock()
		q := s.queues[id]
		q.current = nil
		if len(q.jobs) == 0 {
			q.running = false
			_ = s.store.SetPendingReply(id, false)
			s.mu.Unlock()
			return
		}
		j := q.jobs[0]
		q.jobs = q.jobs[1:]
		q.current = j
		if !j.prepared {
			if err := s.prepare(id, j); err != nil {
				s.mu.Unlock()
				j.handle.setResult(conversation.Message{}, err)
				continue
			}
		}
		s.mu.Unlock()

		s.resolve(j)
	}
}

func (s *Scheduler) resolve(j *job) {
	reply, err := s.responder.Respond(j.ctx, j.req)

	id := j.req.SessionID
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			j.handle.setResult(conversation.Message{}, err)
			return
		}
		// A failed reply is appended as a distinguishable system message,
		// never silently dropped.
		msg, aerr := s.store.AppendMessageIfEpoch(id, j.epoch, conversation.RoleSystem,
			fmt.Sprintf("The assistant could not reply: %s", err))
		if errors.Is(aerr, conversation.ErrHistoryCleared) {
			log.Debug().Int64("session_id", int64(id)).Msg("discarding failure notice for cleared session")
			j.handle.setResult(conversation.Message{}, ErrReplyCanceled)
			return
		}
		if aerr != nil {
			j.handle.setResult(conversation.Message{}, aerr)
			return
		}
		if s.publisher != nil {
			s.publisher.PublishBlind(events.NewReplyErrorEvent(events.NewEventMetadata(int64(id)), err))
		}
		j.handle.setResult(msg, err)
		return
	}

	// The epoch check and the append are one store operation; a clear that
	// lands while the reply is in flight discards the reply instead of
	// letting it resurrect deleted history.
	msg, aerr := s.store.AppendMessageIfEpoch(id, j.epoch, conversation.RoleAssistant, reply)
	if errors.Is(aerr, conversation.ErrHistoryCleared) {
		log.Debug().Int64("session_id", int64(id)).Msg("discarding reply for cleared session")
		j.handle.setResult(conversation.Message{}, ErrReplyCanceled)
		return
	}
	j.handle.setResult(msg, aerr)
}

// CancelSession cancels the in-flight reply and discards all queued sends
// for the session. Their handles resolve with ErrReplyCanceled.
func (s *Scheduler) CancelSession(id conversation.SessionID) {
	s.mu.Lock()
	q := s.queues[id]
	var queued []*job
	var current *job
	if q != nil {
		queued = q.jobs
		q.jobs = nil
		current = q.current
	}
	s.mu.Unlock()

	if current != nil {
		current.handle.Cancel()
	}
	for _, j := range queued {
		j.handle.Cancel()
		j.handle.setResult(conversation.Message{}, ErrReplyCanceled)
	}
}

// Close stops accepting sends and waits for queued replies to drain.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.wg.Wait()
}
