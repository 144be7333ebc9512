package events

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/rs/zerolog/log"

	"github.com/Siddharthpatni/UI-Chatbot/pkg/helpers"
)

// ChatEventHandler defines an interface for handling the different chat events,
// so a presentation layer can react to them without decoding JSON itself.
type ChatEventHandler interface {
	HandleSessionCreated(ctx context.Context, e *EventSessionCreated) error
	HandleSessionRenamed(ctx context.Context, e *EventSessionRenamed) error
	HandleMessageAppended(ctx context.Context, e *EventMessageAppended) error
	HandleHistoryCleared(ctx context.Context, e *EventHistoryCleared) error
	HandleAttachmentChanged(ctx context.Context, e *EventAttachmentChanged) error
	HandleReplyError(ctx context.Context, e *EventReplyError) error
}

type EventRouter struct {
	logger     watermill.LoggerAdapter
	Publisher  message.Publisher
	Subscriber message.Subscriber
	router     *message.Router
	verbose    bool
}

type EventRouterOption func(*EventRouter)

func WithLogger(logger watermill.LoggerAdapter) EventRouterOption {
	return func(r *EventRouter) {
		r.logger = logger
	}
}

func WithVerbose(verbose bool) EventRouterOption {
	return func(r *EventRouter) {
		r.verbose = verbose
		r.logger = helpers.NewWatermill(log.Logger)
	}
}

func NewEventRouter(options ...EventRouterOption) (*EventRouter, error) {
	ret := &EventRouter{
		logger: watermill.NopLogger{},
	}

	for _, o := range options {
		o(ret)
	}

	goPubSub := gochannel.NewGoChannel(gochannel.Config{}, ret.logger)
	ret.Publisher = goPubSub
	ret.Subscriber = goPubSub

	router, err := message.NewRouter(message.RouterConfig{}, ret.logger)
	if err != nil {
		return nil, err
	}

	ret.router = router

	return ret, nil
}

func (e *EventRouter) Close() error {
	log.Debug().Msg("Closing publisher")
	err := e.Publisher.Close()
	if err != nil {
		log.Error().Err(err).Msg("Failed to close pubsub")
		// not returning just yet
	}

	log.Debug().Msg("Closing router")
	err = e.router.Close()
	if err != nil {
		log.Error().Err(err).Msg("Failed to close router")
	}

	return nil
}

func (e *EventRouter) AddHandler(name string, topic string, f func(msg *message.Message) error) {
	e.router.AddNoPublisherHandler(name, topic, e.Subscriber, f)
}

// RegisterChatEventHandler subscribes handler to topic, dispatching decoded
// events to the matching ChatEventHandler method.
func (e *EventRouter) RegisterChatEventHandler(topic string, handler ChatEventHandler) {
	e.AddHandler("chat-"+topic, topic, createChatDispatchHandler(handler))
}

// createChatDispatchHandler creates a Watermill handler function that parses chat events
// and dispatches them to the appropriate method of the provided ChatEventHandler.
func createChatDispatchHandler(handler ChatEventHandler) message.NoPublishHandlerFunc {
	return func(msg *message.Message) error {
		defer msg.Ack()

		ev, err := NewEventFromJson(msg.Payload)
		if err != nil {
			log.Error().Err(err).Str("message_id", msg.UUID).Msg("Failed to parse chat event from message payload")
			// Don't kill the handler for one bad message, just log and continue
			return nil
		}

		msgCtx := msg.Context()
		switch ev := ev.(type) {
		case *EventSessionCreated:
			return handler.HandleSessionCreated(msgCtx, ev)
		case *EventSessionRenamed:
			return handler.HandleSessionRenamed(msgCtx, ev)
		case *EventMessageAppended:
			return handler.HandleMessageAppended(msgCtx, ev)
		case *EventHistoryCleared:
			return handler.HandleHistoryCleared(msgCtx, ev)
		case *EventAttachmentChanged:
			return handler.HandleAttachmentChanged(msgCtx, ev)
		case *EventReplyError:
			return handler.HandleReplyError(msgCtx, ev)
		default:
			log.Warn().Str("type", string(ev.Type())).Msg("Unhandled chat event type")
		}

		return nil
	}
}

func (e *EventRouter) Running() chan struct{} {
	return e.router.Running()
}

func (e *EventRouter) IsRunning() bool {
	return e.router.IsRunning()
}

func (e *EventRouter) Run(ctx context.Context) error {
	return e.router.Run(ctx)
}
