package events

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog/log"
)

// PublisherManager fans chat events out to a set of watermill publishers.
// You "subscribe" a publisher under a topic; every published event is
// serialized once and handed to all publishers on their topics.
//
// Each outgoing message carries a sequence number in the order Publish
// handled it, so subscribers can detect reordering.
type PublisherManager struct {
	Publishers     map[string][]message.Publisher
	sequenceNumber uint64
	mutex          sync.Mutex
}

func NewPublisherManager() *PublisherManager {
	return &PublisherManager{
		Publishers: make(map[string][]message.Publisher),
	}
}

func (s *PublisherManager) SubscribePublisher(topic string, sub message.Publisher) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.Publishers[topic] = append(s.Publishers[topic], sub)
}

// Publish serializes the event to JSON and distributes it to all
// subscribed publishers across all topics.
func (s *PublisherManager) Publish(ev Event) error {
	// lock for the sequence number
	s.mutex.Lock()
	defer s.mutex.Unlock()

	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	msg := message.NewMessage(watermill.NewUUID(), b)
	msg.Metadata.Set("type", string(ev.Type()))
	msg.Metadata.Set("sequence_number", fmt.Sprintf("%d", s.sequenceNumber))
	s.sequenceNumber++

	for topic, subs := range s.Publishers {
		for _, sub := range subs {
			err = sub.Publish(topic, msg)
			if err != nil {
				log.Warn().Err(err).Str("type", string(ev.Type())).Msg("failed to publish")
			}
		}
	}

	return nil
}

func (s *PublisherManager) PublishBlind(ev Event) {
	err := s.Publish(ev)
	if err != nil {
		log.Warn().Err(err).Str("type", string(ev.Type())).Msg("failed to publish")
	}
}
