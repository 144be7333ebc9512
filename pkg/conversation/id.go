package conversation

import "sync/atomic"

type SessionID int64

type MessageID int64

// IDGenerator issues identifiers that are unique within the process.
// A single atomic counter backs both session and message IDs, so two
// operations scheduled within the same millisecond can never collide.
type IDGenerator struct {
	counter atomic.Int64
}

func NewIDGenerator() *IDGenerator {
	return &IDGenerator{}
}

func (g *IDGenerator) NextSessionID() SessionID {
	return SessionID(g.counter.Add(1))
}

func (g *IDGenerator) NextMessageID() MessageID {
	return MessageID(g.counter.Add(1))
}

// Seed advances the counter so that no future identifier is <= last.
// Used when restoring a store from a snapshot.
func (g *IDGenerator) Seed(last int64) {
	for {
		cur := g.counter.Load()
		if cur >= last {
			return
		}
		if g.counter.CompareAndSwap(cur, last) {
			return
		}
	}
}
