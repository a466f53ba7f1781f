// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package events

import "sync"

// Event types published on election and device topics.
const (
	TypeAuditLog      = "audit-log"
	TypeOTPUsed       = "otp-used"
	TypeDeviceRevoked = "device-revoked"
)

// Event is a message fanned out to live subscribers.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// ElectionTopic carries audit-log and otp-used events for one election.
func ElectionTopic(electionID string) string {
	return "election:" + electionID
}

// DeviceTopic carries revocation events for one voting terminal.
func DeviceTopic(electionID, deviceID string) string {
	return "device:" + electionID + ":" + deviceID
}

const defaultBuffer = 16

type subscriber struct {
	ch    chan Event
	types map[string]bool
}

func (s *subscriber) wants(eventType string) bool {
	return len(s.types) == 0 || s.types[eventType]
}

// Hub is an in-memory registry of subscribers keyed by topic.
// It lives for the whole process and is safe for concurrent use.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[*subscriber]struct{}
	buffer int
}

func NewHub() *Hub {
	return &Hub{
		topics: make(map[string]map[*subscriber]struct{}),
		buffer: defaultBuffer,
	}
}

// Subscribe registers a listener on topic. With types given, only events of
// those types are delivered. The returned cancel func removes it and closes
// the channel; it is safe to call more than once.
func (h *Hub) Subscribe(topic string, types ...string) (<-chan Event, func()) {
	sub := &subscriber{ch: make(chan Event, h.buffer)}
	if len(types) > 0 {
		sub.types = make(map[string]bool, len(types))
		for _, t := range types {
			sub.types[t] = true
		}
	}

	h.mu.Lock()
	subs, ok := h.topics[topic]
	if !ok {
		subs = make(map[*subscriber]struct{})
		h.topics[topic] = subs
	}
	subs[sub] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.topics[topic], sub)
			if len(h.topics[topic]) == 0 {
				delete(h.topics, topic)
			}
			close(sub.ch)
		})
	}
	return sub.ch, cancel
}

// Publish delivers ev to every interested subscriber of topic without blocking.
// Subscribers whose buffer is full miss the event. It returns the number
// of subscribers that received it.
func (h *Hub) Publish(topic string, ev Event) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for sub := range h.topics[topic] {
		if !sub.wants(ev.Type) {
			continue
		}
		select {
		case sub.ch <- ev:
			delivered++
		default:
		}
	}
	return delivered
}

// Subscribers returns how many listeners topic has.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}
