package messaging

import (
	"fmt"
	"sync"
)

type subscription struct {
	ch     chan<- Message
	topics map[string]struct{}
}

func (s subscription) wants(topic string) bool {
	if len(s.topics) == 0 {
		return true
	}
	_, ok := s.topics[topic]
	return ok
}

// SimpleBroker implements the Broker interface
// subscribers is keyed by subscriber ID
type SimpleBroker struct {
	subscribers map[string]subscription
	mu          sync.RWMutex
}

// NewBroker creates a new message broker
func NewBroker() *SimpleBroker {
	return &SimpleBroker{
		subscribers: make(map[string]subscription),
	}
}

// Publish delivers a message to every matching subscriber without blocking.
// A full subscriber channel drops the message for that subscriber and is
// reported after the remaining subscribers have been served.
func (b *SimpleBroker) Publish(msg Message) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	recipients := msg.To
	if len(recipients) == 0 {
		for id := range b.subscribers {
			if id != msg.From {
				recipients = append(recipients, id)
			}
		}
	}

	var full []string
	for _, id := range recipients {
		sub, ok := b.subscribers[id]
		if !ok || !sub.wants(msg.Topic) {
			continue
		}

		select {
		case sub.ch <- msg:
		default:
			full = append(full, id)
		}
	}

	if len(full) > 0 {
		return fmt.Errorf("subscriber channel full: %v", full)
	}
	return nil
}

// Subscribe registers a subscriber for the given topics
func (b *SimpleBroker) Subscribe(subscriberID string, ch chan<- Message, topics ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subscribers[subscriberID]; exists {
		return fmt.Errorf("subscriber %s is already subscribed", subscriberID)
	}

	sub := subscription{ch: ch, topics: make(map[string]struct{}, len(topics))}
	for _, topic := range topics {
		sub.topics[topic] = struct{}{}
	}
	b.subscribers[subscriberID] = sub
	return nil
}

// Unsubscribe removes a subscription
func (b *SimpleBroker) Unsubscribe(subscriberID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subscribers[subscriberID]; !exists {
		return fmt.Errorf("subscriber %s is not subscribed", subscriberID)
	}

	delete(b.subscribers, subscriberID)
	return nil
}

func (b *SimpleBroker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = make(map[string]subscription)
}
