package messaging

import (
	"time"
)

// Topics published by the runner.
const (
	TopicEpisode = "episode"
	TopicRun     = "run"
)

// Message is an event published by a run.
type Message struct {
	Topic     string    // what kind of event this is
	From      string    // run or environment that produced it
	To        []string  // subscriber IDs (empty means every subscriber of the topic)
	Content   any       // the event payload, e.g. core.EpisodeSummary
	Timestamp time.Time // when the event was published
}

// Publisher can publish messages
type Publisher interface {
	Publish(msg Message) error
}

// Broker handles message routing between a run and its observers
type Broker interface {
	Publisher
	// Subscribe registers a subscriber for the given topics (all topics if none)
	Subscribe(subscriberID string, ch chan<- Message, topics ...string) error
	// Unsubscribe removes a subscription
	Unsubscribe(subscriberID string) error
}
