package domain

import (
	"context"
)

// EventBus moves score commands to workers and score events to listeners.
type EventBus interface {
	Publish(ctx context.Context, topic string, payload []byte) error

	// Subscribe runs handler for each message on topic until the
	// subscription is removed or ctx ends.
	Subscribe(ctx context.Context, topic string, handler MessageHandler) (Subscription, error)

	Ping(ctx context.Context) error
	Close() error
}

// MessageHandler processes one delivered message.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message is the envelope around every published payload.
type Message struct {
	ID        string            `json:"id"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp int64             `json:"timestamp"` // unix nanoseconds
}

// Subscription is a live registration on a topic.
type Subscription interface {
	Unsubscribe() error
	Topic() string
}

// EventBusConfig selects and tunes the event bus backend.
type EventBusConfig struct {
	Type string `yaml:"type"` // "channel" or "nats"

	ChannelBufferSize int `yaml:"channelBufferSize"`

	NATSUrl           string `yaml:"natsUrl"`
	NATSToken         string `yaml:"natsToken"`
	NATSMaxReconnects int    `yaml:"natsMaxReconnects"`
	NATSReconnectWait int    `yaml:"natsReconnectWait"` // seconds

	// WorkerGroup is the NATS queue group shared by scoring workers.
	WorkerGroup string `yaml:"workerGroup"`
}

// Topic names for the scoring pipeline.
const (
	TopicScoreRequested = "shamba.score.requested"
	TopicScoreComputed  = "shamba.score.computed"
	TopicFraudFlagged   = "shamba.fraud.flagged"
)

// IsCommandTopic reports whether each message on topic is handled by exactly
// one subscriber rather than fanned out to all of them.
func IsCommandTopic(topic string) bool {
	return topic == TopicScoreRequested
}

// ScoreEvent is published after every completed scoring run.
type ScoreEvent struct {
	RequestID string       `json:"requestId"`
	TraceID   string       `json:"traceId,omitempty"`
	Result    *CreditScore `json:"result"`
}

// ScoreCommand asks the async worker to score a farmer.
type ScoreCommand struct {
	RequestID string       `json:"requestId"`
	TraceID   string       `json:"traceId,omitempty"`
	Request   ScoreRequest `json:"request"`
}
