package bus

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/shamba/internal/domain"
)

// MetaPublisher names the host that published a message.
const MetaPublisher = "publisher"

const unknownPublisher = "unknown"

var publisher = publisherName(os.Hostname)

func publisherName(hostname func() (string, error)) string {
	name, err := hostname()
	if err != nil || name == "" {
		return unknownPublisher
	}
	return name
}

func newMessage(topic string, payload []byte) *domain.Message {
	return &domain.Message{
		ID:        uuid.NewString(),
		Topic:     topic,
		Payload:   payload,
		Metadata:  map[string]string{MetaPublisher: publisher},
		Timestamp: time.Now().UnixNano(),
	}
}

// encodeMessage renders the JSON envelope carried over NATS.
func encodeMessage(topic string, payload []byte) ([]byte, error) {
	data, err := json.Marshal(newMessage(topic, payload))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s message: %w", topic, err)
	}
	return data, nil
}

func decodeMessage(data []byte) (*domain.Message, error) {
	var msg domain.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message: %w", err)
	}
	return &msg, nil
}
