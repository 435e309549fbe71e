package bus

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/opensource-finance/shamba/internal/domain"
)

var (
	// ErrClosed is returned when publishing to or subscribing on a closed bus.
	ErrClosed = errors.New("bus is closed")

	// ErrBackpressure is returned when no subscriber of a command topic can
	// take another message.
	ErrBackpressure = errors.New("bus subscribers are saturated")
)

const defaultChannelBuffer = 1000

// ChannelBus is an in-process EventBus. Event topics fan out to every
// subscriber and drop messages for subscribers whose buffer is full. Command
// topics go to one subscriber, round robin.
type ChannelBus struct {
	mu     sync.RWMutex
	buffer int
	topics map[string][]*channelSubscription
	next   map[string]int
	closed bool
}

type channelSubscription struct {
	id      string
	topic   string
	handler domain.MessageHandler
	inbox   chan *domain.Message
	ctx     context.Context
	cancel  context.CancelFunc
	bus     *ChannelBus
}

// NewChannelBus creates a bus whose subscribers each buffer up to buffer
// messages.
func NewChannelBus(buffer int) *ChannelBus {
	if buffer <= 0 {
		buffer = defaultChannelBuffer
	}
	return &ChannelBus{
		buffer: buffer,
		topics: make(map[string][]*channelSubscription),
		next:   make(map[string]int),
	}
}

// Publish delivers payload on topic.
func (b *ChannelBus) Publish(ctx context.Context, topic string, payload []byte) error {
	msg := newMessage(topic, payload)

	if domain.IsCommandTopic(topic) {
		return b.dispatch(msg)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	for _, sub := range b.topics[topic] {
		if !sub.offer(msg) {
			slog.WarnContext(ctx, "subscriber buffer full, dropping event",
				"topic", topic,
				"message_id", msg.ID,
			)
		}
	}
	return nil
}

// dispatch hands a command to the next subscriber with room, starting after
// the one that took the previous command.
func (b *ChannelBus) dispatch(msg *domain.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}

	subs := b.topics[msg.Topic]
	if len(subs) == 0 {
		return nil
	}
	start := b.next[msg.Topic]
	for i := range subs {
		idx := (start + i) % len(subs)
		if subs[idx].offer(msg) {
			b.next[msg.Topic] = idx + 1
			return nil
		}
	}
	return ErrBackpressure
}

// Subscribe starts a goroutine that runs handler for each message on topic.
func (b *ChannelBus) Subscribe(ctx context.Context, topic string, handler domain.MessageHandler) (domain.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &channelSubscription{
		id:      uuid.NewString(),
		topic:   topic,
		handler: handler,
		inbox:   make(chan *domain.Message, b.buffer),
		ctx:     subCtx,
		cancel:  cancel,
		bus:     b,
	}
	b.topics[topic] = append(b.topics[topic], sub)

	go sub.run()
	return sub, nil
}

// Ping fails once the bus is closed.
func (b *ChannelBus) Ping(context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	return nil
}

// Close cancels every subscription. Closing twice is a no-op.
func (b *ChannelBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	for _, subs := range b.topics {
		for _, sub := range subs {
			sub.cancel()
		}
	}
	clear(b.topics)
	return nil
}

func (b *ChannelBus) remove(sub *channelSubscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.topics[sub.topic]
	for i, s := range subs {
		if s == sub {
			b.topics[sub.topic] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

func (s *channelSubscription) offer(msg *domain.Message) bool {
	select {
	case s.inbox <- msg:
		return true
	default:
		return false
	}
}

func (s *channelSubscription) run() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case msg := <-s.inbox:
			if err := s.handler(s.ctx, msg); err != nil {
				slog.Error("bus handler failed",
					"topic", s.topic,
					"message_id", msg.ID,
					"error", err,
				)
			}
		}
	}
}

// Unsubscribe stops the subscription goroutine and detaches it from the bus.
func (s *channelSubscription) Unsubscribe() error {
	s.cancel()
	s.bus.remove(s)
	return nil
}

// Topic returns the subscribed topic.
func (s *channelSubscription) Topic() string {
	return s.topic
}
