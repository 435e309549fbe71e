package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/opensource-finance/shamba/internal/domain"
)

const (
	defaultNATSAttempts    = 10
	defaultNATSWaitSeconds = 5
	defaultWorkerGroup     = "shamba-workers"
	natsReconnectBuffer    = 8 << 20
)

// NATSBus is an EventBus over a NATS connection. Command topics use a queue
// group so each score request reaches a single worker process.
type NATSBus struct {
	conn  *nats.Conn
	group string

	mu   sync.Mutex
	subs map[string]*natsSubscription
}

type natsSubscription struct {
	id    string
	topic string
	sub   *nats.Subscription
	bus   *NATSBus
}

// NewNATSBus connects to cfg.NATSUrl, retrying the initial dial up to
// NATSMaxReconnects times. After that the client reconnects on its own.
func NewNATSBus(cfg domain.EventBusConfig) (*NATSBus, error) {
	url := cfg.NATSUrl
	if url == "" {
		url = nats.DefaultURL
	}
	attempts := cfg.NATSMaxReconnects
	if attempts <= 0 {
		attempts = defaultNATSAttempts
	}
	wait := time.Duration(cfg.NATSReconnectWait) * time.Second
	if wait <= 0 {
		wait = defaultNATSWaitSeconds * time.Second
	}
	group := cfg.WorkerGroup
	if group == "" {
		group = defaultWorkerGroup
	}

	conn, err := dialNATS(url, attempts, wait, natsOptions(cfg.NATSToken, attempts, wait))
	if err != nil {
		return nil, err
	}
	slog.Info("NATS connected",
		"url", conn.ConnectedUrl(),
		"server_id", conn.ConnectedServerId(),
		"worker_group", group,
	)

	return &NATSBus{
		conn:  conn,
		group: group,
		subs:  make(map[string]*natsSubscription),
	}, nil
}

func natsOptions(token string, reconnects int, wait time.Duration) []nats.Option {
	opts := []nats.Option{
		nats.Name("shamba"),
		nats.MaxReconnects(reconnects),
		nats.ReconnectWait(wait),
		nats.ReconnectBufSize(natsReconnectBuffer),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			slog.Warn("NATS disconnected", "error", err, "will_reconnect", !nc.IsClosed())
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			slog.Info("NATS connection closed")
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			var subject string
			if sub != nil {
				subject = sub.Subject
			}
			slog.Error("NATS async error", "subject", subject, "error", err)
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}
	return opts
}

func dialNATS(url string, attempts int, wait time.Duration, opts []nats.Option) (*nats.Conn, error) {
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		var conn *nats.Conn
		if conn, err = nats.Connect(url, opts...); err == nil {
			return conn, nil
		}
		slog.Warn("NATS dial failed", "attempt", attempt, "max_attempts", attempts, "error", err)
		if attempt < attempts {
			time.Sleep(wait)
		}
	}
	return nil, fmt.Errorf("failed to connect to NATS at %s after %d attempts: %w", url, attempts, err)
}

// Publish sends payload wrapped in a JSON envelope on subject topic.
func (b *NATSBus) Publish(_ context.Context, topic string, payload []byte) error {
	data, err := encodeMessage(topic, payload)
	if err != nil {
		return err
	}
	if err := b.conn.Publish(topic, data); err != nil {
		if errors.Is(err, nats.ErrConnectionClosed) {
			return ErrClosed
		}
		return fmt.Errorf("nats publish %s: %w", topic, err)
	}
	return nil
}

// Subscribe runs handler for each message on topic. Command topics join the
// worker queue group.
func (b *NATSBus) Subscribe(ctx context.Context, topic string, handler domain.MessageHandler) (domain.Subscription, error) {
	cb := func(m *nats.Msg) {
		msg, err := decodeMessage(m.Data)
		if err != nil {
			slog.Error("dropping undecodable NATS message", "subject", m.Subject, "error", err)
			return
		}
		if err := handler(ctx, msg); err != nil {
			slog.Error("bus handler failed",
				"topic", m.Subject,
				"message_id", msg.ID,
				"error", err,
			)
		}
	}

	var (
		ns  *nats.Subscription
		err error
	)
	if domain.IsCommandTopic(topic) {
		ns, err = b.conn.QueueSubscribe(topic, b.group, cb)
	} else {
		ns, err = b.conn.Subscribe(topic, cb)
	}
	if err != nil {
		return nil, fmt.Errorf("nats subscribe %s: %w", topic, err)
	}

	sub := &natsSubscription{id: uuid.NewString(), topic: topic, sub: ns, bus: b}
	b.mu.Lock()
	b.subs[sub.id] = sub
	b.mu.Unlock()
	return sub, nil
}

// Ping round-trips to the server.
func (b *NATSBus) Ping(ctx context.Context) error {
	if !b.conn.IsConnected() {
		return fmt.Errorf("NATS not connected: %s", b.conn.Status())
	}
	return b.conn.FlushWithContext(ctx)
}

// Close drains subscriptions so in-flight score requests finish, then closes
// the connection.
func (b *NATSBus) Close() error {
	b.mu.Lock()
	clear(b.subs)
	b.mu.Unlock()

	if err := b.conn.Drain(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		b.conn.Close()
		return fmt.Errorf("nats drain: %w", err)
	}
	return nil
}

// Unsubscribe detaches the subscription from the server.
func (s *natsSubscription) Unsubscribe() error {
	s.bus.mu.Lock()
	delete(s.bus.subs, s.id)
	s.bus.mu.Unlock()
	return s.sub.Unsubscribe()
}

// Topic returns the subscribed topic.
func (s *natsSubscription) Topic() string {
	return s.topic
}
