// Package bus carries scoring commands and results between Shamba
// components. The channel backend keeps everything in-process; the NATS
// backend lets API nodes and scoring workers run separately.
package bus

import (
	"fmt"
	"log/slog"

	"github.com/opensource-finance/shamba/internal/domain"
)

// Backend names accepted in EventBusConfig.Type.
const (
	BackendChannel = "channel"
	BackendNATS    = "nats"
)

// New returns the event bus selected by cfg.Type. An empty type means the
// channel backend.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	var (
		b   domain.EventBus
		err error
	)
	switch cfg.Type {
	case BackendChannel, "":
		b = NewChannelBus(cfg.ChannelBufferSize)
	case BackendNATS:
		b, err = NewNATSBus(cfg)
	default:
		return nil, fmt.Errorf("unsupported event bus type: %q", cfg.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("%s bus: %w", cfg.Type, err)
	}

	slog.Debug("event bus ready", "backend", backendName(cfg.Type))
	return b, nil
}

func backendName(t string) string {
	if t == "" {
		return BackendChannel
	}
	return t
}
