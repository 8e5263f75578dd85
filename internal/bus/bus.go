package bus

import (
	"fmt"

	"github.com/opensource-finance/peregrine/internal/domain"
)

// New creates a new event bus based on configuration: an in-process
// channel bus by default, NATS for distributed deployments.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "channel":
		return NewChannelBus(cfg.ChannelBufferSize), nil

	case "nats":
		return NewNATSBus(cfg)

	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", cfg.Type)
	}
}
