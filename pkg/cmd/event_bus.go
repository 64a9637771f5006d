package cmd

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/funnelworks/cadence/pkg/channels/gochannel"
	"github.com/funnelworks/cadence/pkg/channels/kafka"
	"github.com/funnelworks/cadence/pkg/eventbus"
)

// NewEventBus creates the event bus for the given provider. The
// gochannel provider is in-process only and suited to development.
func NewEventBus(provider, kafkaBrokers, serviceName string, logger *slog.Logger) (eventbus.EventBus, error) {
	switch provider {
	case "kafka":
		pub, sub, err := kafka.CreateChannel(watermill.NewSlogLogger(logger), strings.Split(kafkaBrokers, ","), serviceName)
		if err != nil {
			return nil, fmt.Errorf("failed to create Kafka pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub), nil

	case "gochannel":
		pub, sub, err := gochannel.CreateChannel(watermill.NewSlogLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("failed to create gochannel pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub), nil

	default:
		return nil, fmt.Errorf("unsupported event bus provider: %q", provider)
	}
}
