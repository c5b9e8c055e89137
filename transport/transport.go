// Package transport defines how a data domain reaches the network. Each
// transport implementation lives in its own sub-package and registers a
// Builder with the registry.
//
// Domain traffic is broadcast: every participant must see every publication
// announcement, type object and data sample on the topics it subscribes to.
// Brokers that balance a topic across the members of a consumer group are
// therefore configured with one group per participant (see SubscriberGroup).
package transport

import (
	"context"
	"fmt"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// Transport combines a publisher and subscriber pair produced by a builder.
type Transport struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
}

// Close closes both halves and returns the first error.
func (t Transport) Close() error {
	var firstErr error
	if t.Subscriber != nil {
		firstErr = t.Subscriber.Close()
	}
	if t.Publisher != nil {
		if err := t.Publisher.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Builder creates a transport from config.
type Builder func(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error)

// Config provides the configuration values needed by transports.
type Config interface {
	// GetPubSubSystem returns the transport name.
	GetPubSubSystem() string
	// GetDomainID returns the data domain the transport is built for.
	GetDomainID() uint32
	// GetSubscriberID identifies the participant the transport is built for.
	GetSubscriberID() string

	// Kafka
	GetKafkaBrokers() []string

	// RabbitMQ
	GetRabbitMQURL() string

	// NATS
	GetNATSURL() string

	// AWS
	GetAWSRegion() string
	GetAWSAccountID() string
	GetAWSAccessKeyID() string
	GetAWSSecretAccessKey() string
	GetAWSEndpoint() string
}

// CapabilitiesProvider is implemented by transports that can report their capabilities.
type CapabilitiesProvider interface {
	Capabilities() Capabilities
}

type subscriberConfig struct {
	Config
	id string
}

func (c subscriberConfig) GetSubscriberID() string { return c.id }

// WithSubscriberID returns cfg with GetSubscriberID reporting id.
func WithSubscriberID(cfg Config, id string) Config {
	return subscriberConfig{Config: cfg, id: id}
}

// SubscriberGroup names the consumer group, queue or subscription owned by
// the participant behind cfg. Distinct participants always get distinct names.
func SubscriberGroup(cfg Config) string {
	id := strings.ToLower(strings.TrimSpace(cfg.GetSubscriberID()))
	if id == "" {
		return fmt.Sprintf("dynsub-%d", cfg.GetDomainID())
	}
	return fmt.Sprintf("dynsub-%d-%s", cfg.GetDomainID(), id)
}
