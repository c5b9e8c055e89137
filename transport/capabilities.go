package transport

// Capabilities describes how a transport behaves for domain traffic.
type Capabilities struct {
	// Name is the human-readable name of the transport.
	Name string

	// SupportsFanOut means every subscriber of a topic receives every message
	// without extra configuration.
	SupportsFanOut bool

	// RequiresSubscriberID means fan-out is only achieved when each participant
	// consumes through its own group or queue.
	RequiresSubscriberID bool

	// SupportsOrdering indicates messages from one publisher arrive in order.
	SupportsOrdering bool

	// SupportsAck indicates the transport supports explicit acknowledgment.
	SupportsAck bool

	// SupportsTracing indicates the transport propagates metadata headers.
	SupportsTracing bool

	// MaxMessageSize is the maximum message size in bytes (0 = unlimited/unknown).
	MaxMessageSize int64
}

// Broadcasts reports whether every participant sees every message, given
// that the domain always sets a subscriber id.
func (c Capabilities) Broadcasts() bool {
	return c.SupportsFanOut || c.RequiresSubscriberID
}

// Predefined capability sets for the built-in transports.
var (
	ChannelCapabilities = Capabilities{
		Name:             "channel",
		SupportsFanOut:   true,
		SupportsOrdering: true,
		SupportsAck:      true,
	}

	NATSCapabilities = Capabilities{
		Name:            "nats",
		SupportsFanOut:  true,
		SupportsTracing: true,
		MaxMessageSize:  1048576,
	}

	KafkaCapabilities = Capabilities{
		Name:                 "kafka",
		RequiresSubscriberID: true,
		SupportsOrdering:     true,
		SupportsAck:          true,
		SupportsTracing:      true,
		MaxMessageSize:       1048576,
	}

	RabbitMQCapabilities = Capabilities{
		Name:                 "rabbitmq",
		RequiresSubscriberID: true,
		SupportsOrdering:     true,
		SupportsAck:          true,
		SupportsTracing:      true,
	}

	AWSCapabilities = Capabilities{
		Name:                 "aws",
		RequiresSubscriberID: true,
		SupportsAck:          true,
		SupportsTracing:      true,
		MaxMessageSize:       262144,
	}
)

// GetCapabilities returns the capabilities registered for a transport name.
func GetCapabilities(transportName string) Capabilities {
	return DefaultRegistry.GetCapabilities(transportName)
}
