// Package rabbitmq provides a RabbitMQ/AMQP transport. Topics map to fanout
// exchanges; each participant binds its own auto-deleted queue so every
// participant receives every message.
package rabbitmq

import (
	"context"
	"errors"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/dynsub/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "rabbitmq"

// ConnectionFactory allows overriding the connection creation for testing.
var ConnectionFactory = func(cfg amqp.ConnectionConfig, logger watermill.LoggerAdapter) (*amqp.ConnectionWrapper, error) {
	return amqp.NewConnection(cfg, logger)
}

// CloseConnection releases a connection whose publisher or subscriber could
// not be created. Tests replace it together with ConnectionFactory.
var CloseConnection = func(conn *amqp.ConnectionWrapper) error {
	return conn.Close()
}

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(cfg amqp.Config, logger watermill.LoggerAdapter, conn *amqp.ConnectionWrapper) (message.Publisher, error) {
	return amqp.NewPublisherWithConnection(cfg, logger, conn)
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(cfg amqp.Config, logger watermill.LoggerAdapter, conn *amqp.ConnectionWrapper) (message.Subscriber, error) {
	return amqp.NewSubscriberWithConnection(cfg, logger, conn)
}

func init() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.RabbitMQCapabilities)
}

// Config returns the AMQP configuration for the participant behind cfg. Queue
// names carry the participant's group; the consumer tag does too, so the
// broker's management view shows which participant owns which queue.
func Config(cfg transport.Config) amqp.Config {
	group := transport.SubscriberGroup(cfg)
	c := amqp.NewNonDurablePubSubConfig(cfg.GetRabbitMQURL(), amqp.GenerateQueueNameTopicNameWithSuffix(group))
	c.Consume.Consumer = group
	return c
}

// Build creates a RabbitMQ transport sharing one connection between both halves.
func Build(_ context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	amqpConfig := Config(cfg)

	conn, err := ConnectionFactory(amqp.ConnectionConfig{
		AmqpURI:   amqpConfig.Connection.AmqpURI,
		Reconnect: amqp.DefaultReconnectConfig(),
	}, logger)
	if err != nil {
		return transport.Transport{}, err
	}

	publisher, err := PublisherFactory(amqpConfig, logger, conn)
	if err != nil {
		return transport.Transport{}, errors.Join(err, CloseConnection(conn))
	}

	subscriber, err := SubscriberFactory(amqpConfig, logger, conn)
	if err != nil {
		return transport.Transport{}, errors.Join(err, publisher.Close(), CloseConnection(conn))
	}

	return transport.Transport{Publisher: publisher, Subscriber: subscriber}, nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.RabbitMQCapabilities
}
