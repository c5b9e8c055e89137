// Package nats provides a NATS Core transport. JetStream is disabled: every
// subscription is a plain subject subscription, which broadcasts to all
// participants without a queue group.
package nats

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	nc "github.com/nats-io/nats.go"

	"github.com/drblury/dynsub/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "nats"

const (
	reconnectWait = time.Second
	closeTimeout  = 5 * time.Second
)

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(cfg nats.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return nats.NewPublisher(cfg, logger)
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(cfg nats.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return nats.NewSubscriber(cfg, logger)
}

func init() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.NATSCapabilities)
}

// ConnectionOptions names the connection after the participant's group and
// keeps reconnecting forever. Announcements published while disconnected are
// lost; the participant recovers them with a publications request.
func ConnectionOptions(cfg transport.Config, logger watermill.LoggerAdapter) []nc.Option {
	group := transport.SubscriberGroup(cfg)
	log := logger.With(watermill.LogFields{"nats_connection": group})

	return []nc.Option{
		nc.Name(group),
		nc.MaxReconnects(-1),
		nc.ReconnectWait(reconnectWait),
		nc.DisconnectErrHandler(func(conn *nc.Conn, err error) {
			if err != nil {
				log.Error("NATS disconnected", err, connFields(conn))
				return
			}
			log.Debug("NATS disconnected", connFields(conn))
		}),
		nc.ReconnectHandler(func(conn *nc.Conn) {
			log.Info("NATS reconnected", connFields(conn))
		}),
	}
}

func connFields(conn *nc.Conn) watermill.LogFields {
	if conn == nil {
		return nil
	}
	return watermill.LogFields{
		"nats_url":        conn.ConnectedUrl(),
		"nats_reconnects": conn.Reconnects,
	}
}

// Build creates a NATS transport. A single subscriber goroutine per subject
// keeps announcements from one participant in publish order.
func Build(_ context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	url := cfg.GetNATSURL()
	marshaler := &nats.NATSMarshaler{}
	options := ConnectionOptions(cfg, logger)
	noJetStream := nats.JetStreamConfig{Disabled: true}

	publisher, err := PublisherFactory(nats.PublisherConfig{
		URL:         url,
		NatsOptions: options,
		Marshaler:   marshaler,
		JetStream:   noJetStream,
	}, logger)
	if err != nil {
		return transport.Transport{}, err
	}

	subscriber, err := SubscriberFactory(nats.SubscriberConfig{
		URL:              url,
		NatsOptions:      options,
		Unmarshaler:      marshaler,
		SubscribersCount: 1,
		CloseTimeout:     closeTimeout,
		JetStream:        noJetStream,
	}, logger)
	if err != nil {
		_ = publisher.Close()
		return transport.Transport{}, err
	}

	return transport.Transport{Publisher: publisher, Subscriber: subscriber}, nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.NATSCapabilities
}
