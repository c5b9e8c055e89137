// Package kafka provides a Kafka transport. Each participant consumes through
// its own consumer group and starts at the newest offset; publications that
// predate it are re-announced on request rather than replayed from the log.
package kafka

import (
	"context"

	"github.com/IBM/sarama"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/dynsub/internal/runtime/metadata"
	"github.com/drblury/dynsub/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "kafka"

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(cfg kafka.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return kafka.NewPublisher(cfg, logger)
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(cfg kafka.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return kafka.NewSubscriber(cfg, logger)
}

func init() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.KafkaCapabilities)
}

// PartitionKey keys every message by the writer that produced it, so the
// announcements and samples of one writer land on one partition and stay
// ordered. Messages without a writer fall back to the topic name.
func PartitionKey(topic string, msg *message.Message) (string, error) {
	if writer := msg.Metadata.Get(metadata.KeyWriterGUID); writer != "" {
		return writer, nil
	}
	return topic, nil
}

// Marshaler returns the partitioning marshaler shared by both halves.
func Marshaler() kafka.MarshalerUnmarshaler {
	return kafka.NewWithPartitioningMarshaler(PartitionKey)
}

// SaramaConfigs returns the publisher and subscriber client configurations
// for the participant behind cfg.
func SaramaConfigs(cfg transport.Config) (*sarama.Config, *sarama.Config) {
	group := transport.SubscriberGroup(cfg)

	pub := kafka.DefaultSaramaSyncPublisherConfig()
	pub.ClientID = group
	pub.Producer.RequiredAcks = sarama.WaitForLocal

	sub := kafka.DefaultSaramaSubscriberConfig()
	sub.ClientID = group
	sub.Consumer.Offsets.Initial = sarama.OffsetNewest

	return pub, sub
}

// Build creates a Kafka transport.
func Build(_ context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	brokers := cfg.GetKafkaBrokers()
	marshaler := Marshaler()
	pubSarama, subSarama := SaramaConfigs(cfg)

	publisher, err := PublisherFactory(kafka.PublisherConfig{
		Brokers:               brokers,
		Marshaler:             marshaler,
		OverwriteSaramaConfig: pubSarama,
	}, logger)
	if err != nil {
		return transport.Transport{}, err
	}

	subscriber, err := SubscriberFactory(kafka.SubscriberConfig{
		Brokers:               brokers,
		Unmarshaler:           marshaler,
		ConsumerGroup:         transport.SubscriberGroup(cfg),
		OverwriteSaramaConfig: subSarama,
	}, logger)
	if err != nil {
		_ = publisher.Close()
		return transport.Transport{}, err
	}

	return transport.Transport{Publisher: publisher, Subscriber: subscriber}, nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.KafkaCapabilities
}
