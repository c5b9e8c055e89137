package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/dynsub/internal/runtime/metadata"
	"github.com/drblury/dynsub/transport"
)

func TestRegistered(t *testing.T) {
	assert.True(t, transport.DefaultRegistry.Has(TransportName))
	caps := transport.GetCapabilities(TransportName)
	assert.Equal(t, "kafka", caps.Name)
	assert.True(t, caps.RequiresSubscriberID)
	assert.Equal(t, transport.KafkaCapabilities, Capabilities())
}

func overrideFactories(t *testing.T) {
	t.Helper()
	originalPub, originalSub := PublisherFactory, SubscriberFactory
	t.Cleanup(func() {
		PublisherFactory = originalPub
		SubscriberFactory = originalSub
	})
}

func TestBuild(t *testing.T) {
	t.Run("gives each participant its own consumer group", func(t *testing.T) {
		overrideFactories(t)

		var groups []string
		var initial int64
		PublisherFactory = func(cfg kafka.PublisherConfig, _ watermill.LoggerAdapter) (message.Publisher, error) {
			assert.Equal(t, []string{"localhost:9092"}, cfg.Brokers)
			require.NotNil(t, cfg.OverwriteSaramaConfig)
			assert.True(t, cfg.OverwriteSaramaConfig.Producer.Return.Successes)
			return &mockPublisher{}, nil
		}
		SubscriberFactory = func(cfg kafka.SubscriberConfig, _ watermill.LoggerAdapter) (message.Subscriber, error) {
			groups = append(groups, cfg.ConsumerGroup)
			initial = cfg.OverwriteSaramaConfig.Consumer.Offsets.Initial
			return &mockSubscriber{}, nil
		}

		for _, id := range []string{"A", "B"} {
			tr, err := Build(context.Background(), &mockConfig{brokers: []string{"localhost:9092"}, subscriberID: id}, watermill.NopLogger{})
			require.NoError(t, err)
			assert.NotNil(t, tr.Publisher)
			assert.NotNil(t, tr.Subscriber)
		}

		assert.Equal(t, []string{"dynsub-2-a", "dynsub-2-b"}, groups)
		assert.Equal(t, sarama.OffsetNewest, initial)
	})

	t.Run("returns error when publisher factory fails", func(t *testing.T) {
		overrideFactories(t)
		PublisherFactory = func(kafka.PublisherConfig, watermill.LoggerAdapter) (message.Publisher, error) {
			return nil, errors.New("publisher error")
		}

		_, err := Build(context.Background(), &mockConfig{brokers: []string{"localhost:9092"}}, watermill.NopLogger{})
		assert.ErrorContains(t, err, "publisher error")
	})

	t.Run("closes publisher when subscriber factory fails", func(t *testing.T) {
		overrideFactories(t)
		pub := &mockPublisher{}
		PublisherFactory = func(kafka.PublisherConfig, watermill.LoggerAdapter) (message.Publisher, error) {
			return pub, nil
		}
		SubscriberFactory = func(kafka.SubscriberConfig, watermill.LoggerAdapter) (message.Subscriber, error) {
			return nil, errors.New("subscriber error")
		}

		_, err := Build(context.Background(), &mockConfig{brokers: []string{"localhost:9092"}}, watermill.NopLogger{})
		assert.ErrorContains(t, err, "subscriber error")
		assert.True(t, pub.closed)
	})
}

func TestSaramaConfigsCarryGroup(t *testing.T) {
	pub, sub := SaramaConfigs(&mockConfig{subscriberID: "P1"})

	assert.Equal(t, "dynsub-2-p1", pub.ClientID)
	assert.Equal(t, "dynsub-2-p1", sub.ClientID)
	assert.Equal(t, sarama.WaitForLocal, pub.Producer.RequiredAcks)
	assert.Equal(t, sarama.OffsetNewest, sub.Consumer.Offsets.Initial)
}

func TestPartitionKey(t *testing.T) {
	msg := message.NewMessage("1", nil)
	key, err := PartitionKey("dynsub_0_builtin_publications", msg)
	require.NoError(t, err)
	assert.Equal(t, "dynsub_0_builtin_publications", key)

	msg.Metadata.Set(metadata.KeyWriterGUID, "writer-1")
	key, err = PartitionKey("dynsub_0_builtin_publications", msg)
	require.NoError(t, err)
	assert.Equal(t, "writer-1", key)
}

type mockConfig struct {
	brokers      []string
	subscriberID string
}

func (m *mockConfig) GetPubSubSystem() string       { return TransportName }
func (m *mockConfig) GetDomainID() uint32           { return 2 }
func (m *mockConfig) GetSubscriberID() string       { return m.subscriberID }
func (m *mockConfig) GetKafkaBrokers() []string     { return m.brokers }
func (m *mockConfig) GetRabbitMQURL() string        { return "" }
func (m *mockConfig) GetNATSURL() string            { return "" }
func (m *mockConfig) GetAWSRegion() string          { return "" }
func (m *mockConfig) GetAWSAccountID() string       { return "" }
func (m *mockConfig) GetAWSAccessKeyID() string     { return "" }
func (m *mockConfig) GetAWSSecretAccessKey() string { return "" }
func (m *mockConfig) GetAWSEndpoint() string        { return "" }

type mockPublisher struct{ closed bool }

func (m *mockPublisher) Publish(string, ...*message.Message) error { return nil }
func (m *mockPublisher) Close() error {
	m.closed = true
	return nil
}

type mockSubscriber struct{}

func (m *mockSubscriber) Subscribe(context.Context, string) (<-chan *message.Message, error) {
	return make(chan *message.Message), nil
}
func (m *mockSubscriber) Close() error { return nil }
