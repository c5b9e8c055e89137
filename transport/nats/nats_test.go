package nats

import (
	"context"
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	nc "github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/dynsub/transport"
)

func TestRegistered(t *testing.T) {
	assert.True(t, transport.DefaultRegistry.Has(TransportName))
	caps := transport.GetCapabilities(TransportName)
	assert.Equal(t, "nats", caps.Name)
	assert.True(t, caps.SupportsFanOut)
	assert.True(t, caps.SupportsTracing)
	assert.Equal(t, transport.NATSCapabilities, Capabilities())
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
	t.Run("disables jetstream and names the connection", func(t *testing.T) {
		overrideFactories(t)

		var pubCfg nats.PublisherConfig
		var subCfg nats.SubscriberConfig
		mockPub, mockSub := &mockPublisher{}, &mockSubscriber{}

		PublisherFactory = func(config nats.PublisherConfig, _ watermill.LoggerAdapter) (message.Publisher, error) {
			pubCfg = config
			return mockPub, nil
		}
		SubscriberFactory = func(config nats.SubscriberConfig, _ watermill.LoggerAdapter) (message.Subscriber, error) {
			subCfg = config
			return mockSub, nil
		}

		cfg := &mockConfig{natsURL: "nats://localhost:4222", subscriberID: "P1"}
		tr, err := Build(context.Background(), cfg, watermill.NopLogger{})

		require.NoError(t, err)
		assert.Same(t, mockPub, tr.Publisher)
		assert.Same(t, mockSub, tr.Subscriber)
		assert.Equal(t, "nats://localhost:4222", pubCfg.URL)
		assert.Equal(t, "nats://localhost:4222", subCfg.URL)
		assert.True(t, pubCfg.JetStream.Disabled)
		assert.True(t, subCfg.JetStream.Disabled)
		assert.Empty(t, subCfg.QueueGroupPrefix, "a queue group would split announcements between participants")
		assert.Equal(t, 1, subCfg.SubscribersCount)
		assert.Len(t, subCfg.NatsOptions, len(ConnectionOptions(cfg, watermill.NopLogger{})))
		assert.Len(t, pubCfg.NatsOptions, len(subCfg.NatsOptions))
	})

	t.Run("returns error when publisher factory fails", func(t *testing.T) {
		overrideFactories(t)
		PublisherFactory = func(nats.PublisherConfig, watermill.LoggerAdapter) (message.Publisher, error) {
			return nil, errors.New("publisher error")
		}

		_, err := Build(context.Background(), &mockConfig{natsURL: "nats://localhost:4222"}, watermill.NopLogger{})
		assert.ErrorContains(t, err, "publisher error")
	})

	t.Run("closes publisher when subscriber factory fails", func(t *testing.T) {
		overrideFactories(t)
		mockPub := &mockPublisher{}
		PublisherFactory = func(nats.PublisherConfig, watermill.LoggerAdapter) (message.Publisher, error) {
			return mockPub, nil
		}
		SubscriberFactory = func(nats.SubscriberConfig, watermill.LoggerAdapter) (message.Subscriber, error) {
			return nil, errors.New("subscriber error")
		}

		_, err := Build(context.Background(), &mockConfig{natsURL: "nats://localhost:4222"}, watermill.NopLogger{})
		assert.ErrorContains(t, err, "subscriber error")
		assert.True(t, mockPub.closed)
	})
}

func TestConnectionOptions(t *testing.T) {
	var opts nc.Options
	for _, opt := range ConnectionOptions(&mockConfig{subscriberID: "P1"}, watermill.NopLogger{}) {
		require.NoError(t, opt(&opts))
	}

	assert.Equal(t, "dynsub-0-p1", opts.Name)
	assert.Equal(t, -1, opts.MaxReconnect)
	assert.Equal(t, reconnectWait, opts.ReconnectWait)
	require.NotNil(t, opts.DisconnectedErrCB)
	require.NotNil(t, opts.ReconnectedCB)

	opts.DisconnectedErrCB(nil, errors.New("connection reset"))
	opts.ReconnectedCB(nil)
}

type mockConfig struct {
	natsURL      string
	subscriberID string
}

func (m *mockConfig) GetPubSubSystem() string       { return TransportName }
func (m *mockConfig) GetDomainID() uint32           { return 0 }
func (m *mockConfig) GetSubscriberID() string       { return m.subscriberID }
func (m *mockConfig) GetKafkaBrokers() []string     { return nil }
func (m *mockConfig) GetRabbitMQURL() string        { return "" }
func (m *mockConfig) GetNATSURL() string            { return m.natsURL }
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
