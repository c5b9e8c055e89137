package domain

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/drblury/dynsub/transport/channel"
)

var nextDomainID atomic.Uint32

type testConfig struct {
	system   string
	domainID uint32
}

func (c testConfig) GetPubSubSystem() string       { return c.system }
func (c testConfig) GetDomainID() uint32           { return c.domainID }
func (c testConfig) GetSubscriberID() string       { return "" }
func (c testConfig) GetKafkaBrokers() []string     { return nil }
func (c testConfig) GetRabbitMQURL() string        { return "" }
func (c testConfig) GetNATSURL() string            { return "" }
func (c testConfig) GetAWSRegion() string          { return "" }
func (c testConfig) GetAWSAccountID() string       { return "" }
func (c testConfig) GetAWSAccessKeyID() string     { return "" }
func (c testConfig) GetAWSSecretAccessKey() string { return "" }
func (c testConfig) GetAWSEndpoint() string        { return "" }

// newDomain returns a config for a fresh in-process domain.
func newDomain(t *testing.T) testConfig {
	t.Helper()
	t.Cleanup(channel.Reset)
	return testConfig{system: channel.TransportName, domainID: 1000 + nextDomainID.Add(1)}
}

func newParticipant(t *testing.T, cfg testConfig) *Participant {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p, err := NewParticipant(ctx, Options{Config: cfg, HistoryDepth: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

// helloDescriptor builds HelloWorldData.Msg { int32 userID = 1; string message = 2; }.
func helloDescriptor(t *testing.T) protoreflect.MessageDescriptor {
	t.Helper()
	fdp := &descriptorpb.FileDescriptorProto{
		Name:    proto.String("HelloWorldData.proto"),
		Package: proto.String("HelloWorldData"),
		Syntax:  proto.String("proto3"),
		MessageType: []*descriptorpb.DescriptorProto{{
			Name: proto.String("Msg"),
			Field: []*descriptorpb.FieldDescriptorProto{
				{
					Name:     proto.String("userID"),
					JsonName: proto.String("userID"),
					Number:   proto.Int32(1),
					Label:    descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
					Type:     descriptorpb.FieldDescriptorProto_TYPE_INT32.Enum(),
				},
				{
					Name:     proto.String("message"),
					JsonName: proto.String("message"),
					Number:   proto.Int32(2),
					Label:    descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
					Type:     descriptorpb.FieldDescriptorProto_TYPE_STRING.Enum(),
				},
			},
		}},
	}
	fd, err := protodesc.NewFile(fdp, nil)
	require.NoError(t, err)
	return fd.Messages().ByName("Msg")
}

func helloMessage(md protoreflect.MessageDescriptor, userID int32, text string) *dynamicpb.Message {
	msg := dynamicpb.NewMessage(md)
	msg.Set(md.Fields().ByName("userID"), protoreflect.ValueOfInt32(userID))
	msg.Set(md.Fields().ByName("message"), protoreflect.ValueOfString(text))
	return msg
}

// takeOne waits up to a few seconds for one sample on reader.
func takeOne[T any](t *testing.T, r *Reader[T]) Sample[T] {
	t.Helper()
	var loan *Loan[T]
	require.Eventually(t, func() bool {
		var err error
		loan, err = r.Take(1)
		require.NoError(t, err)
		return loan != nil
	}, 5*time.Second, 5*time.Millisecond)
	sample := loan.Samples[0]
	require.NoError(t, loan.Return())
	return sample
}
