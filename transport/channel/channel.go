// Package channel provides an in-process transport. Every participant built
// for the same domain id in one process shares a single Go channel bus, so a
// writer and a reader created side by side discover each other.
package channel

import (
	"context"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/drblury/dynsub/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "channel"

// OutputBuffer is the per-subscription channel buffer of a bus.
const OutputBuffer = 256

// Factory allows overriding the bus creation for testing.
var Factory = func(cfg gochannel.Config, logger watermill.LoggerAdapter) (message.Publisher, message.Subscriber) {
	pubSub := gochannel.NewGoChannel(cfg, logger)
	return pubSub, pubSub
}

type bus struct {
	pub message.Publisher
	sub message.Subscriber
}

var (
	busesMu sync.Mutex
	buses   = map[uint32]bus{}
)

func init() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.ChannelCapabilities)
}

// Build returns a transport attached to the bus of cfg's domain, creating the
// bus on first use. Closing the transport leaves the shared bus running;
// subscriptions end with the context they were opened with.
func Build(_ context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	busesMu.Lock()
	defer busesMu.Unlock()

	b, ok := buses[cfg.GetDomainID()]
	if !ok {
		pub, sub := Factory(gochannel.Config{OutputChannelBuffer: OutputBuffer}, logger)
		b = bus{pub: pub, sub: sub}
		buses[cfg.GetDomainID()] = b
	}

	return transport.Transport{
		Publisher:  sharedPublisher{b.pub},
		Subscriber: sharedSubscriber{b.sub},
	}, nil
}

// Reset closes every bus. Tests call it to isolate domains between cases.
func Reset() {
	busesMu.Lock()
	defer busesMu.Unlock()
	for id, b := range buses {
		_ = b.pub.Close()
		if any(b.sub) != any(b.pub) {
			_ = b.sub.Close()
		}
		delete(buses, id)
	}
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.ChannelCapabilities
}

type sharedPublisher struct{ message.Publisher }

func (sharedPublisher) Close() error { return nil }

type sharedSubscriber struct{ message.Subscriber }

func (sharedSubscriber) Close() error { return nil }
