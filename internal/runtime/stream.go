package runtime

import (
	"context"
	"net/http"

	"github.com/ThreeDotsLabs/watermill"
	watermillhttp "github.com/ThreeDotsLabs/watermill-http/v2/pkg/http"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/drblury/dynsub/internal/consume"
	loggingpkg "github.com/drblury/dynsub/internal/runtime/logging"
)

// statusChangedTopic carries one empty message per status change on the
// service's local event bus.
const statusChangedTopic = "dynsub.status_changed"

// statusStream answers /status/stream with the current status document,
// first on connect and again after every status change.
type statusStream struct {
	svc *Service
}

func (a statusStream) InitialStreamResponse(_ http.ResponseWriter, _ *http.Request) (any, bool) {
	return a.svc.Status(), true
}

func (a statusStream) NextStreamResponse(_ *http.Request, _ *message.Message) (any, bool) {
	return a.svc.Status(), true
}

func newEventBus(log loggingpkg.ServiceLogger) *gochannel.GoChannel {
	return gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 16}, loggingpkg.NewWatermillAdapter(log))
}

// startStatusStream registers /status/stream and runs its router until ctx is done.
func (s *Service) startStatusStream(ctx context.Context) error {
	router, err := watermillhttp.NewSSERouter(watermillhttp.SSERouterConfig{
		UpstreamSubscriber: s.events,
		ErrorHandler:       watermillhttp.DefaultErrorHandler,
	}, loggingpkg.NewWatermillAdapter(s.Logger))
	if err != nil {
		return err
	}

	s.RegisterHTTPHandler(s.Conf.MetricsPort, "/status/stream", router.AddHandler(statusChangedTopic, statusStream{svc: s}))

	go func() {
		if err := router.Run(ctx); err != nil {
			s.Logger.Error("Status stream stopped", err, nil)
		}
	}()
	return nil
}

// notifyStatus wakes /status/stream clients.
func (s *Service) notifyStatus() {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(statusChangedTopic, message.NewMessage(watermill.NewUUID(), nil)); err != nil {
		s.Logger.Debug("Dropped status notification", loggingpkg.LogFields{"error": err.Error()})
	}
}

func (s *Service) statusHooks() consume.Hooks {
	return consume.Hooks{
		OnData:    func(consume.SampleContext) { s.notifyStatus() },
		OnInvalid: func(consume.SampleContext) { s.notifyStatus() },
	}
}
