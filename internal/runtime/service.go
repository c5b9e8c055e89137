package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/drblury/dynsub/internal/consume"
	"github.com/drblury/dynsub/internal/discovery"
	"github.com/drblury/dynsub/internal/domain"
	configpkg "github.com/drblury/dynsub/internal/runtime/config"
	errspkg "github.com/drblury/dynsub/internal/runtime/errors"
	loggingpkg "github.com/drblury/dynsub/internal/runtime/logging"
	metricspkg "github.com/drblury/dynsub/internal/runtime/metrics"
)

const httpShutdownTimeout = 5 * time.Second

// ServiceDependencies holds the optional collaborators of a Service.
// Leave fields nil to use the defaults.
type ServiceDependencies struct {
	// Registry receives the dynsub and router collectors. A private registry
	// is created when nil.
	Registry *prometheus.Registry
	// Hooks run after the built-in logging hooks for every taken sample.
	Hooks consume.Hooks
	// Middlewares replaces the participant's default router middlewares.
	Middlewares []domain.MiddlewareRegistration
	// OnTransition observes discovery state changes.
	OnTransition func(from, to discovery.State)
}

// Service owns the domain participant and runs discovery followed by
// sample consumption.
type Service struct {
	Conf   *configpkg.Config
	Logger loggingpkg.ServiceLogger

	participant *domain.Participant
	metrics     *metricspkg.Metrics
	registry    *prometheus.Registry
	hooks       consume.Hooks
	onTrans     func(from, to discovery.State)
	events      *gochannel.GoChannel

	mu     sync.RWMutex
	loop   *discovery.Loop[*domain.Topic]
	topic  *domain.Topic
	reader *domain.DataReader

	httpServers   map[int]*http.ServeMux
	httpServersMu sync.Mutex
}

// NewService validates conf and joins its domain. Errors from the
// participant are fatal (errors.IsFatal reports true).
func NewService(ctx context.Context, conf *configpkg.Config, log loggingpkg.ServiceLogger, deps ServiceDependencies) (*Service, error) {
	if conf == nil {
		return nil, errspkg.ErrConfigRequired
	}
	if log == nil {
		return nil, errspkg.ErrLoggerRequired
	}
	if err := conf.Validate(); err != nil {
		return nil, errspkg.NewConfigValidationError(err)
	}

	log.Info("Creating domain participant", loggingpkg.LogFields{
		"pubsub_system": conf.PubSubSystem,
		"domain_id":     conf.DomainID,
		"config":        conf,
	})

	registry := deps.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	m := metricspkg.New(registry)
	if err := m.Register(); err != nil {
		return nil, fmt.Errorf("dynsub: register metrics: %w", err)
	}

	var routerMetrics prometheus.Registerer
	if conf.MetricsEnabled {
		routerMetrics = registry
	}

	p, err := domain.NewParticipant(ctx, domain.Options{
		Config:        conf,
		Logger:        log,
		Registerer:    routerMetrics,
		TypeCacheSize: conf.TypeCacheSize,
		HistoryDepth:  conf.ReaderHistoryDepth,
		Middlewares:   deps.Middlewares,
	})
	if err != nil {
		return nil, err
	}

	svc := &Service{
		Conf:        conf,
		Logger:      log,
		participant: p,
		metrics:     m,
		registry:    registry,
		hooks:       deps.Hooks,
		onTrans:     deps.OnTransition,
	}
	if conf.StatusEnabled {
		svc.events = newEventBus(log)
	}
	return svc, nil
}

// Participant returns the service's domain participant.
func (s *Service) Participant() *domain.Participant { return s.participant }

// Metrics returns the service's counters.
func (s *Service) Metrics() *metricspkg.Metrics { return s.metrics }

// Topic returns the discovered topic, or nil while discovery runs.
func (s *Service) Topic() *domain.Topic {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.topic
}

// Start serves the HTTP endpoints, discovers the target topic and consumes
// it until ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	if err := s.registerEndpoints(ctx); err != nil {
		return err
	}
	s.startHTTPServers(ctx)

	topic, err := s.Discover(ctx)
	if err != nil {
		return err
	}
	return s.Consume(ctx, topic)
}

// Discover runs the discovery loop for the configured target topic.
func (s *Service) Discover(ctx context.Context) (*domain.Topic, error) {
	d := discovery.ForParticipant(s.participant)
	loop := discovery.NewLoop(d, s.Conf.TargetTopic)
	loop.Resolver = &discovery.Resolver{Types: d, Scope: domain.FindScopeGlobal, Timeout: s.Conf.ResolveTimeout}
	loop.WaitTimeout = s.Conf.DiscoveryWaitTimeout
	loop.Logger = s.Logger
	loop.Metrics = s.metrics
	loop.OnTransition = func(from, to discovery.State) {
		s.notifyStatus()
		if s.onTrans != nil {
			s.onTrans(from, to)
		}
	}

	s.mu.Lock()
	s.loop = loop
	s.mu.Unlock()

	topic, err := loop.Run(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.topic = topic
	s.mu.Unlock()
	return topic, nil
}

// Consume reads topic until ctx is cancelled. The reader and, in wait
// mode, its read condition and wait set are deleted on return.
func (s *Service) Consume(ctx context.Context, topic *domain.Topic) error {
	reader, err := s.participant.CreateReader(topic, s.participant.DefaultReaderQoS())
	if err != nil {
		return err
	}
	defer s.deleteEntity(reader)

	s.mu.Lock()
	s.reader = reader
	s.mu.Unlock()

	loop := &consume.Loop{
		Reader:     reader,
		Topic:      topic.Name(),
		Mode:       consume.Mode(s.Conf.ConsumeMode),
		Interval:   s.Conf.PollInterval,
		MaxSamples: s.Conf.MaxSamplesPerTake,
		Hooks:      consume.LoggingHooks(s.Logger).Merge(s.statusHooks()).Merge(s.hooks),
		Logger:     s.Logger,
		Metrics:    s.metrics,
	}

	if loop.Mode == consume.ModeWait {
		cond, err := s.participant.CreateReadCondition(reader)
		if err != nil {
			return err
		}
		defer s.deleteEntity(cond)

		ws, err := s.participant.CreateWaitSet()
		if err != nil {
			return err
		}
		defer s.deleteEntity(ws)
		if err := ws.Attach(cond); err != nil {
			return err
		}
		loop.Waiter = ws
	}

	s.Logger.Info("Consuming topic", loggingpkg.LogFields{
		"topic":     topic.Name(),
		"type_name": topic.TypeName(),
		"mode":      loop.Mode,
	})
	return loop.Run(ctx)
}

// Close leaves the domain.
func (s *Service) Close() error {
	err := s.participant.Close()
	if s.events != nil {
		err = errors.Join(err, s.events.Close())
	}
	return err
}

func (s *Service) deleteEntity(e domain.Entity) {
	if err := e.Delete(); err != nil && !errors.Is(err, errspkg.ErrEntityDeleted) {
		s.Logger.Error("Failed to delete entity", err, loggingpkg.LogFields{"kind": e.Kind().String()})
	}
}

func (s *Service) registerEndpoints(ctx context.Context) error {
	if s.Conf.MetricsEnabled {
		s.RegisterHTTPHandler(s.Conf.MetricsPort, "/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry}))
	}
	if s.Conf.StatusEnabled {
		s.RegisterHTTPHandler(s.Conf.MetricsPort, "/status", http.HandlerFunc(s.handleStatus))
		return s.startStatusStream(ctx)
	}
	return nil
}

// RegisterHTTPHandler adds handler for pattern to the server on port.
// Servers start with Start.
func (s *Service) RegisterHTTPHandler(port int, pattern string, handler http.Handler) {
	s.httpServersMu.Lock()
	defer s.httpServersMu.Unlock()

	if s.httpServers == nil {
		s.httpServers = make(map[int]*http.ServeMux)
	}

	mux, ok := s.httpServers[port]
	if !ok {
		mux = http.NewServeMux()
		s.httpServers[port] = mux
	}

	mux.Handle(pattern, handler)
}

func (s *Service) startHTTPServers(ctx context.Context) {
	s.httpServersMu.Lock()
	defer s.httpServersMu.Unlock()

	for port, mux := range s.httpServers {
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		s.Logger.Info("Starting HTTP server", loggingpkg.LogFields{"address": srv.Addr})
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.Logger.Error("Failed to start HTTP server", err, loggingpkg.LogFields{"address": srv.Addr})
			}
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), httpShutdownTimeout)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}
}
