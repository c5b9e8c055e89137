package discovery

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/drblury/dynsub/internal/domain"
	errspkg "github.com/drblury/dynsub/internal/runtime/errors"
	"github.com/drblury/dynsub/internal/runtime/logging"
	"github.com/drblury/dynsub/internal/runtime/metrics"
)

// State is a step of the discovery loop.
type State int32

const (
	StateWaiting State = iota
	StateEntryAvailable
	StateMatched
	StateResolved
	StateFound
)

var stateNames = [...]string{
	StateWaiting:        "waiting",
	StateEntryAvailable: "entry_available",
	StateMatched:        "matched",
	StateResolved:       "resolved",
	StateFound:          "found",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// StateNames lists every state name, in order.
func StateNames() []string {
	return append([]string(nil), stateNames[:]...)
}

// Loop waits on the publications stream until an entry for Target is found
// and its type resolves, then creates the topic and returns it.
type Loop[T any] struct {
	Domain Domain[T]
	Target string

	// Resolver defaults to a global scope resolver over Domain.
	Resolver *Resolver
	// WaitTimeout bounds each wait on the publications reader. Zero or
	// domain.Infinite waits until activity or cancellation.
	WaitTimeout time.Duration

	Logger  logging.ServiceLogger
	Metrics *metrics.Metrics
	// OnTransition is called on every state change.
	OnTransition func(from, to State)

	state     atomic.Int32
	setupOnce sync.Once
}

// NewLoop returns a loop looking for target on d.
func NewLoop[T any](d Domain[T], target string) *Loop[T] {
	return &Loop[T]{Domain: d, Target: target}
}

// State returns the current state.
func (l *Loop[T]) State() State {
	return State(l.state.Load())
}

// outcome of handling one entry.
type outcome int

const (
	outcomeNext outcome = iota
	outcomeRetry
	outcomeFound
)

// Run blocks until the topic is created or ctx is done. The publications
// reader, read condition and wait set it creates are deleted before it
// returns.
func (l *Loop[T]) Run(ctx context.Context) (T, error) {
	var zero T
	l.setupOnce.Do(l.setDefaults)

	ctx, span := otel.Tracer(tracerName).Start(ctx, "discovery.Run")
	defer span.End()
	span.SetAttributes(attribute.String("dynsub.target", l.Target))

	reader, err := l.Domain.CreatePublicationReader()
	if err != nil {
		span.RecordError(err)
		return zero, err
	}
	defer l.deleteEntity("publications reader", reader.Delete)

	ws, err := l.Domain.CreateWaitSet(reader)
	if err != nil {
		span.RecordError(err)
		return zero, err
	}
	defer l.deleteEntity("wait set", ws.Delete)

	feed := NewFeedReader(reader)
	for {
		l.transition(StateWaiting)
		triggered, err := ws.Wait(ctx, l.WaitTimeout)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return zero, ctxErr
			}
			span.RecordError(err)
			return zero, err
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if triggered == 0 {
			continue
		}

		topic, found := l.drain(ctx, feed)
		if found {
			return topic, nil
		}
	}
}

// drain handles queued entries until the feed is empty, a resolution or
// topic creation fails, or the topic is found.
func (l *Loop[T]) drain(ctx context.Context, feed *FeedReader) (T, bool) {
	var zero T
	l.transition(StateEntryAvailable)
	for {
		entry, err := feed.Next()
		switch {
		case errors.Is(err, ErrFeedEmpty):
			return zero, false
		case errors.Is(err, errspkg.ErrInvalidData):
			l.Metrics.RecordEntry(metrics.OutcomeInvalid)
			l.Logger.Debug("Skipping discovery entry without valid data", nil)
			continue
		case err != nil:
			l.Logger.Error("Failed to take discovery entry", err, nil)
			return zero, false
		}

		topic, result := l.handle(ctx, entry)
		switch result {
		case outcomeFound:
			return topic, true
		case outcomeRetry:
			return zero, false
		}
		if ctx.Err() != nil {
			return zero, false
		}
	}
}

func (l *Loop[T]) handle(ctx context.Context, entry *Entry) (T, outcome) {
	var zero T
	defer func() {
		if err := entry.Release(); err != nil {
			l.Logger.Error("Failed to return discovery entry", err, nil)
		}
	}()

	matched, err := Match(entry, l.Target)
	if err != nil {
		l.Metrics.RecordEntry(metrics.OutcomeBadName)
		l.Logger.Error("Discovery of an invalid topic name", err, logging.LogFields{
			"participant": entry.Record.Participant,
		})
		return zero, outcomeNext
	}
	if !matched {
		l.Metrics.RecordEntry(metrics.OutcomeNoMatch)
		l.Logger.Debug("Ignoring publication of another topic", logging.LogFields{
			"topic": string(entry.Record.TopicName),
		})
		return zero, outcomeNext
	}
	l.Metrics.RecordEntry(metrics.OutcomeMatched)
	l.transition(StateMatched)

	fields := logging.LogFields{"topic": l.Target, "participant": entry.Record.Participant}
	if info := entry.Record.TypeInfo; info != nil {
		fields["type_name"] = info.TypeName
		fields["type_id"] = info.TypeID
	}

	desc, err := l.Resolver.Resolve(ctx, entry)
	if err != nil {
		l.Metrics.RecordResolveFailure(ResolveFailureReason(err))
		if errors.Is(err, errspkg.ErrTypeInfoUnavailable) {
			l.Logger.Error("Type information not available for topic", err, fields)
		} else {
			l.Logger.Error("Type descriptor resolution failed for topic", err, fields)
		}
		return zero, outcomeRetry
	}
	l.transition(StateResolved)

	topic, err := l.Domain.CreateTopic(desc, l.Target)
	if releaseErr := desc.Delete(); releaseErr != nil {
		l.Logger.Error("Failed to release type descriptor", releaseErr, fields)
	}
	if err != nil {
		l.Metrics.RecordTopicCreateFailure()
		l.Logger.Error("Failed to create topic", errspkg.Recoverable("create_topic", l.Target, err), fields)
		return zero, outcomeRetry
	}

	l.transition(StateFound)
	l.Metrics.RecordTopicFound()
	l.Logger.Info("Found topic with name", fields)
	return topic, outcomeFound
}

func (l *Loop[T]) transition(to State) {
	from := State(l.state.Swap(int32(to)))
	l.Metrics.SetDiscoveryState(to.String(), StateNames())
	if l.OnTransition != nil && from != to {
		l.OnTransition(from, to)
	}
}

func (l *Loop[T]) deleteEntity(what string, del func() error) {
	if err := del(); err != nil && !errors.Is(err, errspkg.ErrEntityDeleted) {
		l.Logger.Error("Failed to delete discovery "+what, err, nil)
	}
}

func (l *Loop[T]) setDefaults() {
	if l.Logger == nil {
		l.Logger = logging.NopLogger()
	}
	if l.Resolver == nil {
		l.Resolver = NewResolver(l.Domain)
	}
	if l.WaitTimeout == 0 {
		l.WaitTimeout = domain.Infinite
	}
	l.Logger = l.Logger.With(logging.LogFields{"component": "discovery"})
}
