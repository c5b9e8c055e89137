package dynsub

import (
	"github.com/drblury/dynsub/internal/consume"
	"github.com/drblury/dynsub/internal/discovery"
	"github.com/drblury/dynsub/internal/domain"
	runtimepkg "github.com/drblury/dynsub/internal/runtime"
	configpkg "github.com/drblury/dynsub/internal/runtime/config"
	errspkg "github.com/drblury/dynsub/internal/runtime/errors"
	loggingpkg "github.com/drblury/dynsub/internal/runtime/logging"
	metricspkg "github.com/drblury/dynsub/internal/runtime/metrics"
	"github.com/drblury/dynsub/transport"
)

type (
	Config              = configpkg.Config
	Service             = runtimepkg.Service
	ServiceDependencies = runtimepkg.ServiceDependencies
	Status              = runtimepkg.Status
	TopicStatus         = runtimepkg.TopicStatus

	Participant        = domain.Participant
	ParticipantOptions = domain.Options
	Topic              = domain.Topic
	Descriptor         = domain.Descriptor
	TypeInfo           = domain.TypeInfo
	PublicationRecord  = domain.PublicationRecord
	DataReader         = domain.DataReader
	ReaderQoS          = domain.ReaderQoS
	RawSample          = domain.RawSample
	SampleInfo         = domain.SampleInfo
	Sample[T any]      = domain.Sample[T]
	Loan[T any]        = domain.Loan[T]
	Reader[T any]      = domain.Reader[T]
	ReadCondition      = domain.ReadCondition
	WaitSet            = domain.WaitSet
	Writer             = domain.Writer
	WriterOption       = domain.WriterOption
	Entity             = domain.Entity
	FindScope          = domain.FindScope

	MiddlewareBuilder      = domain.MiddlewareBuilder
	MiddlewareRegistration = domain.MiddlewareRegistration

	DiscoveryState = discovery.State
	ConsumeHooks   = consume.Hooks
	SampleContext  = consume.SampleContext

	Metrics         = metricspkg.Metrics
	MetricsSnapshot = metricspkg.Snapshot

	LogFields                 = loggingpkg.LogFields
	ServiceLogger             = loggingpkg.ServiceLogger
	EntryLoggerAdapter[T any] = loggingpkg.EntryLoggerAdapter[T]

	RecoverableError      = errspkg.RecoverableError
	FatalError            = errspkg.FatalError
	ConfigValidationError = errspkg.ConfigValidationError

	TransportBuilder      = transport.Builder
	TransportConfig       = transport.Config
	TransportRegistry     = transport.Registry
	TransportCapabilities = transport.Capabilities
)

const (
	Infinite        = domain.Infinite
	FindScopeLocal  = domain.FindScopeLocal
	FindScopeGlobal = domain.FindScopeGlobal

	StateWaiting        = discovery.StateWaiting
	StateEntryAvailable = discovery.StateEntryAvailable
	StateMatched        = discovery.StateMatched
	StateResolved       = discovery.StateResolved
	StateFound          = discovery.StateFound
)

var (
	NewService     = runtimepkg.NewService
	DefaultConfig  = configpkg.Default
	LoadConfig     = configpkg.Load
	ValidateConfig = configpkg.ValidateConfig

	NewParticipant         = domain.NewParticipant
	WithoutTypeInformation = domain.WithoutTypeInformation

	DefaultMiddlewares    = domain.DefaultMiddlewares
	LogMessagesMiddleware = domain.LogMessagesMiddleware
	TracerMiddleware      = domain.TracerMiddleware
	MetricsMiddleware     = domain.MetricsMiddleware
	RecovererMiddleware   = domain.RecovererMiddleware

	LoggingHooks  = consume.LoggingHooks
	CountingHooks = consume.CountingHooks

	NewLogger            = loggingpkg.New
	NewSlogServiceLogger = loggingpkg.NewSlogServiceLogger
	NopLogger            = loggingpkg.NopLogger

	RegisterTransport = transport.Register
	BuildTransport    = transport.Build
	GetCapabilities   = transport.GetCapabilities

	IsRecoverable = errspkg.IsRecoverable
	IsFatal       = errspkg.IsFatal

	ErrConfigRequired      = errspkg.ErrConfigRequired
	ErrLoggerRequired      = errspkg.ErrLoggerRequired
	ErrTransportRequired   = errspkg.ErrTransportRequired
	ErrTopicRequired       = errspkg.ErrTopicRequired
	ErrParticipantCreate   = errspkg.ErrParticipantCreate
	ErrParticipantClosed   = errspkg.ErrParticipantClosed
	ErrEntityDeleted       = errspkg.ErrEntityDeleted
	ErrLoanReturned        = errspkg.ErrLoanReturned
	ErrInvalidData         = errspkg.ErrInvalidData
	ErrInvalidTopicName    = errspkg.ErrInvalidTopicName
	ErrTypeInfoUnavailable = errspkg.ErrTypeInfoUnavailable
	ErrTypeNotFound        = errspkg.ErrTypeNotFound
	ErrResolveTimeout      = errspkg.ErrResolveTimeout
	ErrInvalidTypeObject   = errspkg.ErrInvalidTypeObject
	ErrDescriptorReleased  = errspkg.ErrDescriptorReleased
	ErrInconsistentTopic   = errspkg.ErrInconsistentTopic
)

func NewEntryServiceLogger[T EntryLoggerAdapter[T]](entry T) ServiceLogger {
	return loggingpkg.NewEntryServiceLogger(entry)
}
