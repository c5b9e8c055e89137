package consume

import (
	"time"

	"github.com/drblury/dynsub/internal/domain"
	"github.com/drblury/dynsub/internal/runtime/logging"
)

// SampleContext describes one taken sample to hooks.
type SampleContext struct {
	// Topic is the name of the topic the sample was read from.
	Topic string
	// Payload is the encoded sample. Empty for invalid samples.
	Payload []byte
	// Info is the sample's metadata.
	Info domain.SampleInfo
	// TakenAt is when the loop took the sample.
	TakenAt time.Time
}

// Hooks are callbacks for sample and error events. Nil hooks are skipped.
type Hooks struct {
	// OnData is called for every sample that carries valid data.
	OnData func(ctx SampleContext)
	// OnInvalid is called for lifecycle notices without data.
	OnInvalid func(ctx SampleContext)
	// OnError is called when taking or returning a loan fails. op is
	// "take" or "return_loan".
	OnError func(op string, err error)
}

// Merge combines two Hooks. The hooks from other run after those of h.
func (h Hooks) Merge(other Hooks) Hooks {
	return Hooks{
		OnData:    chainSampleHooks(h.OnData, other.OnData),
		OnInvalid: chainSampleHooks(h.OnInvalid, other.OnInvalid),
		OnError:   chainErrorHooks(h.OnError, other.OnError),
	}
}

func chainSampleHooks(a, b func(SampleContext)) func(SampleContext) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx SampleContext) {
		a(ctx)
		b(ctx)
	}
}

func chainErrorHooks(a, b func(string, error)) func(string, error) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(op string, err error) {
		a(op, err)
		b(op, err)
	}
}

// LoggingHooks logs "Data received" for every valid sample.
func LoggingHooks(logger logging.ServiceLogger) Hooks {
	return Hooks{
		OnData: func(ctx SampleContext) {
			logger.Info("Data received", logging.LogFields{
				"topic":            ctx.Topic,
				"writer":           ctx.Info.Writer,
				"bytes":            len(ctx.Payload),
				"source_timestamp": ctx.Info.SourceTimestamp,
			})
		},
		OnInvalid: func(ctx SampleContext) {
			logger.Debug("Skipping sample without valid data", logging.LogFields{
				"topic":          ctx.Topic,
				"instance_state": ctx.Info.InstanceState,
			})
		},
	}
}

// CountingHooks reports the validity of every sample to count.
func CountingHooks(count func(valid bool)) Hooks {
	return Hooks{
		OnData:    func(SampleContext) { count(true) },
		OnInvalid: func(SampleContext) { count(false) },
	}
}
