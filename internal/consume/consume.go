// Package consume drains the data reader of a discovered topic forever,
// either on a fixed polling cadence or when the reader signals activity.
package consume

import (
	"context"
	"fmt"
	"time"

	"github.com/drblury/dynsub/internal/domain"
	errspkg "github.com/drblury/dynsub/internal/runtime/errors"
	"github.com/drblury/dynsub/internal/runtime/logging"
	"github.com/drblury/dynsub/internal/runtime/metrics"
)

// Mode selects how the loop waits between takes.
type Mode string

const (
	// ModePoll takes once per Interval.
	ModePoll Mode = "poll"
	// ModeWait blocks on a wait set and takes when the reader has samples,
	// or after Interval at the latest.
	ModeWait Mode = "wait"
)

const (
	DefaultInterval   = time.Second
	DefaultMaxSamples = 1
)

// Reader is the data reader the loop drains.
type Reader interface {
	TakeRaw(max int) (*domain.Loan[domain.RawSample], error)
	Dropped() uint64
}

// Waiter blocks until the reader has samples. ModeWait requires one.
type Waiter interface {
	Wait(ctx context.Context, timeout time.Duration) (int, error)
}

// Loop takes samples from Reader until its context is cancelled.
type Loop struct {
	Reader Reader
	Waiter Waiter
	Topic  string

	Mode       Mode
	Interval   time.Duration
	MaxSamples int

	Hooks   Hooks
	Logger  logging.ServiceLogger
	Metrics *metrics.Metrics
}

// Run drains the reader until ctx is done and then returns ctx.Err().
// Take and loan return failures are logged, counted and skipped.
func (l *Loop) Run(ctx context.Context) error {
	if l.Reader == nil {
		return fmt.Errorf("consume: %w", errspkg.ErrEntityDeleted)
	}
	l.setDefaults()

	switch l.Mode {
	case ModePoll:
		return l.poll(ctx)
	case ModeWait:
		if l.Waiter == nil {
			return fmt.Errorf("consume: wait mode needs a wait set: %w", errspkg.ErrConfigRequired)
		}
		return l.wait(ctx)
	default:
		return fmt.Errorf("consume: unknown mode %q: %w", l.Mode, errspkg.ErrConfigRequired)
	}
}

func (l *Loop) poll(ctx context.Context) error {
	ticker := time.NewTicker(l.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			l.Step()
		}
	}
}

func (l *Loop) wait(ctx context.Context) error {
	for {
		triggered, err := l.Waiter.Wait(ctx, l.Interval)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if triggered > 0 {
			l.Step()
		}
	}
}

// Step performs one take and reports every sample in it. It returns the
// number of samples that carried valid data.
func (l *Loop) Step() int {
	l.setDefaults()

	loan, err := l.Reader.TakeRaw(l.MaxSamples)
	if err != nil {
		l.fail("take", err)
		return 0
	}
	defer l.Metrics.SetSamplesDropped(l.Reader.Dropped())
	if loan == nil {
		return 0
	}
	defer func() {
		if err := loan.Return(); err != nil {
			l.fail("return_loan", err)
		}
	}()

	now := time.Now()
	valid := 0
	for _, s := range loan.Samples {
		sc := SampleContext{Topic: l.Topic, Payload: s.Data.Payload, Info: s.Info, TakenAt: now}
		l.Metrics.RecordSample(s.Info.ValidData)
		if s.Info.ValidData {
			valid++
			if l.Hooks.OnData != nil {
				l.Hooks.OnData(sc)
			}
			continue
		}
		if l.Hooks.OnInvalid != nil {
			l.Hooks.OnInvalid(sc)
		}
	}
	return valid
}

func (l *Loop) fail(op string, err error) {
	err = errspkg.Recoverable(op, l.Topic, err)
	l.Metrics.RecordConsumeError(op)
	l.Logger.Error("Failed to consume samples", err, logging.LogFields{"op": op})
	if l.Hooks.OnError != nil {
		l.Hooks.OnError(op, err)
	}
}

func (l *Loop) setDefaults() {
	if l.Logger == nil {
		l.Logger = logging.NopLogger()
	}
	if l.Mode == "" {
		l.Mode = ModePoll
	}
	if l.Interval <= 0 {
		l.Interval = DefaultInterval
	}
	if l.MaxSamples <= 0 {
		l.MaxSamples = DefaultMaxSamples
	}
}
