package domain

import (
	"sync/atomic"
	"time"

	errspkg "github.com/drblury/dynsub/internal/runtime/errors"
	"github.com/drblury/dynsub/internal/runtime/metadata"
)

// SampleInfo describes one sample independent of its payload.
type SampleInfo struct {
	// ValidData is false for lifecycle notices (dispose, unregister) that
	// carry no payload.
	ValidData          bool
	InstanceState      string
	Writer             string
	SourceTimestamp    time.Time
	ReceptionTimestamp time.Time
}

// Sample pairs a payload with its info. Data is the zero value when
// Info.ValidData is false.
type Sample[T any] struct {
	Data T
	Info SampleInfo
}

// Loan is a batch of samples lent by a reader. It must be returned exactly once.
type Loan[T any] struct {
	Samples []Sample[T]

	owner    any
	returned atomic.Bool
	release  func()
}

// Len returns the number of samples in the loan.
func (l *Loan[T]) Len() int { return len(l.Samples) }

// Return gives the loan back. A second call fails with ErrLoanReturned.
func (l *Loan[T]) Return() error {
	if !l.returned.CompareAndSwap(false, true) {
		return errspkg.ErrLoanReturned
	}
	if l.release != nil {
		l.release()
	}
	return nil
}

// Returned reports whether Return has succeeded.
func (l *Loan[T]) Returned() bool { return l.returned.Load() }

// Triggerable is a source a ReadCondition can watch.
type Triggerable interface {
	Entity
	pending() int
	watch(ch chan struct{})
	unwatch(ch chan struct{})
}

// Reader takes samples of type T from its history.
type Reader[T any] struct {
	handle   Handle
	kind     Kind
	hist     *history[T]
	loans    atomic.Int64
	deleted  atomic.Bool
	onDelete func()
}

func newReader[T any](handle Handle, depth int, onDelete func()) *Reader[T] {
	return &Reader[T]{handle: handle, kind: KindReader, hist: newHistory[T](depth), onDelete: onDelete}
}

func (r *Reader[T]) Handle() Handle { return r.handle }
func (r *Reader[T]) Kind() Kind     { return r.kind }

// Take removes up to max samples. It returns a nil loan and no error when
// nothing is queued.
func (r *Reader[T]) Take(max int) (*Loan[T], error) {
	if r.deleted.Load() {
		return nil, errspkg.ErrEntityDeleted
	}
	if max <= 0 {
		return nil, errspkg.ErrInvalidMaxTake
	}
	samples := r.hist.take(max)
	if len(samples) == 0 {
		return nil, nil
	}
	return r.lend(samples), nil
}

func (r *Reader[T]) lend(samples []Sample[T]) *Loan[T] {
	r.loans.Add(1)
	return &Loan[T]{Samples: samples, owner: r, release: func() { r.loans.Add(-1) }}
}

// ReturnLoan returns a loan taken from this reader.
func (r *Reader[T]) ReturnLoan(loan *Loan[T]) error {
	if loan == nil {
		return nil
	}
	if loan.owner != any(r) {
		return errspkg.ErrLoanForeign
	}
	return loan.Return()
}

// OutstandingLoans counts loans taken and not yet returned.
func (r *Reader[T]) OutstandingLoans() int { return int(r.loans.Load()) }

// Dropped counts samples overwritten before they were taken.
func (r *Reader[T]) Dropped() uint64 { return r.hist.droppedCount() }

// Pending counts samples waiting to be taken.
func (r *Reader[T]) Pending() int { return r.hist.len() }

// Delete detaches the reader from its participant. Loans already taken can
// still be returned.
func (r *Reader[T]) Delete() error {
	if !r.deleted.CompareAndSwap(false, true) {
		return errspkg.ErrEntityDeleted
	}
	if r.onDelete != nil {
		r.onDelete()
	}
	r.hist.clear()
	return nil
}

func (r *Reader[T]) deliver(s Sample[T]) {
	if r.deleted.Load() {
		return
	}
	if s.Info.ReceptionTimestamp.IsZero() {
		s.Info.ReceptionTimestamp = time.Now()
	}
	r.hist.push(s)
}

func (r *Reader[T]) pending() int {
	if r.deleted.Load() {
		return 0
	}
	return r.hist.len()
}

func (r *Reader[T]) watch(ch chan struct{})   { r.hist.watch(ch) }
func (r *Reader[T]) unwatch(ch chan struct{}) { r.hist.unwatch(ch) }

func infoFromMetadata(md metadata.Metadata) SampleInfo {
	return SampleInfo{
		ValidData:       md.ValidData(),
		InstanceState:   md.InstanceState(),
		Writer:          md[metadata.KeyWriterGUID],
		SourceTimestamp: md.SourceTimestamp(),
	}
}
