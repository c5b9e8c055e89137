package discovery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errspkg "github.com/drblury/dynsub/internal/runtime/errors"
	"github.com/drblury/dynsub/internal/runtime/metrics"
)

type transitionRecorder struct {
	mu     sync.Mutex
	states []State
}

func (r *transitionRecorder) record(_, to State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, to)
}

func (r *transitionRecorder) all() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

func runLoop(t *testing.T, d *fakeDomain, timeout time.Duration) (*Loop[fakeTopic], fakeTopic, error, *transitionRecorder) {
	t.Helper()
	rec := &transitionRecorder{}
	loop := NewLoop[fakeTopic](d, "TargetTopic")
	loop.OnTransition = rec.record

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	topic, err := loop.Run(ctx)
	return loop, topic, err, rec
}

func assertTornDown(t *testing.T, d *fakeDomain) {
	t.Helper()
	assert.Zero(t, d.reader.outstanding(), "every taken entry is released")
	assert.True(t, d.reader.isDeleted(), "publications reader deleted")
	assert.True(t, d.ws.isDeleted(), "wait set deleted")
	assert.True(t, d.allDescriptorsReleased(), "descriptors released")
}

func TestLoopSkipsOtherTopic(t *testing.T) {
	d := newFakeDomain(t,
		publication("OtherTopic", "T1"),
		publication("TargetTopic", "T2"),
	)

	loop, topic, err, rec := runLoop(t, d, 5*time.Second)
	require.NoError(t, err)

	assert.Equal(t, fakeTopic{name: "TargetTopic", typeName: "T2"}, topic)
	assert.Equal(t, []string{"T2"}, d.resolvedTypes(), "OtherTopic is never resolved")
	assert.Equal(t, StateFound, loop.State())
	assert.Equal(t, []State{StateEntryAvailable, StateMatched, StateResolved, StateFound}, rec.all())
	assertTornDown(t, d)
}

func TestLoopRetriesAfterResolveFailure(t *testing.T) {
	d := newFakeDomain(t,
		publication("TargetTopic", "TFail"),
		publication("TargetTopic", "TOk"),
	)
	d.failures["TFail"] = errspkg.ErrResolveTimeout

	loop, topic, err, rec := runLoop(t, d, 5*time.Second)
	require.NoError(t, err)

	assert.Equal(t, "TOk", topic.typeName)
	assert.Equal(t, []string{"TFail", "TOk"}, d.resolvedTypes())
	assert.Equal(t, StateFound, loop.State())
	assert.Equal(t, []State{
		StateEntryAvailable, StateMatched, StateWaiting,
		StateEntryAvailable, StateMatched, StateResolved, StateFound,
	}, rec.all())
	assertTornDown(t, d)
}

func TestLoopNonMatchingStaysWaiting(t *testing.T) {
	d := newFakeDomain(t,
		publication("OtherTopic", "T1"),
		publication("AnotherTopic", "T2"),
	)

	loop, _, err, _ := runLoop(t, d, 100*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, []State{StateWaiting, StateEntryAvailable}, loop.State())
	assert.Empty(t, d.resolvedTypes())
	assert.Empty(t, d.created)
	assertTornDown(t, d)
}

func TestLoopSkipsInvalidEntriesAndNames(t *testing.T) {
	d := newFakeDomain(t,
		announcement{invalid: true},
		announcement{rawName: []byte{0xff, 0xfe}, typeName: "T0"},
		publication("TargetTopic", "T1"),
	)
	m := metrics.New(prometheus.NewRegistry())

	loop := NewLoop[fakeTopic](d, "TargetTopic")
	loop.Metrics = m
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	topic, err := loop.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, "T1", topic.typeName)
	assert.Equal(t, []string{"T1"}, d.resolvedTypes())
	assertTornDown(t, d)

	snap := m.Snapshot()
	assert.Equal(t, uint64(3), snap.EntriesSeen)
	assert.Equal(t, uint64(1), snap.EntriesInvalid)
	assert.Equal(t, uint64(1), snap.EntriesMatched)
	assert.Equal(t, uint64(1), snap.TopicsFound)
	assert.Equal(t, "found", snap.DiscoveryState)
}

func TestLoopMissingTypeInformationReturnsToWaiting(t *testing.T) {
	d := newFakeDomain(t,
		announcement{topic: "TargetTopic", typeName: "T0", noType: true},
		publication("TargetTopic", "T1"),
	)
	m := metrics.New(prometheus.NewRegistry())

	loop := NewLoop[fakeTopic](d, "TargetTopic")
	loop.Metrics = m
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	topic, err := loop.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, "T1", topic.typeName)
	assert.Equal(t, uint64(1), m.Snapshot().ResolveFailures)
	assertTornDown(t, d)
}

func TestLoopRetriesAfterTopicCreationFailure(t *testing.T) {
	d := newFakeDomain(t,
		publication("TargetTopic", "T1"),
		publication("TargetTopic", "T2"),
	)
	d.createErrs = []error{errspkg.ErrInconsistentTopic}

	_, topic, err, rec := runLoop(t, d, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "T2", topic.typeName)
	assert.Equal(t, []State{
		StateEntryAvailable, StateMatched, StateResolved, StateWaiting,
		StateEntryAvailable, StateMatched, StateResolved, StateFound,
	}, rec.all())
	assertTornDown(t, d)
}

func TestLoopWaitsForLateAnnouncement(t *testing.T) {
	d := newFakeDomain(t)

	go func() {
		time.Sleep(30 * time.Millisecond)
		d.reader.push(publication("TargetTopic", "T1"))
	}()

	loop, topic, err, _ := runLoop(t, d, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "TargetTopic", topic.name)
	assert.Equal(t, StateFound, loop.State())
}

func TestLoopFiniteWaitTimeoutKeepsWaiting(t *testing.T) {
	d := newFakeDomain(t)
	rec := &transitionRecorder{}

	loop := NewLoop[fakeTopic](d, "TargetTopic")
	loop.WaitTimeout = 5 * time.Millisecond
	loop.OnTransition = rec.record
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	_, err := loop.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StateWaiting, loop.State())
	assert.Empty(t, rec.all(), "timeouts never leave waiting")
}

func TestLoopSetupFailures(t *testing.T) {
	t.Run("reader", func(t *testing.T) {
		d := newFakeDomain(t)
		d.readerErr = errspkg.ErrParticipantClosed

		_, _, err, _ := runLoop(t, d, time.Second)
		assert.ErrorIs(t, err, errspkg.ErrParticipantClosed)
	})

	t.Run("wait", func(t *testing.T) {
		d := newFakeDomain(t, publication("TargetTopic", "T1"))
		d.ws.waitErr = errspkg.ErrEntityDeleted

		_, _, err, _ := runLoop(t, d, time.Second)
		assert.ErrorIs(t, err, errspkg.ErrEntityDeleted)
		assert.True(t, d.reader.isDeleted())
	})
}

func TestLoopTakeErrorReturnsToWaiting(t *testing.T) {
	d := newFakeDomain(t, publication("TargetTopic", "T1"))
	d.reader.takeErr = errors.New("transient")

	go func() {
		time.Sleep(20 * time.Millisecond)
		d.reader.mu.Lock()
		d.reader.takeErr = nil
		d.reader.mu.Unlock()
	}()

	_, topic, err, _ := runLoop(t, d, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "T1", topic.typeName)
}

func TestStateNames(t *testing.T) {
	assert.Equal(t, []string{"waiting", "entry_available", "matched", "resolved", "found"}, StateNames())
	assert.Equal(t, "unknown", State(42).String())
}
