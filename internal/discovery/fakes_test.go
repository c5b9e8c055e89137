package discovery

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/drblury/dynsub/internal/domain"
	errspkg "github.com/drblury/dynsub/internal/runtime/errors"
)

// announcement describes one scripted publications entry.
type announcement struct {
	topic    string
	rawName  []byte
	typeName string
	noType   bool
	invalid  bool
}

func publication(topic, typeName string) announcement {
	return announcement{topic: topic, typeName: typeName}
}

func (a announcement) sample() domain.Sample[domain.PublicationRecord] {
	if a.invalid {
		return domain.Sample[domain.PublicationRecord]{Info: domain.SampleInfo{InstanceState: "disposed"}}
	}
	name := a.rawName
	if name == nil {
		name = []byte(a.topic)
	}
	rec := domain.PublicationRecord{Key: "w-" + a.topic + "-" + a.typeName, Participant: "remote", TopicName: name, TypeName: a.typeName}
	if !a.noType {
		rec.TypeInfo = &domain.TypeInfo{TypeID: "id-" + a.typeName, TypeName: a.typeName}
	}
	return domain.Sample[domain.PublicationRecord]{Data: rec, Info: domain.SampleInfo{ValidData: true, InstanceState: "alive"}}
}

type fakeReader struct {
	mu      sync.Mutex
	queue   []domain.Sample[domain.PublicationRecord]
	loans   []*domain.Loan[domain.PublicationRecord]
	takeErr error
	deleted bool
}

func (r *fakeReader) push(entries ...announcement) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range entries {
		r.queue = append(r.queue, e.sample())
	}
}

func (r *fakeReader) Take(max int) (*domain.Loan[domain.PublicationRecord], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.takeErr != nil {
		return nil, r.takeErr
	}
	if len(r.queue) == 0 {
		return nil, nil
	}
	n := min(max, len(r.queue))
	loan := &domain.Loan[domain.PublicationRecord]{Samples: append([]domain.Sample[domain.PublicationRecord](nil), r.queue[:n]...)}
	r.queue = r.queue[n:]
	r.loans = append(r.loans, loan)
	return loan, nil
}

func (r *fakeReader) Delete() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = true
	return nil
}

func (r *fakeReader) pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue)
}

func (r *fakeReader) isDeleted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deleted
}

// outstanding counts loans that were never returned.
func (r *fakeReader) outstanding() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, l := range r.loans {
		if !l.Returned() {
			n++
		}
	}
	return n
}

type fakeWaitSet struct {
	reader  *fakeReader
	mu      sync.Mutex
	deleted bool
	waitErr error
}

func (w *fakeWaitSet) Wait(ctx context.Context, timeout time.Duration) (int, error) {
	if w.waitErr != nil {
		return 0, w.waitErr
	}
	var deadline <-chan time.Time
	if timeout >= 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}
	tick := time.NewTicker(time.Millisecond)
	defer tick.Stop()
	for {
		if w.reader.pending() > 0 {
			return 1, nil
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-deadline:
			return 0, nil
		case <-tick.C:
		}
	}
}

func (w *fakeWaitSet) Delete() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.deleted = true
	return nil
}

func (w *fakeWaitSet) isDeleted() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.deleted
}

type fakeTopic struct {
	name     string
	typeName string
}

type resolveCall struct {
	info    domain.TypeInfo
	scope   domain.FindScope
	timeout time.Duration
}

type fakeDomain struct {
	t      *testing.T
	reader *fakeReader
	ws     *fakeWaitSet
	record *domain.TypeRecord

	mu          sync.Mutex
	failures    map[string]error
	nilFor      map[string]bool
	createErrs  []error
	readerErr   error
	calls       []resolveCall
	descriptors []*domain.Descriptor
	pendingType map[*domain.Descriptor]string
	created     []fakeTopic
}

func newFakeDomain(t *testing.T, entries ...announcement) *fakeDomain {
	t.Helper()
	record, err := domain.NewTypeRecord((&wrapperspb.StringValue{}).ProtoReflect().Descriptor())
	require.NoError(t, err)

	reader := &fakeReader{}
	reader.push(entries...)
	return &fakeDomain{
		t:           t,
		reader:      reader,
		ws:          &fakeWaitSet{reader: reader},
		record:      record,
		failures:    map[string]error{},
		nilFor:      map[string]bool{},
		pendingType: map[*domain.Descriptor]string{},
	}
}

func (d *fakeDomain) CreatePublicationReader() (PublicationReader, error) {
	if d.readerErr != nil {
		return nil, d.readerErr
	}
	return d.reader, nil
}

func (d *fakeDomain) CreateWaitSet(reader PublicationReader) (WaitSet, error) {
	require.Same(d.t, d.reader, reader)
	return d.ws, nil
}

func (d *fakeDomain) ResolveTypeDescriptor(_ context.Context, info *domain.TypeInfo, scope domain.FindScope, timeout time.Duration) (*domain.Descriptor, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, resolveCall{info: *info, scope: scope, timeout: timeout})
	if err := d.failures[info.TypeName]; err != nil {
		return nil, err
	}
	if d.nilFor[info.TypeName] {
		return nil, nil
	}
	desc, err := domain.NewDescriptor(d.record)
	if err != nil {
		return nil, err
	}
	d.descriptors = append(d.descriptors, desc)
	d.pendingType[desc] = info.TypeName
	return desc, nil
}

func (d *fakeDomain) CreateTopic(desc *domain.Descriptor, name string) (fakeTopic, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if desc.Released() {
		return fakeTopic{}, errspkg.ErrDescriptorReleased
	}
	if len(d.createErrs) > 0 {
		err := d.createErrs[0]
		d.createErrs = d.createErrs[1:]
		if err != nil {
			return fakeTopic{}, err
		}
	}
	topic := fakeTopic{name: name, typeName: d.pendingType[desc]}
	d.created = append(d.created, topic)
	return topic, nil
}

func (d *fakeDomain) resolvedTypes() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	names := make([]string, 0, len(d.calls))
	for _, c := range d.calls {
		names = append(names, c.info.TypeName)
	}
	return names
}

func (d *fakeDomain) allDescriptorsReleased() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, desc := range d.descriptors {
		if !desc.Released() {
			return false
		}
	}
	return true
}
