package domain

import (
	"context"
	sterrors "errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/protobuf/reflect/protoreflect"

	errspkg "github.com/drblury/dynsub/internal/runtime/errors"
	"github.com/drblury/dynsub/internal/runtime/ids"
	"github.com/drblury/dynsub/internal/runtime/jsoncodec"
	"github.com/drblury/dynsub/internal/runtime/logging"
	"github.com/drblury/dynsub/internal/runtime/metadata"
	"github.com/drblury/dynsub/transport"
)

const (
	defaultTypeCacheSize      = 256
	routerCloseTimeout        = 5 * time.Second
	defaultRequestRepeatDelay = time.Second
)

// Options configures a participant.
type Options struct {
	// Config selects and configures the transport and the domain id.
	Config transport.Config
	Logger logging.ServiceLogger
	// Registerer receives the router's Prometheus metrics. Nil disables them.
	Registerer prometheus.Registerer
	// TypeCacheSize bounds the number of remote type objects kept.
	TypeCacheSize int
	// HistoryDepth is the default ReaderQoS.HistoryDepth for data readers.
	HistoryDepth int
	// Middlewares replaces DefaultMiddlewares when non-nil.
	Middlewares []MiddlewareRegistration
	// RequestRepeatDelay is how long after joining the publications request
	// is sent a second time, for transports that only deliver once a
	// subscription has settled (Kafka partition assignment). Zero uses one
	// second; negative disables the repeat.
	RequestRepeatDelay time.Duration
}

// Participant is a member of one data domain.
type Participant struct {
	guid         string
	domainID     uint32
	pubSubSystem string
	caps         transport.Capabilities
	logger       logging.ServiceLogger
	registerer   prometheus.Registerer
	historyDepth int

	tr     transport.Transport
	router *message.Router
	cache  *lru.Cache[string, *TypeRecord]

	ctx        context.Context
	cancel     context.CancelFunc
	routerDone chan struct{}
	routerErr  error

	nextHandle atomic.Uint64

	mu         sync.Mutex
	closed     bool
	entities   map[Handle]Entity
	known      map[string]PublicationRecord
	pubReaders map[Handle]*Reader[PublicationRecord]
	topics     map[string]*Topic
	owned      map[string]*TypeRecord
	writers    map[string]*Writer
	waiters    map[string][]chan struct{}
}

// NewParticipant joins the domain configured in opts. Every failure is
// returned as an errors.FatalError.
func NewParticipant(ctx context.Context, opts Options) (*Participant, error) {
	if opts.Config == nil {
		return nil, errspkg.Fatal(errspkg.ErrConfigRequired)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NopLogger()
	}
	cacheSize := opts.TypeCacheSize
	if cacheSize <= 0 {
		cacheSize = defaultTypeCacheSize
	}

	guid := ids.NewGUID()
	cfg := transport.WithSubscriberID(opts.Config, guid)
	logger = logger.With(logging.LogFields{"participant": guid, "domain_id": cfg.GetDomainID()})
	wmLogger := logging.NewWatermillAdapter(logger)

	tr, err := transport.Build(ctx, cfg, wmLogger)
	if err != nil {
		return nil, errspkg.Fatal(err)
	}

	cache, err := lru.New[string, *TypeRecord](cacheSize)
	if err != nil {
		_ = tr.Close()
		return nil, errspkg.Fatal(err)
	}

	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: routerCloseTimeout}, wmLogger)
	if err != nil {
		_ = tr.Close()
		return nil, errspkg.Fatal(err)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p := &Participant{
		guid:         guid,
		domainID:     cfg.GetDomainID(),
		pubSubSystem: cfg.GetPubSubSystem(),
		caps:         transport.GetCapabilities(cfg.GetPubSubSystem()),
		logger:       logger,
		registerer:   opts.Registerer,
		historyDepth: opts.HistoryDepth,
		tr:           tr,
		router:       router,
		cache:        cache,
		ctx:          runCtx,
		cancel:       cancel,
		routerDone:   make(chan struct{}),
		entities:     map[Handle]Entity{},
		known:        map[string]PublicationRecord{},
		pubReaders:   map[Handle]*Reader[PublicationRecord]{},
		topics:       map[string]*Topic{},
		owned:        map[string]*TypeRecord{},
		writers:      map[string]*Writer{},
		waiters:      map[string][]chan struct{}{},
	}

	middlewares := opts.Middlewares
	if middlewares == nil {
		middlewares = DefaultMiddlewares()
	}
	for _, mw := range middlewares {
		if err := p.RegisterMiddleware(mw); err != nil {
			p.abort()
			return nil, errspkg.Fatal(fmt.Errorf("middleware %s: %w", mw.Name, err))
		}
	}

	router.AddNoPublisherHandler("dynsub_publications", PublicationsTopic(p.domainID), tr.Subscriber, p.handlePublication)
	router.AddNoPublisherHandler("dynsub_types", TypesTopic(p.domainID), tr.Subscriber, p.handleType)
	router.AddNoPublisherHandler("dynsub_requests", RequestsTopic(p.domainID), tr.Subscriber, p.handleRequest)

	go func() {
		defer close(p.routerDone)
		p.routerErr = router.Run(runCtx)
	}()

	select {
	case <-router.Running():
	case <-p.routerDone:
		p.abort()
		if p.routerErr == nil {
			p.routerErr = sterrors.New("router stopped before running")
		}
		return nil, errspkg.Fatal(p.routerErr)
	case <-ctx.Done():
		p.abort()
		return nil, errspkg.Fatal(ctx.Err())
	}

	if err := p.request(Request{Kind: RequestPublications}); err != nil {
		p.abort()
		return nil, errspkg.Fatal(err)
	}

	repeat := opts.RequestRepeatDelay
	if repeat == 0 {
		repeat = defaultRequestRepeatDelay
	}
	if repeat > 0 {
		go p.repeatPublicationsRequest(repeat)
	}

	logger.Info("Joined domain", logging.LogFields{
		"transport": p.pubSubSystem,
		"broadcast": p.caps.Broadcasts(),
	})
	return p, nil
}

// repeatPublicationsRequest asks for the publications once more after delay.
// Re-announcements of already known publications are dropped by observe.
func (p *Participant) repeatPublicationsRequest(delay time.Duration) {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-p.ctx.Done():
		return
	case <-timer.C:
	}
	if err := p.request(Request{Kind: RequestPublications}); err != nil && p.ctx.Err() == nil {
		p.logger.Error("Failed to repeat publications request", err, nil)
	}
}

func (p *Participant) abort() {
	p.cancel()
	_ = p.router.Close()
	_ = p.tr.Close()
}

// GUID returns the participant's globally unique id.
func (p *Participant) GUID() string { return p.guid }

// DomainID returns the domain the participant joined.
func (p *Participant) DomainID() uint32 { return p.domainID }

// Capabilities returns the capabilities of the participant's transport.
func (p *Participant) Capabilities() transport.Capabilities { return p.caps }

// Handle returns 0; the participant is the root of its entity table.
func (p *Participant) Handle() Handle { return 0 }
func (p *Participant) Kind() Kind     { return KindParticipant }

// Delete closes the participant.
func (p *Participant) Delete() error { return p.Close() }

// DefaultReaderQoS returns the reader QoS configured in Options.
func (p *Participant) DefaultReaderQoS() ReaderQoS {
	return ReaderQoS{HistoryDepth: p.historyDepth}
}

// KnownPublications returns the live publications seen so far, ordered by key.
func (p *Participant) KnownPublications() []PublicationRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	keys := slices.Sorted(maps.Keys(p.known))
	out := make([]PublicationRecord, 0, len(keys))
	for _, k := range keys {
		out = append(out, p.known[k])
	}
	return out
}

// Entities counts the live entities owned by the participant.
func (p *Participant) Entities() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entities)
}

// CreatePublicationReader creates a reader on the built-in publications
// stream. It starts with every live publication already known.
func (p *Participant) CreatePublicationReader() (*Reader[PublicationRecord], error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, errspkg.ErrParticipantClosed
	}

	h := p.newHandle()
	r := newReader[PublicationRecord](h, 0, func() {
		p.mu.Lock()
		delete(p.pubReaders, h)
		delete(p.entities, h)
		p.mu.Unlock()
	})
	for _, key := range slices.Sorted(maps.Keys(p.known)) {
		r.deliver(publicationSample(p.known[key]))
	}
	p.pubReaders[h] = r
	p.entities[h] = r
	return r, nil
}

// CreateReader creates a data reader on topic.
func (p *Participant) CreateReader(topic *Topic, qos ReaderQoS) (*DataReader, error) {
	if topic == nil || topic.deleted.Load() {
		return nil, errspkg.ErrEntityDeleted
	}
	if topic.owner != p {
		return nil, errspkg.ErrNotOwned
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, errspkg.ErrParticipantClosed
	}
	h := p.newHandle()
	subCtx, cancel := context.WithCancel(p.ctx)
	dr := &DataReader{topic: topic, logger: p.logger.With(logging.LogFields{"topic": topic.Name()})}
	dr.Reader = newReader[RawSample](h, qos.HistoryDepth, func() {
		cancel()
		p.forget(h)
	})
	p.entities[h] = dr
	p.mu.Unlock()

	messages, err := p.tr.Subscriber.Subscribe(subCtx, topic.TransportTopic())
	if err != nil {
		_ = dr.Delete()
		return nil, err
	}
	go dr.consume(messages)

	return dr, nil
}

// CreateReadCondition creates a condition triggered while source holds samples.
func (p *Participant) CreateReadCondition(source Triggerable) (*ReadCondition, error) {
	if source == nil {
		return nil, errspkg.ErrEntityDeleted
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, errspkg.ErrParticipantClosed
	}
	h := p.newHandle()
	cond := &ReadCondition{handle: h, source: source, onDelete: func() { p.forget(h) }}
	p.entities[h] = cond
	return cond, nil
}

// CreateWaitSet creates an empty wait set.
func (p *Participant) CreateWaitSet() (*WaitSet, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, errspkg.ErrParticipantClosed
	}
	h := p.newHandle()
	ws := newWaitSet(h, func() { p.forget(h) })
	p.entities[h] = ws
	return ws, nil
}

// RegisterTopic creates a topic from a locally known message type. The
// participant owns the type and answers requests for it.
func (p *Participant) RegisterTopic(name string, md protoreflect.MessageDescriptor) (*Topic, error) {
	record, err := NewTypeRecord(md)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.owned[record.TypeID] = record
	p.mu.Unlock()
	p.cache.Add(record.TypeID, record)
	return p.createTopic(name, record, md)
}

// CreateTopic creates a topic from a resolved descriptor. Failures wrap
// errors.ErrTopicCreate together with the specific cause.
func (p *Participant) CreateTopic(desc *Descriptor, name string) (*Topic, error) {
	if desc == nil || desc.Released() {
		return nil, fmt.Errorf("%w: %w", errspkg.ErrTopicCreate, errspkg.ErrDescriptorReleased)
	}
	t, err := p.createTopic(name, desc.record, desc.md)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errspkg.ErrTopicCreate, err)
	}
	return t, nil
}

func (p *Participant) createTopic(name string, record *TypeRecord, md protoreflect.MessageDescriptor) (*Topic, error) {
	if name == "" {
		return nil, errspkg.ErrTopicRequired
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, errspkg.ErrParticipantClosed
	}
	if existing, ok := p.topics[name]; ok {
		if existing.TypeID() != record.TypeID {
			return nil, fmt.Errorf("%w: %q is %s, not %s", errspkg.ErrInconsistentTopic, name, existing.TypeName(), record.TypeName)
		}
		return existing, nil
	}

	h := p.newHandle()
	t := &Topic{
		owner:     p,
		handle:    h,
		name:      name,
		transport: DataTopic(p.domainID, name),
		record:    record,
		md:        md,
	}
	t.onDelete = func() {
		p.mu.Lock()
		if p.topics[name] == t {
			delete(p.topics, name)
		}
		delete(p.entities, h)
		p.mu.Unlock()
	}
	p.topics[name] = t
	p.entities[h] = t
	return t, nil
}

// CreateWriter creates a writer on topic and announces its publication.
func (p *Participant) CreateWriter(topic *Topic, opts ...WriterOption) (*Writer, error) {
	if topic == nil || topic.deleted.Load() {
		return nil, errspkg.ErrEntityDeleted
	}
	if topic.owner != p {
		return nil, errspkg.ErrNotOwned
	}
	var o writerOptions
	for _, opt := range opts {
		opt(&o)
	}

	record := PublicationRecord{
		Key:         ids.NewGUID(),
		Participant: p.guid,
		TopicName:   []byte(topic.Name()),
		TypeName:    topic.TypeName(),
	}
	if !o.omitTypeInfo {
		record.TypeInfo = topic.record.Info()
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, errspkg.ErrParticipantClosed
	}
	w := &Writer{handle: p.newHandle(), p: p, topic: topic, record: record}
	p.owned[topic.TypeID()] = topic.record
	p.writers[record.Key] = w
	p.entities[w.handle] = w
	p.mu.Unlock()

	if !o.omitTypeInfo {
		if err := p.publishType(topic.record); err != nil {
			p.forgetWriter(w)
			return nil, err
		}
	}
	if err := p.announce(record); err != nil {
		p.forgetWriter(w)
		return nil, err
	}
	return w, nil
}

// ResolveTypeDescriptor turns the type information of a publication into a
// descriptor. Local scope consults only known type objects; global scope
// also requests the type from its owner and waits up to timeout for it.
func (p *Participant) ResolveTypeDescriptor(ctx context.Context, info *TypeInfo, scope FindScope, timeout time.Duration) (*Descriptor, error) {
	if p.isClosed() {
		return nil, errspkg.ErrParticipantClosed
	}
	if info == nil || info.TypeID == "" {
		return nil, errspkg.ErrTypeInfoUnavailable
	}
	if record, ok := p.lookupType(info.TypeID); ok {
		return descriptorFor(record, info)
	}
	if scope != FindScopeGlobal {
		return nil, fmt.Errorf("%w: %s", errspkg.ErrTypeNotFound, info.TypeName)
	}

	arrived := make(chan struct{})
	p.mu.Lock()
	p.waiters[info.TypeID] = append(p.waiters[info.TypeID], arrived)
	p.mu.Unlock()
	defer p.dropWaiter(info.TypeID, arrived)

	if record, ok := p.lookupType(info.TypeID); ok {
		return descriptorFor(record, info)
	}
	if err := p.request(Request{Kind: RequestType, TypeID: info.TypeID}); err != nil {
		return nil, err
	}

	var expired <-chan time.Time
	if timeout >= 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-arrived:
		record, ok := p.lookupType(info.TypeID)
		if !ok {
			return nil, fmt.Errorf("%w: %s", errspkg.ErrTypeNotFound, info.TypeName)
		}
		return descriptorFor(record, info)
	case <-expired:
		return nil, fmt.Errorf("%w after %s: %s", errspkg.ErrResolveTimeout, timeout, info.TypeName)
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", errspkg.ErrResolveTimeout, ctx.Err())
	}
}

func descriptorFor(record *TypeRecord, info *TypeInfo) (*Descriptor, error) {
	if info.TypeName != "" && record.TypeName != info.TypeName {
		return nil, fmt.Errorf("%w: type id %s names %s, announced as %s", errspkg.ErrInvalidTypeObject, info.TypeID, record.TypeName, info.TypeName)
	}
	return NewDescriptor(record)
}

// Close deletes every entity, stops the router and closes the transport.
// Calling it again is a no-op.
func (p *Participant) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	handles := slices.Sorted(maps.Keys(p.entities))
	entities := make([]Entity, 0, len(handles))
	for i := len(handles) - 1; i >= 0; i-- {
		entities = append(entities, p.entities[handles[i]])
	}
	p.mu.Unlock()

	var errs []error
	for _, e := range entities {
		if err := e.Delete(); err != nil && !sterrors.Is(err, errspkg.ErrEntityDeleted) {
			errs = append(errs, fmt.Errorf("delete %s %d: %w", e.Kind(), e.Handle(), err))
		}
	}

	p.cancel()
	if err := p.router.Close(); err != nil {
		errs = append(errs, err)
	}
	<-p.routerDone
	if err := p.tr.Close(); err != nil {
		errs = append(errs, err)
	}

	p.logger.Info("Left domain", nil)
	return sterrors.Join(errs...)
}

func (p *Participant) newHandle() Handle {
	return Handle(p.nextHandle.Add(1))
}

func (p *Participant) forget(h Handle) {
	p.mu.Lock()
	delete(p.entities, h)
	p.mu.Unlock()
}

func (p *Participant) forgetWriter(w *Writer) {
	p.mu.Lock()
	delete(p.writers, w.record.Key)
	delete(p.entities, w.handle)
	p.mu.Unlock()
}

func (p *Participant) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Participant) lookupType(typeID string) (*TypeRecord, bool) {
	p.mu.Lock()
	record, ok := p.owned[typeID]
	p.mu.Unlock()
	if ok {
		return record, true
	}
	return p.cache.Get(typeID)
}

func (p *Participant) dropWaiter(typeID string, ch chan struct{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	waiters := p.waiters[typeID]
	for i, w := range waiters {
		if w == ch {
			waiters = append(waiters[:i], waiters[i+1:]...)
			break
		}
	}
	if len(waiters) == 0 {
		delete(p.waiters, typeID)
		return
	}
	p.waiters[typeID] = waiters
}

func publicationSample(rec PublicationRecord) Sample[PublicationRecord] {
	if rec.Disposed {
		return Sample[PublicationRecord]{Info: SampleInfo{
			ValidData:     false,
			InstanceState: metadata.StateDisposed,
			Writer:        rec.Key,
		}}
	}
	return Sample[PublicationRecord]{
		Data: rec,
		Info: SampleInfo{ValidData: true, InstanceState: metadata.StateAlive, Writer: rec.Key},
	}
}

// observe applies an announcement: new publications and retractions reach
// every publication reader once. A repeat is ignored unless its type is still
// unknown here, so a reader whose resolution failed gets another attempt.
func (p *Participant) observe(rec PublicationRecord) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	_, seen := p.known[rec.Key]
	if rec.Disposed == !seen && (rec.Disposed || !p.typeMissingLocked(rec.TypeInfo)) {
		p.mu.Unlock()
		return
	}
	if rec.Disposed {
		delete(p.known, rec.Key)
	} else {
		p.known[rec.Key] = rec
	}
	readers := slices.Collect(maps.Values(p.pubReaders))
	p.mu.Unlock()

	sample := publicationSample(rec)
	for _, r := range readers {
		r.deliver(sample)
	}
}

func (p *Participant) publish(topic string, v any) error {
	payload, err := jsoncodec.Marshal(v)
	if err != nil {
		return err
	}
	return p.tr.Publisher.Publish(topic, message.NewMessage(ids.NewGUID(), payload))
}

func (p *Participant) announce(rec PublicationRecord) error {
	p.observe(rec)
	return p.publish(PublicationsTopic(p.domainID), rec)
}

func (p *Participant) publishType(record *TypeRecord) error {
	return p.publish(TypesTopic(p.domainID), record)
}

func (p *Participant) request(req Request) error {
	req.From = p.guid
	return p.publish(RequestsTopic(p.domainID), req)
}

func (p *Participant) handlePublication(msg *message.Message) error {
	rec, err := jsoncodec.DecodeAs[PublicationRecord](msg.Payload)
	if err != nil {
		p.logger.Error("Dropping malformed publication announcement", err, logging.LogFields{"message_uuid": msg.UUID})
		return nil
	}
	p.observe(rec)
	return nil
}

func (p *Participant) handleType(msg *message.Message) error {
	record, err := jsoncodec.DecodeAs[TypeRecord](msg.Payload)
	if err != nil || record.TypeID == "" {
		p.logger.Error("Dropping malformed type object", err, logging.LogFields{"message_uuid": msg.UUID})
		return nil
	}

	cached, _ := p.cache.ContainsOrAdd(record.TypeID, &record)

	p.mu.Lock()
	waiters := p.waiters[record.TypeID]
	delete(p.waiters, record.TypeID)
	var pending []PublicationRecord
	if !cached {
		pending = p.publicationsOfTypeLocked(record.TypeID)
	}
	readers := slices.Collect(maps.Values(p.pubReaders))
	p.mu.Unlock()
	for _, ch := range waiters {
		close(ch)
	}

	// Publications announced before their type arrived are offered again so
	// that a resolution which timed out can be retried.
	for _, rec := range pending {
		sample := publicationSample(rec)
		for _, r := range readers {
			r.deliver(sample)
		}
	}
	return nil
}

// typeMissingLocked reports whether info names a type that is neither owned
// nor cached. Callers hold p.mu.
func (p *Participant) typeMissingLocked(info *TypeInfo) bool {
	if info == nil || info.TypeID == "" {
		return false
	}
	if _, ok := p.owned[info.TypeID]; ok {
		return false
	}
	return !p.cache.Contains(info.TypeID)
}

func (p *Participant) publicationsOfTypeLocked(typeID string) []PublicationRecord {
	var out []PublicationRecord
	for _, key := range slices.Sorted(maps.Keys(p.known)) {
		rec := p.known[key]
		if rec.TypeInfo != nil && rec.TypeInfo.TypeID == typeID {
			out = append(out, rec)
		}
	}
	return out
}

func (p *Participant) handleRequest(msg *message.Message) error {
	req, err := jsoncodec.DecodeAs[Request](msg.Payload)
	if err != nil {
		p.logger.Error("Dropping malformed request", err, logging.LogFields{"message_uuid": msg.UUID})
		return nil
	}
	if req.From == p.guid {
		return nil
	}

	switch req.Kind {
	case RequestPublications:
		p.mu.Lock()
		records := make([]PublicationRecord, 0, len(p.writers))
		for _, w := range p.writers {
			records = append(records, w.record)
		}
		p.mu.Unlock()
		for _, rec := range records {
			if err := p.publish(PublicationsTopic(p.domainID), rec); err != nil {
				p.logger.Error("Failed to re-announce publication", err, logging.LogFields{"topic": string(rec.TopicName)})
			}
		}
	case RequestType:
		p.mu.Lock()
		record, ok := p.owned[req.TypeID]
		p.mu.Unlock()
		if !ok {
			return nil
		}
		if err := p.publishType(record); err != nil {
			p.logger.Error("Failed to answer type request", err, logging.LogFields{"type_id": req.TypeID})
		}
	default:
		p.logger.Debug("Ignoring unknown request", logging.LogFields{"kind": req.Kind, "from": req.From})
	}
	return nil
}
