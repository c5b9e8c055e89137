package domain

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"google.golang.org/protobuf/proto"

	errspkg "github.com/drblury/dynsub/internal/runtime/errors"
	"github.com/drblury/dynsub/internal/runtime/ids"
	"github.com/drblury/dynsub/internal/runtime/metadata"
)

// WriterOption customises a writer.
type WriterOption func(*writerOptions)

type writerOptions struct {
	omitTypeInfo bool
}

// WithoutTypeInformation announces the publication without a type
// reference, as a middleware that does not propagate type information would.
func WithoutTypeInformation() WriterOption {
	return func(o *writerOptions) { o.omitTypeInfo = true }
}

// Writer publishes samples of one topic.
type Writer struct {
	handle  Handle
	p       *Participant
	topic   *Topic
	record  PublicationRecord
	deleted atomic.Bool
}

func (w *Writer) Handle() Handle { return w.handle }
func (w *Writer) Kind() Kind     { return KindWriter }

// Key returns the publication key announced for this writer.
func (w *Writer) Key() string { return w.record.Key }

// Topic returns the writer's topic.
func (w *Writer) Topic() *Topic { return w.topic }

// Write publishes msg, which must be of the topic's type.
func (w *Writer) Write(msg proto.Message) error {
	if w.deleted.Load() {
		return errspkg.ErrEntityDeleted
	}
	if got := string(msg.ProtoReflect().Descriptor().FullName()); got != w.topic.TypeName() {
		return fmt.Errorf("%w: writing %s to a topic of %s", errspkg.ErrInconsistentTopic, got, w.topic.TypeName())
	}
	payload, err := proto.Marshal(msg)
	if err != nil {
		return err
	}
	return w.publish(payload, metadata.StateAlive, true)
}

// Dispose publishes a lifecycle notice without data. Readers see a sample
// whose ValidData is false.
func (w *Writer) Dispose() error {
	if w.deleted.Load() {
		return errspkg.ErrEntityDeleted
	}
	return w.publish(nil, metadata.StateDisposed, false)
}

func (w *Writer) publish(payload []byte, state string, valid bool) error {
	msg := message.NewMessage(ids.NewGUID(), payload)
	msg.Metadata = metadata.ToWatermill(metadata.Sample(w.record.Key, w.topic.TypeID(), state, valid, time.Now()))
	return w.p.tr.Publisher.Publish(w.topic.TransportTopic(), msg)
}

// Delete retracts the publication. Remote publication readers receive an
// entry without valid data.
func (w *Writer) Delete() error {
	if !w.deleted.CompareAndSwap(false, true) {
		return errspkg.ErrEntityDeleted
	}
	w.p.forgetWriter(w)
	retracted := w.record
	retracted.Disposed = true
	return w.p.announce(retracted)
}
