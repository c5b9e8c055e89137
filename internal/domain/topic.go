package domain

import (
	"fmt"
	"sync/atomic"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"

	errspkg "github.com/drblury/dynsub/internal/runtime/errors"
)

// Descriptor is a resolved type, ready to create a topic from. It holds the
// type object until Delete.
type Descriptor struct {
	record   *TypeRecord
	md       protoreflect.MessageDescriptor
	released atomic.Bool
}

// NewDescriptor materializes record into a descriptor.
func NewDescriptor(record *TypeRecord) (*Descriptor, error) {
	md, err := record.MessageDescriptor()
	if err != nil {
		return nil, err
	}
	return &Descriptor{record: record, md: md}, nil
}

// TypeID returns the resolved type's id.
func (d *Descriptor) TypeID() string { return d.record.TypeID }

// TypeName returns the resolved type's full name.
func (d *Descriptor) TypeName() string { return d.record.TypeName }

// Delete releases the descriptor. Topics created from it stay usable.
func (d *Descriptor) Delete() error {
	if !d.released.CompareAndSwap(false, true) {
		return errspkg.ErrDescriptorReleased
	}
	return nil
}

// Released reports whether Delete has been called.
func (d *Descriptor) Released() bool { return d.released.Load() }

// Topic binds a name to a type inside a participant.
type Topic struct {
	owner     *Participant
	handle    Handle
	name      string
	transport string
	record    *TypeRecord
	md        protoreflect.MessageDescriptor
	deleted   atomic.Bool
	onDelete  func()
}

func (t *Topic) Handle() Handle { return t.handle }
func (t *Topic) Kind() Kind     { return KindTopic }

// Name returns the domain topic name.
func (t *Topic) Name() string { return t.name }

// TransportTopic returns the broker topic the samples travel on.
func (t *Topic) TransportTopic() string { return t.transport }

// TypeName returns the full name of the topic's type.
func (t *Topic) TypeName() string { return t.record.TypeName }

// TypeID returns the id of the topic's type.
func (t *Topic) TypeID() string { return t.record.TypeID }

// MessageDescriptor returns the topic's type.
func (t *Topic) MessageDescriptor() protoreflect.MessageDescriptor { return t.md }

// Decode parses a sample payload into a dynamic message of the topic's type.
func (t *Topic) Decode(payload []byte) (*dynamicpb.Message, error) {
	msg := dynamicpb.NewMessage(t.md)
	if err := proto.Unmarshal(payload, msg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", t.record.TypeName, err)
	}
	return msg, nil
}

func (t *Topic) Delete() error {
	if !t.deleted.CompareAndSwap(false, true) {
		return errspkg.ErrEntityDeleted
	}
	if t.onDelete != nil {
		t.onDelete()
	}
	return nil
}
