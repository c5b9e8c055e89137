// Package discovery watches the built-in publications stream of a domain
// until a publication of the configured topic name shows up, resolves the
// type it was announced with and creates a local topic for it.
//
// The loop only talks to the middleware through the Domain interface.
// ForParticipant adapts a *domain.Participant; tests drive the loop with
// scripted fakes.
package discovery

import (
	"context"
	"fmt"
	"time"

	"github.com/drblury/dynsub/internal/domain"
)

// DefaultResolveTimeout bounds a single type descriptor resolution.
const DefaultResolveTimeout = 200 * time.Millisecond

// PublicationReader is the built-in publications reader.
type PublicationReader interface {
	Take(max int) (*domain.Loan[domain.PublicationRecord], error)
	Delete() error
}

// WaitSet blocks until the publications reader has pending entries.
type WaitSet interface {
	Wait(ctx context.Context, timeout time.Duration) (int, error)
	Delete() error
}

// TypeResolver materializes a type descriptor from announced type information.
type TypeResolver interface {
	ResolveTypeDescriptor(ctx context.Context, info *domain.TypeInfo, scope domain.FindScope, timeout time.Duration) (*domain.Descriptor, error)
}

// Domain is the part of the middleware the discovery loop depends on. T is
// the topic type returned by CreateTopic.
type Domain[T any] interface {
	TypeResolver
	CreatePublicationReader() (PublicationReader, error)
	// CreateWaitSet returns a wait set with a read condition on reader
	// attached. Deleting the wait set also deletes the condition.
	CreateWaitSet(reader PublicationReader) (WaitSet, error)
	CreateTopic(desc *domain.Descriptor, name string) (T, error)
}

// ForParticipant adapts p to Domain.
func ForParticipant(p *domain.Participant) Domain[*domain.Topic] {
	return &participantDomain{p: p}
}

type participantDomain struct {
	p *domain.Participant
}

func (d *participantDomain) CreatePublicationReader() (PublicationReader, error) {
	return d.p.CreatePublicationReader()
}

func (d *participantDomain) CreateWaitSet(reader PublicationReader) (WaitSet, error) {
	source, ok := reader.(domain.Triggerable)
	if !ok {
		return nil, fmt.Errorf("discovery: reader %T cannot trigger a read condition", reader)
	}
	cond, err := d.p.CreateReadCondition(source)
	if err != nil {
		return nil, err
	}
	ws, err := d.p.CreateWaitSet()
	if err != nil {
		_ = cond.Delete()
		return nil, err
	}
	if err := ws.Attach(cond); err != nil {
		_ = ws.Delete()
		_ = cond.Delete()
		return nil, err
	}
	return &conditionWaitSet{WaitSet: ws, cond: cond}, nil
}

func (d *participantDomain) ResolveTypeDescriptor(ctx context.Context, info *domain.TypeInfo, scope domain.FindScope, timeout time.Duration) (*domain.Descriptor, error) {
	return d.p.ResolveTypeDescriptor(ctx, info, scope, timeout)
}

func (d *participantDomain) CreateTopic(desc *domain.Descriptor, name string) (*domain.Topic, error) {
	return d.p.CreateTopic(desc, name)
}

type conditionWaitSet struct {
	*domain.WaitSet
	cond *domain.ReadCondition
}

func (w *conditionWaitSet) Delete() error {
	wsErr := w.WaitSet.Delete()
	condErr := w.cond.Delete()
	if wsErr != nil {
		return wsErr
	}
	return condErr
}
