// Package domain is the pub/sub middleware surface dynsub runs against. A
// Participant joins a numbered data domain over a Watermill transport and
// offers DDS-style entities: topics, data readers and writers, the built-in
// publication reader, read conditions and wait sets.
//
// Participants exchange three kinds of built-in traffic per domain:
// publication announcements, type objects and requests. Data samples travel
// on one transport topic per domain topic, encoded as protobuf wire bytes.
package domain

import (
	"fmt"
	"time"
)

// Infinite is the wait timeout that never expires.
const Infinite time.Duration = -1

// Handle identifies an entity inside its participant.
type Handle uint64

// Kind classifies entities.
type Kind int

const (
	KindParticipant Kind = iota
	KindTopic
	KindReader
	KindWriter
	KindReadCondition
	KindWaitSet
)

var kindNames = map[Kind]string{
	KindParticipant:   "participant",
	KindTopic:         "topic",
	KindReader:        "reader",
	KindWriter:        "writer",
	KindReadCondition: "readcondition",
	KindWaitSet:       "waitset",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Entity is anything created by a participant. Delete is safe to call more
// than once; calls after the first return ErrEntityDeleted.
type Entity interface {
	Handle() Handle
	Kind() Kind
	Delete() error
}

// FindScope bounds where type resolution looks for a type object.
type FindScope int

const (
	// FindScopeLocal searches only type objects already known to the participant.
	FindScopeLocal FindScope = iota
	// FindScopeGlobal also asks the owning participant to re-announce the type.
	FindScopeGlobal
)

func (s FindScope) String() string {
	if s == FindScopeGlobal {
		return "global"
	}
	return "local"
}
