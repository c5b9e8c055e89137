package errors

import (
	sterrors "errors"
	"fmt"
)

var (
	ErrConfigRequired    = sterrors.New("dynsub: configuration is required")
	ErrLoggerRequired    = sterrors.New("dynsub: logger is required")
	ErrTransportRequired = sterrors.New("dynsub: transport is required")
	ErrTopicRequired     = sterrors.New("dynsub: topic name is required")

	ErrParticipantCreate = sterrors.New("dynsub: failed to create domain participant")
	ErrParticipantClosed = sterrors.New("dynsub: participant is closed")
	ErrEntityDeleted     = sterrors.New("dynsub: entity has been deleted")
	ErrNotOwned          = sterrors.New("dynsub: entity belongs to another participant")

	ErrLoanReturned   = sterrors.New("dynsub: loan already returned")
	ErrLoanForeign    = sterrors.New("dynsub: loan was not taken from this reader")
	ErrInvalidData    = sterrors.New("dynsub: sample carries no valid data")
	ErrInvalidMaxTake = sterrors.New("dynsub: max samples per take must be positive")

	ErrInvalidTopicName    = sterrors.New("dynsub: topic name is not valid text")
	ErrTypeInfoUnavailable = sterrors.New("dynsub: type information not available")
	ErrTypeNotFound        = sterrors.New("dynsub: type not found in scope")
	ErrResolveTimeout      = sterrors.New("dynsub: type descriptor resolution timed out")
	ErrInvalidTypeObject   = sterrors.New("dynsub: type object cannot be materialized")
	ErrDescriptorReleased  = sterrors.New("dynsub: descriptor already released")
	ErrInconsistentTopic   = sterrors.New("dynsub: topic exists with a different type")
	ErrTopicCreate         = sterrors.New("dynsub: failed to create topic")
)

// ConfigValidationError reports an invalid configuration.
type ConfigValidationError struct {
	Err error
}

func (e ConfigValidationError) Error() string {
	return fmt.Sprintf("dynsub: invalid configuration: %v", e.Err)
}

func (e ConfigValidationError) Unwrap() error { return e.Err }

// NewConfigValidationError wraps err, returning nil when err is nil.
func NewConfigValidationError(err error) error {
	if err == nil {
		return nil
	}
	return ConfigValidationError{Err: err}
}

// RecoverableError marks a failure that is logged and skipped. The discovery
// loop keeps waiting and the consumption loop keeps polling after one.
type RecoverableError struct {
	// Op names the step that failed, e.g. "match", "resolve", "create_topic" or "take".
	Op string
	// Topic is the topic name involved, when known.
	Topic string
	Err   error
}

func (e *RecoverableError) Error() string {
	if e.Topic == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %q: %v", e.Op, e.Topic, e.Err)
}

func (e *RecoverableError) Unwrap() error { return e.Err }

// Recoverable wraps err for op and topic. A nil err stays nil.
func Recoverable(op, topic string, err error) error {
	if err == nil {
		return nil
	}
	return &RecoverableError{Op: op, Topic: topic, Err: err}
}

// IsRecoverable reports whether err, or anything it wraps, is a RecoverableError.
func IsRecoverable(err error) bool {
	var rec *RecoverableError
	return sterrors.As(err, &rec)
}

// FatalError ends the process. Only participant creation produces one.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("%v: %v", ErrParticipantCreate, e.Err)
}

func (e *FatalError) Unwrap() []error { return []error{ErrParticipantCreate, e.Err} }

// Reason is the decoded diagnostic shown to the operator.
func (e *FatalError) Reason() string {
	if e.Err == nil {
		return "unrecoverable domain error"
	}
	return e.Err.Error()
}

// Fatal wraps err as a participant creation failure.
func Fatal(err error) error {
	return &FatalError{Err: err}
}

// IsFatal reports whether err stems from participant creation.
func IsFatal(err error) bool {
	return sterrors.Is(err, ErrParticipantCreate)
}
