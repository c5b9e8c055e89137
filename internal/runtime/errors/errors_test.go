package errors

import (
	"errors"
	"testing"
)

func TestSentinelErrors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantMsg string
	}{
		{"ErrConfigRequired", ErrConfigRequired, "dynsub: configuration is required"},
		{"ErrParticipantCreate", ErrParticipantCreate, "dynsub: failed to create domain participant"},
		{"ErrLoanReturned", ErrLoanReturned, "dynsub: loan already returned"},
		{"ErrInvalidTopicName", ErrInvalidTopicName, "dynsub: topic name is not valid text"},
		{"ErrResolveTimeout", ErrResolveTimeout, "dynsub: type descriptor resolution timed out"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", got, tt.wantMsg)
			}
		})
	}
}

func TestConfigValidationError(t *testing.T) {
	inner := errors.New("invalid port")
	err := ConfigValidationError{Err: inner}

	want := "dynsub: invalid configuration: invalid port"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if unwrapped := err.Unwrap(); unwrapped != inner {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, inner)
	}
	if NewConfigValidationError(nil) != nil {
		t.Error("NewConfigValidationError(nil) should be nil")
	}
	if !errors.Is(NewConfigValidationError(inner), inner) {
		t.Error("errors.Is should match wrapped error")
	}
}

func TestRecoverableError(t *testing.T) {
	err := Recoverable("resolve", "HelloWorldData_Msg", ErrResolveTimeout)

	want := `resolve "HelloWorldData_Msg": dynsub: type descriptor resolution timed out`
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, ErrResolveTimeout) {
		t.Error("expected errors.Is to reach the sentinel")
	}
	if !IsRecoverable(err) {
		t.Error("expected IsRecoverable to be true")
	}
	if IsRecoverable(ErrResolveTimeout) {
		t.Error("bare sentinel should not be recoverable")
	}
	if Recoverable("take", "", nil) != nil {
		t.Error("nil error should stay nil")
	}
	if got := Recoverable("take", "", ErrInvalidMaxTake).Error(); got != "take: dynsub: max samples per take must be positive" {
		t.Errorf("unexpected message without topic: %q", got)
	}
}

func TestFatalError(t *testing.T) {
	cause := errors.New("transport \"nats\": connection refused")
	err := Fatal(cause)

	if !IsFatal(err) {
		t.Fatal("expected IsFatal to be true")
	}
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to reach the cause")
	}
	if IsRecoverable(err) {
		t.Error("fatal error must not be recoverable")
	}

	var fatal *FatalError
	if !errors.As(err, &fatal) {
		t.Fatalf("expected *FatalError, got %T", err)
	}
	if fatal.Reason() != cause.Error() {
		t.Errorf("Reason() = %q, want %q", fatal.Reason(), cause.Error())
	}
	if (&FatalError{}).Reason() != "unrecoverable domain error" {
		t.Error("expected fallback reason for nil cause")
	}
}
