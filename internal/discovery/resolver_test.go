package discovery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/dynsub/internal/domain"
	errspkg "github.com/drblury/dynsub/internal/runtime/errors"
)

func takeEntry(t *testing.T, reader *fakeReader) *Entry {
	t.Helper()
	entry, err := NewFeedReader(reader).Next()
	require.NoError(t, err)
	t.Cleanup(func() { _ = entry.Release() })
	return entry
}

func TestResolverSingleGlobalAttempt(t *testing.T) {
	d := newFakeDomain(t, publication("TargetTopic", "T1"))
	entry := takeEntry(t, d.reader)

	desc, err := NewResolver(d).Resolve(context.Background(), entry)
	require.NoError(t, err)
	require.NotNil(t, desc)

	require.Len(t, d.calls, 1)
	assert.Equal(t, domain.FindScopeGlobal, d.calls[0].scope)
	assert.Equal(t, 200*time.Millisecond, d.calls[0].timeout)
	assert.Equal(t, "id-T1", d.calls[0].info.TypeID)
}

func TestResolverFailuresAreRecoverable(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(d *fakeDomain)
		entry  announcement
		want   error
		reason string
	}{
		{
			name:   "no type information",
			entry:  announcement{topic: "TargetTopic", typeName: "T1", noType: true},
			want:   errspkg.ErrTypeInfoUnavailable,
			reason: "type_info_unavailable",
		},
		{
			name:   "timeout",
			setup:  func(d *fakeDomain) { d.failures["T1"] = errspkg.ErrResolveTimeout },
			entry:  publication("TargetTopic", "T1"),
			want:   errspkg.ErrResolveTimeout,
			reason: "timeout",
		},
		{
			name:   "invalid type object",
			setup:  func(d *fakeDomain) { d.failures["T1"] = errspkg.ErrInvalidTypeObject },
			entry:  publication("TargetTopic", "T1"),
			want:   errspkg.ErrInvalidTypeObject,
			reason: "invalid_type_object",
		},
		{
			name:   "null handle",
			setup:  func(d *fakeDomain) { d.nilFor["T1"] = true },
			entry:  publication("TargetTopic", "T1"),
			want:   errspkg.ErrTypeInfoUnavailable,
			reason: "type_info_unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newFakeDomain(t, tt.entry)
			if tt.setup != nil {
				tt.setup(d)
			}
			entry := takeEntry(t, d.reader)

			desc, err := NewResolver(d).Resolve(context.Background(), entry)
			assert.Nil(t, desc)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, errspkg.IsRecoverable(err))
			assert.Equal(t, tt.reason, ResolveFailureReason(err))
			assert.LessOrEqual(t, len(d.calls), 1, "resolution never retries internally")
		})
	}
}

func TestResolveFailureReasonFallback(t *testing.T) {
	assert.Equal(t, "not_found", ResolveFailureReason(errspkg.ErrTypeNotFound))
	assert.Equal(t, "other", ResolveFailureReason(errors.New("boom")))
}

func TestResolverDefaultsNonPositiveTimeout(t *testing.T) {
	d := newFakeDomain(t, publication("TargetTopic", "T1"))
	entry := takeEntry(t, d.reader)

	r := &Resolver{Types: d, Scope: domain.FindScopeLocal}
	_, err := r.Resolve(context.Background(), entry)
	require.NoError(t, err)
	assert.Equal(t, DefaultResolveTimeout, d.calls[0].timeout)
	assert.Equal(t, domain.FindScopeLocal, d.calls[0].scope)
}
