package streaming

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistryCancelByID(t *testing.T) {
	r := NewRegistry()
	ctx, cancel := context.WithCancelCause(context.Background())
	release := r.Register("req1", cancel)
	defer release()

	require.Equal(t, 1, r.Len())
	require.True(t, r.Cancel("req1"))
	require.ErrorIs(t, context.Cause(ctx), ErrCancelRequested)

	require.False(t, r.Cancel("req_unknown"))
}

func TestRegistryReplaceAbortsPrevious(t *testing.T) {
	r := NewRegistry()

	ctx1, cancel1 := context.WithCancelCause(context.Background())
	release1 := r.Register("req1", cancel1)

	ctx2, cancel2 := context.WithCancelCause(context.Background())
	release2 := r.Register("req1", cancel2)
	defer release2()

	require.ErrorIs(t, context.Cause(ctx1), ErrReplaced)
	require.NoError(t, ctx2.Err())
	require.Equal(t, 1, r.Len())

	// The replaced stream's release must not evict the replacement.
	release1()
	require.Equal(t, 1, r.Len())
	require.True(t, r.Cancel("req1"))
}

func TestRegistryReleaseRemoves(t *testing.T) {
	r := NewRegistry()
	_, cancel := context.WithCancelCause(context.Background())
	release := r.Register("req1", cancel)

	release()
	require.Equal(t, 0, r.Len())
	require.False(t, r.Cancel("req1"))
}
