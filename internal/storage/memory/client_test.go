package memory

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessions(t *testing.T) {
	ctx := context.Background()
	c := New()

	got, err := c.GetSessionUser(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, c.SetSessionUser(ctx, "tok1", "u1"))
	got, err = c.GetSessionUser(ctx, "tok1")
	require.NoError(t, err)
	assert.Equal(t, "u1", got)

	require.NoError(t, c.DeleteSession(ctx, "tok1"))
	got, err = c.GetSessionUser(ctx, "tok1")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestPushSubscriptions(t *testing.T) {
	ctx := context.Background()
	c := New()

	list, err := c.ListPushSubscriptions(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, list)

	require.NoError(t, c.AddPushSubscription(ctx, "u1", "sub-a"))
	require.NoError(t, c.AddPushSubscription(ctx, "u1", "sub-b"))
	list, err = c.ListPushSubscriptions(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"sub-a", "sub-b"}, list)

	require.NoError(t, c.RemovePushSubscription(ctx, "u1", "sub-a"))
	list, err = c.ListPushSubscriptions(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"sub-b"}, list)
}

func TestPushSubscriptionsCap(t *testing.T) {
	ctx := context.Background()
	c := New()

	for i := 0; i < maxSubsPerUser+5; i++ {
		require.NoError(t, c.AddPushSubscription(ctx, "u1", fmt.Sprintf("sub-%d", i)))
	}
	list, err := c.ListPushSubscriptions(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, maxSubsPerUser)
	// Oldest entries are dropped first.
	assert.Equal(t, "sub-5", list[0])
	assert.Equal(t, fmt.Sprintf("sub-%d", maxSubsPerUser+4), list[len(list)-1])
}
