package syncqueue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func leaseFixture(t *testing.T) (*SweepLease, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewSweepLease(rdb, "test:sweep_lease", time.Minute), mr
}

func TestSweepLeaseExclusive(t *testing.T) {
	lease, _ := leaseFixture(t)
	ctx := context.Background()

	release, acquired, err := lease.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, acquired)

	_, acquired, err = lease.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, acquired, "second acquire while held must fail")

	release()

	release2, acquired, err := lease.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, acquired, "lease is reusable after release")
	release2()
}

func TestSweepLeaseExpiresViaTTL(t *testing.T) {
	lease, mr := leaseFixture(t)
	ctx := context.Background()

	_, acquired, err := lease.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, acquired)

	mr.FastForward(2 * time.Minute)

	release, acquired, err := lease.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, acquired, "a crashed holder must not block forever")
	release()
}

func TestSweepLeaseReleaseDoesNotStealNewHolder(t *testing.T) {
	lease, mr := leaseFixture(t)
	ctx := context.Background()

	staleRelease, acquired, err := lease.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, acquired)

	// The first holder's TTL lapses and someone else takes the lease.
	mr.FastForward(2 * time.Minute)
	_, acquired, err = lease.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, acquired)

	staleRelease()

	_, acquired, err = lease.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, acquired, "stale release must not free the new holder's lease")
}
