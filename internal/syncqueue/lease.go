package syncqueue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lease only if this holder still owns it.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// SweepLease is the process-wide mutual exclusion token for queue sweeps.
// Only one ProcessPending may run system-wide at a time; a redundant cron
// trigger that fails to acquire the lease is a no-op.
type SweepLease struct {
	rdb *redis.Client
	key string
	ttl time.Duration
}

// NewSweepLease creates a lease keyed for the sync sweep. The TTL bounds
// how long a crashed sweep can block the next one.
func NewSweepLease(rdb *redis.Client, key string, ttl time.Duration) *SweepLease {
	if key == "" {
		key = "scheduling:sync_sweep_lease"
	}
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &SweepLease{rdb: rdb, key: key, ttl: ttl}
}

// Acquire tries to take the lease. The returned release func is safe to call
// even after the TTL expired; it never releases another holder's lease.
func (l *SweepLease) Acquire(ctx context.Context) (release func(), acquired bool, err error) {
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("syncqueue: acquire sweep lease: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	release = func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, _ = releaseScript.Run(releaseCtx, l.rdb, []string{l.key}, token).Result()
	}
	return release, true, nil
}
