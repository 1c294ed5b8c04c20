package syncqueue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicops/scheduling-engine/internal/audit"
)

type stubStore struct {
	items        []Item
	done         []uuid.UUID
	retried      []uuid.UUID
	failed       []uuid.UUID
	failedErrors map[uuid.UUID]string
	claims       int
	staleCutoff  time.Time
}

func (s *stubStore) ClaimPending(ctx context.Context, limit int, requeueOlderThan time.Time) ([]Item, error) {
	s.claims++
	s.staleCutoff = requeueOlderThan
	if len(s.items) == 0 {
		return nil, nil
	}
	n := limit
	if n > len(s.items) {
		n = len(s.items)
	}
	claimed := s.items[:n]
	s.items = s.items[n:]
	return claimed, nil
}

func (s *stubStore) MarkDone(ctx context.Context, id uuid.UUID) error {
	s.done = append(s.done, id)
	return nil
}

func (s *stubStore) MarkRetry(ctx context.Context, id uuid.UUID, lastError string) error {
	s.retried = append(s.retried, id)
	return nil
}

func (s *stubStore) MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error {
	s.failed = append(s.failed, id)
	if s.failedErrors == nil {
		s.failedErrors = make(map[uuid.UUID]string)
	}
	s.failedErrors[id] = lastError
	return nil
}

func (s *stubStore) Stats(ctx context.Context) (Stats, error) {
	return Stats{}, nil
}

type stubReconciler struct {
	failFor map[uuid.UUID]error
	calls   []uuid.UUID
}

func (r *stubReconciler) Reconcile(ctx context.Context, item Item) error {
	r.calls = append(r.calls, item.ID)
	if err, ok := r.failFor[item.ID]; ok {
		return err
	}
	return nil
}

type stubLease struct {
	held     bool
	acquired int
	released int
}

func (l *stubLease) Acquire(ctx context.Context) (func(), bool, error) {
	if l.held {
		return nil, false, nil
	}
	l.acquired++
	return func() { l.released++ }, true, nil
}

func item(attempts int) Item {
	return Item{
		ID:          uuid.New(),
		ProviderID:  uuid.New(),
		PayloadType: PayloadSlotsOpened,
		Attempts:    attempts,
		MaxAttempts: DefaultMaxAttempts,
		Status:      StatusPending,
	}
}

func TestProcessPendingSuccess(t *testing.T) {
	a, b := item(0), item(0)
	store := &stubStore{items: []Item{a, b}}
	rec := &stubReconciler{}
	lease := &stubLease{}

	p := NewProcessor(store, rec, lease, nil, nil)
	result, err := p.ProcessPending(context.Background())
	require.NoError(t, err)

	assert.Equal(t, SweepResult{Processed: 2, Succeeded: 2}, result)
	assert.ElementsMatch(t, []uuid.UUID{a.ID, b.ID}, store.done)
	assert.Equal(t, 1, lease.released, "lease must be released after the sweep")
}

func TestProcessPendingRetriesBelowMax(t *testing.T) {
	failing := item(1)
	store := &stubStore{items: []Item{failing}}
	rec := &stubReconciler{failFor: map[uuid.UUID]error{failing.ID: errors.New("remote 503")}}

	p := NewProcessor(store, rec, &stubLease{}, nil, nil)
	result, err := p.ProcessPending(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Failed)
	assert.Zero(t, result.Exhausted)
	assert.Equal(t, []uuid.UUID{failing.ID}, store.retried)
	assert.Empty(t, store.failed)
}

func TestProcessPendingExhaustsAtMaxAttempts(t *testing.T) {
	exhausted := item(DefaultMaxAttempts - 1)
	store := &stubStore{items: []Item{exhausted}}
	rec := &stubReconciler{failFor: map[uuid.UUID]error{exhausted.ID: errors.New("remote rejected")}}

	p := NewProcessor(store, rec, &stubLease{}, nil, nil)
	result, err := p.ProcessPending(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Exhausted)
	assert.Equal(t, []uuid.UUID{exhausted.ID}, store.failed)
	assert.Empty(t, store.retried, "exhausted items never return to pending")
	assert.Contains(t, store.failedErrors[exhausted.ID], ErrItemExhausted.Error(),
		"the parked row must say why it is there")
}

func TestProcessPendingSkipsWhenLeaseHeld(t *testing.T) {
	store := &stubStore{items: []Item{item(0)}}
	rec := &stubReconciler{}

	p := NewProcessor(store, rec, &stubLease{held: true}, nil, nil)
	result, err := p.ProcessPending(context.Background())
	require.NoError(t, err)

	assert.Zero(t, result.Processed)
	assert.Zero(t, store.claims, "a sweep without the lease must not claim items")
	assert.Empty(t, rec.calls)
}

func TestProcessPendingIdempotentSecondSweep(t *testing.T) {
	only := item(0)
	store := &stubStore{items: []Item{only}}
	rec := &stubReconciler{}
	p := NewProcessor(store, rec, &stubLease{}, nil, nil)

	first, err := p.ProcessPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, first.Succeeded)

	second, err := p.ProcessPending(context.Background())
	require.NoError(t, err)
	assert.Zero(t, second.Processed, "done items are not reprocessed")
	assert.Equal(t, []uuid.UUID{only.ID}, rec.calls)
}

func TestProcessPendingHonorsBatchSize(t *testing.T) {
	store := &stubStore{items: []Item{item(0), item(0), item(0)}}
	p := NewProcessor(store, &stubReconciler{}, &stubLease{}, nil, nil).WithBatchSize(2)

	result, err := p.ProcessPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Processed)
}

func TestProcessPendingReclaimsStaleClaims(t *testing.T) {
	store := &stubStore{}
	p := NewProcessor(store, &stubReconciler{}, &stubLease{}, nil, nil).
		WithStaleClaimAfter(10 * time.Minute)

	before := time.Now().UTC().Add(-10 * time.Minute)
	_, err := p.ProcessPending(context.Background())
	require.NoError(t, err)
	after := time.Now().UTC().Add(-10 * time.Minute)

	// The claim must offer dead sweeps' rows back after the stale window, so
	// a crash mid-batch never strands items in processing.
	assert.False(t, store.staleCutoff.Before(before))
	assert.False(t, store.staleCutoff.After(after))
}

type stubSweepAudit struct {
	entries []audit.Entry
}

func (a *stubSweepAudit) Record(ctx context.Context, entry audit.Entry) error {
	a.entries = append(a.entries, entry)
	return nil
}

func TestProcessPendingAuditsSweepOutcome(t *testing.T) {
	store := &stubStore{items: []Item{item(0), item(0)}}
	auditor := &stubSweepAudit{}
	p := NewProcessor(store, &stubReconciler{}, &stubLease{}, nil, nil).WithAuditor(auditor)

	_, err := p.ProcessPending(context.Background())
	require.NoError(t, err)

	require.Len(t, auditor.entries, 1)
	assert.Equal(t, "sync.sweep", auditor.entries[0].Action)
	assert.JSONEq(t, `{"processed":2,"succeeded":2,"failed":0,"exhausted":0}`,
		string(auditor.entries[0].AfterState))
}

func TestProcessPendingSkipsAuditWithoutLease(t *testing.T) {
	auditor := &stubSweepAudit{}
	p := NewProcessor(&stubStore{}, &stubReconciler{}, &stubLease{held: true}, nil, nil).
		WithAuditor(auditor)

	_, err := p.ProcessPending(context.Background())
	require.NoError(t, err)
	assert.Empty(t, auditor.entries, "a sweep that lost the lease did not run")
}
