package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/clinicops/scheduling-engine/internal/provider"
	"github.com/clinicops/scheduling-engine/internal/syncqueue"
	"github.com/clinicops/scheduling-engine/pkg/logging"
)

type stubQueueReader struct {
	stats    syncqueue.Stats
	failed   []syncqueue.Item
	gotLimit int
}

func (s *stubQueueReader) Stats(ctx context.Context) (syncqueue.Stats, error) {
	return s.stats, nil
}

func (s *stubQueueReader) ListFailed(ctx context.Context, limit int) ([]syncqueue.Item, error) {
	s.gotLimit = limit
	return s.failed, nil
}

type stubResetter struct {
	err   error
	calls []uuid.UUID
}

func (s *stubResetter) Reset(ctx context.Context, providerID uuid.UUID) error {
	s.calls = append(s.calls, providerID)
	return s.err
}

type stubEventQueue struct {
	types []string
}

func (s *stubEventQueue) Enqueue(ctx context.Context, q provider.DB, providerID uuid.UUID, payloadType string, payload any) (*syncqueue.Item, error) {
	s.types = append(s.types, payloadType)
	return &syncqueue.Item{ID: uuid.New(), ProviderID: providerID, PayloadType: payloadType}, nil
}

func TestAdminSyncStats(t *testing.T) {
	queue := &stubQueueReader{stats: syncqueue.Stats{Pending: 3, Done: 10, Failed: 1}}
	h := NewAdminHandler(queue, &stubResetter{}, &stubEventQueue{}, logging.Default())

	rec := httptest.NewRecorder()
	h.SyncStats(rec, httptest.NewRequest(http.MethodGet, "/admin/sync/stats", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var stats syncqueue.Stats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatal(err)
	}
	if stats.Pending != 3 || stats.Failed != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestAdminSyncFailedDefaultLimit(t *testing.T) {
	queue := &stubQueueReader{}
	h := NewAdminHandler(queue, &stubResetter{}, &stubEventQueue{}, logging.Default())

	rec := httptest.NewRecorder()
	h.SyncFailed(rec, httptest.NewRequest(http.MethodGet, "/admin/sync/failed", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if queue.gotLimit != 50 {
		t.Fatalf("limit = %d, want 50", queue.gotLimit)
	}
}

func TestAdminSyncFailedInvalidLimit(t *testing.T) {
	h := NewAdminHandler(&stubQueueReader{}, &stubResetter{}, &stubEventQueue{}, logging.Default())

	rec := httptest.NewRecorder()
	h.SyncFailed(rec, httptest.NewRequest(http.MethodGet, "/admin/sync/failed?limit=-1", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func resetRequest(providerID string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/admin/providers/x/strikes/reset", nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("providerID", providerID)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestAdminResetStrikes(t *testing.T) {
	resetter := &stubResetter{}
	events := &stubEventQueue{}
	h := NewAdminHandler(&stubQueueReader{}, resetter, events, logging.Default())

	providerID := uuid.New()
	rec := httptest.NewRecorder()
	h.ResetStrikes(rec, resetRequest(providerID.String()))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(resetter.calls) != 1 || resetter.calls[0] != providerID {
		t.Fatalf("reset calls = %v, want [%s]", resetter.calls, providerID)
	}
	if len(events.types) != 1 || events.types[0] != syncqueue.PayloadProviderReactivated {
		t.Fatalf("enqueued types = %v, want reactivation event", events.types)
	}
}

func TestAdminResetStrikesUnknownProvider(t *testing.T) {
	h := NewAdminHandler(&stubQueueReader{}, &stubResetter{err: provider.ErrNotFound}, &stubEventQueue{}, logging.Default())

	rec := httptest.NewRecorder()
	h.ResetStrikes(rec, resetRequest(uuid.NewString()))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
