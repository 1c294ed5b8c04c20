package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/clinicops/scheduling-engine/internal/provider"
	"github.com/clinicops/scheduling-engine/internal/syncqueue"
	"github.com/clinicops/scheduling-engine/pkg/logging"
)

type syncQueueReader interface {
	Stats(ctx context.Context) (syncqueue.Stats, error)
	ListFailed(ctx context.Context, limit int) ([]syncqueue.Item, error)
}

type strikeResetter interface {
	Reset(ctx context.Context, providerID uuid.UUID) error
}

type reactivationQueue interface {
	Enqueue(ctx context.Context, q provider.DB, providerID uuid.UUID, payloadType string, payload any) (*syncqueue.Item, error)
}

// AdminHandler serves the operator endpoints: sync-queue visibility and the
// strike reset escape hatch.
type AdminHandler struct {
	queue  syncQueueReader
	ledger strikeResetter
	events reactivationQueue
	logger *logging.Logger
}

// NewAdminHandler creates the admin handler.
func NewAdminHandler(queue syncQueueReader, ledger strikeResetter, events reactivationQueue, logger *logging.Logger) *AdminHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminHandler{
		queue:  queue,
		ledger: ledger,
		events: events,
		logger: logger,
	}
}

// SyncStats handles GET /admin/sync/stats
func (h *AdminHandler) SyncStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.queue.Stats(r.Context())
	if err != nil {
		h.logger.Error("sync stats failed", "error", err)
		http.Error(w, "failed to load sync stats", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// SyncFailed handles GET /admin/sync/failed?limit=N
func (h *AdminHandler) SyncFailed(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	items, err := h.queue.ListFailed(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed item list failed", "error", err)
		http.Error(w, "failed to load failed items", http.StatusInternalServerError)
		return
	}
	if items == nil {
		items = []syncqueue.Item{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// ResetStrikes handles POST /admin/providers/{providerID}/strikes/reset.
// Clearing the count also lifts a suspension, and the reactivation is pushed
// through the sync queue like any other standing change.
func (h *AdminHandler) ResetStrikes(w http.ResponseWriter, r *http.Request) {
	providerID, err := uuid.Parse(chi.URLParam(r, "providerID"))
	if err != nil {
		http.Error(w, "invalid provider id", http.StatusBadRequest)
		return
	}
	if err := h.ledger.Reset(r.Context(), providerID); err != nil {
		if errors.Is(err, provider.ErrNotFound) {
			http.Error(w, "provider not found", http.StatusNotFound)
			return
		}
		h.logger.Error("strike reset failed", "error", err, "provider_id", providerID)
		http.Error(w, "strike reset failed", http.StatusInternalServerError)
		return
	}
	if _, err := h.events.Enqueue(r.Context(), nil, providerID, syncqueue.PayloadProviderReactivated, map[string]any{
		"provider_id": providerID,
	}); err != nil {
		h.logger.Error("reactivation enqueue failed", "error", err, "provider_id", providerID)
	}
	h.logger.Info("strikes reset by admin", "provider_id", providerID)
	writeJSON(w, http.StatusOK, map[string]any{"provider_id": providerID, "status": "active", "strike_count": 0})
}
