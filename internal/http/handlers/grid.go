package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/clinicops/scheduling-engine/internal/provider"
	"github.com/clinicops/scheduling-engine/internal/schedule"
	"github.com/clinicops/scheduling-engine/internal/strikes"
	"github.com/clinicops/scheduling-engine/internal/tier"
	"github.com/clinicops/scheduling-engine/pkg/logging"
)

type gridService interface {
	OpenSlots(ctx context.Context, providerID uuid.UUID, slots []schedule.Slot) (schedule.OpenResult, error)
	CloseSlots(ctx context.Context, providerID uuid.UUID, slots []schedule.Slot) (schedule.CloseResult, error)
	EmergencyCancel(ctx context.Context, providerID uuid.UUID, slots []schedule.Slot, reason strikes.ReasonCategory, reasonText string) (schedule.CancelResult, error)
	Grid(ctx context.Context, providerID uuid.UUID) (schedule.GridView, error)
}

type standingReader interface {
	Get(ctx context.Context, q provider.DB, providerID uuid.UUID) (*provider.Standing, error)
}

type penaltyReader interface {
	ActivePenalty(ctx context.Context, providerID uuid.UUID) (strikes.ActivePenalty, bool, error)
	History(ctx context.Context, providerID uuid.UUID) ([]strikes.Record, error)
}

// GridHandler serves the provider-facing slot-grid endpoints.
type GridHandler struct {
	service   gridService
	standings standingReader
	penalties penaltyReader
	tiers     *tier.Table
	logger    *logging.Logger
}

// NewGridHandler creates the grid handler.
func NewGridHandler(service gridService, standings standingReader, penalties penaltyReader, tiers *tier.Table, logger *logging.Logger) *GridHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &GridHandler{
		service:   service,
		standings: standings,
		penalties: penalties,
		tiers:     tiers,
		logger:    logger,
	}
}

type slotsRequest struct {
	Slots []schedule.Slot `json:"slots"`
}

type cancelRequest struct {
	Slots          []schedule.Slot        `json:"slots"`
	ReasonCategory strikes.ReasonCategory `json:"reason_category"`
	ReasonText     string                 `json:"reason_text"`
}

// OpenSlots handles POST /providers/{providerID}/slots/open
func (h *GridHandler) OpenSlots(w http.ResponseWriter, r *http.Request) {
	providerID, ok := h.providerID(w, r)
	if !ok {
		return
	}
	var req slotsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	result, err := h.service.OpenSlots(r.Context(), providerID, req.Slots)
	if err != nil {
		h.writeScheduleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// CloseSlots handles POST /providers/{providerID}/slots/close
func (h *GridHandler) CloseSlots(w http.ResponseWriter, r *http.Request) {
	providerID, ok := h.providerID(w, r)
	if !ok {
		return
	}
	var req slotsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	result, err := h.service.CloseSlots(r.Context(), providerID, req.Slots)
	if err != nil {
		h.writeScheduleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// EmergencyCancel handles POST /providers/{providerID}/slots/emergency-cancel
func (h *GridHandler) EmergencyCancel(w http.ResponseWriter, r *http.Request) {
	providerID, ok := h.providerID(w, r)
	if !ok {
		return
	}
	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	result, err := h.service.EmergencyCancel(r.Context(), providerID, req.Slots, req.ReasonCategory, req.ReasonText)
	if err != nil {
		h.writeScheduleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetGrid handles GET /providers/{providerID}/slots
func (h *GridHandler) GetGrid(w http.ResponseWriter, r *http.Request) {
	providerID, ok := h.providerID(w, r)
	if !ok {
		return
	}
	view, err := h.service.Grid(r.Context(), providerID)
	if err != nil {
		h.logger.Error("grid view failed", "error", err, "provider_id", providerID)
		http.Error(w, "failed to load grid", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type standingResponse struct {
	ProviderID  uuid.UUID              `json:"provider_id"`
	Status      provider.Status        `json:"status"`
	Tier        string                 `json:"tier"`
	StrikeCount int                    `json:"strike_count"`
	SlotsMin    int                    `json:"slots_min"`
	SlotsMax    *int                   `json:"slots_max"`
	Periods     []tier.Period          `json:"periods"`
	Penalty     *strikes.ActivePenalty `json:"active_penalty,omitempty"`
	Strikes     []strikes.Record       `json:"strikes"`
}

// GetStanding handles GET /providers/{providerID}/standing
func (h *GridHandler) GetStanding(w http.ResponseWriter, r *http.Request) {
	providerID, ok := h.providerID(w, r)
	if !ok {
		return
	}
	standing, err := h.standings.Get(r.Context(), nil, providerID)
	switch {
	case errors.Is(err, provider.ErrNotFound):
		// Reads never create rows; an unknown provider is a fresh one.
		standing = &provider.Standing{ProviderID: providerID, Status: provider.StatusActive, Tier: h.tiers.Lowest().Name}
	case err != nil:
		h.logger.Error("standing lookup failed", "error", err, "provider_id", providerID)
		http.Error(w, "failed to load standing", http.StatusInternalServerError)
		return
	}

	current, found := h.tiers.Lookup(standing.Tier)
	if !found {
		current = h.tiers.Lowest()
	}

	resp := standingResponse{
		ProviderID:  providerID,
		Status:      standing.Status,
		Tier:        current.Name,
		StrikeCount: standing.StrikeCount,
		SlotsMin:    current.SlotsMin,
		SlotsMax:    current.SlotsMax,
		Periods:     current.Periods,
		Strikes:     []strikes.Record{},
	}
	if penalty, active, err := h.penalties.ActivePenalty(r.Context(), providerID); err == nil && active {
		resp.Penalty = &penalty
	}
	if history, err := h.penalties.History(r.Context(), providerID); err == nil && history != nil {
		resp.Strikes = history
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *GridHandler) providerID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "providerID"))
	if err != nil {
		http.Error(w, "invalid provider id", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func (h *GridHandler) writeScheduleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, schedule.ErrInvalidSlot), errors.Is(err, schedule.ErrInvalidReason):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, schedule.ErrProviderSuspended):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, schedule.ErrHasBookingViolation):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, schedule.ErrBlackoutViolation),
		errors.Is(err, schedule.ErrTierPolicyViolation),
		errors.Is(err, tier.ErrCapacityExceeded):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		h.logger.Error("grid mutation failed", "error", err)
		http.Error(w, "grid mutation failed", http.StatusInternalServerError)
	}
}
