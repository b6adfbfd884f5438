package api

import (
	"log/slog"
	"net/http"

	"github.com/phrazzld/careminder/internal/api/middleware"
	"github.com/phrazzld/careminder/internal/api/shared"
	"github.com/phrazzld/careminder/internal/platform/logger"
	"github.com/phrazzld/careminder/internal/service"
)

// CheckInHandler serves check-ins, checklist completion and next occurrence
// lookups.
type CheckInHandler struct {
	checkIns service.CheckInService
	logger   *slog.Logger
}

// NewCheckInHandler creates a new CheckInHandler.
func NewCheckInHandler(checkIns service.CheckInService, logger *slog.Logger) *CheckInHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CheckInHandler{
		checkIns: checkIns,
		logger:   logger.With(slog.String("component", "check_in_handler")),
	}
}

// CheckIn handles POST /api/patients/{patientID}/occurrences/{occurrenceID}/check-in.
// A second check-in of the same occurrence gets 409.
func (h *CheckInHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	ids, ok := pathUUIDs(w, r, "patientID", "occurrenceID")
	if !ok {
		return
	}

	occ, err := h.checkIns.CheckIn(r.Context(), ids[0], ids[1])
	if err != nil {
		HandleAPIError(w, r, err, "Failed to record check-in")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, occ)
}

// CompleteChecklistItem handles POST /api/patients/{patientID}/checklist/{itemID}/complete.
func (h *CheckInHandler) CompleteChecklistItem(w http.ResponseWriter, r *http.Request) {
	ids, ok := pathUUIDs(w, r, "patientID", "itemID")
	if !ok {
		return
	}

	item, err := h.checkIns.CompleteChecklistItem(r.Context(), ids[0], ids[1])
	if err != nil {
		HandleAPIError(w, r, err, "Failed to complete checklist item")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, item)
}

// GetNextOccurrence handles GET /api/plan-items/{planItemID}/next-occurrence.
// Plan items of other patients are reported as not found; a plan item with
// nothing pending gets 204.
func (h *CheckInHandler) GetNextOccurrence(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	ids, ok := pathUUIDs(w, r, "planItemID")
	if !ok {
		return
	}
	planItemID := ids[0]

	callerID, ok := middleware.GetPatientID(r)
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}

	owner, err := h.checkIns.PlanItemOwner(r.Context(), planItemID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to load plan item")
		return
	}
	if owner != callerID {
		log.Warn("plan item requested by another patient", slog.String("plan_item_id", planItemID.String()))
		HandleAPIError(w, r, service.ErrNotFound, "")
		return
	}

	next, err := h.checkIns.GetNextOccurrence(r.Context(), planItemID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to load next occurrence")
		return
	}
	if next == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, next)
}
