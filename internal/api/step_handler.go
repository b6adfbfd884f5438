package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/phrazzld/careminder/internal/api/shared"
	"github.com/phrazzld/careminder/internal/domain"
	"github.com/phrazzld/careminder/internal/platform/logger"
	"github.com/phrazzld/careminder/internal/service"
)

// StepHandler serves note submissions and the active step listing.
type StepHandler struct {
	steps  service.StepService
	logger *slog.Logger
}

// NewStepHandler creates a new StepHandler.
func NewStepHandler(steps service.StepService, logger *slog.Logger) *StepHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StepHandler{
		steps:  steps,
		logger: logger.With(slog.String("component", "step_handler")),
	}
}

// SubmitNoteResult handles POST /api/patients/{patientID}/notes/{noteID}/result.
// The response is 201 with the submission report even when some items were
// rejected; they are listed under "rejected".
func (h *StepHandler) SubmitNoteResult(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	ids, ok := pathUUIDs(w, r, "patientID", "noteID")
	if !ok {
		return
	}
	patientID, noteID := ids[0], ids[1]

	var req SubmitNoteResultRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
		return
	}

	report, err := h.steps.SubmitNoteResult(r.Context(), req.toNoteResult(patientID, noteID))
	if err != nil {
		if report == nil || !errors.Is(err, domain.ErrInvalidSchedule) {
			HandleAPIError(w, r, err, "Failed to submit note result")
			return
		}
		log.Info("note result accepted with rejected items",
			slog.String("note_id", noteID.String()),
			slog.Int("rejected", len(report.Rejected)))
	}

	shared.RespondWithJSON(w, r, http.StatusCreated, report)
}

// ListActiveSteps handles GET /api/patients/{patientID}/steps.
func (h *StepHandler) ListActiveSteps(w http.ResponseWriter, r *http.Request) {
	ids, ok := pathUUIDs(w, r, "patientID")
	if !ok {
		return
	}

	steps, err := h.steps.ListActiveSteps(r.Context(), ids[0])
	if err != nil {
		HandleAPIError(w, r, err, "Failed to list steps")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, steps)
}
