package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/careminder/internal/api/middleware"
	"github.com/phrazzld/careminder/internal/service"
	"github.com/phrazzld/careminder/internal/service/auth"
)

// RouterDeps are the collaborators the HTTP surface is built from.
type RouterDeps struct {
	Logger     *slog.Logger
	JWTService auth.JWTService
	Steps      service.StepService
	CheckIns   service.CheckInService
	Health     HealthChecker
}

// NewRouter creates the application router with all routes and middleware.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.NewTraceMiddleware(deps.Logger))
	r.Use(chimw.Recoverer)

	authMiddleware := middleware.NewAuthMiddleware(deps.JWTService)
	stepHandler := NewStepHandler(deps.Steps, deps.Logger)
	checkInHandler := NewCheckInHandler(deps.CheckIns, deps.Logger)

	r.Route("/api", func(r chi.Router) {
		r.Use(authMiddleware.Authenticate)

		r.Route("/patients/{patientID}", func(r chi.Router) {
			// notes:write is the extraction producer's scope and covers every patient
			r.With(
				middleware.RequireScope(auth.ScopeNotesWrite),
				middleware.RequirePatient("patientID", auth.ScopeNotesWrite),
			).Post("/notes/{noteID}/result", stepHandler.SubmitNoteResult)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequirePatient("patientID"))
				r.Get("/steps", stepHandler.ListActiveSteps)
				r.Post("/occurrences/{occurrenceID}/check-in", checkInHandler.CheckIn)
				r.Post("/checklist/{itemID}/complete", checkInHandler.CompleteChecklistItem)
			})
		})

		r.Get("/plan-items/{planItemID}/next-occurrence", checkInHandler.GetNextOccurrence)
	})

	r.Method(http.MethodGet, "/health", NewHealthHandler(deps.Health, deps.Logger))

	return r
}
