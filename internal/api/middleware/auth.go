package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/careminder/internal/api/shared"
	"github.com/phrazzld/careminder/internal/platform/logger"
	"github.com/phrazzld/careminder/internal/redact"
	"github.com/phrazzld/careminder/internal/service/auth"
)

// AuthMiddleware provides JWT authentication for routes.
type AuthMiddleware struct {
	jwtService auth.JWTService
}

// NewAuthMiddleware creates a new AuthMiddleware with the given dependencies.
func NewAuthMiddleware(jwtService auth.JWTService) *AuthMiddleware {
	return &AuthMiddleware{
		jwtService: jwtService,
	}
}

// Authenticate validates the bearer token and stores its claims in the
// request context.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			shared.RespondWithError(w, r, http.StatusUnauthorized, "Authorization header required")
			return
		}

		scheme, token, ok := strings.Cut(authHeader, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
			shared.RespondWithError(w, r, http.StatusUnauthorized, "Invalid authorization format")
			return
		}

		claims, err := m.jwtService.ValidateToken(r.Context(), token)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrExpiredToken):
				shared.RespondWithError(w, r, http.StatusUnauthorized, "Token expired")
			case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrTokenNotYetValid):
				shared.RespondWithError(w, r, http.StatusUnauthorized, "Invalid token")
			default:
				logger.FromContext(r.Context()).Error("failed to validate token",
					slog.String("error", redact.Error(err)))
				shared.RespondWithError(w, r, http.StatusInternalServerError, "Authentication error")
			}
			return
		}

		log := logger.FromContext(r.Context()).With(slog.String("caller_id", claims.PatientID.String()))
		ctx := logger.WithLogger(shared.WithClaims(r.Context(), claims), log)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireScope rejects callers whose token lacks scope.
func RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := shared.GetClaims(r.Context())
			if !ok || !claims.HasScope(scope) {
				shared.RespondWithErrorAndLog(w, r, http.StatusForbidden, "Insufficient scope", nil,
					shared.WithElevatedLogLevel())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequirePatient rejects callers whose token subject differs from the
// patient named by the param path parameter. Tokens carrying any of the
// bypass scopes may act for every patient.
func RequirePatient(param string, bypass ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			patientID, err := uuid.Parse(chi.URLParam(r, param))
			if err != nil {
				shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid "+param)
				return
			}
			claims, ok := shared.GetClaims(r.Context())
			if ok && slices.ContainsFunc(bypass, claims.HasScope) {
				next.ServeHTTP(w, r)
				return
			}
			if !ok || claims.PatientID != patientID {
				shared.RespondWithErrorAndLog(w, r, http.StatusForbidden, "Forbidden", nil,
					shared.WithElevatedLogLevel())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetPatientID returns the authenticated caller's patient ID.
func GetPatientID(r *http.Request) (uuid.UUID, bool) {
	claims, ok := shared.GetClaims(r.Context())
	if !ok {
		return uuid.Nil, false
	}
	return claims.PatientID, true
}
