package httpapi

import (
	"context"
	"errors"
	"net/http"

	sonic "github.com/bytedance/sonic"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/pitchlens/scoutcore/internal/catalogue"
	"github.com/pitchlens/scoutcore/internal/domain/scouting"
	store "github.com/pitchlens/scoutcore/internal/infrastructure/store/postgres"
	"github.com/pitchlens/scoutcore/internal/platform/logging"
	"github.com/pitchlens/scoutcore/internal/usecase"
)

const (
	googleAPIVersion = "2.0"
	errorDomain      = "scoutcore"
)

type googleResponseEnvelope struct {
	APIVersion string           `json:"apiVersion"`
	Data       any              `json:"data,omitempty"`
	Error      *googleErrorBody `json:"error,omitempty"`
}

type googleErrorBody struct {
	Code    int               `json:"code"`
	Message string            `json:"message"`
	Status  string            `json:"status"`
	Errors  []googleErrorItem `json:"errors,omitempty"`
}

type googleErrorItem struct {
	Domain  string `json:"domain"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

type mappedError struct {
	HTTPStatus    int
	Reason        string
	Status        string
	PublicMessage string
}

func writeJSON(_ context.Context, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = sonic.ConfigDefault.NewEncoder(w).Encode(payload)
}

func writeSuccess(ctx context.Context, w http.ResponseWriter, status int, data any) {
	writeJSON(ctx, w, status, googleResponseEnvelope{
		APIVersion: googleAPIVersion,
		Data:       data,
	})
}

func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	ctx, span := startSpan(ctx, "httpapi.writeError")
	defer span.End()

	mapped := mapError(err)
	internalMessage := err.Error()
	if internalMessage == "" {
		internalMessage = http.StatusText(mapped.HTTPStatus)
	}

	logging.Default().ErrorContext(ctx, "api error response",
		"event", "api_error",
		"error_code", mapped.Reason,
		"http_status", mapped.HTTPStatus,
		"error_status", mapped.Status,
		"internal_message", internalMessage,
	)

	span.RecordError(err)
	span.SetStatus(codes.Error, mapped.Reason)
	span.SetAttributes(
		attribute.Int("error.http_status", mapped.HTTPStatus),
		attribute.String("error.reason", mapped.Reason),
	)

	writeJSON(ctx, w, mapped.HTTPStatus, googleResponseEnvelope{
		APIVersion: googleAPIVersion,
		Error: &googleErrorBody{
			Code:    mapped.HTTPStatus,
			Message: mapped.PublicMessage,
			Status:  mapped.Status,
			Errors: []googleErrorItem{
				{
					Domain:  errorDomain,
					Reason:  mapped.Reason,
					Message: internalMessage,
				},
			},
		},
	})
}

func writeInternalError(ctx context.Context, w http.ResponseWriter) {
	const msg = "internal server error"

	writeJSON(ctx, w, http.StatusInternalServerError, googleResponseEnvelope{
		APIVersion: googleAPIVersion,
		Error: &googleErrorBody{
			Code:    http.StatusInternalServerError,
			Message: msg,
			Status:  "INTERNAL",
			Errors: []googleErrorItem{
				{
					Domain:  errorDomain,
					Reason:  "internalError",
					Message: msg,
				},
			},
		},
	})
}

func mapError(err error) mappedError {
	switch {
	case errors.Is(err, scouting.ErrUnknownMetric),
		errors.Is(err, scouting.ErrIncompatibleMetricForPosition),
		errors.Is(err, scouting.ErrInvalidWeight),
		errors.Is(err, scouting.ErrInvalidLimit):
		return mappedError{
			HTTPStatus:    http.StatusBadRequest,
			Reason:        "invalidQuery",
			Status:        "INVALID_ARGUMENT",
			PublicMessage: "invalid query",
		}
	case errors.Is(err, scouting.ErrParse):
		return mappedError{
			HTTPStatus:    http.StatusUnprocessableEntity,
			Reason:        "parseRefused",
			Status:        "FAILED_PRECONDITION",
			PublicMessage: "question could not be parsed",
		}
	case errors.Is(err, scouting.ErrCohortTooSmall),
		errors.Is(err, scouting.ErrNoCandidates),
		errors.Is(err, scouting.ErrNoSeasonData),
		errors.Is(err, scouting.ErrReferenceRoleInsufficient):
		return mappedError{
			HTTPStatus:    http.StatusConflict,
			Reason:        "insufficientData",
			Status:        "FAILED_PRECONDITION",
			PublicMessage: "not enough data for this query",
		}
	case errors.Is(err, scouting.ErrTimeout):
		return mappedError{
			HTTPStatus:    http.StatusGatewayTimeout,
			Reason:        "timeout",
			Status:        "DEADLINE_EXCEEDED",
			PublicMessage: "query timed out",
		}
	case errors.Is(err, scouting.ErrLLMUnavailable),
		errors.Is(err, store.ErrStoreUnavailable),
		errors.Is(err, usecase.ErrDependencyUnavailable):
		return mappedError{
			HTTPStatus:    http.StatusServiceUnavailable,
			Reason:        "dependencyUnavailable",
			Status:        "UNAVAILABLE",
			PublicMessage: "dependency unavailable",
		}
	case errors.Is(err, usecase.ErrInvalidInput):
		return mappedError{
			HTTPStatus:    http.StatusBadRequest,
			Reason:        "invalidInput",
			Status:        "INVALID_ARGUMENT",
			PublicMessage: "invalid request",
		}
	case errors.Is(err, usecase.ErrNotFound):
		return mappedError{
			HTTPStatus:    http.StatusNotFound,
			Reason:        "notFound",
			Status:        "NOT_FOUND",
			PublicMessage: "resource not found",
		}
	case errors.Is(err, catalogue.ErrCatalogueInvalid),
		errors.Is(err, store.ErrForbiddenStatement),
		errors.Is(err, store.ErrSchemaMismatch):
		return mappedError{
			HTTPStatus:    http.StatusInternalServerError,
			Reason:        "integrityViolation",
			Status:        "INTERNAL",
			PublicMessage: "internal server error",
		}
	default:
		return mappedError{
			HTTPStatus:    http.StatusInternalServerError,
			Reason:        "internalError",
			Status:        "INTERNAL",
			PublicMessage: "internal server error",
		}
	}
}
