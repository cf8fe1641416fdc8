package httpapi

import (
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel/codes"

	idgen "github.com/pitchlens/scoutcore/internal/platform/id"
	"github.com/pitchlens/scoutcore/internal/platform/logging"
)

func NewRouter(handler *Handler, logger *logging.Logger, corsAllowedOrigins []string) http.Handler {
	if logger == nil {
		logger = logging.Default()
	}

	mux := http.NewServeMux()
	registerSystemRoutes(mux, handler)
	registerQueryRoutes(mux, handler)

	stack := RequestLogging(logger, CORS(corsAllowedOrigins, recoverPanic(logger, mux)))
	stack = RequestID(idgen.NewRandomGenerator(), stack)
	return RequestTracing(stack)
}

func recoverPanic(logger *logging.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := startSpan(r.Context(), "httpapi.recoverPanic")
		defer span.End()

		defer func() {
			if rec := recover(); rec != nil {
				panicErr := fmt.Errorf("panic recovered: %v", rec)
				span.RecordError(panicErr)
				span.SetStatus(codes.Error, "panic")
				logger.ErrorContext(ctx, "panic recovered",
					"event", "panic_recovered",
					"error_code", "panic",
					"panic", rec,
				)
				writeInternalError(ctx, w)
			}
		}()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
