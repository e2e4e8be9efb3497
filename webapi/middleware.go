package webapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/eosc-synergy/sqaaas/internal/pipeline"
	"github.com/eosc-synergy/sqaaas/logger"
)

// LoggerMiddleware logs every request with its duration.
func LoggerMiddleware(l logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t := time.Now()
			defer func() {
				l.Debug("%s\t%s\t%s", r.Method, r.URL.Path, time.Since(t))
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// HeadersMiddleware sets the common headers for all responses. At the
// moment, this is just Content-Type: application/json; handlers serving
// other content overwrite it.
func HeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer next.ServeHTTP(w, r)

		w.Header().Set("Content-Type", "application/json")
	})
}

// PipelineIDMiddleware rejects requests whose {id} segment is not a valid
// version-4 identifier before any handler runs.
func PipelineIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		u, err := uuid.Parse(id)
		if err != nil || u.Version() != 4 {
			writeError(w, fmt.Errorf("invalid pipeline identifier <%s>: not a version-4 UUID", id), http.StatusBadRequest)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// writeError writes err to w as an ErrorResponse with the given status.
func writeError(w http.ResponseWriter, err error, status int) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: err.Error()})
}

// writeOperationError maps an orchestrator failure onto its HTTP status;
// upstream failures additionally carry the collaborator's status and
// message.
func writeOperationError(w http.ResponseWriter, err error) {
	status := pipeline.ErrorStatus(err)
	resp := ErrorResponse{Error: err.Error()}

	var oerr *pipeline.Error
	if errors.As(err, &oerr) && oerr.UpstreamStatus != 0 {
		resp.Error = oerr.Reason
		resp.UpstreamStatus = oerr.UpstreamStatus
		resp.UpstreamReason = oerr.UpstreamReason
	}

	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}
