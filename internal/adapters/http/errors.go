package http

import (
	"errors"
	"net/http"

	"github.com/aretw0/strata/pkg/adapters/executor"
	"github.com/aretw0/strata/pkg/domain"
)

// errInvalidSession rejects session ids that cannot be stored.
var errInvalidSession = errors.New("invalid session id")

// statusFor maps an error to the HTTP status reported to clients.
func statusFor(err error) int {
	var execErr *executor.Error
	switch {
	case errors.As(err, &execErr):
		return execErr.StatusCode
	case errors.Is(err, errInvalidSession),
		errors.Is(err, domain.ErrNoActiveImage),
		errors.Is(err, domain.ErrMissingOperation),
		errors.Is(err, domain.ErrInvalidParameters),
		errors.Is(err, domain.ErrUnsupportedOperation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInputNotFound),
		errors.Is(err, domain.ErrVersionNotFound),
		errors.Is(err, domain.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrStaleParent),
		errors.Is(err, domain.ErrDuplicateVersion):
		return http.StatusConflict
	case errors.Is(err, domain.ErrExecutorUnavailable):
		return http.StatusBadGateway
	default:
		// ErrPersistence, ErrStorageCorruption, ErrInvalidExecutorResponse and the unexpected.
		return http.StatusInternalServerError
	}
}

// writeError reports err. Executor errors are relayed with their own body.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)

	var execErr *executor.Error
	if errors.As(err, &execErr) {
		ct := execErr.ContentType
		if ct == "" {
			ct = "text/plain; charset=utf-8"
		}
		w.Header().Set("Content-Type", ct)
		w.WriteHeader(status)
		w.Write(execErr.Body)
		return
	}

	if status >= http.StatusInternalServerError {
		s.Logger.Error("request failed", "path", r.URL.Path, "session_id", sessionID(r), "err", err)
	} else {
		s.Logger.Warn("request rejected", "path", r.URL.Path, "session_id", sessionID(r), "err", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
