package httpapi

import (
	"net/http"

	"go.uber.org/zap"

	"casedesk.org/internal/apperr"
	"casedesk.org/internal/audit"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error     errorBody `json:"error"`
	RequestID string    `json:"request_id,omitempty"`
}

var kindStatus = map[apperr.Kind]int{
	apperr.KindAuthentication: http.StatusUnauthorized,
	apperr.KindAuthorization:  http.StatusForbidden,
	apperr.KindValidation:     http.StatusBadRequest,
	apperr.KindConflict:       http.StatusBadRequest,
	apperr.KindNotFound:       http.StatusNotFound,
	apperr.KindInternal:       http.StatusInternalServerError,
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(k apperr.Kind) int {
	if s, ok := kindStatus[k]; ok {
		return s
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		Error:     errorBody{Code: code, Message: message},
		RequestID: audit.RequestIDFromContext(r.Context()),
	})
}

// fail writes err as the error envelope. Internal failures are logged and
// reported to the caller without their cause.
func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	e, ok := apperr.As(err)
	if !ok {
		e = apperr.Internal(err, "internal error")
	}
	if e.Kind == apperr.KindInternal {
		a.logger.Error("request failed",
			zap.String("request_id", audit.RequestIDFromContext(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, apperr.CodeInternal, e.Message)
		return
	}
	writeError(w, r, StatusFor(e.Kind), e.Code, e.Message)
}
