// Package api is the HTTP boundary of the token gateway. Handlers decode
// JSON, call the service and translate its errors into
// {"detail": "..."} bodies with the mapped status.
package api

import (
	"encoding/json"
	"net/http"

	"git.sr.ht/~jakintosh/tollgate/internal/logger"
	"git.sr.ht/~jakintosh/tollgate/internal/service"
)

type API struct {
	service *service.Service
	log     logger.Logger
}

func New(
	svc *service.Service,
	log logger.Logger,
) *API {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &API{
		service: svc,
		log:     log,
	}
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func decodeRequest[T any](
	a *API,
	req *T,
	w http.ResponseWriter,
	r *http.Request,
) bool {
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(req); err != nil {
		a.logApiErr(r, "bad json request", err)
		writeDetail(w, http.StatusBadRequest, "Malformed JSON body")
		return false
	}
	return true
}

func returnJson(
	data any,
	w http.ResponseWriter,
) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
}

// writeError renders a service error. Unauthenticated responses carry a
// bearer challenge.
func (a *API) writeError(
	w http.ResponseWriter,
	r *http.Request,
	err error,
) {
	status := service.StatusCode(err)
	if status >= http.StatusInternalServerError {
		a.logApiErr(r, "request failed", err)
	}
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	writeDetail(w, status, service.Detail(err))
}

func writeDetail(
	w http.ResponseWriter,
	status int,
	detail string,
) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Detail: detail})
}

func (a *API) logApiErr(
	r *http.Request,
	msg string,
	err error,
) {
	a.log.WithError(err).Warn(msg, map[string]interface{}{
		"method":     r.Method,
		"path":       r.URL.Path,
		"request_id": requestID(r.Context()),
	})
}
