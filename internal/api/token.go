package api

import (
	"fmt"
	"net/http"

	"git.sr.ht/~jakintosh/tollgate/internal/service"
)

type ProtectedResponse struct {
	Message string `json:"message"`
}

func (a *API) Token() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := service.TokenRequest{}
		if ok := decodeRequest(a, &req, w, r); !ok {
			return
		}

		resp, err := a.service.IssueToken(r.Context(), req)
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		returnJson(resp, w)
	}
}

func (a *API) Protected() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := claimsFrom(r.Context())
		response := ProtectedResponse{
			Message: fmt.Sprintf("Hello, %s. Access granted.", claims.Subject),
		}
		returnJson(&response, w)
	}
}
