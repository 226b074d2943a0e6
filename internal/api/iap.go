package api

import (
	"net/http"

	"git.sr.ht/~jakintosh/tollgate/internal/service"
)

func (a *API) Products() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		returnJson(a.service.Products(), w)
	}
}

func (a *API) VerifyReceipt() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := service.ReceiptRequest{}
		if ok := decodeRequest(a, &req, w, r); !ok {
			return
		}

		resp, err := a.service.VerifyReceipt(r.Context(), req)
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		returnJson(resp, w)
	}
}
