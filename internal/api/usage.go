package api

import (
	"net/http"

	"github.com/gorilla/mux"
)

func (a *API) Usage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subscriptionID := mux.Vars(r)["subscriptionId"]
		record, err := a.service.Usage(r.Context(), subscriptionID)
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		returnJson(record, w)
	}
}
