package api

import (
	"net/http"

	"git.sr.ht/~jakintosh/tollgate/internal/metrics"
	"git.sr.ht/~jakintosh/tollgate/internal/service"
	"github.com/gorilla/mux"
)

func (a *API) Router() http.Handler {
	r := mux.NewRouter()
	r.Use(a.recoverPanics, a.withRequestID, a.accessLog)

	r.HandleFunc("/", a.Root()).Methods("GET")
	r.HandleFunc("/health", a.Health()).Methods("GET")
	r.Handle("/metrics", metrics.Handler()).Methods("GET")

	r.HandleFunc("/token", a.Token()).Methods("POST")
	r.Handle("/protected", a.requireBearer(a.Protected())).Methods("GET")

	iap := r.PathPrefix("/iap").Subrouter()
	iap.HandleFunc("/products", a.Products()).Methods("GET")
	iap.HandleFunc("/receipts/verify", a.VerifyReceipt()).Methods("POST")

	muse := r.PathPrefix("/mech-muse").Subrouter()
	muse.Handle("/creatures/generate",
		a.requireBearer(a.requireEntitlement(service.MechMuseEntitlement, a.GenerateCreature())),
	).Methods("POST")

	r.Handle("/usage/{subscriptionId}", a.requireBearer(a.requireAdmin(a.Usage()))).Methods("GET")

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeDetail(w, http.StatusNotFound, "Not Found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeDetail(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	})
	return r
}
