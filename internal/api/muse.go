package api

import (
	"net/http"

	"git.sr.ht/~jakintosh/tollgate/internal/muse"
)

// GenerateCreature proxies a stat block request. The reply body is the
// generated stat block itself.
func (a *API) GenerateCreature() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := muse.Request{}
		if ok := decodeRequest(a, &req, w, r); !ok {
			return
		}

		statBlock, err := a.service.Generate(r.Context(), claimsFrom(r.Context()), req)
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		returnJson(statBlock, w)
	}
}
