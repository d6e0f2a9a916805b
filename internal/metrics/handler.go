package metrics

import (
	"encoding/json"
	"net/http"
	"strings"
)

// Handler serves the registry over HTTP.
//
// GET /metrics negotiates on the Accept header: anything mentioning
// application/json (or any /json subtype) gets the structured snapshot,
// everything else gets the Prometheus text form. GET /metrics/json always
// returns the snapshot.
func (r *Registry) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", r.serveNegotiated)
	mux.HandleFunc("/metrics/json", r.serveJSON)
	return mux
}

func (r *Registry) serveNegotiated(w http.ResponseWriter, req *http.Request) {
	accept := req.Header.Get("Accept")
	if strings.Contains(accept, "application/json") || strings.Contains(accept, "/json") {
		r.serveJSON(w, req)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(r.Prometheus()))
}

func (r *Registry) serveJSON(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(r.Snapshot())
}
