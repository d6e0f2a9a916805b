package balancer

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/Nash0810/minibalance/internal/logging"
	"github.com/Nash0810/minibalance/internal/pool"
	"github.com/Nash0810/minibalance/internal/scheduler"
)

// defaultStatsPeriods is used when /_control/stats has no periods parameter.
const defaultStatsPeriods = "5m,30m,1h,6h,24h,all"

// Control serves the operator endpoints under /_control/.
type Control struct {
	pool *pool.Pool
	log  *logging.Logger
}

// NewControl creates the control-plane handler set.
func NewControl(p *pool.Pool, log *logging.Logger) *Control {
	if log == nil {
		log = logging.NewNop()
	}
	return &Control{pool: p, log: log}
}

// Register mounts the control endpoints on mux.
func (c *Control) Register(mux *http.ServeMux) {
	mux.HandleFunc("/_control/add", c.handleAdd)
	mux.HandleFunc("/_control/remove", c.handleRemove)
	mux.HandleFunc("/_control/scheduler", c.handleScheduler)
	mux.HandleFunc("/_control/list", c.handleList)
	mux.HandleFunc("/_control/stats", c.handleStats)
}

// Handler assembles the main listener: control endpoints plus the proxy as
// the catch-all.
func Handler(proxy *Proxy, control *Control) http.Handler {
	mux := http.NewServeMux()
	control.Register(mux)
	mux.Handle("/", proxy)
	return mux
}

func (c *Control) handleAdd(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body struct {
		URL    string `json:"url"`
		Weight int    `json:"weight"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.URL == "" {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	c.pool.Add(body.URL, body.Weight)
	c.log.Info("backend_added", "url", body.URL, "weight", body.Weight)
	writeJSON(w, map[string]string{"status": "added"})
}

func (c *Control) handleRemove(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.URL == "" {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	c.pool.Remove(body.URL)
	c.log.Info("backend_removed", "url", body.URL)
	writeJSON(w, map[string]string{"status": "removed"})
}

func (c *Control) handleScheduler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body struct {
		Algorithm string `json:"algorithm"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	if err := c.pool.SetScheduler(body.Algorithm); err != nil {
		if errors.Is(err, scheduler.ErrUnknownAlgorithm) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	c.log.Info("scheduler_updated", "algorithm", body.Algorithm)
	writeJSON(w, map[string]string{"status": "scheduler_updated"})
}

func (c *Control) handleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, c.pool.Show())
}

func (c *Control) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	raw := r.URL.Query().Get("periods")
	if raw == "" {
		raw = defaultStatsPeriods
	}
	var periods []string
	for _, p := range strings.Split(raw, ",") {
		periods = append(periods, strings.TrimSpace(p))
	}

	writeJSON(w, c.pool.GetStats(periods))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
