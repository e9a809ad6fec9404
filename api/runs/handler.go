// Package runs exposes the run log and on-demand optimization over HTTP.
package runs

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/kilianp07/agriwater/core/optimizer"
	"github.com/kilianp07/agriwater/core/runlog"
)

// Querier reads the run log.
type Querier interface {
	Runs(ctx context.Context, q runlog.Query) ([]runlog.Record, error)
}

// Optimizer runs the configured optimization.
type Optimizer interface {
	Optimize(ctx context.Context) (*optimizer.Result, error)
}

// authorized checks the "Bearer <token>" header when token is non-empty.
func authorized(w http.ResponseWriter, r *http.Request, token string) bool {
	if token == "" {
		return true
	}
	got := []byte(r.Header.Get("Authorization"))
	if subtle.ConstantTimeCompare(got, []byte("Bearer "+token)) == 1 {
		return true
	}
	http.Error(w, "unauthorized", http.StatusUnauthorized)
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// NewRunsHandler serves GET /api/runs. Query parameters: start and end
// (RFC 3339), status, run_id and limit. Schedules are included only with
// full=true.
func NewRunsHandler(store Querier, token string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if !authorized(w, r, token) {
			return
		}
		params := r.URL.Query()
		q := runlog.Query{Status: params.Get("status"), RunID: params.Get("run_id")}
		for name, dst := range map[string]*time.Time{"start": &q.Start, "end": &q.End} {
			if s := params.Get(name); s != "" {
				t, err := time.Parse(time.RFC3339, s)
				if err != nil {
					http.Error(w, "invalid "+name, http.StatusBadRequest)
					return
				}
				*dst = t
			}
		}
		if s := params.Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n < 0 {
				http.Error(w, "invalid limit", http.StatusBadRequest)
				return
			}
			q.Limit = n
		}
		records, err := store.Runs(r.Context(), q)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if params.Get("full") != "true" {
			for i := range records {
				records[i].Schedule = nil
			}
		}
		if records == nil {
			records = []runlog.Record{}
		}
		writeJSON(w, http.StatusOK, records)
	})
}

// NewOptimizeHandler serves POST /api/optimize. Failed runs answer 422 with
// the failure code and reason.
func NewOptimizeHandler(opt Optimizer, token string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if !authorized(w, r, token) {
			return
		}
		res, err := opt.Optimize(r.Context())
		if err != nil {
			var f *optimizer.Failure
			if errors.As(err, &f) {
				writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
					"run_id": f.RunID,
					"status": f.Status.String(),
					"error":  f.Code(),
					"reason": f.Reason,
				})
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, res)
	})
}
