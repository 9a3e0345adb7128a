// Package server exposes completed runs over HTTP: the per-status summary
// and the classified records as GeoJSON.
package server

import (
	"encoding/json"
	"net/http"

	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/breitband-atlas/coverage-cli/internal/model"
	"github.com/breitband-atlas/coverage-cli/internal/store"
)

// Handler builds the HTTP handler. requestsPerSec caps the whole API;
// record payloads can be large and this server is not the hot path.
func Handler(st store.Store, requestsPerSec float64) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("GET /api/runs", func(w http.ResponseWriter, r *http.Request) {
		runs, err := st.ListRuns(r.Context(), store.RunFilter{})
		if err != nil {
			serverError(w, "list runs", err)
			return
		}
		writeJSON(w, http.StatusOK, runsResponse(runs))
	})

	mux.HandleFunc("GET /api/runs/{id}/summary", func(w http.ResponseWriter, r *http.Request) {
		run, err := st.GetRun(r.Context(), r.PathValue("id"))
		if err != nil {
			http.Error(w, `{"error":"run not found"}`, http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"run_id":  run.ID,
			"status":  run.Status,
			"summary": run.Summary,
		})
	})

	mux.HandleFunc("GET /api/runs/{id}/records.geojson", func(w http.ResponseWriter, r *http.Request) {
		records, err := st.ListRecords(r.Context(), r.PathValue("id"))
		if err != nil {
			serverError(w, "list records", err)
			return
		}

		fc := geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(records))}
		for _, rec := range records {
			fc.Features = append(fc.Features, &geojson.Feature{
				ID:       rec.ID,
				Geometry: rec.Geom,
				Properties: map[string]interface{}{
					"cell_id": rec.CellID,
					"status":  string(rec.Status),
					"area_m2": rec.AreaM2,
				},
			})
		}

		w.Header().Set("Content-Type", "application/geo+json")
		if err := json.NewEncoder(w).Encode(&fc); err != nil {
			zap.L().Warn("server: encode records", zap.Error(err))
		}
	})

	return rateLimited(mux, requestsPerSec)
}

func rateLimited(next http.Handler, requestsPerSec float64) http.Handler {
	if requestsPerSec <= 0 {
		return next
	}
	limiter := rate.NewLimiter(rate.Limit(requestsPerSec), int(requestsPerSec)+1)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			http.Error(w, `{"error":"rate limit exceeded"}`, http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type runInfo struct {
	ID        string             `json:"id"`
	Status    model.RunStatus    `json:"status"`
	Summary   []model.StatusArea `json:"summary,omitempty"`
	CreatedAt string             `json:"created_at"`
}

func runsResponse(runs []model.Run) []runInfo {
	out := make([]runInfo, 0, len(runs))
	for _, r := range runs {
		out = append(out, runInfo{
			ID:        r.ID,
			Status:    r.Status,
			Summary:   r.Summary,
			CreatedAt: r.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("server: encode response", zap.Error(err))
	}
}

func serverError(w http.ResponseWriter, action string, err error) {
	zap.L().Error("server: "+action, zap.Error(err))
	http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
}
