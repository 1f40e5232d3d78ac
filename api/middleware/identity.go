package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	"imagecurator/api/models"
)

const workerKey contextKey = "worker"

// Identity extracts the requesting worker from headers supplied by the
// authentication layer in front of this service. Requests without an
// identity never reach the registry.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		workerID := r.Header.Get("X-Worker-ID")
		if workerID == "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{
				"error":    "worker identity required",
				"trace_id": GetTraceID(r.Context()),
			})
			return
		}

		role := models.Role(r.Header.Get("X-Worker-Role"))
		if role != models.RoleAdmin {
			role = models.RoleWorker
		}

		worker := models.Worker{ID: workerID, Role: role}
		ctx := context.WithValue(r.Context(), workerKey, worker)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func GetWorker(ctx context.Context) (models.Worker, bool) {
	worker, ok := ctx.Value(workerKey).(models.Worker)
	return worker, ok
}
