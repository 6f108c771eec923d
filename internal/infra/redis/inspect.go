package redis

import (
	"context"
	"encoding/json"
	"net/http"
)

const inspectPageSize = 100

// deadLetterStore is what the inspection endpoint needs from the
// repository.
type deadLetterStore interface {
	Pending(ctx context.Context, limit int) ([]DeadLetterEntry, error)
	Resolve(ctx context.Context, id string) error
}

// NewInspectHandler exposes the dead-letter queue over HTTP. GET lists
// pending entries oldest first; DELETE with ?id= resolves one after it
// has been replayed (re-run backfill around the recorded signature).
func NewInspectHandler(store deadLetterStore) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			entries, err := store.Pending(r.Context(), inspectPageSize)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			if entries == nil {
				entries = []DeadLetterEntry{}
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]any{
				"entries": entries,
			})

		case http.MethodDelete:
			id := r.URL.Query().Get("id")
			if id == "" {
				http.Error(w, "id is required", http.StatusBadRequest)
				return
			}
			if err := store.Resolve(r.Context(), id); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			w.WriteHeader(http.StatusNoContent)

		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})
}

// InspectHandler returns the inspection endpoint for this repository.
func (r *DeadLetterRepo) InspectHandler() http.Handler {
	return NewInspectHandler(r)
}
