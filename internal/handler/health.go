package handler

import (
	"context"
	"net/http"

	"github.com/web3-frozen/chain-activity/internal/registry"
)

// Pinger is a dependency that can report its reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

func Health() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}
}

// Ready checks that the registry loads and, when db is non-nil, that the
// database answers.
func Ready(reg registry.Registry, db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if _, err := reg.Projects(); err != nil {
			http.Error(w, `{"status":"not ready","reason":"projects registry"}`, http.StatusServiceUnavailable)
			return
		}
		if db != nil {
			if err := db.Ping(r.Context()); err != nil {
				http.Error(w, `{"status":"not ready","reason":"database"}`, http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	}
}
