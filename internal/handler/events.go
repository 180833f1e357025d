package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/web3-frozen/chain-activity/internal/store"
)

// EventLister reads the subscribable delivery events.
type EventLister interface {
	ListEvents(ctx context.Context) ([]store.Event, error)
}

// ListEvents answers the enabled delivery events a Lark recipient can
// subscribe to: daily_report and stats_report (category "report") and
// liquidity_alert (category "bridge"). ?category= narrows the list.
func ListEvents(s EventLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		events, err := s.ListEvents(r.Context())
		if err != nil {
			http.Error(w, `{"error":"failed to list events"}`, http.StatusInternalServerError)
			return
		}

		out := []store.Event{}
		category := r.URL.Query().Get("category")
		for _, e := range events {
			if category == "" || strings.EqualFold(e.Category, category) {
				out = append(out, e)
			}
		}
		writeJSON(w, http.StatusOK, out)
	}
}
