package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/web3-frozen/chain-activity/internal/store"
)

type fakeEvents struct {
	events []store.Event
	err    error
}

func (f fakeEvents) ListEvents(context.Context) ([]store.Event, error) { return f.events, f.err }

func TestListEvents(t *testing.T) {
	seeded := fakeEvents{events: []store.Event{
		{ID: 1, Name: store.EventDailyReport, Category: "report", Enabled: true},
		{ID: 2, Name: store.EventStatsReport, Category: "report", Enabled: true},
		{ID: 3, Name: store.EventLiquidityAlert, Category: "bridge", Enabled: true},
	}}

	tests := []struct {
		name   string
		src    fakeEvents
		target string
		status int
		want   []string
	}{
		{"all", seeded, "/api/events", http.StatusOK, []string{"daily_report", "stats_report", "liquidity_alert"}},
		{"reports", seeded, "/api/events?category=report", http.StatusOK, []string{"daily_report", "stats_report"}},
		{"bridge", seeded, "/api/events?category=Bridge", http.StatusOK, []string{"liquidity_alert"}},
		{"unknown category", seeded, "/api/events?category=nft", http.StatusOK, []string{}},
		{"none seeded", fakeEvents{}, "/api/events", http.StatusOK, []string{}},
		{"store error", fakeEvents{err: errors.New("down")}, "/api/events", http.StatusInternalServerError, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(ListEvents(tt.src), tt.target)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			if tt.want == nil {
				return
			}
			var got []store.Event
			if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d events, want %d", len(got), len(tt.want))
			}
			for i, e := range got {
				if e.Name != tt.want[i] {
					t.Errorf("event %d = %q, want %q", i, e.Name, tt.want[i])
				}
			}
		})
	}
}
