package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/web3-frozen/chain-activity/internal/store"
)

var receiveIDTypes = map[string]bool{
	"chat_id":  true,
	"user_id":  true,
	"open_id":  true,
	"union_id": true,
	"email":    true,
}

func ListSubscriptions(s *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		receiveID := r.URL.Query().Get("receive_id")
		if receiveID == "" {
			http.Error(w, `{"error":"receive_id required"}`, http.StatusBadRequest)
			return
		}

		subs, err := s.ListSubscriptions(r.Context(), receiveID)
		if err != nil {
			http.Error(w, `{"error":"failed to list subscriptions"}`, http.StatusInternalServerError)
			return
		}
		if subs == nil {
			subs = []store.Subscription{}
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(subs)
	}
}

func Subscribe(s *store.Store) http.HandlerFunc {
	type request struct {
		ReceiveID     string   `json:"receive_id"`
		ReceiveIDType string   `json:"receive_id_type"`
		EventID       int      `json:"event_id"`
		ReportHour    *int     `json:"report_hour"`
		ThresholdPct  *float64 `json:"threshold_pct"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
			return
		}

		if req.ReceiveID == "" || req.EventID == 0 {
			http.Error(w, `{"error":"receive_id and event_id required"}`, http.StatusBadRequest)
			return
		}
		if req.ReceiveIDType == "" {
			req.ReceiveIDType = "chat_id"
		}
		if !receiveIDTypes[req.ReceiveIDType] {
			http.Error(w, `{"error":"invalid receive_id_type"}`, http.StatusBadRequest)
			return
		}

		hour := 8
		if req.ReportHour != nil {
			hour = *req.ReportHour
		}
		if hour < 0 || hour > 23 {
			http.Error(w, `{"error":"report_hour must be 0-23"}`, http.StatusBadRequest)
			return
		}
		var threshold float64
		if req.ThresholdPct != nil {
			threshold = *req.ThresholdPct
		}
		if threshold < 0 || threshold > 100 {
			http.Error(w, `{"error":"threshold_pct must be 0-100"}`, http.StatusBadRequest)
			return
		}

		sub, err := s.Subscribe(r.Context(), req.ReceiveID, req.ReceiveIDType, req.EventID, hour, threshold)
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, `{"error":"event not found"}`, http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, `{"error":"failed to subscribe"}`, http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(sub)
	}
}

func Unsubscribe(s *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		idStr := chi.URLParam(r, "id")
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			http.Error(w, `{"error":"invalid subscription id"}`, http.StatusBadRequest)
			return
		}

		err = s.Unsubscribe(r.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, `{"error":"subscription not found"}`, http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, `{"error":"failed to unsubscribe"}`, http.StatusInternalServerError)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}
