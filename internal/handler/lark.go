package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/web3-frozen/chain-activity/internal/activity"
	"github.com/web3-frozen/chain-activity/internal/lark"
	"github.com/web3-frozen/chain-activity/internal/senders"
)

const maxWebhookBody = 1 << 20

// Messenger sends Lark messages.
type Messenger interface {
	SendCard(ctx context.Context, t lark.Target, card lark.Card) (string, error)
}

type recipientRequest struct {
	ChatID string `json:"chat_id"`
	UserID string `json:"user_id"`
	Mode   string `json:"mode"`
}

func decodeRecipient(w http.ResponseWriter, r *http.Request) (recipientRequest, lark.Target, bool) {
	var req recipientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
		return req, lark.Target{}, false
	}
	target, err := lark.TargetFrom(req.ChatID, req.UserID)
	if err != nil {
		http.Error(w, `{"error":"chat_id or user_id is required"}`, http.StatusBadRequest)
		return req, lark.Target{}, false
	}
	return req, target, true
}

func sendFailed(w http.ResponseWriter, logger *slog.Logger, err error) {
	if errors.Is(err, lark.ErrNotConfigured) {
		http.Error(w, `{"error":"lark is not configured"}`, http.StatusServiceUnavailable)
		return
	}
	logger.Error("lark send failed", "error", err)
	writeError(w, http.StatusBadGateway, "failed to send message: "+err.Error())
}

// SendStats sends the lifetime stats card to a chat or user.
func SendStats(a Activity, m Messenger, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, target, ok := decodeRecipient(w, r)
		if !ok {
			return
		}
		rep, err := a.ProjectTotals(r.Context())
		if err != nil {
			logger.Error("totals report failed", "error", err)
			http.Error(w, `{"error":"failed to build stats"}`, http.StatusInternalServerError)
			return
		}
		msgID, err := m.SendCard(r.Context(), target, lark.StatsCard(rep, a.Location()))
		if err != nil {
			sendFailed(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success":    true,
			"message":    "stats sent",
			"message_id": msgID,
			"summary":    rep.Summary,
		})
	}
}

// SendDailyStats sends the daily growth card. Nothing is sent when no
// project grew.
func SendDailyStats(a Activity, m Messenger, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, target, ok := decodeRecipient(w, r)
		if !ok {
			return
		}
		mode, err := activity.ParseMode(req.Mode)
		if err != nil {
			http.Error(w, `{"error":"mode must be today or yesterday"}`, http.StatusBadRequest)
			return
		}
		rep, err := a.RunDailyReport(r.Context(), mode)
		if err != nil {
			logger.Error("daily report failed", "mode", mode, "error", err)
			http.Error(w, `{"error":"failed to build daily report"}`, http.StatusInternalServerError)
			return
		}
		card, ok := lark.DailyCard(rep)
		if !ok {
			writeJSON(w, http.StatusOK, map[string]any{
				"success":     true,
				"message":     "no changes, nothing sent",
				"date":        rep.Date,
				"has_changes": false,
			})
			return
		}
		msgID, err := m.SendCard(r.Context(), target, card)
		if err != nil {
			sendFailed(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success":     true,
			"message":     "daily stats sent",
			"message_id":  msgID,
			"date":        rep.Date,
			"has_changes": true,
			"summary":     rep.Summary,
		})
	}
}

// LarkWebhook accepts Lark event callbacks.
func LarkWebhook(wh http.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBody)
		wh.ServeHTTP(w, r)
	}
}

// ListSenders answers the captured message senders, or one of them with
// ?user_id=.
func ListSenders(s senders.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if id := r.URL.Query().Get("user_id"); id != "" {
			snd, err := s.Get(r.Context(), id)
			if errors.Is(err, senders.ErrNotFound) {
				http.Error(w, `{"error":"sender not found"}`, http.StatusNotFound)
				return
			}
			if err != nil {
				http.Error(w, `{"error":"failed to read senders"}`, http.StatusInternalServerError)
				return
			}
			writeJSON(w, http.StatusOK, snd)
			return
		}
		all, err := s.List(r.Context())
		if err != nil {
			http.Error(w, `{"error":"failed to read senders"}`, http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"count": len(all), "senders": all})
	}
}
