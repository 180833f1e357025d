package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/web3-frozen/chain-activity/internal/activity"
	"github.com/web3-frozen/chain-activity/internal/lark"
	"github.com/web3-frozen/chain-activity/internal/registry"
)

// Activity is the read side of the aggregation engine.
type Activity interface {
	Location() *time.Location
	Boundaries(ctx context.Context) activity.Boundaries
	RunDailyReport(ctx context.Context, mode activity.Mode) (*activity.Report, error)
	ProjectTotals(ctx context.Context) (*activity.TotalsReport, error)
	ProjectDetail(ctx context.Context, name string) (*activity.ProjectTotals, error)
	ContractCount() (int, error)
	Balances(ctx context.Context) ([]activity.BalanceRecord, error)
	Liquidity(ctx context.Context) ([]activity.LiquidityRecord, error)
}

// Contracts answers the configured address count, or one project's
// per-contract lifetime stats when ?project= is set.
func Contracts(a Activity, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Query().Get("project")
		if name == "" {
			total, err := a.ContractCount()
			if err != nil {
				logger.Error("contract count failed", "error", err)
				http.Error(w, `{"error":"failed to load projects"}`, http.StatusInternalServerError)
				return
			}
			writeJSON(w, http.StatusOK, map[string]int{"total": total})
			return
		}

		detail, err := a.ProjectDetail(r.Context(), name)
		if errors.Is(err, registry.ErrProjectNotFound) {
			http.Error(w, `{"error":"project not found"}`, http.StatusNotFound)
			return
		}
		if err != nil {
			logger.Error("project detail failed", "project", name, "error", err)
			http.Error(w, `{"error":"failed to load projects"}`, http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, detail)
	}
}

// ContractsTotal answers the full lifetime totals report.
func ContractsTotal(a Activity, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rep, err := a.ProjectTotals(r.Context())
		if err != nil {
			logger.Error("totals report failed", "error", err)
			http.Error(w, `{"error":"failed to build totals"}`, http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, rep)
	}
}

// ProjectStats answers the projects ranked by transaction count.
func ProjectStats(a Activity, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rep, err := a.ProjectTotals(r.Context())
		if err != nil {
			logger.Error("project stats failed", "error", err)
			http.Error(w, `{"error":"failed to build project stats"}`, http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"generated_at": rep.GeneratedAt,
			"projects":     rep.Projects,
			"summary":      rep.Summary,
		})
	}
}

// DailyStats answers the daily report for ?mode=today|yesterday.
func DailyStats(a Activity, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mode, err := activity.ParseMode(r.URL.Query().Get("mode"))
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
		writeJSON(w, http.StatusOK, rep)
	}
}

func Balances(a Activity, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		recs, err := a.Balances(r.Context())
		if err != nil {
			logger.Error("balances failed", "error", err)
			http.Error(w, `{"error":"failed to read balances"}`, http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"balances": recs})
	}
}

// Liquidity answers bridge liquidity records, or Lark-ready text lines
// with ?format=text.
func Liquidity(a Activity, logger *slog.Logger) http.HandlerFunc {
	return liquidity(a, logger, false)
}

// LarkLiquidity always answers the text lines.
func LarkLiquidity(a Activity, logger *slog.Logger) http.HandlerFunc {
	return liquidity(a, logger, true)
}

func liquidity(a Activity, logger *slog.Logger, text bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		recs, err := a.Liquidity(r.Context())
		if err != nil {
			logger.Error("liquidity failed", "error", err)
			http.Error(w, `{"error":"failed to read liquidity"}`, http.StatusInternalServerError)
			return
		}
		if text || r.URL.Query().Get("format") == "text" {
			writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": lark.LiquidityLines(recs)})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"liquidity": recs})
	}
}

// DebugBlocks answers the current window, its estimated blocks and the head.
func DebugBlocks(a Activity) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, a.Boundaries(r.Context()))
	}
}

// CheckTime answers the window boundaries in UTC and the reporting timezone.
func CheckTime(a Activity, now func() time.Time) http.HandlerFunc {
	type boundaries struct {
		DayBefore string `json:"day_before"`
		Yesterday string `json:"yesterday"`
		Today     string `json:"today"`
	}
	format := func(win activity.Window, loc *time.Location) boundaries {
		return boundaries{
			DayBefore: win.DayBefore.In(loc).Format(time.RFC3339),
			Yesterday: win.Yesterday.In(loc).Format(time.RFC3339),
			Today:     win.Today.In(loc).Format(time.RFC3339),
		}
	}
	return func(w http.ResponseWriter, r *http.Request) {
		loc := a.Location()
		t := now()
		win := activity.DayBoundaries(t, loc)
		writeJSON(w, http.StatusOK, map[string]any{
			"timezone": loc.String(),
			"now": map[string]any{
				"utc":   t.UTC().Format(time.RFC3339),
				"local": t.In(loc).Format(time.RFC3339),
				"unix":  t.Unix(),
			},
			"utc":            format(win, time.UTC),
			"local":          format(win, loc),
			"local_hour":     t.In(loc).Hour(),
			"yesterday_date": win.Date(activity.ModeYesterday),
			"today_date":     win.Date(activity.ModeToday),
		})
	}
}
