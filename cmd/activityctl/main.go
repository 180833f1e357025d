// Command activityctl prints chain activity reports to the terminal.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/web3-frozen/chain-activity/internal/activity"
	"github.com/web3-frozen/chain-activity/internal/app"
	"github.com/web3-frozen/chain-activity/internal/config"
	"github.com/web3-frozen/chain-activity/internal/lark"
)

func main() {
	mode := flag.String("mode", "today", "report to print: today, yesterday, totals or liquidity")
	asJSON := flag.Bool("json", false, "print raw JSON instead of tables")
	verbose := flag.Bool("v", false, "log progress to stderr")
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine := app.Build(ctx, config.Load(), logger)
	defer engine.Close()

	if err := run(ctx, engine.Aggregator, *mode, *asJSON, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "activityctl:", err)
		os.Exit(1)
	}
}

// source is the subset of the aggregator the CLI reads from.
type source interface {
	RunDailyReport(ctx context.Context, mode activity.Mode) (*activity.Report, error)
	ProjectTotals(ctx context.Context) (*activity.TotalsReport, error)
	Liquidity(ctx context.Context) ([]activity.LiquidityRecord, error)
}

func run(ctx context.Context, src source, mode string, asJSON bool, out io.Writer) error {
	var (
		v      any
		render func()
	)
	switch mode {
	case "totals":
		rep, err := src.ProjectTotals(ctx)
		if err != nil {
			return err
		}
		v, render = rep, func() { renderTotals(out, rep) }
	case "liquidity":
		recs, err := src.Liquidity(ctx)
		if err != nil {
			return err
		}
		v, render = recs, func() { renderLiquidity(out, recs) }
	default:
		m, err := activity.ParseMode(mode)
		if err != nil {
			return err
		}
		rep, err := src.RunDailyReport(ctx, m)
		if err != nil {
			return err
		}
		v, render = rep, func() { renderDaily(out, rep) }
	}

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	render()
	return nil
}

func newTable(out io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleLight)
	return t
}

func renderDaily(out io.Writer, rep *activity.Report) {
	fmt.Fprintf(out, "Daily net growth for %s (%s), blocks %d → %d\n", rep.Date, rep.Timezone, rep.FromBlock, rep.ToBlock)
	if !rep.HasChanges() {
		fmt.Fprintln(out, "No project grew in this period.")
	} else {
		t := newTable(out)
		t.AppendHeader(table.Row{"Project", "Gas +", "Tx +", "Transfers +", "Gas total", "Tx total", "Transfers total", "Anomalies"})
		for _, d := range rep.Deltas {
			t.AppendRow(table.Row{
				d.Project,
				d.Growth.GasUsed, d.Growth.TransactionsCount, d.Growth.TokenTransfersCount,
				lark.FormatNumber(d.Cumulative.GasUsed), lark.FormatNumber(d.Cumulative.TransactionsCount), lark.FormatNumber(d.Cumulative.TokenTransfersCount),
				len(d.Anomalies),
			})
		}
		t.AppendFooter(table.Row{
			fmt.Sprintf("%d/%d active", rep.Summary.ActiveProjects, rep.Summary.Projects),
			rep.Summary.Growth.GasUsed, rep.Summary.Growth.TransactionsCount, rep.Summary.Growth.TokenTransfersCount,
		})
		t.Render()
	}
	renderDiagnostics(out, rep.Diagnostics)
}

func renderTotals(out io.Writer, rep *activity.TotalsReport) {
	t := newTable(out)
	t.AppendHeader(table.Row{"#", "Project", "Contracts", "Gas used", "Transactions", "Token transfers"})
	for i, p := range rep.Projects {
		t.AppendRow(table.Row{i + 1, p.Name, p.ContractCount, p.Totals.GasUsed, p.Totals.TransactionsCount, p.Totals.TokenTransfersCount})
	}
	t.AppendFooter(table.Row{"", "Total", rep.Summary.Contracts, rep.Summary.Totals.GasUsed, rep.Summary.Totals.TransactionsCount, rep.Summary.Totals.TokenTransfersCount})
	t.Render()
	renderDiagnostics(out, rep.Diagnostics)
}

func renderLiquidity(out io.Writer, recs []activity.LiquidityRecord) {
	t := newTable(out)
	t.AppendHeader(table.Row{"Bridge", "Balance", "Symbol", "Error"})
	for _, r := range recs {
		errText := r.Error
		if r.Detail != "" {
			errText = r.Error + ": " + r.Detail
		}
		t.AppendRow(table.Row{r.Name, r.Balance, r.Symbol, errText})
	}
	t.Render()
}

func renderDiagnostics(out io.Writer, diags []activity.Diagnostic) {
	if len(diags) == 0 {
		return
	}
	fmt.Fprintf(out, "%d degraded measurement(s):\n", len(diags))
	for _, d := range diags {
		fmt.Fprintln(out, "  -", d.String())
	}
}
