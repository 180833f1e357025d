package lark

import (
	"strings"
	"testing"
	"time"

	"github.com/web3-frozen/chain-activity/internal/activity"
)

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		input uint64
		want  string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1.0K"},
		{1500, "1.5K"},
		{123456, "123.5K"},
		{1000000, "1.0M"},
		{2345678, "2.3M"},
		{1234567890, "1234.6M"},
	}
	for _, tt := range tests {
		if got := FormatNumber(tt.input); got != tt.want {
			t.Errorf("FormatNumber(%d) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func cardText(c Card) string {
	var b strings.Builder
	for _, e := range c.Elements {
		if e.Text != nil {
			b.WriteString(e.Text.Content)
			b.WriteString("\n")
		}
	}
	return b.String()
}

func TestStatsCard(t *testing.T) {
	rep := &activity.TotalsReport{
		GeneratedAt: time.Date(2024, 6, 1, 2, 0, 0, 0, time.UTC),
		Projects: []activity.ProjectTotals{
			{Name: "Big", Description: "dex", ContractCount: 2, Totals: activity.ContractStats{TransactionsCount: 5000}},
			{Name: "Small", ContractCount: 1, Totals: activity.ContractStats{TransactionsCount: 12}},
		},
		Summary: activity.TotalsSummary{Projects: 2, Contracts: 3, Totals: activity.ContractStats{TransactionsCount: 5012}},
	}
	loc := time.FixedZone("CST", 8*3600)
	card := StatsCard(rep, loc)

	if card.Header.Template != "blue" {
		t.Errorf("template = %q", card.Header.Template)
	}
	text := cardText(card)
	for _, want := range []string{"2024-06-01 10:00:00", "🥇 Big", "🥈 Small", "Transactions: 5.0K", "📄 dex"} {
		if !strings.Contains(text, want) {
			t.Errorf("card missing %q:\n%s", want, text)
		}
	}
	// overview, hr, big, hr, small
	if len(card.Elements) != 5 {
		t.Errorf("elements = %d, want 5", len(card.Elements))
	}
}

func TestDailyCard(t *testing.T) {
	rep := &activity.Report{
		Date:      "2024-06-01",
		FromBlock: 100,
		ToBlock:   200,
		Deltas: []activity.DailyDelta{{
			Project:    "Foo",
			Growth:     activity.ContractStats{GasUsed: 500, TransactionsCount: 5},
			Cumulative: activity.ContractStats{GasUsed: 1500, TransactionsCount: 15, TokenTransfersCount: 2},
		}},
		Liquidity: []activity.LiquidityRecord{{Name: "Orbiter", Balance: "10.5", Symbol: "HSK"}},
	}
	card, ok := DailyCard(rep)
	if !ok {
		t.Fatal("DailyCard should be sendable when a project grew")
	}
	text := cardText(card)
	for _, want := range []string{"📅 Date: 2024-06-01", "🔥 Foo", "Gas growth: 📈 +500", "Transfer growth: ➖ 0", "• Gas: 1.5K", "Orbiter liquidity: 10.5 HSK"} {
		if !strings.Contains(text, want) {
			t.Errorf("card missing %q:\n%s", want, text)
		}
	}
}

func TestDailyCardNoChanges(t *testing.T) {
	if _, ok := DailyCard(&activity.Report{Date: "2024-06-01"}); ok {
		t.Error("DailyCard should not be sendable without growth")
	}
}

func TestLiquidityLines(t *testing.T) {
	lines := LiquidityLines([]activity.LiquidityRecord{
		{Name: "A", Balance: "1", Symbol: "HSK"},
		{Name: "B", Error: "InvalidAddress"},
		{Name: "C", Error: "UpstreamUnavailable", Detail: "liquidity: timeout"},
	})
	want := []string{
		"A liquidity: 1 HSK",
		"B liquidity query failed: InvalidAddress",
		"C liquidity query failed: liquidity: timeout",
	}
	if strings.Join(lines, "|") != strings.Join(want, "|") {
		t.Errorf("lines = %q, want %q", lines, want)
	}
}
