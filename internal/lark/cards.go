package lark

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/web3-frozen/chain-activity/internal/activity"
)

// Card is a Lark interactive message card.
type Card struct {
	Header   Header    `json:"header"`
	Elements []Element `json:"elements"`
}

type Header struct {
	Title    Text   `json:"title"`
	Template string `json:"template"`
}

type Text struct {
	Tag     string `json:"tag"`
	Content string `json:"content"`
}

type Element struct {
	Tag  string `json:"tag"`
	Text *Text  `json:"text,omitempty"`
}

func plain(s string) Text { return Text{Tag: "plain_text", Content: s} }

func div(s string) Element {
	t := plain(s)
	return Element{Tag: "div", Text: &t}
}

var hr = Element{Tag: "hr"}

// FormatNumber abbreviates n with K or M and one decimal.
func FormatNumber(n uint64) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	case n >= 1_000:
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	}
	return strconv.FormatUint(n, 10)
}

func rank(i int) string {
	switch i {
	case 0:
		return "🥇"
	case 1:
		return "🥈"
	case 2:
		return "🥉"
	}
	return fmt.Sprintf("%d.", i+1)
}

func growth(n uint64) string {
	if n == 0 {
		return "➖ 0"
	}
	return "📈 +" + FormatNumber(n)
}

// StatsCard ranks projects by lifetime transaction count.
func StatsCard(rep *activity.TotalsReport, loc *time.Location) Card {
	s := rep.Summary
	elements := []Element{
		div(fmt.Sprintf("📊 HashKey Chain project stats\n🕐 Updated: %s\n\n📈 Overview:\n• Projects: %d\n• Gas used: %s\n• Transactions: %s\n• Token transfers: %s",
			rep.GeneratedAt.In(loc).Format("2006-01-02 15:04:05"), s.Projects,
			FormatNumber(s.Totals.GasUsed), FormatNumber(s.Totals.TransactionsCount), FormatNumber(s.Totals.TokenTransfersCount))),
		hr,
	}
	for i, p := range rep.Projects {
		text := fmt.Sprintf("%s %s\n", rank(i), p.Name)
		if p.Description != "" {
			text += "📄 " + p.Description + "\n"
		}
		text += fmt.Sprintf("💰 Gas used: %s\n📈 Transactions: %s\n🔄 Transfers: %s\n📋 Contracts: %d",
			FormatNumber(p.Totals.GasUsed), FormatNumber(p.Totals.TransactionsCount),
			FormatNumber(p.Totals.TokenTransfersCount), p.ContractCount)
		if len(p.Diagnostics) > 0 {
			text += fmt.Sprintf("\n⚠️ %d contract(s) unavailable", len(p.Diagnostics))
		}
		elements = append(elements, div(text))
		if i < len(rep.Projects)-1 {
			elements = append(elements, hr)
		}
	}
	return Card{
		Header:   Header{Title: plain("🚀 HashKey Chain ecosystem stats"), Template: "blue"},
		Elements: elements,
	}
}

// DailyCard lists net growth per active project. ok is false when no
// project grew, in which case nothing should be sent.
func DailyCard(rep *activity.Report) (card Card, ok bool) {
	if !rep.HasChanges() {
		return Card{}, false
	}
	elements := []Element{
		div(fmt.Sprintf("📊 HashKey Chain daily net growth\n📅 Date: %s\n🕐 Updated: %s\n🧱 Blocks: %d → %d",
			rep.Date, rep.GeneratedAt.Format("2006-01-02 15:04:05"), rep.FromBlock, rep.ToBlock)),
		hr,
	}
	for i, d := range rep.Deltas {
		elements = append(elements, div(fmt.Sprintf(
			"🔥 %s\n💰 Gas growth: %s\n📈 Transaction growth: %s\n🔄 Transfer growth: %s\n\nCumulative at end of day:\n• Gas: %s\n• Transactions: %s\n• Transfers: %s",
			d.Project, growth(d.Growth.GasUsed), growth(d.Growth.TransactionsCount), growth(d.Growth.TokenTransfersCount),
			FormatNumber(d.Cumulative.GasUsed), FormatNumber(d.Cumulative.TransactionsCount), FormatNumber(d.Cumulative.TokenTransfersCount))))
		if i < len(rep.Deltas)-1 {
			elements = append(elements, hr)
		}
	}
	if lines := LiquidityLines(rep.Liquidity); len(lines) > 0 {
		elements = append(elements, hr, div("🌉 Bridge liquidity\n"+strings.Join(lines, "\n")))
	}
	if n := len(rep.Diagnostics); n > 0 {
		elements = append(elements, hr, div(fmt.Sprintf("⚠️ %d degraded measurement(s); figures may be incomplete", n)))
	}
	return Card{
		Header:   Header{Title: plain("📈 HashKey Chain daily report"), Template: "green"},
		Elements: elements,
	}, true
}

// LiquidityLines renders one line per bridge.
func LiquidityLines(recs []activity.LiquidityRecord) []string {
	lines := make([]string, 0, len(recs))
	for _, r := range recs {
		if r.Error != "" {
			detail := r.Error
			if r.Detail != "" {
				detail = r.Detail
			}
			lines = append(lines, fmt.Sprintf("%s liquidity query failed: %s", r.Name, detail))
			continue
		}
		lines = append(lines, fmt.Sprintf("%s liquidity: %s %s", r.Name, r.Balance, r.Symbol))
	}
	return lines
}
