package activity

import (
	"fmt"
	"time"
)

// Mode selects which day a daily report covers.
type Mode string

const (
	// ModeToday reports the day that ended at today's midnight.
	ModeToday Mode = "today"
	// ModeYesterday reports the day before that.
	ModeYesterday Mode = "yesterday"
)

// ParseMode accepts "today", "yesterday" or empty (today).
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeToday:
		return ModeToday, nil
	case ModeYesterday:
		return ModeYesterday, nil
	}
	return "", fmt.Errorf("unknown report mode %q", s)
}

// Window holds the three local midnights a daily report is built from.
type Window struct {
	DayBefore time.Time `json:"day_before"`
	Yesterday time.Time `json:"yesterday"`
	Today     time.Time `json:"today"`
}

// DayBoundaries computes local midnights in loc with calendar arithmetic,
// so DST transitions shift the instant rather than the date.
func DayBoundaries(now time.Time, loc *time.Location) Window {
	local := now.In(loc)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return Window{
		DayBefore: today.AddDate(0, 0, -2),
		Yesterday: today.AddDate(0, 0, -1),
		Today:     today,
	}
}

// Span returns the boundaries a mode diffs and the day being reported.
func (w Window) Span(mode Mode) (earlier, later time.Time) {
	if mode == ModeYesterday {
		return w.DayBefore, w.Yesterday
	}
	return w.Yesterday, w.Today
}

// Date is the reported day formatted as YYYY-MM-DD.
func (w Window) Date(mode Mode) string {
	earlier, _ := w.Span(mode)
	return earlier.Format("2006-01-02")
}

// BoundaryBlocks are the estimated heights at each boundary.
type BoundaryBlocks struct {
	DayBefore uint64 `json:"day_before"`
	Yesterday uint64 `json:"yesterday"`
	Today     uint64 `json:"today"`
}

// Span returns the block pair a mode diffs.
func (b BoundaryBlocks) Span(mode Mode) (earlier, later uint64) {
	if mode == ModeYesterday {
		return b.DayBefore, b.Yesterday
	}
	return b.Yesterday, b.Today
}
