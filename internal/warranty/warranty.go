// Package warranty computes the status of a service warranty: days
// remaining, elapsed-time progress and an active/warning/expired label.
package warranty

import (
	"math"
	"time"
)

// Status is the tri-state warranty classification.
type Status string

const (
	StatusActive  Status = "active"
	StatusWarning Status = "warning"
	StatusExpired Status = "expired"
)

// Label returns the pt-BR headline shown for s.
func (s Status) Label() string {
	switch s {
	case StatusExpired:
		return "Garantia Expirada"
	case StatusWarning:
		return "Garantia Perto do Vencimento"
	default:
		return "Garantia Ativa"
	}
}

// WarningDays is the number of remaining days at or below which an
// unexpired warranty is reported as StatusWarning.
const WarningDays = 30

// DateLayout is the dd/mm/yyyy layout used for every displayed warranty date.
const DateLayout = "02/01/2006"

const day = 24 * time.Hour

// FormatDate renders t with DateLayout.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// Window is the interval between the start of the service day and the end of
// the expiration day. The zero value is not useful; use NewWindow.
type Window struct {
	start      time.Time
	expiration time.Time
	months     int
}

// NewWindow normalizes start to midnight of its calendar day (in start's own
// location) and derives the expiration as start plus months calendar months,
// at 23:59:59.999 of that day.
//
// A months value below 1 yields a degenerate window that always evaluates to
// StatusExpired with 100% progress.
func NewWindow(start time.Time, months int) Window {
	s := startOfDay(start)
	return Window{
		start:      s,
		expiration: endOfDay(AddCalendarMonths(s, months)),
		months:     months,
	}
}

// Start returns the normalized start instant.
func (w Window) Start() time.Time { return w.start }

// Expiration returns the inclusive end of the warranty.
func (w Window) Expiration() time.Time { return w.expiration }

// Months returns the configured duration.
func (w Window) Months() int { return w.months }

// Degenerate reports whether the window was built with a duration below one
// month.
func (w Window) Degenerate() bool { return w.months < 1 }

// Snapshot is the warranty state as of one evaluation instant.
type Snapshot struct {
	DaysRemaining   int       `json:"days_remaining"`
	ProgressPercent float64   `json:"progress_percent"`
	Status          Status    `json:"status"`
	Start           time.Time `json:"start"`
	Expiration      time.Time `json:"expiration"`
	EvaluatedAt     time.Time `json:"evaluated_at"`
}

// DisplayDays is the counter shown to the user: zero once expired, never
// negative.
func (s Snapshot) DisplayDays() int {
	if s.Status == StatusExpired || s.DaysRemaining < 0 {
		return 0
	}
	return s.DaysRemaining
}

// Evaluate computes the warranty state at now.
func (w Window) Evaluate(now time.Time) Snapshot {
	left := w.expiration.Sub(now)
	total := w.expiration.Sub(w.start)

	// A partial day left still counts as one full day.
	days := int(math.Ceil(float64(left) / float64(day)))

	var progress float64
	if w.Degenerate() || left <= 0 || total <= 0 {
		progress = 100
	} else {
		elapsed := total - left
		progress = float64(elapsed) / float64(total) * 100
	}
	progress = math.Max(0, math.Min(100, progress))

	status := classify(days)
	if w.Degenerate() {
		status = StatusExpired
		if days > 0 {
			days = 0
		}
	}

	return Snapshot{
		DaysRemaining:   days,
		ProgressPercent: progress,
		Status:          status,
		Start:           w.start,
		Expiration:      w.expiration,
		EvaluatedAt:     now,
	}
}

func classify(days int) Status {
	switch {
	case days <= 0:
		return StatusExpired
	case days <= WarningDays:
		return StatusWarning
	default:
		return StatusActive
	}
}

// AddCalendarMonths adds months calendar months to t, keeping the time of day.
// When the day of month does not exist in the target month it is clamped to
// the target month's last day, so Jan 31 + 1 month is Feb 28 (or 29).
func AddCalendarMonths(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	target := time.Date(y, m+time.Month(months), 1, 0, 0, 0, 0, t.Location())
	if last := daysIn(target.Year(), target.Month(), t.Location()); d > last {
		d = last
	}
	return time.Date(target.Year(), target.Month(), d,
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, int(999*time.Millisecond), t.Location())
}
