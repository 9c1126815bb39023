// Package markethours answers whether an exchange session is live, so that
// charts are only refreshed while new bars can appear.
package markethours

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // America/New_York on hosts without zoneinfo
)

// IST is the Indian Standard Time location (UTC+5:30).
var IST = time.FixedZone("IST", 5*3600+30*60)

// Eastern is the US exchange time zone.
var Eastern = loadEastern()

func loadEastern() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.FixedZone("EST", -5*3600)
	}
	return loc
}

// Market is one exchange's regular session.
type Market struct {
	Name     string
	Loc      *time.Location
	Open     int // minutes after midnight, local
	Close    int
	holidays map[string]bool
}

// NSE covers .NS and .BO listings (9:15 – 15:30 IST).
var NSE = &Market{Name: "NSE", Loc: IST, Open: 9*60 + 15, Close: 15*60 + 30, holidays: nseHolidays}

// US covers every other symbol (9:30 – 16:00 New York).
var US = &Market{Name: "US", Loc: Eastern, Open: 9*60 + 30, Close: 16 * 60, holidays: usHolidays}

// Markets lists the known exchanges.
var Markets = []*Market{NSE, US}

// ForSymbol returns the exchange a symbol trades on.
func ForSymbol(symbol string) *Market {
	s := strings.ToUpper(symbol)
	if strings.HasSuffix(s, ".NS") || strings.HasSuffix(s, ".BO") {
		return NSE
	}
	return US
}

// IsHoliday reports whether t's local date is an exchange holiday.
func (m *Market) IsHoliday(t time.Time) bool {
	return m.holidays[t.In(m.Loc).Format("2006-01-02")]
}

// IsTradingDay reports whether t is a weekday and not a holiday.
func (m *Market) IsTradingDay(t time.Time) bool {
	local := t.In(m.Loc)
	wd := local.Weekday()
	return wd != time.Saturday && wd != time.Sunday && !m.IsHoliday(local)
}

// IsOpen reports whether t falls within the regular session.
func (m *Market) IsOpen(t time.Time) bool {
	local := t.In(m.Loc)
	if !m.IsTradingDay(local) {
		return false
	}
	hm := local.Hour()*60 + local.Minute()
	return hm >= m.Open && hm < m.Close
}

func (m *Market) at(day time.Time, minutes int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), minutes/60, minutes%60, 0, 0, m.Loc)
}

// NextOpen returns the next session open at or after t. If t is before today's
// open on a trading day, that is today's open.
func (m *Market) NextOpen(t time.Time) time.Time {
	local := t.In(m.Loc)
	if open := m.at(local, m.Open); local.Before(open) && m.IsTradingDay(local) {
		return open
	}
	d := local.AddDate(0, 0, 1)
	for i := 0; i < 10; i++ { // weekends plus holiday runs
		if m.IsTradingDay(d) {
			return m.at(d, m.Open)
		}
		d = d.AddDate(0, 0, 1)
	}
	return m.at(local.AddDate(0, 0, 1), m.Open)
}

// TimeUntilClose returns the time left in today's session, or 0.
func (m *Market) TimeUntilClose(t time.Time) time.Duration {
	d := m.at(t.In(m.Loc), m.Close).Sub(t)
	if d < 0 {
		return 0
	}
	return d
}

// Status returns a human-readable session status.
func (m *Market) Status(t time.Time) string {
	if m.IsOpen(t) {
		return fmt.Sprintf("%s open, closes in %s", m.Name, fmtDur(m.TimeUntilClose(t)))
	}
	next := m.NextOpen(t)
	local := next.In(m.Loc)
	return fmt.Sprintf("%s closed, opens %s %s (%s)",
		m.Name, local.Weekday().String()[:3], local.Format("15:04"), fmtDur(next.Sub(t)))
}

// IsMarketOpen reports whether any known exchange is in session.
func IsMarketOpen(t time.Time) bool {
	for _, m := range Markets {
		if m.IsOpen(t) {
			return true
		}
	}
	return false
}

// StatusString joins the status of every known exchange.
func StatusString(t time.Time) string {
	parts := make([]string, len(Markets))
	for i, m := range Markets {
		parts[i] = m.Status(t)
	}
	return strings.Join(parts, "; ")
}

func fmtDur(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
