// Package calendar provides US equity market trading-day classification and
// the expected 1-minute candle baseline derived from it. All session times
// are expressed in UTC (regular session 13:30-20:00 UTC, half days close at
// 17:00 UTC) to avoid timezone conversion issues.
package calendar

import "time"

// DayClass classifies a calendar date for the equity market.
type DayClass int

const (
	// Closed covers weekends and market holidays: zero expected candles.
	Closed DayClass = iota
	// Full is a regular 390-minute session.
	Full
	// Half is an early-close 210-minute session.
	Half
)

// String returns the lowercase name of the day class.
func (d DayClass) String() string {
	switch d {
	case Full:
		return "full"
	case Half:
		return "half"
	default:
		return "closed"
	}
}

// Config holds the session geometry. Counts and open time are configuration
// defaults rather than fixed contracts.
type Config struct {
	OpenHourUTC    int
	OpenMinuteUTC  int
	FullDayCandles int
	HalfDayCandles int
}

// DefaultConfig returns the NYSE regular-session geometry.
func DefaultConfig() Config {
	return Config{
		OpenHourUTC:    13,
		OpenMinuteUTC:  30,
		FullDayCandles: 390,
		HalfDayCandles: 210,
	}
}

// Calendar answers trading-day questions for US equities.
type Calendar struct {
	cfg Config
}

// New creates a Calendar with the given session geometry.
func New(cfg Config) *Calendar {
	if cfg.FullDayCandles <= 0 {
		cfg.FullDayCandles = 390
	}
	if cfg.HalfDayCandles <= 0 {
		cfg.HalfDayCandles = 210
	}
	if cfg.OpenHourUTC == 0 && cfg.OpenMinuteUTC == 0 {
		cfg.OpenHourUTC = 13
		cfg.OpenMinuteUTC = 30
	}
	return &Calendar{cfg: cfg}
}

// Classify returns the day class for the given date. Only the date portion
// of t is considered.
func (c *Calendar) Classify(t time.Time) DayClass {
	d := dateOnly(t)
	if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
		return Closed
	}
	if isHoliday(d) {
		return Closed
	}
	if c.isHalfDay(d) {
		return Half
	}
	return Full
}

// IsTradingDay reports whether the market is open at all on the given date.
func (c *Calendar) IsTradingDay(t time.Time) bool {
	return c.Classify(t) != Closed
}

// ExpectedCandleCount returns the number of 1-minute candles a complete
// session on the given date contains.
func (c *Calendar) ExpectedCandleCount(t time.Time) int {
	switch c.Classify(t) {
	case Full:
		return c.cfg.FullDayCandles
	case Half:
		return c.cfg.HalfDayCandles
	default:
		return 0
	}
}

// SessionBounds returns the session open (inclusive) and close (exclusive)
// instants for the given date in UTC. Both are zero for closed days.
func (c *Calendar) SessionBounds(t time.Time) (time.Time, time.Time) {
	class := c.Classify(t)
	if class == Closed {
		return time.Time{}, time.Time{}
	}
	d := dateOnly(t)
	open := time.Date(d.Year(), d.Month(), d.Day(), c.cfg.OpenHourUTC, c.cfg.OpenMinuteUTC, 0, 0, time.UTC)
	minutes := c.cfg.FullDayCandles
	if class == Half {
		minutes = c.cfg.HalfDayCandles
	}
	return open, open.Add(time.Duration(minutes) * time.Minute)
}

// MinuteGrid returns every expected 1-minute candle timestamp for the date's
// session, or nil for closed days.
func (c *Calendar) MinuteGrid(t time.Time) []time.Time {
	open, close := c.SessionBounds(t)
	if open.IsZero() {
		return nil
	}
	grid := make([]time.Time, 0, int(close.Sub(open)/time.Minute))
	for ts := open; ts.Before(close); ts = ts.Add(time.Minute) {
		grid = append(grid, ts)
	}
	return grid
}

// NextTradingDay returns the first trading day at or after t.
func (c *Calendar) NextTradingDay(t time.Time) time.Time {
	d := dateOnly(t)
	for !c.IsTradingDay(d) {
		d = d.AddDate(0, 0, 1)
	}
	return d
}

// PrevTradingDay returns the last trading day at or before t.
func (c *Calendar) PrevTradingDay(t time.Time) time.Time {
	d := dateOnly(t)
	for !c.IsTradingDay(d) {
		d = d.AddDate(0, 0, -1)
	}
	return d
}

// TradingDays returns every trading day in [start, end], inclusive.
func (c *Calendar) TradingDays(start, end time.Time) []time.Time {
	days := make([]time.Time, 0)
	for d := dateOnly(start); !d.After(dateOnly(end)); d = d.AddDate(0, 0, 1) {
		if c.IsTradingDay(d) {
			days = append(days, d)
		}
	}
	return days
}

func dateOnly(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// isHalfDay reports the scheduled early closes: the day after Thanksgiving,
// Christmas Eve, and July 3 when July 4 falls on a weekday.
func (c *Calendar) isHalfDay(d time.Time) bool {
	if d.Month() == time.November && d.Weekday() == time.Friday {
		thanksgiving := nthWeekday(d.Year(), time.November, time.Thursday, 4)
		if d.Equal(thanksgiving.AddDate(0, 0, 1)) {
			return true
		}
	}

	if d.Month() == time.December && d.Day() == 24 && isWeekday(d) && !isHoliday(d) {
		return true
	}

	if d.Month() == time.July && d.Day() == 3 && isWeekday(d) {
		july4 := time.Date(d.Year(), time.July, 4, 0, 0, 0, 0, time.UTC)
		if isWeekday(july4) && !isHoliday(d) {
			return true
		}
	}

	return false
}

// isHoliday reports NYSE full-closure holidays with weekend observance
// shifts (Saturday observed Friday, Sunday observed Monday).
func isHoliday(d time.Time) bool {
	year := d.Year()

	holidays := []time.Time{
		observed(time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)),
		nthWeekday(year, time.January, time.Monday, 3),  // Martin Luther King Jr. Day
		nthWeekday(year, time.February, time.Monday, 3), // Presidents Day
		easterSunday(year).AddDate(0, 0, -2),            // Good Friday
		lastWeekday(year, time.May, time.Monday),        // Memorial Day
		observed(time.Date(year, time.July, 4, 0, 0, 0, 0, time.UTC)),
		nthWeekday(year, time.September, time.Monday, 1),  // Labor Day
		nthWeekday(year, time.November, time.Thursday, 4), // Thanksgiving
		observed(time.Date(year, time.December, 25, 0, 0, 0, 0, time.UTC)),
	}
	if year >= 2022 {
		holidays = append(holidays, observed(time.Date(year, time.June, 19, 0, 0, 0, 0, time.UTC)))
	}
	// New Year's observed from the previous year can land on Dec 31.
	holidays = append(holidays, observed(time.Date(year+1, time.January, 1, 0, 0, 0, 0, time.UTC)))

	for _, h := range holidays {
		if d.Equal(h) {
			return true
		}
	}
	return false
}

func isWeekday(d time.Time) bool {
	return d.Weekday() != time.Saturday && d.Weekday() != time.Sunday
}

func observed(d time.Time) time.Time {
	switch d.Weekday() {
	case time.Saturday:
		return d.AddDate(0, 0, -1)
	case time.Sunday:
		return d.AddDate(0, 0, 1)
	default:
		return d
	}
}

// nthWeekday returns the nth given weekday of the month (n starting at 1).
func nthWeekday(year int, month time.Month, weekday time.Weekday, n int) time.Time {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	offset := (int(weekday) - int(first.Weekday()) + 7) % 7
	return first.AddDate(0, 0, offset+(n-1)*7)
}

// lastWeekday returns the last given weekday of the month.
func lastWeekday(year int, month time.Month, weekday time.Weekday) time.Time {
	last := time.Date(year, month+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
	offset := (int(last.Weekday()) - int(weekday) + 7) % 7
	return last.AddDate(0, 0, -offset)
}

// easterSunday computes Easter for the Gregorian calendar (anonymous
// Gregorian algorithm).
func easterSunday(year int) time.Time {
	a := year % 19
	b := year / 100
	c := year % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := (h+l-7*m+114)%31 + 1
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}
