// Package compliance decides when a debtor may be called, based on the
// local time of the phone number's area code.
package compliance

import (
	"fmt"
	"log/slog"
	"time"
	_ "time/tzdata" // zones must resolve on hosts without a system database

	"github.com/FACorreiaa/collections-portal/internal/domain/import/normalizer"
)

const (
	// FirstCallHour and LastCallHour bound the permitted local window [8:00, 21:00).
	FirstCallHour = 8
	LastCallHour  = 21
)

// Status is the call-window answer for one phone number.
type Status struct {
	Phone      string    `json:"phone"`
	AreaCode   string    `json:"area_code"`
	Timezone   string    `json:"timezone"`
	LocalTime  time.Time `json:"local_time"`
	Allowed    bool      `json:"allowed"`
	NextWindow time.Time `json:"next_window"`
}

// Calculator resolves area codes to time zones and applies the window.
type Calculator struct {
	zones    map[string]*time.Location
	fallback *time.Location
	now      func() time.Time
	logger   *slog.Logger
}

type Option func(*Calculator)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Calculator) { c.now = now }
}

// NewCalculator loads every zone in the area-code table.
func NewCalculator(logger *slog.Logger, opts ...Option) (*Calculator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Calculator{
		zones:  make(map[string]*time.Location),
		now:    time.Now,
		logger: logger,
	}

	loaded := make(map[string]*time.Location)
	for code, name := range areaCodeTable() {
		loc, ok := loaded[name]
		if !ok {
			var err error
			loc, err = time.LoadLocation(name)
			if err != nil {
				return nil, fmt.Errorf("failed to load zone %s: %w", name, err)
			}
			loaded[name] = loc
		}
		c.zones[code] = loc
	}

	fallback, err := time.LoadLocation(DefaultZone)
	if err != nil {
		return nil, fmt.Errorf("failed to load zone %s: %w", DefaultZone, err)
	}
	c.fallback = fallback

	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// AreaCode returns the first three digits of a US number, dropping a
// leading country code 1 from 11-digit input.
func AreaCode(phone string) string {
	digits := normalizer.DigitsOnly(phone)
	if len(digits) == 11 && digits[0] == '1' {
		digits = digits[1:]
	}
	if len(digits) < 3 {
		return digits
	}
	return digits[:3]
}

// Location returns the zone for phone; unknown area codes map to Eastern.
func (c *Calculator) Location(phone string) *time.Location {
	if loc, ok := c.zones[AreaCode(phone)]; ok {
		return loc
	}
	return c.fallback
}

// IsWithinCallHours reports whether local time at phone is in [8:00, 21:00).
func (c *Calculator) IsWithinCallHours(phone string) bool {
	return allowed(c.now().In(c.Location(phone)))
}

// NextCallWindow returns now when calls are allowed, otherwise the next
// 8:00 local time.
func (c *Calculator) NextCallWindow(phone string) time.Time {
	return nextWindow(c.now(), c.Location(phone))
}

// Check bundles the window answer for display.
func (c *Calculator) Check(phone string) Status {
	now := c.now()
	loc := c.Location(phone)
	local := now.In(loc)

	code := AreaCode(phone)
	if _, ok := c.zones[code]; !ok {
		c.logger.Debug("area code not in table, using default zone",
			slog.String("area_code", code), slog.String("zone", DefaultZone))
	}

	return Status{
		Phone:      phone,
		AreaCode:   code,
		Timezone:   loc.String(),
		LocalTime:  local,
		Allowed:    allowed(local),
		NextWindow: nextWindow(now, loc),
	}
}

func allowed(local time.Time) bool {
	h := local.Hour()
	return h >= FirstCallHour && h < LastCallHour
}

func nextWindow(now time.Time, loc *time.Location) time.Time {
	local := now.In(loc)
	y, m, d := local.Date()
	switch h := local.Hour(); {
	case h < FirstCallHour:
		return time.Date(y, m, d, FirstCallHour, 0, 0, 0, loc)
	case h >= LastCallHour:
		return time.Date(y, m, d+1, FirstCallHour, 0, 0, 0, loc)
	default:
		return now
	}
}
