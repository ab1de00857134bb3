// Package eligibility decides whether a shift holder may log in at a given instant.
package eligibility

import (
	"fmt"
	"time"

	"github.com/jakechorley/incident-desk/pkg/core/clock"
	"github.com/jakechorley/incident-desk/pkg/core/schedule"
)

// DefaultGracePeriod lets a shift holder in this long before the nominal start
const DefaultGracePeriod = 10 * time.Minute

// Checker evaluates shift windows in a fixed civil timezone
type Checker struct {
	catalog  *schedule.Catalog
	location *time.Location
	grace    time.Duration
	clock    clock.Clock
}

// NewChecker creates a checker. A nil clock uses the system clock.
func NewChecker(catalog *schedule.Catalog, location *time.Location, grace time.Duration, clk clock.Clock) (*Checker, error) {
	if catalog == nil {
		return nil, fmt.Errorf("catalog is required")
	}
	if location == nil {
		return nil, fmt.Errorf("location is required")
	}
	if grace < 0 {
		return nil, fmt.Errorf("grace period must not be negative, got %s", grace)
	}
	if clk == nil {
		clk = clock.System{}
	}
	return &Checker{catalog: catalog, location: location, grace: grace, clock: clk}, nil
}

// Location returns the civil timezone windows are evaluated in
func (c *Checker) Location() *time.Location {
	return c.location
}

// IsEligible reports whether the holder of shiftID may log in at now.
// Unknown shifts are never eligible.
func (c *Checker) IsEligible(shiftID string, now time.Time) bool {
	ok, err := c.Check(shiftID, now)
	return err == nil && ok
}

// EligibleNow evaluates the shift against the checker's clock
func (c *Checker) EligibleNow(shiftID string) (bool, error) {
	return c.Check(shiftID, c.clock.Now())
}

// Check is IsEligible but surfaces schedule.ErrUnknownShift
func (c *Checker) Check(shiftID string, now time.Time) (bool, error) {
	def, err := c.catalog.Get(shiftID)
	if err != nil {
		return false, err
	}
	return c.within(def, now), nil
}

const secondsPerDay = 24 * 60 * 60

func (c *Checker) within(def schedule.ShiftDefinition, now time.Time) bool {
	if def.Unrestricted {
		return true
	}

	local := now.In(c.location)
	day := local.Weekday()
	second := local.Hour()*3600 + local.Minute()*60 + local.Second()

	// Grace applies to the start boundary only; windows are [start-grace, end)
	opens := secondsOf(def.Start) - int(c.grace/time.Second)
	closes := secondsOf(def.End)

	if !def.CrossesMidnight {
		if schedule.ContainsDay(def.ActiveWeekdays, day) && second >= opens && second < closes {
			return true
		}
		// Grace reaching back past midnight opens the window on the evening before
		nextDay := (day + 1) % 7
		return opens < 0 && schedule.ContainsDay(def.ActiveWeekdays, nextDay) && second >= secondsPerDay+opens
	}

	if second >= opens && schedule.ContainsDay(def.EveningDays, day) {
		return true
	}
	return second < closes && schedule.ContainsDay(def.MorningDays, day)
}

func secondsOf(t schedule.TimeOfDay) int {
	return t.Hour*3600 + t.Minute*60
}
