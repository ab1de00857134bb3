package schedule

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

// ErrUnknownShift is returned when a shift identifier is not in the catalog
var ErrUnknownShift = errors.New("unknown shift")

// Shift identifiers
const (
	ShiftAdministrador      = "administrador"
	ShiftAutoridad          = "autoridad"
	ShiftLunVieMatutino     = "lun-vie-matutino"
	ShiftLunVieVespertino   = "lun-vie-vespertino"
	ShiftLunMieVieNocturno  = "lun-mie-vie-nocturno"
	ShiftMarJueDomNocturno  = "mar-jue-dom-nocturno"
	ShiftSabDomFestDia      = "sab-dom-fest-dia"
	ShiftSabDomFestNocturno = "sab-dom-fest-nocturno"
)

// TimeOfDay is a wall-clock time in the system's civil timezone
type TimeOfDay struct {
	Hour   int
	Minute int
}

// At builds a TimeOfDay from hour and minute
func At(hour, minute int) TimeOfDay {
	return TimeOfDay{Hour: hour, Minute: minute}
}

// Hours returns the time of day as fractional hours (e.g. 07:30 -> 7.5)
func (t TimeOfDay) Hours() float64 {
	return float64(t.Hour) + float64(t.Minute)/60
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// ShiftDefinition describes when the holder of a shift may log in
type ShiftDefinition struct {
	ID    string
	Start TimeOfDay
	End   TimeOfDay

	// ActiveWeekdays for shifts within a single day
	ActiveWeekdays []time.Weekday

	// For midnight-crossing shifts the two halves are listed explicitly.
	// MorningDays is not a rotation of EveningDays for irregular day sets.
	CrossesMidnight bool
	EveningDays     []time.Weekday
	MorningDays     []time.Weekday

	// IncludesHolidays is informational, eligibility does not consult it
	IncludesHolidays bool

	Unrestricted bool
}

// Catalog is an immutable table of shift definitions
type Catalog struct {
	order []string
	byID  map[string]ShiftDefinition
}

// NewCatalog builds a catalog from definitions. Duplicate ids are rejected.
func NewCatalog(defs ...ShiftDefinition) (*Catalog, error) {
	c := &Catalog{byID: make(map[string]ShiftDefinition, len(defs))}
	for _, def := range defs {
		if def.ID == "" {
			return nil, fmt.Errorf("shift definition without id")
		}
		if _, exists := c.byID[def.ID]; exists {
			return nil, fmt.Errorf("duplicate shift definition %q", def.ID)
		}
		if def.CrossesMidnight && (len(def.EveningDays) == 0 || len(def.MorningDays) == 0) {
			return nil, fmt.Errorf("shift %q crosses midnight but has no evening/morning days", def.ID)
		}
		c.byID[def.ID] = def
		c.order = append(c.order, def.ID)
	}
	return c, nil
}

// Get looks up a shift definition
func (c *Catalog) Get(id string) (ShiftDefinition, error) {
	def, ok := c.byID[id]
	if !ok {
		return ShiftDefinition{}, fmt.Errorf("%w: %q", ErrUnknownShift, id)
	}
	return def, nil
}

// Has reports whether id is a known shift
func (c *Catalog) Has(id string) bool {
	_, ok := c.byID[id]
	return ok
}

// List returns all definitions in catalog order
func (c *Catalog) List() []ShiftDefinition {
	defs := make([]ShiftDefinition, 0, len(c.order))
	for _, id := range c.order {
		defs = append(defs, c.byID[id])
	}
	return defs
}

// ContainsDay reports whether d is in days
func ContainsDay(days []time.Weekday, d time.Weekday) bool {
	return slices.Contains(days, d)
}

var weekdays = []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}

// DefaultCatalog returns the shift table used by the brigades
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(
		ShiftDefinition{ID: ShiftAdministrador, Unrestricted: true},
		ShiftDefinition{ID: ShiftAutoridad, Unrestricted: true},
		ShiftDefinition{
			ID:             ShiftLunVieMatutino,
			Start:          At(8, 0),
			End:            At(15, 0),
			ActiveWeekdays: weekdays,
		},
		ShiftDefinition{
			ID:             ShiftLunVieVespertino,
			Start:          At(15, 0),
			End:            At(21, 0),
			ActiveWeekdays: weekdays,
		},
		ShiftDefinition{
			ID:              ShiftLunMieVieNocturno,
			Start:           At(21, 0),
			End:             At(8, 0),
			CrossesMidnight: true,
			EveningDays:     []time.Weekday{time.Monday, time.Wednesday, time.Friday},
			MorningDays:     []time.Weekday{time.Tuesday, time.Thursday, time.Saturday},
		},
		ShiftDefinition{
			ID:              ShiftMarJueDomNocturno,
			Start:           At(21, 0),
			End:             At(8, 0),
			CrossesMidnight: true,
			EveningDays:     []time.Weekday{time.Tuesday, time.Thursday, time.Sunday},
			MorningDays:     []time.Weekday{time.Wednesday, time.Friday, time.Monday},
		},
		ShiftDefinition{
			ID:               ShiftSabDomFestDia,
			Start:            At(8, 0),
			End:              At(20, 0),
			ActiveWeekdays:   []time.Weekday{time.Sunday, time.Saturday},
			IncludesHolidays: true,
		},
		ShiftDefinition{
			ID:               ShiftSabDomFestNocturno,
			Start:            At(20, 0),
			End:              At(8, 0),
			CrossesMidnight:  true,
			EveningDays:      []time.Weekday{time.Sunday, time.Saturday},
			MorningDays:      []time.Weekday{time.Sunday, time.Saturday},
			IncludesHolidays: true,
		},
	)
	if err != nil {
		panic(fmt.Sprintf("default shift catalog: %v", err))
	}
	return c
}
