package calendar

import (
	"fmt"
	"sync"
	"time"
	_ "time/tzdata"
)

// DefaultTimezone applies when neither the farm nor the configuration names one.
const DefaultTimezone = "Africa/Conakry"

// ToLocalDate returns the calendar day on which instant falls in loc.
func ToLocalDate(instant time.Time, loc *time.Location) Date {
	if loc == nil {
		loc = time.UTC
	}
	return dateOf(instant.In(loc))
}

// LocalDateToUTCMidnight returns the UTC instant at which date begins in loc.
func LocalDateToUTCMidnight(date Date, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(date.Year, date.Month, date.Day, 0, 0, 0, 0, loc).UTC()
}

// Projector resolves farm time zones and projects instants onto farm-local days.
// It never consults the process default zone.
type Projector struct {
	fallback *time.Location

	mu    sync.RWMutex
	zones map[string]*time.Location
}

// NewProjector builds a projector using fallbackZone for farms without a zone.
func NewProjector(fallbackZone string) (*Projector, error) {
	if fallbackZone == "" {
		fallbackZone = DefaultTimezone
	}
	loc, err := time.LoadLocation(fallbackZone)
	if err != nil {
		return nil, fmt.Errorf("load fallback timezone %s: %w", fallbackZone, err)
	}
	return &Projector{
		fallback: loc,
		zones:    map[string]*time.Location{fallbackZone: loc},
	}, nil
}

// Location resolves an IANA zone name; the empty name yields the fallback zone.
func (p *Projector) Location(name string) (*time.Location, error) {
	if name == "" {
		return p.fallback, nil
	}

	p.mu.RLock()
	loc, ok := p.zones[name]
	p.mu.RUnlock()
	if ok {
		return loc, nil
	}

	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load timezone %s: %w", name, err)
	}

	p.mu.Lock()
	p.zones[name] = loc
	p.mu.Unlock()
	return loc, nil
}

// Today returns the local calendar day of now in the named zone.
func (p *Projector) Today(now time.Time, zone string) (Date, error) {
	loc, err := p.Location(zone)
	if err != nil {
		return Date{}, err
	}
	return ToLocalDate(now, loc), nil
}

// Midnight returns the UTC instant at which date begins in the named zone.
func (p *Projector) Midnight(date Date, zone string) (time.Time, error) {
	loc, err := p.Location(zone)
	if err != nil {
		return time.Time{}, err
	}
	return LocalDateToUTCMidnight(date, loc), nil
}
