package domain

import "time"

// BusinessHours is the daily window during which leads are routed
// immediately. Outside it, leads are night-held until the next opening.
type BusinessHours struct {
	StartHour int
	EndHour   int
	Location  *time.Location
}

// Contains reports whether t falls inside the business window.
func (b BusinessHours) Contains(t time.Time) bool {
	local := t.In(b.Location)
	hour := local.Hour()
	return hour >= b.StartHour && hour < b.EndHour
}

// NextOpening returns the next moment at or after t when the business
// window opens. If t is inside the window, it returns t unchanged.
func (b BusinessHours) NextOpening(t time.Time) time.Time {
	local := t.In(b.Location)
	if b.Contains(t) {
		return t
	}

	opening := time.Date(local.Year(), local.Month(), local.Day(), b.StartHour, 0, 0, 0, b.Location)
	if !local.Before(opening) {
		// Past today's window: release tomorrow morning.
		opening = opening.AddDate(0, 0, 1)
	}
	return opening
}
