package scheduler

import (
	"time"
	_ "time/tzdata" // the gate must work on hosts without a zoneinfo database
)

// NewYork is the exchange time zone for US equities.
var NewYork = loadNewYork()

// US regular session in New York time.
const (
	OpenHour    = 9
	OpenMinute  = 30
	CloseHour   = 16
	CloseMinute = 0
)

func loadNewYork() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.FixedZone("EST", -5*3600)
	}
	return loc
}

// IsTradingDay reports whether t falls on Mon–Fri in New York.
// TODO: skip NYSE holidays once a holiday calendar is configurable.
func IsTradingDay(t time.Time) bool {
	wd := t.In(NewYork).Weekday()
	return wd >= time.Monday && wd <= time.Friday
}

// IsMarketOpen reports whether t is inside the regular session
// (09:30–16:00 America/New_York, Mon–Fri).
func IsMarketOpen(t time.Time) bool {
	ny := t.In(NewYork)
	if !IsTradingDay(ny) {
		return false
	}
	hm := ny.Hour()*60 + ny.Minute()
	return hm >= OpenHour*60+OpenMinute && hm < CloseHour*60+CloseMinute
}

// NextOpen returns the next session open at or after t.
func NextOpen(t time.Time) time.Time {
	ny := t.In(NewYork)
	open := time.Date(ny.Year(), ny.Month(), ny.Day(), OpenHour, OpenMinute, 0, 0, NewYork)
	if !ny.After(open) && IsTradingDay(ny) {
		return open
	}
	for i := 1; i <= 7; i++ {
		d := open.AddDate(0, 0, i)
		if IsTradingDay(d) {
			return d
		}
	}
	return open.AddDate(0, 0, 1)
}
