package models

import "time"

var (
	usEastern = mustLocation("America/New_York")
	indiaTime = mustLocation("Asia/Kolkata")
)

func mustLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// MarketOpen reports whether the region's exchange is inside its regular
// session. Exchange holidays are not modeled; the broker rejects those orders
// anyway.
func MarketOpen(region Region, t time.Time) bool {
	switch region {
	case RegionIndia:
		// NSE/BSE: 09:15 - 15:30 IST
		return inSession(t.In(indiaTime), 9*60+15, 15*60+30)
	default:
		// NYSE/NASDAQ: 09:30 - 16:00 ET
		return inSession(t.In(usEastern), 9*60+30, 16*60)
	}
}

func inSession(local time.Time, openMinute, closeMinute int) bool {
	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	minute := local.Hour()*60 + local.Minute()
	return minute >= openMinute && minute < closeMinute
}
