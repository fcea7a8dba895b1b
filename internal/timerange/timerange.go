// Package timerange converts inclusive business-day ranges into half-open UTC
// intervals for range filters. Business days are anchored to the store
// timezone (UTC+8), never to the timezone of the machine running the query.
package timerange

import (
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// BusinessZone is fixed rather than loaded from the tz database so two
// processes in different host timezones always derive identical bounds.
var BusinessZone = time.FixedZone("UTC+8", 8*60*60)

// UTCBounds maps the inclusive calendar range [start, end] (formatted
// YYYY-MM-DD) to the half-open instant interval [startUTC, endUTC), where
// endUTC is local midnight of the day after end. Month and year rollover is
// handled by AddDate's calendar normalization.
func UTCBounds(start string, end string) (time.Time, time.Time, error) {
	s, err := time.ParseInLocation(dateLayout, start, BusinessZone)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid start date %q: %w", start, err)
	}
	e, err := time.ParseInLocation(dateLayout, end, BusinessZone)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid end date %q: %w", end, err)
	}
	if e.Before(s) {
		return time.Time{}, time.Time{}, fmt.Errorf("end date %s before start date %s", end, start)
	}
	return s.UTC(), e.AddDate(0, 0, 1).UTC(), nil
}

// DayBounds is UTCBounds for a single business day.
func DayBounds(day string) (time.Time, time.Time, error) {
	return UTCBounds(day, day)
}
