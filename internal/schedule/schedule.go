// Package schedule computes when the supplier race for an RFQ opens. All
// functions are pure and safe for concurrent use.
package schedule

import (
	"time"

	"rfqs/models"
)

const (
	urgentDelay  = 5 * time.Minute
	standardHour = 9 // 09:00 local
)

// RaceOpensAt maps urgency and target timezones to the stored race-open
// instant. Urgent opens uniformly at now+5m. Standard opens at the earliest
// next-09:00 across the supplier zones; a supplier zone that fails to load
// falls back to the buyer zone, and if the buyer zone itself is unknown the
// whole computation degrades to urgent semantics. RFQ creation never fails on
// scheduling resolution.
func RaceOpensAt(now time.Time, urgency models.Urgency, buyerTZ string, supplierTZs []string) time.Time {
	if urgency == models.UrgencyUrgent {
		return now.Add(urgentDelay)
	}

	buyerLoc, err := time.LoadLocation(buyerTZ)
	if err != nil {
		return now.Add(urgentDelay)
	}

	zones := supplierTZs
	if len(zones) == 0 {
		zones = []string{buyerTZ}
	}

	var earliest time.Time
	for _, tz := range zones {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			loc = buyerLoc
		}
		opens := nextLocalNine(now, loc)
		if earliest.IsZero() || opens.Before(earliest) {
			earliest = opens
		}
	}
	return earliest
}

// OpensAtForSupplier is the read-time, per-supplier open instant used for the
// client-visible countdown. It is never persisted.
func OpensAtForSupplier(now time.Time, urgency models.Urgency, buyerTZ, supplierTZ string) time.Time {
	return RaceOpensAt(now, urgency, buyerTZ, []string{supplierTZ})
}

// nextLocalNine returns the next occurrence of 09:00 in loc strictly after now.
func nextLocalNine(now time.Time, loc *time.Location) time.Time {
	local := now.In(loc)
	nine := time.Date(local.Year(), local.Month(), local.Day(), standardHour, 0, 0, 0, loc)
	if !nine.After(local) {
		nine = nine.AddDate(0, 0, 1)
	}
	return nine
}
