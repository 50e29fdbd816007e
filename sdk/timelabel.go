package sdk

import "time"

// TimeLabel renders t relative to now: the clock time on the same calendar day,
// "Yesterday" on the previous one, the weekday name up to six days back, and the
// numeric date otherwise. The zero time renders as "".
func TimeLabel(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}

	loc := now.Location()
	t = t.In(loc)

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	// Round absorbs the hour gained or lost across a DST switch
	days := int(today.Sub(day).Round(24*time.Hour) / (24 * time.Hour))

	switch {
	case days == 0:
		return t.Format("15:04")
	case days == 1:
		return "Yesterday"
	case days >= 2 && days <= 6:
		return t.Weekday().String()
	default:
		return t.Format("1/2/2006")
	}
}
