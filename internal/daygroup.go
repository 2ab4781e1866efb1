package internal

import "time"

// DayItem is a message paired with an optional day boundary marker
type DayItem struct {
	Message Message
	// NewDay is set when a day boundary marker precedes the message
	NewDay bool
	// Day is midnight of the message's calendar day in the display location
	Day time.Time
}

// GroupByDay marks the first message of every calendar day in loc.
// msgs must already be ordered.
func GroupByDay(msgs []Message, loc *time.Location) []DayItem {
	if loc == nil {
		loc = time.Local
	}
	items := make([]DayItem, 0, len(msgs))
	var prev time.Time
	for i, m := range msgs {
		day := startOfDay(m.Timestamp, loc)
		items = append(items, DayItem{
			Message: m,
			NewDay:  i == 0 || !day.Equal(prev),
			Day:     day,
		})
		prev = day
	}
	return items
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	y, mo, d := t.In(loc).Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, loc)
}

// DayLabel renders a day marker relative to now
func DayLabel(day, now time.Time) string {
	today := startOfDay(now, day.Location())
	switch {
	case day.Equal(today):
		return "Today"
	case day.Equal(today.AddDate(0, 0, -1)):
		return "Yesterday"
	case day.Year() == today.Year():
		return day.Format("Mon, Jan 2")
	default:
		return day.Format("Mon, Jan 2 2006")
	}
}
