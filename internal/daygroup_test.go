package internal

import (
	"testing"
	"time"
)

func TestGroupByDay(t *testing.T) {
	msgs := []Message{
		{ID: "a", Timestamp: time.Date(2024, 1, 1, 23, 0, 0, 0, time.UTC)},
		{ID: "b", Timestamp: time.Date(2024, 1, 2, 0, 10, 0, 0, time.UTC)},
		{ID: "c", Timestamp: time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)},
	}

	items := GroupByDay(msgs, time.UTC)
	if len(items) != 3 {
		t.Fatalf("GroupByDay() returned %d items", len(items))
	}
	want := []bool{true, true, false}
	for i, item := range items {
		if item.NewDay != want[i] {
			t.Errorf("item %s NewDay = %v, want %v", item.Message.ID, item.NewDay, want[i])
		}
	}
	if !items[1].Day.Equal(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Day = %v", items[1].Day)
	}
}

func TestGroupByDayUsesDisplayLocation(t *testing.T) {
	// 23:00 UTC and 00:10 UTC fall on the same day three hours east
	loc := time.FixedZone("UTC+3", 3*3600)
	msgs := []Message{
		{ID: "a", Timestamp: time.Date(2024, 1, 1, 23, 0, 0, 0, time.UTC)},
		{ID: "b", Timestamp: time.Date(2024, 1, 2, 0, 10, 0, 0, time.UTC)},
	}
	items := GroupByDay(msgs, loc)
	if !items[0].NewDay || items[1].NewDay {
		t.Errorf("markers = %v, %v; want true, false", items[0].NewDay, items[1].NewDay)
	}
}

func TestDayLabel(t *testing.T) {
	now := time.Date(2024, 3, 10, 15, 0, 0, 0, time.UTC)
	tests := []struct {
		day  time.Time
		want string
	}{
		{time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), "Today"},
		{time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC), "Yesterday"},
		{time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), "Tue, Jan 2"},
		{time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC), "Mon, Jan 2 2023"},
	}
	for _, tt := range tests {
		if got := DayLabel(tt.day, now); got != tt.want {
			t.Errorf("DayLabel(%v) = %q, want %q", tt.day, got, tt.want)
		}
	}
}
