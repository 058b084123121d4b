package attendance

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 12, 0, 0, 0, time.UTC)
}

func TestWeekBounds(t *testing.T) {
	tests := []struct {
		name      string
		today     time.Time
		wantStart string
		wantEnd   string
	}{
		{"monday", date(2024, time.January, 8), "2024-01-08", "2024-01-14"},
		{"midweek", date(2024, time.January, 10), "2024-01-08", "2024-01-14"},
		{"sunday belongs to preceding monday", date(2024, time.January, 14), "2024-01-08", "2024-01-14"},
		{"year boundary", date(2024, time.January, 1), "2024-01-01", "2024-01-07"},
		{"week spanning year end", date(2023, time.December, 31), "2023-12-25", "2023-12-31"},
		{"leap february", date(2024, time.February, 29), "2024-02-26", "2024-03-03"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotStart, gotEnd := WeekBounds(tt.today)
			if gotStart != tt.wantStart {
				t.Errorf("weekStart = %q, want %q", gotStart, tt.wantStart)
			}
			if gotEnd != tt.wantEnd {
				t.Errorf("weekEnd = %q, want %q", gotEnd, tt.wantEnd)
			}
		})
	}
}

// 同じ週のどの日でも同一の週境界が得られることを検証
func TestWeekBounds_StableAcrossWeek(t *testing.T) {
	monday := date(2024, time.March, 4)
	wantStart, wantEnd := WeekBounds(monday)

	for i := 1; i < 7; i++ {
		gotStart, gotEnd := WeekBounds(monday.AddDate(0, 0, i))
		if gotStart != wantStart || gotEnd != wantEnd {
			t.Errorf("day %d: bounds = (%q, %q), want (%q, %q)", i, gotStart, gotEnd, wantStart, wantEnd)
		}
	}
}

func TestDayKey(t *testing.T) {
	got := DayKey(date(2024, time.January, 8))
	if got != "2024-01-08" {
		t.Errorf("DayKey = %q, want %q", got, "2024-01-08")
	}
}
