package pricing

import (
	"slices"
	"strings"
	"time"
)

var hourLayouts = []string{
	"15:04",
	"3:04 PM",
	"3:04PM",
	"3:04 pm",
	"3:04pm",
	"3 PM",
	"3PM",
	"3 pm",
	"3pm",
	"3:04 P.M.",
	"3:04 p.m.",
}

// HourMinutes returns minutes since midnight for an hour-ending label.
// Hour ending midnight ("12:00 AM", "24:00") closes the day and maps to 1440.
func HourMinutes(label string) (int, bool) {
	label = strings.TrimSpace(label)
	if label == "24:00" {
		return 24 * 60, true
	}
	for _, layout := range hourLayouts {
		t, err := time.Parse(layout, label)
		if err != nil {
			continue
		}
		minutes := t.Hour()*60 + t.Minute()
		if minutes == 0 {
			minutes = 24 * 60
		}
		return minutes, true
	}
	return 0, false
}

// SortByHour orders readings by ascending hour. Labels that do not parse keep
// their relative order after all parsed labels.
func SortByHour(readings []Reading) {
	slices.SortStableFunc(readings, func(a, b Reading) int {
		am, aok := HourMinutes(a.HourLabel)
		bm, bok := HourMinutes(b.HourLabel)
		switch {
		case aok && bok:
			return am - bm
		case aok:
			return -1
		case bok:
			return 1
		default:
			return 0
		}
	})
}
