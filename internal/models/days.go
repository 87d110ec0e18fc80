package models

import "strings"

// DayKeys lists the conference days in order.
var DayKeys = []string{"sat", "sun", "mon", "tue", "wed"}

var dayNames = map[string]string{
	"sat": "Saturday",
	"sun": "Sunday",
	"mon": "Monday",
	"tue": "Tuesday",
	"wed": "Wednesday",
}

func ValidDay(key string) bool {
	_, ok := dayNames[key]
	return ok
}

func DayName(key string) string {
	return dayNames[key]
}

// DaysSentence renders day keys as "Saturday, Sunday, Monday".
func DaysSentence(keys []string) string {
	names := make([]string, 0, len(keys))
	for _, k := range keys {
		names = append(names, dayNames[k])
	}
	return strings.Join(names, ", ")
}
