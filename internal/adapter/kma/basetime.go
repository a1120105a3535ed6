package kma

import (
	"fmt"
	"time"
)

// shortBaseTimes are the daily short-range runs, newest first. Each run is
// published 15 minutes after the hour.
var shortBaseTimes = []int{23, 20, 17, 14, 11, 8, 5, 2}

const (
	publishDelay    = 15 // minutes after a short-range base hour
	observationLag  = 45 // minutes after the hour an observation is complete
	basicDateLayout = "20060102"
)

// currentBase returns the base date and HHMM of the latest completed hourly
// observation. Before :45 the previous hour is used, crossing midnight.
func currentBase(now time.Time) (date, hhmm string) {
	t := now.Truncate(time.Hour)
	if now.Minute() < observationLag {
		t = t.Add(-time.Hour)
	}
	return t.Format(basicDateLayout), fmt.Sprintf("%02d00", t.Hour())
}

// shortBase returns the base date and the index into shortBaseTimes of the
// newest published short-range run. Before 02:15 it is yesterday's 23:00 run.
func shortBase(now time.Time) (date string, index int) {
	h, m := now.Hour(), now.Minute()
	if h < 2 || (h == 2 && m < publishDelay) {
		return now.AddDate(0, 0, -1).Format(basicDateLayout), 0
	}
	for i, bt := range shortBaseTimes {
		if h > bt || (h == bt && m >= publishDelay) {
			return now.Format(basicDateLayout), i
		}
	}
	return now.Format(basicDateLayout), len(shortBaseTimes) - 1
}

// midIssue returns the mid-range run to request and, before 18:00, the
// previous evening's run to fall back to.
func midIssue(now time.Time) (issued, fallback time.Time, hasFallback bool) {
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if now.Hour() >= 18 {
		return day.Add(18 * time.Hour), time.Time{}, false
	}
	return day.Add(6 * time.Hour), day.AddDate(0, 0, -1).Add(18 * time.Hour), true
}
