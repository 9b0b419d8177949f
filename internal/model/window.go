package model

import (
	"fmt"
	"time"
)

// Window is the time range a connector covers in one run.
type Window struct {
	Since time.Time
	Until time.Time
}

// NewWindow builds a backward-looking window ending at now. A since in the
// future is clamped to now.
func NewWindow(since, now time.Time) Window {
	if since.After(now) {
		since = now
	}
	return Window{Since: since, Until: now}
}

func (w Window) Hours() float64 {
	return w.Until.Sub(w.Since).Hours()
}

// Horizon selects how far ahead forward-looking sources reach.
type Horizon string

const (
	HorizonWorkWeek Horizon = "work_week"
	HorizonNext24h  Horizon = "next_24h"
)

// ForwardWindow returns the window a forward-looking source covers from now.
// For HorizonWorkWeek it ends at the end of the current work week (Friday
// 23:59:59 in now's location); on weekends that is the coming Friday.
func ForwardWindow(now time.Time, horizon Horizon) (Window, error) {
	switch horizon {
	case HorizonNext24h:
		return Window{Since: now, Until: now.Add(24 * time.Hour)}, nil
	case HorizonWorkWeek, "":
		return Window{Since: now, Until: endOfWorkWeek(now)}, nil
	default:
		return Window{}, fmt.Errorf("unknown horizon %q", horizon)
	}
}

func endOfWorkWeek(now time.Time) time.Time {
	days := (int(time.Friday) - int(now.Weekday()) + 7) % 7
	friday := now.AddDate(0, 0, days)
	return time.Date(friday.Year(), friday.Month(), friday.Day(), 23, 59, 59, 0, now.Location())
}
