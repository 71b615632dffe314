package instancing

import (
	"time"

	"github.com/mathemusician/church-volunteers/internal/model"
)

const week = 7

// CanonicalWeekday is the weekday of the earliest instance, else of the
// anchor date, else of today.
func CanonicalWeekday(tpl model.Event, instances []model.Event, today time.Time) time.Weekday {
	if first := earliest(instances); first != nil {
		return first.Weekday()
	}
	if tpl.AnchorDate != nil {
		return tpl.AnchorDate.Weekday()
	}
	return today.Weekday()
}

// NextDate is the first unscheduled date: a week after the latest instance,
// or the anchor date when there are none. The result is moved onto the
// canonical weekday and never lies before today.
func NextDate(tpl model.Event, instances []model.Event, today time.Time) time.Time {
	today = model.DateOf(today)

	var start time.Time
	switch last := latest(instances); {
	case last != nil:
		start = last.AddDate(0, 0, week)
	case tpl.AnchorDate != nil:
		start = model.DateOf(*tpl.AnchorDate)
	default:
		start = today
	}

	start = alignForward(start, CanonicalWeekday(tpl, instances, today))
	for start.Before(today) {
		start = start.AddDate(0, 0, week)
	}
	return start
}

// Series returns n dates one week apart starting at start.
func Series(start time.Time, n int) []time.Time {
	out := make([]time.Time, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, start.AddDate(0, 0, i*week))
	}
	return out
}

// Plan computes the dates horizon maintenance must create so that the
// template has target instances dated today or later.
func Plan(tpl model.Event, instances []model.Event, today time.Time, target int) []time.Time {
	today = model.DateOf(today)
	future := 0
	for _, in := range instances {
		if in.EventDate != nil && !model.DateOf(*in.EventDate).Before(today) {
			future++
		}
	}
	deficit := target - future
	if deficit <= 0 {
		return nil
	}
	return Series(NextDate(tpl, instances, today), deficit)
}

func alignForward(d time.Time, wd time.Weekday) time.Time {
	delta := (int(wd) - int(d.Weekday()) + week) % week
	return d.AddDate(0, 0, delta)
}

func earliest(instances []model.Event) *time.Time {
	var out *time.Time
	for _, in := range instances {
		if in.EventDate == nil {
			continue
		}
		d := model.DateOf(*in.EventDate)
		if out == nil || d.Before(*out) {
			out = &d
		}
	}
	return out
}

func latest(instances []model.Event) *time.Time {
	var out *time.Time
	for _, in := range instances {
		if in.EventDate == nil {
			continue
		}
		d := model.DateOf(*in.EventDate)
		if out == nil || d.After(*out) {
			out = &d
		}
	}
	return out
}
