package service

import (
	"math"
	"sort"
	"time"

	"github.com/unclebandit/survey-escalation/internal/model"
)

const (
	dateLayout         = "2006-01-02"
	finalHoursLead     = 2 * time.Hour
	oneDay             = 24 * time.Hour
	closingOnlyMaxDays = 3
	midpointMaxDays    = 7
	oneThirdMaxDays    = 30
)

// PlanReminders computes the email reminder dates for a survey open from
// start to end. Date reminders are delivered at sendHour in loc; the short
// survey reminder is anchored on the end instant instead.
func PlanReminders(start, end time.Time, loc *time.Location, sendHour int) model.ReminderSchedule {
	if loc == nil {
		loc = time.UTC
	}
	sched := model.ReminderSchedule{Dates: []model.ReminderDate{}}
	if end.Before(start) {
		return sched
	}

	startDay := calendarDay(start, loc)
	endDay := calendarDay(end, loc)
	days := int(math.Ceil(end.Sub(start).Hours() / 24))

	at := func(day time.Time, t model.ReminderType) model.ReminderDate {
		y, m, d := day.Date()
		return model.ReminderDate{
			Date: day.Format(dateLayout),
			At:   time.Date(y, m, d, sendHour, 0, 0, 0, loc),
			Type: t,
		}
	}

	var planned []model.ReminderDate
	switch {
	case days <= 1:
		// A same-day survey runs until the end of that day.
		closesAt := endDay
		if !endDay.After(startDay) {
			closesAt = endDay.Add(oneDay)
		}
		instant := closesAt.Add(-finalHoursLead)
		planned = append(planned, model.ReminderDate{
			Date: calendarDay(instant, loc).Format(dateLayout),
			At:   instant,
			Type: model.ReminderFinalHours,
		})
	case days <= closingOnlyMaxDays:
		planned = append(planned, at(endDay, model.ReminderClosing))
	case days <= midpointMaxDays:
		planned = append(planned,
			at(startDay.AddDate(0, 0, days/2), model.ReminderMidpoint),
			at(endDay, model.ReminderClosing))
	case days <= oneThirdMaxDays:
		planned = append(planned,
			at(endDay.AddDate(0, 0, -(days/3)), model.ReminderOneThird),
			at(endDay, model.ReminderClosing))
	default:
		planned = append(planned,
			at(endDay.AddDate(0, 0, -7), model.ReminderWeekBefore),
			at(endDay.AddDate(0, 0, -1), model.ReminderDayBefore),
			at(endDay, model.ReminderClosing))
	}

	// One reminder per date, closing wins; nothing before the survey opens.
	byDate := map[string]model.ReminderDate{}
	for _, r := range planned {
		if r.Date < startDay.Format(dateLayout) {
			continue
		}
		if prev, ok := byDate[r.Date]; ok && prev.Type == model.ReminderClosing {
			continue
		}
		byDate[r.Date] = r
	}
	for _, r := range byDate {
		sched.Dates = append(sched.Dates, r)
	}
	sort.Slice(sched.Dates, func(i, j int) bool { return sched.Dates[i].At.Before(sched.Dates[j].At) })
	return sched
}

// ReminderCutoff is the instant after which no reminder for the survey is sent.
func ReminderCutoff(end time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return calendarDay(end, loc).Add(oneDay)
}

// DueReminders filters the schedule down to reminders whose delivery instant
// has passed while the survey is still open.
func DueReminders(sched model.ReminderSchedule, end time.Time, loc *time.Location, now time.Time) []model.ReminderDate {
	cutoff := ReminderCutoff(end, loc)
	var due []model.ReminderDate
	for _, r := range sched.Dates {
		if !r.At.After(now) && now.Before(cutoff) {
			due = append(due, r)
		}
	}
	return due
}

// calendarDay keeps the calendar date of t as written and anchors it at
// midnight in loc.
func calendarDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
