package app

import (
	"time"

	"calendar-service/internal/recurrence"
)

type EventType string

const (
	EventMeeting   EventType = "meeting"
	EventTask      EventType = "task"
	EventReminder  EventType = "reminder"
	EventPersonal  EventType = "personal"
	EventTimeBlock EventType = "time_block"
)

type EventStatus string

const (
	StatusConfirmed EventStatus = "confirmed"
	StatusTentative EventStatus = "tentative"
	StatusCancelled EventStatus = "cancelled"
)

type EventVisibility string

const (
	VisibilityPublic           EventVisibility = "public"
	VisibilityPrivate          EventVisibility = "private"
	VisibilityParticipantsOnly EventVisibility = "participants_only"
)

type Calendar struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	Description    string    `json:"description,omitempty"`
	OwnerUserID    *int64    `json:"owner_user_id,omitempty"`
	TeamID         *int64    `json:"team_id,omitempty"`
	DepartmentID   *int64    `json:"department_id,omitempty"`
	IsPrimary      bool      `json:"is_primary"`
	IsTeamCalendar bool      `json:"is_team_calendar"`
	CreatedAt      time.Time `json:"created_at,omitempty"`
	UpdatedAt      time.Time `json:"updated_at,omitempty"`
}

type Event struct {
	ID                 int64           `json:"id"`
	CalendarID         int64           `json:"calendar_id"`
	Title              string          `json:"title"`
	Description        string          `json:"description,omitempty"`
	Location           string          `json:"location,omitempty"`
	EventType          EventType       `json:"event_type"`
	StartTime          time.Time       `json:"start_time"`
	EndTime            time.Time       `json:"end_time"`
	CreatorUserID      int64           `json:"creator_user_id"`
	IsAllDay           bool            `json:"is_all_day"`
	Visibility         EventVisibility `json:"visibility"`
	RecurringPatternID *int64          `json:"recurring_pattern_id,omitempty"`
	TaskID             *int64          `json:"task_id,omitempty"`
	Status             EventStatus     `json:"status"`
	IsDeleted          bool            `json:"-"`
	CreatedAt          time.Time       `json:"created_at,omitempty"`
	UpdatedAt          time.Time       `json:"updated_at,omitempty"`

	// Pattern is loaded eagerly alongside events that carry a
	// recurring_pattern_id; such an event is the recurrence anchor.
	Pattern *RecurringPattern `json:"recurring_pattern,omitempty"`
}

// CountsAsBusy reports whether the event contributes busy time. Tentative
// events count as busy; this is the one configurable policy point.
func (e *Event) CountsAsBusy() bool {
	return !e.IsDeleted && e.Status != StatusCancelled
}

type RecurringPattern struct {
	ID            int64                   `json:"id"`
	Frequency     recurrence.Frequency    `json:"frequency"`
	Interval      int                     `json:"interval"`
	StartDate     time.Time               `json:"start_date"`
	EndDate       *time.Time              `json:"end_date,omitempty"`
	Count         *int                    `json:"count,omitempty"`
	DaysOfWeek    []string                `json:"days_of_week,omitempty"`
	DayOfMonth    *int                    `json:"day_of_month,omitempty"`
	WeekOfMonth   *recurrence.WeekOfMonth `json:"week_of_month,omitempty"`
	MonthOfYear   *int                    `json:"month_of_year,omitempty"`
	ExcludedDates []time.Time             `json:"excluded_dates,omitempty"`
	CreatedAt     time.Time               `json:"created_at,omitempty"`
	UpdatedAt     time.Time               `json:"updated_at,omitempty"`
}

func (p *RecurringPattern) toExpanderPattern() recurrence.Pattern {
	return recurrence.Pattern{
		Frequency:     p.Frequency,
		Interval:      p.Interval,
		StartDate:     p.StartDate,
		EndDate:       p.EndDate,
		Count:         p.Count,
		DaysOfWeek:    p.DaysOfWeek,
		DayOfMonth:    p.DayOfMonth,
		WeekOfMonth:   p.WeekOfMonth,
		MonthOfYear:   p.MonthOfYear,
		ExcludedDates: p.ExcludedDates,
	}
}

type UserSetting struct {
	UserID               int64     `json:"user_id"`
	Timezone             string    `json:"timezone"`
	DefaultEventDuration int       `json:"default_event_duration"`
	WeekStartDay         string    `json:"week_start_day"`
	WorkingHoursStart    string    `json:"working_hours_start,omitempty"` // "HH:MM"
	WorkingHoursEnd      string    `json:"working_hours_end,omitempty"`   // "HH:MM"
	WorkingDays          []string  `json:"working_days,omitempty"`
	ShowWeekends         bool      `json:"show_weekends"`
	DefaultView          string    `json:"default_view"`
	CreatedAt            time.Time `json:"created_at,omitempty"`
	UpdatedAt            time.Time `json:"updated_at,omitempty"`
}

// Location resolves the user's timezone, falling back to UTC.
func (s *UserSetting) Location() *time.Location {
	if s == nil || s.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// BusySlot is a computed fact that a user is occupied during an interval.
// Never persisted.
type BusySlot struct {
	UserID              int64     `json:"user_id"`
	StartTime           time.Time `json:"start_time"`
	EndTime             time.Time `json:"end_time"`
	EventID             *int64    `json:"event_id,omitempty"`
	EventTitle          string    `json:"event_title,omitempty"`
	IsRecurringInstance bool      `json:"is_recurring_instance,omitempty"`
}

// TimeSuggestion is a computed meeting candidate. Never persisted.
type TimeSuggestion struct {
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

// Diagnostic codes attached to multi-user availability results.
const (
	DiagNoCalendar          = "no_calendar"
	DiagPatternInvalid      = "pattern_invalid"
	DiagRecurrenceTruncated = "recurrence_truncated"
)

// Diagnostic reports a per-user, non-fatal condition hit while resolving
// availability. A user without a resolvable calendar has unknown, not empty,
// availability.
type Diagnostic struct {
	UserID  int64  `json:"user_id"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
