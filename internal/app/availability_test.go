package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calendar-service/internal/interval"
	"calendar-service/internal/recurrence"
)

func utc(y int, m time.Month, d, h, min int) time.Time {
	return time.Date(y, m, d, h, min, 0, 0, time.UTC)
}

func win(start, end time.Time) interval.Interval {
	return interval.Interval{Start: start, End: end}
}

type fixture struct {
	store *MemoryStore
	avail *Availability
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := NewMemoryStore()
	return &fixture{
		store: store,
		avail: NewAvailability(store, NewLogger("error")),
	}
}

func (f *fixture) addPrimaryCalendar(t *testing.T, userID int64) *Calendar {
	t.Helper()
	cal := &Calendar{Name: "personal", OwnerUserID: &userID, IsPrimary: true}
	require.NoError(t, f.store.CreateCalendar(context.Background(), cal))
	return cal
}

func (f *fixture) addEvent(t *testing.T, calID int64, title string, start, end time.Time, status EventStatus) *Event {
	t.Helper()
	ev := &Event{
		CalendarID:    calID,
		Title:         title,
		EventType:     EventMeeting,
		StartTime:     start,
		EndTime:       end,
		CreatorUserID: 1,
		Visibility:    VisibilityParticipantsOnly,
		Status:        status,
	}
	require.NoError(t, f.store.CreateEvent(context.Background(), ev))
	return ev
}

func TestCheckAvailabilityDirectEvents(t *testing.T) {
	f := newFixture(t)
	cal := f.addPrimaryCalendar(t, 1)
	f.addEvent(t, cal.ID, "standup", utc(2025, 3, 10, 10, 0), utc(2025, 3, 10, 10, 30), StatusConfirmed)
	f.addEvent(t, cal.ID, "cancelled", utc(2025, 3, 10, 11, 0), utc(2025, 3, 10, 12, 0), StatusCancelled)
	f.addEvent(t, cal.ID, "tentative", utc(2025, 3, 10, 14, 0), utc(2025, 3, 10, 15, 0), StatusTentative)

	slots, diags, err := f.avail.CheckAvailability(context.Background(), []int64{1},
		win(utc(2025, 3, 10, 9, 0), utc(2025, 3, 10, 18, 0)))
	require.NoError(t, err)
	assert.Empty(t, diags)

	// Cancelled events never count; tentative ones do.
	require.Len(t, slots, 2)
	assert.Equal(t, "standup", slots[0].EventTitle)
	assert.Equal(t, "tentative", slots[1].EventTitle)
}

func TestCheckAvailabilityInvalidRange(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.avail.CheckAvailability(context.Background(), []int64{1},
		win(utc(2025, 3, 10, 12, 0), utc(2025, 3, 10, 9, 0)))
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestCheckAvailabilityUnknownCalendarIsDiagnosed(t *testing.T) {
	f := newFixture(t)
	cal := f.addPrimaryCalendar(t, 1)
	f.addEvent(t, cal.ID, "busy", utc(2025, 3, 10, 10, 0), utc(2025, 3, 10, 11, 0), StatusConfirmed)

	slots, diags, err := f.avail.CheckAvailability(context.Background(), []int64{1, 42},
		win(utc(2025, 3, 10, 9, 0), utc(2025, 3, 10, 17, 0)))
	require.NoError(t, err)
	require.Len(t, slots, 1)
	require.Len(t, diags, 1)
	assert.Equal(t, int64(42), diags[0].UserID)
	assert.Equal(t, DiagNoCalendar, diags[0].Code)
}

func TestCheckAvailabilityExpandsRecurring(t *testing.T) {
	f := newFixture(t)
	cal := f.addPrimaryCalendar(t, 1)
	ev := &Event{
		CalendarID:    cal.ID,
		Title:         "daily sync",
		EventType:     EventMeeting,
		StartTime:     utc(2025, 3, 10, 9, 0),
		EndTime:       utc(2025, 3, 10, 9, 30),
		CreatorUserID: 1,
		Status:        StatusConfirmed,
		Pattern: &RecurringPattern{
			Frequency: recurrence.Daily,
			Interval:  1,
			StartDate: utc(2025, 3, 10, 0, 0),
		},
	}
	require.NoError(t, f.store.CreateEvent(context.Background(), ev))

	slots, diags, err := f.avail.CheckAvailability(context.Background(), []int64{1},
		win(utc(2025, 3, 10, 0, 0), utc(2025, 3, 15, 0, 0)))
	require.NoError(t, err)
	assert.Empty(t, diags)
	require.Len(t, slots, 5)
	for _, s := range slots {
		assert.True(t, s.IsRecurringInstance)
		assert.Equal(t, 30*time.Minute, s.EndTime.Sub(s.StartTime))
	}
}

func TestCheckAvailabilityMalformedPatternDegrades(t *testing.T) {
	f := newFixture(t)
	cal := f.addPrimaryCalendar(t, 1)
	ev := &Event{
		CalendarID:    cal.ID,
		Title:         "broken weekly",
		EventType:     EventMeeting,
		StartTime:     utc(2025, 3, 10, 9, 0),
		EndTime:       utc(2025, 3, 10, 10, 0),
		CreatorUserID: 1,
		Status:        StatusConfirmed,
		Pattern: &RecurringPattern{
			Frequency: recurrence.Weekly, // no days_of_week
			Interval:  1,
			StartDate: utc(2025, 3, 10, 0, 0),
		},
	}
	require.NoError(t, f.store.CreateEvent(context.Background(), ev))
	f.addEvent(t, cal.ID, "fine", utc(2025, 3, 11, 10, 0), utc(2025, 3, 11, 11, 0), StatusConfirmed)

	slots, diags, err := f.avail.CheckAvailability(context.Background(), []int64{1},
		win(utc(2025, 3, 10, 0, 0), utc(2025, 3, 15, 0, 0)))
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, "fine", slots[0].EventTitle)
	require.Len(t, diags, 1)
	assert.Equal(t, DiagPatternInvalid, diags[0].Code)
}

func TestSuggestSlotsTwoUsers(t *testing.T) {
	f := newFixture(t)
	calA := f.addPrimaryCalendar(t, 1)
	calB := f.addPrimaryCalendar(t, 2)
	f.addEvent(t, calA.ID, "a busy", utc(2025, 3, 10, 10, 0), utc(2025, 3, 10, 11, 0), StatusConfirmed)
	f.addEvent(t, calB.ID, "b busy", utc(2025, 3, 10, 10, 30), utc(2025, 3, 10, 11, 30), StatusConfirmed)

	suggestions, diags, err := f.avail.SuggestSlots(context.Background(), []int64{1, 2},
		win(utc(2025, 3, 10, 9, 0), utc(2025, 3, 10, 12, 0)),
		30*time.Minute, QueryOptions{})
	require.NoError(t, err)
	assert.Empty(t, diags)

	// Common free: 09:00-10:00 and 11:30-12:00.
	require.Len(t, suggestions, 2)
	assert.Equal(t, utc(2025, 3, 10, 9, 0), suggestions[0].StartTime)
	assert.Equal(t, utc(2025, 3, 10, 11, 30), suggestions[1].StartTime)
	assert.Equal(t, utc(2025, 3, 10, 12, 0), suggestions[1].EndTime)

	for _, s := range suggestions {
		assert.Equal(t, 30*time.Minute, s.EndTime.Sub(s.StartTime))
		assert.NotEqual(t, utc(2025, 3, 10, 10, 0), s.StartTime)
		assert.NotEqual(t, utc(2025, 3, 10, 10, 30), s.StartTime)
	}
}

func TestSuggestSlotsOrderIndependent(t *testing.T) {
	f := newFixture(t)
	calA := f.addPrimaryCalendar(t, 1)
	calB := f.addPrimaryCalendar(t, 2)
	calC := f.addPrimaryCalendar(t, 3)
	f.addEvent(t, calA.ID, "a", utc(2025, 3, 10, 9, 0), utc(2025, 3, 10, 10, 0), StatusConfirmed)
	f.addEvent(t, calB.ID, "b", utc(2025, 3, 10, 11, 0), utc(2025, 3, 10, 12, 0), StatusConfirmed)
	f.addEvent(t, calC.ID, "c", utc(2025, 3, 10, 13, 0), utc(2025, 3, 10, 14, 0), StatusConfirmed)

	w := win(utc(2025, 3, 10, 8, 0), utc(2025, 3, 10, 18, 0))
	forward, _, err := f.avail.SuggestSlots(context.Background(), []int64{1, 2, 3}, w, time.Hour, QueryOptions{})
	require.NoError(t, err)
	backward, _, err := f.avail.SuggestSlots(context.Background(), []int64{3, 2, 1}, w, time.Hour, QueryOptions{})
	require.NoError(t, err)
	assert.Equal(t, forward, backward)
}

func TestSuggestSlotsWorkingHours(t *testing.T) {
	f := newFixture(t)
	f.addPrimaryCalendar(t, 1)
	require.NoError(t, f.store.PutUserSetting(context.Background(), &UserSetting{
		UserID:            1,
		Timezone:          "UTC",
		WorkingHoursStart: "09:00",
		WorkingHoursEnd:   "17:00",
		WorkingDays:       []string{"mon", "tue", "wed", "thu", "fri"},
	}))

	// 2025-03-08 is a Saturday, 2025-03-10 a Monday.
	suggestions, _, err := f.avail.SuggestSlots(context.Background(), []int64{1},
		win(utc(2025, 3, 8, 0, 0), utc(2025, 3, 11, 0, 0)),
		time.Hour, QueryOptions{WorkingHoursOnly: true, Granularity: time.Hour})
	require.NoError(t, err)
	require.NotEmpty(t, suggestions)
	for _, s := range suggestions {
		assert.Equal(t, time.Monday, s.StartTime.Weekday(), "weekend must contribute no slots")
		assert.GreaterOrEqual(t, s.StartTime.Hour(), 9)
		assert.LessOrEqual(t, s.EndTime.Hour(), 17)
	}
}

func TestSuggestSlotsSlidingWindow(t *testing.T) {
	f := newFixture(t)
	cal := f.addPrimaryCalendar(t, 1)
	f.addEvent(t, cal.ID, "busy", utc(2025, 3, 10, 9, 0), utc(2025, 3, 10, 10, 0), StatusConfirmed)

	suggestions, _, err := f.avail.SuggestSlots(context.Background(), []int64{1},
		win(utc(2025, 3, 10, 9, 0), utc(2025, 3, 10, 11, 0)),
		30*time.Minute, QueryOptions{Granularity: 15 * time.Minute, MaxSuggestions: 3})
	require.NoError(t, err)
	require.Len(t, suggestions, 3)
	assert.Equal(t, utc(2025, 3, 10, 10, 0), suggestions[0].StartTime)
	assert.Equal(t, utc(2025, 3, 10, 10, 15), suggestions[1].StartTime)
	assert.Equal(t, utc(2025, 3, 10, 10, 30), suggestions[2].StartTime)
}

func TestSuggestSlotsUnknownUsersOnly(t *testing.T) {
	f := newFixture(t)
	suggestions, diags, err := f.avail.SuggestSlots(context.Background(), []int64{7},
		win(utc(2025, 3, 10, 9, 0), utc(2025, 3, 10, 12, 0)),
		30*time.Minute, QueryOptions{})
	require.NoError(t, err)
	assert.Empty(t, suggestions, "unknown availability must not read as free")
	require.Len(t, diags, 1)
	assert.Equal(t, DiagNoCalendar, diags[0].Code)
}

func TestBlockTimeRoundTrip(t *testing.T) {
	f := newFixture(t)
	f.addPrimaryCalendar(t, 1)
	w := win(utc(2025, 3, 10, 13, 0), utc(2025, 3, 10, 14, 0))

	ev, err := f.avail.BlockTime(context.Background(), 1, w, "focus time", nil)
	require.NoError(t, err)
	assert.Equal(t, EventTimeBlock, ev.EventType)
	assert.Equal(t, VisibilityPrivate, ev.Visibility)
	assert.Equal(t, StatusConfirmed, ev.Status)
	assert.Nil(t, ev.RecurringPatternID)

	slots, _, err := f.avail.CheckAvailability(context.Background(), []int64{1}, w)
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, "focus time", slots[0].EventTitle)
}

func TestBlockTimeConflict(t *testing.T) {
	f := newFixture(t)
	cal := f.addPrimaryCalendar(t, 1)
	f.addEvent(t, cal.ID, "existing", utc(2025, 3, 10, 10, 0), utc(2025, 3, 10, 11, 0), StatusConfirmed)

	_, err := f.avail.BlockTime(context.Background(), 1,
		win(utc(2025, 3, 10, 10, 30), utc(2025, 3, 10, 11, 30)), "steal the slot", nil)
	assert.ErrorIs(t, err, ErrConflict)

	events, listErr := f.store.ListEvents(context.Background(), cal.ID, nil)
	require.NoError(t, listErr)
	assert.Len(t, events, 1, "a conflicting block must create nothing")
}

func TestBlockTimeDefaultsTitle(t *testing.T) {
	f := newFixture(t)
	f.addPrimaryCalendar(t, 1)
	ev, err := f.avail.BlockTime(context.Background(), 1,
		win(utc(2025, 3, 10, 8, 0), utc(2025, 3, 10, 9, 0)), "", nil)
	require.NoError(t, err)
	assert.Equal(t, "Blocked Time", ev.Title)
}

func TestBlockTimeNoPrimaryCalendar(t *testing.T) {
	f := newFixture(t)
	_, err := f.avail.BlockTime(context.Background(), 9,
		win(utc(2025, 3, 10, 8, 0), utc(2025, 3, 10, 9, 0)), "", nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBlockTimeForeignAndTeamCalendars(t *testing.T) {
	f := newFixture(t)
	f.addPrimaryCalendar(t, 1)
	other := f.addPrimaryCalendar(t, 2)

	teamOwner := int64(1)
	team := &Calendar{Name: "team", OwnerUserID: &teamOwner, IsTeamCalendar: true}
	require.NoError(t, f.store.CreateCalendar(context.Background(), team))

	w := win(utc(2025, 3, 10, 8, 0), utc(2025, 3, 10, 9, 0))

	_, err := f.avail.BlockTime(context.Background(), 1, w, "", &other.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.avail.BlockTime(context.Background(), 1, w, "", &team.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	missing := int64(999)
	_, err = f.avail.BlockTime(context.Background(), 1, w, "", &missing)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBlockTimeAgainstRecurringOccurrence(t *testing.T) {
	f := newFixture(t)
	cal := f.addPrimaryCalendar(t, 1)
	ev := &Event{
		CalendarID:    cal.ID,
		Title:         "daily sync",
		EventType:     EventMeeting,
		StartTime:     utc(2025, 3, 10, 9, 0),
		EndTime:       utc(2025, 3, 10, 9, 30),
		CreatorUserID: 1,
		Status:        StatusConfirmed,
		Pattern: &RecurringPattern{
			Frequency: recurrence.Daily,
			Interval:  1,
			StartDate: utc(2025, 3, 10, 0, 0),
		},
	}
	require.NoError(t, f.store.CreateEvent(context.Background(), ev))

	// 2025-03-13 has no stored row, only a computed occurrence.
	_, err := f.avail.BlockTime(context.Background(), 1,
		win(utc(2025, 3, 13, 9, 0), utc(2025, 3, 13, 10, 0)), "", nil)
	assert.ErrorIs(t, err, ErrConflict)

	_, err = f.avail.BlockTime(context.Background(), 1,
		win(utc(2025, 3, 13, 10, 0), utc(2025, 3, 13, 11, 0)), "", nil)
	assert.NoError(t, err)
}
