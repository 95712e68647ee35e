package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"calendar-service/internal/interval"
	"calendar-service/internal/recurrence"
)

// Availability is the scheduling engine: busy/free resolution over direct and
// recurring events, multi-user intersection, slot suggestion, and time-block
// writing. All read paths are pure computations over data fetched through the
// Store; the only write path is BlockTime.
type Availability struct {
	store Store
	log   *slog.Logger
}

func NewAvailability(store Store, logger *slog.Logger) *Availability {
	if logger == nil {
		logger = slog.Default()
	}
	return &Availability{store: store, log: logger.With("component", "availability")}
}

// QueryOptions tune the read paths.
type QueryOptions struct {
	// WorkingHoursOnly clips each user's free time to their configured
	// working hours and working days before intersection.
	WorkingHoursOnly bool
	// Granularity enables sliding-window suggestions: slot starts step by
	// this duration inside each common free interval. Zero keeps the default
	// policy of one suggestion per qualifying interval.
	Granularity time.Duration
	// MaxSuggestions caps the suggestion count when positive.
	MaxSuggestions int
}

// userBusy is one user's resolved timeline.
type userBusy struct {
	slots    []BusySlot
	diags    []Diagnostic
	setting  *UserSetting
	resolved bool // false when the user has no resolvable calendar
}

// CheckAvailability returns the busy slots of every requested user inside the
// window, plus per-user diagnostics for non-fatal conditions (no resolvable
// calendar, malformed or truncated patterns).
func (a *Availability) CheckAvailability(ctx context.Context, userIDs []int64, window interval.Interval) ([]BusySlot, []Diagnostic, error) {
	if err := validateWindow(window); err != nil {
		return nil, nil, err
	}
	perUser, err := a.resolveAll(ctx, a.store, userIDs, window)
	if err != nil {
		return nil, nil, err
	}

	var slots []BusySlot
	var diags []Diagnostic
	for _, ub := range perUser {
		slots = append(slots, ub.slots...)
		diags = append(diags, ub.diags...)
	}
	sort.Slice(slots, func(i, j int) bool {
		if slots[i].StartTime.Equal(slots[j].StartTime) {
			return slots[i].UserID < slots[j].UserID
		}
		return slots[i].StartTime.Before(slots[j].StartTime)
	})
	return slots, diags, nil
}

// SuggestSlots intersects the users' free time and cuts the common windows
// into meeting candidates of the requested duration, earliest first. Users
// whose availability is unknown (no resolvable calendar) are excluded from
// the intersection and reported via diagnostics rather than assumed free.
func (a *Availability) SuggestSlots(ctx context.Context, userIDs []int64, window interval.Interval, duration time.Duration, opts QueryOptions) ([]TimeSuggestion, []Diagnostic, error) {
	if err := validateWindow(window); err != nil {
		return nil, nil, err
	}
	if duration <= 0 {
		return nil, nil, fmt.Errorf("%w: duration must be positive", ErrInvalidRange)
	}
	perUser, err := a.resolveAll(ctx, a.store, userIDs, window)
	if err != nil {
		return nil, nil, err
	}

	var diags []Diagnostic
	var freeLists [][]interval.Interval
	for _, ub := range perUser {
		diags = append(diags, ub.diags...)
		if !ub.resolved {
			continue
		}
		freeLists = append(freeLists, a.freeIntervals(ub, window, opts.WorkingHoursOnly))
	}
	if len(freeLists) == 0 {
		return nil, diags, nil
	}

	common := interval.IntersectAll(freeLists)
	var suggestions []TimeSuggestion
	for _, s := range interval.Slots(common, duration, opts.Granularity, opts.MaxSuggestions) {
		suggestions = append(suggestions, TimeSuggestion{StartTime: s.Start, EndTime: s.End})
	}
	return suggestions, diags, nil
}

// BlockTime reserves the window in the target calendar as a private,
// confirmed, non-recurring time_block event. The conflict check re-runs
// inside the same transaction as the insert, under a calendar-scoped lock, so
// two racing calls cannot both commit the same window.
func (a *Availability) BlockTime(ctx context.Context, userID int64, window interval.Interval, title string, calendarID *int64) (*Event, error) {
	if err := validateWindow(window); err != nil {
		return nil, err
	}
	if title == "" {
		title = "Blocked Time"
	}

	var created *Event
	err := a.store.InTx(ctx, func(tx Store) error {
		cal, err := a.resolveBlockCalendar(ctx, tx, userID, calendarID)
		if err != nil {
			return err
		}
		if err := tx.LockCalendar(ctx, cal.ID); err != nil {
			return err
		}

		setting, err := tx.GetUserSetting(ctx, userID)
		if err != nil {
			return err
		}
		busy, err := a.calendarBusy(ctx, tx, cal, userID, window, setting)
		if err != nil {
			return err
		}
		for _, b := range busy.slots {
			if b.StartTime.Before(window.End) && b.EndTime.After(window.Start) {
				return fmt.Errorf("%w: window overlaps %q", ErrConflict, b.EventTitle)
			}
		}

		ev := &Event{
			CalendarID:    cal.ID,
			Title:         title,
			EventType:     EventTimeBlock,
			StartTime:     window.Start.UTC(),
			EndTime:       window.End.UTC(),
			CreatorUserID: userID,
			Visibility:    VisibilityPrivate,
			Status:        StatusConfirmed,
		}
		if err := tx.CreateEvent(ctx, ev); err != nil {
			return err
		}
		created = ev
		return nil
	})
	if err != nil {
		return nil, err
	}
	a.log.Info("time block created",
		"user_id", userID, "event_id", created.ID,
		"start", created.StartTime, "end", created.EndTime)
	return created, nil
}

func (a *Availability) resolveBlockCalendar(ctx context.Context, tx Store, userID int64, calendarID *int64) (*Calendar, error) {
	if calendarID == nil {
		cal, err := tx.GetPrimaryCalendar(ctx, userID)
		if err != nil {
			return nil, err
		}
		if cal == nil {
			return nil, fmt.Errorf("%w: no primary calendar for user %d", ErrNotFound, userID)
		}
		return cal, nil
	}
	cal, err := tx.GetCalendar(ctx, *calendarID)
	if err != nil {
		return nil, err
	}
	if cal == nil {
		return nil, fmt.Errorf("%w: calendar %d", ErrNotFound, *calendarID)
	}
	if cal.IsTeamCalendar || cal.OwnerUserID == nil || *cal.OwnerUserID != userID {
		return nil, fmt.Errorf("%w: calendar %d is not the caller's personal calendar", ErrForbidden, *calendarID)
	}
	return cal, nil
}

// resolveAll fans out the per-user busy resolution. Fetches are independent,
// so they run concurrently; results keep the input order.
func (a *Availability) resolveAll(ctx context.Context, store Store, userIDs []int64, window interval.Interval) ([]userBusy, error) {
	results := make([]userBusy, len(userIDs))
	errs := make([]error, len(userIDs))

	var wg sync.WaitGroup
	for i, uid := range userIDs {
		wg.Add(1)
		go func(i int, uid int64) {
			defer wg.Done()
			results[i], errs[i] = a.resolveUser(ctx, store, uid, window)
		}(i, uid)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return results, nil
}

// resolveUser builds one user's busy timeline from the primary calendar's
// direct events and expanded recurring occurrences. Per-event recurrence
// failures degrade to diagnostics so one bad pattern cannot abort a
// multi-user query.
func (a *Availability) resolveUser(ctx context.Context, store Store, userID int64, window interval.Interval) (userBusy, error) {
	var ub userBusy

	cal, err := store.GetPrimaryCalendar(ctx, userID)
	if err != nil {
		return ub, err
	}
	if cal == nil {
		ub.diags = append(ub.diags, Diagnostic{
			UserID:  userID,
			Code:    DiagNoCalendar,
			Message: "no primary calendar; availability unknown",
		})
		return ub, nil
	}
	setting, err := store.GetUserSetting(ctx, userID)
	if err != nil {
		return ub, err
	}
	ub, err = a.calendarBusy(ctx, store, cal, userID, window, setting)
	if err != nil {
		return ub, err
	}
	ub.resolved = true
	return ub, nil
}

// calendarBusy collects one calendar's busy slots for the window, expanding
// recurring anchors in the user's timezone.
func (a *Availability) calendarBusy(ctx context.Context, store Store, cal *Calendar, userID int64, window interval.Interval, setting *UserSetting) (userBusy, error) {
	ub := userBusy{setting: setting}
	loc := setting.Location()

	events, err := store.GetEventsOverlapping(ctx, cal.ID, window)
	if err != nil {
		return ub, err
	}

	for i := range events {
		ev := &events[i]
		if !ev.CountsAsBusy() {
			continue
		}
		if ev.Pattern == nil {
			eventID := ev.ID
			ub.slots = append(ub.slots, BusySlot{
				UserID:     userID,
				StartTime:  ev.StartTime,
				EndTime:    ev.EndTime,
				EventID:    &eventID,
				EventTitle: ev.Title,
			})
			continue
		}

		res, err := recurrence.Expand(
			ev.Pattern.toExpanderPattern(),
			recurrence.Anchor{Start: ev.StartTime, End: ev.EndTime},
			window,
			recurrence.Options{Location: loc},
		)
		if err != nil {
			if errors.Is(err, recurrence.ErrMalformedPattern) {
				a.log.Warn("skipping malformed recurring pattern",
					"user_id", userID, "event_id", ev.ID, "err", err)
				ub.diags = append(ub.diags, Diagnostic{
					UserID:  userID,
					Code:    DiagPatternInvalid,
					Message: fmt.Sprintf("event %d: %v", ev.ID, err),
				})
				continue
			}
			return ub, err
		}
		if res.Truncated {
			ub.diags = append(ub.diags, Diagnostic{
				UserID:  userID,
				Code:    DiagRecurrenceTruncated,
				Message: fmt.Sprintf("event %d: occurrence generation hit the ceiling; result truncated", ev.ID),
			})
		}
		for _, occ := range res.Occurrences {
			eventID := ev.ID
			ub.slots = append(ub.slots, BusySlot{
				UserID:              userID,
				StartTime:           occ.Start,
				EndTime:             occ.End,
				EventID:             &eventID,
				EventTitle:          ev.Title,
				IsRecurringInstance: true,
			})
		}
	}

	sort.Slice(ub.slots, func(i, j int) bool { return ub.slots[i].StartTime.Before(ub.slots[j].StartTime) })
	return ub, nil
}

// freeIntervals turns one user's busy slots into the free gaps inside the
// window, optionally clipped to the user's working hours.
func (a *Availability) freeIntervals(ub userBusy, window interval.Interval, workingOnly bool) []interval.Interval {
	busy := make([]interval.Interval, 0, len(ub.slots))
	for _, s := range ub.slots {
		busy = append(busy, interval.Interval{Start: s.StartTime, End: s.EndTime})
	}
	free := interval.FreeWithin(window, busy)
	if !workingOnly {
		return free
	}
	allowed := workingWindows(ub.setting, window)
	return interval.Clip(free, allowed)
}

// workingWindows builds the user's working-hours intervals, one per working
// day the query window touches, in the user's timezone. Without configured
// hours the whole window is allowed.
func workingWindows(setting *UserSetting, window interval.Interval) []interval.Interval {
	if setting == nil || setting.WorkingHoursStart == "" || setting.WorkingHoursEnd == "" {
		return []interval.Interval{window}
	}
	startH, startM, err1 := parseHHMM(setting.WorkingHoursStart)
	endH, endM, err2 := parseHHMM(setting.WorkingHoursEnd)
	if err1 != nil || err2 != nil {
		return []interval.Interval{window}
	}

	workDays := make(map[string]struct{}, len(setting.WorkingDays))
	for _, d := range setting.WorkingDays {
		workDays[strings.ToLower(d)] = struct{}{}
	}

	loc := setting.Location()
	var out []interval.Interval
	local := window.Start.In(loc)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	for day.Before(window.End.In(loc)) {
		if _, ok := workDays[weekdayKey(day.Weekday())]; ok {
			iv := interval.Interval{
				Start: time.Date(day.Year(), day.Month(), day.Day(), startH, startM, 0, 0, loc).UTC(),
				End:   time.Date(day.Year(), day.Month(), day.Day(), endH, endM, 0, 0, loc).UTC(),
			}
			if iv.Valid() {
				out = append(out, iv)
			}
		}
		day = day.AddDate(0, 0, 1)
	}
	return out
}

func weekdayKey(wd time.Weekday) string {
	return strings.ToLower(wd.String()[:3])
}

// parseHHMM parses a "HH:MM" (or longer "HH:MM:SS...") clock string.
func parseHHMM(s string) (hour, min int, err error) {
	if len(s) < 5 {
		return 0, 0, fmt.Errorf("invalid time string: %s", s)
	}
	t, err := time.Parse("15:04", s[:5])
	if err != nil {
		return 0, 0, err
	}
	return t.Hour(), t.Minute(), nil
}

func validateWindow(w interval.Interval) error {
	if w.Start.IsZero() || w.End.IsZero() || !w.Start.Before(w.End) {
		return fmt.Errorf("%w: start must be before end", ErrInvalidRange)
	}
	return nil
}
