package app

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"calendar-service/internal/interval"
	"calendar-service/internal/recurrence"
)

// App wires the HTTP surface to the store and the availability engine.
type App struct {
	Store        Store
	Availability *Availability
	Log          *slog.Logger
}

func NewApp(store Store, logger *slog.Logger) *App {
	return &App{
		Store:        store,
		Availability: NewAvailability(store, logger),
		Log:          logger,
	}
}

func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrInvalidRange):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

type availabilityQuery struct {
	UserIDs   []int64   `json:"user_ids" binding:"required,min=1"`
	StartTime time.Time `json:"start_time" binding:"required"`
	EndTime   time.Time `json:"end_time" binding:"required"`
}

// POST /api/v1/availability/check
func (a *App) CheckAvailabilityHandler(c *gin.Context) {
	var q availabilityQuery
	if err := c.BindJSON(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	window := interval.Interval{Start: q.StartTime.UTC(), End: q.EndTime.UTC()}
	slots, diags, err := a.Availability.CheckAvailability(c.Request.Context(), q.UserIDs, window)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"busy_slots":  emptyIfNilSlots(slots),
		"diagnostics": emptyIfNilDiags(diags),
	})
}

type suggestionQuery struct {
	availabilityQuery
	DurationMinutes    int  `json:"duration_minutes" binding:"required,gt=0"`
	WorkingHoursOnly   bool `json:"working_hours_only"`
	GranularityMinutes int  `json:"granularity_minutes"`
	MaxSuggestions     int  `json:"max_suggestions"`
}

// POST /api/v1/availability/suggestions
func (a *App) SuggestSlotsHandler(c *gin.Context) {
	var q suggestionQuery
	if err := c.BindJSON(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	window := interval.Interval{Start: q.StartTime.UTC(), End: q.EndTime.UTC()}
	opts := QueryOptions{
		WorkingHoursOnly: q.WorkingHoursOnly,
		Granularity:      time.Duration(q.GranularityMinutes) * time.Minute,
		MaxSuggestions:   q.MaxSuggestions,
	}
	suggestions, diags, err := a.Availability.SuggestSlots(
		c.Request.Context(), q.UserIDs, window,
		time.Duration(q.DurationMinutes)*time.Minute, opts,
	)
	if err != nil {
		respondError(c, err)
		return
	}
	if suggestions == nil {
		suggestions = []TimeSuggestion{}
	}
	c.JSON(http.StatusOK, gin.H{
		"suggestions": suggestions,
		"diagnostics": emptyIfNilDiags(diags),
	})
}

type blockTimeQuery struct {
	StartTime  time.Time `json:"start_time" binding:"required"`
	EndTime    time.Time `json:"end_time" binding:"required"`
	Title      string    `json:"title"`
	CalendarID *int64    `json:"calendar_id"`
}

// POST /api/v1/availability/block
func (a *App) BlockTimeHandler(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "caller identity required"})
		return
	}
	var q blockTimeQuery
	if err := c.BindJSON(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	window := interval.Interval{Start: q.StartTime.UTC(), End: q.EndTime.UTC()}
	ev, err := a.Availability.BlockTime(c.Request.Context(), userID, window, q.Title, q.CalendarID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ev)
}

type createCalendarReq struct {
	Name           string `json:"name" binding:"required"`
	Description    string `json:"description"`
	OwnerUserID    *int64 `json:"owner_user_id"`
	TeamID         *int64 `json:"team_id"`
	DepartmentID   *int64 `json:"department_id"`
	IsPrimary      bool   `json:"is_primary"`
	IsTeamCalendar bool   `json:"is_team_calendar"`
}

// POST /api/v1/calendars
func (a *App) CreateCalendarHandler(c *gin.Context) {
	var req createCalendarReq
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cal := &Calendar{
		Name:           req.Name,
		Description:    req.Description,
		OwnerUserID:    req.OwnerUserID,
		TeamID:         req.TeamID,
		DepartmentID:   req.DepartmentID,
		IsPrimary:      req.IsPrimary,
		IsTeamCalendar: req.IsTeamCalendar,
	}
	if err := a.Store.CreateCalendar(c.Request.Context(), cal); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, cal)
}

// GET /api/v1/calendars/:id
func (a *App) GetCalendarHandler(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid calendar id"})
		return
	}
	cal, err := a.Store.GetCalendar(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	if cal == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "calendar not found"})
		return
	}
	c.JSON(http.StatusOK, cal)
}

type recurringPatternReq struct {
	Frequency     recurrence.Frequency    `json:"frequency" binding:"required"`
	Interval      int                     `json:"interval"`
	StartDate     string                  `json:"start_date" binding:"required"` // "2006-01-02"
	EndDate       *string                 `json:"end_date"`
	Count         *int                    `json:"count"`
	DaysOfWeek    []string                `json:"days_of_week"`
	DayOfMonth    *int                    `json:"day_of_month"`
	WeekOfMonth   *recurrence.WeekOfMonth `json:"week_of_month"`
	MonthOfYear   *int                    `json:"month_of_year"`
	ExcludedDates []string                `json:"excluded_dates"`
}

func (r *recurringPatternReq) toModel() (*RecurringPattern, error) {
	start, err := time.Parse(time.DateOnly, r.StartDate)
	if err != nil {
		return nil, err
	}
	p := &RecurringPattern{
		Frequency:   r.Frequency,
		Interval:    r.Interval,
		StartDate:   start,
		Count:       r.Count,
		DaysOfWeek:  r.DaysOfWeek,
		DayOfMonth:  r.DayOfMonth,
		WeekOfMonth: r.WeekOfMonth,
		MonthOfYear: r.MonthOfYear,
	}
	if p.Interval < 1 {
		p.Interval = 1
	}
	if r.EndDate != nil {
		end, err := time.Parse(time.DateOnly, *r.EndDate)
		if err != nil {
			return nil, err
		}
		p.EndDate = &end
	}
	for _, d := range r.ExcludedDates {
		ex, err := time.Parse(time.DateOnly, d)
		if err != nil {
			return nil, err
		}
		p.ExcludedDates = append(p.ExcludedDates, ex)
	}
	return p, nil
}

type createEventReq struct {
	CalendarID    int64                `json:"calendar_id" binding:"required"`
	Title         string               `json:"title" binding:"required"`
	Description   string               `json:"description"`
	Location      string               `json:"location"`
	EventType     EventType            `json:"event_type"`
	StartTime     time.Time            `json:"start_time" binding:"required"`
	EndTime       time.Time            `json:"end_time" binding:"required"`
	CreatorUserID int64                `json:"creator_user_id"`
	IsAllDay      bool                 `json:"is_all_day"`
	Visibility    EventVisibility      `json:"visibility"`
	Status        EventStatus          `json:"status"`
	TaskID        *int64               `json:"task_id"`
	Pattern       *recurringPatternReq `json:"recurring_pattern"`
}

// POST /api/v1/events
func (a *App) CreateEventHandler(c *gin.Context) {
	var req createEventReq
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !req.StartTime.Before(req.EndTime) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "start_time must be before end_time"})
		return
	}
	creator := req.CreatorUserID
	if creator == 0 {
		if uid, ok := currentUserID(c); ok {
			creator = uid
		}
	}

	ev := &Event{
		CalendarID:    req.CalendarID,
		Title:         req.Title,
		Description:   req.Description,
		Location:      req.Location,
		EventType:     req.EventType,
		StartTime:     req.StartTime.UTC(),
		EndTime:       req.EndTime.UTC(),
		CreatorUserID: creator,
		IsAllDay:      req.IsAllDay,
		Visibility:    req.Visibility,
		Status:        req.Status,
		TaskID:        req.TaskID,
	}
	if ev.EventType == "" {
		ev.EventType = EventMeeting
	}
	if ev.Visibility == "" {
		ev.Visibility = VisibilityParticipantsOnly
	}
	if ev.Status == "" {
		ev.Status = StatusConfirmed
	}
	if req.Pattern != nil {
		p, err := req.Pattern.toModel()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid recurring_pattern: " + err.Error()})
			return
		}
		if p.EndDate != nil && p.Count != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "recurring_pattern may set end_date or count, not both"})
			return
		}
		ev.Pattern = p
	}

	if err := a.Store.CreateEvent(c.Request.Context(), ev); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ev)
}

// GET /api/v1/events?calendar_id=N&from=ISO&to=ISO
func (a *App) ListEventsHandler(c *gin.Context) {
	calendarID, err := strconv.ParseInt(c.Query("calendar_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "calendar_id required"})
		return
	}
	var window *interval.Interval
	fromStr, toStr := c.Query("from"), c.Query("to")
	if fromStr != "" && toStr != "" {
		from, err := time.Parse(time.RFC3339, fromStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from"})
			return
		}
		to, err := time.Parse(time.RFC3339, toStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to"})
			return
		}
		if !from.Before(to) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "from must be before to"})
			return
		}
		window = &interval.Interval{Start: from.UTC(), End: to.UTC()}
	}
	events, err := a.Store.ListEvents(c.Request.Context(), calendarID, window)
	if err != nil {
		respondError(c, err)
		return
	}
	if events == nil {
		events = []Event{}
	}
	c.JSON(http.StatusOK, events)
}

// DELETE /api/v1/events/:id
func (a *App) DeleteEventHandler(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event id"})
		return
	}
	if err := a.Store.DeleteEvent(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// GET /api/v1/settings/:user_id
func (a *App) GetSettingsHandler(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}
	st, err := a.Store.GetUserSetting(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	if st == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "settings not found"})
		return
	}
	c.JSON(http.StatusOK, st)
}

type putSettingsReq struct {
	Timezone             string   `json:"timezone"`
	DefaultEventDuration int      `json:"default_event_duration"`
	WeekStartDay         string   `json:"week_start_day"`
	WorkingHoursStart    string   `json:"working_hours_start"`
	WorkingHoursEnd      string   `json:"working_hours_end"`
	WorkingDays          []string `json:"working_days"`
	ShowWeekends         *bool    `json:"show_weekends"`
	DefaultView          string   `json:"default_view"`
}

// PUT /api/v1/settings/:user_id
func (a *App) PutSettingsHandler(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}
	var req putSettingsReq
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	st := &UserSetting{
		UserID:               userID,
		Timezone:             req.Timezone,
		DefaultEventDuration: req.DefaultEventDuration,
		WeekStartDay:         req.WeekStartDay,
		WorkingHoursStart:    req.WorkingHoursStart,
		WorkingHoursEnd:      req.WorkingHoursEnd,
		WorkingDays:          req.WorkingDays,
		DefaultView:          req.DefaultView,
		ShowWeekends:         true,
	}
	if req.ShowWeekends != nil {
		st.ShowWeekends = *req.ShowWeekends
	}
	if st.Timezone == "" {
		st.Timezone = "UTC"
	}
	if st.DefaultEventDuration == 0 {
		st.DefaultEventDuration = 60
	}
	if st.WeekStartDay == "" {
		st.WeekStartDay = "mon"
	}
	if st.DefaultView == "" {
		st.DefaultView = "week"
	}
	if err := a.Store.PutUserSetting(c.Request.Context(), st); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func emptyIfNilSlots(s []BusySlot) []BusySlot {
	if s == nil {
		return []BusySlot{}
	}
	return s
}

func emptyIfNilDiags(d []Diagnostic) []Diagnostic {
	if d == nil {
		return []Diagnostic{}
	}
	return d
}
