package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"calendar-service/internal/interval"
	"calendar-service/internal/recurrence"
)

// pgxConn is the subset of pgxpool.Pool / pgx.Tx the store uses, so the same
// methods work inside and outside a transaction.
type pgxConn interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

type PostgresStore struct {
	db pgxConn
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: pool}
}

const calendarColumns = `id, name, COALESCE(description,''), owner_user_id, team_id, department_id,
	is_primary, is_team_calendar, created_at, COALESCE(updated_at, created_at)`

func scanCalendar(row pgx.Row) (*Calendar, error) {
	var c Calendar
	err := row.Scan(&c.ID, &c.Name, &c.Description, &c.OwnerUserID, &c.TeamID, &c.DepartmentID,
		&c.IsPrimary, &c.IsTeamCalendar, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *PostgresStore) GetPrimaryCalendar(ctx context.Context, userID int64) (*Calendar, error) {
	q := `SELECT ` + calendarColumns + ` FROM calendars
	      WHERE owner_user_id=$1 AND is_primary AND NOT is_team_calendar LIMIT 1`
	return scanCalendar(s.db.QueryRow(ctx, q, userID))
}

func (s *PostgresStore) GetCalendar(ctx context.Context, id int64) (*Calendar, error) {
	q := `SELECT ` + calendarColumns + ` FROM calendars WHERE id=$1`
	return scanCalendar(s.db.QueryRow(ctx, q, id))
}

func (s *PostgresStore) CreateCalendar(ctx context.Context, cal *Calendar) error {
	q := `INSERT INTO calendars
	      (name, description, owner_user_id, team_id, department_id, is_primary, is_team_calendar, created_at)
	      VALUES ($1,$2,$3,$4,$5,$6,$7,now()) RETURNING id, created_at`
	return s.db.QueryRow(ctx, q,
		cal.Name, cal.Description, cal.OwnerUserID, cal.TeamID, cal.DepartmentID,
		cal.IsPrimary, cal.IsTeamCalendar,
	).Scan(&cal.ID, &cal.CreatedAt)
}

const eventColumns = `e.id, e.calendar_id, e.title, COALESCE(e.description,''), COALESCE(e.location,''),
	e.event_type, e.start_time, e.end_time, e.creator_user_id, e.is_all_day, e.visibility,
	e.recurring_pattern_id, e.task_id, e.status, e.is_deleted, e.created_at,
	p.id, p.frequency, p."interval", p.start_date, p.end_date, p."count",
	p.days_of_week, p.day_of_month, p.week_of_month, p.month_of_year, p.excluded_dates`

const eventFrom = ` FROM events e
	LEFT JOIN recurring_patterns p ON p.id = e.recurring_pattern_id`

func scanEventRow(rows pgx.Rows) (Event, error) {
	var (
		ev    Event
		pid   *int64
		pfreq *string
		pint  *int
		psd   *time.Time
		ped   *time.Time
		pcnt  *int
		pdays []string
		pdom  *int
		pwom  *string
		pmoy  *int
		pexcl []time.Time
	)
	err := rows.Scan(
		&ev.ID, &ev.CalendarID, &ev.Title, &ev.Description, &ev.Location,
		&ev.EventType, &ev.StartTime, &ev.EndTime, &ev.CreatorUserID, &ev.IsAllDay, &ev.Visibility,
		&ev.RecurringPatternID, &ev.TaskID, &ev.Status, &ev.IsDeleted, &ev.CreatedAt,
		&pid, &pfreq, &pint, &psd, &ped, &pcnt,
		&pdays, &pdom, &pwom, &pmoy, &pexcl,
	)
	if err != nil {
		return ev, err
	}
	ev.StartTime = ev.StartTime.UTC()
	ev.EndTime = ev.EndTime.UTC()
	if pid != nil {
		p := &RecurringPattern{
			ID:            *pid,
			Interval:      1,
			DaysOfWeek:    pdays,
			DayOfMonth:    pdom,
			MonthOfYear:   pmoy,
			ExcludedDates: pexcl,
			EndDate:       ped,
			Count:         pcnt,
		}
		if pfreq != nil {
			p.Frequency = recurrence.Frequency(*pfreq)
		}
		if pint != nil {
			p.Interval = *pint
		}
		if psd != nil {
			p.StartDate = *psd
		}
		if pwom != nil {
			w := recurrence.WeekOfMonth(*pwom)
			p.WeekOfMonth = &w
		}
		ev.Pattern = p
	}
	return ev, nil
}

func (s *PostgresStore) queryEvents(ctx context.Context, q string, args ...any) ([]Event, error) {
	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		ev, err := scanEventRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetEventsOverlapping(ctx context.Context, calendarID int64, window interval.Interval) ([]Event, error) {
	// Recurring anchors join on their pattern's date range instead of the
	// stored start/end: the anchor row may sit outside the window while its
	// occurrences fall inside.
	q := `SELECT ` + eventColumns + eventFrom + `
	      WHERE e.calendar_id=$1 AND NOT e.is_deleted AND e.status <> 'cancelled'
	        AND (
	          (e.recurring_pattern_id IS NULL AND e.start_time < $3 AND e.end_time > $2)
	          OR (e.recurring_pattern_id IS NOT NULL
	              AND p.start_date < $3::date + 1
	              AND (p.end_date IS NULL OR p.end_date >= $2::date - 1))
	        )
	      ORDER BY e.start_time`
	return s.queryEvents(ctx, q, calendarID, window.Start, window.End)
}

func (s *PostgresStore) ListEvents(ctx context.Context, calendarID int64, window *interval.Interval) ([]Event, error) {
	if window != nil {
		q := `SELECT ` + eventColumns + eventFrom + `
		      WHERE e.calendar_id=$1 AND NOT e.is_deleted
		        AND e.start_time < $3 AND e.end_time > $2
		      ORDER BY e.start_time`
		return s.queryEvents(ctx, q, calendarID, window.Start, window.End)
	}
	q := `SELECT ` + eventColumns + eventFrom + `
	      WHERE e.calendar_id=$1 AND NOT e.is_deleted
	      ORDER BY e.start_time`
	return s.queryEvents(ctx, q, calendarID)
}

func (s *PostgresStore) GetEvent(ctx context.Context, id int64) (*Event, error) {
	q := `SELECT ` + eventColumns + eventFrom + ` WHERE e.id=$1 AND NOT e.is_deleted`
	rows, err := s.db.Query(ctx, q, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, rows.Err()
	}
	ev, err := scanEventRow(rows)
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

func (s *PostgresStore) CreateEvent(ctx context.Context, ev *Event) error {
	if !ev.StartTime.Before(ev.EndTime) {
		return fmt.Errorf("%w: event end not after start", ErrInvalidRange)
	}
	if ev.Pattern != nil {
		p := ev.Pattern
		q := `INSERT INTO recurring_patterns
		      (frequency, "interval", start_date, end_date, "count",
		       days_of_week, day_of_month, week_of_month, month_of_year, excluded_dates, created_at)
		      VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,now()) RETURNING id`
		var wom *string
		if p.WeekOfMonth != nil {
			w := string(*p.WeekOfMonth)
			wom = &w
		}
		err := s.db.QueryRow(ctx, q,
			string(p.Frequency), p.Interval, p.StartDate, p.EndDate, p.Count,
			p.DaysOfWeek, p.DayOfMonth, wom, p.MonthOfYear, p.ExcludedDates,
		).Scan(&p.ID)
		if err != nil {
			return err
		}
		ev.RecurringPatternID = &p.ID
	}

	q := `INSERT INTO events
	      (calendar_id, title, description, location, event_type, start_time, end_time,
	       creator_user_id, is_all_day, visibility, recurring_pattern_id, task_id, status, is_deleted, created_at)
	      VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,false,now())
	      RETURNING id, created_at`
	return s.db.QueryRow(ctx, q,
		ev.CalendarID, ev.Title, ev.Description, ev.Location, string(ev.EventType),
		ev.StartTime.UTC(), ev.EndTime.UTC(), ev.CreatorUserID, ev.IsAllDay,
		string(ev.Visibility), ev.RecurringPatternID, ev.TaskID, string(ev.Status),
	).Scan(&ev.ID, &ev.CreatedAt)
}

func (s *PostgresStore) DeleteEvent(ctx context.Context, id int64) error {
	tag, err := s.db.Exec(ctx, `UPDATE events SET is_deleted=true WHERE id=$1 AND NOT is_deleted`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: event %d", ErrNotFound, id)
	}
	return nil
}

func (s *PostgresStore) GetUserSetting(ctx context.Context, userID int64) (*UserSetting, error) {
	q := `SELECT user_id, timezone, default_event_duration, week_start_day,
	             COALESCE(working_hours_start,''), COALESCE(working_hours_end,''),
	             working_days, show_weekends, default_view, created_at
	      FROM user_settings WHERE user_id=$1`
	var st UserSetting
	err := s.db.QueryRow(ctx, q, userID).Scan(
		&st.UserID, &st.Timezone, &st.DefaultEventDuration, &st.WeekStartDay,
		&st.WorkingHoursStart, &st.WorkingHoursEnd,
		&st.WorkingDays, &st.ShowWeekends, &st.DefaultView, &st.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *PostgresStore) PutUserSetting(ctx context.Context, st *UserSetting) error {
	q := `INSERT INTO user_settings
	      (user_id, timezone, default_event_duration, week_start_day,
	       working_hours_start, working_hours_end, working_days, show_weekends, default_view, created_at)
	      VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,now())
	      ON CONFLICT (user_id) DO UPDATE SET
	        timezone=EXCLUDED.timezone,
	        default_event_duration=EXCLUDED.default_event_duration,
	        week_start_day=EXCLUDED.week_start_day,
	        working_hours_start=EXCLUDED.working_hours_start,
	        working_hours_end=EXCLUDED.working_hours_end,
	        working_days=EXCLUDED.working_days,
	        show_weekends=EXCLUDED.show_weekends,
	        default_view=EXCLUDED.default_view,
	        updated_at=now()`
	_, err := s.db.Exec(ctx, q,
		st.UserID, st.Timezone, st.DefaultEventDuration, st.WeekStartDay,
		st.WorkingHoursStart, st.WorkingHoursEnd, st.WorkingDays, st.ShowWeekends, st.DefaultView,
	)
	return err
}

func (s *PostgresStore) InTx(ctx context.Context, fn func(tx Store) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(&PostgresStore{db: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// LockCalendar takes a transaction-scoped advisory lock keyed by calendar id,
// serializing concurrent block-time writers against the same calendar. It
// must be called inside InTx.
func (s *PostgresStore) LockCalendar(ctx context.Context, calendarID int64) error {
	_, err := s.db.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, calendarID)
	return err
}
