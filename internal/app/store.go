package app

import (
	"context"

	"calendar-service/internal/interval"
)

// Store is the event-store contract the availability engine depends on.
// Implemented by PostgresStore for production and MemoryStore for tests and
// local runs. Lookups that find nothing return (nil, nil); only real failures
// return an error.
type Store interface {
	GetPrimaryCalendar(ctx context.Context, userID int64) (*Calendar, error)
	GetCalendar(ctx context.Context, id int64) (*Calendar, error)
	CreateCalendar(ctx context.Context, cal *Calendar) error

	// GetEventsOverlapping returns the busy-relevant events of one calendar:
	// not deleted, not cancelled, and either directly overlapping the
	// half-open window or carrying a recurring pattern that may produce
	// occurrences inside it. Patterns are loaded eagerly.
	GetEventsOverlapping(ctx context.Context, calendarID int64, window interval.Interval) ([]Event, error)
	// ListEvents returns all non-deleted events of a calendar, optionally
	// restricted to a window, for the CRUD surface.
	ListEvents(ctx context.Context, calendarID int64, window *interval.Interval) ([]Event, error)
	GetEvent(ctx context.Context, id int64) (*Event, error)
	CreateEvent(ctx context.Context, ev *Event) error
	DeleteEvent(ctx context.Context, id int64) error

	GetUserSetting(ctx context.Context, userID int64) (*UserSetting, error)
	PutUserSetting(ctx context.Context, s *UserSetting) error

	// InTx runs fn against a transactional view of the store. The block-time
	// conflict re-check and insert run inside one such transaction.
	InTx(ctx context.Context, fn func(tx Store) error) error
	// LockCalendar serializes concurrent writers against one calendar for
	// the remainder of the current transaction.
	LockCalendar(ctx context.Context, calendarID int64) error
}
