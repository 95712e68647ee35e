package app

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"calendar-service/internal/interval"
)

// MemoryStore is an in-memory Store used by tests and DB-less local runs. A
// single coarse transaction mutex stands in for Postgres' advisory locking:
// InTx holds it for the whole callback, so the block-time re-check and insert
// are serialized the same way they are in production.
type MemoryStore struct {
	mu   sync.RWMutex
	txMu sync.Mutex

	nextID    int64
	calendars map[int64]Calendar
	events    map[int64]Event
	settings  map[int64]UserSetting
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nextID:    1,
		calendars: make(map[int64]Calendar),
		events:    make(map[int64]Event),
		settings:  make(map[int64]UserSetting),
	}
}

func (s *MemoryStore) nextSeq() int64 {
	id := s.nextID
	s.nextID++
	return id
}

func (s *MemoryStore) GetPrimaryCalendar(_ context.Context, userID int64) (*Calendar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.calendars {
		if c.OwnerUserID != nil && *c.OwnerUserID == userID && c.IsPrimary && !c.IsTeamCalendar {
			cal := c
			return &cal, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) GetCalendar(_ context.Context, id int64) (*Calendar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.calendars[id]; ok {
		cal := c
		return &cal, nil
	}
	return nil, nil
}

func (s *MemoryStore) CreateCalendar(_ context.Context, cal *Calendar) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cal.ID = s.nextSeq()
	cal.CreatedAt = time.Now().UTC()
	s.calendars[cal.ID] = *cal
	return nil
}

func (s *MemoryStore) GetEventsOverlapping(_ context.Context, calendarID int64, window interval.Interval) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Event
	for _, ev := range s.events {
		if ev.CalendarID != calendarID || !ev.CountsAsBusy() {
			continue
		}
		if ev.Pattern == nil &&
			!(ev.StartTime.Before(window.End) && ev.EndTime.After(window.Start)) {
			continue
		}
		out = append(out, ev)
	}
	sortEventsByStart(out)
	return out, nil
}

func (s *MemoryStore) ListEvents(_ context.Context, calendarID int64, window *interval.Interval) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Event
	for _, ev := range s.events {
		if ev.CalendarID != calendarID || ev.IsDeleted {
			continue
		}
		if window != nil &&
			!(ev.StartTime.Before(window.End) && ev.EndTime.After(window.Start)) {
			continue
		}
		out = append(out, ev)
	}
	sortEventsByStart(out)
	return out, nil
}

func (s *MemoryStore) GetEvent(_ context.Context, id int64) (*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if ev, ok := s.events[id]; ok && !ev.IsDeleted {
		e := ev
		return &e, nil
	}
	return nil, nil
}

func (s *MemoryStore) CreateEvent(_ context.Context, ev *Event) error {
	if !ev.StartTime.Before(ev.EndTime) {
		return fmt.Errorf("%w: event end not after start", ErrInvalidRange)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if ev.Pattern != nil {
		ev.Pattern.ID = s.nextSeq()
		ev.RecurringPatternID = &ev.Pattern.ID
	}
	ev.ID = s.nextSeq()
	ev.CreatedAt = time.Now().UTC()
	ev.StartTime = ev.StartTime.UTC()
	ev.EndTime = ev.EndTime.UTC()
	s.events[ev.ID] = *ev
	return nil
}

func (s *MemoryStore) DeleteEvent(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[id]
	if !ok || ev.IsDeleted {
		return fmt.Errorf("%w: event %d", ErrNotFound, id)
	}
	ev.IsDeleted = true
	s.events[id] = ev
	return nil
}

func (s *MemoryStore) GetUserSetting(_ context.Context, userID int64) (*UserSetting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.settings[userID]; ok {
		setting := st
		return &setting, nil
	}
	return nil, nil
}

func (s *MemoryStore) PutUserSetting(_ context.Context, st *UserSetting) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[st.UserID] = *st
	return nil
}

func (s *MemoryStore) InTx(_ context.Context, fn func(tx Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return fn(s)
}

// LockCalendar is a no-op: InTx already serializes all memory-store writers.
func (s *MemoryStore) LockCalendar(context.Context, int64) error {
	return nil
}

func sortEventsByStart(evs []Event) {
	sort.Slice(evs, func(i, j int) bool {
		if evs[i].StartTime.Equal(evs[j].StartTime) {
			return evs[i].ID < evs[j].ID
		}
		return evs[i].StartTime.Before(evs[j].StartTime)
	})
}
