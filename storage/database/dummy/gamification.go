package dummydb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/trezcool/dabestan/core"
	"github.com/trezcool/dabestan/core/gamification"
)

var profileComparators = comparators[gamification.StudentProfile]{
	"total_points": func(a, b gamification.StudentProfile) int { return cmpInt(a.TotalPoints, b.TotalPoints) },
	"level":        func(a, b gamification.StudentProfile) int { return cmpInt(a.Level, b.Level) },
}

type gamificationRepository struct {
	db *DB
}

var _ gamification.Repository = (*gamificationRepository)(nil) // interface compliance check

func NewGamificationRepository(db *DB) gamification.Repository {
	return &gamificationRepository{db: db}
}

func eventTypeByCode(t *tables, code string) (gamification.EventType, bool) {
	for _, et := range t.eventTypes {
		if et.Code == code {
			return et, true
		}
	}
	return gamification.EventType{}, false
}

func profileByStudent(t *tables, studentID string) (gamification.StudentProfile, bool) {
	for _, p := range t.profiles {
		if p.StudentID == studentID {
			return p, true
		}
	}
	return gamification.StudentProfile{}, false
}

// Event types

func (repo *gamificationRepository) GetOrCreateEventType(_ context.Context, def gamification.EventDefinition, exec ...core.DBExecutor) (gamification.EventType, error) {
	var et gamification.EventType
	_ = repo.db.write(exec, func(t *tables) error {
		var ok bool
		if et, ok = eventTypeByCode(t, def.Code); ok {
			return nil
		}
		et = gamification.EventType{
			ID:          uuid.New().String(),
			Code:        def.Code,
			Name:        def.Name,
			Description: def.Description,
			Points:      def.Points,
		}
		t.eventTypes[et.ID] = et
		return nil
	})
	return et, nil
}

func (repo *gamificationRepository) QueryEventTypes(_ context.Context, exec ...core.DBExecutor) ([]gamification.EventType, error) {
	ets := make([]gamification.EventType, 0)
	_ = repo.db.read(exec, func(t *tables) error {
		for _, et := range t.eventTypes {
			ets = append(ets, et)
		}
		return nil
	})
	sort.Slice(ets, func(i, j int) bool { return ets[i].Code < ets[j].Code })
	return ets, nil
}

func (repo *gamificationRepository) SaveEventType(_ context.Context, et gamification.EventType, exec ...core.DBExecutor) (gamification.EventType, error) {
	_ = repo.db.write(exec, func(t *tables) error {
		if existing, ok := eventTypeByCode(t, et.Code); ok {
			et.ID = existing.ID
		} else {
			et.ID = uuid.New().String()
		}
		t.eventTypes[et.ID] = et
		return nil
	})
	return et, nil
}

// Profiles

func (repo *gamificationRepository) CreateProfile(_ context.Context, studentID string, exec ...core.DBExecutor) (gamification.StudentProfile, error) {
	var p gamification.StudentProfile
	_ = repo.db.write(exec, func(t *tables) error {
		var ok bool
		if p, ok = profileByStudent(t, studentID); ok {
			return nil
		}
		p = gamification.StudentProfile{
			ID:        uuid.New().String(),
			StudentID: studentID,
			Level:     gamification.BaseLevel,
		}
		t.profiles[p.ID] = p
		return nil
	})
	return p, nil
}

func (repo *gamificationRepository) GetProfile(_ context.Context, studentID string, exec ...core.DBExecutor) (gamification.StudentProfile, error) {
	var (
		p     gamification.StudentProfile
		found bool
	)
	_ = repo.db.read(exec, func(t *tables) error {
		p, found = profileByStudent(t, studentID)
		return nil
	})
	if !found {
		return gamification.StudentProfile{}, gamification.ErrProfileNotFound
	}
	return p, nil
}

// GetProfileForUpdate needs no lock: transactions are serialized.
func (repo *gamificationRepository) GetProfileForUpdate(ctx context.Context, studentID string, exec ...core.DBExecutor) (gamification.StudentProfile, error) {
	return repo.GetProfile(ctx, studentID, exec...)
}

func (repo *gamificationRepository) QueryProfiles(_ context.Context, filter *gamification.ProfileFilter, ordering []core.DBOrdering, limit int, exec ...core.DBExecutor) ([]gamification.StudentProfile, error) {
	profiles := make([]gamification.StudentProfile, 0)
	_ = repo.db.read(exec, func(t *tables) error {
		for _, p := range t.profiles {
			if filter != nil {
				if filter.StudentID != "" && p.StudentID != filter.StudentID {
					continue
				}
				if filter.Level != nil && p.Level != *filter.Level {
					continue
				}
				if filter.MinTotalPoints != nil && p.TotalPoints < *filter.MinTotalPoints {
					continue
				}
				if filter.MaxTotalPoints != nil && p.TotalPoints > *filter.MaxTotalPoints {
					continue
				}
			}
			profiles = append(profiles, p)
		}
		return nil
	})
	sort.Slice(profiles, func(i, j int) bool { return profiles[i].ID < profiles[j].ID })
	sortBy(profiles, ordering, profileComparators)
	if limit > 0 && len(profiles) > limit {
		profiles = profiles[:limit]
	}
	return profiles, nil
}

func (repo *gamificationRepository) UpdateProfile(_ context.Context, p gamification.StudentProfile, exec ...core.DBExecutor) error {
	return repo.db.write(exec, func(t *tables) error {
		if _, ok := t.profiles[p.ID]; !ok {
			return gamification.ErrProfileNotFound
		}
		t.profiles[p.ID] = p
		return nil
	})
}

// Events

func (repo *gamificationRepository) CreateEvent(_ context.Context, ev gamification.StudentEvent, exec ...core.DBExecutor) (gamification.StudentEvent, error) {
	_ = repo.db.write(exec, func(t *tables) error {
		ev.ID = uuid.New().String()
		t.events = append(t.events, ev)
		return nil
	})
	return ev, nil
}

func (repo *gamificationRepository) QueryEvents(_ context.Context, profileID string, exec ...core.DBExecutor) ([]gamification.StudentEvent, error) {
	events := make([]gamification.StudentEvent, 0)
	_ = repo.db.read(exec, func(t *tables) error {
		// newest first
		for i := len(t.events) - 1; i >= 0; i-- {
			ev := t.events[i]
			if ev.ProfileID != profileID {
				continue
			}
			et := t.eventTypes[ev.EventTypeID]
			ev.Code, ev.Points = et.Code, et.Points
			events = append(events, ev)
		}
		return nil
	})
	return events, nil
}

func (repo *gamificationRepository) SumPoints(_ context.Context, profileID string, exec ...core.DBExecutor) (int, error) {
	var total int
	_ = repo.db.read(exec, func(t *tables) error {
		for _, ev := range t.events {
			if ev.ProfileID == profileID {
				total += t.eventTypes[ev.EventTypeID].Points
			}
		}
		return nil
	})
	return total, nil
}

// Level thresholds

func (repo *gamificationRepository) QueryThresholds(_ context.Context, exec ...core.DBExecutor) ([]gamification.LevelThreshold, error) {
	ths := make([]gamification.LevelThreshold, 0)
	_ = repo.db.read(exec, func(t *tables) error {
		for _, th := range t.thresholds {
			ths = append(ths, th)
		}
		return nil
	})
	sort.Slice(ths, func(i, j int) bool { return ths[i].MinPoints < ths[j].MinPoints })
	return ths, nil
}

func (repo *gamificationRepository) LockThresholds(context.Context, ...core.DBExecutor) error {
	return nil
}

func (repo *gamificationRepository) SaveThreshold(_ context.Context, th gamification.LevelThreshold, exec ...core.DBExecutor) error {
	return repo.db.write(exec, func(t *tables) error {
		t.thresholds[th.Level] = th
		return nil
	})
}

func (repo *gamificationRepository) DeleteThreshold(_ context.Context, level int, exec ...core.DBExecutor) error {
	return repo.db.write(exec, func(t *tables) error {
		if _, ok := t.thresholds[level]; !ok {
			return gamification.ErrThresholdNotFound
		}
		delete(t.thresholds, level)
		return nil
	})
}
