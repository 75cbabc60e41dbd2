package sqlxrepos

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/dabestan/core"
	"github.com/trezcool/dabestan/core/gamification"
)

var (
	eventTypeColumns = []string{"id", "code", "name", "description", "points"}
	profileColumns   = []string{"id", "student_id", "total_points", "level"}

	profileOrderColumns = map[string]string{
		"total_points": "total_points",
		"level":        "level",
	}
)

type gamificationRepository struct {
	repository
}

var _ gamification.Repository = (*gamificationRepository)(nil) // interface compliance check

func NewGamificationRepository(db *sqlx.DB) gamification.Repository {
	return &gamificationRepository{repository{db: db}}
}

// Event types

func (repo gamificationRepository) GetOrCreateEventType(ctx context.Context, def gamification.EventDefinition, exec ...core.DBExecutor) (gamification.EventType, error) {
	ins := psql.Insert("event_type").
		Columns(eventTypeColumns...).
		Values(uuid.New().String(), def.Code, def.Name, def.Description, def.Points).
		Suffix("ON CONFLICT (code) DO NOTHING")
	if _, err := repo.exec(ctx, exec, ins); err != nil {
		return gamification.EventType{}, errors.Wrap(err, "inserting event type")
	}

	// re-read: a concurrent insert may have won
	var et gamification.EventType
	b := psql.Select(eventTypeColumns...).From("event_type").Where(sq.Eq{"code": def.Code})
	if err := repo.get(ctx, exec, &et, b); err != nil {
		return gamification.EventType{}, errors.Wrap(err, "getting event type")
	}
	return et, nil
}

func (repo gamificationRepository) QueryEventTypes(ctx context.Context, exec ...core.DBExecutor) ([]gamification.EventType, error) {
	ets := make([]gamification.EventType, 0)
	b := psql.Select(eventTypeColumns...).From("event_type").OrderBy("code ASC")
	if err := repo.selectAll(ctx, exec, &ets, b); err != nil {
		return nil, errors.Wrap(err, "querying event types")
	}
	return ets, nil
}

func (repo gamificationRepository) SaveEventType(ctx context.Context, et gamification.EventType, exec ...core.DBExecutor) (gamification.EventType, error) {
	b := psql.Insert("event_type").
		Columns(eventTypeColumns...).
		Values(uuid.New().String(), et.Code, et.Name, et.Description, et.Points).
		Suffix("ON CONFLICT (code) DO UPDATE SET name = EXCLUDED.name, description = EXCLUDED.description, points = EXCLUDED.points " +
			"RETURNING id, code, name, description, points")

	var saved gamification.EventType
	if err := repo.get(ctx, exec, &saved, b); err != nil {
		return gamification.EventType{}, errors.Wrap(err, "upserting event type")
	}
	return saved, nil
}

// Profiles

func (repo gamificationRepository) CreateProfile(ctx context.Context, studentID string, exec ...core.DBExecutor) (gamification.StudentProfile, error) {
	ins := psql.Insert("student_profile").
		Columns(profileColumns...).
		Values(uuid.New().String(), studentID, 0, gamification.BaseLevel).
		Suffix("ON CONFLICT (student_id) DO NOTHING")
	if _, err := repo.exec(ctx, exec, ins); err != nil {
		return gamification.StudentProfile{}, errors.Wrap(err, "inserting profile")
	}
	return repo.GetProfile(ctx, studentID, exec...)
}

func (repo gamificationRepository) getProfile(ctx context.Context, studentID string, forUpdate bool, exec []core.DBExecutor) (gamification.StudentProfile, error) {
	if _, err := uuid.Parse(studentID); err != nil {
		return gamification.StudentProfile{}, gamification.ErrProfileNotFound
	}
	b := psql.Select(profileColumns...).From("student_profile").Where(sq.Eq{"student_id": studentID})
	if forUpdate {
		b = b.Suffix("FOR UPDATE")
	}
	var p gamification.StudentProfile
	if err := repo.get(ctx, exec, &p, b); err != nil {
		return gamification.StudentProfile{}, trapNoRows(err, gamification.ErrProfileNotFound, "getting profile")
	}
	return p, nil
}

func (repo gamificationRepository) GetProfile(ctx context.Context, studentID string, exec ...core.DBExecutor) (gamification.StudentProfile, error) {
	return repo.getProfile(ctx, studentID, false, exec)
}

func (repo gamificationRepository) GetProfileForUpdate(ctx context.Context, studentID string, exec ...core.DBExecutor) (gamification.StudentProfile, error) {
	return repo.getProfile(ctx, studentID, true, exec)
}

func (repo gamificationRepository) QueryProfiles(ctx context.Context, filter *gamification.ProfileFilter, ordering []core.DBOrdering, limit int, exec ...core.DBExecutor) ([]gamification.StudentProfile, error) {
	b := psql.Select(profileColumns...).From("student_profile")
	if filter != nil {
		if filter.StudentID != "" {
			b = b.Where(sq.Eq{"student_id": filter.StudentID})
		}
		if filter.Level != nil {
			b = b.Where(sq.Eq{"level": *filter.Level})
		}
		if filter.MinTotalPoints != nil {
			b = b.Where(sq.GtOrEq{"total_points": *filter.MinTotalPoints})
		}
		if filter.MaxTotalPoints != nil {
			b = b.Where(sq.LtOrEq{"total_points": *filter.MaxTotalPoints})
		}
	}
	b = orderBy(b, ordering, profileOrderColumns).OrderBy("id ASC")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}

	profiles := make([]gamification.StudentProfile, 0)
	if err := repo.selectAll(ctx, exec, &profiles, b); err != nil {
		return nil, errors.Wrap(err, "querying profiles")
	}
	return profiles, nil
}

func (repo gamificationRepository) UpdateProfile(ctx context.Context, p gamification.StudentProfile, exec ...core.DBExecutor) error {
	b := psql.Update("student_profile").
		Set("total_points", p.TotalPoints).
		Set("level", p.Level).
		Where(sq.Eq{"id": p.ID})
	return repo.execOne(ctx, exec, b, gamification.ErrProfileNotFound)
}

// Events

func (repo gamificationRepository) CreateEvent(ctx context.Context, ev gamification.StudentEvent, exec ...core.DBExecutor) (gamification.StudentEvent, error) {
	ev.ID = uuid.New().String()
	b := psql.Insert("student_event").
		Columns("id", "student_profile_id", "event_type_id", "note", "created_at").
		Values(ev.ID, ev.ProfileID, ev.EventTypeID, ev.Note, ev.CreatedAt.UTC())
	if _, err := repo.exec(ctx, exec, b); err != nil {
		return gamification.StudentEvent{}, errors.Wrap(err, "inserting student event")
	}
	return ev, nil
}

func (repo gamificationRepository) QueryEvents(ctx context.Context, profileID string, exec ...core.DBExecutor) ([]gamification.StudentEvent, error) {
	b := psql.Select(
		"se.id", "se.student_profile_id", "se.event_type_id", "se.note", "se.created_at", "et.code", "et.points",
	).
		From("student_event se").
		Join("event_type et ON et.id = se.event_type_id").
		Where(sq.Eq{"se.student_profile_id": profileID}).
		OrderBy("se.created_at DESC")

	events := make([]gamification.StudentEvent, 0)
	if err := repo.selectAll(ctx, exec, &events, b); err != nil {
		return nil, errors.Wrap(err, "querying student events")
	}
	return events, nil
}

// SumPoints sums the current points of the event types of every event in the ledger.
func (repo gamificationRepository) SumPoints(ctx context.Context, profileID string, exec ...core.DBExecutor) (int, error) {
	b := psql.Select("COALESCE(SUM(et.points), 0)").
		From("student_event se").
		Join("event_type et ON et.id = se.event_type_id").
		Where(sq.Eq{"se.student_profile_id": profileID})

	var total int
	if err := repo.get(ctx, exec, &total, b); err != nil {
		return 0, errors.Wrap(err, "summing points")
	}
	return total, nil
}

// Level thresholds

func (repo gamificationRepository) QueryThresholds(ctx context.Context, exec ...core.DBExecutor) ([]gamification.LevelThreshold, error) {
	ths := make([]gamification.LevelThreshold, 0)
	b := psql.Select("level", "min_points").From("level_threshold").OrderBy("min_points ASC")
	if err := repo.selectAll(ctx, exec, &ths, b); err != nil {
		return nil, errors.Wrap(err, "querying level thresholds")
	}
	return ths, nil
}

// LockThresholds serializes threshold writers until the end of the transaction. Readers are not blocked.
func (repo gamificationRepository) LockThresholds(ctx context.Context, exec ...core.DBExecutor) error {
	_, err := repo.getExec(exec).ExecContext(ctx, "LOCK TABLE level_threshold IN SHARE ROW EXCLUSIVE MODE")
	return errors.Wrap(err, "locking level_threshold")
}

func (repo gamificationRepository) SaveThreshold(ctx context.Context, th gamification.LevelThreshold, exec ...core.DBExecutor) error {
	b := psql.Insert("level_threshold").
		Columns("level", "min_points").
		Values(th.Level, th.MinPoints).
		Suffix("ON CONFLICT (level) DO UPDATE SET min_points = EXCLUDED.min_points")
	_, err := repo.exec(ctx, exec, b)
	return errors.Wrap(err, "upserting level threshold")
}

func (repo gamificationRepository) DeleteThreshold(ctx context.Context, level int, exec ...core.DBExecutor) error {
	b := psql.Delete("level_threshold").Where(sq.Eq{"level": level})
	return repo.execOne(ctx, exec, b, gamification.ErrThresholdNotFound)
}
