package sqlxrepos

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/dabestan/core"
	"github.com/trezcool/dabestan/core/score"
)

var (
	scoreColumns      = []string{"id", "student_id", "lesson_id", "classroom_id", "value", "created_at"}
	scoreOrderColumns = map[string]string{
		"created_at": "created_at",
		"value":      "value",
	}
)

type scoreRepository struct {
	repository
}

var _ score.Repository = (*scoreRepository)(nil) // interface compliance check

func NewScoreRepository(db *sqlx.DB) score.Repository {
	return &scoreRepository{repository{db: db}}
}

func (repo scoreRepository) CreateScore(ctx context.Context, s score.Score, exec ...core.DBExecutor) (score.Score, error) {
	s.ID = uuid.New().String()
	b := psql.Insert("score").
		Columns(scoreColumns...).
		Values(s.ID, s.StudentID, s.LessonID, s.ClassroomID, s.Value, s.CreatedAt.UTC())
	if _, err := repo.exec(ctx, exec, b); err != nil {
		return score.Score{}, errors.Wrap(err, "inserting score")
	}
	return s, nil
}

func (repo scoreRepository) GetScore(ctx context.Context, id string, exec ...core.DBExecutor) (score.Score, error) {
	if !validIDs(id) {
		return score.Score{}, score.ErrNotFound
	}
	var s score.Score
	b := psql.Select(scoreColumns...).From("score").Where(sq.Eq{"id": id})
	if err := repo.get(ctx, exec, &s, b); err != nil {
		return score.Score{}, trapNoRows(err, score.ErrNotFound, "getting score")
	}
	return s, nil
}

func (repo scoreRepository) UpdateScore(ctx context.Context, s score.Score, exec ...core.DBExecutor) error {
	b := psql.Update("score").Set("value", s.Value).Where(sq.Eq{"id": s.ID})
	return repo.execOne(ctx, exec, b, score.ErrNotFound)
}

func (repo scoreRepository) QueryScores(ctx context.Context, filter *score.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]score.Score, error) {
	b := psql.Select(scoreColumns...).From("score")
	if filter != nil {
		if filter.StudentID != "" {
			b = b.Where(sq.Eq{"student_id": filter.StudentID})
		}
		if filter.LessonID != "" {
			b = b.Where(sq.Eq{"lesson_id": filter.LessonID})
		}
		if filter.Value != nil {
			b = b.Where(sq.Eq{"value": *filter.Value})
		}
	}
	b = orderBy(b, ordering, scoreOrderColumns).OrderBy("id ASC")

	scores := make([]score.Score, 0)
	if err := repo.selectAll(ctx, exec, &scores, b); err != nil {
		return nil, errors.Wrap(err, "querying scores")
	}
	return scores, nil
}
