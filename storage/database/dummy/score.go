package dummydb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/trezcool/dabestan/core"
	"github.com/trezcool/dabestan/core/score"
)

var scoreComparators = comparators[score.Score]{
	"created_at": func(a, b score.Score) int { return a.CreatedAt.Compare(b.CreatedAt) },
	"value":      func(a, b score.Score) int { return cmpFloat(a.Value, b.Value) },
}

type scoreRepository struct {
	db *DB
}

var _ score.Repository = (*scoreRepository)(nil) // interface compliance check

func NewScoreRepository(db *DB) score.Repository {
	return &scoreRepository{db: db}
}

func (repo *scoreRepository) CreateScore(_ context.Context, s score.Score, exec ...core.DBExecutor) (score.Score, error) {
	_ = repo.db.write(exec, func(t *tables) error {
		s.ID = uuid.New().String()
		t.scores[s.ID] = s
		return nil
	})
	return s, nil
}

func (repo *scoreRepository) GetScore(_ context.Context, id string, exec ...core.DBExecutor) (score.Score, error) {
	var (
		s     score.Score
		found bool
	)
	_ = repo.db.read(exec, func(t *tables) error {
		s, found = t.scores[id]
		return nil
	})
	if !found {
		return score.Score{}, score.ErrNotFound
	}
	return s, nil
}

func (repo *scoreRepository) UpdateScore(_ context.Context, s score.Score, exec ...core.DBExecutor) error {
	return repo.db.write(exec, func(t *tables) error {
		existing, ok := t.scores[s.ID]
		if !ok {
			return score.ErrNotFound
		}
		existing.Value = s.Value
		t.scores[s.ID] = existing
		return nil
	})
}

func (repo *scoreRepository) QueryScores(_ context.Context, filter *score.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]score.Score, error) {
	scores := make([]score.Score, 0)
	_ = repo.db.read(exec, func(t *tables) error {
		for _, s := range t.scores {
			if filter != nil {
				if filter.StudentID != "" && s.StudentID != filter.StudentID {
					continue
				}
				if filter.LessonID != "" && s.LessonID != filter.LessonID {
					continue
				}
				if filter.Value != nil && s.Value != *filter.Value {
					continue
				}
			}
			scores = append(scores, s)
		}
		return nil
	})
	sort.Slice(scores, func(i, j int) bool { return scores[i].ID < scores[j].ID })
	sortBy(scores, ordering, scoreComparators)
	return scores, nil
}
