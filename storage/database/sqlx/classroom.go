package sqlxrepos

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/dabestan/core"
	"github.com/trezcool/dabestan/core/classroom"
)

type classroomRepository struct {
	repository
}

var _ classroom.Repository = (*classroomRepository)(nil) // interface compliance check

func NewClassRoomRepository(db *sqlx.DB) classroom.Repository {
	return &classroomRepository{repository{db: db}}
}

func (repo classroomRepository) CreateClassRoom(ctx context.Context, cr classroom.ClassRoom, exec ...core.DBExecutor) (classroom.ClassRoom, error) {
	cr.ID = uuid.New().String()
	b := psql.Insert("classroom").
		Columns("id", "name", "base", "created_at").
		Values(cr.ID, cr.Name, cr.Base, cr.CreatedAt.UTC())
	if _, err := repo.exec(ctx, exec, b); err != nil {
		return classroom.ClassRoom{}, errors.Wrap(err, "inserting classroom")
	}
	return cr, nil
}

func (repo classroomRepository) GetClassRoom(ctx context.Context, id string, exec ...core.DBExecutor) (classroom.ClassRoom, error) {
	if _, err := uuid.Parse(id); err != nil {
		return classroom.ClassRoom{}, classroom.ErrNotFound
	}
	var cr classroom.ClassRoom
	b := psql.Select("id", "name", "base", "created_at").From("classroom").Where(sq.Eq{"id": id})
	if err := repo.get(ctx, exec, &cr, b); err != nil {
		return classroom.ClassRoom{}, trapNoRows(err, classroom.ErrNotFound, "getting classroom")
	}
	return cr, nil
}

func (repo classroomRepository) QueryClassRooms(ctx context.Context, exec ...core.DBExecutor) ([]classroom.ClassRoom, error) {
	crs := make([]classroom.ClassRoom, 0)
	b := psql.Select("id", "name", "base", "created_at").From("classroom").OrderBy("name ASC")
	if err := repo.selectAll(ctx, exec, &crs, b); err != nil {
		return nil, errors.Wrap(err, "querying classrooms")
	}
	return crs, nil
}

func (repo classroomRepository) AddStudents(ctx context.Context, classroomID string, studentIDs []string, exec ...core.DBExecutor) error {
	if len(studentIDs) == 0 {
		return nil
	}
	b := psql.Insert("classroom_student").Columns("classroom_id", "student_id")
	for _, id := range studentIDs {
		b = b.Values(classroomID, id)
	}
	b = b.Suffix("ON CONFLICT (classroom_id, student_id) DO NOTHING")
	_, err := repo.exec(ctx, exec, b)
	return errors.Wrap(err, "enrolling students")
}

func (repo classroomRepository) QueryStudentIDs(ctx context.Context, classroomID string, exec ...core.DBExecutor) ([]string, error) {
	ids := make([]string, 0)
	b := psql.Select("student_id").From("classroom_student").Where(sq.Eq{"classroom_id": classroomID}).OrderBy("student_id")
	if err := repo.selectAll(ctx, exec, &ids, b); err != nil {
		return nil, errors.Wrap(err, "querying enrolled students")
	}
	return ids, nil
}

func (repo classroomRepository) IsEnrolled(ctx context.Context, studentID, classroomID string, exec ...core.DBExecutor) (bool, error) {
	if _, err := uuid.Parse(studentID); err != nil {
		return false, nil
	}
	if _, err := uuid.Parse(classroomID); err != nil {
		return false, nil
	}
	var enrolled bool
	query := "SELECT EXISTS (SELECT 1 FROM classroom_student WHERE classroom_id = $1 AND student_id = $2)"
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &enrolled, query, classroomID, studentID); err != nil {
		return false, errors.Wrap(err, "checking enrollment")
	}
	return enrolled, nil
}
