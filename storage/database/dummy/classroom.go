package dummydb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/trezcool/dabestan/core"
	"github.com/trezcool/dabestan/core/classroom"
)

type classroomRepository struct {
	db *DB
}

var _ classroom.Repository = (*classroomRepository)(nil) // interface compliance check

func NewClassRoomRepository(db *DB) classroom.Repository {
	return &classroomRepository{db: db}
}

func (repo *classroomRepository) CreateClassRoom(_ context.Context, cr classroom.ClassRoom, exec ...core.DBExecutor) (classroom.ClassRoom, error) {
	_ = repo.db.write(exec, func(t *tables) error {
		cr.ID = uuid.New().String()
		t.classrooms[cr.ID] = cr
		return nil
	})
	return cr, nil
}

func (repo *classroomRepository) GetClassRoom(_ context.Context, id string, exec ...core.DBExecutor) (classroom.ClassRoom, error) {
	var (
		cr    classroom.ClassRoom
		found bool
	)
	_ = repo.db.read(exec, func(t *tables) error {
		cr, found = t.classrooms[id]
		return nil
	})
	if !found {
		return classroom.ClassRoom{}, classroom.ErrNotFound
	}
	return cr, nil
}

func (repo *classroomRepository) QueryClassRooms(_ context.Context, exec ...core.DBExecutor) ([]classroom.ClassRoom, error) {
	crs := make([]classroom.ClassRoom, 0)
	_ = repo.db.read(exec, func(t *tables) error {
		for _, cr := range t.classrooms {
			crs = append(crs, cr)
		}
		return nil
	})
	sort.Slice(crs, func(i, j int) bool { return crs[i].Name < crs[j].Name })
	return crs, nil
}

func (repo *classroomRepository) AddStudents(_ context.Context, classroomID string, studentIDs []string, exec ...core.DBExecutor) error {
	return repo.db.write(exec, func(t *tables) error {
		if _, ok := t.classrooms[classroomID]; !ok {
			return classroom.ErrNotFound
		}
		students, ok := t.enrollments[classroomID]
		if !ok {
			students = make(map[string]bool)
			t.enrollments[classroomID] = students
		}
		for _, id := range studentIDs {
			students[id] = true
		}
		return nil
	})
}

func (repo *classroomRepository) QueryStudentIDs(_ context.Context, classroomID string, exec ...core.DBExecutor) ([]string, error) {
	ids := make([]string, 0)
	_ = repo.db.read(exec, func(t *tables) error {
		for id := range t.enrollments[classroomID] {
			ids = append(ids, id)
		}
		return nil
	})
	sort.Strings(ids)
	return ids, nil
}

func (repo *classroomRepository) IsEnrolled(_ context.Context, studentID, classroomID string, exec ...core.DBExecutor) (bool, error) {
	var enrolled bool
	_ = repo.db.read(exec, func(t *tables) error {
		enrolled = t.enrollments[classroomID][studentID]
		return nil
	})
	return enrolled, nil
}
