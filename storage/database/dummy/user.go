package dummydb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/trezcool/dabestan/core"
	"github.com/trezcool/dabestan/core/user"
)

var userComparators = comparators[user.User]{
	"name":       func(a, b user.User) int { return cmpString(a.Name, b.Name) },
	"username":   func(a, b user.User) int { return cmpString(a.Username, b.Username) },
	"email":      func(a, b user.User) int { return cmpString(a.Email, b.Email) },
	"role":       func(a, b user.User) int { return cmpString(string(a.Role), string(b.Role)) },
	"created_at": func(a, b user.User) int { return a.CreatedAt.Compare(b.CreatedAt) },
}

type userRepository struct {
	db *DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{db: db}
}

func checkUniqueness(t *tables, id, username, email string) error {
	for _, u := range t.users {
		if u.ID == id {
			continue
		}
		if username != "" && u.Username == username {
			return user.ErrUsernameExists
		}
		if email != "" && u.Email == email {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (repo *userRepository) CheckUsernameUniqueness(_ context.Context, username, email string, exec ...core.DBExecutor) error {
	return repo.db.read(exec, func(t *tables) error {
		return checkUniqueness(t, "", username, email)
	})
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	err := repo.db.write(exec, func(t *tables) error {
		if err := checkUniqueness(t, "", usr.Username, usr.Email); err != nil {
			return err
		}
		usr.ID = uuid.New().String()
		t.users[usr.ID] = usr
		return nil
	})
	if err != nil {
		return user.User{}, err
	}
	return usr, nil
}

func (repo *userRepository) QueryUsers(_ context.Context, filter *user.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]user.User, error) {
	users := make([]user.User, 0)
	_ = repo.db.read(exec, func(t *tables) error {
		for _, u := range t.users {
			if filter != nil {
				if filter.Search != "" &&
					!(containsFold(u.Name, filter.Search) || containsFold(u.Username, filter.Search) || containsFold(u.Email, filter.Search)) {
					continue
				}
				if filter.Role != "" && u.Role != filter.Role {
					continue
				}
				if filter.IsActive != nil && u.IsActive != *filter.IsActive {
					continue
				}
			}
			users = append(users, u)
		}
		return nil
	})
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	sortBy(users, ordering, userComparators)
	return users, nil
}

func (repo *userRepository) GetUser(_ context.Context, filter user.GetFilter, exec ...core.DBExecutor) (user.User, error) {
	var (
		usr   user.User
		found bool
	)
	_ = repo.db.read(exec, func(t *tables) error {
		switch {
		case filter.ID != "":
			usr, found = t.users[filter.ID]
		case filter.UsernameOrEmail != "":
			for _, u := range t.users {
				if u.Username == filter.UsernameOrEmail || u.Email == filter.UsernameOrEmail {
					usr, found = u, true
					break
				}
			}
		}
		return nil
	})
	if !found {
		return user.User{}, user.ErrNotFound
	}
	return usr, nil
}

func (repo *userRepository) UpdateUser(_ context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	err := repo.db.write(exec, func(t *tables) error {
		if _, ok := t.users[usr.ID]; !ok {
			return user.ErrNotFound
		}
		if err := checkUniqueness(t, usr.ID, usr.Username, usr.Email); err != nil {
			return err
		}
		t.users[usr.ID] = usr
		return nil
	})
	if err != nil {
		return user.User{}, err
	}
	return usr, nil
}
