package dummydb

import (
	"context"
	"database/sql"
	"sync"

	"github.com/pkg/errors"

	"github.com/trezcool/dabestan/core"
	"github.com/trezcool/dabestan/core/attendance"
	"github.com/trezcool/dabestan/core/classroom"
	"github.com/trezcool/dabestan/core/gamification"
	"github.com/trezcool/dabestan/core/score"
	"github.com/trezcool/dabestan/core/user"
)

var errNoSQL = errors.New("dummydb does not run SQL")

type (
	// DB is an in-memory store. Transactions are serialized and work on a private copy of the
	// tables that replaces the committed ones on success, so reads outside a transaction only
	// ever see committed data.
	DB struct {
		txMu sync.Mutex   // held for the whole of a transaction or a standalone write
		mu   sync.RWMutex // guards t
		t    *tables
	}

	tables struct {
		users       map[string]user.User
		classrooms  map[string]classroom.ClassRoom
		enrollments map[string]map[string]bool // classroom ID -> student IDs
		eventTypes  map[string]gamification.EventType
		profiles    map[string]gamification.StudentProfile
		events      []gamification.StudentEvent
		thresholds  map[int]gamification.LevelThreshold
		requests    map[string]attendance.Request
		reviews     map[string]attendance.Review
		records     map[string]attendance.Record
		scores      map[string]score.Score
	}

	// Tx is handed to transactional functions. It holds the tables the transaction works on.
	Tx struct {
		db *DB
		t  *tables
	}
)

var (
	_ core.Transactor = (*DB)(nil) // interface compliance check
	_ core.DBExecutor = (*Tx)(nil) // interface compliance check
)

func Open() *DB {
	return &DB{t: newTables()}
}

func newTables() *tables {
	return &tables{
		users:       make(map[string]user.User),
		classrooms:  make(map[string]classroom.ClassRoom),
		enrollments: make(map[string]map[string]bool),
		eventTypes:  make(map[string]gamification.EventType),
		profiles:    make(map[string]gamification.StudentProfile),
		thresholds:  make(map[int]gamification.LevelThreshold),
		requests:    make(map[string]attendance.Request),
		reviews:     make(map[string]attendance.Review),
		records:     make(map[string]attendance.Record),
		scores:      make(map[string]score.Score),
	}
}

func (t *tables) clone() *tables {
	c := newTables()
	for k, v := range t.users {
		c.users[k] = v
	}
	for k, v := range t.classrooms {
		c.classrooms[k] = v
	}
	for k, v := range t.enrollments {
		students := make(map[string]bool, len(v))
		for id := range v {
			students[id] = true
		}
		c.enrollments[k] = students
	}
	for k, v := range t.eventTypes {
		c.eventTypes[k] = v
	}
	for k, v := range t.profiles {
		c.profiles[k] = v
	}
	c.events = append(c.events, t.events...)
	for k, v := range t.thresholds {
		c.thresholds[k] = v
	}
	for k, v := range t.requests {
		c.requests[k] = v
	}
	for k, v := range t.reviews {
		c.reviews[k] = v
	}
	for k, v := range t.records {
		c.records[k] = v
	}
	for k, v := range t.scores {
		c.scores[k] = v
	}
	return c
}

// InTx runs fn in a transaction. All the changes fn made are discarded if it fails.
func (db *DB) InTx(ctx context.Context, fn func(exec core.DBExecutor) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	db.txMu.Lock()
	defer db.txMu.Unlock()

	db.mu.RLock()
	tx := &Tx{db: db, t: db.t.clone()}
	db.mu.RUnlock()

	if err := fn(tx); err != nil {
		return err
	}

	db.mu.Lock()
	db.t = tx.t
	db.mu.Unlock()
	return nil
}

// Flush empties every table.
func (db *DB) Flush() {
	db.txMu.Lock()
	defer db.txMu.Unlock()
	db.mu.Lock()
	db.t = newTables()
	db.mu.Unlock()
}

func (db *DB) tx(exec []core.DBExecutor) *Tx {
	if len(exec) == 0 {
		return nil
	}
	if tx, ok := exec[0].(*Tx); ok && tx.db == db {
		return tx
	}
	return nil
}

// write applies fn to the tables. Outside of a transaction, fn waits for running transactions.
func (db *DB) write(exec []core.DBExecutor, fn func(t *tables) error) error {
	if tx := db.tx(exec); tx != nil {
		return fn(tx.t)
	}
	db.txMu.Lock()
	defer db.txMu.Unlock()
	db.mu.Lock()
	defer db.mu.Unlock()
	return fn(db.t)
}

// read applies fn to the transaction's tables, or to the committed ones outside of a transaction.
func (db *DB) read(exec []core.DBExecutor, fn func(t *tables) error) error {
	if tx := db.tx(exec); tx != nil {
		return fn(tx.t)
	}
	db.mu.RLock()
	defer db.mu.RUnlock()
	return fn(db.t)
}

func (tx *Tx) ExecContext(context.Context, string, ...interface{}) (sql.Result, error) {
	return nil, errNoSQL
}

func (tx *Tx) QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error) {
	return nil, errNoSQL
}

func (tx *Tx) QueryRowContext(context.Context, string, ...interface{}) *sql.Row {
	return nil
}
