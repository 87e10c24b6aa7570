package inmemdb

import (
	"sync"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/colegio/core/billing"
)

// Roster rows. They are owned by the school portal: billing only reads them.
type (
	Level struct {
		ID   int64
		Name string
	}

	Grade struct {
		ID      int64
		LevelID null.Int64
		Name    string
	}

	Section struct {
		ID      int64
		GradeID null.Int64
		Name    string
	}

	Parent struct {
		ID    int64
		Name  string
		Email null.String
	}

	Student struct {
		ID        int64
		FirstName string
		LastName  string
		ParentID  null.Int64
		LevelID   null.Int64
		GradeID   null.Int64
		SectionID null.Int64
		Status    string
	}
)

type tables struct {
	levels   map[int64]Level
	grades   map[int64]Grade
	sections map[int64]Section
	parents  map[int64]Parent
	students map[int64]Student
	concepts map[int64]billing.Concept
	invoices map[int64]billing.Invoice // headers only
	lines    map[int64]billing.InvoiceLine
	payments map[int64]billing.Payment
	seqs     map[string]int64
}

func newTables() tables {
	return tables{
		levels:   make(map[int64]Level),
		grades:   make(map[int64]Grade),
		sections: make(map[int64]Section),
		parents:  make(map[int64]Parent),
		students: make(map[int64]Student),
		concepts: make(map[int64]billing.Concept),
		invoices: make(map[int64]billing.Invoice),
		lines:    make(map[int64]billing.InvoiceLine),
		payments: make(map[int64]billing.Payment),
		seqs:     make(map[string]int64),
	}
}

// DB is an in-memory billing store.
// Transactions are serialized with each other and undo their own writes when they fail.
type DB struct {
	mutex   sync.RWMutex
	txMutex sync.Mutex
	data    tables
}

func NewDB() *DB {
	return &DB{data: newTables()}
}

// nextID must be called with the write lock held.
func (db *DB) nextID(table string) int64 {
	db.data.seqs[table]++
	return db.data.seqs[table]
}

func (db *DB) AddLevel(name string) Level {
	db.mutex.Lock()
	defer db.mutex.Unlock()

	lvl := Level{ID: db.nextID("levels"), Name: name}
	db.data.levels[lvl.ID] = lvl
	return lvl
}

func (db *DB) AddGrade(levelID int64, name string) Grade {
	db.mutex.Lock()
	defer db.mutex.Unlock()

	grd := Grade{ID: db.nextID("grades"), LevelID: null.NewInt64(levelID, levelID != 0), Name: name}
	db.data.grades[grd.ID] = grd
	return grd
}

func (db *DB) AddSection(gradeID int64, name string) Section {
	db.mutex.Lock()
	defer db.mutex.Unlock()

	sec := Section{ID: db.nextID("sections"), GradeID: null.NewInt64(gradeID, gradeID != 0), Name: name}
	db.data.sections[sec.ID] = sec
	return sec
}

func (db *DB) AddParent(name, email string) Parent {
	db.mutex.Lock()
	defer db.mutex.Unlock()

	p := Parent{ID: db.nextID("parents"), Name: name, Email: null.NewString(email, email != "")}
	db.data.parents[p.ID] = p
	return p
}

func (db *DB) AddStudent(s Student) Student {
	db.mutex.Lock()
	defer db.mutex.Unlock()

	s.ID = db.nextID("students")
	if s.Status == "" {
		s.Status = billing.StudentStatusActive
	}
	db.data.students[s.ID] = s
	return s
}

func (db *DB) AddConcept(c billing.Concept) billing.Concept {
	db.mutex.Lock()
	defer db.mutex.Unlock()

	c.ID = db.nextID("concepts")
	db.data.concepts[c.ID] = c
	return c
}

// SetInvoiceSeq sets the last drawn invoice sequence value.
func (db *DB) SetInvoiceSeq(val int64) {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	db.data.seqs[invoiceSeq] = val
}
