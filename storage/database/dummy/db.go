// Package dummydb provides in-memory repositories for tests.
package dummydb

import (
	"sync"

	"github.com/brijeshkumar2024/smart-attendance/core/academic"
	"github.com/brijeshkumar2024/smart-attendance/core/attendance"
	"github.com/brijeshkumar2024/smart-attendance/core/class"
	"github.com/brijeshkumar2024/smart-attendance/core/user"
)

type (
	DB struct {
		user       *userTable
		class      *classTable
		attendance *attendanceTable
		academic   *academicTable
		audit      *auditTable
	}

	userTable struct {
		sync.RWMutex
		table      map[string]*user.User
		teacherSeq int
	}

	classTable struct {
		sync.RWMutex
		classes   map[string]*class.Class
		overrides map[string]*class.TeacherOverride
	}

	attendanceTable struct {
		sync.RWMutex
		table map[string]*attendance.Attendance
	}

	academicTable struct {
		sync.RWMutex
		programs map[string]*academic.Program
		sessions map[string]*academic.Session
		branches map[string]*academic.Branch
		subjects map[string]*academic.Subject
		terms    map[string]*academic.Term
	}

	auditTable struct {
		sync.RWMutex
		entries []attendance.AuditEntry
	}
)

func Open() *DB {
	return &DB{
		user: &userTable{table: make(map[string]*user.User)},
		class: &classTable{
			classes:   make(map[string]*class.Class),
			overrides: make(map[string]*class.TeacherOverride),
		},
		attendance: &attendanceTable{table: make(map[string]*attendance.Attendance)},
		academic: &academicTable{
			programs: make(map[string]*academic.Program),
			sessions: make(map[string]*academic.Session),
			branches: make(map[string]*academic.Branch),
			subjects: make(map[string]*academic.Subject),
			terms:    make(map[string]*academic.Term),
		},
		audit: &auditTable{},
	}
}
