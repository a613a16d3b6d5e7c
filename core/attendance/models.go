package attendance

import (
	"fmt"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/brijeshkumar2024/smart-attendance/core"
)

// Attendance statuses.
const (
	StatusPresent = "Present"
	StatusAbsent  = "Absent"
)

const (
	// LowAttendanceThreshold is the percentage below which a student is flagged.
	LowAttendanceThreshold = 75.0
	// EmailWarningThreshold is the percentage below which a warning email goes out.
	EmailWarningThreshold = 60.0
	// LockDays is the number of days after which records become immutable.
	LockDays = 3
)

type (
	// Attendance records one student's status for one class on one day.
	// At most one record exists per (student, class, date).
	Attendance struct {
		ID              string    `json:"id"`
		StudentID       string    `json:"student_id"`
		ClassID         string    `json:"class_id"`
		Date            time.Time `json:"date"` // local midnight
		Status          string    `json:"status"`
		MarkedBy        string    `json:"marked_by"`
		UpdatedBy       string    `json:"updated_by,omitempty"`
		IsLowAttendance bool      `json:"is_low_attendance"`
		CreatedAt       time.Time `json:"created_at"` // UTC
		UpdatedAt       time.Time `json:"updated_at"` // UTC
	}

	// Detail is an Attendance joined with its student and class rows,
	// as returned by listings and exports.
	Detail struct {
		Attendance
		StudentName  string `json:"student_name"`
		StudentEmail string `json:"student_email"`
		ClassName    string `json:"class_name"`
		Subject      string `json:"subject"`
	}

	// Rollup aggregates one student's records into a percentage.
	Rollup struct {
		StudentID       string  `json:"student_id"`
		StudentName     string  `json:"student_name"`
		StudentEmail    string  `json:"student_email"`
		Total           int     `json:"total"`
		Present         int     `json:"present"`
		Percentage      float64 `json:"percentage"`
		IsLowAttendance bool    `json:"is_low_attendance"`
	}

	// RankedRollup is a Rollup with its 1-based position by percentage.
	RankedRollup struct {
		Rank int `json:"rank"`
		Rollup
	}

	// ClassRollup aggregates one student's records within a single class.
	ClassRollup struct {
		ClassID    string  `json:"class_id"`
		ClassName  string  `json:"class_name"`
		Subject    string  `json:"subject"`
		Total      int     `json:"total"`
		Present    int     `json:"present"`
		Percentage float64 `json:"percentage"`
	}

	// MonthlyReport is one calendar month of attendance: overall totals
	// plus the per-student-per-class breakdown. Zero totals when the month
	// has no records.
	MonthlyReport struct {
		Month        int          `json:"month"`
		Year         int          `json:"year"`
		TotalClasses int          `json:"total_classes"`
		Present      int          `json:"present"`
		Percentage   float64      `json:"percentage"`
		Rows         []MonthlyRow `json:"rows"`
	}

	// MonthlyRow aggregates one student's records in one class for a month.
	MonthlyRow struct {
		StudentID   string  `json:"student_id"`
		StudentName string  `json:"student_name"`
		ClassID     string  `json:"class_id"`
		ClassName   string  `json:"class_name"`
		Total       int     `json:"total"`
		Present     int     `json:"present"`
		Percentage  float64 `json:"percentage"`
	}

	// StudentStats is a student's overall attendance standing.
	StudentStats struct {
		Total           int     `json:"total"`
		Present         int     `json:"present"`
		Percentage      float64 `json:"percentage"`
		IsLowAttendance bool    `json:"is_low_attendance"`
	}

	// BulkResult reports what a bulk mark did, per record fate.
	BulkResult struct {
		Matched  int `json:"matched"`
		Modified int `json:"modified"`
		Upserted int `json:"upserted"`
		Failed   int `json:"failed,omitempty"`
	}

	// AuditEntry is an append-only trace of a mutation.
	AuditEntry struct {
		ID           string    `json:"id"`
		Action       string    `json:"action"`
		ActorID      string    `json:"actor_id"`
		AttendanceID string    `json:"attendance_id,omitempty"`
		StudentID    string    `json:"student_id,omitempty"`
		ClassID      string    `json:"class_id,omitempty"`
		Date         time.Time `json:"date,omitempty"`
		Details      string    `json:"details,omitempty"`
		CreatedAt    time.Time `json:"created_at"` // UTC
	}
)

// Mark contains information needed to record a single attendance.
// Class may be a class id or an exact class name. An empty date means today.
type Mark struct {
	StudentID string `json:"student_id" validate:"required"`
	Class     string `json:"class" validate:"required"`
	Date      string `json:"date"` // YYYY-MM-DD
	Status    string `json:"status" validate:"required,attstatus"`
}

func (m *Mark) Validate(validate *validator.Validate) error {
	m.StudentID = core.CleanString(m.StudentID)
	m.Class = core.CleanString(m.Class)
	m.Date = core.CleanString(m.Date)
	m.Status = core.CleanString(m.Status)
	return validate.Struct(m)
}

// BulkEntry is one student's status within a BulkMark.
type BulkEntry struct {
	StudentID string `json:"student_id" validate:"required"`
	Status    string `json:"status" validate:"required,attstatus"`
}

// BulkMark records statuses for several students of one class at once.
type BulkMark struct {
	Class   string      `json:"class" validate:"required"`
	Date    string      `json:"date"` // YYYY-MM-DD, empty means today
	Entries []BulkEntry `json:"entries" validate:"required,min=1,dive"`
}

func (bm *BulkMark) Validate(validate *validator.Validate) error {
	bm.Class = core.CleanString(bm.Class)
	bm.Date = core.CleanString(bm.Date)
	for i := range bm.Entries {
		bm.Entries[i].StudentID = core.CleanString(bm.Entries[i].StudentID)
		bm.Entries[i].Status = core.CleanString(bm.Entries[i].Status)
	}
	return validate.Struct(bm)
}

// UpdateStatus changes the status of an existing record.
type UpdateStatus struct {
	Status string `json:"status" validate:"required,attstatus"`
}

func (us *UpdateStatus) Validate(validate *validator.Validate) error {
	us.Status = core.CleanString(us.Status)
	return validate.Struct(us)
}

var (
	statusTag  = "attstatus"
	statusText = fmt.Sprintf("status must be %s or %s", StatusPresent, StatusAbsent)
)

// InitValidators registers this package's custom validators on `validate`.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(statusTag, func(fl validator.FieldLevel) bool {
		status := fl.Field().String()
		return status == StatusPresent || status == StatusAbsent
	})
	core.RegisterCustomTranslation(validate, translator, statusTag, statusText)
}

// Percentage computes present/total as a percentage rounded to 2 decimal
// places, 0 when there are no records.
func Percentage(present, total int) float64 {
	if total == 0 {
		return 0
	}
	pct := float64(present) / float64(total) * 100
	return float64(int(pct*100+0.5)) / 100
}
