package class

import (
	"fmt"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/brijeshkumar2024/smart-attendance/core"
)

// Teacher assignment modes.
const (
	AssignModeFullSem = "full_sem"
	AssignModeOneDay  = "one_day"
)

type (
	// Class groups the students a teacher marks attendance for.
	// The teacher field holds the permanent assignment; day substitutes
	// are recorded as TeacherOverride rows.
	Class struct {
		ID        string `json:"id"`
		Name      string `json:"class_name"`
		Subject   string `json:"subject"`
		TeacherID string `json:"teacher_id"`
		TermID    string `json:"term_id,omitempty"`

		// academic scope, set by admin allocation
		ProgramID  string `json:"program_id,omitempty"`
		SessionID  string `json:"session_id,omitempty"`
		BranchID   string `json:"branch_id,omitempty"`
		SubjectID  string `json:"subject_id,omitempty"`
		Semester   int    `json:"semester,omitempty"`
		GroupLabel string `json:"group_label,omitempty"`

		CreatedAt time.Time `json:"created_at"` // UTC
		UpdatedAt time.Time `json:"updated_at"` // UTC
	}

	// TeacherOverride assigns a substitute teacher to a class for a single day.
	// At most one override exists per (class, date).
	TeacherOverride struct {
		ID         string    `json:"id"`
		ClassID    string    `json:"class_id"`
		TeacherID  string    `json:"teacher_id"`
		Date       time.Time `json:"date"` // local midnight
		AssignedBy string    `json:"assigned_by"`
		CreatedAt  time.Time `json:"created_at"` // UTC
		UpdatedAt  time.Time `json:"updated_at"` // UTC
	}

	// Scope identifies the academic slot a class occupies.
	// At most one class exists per scope tuple.
	Scope struct {
		ProgramID  string
		SessionID  string
		BranchID   string
		SubjectID  string
		Semester   int
		GroupLabel string
	}
)

func (c *Class) HasAcademicScope() bool {
	return c.ProgramID != "" && c.SessionID != "" && c.BranchID != "" && c.SubjectID != ""
}

func (c *Class) Scope() Scope {
	return Scope{
		ProgramID:  c.ProgramID,
		SessionID:  c.SessionID,
		BranchID:   c.BranchID,
		SubjectID:  c.SubjectID,
		Semester:   c.Semester,
		GroupLabel: c.GroupLabel,
	}
}

// NewClass contains information needed to create a new Class.
type NewClass struct {
	Name    string `json:"class_name" validate:"required"`
	Subject string `json:"subject" validate:"required"`
	TermID  string `json:"term_id"`
}

func (nc *NewClass) Validate(validate *validator.Validate) error {
	nc.Name = core.CleanString(nc.Name)
	nc.Subject = core.CleanString(nc.Subject)
	nc.TermID = core.CleanString(nc.TermID)
	return validate.Struct(nc)
}

// AllocateClass assigns a teacher to a class slot. When the full academic
// scope is provided the class name is synthesized from it and allocation
// upserts on the scope tuple; otherwise Name and Subject are required.
type AllocateClass struct {
	TeacherID string `json:"teacher_id" validate:"required"`

	ProgramID  string `json:"program_id"`
	SessionID  string `json:"session_id"`
	BranchID   string `json:"branch_id"`
	SubjectID  string `json:"subject_id"`
	Semester   int    `json:"semester" validate:"omitempty,min=1,max=8"`
	GroupLabel string `json:"group_label" validate:"omitempty,oneof=1 2 3 4"`

	Name    string `json:"class_name"`
	Subject string `json:"subject"`
	TermID  string `json:"term_id"`
}

func (ac *AllocateClass) HasAcademicScope() bool {
	return ac.ProgramID != "" && ac.SessionID != "" && ac.BranchID != "" && ac.SubjectID != ""
}

func (ac *AllocateClass) Validate(validate *validator.Validate) error {
	ac.TeacherID = core.CleanString(ac.TeacherID)
	ac.ProgramID = core.CleanString(ac.ProgramID)
	ac.SessionID = core.CleanString(ac.SessionID)
	ac.BranchID = core.CleanString(ac.BranchID)
	ac.SubjectID = core.CleanString(ac.SubjectID)
	ac.GroupLabel = core.CleanString(ac.GroupLabel)
	ac.Name = core.CleanString(ac.Name)
	ac.Subject = core.CleanString(ac.Subject)
	ac.TermID = core.CleanString(ac.TermID)

	if err := validate.Struct(ac); err != nil {
		return err
	}
	if ac.HasAcademicScope() {
		var flds []core.FieldError
		if ac.Semester == 0 {
			flds = append(flds, core.FieldError{Field: "semester", Error: "semester must be between 1 and 8"})
		}
		if ac.GroupLabel == "" {
			flds = append(flds, core.FieldError{Field: "group_label", Error: "group is required"})
		}
		if flds != nil {
			return core.NewValidationError(nil, flds...)
		}
		return nil
	}
	var flds []core.FieldError
	if ac.Name == "" {
		flds = append(flds, core.FieldError{Field: "class_name", Error: "class name is required"})
	}
	if ac.Subject == "" {
		flds = append(flds, core.FieldError{Field: "subject", Error: "subject is required"})
	}
	if flds != nil {
		return core.NewValidationError(nil, flds...)
	}
	return nil
}

// AssignTeacher swaps a class's teacher, either permanently or for one day.
type AssignTeacher struct {
	TeacherID string `json:"teacher_id" validate:"required"`
	Mode      string `json:"mode" validate:"required,assignmode"`
	Date      string `json:"date"` // required in one_day mode, YYYY-MM-DD
}

func (at *AssignTeacher) Validate(validate *validator.Validate) error {
	at.TeacherID = core.CleanString(at.TeacherID)
	at.Mode = core.CleanString(at.Mode, true /* lower */)
	at.Date = core.CleanString(at.Date)

	if err := validate.Struct(at); err != nil {
		return err
	}
	if at.Mode == AssignModeOneDay && at.Date == "" {
		return core.NewValidationError(nil,
			core.FieldError{Field: "date", Error: "a valid date is required for one_day mode"})
	}
	return nil
}

var (
	assignModeTag  = "assignmode"
	assignModeText = fmt.Sprintf("mode must be %s or %s", AssignModeFullSem, AssignModeOneDay)
)

// InitValidators registers this package's custom validators on `validate`.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(assignModeTag, func(fl validator.FieldLevel) bool {
		mode := fl.Field().String()
		return mode == AssignModeFullSem || mode == AssignModeOneDay
	})
	core.RegisterCustomTranslation(validate, translator, assignModeTag, assignModeText)
}
