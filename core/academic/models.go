package academic

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/brijeshkumar2024/smart-attendance/core"
)

// Semester bounds for subjects and class allocation.
const (
	MinSemester = 1
	MaxSemester = 8
)

type (
	// Program is the top of the academic hierarchy (e.g. BTECH, MBA).
	Program struct {
		ID        string    `json:"id"`
		Name      string    `json:"name"`
		Code      string    `json:"code,omitempty"`
		IsActive  *bool     `json:"is_active"`
		CreatedAt time.Time `json:"created_at"` // UTC
		UpdatedAt time.Time `json:"updated_at"` // UTC
	}

	// Session is an academic year within a program (e.g. "2024-25").
	Session struct {
		ID        string    `json:"id"`
		ProgramID string    `json:"program_id"`
		Label     string    `json:"label"`
		IsActive  *bool     `json:"is_active"`
		CreatedAt time.Time `json:"created_at"` // UTC
		UpdatedAt time.Time `json:"updated_at"` // UTC
	}

	// Branch is a discipline within a program session (e.g. CSE, ECE).
	Branch struct {
		ID        string    `json:"id"`
		ProgramID string    `json:"program_id"`
		SessionID string    `json:"session_id"`
		Name      string    `json:"name"`
		Code      string    `json:"code,omitempty"`
		IsActive  *bool     `json:"is_active"`
		CreatedAt time.Time `json:"created_at"` // UTC
		UpdatedAt time.Time `json:"updated_at"` // UTC
	}

	// Subject is taught in one semester of a branch.
	Subject struct {
		ID        string    `json:"id"`
		ProgramID string    `json:"program_id"`
		SessionID string    `json:"session_id"`
		BranchID  string    `json:"branch_id"`
		Semester  int       `json:"semester"`
		Name      string    `json:"name"`
		Code      string    `json:"code,omitempty"`
		IsActive  *bool     `json:"is_active"`
		CreatedAt time.Time `json:"created_at"` // UTC
		UpdatedAt time.Time `json:"updated_at"` // UTC
	}

	// Term is a named date range classes may be attached to.
	Term struct {
		ID        string    `json:"id"`
		Name      string    `json:"name"`
		StartDate time.Time `json:"start_date"`
		EndDate   time.Time `json:"end_date"`
		CreatedAt time.Time `json:"created_at"` // UTC
		UpdatedAt time.Time `json:"updated_at"` // UTC
	}

	// Summary counts the active rows at each level of the hierarchy.
	Summary struct {
		Programs int `json:"programs"`
		Sessions int `json:"sessions"`
		Branches int `json:"branches"`
		Subjects int `json:"subjects"`
	}
)

func (p *Program) Active() bool { return p.IsActive == nil || *p.IsActive }
func (s *Session) Active() bool { return s.IsActive == nil || *s.IsActive }
func (b *Branch) Active() bool  { return b.IsActive == nil || *b.IsActive }
func (s *Subject) Active() bool { return s.IsActive == nil || *s.IsActive }

type NewProgram struct {
	Name string `json:"name" validate:"required"`
	Code string `json:"code"`
}

func (np *NewProgram) Validate(validate *validator.Validate) error {
	np.Name = core.CleanString(np.Name)
	np.Code = core.CleanString(np.Code)
	return validate.Struct(np)
}

type NewSession struct {
	ProgramID string `json:"program_id" validate:"required"`
	Label     string `json:"label" validate:"required"`
}

func (ns *NewSession) Validate(validate *validator.Validate) error {
	ns.ProgramID = core.CleanString(ns.ProgramID)
	ns.Label = core.CleanString(ns.Label)
	return validate.Struct(ns)
}

type NewBranch struct {
	ProgramID string `json:"program_id" validate:"required"`
	SessionID string `json:"session_id" validate:"required"`
	Name      string `json:"name" validate:"required"`
	Code      string `json:"code"`
}

func (nb *NewBranch) Validate(validate *validator.Validate) error {
	nb.ProgramID = core.CleanString(nb.ProgramID)
	nb.SessionID = core.CleanString(nb.SessionID)
	nb.Name = core.CleanString(nb.Name)
	nb.Code = core.CleanString(nb.Code)
	return validate.Struct(nb)
}

type NewSubject struct {
	ProgramID string `json:"program_id" validate:"required"`
	SessionID string `json:"session_id" validate:"required"`
	BranchID  string `json:"branch_id" validate:"required"`
	Semester  int    `json:"semester" validate:"required,min=1,max=8"`
	Name      string `json:"name" validate:"required"`
	Code      string `json:"code"`
}

func (ns *NewSubject) Validate(validate *validator.Validate) error {
	ns.ProgramID = core.CleanString(ns.ProgramID)
	ns.SessionID = core.CleanString(ns.SessionID)
	ns.BranchID = core.CleanString(ns.BranchID)
	ns.Name = core.CleanString(ns.Name)
	ns.Code = core.CleanString(ns.Code)
	return validate.Struct(ns)
}

// NewTerm contains information needed to create a new Term.
// Dates are in YYYY-MM-DD format.
type NewTerm struct {
	Name      string `json:"name" validate:"required"`
	StartDate string `json:"start_date" validate:"required"`
	EndDate   string `json:"end_date" validate:"required"`
}

func (nt *NewTerm) Validate(validate *validator.Validate) error {
	nt.Name = core.CleanString(nt.Name)
	nt.StartDate = core.CleanString(nt.StartDate)
	nt.EndDate = core.CleanString(nt.EndDate)

	if err := validate.Struct(nt); err != nil {
		return err
	}
	start, err := core.ParseDate(nt.StartDate)
	if err != nil {
		return core.NewValidationError(nil, core.FieldError{Field: "start_date", Error: "start_date must be a valid date"})
	}
	end, err := core.ParseDate(nt.EndDate)
	if err != nil {
		return core.NewValidationError(nil, core.FieldError{Field: "end_date", Error: "end_date must be a valid date"})
	}
	if end.Before(start) {
		return core.NewValidationError(nil, core.FieldError{Field: "end_date", Error: "end_date must not be before start_date"})
	}
	return nil
}
