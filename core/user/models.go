package user

import (
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/brijeshkumar2024/smart-attendance/core"
)

// Roles
const (
	RoleAdmin   = "admin"
	RoleTeacher = "teacher"
	RoleStudent = "student"
)

var AllRoles = []string{RoleAdmin, RoleTeacher, RoleStudent}

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Role         string    `json:"role"`
	Subject      string    `json:"subject,omitempty"`    // teachers only
	TeacherID    string    `json:"teacher_id,omitempty"` // TCH0001, TCH0002, ...
	ProgramID    string    `json:"program_id,omitempty"` // academic scope, students only
	SessionID    string    `json:"session_id,omitempty"`
	BranchID     string    `json:"branch_id,omitempty"`
	Semester     int       `json:"semester,omitempty"`
	GroupLabel   string    `json:"group_label,omitempty"`
	IsActive     *bool     `json:"is_active"`
	PasswordHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at"` // UTC
	LastLogin    time.Time `json:"last_login"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) SetActive(active bool) { u.IsActive = &active }

func (u *User) Active() bool { return u.IsActive == nil || *u.IsActive }

func (u *User) IsAdmin() bool   { return u.Role == RoleAdmin }
func (u *User) IsTeacher() bool { return u.Role == RoleTeacher }
func (u *User) IsStudent() bool { return u.Role == RoleStudent }

// NewUser contains information needed to create a new User.
type NewUser struct {
	Name            string `json:"name" validate:"required"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
	Role            string `json:"role" validate:"omitempty,role"`
	Subject         string `json:"subject"`
	ProgramID       string `json:"program_id"`
	SessionID       string `json:"session_id"`
	BranchID        string `json:"branch_id"`
	Semester        int    `json:"semester" validate:"omitempty,min=1,max=8"`
	GroupLabel      string `json:"group_label"`
}

func (nu *NewUser) Validate(validate *validator.Validate, svc *Service) error {
	nu.Name = core.CleanString(nu.Name)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.Role = core.CleanString(nu.Role, true /* lower */)
	nu.Subject = core.CleanString(nu.Subject)
	nu.ProgramID = core.CleanString(nu.ProgramID)
	nu.SessionID = core.CleanString(nu.SessionID)
	nu.BranchID = core.CleanString(nu.BranchID)
	nu.GroupLabel = core.CleanString(nu.GroupLabel)
	if nu.Role == "" {
		nu.Role = RoleStudent
	}

	if err := validate.Struct(nu); err != nil {
		return err
	}
	return svc.checkEmailUniqueness(nu.Email)
}

// UpdateRole changes an existing User's role.
type UpdateRole struct {
	Role string `json:"role" validate:"required,role"`
}

func (ur *UpdateRole) Validate(validate *validator.Validate) error {
	ur.Role = core.CleanString(ur.Role, true /* lower */)
	return validate.Struct(ur)
}

// ResetUserPassword sets a new password on an existing User.
type ResetUserPassword struct {
	NewPassword     string `json:"new_password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=NewPassword"`
}

func (rp *ResetUserPassword) Validate(validate *validator.Validate) error {
	return validate.Struct(rp)
}

// GetFilter finds a single User; exactly one field should be set.
type GetFilter struct {
	ID    string
	Email string
}

// QueryFilter applies AND operation on its set fields.
// Search does a case-insensitive match on one of User.Name or User.Email.
type QueryFilter struct {
	Search   string `query:"search"`
	Role     string `query:"role"`
	IsActive *bool  `query:"is_active"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Role == "" && qf.IsActive == nil
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Role = core.CleanString(qf.Role, true /* lower */)
}
