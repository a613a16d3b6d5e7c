package user

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/brijeshkumar2024/smart-attendance/core"
)

const (
	teacherIDPrefix = "TCH"
	teacherIDPad    = 4
)

var (
	ErrNotFound    = core.NewNotFoundError("user not found")
	ErrEmailExists = core.NewConflictError("a user with this email already exists")
)

type (
	Repository interface {
		CheckEmailUniqueness(ctx context.Context, email string, excludedUsers ...User) error
		CreateUser(ctx context.Context, usr User) (User, error)
		GetUser(ctx context.Context, filter GetFilter) (User, error)
		// QueryUsers applies AND operation on available QueryFilter fields.
		QueryUsers(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error)
		UpdateUser(ctx context.Context, usr User) (User, error)
		UpdateOrCreateUser(ctx context.Context, usr User) (User, error)
		// NextTeacherSeq atomically increments and returns the teacher id counter.
		NextTeacherSeq(ctx context.Context) (int, error)
	}

	Service struct {
		repo Repository
		conf *core.Config
	}
)

func NewService(repo Repository, conf *core.Config) *Service {
	return &Service{repo: repo, conf: conf}
}

func (svc *Service) checkEmailUniqueness(email string, exclUsers ...User) error {
	if err := svc.repo.CheckEmailUniqueness(context.Background(), email, exclUsers...); err != nil {
		if errors.Cause(err) == ErrEmailExists {
			return core.NewValidationError(err, core.FieldError{Field: "email", Error: err.Error()})
		}
		return err
	}
	return nil
}

func (svc *Service) Create(ctx context.Context, nu NewUser) (User, error) {
	now := time.Now().UTC()
	usr := User{
		Name:      nu.Name,
		Email:     nu.Email,
		Role:      nu.Role,
		CreatedAt: now,
		UpdatedAt: now,
	}
	usr.SetActive(true)
	if usr.IsStudent() {
		usr.ProgramID = nu.ProgramID
		usr.SessionID = nu.SessionID
		usr.BranchID = nu.BranchID
		usr.Semester = nu.Semester
		usr.GroupLabel = nu.GroupLabel
	}
	if usr.IsTeacher() {
		usr.Subject = nu.Subject
		seq, err := svc.repo.NextTeacherSeq(ctx)
		if err != nil {
			return User{}, errors.Wrap(err, "minting teacher id")
		}
		usr.TeacherID = fmt.Sprintf("%s%0*d", teacherIDPrefix, teacherIDPad, seq)
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "hashing password")
	}
	return svc.repo.CreateUser(ctx, usr)
}

func (svc *Service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{ID: id})
}

func (svc *Service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{Email: core.CleanString(email, true /* lower */)})
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error) {
	return svc.repo.QueryUsers(ctx, filter, ordering)
}

func (svc *Service) ActiveTeachers(ctx context.Context) ([]User, error) {
	active := true
	return svc.repo.QueryUsers(ctx, &QueryFilter{Role: RoleTeacher, IsActive: &active}, nil)
}

func (svc *Service) ActiveStudents(ctx context.Context) ([]User, error) {
	active := true
	return svc.repo.QueryUsers(ctx, &QueryFilter{Role: RoleStudent, IsActive: &active}, nil)
}

// SetRole changes a User's role. Leaving the teacher role clears the subject.
func (svc *Service) SetRole(ctx context.Context, id, role string) (User, error) {
	usr, err := svc.repo.GetUser(ctx, GetFilter{ID: id})
	if err != nil {
		return User{}, err
	}
	usr.Role = role
	if !usr.IsTeacher() {
		usr.Subject = ""
	}
	usr.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

// Deactivate disables a User account without deleting its records.
func (svc *Service) Deactivate(ctx context.Context, id string) (User, error) {
	usr, err := svc.repo.GetUser(ctx, GetFilter{ID: id})
	if err != nil {
		return User{}, err
	}
	usr.SetActive(false)
	usr.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *Service) ResetPassword(ctx context.Context, id, newPwd string) (User, error) {
	usr, err := svc.repo.GetUser(ctx, GetFilter{ID: id})
	if err != nil {
		return User{}, err
	}
	if err = usr.SetPassword(newPwd); err != nil {
		return User{}, errors.Wrap(err, "hashing password")
	}
	usr.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *Service) SetLastLogin(ctx context.Context, usr User) (User, error) {
	usr.LastLogin = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}
