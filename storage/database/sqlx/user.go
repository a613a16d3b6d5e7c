package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/brijeshkumar2024/smart-attendance/core"
	"github.com/brijeshkumar2024/smart-attendance/core/user"
)

const pqUniqueViolation = "23505"

// isUniqueViolation reports whether err is a psql unique constraint error.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(errors.Cause(err), &pqErr) {
		return pqErr.Code == pqUniqueViolation
	}
	return false
}

func orderBy(ordering []core.DBOrdering) string {
	if len(ordering) == 0 {
		return ""
	}
	orderList := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		orderList = append(orderList, ord.String())
	}
	return " ORDER BY " + strings.Join(orderList, ", ")
}

type userRow struct {
	ID           string      `db:"id"`
	Name         string      `db:"name"`
	Email        string      `db:"email"`
	Role         string      `db:"role"`
	Subject      string      `db:"subject"`
	TeacherID    string      `db:"teacher_id"`
	ProgramID    null.String `db:"program_id"`
	SessionID    null.String `db:"session_id"`
	BranchID     null.String `db:"branch_id"`
	Semester     null.Int    `db:"semester"`
	GroupLabel   string      `db:"group_label"`
	IsActive     null.Bool   `db:"is_active"`
	PasswordHash []byte      `db:"password_hash"`
	CreatedAt    time.Time   `db:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at"`
	LastLogin    null.Time   `db:"last_login"`
}

func rowFromUser(usr user.User) userRow {
	return userRow{
		ID:           usr.ID,
		Name:         usr.Name,
		Email:        usr.Email,
		Role:         usr.Role,
		Subject:      usr.Subject,
		TeacherID:    usr.TeacherID,
		ProgramID:    null.NewString(usr.ProgramID, usr.ProgramID != ""),
		SessionID:    null.NewString(usr.SessionID, usr.SessionID != ""),
		BranchID:     null.NewString(usr.BranchID, usr.BranchID != ""),
		Semester:     null.NewInt(usr.Semester, usr.Semester != 0),
		GroupLabel:   usr.GroupLabel,
		IsActive:     null.BoolFromPtr(usr.IsActive),
		PasswordHash: usr.PasswordHash,
		CreatedAt:    usr.CreatedAt.UTC(),
		UpdatedAt:    usr.UpdatedAt.UTC(),
		LastLogin:    null.NewTime(usr.LastLogin.UTC(), !usr.LastLogin.IsZero()),
	}
}

func (r userRow) user() user.User {
	return user.User{
		ID:           r.ID,
		Name:         r.Name,
		Email:        r.Email,
		Role:         r.Role,
		Subject:      r.Subject,
		TeacherID:    r.TeacherID,
		ProgramID:    r.ProgramID.String,
		SessionID:    r.SessionID.String,
		BranchID:     r.BranchID.String,
		Semester:     r.Semester.Int,
		GroupLabel:   r.GroupLabel,
		IsActive:     r.IsActive.Ptr(),
		PasswordHash: r.PasswordHash,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
		LastLogin:    r.LastLogin.Time,
	}
}

type userRepository struct {
	db *sqlx.DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *sqlx.DB) *userRepository {
	return &userRepository{db: db}
}

// trapNoRowsErr maps psql "no rows" err to user.ErrNotFound
func (repo userRepository) trapNoRowsErr(err error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return user.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo userRepository) CheckEmailUniqueness(ctx context.Context, email string, excludedUsers ...user.User) error {
	query := "SELECT EXISTS (SELECT 1 FROM users WHERE email = ?"
	args := []interface{}{email}
	if len(excludedUsers) > 0 {
		ids := make([]string, 0, len(excludedUsers))
		for _, u := range excludedUsers {
			ids = append(ids, u.ID)
		}
		query += " AND id NOT IN (?)"
		args = append(args, ids)
	}
	query += ")"

	query, inArgs, err := sqlx.In(query, args...)
	if err != nil {
		return errors.Wrap(err, "building uniqueness query")
	}
	var exists bool
	if err = repo.db.GetContext(ctx, &exists, repo.db.Rebind(query), inArgs...); err != nil {
		return errors.Wrap(err, "checking email uniqueness")
	}
	if exists {
		return user.ErrEmailExists
	}
	return nil
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	usr.ID = uuid.New().String()
	row := rowFromUser(usr)
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO users (id, name, email, role, subject, teacher_id, program_id, session_id, branch_id, semester, group_label,
		                   is_active, password_hash, created_at, updated_at, last_login)
		VALUES (:id, :name, :email, :role, :subject, :teacher_id, :program_id, :session_id, :branch_id, :semester, :group_label,
		        :is_active, :password_hash, :created_at, :updated_at, :last_login)`,
		row)
	if err != nil {
		if isUniqueViolation(err) {
			return user.User{}, user.ErrEmailExists
		}
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return usr, nil
}

func (repo userRepository) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	var row userRow
	if filter.ID != "" {
		if _, err := uuid.Parse(filter.ID); err != nil {
			return user.User{}, user.ErrNotFound
		}
		if err := repo.db.GetContext(ctx, &row, "SELECT * FROM users WHERE id = $1", filter.ID); err != nil {
			return user.User{}, repo.trapNoRowsErr(err, "finding user by ID")
		}
		return row.user(), nil
	}
	if err := repo.db.GetContext(ctx, &row, "SELECT * FROM users WHERE email = $1", filter.Email); err != nil {
		return user.User{}, repo.trapNoRowsErr(err, "finding user by email")
	}
	return row.user(), nil
}

func (repo userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering) ([]user.User, error) {
	query := "SELECT * FROM users"
	var conds []string
	var args []interface{}

	if filter != nil {
		if filter.Search != "" {
			val := "%" + filter.Search + "%"
			conds = append(conds, "(name ILIKE ? OR email ILIKE ?)")
			args = append(args, val, val)
		}
		if filter.Role != "" {
			conds = append(conds, "role = ?")
			args = append(args, filter.Role)
		}
		if filter.IsActive != nil {
			conds = append(conds, "is_active = ?")
			args = append(args, *filter.IsActive)
		}
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	if ordering == nil {
		ordering = []core.DBOrdering{{Field: "name", Ascending: true}}
	}
	query += orderBy(ordering)

	var rows []userRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	users := make([]user.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, row.user())
	}
	return users, nil
}

func (repo userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	row := rowFromUser(usr)
	_, err := repo.db.NamedExecContext(ctx, `
		UPDATE users
		SET name = :name, email = :email, role = :role, subject = :subject, teacher_id = :teacher_id,
		    program_id = :program_id, session_id = :session_id, branch_id = :branch_id, semester = :semester,
		    group_label = :group_label, is_active = :is_active, password_hash = :password_hash,
		    updated_at = :updated_at, last_login = :last_login
		WHERE id = :id`,
		row)
	if err != nil {
		if isUniqueViolation(err) {
			return user.User{}, user.ErrEmailExists
		}
		return user.User{}, errors.Wrap(err, "updating user")
	}
	return usr, nil
}

func (repo userRepository) UpdateOrCreateUser(ctx context.Context, usr user.User) (user.User, error) {
	if usr.ID == "" {
		return repo.CreateUser(ctx, usr)
	}
	return repo.UpdateUser(ctx, usr)
}

func (repo userRepository) NextTeacherSeq(ctx context.Context) (int, error) {
	var seq int
	if err := repo.db.GetContext(ctx, &seq, "SELECT nextval('teacher_id_seq')"); err != nil {
		return 0, errors.Wrap(err, "incrementing teacher id counter")
	}
	return seq, nil
}
