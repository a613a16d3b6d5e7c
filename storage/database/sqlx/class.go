package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/brijeshkumar2024/smart-attendance/core"
	"github.com/brijeshkumar2024/smart-attendance/core/class"
)

type classRow struct {
	ID         string      `db:"id"`
	Name       string      `db:"class_name"`
	Subject    string      `db:"subject"`
	TeacherID  string      `db:"teacher_id"`
	TermID     null.String `db:"term_id"`
	ProgramID  null.String `db:"program_id"`
	SessionID  null.String `db:"session_id"`
	BranchID   null.String `db:"branch_id"`
	SubjectID  null.String `db:"subject_id"`
	Semester   null.Int    `db:"semester"`
	GroupLabel string      `db:"group_label"`
	CreatedAt  time.Time   `db:"created_at"`
	UpdatedAt  time.Time   `db:"updated_at"`
}

func rowFromClass(cls class.Class) classRow {
	return classRow{
		ID:         cls.ID,
		Name:       cls.Name,
		Subject:    cls.Subject,
		TeacherID:  cls.TeacherID,
		TermID:     null.NewString(cls.TermID, cls.TermID != ""),
		ProgramID:  null.NewString(cls.ProgramID, cls.ProgramID != ""),
		SessionID:  null.NewString(cls.SessionID, cls.SessionID != ""),
		BranchID:   null.NewString(cls.BranchID, cls.BranchID != ""),
		SubjectID:  null.NewString(cls.SubjectID, cls.SubjectID != ""),
		Semester:   null.NewInt(cls.Semester, cls.Semester != 0),
		GroupLabel: cls.GroupLabel,
		CreatedAt:  cls.CreatedAt.UTC(),
		UpdatedAt:  cls.UpdatedAt.UTC(),
	}
}

func (r classRow) class() class.Class {
	return class.Class{
		ID:         r.ID,
		Name:       r.Name,
		Subject:    r.Subject,
		TeacherID:  r.TeacherID,
		TermID:     r.TermID.String,
		ProgramID:  r.ProgramID.String,
		SessionID:  r.SessionID.String,
		BranchID:   r.BranchID.String,
		SubjectID:  r.SubjectID.String,
		Semester:   r.Semester.Int,
		GroupLabel: r.GroupLabel,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

type overrideRow struct {
	ID         string    `db:"id"`
	ClassID    string    `db:"class_id"`
	TeacherID  string    `db:"teacher_id"`
	Date       time.Time `db:"date"`
	AssignedBy string    `db:"assigned_by"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

func (r overrideRow) override() class.TeacherOverride {
	return class.TeacherOverride{
		ID:         r.ID,
		ClassID:    r.ClassID,
		TeacherID:  r.TeacherID,
		Date:       r.Date,
		AssignedBy: r.AssignedBy,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

type classRepository struct {
	db *sqlx.DB
}

var _ class.Repository = (*classRepository)(nil) // interface compliance check

func NewClassRepository(db *sqlx.DB) *classRepository {
	return &classRepository{db: db}
}

func (repo classRepository) trapNoRowsErr(err error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return class.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo classRepository) CreateClass(ctx context.Context, cls class.Class) (class.Class, error) {
	cls.ID = uuid.New().String()
	row := rowFromClass(cls)
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO classes (id, class_name, subject, teacher_id, term_id, program_id, session_id, branch_id, subject_id, semester, group_label, created_at, updated_at)
		VALUES (:id, :class_name, :subject, :teacher_id, :term_id, :program_id, :session_id, :branch_id, :subject_id, :semester, :group_label, :created_at, :updated_at)`,
		row)
	if err != nil {
		return class.Class{}, errors.Wrap(err, "inserting class")
	}
	return cls, nil
}

func (repo classRepository) GetClass(ctx context.Context, id string) (class.Class, error) {
	if _, err := uuid.Parse(id); err != nil {
		return class.Class{}, class.ErrNotFound
	}
	var row classRow
	if err := repo.db.GetContext(ctx, &row, "SELECT * FROM classes WHERE id = $1", id); err != nil {
		return class.Class{}, repo.trapNoRowsErr(err, "finding class by ID")
	}
	return row.class(), nil
}

func (repo classRepository) GetClassByName(ctx context.Context, name string) (class.Class, error) {
	var row classRow
	if err := repo.db.GetContext(ctx, &row, "SELECT * FROM classes WHERE class_name = $1", name); err != nil {
		return class.Class{}, repo.trapNoRowsErr(err, "finding class by name")
	}
	return row.class(), nil
}

func (repo classRepository) GetClassByScope(ctx context.Context, scope class.Scope) (class.Class, error) {
	var row classRow
	err := repo.db.GetContext(ctx, &row, `
		SELECT * FROM classes
		WHERE program_id = $1 AND session_id = $2 AND branch_id = $3 AND subject_id = $4 AND semester = $5 AND group_label = $6`,
		scope.ProgramID, scope.SessionID, scope.BranchID, scope.SubjectID, scope.Semester, scope.GroupLabel)
	if err != nil {
		return class.Class{}, repo.trapNoRowsErr(err, "finding class by scope")
	}
	return row.class(), nil
}

func (repo classRepository) QueryClasses(ctx context.Context, ids []string, ordering []core.DBOrdering) ([]class.Class, error) {
	query := "SELECT * FROM classes"
	var args []interface{}
	if ids != nil {
		var err error
		if query, args, err = sqlx.In(query+" WHERE id IN (?)", ids); err != nil {
			return nil, errors.Wrap(err, "building classes query")
		}
	}
	query += orderBy(ordering)

	var rows []classRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "querying classes")
	}
	classes := make([]class.Class, 0, len(rows))
	for _, row := range rows {
		classes = append(classes, row.class())
	}
	return classes, nil
}

func (repo classRepository) QueryClassIDs(ctx context.Context, filter class.ClassFilter) ([]string, error) {
	query := "SELECT id FROM classes"
	var conds []string
	var args []interface{}

	if filter.ProgramID != "" {
		conds = append(conds, "program_id = ?")
		args = append(args, filter.ProgramID)
	}
	if filter.SessionID != "" {
		conds = append(conds, "session_id = ?")
		args = append(args, filter.SessionID)
	}
	if filter.BranchID != "" {
		conds = append(conds, "branch_id = ?")
		args = append(args, filter.BranchID)
	}
	if filter.Semester != 0 {
		conds = append(conds, "semester = ?")
		args = append(args, filter.Semester)
	}
	if filter.GroupLabel != "" {
		conds = append(conds, "group_label = ?")
		args = append(args, filter.GroupLabel)
	}
	if filter.Subject != "" {
		conds = append(conds, "subject ILIKE ?")
		args = append(args, filter.Subject)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}

	var ids []string
	if err := repo.db.SelectContext(ctx, &ids, repo.db.Rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "querying class ids")
	}
	return ids, nil
}

func (repo classRepository) UpdateClass(ctx context.Context, cls class.Class) (class.Class, error) {
	row := rowFromClass(cls)
	_, err := repo.db.NamedExecContext(ctx, `
		UPDATE classes
		SET class_name = :class_name, subject = :subject, teacher_id = :teacher_id, term_id = :term_id,
		    program_id = :program_id, session_id = :session_id, branch_id = :branch_id, subject_id = :subject_id,
		    semester = :semester, group_label = :group_label, updated_at = :updated_at
		WHERE id = :id`,
		row)
	if err != nil {
		return class.Class{}, errors.Wrap(err, "updating class")
	}
	return cls, nil
}

func (repo classRepository) QueryPermanentClassIDs(ctx context.Context, teacherID string) ([]string, error) {
	var ids []string
	if err := repo.db.SelectContext(ctx, &ids, "SELECT id FROM classes WHERE teacher_id = $1", teacherID); err != nil {
		return nil, errors.Wrap(err, "querying permanent class ids")
	}
	return ids, nil
}

func (repo classRepository) GetOverride(ctx context.Context, classID, teacherID string, date time.Time) (class.TeacherOverride, error) {
	var row overrideRow
	err := repo.db.GetContext(ctx, &row,
		"SELECT * FROM class_teacher_overrides WHERE class_id = $1 AND teacher_id = $2 AND date = $3",
		classID, teacherID, date)
	if err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return class.TeacherOverride{}, class.ErrOverrideNotFound
		}
		return class.TeacherOverride{}, errors.Wrap(err, "finding teacher override")
	}
	return row.override(), nil
}

func (repo classRepository) UpsertOverride(ctx context.Context, ov class.TeacherOverride) (class.TeacherOverride, error) {
	ov.ID = uuid.New().String()
	var row overrideRow
	err := repo.db.GetContext(ctx, &row, `
		INSERT INTO class_teacher_overrides (id, class_id, teacher_id, date, assigned_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (class_id, date)
		DO UPDATE SET teacher_id = EXCLUDED.teacher_id, assigned_by = EXCLUDED.assigned_by, updated_at = EXCLUDED.updated_at
		RETURNING *`,
		ov.ID, ov.ClassID, ov.TeacherID, ov.Date, ov.AssignedBy, ov.CreatedAt.UTC(), ov.UpdatedAt.UTC())
	if err != nil {
		return class.TeacherOverride{}, errors.Wrap(err, "upserting teacher override")
	}
	return row.override(), nil
}

func (repo classRepository) QueryOverrideClassIDs(ctx context.Context, teacherID string, filter class.OverrideFilter) ([]string, error) {
	query := "SELECT DISTINCT class_id FROM class_teacher_overrides WHERE teacher_id = ?"
	args := []interface{}{teacherID}

	switch {
	case filter.All:
		// no date restriction
	case !filter.Start.IsZero() || !filter.End.IsZero():
		if !filter.Start.IsZero() {
			query += " AND date >= ?"
			args = append(args, filter.Start)
		}
		if !filter.End.IsZero() {
			query += " AND date <= ?"
			args = append(args, filter.End)
		}
	default:
		date := filter.Date
		if date.IsZero() {
			date = time.Now()
		}
		query += " AND date = ?"
		args = append(args, core.NormalizeDate(date))
	}

	var ids []string
	if err := repo.db.SelectContext(ctx, &ids, repo.db.Rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "querying override class ids")
	}
	return ids, nil
}
