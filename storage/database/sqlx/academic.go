package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/brijeshkumar2024/smart-attendance/core/academic"
)

type programRow struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	Code      string    `db:"code"`
	IsActive  null.Bool `db:"is_active"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r programRow) program() academic.Program {
	return academic.Program{
		ID: r.ID, Name: r.Name, Code: r.Code, IsActive: r.IsActive.Ptr(),
		CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
}

type sessionRow struct {
	ID        string    `db:"id"`
	ProgramID string    `db:"program_id"`
	Label     string    `db:"label"`
	IsActive  null.Bool `db:"is_active"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r sessionRow) session() academic.Session {
	return academic.Session{
		ID: r.ID, ProgramID: r.ProgramID, Label: r.Label, IsActive: r.IsActive.Ptr(),
		CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
}

type branchRow struct {
	ID        string    `db:"id"`
	ProgramID string    `db:"program_id"`
	SessionID string    `db:"session_id"`
	Name      string    `db:"name"`
	Code      string    `db:"code"`
	IsActive  null.Bool `db:"is_active"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r branchRow) branch() academic.Branch {
	return academic.Branch{
		ID: r.ID, ProgramID: r.ProgramID, SessionID: r.SessionID, Name: r.Name, Code: r.Code,
		IsActive: r.IsActive.Ptr(), CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
}

type subjectRow struct {
	ID        string    `db:"id"`
	ProgramID string    `db:"program_id"`
	SessionID string    `db:"session_id"`
	BranchID  string    `db:"branch_id"`
	Semester  int       `db:"semester"`
	Name      string    `db:"name"`
	Code      string    `db:"code"`
	IsActive  null.Bool `db:"is_active"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r subjectRow) subject() academic.Subject {
	return academic.Subject{
		ID: r.ID, ProgramID: r.ProgramID, SessionID: r.SessionID, BranchID: r.BranchID,
		Semester: r.Semester, Name: r.Name, Code: r.Code, IsActive: r.IsActive.Ptr(),
		CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
}

type termRow struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	StartDate time.Time `db:"start_date"`
	EndDate   time.Time `db:"end_date"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r termRow) term() academic.Term {
	return academic.Term{
		ID: r.ID, Name: r.Name, StartDate: r.StartDate, EndDate: r.EndDate,
		CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
}

type academicRepository struct {
	db *sqlx.DB
}

var _ academic.Repository = (*academicRepository)(nil) // interface compliance check

func NewAcademicRepository(db *sqlx.DB) *academicRepository {
	return &academicRepository{db: db}
}

func trapNoRows(err error, notFound error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}

// Programs

func (repo academicRepository) CreateProgram(ctx context.Context, p academic.Program) (academic.Program, error) {
	p.ID = uuid.New().String()
	_, err := repo.db.ExecContext(ctx, `
		INSERT INTO academic_programs (id, name, code, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		p.ID, p.Name, p.Code, null.BoolFromPtr(p.IsActive), p.CreatedAt.UTC(), p.UpdatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return academic.Program{}, academic.ErrProgramExists
		}
		return academic.Program{}, errors.Wrap(err, "inserting program")
	}
	return p, nil
}

func (repo academicRepository) GetProgram(ctx context.Context, id string) (academic.Program, error) {
	if _, err := uuid.Parse(id); err != nil {
		return academic.Program{}, academic.ErrProgramNotFound
	}
	var row programRow
	if err := repo.db.GetContext(ctx, &row, "SELECT * FROM academic_programs WHERE id = $1", id); err != nil {
		return academic.Program{}, trapNoRows(err, academic.ErrProgramNotFound, "finding program")
	}
	return row.program(), nil
}

func (repo academicRepository) GetProgramByName(ctx context.Context, name string) (academic.Program, error) {
	var row programRow
	err := repo.db.GetContext(ctx, &row,
		"SELECT * FROM academic_programs WHERE LOWER(name) = LOWER($1) AND is_active", name)
	if err != nil {
		return academic.Program{}, trapNoRows(err, academic.ErrProgramNotFound, "finding program by name")
	}
	return row.program(), nil
}

func (repo academicRepository) QueryPrograms(ctx context.Context, activeOnly bool) ([]academic.Program, error) {
	query := "SELECT * FROM academic_programs"
	if activeOnly {
		query += " WHERE is_active"
	}
	query += " ORDER BY name"

	var rows []programRow
	if err := repo.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, errors.Wrap(err, "querying programs")
	}
	programs := make([]academic.Program, 0, len(rows))
	for _, row := range rows {
		programs = append(programs, row.program())
	}
	return programs, nil
}

func (repo academicRepository) UpdateProgram(ctx context.Context, p academic.Program) (academic.Program, error) {
	_, err := repo.db.ExecContext(ctx,
		"UPDATE academic_programs SET name = $2, code = $3, is_active = $4, updated_at = $5 WHERE id = $1",
		p.ID, p.Name, p.Code, null.BoolFromPtr(p.IsActive), p.UpdatedAt.UTC())
	if err != nil {
		return academic.Program{}, errors.Wrap(err, "updating program")
	}
	return p, nil
}

// Sessions

func (repo academicRepository) CreateSession(ctx context.Context, s academic.Session) (academic.Session, error) {
	s.ID = uuid.New().String()
	_, err := repo.db.ExecContext(ctx, `
		INSERT INTO academic_sessions (id, program_id, label, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		s.ID, s.ProgramID, s.Label, null.BoolFromPtr(s.IsActive), s.CreatedAt.UTC(), s.UpdatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return academic.Session{}, academic.ErrSessionExists
		}
		return academic.Session{}, errors.Wrap(err, "inserting session")
	}
	return s, nil
}

func (repo academicRepository) GetSession(ctx context.Context, id string) (academic.Session, error) {
	if _, err := uuid.Parse(id); err != nil {
		return academic.Session{}, academic.ErrSessionNotFound
	}
	var row sessionRow
	if err := repo.db.GetContext(ctx, &row, "SELECT * FROM academic_sessions WHERE id = $1", id); err != nil {
		return academic.Session{}, trapNoRows(err, academic.ErrSessionNotFound, "finding session")
	}
	return row.session(), nil
}

func (repo academicRepository) GetSessionByLabel(ctx context.Context, programID, label string) (academic.Session, error) {
	var row sessionRow
	err := repo.db.GetContext(ctx, &row,
		"SELECT * FROM academic_sessions WHERE program_id = $1 AND LOWER(label) = LOWER($2) AND is_active",
		programID, label)
	if err != nil {
		return academic.Session{}, trapNoRows(err, academic.ErrSessionNotFound, "finding session by label")
	}
	return row.session(), nil
}

func (repo academicRepository) QuerySessions(ctx context.Context, programID string, activeOnly bool) ([]academic.Session, error) {
	query := "SELECT * FROM academic_sessions WHERE 1=1"
	var args []interface{}
	if programID != "" {
		query += " AND program_id = ?"
		args = append(args, programID)
	}
	if activeOnly {
		query += " AND is_active"
	}
	query += " ORDER BY label"

	var rows []sessionRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "querying sessions")
	}
	sessions := make([]academic.Session, 0, len(rows))
	for _, row := range rows {
		sessions = append(sessions, row.session())
	}
	return sessions, nil
}

func (repo academicRepository) UpdateSession(ctx context.Context, s academic.Session) (academic.Session, error) {
	_, err := repo.db.ExecContext(ctx,
		"UPDATE academic_sessions SET label = $2, is_active = $3, updated_at = $4 WHERE id = $1",
		s.ID, s.Label, null.BoolFromPtr(s.IsActive), s.UpdatedAt.UTC())
	if err != nil {
		return academic.Session{}, errors.Wrap(err, "updating session")
	}
	return s, nil
}

// Branches

func (repo academicRepository) CreateBranch(ctx context.Context, b academic.Branch) (academic.Branch, error) {
	b.ID = uuid.New().String()
	_, err := repo.db.ExecContext(ctx, `
		INSERT INTO academic_branches (id, program_id, session_id, name, code, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		b.ID, b.ProgramID, b.SessionID, b.Name, b.Code, null.BoolFromPtr(b.IsActive), b.CreatedAt.UTC(), b.UpdatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return academic.Branch{}, academic.ErrBranchExists
		}
		return academic.Branch{}, errors.Wrap(err, "inserting branch")
	}
	return b, nil
}

func (repo academicRepository) GetBranch(ctx context.Context, id string) (academic.Branch, error) {
	if _, err := uuid.Parse(id); err != nil {
		return academic.Branch{}, academic.ErrBranchNotFound
	}
	var row branchRow
	if err := repo.db.GetContext(ctx, &row, "SELECT * FROM academic_branches WHERE id = $1", id); err != nil {
		return academic.Branch{}, trapNoRows(err, academic.ErrBranchNotFound, "finding branch")
	}
	return row.branch(), nil
}

func (repo academicRepository) GetBranchByName(ctx context.Context, programID, sessionID, name string) (academic.Branch, error) {
	var row branchRow
	err := repo.db.GetContext(ctx, &row, `
		SELECT * FROM academic_branches
		WHERE program_id = $1 AND session_id = $2 AND LOWER(name) = LOWER($3) AND is_active`,
		programID, sessionID, name)
	if err != nil {
		return academic.Branch{}, trapNoRows(err, academic.ErrBranchNotFound, "finding branch by name")
	}
	return row.branch(), nil
}

func (repo academicRepository) QueryBranches(ctx context.Context, programID, sessionID string, activeOnly bool) ([]academic.Branch, error) {
	query := "SELECT * FROM academic_branches WHERE 1=1"
	var args []interface{}
	if programID != "" {
		query += " AND program_id = ?"
		args = append(args, programID)
	}
	if sessionID != "" {
		query += " AND session_id = ?"
		args = append(args, sessionID)
	}
	if activeOnly {
		query += " AND is_active"
	}
	query += " ORDER BY name"

	var rows []branchRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "querying branches")
	}
	branches := make([]academic.Branch, 0, len(rows))
	for _, row := range rows {
		branches = append(branches, row.branch())
	}
	return branches, nil
}

func (repo academicRepository) UpdateBranch(ctx context.Context, b academic.Branch) (academic.Branch, error) {
	_, err := repo.db.ExecContext(ctx,
		"UPDATE academic_branches SET name = $2, code = $3, is_active = $4, updated_at = $5 WHERE id = $1",
		b.ID, b.Name, b.Code, null.BoolFromPtr(b.IsActive), b.UpdatedAt.UTC())
	if err != nil {
		return academic.Branch{}, errors.Wrap(err, "updating branch")
	}
	return b, nil
}

// Subjects

func (repo academicRepository) CreateSubject(ctx context.Context, s academic.Subject) (academic.Subject, error) {
	s.ID = uuid.New().String()
	_, err := repo.db.ExecContext(ctx, `
		INSERT INTO academic_subjects (id, program_id, session_id, branch_id, semester, name, code, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		s.ID, s.ProgramID, s.SessionID, s.BranchID, s.Semester, s.Name, s.Code,
		null.BoolFromPtr(s.IsActive), s.CreatedAt.UTC(), s.UpdatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return academic.Subject{}, academic.ErrSubjectExists
		}
		return academic.Subject{}, errors.Wrap(err, "inserting subject")
	}
	return s, nil
}

func (repo academicRepository) GetSubject(ctx context.Context, id string) (academic.Subject, error) {
	if _, err := uuid.Parse(id); err != nil {
		return academic.Subject{}, academic.ErrSubjectNotFound
	}
	var row subjectRow
	if err := repo.db.GetContext(ctx, &row, "SELECT * FROM academic_subjects WHERE id = $1", id); err != nil {
		return academic.Subject{}, trapNoRows(err, academic.ErrSubjectNotFound, "finding subject")
	}
	return row.subject(), nil
}

func (repo academicRepository) GetSubjectByName(ctx context.Context, branchID string, semester int, name string) (academic.Subject, error) {
	var row subjectRow
	err := repo.db.GetContext(ctx, &row, `
		SELECT * FROM academic_subjects
		WHERE branch_id = $1 AND semester = $2 AND LOWER(name) = LOWER($3) AND is_active`,
		branchID, semester, name)
	if err != nil {
		return academic.Subject{}, trapNoRows(err, academic.ErrSubjectNotFound, "finding subject by name")
	}
	return row.subject(), nil
}

func (repo academicRepository) QuerySubjects(ctx context.Context, branchID string, semester int, activeOnly bool) ([]academic.Subject, error) {
	query := "SELECT * FROM academic_subjects WHERE 1=1"
	var args []interface{}
	if branchID != "" {
		query += " AND branch_id = ?"
		args = append(args, branchID)
	}
	if semester != 0 {
		query += " AND semester = ?"
		args = append(args, semester)
	}
	if activeOnly {
		query += " AND is_active"
	}
	query += " ORDER BY semester, name"

	var rows []subjectRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "querying subjects")
	}
	subjects := make([]academic.Subject, 0, len(rows))
	for _, row := range rows {
		subjects = append(subjects, row.subject())
	}
	return subjects, nil
}

func (repo academicRepository) UpdateSubject(ctx context.Context, s academic.Subject) (academic.Subject, error) {
	_, err := repo.db.ExecContext(ctx,
		"UPDATE academic_subjects SET name = $2, code = $3, is_active = $4, updated_at = $5 WHERE id = $1",
		s.ID, s.Name, s.Code, null.BoolFromPtr(s.IsActive), s.UpdatedAt.UTC())
	if err != nil {
		return academic.Subject{}, errors.Wrap(err, "updating subject")
	}
	return s, nil
}

func (repo academicRepository) DeactivateDescendants(ctx context.Context, programID, sessionID, branchID string) error {
	now := time.Now().UTC()
	switch {
	case programID != "":
		if _, err := repo.db.ExecContext(ctx,
			"UPDATE academic_sessions SET is_active = FALSE, updated_at = $2 WHERE program_id = $1", programID, now); err != nil {
			return errors.Wrap(err, "deactivating sessions")
		}
		if _, err := repo.db.ExecContext(ctx,
			"UPDATE academic_branches SET is_active = FALSE, updated_at = $2 WHERE program_id = $1", programID, now); err != nil {
			return errors.Wrap(err, "deactivating branches")
		}
		if _, err := repo.db.ExecContext(ctx,
			"UPDATE academic_subjects SET is_active = FALSE, updated_at = $2 WHERE program_id = $1", programID, now); err != nil {
			return errors.Wrap(err, "deactivating subjects")
		}
	case sessionID != "":
		if _, err := repo.db.ExecContext(ctx,
			"UPDATE academic_branches SET is_active = FALSE, updated_at = $2 WHERE session_id = $1", sessionID, now); err != nil {
			return errors.Wrap(err, "deactivating branches")
		}
		if _, err := repo.db.ExecContext(ctx,
			"UPDATE academic_subjects SET is_active = FALSE, updated_at = $2 WHERE session_id = $1", sessionID, now); err != nil {
			return errors.Wrap(err, "deactivating subjects")
		}
	case branchID != "":
		if _, err := repo.db.ExecContext(ctx,
			"UPDATE academic_subjects SET is_active = FALSE, updated_at = $2 WHERE branch_id = $1", branchID, now); err != nil {
			return errors.Wrap(err, "deactivating subjects")
		}
	}
	return nil
}

func (repo academicRepository) CountActive(ctx context.Context) (academic.Summary, error) {
	var summary academic.Summary
	err := repo.db.GetContext(ctx, &summary, `
		SELECT (SELECT COUNT(*) FROM academic_programs WHERE is_active) AS programs,
		       (SELECT COUNT(*) FROM academic_sessions WHERE is_active) AS sessions,
		       (SELECT COUNT(*) FROM academic_branches WHERE is_active) AS branches,
		       (SELECT COUNT(*) FROM academic_subjects WHERE is_active) AS subjects`)
	if err != nil {
		return academic.Summary{}, errors.Wrap(err, "counting academic rows")
	}
	return summary, nil
}

// Terms

func (repo academicRepository) CreateTerm(ctx context.Context, t academic.Term) (academic.Term, error) {
	t.ID = uuid.New().String()
	_, err := repo.db.ExecContext(ctx, `
		INSERT INTO terms (id, name, start_date, end_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		t.ID, t.Name, t.StartDate, t.EndDate, t.CreatedAt.UTC(), t.UpdatedAt.UTC())
	if err != nil {
		return academic.Term{}, errors.Wrap(err, "inserting term")
	}
	return t, nil
}

func (repo academicRepository) GetTerm(ctx context.Context, id string) (academic.Term, error) {
	if _, err := uuid.Parse(id); err != nil {
		return academic.Term{}, academic.ErrTermNotFound
	}
	var row termRow
	if err := repo.db.GetContext(ctx, &row, "SELECT * FROM terms WHERE id = $1", id); err != nil {
		return academic.Term{}, trapNoRows(err, academic.ErrTermNotFound, "finding term")
	}
	return row.term(), nil
}

func (repo academicRepository) QueryTerms(ctx context.Context) ([]academic.Term, error) {
	var rows []termRow
	if err := repo.db.SelectContext(ctx, &rows, "SELECT * FROM terms ORDER BY start_date DESC"); err != nil {
		return nil, errors.Wrap(err, "querying terms")
	}
	terms := make([]academic.Term, 0, len(rows))
	for _, row := range rows {
		terms = append(terms, row.term())
	}
	return terms, nil
}
