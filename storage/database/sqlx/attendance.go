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
	"github.com/brijeshkumar2024/smart-attendance/core/attendance"
)

type attendanceRow struct {
	ID              string      `db:"id"`
	StudentID       string      `db:"student_id"`
	ClassID         string      `db:"class_id"`
	Date            time.Time   `db:"date"`
	Status          string      `db:"status"`
	MarkedBy        string      `db:"marked_by"`
	UpdatedBy       null.String `db:"updated_by"`
	IsLowAttendance bool        `db:"is_low_attendance"`
	CreatedAt       time.Time   `db:"created_at"`
	UpdatedAt       time.Time   `db:"updated_at"`
}

func (r attendanceRow) attendance() attendance.Attendance {
	return attendance.Attendance{
		ID:              r.ID,
		StudentID:       r.StudentID,
		ClassID:         r.ClassID,
		Date:            r.Date,
		Status:          r.Status,
		MarkedBy:        r.MarkedBy,
		UpdatedBy:       r.UpdatedBy.String,
		IsLowAttendance: r.IsLowAttendance,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

type detailRow struct {
	attendanceRow
	StudentName  string `db:"student_name"`
	StudentEmail string `db:"student_email"`
	ClassName    string `db:"class_name"`
	Subject      string `db:"subject"`
}

func (r detailRow) detail() attendance.Detail {
	return attendance.Detail{
		Attendance:   r.attendanceRow.attendance(),
		StudentName:  r.StudentName,
		StudentEmail: r.StudentEmail,
		ClassName:    r.ClassName,
		Subject:      r.Subject,
	}
}

type attendanceRepository struct {
	db *sqlx.DB
}

var _ attendance.Repository = (*attendanceRepository)(nil) // interface compliance check

func NewAttendanceRepository(db *sqlx.DB) *attendanceRepository {
	return &attendanceRepository{db: db}
}

func (repo attendanceRepository) trapNoRowsErr(err error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return attendance.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo attendanceRepository) CreateAttendance(ctx context.Context, att attendance.Attendance) (attendance.Attendance, error) {
	att.ID = uuid.New().String()
	_, err := repo.db.ExecContext(ctx, `
		INSERT INTO attendance (id, student_id, class_id, date, status, marked_by, is_low_attendance, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		att.ID, att.StudentID, att.ClassID, att.Date, att.Status, att.MarkedBy, att.IsLowAttendance,
		att.CreatedAt.UTC(), att.UpdatedAt.UTC()) // updated_by stays NULL until a status edit
	if err != nil {
		if isUniqueViolation(err) {
			return attendance.Attendance{}, attendance.ErrAlreadyMarked
		}
		return attendance.Attendance{}, errors.Wrap(err, "inserting attendance")
	}
	return att, nil
}

func (repo attendanceRepository) GetAttendance(ctx context.Context, id string) (attendance.Attendance, error) {
	if _, err := uuid.Parse(id); err != nil {
		return attendance.Attendance{}, attendance.ErrNotFound
	}
	var row attendanceRow
	if err := repo.db.GetContext(ctx, &row, "SELECT * FROM attendance WHERE id = $1", id); err != nil {
		return attendance.Attendance{}, repo.trapNoRowsErr(err, "finding attendance by ID")
	}
	return row.attendance(), nil
}

func (repo attendanceRepository) QueryAttendance(ctx context.Context, filter attendance.QueryFilter, ordering []core.DBOrdering) ([]attendance.Detail, error) {
	if filter.ScopeToClasses && len(filter.ClassIDs) == 0 {
		return []attendance.Detail{}, nil
	}

	query := `
		SELECT a.*, s.name AS student_name, s.email AS student_email, c.class_name, c.subject
		FROM attendance a
		JOIN users s ON s.id = a.student_id
		JOIN classes c ON c.id = a.class_id`
	var conds []string
	var args []interface{}

	if filter.StudentID != "" {
		conds = append(conds, "a.student_id = ?")
		args = append(args, filter.StudentID)
	}
	if filter.ClassID != "" {
		conds = append(conds, "a.class_id = ?")
		args = append(args, filter.ClassID)
	}
	if filter.ScopeToClasses {
		conds = append(conds, "a.class_id IN (?)")
		args = append(args, filter.ClassIDs)
	}
	if !filter.Start.IsZero() {
		conds = append(conds, "a.date >= ?")
		args = append(args, filter.Start)
	}
	if !filter.End.IsZero() {
		conds = append(conds, "a.date <= ?")
		args = append(args, filter.End)
	}
	if filter.Status != "" {
		conds = append(conds, "a.status = ?")
		args = append(args, filter.Status)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "a.date"}}
	}
	query += orderBy(ordering)

	query, inArgs, err := sqlx.In(query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "building attendance query")
	}
	var rows []detailRow
	if err = repo.db.SelectContext(ctx, &rows, repo.db.Rebind(query), inArgs...); err != nil {
		return nil, errors.Wrap(err, "querying attendance")
	}
	details := make([]attendance.Detail, 0, len(rows))
	for _, row := range rows {
		details = append(details, row.detail())
	}
	return details, nil
}

func (repo attendanceRepository) UpdateAttendance(ctx context.Context, att attendance.Attendance) (attendance.Attendance, error) {
	_, err := repo.db.ExecContext(ctx,
		"UPDATE attendance SET status = $2, updated_by = $3, is_low_attendance = $4, updated_at = $5 WHERE id = $1",
		att.ID, att.Status, null.NewString(att.UpdatedBy, att.UpdatedBy != ""), att.IsLowAttendance, att.UpdatedAt.UTC())
	if err != nil {
		return attendance.Attendance{}, errors.Wrap(err, "updating attendance")
	}
	return att, nil
}

func (repo attendanceRepository) DeleteAttendance(ctx context.Context, id string) error {
	if _, err := repo.db.ExecContext(ctx, "DELETE FROM attendance WHERE id = $1", id); err != nil {
		return errors.Wrap(err, "deleting attendance")
	}
	return nil
}

func (repo attendanceRepository) UpsertAttendance(ctx context.Context, att attendance.Attendance) (attendance.Upsert, error) {
	att.ID = uuid.New().String()
	var row struct {
		attendanceRow
		Inserted bool `db:"inserted"`
	}
	err := repo.db.GetContext(ctx, &row, `
		INSERT INTO attendance (id, student_id, class_id, date, status, marked_by, updated_by, is_low_attendance, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (student_id, class_id, date)
		DO UPDATE SET status = EXCLUDED.status, marked_by = EXCLUDED.marked_by, updated_by = EXCLUDED.updated_by, updated_at = EXCLUDED.updated_at
		WHERE attendance.status IS DISTINCT FROM EXCLUDED.status
		RETURNING *, (xmax = 0) AS inserted`,
		att.ID, att.StudentID, att.ClassID, att.Date, att.Status, att.MarkedBy,
		null.NewString(att.UpdatedBy, att.UpdatedBy != ""), att.IsLowAttendance,
		att.CreatedAt.UTC(), att.UpdatedAt.UTC())
	if err != nil {
		// conflicting row already holds this status
		if errors.Cause(err) == sql.ErrNoRows {
			return attendance.Upsert{}, nil
		}
		return attendance.Upsert{}, errors.Wrap(err, "upserting attendance")
	}
	return attendance.Upsert{
		Attendance: row.attendanceRow.attendance(),
		Inserted:   row.Inserted,
		Updated:    !row.Inserted,
	}, nil
}

func (repo attendanceRepository) StudentCounts(ctx context.Context, studentID string) (int, int, error) {
	var counts struct {
		Total   int `db:"total"`
		Present int `db:"present"`
	}
	err := repo.db.GetContext(ctx, &counts, `
		SELECT COUNT(*) AS total, COUNT(*) FILTER (WHERE status = $2) AS present
		FROM attendance WHERE student_id = $1`,
		studentID, attendance.StatusPresent)
	if err != nil {
		return 0, 0, errors.Wrap(err, "counting attendance")
	}
	return counts.Total, counts.Present, nil
}

func (repo attendanceRepository) SetLowAttendanceFlag(ctx context.Context, studentID string, low bool) error {
	_, err := repo.db.ExecContext(ctx,
		"UPDATE attendance SET is_low_attendance = $2 WHERE student_id = $1", studentID, low)
	return errors.Wrap(err, "setting low attendance flag")
}

func (repo attendanceRepository) StudentRollups(ctx context.Context, filter attendance.RollupFilter) ([]attendance.Rollup, error) {
	if filter.ScopeToClasses && len(filter.ClassIDs) == 0 {
		return []attendance.Rollup{}, nil
	}

	query := `
		SELECT s.id AS student_id, s.name AS student_name, s.email AS student_email,
		       COUNT(a.id) AS total,
		       COUNT(a.id) FILTER (WHERE a.status = ?) AS present
		FROM users s
		JOIN attendance a ON a.student_id = s.id
		WHERE s.role = 'student'`
	args := []interface{}{attendance.StatusPresent}

	if filter.ActiveStudentsOnly {
		query += " AND s.is_active"
	}
	if filter.ScopeToClasses {
		query += " AND a.class_id IN (?)"
		args = append(args, filter.ClassIDs)
	}
	query += " GROUP BY s.id, s.name, s.email"

	query, inArgs, err := sqlx.In(query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "building rollup query")
	}
	var rows []struct {
		StudentID    string `db:"student_id"`
		StudentName  string `db:"student_name"`
		StudentEmail string `db:"student_email"`
		Total        int    `db:"total"`
		Present      int    `db:"present"`
	}
	if err = repo.db.SelectContext(ctx, &rows, repo.db.Rebind(query), inArgs...); err != nil {
		return nil, errors.Wrap(err, "querying student rollups")
	}

	rollups := make([]attendance.Rollup, 0, len(rows))
	for _, row := range rows {
		pct := attendance.Percentage(row.Present, row.Total)
		rollups = append(rollups, attendance.Rollup{
			StudentID:       row.StudentID,
			StudentName:     row.StudentName,
			StudentEmail:    row.StudentEmail,
			Total:           row.Total,
			Present:         row.Present,
			Percentage:      pct,
			IsLowAttendance: pct < attendance.LowAttendanceThreshold,
		})
	}
	return rollups, nil
}

func (repo attendanceRepository) MonthlyCounts(ctx context.Context, month, year int, filter attendance.MonthlyFilter) ([]attendance.MonthlyRow, error) {
	if filter.ScopeToClasses && len(filter.ClassIDs) == 0 {
		return []attendance.MonthlyRow{}, nil
	}

	query := `
		SELECT s.id AS student_id, s.name AS student_name, c.id AS class_id, c.class_name,
		       COUNT(*) AS total,
		       COUNT(*) FILTER (WHERE a.status = ?) AS present
		FROM attendance a
		JOIN users s ON s.id = a.student_id
		JOIN classes c ON c.id = a.class_id
		WHERE EXTRACT(MONTH FROM a.date) = ? AND EXTRACT(YEAR FROM a.date) = ?`
	args := []interface{}{attendance.StatusPresent, month, year}

	if filter.StudentID != "" {
		query += " AND a.student_id = ?"
		args = append(args, filter.StudentID)
	}
	if filter.ScopeToClasses {
		query += " AND a.class_id IN (?)"
		args = append(args, filter.ClassIDs)
	}
	query += " GROUP BY s.id, s.name, c.id, c.class_name ORDER BY s.name, c.class_name"

	query, inArgs, err := sqlx.In(query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "building monthly query")
	}
	var rows []struct {
		StudentID   string `db:"student_id"`
		StudentName string `db:"student_name"`
		ClassID     string `db:"class_id"`
		ClassName   string `db:"class_name"`
		Total       int    `db:"total"`
		Present     int    `db:"present"`
	}
	if err = repo.db.SelectContext(ctx, &rows, repo.db.Rebind(query), inArgs...); err != nil {
		return nil, errors.Wrap(err, "querying monthly counts")
	}

	report := make([]attendance.MonthlyRow, 0, len(rows))
	for _, row := range rows {
		report = append(report, attendance.MonthlyRow{
			StudentID:   row.StudentID,
			StudentName: row.StudentName,
			ClassID:     row.ClassID,
			ClassName:   row.ClassName,
			Total:       row.Total,
			Present:     row.Present,
			Percentage:  attendance.Percentage(row.Present, row.Total),
		})
	}
	return report, nil
}

func (repo attendanceRepository) ClassRollupsForStudent(ctx context.Context, studentID string) ([]attendance.ClassRollup, error) {
	var rows []struct {
		ClassID   string `db:"class_id"`
		ClassName string `db:"class_name"`
		Subject   string `db:"subject"`
		Total     int    `db:"total"`
		Present   int    `db:"present"`
	}
	err := repo.db.SelectContext(ctx, &rows, `
		SELECT c.id AS class_id, c.class_name, c.subject,
		       COUNT(*) AS total,
		       COUNT(*) FILTER (WHERE a.status = $2) AS present
		FROM attendance a
		JOIN classes c ON c.id = a.class_id
		WHERE a.student_id = $1
		GROUP BY c.id, c.class_name, c.subject
		ORDER BY c.class_name`,
		studentID, attendance.StatusPresent)
	if err != nil {
		return nil, errors.Wrap(err, "querying class rollups")
	}

	rollups := make([]attendance.ClassRollup, 0, len(rows))
	for _, row := range rows {
		rollups = append(rollups, attendance.ClassRollup{
			ClassID:    row.ClassID,
			ClassName:  row.ClassName,
			Subject:    row.Subject,
			Total:      row.Total,
			Present:    row.Present,
			Percentage: attendance.Percentage(row.Present, row.Total),
		})
	}
	return rollups, nil
}
