package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/brijeshkumar2024/smart-attendance/core/attendance"
)

type auditRow struct {
	ID           string      `db:"id"`
	Action       string      `db:"action"`
	ActorID      string      `db:"actor_id"`
	AttendanceID null.String `db:"attendance_id"`
	StudentID    null.String `db:"student_id"`
	ClassID      null.String `db:"class_id"`
	Date         null.Time   `db:"date"`
	Details      string      `db:"details"`
	CreatedAt    time.Time   `db:"created_at"`
}

func (r auditRow) entry() attendance.AuditEntry {
	return attendance.AuditEntry{
		ID:           r.ID,
		Action:       r.Action,
		ActorID:      r.ActorID,
		AttendanceID: r.AttendanceID.String,
		StudentID:    r.StudentID.String,
		ClassID:      r.ClassID.String,
		Date:         r.Date.Time,
		Details:      r.Details,
		CreatedAt:    r.CreatedAt,
	}
}

type auditRepository struct {
	db *sqlx.DB
}

var _ attendance.AuditRepository = (*auditRepository)(nil) // interface compliance check

func NewAuditRepository(db *sqlx.DB) *auditRepository {
	return &auditRepository{db: db}
}

func (repo auditRepository) CreateAuditEntry(ctx context.Context, entry attendance.AuditEntry) error {
	_, err := repo.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, action, actor_id, attendance_id, student_id, class_id, date, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		uuid.New().String(), entry.Action, entry.ActorID,
		null.NewString(entry.AttendanceID, entry.AttendanceID != ""),
		null.NewString(entry.StudentID, entry.StudentID != ""),
		null.NewString(entry.ClassID, entry.ClassID != ""),
		null.NewTime(entry.Date, !entry.Date.IsZero()),
		entry.Details, entry.CreatedAt.UTC())
	return errors.Wrap(err, "inserting audit entry")
}

func (repo auditRepository) QueryAudit(ctx context.Context, limit int) ([]attendance.AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []auditRow
	err := repo.db.SelectContext(ctx, &rows,
		"SELECT * FROM audit_log ORDER BY created_at DESC LIMIT $1", limit)
	if err != nil {
		return nil, errors.Wrap(err, "querying audit log")
	}
	entries := make([]attendance.AuditEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, row.entry())
	}
	return entries, nil
}
