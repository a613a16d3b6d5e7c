package dummydb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/brijeshkumar2024/smart-attendance/core"
	"github.com/brijeshkumar2024/smart-attendance/core/attendance"
)

type attendanceRepository struct {
	db *DB
}

var _ attendance.Repository = (*attendanceRepository)(nil) // interface compliance check

func NewAttendanceRepository(db *DB) *attendanceRepository {
	return &attendanceRepository{db: db}
}

func (repo *attendanceRepository) query() []attendance.Attendance {
	records := make([]attendance.Attendance, 0, len(repo.db.attendance.table))
	for _, att := range repo.db.attendance.table {
		records = append(records, *att)
	}
	return records
}

func (repo *attendanceRepository) CreateAttendance(ctx context.Context, att attendance.Attendance) (attendance.Attendance, error) {
	repo.db.attendance.Lock()
	defer repo.db.attendance.Unlock()

	for _, existing := range repo.db.attendance.table {
		if existing.StudentID == att.StudentID && existing.ClassID == att.ClassID && existing.Date.Equal(att.Date) {
			return attendance.Attendance{}, attendance.ErrAlreadyMarked
		}
	}
	att.ID = uuid.New().String()
	repo.db.attendance.table[att.ID] = &att
	return att, nil
}

func (repo *attendanceRepository) GetAttendance(ctx context.Context, id string) (attendance.Attendance, error) {
	repo.db.attendance.RLock()
	defer repo.db.attendance.RUnlock()

	if att, ok := repo.db.attendance.table[id]; ok {
		return *att, nil
	}
	return attendance.Attendance{}, attendance.ErrNotFound
}

func (repo *attendanceRepository) QueryAttendance(ctx context.Context, filter attendance.QueryFilter, ordering []core.DBOrdering) ([]attendance.Detail, error) {
	if filter.ScopeToClasses && len(filter.ClassIDs) == 0 {
		return []attendance.Detail{}, nil
	}

	repo.db.attendance.RLock()
	defer repo.db.attendance.RUnlock()

	scoped := make(map[string]bool, len(filter.ClassIDs))
	for _, id := range filter.ClassIDs {
		scoped[id] = true
	}

	details := make([]attendance.Detail, 0)
	for _, att := range repo.query() {
		if filter.StudentID != "" && att.StudentID != filter.StudentID {
			continue
		}
		if filter.ClassID != "" && att.ClassID != filter.ClassID {
			continue
		}
		if filter.ScopeToClasses && !scoped[att.ClassID] {
			continue
		}
		if !filter.Start.IsZero() && att.Date.Before(filter.Start) {
			continue
		}
		if !filter.End.IsZero() && att.Date.After(filter.End) {
			continue
		}
		if filter.Status != "" && att.Status != filter.Status {
			continue
		}
		details = append(details, repo.detail(att))
	}
	sort.Slice(details, func(i, j int) bool { return details[i].Date.After(details[j].Date) })
	return details, nil
}

func (repo *attendanceRepository) detail(att attendance.Attendance) attendance.Detail {
	d := attendance.Detail{Attendance: att}

	repo.db.user.RLock()
	if usr, ok := repo.db.user.table[att.StudentID]; ok {
		d.StudentName = usr.Name
		d.StudentEmail = usr.Email
	}
	repo.db.user.RUnlock()

	repo.db.class.RLock()
	if cls, ok := repo.db.class.classes[att.ClassID]; ok {
		d.ClassName = cls.Name
		d.Subject = cls.Subject
	}
	repo.db.class.RUnlock()
	return d
}

func (repo *attendanceRepository) UpdateAttendance(ctx context.Context, att attendance.Attendance) (attendance.Attendance, error) {
	repo.db.attendance.Lock()
	defer repo.db.attendance.Unlock()

	existing, ok := repo.db.attendance.table[att.ID]
	if !ok {
		return attendance.Attendance{}, attendance.ErrNotFound
	}
	existing.Status = att.Status
	existing.UpdatedBy = att.UpdatedBy
	existing.IsLowAttendance = att.IsLowAttendance
	existing.UpdatedAt = att.UpdatedAt
	return *existing, nil
}

func (repo *attendanceRepository) DeleteAttendance(ctx context.Context, id string) error {
	repo.db.attendance.Lock()
	defer repo.db.attendance.Unlock()

	delete(repo.db.attendance.table, id)
	return nil
}

func (repo *attendanceRepository) UpsertAttendance(ctx context.Context, att attendance.Attendance) (attendance.Upsert, error) {
	repo.db.attendance.Lock()
	defer repo.db.attendance.Unlock()

	for _, existing := range repo.db.attendance.table {
		if existing.StudentID == att.StudentID && existing.ClassID == att.ClassID && existing.Date.Equal(att.Date) {
			if existing.Status == att.Status {
				return attendance.Upsert{}, nil
			}
			existing.Status = att.Status
			existing.MarkedBy = att.MarkedBy
			existing.UpdatedBy = att.UpdatedBy
			existing.UpdatedAt = att.UpdatedAt
			return attendance.Upsert{Attendance: *existing, Updated: true}, nil
		}
	}
	att.ID = uuid.New().String()
	repo.db.attendance.table[att.ID] = &att
	return attendance.Upsert{Attendance: att, Inserted: true}, nil
}

func (repo *attendanceRepository) StudentCounts(ctx context.Context, studentID string) (int, int, error) {
	repo.db.attendance.RLock()
	defer repo.db.attendance.RUnlock()

	var total, present int
	for _, att := range repo.db.attendance.table {
		if att.StudentID != studentID {
			continue
		}
		total++
		if att.Status == attendance.StatusPresent {
			present++
		}
	}
	return total, present, nil
}

func (repo *attendanceRepository) SetLowAttendanceFlag(ctx context.Context, studentID string, low bool) error {
	repo.db.attendance.Lock()
	defer repo.db.attendance.Unlock()

	for _, att := range repo.db.attendance.table {
		if att.StudentID == studentID {
			att.IsLowAttendance = low
		}
	}
	return nil
}

func (repo *attendanceRepository) StudentRollups(ctx context.Context, filter attendance.RollupFilter) ([]attendance.Rollup, error) {
	if filter.ScopeToClasses && len(filter.ClassIDs) == 0 {
		return []attendance.Rollup{}, nil
	}

	repo.db.attendance.RLock()
	defer repo.db.attendance.RUnlock()

	scoped := make(map[string]bool, len(filter.ClassIDs))
	for _, id := range filter.ClassIDs {
		scoped[id] = true
	}

	counts := make(map[string]*attendance.Rollup)
	for _, att := range repo.db.attendance.table {
		if filter.ScopeToClasses && !scoped[att.ClassID] {
			continue
		}
		r, ok := counts[att.StudentID]
		if !ok {
			r = &attendance.Rollup{StudentID: att.StudentID}
			counts[att.StudentID] = r
		}
		r.Total++
		if att.Status == attendance.StatusPresent {
			r.Present++
		}
	}

	repo.db.user.RLock()
	defer repo.db.user.RUnlock()

	rollups := make([]attendance.Rollup, 0, len(counts))
	for studentID, r := range counts {
		usr, ok := repo.db.user.table[studentID]
		if !ok || !usr.IsStudent() {
			continue
		}
		if filter.ActiveStudentsOnly && !usr.Active() {
			continue
		}
		r.StudentName = usr.Name
		r.StudentEmail = usr.Email
		r.Percentage = attendance.Percentage(r.Present, r.Total)
		r.IsLowAttendance = r.Percentage < attendance.LowAttendanceThreshold
		rollups = append(rollups, *r)
	}
	sort.Slice(rollups, func(i, j int) bool { return rollups[i].StudentID < rollups[j].StudentID })
	return rollups, nil
}

func (repo *attendanceRepository) MonthlyCounts(ctx context.Context, month, year int, filter attendance.MonthlyFilter) ([]attendance.MonthlyRow, error) {
	if filter.ScopeToClasses && len(filter.ClassIDs) == 0 {
		return []attendance.MonthlyRow{}, nil
	}

	repo.db.attendance.RLock()
	defer repo.db.attendance.RUnlock()

	scoped := make(map[string]bool, len(filter.ClassIDs))
	for _, id := range filter.ClassIDs {
		scoped[id] = true
	}

	type key struct{ studentID, classID string }
	counts := make(map[key]*attendance.MonthlyRow)
	for _, att := range repo.db.attendance.table {
		if int(att.Date.Month()) != month || att.Date.Year() != year {
			continue
		}
		if filter.StudentID != "" && att.StudentID != filter.StudentID {
			continue
		}
		if filter.ScopeToClasses && !scoped[att.ClassID] {
			continue
		}
		k := key{att.StudentID, att.ClassID}
		row, ok := counts[k]
		if !ok {
			row = &attendance.MonthlyRow{StudentID: att.StudentID, ClassID: att.ClassID}
			counts[k] = row
		}
		row.Total++
		if att.Status == attendance.StatusPresent {
			row.Present++
		}
	}

	repo.db.user.RLock()
	repo.db.class.RLock()
	defer repo.db.user.RUnlock()
	defer repo.db.class.RUnlock()

	report := make([]attendance.MonthlyRow, 0, len(counts))
	for _, row := range counts {
		if usr, ok := repo.db.user.table[row.StudentID]; ok {
			row.StudentName = usr.Name
		}
		if cls, ok := repo.db.class.classes[row.ClassID]; ok {
			row.ClassName = cls.Name
		}
		row.Percentage = attendance.Percentage(row.Present, row.Total)
		report = append(report, *row)
	}
	sort.Slice(report, func(i, j int) bool {
		if report[i].StudentName != report[j].StudentName {
			return report[i].StudentName < report[j].StudentName
		}
		return report[i].ClassName < report[j].ClassName
	})
	return report, nil
}

func (repo *attendanceRepository) ClassRollupsForStudent(ctx context.Context, studentID string) ([]attendance.ClassRollup, error) {
	repo.db.attendance.RLock()
	defer repo.db.attendance.RUnlock()

	counts := make(map[string]*attendance.ClassRollup)
	for _, att := range repo.db.attendance.table {
		if att.StudentID != studentID {
			continue
		}
		r, ok := counts[att.ClassID]
		if !ok {
			r = &attendance.ClassRollup{ClassID: att.ClassID}
			counts[att.ClassID] = r
		}
		r.Total++
		if att.Status == attendance.StatusPresent {
			r.Present++
		}
	}

	repo.db.class.RLock()
	defer repo.db.class.RUnlock()

	rollups := make([]attendance.ClassRollup, 0, len(counts))
	for classID, r := range counts {
		if cls, ok := repo.db.class.classes[classID]; ok {
			r.ClassName = cls.Name
			r.Subject = cls.Subject
		}
		r.Percentage = attendance.Percentage(r.Present, r.Total)
		rollups = append(rollups, *r)
	}
	sort.Slice(rollups, func(i, j int) bool { return rollups[i].ClassName < rollups[j].ClassName })
	return rollups, nil
}
