package attendance

import (
	"context"
	"fmt"
	"net/mail"
	"sort"
	"time"

	"github.com/brijeshkumar2024/smart-attendance/core"
	"github.com/brijeshkumar2024/smart-attendance/core/class"
	"github.com/brijeshkumar2024/smart-attendance/core/user"
)

var (
	ErrNotFound        = core.NewNotFoundError("attendance record not found")
	ErrStudentNotFound = core.NewNotFoundError("student not found")
	ErrStudentInactive = core.NewPermissionError("student account is deactivated")
	ErrAlreadyMarked   = core.NewConflictError("attendance already marked for this student, class and date")
	ErrNotAuthorized   = core.NewPermissionError("you are not authorized to mark attendance for this class on this date")
	ErrLocked          = core.NewPermissionError(fmt.Sprintf("attendance locked after %d days", LockDays))
)

type (
	// QueryFilter applies AND operation on its set fields.
	// ClassIDs only applies when ScopeToClasses is set; an empty scoped
	// list matches nothing.
	QueryFilter struct {
		StudentID      string
		ClassID        string
		ClassIDs       []string
		ScopeToClasses bool
		Start          time.Time
		End            time.Time
		Status         string
	}

	// RollupFilter narrows StudentRollups.
	RollupFilter struct {
		ClassIDs           []string
		ScopeToClasses     bool
		ActiveStudentsOnly bool
	}

	// MonthlyFilter narrows MonthlyCounts.
	MonthlyFilter struct {
		StudentID      string
		ClassIDs       []string
		ScopeToClasses bool
	}

	// Upsert reports the fate of one upserted record.
	Upsert struct {
		Attendance Attendance
		Inserted   bool
		Updated    bool
	}

	Repository interface {
		// CreateAttendance returns ErrAlreadyMarked on a (student, class, date) duplicate.
		CreateAttendance(ctx context.Context, att Attendance) (Attendance, error)
		GetAttendance(ctx context.Context, id string) (Attendance, error)
		QueryAttendance(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering) ([]Detail, error)
		UpdateAttendance(ctx context.Context, att Attendance) (Attendance, error)
		DeleteAttendance(ctx context.Context, id string) error
		UpsertAttendance(ctx context.Context, att Attendance) (Upsert, error)
		// StudentCounts returns the student's total and present record counts.
		StudentCounts(ctx context.Context, studentID string) (total, present int, err error)
		SetLowAttendanceFlag(ctx context.Context, studentID string, low bool) error
		StudentRollups(ctx context.Context, filter RollupFilter) ([]Rollup, error)
		MonthlyCounts(ctx context.Context, month int, year int, filter MonthlyFilter) ([]MonthlyRow, error)
		ClassRollupsForStudent(ctx context.Context, studentID string) ([]ClassRollup, error)
	}

	AuditRepository interface {
		CreateAuditEntry(ctx context.Context, entry AuditEntry) error
		QueryAudit(ctx context.Context, limit int) ([]AuditEntry, error)
	}

	Service struct {
		repo        Repository
		auditRepo   AuditRepository
		usrRepo     user.Repository
		clsSvc      *class.Service
		mailSvc     core.EmailService
		broadcaster core.Broadcaster
		logger      core.Logger
	}
)

func NewService(
	repo Repository,
	auditRepo AuditRepository,
	usrRepo user.Repository,
	clsSvc *class.Service,
	mailSvc core.EmailService,
	broadcaster core.Broadcaster,
	logger core.Logger,
) *Service {
	return &Service{
		repo:        repo,
		auditRepo:   auditRepo,
		usrRepo:     usrRepo,
		clsSvc:      clsSvc,
		mailSvc:     mailSvc,
		broadcaster: broadcaster,
		logger:      logger,
	}
}

func (svc *Service) getActiveStudent(ctx context.Context, id string) (user.User, error) {
	student, err := svc.usrRepo.GetUser(ctx, user.GetFilter{ID: id})
	if err != nil || !student.IsStudent() {
		return user.User{}, ErrStudentNotFound
	}
	if !student.Active() {
		return user.User{}, ErrStudentInactive
	}
	return student, nil
}

func (svc *Service) resolveDate(raw string) (time.Time, error) {
	if raw == "" {
		return core.NormalizeDate(time.Now()), nil
	}
	date, err := core.ParseDate(raw)
	if err != nil {
		return time.Time{}, core.NewValidationError(nil,
			core.FieldError{Field: "date", Error: "date must be a valid YYYY-MM-DD date"})
	}
	return date, nil
}

func (svc *Service) authorize(ctx context.Context, actor user.User, cls class.Class, date time.Time) error {
	if !actor.IsTeacher() {
		return nil
	}
	ok, err := svc.clsSvc.IsTeacherAuthorized(ctx, actor.ID, cls, date)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotAuthorized
	}
	return nil
}

// locked reports whether a record dated `date` is past its edit window.
// Days are counted on the calendar, so the window is immune to DST jumps.
func locked(date time.Time) bool {
	return calendarDaysSince(date, time.Now()) > LockDays
}

func calendarDaysSince(from, to time.Time) int {
	y, m, d := from.Date()
	a := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	y, m, d = to.Date()
	b := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}

// Mark records one attendance. The actor must be the class's teacher for that
// date, or an admin. The student's low-attendance standing is refreshed
// synchronously.
func (svc *Service) Mark(ctx context.Context, actor user.User, in Mark) (Attendance, error) {
	cls, err := svc.clsSvc.GetByIDOrName(ctx, in.Class)
	if err != nil {
		return Attendance{}, err
	}
	student, err := svc.getActiveStudent(ctx, in.StudentID)
	if err != nil {
		return Attendance{}, err
	}
	date, err := svc.resolveDate(in.Date)
	if err != nil {
		return Attendance{}, err
	}
	if err = svc.authorize(ctx, actor, cls, date); err != nil {
		return Attendance{}, err
	}

	now := time.Now().UTC()
	att, err := svc.repo.CreateAttendance(ctx, Attendance{
		StudentID: student.ID,
		ClassID:   cls.ID,
		Date:      date,
		Status:    in.Status,
		MarkedBy:  actor.ID,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return Attendance{}, err
	}

	pct := svc.refreshStudentFlags(ctx, student)
	att.IsLowAttendance = pct < LowAttendanceThreshold
	svc.audit(ctx, core.EventActionMark, actor.ID, att.ID, att.StudentID, att.ClassID, att.Date, "")
	svc.broadcast(core.Event{
		Action:       core.EventActionMark,
		AttendanceID: att.ID,
		ClassID:      att.ClassID,
		StudentID:    att.StudentID,
		Percentage:   pct,
	})
	return att, nil
}

// BulkMark upserts statuses for several students of one class at once.
// All students are validated up front; any inactive student rejects the
// whole batch.
func (svc *Service) BulkMark(ctx context.Context, actor user.User, in BulkMark) (BulkResult, error) {
	cls, err := svc.clsSvc.GetByIDOrName(ctx, in.Class)
	if err != nil {
		return BulkResult{}, err
	}
	date, err := svc.resolveDate(in.Date)
	if err != nil {
		return BulkResult{}, err
	}

	students := make(map[string]user.User, len(in.Entries))
	for _, entry := range in.Entries {
		if _, ok := students[entry.StudentID]; ok {
			continue
		}
		student, err := svc.getActiveStudent(ctx, entry.StudentID)
		if err != nil {
			return BulkResult{}, err
		}
		students[student.ID] = student
	}

	if err = svc.authorize(ctx, actor, cls, date); err != nil {
		return BulkResult{}, err
	}

	// unordered batch: one bad row never blocks its siblings
	var res BulkResult
	now := time.Now().UTC()
	touched := make(map[string]bool, len(students))
	for _, entry := range in.Entries {
		up, err := svc.repo.UpsertAttendance(ctx, Attendance{
			StudentID: entry.StudentID,
			ClassID:   cls.ID,
			Date:      date,
			Status:    entry.Status,
			MarkedBy:  actor.ID,
			UpdatedBy: actor.ID,
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err != nil {
			res.Failed++
			svc.logger.Error("upserting attendance", err,
				map[string]interface{}{"student": entry.StudentID, "class": cls.ID})
			continue
		}
		touched[entry.StudentID] = true
		if up.Inserted {
			res.Upserted++
		} else {
			res.Matched++
			if up.Updated {
				res.Modified++
			}
		}
	}

	for id := range touched {
		svc.refreshStudentFlags(ctx, students[id])
	}
	svc.audit(ctx, core.EventActionBulkMark, actor.ID, "", "", cls.ID, date,
		fmt.Sprintf("matched=%d modified=%d upserted=%d failed=%d", res.Matched, res.Modified, res.Upserted, res.Failed))
	svc.broadcast(core.Event{Action: core.EventActionBulkMark, ClassID: cls.ID})
	return res, nil
}

// UpdateStatus changes the status of a record still inside its edit window.
func (svc *Service) UpdateStatus(ctx context.Context, actor user.User, id string, in UpdateStatus) (Attendance, error) {
	att, err := svc.repo.GetAttendance(ctx, id)
	if err != nil {
		return Attendance{}, err
	}
	cls, err := svc.clsSvc.GetByID(ctx, att.ClassID)
	if err != nil {
		return Attendance{}, err
	}
	if err = svc.authorize(ctx, actor, cls, att.Date); err != nil {
		return Attendance{}, err
	}
	if locked(att.Date) {
		return Attendance{}, ErrLocked
	}

	att.Status = in.Status
	att.UpdatedBy = actor.ID
	att.UpdatedAt = time.Now().UTC()
	if att, err = svc.repo.UpdateAttendance(ctx, att); err != nil {
		return Attendance{}, err
	}

	var pct float64
	if student, err := svc.usrRepo.GetUser(ctx, user.GetFilter{ID: att.StudentID}); err == nil {
		pct = svc.refreshStudentFlags(ctx, student)
		att.IsLowAttendance = pct < LowAttendanceThreshold
	}
	svc.audit(ctx, core.EventActionUpdate, actor.ID, att.ID, att.StudentID, att.ClassID, att.Date, "status="+att.Status)
	svc.broadcast(core.Event{
		Action:       core.EventActionUpdate,
		AttendanceID: att.ID,
		ClassID:      att.ClassID,
		StudentID:    att.StudentID,
		Percentage:   pct,
	})
	return att, nil
}

// Delete removes a record still inside its edit window.
func (svc *Service) Delete(ctx context.Context, actor user.User, id string) error {
	att, err := svc.repo.GetAttendance(ctx, id)
	if err != nil {
		return err
	}
	cls, err := svc.clsSvc.GetByID(ctx, att.ClassID)
	if err != nil {
		return err
	}
	if err = svc.authorize(ctx, actor, cls, att.Date); err != nil {
		return err
	}
	if locked(att.Date) {
		return ErrLocked
	}
	if err = svc.repo.DeleteAttendance(ctx, id); err != nil {
		return err
	}

	var pct float64
	if student, err := svc.usrRepo.GetUser(ctx, user.GetFilter{ID: att.StudentID}); err == nil {
		pct = svc.refreshStudentFlags(ctx, student)
	}
	svc.audit(ctx, core.EventActionDelete, actor.ID, att.ID, att.StudentID, att.ClassID, att.Date, "")
	svc.broadcast(core.Event{
		Action:       core.EventActionDelete,
		AttendanceID: att.ID,
		ClassID:      att.ClassID,
		StudentID:    att.StudentID,
		Percentage:   pct,
	})
	return nil
}

// Query lists records scoped to what the actor may see: students get their
// own records, teachers get their classes' records, admins get everything.
func (svc *Service) Query(ctx context.Context, actor user.User, filter QueryFilter) ([]Detail, error) {
	switch {
	case actor.IsStudent():
		filter.StudentID = actor.ID
	case actor.IsTeacher():
		// override classes only count within the requested date range
		ovFilter := class.OverrideFilter{All: true}
		if !filter.Start.IsZero() || !filter.End.IsZero() {
			ovFilter = class.OverrideFilter{Start: filter.Start, End: filter.End}
		}
		ids, err := svc.clsSvc.TeacherClassIDs(ctx, actor.ID, ovFilter)
		if err != nil {
			return nil, err
		}
		if filter.ClassID != "" {
			allowed := false
			for _, id := range ids {
				if id == filter.ClassID {
					allowed = true
					break
				}
			}
			if !allowed {
				return []Detail{}, nil
			}
		} else {
			filter.ClassIDs = ids
			filter.ScopeToClasses = true
		}
	}
	return svc.repo.QueryAttendance(ctx, filter, []core.DBOrdering{{Field: "date"}})
}

// LowAttendance lists active students whose percentage is below `limit`,
// lowest first.
func (svc *Service) LowAttendance(ctx context.Context, limit float64) ([]Rollup, error) {
	rollups, err := svc.repo.StudentRollups(ctx, RollupFilter{ActiveStudentsOnly: true})
	if err != nil {
		return nil, err
	}
	low := make([]Rollup, 0, len(rollups))
	for _, r := range rollups {
		if r.Percentage < limit {
			low = append(low, r)
		}
	}
	sort.SliceStable(low, func(i, j int) bool { return low[i].Percentage < low[j].Percentage })
	return low, nil
}

// Ranking ranks active students by percentage, highest first. The scope
// filter narrows to matching classes; teachers are additionally restricted
// to their own classes.
func (svc *Service) Ranking(ctx context.Context, actor user.User, scope class.ClassFilter) ([]RankedRollup, error) {
	var (
		classIDs []string
		scoped   bool
		err      error
	)
	if scope != (class.ClassFilter{}) {
		if classIDs, err = svc.clsSvc.ScopedClassIDs(ctx, scope); err != nil {
			return nil, err
		}
		scoped = true
	}
	if actor.IsTeacher() {
		teacherIDs, err := svc.clsSvc.TeacherClassIDs(ctx, actor.ID, class.OverrideFilter{All: true})
		if err != nil {
			return nil, err
		}
		if scoped {
			classIDs = intersect(classIDs, teacherIDs)
		} else {
			classIDs = teacherIDs
		}
		scoped = true
	}
	if scoped && len(classIDs) == 0 {
		return []RankedRollup{}, nil
	}

	rollups, err := svc.repo.StudentRollups(ctx, RollupFilter{
		ClassIDs:           classIDs,
		ScopeToClasses:     scoped,
		ActiveStudentsOnly: true,
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(rollups, func(i, j int) bool { return rollups[i].Percentage > rollups[j].Percentage })

	ranked := make([]RankedRollup, len(rollups))
	for i, r := range rollups {
		r.IsLowAttendance = r.Percentage < LowAttendanceThreshold
		ranked[i] = RankedRollup{Rank: i + 1, Rollup: r}
	}
	return ranked, nil
}

// Monthly aggregates one month of attendance: overall totals plus a
// per-student-per-class breakdown, scoped like Query. classID and studentID
// optionally narrow the result for staff callers; students always get their
// own records only.
func (svc *Service) Monthly(ctx context.Context, actor user.User, month, year int, classID, studentID string) (MonthlyReport, error) {
	report := MonthlyReport{Month: month, Year: year, Rows: []MonthlyRow{}}
	if month < 1 || month > 12 || year == 0 {
		return report, core.NewValidationError(nil,
			core.FieldError{Field: "month", Error: "a valid month (1-12) and year are required"})
	}
	var filter MonthlyFilter
	switch {
	case actor.IsStudent():
		filter.StudentID = actor.ID
	case actor.IsTeacher():
		// override classes only count within the calendar month
		monthStart := core.NormalizeDate(time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.Local))
		ids, err := svc.clsSvc.TeacherClassIDs(ctx, actor.ID, class.OverrideFilter{
			Start: monthStart,
			End:   monthStart.AddDate(0, 1, -1),
		})
		if err != nil {
			return report, err
		}
		if classID != "" {
			ids = intersect([]string{classID}, ids)
		}
		if len(ids) == 0 {
			return report, nil
		}
		filter.ClassIDs = ids
		filter.ScopeToClasses = true
		filter.StudentID = studentID
	default:
		filter.StudentID = studentID
		if classID != "" {
			filter.ClassIDs = []string{classID}
			filter.ScopeToClasses = true
		}
	}

	rows, err := svc.repo.MonthlyCounts(ctx, month, year, filter)
	if err != nil {
		return report, err
	}
	for _, row := range rows {
		report.TotalClasses += row.Total
		report.Present += row.Present
	}
	report.Percentage = Percentage(report.Present, report.TotalClasses)
	if rows != nil {
		report.Rows = rows
	}
	return report, nil
}

// StudentStats returns a student's overall standing.
func (svc *Service) StudentStats(ctx context.Context, studentID string) (StudentStats, error) {
	total, present, err := svc.repo.StudentCounts(ctx, studentID)
	if err != nil {
		return StudentStats{}, err
	}
	pct := Percentage(present, total)
	return StudentStats{
		Total:           total,
		Present:         present,
		Percentage:      pct,
		IsLowAttendance: pct < LowAttendanceThreshold,
	}, nil
}

// ClassWise breaks a student's standing down per class.
func (svc *Service) ClassWise(ctx context.Context, studentID string) ([]ClassRollup, error) {
	return svc.repo.ClassRollupsForStudent(ctx, studentID)
}

func (svc *Service) QueryAudit(ctx context.Context, limit int) ([]AuditEntry, error) {
	return svc.auditRepo.QueryAudit(ctx, limit)
}

// refreshStudentFlags recomputes the student's percentage, stores the
// low-attendance flag on their records and, below the warning threshold,
// emails them. Side effect failures are logged, never propagated.
func (svc *Service) refreshStudentFlags(ctx context.Context, student user.User) float64 {
	total, present, err := svc.repo.StudentCounts(ctx, student.ID)
	if err != nil {
		svc.logger.Error("counting student attendance", err, map[string]interface{}{"student": student.ID})
		return 0
	}
	pct := Percentage(present, total)
	if err = svc.repo.SetLowAttendanceFlag(ctx, student.ID, pct < LowAttendanceThreshold); err != nil {
		svc.logger.Error("flagging low attendance", err, map[string]interface{}{"student": student.ID})
	}
	if total > 0 && pct < EmailWarningThreshold {
		msg := &core.EmailMessage{
			To:      []mail.Address{{Name: student.Name, Address: student.Email}},
			Subject: "Attendance Warning",
			BodyStr: fmt.Sprintf("Hello %s, your attendance is %.2f%%. Please improve it as soon as possible.", student.Name, pct),
		}
		if err = msg.Render(); err != nil {
			svc.logger.Error("rendering attendance warning email", err)
		} else {
			svc.mailSvc.SendMessages(msg)
		}
	}
	return pct
}

func (svc *Service) audit(ctx context.Context, action, actorID, attendanceID, studentID, classID string, date time.Time, details string) {
	err := svc.auditRepo.CreateAuditEntry(ctx, AuditEntry{
		Action:       action,
		ActorID:      actorID,
		AttendanceID: attendanceID,
		StudentID:    studentID,
		ClassID:      classID,
		Date:         date,
		Details:      details,
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		svc.logger.Error("recording audit entry", err, map[string]interface{}{"action": action})
	}
}

func (svc *Service) broadcast(evt core.Event) {
	if svc.broadcaster == nil {
		return
	}
	evt.At = time.Now().UTC()
	svc.broadcaster.BroadcastAttendanceChange(evt)
}

func intersect(a, b []string) []string {
	set := make(map[string]bool, len(b))
	for _, id := range b {
		set[id] = true
	}
	out := make([]string, 0, len(a))
	for _, id := range a {
		if set[id] {
			out = append(out, id)
		}
	}
	return out
}
