package attendance_test

import (
	"context"
	"net/mail"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brijeshkumar2024/smart-attendance/core"
	"github.com/brijeshkumar2024/smart-attendance/core/academic"
	"github.com/brijeshkumar2024/smart-attendance/core/attendance"
	"github.com/brijeshkumar2024/smart-attendance/core/class"
	"github.com/brijeshkumar2024/smart-attendance/core/user"
	emailsvc "github.com/brijeshkumar2024/smart-attendance/services/email"
	dummydb "github.com/brijeshkumar2024/smart-attendance/storage/database/dummy"
	testutil "github.com/brijeshkumar2024/smart-attendance/tests"
)

type testEnv struct {
	svc     *attendance.Service
	clsSvc  *class.Service
	usrRepo user.Repository
	clsRepo class.Repository
	attRepo attendance.Repository
	teacher user.User
	student user.User
	cls     class.Class
}

func setup(t *testing.T) *testEnv {
	t.Helper()
	db := dummydb.Open()
	usrRepo := dummydb.NewUserRepository(db)
	clsRepo := dummydb.NewClassRepository(db)
	attRepo := dummydb.NewAttendanceRepository(db)

	conf := &core.Config{AppName: "SmartAttendance", DefaultFromEmail: mail.Address{Address: "noreply@test.cd"}}
	mailSvc := emailsvc.NewConsoleServiceMock(conf)
	emailsvc.SentMessages = emailsvc.SentMessages[:0]

	acadSvc := academic.NewService(dummydb.NewAcademicRepository(db))
	clsSvc := class.NewService(clsRepo, usrRepo, acadSvc)
	svc := attendance.NewService(
		attRepo,
		dummydb.NewAuditRepository(db),
		usrRepo,
		clsSvc,
		mailSvc,
		nil, /* broadcaster */
		testutil.NopLogger{},
	)

	teacher := testutil.CreateUser(t, usrRepo, "Teacher", "teacher@test.cd", user.RoleTeacher, "", true)
	student := testutil.CreateUser(t, usrRepo, "Student", "student@test.cd", user.RoleStudent, "", true)
	cls := testutil.CreateClass(t, clsRepo, "CS101", "Algorithms", teacher.ID)

	return &testEnv{
		svc:     svc,
		clsSvc:  clsSvc,
		usrRepo: usrRepo,
		clsRepo: clsRepo,
		attRepo: attRepo,
		teacher: teacher,
		student: student,
		cls:     cls,
	}
}

func TestService_Mark(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	att, err := env.svc.Mark(ctx, env.teacher, attendance.Mark{
		StudentID: env.student.ID,
		Class:     env.cls.ID,
		Status:    attendance.StatusPresent,
	})
	require.NoError(t, err)
	assert.Equal(t, env.student.ID, att.StudentID)
	assert.Equal(t, env.cls.ID, att.ClassID)
	assert.Equal(t, env.teacher.ID, att.MarkedBy)
	assert.Equal(t, core.NormalizeDate(time.Now()), att.Date)

	// duplicate (student, class, date)
	_, err = env.svc.Mark(ctx, env.teacher, attendance.Mark{
		StudentID: env.student.ID,
		Class:     env.cls.ID,
		Status:    attendance.StatusAbsent,
	})
	assert.Equal(t, attendance.ErrAlreadyMarked, errors.Cause(err))

	// class resolvable by exact name
	other := testutil.CreateUser(t, env.usrRepo, "Other", "other@test.cd", user.RoleStudent, "", true)
	att, err = env.svc.Mark(ctx, env.teacher, attendance.Mark{
		StudentID: other.ID,
		Class:     "CS101",
		Status:    attendance.StatusPresent,
	})
	require.NoError(t, err)
	assert.Equal(t, env.cls.ID, att.ClassID)
}

func TestService_Mark_authorization(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	outsider := testutil.CreateUser(t, env.usrRepo, "Sub", "sub@test.cd", user.RoleTeacher, "", true)

	_, err := env.svc.Mark(ctx, outsider, attendance.Mark{
		StudentID: env.student.ID,
		Class:     env.cls.ID,
		Status:    attendance.StatusPresent,
	})
	assert.Equal(t, attendance.ErrNotAuthorized, errors.Cause(err))

	// a same-day override authorizes the substitute
	today := core.NormalizeDate(time.Now())
	_, err = env.clsRepo.UpsertOverride(ctx, class.TeacherOverride{
		ClassID:   env.cls.ID,
		TeacherID: outsider.ID,
		Date:      today,
	})
	require.NoError(t, err)

	_, err = env.svc.Mark(ctx, outsider, attendance.Mark{
		StudentID: env.student.ID,
		Class:     env.cls.ID,
		Status:    attendance.StatusPresent,
	})
	assert.NoError(t, err)

	// but not on another date
	_, err = env.svc.Mark(ctx, outsider, attendance.Mark{
		StudentID: env.student.ID,
		Class:     env.cls.ID,
		Date:      core.FormatDate(today.AddDate(0, 0, 1)),
		Status:    attendance.StatusPresent,
	})
	assert.Equal(t, attendance.ErrNotAuthorized, errors.Cause(err))

	// admins bypass class assignment
	admin := testutil.CreateUser(t, env.usrRepo, "Admin", "admin@test.cd", user.RoleAdmin, "", true)
	_, err = env.svc.Mark(ctx, admin, attendance.Mark{
		StudentID: env.student.ID,
		Class:     env.cls.ID,
		Date:      core.FormatDate(today.AddDate(0, 0, 2)),
		Status:    attendance.StatusPresent,
	})
	assert.NoError(t, err)
}

func TestService_Mark_inactiveStudent(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	inactive := testutil.CreateUser(t, env.usrRepo, "Gone", "gone@test.cd", user.RoleStudent, "", false)
	_, err := env.svc.Mark(ctx, env.teacher, attendance.Mark{
		StudentID: inactive.ID,
		Class:     env.cls.ID,
		Status:    attendance.StatusPresent,
	})
	assert.Equal(t, attendance.ErrStudentInactive, errors.Cause(err))

	_, err = env.svc.Mark(ctx, env.teacher, attendance.Mark{
		StudentID: env.teacher.ID, // not a student
		Class:     env.cls.ID,
		Status:    attendance.StatusPresent,
	})
	assert.Equal(t, attendance.ErrStudentNotFound, errors.Cause(err))
}

func TestService_Mark_warningEmail(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	// a single absence puts the student at 0%, below the warning threshold
	att, err := env.svc.Mark(ctx, env.teacher, attendance.Mark{
		StudentID: env.student.ID,
		Class:     env.cls.ID,
		Status:    attendance.StatusAbsent,
	})
	require.NoError(t, err)
	assert.True(t, att.IsLowAttendance)

	require.Len(t, emailsvc.SentMessages, 1)
	msg := emailsvc.SentMessages[0]
	assert.Equal(t, "Attendance Warning", msg.Subject)
	assert.Equal(t, env.student.Email, msg.To[0].Address)
	assert.Contains(t, msg.TextContent, "your attendance is 0.00%")
}

func TestService_BulkMark(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	s2 := testutil.CreateUser(t, env.usrRepo, "S2", "s2@test.cd", user.RoleStudent, "", true)
	s3 := testutil.CreateUser(t, env.usrRepo, "S3", "s3@test.cd", user.RoleStudent, "", true)

	res, err := env.svc.BulkMark(ctx, env.teacher, attendance.BulkMark{
		Class: env.cls.ID,
		Entries: []attendance.BulkEntry{
			{StudentID: env.student.ID, Status: attendance.StatusPresent},
			{StudentID: s2.ID, Status: attendance.StatusAbsent},
			{StudentID: s3.ID, Status: attendance.StatusPresent},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, attendance.BulkResult{Matched: 0, Modified: 0, Upserted: 3}, res)

	// re-running with one change: two untouched, one modified
	res, err = env.svc.BulkMark(ctx, env.teacher, attendance.BulkMark{
		Class: env.cls.ID,
		Entries: []attendance.BulkEntry{
			{StudentID: env.student.ID, Status: attendance.StatusPresent},
			{StudentID: s2.ID, Status: attendance.StatusPresent},
			{StudentID: s3.ID, Status: attendance.StatusPresent},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, attendance.BulkResult{Matched: 3, Modified: 1, Upserted: 0}, res)

	// an inactive student rejects the whole batch
	inactive := testutil.CreateUser(t, env.usrRepo, "Gone", "gone@test.cd", user.RoleStudent, "", false)
	_, err = env.svc.BulkMark(ctx, env.teacher, attendance.BulkMark{
		Class: env.cls.ID,
		Entries: []attendance.BulkEntry{
			{StudentID: env.student.ID, Status: attendance.StatusAbsent},
			{StudentID: inactive.ID, Status: attendance.StatusPresent},
		},
	})
	assert.Equal(t, attendance.ErrStudentInactive, errors.Cause(err))
}

// flakyAttendanceRepo fails upserts for one student to exercise the
// unordered batch behavior.
type flakyAttendanceRepo struct {
	attendance.Repository
	failFor string
}

func (r flakyAttendanceRepo) UpsertAttendance(ctx context.Context, att attendance.Attendance) (attendance.Upsert, error) {
	if att.StudentID == r.failFor {
		return attendance.Upsert{}, errors.New("connection reset")
	}
	return r.Repository.UpsertAttendance(ctx, att)
}

func TestService_BulkMark_rowFailure(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	s2 := testutil.CreateUser(t, env.usrRepo, "S2", "s2@test.cd", user.RoleStudent, "", true)
	s3 := testutil.CreateUser(t, env.usrRepo, "S3", "s3@test.cd", user.RoleStudent, "", true)

	conf := &core.Config{AppName: "SmartAttendance", DefaultFromEmail: mail.Address{Address: "noreply@test.cd"}}
	svc := attendance.NewService(
		flakyAttendanceRepo{Repository: env.attRepo, failFor: s2.ID},
		dummydb.NewAuditRepository(dummydb.Open()),
		env.usrRepo,
		env.clsSvc,
		emailsvc.NewConsoleServiceMock(conf),
		nil, /* broadcaster */
		testutil.NopLogger{},
	)

	res, err := svc.BulkMark(ctx, env.teacher, attendance.BulkMark{
		Class: env.cls.ID,
		Entries: []attendance.BulkEntry{
			{StudentID: env.student.ID, Status: attendance.StatusPresent},
			{StudentID: s2.ID, Status: attendance.StatusPresent},
			{StudentID: s3.ID, Status: attendance.StatusPresent},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, attendance.BulkResult{Upserted: 2, Failed: 1}, res)

	// sibling rows land despite the failed one, flags refreshed
	details, err := env.svc.Query(ctx, env.teacher, attendance.QueryFilter{})
	require.NoError(t, err)
	require.Len(t, details, 2)
	for _, d := range details {
		assert.NotEqual(t, s2.ID, d.StudentID)
		assert.False(t, d.IsLowAttendance)
	}
}

func TestService_UpdateStatus_lockWindow(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	old, err := env.attRepo.CreateAttendance(ctx, attendance.Attendance{
		StudentID: env.student.ID,
		ClassID:   env.cls.ID,
		Date:      core.NormalizeDate(time.Now().AddDate(0, 0, -(attendance.LockDays + 1))),
		Status:    attendance.StatusPresent,
		MarkedBy:  env.teacher.ID,
	})
	require.NoError(t, err)

	_, err = env.svc.UpdateStatus(ctx, env.teacher, old.ID, attendance.UpdateStatus{Status: attendance.StatusAbsent})
	assert.Equal(t, attendance.ErrLocked, errors.Cause(err))
	assert.Equal(t, attendance.ErrLocked, errors.Cause(env.svc.Delete(ctx, env.teacher, old.ID)))

	// authorization is settled before the lock: an unassigned teacher
	// gets the permission error, not the lock error
	outsider := testutil.CreateUser(t, env.usrRepo, "Out", "out@test.cd", user.RoleTeacher, "", true)
	_, err = env.svc.UpdateStatus(ctx, outsider, old.ID, attendance.UpdateStatus{Status: attendance.StatusAbsent})
	assert.Equal(t, attendance.ErrNotAuthorized, errors.Cause(err))

	// the last day inside the window is still editable
	edge, err := env.attRepo.CreateAttendance(ctx, attendance.Attendance{
		StudentID: env.student.ID,
		ClassID:   env.cls.ID,
		Date:      core.NormalizeDate(time.Now().AddDate(0, 0, -attendance.LockDays)),
		Status:    attendance.StatusPresent,
		MarkedBy:  env.teacher.ID,
	})
	require.NoError(t, err)

	updated, err := env.svc.UpdateStatus(ctx, env.teacher, edge.ID, attendance.UpdateStatus{Status: attendance.StatusAbsent})
	require.NoError(t, err)
	assert.Equal(t, attendance.StatusAbsent, updated.Status)
	assert.Equal(t, env.teacher.ID, updated.UpdatedBy)
	assert.NoError(t, env.svc.Delete(ctx, env.teacher, edge.ID))
}

func TestService_Query_scoping(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	otherTeacher := testutil.CreateUser(t, env.usrRepo, "T2", "t2@test.cd", user.RoleTeacher, "", true)
	otherCls := testutil.CreateClass(t, env.clsRepo, "EE202", "Circuits", otherTeacher.ID)

	_, err := env.svc.Mark(ctx, env.teacher, attendance.Mark{
		StudentID: env.student.ID, Class: env.cls.ID, Status: attendance.StatusPresent,
	})
	require.NoError(t, err)
	_, err = env.svc.Mark(ctx, otherTeacher, attendance.Mark{
		StudentID: env.student.ID, Class: otherCls.ID, Status: attendance.StatusAbsent,
	})
	require.NoError(t, err)

	// teachers only see their own classes
	details, err := env.svc.Query(ctx, env.teacher, attendance.QueryFilter{})
	require.NoError(t, err)
	require.Len(t, details, 1)
	assert.Equal(t, env.cls.ID, details[0].ClassID)

	// even when asking for someone else's class
	details, err = env.svc.Query(ctx, env.teacher, attendance.QueryFilter{ClassID: otherCls.ID})
	require.NoError(t, err)
	assert.Empty(t, details)

	// students only see themselves
	details, err = env.svc.Query(ctx, env.student, attendance.QueryFilter{})
	require.NoError(t, err)
	assert.Len(t, details, 2)
	for _, d := range details {
		assert.Equal(t, env.student.ID, d.StudentID)
	}

	// admins see everything
	admin := testutil.CreateUser(t, env.usrRepo, "Admin", "admin@test.cd", user.RoleAdmin, "", true)
	details, err = env.svc.Query(ctx, admin, attendance.QueryFilter{})
	require.NoError(t, err)
	assert.Len(t, details, 2)
}

func TestService_Query_overrideRange(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	sub := testutil.CreateUser(t, env.usrRepo, "Sub", "sub@test.cd", user.RoleTeacher, "", true)
	today := core.NormalizeDate(time.Now())
	ovDate := today.AddDate(0, 0, -1)
	_, err := env.clsRepo.UpsertOverride(ctx, class.TeacherOverride{
		ClassID: env.cls.ID, TeacherID: sub.ID, Date: ovDate,
	})
	require.NoError(t, err)

	for _, date := range []time.Time{ovDate, today} {
		_, err = env.attRepo.CreateAttendance(ctx, attendance.Attendance{
			StudentID: env.student.ID,
			ClassID:   env.cls.ID,
			Date:      date,
			Status:    attendance.StatusPresent,
			MarkedBy:  env.teacher.ID,
		})
		require.NoError(t, err)
	}

	// a range covering the override day exposes the class to the substitute
	details, err := env.svc.Query(ctx, sub, attendance.QueryFilter{Start: ovDate, End: ovDate})
	require.NoError(t, err)
	require.Len(t, details, 1)
	assert.Equal(t, ovDate, details[0].Date)

	// a range past the override does not
	details, err = env.svc.Query(ctx, sub, attendance.QueryFilter{Start: today})
	require.NoError(t, err)
	assert.Empty(t, details)
}

func TestService_Ranking(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	s2 := testutil.CreateUser(t, env.usrRepo, "S2", "s2@test.cd", user.RoleStudent, "", true)

	dates := []string{"2026-08-24", "2026-08-25", "2026-08-26", "2026-08-27"}
	for i, d := range dates {
		status := attendance.StatusPresent
		if i > 1 { // student 1: 50%
			status = attendance.StatusAbsent
		}
		_, err := env.svc.Mark(ctx, env.teacher, attendance.Mark{
			StudentID: env.student.ID, Class: env.cls.ID, Date: d, Status: status,
		})
		require.NoError(t, err)
		_, err = env.svc.Mark(ctx, env.teacher, attendance.Mark{
			StudentID: s2.ID, Class: env.cls.ID, Date: d, Status: attendance.StatusPresent,
		})
		require.NoError(t, err)
	}

	ranked, err := env.svc.Ranking(ctx, env.teacher, class.ClassFilter{})
	require.NoError(t, err)
	require.Len(t, ranked, 2)
	assert.Equal(t, 1, ranked[0].Rank)
	assert.Equal(t, s2.ID, ranked[0].StudentID)
	assert.Equal(t, 100.0, ranked[0].Percentage)
	assert.False(t, ranked[0].IsLowAttendance)
	assert.Equal(t, 2, ranked[1].Rank)
	assert.Equal(t, env.student.ID, ranked[1].StudentID)
	assert.Equal(t, 50.0, ranked[1].Percentage)
	assert.True(t, ranked[1].IsLowAttendance)

	// a teacher with no classes gets an empty ranking
	idle := testutil.CreateUser(t, env.usrRepo, "Idle", "idle@test.cd", user.RoleTeacher, "", true)
	ranked, err = env.svc.Ranking(ctx, idle, class.ClassFilter{})
	require.NoError(t, err)
	assert.Empty(t, ranked)
}

func TestService_Monthly(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	_, err := env.svc.Mark(ctx, env.teacher, attendance.Mark{
		StudentID: env.student.ID, Class: env.cls.ID, Date: "2026-08-03", Status: attendance.StatusPresent,
	})
	require.NoError(t, err)
	_, err = env.svc.Mark(ctx, env.teacher, attendance.Mark{
		StudentID: env.student.ID, Class: env.cls.ID, Date: "2026-07-03", Status: attendance.StatusAbsent,
	})
	require.NoError(t, err)

	report, err := env.svc.Monthly(ctx, env.teacher, 8, 2026, "", "")
	require.NoError(t, err)
	assert.Equal(t, 8, report.Month)
	assert.Equal(t, 2026, report.Year)
	assert.Equal(t, 1, report.TotalClasses)
	assert.Equal(t, 1, report.Present)
	assert.Equal(t, 100.0, report.Percentage)
	require.Len(t, report.Rows, 1)
	assert.Equal(t, 1, report.Rows[0].Total)
	assert.Equal(t, 1, report.Rows[0].Present)
	assert.Equal(t, 100.0, report.Rows[0].Percentage)

	// narrowing to a class the teacher is not assigned to returns zeros
	report, err = env.svc.Monthly(ctx, env.teacher, 8, 2026, "nope", "")
	require.NoError(t, err)
	assert.Empty(t, report.Rows)
	assert.Equal(t, 0, report.TotalClasses)
	assert.Equal(t, 0.0, report.Percentage)

	_, err = env.svc.Monthly(ctx, env.teacher, 13, 2026, "", "")
	var vErr *core.ValidationError
	assert.True(t, errors.As(err, &vErr))
}

func TestService_Monthly_overrideScope(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	_, err := env.svc.Mark(ctx, env.teacher, attendance.Mark{
		StudentID: env.student.ID, Class: env.cls.ID, Date: "2026-07-03", Status: attendance.StatusAbsent,
	})
	require.NoError(t, err)
	_, err = env.svc.Mark(ctx, env.teacher, attendance.Mark{
		StudentID: env.student.ID, Class: env.cls.ID, Date: "2026-08-03", Status: attendance.StatusPresent,
	})
	require.NoError(t, err)

	// a July override puts the class in the substitute's July report only
	sub := testutil.CreateUser(t, env.usrRepo, "Sub", "sub@test.cd", user.RoleTeacher, "", true)
	_, err = env.clsRepo.UpsertOverride(ctx, class.TeacherOverride{
		ClassID:   env.cls.ID,
		TeacherID: sub.ID,
		Date:      core.NormalizeDate(time.Date(2026, time.July, 3, 0, 0, 0, 0, time.Local)),
	})
	require.NoError(t, err)

	report, err := env.svc.Monthly(ctx, sub, 7, 2026, "", "")
	require.NoError(t, err)
	require.Len(t, report.Rows, 1)
	assert.Equal(t, 1, report.TotalClasses)
	assert.Equal(t, 0, report.Present)

	report, err = env.svc.Monthly(ctx, sub, 8, 2026, "", "")
	require.NoError(t, err)
	assert.Empty(t, report.Rows)
	assert.Equal(t, 0, report.TotalClasses)
}

func TestService_StudentStats(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	stats, err := env.svc.StudentStats(ctx, env.student.ID)
	require.NoError(t, err)
	assert.Equal(t, attendance.StudentStats{Total: 0, Present: 0, Percentage: 0, IsLowAttendance: true}, stats)

	for i, d := range []string{"2026-08-24", "2026-08-25", "2026-08-26"} {
		status := attendance.StatusPresent
		if i == 2 {
			status = attendance.StatusAbsent
		}
		_, err := env.svc.Mark(ctx, env.teacher, attendance.Mark{
			StudentID: env.student.ID, Class: env.cls.ID, Date: d, Status: status,
		})
		require.NoError(t, err)
	}

	stats, err = env.svc.StudentStats(ctx, env.student.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.Present)
	assert.Equal(t, 66.67, stats.Percentage)
	assert.True(t, stats.IsLowAttendance)
}

func TestPercentage(t *testing.T) {
	assert.Equal(t, 0.0, attendance.Percentage(0, 0))
	assert.Equal(t, 100.0, attendance.Percentage(4, 4))
	assert.Equal(t, 66.67, attendance.Percentage(2, 3))
	assert.Equal(t, 33.33, attendance.Percentage(1, 3))
}
