package class_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brijeshkumar2024/smart-attendance/core"
	"github.com/brijeshkumar2024/smart-attendance/core/academic"
	"github.com/brijeshkumar2024/smart-attendance/core/class"
	"github.com/brijeshkumar2024/smart-attendance/core/user"
	dummydb "github.com/brijeshkumar2024/smart-attendance/storage/database/dummy"
	testutil "github.com/brijeshkumar2024/smart-attendance/tests"
)

func setup(t *testing.T) (*class.Service, *academic.Service, class.Repository, user.Repository) {
	t.Helper()
	db := dummydb.Open()
	usrRepo := dummydb.NewUserRepository(db)
	clsRepo := dummydb.NewClassRepository(db)
	acadSvc := academic.NewService(dummydb.NewAcademicRepository(db))
	return class.NewService(clsRepo, usrRepo, acadSvc), acadSvc, clsRepo, usrRepo
}

func seedScope(t *testing.T, acadSvc *academic.Service) (academic.Program, academic.Session, academic.Branch, academic.Subject) {
	t.Helper()
	ctx := context.Background()
	prog, err := acadSvc.CreateProgram(ctx, academic.NewProgram{Name: "Bachelor of Technology", Code: "BTECH"})
	require.NoError(t, err)
	sess, err := acadSvc.CreateSession(ctx, academic.NewSession{ProgramID: prog.ID, Label: "2026-27"})
	require.NoError(t, err)
	branch, err := acadSvc.CreateBranch(ctx, academic.NewBranch{ProgramID: prog.ID, SessionID: sess.ID, Name: "Computer Science", Code: "CSE"})
	require.NoError(t, err)
	subj, err := acadSvc.CreateSubject(ctx, academic.NewSubject{
		ProgramID: prog.ID, SessionID: sess.ID, BranchID: branch.ID, Semester: 3, Name: "Data Structures",
	})
	require.NoError(t, err)
	return prog, sess, branch, subj
}

func TestService_GetByIDOrName(t *testing.T) {
	svc, _, clsRepo, usrRepo := setup(t)
	ctx := context.Background()

	teacher := testutil.CreateUser(t, usrRepo, "T", "t@test.cd", user.RoleTeacher, "", true)
	cls := testutil.CreateClass(t, clsRepo, "CS101", "Algorithms", teacher.ID)

	got, err := svc.GetByIDOrName(ctx, cls.ID)
	require.NoError(t, err)
	assert.Equal(t, cls.ID, got.ID)

	got, err = svc.GetByIDOrName(ctx, " CS101 ")
	require.NoError(t, err)
	assert.Equal(t, cls.ID, got.ID)

	_, err = svc.GetByIDOrName(ctx, "nope")
	assert.Equal(t, class.ErrNotFound, errors.Cause(err))
	_, err = svc.GetByIDOrName(ctx, "")
	assert.Equal(t, class.ErrNotFound, errors.Cause(err))
}

func TestService_TeacherClassIDs(t *testing.T) {
	svc, _, clsRepo, usrRepo := setup(t)
	ctx := context.Background()

	t1 := testutil.CreateUser(t, usrRepo, "T1", "t1@test.cd", user.RoleTeacher, "", true)
	t2 := testutil.CreateUser(t, usrRepo, "T2", "t2@test.cd", user.RoleTeacher, "", true)
	own := testutil.CreateClass(t, clsRepo, "CS101", "Algorithms", t1.ID)
	other := testutil.CreateClass(t, clsRepo, "EE202", "Circuits", t2.ID)

	today := core.NormalizeDate(time.Now())
	_, err := clsRepo.UpsertOverride(ctx, class.TeacherOverride{ClassID: other.ID, TeacherID: t1.ID, Date: today})
	require.NoError(t, err)
	// an override on an own class must not duplicate the id
	_, err = clsRepo.UpsertOverride(ctx, class.TeacherOverride{ClassID: own.ID, TeacherID: t1.ID, Date: today})
	require.NoError(t, err)

	ids, err := svc.TeacherClassIDs(ctx, t1.ID, class.OverrideFilter{Date: today})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{own.ID, other.ID}, ids)

	// yesterday's filter drops today's override
	ids, err = svc.TeacherClassIDs(ctx, t1.ID, class.OverrideFilter{Date: today.AddDate(0, 0, -1)})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{own.ID}, ids)

	// All picks overrides on any date
	ids, err = svc.TeacherClassIDs(ctx, t1.ID, class.OverrideFilter{All: true})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{own.ID, other.ID}, ids)
}

func TestService_IsTeacherAuthorized(t *testing.T) {
	svc, _, clsRepo, usrRepo := setup(t)
	ctx := context.Background()

	t1 := testutil.CreateUser(t, usrRepo, "T1", "t1@test.cd", user.RoleTeacher, "", true)
	t2 := testutil.CreateUser(t, usrRepo, "T2", "t2@test.cd", user.RoleTeacher, "", true)
	cls := testutil.CreateClass(t, clsRepo, "CS101", "Algorithms", t1.ID)

	today := core.NormalizeDate(time.Now())

	ok, err := svc.IsTeacherAuthorized(ctx, t1.ID, cls, today)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.IsTeacherAuthorized(ctx, t2.ID, cls, today)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = clsRepo.UpsertOverride(ctx, class.TeacherOverride{ClassID: cls.ID, TeacherID: t2.ID, Date: today})
	require.NoError(t, err)

	ok, err = svc.IsTeacherAuthorized(ctx, t2.ID, cls, today)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.IsTeacherAuthorized(ctx, t2.ID, cls, today.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestService_Allocate(t *testing.T) {
	svc, acadSvc, _, usrRepo := setup(t)
	ctx := context.Background()

	t1 := testutil.CreateUser(t, usrRepo, "T1", "t1@test.cd", user.RoleTeacher, "", true)
	t2 := testutil.CreateUser(t, usrRepo, "T2", "t2@test.cd", user.RoleTeacher, "", true)
	prog, sess, branch, subj := seedScope(t, acadSvc)

	alloc := class.AllocateClass{
		TeacherID:  t1.ID,
		ProgramID:  prog.ID,
		SessionID:  sess.ID,
		BranchID:   branch.ID,
		SubjectID:  subj.ID,
		Semester:   3,
		GroupLabel: "1",
	}
	res, err := svc.Allocate(ctx, alloc)
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.False(t, res.Reassigned)
	assert.Equal(t, "BTECH | 2026-27 | CSE | Sem 3 | Group 1", res.Class.Name)
	assert.Equal(t, subj.Name, res.Class.Subject)
	assert.Equal(t, t1.ID, res.Class.TeacherID)

	// same scope, new teacher: the slot is reassigned in place
	alloc.TeacherID = t2.ID
	res2, err := svc.Allocate(ctx, alloc)
	require.NoError(t, err)
	assert.False(t, res2.Created)
	assert.True(t, res2.Reassigned)
	assert.Equal(t, res.Class.ID, res2.Class.ID)
	assert.Equal(t, t2.ID, res2.Class.TeacherID)

	// same scope, same teacher: nothing changes
	res3, err := svc.Allocate(ctx, alloc)
	require.NoError(t, err)
	assert.False(t, res3.Created)
	assert.False(t, res3.Reassigned)

	// a different group is a different slot
	alloc.GroupLabel = "2"
	res4, err := svc.Allocate(ctx, alloc)
	require.NoError(t, err)
	assert.True(t, res4.Created)
	assert.NotEqual(t, res.Class.ID, res4.Class.ID)

	// unknown scope member
	alloc.SubjectID = "nope"
	_, err = svc.Allocate(ctx, alloc)
	assert.Equal(t, class.ErrScopeNotFound, errors.Cause(err))

	// legacy mode: no scope, just a named class
	res5, err := svc.Allocate(ctx, class.AllocateClass{TeacherID: t1.ID, Name: "CS101", Subject: "Algorithms"})
	require.NoError(t, err)
	assert.True(t, res5.Created)
	assert.Equal(t, "CS101", res5.Class.Name)

	// inactive or non-teacher assignees are rejected
	student := testutil.CreateUser(t, usrRepo, "S", "s@test.cd", user.RoleStudent, "", true)
	_, err = svc.Allocate(ctx, class.AllocateClass{TeacherID: student.ID, Name: "X", Subject: "Y"})
	assert.Equal(t, class.ErrTeacherNotFound, errors.Cause(err))
}

func TestService_AssignTeacher(t *testing.T) {
	svc, _, clsRepo, usrRepo := setup(t)
	ctx := context.Background()

	admin := testutil.CreateUser(t, usrRepo, "Admin", "admin@test.cd", user.RoleAdmin, "", true)
	t1 := testutil.CreateUser(t, usrRepo, "T1", "t1@test.cd", user.RoleTeacher, "", true)
	t2 := testutil.CreateUser(t, usrRepo, "T2", "t2@test.cd", user.RoleTeacher, "", true)
	cls := testutil.CreateClass(t, clsRepo, "CS101", "Algorithms", t1.ID)

	// permanent swap
	res, err := svc.AssignTeacher(ctx, cls.ID, admin.ID, class.AssignTeacher{TeacherID: t2.ID, Mode: class.AssignModeFullSem})
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, t2.ID, res.Class.TeacherID)
	assert.Nil(t, res.Override)

	// idempotent
	res, err = svc.AssignTeacher(ctx, cls.ID, admin.ID, class.AssignTeacher{TeacherID: t2.ID, Mode: class.AssignModeFullSem})
	require.NoError(t, err)
	assert.False(t, res.Changed)

	// one day substitution
	res, err = svc.AssignTeacher(ctx, cls.ID, admin.ID, class.AssignTeacher{
		TeacherID: t1.ID, Mode: class.AssignModeOneDay, Date: "2026-09-01",
	})
	require.NoError(t, err)
	require.NotNil(t, res.Override)
	assert.Equal(t, t1.ID, res.Override.TeacherID)
	assert.Equal(t, admin.ID, res.Override.AssignedBy)
	assert.Equal(t, t2.ID, res.Class.TeacherID) // permanent assignment untouched

	// replacing the same day's override keeps one row per (class, date)
	res, err = svc.AssignTeacher(ctx, cls.ID, admin.ID, class.AssignTeacher{
		TeacherID: t2.ID, Mode: class.AssignModeOneDay, Date: "2026-09-01",
	})
	require.NoError(t, err)
	ov, err := clsRepo.GetOverride(ctx, cls.ID, t2.ID, core.NormalizeDate(res.Override.Date))
	require.NoError(t, err)
	assert.Equal(t, t2.ID, ov.TeacherID)
	_, err = clsRepo.GetOverride(ctx, cls.ID, t1.ID, core.NormalizeDate(res.Override.Date))
	assert.Equal(t, class.ErrOverrideNotFound, errors.Cause(err))

	// bad date in one_day mode
	_, err = svc.AssignTeacher(ctx, cls.ID, admin.ID, class.AssignTeacher{
		TeacherID: t1.ID, Mode: class.AssignModeOneDay, Date: "lol",
	})
	var vErr *core.ValidationError
	assert.True(t, errors.As(err, &vErr))
}

func TestBuildScopeClassName(t *testing.T) {
	scope := academic.ResolvedScope{
		Program: academic.Program{Name: "Bachelor of Technology", Code: "BTECH"},
		Session: academic.Session{Label: "2026-27"},
		Branch:  academic.Branch{Name: "Computer Science", Code: "CSE"},
		Subject: academic.Subject{Name: "Data Structures"},
	}
	assert.Equal(t, "BTECH | 2026-27 | CSE | Sem 3 | Group 1", class.BuildScopeClassName(scope, 3, "1"))

	// names fall back when codes are missing
	scope.Program.Code = ""
	scope.Branch.Code = ""
	assert.Equal(t, "Bachelor of Technology | 2026-27 | Computer Science | Sem 3 | Group 1",
		class.BuildScopeClassName(scope, 3, "1"))
}
