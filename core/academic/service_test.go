package academic_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brijeshkumar2024/smart-attendance/core/academic"
	dummydb "github.com/brijeshkumar2024/smart-attendance/storage/database/dummy"
)

func setup(t *testing.T) *academic.Service {
	t.Helper()
	return academic.NewService(dummydb.NewAcademicRepository(dummydb.Open()))
}

func seedHierarchy(t *testing.T, svc *academic.Service) (academic.Program, academic.Session, academic.Branch, academic.Subject) {
	t.Helper()
	ctx := context.Background()
	prog, err := svc.CreateProgram(ctx, academic.NewProgram{Name: "Bachelor of Technology", Code: "BTECH"})
	require.NoError(t, err)
	sess, err := svc.CreateSession(ctx, academic.NewSession{ProgramID: prog.ID, Label: "2026-27"})
	require.NoError(t, err)
	branch, err := svc.CreateBranch(ctx, academic.NewBranch{ProgramID: prog.ID, SessionID: sess.ID, Name: "Computer Science", Code: "CSE"})
	require.NoError(t, err)
	subj, err := svc.CreateSubject(ctx, academic.NewSubject{
		ProgramID: prog.ID, SessionID: sess.ID, BranchID: branch.ID, Semester: 3, Name: "Data Structures",
	})
	require.NoError(t, err)
	return prog, sess, branch, subj
}

func TestService_CreateProgram_duplicates(t *testing.T) {
	svc := setup(t)
	ctx := context.Background()

	prog, err := svc.CreateProgram(ctx, academic.NewProgram{Name: "Bachelor of Technology"})
	require.NoError(t, err)

	// active duplicates match case-insensitively
	_, err = svc.CreateProgram(ctx, academic.NewProgram{Name: "BACHELOR OF TECHNOLOGY"})
	assert.Equal(t, academic.ErrProgramExists, errors.Cause(err))

	// deactivating frees the name
	_, err = svc.DeactivateProgram(ctx, prog.ID)
	require.NoError(t, err)
	_, err = svc.CreateProgram(ctx, academic.NewProgram{Name: "bachelor of technology"})
	assert.NoError(t, err)
}

func TestService_CreateSession(t *testing.T) {
	svc := setup(t)
	ctx := context.Background()
	prog, _, _, _ := seedHierarchy(t, svc)

	_, err := svc.CreateSession(ctx, academic.NewSession{ProgramID: prog.ID, Label: "2026-27"})
	assert.Equal(t, academic.ErrSessionExists, errors.Cause(err))

	_, err = svc.CreateSession(ctx, academic.NewSession{ProgramID: "nope", Label: "2027-28"})
	assert.Equal(t, academic.ErrProgramNotFound, errors.Cause(err))
}

func TestService_CreateSubject_scopeChecks(t *testing.T) {
	svc := setup(t)
	ctx := context.Background()
	prog, sess, branch, _ := seedHierarchy(t, svc)

	// duplicate within (branch, semester)
	_, err := svc.CreateSubject(ctx, academic.NewSubject{
		ProgramID: prog.ID, SessionID: sess.ID, BranchID: branch.ID, Semester: 3, Name: "data structures",
	})
	assert.Equal(t, academic.ErrSubjectExists, errors.Cause(err))

	// same name in another semester is fine
	_, err = svc.CreateSubject(ctx, academic.NewSubject{
		ProgramID: prog.ID, SessionID: sess.ID, BranchID: branch.ID, Semester: 4, Name: "Data Structures",
	})
	assert.NoError(t, err)

	// parent ids must line up
	other, err := svc.CreateProgram(ctx, academic.NewProgram{Name: "MBA"})
	require.NoError(t, err)
	_, err = svc.CreateSubject(ctx, academic.NewSubject{
		ProgramID: other.ID, SessionID: sess.ID, BranchID: branch.ID, Semester: 3, Name: "Finance",
	})
	assert.Error(t, err)
}

func TestService_DeactivateProgram_cascades(t *testing.T) {
	svc := setup(t)
	ctx := context.Background()
	prog, sess, branch, subj := seedHierarchy(t, svc)

	_, err := svc.DeactivateProgram(ctx, prog.ID)
	require.NoError(t, err)

	sessions, err := svc.Sessions(ctx, prog.ID, true /* activeOnly */)
	require.NoError(t, err)
	assert.Empty(t, sessions)
	branches, err := svc.Branches(ctx, prog.ID, sess.ID, true)
	require.NoError(t, err)
	assert.Empty(t, branches)
	subjects, err := svc.Subjects(ctx, branch.ID, 0, true)
	require.NoError(t, err)
	assert.Empty(t, subjects)

	// a deactivated scope no longer resolves
	_, err = svc.ResolveScope(ctx, academic.ScopeQuery{
		ProgramID: prog.ID, SessionID: sess.ID, BranchID: branch.ID, SubjectID: subj.ID, Semester: 3,
	})
	assert.Error(t, err)
}

func TestService_ResolveScope(t *testing.T) {
	svc := setup(t)
	ctx := context.Background()
	prog, sess, branch, subj := seedHierarchy(t, svc)

	scope, err := svc.ResolveScope(ctx, academic.ScopeQuery{
		ProgramID: prog.ID, SessionID: sess.ID, BranchID: branch.ID, SubjectID: subj.ID, Semester: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, subj.ID, scope.Subject.ID)

	// subject from another branch does not resolve
	branch2, err := svc.CreateBranch(ctx, academic.NewBranch{ProgramID: prog.ID, SessionID: sess.ID, Name: "Electronics", Code: "ECE"})
	require.NoError(t, err)
	_, err = svc.ResolveScope(ctx, academic.ScopeQuery{
		ProgramID: prog.ID, SessionID: sess.ID, BranchID: branch2.ID, SubjectID: subj.ID, Semester: 3,
	})
	assert.Error(t, err)
}

func TestService_Summary(t *testing.T) {
	svc := setup(t)
	ctx := context.Background()
	seedHierarchy(t, svc)

	sum, err := svc.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, academic.Summary{Programs: 1, Sessions: 1, Branches: 1, Subjects: 1}, sum)
}

func TestService_Terms(t *testing.T) {
	svc := setup(t)
	ctx := context.Background()

	term, err := svc.CreateTerm(ctx, academic.NewTerm{Name: "Odd 2026", StartDate: "2026-07-01", EndDate: "2026-12-20"})
	require.NoError(t, err)
	assert.Equal(t, "Odd 2026", term.Name)

	got, err := svc.GetTerm(ctx, term.ID)
	require.NoError(t, err)
	assert.Equal(t, term.ID, got.ID)

	terms, err := svc.Terms(ctx)
	require.NoError(t, err)
	assert.Len(t, terms, 1)

	_, err = svc.GetTerm(ctx, "nope")
	assert.Equal(t, academic.ErrTermNotFound, errors.Cause(err))
}
