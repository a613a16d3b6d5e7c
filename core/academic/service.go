package academic

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/brijeshkumar2024/smart-attendance/core"
)

var (
	ErrProgramNotFound = core.NewNotFoundError("program not found")
	ErrSessionNotFound = core.NewNotFoundError("session not found")
	ErrBranchNotFound  = core.NewNotFoundError("branch not found")
	ErrSubjectNotFound = core.NewNotFoundError("subject not found")
	ErrTermNotFound    = core.NewNotFoundError("term not found")

	ErrProgramExists = core.NewConflictError("an active program with this name already exists")
	ErrSessionExists = core.NewConflictError("an active session with this label already exists for this program")
	ErrBranchExists  = core.NewConflictError("an active branch with this name already exists for this session")
	ErrSubjectExists = core.NewConflictError("an active subject with this name already exists for this semester")
)

type (
	// ScopeQuery identifies one (program, session, branch, subject, semester) slot.
	ScopeQuery struct {
		ProgramID string
		SessionID string
		BranchID  string
		SubjectID string
		Semester  int
	}

	// ResolvedScope carries the rows a valid ScopeQuery points at.
	ResolvedScope struct {
		Program Program
		Session Session
		Branch  Branch
		Subject Subject
	}

	Repository interface {
		CreateProgram(ctx context.Context, p Program) (Program, error)
		GetProgram(ctx context.Context, id string) (Program, error)
		// GetProgramByName matches active programs case-insensitively.
		GetProgramByName(ctx context.Context, name string) (Program, error)
		QueryPrograms(ctx context.Context, activeOnly bool) ([]Program, error)
		UpdateProgram(ctx context.Context, p Program) (Program, error)

		CreateSession(ctx context.Context, s Session) (Session, error)
		GetSession(ctx context.Context, id string) (Session, error)
		GetSessionByLabel(ctx context.Context, programID, label string) (Session, error)
		QuerySessions(ctx context.Context, programID string, activeOnly bool) ([]Session, error)
		UpdateSession(ctx context.Context, s Session) (Session, error)

		CreateBranch(ctx context.Context, b Branch) (Branch, error)
		GetBranch(ctx context.Context, id string) (Branch, error)
		GetBranchByName(ctx context.Context, programID, sessionID, name string) (Branch, error)
		QueryBranches(ctx context.Context, programID, sessionID string, activeOnly bool) ([]Branch, error)
		UpdateBranch(ctx context.Context, b Branch) (Branch, error)

		CreateSubject(ctx context.Context, s Subject) (Subject, error)
		GetSubject(ctx context.Context, id string) (Subject, error)
		GetSubjectByName(ctx context.Context, branchID string, semester int, name string) (Subject, error)
		QuerySubjects(ctx context.Context, branchID string, semester int, activeOnly bool) ([]Subject, error)
		UpdateSubject(ctx context.Context, s Subject) (Subject, error)

		// DeactivateDescendants clears the active flag on every session,
		// branch and subject below the given rows. Empty ids are skipped.
		DeactivateDescendants(ctx context.Context, programID, sessionID, branchID string) error

		CountActive(ctx context.Context) (Summary, error)

		CreateTerm(ctx context.Context, t Term) (Term, error)
		GetTerm(ctx context.Context, id string) (Term, error)
		QueryTerms(ctx context.Context) ([]Term, error)
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func active() *bool {
	v := true
	return &v
}

// Programs

func (svc *Service) CreateProgram(ctx context.Context, np NewProgram) (Program, error) {
	_, err := svc.repo.GetProgramByName(ctx, np.Name)
	if err == nil {
		return Program{}, ErrProgramExists
	}
	if errors.Cause(err) != ErrProgramNotFound {
		return Program{}, err
	}
	now := time.Now().UTC()
	return svc.repo.CreateProgram(ctx, Program{
		Name:      np.Name,
		Code:      np.Code,
		IsActive:  active(),
		CreatedAt: now,
		UpdatedAt: now,
	})
}

func (svc *Service) Programs(ctx context.Context, activeOnly bool) ([]Program, error) {
	return svc.repo.QueryPrograms(ctx, activeOnly)
}

// DeactivateProgram disables a program and everything below it.
func (svc *Service) DeactivateProgram(ctx context.Context, id string) (Program, error) {
	p, err := svc.repo.GetProgram(ctx, id)
	if err != nil {
		return Program{}, err
	}
	inactive := false
	p.IsActive = &inactive
	p.UpdatedAt = time.Now().UTC()
	if p, err = svc.repo.UpdateProgram(ctx, p); err != nil {
		return Program{}, err
	}
	if err = svc.repo.DeactivateDescendants(ctx, p.ID, "", ""); err != nil {
		return Program{}, errors.Wrap(err, "deactivating program descendants")
	}
	return p, nil
}

// Sessions

func (svc *Service) CreateSession(ctx context.Context, ns NewSession) (Session, error) {
	p, err := svc.repo.GetProgram(ctx, ns.ProgramID)
	if err != nil || !p.Active() {
		return Session{}, ErrProgramNotFound
	}
	_, err = svc.repo.GetSessionByLabel(ctx, p.ID, ns.Label)
	if err == nil {
		return Session{}, ErrSessionExists
	}
	if errors.Cause(err) != ErrSessionNotFound {
		return Session{}, err
	}
	now := time.Now().UTC()
	return svc.repo.CreateSession(ctx, Session{
		ProgramID: p.ID,
		Label:     ns.Label,
		IsActive:  active(),
		CreatedAt: now,
		UpdatedAt: now,
	})
}

func (svc *Service) Sessions(ctx context.Context, programID string, activeOnly bool) ([]Session, error) {
	return svc.repo.QuerySessions(ctx, programID, activeOnly)
}

func (svc *Service) DeactivateSession(ctx context.Context, id string) (Session, error) {
	s, err := svc.repo.GetSession(ctx, id)
	if err != nil {
		return Session{}, err
	}
	inactive := false
	s.IsActive = &inactive
	s.UpdatedAt = time.Now().UTC()
	if s, err = svc.repo.UpdateSession(ctx, s); err != nil {
		return Session{}, err
	}
	if err = svc.repo.DeactivateDescendants(ctx, "", s.ID, ""); err != nil {
		return Session{}, errors.Wrap(err, "deactivating session descendants")
	}
	return s, nil
}

// Branches

func (svc *Service) CreateBranch(ctx context.Context, nb NewBranch) (Branch, error) {
	s, err := svc.repo.GetSession(ctx, nb.SessionID)
	if err != nil || !s.Active() || s.ProgramID != nb.ProgramID {
		return Branch{}, ErrSessionNotFound
	}
	_, err = svc.repo.GetBranchByName(ctx, nb.ProgramID, nb.SessionID, nb.Name)
	if err == nil {
		return Branch{}, ErrBranchExists
	}
	if errors.Cause(err) != ErrBranchNotFound {
		return Branch{}, err
	}
	now := time.Now().UTC()
	return svc.repo.CreateBranch(ctx, Branch{
		ProgramID: nb.ProgramID,
		SessionID: nb.SessionID,
		Name:      nb.Name,
		Code:      nb.Code,
		IsActive:  active(),
		CreatedAt: now,
		UpdatedAt: now,
	})
}

func (svc *Service) Branches(ctx context.Context, programID, sessionID string, activeOnly bool) ([]Branch, error) {
	return svc.repo.QueryBranches(ctx, programID, sessionID, activeOnly)
}

func (svc *Service) DeactivateBranch(ctx context.Context, id string) (Branch, error) {
	b, err := svc.repo.GetBranch(ctx, id)
	if err != nil {
		return Branch{}, err
	}
	inactive := false
	b.IsActive = &inactive
	b.UpdatedAt = time.Now().UTC()
	if b, err = svc.repo.UpdateBranch(ctx, b); err != nil {
		return Branch{}, err
	}
	if err = svc.repo.DeactivateDescendants(ctx, "", "", b.ID); err != nil {
		return Branch{}, errors.Wrap(err, "deactivating branch descendants")
	}
	return b, nil
}

// Subjects

func (svc *Service) CreateSubject(ctx context.Context, ns NewSubject) (Subject, error) {
	b, err := svc.repo.GetBranch(ctx, ns.BranchID)
	if err != nil || !b.Active() || b.ProgramID != ns.ProgramID || b.SessionID != ns.SessionID {
		return Subject{}, ErrBranchNotFound
	}
	_, err = svc.repo.GetSubjectByName(ctx, ns.BranchID, ns.Semester, ns.Name)
	if err == nil {
		return Subject{}, ErrSubjectExists
	}
	if errors.Cause(err) != ErrSubjectNotFound {
		return Subject{}, err
	}
	now := time.Now().UTC()
	return svc.repo.CreateSubject(ctx, Subject{
		ProgramID: ns.ProgramID,
		SessionID: ns.SessionID,
		BranchID:  ns.BranchID,
		Semester:  ns.Semester,
		Name:      ns.Name,
		Code:      ns.Code,
		IsActive:  active(),
		CreatedAt: now,
		UpdatedAt: now,
	})
}

func (svc *Service) Subjects(ctx context.Context, branchID string, semester int, activeOnly bool) ([]Subject, error) {
	return svc.repo.QuerySubjects(ctx, branchID, semester, activeOnly)
}

func (svc *Service) DeactivateSubject(ctx context.Context, id string) (Subject, error) {
	s, err := svc.repo.GetSubject(ctx, id)
	if err != nil {
		return Subject{}, err
	}
	inactive := false
	s.IsActive = &inactive
	s.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateSubject(ctx, s)
}

// ResolveScope validates that a scope query points at a coherent chain of
// active rows and returns them.
func (svc *Service) ResolveScope(ctx context.Context, q ScopeQuery) (ResolvedScope, error) {
	p, err := svc.repo.GetProgram(ctx, q.ProgramID)
	if err != nil || !p.Active() {
		return ResolvedScope{}, ErrProgramNotFound
	}
	s, err := svc.repo.GetSession(ctx, q.SessionID)
	if err != nil || !s.Active() || s.ProgramID != p.ID {
		return ResolvedScope{}, ErrSessionNotFound
	}
	b, err := svc.repo.GetBranch(ctx, q.BranchID)
	if err != nil || !b.Active() || b.ProgramID != p.ID || b.SessionID != s.ID {
		return ResolvedScope{}, ErrBranchNotFound
	}
	sub, err := svc.repo.GetSubject(ctx, q.SubjectID)
	if err != nil || !sub.Active() || sub.BranchID != b.ID || sub.Semester != q.Semester {
		return ResolvedScope{}, ErrSubjectNotFound
	}
	return ResolvedScope{Program: p, Session: s, Branch: b, Subject: sub}, nil
}

func (svc *Service) Summary(ctx context.Context) (Summary, error) {
	return svc.repo.CountActive(ctx)
}

// Terms

func (svc *Service) CreateTerm(ctx context.Context, nt NewTerm) (Term, error) {
	start, _ := core.ParseDate(nt.StartDate)
	end, _ := core.ParseDate(nt.EndDate)
	now := time.Now().UTC()
	return svc.repo.CreateTerm(ctx, Term{
		Name:      nt.Name,
		StartDate: start,
		EndDate:   end,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

func (svc *Service) GetTerm(ctx context.Context, id string) (Term, error) {
	return svc.repo.GetTerm(ctx, id)
}

func (svc *Service) Terms(ctx context.Context) ([]Term, error) {
	return svc.repo.QueryTerms(ctx)
}
