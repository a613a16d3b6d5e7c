package dummydb

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/brijeshkumar2024/smart-attendance/core/academic"
)

type academicRepository struct {
	db *academicTable
}

var _ academic.Repository = (*academicRepository)(nil) // interface compliance check

func NewAcademicRepository(db *DB) *academicRepository {
	return &academicRepository{db: db.academic}
}

// Programs

func (repo *academicRepository) CreateProgram(ctx context.Context, p academic.Program) (academic.Program, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	p.ID = uuid.New().String()
	repo.db.programs[p.ID] = &p
	return p, nil
}

func (repo *academicRepository) GetProgram(ctx context.Context, id string) (academic.Program, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if p, ok := repo.db.programs[id]; ok {
		return *p, nil
	}
	return academic.Program{}, academic.ErrProgramNotFound
}

func (repo *academicRepository) GetProgramByName(ctx context.Context, name string) (academic.Program, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, p := range repo.db.programs {
		if strings.EqualFold(p.Name, name) && p.Active() {
			return *p, nil
		}
	}
	return academic.Program{}, academic.ErrProgramNotFound
}

func (repo *academicRepository) QueryPrograms(ctx context.Context, activeOnly bool) ([]academic.Program, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	programs := make([]academic.Program, 0, len(repo.db.programs))
	for _, p := range repo.db.programs {
		if activeOnly && !p.Active() {
			continue
		}
		programs = append(programs, *p)
	}
	sort.Slice(programs, func(i, j int) bool { return programs[i].Name < programs[j].Name })
	return programs, nil
}

func (repo *academicRepository) UpdateProgram(ctx context.Context, p academic.Program) (academic.Program, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.programs[p.ID]; !ok {
		return academic.Program{}, academic.ErrProgramNotFound
	}
	repo.db.programs[p.ID] = &p
	return p, nil
}

// Sessions

func (repo *academicRepository) CreateSession(ctx context.Context, s academic.Session) (academic.Session, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	s.ID = uuid.New().String()
	repo.db.sessions[s.ID] = &s
	return s, nil
}

func (repo *academicRepository) GetSession(ctx context.Context, id string) (academic.Session, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if s, ok := repo.db.sessions[id]; ok {
		return *s, nil
	}
	return academic.Session{}, academic.ErrSessionNotFound
}

func (repo *academicRepository) GetSessionByLabel(ctx context.Context, programID, label string) (academic.Session, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, s := range repo.db.sessions {
		if s.ProgramID == programID && strings.EqualFold(s.Label, label) && s.Active() {
			return *s, nil
		}
	}
	return academic.Session{}, academic.ErrSessionNotFound
}

func (repo *academicRepository) QuerySessions(ctx context.Context, programID string, activeOnly bool) ([]academic.Session, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	sessions := make([]academic.Session, 0)
	for _, s := range repo.db.sessions {
		if programID != "" && s.ProgramID != programID {
			continue
		}
		if activeOnly && !s.Active() {
			continue
		}
		sessions = append(sessions, *s)
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].Label < sessions[j].Label })
	return sessions, nil
}

func (repo *academicRepository) UpdateSession(ctx context.Context, s academic.Session) (academic.Session, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.sessions[s.ID]; !ok {
		return academic.Session{}, academic.ErrSessionNotFound
	}
	repo.db.sessions[s.ID] = &s
	return s, nil
}

// Branches

func (repo *academicRepository) CreateBranch(ctx context.Context, b academic.Branch) (academic.Branch, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	b.ID = uuid.New().String()
	repo.db.branches[b.ID] = &b
	return b, nil
}

func (repo *academicRepository) GetBranch(ctx context.Context, id string) (academic.Branch, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if b, ok := repo.db.branches[id]; ok {
		return *b, nil
	}
	return academic.Branch{}, academic.ErrBranchNotFound
}

func (repo *academicRepository) GetBranchByName(ctx context.Context, programID, sessionID, name string) (academic.Branch, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, b := range repo.db.branches {
		if b.ProgramID == programID && b.SessionID == sessionID && strings.EqualFold(b.Name, name) && b.Active() {
			return *b, nil
		}
	}
	return academic.Branch{}, academic.ErrBranchNotFound
}

func (repo *academicRepository) QueryBranches(ctx context.Context, programID, sessionID string, activeOnly bool) ([]academic.Branch, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	branches := make([]academic.Branch, 0)
	for _, b := range repo.db.branches {
		if programID != "" && b.ProgramID != programID {
			continue
		}
		if sessionID != "" && b.SessionID != sessionID {
			continue
		}
		if activeOnly && !b.Active() {
			continue
		}
		branches = append(branches, *b)
	}
	sort.Slice(branches, func(i, j int) bool { return branches[i].Name < branches[j].Name })
	return branches, nil
}

func (repo *academicRepository) UpdateBranch(ctx context.Context, b academic.Branch) (academic.Branch, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.branches[b.ID]; !ok {
		return academic.Branch{}, academic.ErrBranchNotFound
	}
	repo.db.branches[b.ID] = &b
	return b, nil
}

// Subjects

func (repo *academicRepository) CreateSubject(ctx context.Context, s academic.Subject) (academic.Subject, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	s.ID = uuid.New().String()
	repo.db.subjects[s.ID] = &s
	return s, nil
}

func (repo *academicRepository) GetSubject(ctx context.Context, id string) (academic.Subject, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if s, ok := repo.db.subjects[id]; ok {
		return *s, nil
	}
	return academic.Subject{}, academic.ErrSubjectNotFound
}

func (repo *academicRepository) GetSubjectByName(ctx context.Context, branchID string, semester int, name string) (academic.Subject, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, s := range repo.db.subjects {
		if s.BranchID == branchID && s.Semester == semester && strings.EqualFold(s.Name, name) && s.Active() {
			return *s, nil
		}
	}
	return academic.Subject{}, academic.ErrSubjectNotFound
}

func (repo *academicRepository) QuerySubjects(ctx context.Context, branchID string, semester int, activeOnly bool) ([]academic.Subject, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	subjects := make([]academic.Subject, 0)
	for _, s := range repo.db.subjects {
		if branchID != "" && s.BranchID != branchID {
			continue
		}
		if semester != 0 && s.Semester != semester {
			continue
		}
		if activeOnly && !s.Active() {
			continue
		}
		subjects = append(subjects, *s)
	}
	sort.Slice(subjects, func(i, j int) bool {
		if subjects[i].Semester != subjects[j].Semester {
			return subjects[i].Semester < subjects[j].Semester
		}
		return subjects[i].Name < subjects[j].Name
	})
	return subjects, nil
}

func (repo *academicRepository) UpdateSubject(ctx context.Context, s academic.Subject) (academic.Subject, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.subjects[s.ID]; !ok {
		return academic.Subject{}, academic.ErrSubjectNotFound
	}
	repo.db.subjects[s.ID] = &s
	return s, nil
}

func (repo *academicRepository) DeactivateDescendants(ctx context.Context, programID, sessionID, branchID string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	inactive := false
	switch {
	case programID != "":
		for _, s := range repo.db.sessions {
			if s.ProgramID == programID {
				s.IsActive = &inactive
			}
		}
		for _, b := range repo.db.branches {
			if b.ProgramID == programID {
				b.IsActive = &inactive
			}
		}
		for _, s := range repo.db.subjects {
			if s.ProgramID == programID {
				s.IsActive = &inactive
			}
		}
	case sessionID != "":
		for _, b := range repo.db.branches {
			if b.SessionID == sessionID {
				b.IsActive = &inactive
			}
		}
		for _, s := range repo.db.subjects {
			if s.SessionID == sessionID {
				s.IsActive = &inactive
			}
		}
	case branchID != "":
		for _, s := range repo.db.subjects {
			if s.BranchID == branchID {
				s.IsActive = &inactive
			}
		}
	}
	return nil
}

func (repo *academicRepository) CountActive(ctx context.Context) (academic.Summary, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var summary academic.Summary
	for _, p := range repo.db.programs {
		if p.Active() {
			summary.Programs++
		}
	}
	for _, s := range repo.db.sessions {
		if s.Active() {
			summary.Sessions++
		}
	}
	for _, b := range repo.db.branches {
		if b.Active() {
			summary.Branches++
		}
	}
	for _, s := range repo.db.subjects {
		if s.Active() {
			summary.Subjects++
		}
	}
	return summary, nil
}

// Terms

func (repo *academicRepository) CreateTerm(ctx context.Context, t academic.Term) (academic.Term, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	t.ID = uuid.New().String()
	repo.db.terms[t.ID] = &t
	return t, nil
}

func (repo *academicRepository) GetTerm(ctx context.Context, id string) (academic.Term, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if t, ok := repo.db.terms[id]; ok {
		return *t, nil
	}
	return academic.Term{}, academic.ErrTermNotFound
}

func (repo *academicRepository) QueryTerms(ctx context.Context) ([]academic.Term, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	terms := make([]academic.Term, 0, len(repo.db.terms))
	for _, t := range repo.db.terms {
		terms = append(terms, *t)
	}
	sort.Slice(terms, func(i, j int) bool { return terms[i].StartDate.After(terms[j].StartDate) })
	return terms, nil
}
