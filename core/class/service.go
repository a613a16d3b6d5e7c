package class

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/brijeshkumar2024/smart-attendance/core"
	"github.com/brijeshkumar2024/smart-attendance/core/academic"
	"github.com/brijeshkumar2024/smart-attendance/core/user"
)

var (
	ErrNotFound         = core.NewNotFoundError("class not found (use valid class id or exact class name)")
	ErrOverrideNotFound = core.NewNotFoundError("teacher override not found")
	ErrTeacherNotFound  = core.NewNotFoundError("active teacher not found")
	ErrScopeNotFound    = core.NewNotFoundError("selected program/session/branch/semester/subject scope not found")
)

type (
	// OverrideFilter narrows override lookups by date.
	// All wins over Start/End, which win over Date. An unset Date means today.
	OverrideFilter struct {
		Start time.Time
		End   time.Time
		Date  time.Time
		All   bool
	}

	// ClassFilter applies AND operation on its set fields.
	ClassFilter struct {
		ProgramID  string
		SessionID  string
		BranchID   string
		Semester   int
		GroupLabel string
		Subject    string
	}

	Repository interface {
		CreateClass(ctx context.Context, cls Class) (Class, error)
		GetClass(ctx context.Context, id string) (Class, error)
		GetClassByName(ctx context.Context, name string) (Class, error)
		GetClassByScope(ctx context.Context, scope Scope) (Class, error)
		// QueryClasses returns all classes when ids is nil.
		QueryClasses(ctx context.Context, ids []string, ordering []core.DBOrdering) ([]Class, error)
		QueryClassIDs(ctx context.Context, filter ClassFilter) ([]string, error)
		UpdateClass(ctx context.Context, cls Class) (Class, error)
		QueryPermanentClassIDs(ctx context.Context, teacherID string) ([]string, error)
		GetOverride(ctx context.Context, classID, teacherID string, date time.Time) (TeacherOverride, error)
		// UpsertOverride creates or replaces the override for (class, date).
		UpsertOverride(ctx context.Context, ov TeacherOverride) (TeacherOverride, error)
		QueryOverrideClassIDs(ctx context.Context, teacherID string, filter OverrideFilter) ([]string, error)
	}

	Service struct {
		repo    Repository
		usrRepo user.Repository
		acadSvc *academic.Service
	}

	AllocationResult struct {
		Class      Class
		Reassigned bool
		Created    bool
	}

	AssignmentResult struct {
		Class    Class
		Override *TeacherOverride
		Changed  bool
	}
)

func NewService(repo Repository, usrRepo user.Repository, acadSvc *academic.Service) *Service {
	return &Service{repo: repo, usrRepo: usrRepo, acadSvc: acadSvc}
}

// Create registers a new class owned by `teacherID`.
func (svc *Service) Create(ctx context.Context, nc NewClass, teacherID string) (Class, error) {
	if nc.TermID != "" {
		if _, err := svc.acadSvc.GetTerm(ctx, nc.TermID); err != nil {
			return Class{}, err
		}
	}
	now := time.Now().UTC()
	cls := Class{
		Name:      nc.Name,
		Subject:   nc.Subject,
		TeacherID: teacherID,
		TermID:    nc.TermID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return svc.repo.CreateClass(ctx, cls)
}

func (svc *Service) GetByID(ctx context.Context, id string) (Class, error) {
	return svc.repo.GetClass(ctx, id)
}

// GetByIDOrName resolves a class reference that may be an id or an exact class name.
func (svc *Service) GetByIDOrName(ctx context.Context, ref string) (Class, error) {
	ref = core.CleanString(ref)
	if ref == "" {
		return Class{}, ErrNotFound
	}
	cls, err := svc.repo.GetClass(ctx, ref)
	if err == nil {
		return cls, nil
	}
	if errors.Cause(err) != ErrNotFound {
		return Class{}, err
	}
	return svc.repo.GetClassByName(ctx, ref)
}

func (svc *Service) QueryAll(ctx context.Context) ([]Class, error) {
	return svc.repo.QueryClasses(ctx, nil, []core.DBOrdering{{Field: "updated_at"}})
}

// MyClasses lists the classes `teacherID` is in charge of on `date`,
// permanent assignments plus that day's overrides.
func (svc *Service) MyClasses(ctx context.Context, teacherID string, date time.Time) ([]Class, error) {
	ids, err := svc.TeacherClassIDs(ctx, teacherID, OverrideFilter{Date: date})
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []Class{}, nil
	}
	return svc.repo.QueryClasses(ctx, ids, []core.DBOrdering{{Field: "class_name", Ascending: true}})
}

// ScopedClassIDs resolves the class ids matching an academic filter.
func (svc *Service) ScopedClassIDs(ctx context.Context, filter ClassFilter) ([]string, error) {
	return svc.repo.QueryClassIDs(ctx, filter)
}

// TeacherClassIDs returns the union of the teacher's permanent class ids and
// the class ids of their overrides matching `filter`, without duplicates.
func (svc *Service) TeacherClassIDs(ctx context.Context, teacherID string, filter OverrideFilter) ([]string, error) {
	permanent, err := svc.repo.QueryPermanentClassIDs(ctx, teacherID)
	if err != nil {
		return nil, errors.Wrap(err, "querying permanent classes")
	}
	overrides, err := svc.repo.QueryOverrideClassIDs(ctx, teacherID, filter)
	if err != nil {
		return nil, errors.Wrap(err, "querying override classes")
	}

	seen := make(map[string]bool, len(permanent)+len(overrides))
	ids := make([]string, 0, len(permanent)+len(overrides))
	for _, id := range append(permanent, overrides...) {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// IsTeacherAuthorized reports whether `teacherID` may act on `cls` on `date`:
// either as its permanent teacher or via a same-day override.
func (svc *Service) IsTeacherAuthorized(ctx context.Context, teacherID string, cls Class, date time.Time) (bool, error) {
	if cls.TeacherID == teacherID {
		return true, nil
	}
	_, err := svc.repo.GetOverride(ctx, cls.ID, teacherID, core.NormalizeDate(date))
	if err != nil {
		if errors.Cause(err) == ErrOverrideNotFound {
			return false, nil
		}
		return false, errors.Wrap(err, "checking teacher override")
	}
	return true, nil
}

func (svc *Service) getActiveTeacher(ctx context.Context, teacherID string) (user.User, error) {
	teacher, err := svc.usrRepo.GetUser(ctx, user.GetFilter{ID: teacherID})
	if err != nil || !teacher.IsTeacher() || !teacher.Active() {
		return user.User{}, ErrTeacherNotFound
	}
	return teacher, nil
}

// Allocate assigns a teacher to a class slot. With a full academic scope the
// class is looked up by scope tuple and reassigned in place, or created with a
// synthesized name. Without it a new class is created from name and subject.
func (svc *Service) Allocate(ctx context.Context, ac AllocateClass) (AllocationResult, error) {
	teacher, err := svc.getActiveTeacher(ctx, ac.TeacherID)
	if err != nil {
		return AllocationResult{}, err
	}

	if !ac.HasAcademicScope() {
		cls, err := svc.Create(ctx, NewClass{Name: ac.Name, Subject: ac.Subject, TermID: ac.TermID}, teacher.ID)
		if err != nil {
			return AllocationResult{}, err
		}
		return AllocationResult{Class: cls, Created: true}, nil
	}

	scope, err := svc.acadSvc.ResolveScope(ctx, academic.ScopeQuery{
		ProgramID: ac.ProgramID,
		SessionID: ac.SessionID,
		BranchID:  ac.BranchID,
		SubjectID: ac.SubjectID,
		Semester:  ac.Semester,
	})
	if err != nil {
		if core.IsNotFound(err) {
			return AllocationResult{}, ErrScopeNotFound
		}
		return AllocationResult{}, err
	}

	name := BuildScopeClassName(scope, ac.Semester, ac.GroupLabel)
	now := time.Now().UTC()

	cls, err := svc.repo.GetClassByScope(ctx, Scope{
		ProgramID:  ac.ProgramID,
		SessionID:  ac.SessionID,
		BranchID:   ac.BranchID,
		SubjectID:  ac.SubjectID,
		Semester:   ac.Semester,
		GroupLabel: ac.GroupLabel,
	})
	if err == nil {
		reassigned := cls.TeacherID != teacher.ID
		cls.TeacherID = teacher.ID
		cls.Name = name
		cls.Subject = scope.Subject.Name
		cls.UpdatedAt = now
		cls, err = svc.repo.UpdateClass(ctx, cls)
		if err != nil {
			return AllocationResult{}, err
		}
		return AllocationResult{Class: cls, Reassigned: reassigned}, nil
	}
	if errors.Cause(err) != ErrNotFound {
		return AllocationResult{}, err
	}

	cls, err = svc.repo.CreateClass(ctx, Class{
		Name:       name,
		Subject:    scope.Subject.Name,
		TeacherID:  teacher.ID,
		ProgramID:  ac.ProgramID,
		SessionID:  ac.SessionID,
		BranchID:   ac.BranchID,
		SubjectID:  ac.SubjectID,
		Semester:   ac.Semester,
		GroupLabel: ac.GroupLabel,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		return AllocationResult{}, err
	}
	return AllocationResult{Class: cls, Created: true}, nil
}

// AssignTeacher swaps the teacher of an existing class, permanently
// (full_sem) or for a single date (one_day override).
func (svc *Service) AssignTeacher(ctx context.Context, classID, assignedBy string, at AssignTeacher) (AssignmentResult, error) {
	cls, err := svc.repo.GetClass(ctx, classID)
	if err != nil {
		return AssignmentResult{}, err
	}
	teacher, err := svc.getActiveTeacher(ctx, at.TeacherID)
	if err != nil {
		return AssignmentResult{}, err
	}

	if at.Mode == AssignModeFullSem {
		changed := cls.TeacherID != teacher.ID
		if changed {
			cls.TeacherID = teacher.ID
			cls.UpdatedAt = time.Now().UTC()
			if cls, err = svc.repo.UpdateClass(ctx, cls); err != nil {
				return AssignmentResult{}, err
			}
		}
		return AssignmentResult{Class: cls, Changed: changed}, nil
	}

	date, err := core.ParseDate(at.Date)
	if err != nil {
		return AssignmentResult{}, core.NewValidationError(nil,
			core.FieldError{Field: "date", Error: "a valid date is required for one_day mode"})
	}
	now := time.Now().UTC()
	ov, err := svc.repo.UpsertOverride(ctx, TeacherOverride{
		ClassID:    cls.ID,
		TeacherID:  teacher.ID,
		Date:       date,
		AssignedBy: assignedBy,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		return AssignmentResult{}, errors.Wrap(err, "upserting teacher override")
	}
	return AssignmentResult{Class: cls, Override: &ov, Changed: true}, nil
}

// BuildScopeClassName synthesizes a class name from its academic scope,
// e.g. "BTECH | 2024-25 | CSE | Sem 3 | Group 1".
func BuildScopeClassName(scope academic.ResolvedScope, semester int, groupLabel string) string {
	programLabel := scope.Program.Code
	if programLabel == "" {
		programLabel = scope.Program.Name
	}
	branchLabel := scope.Branch.Code
	if branchLabel == "" {
		branchLabel = scope.Branch.Name
	}
	return strings.Join([]string{
		programLabel,
		scope.Session.Label,
		branchLabel,
		fmt.Sprintf("Sem %d", semester),
		fmt.Sprintf("Group %s", groupLabel),
	}, " | ")
}
