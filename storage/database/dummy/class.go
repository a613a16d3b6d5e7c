package dummydb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/brijeshkumar2024/smart-attendance/core"
	"github.com/brijeshkumar2024/smart-attendance/core/class"
)

type classRepository struct {
	db *classTable
}

var _ class.Repository = (*classRepository)(nil) // interface compliance check

func NewClassRepository(db *DB) *classRepository {
	return &classRepository{db: db.class}
}

func (repo *classRepository) CreateClass(ctx context.Context, cls class.Class) (class.Class, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	cls.ID = uuid.New().String()
	repo.db.classes[cls.ID] = &cls
	return cls, nil
}

func (repo *classRepository) GetClass(ctx context.Context, id string) (class.Class, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if cls, ok := repo.db.classes[id]; ok {
		return *cls, nil
	}
	return class.Class{}, class.ErrNotFound
}

func (repo *classRepository) GetClassByName(ctx context.Context, name string) (class.Class, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, cls := range repo.db.classes {
		if cls.Name == name {
			return *cls, nil
		}
	}
	return class.Class{}, class.ErrNotFound
}

func (repo *classRepository) GetClassByScope(ctx context.Context, scope class.Scope) (class.Class, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, cls := range repo.db.classes {
		if cls.Scope() == scope {
			return *cls, nil
		}
	}
	return class.Class{}, class.ErrNotFound
}

func (repo *classRepository) QueryClasses(ctx context.Context, ids []string, ordering []core.DBOrdering) ([]class.Class, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var wanted map[string]bool
	if ids != nil {
		wanted = make(map[string]bool, len(ids))
		for _, id := range ids {
			wanted[id] = true
		}
	}

	classes := make([]class.Class, 0, len(repo.db.classes))
	for _, cls := range repo.db.classes {
		if wanted == nil || wanted[cls.ID] {
			classes = append(classes, *cls)
		}
	}
	sort.Slice(classes, func(i, j int) bool { return classes[i].Name < classes[j].Name })
	return classes, nil
}

func (repo *classRepository) QueryClassIDs(ctx context.Context, filter class.ClassFilter) ([]string, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	ids := make([]string, 0)
	for _, cls := range repo.db.classes {
		if filter.ProgramID != "" && cls.ProgramID != filter.ProgramID {
			continue
		}
		if filter.SessionID != "" && cls.SessionID != filter.SessionID {
			continue
		}
		if filter.BranchID != "" && cls.BranchID != filter.BranchID {
			continue
		}
		if filter.Semester != 0 && cls.Semester != filter.Semester {
			continue
		}
		if filter.GroupLabel != "" && cls.GroupLabel != filter.GroupLabel {
			continue
		}
		if filter.Subject != "" && !strings.EqualFold(cls.Subject, filter.Subject) {
			continue
		}
		ids = append(ids, cls.ID)
	}
	return ids, nil
}

func (repo *classRepository) UpdateClass(ctx context.Context, cls class.Class) (class.Class, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.classes[cls.ID]; !ok {
		return class.Class{}, class.ErrNotFound
	}
	repo.db.classes[cls.ID] = &cls
	return cls, nil
}

func (repo *classRepository) QueryPermanentClassIDs(ctx context.Context, teacherID string) ([]string, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	ids := make([]string, 0)
	for _, cls := range repo.db.classes {
		if cls.TeacherID == teacherID {
			ids = append(ids, cls.ID)
		}
	}
	return ids, nil
}

func (repo *classRepository) GetOverride(ctx context.Context, classID, teacherID string, date time.Time) (class.TeacherOverride, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, ov := range repo.db.overrides {
		if ov.ClassID == classID && ov.TeacherID == teacherID && ov.Date.Equal(date) {
			return *ov, nil
		}
	}
	return class.TeacherOverride{}, class.ErrOverrideNotFound
}

func (repo *classRepository) UpsertOverride(ctx context.Context, ov class.TeacherOverride) (class.TeacherOverride, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, existing := range repo.db.overrides {
		if existing.ClassID == ov.ClassID && existing.Date.Equal(ov.Date) {
			existing.TeacherID = ov.TeacherID
			existing.AssignedBy = ov.AssignedBy
			existing.UpdatedAt = ov.UpdatedAt
			return *existing, nil
		}
	}
	ov.ID = uuid.New().String()
	repo.db.overrides[ov.ID] = &ov
	return ov, nil
}

func (repo *classRepository) QueryOverrideClassIDs(ctx context.Context, teacherID string, filter class.OverrideFilter) ([]string, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	matches := func(date time.Time) bool {
		switch {
		case filter.All:
			return true
		case !filter.Start.IsZero() || !filter.End.IsZero():
			if !filter.Start.IsZero() && date.Before(filter.Start) {
				return false
			}
			if !filter.End.IsZero() && date.After(filter.End) {
				return false
			}
			return true
		default:
			target := filter.Date
			if target.IsZero() {
				target = time.Now()
			}
			return date.Equal(core.NormalizeDate(target))
		}
	}

	seen := make(map[string]bool)
	ids := make([]string, 0)
	for _, ov := range repo.db.overrides {
		if ov.TeacherID == teacherID && matches(ov.Date) && !seen[ov.ClassID] {
			seen[ov.ClassID] = true
			ids = append(ids, ov.ClassID)
		}
	}
	return ids, nil
}
