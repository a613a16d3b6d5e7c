package dummydb

import (
	"context"

	"github.com/google/uuid"

	"github.com/brijeshkumar2024/smart-attendance/core/attendance"
)

type auditRepository struct {
	db *auditTable
}

var _ attendance.AuditRepository = (*auditRepository)(nil) // interface compliance check

func NewAuditRepository(db *DB) *auditRepository {
	return &auditRepository{db: db.audit}
}

func (repo *auditRepository) CreateAuditEntry(ctx context.Context, entry attendance.AuditEntry) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	entry.ID = uuid.New().String()
	repo.db.entries = append(repo.db.entries, entry)
	return nil
}

func (repo *auditRepository) QueryAudit(ctx context.Context, limit int) ([]attendance.AuditEntry, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	// newest first
	entries := make([]attendance.AuditEntry, 0, limit)
	for i := len(repo.db.entries) - 1; i >= 0 && len(entries) < limit; i-- {
		entries = append(entries, repo.db.entries[i])
	}
	return entries, nil
}
