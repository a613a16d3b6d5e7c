package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/brijeshkumar2024/smart-attendance/core"
	"github.com/brijeshkumar2024/smart-attendance/core/class"
	"github.com/brijeshkumar2024/smart-attendance/core/user"
)

// NopLogger discards all log output.
type NopLogger struct{}

var _ core.Logger = (*NopLogger)(nil)

func (NopLogger) Debug(msg string, args ...interface{}) {}
func (NopLogger) Info(msg string, args ...interface{})  {}
func (NopLogger) Warn(msg string, args ...interface{})  {}
func (NopLogger) Error(msg string, args ...interface{}) {}
func (NopLogger) Fatal(msg string, args ...interface{}) {}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, email, role, pwd string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Email:     email,
		Role:      role,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	usr.SetActive(isActive)
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func CreateClass(
	t *testing.T,
	repo class.Repository,
	name, subject, teacherID string,
) class.Class {
	t.Helper()
	now := time.Now().UTC()
	cls, err := repo.CreateClass(context.Background(), class.Class{
		Name:      name,
		Subject:   subject,
		TeacherID: teacherID,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("CreateClass() failed: %v", err)
	}
	return cls
}
