package main

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/brijeshkumar2024/smart-attendance/core/academic"
	"github.com/brijeshkumar2024/smart-attendance/core/class"
	"github.com/brijeshkumar2024/smart-attendance/core/user"
)

const seedPassword = "ChangeMe!123"

// seed loads a small academic hierarchy, a teacher with a class
// and a handful of students. Meant for local development only.
func (cli *commandLine) seed() error {
	ctx := context.Background()
	now := time.Now().UTC()
	activeTrue := true

	mkUser := func(name, email, role, subject string) (user.User, error) {
		usr := user.User{
			Name:      name,
			Email:     email,
			Role:      role,
			Subject:   subject,
			IsActive:  &activeTrue,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if role == user.RoleTeacher {
			seq, err := cli.usrRepo.NextTeacherSeq(ctx)
			if err != nil {
				return user.User{}, err
			}
			usr.TeacherID = fmt.Sprintf("TCH%04d", seq)
		}
		if err := usr.SetPassword(seedPassword); err != nil {
			return user.User{}, err
		}
		return cli.usrRepo.UpdateOrCreateUser(ctx, usr)
	}

	admin, err := mkUser("Admin", "admin@example.com", user.RoleAdmin, "")
	if err != nil {
		return errors.Wrap(err, "seeding admin")
	}
	teacher, err := mkUser("Asha Verma", "asha.verma@example.com", user.RoleTeacher, "Data Structures")
	if err != nil {
		return errors.Wrap(err, "seeding teacher")
	}
	students := []struct{ name, email string }{
		{"Ravi Kumar", "ravi.kumar@example.com"},
		{"Neha Singh", "neha.singh@example.com"},
		{"Arjun Patel", "arjun.patel@example.com"},
	}
	for _, s := range students {
		if _, err := mkUser(s.name, s.email, user.RoleStudent, ""); err != nil {
			return errors.Wrapf(err, "seeding student %s", s.email)
		}
	}

	prog, err := cli.acadRepo.CreateProgram(ctx, academic.Program{
		Name: "Bachelor of Technology", Code: "BTECH",
		IsActive: &activeTrue, CreatedAt: now, UpdatedAt: now,
	})
	if err != nil {
		return errors.Wrap(err, "seeding program")
	}
	sess, err := cli.acadRepo.CreateSession(ctx, academic.Session{
		ProgramID: prog.ID, Label: "2026-27",
		IsActive: &activeTrue, CreatedAt: now, UpdatedAt: now,
	})
	if err != nil {
		return errors.Wrap(err, "seeding session")
	}
	branch, err := cli.acadRepo.CreateBranch(ctx, academic.Branch{
		ProgramID: prog.ID, SessionID: sess.ID,
		Name: "Computer Science", Code: "CSE",
		IsActive: &activeTrue, CreatedAt: now, UpdatedAt: now,
	})
	if err != nil {
		return errors.Wrap(err, "seeding branch")
	}
	subj, err := cli.acadRepo.CreateSubject(ctx, academic.Subject{
		ProgramID: prog.ID, SessionID: sess.ID, BranchID: branch.ID,
		Semester: 3, Name: "Data Structures", Code: "CS301",
		IsActive: &activeTrue, CreatedAt: now, UpdatedAt: now,
	})
	if err != nil {
		return errors.Wrap(err, "seeding subject")
	}

	cls, err := cli.clsRepo.CreateClass(ctx, class.Class{
		Name:       "BTECH | 2026-27 | CSE | Sem 3 | Group 1",
		Subject:    subj.Name,
		TeacherID:  teacher.ID,
		ProgramID:  prog.ID,
		SessionID:  sess.ID,
		BranchID:   branch.ID,
		SubjectID:  subj.ID,
		Semester:   3,
		GroupLabel: "1",
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		return errors.Wrap(err, "seeding class")
	}

	logger.Printf("seeded admin=%s teacher=%s class=%s", admin.Email, teacher.Email, cls.Name)
	return nil
}
