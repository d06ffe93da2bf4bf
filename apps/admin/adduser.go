package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/user"
)

const (
	roleAdmin   = "admin"
	roleTeacher = "teacher"
	roleStudent = "student"
)

var errUnknownRole = errors.New("role must be one of admin, teacher, student")

func rolesFor(role string) ([]string, error) {
	switch role {
	case roleAdmin:
		return user.AllRoles, nil
	case roleTeacher:
		return user.TeacherRoles, nil
	case roleStudent:
		return user.StudentRoles, nil
	default:
		return nil, errUnknownRole
	}
}

// addUser updates or creates a user.User of the given school
func (cli *commandLine) addUser(schoolID, name, uname, email, pwd, role string) error {
	ctx := context.Background()
	uname = core.CleanString(uname, true /* lower */)
	email = core.CleanString(email, true /* lower */)

	roles, err := rolesFor(role)
	if err != nil {
		return err
	}
	if _, err := cli.usrRepo.GetSchool(ctx, schoolID); err != nil {
		return err
	}

	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{UsernameOrEmail: []string{uname, email}})
	switch {
	case err == nil:
		if usr.SchoolID != schoolID {
			return errors.Errorf("user %q belongs to another school", usr.Username)
		}
	case errors.Cause(err) == user.ErrNotFound:
		usr = user.User{
			SchoolID: schoolID,
			Username: uname,
			Email:    email,
		}
	default:
		return err
	}

	if name != "" {
		usr.Name = core.CleanString(name)
	}
	usr.Roles = roles
	usr.SetActive(true)
	if err := usr.SetPassword(pwd); err != nil {
		return err
	}
	if usr, err = cli.usrRepo.UpdateOrCreateUser(ctx, usr); err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "user %q saved: %s\n", usr.Username, usr.ID)
	return nil
}
