package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"syscall"

	"golang.org/x/term"

	"github.com/trezcool/shule/core/grade"
	"github.com/trezcool/shule/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db       *sql.DB
	usrRepo  user.Repository
	gradeSvc grade.Service
	out      io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS] - run a database migration command (up, down, status, redo, version...)")
	fmt.Fprintln(cli.out, "  addschool -name NAME - create a school")
	fmt.Fprintln(cli.out, "  adduser -school ID -username USERNAME -email EMAIL [-name NAME] [-role admin|teacher|student] - create or update a user")
	fmt.Fprintln(cli.out, "  resetpassword -username USERNAME|EMAIL - reset user's password")
	fmt.Fprintln(cli.out, "  exportgradebook -school ID -course ID [-format csv|xlsx] [-o FILE] - export a course gradebook")
}

func (cli *commandLine) readPassword(usage func()) (string, error) {
	fmt.Fprint(cli.out, "Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Fprintln(cli.out)
	if err != nil {
		return "", err
	}
	if len(pwd) == 0 {
		usage()
		return "", errHelp
	}
	return string(pwd), nil
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addSchoolCmd := flag.NewFlagSet("addschool", flag.ContinueOnError)
	addSchoolName := addSchoolCmd.String("name", "", "The school's name.")

	addUserCmd := flag.NewFlagSet("adduser", flag.ContinueOnError)
	addUserSchool := addUserCmd.String("school", "", "The ID of the user's school.")
	addUserUname := addUserCmd.String("username", "", "The user's username.")
	addUserEmail := addUserCmd.String("email", "", "The user's email.")
	addUserName := addUserCmd.String("name", "", "The user's full name.")
	addUserRole := addUserCmd.String("role", roleAdmin, "The user's role: admin, teacher or student. The password will be prompted next.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
	resetPasswordUname := resetPasswordCmd.String("username", "", "The user's username or email. The password will be prompted next.")

	exportCmd := flag.NewFlagSet("exportgradebook", flag.ContinueOnError)
	exportSchool := exportCmd.String("school", "", "The ID of the course's school.")
	exportCourse := exportCmd.String("course", "", "The course ID.")
	exportFormat := exportCmd.String("format", grade.FormatCSV, "The export format: csv or xlsx.")
	exportOut := exportCmd.String("o", "", "The output file. Defaults to a file named after the course, in the current directory.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "addschool":
		if err := addSchoolCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addSchoolName == "" {
			addSchoolCmd.Usage()
			return errHelp
		}
		return cli.addSchool(*addSchoolName)

	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addUserSchool == "" || (*addUserUname == "" && *addUserEmail == "") {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := cli.readPassword(addUserCmd.Usage)
		if err != nil {
			return err
		}
		return cli.addUser(*addUserSchool, *addUserName, *addUserUname, *addUserEmail, pwd, *addUserRole)

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordUname == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := cli.readPassword(resetPasswordCmd.Usage)
		if err != nil {
			return err
		}
		return cli.resetPassword(*resetPasswordUname, pwd)

	case "exportgradebook":
		if err := exportCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *exportSchool == "" || *exportCourse == "" {
			exportCmd.Usage()
			return errHelp
		}
		return cli.exportGradebook(*exportSchool, *exportCourse, *exportFormat, *exportOut)

	default:
		cli.printUsage()
		return errHelp
	}
}
