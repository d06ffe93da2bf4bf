package main

import (
	"context"
	"fmt"
	"os"

	"github.com/trezcool/shule/core/grade"
)

// exportGradebook writes the gradebook of a course to path, or to a file named after the course if path is empty.
func (cli *commandLine) exportGradebook(schoolID, courseID, format, path string) (err error) {
	if _, err = grade.ContentType(format); err != nil {
		return err
	}

	gb, err := cli.gradeSvc.Gradebook(context.Background(), schoolID, courseID)
	if err != nil {
		return err
	}
	if path == "" {
		path = grade.ExportFilename(gb, format)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cErr := f.Close(); err == nil {
			err = cErr
		}
	}()

	if err = grade.Export(f, gb, format); err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "gradebook of %s exported to %s (%d students)\n", gb.Course.Code, path, len(gb.Rows))
	return nil
}
