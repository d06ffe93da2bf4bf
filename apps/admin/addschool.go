package main

import (
	"context"
	"fmt"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/user"
)

func (cli *commandLine) addSchool(name string) error {
	school, err := cli.usrRepo.CreateSchool(context.Background(), user.School{Name: core.CleanString(name)})
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "school %q created: %s\n", school.Name, school.ID)
	return nil
}
