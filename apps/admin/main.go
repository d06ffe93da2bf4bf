package main

import (
	"context"
	"fmt"
	"os"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/grade"
	emailsvc "github.com/trezcool/shule/services/email"
	logsvc "github.com/trezcool/shule/services/logger"
	"github.com/trezcool/shule/storage/database"
	boiledrepos "github.com/trezcool/shule/storage/database/sqlboiler"
	sqlxrepos "github.com/trezcool/shule/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewZeroLogger(os.Stderr, conf).Component("admin")

	if conf.Database.Engine == "memory" {
		logger.Fatal("the admin CLI needs a persistent database engine")
	}

	// set up DB
	if err := database.CreateIfNotExist(context.Background(), conf); err != nil {
		logger.Fatal(fmt.Sprintf("creating database: %v", err), err)
	}
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}
	defer db.Close()

	// start CLI
	usrRepo := boiledrepos.NewUserRepository(db)
	courseRepo := boiledrepos.NewCourseRepository(db)
	cli := commandLine{
		db:       db,
		usrRepo:  usrRepo,
		gradeSvc: grade.NewService(sqlxrepos.NewGradeLoader(db), courseRepo, usrRepo, emailsvc.NewConsoleService(conf, logger)),
		out:      os.Stdout,
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Error(err.Error(), err)
		}
		db.Close()
		os.Exit(1)
	}
}
