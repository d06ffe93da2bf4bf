package dig_container

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/go-redis/redis/v8"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/shule/apps/api/echo"
	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/course"
	"github.com/trezcool/shule/core/grade"
	"github.com/trezcool/shule/core/user"
	emailsvc "github.com/trezcool/shule/services/email"
	logsvc "github.com/trezcool/shule/services/logger"
	"github.com/trezcool/shule/services/ratelimit"
	"github.com/trezcool/shule/storage/database"
	inmemdb "github.com/trezcool/shule/storage/database/inmem"
	boiledrepos "github.com/trezcool/shule/storage/database/sqlboiler"
	sqlxrepos "github.com/trezcool/shule/storage/database/sqlx"
)

// MemoryEngine keeps everything in process memory; data is lost on exit.
const MemoryEngine = "memory"

type (
	DBLoggerParam struct {
		dig.In
		Logger core.Logger `name:"dbLogger"`
	}

	// Storage holds the repositories of the configured database engine.
	// SQLDB and DB are nil with the MemoryEngine.
	Storage struct {
		dig.Out
		SQLDB       *sql.DB
		DB          core.DB
		UserRepo    user.Repository
		CourseRepo  course.Repository
		GradeLoader grade.InputLoader
	}

	ServerParams struct {
		dig.In
		Conf       *core.Config
		Logger     core.Logger
		Validate   *validator.Validate
		Translator ut.Translator
		UserSvc    user.Service
		CourseSvc  course.Service
		GradeSvc   grade.Service
		ResetStore middleware.RateLimiterStore
	}
)

func newLogger(conf *core.Config) core.Logger {
	logger := logsvc.NewRollbarLogger(logsvc.NewZeroLogger(os.Stdout, conf).Component("api"), conf)
	logger.Enable(conf.RollbarToken != "" && !conf.Debug)
	return logger
}

func newDBLogger(conf *core.Config) core.Logger {
	logger := logsvc.NewRollbarLogger(logsvc.NewZeroLogger(os.Stdout, conf).Component("db"), conf)
	logger.Enable(conf.RollbarToken != "" && !conf.Debug)
	return logger
}

func newStorage(conf *core.Config, loggerParam DBLoggerParam) Storage {
	if conf.Database.Engine == MemoryEngine {
		db := inmemdb.Open()
		return Storage{
			UserRepo:    inmemdb.NewUserRepository(db),
			CourseRepo:  inmemdb.NewCourseRepository(db),
			GradeLoader: inmemdb.NewGradeLoader(db),
		}
	}

	setUp := func() (*sql.DB, error) {
		if err := database.CreateIfNotExist(context.Background(), conf); err != nil {
			return nil, err
		}

		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}

		if err = database.Migrate(db); err != nil {
			return nil, err
		}
		return db, nil
	}

	db, err := setUp()
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return Storage{
		SQLDB:       db,
		DB:          db,
		UserRepo:    boiledrepos.NewUserRepository(db),
		CourseRepo:  boiledrepos.NewCourseRepository(db),
		GradeLoader: sqlxrepos.NewGradeLoader(db),
	}
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newValidator(translator ut.Translator) *validator.Validate {
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	course.InitValidators(validate, translator)
	return validate
}

func newRedisClient(conf *core.Config, logger core.Logger) *redis.Client {
	client, err := ratelimit.NewRedisClient(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("connecting to redis: %v", err), err)
	}
	return client
}

func newResetStore(conf *core.Config, client *redis.Client) middleware.RateLimiterStore {
	return ratelimit.NewStore(client, "password-reset", conf.Server.PasswordResetRate)
}

func newServer(p ServerParams) *echoapi.Server {
	return echoapi.NewServer(echoapi.Deps{
		Conf:       p.Conf,
		Logger:     p.Logger,
		Validate:   p.Validate,
		Translator: p.Translator,
		UserSvc:    p.UserSvc,
		CourseSvc:  p.CourseSvc,
		GradeSvc:   p.GradeSvc,
		ResetStore: p.ResetStore,
	})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newStorage))
	must(c.Provide(newEmailService))
	must(c.Provide(core.NewTranslator))
	must(c.Provide(newValidator))
	must(c.Provide(newRedisClient))
	must(c.Provide(newResetStore))
	must(c.Provide(user.NewService))
	must(c.Provide(course.NewService))
	must(c.Provide(grade.NewService))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
