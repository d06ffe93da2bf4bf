package grade

import (
	"bytes"
	"context"
	"fmt"
	"net/mail"
	"sort"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/course"
	"github.com/trezcool/shule/core/user"
)

// maxConcurrentLookups bounds the concurrent student lookups of a gradebook.
const maxConcurrentLookups = 8

type (
	// Items are the gradable items of a course.
	Items struct {
		Assignments   []course.Assignment
		Quizzes       []course.Quiz
		QuizMaxPoints map[string]float64
	}

	// InputLoader bulk loads what Compute needs.
	InputLoader interface {
		LoadItems(ctx context.Context, courseID string) (Items, error)
		// LoadWork returns the submissions and attempts of the given students in the course.
		LoadWork(ctx context.Context, courseID string, studentIDs []string) ([]course.Submission, []course.Attempt, error)
	}

	Row struct {
		StudentID string `json:"student_id"`
		Name      string `json:"name"`
		Username  string `json:"username"`
		Result
	}

	Gradebook struct {
		Course      course.Course `json:"course"`
		Rows        []Row         `json:"rows"`
		GeneratedAt time.Time     `json:"generated_at"`
	}

	Service interface {
		StudentGrade(ctx context.Context, schoolID, courseID, studentID string) (Result, error)
		Gradebook(ctx context.Context, schoolID, courseID string) (Gradebook, error)
		// EmailGradebook sends the course gradebook to recipient as an XLSX attachment.
		EmailGradebook(ctx context.Context, gb Gradebook, recipient user.User) error
	}

	service struct {
		loader     InputLoader
		courseRepo course.Repository
		usrRepo    user.Repository
		mailSvc    core.EmailService
	}
)

var _ Service = (*service)(nil) // interface compliance check

func NewService(loader InputLoader, courseRepo course.Repository, usrRepo user.Repository, mailSvc core.EmailService) Service {
	return &service{
		loader:     loader,
		courseRepo: courseRepo,
		usrRepo:    usrRepo,
		mailSvc:    mailSvc,
	}
}

func newInput(c course.Course, items Items, subs []course.Submission, attempts []course.Attempt) Input {
	return Input{
		Course:        c,
		Assignments:   items.Assignments,
		Quizzes:       items.Quizzes,
		QuizMaxPoints: items.QuizMaxPoints,
		Submissions:   subs,
		Attempts:      attempts,
	}
}

// StudentGrade computes the student's current grade in the course.
func (svc *service) StudentGrade(ctx context.Context, schoolID, courseID, studentID string) (Result, error) {
	c, err := svc.courseRepo.GetCourse(ctx, course.GetFilter{ID: courseID, SchoolID: schoolID})
	if err != nil {
		return Result{}, err
	}
	enrolled, err := svc.courseRepo.IsEnrolled(ctx, c.ID, studentID)
	if err != nil {
		return Result{}, errors.Wrap(err, "checking enrollment")
	}
	if !enrolled {
		return Result{}, course.ErrNotEnrolled
	}

	items, err := svc.loader.LoadItems(ctx, c.ID)
	if err != nil {
		return Result{}, errors.Wrap(err, "loading course items")
	}
	subs, attempts, err := svc.loader.LoadWork(ctx, c.ID, []string{studentID})
	if err != nil {
		return Result{}, errors.Wrap(err, "loading student work")
	}
	return Compute(newInput(c, items, subs, attempts)), nil
}

// Gradebook computes the grade of every student enrolled in the course. Rows are sorted by name.
func (svc *service) Gradebook(ctx context.Context, schoolID, courseID string) (Gradebook, error) {
	c, err := svc.courseRepo.GetCourse(ctx, course.GetFilter{ID: courseID, SchoolID: schoolID})
	if err != nil {
		return Gradebook{}, err
	}
	gb := Gradebook{Course: c, GeneratedAt: time.Now().UTC()}

	enrollments, err := svc.courseRepo.QueryEnrollments(ctx, c.ID)
	if err != nil {
		return Gradebook{}, errors.Wrap(err, "querying enrollments")
	}
	if len(enrollments) == 0 {
		gb.Rows = []Row{}
		return gb, nil
	}
	studentIDs := make([]string, len(enrollments))
	for i, e := range enrollments {
		studentIDs[i] = e.StudentID
	}

	items, err := svc.loader.LoadItems(ctx, c.ID)
	if err != nil {
		return Gradebook{}, errors.Wrap(err, "loading course items")
	}
	subs, attempts, err := svc.loader.LoadWork(ctx, c.ID, studentIDs)
	if err != nil {
		return Gradebook{}, errors.Wrap(err, "loading student work")
	}
	subsByStudent := make(map[string][]course.Submission, len(studentIDs))
	for _, s := range subs {
		subsByStudent[s.StudentID] = append(subsByStudent[s.StudentID], s)
	}
	attemptsByStudent := make(map[string][]course.Attempt, len(studentIDs))
	for _, a := range attempts {
		attemptsByStudent[a.StudentID] = append(attemptsByStudent[a.StudentID], a)
	}

	// each goroutine owns its index
	rows := make([]Row, len(studentIDs))
	found := make([]bool, len(studentIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentLookups)
	for i, studentID := range studentIDs {
		i, studentID := i, studentID
		g.Go(func() error {
			student, err := svc.usrRepo.GetUser(gctx, user.GetFilter{ID: studentID})
			if err != nil {
				if errors.Cause(err) == user.ErrNotFound {
					return nil
				}
				return errors.Wrapf(err, "finding student %s", studentID)
			}
			rows[i] = Row{
				StudentID: student.ID,
				Name:      student.Name,
				Username:  student.Username,
				Result:    Compute(newInput(c, items, subsByStudent[studentID], attemptsByStudent[studentID])),
			}
			found[i] = true
			return nil
		})
	}
	if err = g.Wait(); err != nil {
		return Gradebook{}, err
	}

	gb.Rows = make([]Row, 0, len(rows))
	for i, row := range rows {
		if found[i] {
			gb.Rows = append(gb.Rows, row)
		}
	}
	sort.SliceStable(gb.Rows, func(i, j int) bool {
		if gb.Rows[i].Name == gb.Rows[j].Name {
			return gb.Rows[i].Username < gb.Rows[j].Username
		}
		return gb.Rows[i].Name < gb.Rows[j].Name
	})
	return gb, nil
}

func (svc *service) EmailGradebook(ctx context.Context, gb Gradebook, recipient user.User) error {
	if recipient.Email == "" {
		return core.NewValidationError(errors.New("recipient has no email address"))
	}

	var buf bytes.Buffer
	if err := WriteXLSX(&buf, gb); err != nil {
		return errors.Wrap(err, "writing gradebook")
	}
	msg := &core.EmailMessage{
		To:           []mail.Address{{Name: recipient.Name, Address: recipient.Email}},
		Subject:      fmt.Sprintf("Gradebook: %s", gb.Course.Title),
		TemplateName: "gradebook_export",
		TemplateData: map[string]interface{}{
			"Name":     recipient.Name,
			"Course":   gb.Course.Title,
			"Students": len(gb.Rows),
		},
	}
	if err := msg.Attach(&buf, ExportFilename(gb, FormatXLSX), XLSXContentType); err != nil {
		return errors.Wrap(err, "attaching gradebook")
	}
	svc.mailSvc.SendMessages(msg)
	return nil
}
