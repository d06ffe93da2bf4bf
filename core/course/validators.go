package course

import (
	"regexp"
	"strings"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/shule/core"
)

var (
	weightsTag  = "weights"
	weightsText = "weights must be keyed by category names (lowercase letters, digits, dashes and underscores) and be greater than 0 and at most 1"

	categoryRegex = regexp.MustCompile(`^[a-z0-9_-]+$`)

	scaleTag  = "scale"
	scaleText = "scale bands must have unique, non-empty labels of at most 20 characters and minimum percentages between 0 and 100"

	unknownCategoryText = "unknown grading category"
	noCategoriesText    = "this course has no grading categories"
	alreadyGradedText   = "this submission has already been graded"
	notEnrolledText     = "student is not enrolled in this course"
	alreadyEnrolledText = "student is already enrolled in this course"
	notAStudentText     = "user is not a student of this school"
	notATeacherText     = "user is not a teacher of this school"
)

// InitValidators registers the course validators and their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	validate.RegisterStructValidation(gradingConfigStructValidation, GradingConfig{})
	core.RegisterCustomTranslation(validate, translator, weightsTag, weightsText)
	core.RegisterCustomTranslation(validate, translator, scaleTag, scaleText)
}

// GradingConfig is a course's grading configuration as received from clients.
// An empty Weights map means flat grading; an empty Scale means no letter grades.
type GradingConfig struct {
	Weights map[string]float64 `json:"grading_weights"`
	Scale   []ScaleBand        `json:"grading_scale"`
}

func (gc *GradingConfig) clean() {
	if gc.Weights != nil {
		weights := make(map[string]float64, len(gc.Weights))
		for name, w := range gc.Weights {
			name = string(NewCategory(name))
			if _, dup := weights[name]; dup {
				weights[name] = -1 // "HW" & "hw": reported as invalid
				continue
			}
			weights[name] = w
		}
		gc.Weights = weights
	}
	for i := range gc.Scale {
		gc.Scale[i].Label = core.CleanString(gc.Scale[i].Label)
	}
}

func (gc GradingConfig) weights() map[Category]float64 {
	if len(gc.Weights) == 0 {
		return nil
	}
	weights := make(map[Category]float64, len(gc.Weights))
	for name, w := range gc.Weights {
		weights[Category(name)] = w
	}
	return weights
}

func (gc GradingConfig) scale() []ScaleBand {
	if len(gc.Scale) == 0 {
		return nil
	}
	return append([]ScaleBand(nil), gc.Scale...)
}

func (gc *GradingConfig) Validate(validate *validator.Validate) error {
	gc.clean()
	return validate.Struct(gc)
}

// gradingConfigStructValidation checks the weights and the scale bands of a GradingConfig.
func gradingConfigStructValidation(sl validator.StructLevel) {
	gc := sl.Current().Interface().(GradingConfig)

	for name, w := range gc.Weights {
		if len(name) > 50 || !categoryRegex.MatchString(name) || w <= 0 || w > 1 {
			sl.ReportError(gc.Weights, "grading_weights", "Weights", weightsTag, "")
			break
		}
	}

	labels := make(map[string]struct{}, len(gc.Scale))
	for _, band := range gc.Scale {
		_, dup := labels[band.Label]
		if dup || band.Label == "" || len(band.Label) > 20 || band.MinPercentage < 0 || band.MinPercentage > 100 {
			sl.ReportError(gc.Scale, "grading_scale", "Scale", scaleTag, "")
			break
		}
		labels[band.Label] = struct{}{}
	}
}

// NewCourse contains information needed to create a new Course.
type NewCourse struct {
	SchoolID    string `json:"-"`
	TeacherID   string `json:"teacher_id" validate:"omitempty,uuid"`
	Code        string `json:"code" validate:"required,max=50"`
	Title       string `json:"title" validate:"required,max=255"`
	Description string `json:"description"`
	GradingConfig
}

func (nc *NewCourse) Validate(validate *validator.Validate) error {
	nc.Code = strings.ToUpper(core.CleanString(nc.Code))
	nc.Title = core.CleanString(nc.Title)
	nc.Description = core.CleanString(nc.Description)
	nc.TeacherID = core.CleanString(nc.TeacherID)
	nc.GradingConfig.clean()
	return validate.Struct(nc)
}

// UpdateCourse defines what information may be provided to modify an existing Course.
// Empty fields are left unchanged.
type UpdateCourse struct {
	Code        string `json:"code" validate:"omitempty,max=50"`
	Title       string `json:"title" validate:"omitempty,max=255"`
	Description string `json:"description"`
}

func (uc *UpdateCourse) Validate(validate *validator.Validate) error {
	uc.Code = strings.ToUpper(core.CleanString(uc.Code))
	uc.Title = core.CleanString(uc.Title)
	uc.Description = core.CleanString(uc.Description)
	return validate.Struct(uc)
}

type NewEnrollment struct {
	StudentID string `json:"student_id" validate:"required,uuid"`
}

func (ne *NewEnrollment) Validate(validate *validator.Validate) error {
	ne.StudentID = core.CleanString(ne.StudentID)
	return validate.Struct(ne)
}

// NewAssignment contains information needed to create a new Assignment.
// An empty Category leaves the assignment uncategorized.
type NewAssignment struct {
	Title       string     `json:"title" validate:"required,max=255"`
	Description string     `json:"description"`
	MaxPoints   float64    `json:"max_points" validate:"gt=0"`
	Category    string     `json:"category"`
	DueAt       *time.Time `json:"due_at"`
}

func (na *NewAssignment) Validate(validate *validator.Validate) error {
	na.Title = core.CleanString(na.Title)
	na.Description = core.CleanString(na.Description)
	na.Category = string(NewCategory(na.Category))
	return validate.Struct(na)
}

// UpdateItem modifies an assignment or a quiz. A nil Category leaves it unchanged, an empty one clears it.
type UpdateItem struct {
	Title    string  `json:"title" validate:"omitempty,max=255"`
	Category *string `json:"category"`
}

func (ui *UpdateItem) Validate(validate *validator.Validate) error {
	ui.Title = core.CleanString(ui.Title)
	if ui.Category != nil {
		cat := string(NewCategory(*ui.Category))
		ui.Category = &cat
	}
	return validate.Struct(ui)
}

type NewQuestion struct {
	Prompt string  `json:"prompt" validate:"required"`
	Points float64 `json:"points" validate:"gte=0"`
}

// NewQuiz contains information needed to create a new Quiz with its questions.
type NewQuiz struct {
	Title     string        `json:"title" validate:"required,max=255"`
	Category  string        `json:"category"`
	Questions []NewQuestion `json:"questions" validate:"required,min=1,dive"`
}

func (nq *NewQuiz) Validate(validate *validator.Validate) error {
	nq.Title = core.CleanString(nq.Title)
	nq.Category = string(NewCategory(nq.Category))
	for i := range nq.Questions {
		nq.Questions[i].Prompt = core.CleanString(nq.Questions[i].Prompt)
	}
	return validate.Struct(nq)
}

type NewSubmission struct {
	Content string `json:"content" validate:"required"`
}

func (ns *NewSubmission) Validate(validate *validator.Validate) error {
	ns.Content = core.CleanString(ns.Content)
	return validate.Struct(ns)
}

// GradeSubmission sets (or clears, with a nil Grade) a submission's grade.
type GradeSubmission struct {
	Grade    *float64 `json:"grade" validate:"omitempty,gte=0"`
	Feedback string   `json:"feedback"`
}

func (gs *GradeSubmission) Validate(validate *validator.Validate) error {
	gs.Feedback = core.CleanString(gs.Feedback)
	return validate.Struct(gs)
}

// NewAttempt records a student's quiz attempt. A nil PointsEarned records an unscored attempt.
type NewAttempt struct {
	StudentID    string     `json:"student_id" validate:"required,uuid"`
	PointsEarned *float64   `json:"points_earned" validate:"omitempty,gte=0"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at"`
}

func (na *NewAttempt) Validate(validate *validator.Validate) error {
	na.StudentID = core.CleanString(na.StudentID)
	return validate.Struct(na)
}

type ScoreAttempt struct {
	PointsEarned *float64 `json:"points_earned" validate:"omitempty,gte=0"`
}

func (sa *ScoreAttempt) Validate(validate *validator.Validate) error {
	return validate.Struct(sa)
}
