// Package grade computes students' course grades from their graded work.
package grade

import (
	"math"
	"sort"

	"github.com/trezcool/shule/core/course"
)

// NotAvailable is the letter grade of a course without a grading scale.
const NotAvailable = "N/A"

// Input is everything Compute needs to grade one student in one course.
// Submissions and Attempts must belong to that student.
type Input struct {
	Course        course.Course
	Assignments   []course.Assignment
	Quizzes       []course.Quiz
	QuizMaxPoints map[string]float64 // quiz ID -> max points
	Submissions   []course.Submission
	Attempts      []course.Attempt
}

type Result struct {
	Percentage  float64 `json:"percentage"`
	LetterGrade string  `json:"letter_grade"`
	IsWeighted  bool    `json:"is_weighted"`
}

// item is a gradable assignment or quiz with its best graded score.
type item struct {
	category *course.Category
	earned   float64
	possible float64
}

// Compute aggregates the student's graded assignments and quizzes into a course grade.
//
// Ungraded items (no submission grade, no scored attempt) count neither as earned nor as possible points.
// A quiz counts its best scored attempt.
// Weighted courses average the percentage of each category having graded items, by category weight;
// uncategorized items and items of unweighted categories are left out.
// Other courses divide the total earned points by the total possible points.
// The letter grade is looked up on the exact percentage, which is then rounded to one decimal place.
//
// Compute is pure: it never fails and is safe for concurrent use.
func Compute(in Input) Result {
	items := gradedItems(in)

	var pct float64
	isWeighted := in.Course.IsWeighted()
	if isWeighted {
		pct = weightedPercentage(in.Course.GradingWeights, items)
	} else {
		pct = flatPercentage(items)
	}

	return Result{
		Percentage:  Round1(pct),
		LetterGrade: LetterFor(in.Course.GradingScale, pct),
		IsWeighted:  isWeighted,
	}
}

func gradedItems(in Input) []item {
	items := make([]item, 0, len(in.Assignments)+len(in.Quizzes))

	grades := make(map[string]float64, len(in.Submissions))
	for _, s := range in.Submissions {
		if s.Grade == nil {
			continue
		}
		if _, seen := grades[s.AssignmentID]; !seen {
			grades[s.AssignmentID] = *s.Grade
		}
	}
	for _, a := range in.Assignments {
		if earned, ok := grades[a.ID]; ok {
			items = append(items, item{category: a.Category, earned: earned, possible: a.MaxPoints})
		}
	}

	best := make(map[string]float64, len(in.Attempts))
	for _, at := range in.Attempts {
		if at.PointsEarned == nil {
			continue
		}
		if pts, seen := best[at.QuizID]; !seen || *at.PointsEarned > pts {
			best[at.QuizID] = *at.PointsEarned
		}
	}
	for _, q := range in.Quizzes {
		if earned, ok := best[q.ID]; ok {
			items = append(items, item{category: q.Category, earned: earned, possible: in.QuizMaxPoints[q.ID]})
		}
	}
	return items
}

func flatPercentage(items []item) float64 {
	var earned, possible float64
	for _, it := range items {
		earned += it.earned
		possible += it.possible
	}
	if possible <= 0 {
		return 0
	}
	return earned / possible * 100
}

func weightedPercentage(weights map[course.Category]float64, items []item) float64 {
	type totals struct{ earned, possible float64 }
	byCategory := make(map[course.Category]*totals, len(weights))
	for _, it := range items {
		if it.category == nil {
			continue
		}
		if _, weighted := weights[*it.category]; !weighted {
			continue
		}
		t, ok := byCategory[*it.category]
		if !ok {
			t = new(totals)
			byCategory[*it.category] = t
		}
		t.earned += it.earned
		t.possible += it.possible
	}

	// iterate in a fixed order so float sums are reproducible
	cats := make([]course.Category, 0, len(weights))
	for cat := range weights {
		cats = append(cats, cat)
	}
	sort.Slice(cats, func(i, j int) bool { return cats[i] < cats[j] })

	var total, weightSum float64
	for _, cat := range cats {
		t, ok := byCategory[cat]
		if !ok || t.possible <= 0 {
			continue
		}
		total += (t.earned / t.possible * 100) * weights[cat]
		weightSum += weights[cat]
	}
	if weightSum <= 0 {
		return 0
	}
	return total / weightSum
}

// LetterFor returns the label of the highest band whose minimum is at most pct.
// Below every band, the lowest band's label applies. Without a scale, NotAvailable.
func LetterFor(scale []course.ScaleBand, pct float64) string {
	if len(scale) == 0 {
		return NotAvailable
	}

	bands := append([]course.ScaleBand(nil), scale...)
	sort.SliceStable(bands, func(i, j int) bool { return bands[i].MinPercentage > bands[j].MinPercentage })
	for _, band := range bands {
		if band.MinPercentage <= pct {
			return band.Label
		}
	}
	return bands[len(bands)-1].Label
}

// Round1 rounds f to one decimal place, halves away from zero.
func Round1(f float64) float64 {
	return math.Round(f*10) / 10
}
