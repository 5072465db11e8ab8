package grades

import (
	"context"
	"errors"

	"go_certmgr/internal/model"

	"gorm.io/gorm"
)

// Result is the outcome of grading a user for a course
type Result struct {
	Passed  bool
	Grade   string
	Percent float64
}

// Grader computes whether a user currently passes a course. The grading
// pipeline itself is external; implementations only read its output.
type Grader interface {
	Grade(ctx context.Context, userID, courseID int) (Result, error)
}

// DBGrader reads the latest persisted grade row for the user
type DBGrader struct {
	db *gorm.DB
}

// NewDBGrader creates a grader backed by the course_grades table
func NewDBGrader(db *gorm.DB) *DBGrader {
	return &DBGrader{db: db}
}

// Grade returns the stored grade for (userID, courseID). A user with no
// grade row has not been graded yet and counts as not passing.
func (g *DBGrader) Grade(ctx context.Context, userID, courseID int) (Result, error) {
	var row model.CourseGrade
	err := g.db.WithContext(ctx).
		Where("user_id = ? AND course_id = ?", userID, courseID).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Result{}, nil
		}
		return Result{}, err
	}

	return Result{
		Passed:  row.Passed,
		Grade:   row.Grade,
		Percent: row.Percent,
	}, nil
}
