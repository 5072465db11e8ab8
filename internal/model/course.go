package model

// Course represents a course run that can issue completion certificates
type Course struct {
	BaseModel
	CourseKey   string `gorm:"type:varchar(255);uniqueIndex;not null" json:"course_key"` // org/number/run
	DisplayName string `gorm:"type:varchar(255);not null" json:"display_name"`
	Org         string `gorm:"type:varchar(64);not null" json:"org"`
	Number      string `gorm:"type:varchar(64);not null" json:"number"`
}

// TableName specifies the table name for Course model
func (Course) TableName() string {
	return "courses"
}

// CourseGrade holds the latest computed grade for a user in a course.
// Rows are written by the grading pipeline; this service only reads them.
type CourseGrade struct {
	BaseModel
	UserID   int     `gorm:"not null;uniqueIndex:uniq_course_grades_user_course" json:"user_id"`
	CourseID int     `gorm:"not null;uniqueIndex:uniq_course_grades_user_course" json:"course_id"`
	Percent  float64 `gorm:"not null;default:0" json:"percent"`
	Grade    string  `gorm:"type:varchar(16)" json:"grade"`
	Passed   bool    `gorm:"not null;default:false" json:"passed"`
}

// TableName specifies the table name for CourseGrade model
func (CourseGrade) TableName() string {
	return "course_grades"
}
