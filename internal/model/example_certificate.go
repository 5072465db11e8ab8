package model

// ExampleCertStatus represents the state of an example certificate
type ExampleCertStatus string

const (
	ExampleCertStatusStarted ExampleCertStatus = "started"
	ExampleCertStatusError   ExampleCertStatus = "error"
	ExampleCertStatusSuccess ExampleCertStatus = "success"
)

// ExampleCertificate is a configuration self-test certificate for a
// course. It is keyed by an opaque uuid plus access key instead of a
// user identity and is never shown to learners.
type ExampleCertificate struct {
	BaseModel
	CourseID    int               `gorm:"not null;index" json:"course_id"`
	UUID        string            `gorm:"type:char(32);uniqueIndex;not null" json:"uuid"`
	AccessKey   string            `gorm:"type:char(32);not null" json:"-"`
	Description string            `gorm:"type:varchar(255);not null;default:''" json:"description"`
	Status      ExampleCertStatus `gorm:"type:enum('started','error','success');not null;default:started" json:"status"`
	DownloadURL string            `gorm:"type:varchar(512);not null;default:''" json:"download_url"`
	ErrorReason *string           `gorm:"type:varchar(2048)" json:"error_reason"`
}

// TableName specifies the table name for ExampleCertificate model
func (ExampleCertificate) TableName() string {
	return "example_certificates"
}
