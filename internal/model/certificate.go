package model

// CertStatus represents the lifecycle state of a generated certificate.
//
// State transitions on a worker callback:
//
//	generating, regenerating --success--> downloadable
//	generating, regenerating --error----> error
//	deleting                 --success--> deleted
//	deleting                 --error----> error
//
// A callback arriving in any other state is rejected without mutating
// the record. Submission is allowed only from unavailable, notpassing
// and error.
type CertStatus string

const (
	CertStatusUnavailable  CertStatus = "unavailable"
	CertStatusNotPassing   CertStatus = "notpassing"
	CertStatusError        CertStatus = "error"
	CertStatusGenerating   CertStatus = "generating"
	CertStatusRegenerating CertStatus = "regenerating"
	CertStatusDownloadable CertStatus = "downloadable"
	CertStatusDeleting     CertStatus = "deleting"
	CertStatusDeleted      CertStatus = "deleted"
)

// GeneratedCertificate is the authoritative certificate record for a
// (user, course) pair. AccessKey is rotated on every enqueue and is
// valid for exactly one outstanding job.
type GeneratedCertificate struct {
	BaseModel
	UserID       int        `gorm:"not null;uniqueIndex:uniq_generated_certificates_user_course" json:"user_id"`
	CourseID     int        `gorm:"not null;uniqueIndex:uniq_generated_certificates_user_course" json:"course_id"`
	Status       CertStatus `gorm:"type:enum('unavailable','notpassing','error','generating','regenerating','downloadable','deleting','deleted');not null;default:unavailable;index" json:"status"`
	AccessKey    string     `gorm:"type:char(32);not null;default:'';index" json:"-"`
	DownloadUUID string     `gorm:"type:char(32);not null;default:''" json:"download_uuid"`
	VerifyUUID   string     `gorm:"type:char(32);not null;default:''" json:"verify_uuid"`
	DownloadURL  string     `gorm:"type:varchar(512);not null;default:''" json:"download_url"`
	Grade        string     `gorm:"type:varchar(16);not null;default:''" json:"grade"`
	ErrorReason  *string    `gorm:"type:varchar(2048)" json:"error_reason"`
}

// TableName specifies the table name for GeneratedCertificate model
func (GeneratedCertificate) TableName() string {
	return "generated_certificates"
}
