package model

import "gorm.io/datatypes"

// CertificateHTMLConfig holds deployment-wide static values for the
// rendered certificate page (company name, verify URL prefix and so on).
// Only the newest enabled row is consulted.
type CertificateHTMLConfig struct {
	BaseModel
	Enabled bool           `gorm:"not null;default:false" json:"enabled"`
	Config  datatypes.JSON `gorm:"type:json" json:"config"`
}

// TableName specifies the table name for CertificateHTMLConfig model
func (CertificateHTMLConfig) TableName() string {
	return "certificate_html_configs"
}
