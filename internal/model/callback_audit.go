package model

import (
	"time"

	"gorm.io/datatypes"
)

// Audit reasons for rejected callbacks
const (
	AuditReasonLookupFailed   = "lookup_failed"
	AuditReasonInvalidState   = "invalid_state"
	AuditReasonMalformed      = "malformed"
	AuditReasonRateLimited    = "rate_limited"
	AuditReasonExampleUnknown = "example_not_found"
)

// CallbackAudit records a rejected worker callback with its full payload
// so forged or stale requests can be reviewed after the fact.
type CallbackAudit struct {
	ID        int            `gorm:"primaryKey;autoIncrement" json:"id"`
	Endpoint  string         `gorm:"type:varchar(64);not null;index" json:"endpoint"`
	Reason    string         `gorm:"type:varchar(32);not null;index" json:"reason"`
	Origin    string         `gorm:"type:varchar(64);not null;default:''" json:"origin"`
	Payload   datatypes.JSON `gorm:"type:json" json:"payload"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
}

// TableName specifies the table name for CallbackAudit model
func (CallbackAudit) TableName() string {
	return "callback_audits"
}
