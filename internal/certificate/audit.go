package certificate

import (
	"encoding/json"

	"go_certmgr/internal/model"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AuditRaw persists a rejected callback whose form fields never parsed,
// keyed by the raw form values. Handlers use it for malformed and
// rate-limited requests that are turned away before the payload layer.
func AuditRaw(db *gorm.DB, endpoint, reason, origin, rawHeader, rawBody string) {
	logger := logrus.WithField("component", "certificates")
	record := map[string]interface{}{
		"xqueue_header": rawHeader,
		"xqueue_body":   rawBody,
	}
	raw, err := json.Marshal(record)
	if err != nil {
		logger.WithField("err", err).Error("failed to marshal callback audit payload")
		return
	}

	entry := model.CallbackAudit{
		Endpoint: endpoint,
		Reason:   reason,
		Origin:   origin,
		Payload:  datatypes.JSON(raw),
	}
	if err := db.Create(&entry).Error; err != nil {
		logger.WithField("err", err).Error("failed to persist callback audit")
	}
}

// auditReject persists a rejected callback with its full payload for
// forensic review. Audits are written outside the callback transaction
// so rejections survive its rollback.
func auditReject(db *gorm.DB, logger *logrus.Entry, endpoint, reason, origin string, h Header, payload interface{}) {
	record := map[string]interface{}{
		"xqueue_header": h,
		"xqueue_body":   payload,
	}
	raw, err := json.Marshal(record)
	if err != nil {
		logger.WithField("err", err).Error("failed to marshal callback audit payload")
		return
	}

	entry := model.CallbackAudit{
		Endpoint: endpoint,
		Reason:   reason,
		Origin:   origin,
		Payload:  datatypes.JSON(raw),
	}
	if err := db.Create(&entry).Error; err != nil {
		logger.WithField("err", err).Error("failed to persist callback audit")
	}
}
