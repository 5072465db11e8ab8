package certificate

import (
	"context"
	"errors"
	"fmt"

	"go_certmgr/internal/model"
	"go_certmgr/internal/xqueue"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Sentinel errors for example certificate callbacks
var (
	// ErrExampleNotFound means no record matches (uuid, access key).
	// Indistinguishable from a brute-force probe, so callers count it
	// toward the abuse limiter.
	ErrExampleNotFound = errors.New("example certificate not found")

	// ErrMissingDownloadURL means a success payload arrived without a
	// url field. Malformed, so it also counts toward the limiter.
	ErrMissingDownloadURL = errors.New("download_url is required for successfully generated certificates")
)

// ExampleService owns example certificates: configuration self-tests
// that run the full generation pipeline without a learner attached.
type ExampleService struct {
	db          *gorm.DB
	queue       JobQueue
	callbackURL string
	logger      *logrus.Entry
}

// NewExampleService creates an example certificate service.
// callbackURL is the absolute URL for example certificate callbacks.
func NewExampleService(db *gorm.DB, queue JobQueue, callbackURL string) *ExampleService {
	return &ExampleService{
		db:          db,
		queue:       queue,
		callbackURL: callbackURL,
		logger:      logrus.WithField("component", "example_certificates"),
	}
}

// Start creates an example certificate for the course and enqueues its
// generation job. The record is keyed by a fresh uuid + access key
// pair instead of a user identity.
func (s *ExampleService) Start(ctx context.Context, course model.Course, description string) (*model.ExampleCertificate, error) {
	cert := &model.ExampleCertificate{
		CourseID:    course.ID,
		UUID:        NewAccessKey(),
		AccessKey:   NewAccessKey(),
		Description: description,
		Status:      model.ExampleCertStatusStarted,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(cert).Error; err != nil {
			return fmt.Errorf("failed to create example certificate: %w", err)
		}

		job := xqueue.Job{
			Action:      "example",
			AccessKey:   cert.AccessKey,
			CallbackURL: s.callbackURL,
			Body: map[string]interface{}{
				"username":  cert.UUID,
				"course_id": course.CourseKey,
				"name":      "John Doë",
			},
		}
		if err := s.queue.Enqueue(ctx, job); err != nil {
			return fmt.Errorf("failed to enqueue example job: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"uuid":   cert.UUID,
		"course": course.CourseKey,
	}).Info("example certificate started")
	return cert, nil
}

// UpdateFromCallback applies a worker callback to the example
// certificate matching (uuid, access key). Example certificates
// terminate at success or error; they are never shown to learners.
func (s *ExampleService) UpdateFromCallback(ctx context.Context, origin string, h Header, cb ExampleCallback) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cert model.ExampleCertificate
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("uuid = ? AND access_key = ?", cb.UUID, h.LMSKey).
			First(&cert).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrExampleNotFound
			}
			return err
		}

		switch r := cb.Result.(type) {
		case Failure:
			updates := map[string]interface{}{"status": model.ExampleCertStatusError}
			if r.ErrorReason != nil {
				updates["error_reason"] = *r.ErrorReason
			}
			if err := tx.Model(&cert).Updates(updates).Error; err != nil {
				return err
			}
			s.logger.WithFields(logrus.Fields{
				"uuid":   cb.UUID,
				"reason": r.ErrorReason,
			}).Warn("error occurred during example certificate generation")
			return nil
		case Success:
			if r.URL == "" {
				return ErrMissingDownloadURL
			}
			if err := tx.Model(&cert).Updates(map[string]interface{}{
				"status":       model.ExampleCertStatusSuccess,
				"download_url": r.URL,
			}).Error; err != nil {
				return err
			}
			s.logger.WithField("uuid", cb.UUID).Info("successfully updated example certificate")
			return nil
		}
		return fmt.Errorf("unknown callback result type")
	})

	switch {
	case errors.Is(err, ErrExampleNotFound):
		s.logger.WithFields(logrus.Fields{
			"uuid":   cb.UUID,
			"origin": origin,
		}).Error("could not find example certificate for uuid and access key")
		auditReject(s.db, s.logger, "update_example_certificate", model.AuditReasonExampleUnknown, origin, h, cb)
		return err
	case errors.Is(err, ErrMissingDownloadURL):
		s.logger.WithFields(logrus.Fields{
			"uuid":   cb.UUID,
			"origin": origin,
		}).Warn("no download URL provided for example certificate")
		auditReject(s.db, s.logger, "update_example_certificate", model.AuditReasonMalformed, origin, h, cb)
		return err
	}
	return err
}

// List returns the example certificates for a course, newest first
func (s *ExampleService) List(ctx context.Context, courseID int) ([]model.ExampleCertificate, error) {
	var certs []model.ExampleCertificate
	err := s.db.WithContext(ctx).
		Where("course_id = ?", courseID).
		Order("id DESC").
		Find(&certs).Error
	if err != nil {
		return nil, err
	}
	return certs, nil
}
