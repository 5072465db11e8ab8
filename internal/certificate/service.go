package certificate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go_certmgr/internal/grades"
	"go_certmgr/internal/model"
	"go_certmgr/internal/xqueue"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Sentinel errors for callback handling. Both map to a structured
// rejection at the boundary, never to a 5xx.
var (
	// ErrNotFoundForKey means no record matches (username, course,
	// access key) - a stale, duplicate or forged callback.
	ErrNotFoundForKey = errors.New("unable to lookup key")

	// ErrInvalidState means the record exists but its state does not
	// accept callbacks, typically a duplicate delivery racing a
	// finished one.
	ErrInvalidState = errors.New("invalid cert status")
)

// JobQueue enqueues jobs to the external worker queue
type JobQueue interface {
	Enqueue(ctx context.Context, job xqueue.Job) error
}

// EventPublisher receives status transitions for operational feeds
type EventPublisher interface {
	PublishStatus(username, courseKey string, status model.CertStatus)
}

// SubmitKind classifies the outcome of a certificate request
type SubmitKind int

const (
	// SubmitEnqueued means a generation job was handed to the queue
	SubmitEnqueued SubmitKind = iota
	// SubmitAlreadyInProgress means a job is already outstanding
	SubmitAlreadyInProgress
	// SubmitNotEligible means the state or grade forbids a new job
	SubmitNotEligible
)

// SubmitResult is the synchronous acknowledgement of a request; the
// final outcome arrives later via callback
type SubmitResult struct {
	Kind   SubmitKind
	Status model.CertStatus
}

// Service owns the certificate state machine for learner certificates
type Service struct {
	db          *gorm.DB
	queue       JobQueue
	grader      grades.Grader
	callbackURL string
	logger      *logrus.Entry
	events      EventPublisher
}

// NewService creates a certificate service. callbackURL is the absolute
// URL the worker posts results back to.
func NewService(db *gorm.DB, queue JobQueue, grader grades.Grader, callbackURL string) *Service {
	return &Service{
		db:          db,
		queue:       queue,
		grader:      grader,
		callbackURL: callbackURL,
		logger:      logrus.WithField("component", "certificates"),
	}
}

// SetEventPublisher attaches an optional status feed
func (s *Service) SetEventPublisher(events EventPublisher) {
	s.events = events
}

// NewAccessKey mints an opaque per-job secret
func NewAccessKey() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// StatusFor returns the current status for (user, course), creating
// nothing. A missing record reads as unavailable.
func (s *Service) StatusFor(ctx context.Context, userID, courseID int) (model.CertStatus, error) {
	var cert model.GeneratedCertificate
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND course_id = ?", userID, courseID).
		First(&cert).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.CertStatusUnavailable, nil
		}
		return "", err
	}
	return cert.Status, nil
}

// Request grades the user and, if the certificate is eligible and the
// user passes, rotates the access key and enqueues a generation job.
// Ineligible requests return the current status unchanged.
func (s *Service) Request(ctx context.Context, user model.User, course model.Course) (SubmitResult, error) {
	var result SubmitResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cert, err := lockOrCreate(tx, user.ID, course.ID)
		if err != nil {
			return err
		}

		if InFlight(cert.Status) {
			result = SubmitResult{Kind: SubmitAlreadyInProgress, Status: cert.Status}
			return nil
		}
		if !CanRequest(cert.Status) {
			result = SubmitResult{Kind: SubmitNotEligible, Status: cert.Status}
			return nil
		}

		grade, err := s.grader.Grade(ctx, user.ID, course.ID)
		if err != nil {
			return fmt.Errorf("failed to grade user %d in course %d: %w", user.ID, course.ID, err)
		}
		if !grade.Passed {
			if err := tx.Model(cert).Updates(map[string]interface{}{
				"status": model.CertStatusNotPassing,
				"grade":  grade.Grade,
			}).Error; err != nil {
				return err
			}
			result = SubmitResult{Kind: SubmitNotEligible, Status: model.CertStatusNotPassing}
			return nil
		}

		key := NewAccessKey()
		if err := tx.Model(cert).Updates(map[string]interface{}{
			"status":        model.CertStatusGenerating,
			"access_key":    key,
			"grade":         grade.Grade,
			"download_uuid": "",
			"verify_uuid":   "",
			"download_url":  "",
			"error_reason":  nil,
		}).Error; err != nil {
			return err
		}

		// Enqueue inside the transaction: a queue failure rolls the
		// record back so the old key stays valid.
		job := xqueue.Job{
			Action:      "generate",
			AccessKey:   key,
			CallbackURL: s.callbackURL,
			Body: map[string]interface{}{
				"username":  user.Username,
				"course_id": course.CourseKey,
				"name":      user.FullName,
				"grade":     grade.Grade,
			},
		}
		if err := s.queue.Enqueue(ctx, job); err != nil {
			return fmt.Errorf("failed to enqueue generation job: %w", err)
		}

		s.logger.WithFields(logrus.Fields{
			"username": user.Username,
			"course":   course.CourseKey,
		}).Info("grading and certification requested")

		result = SubmitResult{Kind: SubmitEnqueued, Status: model.CertStatusGenerating}
		return nil
	})
	if err != nil {
		return SubmitResult{}, err
	}

	if result.Kind == SubmitEnqueued {
		s.publish(user.Username, course.CourseKey, result.Status)
	}
	return result, nil
}

// Regenerate enqueues a regeneration job for an operator. Unlike
// Request it accepts records that already hold an artifact.
func (s *Service) Regenerate(ctx context.Context, user model.User, course model.Course) (SubmitResult, error) {
	return s.operatorJob(ctx, user, course, "regenerate", model.CertStatusRegenerating,
		func(status model.CertStatus) bool {
			return status == model.CertStatusDownloadable || CanRequest(status)
		})
}

// RequestDeletion enqueues a delete job for an operator. The worker
// removes the stored artifact and calls back; only then does the
// record become deleted.
func (s *Service) RequestDeletion(ctx context.Context, user model.User, course model.Course) (SubmitResult, error) {
	return s.operatorJob(ctx, user, course, "delete", model.CertStatusDeleting,
		func(status model.CertStatus) bool {
			return status == model.CertStatusDownloadable
		})
}

func (s *Service) operatorJob(ctx context.Context, user model.User, course model.Course, action string, next model.CertStatus, allowed func(model.CertStatus) bool) (SubmitResult, error) {
	var result SubmitResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cert, err := lockOrCreate(tx, user.ID, course.ID)
		if err != nil {
			return err
		}

		if InFlight(cert.Status) {
			result = SubmitResult{Kind: SubmitAlreadyInProgress, Status: cert.Status}
			return nil
		}
		if !allowed(cert.Status) {
			result = SubmitResult{Kind: SubmitNotEligible, Status: cert.Status}
			return nil
		}

		key := NewAccessKey()
		if err := tx.Model(cert).Updates(map[string]interface{}{
			"status":     next,
			"access_key": key,
		}).Error; err != nil {
			return err
		}

		job := xqueue.Job{
			Action:      action,
			AccessKey:   key,
			CallbackURL: s.callbackURL,
			Body: map[string]interface{}{
				"username":  user.Username,
				"course_id": course.CourseKey,
			},
		}
		if err := s.queue.Enqueue(ctx, job); err != nil {
			return fmt.Errorf("failed to enqueue %s job: %w", action, err)
		}

		result = SubmitResult{Kind: SubmitEnqueued, Status: next}
		return nil
	})
	if err != nil {
		return SubmitResult{}, err
	}

	if result.Kind == SubmitEnqueued {
		s.publish(user.Username, course.CourseKey, result.Status)
	}
	return result, nil
}

// UpdateFromCallback applies a worker callback to the certificate
// record identified by (username, course, access key). The lookup and
// transition run as one row-locked transaction; of two racing callbacks
// only one can observe an in-flight state.
func (s *Service) UpdateFromCallback(ctx context.Context, origin string, h Header, cb Callback) error {
	var appliedStatus model.CertStatus

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var course model.Course
		if err := tx.Where("course_key = ?", cb.CourseKey).First(&course).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFoundForKey
			}
			return err
		}

		var cert model.GeneratedCertificate
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Joins("JOIN users ON users.id = generated_certificates.user_id").
			Where("users.username = ? AND generated_certificates.course_id = ? AND generated_certificates.access_key = ?",
				cb.Username, course.ID, h.LMSKey).
			First(&cert).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFoundForKey
			}
			return err
		}

		next, ok := Transition(cert.Status, cb.Result)
		if !ok {
			return ErrInvalidState
		}

		updates := map[string]interface{}{"status": next}
		switch r := cb.Result.(type) {
		case Success:
			if next == model.CertStatusDownloadable {
				updates["download_uuid"] = r.DownloadUUID
				updates["verify_uuid"] = r.VerifyUUID
				updates["download_url"] = r.URL
			}
		case Failure:
			if r.ErrorReason != nil {
				updates["error_reason"] = *r.ErrorReason
			}
		}

		if err := tx.Model(&cert).Updates(updates).Error; err != nil {
			return err
		}

		appliedStatus = next
		return nil
	})

	switch {
	case errors.Is(err, ErrNotFoundForKey):
		s.logger.WithFields(logrus.Fields{
			"username": cb.Username,
			"course":   cb.CourseKey,
			"origin":   origin,
		}).Error("unable to lookup certificate for callback")
		auditReject(s.db, s.logger, "update_certificate", model.AuditReasonLookupFailed, origin, h, cb)
		return err
	case errors.Is(err, ErrInvalidState):
		s.logger.WithFields(logrus.Fields{
			"username": cb.Username,
			"course":   cb.CourseKey,
			"origin":   origin,
		}).Error("invalid state for certificate update")
		auditReject(s.db, s.logger, "update_certificate", model.AuditReasonInvalidState, origin, h, cb)
		return err
	case err != nil:
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"username": cb.Username,
		"course":   cb.CourseKey,
		"status":   appliedStatus,
	}).Info("certificate updated from callback")
	s.publish(cb.Username, cb.CourseKey, appliedStatus)
	return nil
}

// lockOrCreate fetches the certificate row for (user, course) under a
// FOR UPDATE lock, creating it as unavailable on first contact.
func lockOrCreate(tx *gorm.DB, userID, courseID int) (*model.GeneratedCertificate, error) {
	var cert model.GeneratedCertificate
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND course_id = ?", userID, courseID).
		First(&cert).Error
	if err == nil {
		return &cert, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	cert = model.GeneratedCertificate{
		UserID:   userID,
		CourseID: courseID,
		Status:   model.CertStatusUnavailable,
	}
	if err := tx.Create(&cert).Error; err != nil {
		// A concurrent request may have created the row; lock it.
		var existing model.GeneratedCertificate
		if lookupErr := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND course_id = ?", userID, courseID).
			First(&existing).Error; lookupErr == nil {
			return &existing, nil
		}
		return nil, err
	}
	return &cert, nil
}

func (s *Service) publish(username, courseKey string, status model.CertStatus) {
	if s.events != nil {
		s.events.PublishStatus(username, courseKey, status)
	}
}
