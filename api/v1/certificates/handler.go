package certificates

import (
	"context"
	"errors"
	"net/http"

	"go_certmgr/internal/certificate"
	"go_certmgr/internal/httpx"
	"go_certmgr/internal/model"
	"go_certmgr/internal/ratelimit"
	"go_certmgr/internal/render"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// addStatusAnonymous is returned to callers who request a certificate
// without a valid session
const addStatusAnonymous = "ERRORANONYMOUSUSER"

// Handler handles certificate endpoints
type Handler struct {
	db       *gorm.DB
	certs    *certificate.Service
	examples *certificate.ExampleService
	limiter  *ratelimit.Limiter
	renderer *render.CertificateRenderer
}

// NewHandler creates a certificates handler
func NewHandler(db *gorm.DB, certs *certificate.Service, examples *certificate.ExampleService, limiter *ratelimit.Limiter, renderer *render.CertificateRenderer) *Handler {
	return &Handler{
		db:       db,
		certs:    certs,
		examples: examples,
		limiter:  limiter,
		renderer: renderer,
	}
}

// Request handles POST /api/v1/certificates/request. Anonymous callers
// get a sentinel status instead of a 401 so the response shape stays
// uniform for the requesting page.
func (h *Handler) Request(c *gin.Context) {
	username := c.GetString("username")
	if username == "" {
		c.JSON(http.StatusOK, gin.H{"add_status": addStatusAnonymous})
		return
	}

	var req RequestCertificateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid("course_id is required"))
		return
	}

	user, course, appErr := h.lookupUserCourse(username, req.CourseID)
	if appErr != nil {
		httpx.FailErr(c, appErr)
		return
	}

	result, err := h.certs.Request(c.Request.Context(), *user, *course)
	if err != nil {
		httpx.FailErr(c, httpx.ErrInternalError("failed to request certificate", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"add_status": string(result.Status)})
}

// Status handles GET /api/v1/certificates/status?course=...
func (h *Handler) Status(c *gin.Context) {
	courseKey := c.Query("course")
	if courseKey == "" {
		httpx.FailErr(c, httpx.ErrParamMissing("parameter 'course' is required"))
		return
	}

	user, course, appErr := h.lookupUserCourse(c.GetString("username"), courseKey)
	if appErr != nil {
		httpx.FailErr(c, appErr)
		return
	}

	status, err := h.certs.StatusFor(c.Request.Context(), user.ID, course.ID)
	if err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to read certificate status", err))
		return
	}

	httpx.OK(c, gin.H{"status": string(status)})
}

// UpdateCertificate handles POST /api/v1/certificates/update, the
// worker callback for learner certificates. The response body follows
// the queue protocol: return_code 0 for applied, 1 for rejected. A
// rejected lookup still answers 200 so the worker does not retry it.
func (h *Handler) UpdateCertificate(c *gin.Context) {
	origin := c.ClientIP()
	ctx := c.Request.Context()

	if h.limiter.IsExceeded(ctx, origin) {
		certificate.AuditRaw(h.db, "update_certificate", model.AuditReasonRateLimited, origin,
			c.PostForm("xqueue_header"), c.PostForm("xqueue_body"))
		c.JSON(http.StatusForbidden, gin.H{"return_code": 1, "content": "rate limit exceeded"})
		return
	}

	rawHeader := c.PostForm("xqueue_header")
	rawBody := c.PostForm("xqueue_body")
	if rawHeader == "" || rawBody == "" {
		h.rejectMalformed(c, "update_certificate", origin, rawHeader, rawBody,
			"xqueue_header and xqueue_body are required")
		return
	}

	header, err := certificate.ParseHeader(rawHeader)
	if err != nil {
		h.rejectMalformed(c, "update_certificate", origin, rawHeader, rawBody, err.Error())
		return
	}

	cb, err := certificate.ParseCallback(rawBody)
	if err != nil {
		h.rejectMalformed(c, "update_certificate", origin, rawHeader, rawBody, err.Error())
		return
	}

	err = h.certs.UpdateFromCallback(ctx, origin, header, cb)
	switch {
	case errors.Is(err, certificate.ErrNotFoundForKey):
		h.limiter.Tick(ctx, origin)
		c.JSON(http.StatusOK, gin.H{"return_code": 1, "content": err.Error()})
	case errors.Is(err, certificate.ErrInvalidState):
		// A duplicate delivery racing a finished one, not abuse
		c.JSON(http.StatusOK, gin.H{"return_code": 1, "content": err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"return_code": 1, "content": "internal error"})
	default:
		c.JSON(http.StatusOK, gin.H{"return_code": 0})
	}
}

// UpdateExampleCertificate handles POST /api/v1/certificates/update-example,
// the worker callback for example certificates. The limiter is consulted
// before any field is read.
func (h *Handler) UpdateExampleCertificate(c *gin.Context) {
	origin := c.ClientIP()
	ctx := c.Request.Context()

	if h.limiter.IsExceeded(ctx, origin) {
		certificate.AuditRaw(h.db, "update_example_certificate", model.AuditReasonRateLimited, origin,
			c.PostForm("xqueue_header"), c.PostForm("xqueue_body"))
		httpx.FailErr(c, httpx.ErrRateLimited("too many bad requests from this origin"))
		return
	}

	rawHeader := c.PostForm("xqueue_header")
	rawBody := c.PostForm("xqueue_body")
	if rawHeader == "" || rawBody == "" {
		h.limiter.Tick(ctx, origin)
		certificate.AuditRaw(h.db, "update_example_certificate", model.AuditReasonMalformed, origin, rawHeader, rawBody)
		httpx.FailErr(c, httpx.ErrParamMissing("xqueue_header and xqueue_body are required"))
		return
	}

	header, err := certificate.ParseHeader(rawHeader)
	if err != nil {
		h.limiter.Tick(ctx, origin)
		certificate.AuditRaw(h.db, "update_example_certificate", model.AuditReasonMalformed, origin, rawHeader, rawBody)
		httpx.FailErr(c, httpx.ErrParamInvalid(err.Error()))
		return
	}

	cb, err := certificate.ParseExampleCallback(rawBody)
	if err != nil {
		h.limiter.Tick(ctx, origin)
		certificate.AuditRaw(h.db, "update_example_certificate", model.AuditReasonMalformed, origin, rawHeader, rawBody)
		httpx.FailErr(c, httpx.ErrParamInvalid(err.Error()))
		return
	}

	err = h.examples.UpdateFromCallback(ctx, origin, header, cb)
	switch {
	case errors.Is(err, certificate.ErrExampleNotFound):
		h.limiter.Tick(ctx, origin)
		httpx.FailErr(c, httpx.NewAppError(http.StatusNotFound, httpx.CodeCertNotFound, err.Error(), nil))
	case errors.Is(err, certificate.ErrMissingDownloadURL):
		h.limiter.Tick(ctx, origin)
		httpx.FailErr(c, httpx.ErrParamInvalid(err.Error()))
	case err != nil:
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to update example certificate", err))
	default:
		c.JSON(http.StatusOK, gin.H{"return_code": 0})
	}
}

// Regenerate handles POST /api/v1/certificates/regenerate (operator only)
func (h *Handler) Regenerate(c *gin.Context) {
	h.operatorJob(c, h.certs.Regenerate)
}

// Delete handles POST /api/v1/certificates/delete (operator only). The
// record stays in deleting until the worker confirms artifact removal.
func (h *Handler) Delete(c *gin.Context) {
	h.operatorJob(c, h.certs.RequestDeletion)
}

// StartExample handles POST /api/v1/certificates/examples (operator only)
func (h *Handler) StartExample(c *gin.Context) {
	if appErr := requireOperator(c); appErr != nil {
		httpx.FailErr(c, appErr)
		return
	}

	var req StartExampleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid("course_id is required"))
		return
	}

	course, appErr := h.lookupCourse(req.CourseID)
	if appErr != nil {
		httpx.FailErr(c, appErr)
		return
	}

	cert, err := h.examples.Start(c.Request.Context(), *course, req.Description)
	if err != nil {
		httpx.FailErr(c, httpx.ErrInternalError("failed to start example certificate", err))
		return
	}

	httpx.OK(c, toExampleDTO(*cert))
}

// ListExamples handles GET /api/v1/certificates/examples?course=...
func (h *Handler) ListExamples(c *gin.Context) {
	if appErr := requireOperator(c); appErr != nil {
		httpx.FailErr(c, appErr)
		return
	}

	courseKey := c.Query("course")
	if courseKey == "" {
		httpx.FailErr(c, httpx.ErrParamMissing("parameter 'course' is required"))
		return
	}

	course, appErr := h.lookupCourse(courseKey)
	if appErr != nil {
		httpx.FailErr(c, appErr)
		return
	}

	certs, err := h.examples.List(c.Request.Context(), course.ID)
	if err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to list example certificates", err))
		return
	}

	items := make([]ExampleCertificateDTO, 0, len(certs))
	for _, cert := range certs {
		items = append(items, toExampleDTO(cert))
	}
	httpx.OK(c, gin.H{"items": items, "total": len(items)})
}

func (h *Handler) operatorJob(c *gin.Context, run func(context.Context, model.User, model.Course) (certificate.SubmitResult, error)) {
	if appErr := requireOperator(c); appErr != nil {
		httpx.FailErr(c, appErr)
		return
	}

	var req OperatorJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid("username and course_id are required"))
		return
	}

	user, course, appErr := h.lookupUserCourse(req.Username, req.CourseID)
	if appErr != nil {
		httpx.FailErr(c, appErr)
		return
	}

	result, err := run(c.Request.Context(), *user, *course)
	if err != nil {
		httpx.FailErr(c, httpx.ErrInternalError("failed to enqueue job", err))
		return
	}

	httpx.OK(c, OperatorJobResponse{
		Enqueued: result.Kind == certificate.SubmitEnqueued,
		Status:   string(result.Status),
	})
}

func (h *Handler) lookupUserCourse(username, courseKey string) (*model.User, *model.Course, *httpx.AppError) {
	var user model.User
	if err := h.db.Where("username = ?", username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, httpx.ErrNotFound("user not found")
		}
		return nil, nil, httpx.ErrDatabaseError("database error", err)
	}

	course, appErr := h.lookupCourse(courseKey)
	if appErr != nil {
		return nil, nil, appErr
	}
	return &user, course, nil
}

func (h *Handler) lookupCourse(courseKey string) (*model.Course, *httpx.AppError) {
	var course model.Course
	if err := h.db.Where("course_key = ?", courseKey).First(&course).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, httpx.ErrNotFound("course not found")
		}
		return nil, httpx.ErrDatabaseError("database error", err)
	}
	return &course, nil
}

func (h *Handler) rejectMalformed(c *gin.Context, endpoint, origin, rawHeader, rawBody, reason string) {
	h.limiter.Tick(c.Request.Context(), origin)
	certificate.AuditRaw(h.db, endpoint, model.AuditReasonMalformed, origin, rawHeader, rawBody)
	c.JSON(http.StatusBadRequest, gin.H{"return_code": 1, "content": reason})
}

func requireOperator(c *gin.Context) *httpx.AppError {
	role := c.GetString("role")
	if role != "admin" && role != "staff" {
		return httpx.ErrForbidden("operator role required")
	}
	return nil
}

func toExampleDTO(cert model.ExampleCertificate) ExampleCertificateDTO {
	return ExampleCertificateDTO{
		ID:          cert.ID,
		UUID:        cert.UUID,
		Description: cert.Description,
		Status:      string(cert.Status),
		DownloadURL: cert.DownloadURL,
		ErrorReason: cert.ErrorReason,
		CreatedAt:   cert.CreatedAt,
		UpdatedAt:   cert.UpdatedAt,
	}
}
