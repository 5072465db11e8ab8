package certificates

import "time"

// RequestCertificateRequest represents the request body for requesting
// a certificate for the logged-in user
type RequestCertificateRequest struct {
	CourseID string `json:"course_id" binding:"required"`
}

// OperatorJobRequest represents the request body for operator actions
// on another user's certificate
type OperatorJobRequest struct {
	Username string `json:"username" binding:"required"`
	CourseID string `json:"course_id" binding:"required"`
}

// OperatorJobResponse represents the outcome of an operator action
type OperatorJobResponse struct {
	Enqueued bool   `json:"enqueued"`
	Status   string `json:"status"`
}

// StartExampleRequest represents the request body for starting an
// example certificate
type StartExampleRequest struct {
	CourseID    string `json:"course_id" binding:"required"`
	Description string `json:"description"`
}

// ExampleCertificateDTO represents an example certificate in responses
type ExampleCertificateDTO struct {
	ID          int       `json:"id"`
	UUID        string    `json:"uuid"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	DownloadURL string    `json:"download_url"`
	ErrorReason *string   `json:"error_reason"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
