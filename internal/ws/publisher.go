package ws

import (
	"log"

	"go_certmgr/internal/model"
)

// StatusEvent is broadcast whenever a certificate changes state
type StatusEvent struct {
	Username  string `json:"username"`
	CourseKey string `json:"course_key"`
	Status    string `json:"status"`
}

// Publisher broadcasts certificate status transitions to connected
// dashboard clients. It satisfies the certificate service's
// EventPublisher interface.
type Publisher struct{}

// NewPublisher creates a status event publisher
func NewPublisher() *Publisher {
	return &Publisher{}
}

// PublishStatus broadcasts a cert_status event. Broadcast failure must
// not affect the callback flow, so there is no error return.
func (p *Publisher) PublishStatus(username, courseKey string, status model.CertStatus) {
	event := StatusEvent{
		Username:  username,
		CourseKey: courseKey,
		Status:    string(status),
	}

	BroadcastToAll("cert_status", event)
	log.Printf("[WebSocket] Event broadcasted: course=%s status=%s", courseKey, status)
}
