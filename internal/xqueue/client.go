package xqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

// Job is a unit of work handed to the external worker queue. The worker
// eventually posts its result to CallbackURL, authenticating with
// AccessKey.
type Job struct {
	Action      string // generate | regenerate | delete | example
	AccessKey   string
	CallbackURL string
	Body        map[string]interface{}
}

// header mirrors the xqueue submission header contract
type header struct {
	LMSCallbackURL string `json:"lms_callback_url"`
	LMSKey         string `json:"lms_key"`
	QueueName      string `json:"queue_name"`
}

// submitResponse is the acknowledgement returned by the queue
type submitResponse struct {
	ReturnCode int    `json:"return_code"`
	Content    string `json:"content"`
}

// Client submits jobs to an xqueue-compatible worker queue
type Client struct {
	http      *resty.Client
	queueName string
	logger    *logrus.Entry
}

// NewClient creates a queue client for the given base URL and queue name
func NewClient(baseURL, queueName string, timeout time.Duration) *Client {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout)

	return &Client{
		http:      httpClient,
		queueName: queueName,
		logger:    logrus.WithField("component", "xqueue"),
	}
}

// Enqueue submits a job and returns once the queue has acknowledged it.
// It does not wait for the job to run; the result arrives later as a
// callback to job.CallbackURL.
func (c *Client) Enqueue(ctx context.Context, job Job) error {
	headerJSON, err := json.Marshal(header{
		LMSCallbackURL: job.CallbackURL,
		LMSKey:         job.AccessKey,
		QueueName:      c.queueName,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal xqueue header: %w", err)
	}

	body := make(map[string]interface{}, len(job.Body)+1)
	for k, v := range job.Body {
		body[k] = v
	}
	body["action"] = job.Action

	bodyJSON, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal xqueue body: %w", err)
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"xqueue_header": string(headerJSON),
			"xqueue_body":   string(bodyJSON),
		}).
		Post("/xqueue/submit/")
	if err != nil {
		return fmt.Errorf("failed to submit job to xqueue: %w", err)
	}

	if resp.StatusCode() != 200 {
		return fmt.Errorf("xqueue submit returned HTTP %d", resp.StatusCode())
	}

	var ack submitResponse
	if err := json.Unmarshal(resp.Body(), &ack); err != nil {
		return fmt.Errorf("xqueue submit returned invalid JSON: %w", err)
	}
	if ack.ReturnCode != 0 {
		return fmt.Errorf("xqueue rejected job: %s", ack.Content)
	}

	c.logger.WithFields(logrus.Fields{
		"action": job.Action,
		"queue":  c.queueName,
	}).Info("job enqueued")
	return nil
}
