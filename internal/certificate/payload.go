package certificate

import (
	"encoding/json"
	"fmt"
)

// Header is the xqueue_header form field posted back by the worker.
// LMSKey must match the access key minted when the job was enqueued.
type Header struct {
	LMSKey string `json:"lms_key"`
}

// Result is the outcome reported by the worker, parsed once at the
// boundary into a tagged variant before the state machine is touched.
type Result interface {
	isResult()
}

// Success carries the artifacts of a completed generation job
type Success struct {
	DownloadUUID string
	VerifyUUID   string
	URL          string
}

func (Success) isResult() {}

// Failure carries a worker-reported job failure
type Failure struct {
	Error       string
	ErrorReason *string
}

func (Failure) isResult() {}

// Callback is a fully parsed worker callback for a learner certificate
type Callback struct {
	Username  string
	CourseKey string
	Result    Result
}

// ExampleCallback is a fully parsed worker callback for an example
// certificate. The worker reuses the username field to carry the
// certificate uuid, and URL is only present on success.
type ExampleCallback struct {
	UUID   string
	Result Result
}

// ParseHeader parses the xqueue_header form field
func ParseHeader(raw string) (Header, error) {
	var h Header
	if err := json.Unmarshal([]byte(raw), &h); err != nil {
		return Header{}, fmt.Errorf("xqueue_header is not valid JSON: %w", err)
	}
	if h.LMSKey == "" {
		return Header{}, fmt.Errorf("xqueue_header is missing lms_key")
	}
	return h, nil
}

// ParseCallback parses the xqueue_body form field for a learner
// certificate. The presence of the "error" key selects the failure
// variant; otherwise all success fields are required.
func ParseCallback(raw string) (Callback, error) {
	fields, err := decodeBody(raw)
	if err != nil {
		return Callback{}, err
	}

	cb := Callback{
		Username:  stringField(fields, "username"),
		CourseKey: stringField(fields, "course_id"),
	}
	if cb.Username == "" {
		return Callback{}, fmt.Errorf("xqueue_body is missing username")
	}
	if cb.CourseKey == "" {
		return Callback{}, fmt.Errorf("xqueue_body is missing course_id")
	}

	if _, ok := fields["error"]; ok {
		cb.Result = Failure{
			Error:       stringField(fields, "error"),
			ErrorReason: optionalField(fields, "error_reason"),
		}
		return cb, nil
	}

	success := Success{
		DownloadUUID: stringField(fields, "download_uuid"),
		VerifyUUID:   stringField(fields, "verify_uuid"),
		URL:          stringField(fields, "url"),
	}
	if success.DownloadUUID == "" || success.VerifyUUID == "" || success.URL == "" {
		return Callback{}, fmt.Errorf("xqueue_body success payload requires download_uuid, verify_uuid and url")
	}
	cb.Result = success
	return cb, nil
}

// ParseExampleCallback parses the xqueue_body form field for an example
// certificate. A success payload without a url is reported separately
// so the caller can count it as a bad request.
func ParseExampleCallback(raw string) (ExampleCallback, error) {
	fields, err := decodeBody(raw)
	if err != nil {
		return ExampleCallback{}, err
	}

	cb := ExampleCallback{UUID: stringField(fields, "username")}
	if cb.UUID == "" {
		return ExampleCallback{}, fmt.Errorf("xqueue_body is missing username")
	}

	if _, ok := fields["error"]; ok {
		cb.Result = Failure{
			Error:       stringField(fields, "error"),
			ErrorReason: optionalField(fields, "error_reason"),
		}
		return cb, nil
	}

	// url is validated by the service so a matched record can still
	// distinguish a malformed success payload from an unknown uuid
	cb.Result = Success{URL: stringField(fields, "url")}
	return cb, nil
}

func decodeBody(raw string) (map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, fmt.Errorf("xqueue_body is not valid JSON: %w", err)
	}
	return fields, nil
}

func stringField(fields map[string]json.RawMessage, key string) string {
	raw, ok := fields[key]
	if !ok {
		return ""
	}
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return ""
	}
	return value
}

func optionalField(fields map[string]json.RawMessage, key string) *string {
	raw, ok := fields[key]
	if !ok {
		return nil
	}
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil
	}
	return &value
}
