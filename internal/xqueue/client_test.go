package xqueue

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Enqueue(t *testing.T) {
	var gotHeader, gotBody string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/xqueue/submit/", r.URL.Path)
		require.NoError(t, r.ParseForm())
		gotHeader = r.PostFormValue("xqueue_header")
		gotBody = r.PostFormValue("xqueue_body")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"return_code": 0}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "certificates", 5*time.Second)

	err := client.Enqueue(context.Background(), Job{
		Action:      "generate",
		AccessKey:   "K1",
		CallbackURL: "http://lms.local/api/v1/certificates/update",
		Body: map[string]interface{}{
			"username":  "student42",
			"course_id": "edX/X101/2026",
		},
	})
	require.NoError(t, err)

	var hdr map[string]string
	require.NoError(t, json.Unmarshal([]byte(gotHeader), &hdr))
	assert.Equal(t, "K1", hdr["lms_key"])
	assert.Equal(t, "certificates", hdr["queue_name"])
	assert.Equal(t, "http://lms.local/api/v1/certificates/update", hdr["lms_callback_url"])

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(gotBody), &body))
	assert.Equal(t, "student42", body["username"])
	assert.Equal(t, "generate", body["action"])
}

func TestClient_Enqueue_Rejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"return_code": 1, "content": "queue is full"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "certificates", 5*time.Second)

	err := client.Enqueue(context.Background(), Job{Action: "generate", AccessKey: "K1"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "queue is full")
}

func TestClient_Enqueue_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(server.URL, "certificates", 5*time.Second)

	err := client.Enqueue(context.Background(), Job{Action: "generate", AccessKey: "K1"})
	assert.Error(t, err)
}

func TestClient_Enqueue_InvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "certificates", 5*time.Second)

	err := client.Enqueue(context.Background(), Job{Action: "generate", AccessKey: "K1"})
	assert.Error(t, err)
}
