package certificate

import (
	"context"
	"errors"
	"testing"

	"go_certmgr/internal/grades"
	"go_certmgr/internal/model"
	"go_certmgr/internal/xqueue"

	"github.com/DATA-DOG/go-sqlmock"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// fakeQueue records enqueued jobs
type fakeQueue struct {
	jobs []xqueue.Job
	err  error
}

func (q *fakeQueue) Enqueue(_ context.Context, job xqueue.Job) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

// fakeGrader returns a fixed grading result
type fakeGrader struct {
	result grades.Result
}

func (g *fakeGrader) Grade(_ context.Context, _, _ int) (grades.Result, error) {
	return g.result, nil
}

// fakePublisher records published status events
type fakePublisher struct {
	events []model.CertStatus
}

func (p *fakePublisher) PublishStatus(_, _ string, status model.CertStatus) {
	p.events = append(p.events, status)
}

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("Failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })

	gdb, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("Failed to open gorm: %v", err)
	}
	return gdb, mock
}

func certRows(id int, status model.CertStatus, accessKey string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "user_id", "course_id", "status", "access_key"}).
		AddRow(id, 1, 3, string(status), accessKey)
}

func testUser() model.User {
	u := model.User{Username: "alice", FullName: "Alice Liddell"}
	u.ID = 1
	return u
}

func testCourse() model.Course {
	c := model.Course{CourseKey: "edX/Demo/2026", DisplayName: "Demo Course", Org: "edX", Number: "Demo"}
	c.ID = 3
	return c
}

func TestRequestEnqueuesGenerationJob(t *testing.T) {
	gdb, mock := newMockDB(t)
	queue := &fakeQueue{}
	grader := &fakeGrader{result: grades.Result{Passed: true, Grade: "0.93"}}
	svc := NewService(gdb, queue, grader, "https://certs.example.com/api/v1/certificates/update")

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .* FROM .generated_certificates. WHERE user_id = .* FOR UPDATE").
		WillReturnRows(certRows(7, model.CertStatusUnavailable, ""))
	mock.ExpectExec("UPDATE .generated_certificates. SET").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	result, err := svc.Request(context.Background(), testUser(), testCourse())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result.Kind != SubmitEnqueued {
		t.Errorf("Expected SubmitEnqueued, got %v", result.Kind)
	}
	if result.Status != model.CertStatusGenerating {
		t.Errorf("Expected status generating, got %s", result.Status)
	}

	if len(queue.jobs) != 1 {
		t.Fatalf("Expected 1 enqueued job, got %d", len(queue.jobs))
	}
	job := queue.jobs[0]
	if job.Action != "generate" {
		t.Errorf("Expected action generate, got %s", job.Action)
	}
	if job.AccessKey == "" || len(job.AccessKey) != 32 {
		t.Errorf("Expected 32 char access key, got %q", job.AccessKey)
	}
	if job.Body["username"] != "alice" || job.Body["course_id"] != "edX/Demo/2026" {
		t.Errorf("Unexpected job body: %+v", job.Body)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}

func TestRequestAlreadyInProgress(t *testing.T) {
	gdb, mock := newMockDB(t)
	queue := &fakeQueue{}
	svc := NewService(gdb, queue, &fakeGrader{}, "https://certs.example.com/update")

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .* FROM .generated_certificates.").
		WillReturnRows(certRows(7, model.CertStatusGenerating, "oldkey"))
	mock.ExpectCommit()

	result, err := svc.Request(context.Background(), testUser(), testCourse())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result.Kind != SubmitAlreadyInProgress {
		t.Errorf("Expected SubmitAlreadyInProgress, got %v", result.Kind)
	}
	if len(queue.jobs) != 0 {
		t.Errorf("Expected no enqueued jobs, got %d", len(queue.jobs))
	}
}

func TestRequestNotEligibleFromDownloadable(t *testing.T) {
	gdb, mock := newMockDB(t)
	queue := &fakeQueue{}
	svc := NewService(gdb, queue, &fakeGrader{result: grades.Result{Passed: true}}, "https://certs.example.com/update")

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .* FROM .generated_certificates.").
		WillReturnRows(certRows(7, model.CertStatusDownloadable, "key"))
	mock.ExpectCommit()

	result, err := svc.Request(context.Background(), testUser(), testCourse())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result.Kind != SubmitNotEligible {
		t.Errorf("Expected SubmitNotEligible, got %v", result.Kind)
	}
	if result.Status != model.CertStatusDownloadable {
		t.Errorf("Expected status downloadable, got %s", result.Status)
	}
	if len(queue.jobs) != 0 {
		t.Errorf("Expected no enqueued jobs, got %d", len(queue.jobs))
	}
}

func TestRequestNotPassing(t *testing.T) {
	gdb, mock := newMockDB(t)
	queue := &fakeQueue{}
	svc := NewService(gdb, queue, &fakeGrader{result: grades.Result{Passed: false, Grade: "0.31"}}, "https://certs.example.com/update")

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .* FROM .generated_certificates.").
		WillReturnRows(certRows(7, model.CertStatusUnavailable, ""))
	mock.ExpectExec("UPDATE .generated_certificates. SET").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	result, err := svc.Request(context.Background(), testUser(), testCourse())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result.Kind != SubmitNotEligible {
		t.Errorf("Expected SubmitNotEligible, got %v", result.Kind)
	}
	if result.Status != model.CertStatusNotPassing {
		t.Errorf("Expected status notpassing, got %s", result.Status)
	}
	if len(queue.jobs) != 0 {
		t.Errorf("Expected no enqueued jobs, got %d", len(queue.jobs))
	}
}

func TestRequestQueueFailureRollsBack(t *testing.T) {
	gdb, mock := newMockDB(t)
	queue := &fakeQueue{err: errors.New("queue unreachable")}
	svc := NewService(gdb, queue, &fakeGrader{result: grades.Result{Passed: true, Grade: "0.93"}}, "https://certs.example.com/update")

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .* FROM .generated_certificates.").
		WillReturnRows(certRows(7, model.CertStatusUnavailable, ""))
	mock.ExpectExec("UPDATE .generated_certificates. SET").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	_, err := svc.Request(context.Background(), testUser(), testCourse())
	if err == nil {
		t.Fatal("Expected error when queue is unreachable, got nil")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}

func TestUpdateFromCallbackSuccess(t *testing.T) {
	gdb, mock := newMockDB(t)
	svc := NewService(gdb, &fakeQueue{}, &fakeGrader{}, "https://certs.example.com/update")
	publisher := &fakePublisher{}
	svc.SetEventPublisher(publisher)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .* FROM .courses. WHERE course_key").
		WillReturnRows(sqlmock.NewRows([]string{"id", "course_key"}).AddRow(3, "edX/Demo/2026"))
	mock.ExpectQuery("SELECT .generated_certificates.\\..* FROM .generated_certificates. JOIN users").
		WillReturnRows(certRows(7, model.CertStatusGenerating, "key123"))
	mock.ExpectExec("UPDATE .generated_certificates. SET").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	cb := Callback{
		Username:  "alice",
		CourseKey: "edX/Demo/2026",
		Result:    Success{DownloadUUID: "d-uuid", VerifyUUID: "v-uuid", URL: "https://certs/alice.pdf"},
	}
	err := svc.UpdateFromCallback(context.Background(), "10.0.0.1", Header{LMSKey: "key123"}, cb)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if len(publisher.events) != 1 || publisher.events[0] != model.CertStatusDownloadable {
		t.Errorf("Expected downloadable event, got %v", publisher.events)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}

func TestUpdateFromCallbackStaleKey(t *testing.T) {
	gdb, mock := newMockDB(t)
	svc := NewService(gdb, &fakeQueue{}, &fakeGrader{}, "https://certs.example.com/update")

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .* FROM .courses. WHERE course_key").
		WillReturnRows(sqlmock.NewRows([]string{"id", "course_key"}).AddRow(3, "edX/Demo/2026"))
	mock.ExpectQuery("SELECT .generated_certificates.\\..* FROM .generated_certificates. JOIN users").
		WillReturnRows(sqlmock.NewRows([]string{"id", "status"}))
	mock.ExpectRollback()

	// The rejection is audited outside the rolled back transaction
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO .callback_audits.").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	cb := Callback{
		Username:  "alice",
		CourseKey: "edX/Demo/2026",
		Result:    Success{DownloadUUID: "d", VerifyUUID: "v", URL: "https://certs/x.pdf"},
	}
	err := svc.UpdateFromCallback(context.Background(), "10.0.0.1", Header{LMSKey: "stalekey"}, cb)
	if !errors.Is(err, ErrNotFoundForKey) {
		t.Fatalf("Expected ErrNotFoundForKey, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}

func TestUpdateFromCallbackInvalidState(t *testing.T) {
	gdb, mock := newMockDB(t)
	svc := NewService(gdb, &fakeQueue{}, &fakeGrader{}, "https://certs.example.com/update")
	publisher := &fakePublisher{}
	svc.SetEventPublisher(publisher)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .* FROM .courses. WHERE course_key").
		WillReturnRows(sqlmock.NewRows([]string{"id", "course_key"}).AddRow(3, "edX/Demo/2026"))
	mock.ExpectQuery("SELECT .generated_certificates.\\..* FROM .generated_certificates. JOIN users").
		WillReturnRows(certRows(7, model.CertStatusDownloadable, "key123"))
	mock.ExpectRollback()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO .callback_audits.").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	cb := Callback{
		Username:  "alice",
		CourseKey: "edX/Demo/2026",
		Result:    Success{DownloadUUID: "d", VerifyUUID: "v", URL: "https://certs/x.pdf"},
	}
	err := svc.UpdateFromCallback(context.Background(), "10.0.0.1", Header{LMSKey: "key123"}, cb)
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("Expected ErrInvalidState, got %v", err)
	}

	// The record stays untouched, so no event is published
	if len(publisher.events) != 0 {
		t.Errorf("Expected no events, got %v", publisher.events)
	}
}

func TestUpdateFromCallbackFailureRecordsReason(t *testing.T) {
	gdb, mock := newMockDB(t)
	svc := NewService(gdb, &fakeQueue{}, &fakeGrader{}, "https://certs.example.com/update")

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .* FROM .courses. WHERE course_key").
		WillReturnRows(sqlmock.NewRows([]string{"id", "course_key"}).AddRow(3, "edX/Demo/2026"))
	mock.ExpectQuery("SELECT .generated_certificates.\\..* FROM .generated_certificates. JOIN users").
		WillReturnRows(certRows(7, model.CertStatusGenerating, "key123"))
	mock.ExpectExec("UPDATE .generated_certificates. SET").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	reason := "missing template"
	cb := Callback{
		Username:  "alice",
		CourseKey: "edX/Demo/2026",
		Result:    Failure{Error: "render failed", ErrorReason: &reason},
	}
	err := svc.UpdateFromCallback(context.Background(), "10.0.0.1", Header{LMSKey: "key123"}, cb)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}

func TestNewAccessKey(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		key := NewAccessKey()
		if len(key) != 32 {
			t.Fatalf("Expected 32 char key, got %d chars", len(key))
		}
		if seen[key] {
			t.Fatal("Duplicate access key generated")
		}
		seen[key] = true
	}
}
