package transport

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/you-humble/chatmover/internal/domain"
)

type fakeOrchestrator struct {
	startErr  error
	cancelErr error
	started   []domain.BatchRequest
	cancelled []string
	tasks     []domain.TaskRecord
}

func (f *fakeOrchestrator) StartBatch(req domain.BatchRequest) (string, error) {
	if f.startErr != nil {
		return "", f.startErr
	}
	f.started = append(f.started, req)
	return "task-123", nil
}

func (f *fakeOrchestrator) RequestCancel(_ domain.UserID, taskID string) error {
	if f.cancelErr != nil {
		return f.cancelErr
	}
	f.cancelled = append(f.cancelled, taskID)
	return nil
}

func (f *fakeOrchestrator) ActiveTasks(_ domain.UserID) []domain.TaskRecord {
	return f.tasks
}

func newServer(orch Orchestrator) *httptest.Server {
	mux := NewRouter(NewHandler(orch)).MountRoutes(http.NewServeMux())
	return httptest.NewServer(WithRecover(LogMiddleware(mux)))
}

func TestStartBatchAccepted(t *testing.T) {
	orch := &fakeOrchestrator{}
	srv := newServer(orch)
	defer srv.Close()

	body := `{"spec":"https://t.me/ch/1-10","dest_chat":"dest","delay_seconds":2,"owner":7,"handle":"status-1"}`
	resp, err := http.Post(srv.URL+"/batches", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	var got domain.BatchStartResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "task-123", got.TaskID)

	require.Len(t, orch.started, 1)
	assert.Equal(t, domain.UserID(7), orch.started[0].Owner)
	assert.Equal(t, 2*time.Second, orch.started[0].Delay)
	assert.Equal(t, domain.ChatID("dest"), orch.started[0].Dest.Chat)
}

func TestStartBatchBadJSON(t *testing.T) {
	srv := newServer(&fakeOrchestrator{})
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/batches", "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStartBatchTaskLimit(t *testing.T) {
	srv := newServer(&fakeOrchestrator{startErr: domain.ErrTaskLimit})
	defer srv.Close()

	body := `{"spec":"https://t.me/ch/1","dest_chat":"d","owner":7}`
	resp, err := http.Post(srv.URL+"/batches", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestStartBatchSharedSessionBusy(t *testing.T) {
	srv := newServer(&fakeOrchestrator{startErr: domain.ErrSharedSessionBusy})
	defer srv.Close()

	body := `{"spec":"https://t.me/ch/1","dest_chat":"d","owner":7}`
	resp, err := http.Post(srv.URL+"/batches", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestStartBatchMethodNotAllowed(t *testing.T) {
	srv := newServer(&fakeOrchestrator{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/batches")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestCancel(t *testing.T) {
	orch := &fakeOrchestrator{}
	srv := newServer(orch)
	defer srv.Close()

	body := `{"owner":7,"task_id":"task-123"}`
	resp, err := http.Post(srv.URL+"/batches/cancel", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, []string{"task-123"}, orch.cancelled)
}

func TestCancelUnknownTask(t *testing.T) {
	srv := newServer(&fakeOrchestrator{cancelErr: domain.ErrTaskNotFound})
	defer srv.Close()

	body := `{"owner":7,"task_id":"nope"}`
	resp, err := http.Post(srv.URL+"/batches/cancel", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCancelRequiresOwner(t *testing.T) {
	srv := newServer(&fakeOrchestrator{})
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/batches/cancel", "application/json", strings.NewReader(`{"task_id":"x"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTasks(t *testing.T) {
	started := time.Now().Truncate(time.Second)
	orch := &fakeOrchestrator{tasks: []domain.TaskRecord{
		{ID: "task-123", Owner: 7, Label: "Batch ch (10 items)", StartedAt: started},
	}}
	srv := newServer(orch)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/tasks?owner=7")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got []domain.TaskView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Len(t, got, 1)
	assert.Equal(t, "task-123", got[0].TaskID)
	assert.Equal(t, "Batch ch (10 items)", got[0].Label)
}

func TestTasksRequiresOwner(t *testing.T) {
	srv := newServer(&fakeOrchestrator{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/tasks")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	srv := newServer(&fakeOrchestrator{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got domain.HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "ok", got.Status)
}
