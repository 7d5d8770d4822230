package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/agentic-support/internal/api/http/handlers"
	"github.com/spec-kit/agentic-support/internal/classifier"
	"github.com/spec-kit/agentic-support/internal/domain"
	"github.com/spec-kit/agentic-support/internal/events"
	"github.com/spec-kit/agentic-support/internal/observability"
	"github.com/spec-kit/agentic-support/internal/queue"
	"github.com/spec-kit/agentic-support/internal/repository"
	"github.com/spec-kit/agentic-support/internal/service"
	"github.com/spec-kit/agentic-support/internal/worker"
)

type testServer struct {
	app     *fiber.App
	repo    *repository.MemoryTicketRepository
	queue   *queue.Queue
	mr      *miniredis.Miniredis
	metrics *observability.Metrics
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })

	q := queue.New(client, queue.NewRedisBroker(client, "test", "agentic"), queue.Config{
		Name:       "agentic",
		KeyPrefix:  "test",
		ResultTTL:  time.Minute,
		FailureTTL: time.Hour,
	})
	repo := repository.NewMemoryTicketRepository()
	logger := zap.NewNop()
	metrics := observability.NewMetrics()

	svc := service.NewTicketService(service.TicketDependencies{
		TicketRepo: repo,
		Queue:      q,
		Dispatcher: events.NewInMemoryDispatcher(),
		Logger:     logger,
	})

	app := fiber.New()
	RegisterMiddlewares(app, logger, metrics, 5*time.Second)
	RegisterRoutes(app, RouteConfig{
		Health:  handlers.NewHealthHandler(repo, q, logger),
		Tickets: handlers.NewTicketsHandler(svc),
	})
	return &testServer{app: app, repo: repo, queue: q, mr: mr, metrics: metrics}
}

func (s *testServer) do(t *testing.T, method, path, body string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	resp, err := s.app.Test(req, 5000)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	decoded := map[string]any{}
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &decoded), string(raw))
	}
	return resp.StatusCode, decoded
}

func (s *testServer) createTicket(t *testing.T, subject, description string) map[string]any {
	t.Helper()
	payload, err := json.Marshal(map[string]string{"subject": subject, "description": description})
	require.NoError(t, err)
	status, body := s.do(t, http.MethodPost, "/tickets", string(payload))
	require.Equal(t, http.StatusOK, status, body)
	return body
}

func errorEnvelope(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	envelope, ok := body["error"].(map[string]any)
	require.True(t, ok, "missing error envelope: %v", body)
	requestID, _ := envelope["request_id"].(string)
	_, err := uuid.Parse(requestID)
	assert.NoError(t, err, "request_id is a uuid")
	return envelope
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, map[string]any{"message": "Agentic Support Backend up and running"}, body)

	status, body = s.do(t, http.MethodGet, "/health/db", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, map[string]any{"mongo_ok": true}, body)

	status, body = s.do(t, http.MethodGet, "/health/queue", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, map[string]any{"redis_ok": true}, body)
}

func TestHealthEndpoints_Down(t *testing.T) {
	s := newTestServer(t)
	s.repo.SetPingError(errors.New("no primary"))
	s.mr.Close()

	status, body := s.do(t, http.MethodGet, "/health/db", "")
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, map[string]any{"mongo_ok": false}, body)

	status, body = s.do(t, http.MethodGet, "/health/queue", "")
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, map[string]any{"redis_ok": false}, body)
}

func TestCreateTicket(t *testing.T) {
	s := newTestServer(t)

	body := s.createTicket(t, "Reset link expired", "Cannot log in")
	assert.Len(t, body, 3)
	assert.Equal(t, "queued", body["status"])
	assert.NotEmpty(t, body["ticket_id"])
	assert.NotEmpty(t, body["job_id"])

	job, err := s.queue.FetchJob(context.Background(), body["job_id"].(string))
	require.NoError(t, err)
	assert.Equal(t, domain.TaskClassifyTicket, job.Task)
	assert.JSONEq(t, `["`+body["ticket_id"].(string)+`"]`, string(job.Args))
}

func TestCreateTicket_ValidationEnvelope(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name      string
		body      string
		wantField string
	}{
		{name: "short subject", body: `{"subject":"ab","description":"long enough"}`, wantField: "subject"},
		{name: "missing description", body: `{"subject":"valid subject"}`, wantField: "description"},
		{name: "too long", body: `{"subject":"valid","description":"` + strings.Repeat("a", 2001) + `"}`, wantField: "description"},
		{name: "malformed json", body: `{"subject":`, wantField: "body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := s.do(t, http.MethodPost, "/tickets", tt.body)
			assert.Equal(t, http.StatusUnprocessableEntity, status)

			envelope := errorEnvelope(t, body)
			assert.Equal(t, "validation_error", envelope["type"])
			details, ok := envelope["details"].([]any)
			require.True(t, ok)
			require.NotEmpty(t, details)
			first := details[0].(map[string]any)
			assert.Equal(t, tt.wantField, first["field"])
		})
	}
	assert.Zero(t, s.repo.Len())
}

func TestCreateTicket_RequestIDsAreFresh(t *testing.T) {
	s := newTestServer(t)
	_, first := s.do(t, http.MethodPost, "/tickets", `{}`)
	_, second := s.do(t, http.MethodPost, "/tickets", `{}`)
	assert.NotEqual(t, errorEnvelope(t, first)["request_id"], errorEnvelope(t, second)["request_id"])
}

func TestCreateTicket_QueueDown(t *testing.T) {
	s := newTestServer(t)
	s.mr.Close()

	status, body := s.do(t, http.MethodPost, "/tickets", `{"subject":"Payment failed","description":"card declined"}`)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "dispatch_unavailable", errorEnvelope(t, body)["type"])
}

func TestGetTicket_RoundTrip(t *testing.T) {
	s := newTestServer(t)
	created := s.createTicket(t, "Payment failed", "card declined")
	id := created["ticket_id"].(string)

	status, body := s.do(t, http.MethodGet, "/tickets/"+id, "")
	require.Equal(t, http.StatusOK, status)
	for _, key := range []string{"id", "subject", "description", "created_at", "status", "classification", "updated_at", "job_id"} {
		assert.Contains(t, body, key)
	}
	assert.Equal(t, id, body["id"])
	assert.Contains(t, []any{"new", "queued"}, body["status"])
	assert.Nil(t, body["classification"])
	assert.Equal(t, created["job_id"], body["job_id"])

	createdAt, err := time.Parse(time.RFC3339Nano, body["created_at"].(string))
	require.NoError(t, err)
	_, offset := createdAt.Zone()
	assert.Zero(t, offset, "created_at is UTC")
}

func TestGetTicket_Errors(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, http.MethodGet, "/tickets/not-a-valid-id", "")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid_id", errorEnvelope(t, body)["type"])

	status, body = s.do(t, http.MethodGet, "/tickets/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "not_found", errorEnvelope(t, body)["type"])
}

func TestClassifyTicket(t *testing.T) {
	s := newTestServer(t)
	created := s.createTicket(t, "Payment failed", "card declined")
	id := created["ticket_id"].(string)

	status, body := s.do(t, http.MethodPost, "/tickets/"+id+"/classify", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, id, body["ticket_id"])
	assert.Equal(t, "queued", body["status"])
	assert.NotEqual(t, created["job_id"], body["job_id"])

	_, ticket := s.do(t, http.MethodGet, "/tickets/"+id, "")
	assert.Equal(t, body["job_id"], ticket["job_id"])

	status, _ = s.do(t, http.MethodPost, "/tickets/bad/classify", "")
	assert.Equal(t, http.StatusBadRequest, status)
	status, _ = s.do(t, http.MethodPost, "/tickets/"+uuid.NewString()+"/classify", "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestJobStatus(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	created := s.createTicket(t, "Payment failed", "card declined")
	jobID := created["job_id"].(string)

	status, body := s.do(t, http.MethodGet, "/jobs/"+jobID, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, jobID, body["job_id"])
	assert.Equal(t, "queued", body["status"])
	assert.Nil(t, body["result"])
	assert.Nil(t, body["exc_info"])
	assert.NotNil(t, body["enqueued_at"])
	assert.Nil(t, body["started_at"])
	assert.Nil(t, body["ended_at"])

	// Run the job the way the worker process would.
	registry := worker.NewRegistry()
	worker.NewClassifyTask(s.repo, classifier.DefaultRules, nil, nil).Register(registry)
	pool := worker.NewPool(worker.Config{Jobs: s.queue, Registry: registry, WorkerID: "test", Concurrency: 1, PollTimeout: time.Second})
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		pool.Run(runCtx)
		close(done)
	}()
	require.Eventually(t, func() bool {
		job, err := s.queue.FetchJob(ctx, jobID)
		return err == nil && job.Status == domain.JobStatusFinished
	}, 5*time.Second, 20*time.Millisecond)
	cancel()
	<-done

	status, body = s.do(t, http.MethodGet, "/jobs/"+jobID, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "finished", body["status"])
	assert.Equal(t, map[string]any{"ok": true, "ticket_id": created["ticket_id"], "classification": "billing"}, body["result"])
	assert.Nil(t, body["exc_info"])
	assert.NotNil(t, body["started_at"])
	assert.NotNil(t, body["ended_at"])

	_, ticket := s.do(t, http.MethodGet, "/tickets/"+created["ticket_id"].(string), "")
	assert.Equal(t, "classified", ticket["status"])
	assert.Equal(t, "billing", ticket["classification"])
}

func TestJobStatus_Failed(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	jobID, err := s.queue.Enqueue(ctx, domain.TaskClassifyTicket, "x")
	require.NoError(t, err)
	_, err = s.queue.Claim(ctx, jobID)
	require.NoError(t, err)
	require.NoError(t, s.queue.Fail(ctx, jobID, "invalid ticket id"))

	status, body := s.do(t, http.MethodGet, "/jobs/"+jobID, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "failed", body["status"])
	assert.Nil(t, body["result"])
	assert.Equal(t, "invalid ticket id", body["exc_info"])
}

func TestJobStatus_Errors(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, http.MethodGet, "/jobs/missing", "")
	assert.Equal(t, http.StatusNotFound, status)
	envelope := errorEnvelope(t, body)
	assert.Equal(t, "job_not_found", envelope["type"])
	assert.Equal(t, "Job not found", envelope["message"])

	s.mr.Close()
	status, body = s.do(t, http.MethodGet, "/jobs/abc123", "")
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "dispatch_unavailable", errorEnvelope(t, body)["type"])

	assert.Equal(t, int64(1), s.metrics.Snapshot().Errors["/jobs/:job_id|GET|dispatch_unavailable"])
}

func TestUnknownRoute(t *testing.T) {
	s := newTestServer(t)
	status, body := s.do(t, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "http_error", errorEnvelope(t, body)["type"])
}

func TestPanicIsRendered(t *testing.T) {
	app := fiber.New()
	RegisterMiddlewares(app, zap.NewNop(), nil, 0)
	app.Get("/boom", func(*fiber.Ctx) error { panic("boom") })

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/boom", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "internal_error", errorEnvelope(t, body)["type"])
}
