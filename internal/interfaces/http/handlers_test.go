package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/tutor-matching/internal/application/service"
	"github.com/garyjia/tutor-matching/internal/infrastructure/persistence/memory"
)

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

type fakeExporter struct{}

func (fakeExporter) Export(ctx context.Context, w io.Writer) error {
	_, err := w.Write([]byte("PK-xlsx"))
	return err
}

type fakeHealth map[string]string

func (f fakeHealth) Health(ctx context.Context) map[string]string { return f }

var now = time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T, health HealthChecker) *gin.Engine {
	t.Helper()
	store := memory.NewStore()
	svc := service.NewWorkflowService(
		service.Repositories{
			Requirements: store.Requirements(),
			Associations: store.Associations(),
			Demos:        store.Demos(),
			Classes:      store.Classes(),
			Outbox:       store.Outbox(),
		},
		store,
		service.NewOutboxHook(store.Outbox(), 10, nopLogger{}),
		nopLogger{},
		service.WithClock(func() time.Time { return now }),
	)
	cfg := DefaultServerConfig()
	cfg.Mode = gin.TestMode
	return NewServer(cfg, svc, fakeExporter{}, health, nopLogger{}).Router()
}

type call struct {
	method, path string
	role, id     string
	body         interface{}
	header       map[string]string
}

func do(t *testing.T, r *gin.Engine, c call) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	var body io.Reader
	if c.body != nil {
		raw, err := json.Marshal(c.body)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(c.method, c.path, body)
	if c.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.role != "" {
		req.Header.Set(HeaderActorRole, c.role)
		req.Header.Set(HeaderActorID, c.id)
	}
	for k, v := range c.header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var resp Response
	if w.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

func dataField(t *testing.T, resp Response, key string) interface{} {
	t.Helper()
	m, ok := resp.Data.(map[string]interface{})
	require.True(t, ok, "data is %T", resp.Data)
	return m[key]
}

var requirementBody = map[string]interface{}{
	"subjects":       []string{"MATHS"},
	"grade_level":    "GRADE_9",
	"board":          "CBSE",
	"teaching_modes": []string{"ONLINE"},
}

func postRequirement(t *testing.T, r *gin.Engine) string {
	t.Helper()
	w, resp := do(t, r, call{method: http.MethodPost, path: "/api/v1/requirements", role: "PARENT", id: "parent-1", body: requirementBody})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, `"1"`, w.Header().Get("ETag"))
	return dataField(t, resp, "id").(string)
}

func TestHealthCheck(t *testing.T) {
	r := newTestServer(t, fakeHealth{"database": "ok"})
	w, resp := do(t, r, call{method: http.MethodGet, path: "/health"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, resp.Success)

	r = newTestServer(t, fakeHealth{"database": "ping failed"})
	w, _ = do(t, r, call{method: http.MethodGet, path: "/health"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestActorHeadersRequired(t *testing.T) {
	r := newTestServer(t, nil)

	w, resp := do(t, r, call{method: http.MethodGet, path: "/api/v1/requirements"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "UNAUTHENTICATED", resp.Code)

	w, _ = do(t, r, call{method: http.MethodGet, path: "/api/v1/requirements", role: "SYSTEM", id: "system"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequirementEndpoints(t *testing.T) {
	r := newTestServer(t, nil)
	id := postRequirement(t, r)

	w, resp := do(t, r, call{method: http.MethodPost, path: "/api/v1/requirements", role: "TUTOR", id: "tutor-a", body: requirementBody})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "INVALID_TRANSITION", resp.Code)

	w, resp = do(t, r, call{method: http.MethodPost, path: "/api/v1/requirements", role: "PARENT", id: "parent-1",
		body: map[string]interface{}{"subjects": []string{}}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_INPUT", resp.Code)

	w, resp = do(t, r, call{method: http.MethodGet, path: "/api/v1/requirements/missing", role: "ADMIN", id: "admin-1"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", resp.Code)

	update := map[string]interface{}{
		"subjects":       []string{"MATHS", "CHEMISTRY"},
		"grade_level":    "GRADE_9",
		"board":          "CBSE",
		"teaching_modes": []string{"ONLINE"},
	}
	w, resp = do(t, r, call{method: http.MethodPut, path: "/api/v1/requirements/" + id, role: "PARENT", id: "parent-1",
		body: update, header: map[string]string{"If-Match": `"7"`}})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "CONCURRENT_MODIFICATION", resp.Code)

	w, _ = do(t, r, call{method: http.MethodPut, path: "/api/v1/requirements/" + id, role: "PARENT", id: "parent-1",
		body: update, header: map[string]string{"If-Match": "nope"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = do(t, r, call{method: http.MethodPut, path: "/api/v1/requirements/" + id, role: "PARENT", id: "parent-1",
		body: update, header: map[string]string{"If-Match": `W/"1"`}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `"2"`, w.Header().Get("ETag"))

	w, resp = do(t, r, call{method: http.MethodGet, path: "/api/v1/requirements", role: "PARENT", id: "parent-2"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, resp.Data)

	w, resp = do(t, r, call{method: http.MethodGet, path: "/api/v1/requirements/" + id + "/events", role: "ADMIN", id: "admin-1"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, resp.Data, 2)
}

func TestDemoFlowEndpoints(t *testing.T) {
	r := newTestServer(t, nil)
	id := postRequirement(t, r)

	w, resp := do(t, r, call{method: http.MethodPost, path: "/api/v1/requirements/" + id + "/associations", role: "TUTOR", id: "tutor-a",
		body: map[string]string{"kind": "APPLIED"}})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "APPLIED", dataField(t, resp, "status"))

	w, resp = do(t, r, call{method: http.MethodPost, path: "/api/v1/requirements/" + id + "/associations", role: "TUTOR", id: "tutor-a",
		body: map[string]string{"kind": "APPLIED"}})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "DUPLICATE_ASSOCIATION", resp.Code)

	w, _ = do(t, r, call{method: http.MethodPost, path: "/api/v1/requirements/" + id + "/associations", role: "TUTOR", id: "tutor-a",
		body: map[string]string{"kind": "ASSIGNED"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = do(t, r, call{method: http.MethodPost, path: "/api/v1/requirements/" + id + "/associations/tutor-a/promote", role: "ADMIN", id: "admin-1",
		body: map[string]string{"target": "ASSIGNED"}})
	require.Equal(t, http.StatusOK, w.Code)

	w, resp = do(t, r, call{method: http.MethodPost, path: "/api/v1/demos", role: "ADMIN", id: "admin-1",
		body: map[string]interface{}{"requirement_id": id, "tutor_id": "tutor-a", "start_at": now.Add(time.Hour), "duration_minutes": 45}})
	require.Equal(t, http.StatusCreated, w.Code)
	demoID := dataField(t, resp, "id").(string)
	assert.Equal(t, "SCHEDULED", dataField(t, resp, "status"))

	w, resp = do(t, r, call{method: http.MethodPost, path: "/api/v1/demo-requests", role: "PARENT", id: "parent-1",
		body: map[string]interface{}{"requirement_id": id, "tutor_id": "tutor-a", "start_at": now.Add(2 * time.Hour), "duration_minutes": 45}})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "CONFLICTING_DEMO", resp.Code)

	w, resp = do(t, r, call{method: http.MethodPost, path: "/api/v1/demos/" + demoID + "/complete", role: "PARENT", id: "parent-1"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "DEMO_NOT_YET_ELAPSED", resp.Code)

	w, _ = do(t, r, call{method: http.MethodPost, path: "/api/v1/demos/" + demoID + "/reschedule", role: "PARENT", id: "parent-1",
		body: map[string]interface{}{"start_at": now.Add(24 * time.Hour), "duration_minutes": 45, "reason": "exam"}})
	require.Equal(t, http.StatusOK, w.Code)

	w, resp = do(t, r, call{method: http.MethodPost, path: "/api/v1/demos/" + demoID + "/reschedule", role: "TUTOR", id: "tutor-a",
		body: map[string]interface{}{"start_at": now.Add(48 * time.Hour), "duration_minutes": 45}})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "RESCHEDULE_ALREADY_PENDING", resp.Code)

	w, _ = do(t, r, call{method: http.MethodPost, path: "/api/v1/demos/" + demoID + "/reschedule/resolve", role: "TUTOR", id: "tutor-a",
		body: map[string]interface{}{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, resp = do(t, r, call{method: http.MethodPost, path: "/api/v1/demos/" + demoID + "/reschedule/resolve", role: "TUTOR", id: "tutor-a",
		body: map[string]interface{}{"accept": true}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "NONE", dataField(t, resp, "reschedule_status"))

	w, resp = do(t, r, call{method: http.MethodPost, path: "/api/v1/demos/" + demoID + "/cancel", role: "TUTOR", id: "tutor-a"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "CANCELLED", dataField(t, resp, "status"))

	w, resp = do(t, r, call{method: http.MethodGet, path: "/api/v1/requirements/" + id + "/demos", role: "ADMIN", id: "admin-1"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, resp.Data, 1)
}

func TestExportPipeline(t *testing.T) {
	r := newTestServer(t, nil)

	w, resp := do(t, r, call{method: http.MethodGet, path: "/api/v1/admin/reports/pipeline.xlsx", role: "PARENT", id: "parent-1"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "FORBIDDEN", resp.Code)

	w, _ = do(t, r, call{method: http.MethodGet, path: "/api/v1/admin/reports/pipeline.xlsx", role: "ADMIN", id: "admin-1"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "pipeline-")
	assert.Equal(t, "PK-xlsx", w.Body.String())
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{"NOT_FOUND", http.StatusNotFound},
		{"INVALID_INPUT", http.StatusBadRequest},
		{"INVALID_TRANSITION", http.StatusUnprocessableEntity},
		{"CONCURRENT_MODIFICATION", http.StatusConflict},
		{"REQUIREMENT_CLOSED", http.StatusUnprocessableEntity},
		{"INTERNAL", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusFor(tt.code), tt.code)
	}
}

func TestParseETag(t *testing.T) {
	for raw, want := range map[string]int64{`3`: 3, `"3"`: 3, `W/"12"`: 12} {
		v, err := parseETag(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, v)
	}
	_, err := parseETag(`"0"`)
	assert.ErrorIs(t, err, service.ErrInvalidInput)
}
