package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/reedworks/reedflow/engine"
	"github.com/reedworks/reedflow/workflow"
)

const testWorkflowJSON = `{
  "id": "wf-test",
  "name": "test flow",
  "steps": [
    {
      "id": "shape",
      "kind": "transform",
      "config": {"operation": "template", "script": "value={{.input}}"},
      "position": {"x": 0, "y": 0}
    }
  ],
  "connections": []
}`

func newTestServer(t *testing.T) *Server {
	t.Helper()

	reg := engine.NewRegistry()
	for _, kind := range workflow.Kinds() {
		reg.Register(kind, engine.CapabilityFunc(
			func(ctx context.Context, config map[string]any, input any) (any, error) {
				return fmt.Sprintf("value=%v", input), nil
			}))
	}

	logger := slog.New(slog.DiscardHandler)
	return New(Config{
		Engine: engine.New(engine.Config{Registry: reg, Logger: logger}),
		Logger: logger,
	})
}

func doRequest(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response: %v\nbody: %s", err, rec.Body.String())
	}
	return v
}

func TestHealth(t *testing.T) {
	h := newTestServer(t).Handler()
	rec := doRequest(t, h, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestStepKinds(t *testing.T) {
	h := newTestServer(t).Handler()
	rec := doRequest(t, h, http.MethodGet, "/api/step-kinds", "")
	kinds := decodeBody[[]string](t, rec)
	if len(kinds) != 4 {
		t.Errorf("kinds = %v, want 4", kinds)
	}
}

func TestValidate_Valid(t *testing.T) {
	h := newTestServer(t).Handler()
	rec := doRequest(t, h, http.MethodPost, "/api/validate", testWorkflowJSON)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[validationResponse](t, rec)
	if !resp.Valid {
		t.Errorf("valid = false, diagnostics = %v", resp.Diagnostics)
	}
}

func TestValidate_ReportsErrors(t *testing.T) {
	const invalid = `{
  "id": "bad",
  "steps": [{"id": "a", "kind": "transform", "config": {}, "position": {"x": 0, "y": 0}}],
  "connections": [{"id": "c1", "source": "a", "target": "a"}]
}`
	h := newTestServer(t).Handler()
	rec := doRequest(t, h, http.MethodPost, "/api/validate", invalid)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decodeBody[validationResponse](t, rec)
	if resp.Valid {
		t.Error("invalid workflow reported valid")
	}
	var foundSelfLoop bool
	for _, d := range resp.Diagnostics {
		if strings.Contains(d.Message, "self-referencing") {
			foundSelfLoop = true
		}
	}
	if !foundSelfLoop {
		t.Errorf("diagnostics = %v, want a self-referencing error", resp.Diagnostics)
	}
}

func TestValidate_MalformedBody(t *testing.T) {
	h := newTestServer(t).Handler()
	rec := doRequest(t, h, http.MethodPost, "/api/validate", "{")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestWorkflowCRUD(t *testing.T) {
	h := newTestServer(t).Handler()

	// Create
	rec := doRequest(t, h, http.MethodPost, "/api/workflows", testWorkflowJSON)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body.String())
	}
	created := decodeBody[WorkflowRecord](t, rec)
	if created.ID != "wf-test" {
		t.Errorf("created id = %q", created.ID)
	}

	// Duplicate create conflicts
	rec = doRequest(t, h, http.MethodPost, "/api/workflows", testWorkflowJSON)
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate create status = %d, want 409", rec.Code)
	}

	// Get
	rec = doRequest(t, h, http.MethodGet, "/api/workflows/wf-test", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}

	// List
	rec = doRequest(t, h, http.MethodGet, "/api/workflows", "")
	records := decodeBody[[]WorkflowRecord](t, rec)
	if len(records) != 1 {
		t.Errorf("list = %d records, want 1", len(records))
	}

	// Update
	updated := strings.Replace(testWorkflowJSON, `"name": "test flow"`, `"name": "renamed"`, 1)
	rec = doRequest(t, h, http.MethodPut, "/api/workflows/wf-test", updated)
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d: %s", rec.Code, rec.Body.String())
	}
	if decodeBody[WorkflowRecord](t, rec).Name != "renamed" {
		t.Error("update did not take")
	}

	// Delete
	rec = doRequest(t, h, http.MethodDelete, "/api/workflows/wf-test", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	rec = doRequest(t, h, http.MethodGet, "/api/workflows/wf-test", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", rec.Code)
	}
}

func TestCreateWorkflow_RejectsInvalid(t *testing.T) {
	const invalid = `{"id": "bad", "steps": [{"id": "", "kind": "transform", "config": {"operation": "pick", "script": "a"}, "position": {"x": 0, "y": 0}}]}`
	h := newTestServer(t).Handler()
	rec := doRequest(t, h, http.MethodPost, "/api/workflows", invalid)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
	errBody := decodeBody[apiError](t, rec)
	if errBody.Error.Code != "VALIDATION_ERROR" || len(errBody.Error.Details) == 0 {
		t.Errorf("error = %+v", errBody.Error)
	}
}

func TestRunWorkflow(t *testing.T) {
	h := newTestServer(t).Handler()

	rec := doRequest(t, h, http.MethodPost, "/api/workflows", testWorkflowJSON)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d", rec.Code)
	}

	rec = doRequest(t, h, http.MethodPost, "/api/workflows/wf-test/run", `{"input": "seed"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("run status = %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[runResponse](t, rec)
	if resp.Run.Status != engine.RunCompleted {
		t.Errorf("run status = %q", resp.Run.Status)
	}
	if resp.Run.Output != "value=seed" {
		t.Errorf("run output = %v", resp.Run.Output)
	}
	if len(resp.Steps) != 1 || resp.Steps[0].Status != engine.StepSucceeded {
		t.Errorf("steps = %+v", resp.Steps)
	}

	// The run is visible in history.
	rec = doRequest(t, h, http.MethodGet, "/api/runs/"+resp.Run.ID, "")
	if rec.Code != http.StatusOK {
		t.Errorf("get run status = %d", rec.Code)
	}
	rec = doRequest(t, h, http.MethodGet, "/api/runs/"+resp.Run.ID+"/steps", "")
	steps := decodeBody[[]engine.StepExecution](t, rec)
	if len(steps) != 1 {
		t.Errorf("steps = %d, want 1", len(steps))
	}
}

func TestRunWorkflow_NotFound(t *testing.T) {
	h := newTestServer(t).Handler()
	rec := doRequest(t, h, http.MethodPost, "/api/workflows/absent/run", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestListRuns_EmptyIsArray(t *testing.T) {
	h := newTestServer(t).Handler()
	rec := doRequest(t, h, http.MethodGet, "/api/runs", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("body = %q, want empty array", rec.Body.String())
	}
}

func TestCancelRun_NotFound(t *testing.T) {
	h := newTestServer(t).Handler()
	rec := doRequest(t, h, http.MethodPost, "/api/runs/absent/cancel", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestCancelRun_AlreadyFinished(t *testing.T) {
	h := newTestServer(t).Handler()

	doRequest(t, h, http.MethodPost, "/api/workflows", testWorkflowJSON)
	rec := doRequest(t, h, http.MethodPost, "/api/workflows/wf-test/run", "")
	resp := decodeBody[runResponse](t, rec)

	rec = doRequest(t, h, http.MethodPost, "/api/runs/"+resp.Run.ID+"/cancel", "")
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
}

func TestCORSPreflights(t *testing.T) {
	h := newTestServer(t).Handler()
	req := httptest.NewRequest(http.MethodOptions, "/api/workflows", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header")
	}
}

func TestMaxBodyLimit(t *testing.T) {
	srv := New(Config{
		Engine:  engine.New(engine.Config{Logger: slog.New(slog.DiscardHandler)}),
		Logger:  slog.New(slog.DiscardHandler),
		MaxBody: 16,
	})
	h := srv.Handler()
	rec := doRequest(t, h, http.MethodPost, "/api/validate", testWorkflowJSON)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", rec.Code)
	}
}
