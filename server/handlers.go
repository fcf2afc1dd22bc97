package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/reedworks/reedflow/engine"
	"github.com/reedworks/reedflow/workflow"
)

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleStepKinds returns the supported step kinds.
func (s *Server) handleStepKinds(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, workflow.Kinds())
}

// validationResponse is the body returned by the validate endpoint.
type validationResponse struct {
	Valid       bool                  `json:"valid"`
	Diagnostics []workflow.Diagnostic `json:"diagnostics"`
}

// handleValidate validates a workflow definition without storing it.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	def, ok := s.readDefinition(w, r)
	if !ok {
		return
	}

	diags := workflow.Validate(def)
	writeJSON(w, http.StatusOK, validationResponse{
		Valid:       !workflow.HasErrors(diags),
		Diagnostics: diags,
	})
}

// handleListWorkflows returns all stored workflows.
func (s *Server) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	records, err := s.workflows.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}
	if records == nil {
		records = []WorkflowRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

// handleGetWorkflow returns a single workflow by ID.
func (s *Server) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rec, ok, err := s.workflows.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("workflow %q not found", id))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleCreateWorkflow stores a new workflow definition.
func (s *Server) handleCreateWorkflow(w http.ResponseWriter, r *http.Request) {
	def, ok := s.readDefinition(w, r)
	if !ok {
		return
	}

	diags := workflow.Validate(def)
	if workflow.HasErrors(diags) {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR",
			"workflow validation failed", diagMessages(diags)...)
		return
	}

	now := time.Now()
	id := def.ID
	if id == "" {
		id = uuid.New().String()
		def.ID = id
	}

	rec := WorkflowRecord{
		ID:         id,
		Name:       def.Name,
		Definition: def,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.workflows.Create(r.Context(), rec); err != nil {
		if errors.Is(err, ErrWorkflowExists) {
			writeError(w, http.StatusConflict, "CONFLICT", fmt.Sprintf("workflow %q already exists", id))
			return
		}
		writeError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}

	s.logger.Info("workflow created", "id", id, "steps", len(def.Steps))
	writeJSON(w, http.StatusCreated, rec)
}

// handleUpdateWorkflow replaces a stored workflow definition.
func (s *Server) handleUpdateWorkflow(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	def, ok := s.readDefinition(w, r)
	if !ok {
		return
	}

	diags := workflow.Validate(def)
	if workflow.HasErrors(diags) {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR",
			"workflow validation failed", diagMessages(diags)...)
		return
	}

	existing, found, err := s.workflows.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("workflow %q not found", id))
		return
	}

	def.ID = id
	rec := WorkflowRecord{
		ID:         id,
		Name:       def.Name,
		Definition: def,
		CreatedAt:  existing.CreatedAt,
		UpdatedAt:  time.Now(),
	}
	if err := s.workflows.Update(r.Context(), rec); err != nil {
		writeError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleDeleteWorkflow removes a stored workflow.
func (s *Server) handleDeleteWorkflow(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.workflows.Delete(r.Context(), id); err != nil {
		if errors.Is(err, ErrWorkflowNotFound) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("workflow %q not found", id))
			return
		}
		writeError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// runRequest is the optional body for the run endpoint.
type runRequest struct {
	Input any `json:"input"`
}

// runResponse pairs a run record with its step executions.
type runResponse struct {
	Run   engine.Run             `json:"run"`
	Steps []engine.StepExecution `json:"steps"`
}

// handleRunWorkflow executes a stored workflow synchronously.
func (s *Server) handleRunWorkflow(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rec, found, err := s.workflows.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("workflow %q not found", id))
		return
	}

	var req runRequest
	if r.Body != nil {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			if isMaxBytesError(err) {
				writeError(w, http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE", "request body exceeds size limit")
				return
			}
			writeError(w, http.StatusBadRequest, "READ_ERROR", err.Error())
			return
		}
		if len(body) > 0 {
			if err := json.Unmarshal(body, &req); err != nil {
				writeError(w, http.StatusBadRequest, "PARSE_ERROR", err.Error())
				return
			}
		}
	}

	g, err := workflow.Compile(rec.Definition)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "COMPILE_ERROR", err.Error())
		return
	}

	run, err := s.engine.Execute(r.Context(), g, req.Input, engine.RunOptions{
		EventHandler: s.events,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "EXECUTION_ERROR", err.Error())
		return
	}

	steps, err := s.engine.Store().ListStepExecutions(r.Context(), run.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}
	if steps == nil {
		steps = []engine.StepExecution{}
	}

	writeJSON(w, http.StatusOK, runResponse{Run: *run, Steps: steps})
}

// handleListRuns returns all recorded runs.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.engine.Store().ListRuns(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}
	if runs == nil {
		runs = []engine.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// handleGetRun returns one run by ID.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("run_id")
	run, ok, err := s.engine.Store().GetRun(r.Context(), runID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("run %q not found", runID))
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// handleRunSteps returns a run's step executions.
func (s *Server) handleRunSteps(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("run_id")
	if _, ok, err := s.engine.Store().GetRun(r.Context(), runID); err != nil {
		writeError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	} else if !ok {
		writeError(w, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("run %q not found", runID))
		return
	}

	steps, err := s.engine.Store().ListStepExecutions(r.Context(), runID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}
	if steps == nil {
		steps = []engine.StepExecution{}
	}
	writeJSON(w, http.StatusOK, steps)
}

// handleCancelRun requests cancellation of an active run.
func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("run_id")
	if s.engine.Cancel(runID) {
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
		return
	}

	run, ok, err := s.engine.Store().GetRun(r.Context(), runID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("run %q not found", runID))
		return
	}
	writeError(w, http.StatusConflict, "NOT_RUNNING",
		fmt.Sprintf("run %q is already %s", runID, run.Status))
}

// readDefinition decodes a workflow definition request body, replying
// with the appropriate error response on failure.
func (s *Server) readDefinition(w http.ResponseWriter, r *http.Request) (*workflow.Definition, bool) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		if isMaxBytesError(err) {
			writeError(w, http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE", "request body exceeds size limit")
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "READ_ERROR", err.Error())
		return nil, false
	}

	var def workflow.Definition
	if err := json.Unmarshal(body, &def); err != nil {
		writeError(w, http.StatusBadRequest, "PARSE_ERROR", err.Error())
		return nil, false
	}
	return &def, true
}

func diagMessages(diags []workflow.Diagnostic) []string {
	errs := workflow.Errors(diags)
	out := make([]string, 0, len(errs))
	for _, d := range errs {
		out = append(out, d.Message)
	}
	return out
}

func isMaxBytesError(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}
