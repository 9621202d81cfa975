package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runweave/runweave/pkg/events"
	"github.com/runweave/runweave/pkg/models"
	"github.com/runweave/runweave/pkg/persistence/file"
	"github.com/runweave/runweave/pkg/registry"
	"github.com/runweave/runweave/pkg/testutil"
	"github.com/runweave/runweave/pkg/web"
)

func setupTestApp(t *testing.T) *fiber.App {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)
	store := file.NewPersistence(t.TempDir())

	catalog := registry.NewToolCatalog()
	reg := registry.NewRegistry(logger)
	reg.RegisterDefaultExecutors(catalog, catalog)

	api := NewAPI(logger, store, reg, catalog, nil, nil, t.TempDir(), time.Minute)

	app, err := api.App()
	require.NoError(t, err)

	return app
}

func doJSON(t *testing.T, app *fiber.App, method, target string, body any) *http.Response {
	t.Helper()

	var reader io.Reader

	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)

		reader = bytes.NewReader(encoded)
	}

	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, fiber.TestConfig{Timeout: 10 * time.Second})
	require.NoError(t, err)

	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()

	defer func() { _ = resp.Body.Close() }()

	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func saveWorkflowRequest(workflow *models.Workflow) web.SaveWorkflowRequest {
	return web.SaveWorkflowRequest{
		ID:        workflow.ID,
		Name:      workflow.Name,
		Nodes:     workflow.Nodes,
		Edges:     workflow.Edges,
		Variables: workflow.Variables,
		Owner:     "test-user",
	}
}

func createWorkflow(t *testing.T, app *fiber.App) *models.Workflow {
	t.Helper()

	workflow := testutil.CreateTestWorkflow()

	resp := doJSON(t, app, http.MethodPost, "/workflows", saveWorkflowRequest(workflow))
	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusCreated, resp.StatusCode)

	return workflow
}

func createRun(t *testing.T, app *fiber.App, workflowID string) web.RunResponse {
	t.Helper()

	resp := doJSON(t, app, http.MethodPost, "/runs", web.CreateRunRequest{
		WorkflowID: workflowID,
		ProjectID:  "test-project",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var run web.RunResponse

	decodeBody(t, resp, &run)

	return run
}

func TestAPI_RootEndpoint(t *testing.T) {
	app := setupTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "Runweave API", string(body))
}

func TestAPI_HealthCheck(t *testing.T) {
	app := setupTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)

	var health map[string]any

	decodeBody(t, resp, &health)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", health["status"])
}

func TestAPI_SaveWorkflow(t *testing.T) {
	app := setupTestApp(t)

	workflow := testutil.CreateTestWorkflow()

	resp := doJSON(t, app, http.MethodPost, "/workflows", saveWorkflowRequest(workflow))

	var saved models.Workflow

	decodeBody(t, resp, &saved)

	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, workflow.ID, saved.ID)
	assert.False(t, saved.CreatedAt.IsZero())
}

func TestAPI_SaveWorkflow_MissingNameRejected(t *testing.T) {
	app := setupTestApp(t)

	request := saveWorkflowRequest(testutil.CreateTestWorkflow())
	request.Name = ""

	resp := doJSON(t, app, http.MethodPost, "/workflows", request)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_SaveWorkflow_InvalidGraphRejectedWhole(t *testing.T) {
	app := setupTestApp(t)

	workflow := testutil.CreateTestWorkflow(testutil.WithGraph(
		[]*models.WorkflowNode{
			testutil.StartNode("start"),
			testutil.CreateTestNode(testutil.WithID("work")),
		},
		[]*models.Edge{testutil.EdgeBetween("start", "work")},
	))

	resp := doJSON(t, app, http.MethodPost, "/workflows", saveWorkflowRequest(workflow))

	var problem map[string]any

	decodeBody(t, resp, &problem)

	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	// Nothing was persisted.
	getResp := doJSON(t, app, http.MethodGet, "/workflows/"+workflow.ID, nil)
	defer func() { _ = getResp.Body.Close() }()

	assert.Equal(t, http.StatusNotFound, getResp.StatusCode)
}

func TestAPI_GetWorkflow_NotFound(t *testing.T) {
	app := setupTestApp(t)

	resp := doJSON(t, app, http.MethodGet, "/workflows/missing", nil)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_CreateRun(t *testing.T) {
	app := setupTestApp(t)
	workflow := createWorkflow(t, app)

	run := createRun(t, app, workflow.ID)

	assert.NotEmpty(t, run.ID)
	assert.Equal(t, workflow.ID, run.WorkflowID)
	assert.Equal(t, "created", run.Status)
}

func TestAPI_CreateRun_UnknownWorkflowRejected(t *testing.T) {
	app := setupTestApp(t)

	resp := doJSON(t, app, http.MethodPost, "/runs", web.CreateRunRequest{
		WorkflowID: "missing",
		ProjectID:  "test-project",
	})
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_CreateRun_MissingFieldsRejected(t *testing.T) {
	app := setupTestApp(t)

	resp := doJSON(t, app, http.MethodPost, "/runs", map[string]any{"workflow_id": ""})
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_CreateRun_IdempotencyKeyReturnsSameRun(t *testing.T) {
	app := setupTestApp(t)
	workflow := createWorkflow(t, app)

	request := web.CreateRunRequest{
		WorkflowID:     workflow.ID,
		ProjectID:      "test-project",
		IdempotencyKey: "retry-key",
	}

	first := doJSON(t, app, http.MethodPost, "/runs", request)

	var firstRun web.RunResponse

	decodeBody(t, first, &firstRun)

	second := doJSON(t, app, http.MethodPost, "/runs", request)

	var secondRun web.RunResponse

	decodeBody(t, second, &secondRun)

	assert.Equal(t, firstRun.ID, secondRun.ID)
}

func TestAPI_GetRun(t *testing.T) {
	app := setupTestApp(t)
	workflow := createWorkflow(t, app)
	run := createRun(t, app, workflow.ID)

	resp := doJSON(t, app, http.MethodGet, "/runs/"+run.ID, nil)

	var fetched web.RunResponse

	decodeBody(t, resp, &fetched)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, run.ID, fetched.ID)
}

func TestAPI_GetRun_NotFound(t *testing.T) {
	app := setupTestApp(t)

	resp := doJSON(t, app, http.MethodGet, "/runs/missing", nil)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_StartExecution_StreamsEventsUntilTerminal(t *testing.T) {
	app := setupTestApp(t)
	workflow := createWorkflow(t, app)
	run := createRun(t, app, workflow.ID)

	resp := doJSON(t, app, http.MethodPost, "/runs/"+run.ID+"/execute", web.StartExecutionRequest{
		Input: map[string]any{"customer": "acme"},
	})
	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/x-ndjson", resp.Header.Get("Content-Type"))

	var streamed []events.RunEvent

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		var event events.RunEvent

		require.NoError(t, json.Unmarshal(scanner.Bytes(), &event))
		streamed = append(streamed, event)
	}

	require.NoError(t, scanner.Err())
	require.NotEmpty(t, streamed)

	assert.Equal(t, events.WorkflowStartEvent, streamed[0].Type)
	assert.True(t, streamed[len(streamed)-1].Type.IsTerminal())

	for i, event := range streamed {
		assert.Equal(t, int64(i+1), event.Sequence)
	}
}

func TestAPI_StartExecution_RepeatIsConflict(t *testing.T) {
	app := setupTestApp(t)
	workflow := createWorkflow(t, app)
	run := createRun(t, app, workflow.ID)

	first := doJSON(t, app, http.MethodPost, "/runs/"+run.ID+"/execute", nil)
	_ = first.Body.Close()

	require.Equal(t, http.StatusOK, first.StatusCode)

	second := doJSON(t, app, http.MethodPost, "/runs/"+run.ID+"/execute", nil)
	defer func() { _ = second.Body.Close() }()

	assert.Equal(t, http.StatusConflict, second.StatusCode)
}

func TestAPI_StartExecution_WorkflowMismatchIsConflict(t *testing.T) {
	app := setupTestApp(t)
	workflow := createWorkflow(t, app)
	run := createRun(t, app, workflow.ID)

	resp := doJSON(t, app, http.MethodPost, "/runs/"+run.ID+"/execute", web.StartExecutionRequest{
		WorkflowID: "some-other-workflow",
	})
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// The run is untouched and still startable.
	getResp := doJSON(t, app, http.MethodGet, "/runs/"+run.ID, nil)

	var stored web.RunResponse

	decodeBody(t, getResp, &stored)
	assert.Equal(t, "created", stored.Status)
}

func TestAPI_StartExecution_UnknownRun(t *testing.T) {
	app := setupTestApp(t)

	resp := doJSON(t, app, http.MethodPost, "/runs/missing/execute", nil)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_ReplayEvents_CursorPagination(t *testing.T) {
	app := setupTestApp(t)
	workflow := createWorkflow(t, app)
	run := createRun(t, app, workflow.ID)

	execResp := doJSON(t, app, http.MethodPost, "/runs/"+run.ID+"/execute", nil)
	_ = execResp.Body.Close()

	require.Equal(t, http.StatusOK, execResp.StatusCode)

	resp := doJSON(t, app, http.MethodGet, "/runs/"+run.ID+"/events?limit=2", nil)

	var page struct {
		Events     []events.RunEvent `json:"events"`
		NextCursor int64             `json:"next_cursor"`
		HasMore    bool              `json:"has_more"`
	}

	decodeBody(t, resp, &page)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, page.Events, 2)
	assert.True(t, page.HasMore)
	assert.Equal(t, int64(2), page.NextCursor)

	resp = doJSON(t, app, http.MethodGet, "/runs/"+run.ID+"/events?cursor=2", nil)
	decodeBody(t, resp, &page)

	require.NotEmpty(t, page.Events)
	assert.Equal(t, int64(3), page.Events[0].Sequence)
	assert.False(t, page.HasMore)
}

func TestAPI_ReplayEvents_InvalidCursorRejected(t *testing.T) {
	app := setupTestApp(t)
	workflow := createWorkflow(t, app)
	run := createRun(t, app, workflow.ID)

	resp := doJSON(t, app, http.MethodGet, "/runs/"+run.ID+"/events?cursor=banana", nil)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_GetConfirmation_NotFound(t *testing.T) {
	app := setupTestApp(t)

	resp := doJSON(t, app, http.MethodGet, "/confirmations/missing", nil)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_ResolveConfirmation_InvalidDecisionRejected(t *testing.T) {
	app := setupTestApp(t)

	resp := doJSON(t, app, http.MethodPost, "/confirmations/some-id/resolve", map[string]any{
		"decision": "maybe",
	})
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
