package web_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modernmen/pulse/pkg/models"
	"github.com/modernmen/pulse/pkg/orchestrator"
	"github.com/modernmen/pulse/pkg/web"
)

func setupTestApp(t *testing.T) (*fiber.App, *orchestrator.Orchestrator) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	o := orchestrator.New(logger, orchestrator.WithoutMirror())
	require.NoError(t, o.RegisterDefaults())
	t.Cleanup(o.Stop)

	return web.NewApp(o), o
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body any) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader

	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	}

	req := httptest.NewRequest(method, path, reader)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := app.Test(req)
	require.NoError(t, err)

	payload, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp, payload
}

func TestHealth(t *testing.T) {
	app, _ := setupTestApp(t)

	resp, body := doJSON(t, app, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"status":"ok"`)
}

func TestEmitEvent(t *testing.T) {
	app, o := setupTestApp(t)

	resp, body := doJSON(t, app, http.MethodPost, "/events", map[string]any{
		"type":     "user",
		"category": "registration",
		"action":   "completed",
		"payload":  map[string]any{"user_id": "u-1"},
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var event models.SystemEvent
	require.NoError(t, json.Unmarshal(body, &event))
	assert.NotEmpty(t, event.ID)
	assert.Equal(t, "api", event.Source)
	assert.Equal(t, "user.registration.completed", event.Signature())

	// The registration rule started an onboarding workflow.
	assert.Len(t, o.ActiveWorkflows(), 1)
}

func TestEmitEventValidation(t *testing.T) {
	app, _ := setupTestApp(t)

	resp, body := doJSON(t, app, http.MethodPost, "/events", map[string]any{
		"type": "user",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), "required")
}

func TestRecentEvents(t *testing.T) {
	app, _ := setupTestApp(t)

	doJSON(t, app, http.MethodPost, "/events", map[string]any{
		"type": "system", "category": "health", "action": "checked",
	})

	resp, body := doJSON(t, app, http.MethodGet, "/events?limit=10", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Events []models.SystemEvent `json:"events"`
		Count  int                  `json:"count"`
	}
	require.NoError(t, json.Unmarshal(body, &result))
	assert.Positive(t, result.Count)

	resp, _ = doJSON(t, app, http.MethodGet, "/events?limit=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRuleEndpoints(t *testing.T) {
	app, _ := setupTestApp(t)

	resp, body := doJSON(t, app, http.MethodGet, "/rules", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var listing struct {
		Rules []models.OrchestrationRule `json:"rules"`
	}
	require.NoError(t, json.Unmarshal(body, &listing))
	assert.Len(t, listing.Rules, 3)

	// Register a new rule.
	resp, _ = doJSON(t, app, http.MethodPost, "/rules", models.OrchestrationRule{
		ID:   "slow_day_alert",
		Name: "Alert on slow days",
		Trigger: models.RuleTrigger{
			EventSignature: "business.bookings.summarized",
			Conditions: models.ConditionSet{
				"total": map[string]any{"$lt": 3},
			},
		},
		Actions: []models.RuleAction{
			{Kind: "create_task", Config: map[string]any{
				"title":    "Run a promotion",
				"assignee": "marketing",
			}},
		},
		Enabled: true,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, _ = doJSON(t, app, http.MethodGet, "/rules/slow_day_alert", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Invalid rule is rejected with a problem document.
	resp, body = doJSON(t, app, http.MethodPost, "/rules", models.OrchestrationRule{
		ID:   "broken",
		Name: "Broken rule",
		Trigger: models.RuleTrigger{
			EventSignature: "a.b.c",
		},
		Actions: []models.RuleAction{{Kind: "no_such_action"}},
		Enabled: true,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), "validation_error")

	// Enable / disable round trip.
	resp, body = doJSON(t, app, http.MethodPost, "/rules/slow_day_alert/disable", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var rule models.OrchestrationRule
	require.NoError(t, json.Unmarshal(body, &rule))
	assert.False(t, rule.Enabled)

	resp, _ = doJSON(t, app, http.MethodPost, "/rules/missing/enable", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestTemplateEndpoints(t *testing.T) {
	app, _ := setupTestApp(t)

	resp, body := doJSON(t, app, http.MethodGet, "/templates", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "onboarding")

	resp, body = doJSON(t, app, http.MethodPost, "/templates", models.WorkflowTemplate{
		Type: "cleanup",
		Name: "Nightly cleanup",
		Steps: []models.StepTemplate{
			{
				ID:   "archive",
				Name: "Archive stale records",
				Kind: models.StepKindAction,
				Config: models.StepConfig{
					ActionKind: "create_task",
					ActionConfig: map[string]any{
						"title":    "Archive stale records",
						"assignee": "ops",
					},
				},
			},
		},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// A template with a dangling branch target is a configuration error.
	resp, body = doJSON(t, app, http.MethodPost, "/templates", models.WorkflowTemplate{
		Type: "broken",
		Name: "Broken template",
		Steps: []models.StepTemplate{
			{
				ID:   "route",
				Name: "Route",
				Kind: models.StepKindDecision,
				Config: models.StepConfig{
					Condition: models.ConditionSet{"x": 1},
					OnTrue:    "nowhere",
					OnFalse:   "also_nowhere",
				},
			},
		},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), "validation_error")
}

func TestWorkflowEndpoints(t *testing.T) {
	app, _ := setupTestApp(t)

	resp, body := doJSON(t, app, http.MethodPost, "/workflows", map[string]any{
		"type": "onboarding",
		"name": "Manual onboarding",
		"context": map[string]any{
			"user_id": "u-7",
		},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var wf models.WorkflowExecution
	require.NoError(t, json.Unmarshal(body, &wf))
	assert.Equal(t, models.WorkflowStatusRunning, wf.Status)

	resp, _ = doJSON(t, app, http.MethodGet, "/workflows/"+wf.ID, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = doJSON(t, app, http.MethodGet, "/workflows?status=running", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), wf.ID)

	// Unknown template maps to 404.
	resp, _ = doJSON(t, app, http.MethodPost, "/workflows", map[string]any{"type": "ghost"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Cancel, then cancel again: the second is a conflict.
	resp, body = doJSON(t, app, http.MethodPost, "/workflows/"+wf.ID+"/cancel", map[string]any{
		"reason": "test teardown",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &wf))
	assert.Equal(t, models.WorkflowStatusCancelled, wf.Status)

	resp, _ = doJSON(t, app, http.MethodPost, "/workflows/"+wf.ID+"/cancel", map[string]any{})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAdvanceStepEndpoint(t *testing.T) {
	app, _ := setupTestApp(t)

	resp, body := doJSON(t, app, http.MethodPost, "/workflows", map[string]any{
		"type":    "onboarding",
		"context": map[string]any{"user_id": "u-3"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var wf models.WorkflowExecution
	require.NoError(t, json.Unmarshal(body, &wf))

	// The onboarding workflow suspends on its settle-in wait; advancing it
	// externally completes the rest.
	resp, body = doJSON(t, app, http.MethodPost, "/workflows/"+wf.ID+"/steps/settle_in/advance", map[string]any{
		"result": map[string]any{"resumed_by": "test"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &wf))
	assert.Equal(t, models.WorkflowStatusCompleted, wf.Status)

	resp, _ = doJSON(t, app, http.MethodPost, "/workflows/"+wf.ID+"/steps/settle_in/advance", map[string]any{})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestStateAndActions(t *testing.T) {
	app, _ := setupTestApp(t)

	resp, body := doJSON(t, app, http.MethodGet, "/actions", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "send_notification")
	assert.Contains(t, string(body), "start_workflow")

	resp, body = doJSON(t, app, http.MethodGet, "/state", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "events_logged")
}
