// Package template renders action configuration values against the data an
// action can see: the triggering event and the workflow context.
package template

import (
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/modernmen/pulse/pkg/protocol"
)

// RenderWithContext renders one configuration string against the action's
// execution context. Event fields are reachable under .event and
// .event.payload, workflow context fields under .context.
func RenderWithContext(input string, actionCtx protocol.ActionContext) (string, error) {
	data := map[string]any{
		"workflow_id": actionCtx.WorkflowID,
		"step_id":     actionCtx.StepID,
		"context":     actionCtx.Context,
	}

	if actionCtx.Event != nil {
		data["event"] = map[string]any{
			"id":         actionCtx.Event.ID,
			"signature":  actionCtx.Event.Signature(),
			"subject_id": actionCtx.Event.SubjectID,
			"payload":    actionCtx.Event.Payload,
		}
	}

	return Render(input, data)
}

// Render executes a Go template string against arbitrary data.
func Render(templateStr string, data any) (string, error) {
	tmpl, err := template.
		New("config").
		Option("missingkey=zero").
		Funcs(template.FuncMap{
			"now": func() string {
				return time.Now().UTC().Format(time.RFC3339)
			},
		}).Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
	}

	var buf strings.Builder

	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template '%s': %w", templateStr, err)
	}

	// missingkey=zero renders absent map keys as "<no value>".
	return strings.ReplaceAll(buf.String(), "<no value>", ""), nil
}

// RenderConfig renders every string value of an action configuration,
// leaving non-string values untouched. The input map is not modified.
func RenderConfig(config map[string]any, actionCtx protocol.ActionContext) (map[string]any, error) {
	out := make(map[string]any, len(config))

	for key, value := range config {
		str, ok := value.(string)
		if !ok {
			out[key] = value

			continue
		}

		rendered, err := RenderWithContext(str, actionCtx)
		if err != nil {
			return nil, fmt.Errorf("config key %q: %w", key, err)
		}

		out[key] = rendered
	}

	return out, nil
}
