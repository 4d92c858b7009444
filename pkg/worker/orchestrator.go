package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/devswarm/devswarm/pkg/bus"
)

// HTTPOrchestrator triggers goal execution over the orchestration engine's
// HTTP API.
type HTTPOrchestrator struct {
	baseURL string
	client  *http.Client
}

func NewHTTPOrchestrator(baseURL string) *HTTPOrchestrator {
	return &HTTPOrchestrator{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

// Run posts the goal to the engine's trigger endpoint and treats any
// non-2xx response as failure.
func (o *HTTPOrchestrator) Run(ctx context.Context, goal bus.Goal) error {
	body, err := json.Marshal(map[string]any{
		"goal":        goal.Goal,
		"priority":    goal.Priority,
		"assigned_to": goal.AssignedTo,
	})
	if err != nil {
		return fmt.Errorf("marshaling trigger request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		o.baseURL+"/api/orchestrate", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building trigger request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return fmt.Errorf("triggering orchestration: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("orchestration trigger returned %d: %s", resp.StatusCode, snippet)
	}
	return nil
}
