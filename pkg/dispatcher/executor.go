package dispatcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/devswarm/devswarm/pkg/models"
)

// HTTPExecutor runs tasks through the orchestration engine's per-agent
// execution endpoint. The known set restricts which agents it will execute
// for; an empty set means every agent.
type HTTPExecutor struct {
	baseURL string
	client  *http.Client
	known   map[string]bool
}

func NewHTTPExecutor(baseURL string, agentIDs []string) *HTTPExecutor {
	known := make(map[string]bool, len(agentIDs))
	for _, id := range agentIDs {
		known[id] = true
	}
	return &HTTPExecutor{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Minute},
		known:   known,
	}
}

func (e *HTTPExecutor) Known(agentID string) bool {
	if len(e.known) == 0 {
		return true
	}
	return e.known[agentID]
}

// Execute posts the task to the engine and returns its result note. The
// call blocks for the whole run; the dispatcher holds the agent's lock
// meanwhile.
func (e *HTTPExecutor) Execute(ctx context.Context, agentID string, task models.Task) (string, error) {
	body, err := json.Marshal(map[string]any{
		"task_id":     task.ID,
		"title":       task.Title,
		"description": task.Description,
		"priority":    task.Priority,
	})
	if err != nil {
		return "", fmt.Errorf("marshaling execute request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/api/agents/%s/execute", e.baseURL, agentID), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building execute request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("executing task: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("execution returned %d: %s", resp.StatusCode, snippet)
	}

	var result struct {
		Result string `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		// A malformed success body still means the task ran.
		return "", nil
	}
	return result.Result, nil
}
