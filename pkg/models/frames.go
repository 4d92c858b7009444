package models

// WebSocket frame type discriminators.
const (
	FrameStateUpdate = "STATE_UPDATE"
	FrameDeltaUpdate = "DELTA_UPDATE"
)

// Delta categories.
const (
	CategoryAgents   = "agents"
	CategoryTasks    = "tasks"
	CategoryMessages = "messages"
)

// StateFrame is the full-state WebSocket broadcast payload. Agents are keyed
// by id; messages and tasks are omitted entirely when empty so idle offices
// stay cheap to push.
type StateFrame struct {
	Type     string           `json:"type"`
	Agents   map[string]Agent `json:"agents"`
	Messages []Message        `json:"messages,omitempty"`
	Tasks    []Task           `json:"tasks,omitempty"`
	Version  int64            `json:"version"`
}

// DeltaFrame carries a single entity create/update. The data payload is the
// full current entity, so clients merge by (category, id) replacement.
type DeltaFrame struct {
	Type     string `json:"type"`
	Category string `json:"category"`
	ID       string `json:"id"`
	Data     any    `json:"data"`
}
