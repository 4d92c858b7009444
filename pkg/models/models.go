// Package models defines the wire and domain types shared by the store,
// the broadcast path, and the HTTP surface. Entities reference each other
// by id only; joins happen in the snapshot assembler, never here.
package models

import "time"

// Agent is a named participant in the virtual office.
type Agent struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Role         string    `json:"role"`
	CurrentRoom  string    `json:"room"`
	Status       string    `json:"status"`
	CurrentTask  string    `json:"currentTask"`
	ThoughtChain string    `json:"thoughtChain"`
	TechStack    []string  `json:"techStack"`
	AvatarColor  string    `json:"avatarColor"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Task is a kanban work item. AssignedAgents is a set of agent ids.
type Task struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	Status         string    `json:"status"`
	Priority       int       `json:"priority"`
	CreatedBy      string    `json:"createdBy"`
	AssignedAgents []string  `json:"assignedAgents"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Message is an append-only inter-agent communication record.
type Message struct {
	ID          string    `json:"id"`
	FromAgent   string    `json:"fromAgent"`
	ToAgent     string    `json:"toAgent"`
	Content     string    `json:"content"`
	MessageType string    `json:"messageType"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ActivityEntry is a single audit log record.
type ActivityEntry struct {
	ID        string         `json:"id"`
	AgentID   string         `json:"agentId"`
	Action    string         `json:"action"`
	Details   map[string]any `json:"details"`
	CreatedAt time.Time      `json:"createdAt"`
}

// AgentCost is the aggregated token spend for one agent.
type AgentCost struct {
	AgentID      string  `json:"agentId"`
	InputTokens  int     `json:"totalInput"`
	OutputTokens int     `json:"totalOutput"`
	CostUSD      float64 `json:"totalCost"`
}

// FullState is the coherent read of everything a dashboard needs,
// pinned to the version that was current when the read started.
type FullState struct {
	Agents   []Agent
	Messages []Message
	Tasks    []Task
	Version  int64
}
