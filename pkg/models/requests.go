package models

import "encoding/json"

// Request DTOs accept both the documented camelCase field names and their
// snake_case equivalents on ingress. Producers (this service included) emit
// camelCase; older collaborators still send snake_case. When a payload
// carries both spellings the camelCase value wins.

// TaskCreateRequest is the payload for POST /api/tasks.
type TaskCreateRequest struct {
	Title          string
	Description    string
	Status         string
	Priority       int
	CreatedBy      string
	AssignedAgents []string
}

func (r *TaskCreateRequest) UnmarshalJSON(data []byte) error {
	var w struct {
		Title          string    `json:"title"`
		Description    string    `json:"description"`
		Status         string    `json:"status"`
		Priority       int       `json:"priority"`
		CreatedBy      *string   `json:"createdBy"`
		CreatedBySnake *string   `json:"created_by"`
		Assigned       *[]string `json:"assignedAgents"`
		AssignedSnake  *[]string `json:"assigned_agents"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	r.Title = w.Title
	r.Description = w.Description
	r.Status = w.Status
	r.Priority = w.Priority
	r.CreatedBy = pick(w.CreatedBy, w.CreatedBySnake)
	if w.Assigned != nil {
		r.AssignedAgents = *w.Assigned
	} else if w.AssignedSnake != nil {
		r.AssignedAgents = *w.AssignedSnake
	}
	return nil
}

// TaskStatusRequest is the payload for PATCH /api/tasks/{id}/status.
type TaskStatusRequest struct {
	Status string `json:"status"`
}

// AgentPatchRequest is the payload for PATCH /api/agents/{id}. Nil fields
// are left untouched.
type AgentPatchRequest struct {
	CurrentRoom  *string
	Status       *string
	CurrentTask  *string
	ThoughtChain *string
}

func (r *AgentPatchRequest) UnmarshalJSON(data []byte) error {
	var w struct {
		CurrentRoom       *string `json:"currentRoom"`
		CurrentRoomSnake  *string `json:"current_room"`
		Status            *string `json:"status"`
		CurrentTask       *string `json:"currentTask"`
		CurrentTaskSnake  *string `json:"current_task"`
		ThoughtChain      *string `json:"thoughtChain"`
		ThoughtChainSnake *string `json:"thought_chain"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	r.CurrentRoom = pickPtr(w.CurrentRoom, w.CurrentRoomSnake)
	r.Status = w.Status
	r.CurrentTask = pickPtr(w.CurrentTask, w.CurrentTaskSnake)
	r.ThoughtChain = pickPtr(w.ThoughtChain, w.ThoughtChainSnake)
	return nil
}

// MessageCreateRequest is the payload for POST /api/messages.
type MessageCreateRequest struct {
	FromAgent   string
	ToAgent     string
	Content     string
	MessageType string
}

func (r *MessageCreateRequest) UnmarshalJSON(data []byte) error {
	var w struct {
		FromAgent        *string `json:"fromAgent"`
		FromAgentSnake   *string `json:"from_agent"`
		ToAgent          *string `json:"toAgent"`
		ToAgentSnake     *string `json:"to_agent"`
		Content          string  `json:"content"`
		MessageType      *string `json:"messageType"`
		MessageTypeSnake *string `json:"message_type"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	r.FromAgent = pick(w.FromAgent, w.FromAgentSnake)
	r.ToAgent = pick(w.ToAgent, w.ToAgentSnake)
	r.Content = w.Content
	r.MessageType = pick(w.MessageType, w.MessageTypeSnake)
	return nil
}

// StateOverrideRequest is the payload for POST /api/state/override. Both
// status and room must be present for the bulk update to run; message is
// optional commentary relayed to the user channel.
type StateOverrideRequest struct {
	GlobalStatus string
	DefaultRoom  string
	Message      string
}

func (r *StateOverrideRequest) UnmarshalJSON(data []byte) error {
	var w struct {
		GlobalStatus      *string `json:"globalStatus"`
		GlobalStatusSnake *string `json:"global_status"`
		DefaultRoom       *string `json:"defaultRoom"`
		DefaultRoomSnake  *string `json:"default_room"`
		Message           string  `json:"message"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	r.GlobalStatus = pick(w.GlobalStatus, w.GlobalStatusSnake)
	r.DefaultRoom = pick(w.DefaultRoom, w.DefaultRoomSnake)
	r.Message = w.Message
	return nil
}

func pick(camel, snake *string) string {
	if camel != nil {
		return *camel
	}
	if snake != nil {
		return *snake
	}
	return ""
}

func pickPtr(camel, snake *string) *string {
	if camel != nil {
		return camel
	}
	return snake
}
