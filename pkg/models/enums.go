package models

// Agent status values.
const (
	AgentIdle       = "Idle"
	AgentWorking    = "Working"
	AgentMeeting    = "Meeting"
	AgentError      = "Error"
	AgentClockedOut = "Clocked Out"
)

// Task status values.
const (
	TaskBacklog    = "Backlog"
	TaskInProgress = "In Progress"
	TaskReview     = "Review"
	TaskDone       = "Done"
	TaskBlocked    = "Blocked"
)

// Office rooms.
const (
	RoomPrivateOffice = "Private Office"
	RoomWarRoom       = "War Room"
	RoomDesks         = "Desks"
	RoomLounge        = "Lounge"
	RoomServerRoom    = "Server Room"
)

var agentStatuses = map[string]bool{
	AgentIdle:       true,
	AgentWorking:    true,
	AgentMeeting:    true,
	AgentError:      true,
	AgentClockedOut: true,
}

var taskStatuses = map[string]bool{
	TaskBacklog:    true,
	TaskInProgress: true,
	TaskReview:     true,
	TaskDone:       true,
	TaskBlocked:    true,
}

var rooms = map[string]bool{
	RoomPrivateOffice: true,
	RoomWarRoom:       true,
	RoomDesks:         true,
	RoomLounge:        true,
	RoomServerRoom:    true,
}

// ValidAgentStatus reports whether s is a legal agent status.
func ValidAgentStatus(s string) bool { return agentStatuses[s] }

// ValidTaskStatus reports whether s is a legal task status.
func ValidTaskStatus(s string) bool { return taskStatuses[s] }

// ValidRoom reports whether r is a legal room name.
func ValidRoom(r string) bool { return rooms[r] }
