package task

// Status is the lifecycle state of a task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusSuccess   Status = "success"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsActive reports whether the task still occupies a queue slot.
func (s Status) IsActive() bool {
	switch s {
	case StatusPending, StatusRunning, StatusPaused:
		return true
	default:
		return false
	}
}

func validTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusRunning || to == StatusCancelled
	case StatusRunning:
		return to == StatusPaused || to.IsTerminal()
	case StatusPaused:
		return to == StatusRunning
	default:
		return false
	}
}
