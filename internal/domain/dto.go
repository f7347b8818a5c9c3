package domain

import "time"

// BatchStartRequest is the transport-level shape of a batch order.
type BatchStartRequest struct {
	Spec         string `json:"spec"`
	DestChat     string `json:"dest_chat"`
	DestThread   int64  `json:"dest_thread,omitempty"`
	DelaySeconds int    `json:"delay_seconds,omitempty"`
	Owner        int64  `json:"owner"`
	Handle       string `json:"handle"`
}

type BatchStartResponse struct {
	TaskID string `json:"task_id"`
}

type CancelRequest struct {
	Owner  int64  `json:"owner"`
	TaskID string `json:"task_id,omitempty"`
}

type TaskView struct {
	TaskID    string    `json:"task_id"`
	Label     string    `json:"label"`
	StartedAt time.Time `json:"started_at"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type HealthResponse struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
}
