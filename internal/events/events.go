// Package events provides lifecycle notifications for the worker pool.
package events

import "time"

// EventType represents the type of event
type EventType string

const (
	// EventWorkerStarted is emitted when a worker goroutine begins its loop
	EventWorkerStarted EventType = "worker_started"
	// EventWorkerExited is emitted when a worker observes the disconnect signal and returns
	EventWorkerExited EventType = "worker_exited"
	// EventWorkerFaulted is emitted when a job panics and takes its worker down
	EventWorkerFaulted EventType = "worker_faulted"
	// EventPoolClosing is emitted when teardown closes the job queue
	EventPoolClosing EventType = "pool_closing"
	// EventPoolClosed is emitted after every worker has been joined
	EventPoolClosed EventType = "pool_closed"
)

// Event represents a pool lifecycle event
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	WorkerID  int       `json:"worker_id"`
	Data      EventData `json:"data,omitempty"`
}

// EventData contains event-specific data
type EventData struct {
	JobsRun int    `json:"jobs_run,omitempty"`
	Live    int    `json:"live,omitempty"`
	Pending int    `json:"pending,omitempty"`
	Error   string `json:"error,omitempty"`
}

// NewWorkerStartedEvent creates a worker started event
func NewWorkerStartedEvent(workerID int) Event {
	return Event{
		Type:      EventWorkerStarted,
		Timestamp: time.Now(),
		WorkerID:  workerID,
	}
}

// NewWorkerExitedEvent creates a worker exited event
func NewWorkerExitedEvent(workerID, jobsRun int) Event {
	return Event{
		Type:      EventWorkerExited,
		Timestamp: time.Now(),
		WorkerID:  workerID,
		Data: EventData{
			JobsRun: jobsRun,
		},
	}
}

// NewWorkerFaultedEvent creates a worker faulted event
func NewWorkerFaultedEvent(workerID, jobsRun int, err error) Event {
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	return Event{
		Type:      EventWorkerFaulted,
		Timestamp: time.Now(),
		WorkerID:  workerID,
		Data: EventData{
			JobsRun: jobsRun,
			Error:   errMsg,
		},
	}
}

// NewPoolClosingEvent creates a pool closing event. WorkerID is -1 for pool-wide events.
func NewPoolClosingEvent(live, pending int) Event {
	return Event{
		Type:      EventPoolClosing,
		Timestamp: time.Now(),
		WorkerID:  -1,
		Data: EventData{
			Live:    live,
			Pending: pending,
		},
	}
}

// NewPoolClosedEvent creates a pool closed event
func NewPoolClosedEvent() Event {
	return Event{
		Type:      EventPoolClosed,
		Timestamp: time.Now(),
		WorkerID:  -1,
	}
}
