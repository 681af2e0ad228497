package agent

import (
	"time"

	"github.com/switchboardai/switchboard/pkg/chat"
)

// EventType identifies an agent lifecycle event.
type EventType string

const (
	EventStarted       EventType = "started"
	EventToolCalled    EventType = "tool_called"
	EventToolCompleted EventType = "tool_completed"
	EventTransfer      EventType = "transfer"
	EventCompleted     EventType = "completed"
	EventError         EventType = "error"
)

// Event is intentionally compact so hosts can map it straight to logs,
// progress displays, or streams.
type Event struct {
	Agent   string    `json:"agent"`
	Type    EventType `json:"type"`
	Tool    string    `json:"tool,omitempty"`
	Detail  string    `json:"detail,omitempty"`
	IsError bool      `json:"is_error,omitempty"`
	Time    time.Time `json:"time"`
}

// EventSink receives lifecycle events. Sinks are called synchronously from
// the running agent and must not block.
type EventSink func(Event)

// Context is the state threaded down a delegation chain. Each delegate runs
// with a fresh Context whose Parent names the delegating agent and whose
// message list is the delegator's plus the handoff pair.
type Context struct {
	Messages []chat.Message
	Events   EventSink
	Parent   *Agent

	depth int
}

func (c *Context) emit(event Event) {
	if c.Events == nil {
		return
	}
	if event.Time.IsZero() {
		event.Time = time.Now()
	}
	c.Events(event)
}
