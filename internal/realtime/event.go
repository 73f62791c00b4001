package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrSubscriberClosed is returned by Send after a subscriber's connection
// has been torn down.
var ErrSubscriberClosed = errors.New("subscriber closed")

// ErrSubscriberBacklogged is returned by Send when a subscriber's outbound
// queue is full because the peer stopped draining its socket.
var ErrSubscriberBacklogged = errors.New("subscriber backlogged, frame dropped")

// Event tags, matching the outbound message types clients switch on.
const (
	TypeTaskCreated    = "task_created"
	TypeTaskUpdated    = "task_updated"
	TypeTaskDeleted    = "task_deleted"
	TypeCommentCreated = "comment_created"
)

// Event is an immutable notification of a completed state change. The wire
// message is built once at construction; dispatch just copies bytes.
type Event struct {
	eventType string
	message   []byte
}

func (e Event) Type() string {
	return e.eventType
}

// Message returns the outbound wire message, e.g.
// {"type":"task_created","task":{...}}.
func (e Event) Message() []byte {
	return e.message
}

type taskEnvelope struct {
	Type string `json:"type"`
	Task any    `json:"task"`
}

type taskDeletedEnvelope struct {
	Type   string `json:"type"`
	TaskID string `json:"task_id"`
}

type commentEnvelope struct {
	Type    string `json:"type"`
	Comment any    `json:"comment"`
}

// TaskCreated builds a task_created event. The task payload is an opaque
// serialized snapshot owned by the mutation layer.
func TaskCreated(task any) (Event, error) {
	return makeEvent(TypeTaskCreated, taskEnvelope{Type: TypeTaskCreated, Task: task})
}

// TaskUpdated builds a task_updated event.
func TaskUpdated(task any) (Event, error) {
	return makeEvent(TypeTaskUpdated, taskEnvelope{Type: TypeTaskUpdated, Task: task})
}

// TaskDeleted builds a task_deleted event carrying only the id.
func TaskDeleted(taskID string) (Event, error) {
	return makeEvent(TypeTaskDeleted, taskDeletedEnvelope{Type: TypeTaskDeleted, TaskID: taskID})
}

// CommentCreated builds a comment_created event.
func CommentCreated(comment any) (Event, error) {
	return makeEvent(TypeCommentCreated, commentEnvelope{Type: TypeCommentCreated, Comment: comment})
}

func makeEvent(eventType string, envelope any) (Event, error) {
	message, err := json.Marshal(envelope)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s event: %w", eventType, err)
	}
	return Event{eventType: eventType, message: message}, nil
}
