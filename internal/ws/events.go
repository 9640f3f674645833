package ws

import (
	"encoding/json"
)

// EventType names a change pushed to clients.
type EventType string

const (
	EventInvoiceUpdated     EventType = "InvoiceUpdated"
	EventTaskCreated        EventType = "TaskCreated"
	EventTaskMoved          EventType = "TaskMoved"
	EventChatMessageCreated EventType = "ChatMessageCreated"
	EventNoteChanged        EventType = "NoteChanged"
)

// Event is the change notification written to websocket clients. Clients
// refetch the entity; the event carries no row data.
type Event struct {
	Type      EventType `json:"type"`
	Entity    string    `json:"entity"`
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id,omitempty"`
}

// ProjectTopic is the subscription topic for one project's changes.
func ProjectTopic(projectID string) string {
	return "project:" + projectID
}

// Notifier publishes domain changes through a Hub. A nil Notifier is a no-op.
type Notifier struct {
	hub *Hub
}

func NewNotifier(hub *Hub) *Notifier {
	return &Notifier{hub: hub}
}

func (n *Notifier) publish(ownerID string, event Event) {
	if n == nil || n.hub == nil || ownerID == "" {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	topic := ""
	if event.ProjectID != "" {
		topic = ProjectTopic(event.ProjectID)
	}
	n.hub.BroadcastTopic(ownerID, topic, payload)
}

func (n *Notifier) InvoiceUpdated(ownerID, invoiceID string) {
	n.publish(ownerID, Event{Type: EventInvoiceUpdated, Entity: "invoice", ID: invoiceID})
}

func (n *Notifier) TaskCreated(ownerID, projectID, taskID string) {
	n.publish(ownerID, Event{Type: EventTaskCreated, Entity: "task", ID: taskID, ProjectID: projectID})
}

func (n *Notifier) TaskMoved(ownerID, projectID, taskID string) {
	n.publish(ownerID, Event{Type: EventTaskMoved, Entity: "task", ID: taskID, ProjectID: projectID})
}

func (n *Notifier) ChatMessageCreated(ownerID, projectID, messageID string) {
	n.publish(ownerID, Event{Type: EventChatMessageCreated, Entity: "chat_message", ID: messageID, ProjectID: projectID})
}

func (n *Notifier) NoteChanged(ownerID, projectID, noteID string) {
	n.publish(ownerID, Event{Type: EventNoteChanged, Entity: "note", ID: noteID, ProjectID: projectID})
}
