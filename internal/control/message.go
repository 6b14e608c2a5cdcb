// Package control handles messages the dashboard sends to the controller.
package control

import "encoding/json"

const (
	ActionSkipWaiting       = "skipWaiting"
	ActionClearCache        = "clearCache"
	ActionGetCacheSize      = "getCacheSize"
	ActionQueueRequest      = "queueRequest"
	ActionQueueNotification = "queueNotification"
)

// Message is one control message. Data is action specific.
type Message struct {
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// Reply answers a Message. Size is set for getCacheSize, TaskID for the queue actions.
type Reply struct {
	Action  string `json:"action"`
	OK      bool   `json:"ok"`
	Ignored bool   `json:"ignored,omitempty"`
	Size    *int64 `json:"size,omitempty"`
	TaskID  string `json:"taskId,omitempty"`
	Deleted int    `json:"deleted,omitempty"`
	Error   string `json:"error,omitempty"`
}
