package domain

import "time"

// EventType names a flag lifecycle event.
type EventType string

const (
	EventFlagEnabled  EventType = "FLAG_ENABLED"
	EventFlagDisabled EventType = "FLAG_DISABLED"
	EventFlagPurged   EventType = "FLAG_CACHE_PURGED"
)

// FlagEvent is published after a flag mutation has committed.
type FlagEvent struct {
	EventID    string    `json:"event_id"`
	EventType  EventType `json:"event_type"`
	FlagID     string    `json:"flag_id"`
	FlagKey    string    `json:"flag_key"`
	OccurredAt time.Time `json:"occurred_at"`
}

// ToggleEventType maps an enabled state to its event type.
func ToggleEventType(enabled bool) EventType {
	if enabled {
		return EventFlagEnabled
	}
	return EventFlagDisabled
}
