package models

type FlowEventType string

const (
	FlowEventStateChanged  FlowEventType = "state_changed"
	FlowEventCooldownTick  FlowEventType = "cooldown_tick"
	FlowEventError         FlowEventType = "error"
	FlowEventSessionOpened FlowEventType = "session_opened"
	FlowEventSessionClosed FlowEventType = "session_closed"
)

// FlowEvent is the payload published on the flow event topics for the presentation layer.
type FlowEvent struct {
	// Seq increases by one per event of a notifier, in the order the events happened.
	Seq               uint64        `json:"seq"`
	SessionID         string        `json:"session_id"`
	Type              FlowEventType `json:"type"`
	State             RecoveryState `json:"state,omitempty"`
	CooldownRemaining int           `json:"cooldown_remaining"`
	Error             string        `json:"error,omitempty"`
	UserEmail         string        `json:"user_email,omitempty"`
}
