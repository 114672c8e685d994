package event

import "encoding/json"

// WsEvent is the envelope for every websocket frame, client or server bound.
// Payload is decoded against the fixed schema for the event name before
// dispatch; frames with unknown names are logged and dropped.
type WsEvent struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEvent marshals payload into a WsEvent envelope. Marshal errors cannot
// happen for the closed payload set, so they are swallowed into an empty
// payload rather than propagated to every call site.
func NewEvent(name string, payload any) WsEvent {
	raw, err := json.Marshal(payload)
	if err != nil {
		return WsEvent{Event: name}
	}
	return WsEvent{Event: name, Payload: raw}
}
