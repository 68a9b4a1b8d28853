package websocket

import (
	"encoding/json"
	"fmt"
)

// ControlType is the type tag of an inbound control message.
type ControlType string

// Control messages a device may send as WebSocket text frames. Binary
// frames are always raw audio and carry no envelope.
const (
	ControlPause        ControlType = "pause"
	ControlResume       ControlType = "resume"
	ControlStop         ControlType = "stop"
	ControlEndUtterance ControlType = "end_utterance"
)

// ControlMessage is the JSON envelope of an inbound text frame.
type ControlMessage struct {
	Type ControlType `json:"type"`
}

// ParseControlMessage decodes and validates one inbound text frame.
func ParseControlMessage(data []byte) (ControlMessage, error) {
	var msg ControlMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return ControlMessage{}, fmt.Errorf("invalid JSON format: %w", err)
	}

	switch msg.Type {
	case ControlPause, ControlResume, ControlStop, ControlEndUtterance:
		return msg, nil
	case "":
		return ControlMessage{}, fmt.Errorf("control message missing type field")
	default:
		return ControlMessage{}, fmt.Errorf("unsupported control type: %s", msg.Type)
	}
}
