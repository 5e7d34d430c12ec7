package protocol

import "encoding/json"

const Version = "1.0"

// Message types.
const (
	TypeHello      = "HELLO"
	TypeWelcome    = "WELCOME"
	TypeInput      = "INPUT"
	TypeAck        = "ACK"
	TypeEventBatch = "EVENT_BATCH"
)

// Input kinds carried by INPUT.
const (
	InputInteract  = "INTERACT"
	InputClaim     = "CLAIM"
	InputEditMode  = "EDIT_MODE"
	InputSeatEnter = "SEAT_ENTER"
	InputSeatExit  = "SEAT_EXIT"
	InputMove      = "MOVE"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
