package protocol

import "bistro.ai/internal/sim/present"

// EVENT_BATCH (server -> client): the presentation events of one tick that
// concern the receiving player.
type EventBatchMsg struct {
	Type            string          `json:"type"`
	ProtocolVersion string          `json:"protocol_version"`
	Tick            uint64          `json:"tick"`
	Events          []present.Event `json:"events"`
	NextCursor      uint64          `json:"next_cursor"`
}
