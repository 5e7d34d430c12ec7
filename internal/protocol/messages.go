package protocol

// HELLO (client -> server). Owner is the player's id; players who own a plot
// use the same id as the plot owner.
type HelloMsg struct {
	Type              string   `json:"type"`
	ProtocolVersion   string   `json:"protocol_version"`
	SupportedVersions []string `json:"supported_versions,omitempty"`
	Owner             string   `json:"owner"`
	Name              string   `json:"name,omitempty"`
	MaxQueue          int      `json:"max_queue,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	SessionID       string      `json:"session_id"`
	Owner           string      `json:"owner"`
	Kitchen         string      `json:"kitchen,omitempty"`
	ServerTick      uint64      `json:"server_tick"`
	WorldParams     WorldParams `json:"world_params"`
	Catalogs        Catalogs    `json:"catalogs"`
}

type WorldParams struct {
	TickRateHz         int   `json:"tick_rate_hz"`
	ScheduleEveryTicks int   `json:"schedule_every_ticks"`
	Seed               int64 `json:"seed"`
}

type Catalogs struct {
	RecipesDigest string   `json:"recipes_digest"`
	Recipes       []string `json:"recipes"`
	TuningDigest  string   `json:"tuning_digest,omitempty"`
}

// INPUT (client -> server). Station and Seat are "<kind>:<id>" handles.
type InputMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	ID              string      `json:"id,omitempty"`
	Input           string      `json:"input"`
	Kitchen         string      `json:"kitchen,omitempty"`
	Station         string      `json:"station,omitempty"`
	Seat            string      `json:"seat,omitempty"`
	Entering        bool        `json:"entering,omitempty"`
	Pos             *[3]float64 `json:"pos,omitempty"`
}

// ACK (server -> client), sent for every INPUT that carries an id.
type AckMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	AckFor          string `json:"ack_for"`
	Accepted        bool   `json:"accepted"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
	ServerTick      uint64 `json:"server_tick,omitempty"`
}
