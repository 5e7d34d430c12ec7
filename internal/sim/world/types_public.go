package world

import "bistro.ai/internal/protocol"

type JoinRequest struct {
	Owner string
	Name  string
	Out   chan []byte
	Resp  chan JoinResponse
}

// JoinResponse carries the WELCOME for an accepted join, or an error code.
type JoinResponse struct {
	Welcome protocol.WelcomeMsg
	Code    string
	Message string
}

type InputEnvelope struct {
	Owner   string
	Session string
	Input   protocol.InputMsg
}

// MerchantRequest asks for a merchant at a stall, or with Release set, sends
// the stall's merchant home.
type MerchantRequest struct {
	Stall   string
	Release bool
	Resp    chan error
}
