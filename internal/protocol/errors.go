package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Input layer.
	ErrBadRequest    = "E_BAD_REQUEST"
	ErrNoPermission  = "E_NO_PERMISSION"
	ErrInvalidTarget = "E_INVALID_TARGET"
	ErrBusy          = "E_BUSY"
	ErrInternal      = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrBadRequest:      {},
	ErrNoPermission:    {},
	ErrInvalidTarget:   {},
	ErrBusy:            {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
