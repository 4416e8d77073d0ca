package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrProtoVersion    = "E_PROTO_VERSION"

	// Command layer.
	ErrUnknownCommand = "E_UNKNOWN_COMMAND"
	ErrUnknownAgent   = "E_UNKNOWN_AGENT"
	ErrUnknownSpace   = "E_UNKNOWN_SPACE"
	ErrUnknownHazard  = "E_UNKNOWN_HAZARD"
	ErrBadRequest     = "E_BAD_REQUEST"
	ErrInvalidState   = "E_INVALID_STATE"
	ErrNoParking      = "E_NO_PARKING"
	ErrInboxFull      = "E_INBOX_FULL"
	ErrNoPermission   = "E_NO_PERMISSION"
	ErrRateLimited    = "E_RATE_LIMITED"
	ErrInternal       = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrProtoVersion:    {},
	ErrUnknownCommand:  {},
	ErrUnknownAgent:    {},
	ErrUnknownSpace:    {},
	ErrUnknownHazard:   {},
	ErrBadRequest:      {},
	ErrInvalidState:    {},
	ErrNoParking:       {},
	ErrInboxFull:       {},
	ErrNoPermission:    {},
	ErrRateLimited:     {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
