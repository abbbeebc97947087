package protocol

// Codes carried by Disconnect and websocket close frames.
const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrProtoVersion    = "E_PROTO_VERSION"

	// Session/world rules.
	ErrRateLimit     = "E_RATE_LIMIT"
	ErrNotSubscribed = "E_NOT_SUBSCRIBED"
	ErrTooManyCols   = "E_TOO_MANY_COLUMNS"
	ErrSlowClient    = "E_SLOW_CLIENT"
	ErrShutdown      = "E_SHUTDOWN"
	ErrInternal      = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrProtoVersion:    {},
	ErrRateLimit:       {},
	ErrNotSubscribed:   {},
	ErrTooManyCols:     {},
	ErrSlowClient:      {},
	ErrShutdown:        {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
