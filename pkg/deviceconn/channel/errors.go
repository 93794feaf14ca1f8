package channel

import "github.com/gobwas/ws"

// Application-level close codes sent when a connection is rejected during
// the handshake.
const (
	CloseCodeInvalidIdentifier ws.StatusCode = 4000
	CloseCodeUnauthorized      ws.StatusCode = 4003
	CloseCodeInternalError     ws.StatusCode = 4500
)

// Close reasons carried in the close frame body.
const (
	CloseReasonInvalidIdentifier = "invalid_identifier"
	CloseReasonUnauthorized      = "unauthorized"
	CloseReasonInternalError     = "internal_error"
)
