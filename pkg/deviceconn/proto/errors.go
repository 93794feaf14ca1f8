package proto

type protoError string

func (e protoError) Error() string {
	return string(e)
}

// ErrInvalidJSON is returned when the inbound payload is not a JSON object.
// The connection handler answers it with an error frame and keeps the
// connection open.
const ErrInvalidJSON = protoError("invalid JSON payload")

// ErrUnknownMessageType is returned for well-formed JSON with an unknown or
// missing discriminator.
const ErrUnknownMessageType = protoError("unknown message type")
