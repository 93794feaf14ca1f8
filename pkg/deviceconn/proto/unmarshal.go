package proto

import (
	"encoding/json"
	"fmt"
)

type inboundEnvelope struct {
	Type   string          `json:"type"`
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data"`
}

type postureDataBody struct {
	Components []ComponentData `json:"components"`
}

// UnmarshalMessage decodes one inbound frame. Frames are JSON objects with a
// "type" discriminator; older device firmware revisions used
// "action":"get_settings" and "heartbeat_response", both are still accepted.
func UnmarshalMessage(data []byte) (MessageType, interface{}, error) {
	var envelope inboundEnvelope

	if err := json.Unmarshal(data, &envelope); err != nil {
		return MessageTypeInvalid, nil, ErrInvalidJSON
	}

	switch envelope.Type {
	case "heartbeat", "heartbeat_response":
		return MessageTypeHeartbeat, HeartbeatMessage{}, nil
	case "settings_request":
		return MessageTypeSettingsRequest, SettingsRequestMessage{}, nil
	case "posture_data":
		return unmarshalPostureDataMessage(envelope.Data)
	case "exit_idle_mode":
		return MessageTypeExitIdleMode, ExitIdleModeMessage{}, nil
	}

	if envelope.Action == "get_settings" {
		return MessageTypeSettingsRequest, SettingsRequestMessage{}, nil
	}

	return MessageTypeInvalid, nil, ErrUnknownMessageType
}

func unmarshalPostureDataMessage(data json.RawMessage) (MessageType, interface{}, error) {
	if len(data) == 0 {
		return MessageTypeInvalid, nil, fmt.Errorf("posture_data message has no data")
	}

	var body postureDataBody
	if err := json.Unmarshal(data, &body); err != nil {
		return MessageTypeInvalid, nil, fmt.Errorf("posture_data message contains invalid data: %s", err.Error())
	}

	return MessageTypePostureData, PostureDataMessage{
		Components: body.Components,
	}, nil
}

// MustPostureDataMessage asserts the decoded message is a posture_data
// message.
func MustPostureDataMessage(msg interface{}) (*PostureDataMessage, error) {
	m, ok := msg.(PostureDataMessage)
	if !ok {
		return nil, fmt.Errorf("posture_data message expected")
	}
	return &m, nil
}
