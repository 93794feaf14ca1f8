package proto

type MessageType int

const (
	MessageTypeInvalid MessageType = iota
	MessageTypeHeartbeat
	MessageTypeSettingsRequest
	MessageTypePostureData
	MessageTypeExitIdleMode
	MessageTypeSettings
	MessageTypeSessionStatus
	MessageTypePostureDataResponse
	MessageTypeExitIdleModeResponse
	MessageTypeError
)

func (msgType MessageType) String() string {
	names := map[MessageType]string{
		MessageTypeHeartbeat:            "heartbeat",
		MessageTypeSettingsRequest:      "settings_request",
		MessageTypePostureData:          "posture_data",
		MessageTypeExitIdleMode:         "exit_idle_mode",
		MessageTypeSettings:             "settings",
		MessageTypeSessionStatus:        "session_status",
		MessageTypePostureDataResponse:  "posture_data_response",
		MessageTypeExitIdleModeResponse: "exit_idle_mode_response",
		MessageTypeError:                "error"}

	msgTypeName, ok := names[msgType]
	if !ok {
		return ""
	}

	return msgTypeName
}

// Response statuses of posture_data_response and exit_idle_mode_response
// frames.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

type HeartbeatMessage struct{}

type SettingsRequestMessage struct{}

type ComponentData struct {
	ComponentType string `json:"component_type"`
	Score         int    `json:"score"`
}

type PostureDataMessage struct {
	Components []ComponentData
}

type ExitIdleModeMessage struct{}

// SettingsData is the settings snapshot pushed to a device: its current
// configuration plus the session flags it needs to decide whether to record.
type SettingsData struct {
	Sensitivity        int  `json:"sensitivity"`
	VibrationIntensity int  `json:"vibration_intensity"`
	AudioIntensity     int  `json:"audio_intensity"`
	HasActiveSession   bool `json:"has_active_session"`
	IsIdle             bool `json:"is_idle"`
}
