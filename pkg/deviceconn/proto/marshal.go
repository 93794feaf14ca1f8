package proto

import "encoding/json"

type settingsFrame struct {
	Type string       `json:"type"`
	Data SettingsData `json:"data"`
}

type sessionStatusFrame struct {
	Type             string `json:"type"`
	Action           string `json:"action"`
	HasActiveSession bool   `json:"has_active_session"`
	IsIdle           bool   `json:"is_idle"`
}

type responseFrame struct {
	Type   string `json:"type"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type errorFrame struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

type heartbeatFrame struct {
	Type string `json:"type"`
}

func MarshalNewSettingsMessage(data SettingsData) ([]byte, error) {
	return json.Marshal(settingsFrame{
		Type: MessageTypeSettings.String(),
		Data: data,
	})
}

func MarshalNewSessionStatusMessage(action string, hasActiveSession, isIdle bool) ([]byte, error) {
	return json.Marshal(sessionStatusFrame{
		Type:             MessageTypeSessionStatus.String(),
		Action:           action,
		HasActiveSession: hasActiveSession,
		IsIdle:           isIdle,
	})
}

func MarshalNewPostureDataResponse(status, errMessage string) ([]byte, error) {
	return json.Marshal(responseFrame{
		Type:   MessageTypePostureDataResponse.String(),
		Status: status,
		Error:  errMessage,
	})
}

func MarshalNewExitIdleModeResponse(status, errMessage string) ([]byte, error) {
	return json.Marshal(responseFrame{
		Type:   MessageTypeExitIdleModeResponse.String(),
		Status: status,
		Error:  errMessage,
	})
}

func MarshalNewErrorMessage(errMessage string) ([]byte, error) {
	return json.Marshal(errorFrame{
		Type:  MessageTypeError.String(),
		Error: errMessage,
	})
}

func MarshalNewHeartbeatMessage() ([]byte, error) {
	return json.Marshal(heartbeatFrame{
		Type: MessageTypeHeartbeat.String(),
	})
}
