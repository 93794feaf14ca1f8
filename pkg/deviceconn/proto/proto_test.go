package proto

import (
	"encoding/json"
	"testing"
)

func TestUnmarshalMessageTypes(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    MessageType
	}{
		{
			name:    "heartbeat",
			payload: `{"type": "heartbeat"}`,
			want:    MessageTypeHeartbeat,
		},
		{
			name:    "heartbeat response from older firmware",
			payload: `{"type": "heartbeat_response"}`,
			want:    MessageTypeHeartbeat,
		},
		{
			name:    "settings request",
			payload: `{"type": "settings_request"}`,
			want:    MessageTypeSettingsRequest,
		},
		{
			name:    "legacy get_settings action",
			payload: `{"action": "get_settings"}`,
			want:    MessageTypeSettingsRequest,
		},
		{
			name:    "exit idle mode",
			payload: `{"type": "exit_idle_mode"}`,
			want:    MessageTypeExitIdleMode,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _, err := UnmarshalMessage([]byte(tt.payload))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestUnmarshalPostureData(t *testing.T) {
	payload := `{
		"type": "posture_data",
		"data": {
			"components": [
				{"component_type": "neck", "score": 80},
				{"component_type": "torso", "score": 70},
				{"component_type": "shoulders", "score": 90}
			]
		}
	}`

	msgType, msg, err := UnmarshalMessage([]byte(payload))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != MessageTypePostureData {
		t.Fatalf("expected posture_data, got %s", msgType)
	}

	postureMsg, err := MustPostureDataMessage(msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(postureMsg.Components) != 3 {
		t.Fatalf("expected 3 components, got %d", len(postureMsg.Components))
	}
	if postureMsg.Components[0].ComponentType != "neck" || postureMsg.Components[0].Score != 80 {
		t.Fatalf("unexpected first component: %+v", postureMsg.Components[0])
	}
}

func TestUnmarshalPostureDataWithoutData(t *testing.T) {
	if _, _, err := UnmarshalMessage([]byte(`{"type": "posture_data"}`)); err == nil {
		t.Fatal("expected error for posture_data without data")
	}
}

func TestUnmarshalInvalidJSON(t *testing.T) {
	_, _, err := UnmarshalMessage([]byte(`{not json`))
	if err != ErrInvalidJSON {
		t.Fatalf("expected ErrInvalidJSON, got %v", err)
	}
}

func TestUnmarshalUnknownType(t *testing.T) {
	_, _, err := UnmarshalMessage([]byte(`{"type": "telemetry"}`))
	if err != ErrUnknownMessageType {
		t.Fatalf("expected ErrUnknownMessageType, got %v", err)
	}
}

func TestMarshalSettingsMessage(t *testing.T) {
	out, err := MarshalNewSettingsMessage(SettingsData{
		Sensitivity:        30,
		VibrationIntensity: 40,
		AudioIntensity:     50,
		HasActiveSession:   true,
		IsIdle:             false,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var frame map[string]interface{}
	if err := json.Unmarshal(out, &frame); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if frame["type"] != "settings" {
		t.Fatalf("expected type settings, got %v", frame["type"])
	}

	data, ok := frame["data"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected data object, got %v", frame["data"])
	}
	if data["sensitivity"] != float64(30) {
		t.Fatalf("expected sensitivity 30, got %v", data["sensitivity"])
	}
	if data["has_active_session"] != true {
		t.Fatalf("expected has_active_session true, got %v", data["has_active_session"])
	}
}

func TestMarshalSessionStatusMessage(t *testing.T) {
	out, err := MarshalNewSessionStatusMessage("idle", true, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var frame sessionStatusFrame
	if err := json.Unmarshal(out, &frame); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if frame.Type != "session_status" || frame.Action != "idle" {
		t.Fatalf("unexpected frame: %+v", frame)
	}
	if !frame.HasActiveSession || !frame.IsIdle {
		t.Fatalf("unexpected session flags: %+v", frame)
	}
}

func TestMarshalResponsesOmitEmptyError(t *testing.T) {
	out, err := MarshalNewPostureDataResponse(StatusSuccess, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var frame map[string]interface{}
	if err := json.Unmarshal(out, &frame); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if frame["type"] != "posture_data_response" || frame["status"] != "success" {
		t.Fatalf("unexpected frame: %v", frame)
	}
	if _, ok := frame["error"]; ok {
		t.Fatal("expected error field to be omitted on success")
	}
}
