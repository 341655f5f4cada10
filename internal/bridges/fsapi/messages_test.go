package fsapi

import (
	"encoding/json"
	"testing"
	"time"
)

func TestCommandMessageJSON(t *testing.T) {
	payload := `{
		"id": "cmd-123",
		"timestamp": "2026-03-01T10:30:00Z",
		"device_id": "kitchen",
		"command": "set_volume",
		"parameters": {"level": 12},
		"source": "api"
	}`

	var cmd CommandMessage
	if err := json.Unmarshal([]byte(payload), &cmd); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if cmd.ID != "cmd-123" || cmd.DeviceID != "kitchen" || cmd.Command != CmdSetVolume {
		t.Errorf("decoded = %+v", cmd)
	}
	if !cmd.Timestamp.Equal(time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)) {
		t.Errorf("Timestamp = %v", cmd.Timestamp)
	}
	if cmd.Parameters["level"] != float64(12) {
		t.Errorf("level = %v, want 12", cmd.Parameters["level"])
	}
}

func TestNewAckError(t *testing.T) {
	cmd := CommandMessage{ID: "cmd-1", DeviceID: "kitchen"}

	tests := []struct {
		code       string
		wantStatus AckStatus
	}{
		{code: ErrCodeInvalidParameters, wantStatus: AckFailed},
		{code: ErrCodeRejected, wantStatus: AckFailed},
		{code: ErrCodeTimeout, wantStatus: AckTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			ack := NewAckError(cmd, kitchenURL, tt.code, "boom")
			if ack.Status != tt.wantStatus {
				t.Errorf("Status = %q, want %q", ack.Status, tt.wantStatus)
			}
			if ack.CommandID != "cmd-1" || ack.DeviceID != "kitchen" || ack.Protocol != Protocol {
				t.Errorf("ack = %+v", ack)
			}
			if ack.Error == nil || ack.Error.Code != tt.code || ack.Error.Message != "boom" {
				t.Errorf("Error = %+v", ack.Error)
			}
		})
	}
}

func TestAckMessageJSON_OmitsEmptyError(t *testing.T) {
	ack := NewAckMessage(CommandMessage{ID: "c", DeviceID: "kitchen"}, AckAccepted, kitchenURL)

	data, err := json.Marshal(ack)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if _, ok := raw["error"]; ok {
		t.Error("accepted ack should omit error")
	}
	if raw["status"] != "accepted" || raw["protocol"] != "fsapi" {
		t.Errorf("ack JSON = %s", data)
	}
}

func TestTopics(t *testing.T) {
	tests := []struct {
		got  string
		want string
	}{
		{got: CommandTopic("kitchen"), want: "graylogic/command/fsapi/kitchen"},
		{got: AckTopic("kitchen"), want: "graylogic/ack/fsapi/kitchen"},
		{got: StateTopic("kitchen"), want: "graylogic/state/fsapi/kitchen"},
		{got: HealthTopic(), want: "graylogic/health/fsapi"},
		{got: DiscoveryTopic(), want: "graylogic/discovery/fsapi"},
		{got: CommandSubscribeTopic(), want: "graylogic/command/fsapi/+"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("topic = %q, want %q", tt.got, tt.want)
		}
	}

	if !topicMatches(CommandSubscribeTopic(), CommandTopic("kitchen")) {
		t.Error("command topic does not match subscription pattern")
	}
}
