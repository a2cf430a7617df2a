package mqtt

import "testing"

func TestTopicsMatch(t *testing.T) {
	tests := []struct {
		filter, topic string
		want          bool
	}{
		{"skypeer/v1/command/tello", "skypeer/v1/command/tello", true},
		{"skypeer/v1/command/+", "skypeer/v1/command/tello", true},
		{"skypeer/v1/command/+", "skypeer/v1/command/ack/tello", false},
		{"skypeer/v1/#", "skypeer/v1/status/tello", true},
		{"skypeer/v1/status/+", "skypeer/v1/online/tello", false},
		{"skypeer/v1/status", "skypeer/v1/status/tello", false},
	}

	for _, tt := range tests {
		if got := topicsMatch(tt.filter, tt.topic); got != tt.want {
			t.Errorf("topicsMatch(%q, %q) = %v, want %v", tt.filter, tt.topic, got, tt.want)
		}
	}
}

func TestTopicFilterStripsShare(t *testing.T) {
	if got := topicFilter("$share/consoles/skypeer/v1/status/+"); got != "skypeer/v1/status/+" {
		t.Fatalf("topicFilter = %q", got)
	}
	if got := topicFilter("skypeer/v1/status/+"); got != "skypeer/v1/status/+" {
		t.Fatalf("topicFilter changed a plain filter: %q", got)
	}
}

func TestNewClientValidates(t *testing.T) {
	if _, err := NewClient(nil); err == nil {
		t.Fatal("expected error for nil config")
	}
	if _, err := NewClient(&ClientConfig{BrokerURL: "not a url"}); err == nil {
		t.Fatal("expected error for broker url without scheme")
	}

	cfg := &ClientConfig{BrokerURL: "tcp://127.0.0.1:1883"}
	c, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if cfg.KeepAlive != 60 || cfg.ConnectTimeout == 0 {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if c.IsConnected() {
		t.Fatal("a client that never started must not report connected")
	}
}
