package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/autopeer-io/skypeer/internal/pilot/api"
	"github.com/autopeer-io/skypeer/internal/pilot/core"
	pkgmqtt "github.com/autopeer-io/skypeer/pkg/mqtt"
	"github.com/autopeer-io/skypeer/pkg/mqtt/topic"
)

type published struct {
	topic   string
	retain  bool
	payload []byte
}

type fakeClient struct {
	mu           sync.Mutex
	handlers     map[string]pkgmqtt.MessageHandler
	published    []published
	disconnected bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{handlers: map[string]pkgmqtt.MessageHandler{}}
}

func (c *fakeClient) Start(context.Context) error {
	return nil
}

func (c *fakeClient) AwaitConnection(context.Context) error {
	return nil
}

func (c *fakeClient) IsConnected() bool {
	return true
}

func (c *fakeClient) Disconnect(context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = true
}

func (c *fakeClient) Publish(_ context.Context, topic string, _ int, retain bool, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, published{topic: topic, retain: retain, payload: payload})
	return nil
}

func (c *fakeClient) Subscribe(_ context.Context, topic string, _ int, h pkgmqtt.MessageHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[topic] = h
	return nil
}

func (c *fakeClient) Unsubscribe(_ context.Context, topic string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.handlers, topic)
	return nil
}

func (c *fakeClient) handler(topic string) pkgmqtt.MessageHandler {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handlers[topic]
}

// last returns the newest publication on topic.
func (c *fakeClient) last(topic string) (published, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.published) - 1; i >= 0; i-- {
		if c.published[i].topic == topic {
			return c.published[i], true
		}
	}
	return published{}, false
}

// fakeOperator implements the calls the remote channel makes in these tests;
// anything else panics through the nil embedded interface.
type fakeOperator struct {
	api.Operator

	mu        sync.Mutex
	takeoffs  int
	err       error
	listeners []func(api.Status)
}

func (o *fakeOperator) TakeOff(context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.takeoffs++
	return o.err
}

func (o *fakeOperator) Status() api.Status {
	return api.Status{DroneID: "tello-test"}
}

func (o *fakeOperator) OnStatus(fn func(api.Status)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.listeners = append(o.listeners, fn)
}

func (o *fakeOperator) emit(st api.Status) {
	o.mu.Lock()
	listeners := slices.Clone(o.listeners)
	o.mu.Unlock()
	for _, fn := range listeners {
		fn(st)
	}
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func startServer(t *testing.T, op *fakeOperator) (*fakeClient, *topic.Builder, func()) {
	t.Helper()
	client := newFakeClient()
	topics := topic.NewBuilder("skypeer/v1")
	srv := NewServer(client, topics, "tello-test", op)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	eventually(t, "status listener", func() bool {
		op.mu.Lock()
		defer op.mu.Unlock()
		return len(op.listeners) > 0
	})

	return client, topics, func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Start: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	}
}

func decodeAck(t *testing.T, p published) api.Ack {
	t.Helper()
	var ack api.Ack
	if err := json.Unmarshal(p.payload, &ack); err != nil {
		t.Fatalf("decode ack: %v", err)
	}
	return ack
}

func TestCommandIsExecutedAndAcked(t *testing.T) {
	op := &fakeOperator{}
	client, topics, stop := startServer(t, op)
	defer stop()

	h := client.handler(topics.Command("tello-test"))
	h(context.Background(), topics.Command("tello-test"), []byte(`{"action":"takeoff","requestId":"r-1"}`))

	p, ok := client.last(topics.CommandAck("tello-test"))
	if !ok {
		t.Fatal("no ack published")
	}
	ack := decodeAck(t, p)
	if !ack.OK || ack.RequestID != "r-1" || ack.Action != api.ActionTakeOff || p.retain {
		t.Fatalf("ack = %+v retain=%v", ack, p.retain)
	}
	if op.takeoffs != 1 {
		t.Fatalf("takeoffs = %d", op.takeoffs)
	}
}

func TestRejectedCommandAcksError(t *testing.T) {
	op := &fakeOperator{err: core.ErrGuardRejected}
	client, topics, stop := startServer(t, op)
	defer stop()

	h := client.handler(topics.Command("tello-test"))
	h(context.Background(), "", []byte(`{"action":"takeoff","requestId":"r-2"}`))

	p, _ := client.last(topics.CommandAck("tello-test"))
	ack := decodeAck(t, p)
	if ack.OK || ack.Error != core.ErrGuardRejected.Error() {
		t.Fatalf("ack = %+v", ack)
	}
}

func TestMalformedPayloadAcksError(t *testing.T) {
	client, topics, stop := startServer(t, &fakeOperator{})
	defer stop()

	h := client.handler(topics.Command("tello-test"))
	h(context.Background(), "", []byte(`not json`))

	p, ok := client.last(topics.CommandAck("tello-test"))
	if !ok {
		t.Fatal("no ack published")
	}
	if ack := decodeAck(t, p); ack.OK || ack.Error == "" {
		t.Fatalf("ack = %+v", ack)
	}
}

func TestOnlineAndStatusPublication(t *testing.T) {
	op := &fakeOperator{}
	client, topics, stop := startServer(t, op)

	p, ok := client.last(topics.Online("tello-test"))
	if !ok || !p.retain {
		t.Fatalf("online publication = %+v", p)
	}
	var online api.Online
	if err := json.Unmarshal(p.payload, &online); err != nil || !online.Online {
		t.Fatalf("online = %+v (%v)", online, err)
	}

	op.emit(api.Status{DroneID: "tello-test", DefaultDistance: 77})
	eventually(t, "status publication", func() bool {
		p, ok := client.last(topics.Status("tello-test"))
		if !ok || !p.retain {
			return false
		}
		var st api.Status
		return json.Unmarshal(p.payload, &st) == nil && st.DefaultDistance == 77
	})

	stop()

	p, _ = client.last(topics.Online("tello-test"))
	if err := json.Unmarshal(p.payload, &online); err != nil || online.Online {
		t.Fatalf("online after stop = %+v (%v)", online, err)
	}
	client.mu.Lock()
	disconnected := client.disconnected
	client.mu.Unlock()
	if !disconnected {
		t.Fatal("client not disconnected")
	}
}

func TestSetWill(t *testing.T) {
	cfg := &pkgmqtt.ClientConfig{BrokerURL: "tcp://localhost:1883"}
	topics := topic.NewBuilder("skypeer/v1")
	if err := SetWill(cfg, topics, "tello-test"); err != nil {
		t.Fatal(err)
	}
	if cfg.WillTopic != topics.Online("tello-test") || !cfg.WillRetain || cfg.WillQoS != 1 {
		t.Fatalf("will = %+v", cfg)
	}
	var online api.Online
	if err := json.Unmarshal(cfg.WillPayload, &online); err != nil || online.Online {
		t.Fatalf("will payload = %s", cfg.WillPayload)
	}
}

func TestJSONAdapter(t *testing.T) {
	var got api.Action
	h := JSONAdapter(func(_ context.Context, a *api.Action) error {
		got = *a
		return nil
	})
	if err := h(context.Background(), []byte(`{"action":"land"}`)); err != nil || got.Action != "land" {
		t.Fatalf("got %+v, err %v", got, err)
	}
	if err := h(context.Background(), []byte(`{`)); err == nil {
		t.Fatal("expected decode error")
	}

	boom := errors.New("boom")
	h = JSONAdapter(func(context.Context, *api.Action) error { return boom })
	if err := h(context.Background(), []byte(`{}`)); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
}
