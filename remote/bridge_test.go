package remote

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go-surface/clip"
	"go-surface/clip/supplier"
	"go-surface/config"
	"go-surface/midi"
)

type fakeTransport struct {
	mu        sync.Mutex
	published map[string][][]byte
	handlers  map[string]func([]byte)
	closed    bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{published: map[string][][]byte{}, handlers: map[string]func([]byte){}}
}

func (f *fakeTransport) Publish(topic string, qos byte, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published[topic] = append(f.published[topic], payload)
	return nil
}

func (f *fakeTransport) Subscribe(topic string, qos byte, handler func([]byte)) error {
	f.handlers[topic] = handler
	return nil
}

func (f *fakeTransport) Close() { f.closed = true }

func (f *fakeTransport) count(topic string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published[topic])
}

func newMatrix(hub *clip.Hub) *clip.Matrix {
	return clip.NewMatrix(config.ClipEngineConfig{
		Columns: 2, Rows: 2, SampleRate: 1000, BlockSize: 32, Channels: 2, Tempo: 120,
	}, hub)
}

func midiClip() clip.Clip {
	return clip.NewMidiClip([]supplier.TimedMessage{
		{Frame: 0, Msg: midi.NewNoteOn(0, 60, 100)},
	}, supplier.MidiFrameRate)
}

func TestCommandsAreQueuedAndApplied(t *testing.T) {
	m := newMatrix(nil)
	if err := m.FillSlot(1, 0, midiClip()); err != nil {
		t.Fatalf("FillSlot failed: %v", err)
	}
	ft := newFakeTransport()
	b := New(ft, config.RemoteConfig{TopicPrefix: "studio"}, m.ID())
	if err := b.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	handler := ft.handlers["studio/"+m.ID()+"/commands"]
	if handler == nil {
		t.Fatalf("Expected subscription on the command topic, got %v", ft.handlers)
	}

	for _, cmd := range []Command{
		{Action: ActionPlay, Column: 1, Row: 0},
		{Action: ActionPlay, Column: 0, Row: 1}, // empty slot
		{Action: "explode"},
	} {
		data, err := EncodeCommand(cmd)
		if err != nil {
			t.Fatalf("EncodeCommand failed: %v", err)
		}
		handler(data)
	}
	handler([]byte{0xc1}) // never valid msgpack

	if n := b.Apply(m, 10); n != 3 {
		t.Errorf("Expected 3 applied commands, got %d", n)
	}
	// the play command on the filled slot is the one that succeeds
	if s := b.Stats(); s.Errors != 2 {
		t.Errorf("Expected 2 failed commands, got %d", s.Errors)
	}
}

func TestCommandApplyErrors(t *testing.T) {
	m := newMatrix(nil)
	tests := []struct {
		cmd  Command
		want error
	}{
		{Command{Action: ActionPlay, Column: 0, Row: 0}, clip.ErrSlotNotFilled},
		{Command{Action: ActionStopColumn, Column: 7}, clip.ErrColumnNotExist},
		{Command{Action: "explode"}, ErrUnknownAction},
	}
	for _, tt := range tests {
		if err := tt.cmd.Apply(m); !errors.Is(err, tt.want) {
			t.Errorf("%s: expected %v, got %v", tt.cmd.Action, tt.want, err)
		}
	}
}

func TestForwardPublishesHubBatches(t *testing.T) {
	hub := clip.NewHub()
	ft := newFakeTransport()
	b := New(ft, config.RemoteConfig{}, "m1")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		b.Forward(ctx, hub)
		close(done)
	}()

	batch := []clip.Update{{MatrixID: "m1", Column: 1, Row: 2, Event: clip.ChangeEvent{Kind: clip.ChangeKind(0)}}}
	deadline := time.Now().Add(2 * time.Second)
	for ft.count(b.UpdatesTopic()) == 0 && time.Now().Before(deadline) {
		hub.Publish("m1", batch)
		hub.Publish("other", batch)
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	<-done

	ft.mu.Lock()
	payloads := ft.published["go-surface/m1/updates"]
	ft.mu.Unlock()
	if len(payloads) == 0 {
		t.Fatal("Expected at least one published batch")
	}
	got, err := clip.DecodeUpdates(payloads[0])
	if err != nil {
		t.Fatalf("DecodeUpdates failed: %v", err)
	}
	if len(got) != 1 || got[0].Column != 1 || got[0].Row != 2 {
		t.Errorf("Expected the published update, got %+v", got)
	}
	if len(ft.published) != 1 {
		t.Errorf("Expected only the m1 topic, got %d topics", len(ft.published))
	}
}
