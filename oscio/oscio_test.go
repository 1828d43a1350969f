package oscio

import (
	"testing"
	"time"

	"github.com/hypebeast/go-osc/osc"
)

func TestDispatchFlattensBundles(t *testing.T) {
	s := &Server{in: make(chan *osc.Message, 2)}
	inner := osc.NewBundle(time.Now())
	inner.Append(osc.NewMessage("/b"))
	outer := osc.NewBundle(time.Now())
	outer.Append(osc.NewMessage("/a"))
	outer.Append(inner)
	s.Dispatch(outer)
	s.Dispatch(osc.NewMessage("/c")) // queue full

	var got []string
	n := s.Drain(10, func(m *osc.Message) { got = append(got, m.Address) })
	if n != 2 || got[0] != "/a" || got[1] != "/b" {
		t.Errorf("Expected [/a /b], got %v", got)
	}
	if s.Dropped() != 1 {
		t.Errorf("Expected 1 dropped message, got %d", s.Dropped())
	}
}

func TestServerReceives(t *testing.T) {
	s, err := Listen("127.0.0.1:0", 8)
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- s.Serve() }()

	c, err := Dial(s.Addr().String(), false)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	msg := osc.NewMessage("/track/1/volume")
	msg.Append(float32(0.5))
	if err := c.Send(msg); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	select {
	case got := <-s.Messages():
		if got.Address != "/track/1/volume" || len(got.Arguments) != 1 || got.Arguments[0] != float32(0.5) {
			t.Errorf("Expected volume message with 0.5, got %v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Expected message within 2s")
	}

	s.Close()
	if err := <-done; err != ErrClosed {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
}

func TestClientBundles(t *testing.T) {
	c, err := Dial("127.0.0.1:9", true)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	c.Send(osc.NewMessage("/a"))
	c.Send(osc.NewMessage("/b"))
	if c.Pending() != 2 {
		t.Errorf("Expected 2 pending, got %d", c.Pending())
	}
	if err := c.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if c.Pending() != 0 {
		t.Errorf("Expected empty queue after flush, got %d", c.Pending())
	}

	if _, err := Dial("nowhere", false); err == nil {
		t.Error("Expected error for address without port")
	}
}
