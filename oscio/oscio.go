// Package oscio connects the engine to the network: a UDP server that queues
// incoming OSC messages and a client that sends feedback.
package oscio

import (
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hypebeast/go-osc/osc"
	"github.com/pkg/errors"
)

var ErrClosed = errors.New("osc server closed")

// Server receives OSC packets and queues their messages. Bundles are
// flattened. The queue is bounded; messages arriving while it's full are
// dropped and counted.
type Server struct {
	conn    net.PacketConn
	srv     *osc.Server
	in      chan *osc.Message
	dropped atomic.Uint64
	closed  atomic.Bool
}

// Listen opens a UDP socket on addr (host:port, port 0 picks a free one)
func Listen(addr string, capacity int) (*Server, error) {
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "osc listen %s", addr)
	}
	s := &Server{
		conn: conn,
		in:   make(chan *osc.Message, max(capacity, 1)),
	}
	s.srv = &osc.Server{Addr: addr, Dispatcher: s}
	return s, nil
}

// Serve blocks until Close is called
func (s *Server) Serve() error {
	slog.Info("osc server listening", "addr", s.conn.LocalAddr().String())
	err := s.srv.Serve(s.conn)
	if s.closed.Load() {
		return ErrClosed
	}
	return err
}

// Dispatch implements osc.Dispatcher
func (s *Server) Dispatch(packet osc.Packet) {
	switch p := packet.(type) {
	case *osc.Message:
		s.push(p)
	case *osc.Bundle:
		for _, m := range p.Messages {
			s.push(m)
		}
		for _, b := range p.Bundles {
			s.Dispatch(b)
		}
	}
}

func (s *Server) push(msg *osc.Message) {
	select {
	case s.in <- msg:
	default:
		s.dropped.Add(1)
	}
}

// Messages is the queue of incoming messages
func (s *Server) Messages() <-chan *osc.Message {
	return s.in
}

// Drain hands up to n queued messages to fn without blocking
func (s *Server) Drain(n int, fn func(*osc.Message)) int {
	for i := range n {
		select {
		case msg := <-s.in:
			fn(msg)
		default:
			return i
		}
	}
	return n
}

func (s *Server) Addr() net.Addr {
	return s.conn.LocalAddr()
}

func (s *Server) Dropped() uint64 {
	return s.dropped.Load()
}

func (s *Server) Close() error {
	s.closed.Store(true)
	return s.conn.Close()
}

// Client sends OSC feedback to one destination. With bundling on, Send only
// queues and Flush sends everything queued as one bundle.
type Client struct {
	c      *osc.Client
	bundle bool

	mu      sync.Mutex
	pending []*osc.Message
}

// Dial creates a client for addr (host:port). UDP needs no connection, so
// this only validates the address.
func Dial(addr string, bundle bool) (*Client, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, errors.Wrapf(err, "osc feedback address %q", addr)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, errors.Wrapf(err, "osc feedback port %q", portStr)
	}
	return &Client{c: osc.NewClient(host, port), bundle: bundle}, nil
}

// Send implements target.OscSender
func (c *Client) Send(packet osc.Packet) error {
	if msg, ok := packet.(*osc.Message); ok && c.bundle {
		c.mu.Lock()
		c.pending = append(c.pending, msg)
		c.mu.Unlock()
		return nil
	}
	return c.c.Send(packet)
}

// Flush sends queued messages as one bundle
func (c *Client) Flush() error {
	c.mu.Lock()
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()
	if len(pending) == 0 {
		return nil
	}
	b := osc.NewBundle(time.Now())
	for _, m := range pending {
		if err := b.Append(m); err != nil {
			return err
		}
	}
	return c.c.Send(b)
}

// Pending returns the number of queued messages
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
