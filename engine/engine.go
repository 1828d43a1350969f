// Package engine wires controllers, OSC, the mapping processors, the session
// and the clip matrix into one running instance.
//
// Three kinds of goroutines touch the engine: the audio thread calls
// ProcessBlock, the main loop calls Tick, and I/O goroutines (controller
// inputs, OSC server, MQTT) only ever push into bounded queues.
package engine

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"go-surface/backbone"
	"go-surface/bus"
	"go-surface/clip"
	"go-surface/clip/rt"
	"go-surface/clip/supplier"
	"go-surface/config"
	"go-surface/debug"
	"go-surface/host"
	"go-surface/midi"
	"go-surface/oscio"
	"go-surface/persist"
	"go-surface/processor"
	"go-surface/remote"
	"go-surface/session"
	"go-surface/source"
	"go-surface/target"
)

// mainInterval is the main loop period
const mainInterval = 5 * time.Millisecond

// maxBlockEvents bounds the MIDI events handed to one audio block
const maxBlockEvents = 256

// changeSource is implemented by hosts that report their changes
type changeSource interface {
	Changes() <-chan host.ChangeEvent
}

// Engine is one instance: a project, its mappings and its clip matrix
type Engine struct {
	cfg      *config.Config
	project  host.Project
	instance string

	ch       processor.Channels
	domain   *bus.Bus[processor.DomainEvent]
	main     *processor.MainProcessor
	rt       *processor.RealTimeProcessor
	session  *session.Session
	backbone *backbone.Backbone
	hub      *clip.Hub
	matrix   *clip.Matrix
	store    *persist.Store

	outputs *outputs
	osc     *oscOutput
	devices *midi.DeviceManager
	oscIn   *oscio.Server
	oscOut  *oscio.Client
	bridge  *remote.Bridge

	// controller input -> audio thread
	midiIn chan midi.ShortMessage
	// clip MIDI output, audio thread -> main loop
	clipOut chan midi.ShortMessage

	// audio thread state, preallocated
	rtEvents []midi.ShortMessage
	block    rt.Block
	blockIn  []float64
	blockOut []float64
	tempo    atomic.Uint64

	midiDropped atomic.Uint64
	ticks       uint64

	// held by Tick and Do; everything but the audio thread state
	mu sync.Mutex

	// UpdateChan is signaled (non-blocking) after every tick that changed something
	UpdateChan chan struct{}
	// DeviceChan relays controller connects and disconnects
	DeviceChan chan midi.DeviceEvent
}

// New creates an engine for project. Nothing is opened until Start.
func New(cfg *config.Config, project host.Project) *Engine {
	e := &Engine{
		cfg:        cfg,
		project:    project,
		instance:   uuid.NewString(),
		ch:         processor.NewChannels(cfg.Processor),
		domain:     bus.New[processor.DomainEvent](),
		backbone:   backbone.New(),
		hub:        clip.NewHub(),
		outputs:    newOutputs(),
		osc:        &oscOutput{},
		midiIn:     make(chan midi.ShortMessage, 1024),
		clipOut:    make(chan midi.ShortMessage, 1024),
		rtEvents:   make([]midi.ShortMessage, 0, maxBlockEvents),
		UpdateChan: make(chan struct{}, 1),
		DeviceChan: make(chan midi.DeviceEvent, 16),
	}
	e.backbone.Register(e.instance)
	e.matrix = clip.NewMatrix(cfg.ClipEngine, e.hub)
	if err := e.backbone.SetMatrix(e.instance, e.matrix); err != nil {
		slog.Error("matrix registration failed", "err", err)
	}
	e.tempo.Store(math.Float64bits(cfg.ClipEngine.Tempo))

	ctx := target.Context{
		Project:    project,
		Backbone:   e.backbone,
		InstanceID: e.instance,
		MidiOut:    e.outputs,
		OscOut:     e.osc,
	}
	e.main = processor.NewMainProcessor(cfg.Processor, ctx, e.ch, processor.FeedbackFunc(e.sendFeedback), e.domain)
	e.rt = processor.NewRealTimeProcessor(e.ch)
	e.session = session.New(context.Background(), e.ch, e.domain)
	e.allocBlock(cfg.ClipEngine.BlockSize, cfg.ClipEngine.SampleRate)
	return e
}

func (e *Engine) Session() *session.Session           { return e.session }
func (e *Engine) Matrix() *clip.Matrix                { return e.matrix }
func (e *Engine) Hub() *clip.Hub                      { return e.hub }
func (e *Engine) Project() host.Project               { return e.project }
func (e *Engine) Processor() *processor.MainProcessor { return e.main }
func (e *Engine) InstanceID() string                  { return e.instance }

// SetStore sets where Save and Load keep presets
func (e *Engine) SetStore(s *persist.Store) {
	e.store = s
}

// allocBlock sizes the audio thread buffers. Not safe while audio runs.
func (e *Engine) allocBlock(frames int, sampleRate float64) {
	channels := e.channels()
	frames = max(frames, 1)
	e.blockIn = make([]float64, channels*frames)
	e.blockOut = make([]float64, channels*frames)
	e.block = rt.Block{
		MidiIn:     make([]supplier.MidiEvent, 0, maxBlockEvents),
		MidiOut:    supplier.NewMidiEventList(maxBlockEvents),
		SampleRate: sampleRate,
	}
	e.main.SetSampleRate(sampleRate)
}

// Start opens the configured I/O: controllers, OSC and the remote bridge.
// Failing optional parts are logged and skipped.
func (e *Engine) Start(ctx context.Context) error {
	e.devices = midi.NewDeviceManager(e.cfg.AutoConnectControllers())
	go e.devices.Run(ctx)
	go e.watchDevices(ctx)

	if e.cfg.OSC.Enabled {
		if err := e.startOsc(); err != nil {
			return err
		}
	}
	if e.cfg.Remote.Enabled {
		t, err := remote.Connect(e.cfg.Remote)
		if err != nil {
			slog.Warn("remote bridge disabled", "err", err)
		} else {
			e.bridge = remote.New(t, e.cfg.Remote, e.matrix.ID())
			if err := e.bridge.Start(); err != nil {
				slog.Warn("remote bridge disabled", "err", err)
				e.bridge.Close()
				e.bridge = nil
			} else {
				go e.bridge.Forward(ctx, e.hub)
			}
		}
	}
	slog.Info("engine started", "instance", e.instance, "matrix", e.matrix.ID())
	return nil
}

func (e *Engine) startOsc() error {
	srv, err := oscio.Listen(e.cfg.OSC.ListenAddr, e.cfg.Processor.ControlQueueSize)
	if err != nil {
		return err
	}
	e.oscIn = srv
	go func() {
		if err := srv.Serve(); err != nil && err != oscio.ErrClosed {
			slog.Error("osc server stopped", "err", err)
		}
	}()
	if e.cfg.OSC.FeedbackAddr != "" {
		client, err := oscio.Dial(e.cfg.OSC.FeedbackAddr, e.cfg.OSC.BundleFeedbacks)
		if err != nil {
			return err
		}
		e.oscOut = client
		e.osc.set(client)
	}
	return nil
}

// Run calls Tick until ctx ends, then closes everything
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(mainInterval)
	defer ticker.Stop()
	defer e.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Tick()
		}
	}
}

// Do runs fn between two ticks. Session, matrix and project may only be
// used from fn once the main loop runs.
func (e *Engine) Do(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn()
}

// Tick is one pass of the main loop
func (e *Engine) Tick() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ticks++
	bulk := max(e.cfg.Processor.BulkSize, 1)
	changed := false

	if e.oscIn != nil {
		if e.oscIn.Drain(bulk, e.main.ProcessOsc) > 0 {
			changed = true
		}
	}
	if e.forwardHostChanges(bulk) > 0 {
		changed = true
	}

	tempo := e.project.Tempo()
	e.tempo.Store(math.Float64bits(tempo))
	for _, u := range e.matrix.Poll(tempo) {
		if err := e.ch.SendChange(target.ClipChange(u)); err != nil {
			debug.LogEvery(100, "engine", "clip change dropped: %v", err)
		}
		changed = true
	}
	if e.bridge != nil && e.bridge.Apply(e.matrix, bulk) > 0 {
		changed = true
	}

	before := e.main.Stats()
	e.main.Run()
	e.session.Tick()
	if after := e.main.Stats(); after.Controls != before.Controls || after.Feedbacks != before.Feedbacks {
		changed = true
	}

	e.sendClipMidi(bulk)
	if e.oscOut != nil {
		if err := e.oscOut.Flush(); err != nil {
			debug.LogEvery(100, "osc", "feedback flush failed: %v", err)
		}
	}
	if changed {
		e.notifyUpdate()
	}
}

func (e *Engine) notifyUpdate() {
	select {
	case e.UpdateChan <- struct{}{}:
	default:
	}
}

func (e *Engine) forwardHostChanges(n int) int {
	cs, ok := e.project.(changeSource)
	if !ok {
		return 0
	}
	for i := range n {
		select {
		case ev := <-cs.Changes():
			if err := e.ch.SendChange(target.HostChange(ev)); err != nil {
				debug.LogEvery(100, "engine", "host change dropped: %v", err)
			}
		default:
			return i
		}
	}
	return n
}

// PushMidi queues a controller message for the next audio block
func (e *Engine) PushMidi(msg midi.ShortMessage) {
	select {
	case e.midiIn <- msg:
	default:
		e.midiDropped.Add(1)
	}
}

func (e *Engine) sendClipMidi(n int) {
	for range n {
		select {
		case msg := <-e.clipOut:
			e.outputs.Send(msg)
		default:
			return
		}
	}
}

func (e *Engine) sendFeedback(v source.FeedbackValue) {
	switch v.Category {
	case source.CategoryMidi:
		if err := e.outputs.Send(v.Midi); err != nil {
			debug.LogEvery(50, "feedback", "midi feedback failed: %v", err)
		}
	case source.CategoryOsc:
		if e.oscOut == nil || v.Osc == nil {
			return
		}
		if err := e.oscOut.Send(v.Osc); err != nil {
			debug.LogEvery(50, "feedback", "osc feedback failed: %v", err)
		}
	}
}

// Stats is a snapshot for monitors
type Stats struct {
	Processor    processor.Stats
	Ticks        uint64
	RTOverflows  uint64
	MidiDropped  uint64
	OscDropped   uint64
	ClipsDropped uint64
	Remote       remote.Stats
	Controllers  int
}

func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats()
}

func (e *Engine) stats() Stats {
	s := Stats{
		Processor:    e.main.Stats(),
		Ticks:        e.ticks,
		RTOverflows:  e.rt.Overflows(),
		MidiDropped:  e.midiDropped.Load(),
		ClipsDropped: e.hub.Dropped(),
		Controllers:  e.outputs.Len(),
	}
	if e.oscIn != nil {
		s.OscDropped = e.oscIn.Dropped()
	}
	if e.bridge != nil {
		s.Remote = e.bridge.Stats()
	}
	return s
}

// Close releases the network resources. Controllers close with the context
// passed to Start.
func (e *Engine) Close() {
	if e.oscIn != nil {
		e.oscIn.Close()
	}
	if e.bridge != nil {
		e.bridge.Close()
	}
	e.session.Close()
	e.backbone.Unregister(e.instance)
	slog.Info("engine stopped", "instance", e.instance)
}
