package rt

import (
	"sync/atomic"

	"go-surface/clip/supplier"
	"go-surface/debug"
)

// DefaultSlotCount is the number of slots a column is created with
const DefaultSlotCount = 64

// Block is one audio callback worth of buffers
type Block struct {
	Out        supplier.AudioBuf
	In         supplier.AudioBuf
	MidiIn     []supplier.MidiEvent
	MidiOut    *supplier.MidiEventList
	SampleRate float64
	Tempo      float64
}

// Column renders the clips of one matrix column. Process is the only method
// called from the audio thread.
type Column struct {
	commands <-chan Command
	events   chan<- Event
	settings Settings
	slots    []*Clip
	scratch  supplier.AudioBuf
	dropped  atomic.Int64
}

// NewColumn creates a column. Commands and events should be created with
// ChannelCapacity.
func NewColumn(commands <-chan Command, events chan<- Event, settings Settings, slotCount int, eq supplier.Equipment) *Column {
	if slotCount <= 0 {
		slotCount = DefaultSlotCount
	}
	if eq.MaxBlockFrames <= 0 {
		eq = supplier.DefaultEquipment()
	}
	return &Column{
		commands: commands,
		events:   events,
		settings: settings,
		slots:    make([]*Clip, slotCount),
		// stereo scratch; mono material folds into it
		scratch: supplier.NewAudioBuf(2, eq.MaxBlockFrames),
	}
}

// SlotCount returns the fixed number of slots
func (c *Column) SlotCount() int {
	return len(c.slots)
}

// DroppedEvents counts events lost because the event channel was full
func (c *Column) DroppedEvents() int64 {
	return c.dropped.Load()
}

// Process drains pending commands, then adds the output of all clips to the block
func (c *Column) Process(b *Block) {
	c.drain()
	if b.Out.Channels != c.scratch.Channels || b.Out.FrameCount() > c.scratch.FrameCount() {
		c.ensureScratch(b.Out.Channels, b.Out.FrameCount())
	}
	for i, clip := range c.slots {
		if clip == nil {
			continue
		}
		if clip.render(b, c.scratch) {
			c.emitState(i, clip)
		}
	}
}

func (c *Column) ensureScratch(channels, frames int) {
	debug.PermitAlloc(func() {
		c.scratch = supplier.NewAudioBuf(max(channels, 1), max(frames, c.scratch.FrameCount()))
	})
}

func (c *Column) drain() {
	for {
		select {
		case cmd := <-c.commands:
			c.handle(cmd)
		default:
			return
		}
	}
}

func (c *Column) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
		if c.dropped.Add(1) == 1 {
			debug.RT("clip", "column event channel full, dropping events")
		}
	}
}

func (c *Column) emitState(slot int, clip *Clip) {
	c.emit(Event{Kind: EvPlayStateChanged, Slot: slot, PlayState: clip.state})
}

func (c *Column) fail(slot int, msg string) {
	c.emit(Event{Kind: EvInteractionFailed, Slot: slot, Failure: msg})
}

func (c *Column) slotValid(slot int) bool {
	return slot >= 0 && slot < len(c.slots)
}

func (c *Column) handle(cmd Command) {
	switch cmd.Kind {
	case CmdUpdateSettings:
		c.settings = cmd.Settings
		return
	case CmdClearSlots:
		for i := range c.slots {
			c.clearSlot(i)
		}
		return
	case CmdStop:
		for i := range c.slots {
			c.stopSlot(i)
		}
		return
	case CmdPlayRow:
		c.playRow(cmd.Slot)
		return
	}

	if !c.slotValid(cmd.Slot) {
		c.fail(cmd.Slot, "slot doesn't exist")
		return
	}
	clip := c.slots[cmd.Slot]
	switch cmd.Kind {
	case CmdFillSlot:
		if clip != nil {
			c.emit(Event{Kind: EvDispose, Slot: cmd.Slot, Clip: clip})
		}
		c.slots[cmd.Slot] = cmd.Clip
		return
	case CmdClearSlot:
		c.clearSlot(cmd.Slot)
		return
	case CmdRecordClip:
		c.record(cmd.Slot, cmd.Record)
		return
	}

	if clip == nil {
		c.fail(cmd.Slot, "slot not filled")
		return
	}
	switch cmd.Kind {
	case CmdPlayClip:
		c.play(cmd.Slot, clip)
	case CmdStopClip:
		c.stopSlot(cmd.Slot)
	case CmdPauseClip:
		if clip.pause() {
			c.emitState(cmd.Slot, clip)
		}
	case CmdSeekClip:
		clip.seek(cmd.Value)
	case CmdSetClipVolume:
		clip.chain.SetVolumeDB(cmd.Value)
	case CmdSetClipLooped:
		clip.chain.SetLooped(cmd.Flag)
	case CmdSetClipSection:
		clip.chain.SetSection(cmd.Section)
		clip.shared.Frames.Store(int64(clip.chain.MaterialInfo().FrameCount))
	case CmdSetClipSource:
		old := clip.setSource(cmd.Source)
		c.emit(Event{Kind: EvDispose, Slot: cmd.Slot, Source: old})
		if cmd.Flag {
			c.play(cmd.Slot, clip)
		}
	case CmdCancelRecording:
		c.cancelRecording(cmd.Slot, clip)
	}
}

func (c *Column) play(slot int, clip *Clip) {
	if c.settings.PlayMode.IsExclusive() {
		for i := range c.slots {
			if i != slot {
				c.stopSlot(i)
			}
		}
	}
	if clip.play() {
		c.emitState(slot, clip)
	}
}

func (c *Column) playRow(row int) {
	if !c.settings.PlayMode.FollowsScene() || !c.slotValid(row) {
		return
	}
	if clip := c.slots[row]; clip != nil {
		c.play(row, clip)
		return
	}
	for i := range c.slots {
		c.stopSlot(i)
	}
}

// stopSlot stops playback, finishing a recording as committed
func (c *Column) stopSlot(slot int) {
	clip := c.slots[slot]
	if clip == nil {
		return
	}
	if clip.state == Recording {
		overdub := clip.overdubbing
		c.finishRecording(slot, clip, Committed)
		if !overdub {
			return
		}
	}
	if clip.stop() {
		c.emitState(slot, clip)
	}
}

func (c *Column) finishRecording(slot int, clip *Clip, outcome RecordingOutcome) {
	overdub := clip.overdubbing
	rec := clip.stopRecording()
	if overdub {
		c.emit(Event{Kind: EvMidiOverdubFinished, Slot: slot, Outcome: outcome, Recorder: rec})
	} else {
		c.emit(Event{Kind: EvNormalRecordingFinished, Slot: slot, Outcome: outcome, Recorder: rec, Material: rec.MaterialInfo()})
	}
	c.emitState(slot, clip)
}

func (c *Column) cancelRecording(slot int, clip *Clip) {
	if clip.state != Recording {
		c.fail(slot, "slot was not recording")
		return
	}
	overdub := clip.overdubbing
	c.finishRecording(slot, clip, Canceled)
	if !overdub {
		c.slots[slot] = nil
		c.emit(Event{Kind: EvSlotCleared, Slot: slot})
		c.emit(Event{Kind: EvDispose, Slot: slot, Clip: clip})
	}
}

func (c *Column) clearSlot(slot int) {
	clip := c.slots[slot]
	if clip == nil {
		return
	}
	if clip.state == Recording {
		c.finishRecording(slot, clip, Canceled)
	}
	c.slots[slot] = nil
	c.emit(Event{Kind: EvSlotCleared, Slot: slot})
	c.emit(Event{Kind: EvDispose, Slot: slot, Clip: clip})
}

func (c *Column) record(slot int, instr *RecordInstruction) {
	existing := c.slots[slot]
	if instr == nil || instr.Recorder == nil {
		c.emit(Event{Kind: EvRecordRequestAcknowledged, Slot: slot, Failure: "recording was not requested"})
		return
	}
	if existing != nil && existing.state == Recording {
		c.emit(Event{Kind: EvRecordRequestAcknowledged, Slot: slot, Failure: "recording already according to play state"})
		return
	}
	target := existing
	if instr.Overdub {
		if existing == nil {
			c.emit(Event{Kind: EvRecordRequestAcknowledged, Slot: slot, Failure: "slot not filled"})
			return
		}
	} else {
		if instr.NewClip == nil {
			c.emit(Event{Kind: EvRecordRequestAcknowledged, Slot: slot, Failure: "recording was not requested"})
			return
		}
		if existing != nil {
			c.emit(Event{Kind: EvDispose, Slot: slot, Clip: existing})
		}
		target = instr.NewClip
		c.slots[slot] = target
	}
	if c.settings.PlayMode.IsExclusive() {
		for i := range c.slots {
			if i != slot {
				c.stopSlot(i)
			}
		}
	}
	target.startRecording(instr)
	c.emit(Event{Kind: EvRecordRequestAcknowledged, Slot: slot, AckOK: true, Shared: target.shared})
	c.emitState(slot, target)
}
