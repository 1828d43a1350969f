package supplier

// StretchMode decides how audio follows tempo changes
type StretchMode uint8

const (
	// KeepPitch uses the time stretcher
	KeepPitch StretchMode = iota
	// VariSpeed lets the resampler change speed and pitch together
	VariSpeed
)

func (m StretchMode) String() string {
	if m == VariSpeed {
		return "vari-speed"
	}
	return "keep-pitch"
}

// Equipment is what a chain is allocated with
type Equipment struct {
	MaxBlockFrames int
	StretchMode    StretchMode
}

// DefaultEquipment suits blocks of up to 2048 frames
func DefaultEquipment() Equipment {
	return Equipment{MaxBlockFrames: 2048}
}

// Chain composes source -> looper -> resampler -> time stretcher -> amplifier
type Chain struct {
	equipment Equipment
	looper    *Looper
	resampler *Resampler
	stretcher *TimeStretcher
	amplifier *Amplifier
}

// NewChain builds the complete chain around a source. It allocates.
func NewChain(src Supplier, eq Equipment) *Chain {
	if eq.MaxBlockFrames <= 0 {
		eq.MaxBlockFrames = DefaultEquipment().MaxBlockFrames
	}
	c := &Chain{equipment: eq}
	c.looper = NewLooper(src)
	c.resampler = NewResampler(c.looper, eq.MaxBlockFrames)
	c.stretcher = NewTimeStretcher(c.resampler, eq.MaxBlockFrames)
	c.amplifier = NewAmplifier(c.stretcher)
	c.configureTempo()
	return c
}

func (c *Chain) configureTempo() {
	c.resampler.SetTempoAdjustmentsEnabled(true)
	midi := c.looper.MaterialInfo().Midi
	variSpeed := c.equipment.StretchMode == VariSpeed
	c.resampler.SetResponsibleForAudioTempo(variSpeed)
	c.stretcher.SetEnabled(!midi && !variSpeed)
}

func (c *Chain) SupplyAudio(req *SupplyAudioRequest, dest AudioBuf) SupplyResponse {
	return c.amplifier.SupplyAudio(req, dest)
}

func (c *Chain) SupplyMidi(req *SupplyMidiRequest, events *MidiEventList) SupplyResponse {
	return c.amplifier.SupplyMidi(req, events)
}

// MaterialInfo is section aware
func (c *Chain) MaterialInfo() MaterialInfo {
	return c.looper.MaterialInfo()
}

// Source returns the supplier at the bottom of the chain
func (c *Chain) Source() Supplier {
	return c.looper.Supplier()
}

// SetSource swaps the material, e.g. a committed recording replacing the recorder
func (c *Chain) SetSource(src Supplier) {
	c.looper.SetSupplier(src)
	c.resampler.Reset()
	c.stretcher.Reset()
	c.configureTempo()
}

func (c *Chain) Equipment() Equipment {
	return c.equipment
}

func (c *Chain) SetTempoFactor(f float64) {
	c.resampler.SetTempoFactor(f)
	c.stretcher.SetTempoFactor(f)
}

func (c *Chain) VolumeDB() float64 {
	return c.amplifier.VolumeDB()
}

func (c *Chain) SetVolumeDB(db float64) {
	c.amplifier.SetVolumeDB(db)
}

func (c *Chain) Looped() bool {
	return c.looper.Looped()
}

func (c *Chain) SetLooped(on bool) {
	c.looper.SetLooped(on)
}

func (c *Chain) Section() Section {
	return c.looper.Section()
}

func (c *Chain) SetSection(s Section) {
	c.looper.SetSection(s)
}

// Reset drops internal buffers, called when playback restarts or seeks
func (c *Chain) Reset() {
	c.resampler.Reset()
	c.stretcher.Reset()
}
