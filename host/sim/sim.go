// Package sim is an in-memory host used by tests and the demo commands.
package sim

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"go-surface/host"
)

// Project is a simulated host project. All methods are safe for concurrent use.
type Project struct {
	mu        sync.Mutex
	tracks    []*Track
	master    *Track
	tempo     float64
	playRate  float64
	playState host.PlayState
	repeat    bool
	position  float64
	length    float64
	touched   host.ParamRef
	hasTouch  bool
	changes   chan host.ChangeEvent
	dropped   atomic.Uint64
}

// NewProject creates an empty project at 120 bpm
func NewProject() *Project {
	p := &Project{
		tempo:    120,
		playRate: 1,
		changes:  make(chan host.ChangeEvent, 1024),
	}
	p.master = newTrack(p, "MASTER", -1)
	return p
}

// emit queues a change event; events are dropped when nobody polls
func (p *Project) emit(ev host.ChangeEvent) {
	select {
	case p.changes <- ev:
	default:
		p.dropped.Add(1)
	}
}

func (p *Project) Changes() <-chan host.ChangeEvent {
	return p.changes
}

// DroppedChanges returns how many change events were lost
func (p *Project) DroppedChanges() uint64 {
	return p.dropped.Load()
}

// AddTrack appends a track and returns it
func (p *Project) AddTrack(name string) *Track {
	p.mu.Lock()
	t := newTrack(p, name, len(p.tracks))
	p.tracks = append(p.tracks, t)
	p.mu.Unlock()
	p.emit(host.ChangeEvent{Kind: host.TrackAdded, TrackGUID: t.guid})
	return t
}

// RemoveTrack removes a track; it becomes unavailable
func (p *Project) RemoveTrack(guid string) bool {
	p.mu.Lock()
	idx := -1
	for i, t := range p.tracks {
		if t.guid == guid {
			idx = i
			break
		}
	}
	if idx < 0 {
		p.mu.Unlock()
		return false
	}
	removed := p.tracks[idx]
	p.tracks = append(p.tracks[:idx], p.tracks[idx+1:]...)
	for i, t := range p.tracks {
		t.index = i
	}
	p.mu.Unlock()

	removed.mu.Lock()
	removed.removed = true
	removed.mu.Unlock()
	p.emit(host.ChangeEvent{Kind: host.TrackRemoved, TrackGUID: guid})
	return true
}

// MoveTrack moves a track to a new index
func (p *Project) MoveTrack(from, to int) {
	p.mu.Lock()
	if from < 0 || from >= len(p.tracks) || to < 0 || to >= len(p.tracks) {
		p.mu.Unlock()
		return
	}
	t := p.tracks[from]
	p.tracks = append(p.tracks[:from], p.tracks[from+1:]...)
	p.tracks = append(p.tracks[:to], append([]*Track{t}, p.tracks[to:]...)...)
	for i, t := range p.tracks {
		t.index = i
	}
	p.mu.Unlock()
	p.emit(host.ChangeEvent{Kind: host.TracksReordered})
}

func (p *Project) Tracks() []host.Track {
	p.mu.Lock()
	defer p.mu.Unlock()
	result := make([]host.Track, len(p.tracks))
	for i, t := range p.tracks {
		result[i] = t
	}
	return result
}

func (p *Project) MasterTrack() host.Track {
	return p.master
}

func (p *Project) TrackByIndex(i int) (host.Track, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i < 0 || i >= len(p.tracks) {
		return nil, false
	}
	return p.tracks[i], true
}

// Track returns the concrete simulated track at index i (nil if out of range)
func (p *Project) Track(i int) *Track {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i < 0 || i >= len(p.tracks) {
		return nil
	}
	return p.tracks[i]
}

func (p *Project) TrackByGUID(guid string) (host.Track, bool) {
	if guid == p.master.guid {
		return p.master, true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, t := range p.tracks {
		if t.guid == guid {
			return t, true
		}
	}
	return nil, false
}

func (p *Project) SelectedTracks() []host.Track {
	var result []host.Track
	for _, t := range p.Tracks() {
		if t.Selected() {
			result = append(result, t)
		}
	}
	return result
}

func (p *Project) Tempo() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tempo
}

func (p *Project) SetTempo(bpm float64) {
	bpm = math.Max(1, math.Min(960, bpm))
	p.mu.Lock()
	changed := p.tempo != bpm
	p.tempo = bpm
	p.mu.Unlock()
	if changed {
		p.emit(host.ChangeEvent{Kind: host.TempoChanged})
	}
}

func (p *Project) PlayRate() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playRate
}

func (p *Project) SetPlayRate(rate float64) {
	rate = math.Max(0.25, math.Min(4, rate))
	p.mu.Lock()
	changed := p.playRate != rate
	p.playRate = rate
	p.mu.Unlock()
	if changed {
		p.emit(host.ChangeEvent{Kind: host.PlayRateChanged})
	}
}

func (p *Project) PlayState() host.PlayState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playState
}

func (p *Project) setPlayState(s host.PlayState) {
	p.mu.Lock()
	changed := p.playState != s
	p.playState = s
	p.mu.Unlock()
	if changed {
		p.emit(host.ChangeEvent{Kind: host.PlayStateChanged})
	}
}

func (p *Project) Play()   { p.setPlayState(host.Playing) }
func (p *Project) Stop()   { p.setPlayState(host.Stopped) }
func (p *Project) Pause()  { p.setPlayState(host.Paused) }
func (p *Project) Record() { p.setPlayState(host.Recording) }

func (p *Project) Repeat() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.repeat
}

func (p *Project) SetRepeat(on bool) {
	p.mu.Lock()
	changed := p.repeat != on
	p.repeat = on
	p.mu.Unlock()
	if changed {
		p.emit(host.ChangeEvent{Kind: host.RepeatChanged})
	}
}

func (p *Project) Position() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position
}

func (p *Project) Seek(seconds float64) {
	if seconds < 0 {
		seconds = 0
	}
	p.mu.Lock()
	p.position = seconds
	p.mu.Unlock()
	p.emit(host.ChangeEvent{Kind: host.PositionChanged})
}

func (p *Project) Length() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.length
}

// SetLength sets the project length in seconds
func (p *Project) SetLength(seconds float64) {
	p.mu.Lock()
	p.length = seconds
	p.mu.Unlock()
}

func (p *Project) LastTouched() (host.ParamRef, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.touched, p.hasTouch
}

func (p *Project) touch(ref host.ParamRef) {
	p.mu.Lock()
	p.touched = ref
	p.hasTouch = true
	p.mu.Unlock()
}

// Track is a simulated track
type Track struct {
	project *Project
	mu      sync.Mutex
	guid    string
	index   int
	name    string
	removed bool

	volumeDB float64
	pan      float64
	width    float64
	mute     bool
	solo     bool
	arm      bool
	selected bool
	phase    bool
	peakDB   float64
	fxs      []*Fx
}

func newTrack(p *Project, name string, index int) *Track {
	return &Track{
		project: p,
		guid:    uuid.NewString(),
		index:   index,
		name:    name,
		width:   1,
		peakDB:  math.Inf(-1),
	}
}

func (t *Track) GUID() string { return t.guid }

func (t *Track) Index() int {
	t.project.mu.Lock()
	defer t.project.mu.Unlock()
	return t.index
}

func (t *Track) Name() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.name
}

// SetName renames the track
func (t *Track) SetName(name string) {
	t.mu.Lock()
	t.name = name
	t.mu.Unlock()
}

func (t *Track) IsAvailable() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.removed
}

func (t *Track) emit(kind host.ChangeKind) {
	t.project.emit(host.ChangeEvent{Kind: kind, TrackGUID: t.guid})
}

// setTrackField stores v under the track lock and emits kind if it changed
func setTrackField[T comparable](t *Track, field *T, v T, kind host.ChangeKind) {
	t.mu.Lock()
	changed := *field != v
	*field = v
	t.mu.Unlock()
	if changed {
		t.emit(kind)
	}
}

func getTrackField[T any](t *Track, field *T) T {
	t.mu.Lock()
	defer t.mu.Unlock()
	return *field
}

func (t *Track) VolumeDB() float64 { return getTrackField(t, &t.volumeDB) }
func (t *Track) SetVolumeDB(db float64) {
	setTrackField(t, &t.volumeDB, math.Min(db, 12.0412), host.TrackVolumeChanged)
}

func (t *Track) Pan() float64 { return getTrackField(t, &t.pan) }
func (t *Track) SetPan(p float64) {
	setTrackField(t, &t.pan, math.Max(-1, math.Min(1, p)), host.TrackPanChanged)
}

func (t *Track) Width() float64 { return getTrackField(t, &t.width) }
func (t *Track) SetWidth(w float64) {
	setTrackField(t, &t.width, math.Max(-1, math.Min(1, w)), host.TrackWidthChanged)
}

func (t *Track) Mute() bool               { return getTrackField(t, &t.mute) }
func (t *Track) SetMute(on bool)          { setTrackField(t, &t.mute, on, host.TrackMuteChanged) }
func (t *Track) Solo() bool               { return getTrackField(t, &t.solo) }
func (t *Track) SetSolo(on bool)          { setTrackField(t, &t.solo, on, host.TrackSoloChanged) }
func (t *Track) Arm() bool                { return getTrackField(t, &t.arm) }
func (t *Track) SetArm(on bool)           { setTrackField(t, &t.arm, on, host.TrackArmChanged) }
func (t *Track) Selected() bool           { return getTrackField(t, &t.selected) }
func (t *Track) SetSelected(on bool)      { setTrackField(t, &t.selected, on, host.TrackSelectionChanged) }
func (t *Track) PhaseInverted() bool      { return getTrackField(t, &t.phase) }
func (t *Track) SetPhaseInverted(on bool) { setTrackField(t, &t.phase, on, host.TrackPhaseChanged) }

func (t *Track) PeakDB() float64 { return getTrackField(t, &t.peakDB) }

// SetPeakDB simulates a meter reading
func (t *Track) SetPeakDB(db float64) {
	t.mu.Lock()
	t.peakDB = db
	t.mu.Unlock()
}

// AddFx appends an FX with the given parameter names
func (t *Track) AddFx(name string, params ...string) *Fx {
	t.mu.Lock()
	fx := &Fx{track: t, guid: uuid.NewString(), index: len(t.fxs), name: name, enabled: true}
	for i, pn := range params {
		fx.params = append(fx.params, &Param{fx: fx, index: i, name: pn})
	}
	t.fxs = append(t.fxs, fx)
	t.mu.Unlock()
	t.emit(host.FxAdded)
	return fx
}

// RemoveFx removes the FX at index i
func (t *Track) RemoveFx(i int) bool {
	t.mu.Lock()
	if i < 0 || i >= len(t.fxs) {
		t.mu.Unlock()
		return false
	}
	removed := t.fxs[i]
	t.fxs = append(t.fxs[:i], t.fxs[i+1:]...)
	for j, fx := range t.fxs {
		fx.index = j
	}
	removed.removed = true
	t.mu.Unlock()
	t.project.emit(host.ChangeEvent{Kind: host.FxRemoved, TrackGUID: t.guid, FxIndex: i})
	return true
}

func (t *Track) Fxs() []host.Fx {
	t.mu.Lock()
	defer t.mu.Unlock()
	result := make([]host.Fx, len(t.fxs))
	for i, fx := range t.fxs {
		result[i] = fx
	}
	return result
}

func (t *Track) FxByIndex(i int) (host.Fx, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i < 0 || i >= len(t.fxs) {
		return nil, false
	}
	return t.fxs[i], true
}

// Fx is a simulated effect. Its fields are guarded by the owning track's lock.
type Fx struct {
	track   *Track
	guid    string
	index   int
	name    string
	enabled bool
	removed bool
	params  []*Param
}

func (f *Fx) GUID() string { return f.guid }
func (f *Fx) Name() string { return f.name }

func (f *Fx) Index() int {
	f.track.mu.Lock()
	defer f.track.mu.Unlock()
	return f.index
}

func (f *Fx) IsAvailable() bool {
	f.track.mu.Lock()
	defer f.track.mu.Unlock()
	return !f.removed && !f.track.removed
}

func (f *Fx) Enabled() bool {
	f.track.mu.Lock()
	defer f.track.mu.Unlock()
	return f.enabled
}

func (f *Fx) SetEnabled(on bool) {
	f.track.mu.Lock()
	changed := f.enabled != on
	f.enabled = on
	idx := f.index
	f.track.mu.Unlock()
	if changed {
		f.track.project.emit(host.ChangeEvent{Kind: host.FxEnabledChanged, TrackGUID: f.track.guid, FxIndex: idx})
	}
}

func (f *Fx) Params() []host.Param {
	result := make([]host.Param, len(f.params))
	for i, p := range f.params {
		result[i] = p
	}
	return result
}

func (f *Fx) ParamByIndex(i int) (host.Param, bool) {
	if i < 0 || i >= len(f.params) {
		return nil, false
	}
	return f.params[i], true
}

// Param is a simulated FX parameter
type Param struct {
	fx        *Fx
	index     int
	name      string
	value     float64
	stepCount int
}

func (p *Param) Index() int   { return p.index }
func (p *Param) Name() string { return p.name }

func (p *Param) Value() float64 {
	p.fx.track.mu.Lock()
	defer p.fx.track.mu.Unlock()
	return p.value
}

func (p *Param) SetValue(v float64) {
	v = math.Max(0, math.Min(1, v))
	t := p.fx.track
	t.mu.Lock()
	if p.stepCount > 1 {
		steps := float64(p.stepCount - 1)
		v = math.Round(v*steps) / steps
	}
	changed := p.value != v
	p.value = v
	fxIndex := p.fx.index
	t.mu.Unlock()

	t.project.touch(host.ParamRef{TrackGUID: t.guid, FxIndex: fxIndex, ParamIndex: p.index})
	if changed {
		t.project.emit(host.ChangeEvent{Kind: host.FxParamChanged, TrackGUID: t.guid, FxIndex: fxIndex, ParamIndex: p.index})
	}
}

func (p *Param) StepCount() int { return p.stepCount }

// SetStepCount makes the parameter discrete
func (p *Param) SetStepCount(n int) {
	p.stepCount = n
}
