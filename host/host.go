// Package host defines the narrow interfaces through which the mapping engine
// talks to the audio host: project, tracks, FX and parameters.
package host

import (
	"math"

	"github.com/pkg/errors"
)

var (
	ErrTrackNotFound = errors.New("track not found")
	ErrFxNotFound    = errors.New("fx not found")
	ErrParamNotFound = errors.New("parameter not found")
)

// PlayState is the transport state of the project
type PlayState uint8

const (
	Stopped PlayState = iota
	Playing
	Paused
	Recording
)

func (s PlayState) String() string {
	switch s {
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	case Recording:
		return "recording"
	}
	return "stopped"
}

// Project is the host project
type Project interface {
	Tracks() []Track // excluding master
	MasterTrack() Track
	TrackByIndex(i int) (Track, bool)
	TrackByGUID(guid string) (Track, bool)
	SelectedTracks() []Track

	Tempo() float64 // bpm
	SetTempo(bpm float64)
	PlayRate() float64 // 1.0 = normal
	SetPlayRate(rate float64)

	PlayState() PlayState
	Play()
	Stop()
	Pause()
	Record()
	Repeat() bool
	SetRepeat(on bool)

	Position() float64 // seconds
	Seek(seconds float64)
	Length() float64 // seconds, 0 if empty

	// LastTouched returns the most recently touched FX parameter
	LastTouched() (ParamRef, bool)

	// Changes delivers project change events. Consumers poll without blocking.
	Changes() <-chan ChangeEvent
}

// Track is a project track
type Track interface {
	GUID() string
	Index() int // -1 for master
	Name() string
	IsAvailable() bool

	VolumeDB() float64
	SetVolumeDB(db float64)
	Pan() float64 // -1..1
	SetPan(p float64)
	Width() float64 // -1..1
	SetWidth(w float64)
	Mute() bool
	SetMute(on bool)
	Solo() bool
	SetSolo(on bool)
	Arm() bool
	SetArm(on bool)
	Selected() bool
	SetSelected(on bool)
	PhaseInverted() bool
	SetPhaseInverted(on bool)
	PeakDB() float64

	Fxs() []Fx
	FxByIndex(i int) (Fx, bool)
}

// Fx is an effect on a track's FX chain
type Fx interface {
	GUID() string
	Index() int
	Name() string
	IsAvailable() bool
	Enabled() bool
	SetEnabled(on bool)
	Params() []Param
	ParamByIndex(i int) (Param, bool)
}

// Param is an FX parameter with a normalized value
type Param interface {
	Index() int
	Name() string
	Value() float64 // 0..1
	SetValue(v float64)
	StepCount() int // 0 for continuous
}

// ParamRef addresses an FX parameter
type ParamRef struct {
	TrackGUID  string
	FxIndex    int
	ParamIndex int
}

// ChangeKind identifies a project change
type ChangeKind uint8

const (
	TrackAdded ChangeKind = iota
	TrackRemoved
	TracksReordered
	TrackSelectionChanged
	TrackVolumeChanged
	TrackPanChanged
	TrackWidthChanged
	TrackMuteChanged
	TrackSoloChanged
	TrackArmChanged
	TrackPhaseChanged
	FxAdded
	FxRemoved
	FxReordered
	FxEnabledChanged
	FxParamChanged
	TempoChanged
	PlayRateChanged
	PlayStateChanged
	RepeatChanged
	PositionChanged
)

var changeKindNames = [...]string{
	"TrackAdded", "TrackRemoved", "TracksReordered", "TrackSelectionChanged",
	"TrackVolumeChanged", "TrackPanChanged", "TrackWidthChanged", "TrackMuteChanged",
	"TrackSoloChanged", "TrackArmChanged", "TrackPhaseChanged", "FxAdded", "FxRemoved",
	"FxReordered", "FxEnabledChanged", "FxParamChanged", "TempoChanged", "PlayRateChanged",
	"PlayStateChanged", "RepeatChanged", "PositionChanged",
}

func (k ChangeKind) String() string {
	if int(k) < len(changeKindNames) {
		return changeKindNames[k]
	}
	return "Unknown"
}

// IsStructural reports changes that can invalidate resolved targets
func (k ChangeKind) IsStructural() bool {
	switch k {
	case TrackAdded, TrackRemoved, TracksReordered, TrackSelectionChanged, FxAdded, FxRemoved, FxReordered:
		return true
	}
	return false
}

// ChangeEvent is a project change. Fields not relevant to Kind are zero.
type ChangeEvent struct {
	Kind       ChangeKind
	TrackGUID  string
	FxIndex    int
	ParamIndex int
}

// Volume taper: slider unit value <-> dB (+12 dB at the top, -inf at the bottom)

const maxVolumeDB = 12.0412

// SliderToDB converts a unit slider value into dB
func SliderToDB(u float64) float64 {
	if u <= 0 {
		return math.Inf(-1)
	}
	return 40*math.Log10(u) + maxVolumeDB
}

// DBToSlider converts dB into a unit slider value
func DBToSlider(db float64) float64 {
	if math.IsInf(db, -1) {
		return 0
	}
	u := math.Pow(10, (db-maxVolumeDB)/40)
	if u > 1 {
		return 1
	}
	return u
}

// PanToUnit maps -1..1 to 0..1
func PanToUnit(p float64) float64 {
	return (p + 1) / 2
}

// UnitToPan maps 0..1 to -1..1
func UnitToPan(u float64) float64 {
	return u*2 - 1
}

// TrackByName finds the first track with the given name
func TrackByName(p Project, name string) (Track, bool) {
	for _, t := range p.Tracks() {
		if t.Name() == name {
			return t, true
		}
	}
	return nil, false
}

// TracksByName finds all tracks with the given name
func TracksByName(p Project, name string) []Track {
	var result []Track
	for _, t := range p.Tracks() {
		if t.Name() == name {
			result = append(result, t)
		}
	}
	return result
}

// ResolveParam looks up the parameter a ParamRef points to
func ResolveParam(p Project, ref ParamRef) (Param, error) {
	t, ok := p.TrackByGUID(ref.TrackGUID)
	if !ok {
		return nil, ErrTrackNotFound
	}
	fx, ok := t.FxByIndex(ref.FxIndex)
	if !ok {
		return nil, ErrFxNotFound
	}
	param, ok := fx.ParamByIndex(ref.ParamIndex)
	if !ok {
		return nil, ErrParamNotFound
	}
	return param, nil
}
