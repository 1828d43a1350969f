// Package processor runs mappings. The RealTimeProcessor matches MIDI on the
// audio path; the MainProcessor owns the full mapping copies, resolves
// targets, applies modes, hits targets and computes feedback.
package processor

import (
	"log/slog"
	"time"

	"github.com/hypebeast/go-osc/osc"
	"github.com/pkg/errors"

	"go-surface/bus"
	"go-surface/config"
	"go-surface/control"
	"go-surface/debug"
	"go-surface/mapping"
	"go-surface/source"
	"go-surface/target"
)

// DefaultBulkSize is the number of tasks taken from each channel per pass
const DefaultBulkSize = 32

// Stats is a snapshot of the processor state for monitors
type Stats struct {
	Mappings      [len(mapping.Compartments)]int
	On            [len(mapping.Compartments)]int
	Subscriptions [len(mapping.Compartments)]int
	Buffered      int
	Controls      uint64
	Failures      uint64
	Feedbacks     uint64
}

// MainProcessor is driven by Run from the main goroutine
type MainProcessor struct {
	ctx    target.Context
	ch     Channels
	sink   FeedbackSink
	events *bus.Bus[DomainEvent]
	buffer *FeedbackBuffer

	echoWindow time.Duration
	bulk       int
	now        func() time.Time

	mappings      [len(mapping.Compartments)]map[mapping.ID]*MainMapping
	order         [len(mapping.Compartments)][]mapping.ID
	params        [len(mapping.Compartments)]mapping.Params
	subscriptions [len(mapping.Compartments)]map[mapping.ID]struct{}

	feedbackEnabled bool
	learning        bool
	// set by deferred instructions that switched mappings on or off
	structChanged [len(mapping.Compartments)]bool

	controls, failures, feedbacks uint64
}

// NewMainProcessor creates a processor. events may be nil.
func NewMainProcessor(cfg config.ProcessorConfig, ctx target.Context, ch Channels, sink FeedbackSink, events *bus.Bus[DomainEvent]) *MainProcessor {
	hz := cfg.FeedbackPollHz
	if hz <= 0 {
		hz = 30
	}
	bulk := cfg.BulkSize
	if bulk <= 0 {
		bulk = DefaultBulkSize
	}
	p := &MainProcessor{
		ctx:             ctx,
		ch:              ch,
		sink:            sink,
		events:          events,
		buffer:          NewFeedbackBuffer(time.Second / time.Duration(hz)),
		echoWindow:      time.Duration(cfg.EchoFeedbackWindowMs) * time.Millisecond,
		bulk:            bulk,
		now:             time.Now,
		feedbackEnabled: true,
	}
	for c := range p.mappings {
		p.mappings[c] = make(map[mapping.ID]*MainMapping)
		p.subscriptions[c] = make(map[mapping.ID]struct{})
	}
	return p
}

// SetClock replaces time.Now, for tests
func (p *MainProcessor) SetClock(now func() time.Time) {
	p.now = now
}

// Run processes one pass: normal, parameter, control and feedback tasks, at
// most one bulk of each, then due feedback, then deferred events
func (p *MainProcessor) Run() {
	drain(p.ch.Normal, p.bulk, p.handleNormal)
	drain(p.ch.Parameter, p.bulk, p.handleParameter)
	drain(p.ch.Control, p.bulk, p.handleControl)
	drain(p.ch.Feedback, p.bulk, p.handleFeedback)
	p.pollFeedback(p.now())
	if p.events != nil {
		p.events.Drain(p.bulk)
	}
}

// drain handles up to n queued tasks without blocking
func drain[T any](ch chan T, n int, fn func(T)) int {
	for i := range n {
		select {
		case t := <-ch:
			fn(t)
		default:
			return i
		}
	}
	return n
}

// Mapping returns the processor copy of a mapping
func (p *MainProcessor) Mapping(c mapping.Compartment, id mapping.ID) (*MainMapping, bool) {
	m, ok := p.mappings[c][id]
	return m, ok
}

// Lifecycle returns the runtime state of a mapping
func (p *MainProcessor) Lifecycle(c mapping.Compartment, id mapping.ID) (LifecycleState, bool) {
	m, ok := p.mappings[c][id]
	if !ok {
		return Inactive, false
	}
	return m.Lifecycle(), true
}

func (p *MainProcessor) Stats() Stats {
	s := Stats{Buffered: p.buffer.Len(), Controls: p.controls, Failures: p.failures, Feedbacks: p.feedbacks}
	for c := range p.mappings {
		s.Mappings[c] = len(p.mappings[c])
		s.Subscriptions[c] = len(p.subscriptions[c])
		for _, m := range p.mappings[c] {
			if m.isEffectivelyOn() {
				s.On[c]++
			}
		}
	}
	return s
}

// SetSampleRate forwards the audio sample rate to the real-time processor
func (p *MainProcessor) SetSampleRate(sr float64) {
	p.sendRealTime(RealTimeTask{Kind: RTSetSampleRate, SampleRate: sr})
}

func (p *MainProcessor) publish(ev DomainEvent) {
	if p.events != nil {
		p.events.Publish(ev)
	}
}

// contextFor is the target context of a compartment. Only controller
// mappings can drive virtual elements.
func (p *MainProcessor) contextFor(c mapping.Compartment) target.Context {
	ctx := p.ctx
	ctx.Params = &p.params[c]
	if c == mapping.Controller {
		ctx.VirtualSink = p.processVirtual
	}
	return ctx
}

func (p *MainProcessor) each(c mapping.Compartment, fn func(m *MainMapping)) {
	for _, id := range p.order[c] {
		fn(p.mappings[c][id])
	}
}

func (p *MainProcessor) handleNormal(t NormalTask) {
	switch t.Kind {
	case UpdateAllMappings:
		debug.Log("main", "updating %d %s mappings", len(t.Mappings), t.Compartment)
		p.updateAll(t.Compartment, t.Mappings, t.Params)
	case UpdateSingleMapping:
		if t.Mapping == nil {
			return
		}
		debug.Log("main", "updating %s mapping %d", t.Compartment, t.Mapping.ID)
		p.updateSingle(t.Compartment, t.Mapping)
	case RefreshAllTargets:
		p.refreshAllTargets()
	case UpdateFeedbackGloballyEnabled:
		p.setFeedbackEnabled(t.Enabled)
	case FeedbackAll:
		if p.feedbackEnabled {
			now := p.now()
			for _, c := range mapping.Compartments {
				p.feedbackAllIn(c, now)
			}
		}
	case StartLearning, StopLearning:
		p.learning = t.Kind == StartLearning
		p.sendRealTime(RealTimeTask{Kind: RTSetLearning, Learning: p.learning})
	}
}

func (p *MainProcessor) updateAll(c mapping.Compartment, mappings []*MainMapping, params *[mapping.ParameterCount]float64) {
	unused := p.feedbackSources(c)
	if params != nil {
		for i, v := range params {
			p.params[c].Set(i, v)
		}
	}
	old := p.mappings[c]
	p.mappings[c] = make(map[mapping.ID]*MainMapping, len(mappings))
	p.order[c] = p.order[c][:0]
	ctx := p.contextFor(c)
	for _, m := range mappings {
		if prev, ok := old[m.ID]; ok {
			carryState(prev, m)
		}
		m.Compartment = c
		m.refreshAll(ctx, &p.params[c])
		p.mappings[c][m.ID] = m
		p.order[c] = append(p.order[c], m.ID)
	}
	p.syncRealTime(c)
	p.afterBatchUpdate(c, unused)
	p.publishOnMappings()
}

// carryState keeps what must survive a mapping update with the same target
func carryState(prev, next *MainMapping) {
	if prev.Target == nil || next.Target == nil || prev.Target.Kind() != next.Target.Kind() {
		return
	}
	next.initial, next.hasInitial = prev.initial, prev.hasInitial
	next.lastControl = prev.lastControl
}

func (p *MainProcessor) updateSingle(c mapping.Compartment, m *MainMapping) {
	unused := p.feedbackSources(c)
	prev, existed := p.mappings[c][m.ID]
	if existed {
		carryState(prev, m)
	}
	m.Compartment = c
	m.refreshAll(p.contextFor(c), &p.params[c])
	p.mappings[c][m.ID] = m
	if !existed {
		p.order[c] = append(p.order[c], m.ID)
	}

	if rt, ok := m.realTime(); ok {
		p.sendRealTime(RealTimeTask{Kind: RTUpdateMapping, Compartment: c, Mapping: rt})
	} else if existed && prev.Source.Category == source.CategoryMidi {
		// the real-time copy keeps the old source, so just switch it off
		rt, _ := prev.realTime()
		rt.ControlEnabled = false
		p.sendRealTime(RealTimeTask{Kind: RTUpdateMapping, Compartment: c, Mapping: rt})
	}

	if p.feedbackEnabled {
		if m.feedbackIsEffectivelyOn() {
			p.subscriptions[c][m.ID] = struct{}{}
		} else {
			delete(p.subscriptions[c], m.ID)
		}
		p.resetUnused(c, unused)
		if fv, ok := m.feedback(p.now(), p.echoWindow); ok {
			p.sendFeedback(m, fv)
		}
	}
	p.publishOnMappings()
}

func (p *MainProcessor) refreshAllTargets() {
	debug.Log("main", "refreshing all targets")
	for _, c := range mapping.Compartments {
		unused := p.feedbackSources(c)
		ctx := p.contextFor(c)
		p.each(c, func(m *MainMapping) { m.refreshTarget(ctx) })
		p.syncControlEnabled(c)
		p.afterBatchUpdate(c, unused)
	}
	p.publishOnMappings()
}

func (p *MainProcessor) setFeedbackEnabled(on bool) {
	if on == p.feedbackEnabled {
		return
	}
	if on {
		p.feedbackEnabled = true
		for _, c := range mapping.Compartments {
			p.afterBatchUpdate(c, nil)
		}
		return
	}
	// switch everything off while we're still allowed to send
	for _, c := range mapping.Compartments {
		for _, src := range p.feedbackSources(c) {
			p.sendReset(c, src)
		}
		clear(p.subscriptions[c])
	}
	p.buffer.ResetAll()
	p.feedbackEnabled = false
}

// feedbackSources collects the sources of all mappings with feedback on
func (p *MainProcessor) feedbackSources(c mapping.Compartment) map[source.Signature]source.Source {
	out := make(map[source.Signature]source.Source)
	p.each(c, func(m *MainMapping) {
		if m.feedbackIsEffectivelyOn() {
			out[m.Source.Signature()] = m.Source
		}
	})
	return out
}

// resetUnused sends a reset for every source of before that no mapping with
// feedback uses anymore
func (p *MainProcessor) resetUnused(c mapping.Compartment, before map[source.Signature]source.Source) {
	p.each(c, func(m *MainMapping) {
		if m.feedbackIsEffectivelyOn() {
			delete(before, m.Source.Signature())
		}
	})
	for _, src := range before {
		p.sendReset(c, src)
	}
}

// afterBatchUpdate resubscribes all mappings of the compartment from
// scratch, resets sources that became unused and sends fresh feedback
func (p *MainProcessor) afterBatchUpdate(c mapping.Compartment, before map[source.Signature]source.Source) {
	if !p.feedbackEnabled {
		return
	}
	clear(p.subscriptions[c])
	p.each(c, func(m *MainMapping) {
		if m.feedbackIsEffectivelyOn() {
			p.subscriptions[c][m.ID] = struct{}{}
		}
	})
	if before != nil {
		p.resetUnused(c, before)
	}
	p.buffer.ResetCompartment(c)
	p.feedbackAllIn(c, p.now())
}

func (p *MainProcessor) feedbackAllIn(c mapping.Compartment, now time.Time) {
	p.each(c, func(m *MainMapping) {
		if fv, ok := m.feedback(now, p.echoWindow); ok {
			p.sendFeedback(m, fv)
		}
	})
}

func (p *MainProcessor) handleParameter(t ParameterTask) {
	c := t.Compartment
	unused := p.feedbackSources(c)
	if t.All {
		for i, v := range t.Values {
			p.params[c].Set(i, v)
		}
	} else if _, err := p.params[c].Set(t.Index, t.Value); err != nil {
		debug.Log("main", "parameter task: %v", err)
		return
	}

	// read first, then write
	type effect struct {
		m      *MainMapping
		active bool
	}
	var effects []effect
	p.each(c, func(m *MainMapping) {
		if !t.All && !m.usesParam(t.Index) {
			return
		}
		if next := m.activationFor(&p.params[c]); next != m.byParams {
			effects = append(effects, effect{m, next})
		}
	})
	if len(effects) == 0 {
		return
	}
	for _, e := range effects {
		e.m.byParams = e.active
	}
	p.afterBatchUpdate(c, unused)
	p.syncControlEnabled(c)
	p.publishOnMappings()
}

func (p *MainProcessor) handleControl(t ControlTask) {
	if t.Kind == LearnSource {
		p.publish(DomainEvent{Kind: LearnedSource, Learned: t.Msg})
		return
	}
	m, ok := p.mappings[t.Compartment][t.ID]
	if !ok {
		// the mapping was removed after the real-time side matched it
		debug.Log("main", "control for unknown %s mapping %d", t.Compartment, t.ID)
		return
	}
	if !m.controlIsEffectivelyOn() {
		return
	}
	p.controlMapping(m, t.Value, t.Options, p.now())
}

// ProcessOsc controls all mappings with a matching OSC source. OSC doesn't
// go through the real-time processor.
func (p *MainProcessor) ProcessOsc(msg *osc.Message) {
	if p.learning {
		p.publish(DomainEvent{Kind: LearnedSource, LearnedOsc: msg})
		return
	}
	now := p.now()
	for _, c := range mapping.Compartments {
		p.each(c, func(m *MainMapping) {
			if !m.controlIsEffectivelyOn() {
				return
			}
			if v, ok := m.Source.ControlOsc(msg); ok {
				p.controlMapping(m, v, ControlOptions{}, now)
			}
		})
	}
}

// processVirtual feeds the output of a controller mapping into the main
// mappings listening to the virtual element
func (p *MainProcessor) processVirtual(ev source.VirtualEvent) {
	now := p.now()
	p.each(mapping.Main, func(m *MainMapping) {
		if !m.controlIsEffectivelyOn() {
			return
		}
		if v, ok := m.Source.ControlVirtual(ev); ok {
			p.controlMapping(m, v, ControlOptions{}, now)
		}
	})
}

func (p *MainProcessor) controlMapping(m *MainMapping, v control.Value, opts ControlOptions, now time.Time) {
	p.controls++
	p.publish(DomainEvent{Kind: MappingMatched, Compartment: m.Compartment, ID: m.ID})
	c := m.Compartment
	hctx := target.HitContext{Context: p.contextFor(c), Now: now}
	resp, _, ok, err := m.control(v, hctx, m.PreventEchoFeedback)
	if !ok {
		return
	}
	if err != nil {
		p.failures++
		debug.Log("main", "%s mapping %d: %v", c, m.ID, err)
		p.publish(DomainEvent{Kind: ControlFailed, Compartment: c, ID: m.ID, Err: err})
		return
	}
	switch resp.Kind {
	case target.ProcessedWithEffect:
		ev := DomainEvent{Kind: TargetValueChanged, Compartment: c, ID: m.ID}
		ev.Value, _ = m.target.CurrentValue()
		p.publish(ev)
		if p.feedbackEnabled {
			p.buffer.Buffer(c, m.ID)
		}
	case target.Deferred:
		p.execute(c, resp.Instruction, now)
	}
	if (opts.EnforceFeedbackAfterControl || m.SendFeedbackAfterControl) && p.feedbackEnabled {
		if fv, ok := m.feedbackFor(m.target); ok && m.feedbackIsEffectivelyOn() {
			p.sendFeedback(m, fv)
		}
	}
}

// execute runs a deferred instruction with access to all mappings of the
// compartment
func (p *MainProcessor) execute(c mapping.Compartment, instr target.HitInstruction, now time.Time) {
	if instr == nil {
		return
	}
	unused := p.feedbackSources(c)
	handles := make([]target.MappingHandle, 0, len(p.order[c]))
	p.each(c, func(m *MainMapping) {
		handles = append(handles, &mappingHandle{p: p, m: m, now: now})
	})
	p.structChanged[c] = false
	err := instr.Execute(target.InstructionContext{Context: p.contextFor(c), Mappings: handles})
	if err != nil {
		p.failures++
		debug.Log("main", "instruction failed: %v", err)
		p.publish(DomainEvent{Kind: ControlFailed, Compartment: c, Err: err})
	}
	if p.structChanged[c] {
		p.structChanged[c] = false
		p.syncControlEnabled(c)
		p.afterBatchUpdate(c, unused)
		p.publishOnMappings()
	}
}

func (p *MainProcessor) handleFeedback(t FeedbackTask) {
	switch t.Kind {
	case MappingFeedback:
		if p.feedbackEnabled {
			p.buffer.Buffer(t.Compartment, t.ID)
		}
	case TargetTouched:
		p.refreshTouched()
	case TargetChanged:
		ev := t.Change
		if ev.Source == target.FromHost && ev.Host.Kind.IsStructural() {
			p.refreshAllTargets()
		}
		if !p.feedbackEnabled {
			return
		}
		for _, c := range mapping.Compartments {
			for _, id := range p.order[c] {
				if _, ok := p.subscriptions[c][id]; !ok {
					continue
				}
				m := p.mappings[c][id]
				if m.target != nil && m.target.ProcessChangeEvent(ev) {
					p.buffer.Buffer(c, id)
				}
			}
		}
	}
}

// refreshTouched re-resolves mappings that follow the last touched parameter
func (p *MainProcessor) refreshTouched() {
	now := p.now()
	for _, c := range mapping.Compartments {
		ctx := p.contextFor(c)
		p.each(c, func(m *MainMapping) {
			if !m.needsRefreshWhenTouched() {
				return
			}
			m.refreshTarget(ctx)
			if !p.feedbackEnabled || !m.feedbackIsEffectivelyOn() {
				return
			}
			p.subscriptions[c][m.ID] = struct{}{}
			if fv, ok := m.feedback(now, p.echoWindow); ok {
				p.sendFeedback(m, fv)
			}
		})
	}
}

func (p *MainProcessor) pollFeedback(now time.Time) {
	if !p.feedbackEnabled {
		return
	}
	for _, c := range mapping.Compartments {
		for id := range p.subscriptions[c] {
			m := p.mappings[c][id]
			if pt, ok := m.target.(target.PollingTarget); ok && pt.NeedsPolling() {
				p.buffer.Buffer(c, id)
			}
		}
	}
	ids, ok := p.buffer.Poll(now)
	if !ok {
		return
	}
	for _, q := range ids {
		m, ok := p.mappings[q.Compartment][q.ID]
		if !ok {
			continue
		}
		if fv, ok := m.feedback(now, p.echoWindow); ok {
			p.sendFeedback(m, fv)
		}
	}
}

func (p *MainProcessor) sendFeedback(m *MainMapping, fv source.FeedbackValue) {
	p.publish(DomainEvent{Kind: ProjectionFeedback, Compartment: m.Compartment, ID: m.ID, Feedback: fv})
	p.emit(m.Compartment, fv)
}

func (p *MainProcessor) sendReset(c mapping.Compartment, src source.Source) {
	if fv, ok := src.Feedback(control.MinUnit); ok {
		p.emit(c, fv)
	}
}

// emit sends feedback to the sink. Virtual feedback of main mappings goes
// through the controller mappings that target the element.
func (p *MainProcessor) emit(c mapping.Compartment, fv source.FeedbackValue) {
	if fv.Category != source.CategoryVirtual {
		p.feedbacks++
		if p.sink != nil {
			p.sink.SendFeedback(fv)
		}
		return
	}
	if c != mapping.Main {
		return
	}
	u, err := fv.Virtual.Value.ToUnit()
	if err != nil {
		return
	}
	p.each(mapping.Controller, func(cm *MainMapping) {
		el, ok := cm.virtualElement()
		if !ok || !el.Matches(fv.Virtual.Element) {
			return
		}
		if out, ok := cm.feedbackFromValue(u); ok {
			p.emit(mapping.Controller, out)
		}
	})
}

func (p *MainProcessor) publishOnMappings() {
	var on []mapping.QualifiedID
	for _, c := range mapping.Compartments {
		p.each(c, func(m *MainMapping) {
			if m.isEffectivelyOn() {
				on = append(on, mapping.QualifiedID{Compartment: c, ID: m.ID})
			}
		})
	}
	p.publish(DomainEvent{Kind: UpdatedOnMappings, OnMappings: on})
}

func (p *MainProcessor) syncRealTime(c mapping.Compartment) {
	var list []RealTimeMapping
	p.each(c, func(m *MainMapping) {
		if rt, ok := m.realTime(); ok {
			list = append(list, rt)
		}
	})
	p.sendRealTime(RealTimeTask{Kind: RTUpdateAllMappings, Compartment: c, Mappings: list})
}

func (p *MainProcessor) syncControlEnabled(c mapping.Compartment) {
	flags := make(map[mapping.ID]bool, len(p.order[c]))
	p.each(c, func(m *MainMapping) {
		flags[m.ID] = m.controlIsEffectivelyOn()
	})
	p.sendRealTime(RealTimeTask{Kind: RTUpdateControlEnabled, Compartment: c, ControlEnabled: flags})
}

func (p *MainProcessor) sendRealTime(t RealTimeTask) {
	if err := trySend(p.ch.RealTime, t); err != nil {
		slog.Warn("real-time task dropped", "kind", t.Kind, "err", err)
	}
}

// mappingHandle gives deferred instructions access to one mapping
type mappingHandle struct {
	p   *MainProcessor
	m   *MainMapping
	now time.Time
}

func (h *mappingHandle) Key() string           { return h.m.Key }
func (h *mappingHandle) GroupKey() string      { return h.m.GroupKey }
func (h *mappingHandle) Tags() []string        { return h.m.Tags }
func (h *mappingHandle) ControlEnabled() bool  { return h.m.ControlEnabled }
func (h *mappingHandle) IsEffectivelyOn() bool { return h.m.isEffectivelyOn() }

// SetEnabled switches the mapping right away and asks the session to store it
func (h *mappingHandle) SetEnabled(on bool) {
	if h.m.Enabled == on {
		return
	}
	h.m.Enabled = on
	h.p.structChanged[h.m.Compartment] = true
	h.p.publish(DomainEvent{Kind: MappingEnabledChangeRequested, Compartment: h.m.Compartment, ID: h.m.ID, Enabled: on})
}

func (h *mappingHandle) InitialTargetValue() (control.AbsoluteValue, bool) {
	return h.m.initial, h.m.hasInitial
}

func (h *mappingHandle) CurrentTargetValue() (control.AbsoluteValue, bool) {
	if h.m.target == nil {
		return control.AbsoluteValue{}, false
	}
	return h.m.target.CurrentValue()
}

func (h *mappingHandle) ControlFromTarget(v control.AbsoluteValue) error {
	m := h.m
	if m.target == nil {
		if m.err != nil {
			return m.err
		}
		return target.ErrTargetUnavailable
	}
	resp, err := m.target.Hit(control.FromAbsolute(v), target.HitContext{Context: h.p.contextFor(m.Compartment), Now: h.now})
	if err != nil {
		return errors.Wrapf(err, "mapping %s", m.Key)
	}
	switch resp.Kind {
	case target.ProcessedWithEffect:
		if h.p.feedbackEnabled {
			h.p.buffer.Buffer(m.Compartment, m.ID)
		}
	case target.Deferred:
		debug.Log("main", "nested instruction of mapping %d ignored", m.ID)
	}
	return nil
}
