package processor

import (
	"time"

	"go-surface/mapping"
	"go-surface/source"
)

// FeedbackBuffer collects mappings whose feedback is due and releases them
// at most once per interval, so that a burst of target changes results in a
// single feedback message per mapping
type FeedbackBuffer struct {
	interval time.Duration
	last     time.Time
	pending  [len(mapping.Compartments)]map[mapping.ID]struct{}
	order    []mapping.QualifiedID
}

func NewFeedbackBuffer(interval time.Duration) *FeedbackBuffer {
	b := &FeedbackBuffer{interval: interval}
	for i := range b.pending {
		b.pending[i] = make(map[mapping.ID]struct{})
	}
	return b
}

// Buffer marks a mapping as needing feedback
func (b *FeedbackBuffer) Buffer(c mapping.Compartment, id mapping.ID) {
	if _, ok := b.pending[c][id]; ok {
		return
	}
	b.pending[c][id] = struct{}{}
	b.order = append(b.order, mapping.QualifiedID{Compartment: c, ID: id})
}

// Poll returns the buffered mappings in buffering order if the interval has
// passed since the last successful poll
func (b *FeedbackBuffer) Poll(now time.Time) ([]mapping.QualifiedID, bool) {
	if now.Sub(b.last) < b.interval {
		return nil, false
	}
	b.last = now
	if len(b.order) == 0 {
		return nil, false
	}
	out := b.order
	b.order = nil
	for i := range b.pending {
		clear(b.pending[i])
	}
	return out, true
}

// ResetCompartment forgets the pending feedback of one compartment
func (b *FeedbackBuffer) ResetCompartment(c mapping.Compartment) {
	clear(b.pending[c])
	kept := b.order[:0]
	for _, q := range b.order {
		if q.Compartment != c {
			kept = append(kept, q)
		}
	}
	b.order = kept
}

func (b *FeedbackBuffer) ResetAll() {
	for i := range b.pending {
		clear(b.pending[i])
	}
	b.order = nil
}

func (b *FeedbackBuffer) Len() int {
	return len(b.order)
}

// FeedbackSink receives outgoing feedback
type FeedbackSink interface {
	SendFeedback(v source.FeedbackValue)
}

// FeedbackFunc adapts a function to FeedbackSink
type FeedbackFunc func(source.FeedbackValue)

func (f FeedbackFunc) SendFeedback(v source.FeedbackValue) { f(v) }
