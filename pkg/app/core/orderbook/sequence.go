package orderbook

import "sync/atomic"

// Sequencer hands out strictly increasing arrival sequences shared by every
// book of one engine.
type Sequencer struct {
	last atomic.Uint64
}

// NewSequencer starts after start; the first Next returns start+1.
func NewSequencer(start uint64) *Sequencer {
	s := &Sequencer{}
	s.last.Store(start)
	return s
}

func (s *Sequencer) Next() uint64 { return s.last.Add(1) }

// Current returns the last issued sequence.
func (s *Sequencer) Current() uint64 { return s.last.Load() }

// AdvanceTo moves the sequencer forward to at least v. Used after restoring
// resting orders so new arrivals never reuse a restored sequence.
func (s *Sequencer) AdvanceTo(v uint64) {
	for {
		cur := s.last.Load()
		if cur >= v || s.last.CompareAndSwap(cur, v) {
			return
		}
	}
}
