// Package panesync keeps the visible range of the primary price pane and
// every indicator pane in lockstep.
//
// A range change from one pane is propagated to all others. Panes echo the
// range back when the host applies it; those echoes must not propagate again.
// Two guards cover this: a re-entrancy token that drops any change reported
// synchronously while a propagation is running, and a short per-pane queue of
// ranges sent but not yet echoed. Hosts apply updates in order, so an echo
// that matches a queued range also retires every range queued before it. No
// timers are involved.
package panesync

import "chartdesk/internal/model"

// maxPending bounds the unacknowledged ranges kept per pane.
const maxPending = 16

// Primary is the pane holding the price series and overlays.
const Primary = "main"

// Update tells the host to move one pane to a range.
type Update struct {
	Pane  string      `json:"pane"`
	Range model.Range `json:"range"`
}

// Height is one pane's share of the chart height in percent.
type Height struct {
	Pane    string  `json:"pane"`
	Percent float64 `json:"percent"`
}

// Synchronizer is owned by one session event loop and is not safe for
// concurrent use.
type Synchronizer struct {
	panes    []string // Primary first, then indicator panes in insertion order
	pending  map[string][]model.Range
	current  model.Range
	hasRange bool

	propagating bool

	// Apply, when set, is invoked for every update during propagation. A
	// synchronous host that reports the resulting range change back through
	// Changed is absorbed by the re-entrancy token.
	Apply func(Update)
}

// New creates a synchronizer holding only the primary pane.
func New() *Synchronizer {
	return &Synchronizer{
		panes:   []string{Primary},
		pending: make(map[string][]model.Range),
	}
}

// AddPane registers an indicator pane. When a range is already known the
// returned update moves the new pane to it.
func (s *Synchronizer) AddPane(id string) (Update, bool) {
	if id == Primary || s.has(id) {
		return Update{}, false
	}
	s.panes = append(s.panes, id)
	if !s.hasRange {
		return Update{}, false
	}
	s.expect(id, s.current)
	return Update{Pane: id, Range: s.current}, true
}

// RemovePane unregisters an indicator pane. The primary pane cannot be removed.
func (s *Synchronizer) RemovePane(id string) {
	if id == Primary {
		return
	}
	for i, p := range s.panes {
		if p == id {
			s.panes = append(s.panes[:i], s.panes[i+1:]...)
			break
		}
	}
	delete(s.pending, id)
}

// Panes returns the pane IDs, primary first.
func (s *Synchronizer) Panes() []string {
	out := make([]string, len(s.panes))
	copy(out, s.panes)
	return out
}

// Current returns the last propagated range.
func (s *Synchronizer) Current() (model.Range, bool) {
	return s.current, s.hasRange
}

// Reset forgets the current range and pending echoes, keeping the panes.
func (s *Synchronizer) Reset() {
	s.hasRange = false
	s.current = model.Range{}
	s.pending = make(map[string][]model.Range)
}

// Changed records a range change reported by source and returns the updates
// for every other pane. Echoes of a propagated range and changes reported
// while a propagation is running return nil.
func (s *Synchronizer) Changed(source string, r model.Range) []Update {
	if s.propagating || !s.has(source) {
		return nil
	}
	if s.acknowledge(source, r) {
		return nil
	}
	if s.hasRange && s.current.Equal(r) {
		return nil
	}
	return s.propagate(source, r)
}

func (s *Synchronizer) expect(pane string, r model.Range) {
	q := append(s.pending[pane], r)
	if len(q) > maxPending {
		q = q[len(q)-maxPending:]
	}
	s.pending[pane] = q
}

// acknowledge retires the queued ranges of pane up to and including the first
// one equal to r. It reports whether r was an echo.
func (s *Synchronizer) acknowledge(pane string, r model.Range) bool {
	q := s.pending[pane]
	for i, want := range q {
		if want.Equal(r) {
			if rest := q[i+1:]; len(rest) > 0 {
				s.pending[pane] = rest
			} else {
				delete(s.pending, pane)
			}
			return true
		}
	}
	return false
}

// Broadcast moves every pane, including the primary, to r. Used when the
// series itself shifts under the view, for example after a backfill.
func (s *Synchronizer) Broadcast(r model.Range) []Update {
	return s.propagate("", r)
}

func (s *Synchronizer) propagate(source string, r model.Range) []Update {
	s.current, s.hasRange = r, true

	updates := make([]Update, 0, len(s.panes))
	for _, p := range s.panes {
		if p == source {
			continue
		}
		s.expect(p, r)
		updates = append(updates, Update{Pane: p, Range: r})
	}

	if s.Apply != nil {
		s.propagating = true
		for _, u := range updates {
			s.Apply(u)
		}
		s.propagating = false
	}
	return updates
}

func (s *Synchronizer) has(id string) bool {
	for _, p := range s.panes {
		if p == id {
			return true
		}
	}
	return false
}

// Layout splits the chart height between the primary pane and the indicator
// panes: alone the primary takes 100%; with one pane 65/35; with two 60/20/20;
// with n ≥ 3 the primary keeps 55% and the rest share 45% equally.
func (s *Synchronizer) Layout() []Height {
	return Layout(s.panes[1:])
}

// Layout computes heights for the given indicator panes.
func Layout(indicatorPanes []string) []Height {
	n := len(indicatorPanes)
	var primary, each float64
	switch n {
	case 0:
		primary = 100
	case 1:
		primary, each = 65, 35
	case 2:
		primary, each = 60, 20
	default:
		primary, each = 55, 45/float64(n)
	}

	out := make([]Height, 0, n+1)
	out = append(out, Height{Pane: Primary, Percent: primary})
	for _, p := range indicatorPanes {
		out = append(out, Height{Pane: p, Percent: each})
	}
	return out
}
