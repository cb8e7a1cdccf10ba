package pipeline

import (
	"sync"
	"time"

	"github.com/teranos/reposcout/candidate"
)

// State is the working set of one run. The engine owns it while the run is
// in progress; stages see snapshots through Input and never touch it.
type State struct {
	mu sync.RWMutex

	RunID     string
	Request   string
	StartedAt time.Time

	query           string
	hardware        string
	runCodeAnalysis bool
	presentation    string
	slots           map[Slot]candidate.List
}

func newState(runID, request string) *State {
	return &State{
		RunID:     runID,
		Request:   request,
		StartedAt: time.Now(),
		slots:     make(map[Slot]candidate.List),
	}
}

// Query is the search query derived from the request.
func (s *State) Query() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.query
}

// Hardware is the hardware profile extracted from the request; empty when none.
func (s *State) Hardware() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hardware
}

// RunCodeAnalysis is the decision-maker's verdict.
func (s *State) RunCodeAnalysis() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runCodeAnalysis
}

// Presentation is the rendered shortlist.
func (s *State) Presentation() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.presentation
}

// Collection returns a copy of the named collection; nil if not yet written.
func (s *State) Collection(slot Slot) candidate.List {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.slots[slot].Clone()
}

// Has reports whether slot has been written.
func (s *State) Has(slot Slot) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.slots[slot]
	return ok
}

// Final is the ranked shortlist.
func (s *State) Final() candidate.List { return s.Collection(SlotRanked) }

// Input is the read-only view a stage receives: the request plus every value
// written by its ancestors, copied so concurrent stages share nothing.
type Input struct {
	RunID           string
	Request         string
	Query           string
	Hardware        string
	RunCodeAnalysis bool

	collections map[Slot]candidate.List
}

// Collection returns the named collection, or nil when it was not produced
// by an ancestor of the receiving stage.
func (in Input) Collection(slot Slot) candidate.List {
	return in.collections[slot]
}

// NewInput builds an Input directly, for exercising a stage outside the engine.
func NewInput(request string, collections map[Slot]candidate.List) Input {
	return Input{Request: request, collections: collections}
}

// Output is what a stage returns. Only the field matching the stage's
// declared Writes or Scalar is read.
type Output struct {
	Candidates candidate.List
	Text       string
	Flag       bool
}

// snapshot copies everything visible to a stage with the given ancestors.
func (s *State) snapshot(g *compiled, name StageName) Input {
	s.mu.RLock()
	defer s.mu.RUnlock()

	in := Input{
		RunID:       s.RunID,
		Request:     s.Request,
		collections: make(map[Slot]candidate.List),
	}
	for anc := range g.ancestors[name] {
		spec := g.byName[anc]
		switch {
		case spec.Writes != "":
			in.collections[spec.Writes] = s.slots[spec.Writes].Clone()
		case spec.Scalar == ScalarQuery:
			in.Query = s.query
		case spec.Scalar == ScalarHardware:
			in.Hardware = s.hardware
		case spec.Scalar == ScalarDecision:
			in.RunCodeAnalysis = s.runCodeAnalysis
		}
	}
	return in
}

// commit stores a validated output.
func (s *State) commit(spec Spec, out Output) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if spec.Writes != "" {
		if out.Candidates == nil {
			out.Candidates = candidate.List{}
		}
		s.slots[spec.Writes] = out.Candidates.Clone()
		return
	}
	switch spec.Scalar {
	case ScalarQuery:
		s.query = out.Text
	case ScalarHardware:
		s.hardware = out.Text
	case ScalarDecision:
		s.runCodeAnalysis = out.Flag
	case ScalarPresentation:
		s.presentation = out.Text
	}
}
