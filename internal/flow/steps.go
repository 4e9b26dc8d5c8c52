// Package flow drives the multi-step intake conversation: it validates each
// answer, walks the step graph, and finishes a completed conversation by
// storing and delivering the submission.
package flow

import (
	"context"
	"errors"
	"fmt"

	"github.com/looplab/fsm"

	"github.com/ashureev/intake-bot/internal/domain"
	"github.com/ashureev/intake-bot/internal/validate"
)

// StepDone is the pseudo-step reached when the conversation is complete.
const StepDone domain.StepID = "done"

// Transition events.
const (
	eventAccept = "accept"
	eventYes    = "yes"
	eventNo     = "no"
)

// Step is one question. A text step has a Rule and a single Next; a yes/no
// step has YesNo set and forks to OnYes or OnNo.
type Step struct {
	ID     domain.StepID
	Field  domain.Field
	Prompt string
	Rule   validate.Rule
	Next   domain.StepID
	YesNo  bool
	OnYes  domain.StepID
	OnNo   domain.StepID
}

// Graph is a validated, acyclic set of steps.
type Graph struct {
	first  domain.StepID
	steps  map[domain.StepID]Step
	order  []domain.StepID
	events fsm.Events
}

// ErrInvalidGraph is returned by NewGraph for a malformed step table.
var ErrInvalidGraph = errors.New("invalid step graph")

// NewGraph checks the step table and builds its transition events. Every
// target must exist, every step must be reachable from first, and StepDone
// must be reachable without cycles.
func NewGraph(first domain.StepID, steps []Step) (*Graph, error) {
	g := &Graph{first: first, steps: make(map[domain.StepID]Step, len(steps))}
	for _, s := range steps {
		if s.ID == "" || s.ID == StepDone {
			return nil, fmt.Errorf("%w: bad step id %q", ErrInvalidGraph, s.ID)
		}
		if _, dup := g.steps[s.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate step %q", ErrInvalidGraph, s.ID)
		}
		g.steps[s.ID] = s
		g.order = append(g.order, s.ID)
	}
	if _, ok := g.steps[first]; !ok {
		return nil, fmt.Errorf("%w: first step %q not defined", ErrInvalidGraph, first)
	}

	for _, id := range g.order {
		s := g.steps[id]
		src := []string{string(id)}
		if s.YesNo {
			if s.OnYes == "" || s.OnNo == "" {
				return nil, fmt.Errorf("%w: yes/no step %q needs both branches", ErrInvalidGraph, id)
			}
			g.events = append(g.events,
				fsm.EventDesc{Name: eventYes, Src: src, Dst: string(s.OnYes)},
				fsm.EventDesc{Name: eventNo, Src: src, Dst: string(s.OnNo)},
			)
			continue
		}
		if s.Rule == nil || s.Next == "" {
			return nil, fmt.Errorf("%w: text step %q needs a rule and a next step", ErrInvalidGraph, id)
		}
		g.events = append(g.events, fsm.EventDesc{Name: eventAccept, Src: src, Dst: string(s.Next)})
	}

	for _, id := range g.order {
		for _, to := range g.targets(id) {
			if _, ok := g.steps[to]; !ok && to != StepDone {
				return nil, fmt.Errorf("%w: step %q points at unknown step %q", ErrInvalidGraph, id, to)
			}
		}
	}
	if err := g.checkAcyclic(); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *Graph) targets(id domain.StepID) []domain.StepID {
	s := g.steps[id]
	if s.YesNo {
		return []domain.StepID{s.OnYes, s.OnNo}
	}
	return []domain.StepID{s.Next}
}

// checkAcyclic walks the graph from the first step, rejecting back edges,
// unreachable steps and graphs that can never finish.
func (g *Graph) checkAcyclic() error {
	const (
		unseen = iota
		active
		finished
	)
	state := make(map[domain.StepID]int, len(g.steps))
	reachesDone := false

	var visit func(id domain.StepID) error
	visit = func(id domain.StepID) error {
		if id == StepDone {
			reachesDone = true
			return nil
		}
		switch state[id] {
		case active:
			return fmt.Errorf("%w: cycle through %q", ErrInvalidGraph, id)
		case finished:
			return nil
		}
		state[id] = active
		for _, to := range g.targets(id) {
			if err := visit(to); err != nil {
				return err
			}
		}
		state[id] = finished
		return nil
	}
	if err := visit(g.first); err != nil {
		return err
	}
	if !reachesDone {
		return fmt.Errorf("%w: no path to completion", ErrInvalidGraph)
	}
	for _, id := range g.order {
		if state[id] != finished {
			return fmt.Errorf("%w: step %q is unreachable", ErrInvalidGraph, id)
		}
	}
	return nil
}

// First returns the entry step.
func (g *Graph) First() domain.StepID { return g.first }

// Step looks up a step by ID.
func (g *Graph) Step(id domain.StepID) (Step, bool) {
	s, ok := g.steps[id]
	return s, ok
}

// Steps returns the steps in table order.
func (g *Graph) Steps() []Step {
	out := make([]Step, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.steps[id])
	}
	return out
}

// Next returns the step that follows from after an accepted answer. choice
// is ignored for text steps.
func (g *Graph) Next(ctx context.Context, from domain.StepID, choice validate.Choice) (domain.StepID, error) {
	s, ok := g.steps[from]
	if !ok {
		return "", fmt.Errorf("unknown step %q", from)
	}
	event := eventAccept
	if s.YesNo {
		switch choice {
		case validate.Yes:
			event = eventYes
		case validate.No:
			event = eventNo
		default:
			return "", fmt.Errorf("step %q needs a yes/no answer", from)
		}
	}

	m := fsm.NewFSM(string(from), g.events, fsm.Callbacks{})
	if err := m.Event(ctx, event); err != nil {
		return "", fmt.Errorf("transition %s from %q: %w", event, from, err)
	}
	return domain.StepID(m.Current()), nil
}

// Dot renders the graph in Graphviz format.
func (g *Graph) Dot() string {
	return fsm.Visualize(fsm.NewFSM(string(g.first), g.events, fsm.Callbacks{}))
}
