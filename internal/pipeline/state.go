// Package pipeline drives a warehouse load through its stages in order.
package pipeline

import (
	"fmt"
	"sync"
	"time"

	"starload/internal/queries"
	"starload/pkg/errors"
)

// State is how far a load has progressed
type State int

const (
	StateFailed State = iota - 1
	StateIdle
	StateDropped
	StateCreated
	StateStaged
	StateFactLoaded
	StateComplete
)

func (s State) String() string {
	switch s {
	case StateFailed:
		return "failed"
	case StateIdle:
		return "idle"
	case StateDropped:
		return "dropped"
	case StateCreated:
		return "created"
	case StateStaged:
		return "staged"
	case StateFactLoaded:
		return "fact-loaded"
	case StateComplete:
		return "complete"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type transition struct {
	stage queries.Stage
	next  State
}

// every state has exactly one way forward
var transitions = map[State]transition{
	StateIdle:       {queries.StageDrop, StateDropped},
	StateDropped:    {queries.StageCreate, StateCreated},
	StateCreated:    {queries.StageCopy, StateStaged},
	StateStaged:     {queries.StageInsertFact, StateFactLoaded},
	StateFactLoaded: {queries.StageInsertDimensions, StateComplete},
}

// NextStage returns the stage allowed from s
func NextStage(s State) (queries.Stage, bool) {
	t, ok := transitions[s]
	return t.stage, ok
}

// Transition records one step taken
type Transition struct {
	From  State
	To    State
	Stage queries.Stage
	At    time.Time
}

// Pipeline tracks the state of one load
type Pipeline struct {
	mu      sync.Mutex
	state   State
	history []Transition
}

// New creates a pipeline that assumes the warehouse is already in start
func New(start State) *Pipeline {
	return &Pipeline{state: start}
}

// State returns the current state
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// History returns the transitions taken so far
func (p *Pipeline) History() []Transition {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Transition, len(p.history))
	copy(out, p.history)
	return out
}

// Check returns an error unless stage is the next one allowed
func (p *Pipeline) Check(stage queries.Stage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := p.check(stage)
	return err
}

func (p *Pipeline) check(stage queries.Stage) (transition, error) {
	t, ok := transitions[p.state]
	if !ok || t.stage != stage {
		expected := "none"
		if ok {
			expected = string(t.stage)
		}
		return transition{}, errors.New(errors.ErrCodeInvalidState,
			fmt.Sprintf("Stage %s cannot run in state %s", stage, p.state)).
			WithContext("state", p.state.String()).
			WithContext("expected_stage", expected)
	}
	return t, nil
}

// Advance records that stage completed
func (p *Pipeline) Advance(stage queries.Stage) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, err := p.check(stage)
	if err != nil {
		return err
	}
	p.history = append(p.history, Transition{From: p.state, To: t.next, Stage: stage, At: time.Now()})
	p.state = t.next
	return nil
}

// Fail moves the pipeline to the failed state, which has no way forward
func (p *Pipeline) Fail(stage queries.Stage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.history = append(p.history, Transition{From: p.state, To: StateFailed, Stage: stage, At: time.Now()})
	p.state = StateFailed
}

// Plan is an ordered list of stages to run
type Plan []queries.Stage

var (
	// FullRebuild drops and rebuilds every table
	FullRebuild = Plan{
		queries.StageDrop,
		queries.StageCreate,
		queries.StageCopy,
		queries.StageInsertFact,
		queries.StageInsertDimensions,
	}
	// CreateTables resets the schema
	CreateTables = Plan{queries.StageDrop, queries.StageCreate}
	// ETL loads into an existing, empty schema
	ETL = Plan{queries.StageCopy, queries.StageInsertFact, queries.StageInsertDimensions}
)

// Start returns the state the warehouse must be in for the plan's first stage
func (p Plan) Start() (State, error) {
	if len(p) == 0 {
		return StateIdle, errors.New(errors.ErrCodeInvalidInput, "Empty plan")
	}
	for s, t := range transitions {
		if t.stage == p[0] {
			return s, nil
		}
	}
	return StateIdle, errors.New(errors.ErrCodeInvalidInput, fmt.Sprintf("Unknown stage '%s'", p[0]))
}
