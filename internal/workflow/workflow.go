// Package workflow holds the acknowledgement steps that must happen, in
// order, before the register may be reset.
package workflow

import (
	"errors"
	"fmt"
	"sync"
)

// ErrGuardViolation is matched by every *GuardViolationError.
var ErrGuardViolation = errors.New("workflow guard violation")

// Stage is the furthest acknowledgement reached.
type Stage int

const (
	NotViewed Stage = iota
	Viewed
	Printed
	EmailSent
)

func (s Stage) String() string {
	switch s {
	case NotViewed:
		return "not_viewed"
	case Viewed:
		return "viewed"
	case Printed:
		return "printed"
	case EmailSent:
		return "email_sent"
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// Step is an acknowledgement requested by the operator, or the reset itself.
type Step string

const (
	StepViewed    Step = "viewed"
	StepPrinted   Step = "printed"
	StepEmailSent Step = "email_sent"
	StepReset     Step = "reset"
)

// GuardViolationError reports a step attempted before its prerequisite.
type GuardViolationError struct {
	Step    Step
	Current Stage
	Needs   Stage
}

func (e *GuardViolationError) Error() string {
	return fmt.Sprintf("%s requires %s, workflow is at %s", e.Step, e.Needs, e.Current)
}

func (e *GuardViolationError) Is(target error) bool {
	return target == ErrGuardViolation
}

// requires lists the stage each step needs, and the stage it leads to.
var requires = map[Step]struct{ needs, next Stage }{
	StepViewed:    {NotViewed, Viewed},
	StepPrinted:   {Viewed, Printed},
	StepEmailSent: {Printed, EmailSent},
	StepReset:     {EmailSent, NotViewed},
}

// Transition applies step to cur. Acknowledging an earlier step again keeps
// the stage; anything out of order is a *GuardViolationError.
func Transition(cur Stage, step Step) (Stage, error) {
	r, ok := requires[step]
	if !ok {
		return cur, fmt.Errorf("unknown workflow step %q", step)
	}
	if cur < r.needs {
		return cur, &GuardViolationError{Step: step, Current: cur, Needs: r.needs}
	}
	if step == StepReset {
		return r.next, nil
	}
	return max(cur, r.next), nil
}

// State is the boolean view of the current stage.
type State struct {
	Stage             string `json:"stage"`
	IsViewed          bool   `json:"is_viewed"`
	IsPrinted         bool   `json:"is_printed"`
	IsEmailSent       bool   `json:"is_email_sent"`
	WorkflowCompleted bool   `json:"workflow_completed"`
}

// StateOf projects s onto its flags.
func StateOf(s Stage) State {
	return State{
		Stage:             s.String(),
		IsViewed:          s >= Viewed,
		IsPrinted:         s >= Printed,
		IsEmailSent:       s >= EmailSent,
		WorkflowCompleted: s == EmailSent,
	}
}

// Guard is the in-memory workflow of the running register. It is not
// persisted: a restart begins at NotViewed.
type Guard struct {
	mu    sync.Mutex
	stage Stage
}

func NewGuard() *Guard {
	return &Guard{}
}

func (g *Guard) apply(step Step) (State, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	next, err := Transition(g.stage, step)
	if err != nil {
		return StateOf(g.stage), err
	}
	g.stage = next
	return StateOf(next), nil
}

func (g *Guard) AcknowledgeViewed() (State, error)    { return g.apply(StepViewed) }
func (g *Guard) AcknowledgePrinted() (State, error)   { return g.apply(StepPrinted) }
func (g *Guard) AcknowledgeEmailSent() (State, error) { return g.apply(StepEmailSent) }

// State returns the current flags.
func (g *Guard) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return StateOf(g.stage)
}

// CheckReset returns a *GuardViolationError unless every step is done.
func (g *Guard) CheckReset() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, err := Transition(g.stage, StepReset)
	return err
}

// Reset returns the guard to NotViewed.
func (g *Guard) Reset() {
	g.mu.Lock()
	g.stage = NotViewed
	g.mu.Unlock()
}
